package evaluator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"gatekeeper/internal/llm"
	"gatekeeper/internal/models"
)

type stubProvider struct {
	reply string
	err   error
}

func (p *stubProvider) Complete(context.Context, llm.CompletionRequest) (string, error) {
	return p.reply, p.err
}

func (p *stubProvider) Name() string { return "stub" }

func vettedSession() *models.Session {
	return &models.Session{
		ID:                "s1",
		ChatID:            "chat",
		UserID:            "user",
		DisplayName:       "Ada",
		Photo:             &models.Photo{Mimetype: "image/jpeg"},
		DOB:               &models.DateOfBirth{Day: 8, Month: 12},
		RulesAcknowledged: true,
		Answers: []models.Answer{
			{QuestionID: "q1", QuestionText: "Why join?", RawAnswer: "For the football talk", Score: 7, MaxScore: 10},
			{QuestionID: "q2", QuestionText: "Agree?", RawAnswer: "yes", Score: 10, MaxScore: 10},
		},
	}
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, float64(0), Percentage(nil))
	assert.InDelta(t, 85.0, Percentage(vettedSession().Answers), 0.01)
}

func TestRedFlags(t *testing.T) {
	sess := vettedSession()
	assert.Empty(t, RedFlags(sess))

	sess.Photo = nil
	sess.DOB = &models.DateOfBirth{Day: 99, Month: 1}
	sess.RulesAcknowledged = false
	flags := RedFlags(sess)
	assert.Len(t, flags, 3)
}

func TestVerdictTerminal(t *testing.T) {
	assert.Equal(t, models.StateApproved, Verdict{Decision: "APPROVE", Score: 80}.Terminal(70))
	assert.Equal(t, models.StatePendingReview, Verdict{Decision: "APPROVE", Score: 60}.Terminal(70))
	assert.Equal(t, models.StatePendingReview, Verdict{Decision: "REVIEW", Score: 95}.Terminal(70))
	assert.Equal(t, models.StateRejected, Verdict{Decision: "REJECT", Score: 95}.Terminal(70))
	assert.Equal(t, models.StateRejected, Verdict{Decision: "APPROVE", Score: 95, RedFlags: []string{"x"}}.Terminal(70))
}

func TestFinalVerdictRedFlagsForceReject(t *testing.T) {
	e := New(nil, zap.NewNop())
	sess := vettedSession()
	sess.Photo = nil
	settings := models.DefaultSettings("chat")

	v := e.FinalVerdict(context.Background(), sess, settings, "${responses}")
	assert.Equal(t, models.StateRejected, v.Terminal(settings.PassThreshold))
	assert.NotEmpty(t, v.RedFlags)
}

func TestFinalVerdictDeterministicWithoutLLM(t *testing.T) {
	e := New(nil, zap.NewNop())
	sess := vettedSession()
	settings := models.DefaultSettings("chat")
	settings.UseLLM = false

	v := e.FinalVerdict(context.Background(), sess, settings, "${responses}")
	assert.Equal(t, models.StateApproved, v.Terminal(settings.PassThreshold))
	assert.Equal(t, 85, v.Score)
	assert.False(t, v.Fallback)
}

func TestFinalVerdictLLMFailureFallsBack(t *testing.T) {
	client := llm.NewClient(&stubProvider{err: errors.New("boom")}, 0, zap.NewNop())
	e := New(client, zap.NewNop())
	sess := vettedSession()
	settings := models.DefaultSettings("chat")

	v := e.FinalVerdict(context.Background(), sess, settings, "${responses}")
	assert.True(t, v.Fallback)
	assert.Equal(t, 70, v.Score)
	assert.Equal(t, models.StatePendingReview, v.Terminal(settings.PassThreshold))
}

func TestFinalVerdictUsesLLMDecision(t *testing.T) {
	client := llm.NewClient(&stubProvider{reply: `{"decision":"APPROVE","score":88,"feedback":"great answers"}`}, 0, zap.NewNop())
	e := New(client, zap.NewNop())
	sess := vettedSession()
	settings := models.DefaultSettings("chat")

	v := e.FinalVerdict(context.Background(), sess, settings, "Rate them.\n${responses}")
	assert.Equal(t, 88, v.Score)
	assert.Equal(t, models.StateApproved, v.Terminal(settings.PassThreshold))
	assert.InDelta(t, 85.0, v.Percentage, 0.01)
}

func TestFallbackVerdict(t *testing.T) {
	e := New(nil, zap.NewNop())
	v := e.FallbackVerdict(vettedSession())
	assert.True(t, v.Fallback)
	assert.Equal(t, models.StatePendingReview, v.Terminal(70))
}

func TestFlattenResponsesIncludesFollowups(t *testing.T) {
	sess := vettedSession()
	sess.Followups = []models.Followup{
		{ParentQuestionID: "q1", Prompt: "Which club?", RawAnswer: "Arsenal"},
		{ParentQuestionID: "q2", Prompt: "ignored", RawAnswer: ""},
	}
	flat := FlattenResponses(sess)
	assert.Contains(t, flat, "Why join?")
	assert.Contains(t, flat, "Which club?")
	assert.Contains(t, flat, "Arsenal")
	assert.NotContains(t, flat, "ignored")
}

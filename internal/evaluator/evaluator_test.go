package evaluator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"gatekeeper/internal/models"
)

func TestParseYesNo(t *testing.T) {
	tests := []struct {
		in         string
		want       bool
		recognised bool
	}{
		{"yes", true, true},
		{"Yes", true, true},
		{"  yep  ", true, true},
		{"okay", true, true},
		{"yes, I agree", true, true},
		{"sure thing", true, true},
		{"no", false, true},
		{"Nope.", false, true},
		{"no way", false, true},
		{"maybe later", false, false},
		{"", false, false},
		{"bananas", false, false},
	}
	for _, tt := range tests {
		got, ok := ParseYesNo(tt.in)
		assert.Equal(t, tt.recognised, ok, "input %q", tt.in)
		if ok {
			assert.Equal(t, tt.want, got, "input %q", tt.in)
		}
	}
}

func TestScoreAnswerEmptyIsZero(t *testing.T) {
	e := New(nil, zap.NewNop())
	q := models.Question{ID: "q1", Text: "About you?", Type: models.QuestionOpen, Weight: 10}
	ans := e.ScoreAnswer(context.Background(), q, "   ", false)
	assert.Equal(t, float64(0), ans.Score)
	assert.Equal(t, float64(10), ans.MaxScore)
}

func TestScoreAnswerBoolean(t *testing.T) {
	e := New(nil, zap.NewNop())
	q := models.Question{ID: "q9", Type: models.QuestionBoolean, Weight: 10, CorrectValue: "yes"}

	assert.Equal(t, float64(10), e.ScoreAnswer(context.Background(), q, "yes", false).Score)
	assert.Equal(t, float64(0), e.ScoreAnswer(context.Background(), q, "no", false).Score)
	assert.Equal(t, float64(0), e.ScoreAnswer(context.Background(), q, "whatever", false).Score)

	// Without an expected value any recognised answer earns the weight.
	q.CorrectValue = ""
	assert.Equal(t, float64(10), e.ScoreAnswer(context.Background(), q, "no", false).Score)
}

func TestScoreAnswerChoice(t *testing.T) {
	e := New(nil, zap.NewNop())
	q := models.Question{
		ID: "q5", Type: models.QuestionChoice, Weight: 10,
		Choices: []string{"Tech", "Music", "Sports"},
	}
	assert.Equal(t, float64(10), e.ScoreAnswer(context.Background(), q, "mostly music I guess", false).Score)
	assert.Equal(t, float64(5), e.ScoreAnswer(context.Background(), q, "cooking", false).Score)
}

func TestScoreAnswerOpenLengthHeuristic(t *testing.T) {
	e := New(nil, zap.NewNop())
	q := models.Question{ID: "q1", Type: models.QuestionOpen, Weight: 10}

	short := "just looking"
	medium := "I heard about this group from a friend and wanted to meet people"
	long := medium + " who share my interests, mostly weekend football and a bit of " +
		"music production, and hopefully learn a few things along the way too"

	assert.InDelta(t, 3, e.ScoreAnswer(context.Background(), q, short, false).Score, 0.001)
	assert.InDelta(t, 7, e.ScoreAnswer(context.Background(), q, medium, false).Score, 0.001)
	assert.InDelta(t, 10, e.ScoreAnswer(context.Background(), q, long, false).Score, 0.001)
}

func TestMaybeFollowupGates(t *testing.T) {
	e := New(nil, zap.NewNop())
	sess := &models.Session{DisplayName: "Ada"}
	q := models.Question{ID: "q1", Type: models.QuestionOpen, Weight: 10}
	long := "A long enough answer that could in principle earn a follow-up question."

	// Without an LLM client there is never a follow-up.
	_, ok := e.MaybeFollowup(context.Background(), sess, q, long, true)
	assert.False(t, ok)

	// useLLM off is an equally hard gate.
	_, ok = e.MaybeFollowup(context.Background(), sess, q, long, false)
	assert.False(t, ok)
}

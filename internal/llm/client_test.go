package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProvider struct {
	reply string
	err   error
	calls int
	last  CompletionRequest
}

func (p *fakeProvider) Complete(_ context.Context, req CompletionRequest) (string, error) {
	p.calls++
	p.last = req
	return p.reply, p.err
}

func (p *fakeProvider) Name() string { return "fake" }

func TestScoreInterviewParsesVerdict(t *testing.T) {
	p := &fakeProvider{reply: `{"decision":"approve","score":82,"feedback":"good"}`}
	c := NewClient(p, 0, zap.NewNop())

	v, err := c.ScoreInterview(context.Background(), "Q1: hi\nA1: hello", true, "Rate.\n${responses}")
	require.NoError(t, err)
	assert.Equal(t, DecisionApprove, v.Decision)
	assert.Equal(t, 82, v.Score)
	// The transcript replaces the placeholder in the outbound prompt.
	assert.Contains(t, p.last.Messages[1].Content, "A1: hello")
	assert.NotContains(t, p.last.Messages[1].Content, "${responses}")
}

func TestScoreInterviewAcceptsFencedJSON(t *testing.T) {
	p := &fakeProvider{reply: "```json\n{\"decision\":\"REVIEW\",\"score\":55,\"feedback\":\"meh\"}\n```"}
	c := NewClient(p, 0, zap.NewNop())

	v, err := c.ScoreInterview(context.Background(), "x", true, "${responses}")
	require.NoError(t, err)
	assert.Equal(t, DecisionReview, v.Decision)
}

func TestScoreInterviewAcceptsSurroundingProse(t *testing.T) {
	p := &fakeProvider{reply: `Here you go: {"decision":"REJECT","score":10,"feedback":"thin"} hope that helps`}
	c := NewClient(p, 0, zap.NewNop())

	v, err := c.ScoreInterview(context.Background(), "x", false, "${responses}")
	require.NoError(t, err)
	assert.Equal(t, DecisionReject, v.Decision)
}

func TestScoreInterviewRejectsBadPayloads(t *testing.T) {
	for _, reply := range []string{
		"no json at all",
		`{"decision":"MAYBE","score":50,"feedback":""}`,
		`{"decision":"APPROVE","score":120,"feedback":""}`,
	} {
		p := &fakeProvider{reply: reply}
		c := NewClient(p, 0, zap.NewNop())
		_, err := c.ScoreInterview(context.Background(), "x", true, "${responses}")
		require.Error(t, err, "reply %q", reply)
		var pe *ProviderError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, ErrCodeBadResponse, pe.Code)
	}
}

func TestScoreInterviewTruncatesFeedback(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	p := &fakeProvider{reply: `{"decision":"APPROVE","score":90,"feedback":"` + string(long) + `"}`}
	c := NewClient(p, 0, zap.NewNop())

	v, err := c.ScoreInterview(context.Background(), "x", true, "${responses}")
	require.NoError(t, err)
	assert.Len(t, v.Feedback, 150)
}

func TestScoreInterviewTruncationKeepsRunesIntact(t *testing.T) {
	// The leading ASCII byte puts the 150-byte cap in the middle of a
	// two-byte rune; the cut must back off instead of splitting it.
	feedback := "a" + strings.Repeat("é", 100)
	p := &fakeProvider{reply: `{"decision":"APPROVE","score":90,"feedback":"` + feedback + `"}`}
	c := NewClient(p, 0, zap.NewNop())

	v, err := c.ScoreInterview(context.Background(), "x", true, "${responses}")
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(v.Feedback))
	assert.Equal(t, 149, len(v.Feedback))
}

func TestParseDOBClarification(t *testing.T) {
	p := &fakeProvider{reply: `{"clarification":"Could you send it as day/month?"}`}
	c := NewClient(p, 0, zap.NewNop())

	d, err := c.ParseDOB(context.Background(), "sometime in winter", "Ada")
	require.NoError(t, err)
	assert.Empty(t, d.Day)
	assert.NotEmpty(t, d.Clarification)
}

func TestParseDOBRangeValidation(t *testing.T) {
	p := &fakeProvider{reply: `{"day":45,"month":2,"year":null}`}
	c := NewClient(p, 0, zap.NewNop())

	_, err := c.ParseDOB(context.Background(), "45 feb", "Ada")
	require.Error(t, err)
}

func TestGenerateFollowupNone(t *testing.T) {
	p := &fakeProvider{reply: "NONE"}
	c := NewClient(p, 0, zap.NewNop())

	q, err := c.GenerateFollowup(context.Background(), "Why join?", "because", nil, "Ada")
	require.NoError(t, err)
	assert.Empty(t, q)
}

func TestRateLimitKicksIn(t *testing.T) {
	p := &fakeProvider{reply: `{"decision":"APPROVE","score":80,"feedback":"ok"}`}
	c := NewClient(p, 0, zap.NewNop())

	// The per-endpoint burst is 3; the fourth immediate call is refused
	// before it reaches the provider.
	for i := 0; i < 3; i++ {
		_, err := c.ScoreInterview(context.Background(), "x", true, "${responses}")
		require.NoError(t, err)
	}
	_, err := c.ScoreInterview(context.Background(), "x", true, "${responses}")
	require.Error(t, err)
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, ErrCodeRateLimit, pe.Code)
	assert.Equal(t, 3, p.calls)
}

func TestStripJSONFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripJSONFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripJSONFence("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripJSONFence(`{"a":1}`))
}

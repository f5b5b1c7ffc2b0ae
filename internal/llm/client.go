package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client wraps a Provider with the three interview contracts. Every call is
// rate limited per endpoint and bounded by a hard timeout; callers get a
// typed result or an error, never a panic.
type Client struct {
	provider Provider
	timeout  time.Duration
	logger   *zap.Logger

	scoreLimiter    *rate.Limiter
	dobLimiter      *rate.Limiter
	followupLimiter *rate.Limiter
}

// NewClient builds a client around a provider. A zero timeout defaults to
// 20 seconds.
func NewClient(provider Provider, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	perMinute := func(n int) *rate.Limiter {
		return rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 3)
	}
	return &Client{
		provider:        provider,
		timeout:         timeout,
		logger:          logger,
		scoreLimiter:    perMinute(30),
		dobLimiter:      perMinute(30),
		followupLimiter: perMinute(20),
	}
}

// Verdict is the validated aggregate scoring response.
type Verdict struct {
	Decision string `json:"decision"`
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
}

// Verdict decisions.
const (
	DecisionApprove = "APPROVE"
	DecisionReject  = "REJECT"
	DecisionReview  = "REVIEW"
)

// DOBResult is the validated date-of-birth parse. Either Day/Month are set
// or Clarification carries a reprompt for the candidate.
type DOBResult struct {
	Day           int    `json:"day"`
	Month         int    `json:"month"`
	Year          *int   `json:"year"`
	Clarification string `json:"clarification,omitempty"`
}

func (c *Client) complete(ctx context.Context, limiter *rate.Limiter, req CompletionRequest) (string, error) {
	if !limiter.Allow() {
		return "", &ProviderError{
			Provider: c.provider.Name(),
			Code:     ErrCodeRateLimit,
			Message:  "endpoint rate limit exceeded",
		}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.provider.Complete(ctx, req)
}

// ScoreInterview grades a completed interview. The prompt template must
// contain a ${responses} placeholder which is substituted with the
// flattened Q/A transcript.
func (c *Client) ScoreInterview(ctx context.Context, responses string, photoPresent bool, promptTemplate string) (*Verdict, error) {
	prompt := strings.ReplaceAll(promptTemplate, "${responses}", responses)
	if photoPresent {
		prompt += "\nThe candidate provided the required photo."
	} else {
		prompt += "\nThe candidate did NOT provide the required photo."
	}

	raw, err := c.complete(ctx, c.scoreLimiter, CompletionRequest{
		Messages: []ChatMessage{
			{Role: "system", Content: "You are a strict membership vetting assistant. Reply with JSON only."},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.2,
		MaxTokens:   300,
	})
	if err != nil {
		return nil, err
	}

	var v Verdict
	if err := decodeJSON(raw, &v); err != nil {
		return nil, c.badResponse("score_interview", raw, err)
	}
	v.Decision = strings.ToUpper(strings.TrimSpace(v.Decision))
	switch v.Decision {
	case DecisionApprove, DecisionReject, DecisionReview:
	default:
		return nil, c.badResponse("score_interview", raw, fmt.Errorf("unknown decision %q", v.Decision))
	}
	if v.Score < 0 || v.Score > 100 {
		return nil, c.badResponse("score_interview", raw, fmt.Errorf("score %d out of range", v.Score))
	}
	v.Feedback = truncate(v.Feedback, 150)
	return &v, nil
}

// ParseDOB resolves a free-text date of birth. An unresolvable answer comes
// back with a Clarification instead of an error.
func (c *Client) ParseDOB(ctx context.Context, text, displayName string) (*DOBResult, error) {
	prompt := fmt.Sprintf(
		"Extract the date of birth from this message by %s: %q\n"+
			"Reply with JSON {\"day\":1-31,\"month\":1-12,\"year\":null or a number}. "+
			"If the date cannot be determined, reply with JSON {\"clarification\":\"one short question asking them to restate it as day/month\"}.",
		displayName, text)

	raw, err := c.complete(ctx, c.dobLimiter, CompletionRequest{
		Messages: []ChatMessage{
			{Role: "system", Content: "You extract structured dates. Reply with JSON only."},
			{Role: "user", Content: prompt},
		},
		Temperature: 0,
		MaxTokens:   120,
	})
	if err != nil {
		return nil, err
	}

	var d DOBResult
	if err := decodeJSON(raw, &d); err != nil {
		return nil, c.badResponse("parse_dob", raw, err)
	}
	if d.Clarification != "" {
		return &DOBResult{Clarification: d.Clarification}, nil
	}
	if d.Day < 1 || d.Day > 31 || d.Month < 1 || d.Month > 12 {
		return nil, c.badResponse("parse_dob", raw, fmt.Errorf("date %d/%d out of range", d.Day, d.Month))
	}
	return &d, nil
}

// GenerateFollowup produces one conversational probe for an answer, or an
// empty string when the model declines.
func (c *Client) GenerateFollowup(ctx context.Context, questionText, rawAnswer string, recentTurns []string, displayName string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "You are interviewing %s for group membership.\n", displayName)
	if len(recentTurns) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, t := range recentTurns {
			b.WriteString("- " + t + "\n")
		}
	}
	fmt.Fprintf(&b, "Question: %s\nTheir answer: %s\n", questionText, rawAnswer)
	b.WriteString("Write ONE short, friendly follow-up question digging a little deeper. " +
		"Reply with the question text only, or NONE if no follow-up is warranted.")

	raw, err := c.complete(ctx, c.followupLimiter, CompletionRequest{
		Messages: []ChatMessage{
			{Role: "user", Content: b.String()},
		},
		Temperature: 0.8,
		MaxTokens:   80,
	})
	if err != nil {
		return "", err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "NONE") {
		return "", nil
	}
	return raw, nil
}

func (c *Client) badResponse(op, raw string, cause error) error {
	c.logger.Warn("llm response rejected",
		zap.String("op", op),
		zap.String("raw", truncate(raw, 200)),
		zap.Error(cause))
	return &ProviderError{
		Provider: c.provider.Name(),
		Code:     ErrCodeBadResponse,
		Message:  op + ": " + cause.Error(),
		Err:      cause,
	}
}

// decodeJSON parses content into v, accepting fenced ```json blocks and
// leading/trailing prose around a single JSON object.
func decodeJSON(content string, v any) error {
	s := StripJSONFence(content)
	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}
	// Last resort: slice out the first balanced-looking object.
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return json.Unmarshal([]byte(s[start:end+1]), v)
	}
	return fmt.Errorf("no JSON object in response")
}

// StripJSONFence removes a surrounding ```json ... ``` fence if present.
func StripJSONFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// truncate cuts s to at most n bytes, backing off so a multibyte rune is
// never split.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Package evaluator grades answers and produces interview verdicts.
// Deterministic rules run first; the LLM is consulted only where a
// question declares criteria, and every LLM failure degrades to a
// deterministic fallback rather than a user-visible error.
package evaluator

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"gatekeeper/internal/llm"
	"gatekeeper/internal/models"
)

const (
	// MaxFollowupsPerSession caps conversational probes per interview.
	MaxFollowupsPerSession = 2
	// followupMinAnswerLen is the minimum raw answer length that can
	// trigger a follow-up.
	followupMinAnswerLen = 40
	// followupProbability is the chance a qualifying answer gets one.
	followupProbability = 0.35
)

// Evaluator wraps the LLM client with deterministic scoring rules.
type Evaluator struct {
	llm    *llm.Client
	logger *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// New builds an evaluator. llmClient may be nil when AI is globally off.
func New(llmClient *llm.Client, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		llm:    llmClient,
		logger: logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

var yesWords = map[string]bool{
	"yes": true, "y": true, "yeah": true, "yep": true, "sure": true,
	"ok": true, "okay": true, "agree": true, "i agree": true,
}

var noWords = map[string]bool{
	"no": true, "n": true, "nope": true, "nah": true, "never": true,
	"disagree": true, "i disagree": true,
}

// ParseYesNo normalises an answer into a boolean. The second return is
// false when the answer is neither.
func ParseYesNo(raw string) (bool, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.Trim(s, ".!,")
	if yesWords[s] {
		return true, true
	}
	if noWords[s] {
		return false, true
	}
	// Phrases like "yes, I agree" still count.
	for w := range yesWords {
		if strings.HasPrefix(s, w+" ") || strings.HasPrefix(s, w+",") {
			return true, true
		}
	}
	for w := range noWords {
		if strings.HasPrefix(s, w+" ") || strings.HasPrefix(s, w+",") {
			return false, true
		}
	}
	return false, false
}

// ScoreAnswer grades one reply against its question. useLLM gates the
// criteria-based path; everything else is deterministic.
func (e *Evaluator) ScoreAnswer(ctx context.Context, q models.Question, raw string, useLLM bool) models.Answer {
	ans := models.Answer{
		QuestionID:   q.ID,
		QuestionText: q.Text,
		RawAnswer:    raw,
		MaxScore:     q.Weight,
		At:           time.Now().UTC(),
	}

	if strings.TrimSpace(raw) == "" {
		ans.Score = 0
		return ans
	}

	switch q.Type {
	case models.QuestionBoolean:
		ans.Score = e.scoreBoolean(q, raw)
	case models.QuestionChoice:
		ans.Score = scoreChoice(q, raw)
	case models.QuestionOpen:
		if useLLM && q.AICriteria != "" && e.llm != nil {
			if score, feedback, ok := e.scoreOpenLLM(ctx, q, raw); ok {
				ans.Score = score
				ans.Feedback = feedback
				return ans
			}
		}
		ans.Score = lengthHeuristic(raw) * q.Weight
	default:
		// photo and dob answers are captured by the state machine; a
		// recorded entry earns full weight.
		ans.Score = q.Weight
	}
	return ans
}

func (e *Evaluator) scoreBoolean(q models.Question, raw string) float64 {
	val, ok := ParseYesNo(raw)
	if !ok {
		return 0
	}
	if q.CorrectValue == "" {
		// No expected value: answering at all earns the weight.
		return q.Weight
	}
	want, _ := ParseYesNo(q.CorrectValue)
	if val == want {
		return q.Weight
	}
	return 0
}

func scoreChoice(q models.Question, raw string) float64 {
	low := strings.ToLower(raw)
	for _, c := range q.Choices {
		if strings.Contains(low, strings.ToLower(c)) {
			return q.Weight
		}
	}
	return q.Weight * 0.5
}

// lengthHeuristic is the deterministic open-answer fallback: under 5 words
// 30%, under 20 words 70%, otherwise full weight.
func lengthHeuristic(raw string) float64 {
	words := len(strings.Fields(raw))
	switch {
	case words < 5:
		return 0.3
	case words < 20:
		return 0.7
	default:
		return 1.0
	}
}

func (e *Evaluator) scoreOpenLLM(ctx context.Context, q models.Question, raw string) (float64, string, bool) {
	tpl := "Score this interview answer from 0 to 100 against the criteria.\n" +
		"Criteria: " + q.AICriteria + "\n${responses}\n" +
		"Reply with JSON {\"decision\":\"REVIEW\",\"score\":0-100,\"feedback\":\"<=150 chars\"}."
	flat := "Q: " + q.Text + "\nA: " + raw
	v, err := e.llm.ScoreInterview(ctx, flat, true, tpl)
	if err != nil {
		e.logger.Warn("per-answer scoring fell back to heuristic",
			zap.String("question", q.ID), zap.Error(err))
		return 0, "", false
	}
	return float64(v.Score) / 100 * q.Weight, v.Feedback, true
}

// MaybeFollowup decides whether to probe deeper after an open answer. The
// decision is probabilistic, capped per session, and advisory: any LLM
// error skips the follow-up silently.
func (e *Evaluator) MaybeFollowup(ctx context.Context, sess *models.Session, q models.Question, raw string, useLLM bool) (string, bool) {
	if !useLLM || e.llm == nil {
		return "", false
	}
	if q.Type != models.QuestionOpen {
		return "", false
	}
	if len(sess.Followups) >= MaxFollowupsPerSession {
		return "", false
	}
	if len(strings.TrimSpace(raw)) < followupMinAnswerLen {
		return "", false
	}
	e.mu.Lock()
	roll := e.rng.Float64()
	e.mu.Unlock()
	if roll > followupProbability {
		return "", false
	}

	turns := recentTurns(sess, 4)
	prompt, err := e.llm.GenerateFollowup(ctx, q.Text, raw, turns, sess.DisplayName)
	if err != nil || prompt == "" {
		return "", false
	}
	return prompt, true
}

// SetRand replaces the follow-up randomness source; tests pin it.
func (e *Evaluator) SetRand(r *rand.Rand) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rng = r
}

func recentTurns(sess *models.Session, n int) []string {
	start := len(sess.Answers) - n
	if start < 0 {
		start = 0
	}
	var out []string
	for _, a := range sess.Answers[start:] {
		out = append(out, a.QuestionText+" -> "+a.RawAnswer)
	}
	return out
}

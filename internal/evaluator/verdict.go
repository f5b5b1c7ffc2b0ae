package evaluator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"gatekeeper/internal/llm"
	"gatekeeper/internal/models"
)

// Fallback verdict applied whenever the aggregate LLM call fails.
const (
	fallbackScore    = 70
	fallbackFeedback = "Automated review unavailable; queued for manual review."
)

// Verdict is the aggregated interview outcome.
type Verdict struct {
	Decision   string
	Score      int
	Percentage float64
	Feedback   string
	RedFlags   []string
	Fallback   bool
}

// Terminal maps the verdict onto the session's terminal state. An explicit
// REJECT comes only from the LLM aggregate or a red flag; the threshold
// separates APPROVE from the manual-review band.
func (v Verdict) Terminal(threshold int) models.State {
	if len(v.RedFlags) > 0 || v.Decision == llm.DecisionReject {
		return models.StateRejected
	}
	if v.Decision == llm.DecisionApprove && v.Score >= threshold {
		return models.StateApproved
	}
	return models.StatePendingReview
}

// RedFlags returns the deterministic conditions that force a non-APPROVE
// verdict irrespective of score.
func RedFlags(sess *models.Session) []string {
	var flags []string
	if sess.Photo == nil {
		flags = append(flags, "mandatory photo missing")
	}
	if sess.DOB == nil || !sess.DOB.Valid() {
		flags = append(flags, "date of birth not parsable")
	}
	if !sess.RulesAcknowledged {
		flags = append(flags, "rules not acknowledged")
	}
	return flags
}

// FinalVerdict aggregates per-answer scores into the terminal decision.
// With AI off (or on any LLM failure) the deterministic path applies: the
// computed percentage against the threshold, never an explicit REJECT.
func (e *Evaluator) FinalVerdict(ctx context.Context, sess *models.Session, settings *models.Settings, promptTemplate string) Verdict {
	pct := Percentage(sess.Answers)
	flags := RedFlags(sess)

	if len(flags) > 0 {
		return Verdict{
			Decision:   llm.DecisionReject,
			Score:      int(pct),
			Percentage: pct,
			Feedback:   "Red flags: " + strings.Join(flags, "; "),
			RedFlags:   flags,
		}
	}

	if !settings.UseLLM || e.llm == nil {
		decision := llm.DecisionReview
		if int(pct) >= settings.PassThreshold {
			decision = llm.DecisionApprove
		}
		return Verdict{
			Decision:   decision,
			Score:      int(pct),
			Percentage: pct,
			Feedback:   fmt.Sprintf("Deterministic score %.0f%%", pct),
		}
	}

	v, err := e.llm.ScoreInterview(ctx, FlattenResponses(sess), sess.Photo != nil, promptTemplate)
	if err != nil {
		e.logger.Warn("aggregate scoring fell back",
			zap.String("session", sess.ID), zap.Error(err))
		return Verdict{
			Decision:   llm.DecisionReview,
			Score:      fallbackScore,
			Percentage: pct,
			Feedback:   fallbackFeedback,
			Fallback:   true,
		}
	}
	return Verdict{
		Decision:   v.Decision,
		Score:      v.Score,
		Percentage: pct,
		Feedback:   v.Feedback,
	}
}

// FallbackVerdict is the deterministic verdict used when re-evaluating a
// session found stuck in evaluating after a crash.
func (e *Evaluator) FallbackVerdict(sess *models.Session) Verdict {
	pct := Percentage(sess.Answers)
	flags := RedFlags(sess)
	if len(flags) > 0 {
		return Verdict{
			Decision:   llm.DecisionReject,
			Score:      int(pct),
			Percentage: pct,
			Feedback:   "Red flags: " + strings.Join(flags, "; "),
			RedFlags:   flags,
			Fallback:   true,
		}
	}
	return Verdict{
		Decision:   llm.DecisionReview,
		Score:      fallbackScore,
		Percentage: pct,
		Feedback:   fallbackFeedback,
		Fallback:   true,
	}
}

// Percentage folds per-answer scores into 0..100.
func Percentage(answers []models.Answer) float64 {
	var got, max float64
	for _, a := range answers {
		got += a.Score
		max += a.MaxScore
	}
	if max == 0 {
		return 0
	}
	return got / max * 100
}

// FlattenResponses renders the transcript the scoring prompt substitutes
// for ${responses}.
func FlattenResponses(sess *models.Session) string {
	var b strings.Builder
	for i, a := range sess.Answers {
		fmt.Fprintf(&b, "Q%d: %s\nA%d: %s\n", i+1, a.QuestionText, i+1, a.RawAnswer)
		for _, f := range sess.Followups {
			if f.ParentQuestionID == a.QuestionID && f.RawAnswer != "" {
				fmt.Fprintf(&b, "Follow-up: %s\nReply: %s\n", f.Prompt, f.RawAnswer)
			}
		}
	}
	return b.String()
}

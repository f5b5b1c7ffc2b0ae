package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"gatekeeper/internal/evaluator"
	"gatekeeper/internal/metrics"
	"gatekeeper/internal/models"
	"gatekeeper/internal/scheduler"
	"gatekeeper/internal/store"
	"gatekeeper/internal/transport"
)

// Ingest absorbs one inbound message for the candidate. All ingests for a
// candidate are serialised; an arriving message cancels the pending
// response timer before it is read, so the message always wins a race
// with a timer fire.
func (m *Manager) Ingest(ctx context.Context, ev transport.MessageEvent) (IngestResult, error) {
	key := models.CandidateKey{ChatID: ev.ChatID, UserID: ev.UserID}
	mu := m.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	sess, err := m.store.Sessions.FindActive(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return IngestResult{}, nil
	}
	if err != nil {
		return IngestResult{}, err
	}

	if m.isDuplicate(sess, ev) {
		return IngestResult{Handled: true}, nil
	}

	m.timers.Cancel(key, scheduler.TimerResponse)

	settings, err := m.settingsFor(ctx, ev.ChatID)
	if err != nil {
		return IngestResult{}, err
	}
	bank, err := m.bankFor(ctx, ev.ChatID)
	if err != nil {
		return IngestResult{}, err
	}

	sess.LastActivityAt = m.clock.Now()
	if ev.EventID != "" {
		sess.LastEventID = ev.EventID
	}

	switch sess.State {
	case models.StateActive:
		return m.handleActive(ctx, sess, bank, settings, ev)
	case models.StateAwaitingPhoto:
		return m.handleAwaitingPhoto(ctx, sess, bank, settings, ev)
	case models.StateAwaitingDOB:
		return m.handleAwaitingDOB(ctx, sess, bank, settings, ev)
	case models.StateAwaitingFollowup:
		return m.handleAwaitingFollowup(ctx, sess, bank, settings, ev)
	case models.StateAwaitingRulesAck:
		return m.handleRulesAck(ctx, sess, bank, settings, ev)
	case models.StateEvaluating:
		// Scoring is in flight; nothing to absorb.
		return IngestResult{Handled: true}, nil
	default:
		return IngestResult{}, nil
	}
}

// isDuplicate catches transport redeliveries, by event id when the host
// supplies one and otherwise by an exact repeat of the last recorded
// answer inside a small window. The text check keys on (cursor, raw):
// once the cursor has advanced, identical text is a fresh answer to the
// next question, not a redelivery.
func (m *Manager) isDuplicate(sess *models.Session, ev transport.MessageEvent) bool {
	if ev.EventID != "" && ev.EventID == sess.LastEventID {
		return true
	}
	if ev.Text == "" {
		return false
	}
	now := m.clock.Now()
	if n := len(sess.Answers); n > 0 {
		last := sess.Answers[n-1]
		if last.RawAnswer == ev.Text && last.Cursor == sess.Cursor && now.Sub(last.At) < dedupWindow {
			return true
		}
	}
	if n := len(sess.Followups); n > 0 {
		last := sess.Followups[n-1]
		if last.RawAnswer == ev.Text && last.Cursor == sess.Cursor && now.Sub(last.At) < dedupWindow {
			return true
		}
	}
	return false
}

func (m *Manager) handleActive(ctx context.Context, sess *models.Session, bank *models.QuestionBank, settings *models.Settings, ev transport.MessageEvent) (IngestResult, error) {
	if sess.Cursor >= len(bank.Questions) {
		// Cursor ran off a shrunken bank; move straight to rules ack.
		return IngestResult{Handled: true}, m.enterRulesAck(ctx, sess, settings)
	}
	if strings.TrimSpace(ev.Text) == "" {
		return IngestResult{Handled: true}, nil
	}
	q := bank.Questions[sess.Cursor]

	m.maybeDeriveName(sess, bank, q, ev.Text)

	ans := m.eval.ScoreAnswer(ctx, q, ev.Text, settings.UseLLM)
	ans.Cursor = sess.Cursor
	ans.At = m.clock.Now()
	sess.Answers = append(sess.Answers, ans)

	if prompt, ok := m.eval.MaybeFollowup(ctx, sess, q, ev.Text, settings.UseLLM); ok {
		sess.State = models.StateAwaitingFollowup
		sess.FollowupParent = q.ID
		sess.Followups = append(sess.Followups, models.Followup{
			ParentQuestionID: q.ID,
			Cursor:           sess.Cursor,
			Prompt:           prompt,
			At:               m.clock.Now(),
		})
		if err := m.store.Sessions.Put(ctx, sess); err != nil {
			return IngestResult{}, err
		}
		m.send(ctx, sess.ChatID, prompt)
		m.armResponseTimer(sess, settings)
		return IngestResult{Handled: true}, nil
	}

	if err := m.advance(ctx, sess, bank, settings); err != nil {
		return IngestResult{}, err
	}
	return IngestResult{Handled: true, Advanced: true, Terminal: terminalOf(sess)}, nil
}

func (m *Manager) handleAwaitingPhoto(ctx context.Context, sess *models.Session, bank *models.QuestionBank, settings *models.Settings, ev transport.MessageEvent) (IngestResult, error) {
	if ev.Image == nil {
		// Text at the photo step never advances the cursor and is never
		// stored as an answer; it only consumes reminder budget.
		if sess.RemindersSent >= settings.MaxReminders {
			if err := m.failTimeout(ctx, sess, settings); err != nil {
				return IngestResult{}, err
			}
			return IngestResult{Handled: true, Terminal: models.StateFailedTimeout}, nil
		}
		sess.RemindersSent++
		sess.LastReminderAt = m.clock.Now()
		if err := m.store.Sessions.Put(ctx, sess); err != nil {
			return IngestResult{}, err
		}
		m.send(ctx, sess.ChatID, m.msgs.Message("photo_reprompt", map[string]string{"name": sess.DisplayName}))
		m.armResponseTimer(sess, settings)
		return IngestResult{Handled: true}, nil
	}

	sess.Photo = &models.Photo{Mimetype: ev.Image.Mimetype, Provenance: "candidate_upload"}
	// The bank can shrink under a live session; the photo is still kept.
	if sess.Cursor < len(bank.Questions) {
		q := bank.Questions[sess.Cursor]
		sess.Answers = append(sess.Answers, models.Answer{
			QuestionID:   q.ID,
			QuestionText: q.Text,
			Cursor:       sess.Cursor,
			RawAnswer:    "(photo: " + ev.Image.Mimetype + ")",
			Score:        q.Weight,
			MaxScore:     q.Weight,
			At:           m.clock.Now(),
		})
	}
	if err := m.advance(ctx, sess, bank, settings); err != nil {
		return IngestResult{}, err
	}
	return IngestResult{Handled: true, Advanced: true, Terminal: terminalOf(sess)}, nil
}

func (m *Manager) handleAwaitingDOB(ctx context.Context, sess *models.Session, bank *models.QuestionBank, settings *models.Settings, ev transport.MessageEvent) (IngestResult, error) {
	if strings.TrimSpace(ev.Text) == "" {
		return IngestResult{Handled: true}, nil
	}
	outcome := m.eval.ResolveDOB(ctx, ev.Text, sess.DisplayName, settings.UseLLM)
	if outcome.DOB == nil {
		// Clarification goes against the response-timeout budget, not
		// the reminder budget.
		if err := m.store.Sessions.Put(ctx, sess); err != nil {
			return IngestResult{}, err
		}
		m.send(ctx, sess.ChatID, outcome.Clarification)
		m.armResponseTimer(sess, settings)
		return IngestResult{Handled: true}, nil
	}

	sess.DOB = outcome.DOB
	if sess.Cursor < len(bank.Questions) {
		q := bank.Questions[sess.Cursor]
		sess.Answers = append(sess.Answers, models.Answer{
			QuestionID:   q.ID,
			QuestionText: q.Text,
			Cursor:       sess.Cursor,
			RawAnswer:    ev.Text,
			Score:        q.Weight,
			MaxScore:     q.Weight,
			At:           m.clock.Now(),
		})
	}
	if err := m.advance(ctx, sess, bank, settings); err != nil {
		return IngestResult{}, err
	}
	return IngestResult{Handled: true, Advanced: true, Terminal: terminalOf(sess)}, nil
}

func (m *Manager) handleAwaitingFollowup(ctx context.Context, sess *models.Session, bank *models.QuestionBank, settings *models.Settings, ev transport.MessageEvent) (IngestResult, error) {
	if strings.TrimSpace(ev.Text) == "" {
		return IngestResult{Handled: true}, nil
	}
	if n := len(sess.Followups); n > 0 && sess.Followups[n-1].RawAnswer == "" {
		sess.Followups[n-1].RawAnswer = ev.Text
		sess.Followups[n-1].At = m.clock.Now()
	}
	sess.State = models.StateActive
	if err := m.advance(ctx, sess, bank, settings); err != nil {
		return IngestResult{}, err
	}
	return IngestResult{Handled: true, Advanced: true, Terminal: terminalOf(sess)}, nil
}

func (m *Manager) handleRulesAck(ctx context.Context, sess *models.Session, bank *models.QuestionBank, settings *models.Settings, ev transport.MessageEvent) (IngestResult, error) {
	agreed, recognised := evaluator.ParseYesNo(ev.Text)
	if recognised && agreed {
		sess.RulesAcknowledged = true
		sess.State = models.StateEvaluating
		if err := m.store.Sessions.Put(ctx, sess); err != nil {
			return IngestResult{}, err
		}
		m.timers.Cancel(sess.Key(), scheduler.TimerResponse)
		if err := m.evaluate(ctx, sess, settings); err != nil {
			return IngestResult{}, err
		}
		return IngestResult{Handled: true, Advanced: true, Terminal: terminalOf(sess)}, nil
	}

	sess.RulesAckAttempts++
	if sess.RulesAckAttempts >= settings.RulesAckAttemptsMax {
		if err := m.failTimeout(ctx, sess, settings); err != nil {
			return IngestResult{}, err
		}
		return IngestResult{Handled: true, Terminal: models.StateFailedTimeout}, nil
	}
	if err := m.store.Sessions.Put(ctx, sess); err != nil {
		return IngestResult{}, err
	}
	m.send(ctx, sess.ChatID, m.msgs.Message("rules", map[string]string{"name": sess.DisplayName}))
	m.armResponseTimer(sess, settings)
	return IngestResult{Handled: true}, nil
}

// maybeDeriveName extracts a display name from the first open-text answer.
// Cosmetic only; never affects scoring.
func (m *Manager) maybeDeriveName(sess *models.Session, bank *models.QuestionBank, q models.Question, raw string) {
	if q.Type != models.QuestionOpen {
		return
	}
	for _, a := range sess.Answers {
		if prior, ok := bank.ByID(a.QuestionID); ok && prior.Type == models.QuestionOpen {
			return
		}
	}
	if name := evaluator.ExtractDisplayName(raw); name != "" {
		sess.DisplayName = name
	}
}

// askQuestion positions the state machine on the question at the cursor
// and persists. Sending is separate so callers control message order.
// A cursor at or past the end of the bank, including an emptied bank,
// lands on the rules acknowledgement.
func (m *Manager) askQuestion(ctx context.Context, sess *models.Session, bank *models.QuestionBank) error {
	if sess.Cursor >= len(bank.Questions) {
		sess.State = models.StateAwaitingRulesAck
		return m.store.Sessions.Put(ctx, sess)
	}
	q := bank.Questions[sess.Cursor]
	switch q.Type {
	case models.QuestionPhoto:
		sess.State = models.StateAwaitingPhoto
	case models.QuestionDOB:
		sess.State = models.StateAwaitingDOB
	default:
		sess.State = models.StateActive
	}
	return m.store.Sessions.Put(ctx, sess)
}

func (m *Manager) sendQuestionText(ctx context.Context, sess *models.Session, bank *models.QuestionBank) {
	if sess.Cursor < len(bank.Questions) {
		m.send(ctx, sess.ChatID, bank.Questions[sess.Cursor].Text)
	}
}

// advance moves the cursor forward; the cursor only ever increases.
func (m *Manager) advance(ctx context.Context, sess *models.Session, bank *models.QuestionBank, settings *models.Settings) error {
	sess.Cursor++
	sess.FollowupParent = ""
	if sess.Cursor >= len(bank.Questions) {
		return m.enterRulesAck(ctx, sess, settings)
	}
	if err := m.askQuestion(ctx, sess, bank); err != nil {
		// The cursor bump was never persisted, so the prior state stands.
		return err
	}
	m.sendQuestionText(ctx, sess, bank)
	m.armResponseTimer(sess, settings)
	return nil
}

func (m *Manager) enterRulesAck(ctx context.Context, sess *models.Session, settings *models.Settings) error {
	sess.State = models.StateAwaitingRulesAck
	if err := m.store.Sessions.Put(ctx, sess); err != nil {
		return err
	}
	m.send(ctx, sess.ChatID, m.msgs.Message("rules", map[string]string{"name": sess.DisplayName}))
	m.armResponseTimer(sess, settings)
	return nil
}

// evaluate runs the aggregate verdict and finalises the session.
func (m *Manager) evaluate(ctx context.Context, sess *models.Session, settings *models.Settings) error {
	if err := m.transport.SendTyping(ctx, sess.ChatID, true); err != nil {
		m.logger.Debug("typing indicator failed", zap.Error(err))
	}
	defer func() {
		_ = m.transport.SendTyping(ctx, sess.ChatID, false)
	}()

	tpl := m.scoringTemplate(ctx, sess.ChatID)
	verdict := m.eval.FinalVerdict(ctx, sess, settings, tpl)
	return m.finalize(ctx, sess, settings, verdict.Terminal(settings.PassThreshold), verdict)
}

func (m *Manager) scoringTemplate(ctx context.Context, chatID string) string {
	if p, err := m.store.Prompts.Get(ctx, chatID); err == nil {
		return p.Template
	}
	return m.msgs.ScoringTemplate()
}

// finalize writes the immutable Result first and marks the session
// terminal second; a crash in between reconverges on the next sweep.
func (m *Manager) finalize(ctx context.Context, sess *models.Session, settings *models.Settings, terminal models.State, verdict evaluator.Verdict) error {
	now := m.clock.Now()
	sess.Score = float64(verdict.Score)
	sess.Percentage = verdict.Percentage
	sess.VerdictFeedback = verdict.Feedback
	sess.CompletedAt = now

	result := models.ResultFromSession(sess, terminal, now)
	if err := m.store.Results.Put(ctx, result); err != nil {
		// A pre-existing result means we crashed after writing it last
		// time; converge by finishing the terminal transition.
		if _, getErr := m.store.Results.Get(ctx, sess.ID); getErr != nil {
			return err
		}
	}

	sess.State = terminal
	if err := m.store.Sessions.Put(ctx, sess); err != nil {
		return err
	}
	m.timers.CancelAll(sess.Key())

	m.recordOutcome(ctx, sess, settings, terminal)
	m.notifyOutcome(ctx, sess, settings, terminal)
	m.maybeAutoRemove(ctx, sess, settings, terminal)

	m.logger.Info("interview finished",
		zap.String("session", sess.ID),
		zap.String("state", string(terminal)),
		zap.Float64("percentage", sess.Percentage),
		zap.Bool("fallback", verdict.Fallback))
	return nil
}

func (m *Manager) recordOutcome(ctx context.Context, sess *models.Session, _ *models.Settings, terminal models.State) {
	field := map[models.State]string{
		models.StateApproved:      store.StatApproved,
		models.StateRejected:      store.StatRejected,
		models.StatePendingReview: store.StatPendingReview,
		models.StateFailedTimeout: store.StatFailedTimeout,
	}[terminal]
	if field != "" {
		if err := m.store.Stats.Increment(ctx, sess.ChatID, field, 1); err != nil {
			m.logger.Warn("stats increment failed", zap.Error(err))
		}
	}
	dur := sess.CompletedAt.Sub(sess.StartedAt)
	if err := m.store.Stats.RecordCompletion(ctx, sess.ChatID, sess.Percentage, dur); err != nil {
		m.logger.Warn("stats completion record failed", zap.Error(err))
	}
	metrics.InterviewFinished(sess.ChatID, string(terminal), dur)
}

func (m *Manager) notifyOutcome(ctx context.Context, sess *models.Session, settings *models.Settings, terminal models.State) {
	switch terminal {
	case models.StateApproved:
		m.send(ctx, sess.ChatID, m.renderTemplate(settings.PassTemplate, "pass", sess, settings))
	case models.StatePendingReview:
		m.send(ctx, sess.ChatID, m.msgs.Message("review", map[string]string{"name": sess.DisplayName}))
	case models.StateRejected:
		m.send(ctx, sess.ChatID, m.renderTemplate(settings.FailTemplate, "fail", sess, settings))
	case models.StateFailedTimeout:
		m.send(ctx, sess.ChatID, m.msgs.Message("timeout", map[string]string{"name": sess.DisplayName}))
	}
}

func (m *Manager) maybeAutoRemove(ctx context.Context, sess *models.Session, settings *models.Settings, terminal models.State) {
	if terminal != models.StateRejected && terminal != models.StateFailedTimeout {
		return
	}
	if !settings.AutoRemoveOnFail || settings.IsExempt(sess.UserID) {
		return
	}
	if err := m.transport.RemoveParticipant(ctx, sess.ChatID, sess.UserID); err != nil {
		m.logger.Warn("auto-remove failed",
			zap.String("chat", sess.ChatID), zap.String("user", sess.UserID), zap.Error(err))
		return
	}
	if err := m.store.Stats.Increment(ctx, sess.ChatID, store.StatAutoRemoved, 1); err != nil {
		m.logger.Warn("stats increment failed", zap.Error(err))
	}
	metrics.CandidateRemoved(sess.ChatID)
}

// failTimeout moves a session to failed_timeout with a Result snapshot of
// whatever was answered.
func (m *Manager) failTimeout(ctx context.Context, sess *models.Session, settings *models.Settings) error {
	v := evaluator.Verdict{
		Decision:   "REVIEW",
		Score:      int(evaluator.Percentage(sess.Answers)),
		Percentage: evaluator.Percentage(sess.Answers),
		Feedback:   fmt.Sprintf("Timed out after %d reminders.", sess.RemindersSent),
	}
	return m.finalize(ctx, sess, settings, models.StateFailedTimeout, v)
}

// markTerminal ends a session without a Result (expired and terminated
// sessions produce none).
func (m *Manager) markTerminal(ctx context.Context, sess *models.Session, terminal models.State) error {
	sess.CompletedAt = m.clock.Now()
	sess.State = terminal
	if err := m.store.Sessions.Put(ctx, sess); err != nil {
		return err
	}
	m.timers.CancelAll(sess.Key())
	metrics.InterviewFinished(sess.ChatID, string(terminal), sess.CompletedAt.Sub(sess.StartedAt))
	return nil
}

func terminalOf(sess *models.Session) models.State {
	if sess.State.Terminal() {
		return sess.State
	}
	return ""
}

package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"gatekeeper/internal/metrics"
	"gatekeeper/internal/models"
	"gatekeeper/internal/scheduler"
	"gatekeeper/internal/store"
)

func (m *Manager) armResponseTimer(sess *models.Session, settings *models.Settings) {
	key := sess.Key()
	m.timers.Set(key, scheduler.TimerResponse, settings.ResponseTimeout, func() {
		m.HandleTimer(context.Background(), key, scheduler.TimerResponse)
	})
}

func (m *Manager) armExpiryTimer(sess *models.Session) {
	key := sess.Key()
	d := time.Until(sess.ExpiresAt)
	if d < time.Second {
		d = time.Second
	}
	m.timers.Set(key, scheduler.TimerExpiry, d, func() {
		m.HandleTimer(context.Background(), key, scheduler.TimerExpiry)
	})
}

// HandleTimer fires a per-session obligation. A message that arrived
// first already cancelled the timer, so a fire always reflects silence.
func (m *Manager) HandleTimer(ctx context.Context, key models.CandidateKey, kind scheduler.TimerKind) {
	mu := m.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	sess, err := m.store.Sessions.FindActive(ctx, key)
	if err != nil {
		return
	}
	settings, err := m.settingsFor(ctx, key.ChatID)
	if err != nil {
		m.logger.Error("settings load failed in timer", zap.Error(err))
		return
	}

	switch kind {
	case scheduler.TimerResponse, scheduler.TimerReminder:
		m.remindOrFail(ctx, sess, settings)
	case scheduler.TimerExpiry:
		if err := m.markTerminal(ctx, sess, models.StateExpired); err != nil {
			m.logger.Error("expiry transition failed", zap.String("session", sess.ID), zap.Error(err))
		}
	}
}

// remindOrFail consumes one reminder budget entry or, with the budget
// exhausted, fails the session. The counter is persisted before the
// reminder is sent so a crash never duplicates reminders.
func (m *Manager) remindOrFail(ctx context.Context, sess *models.Session, settings *models.Settings) {
	if sess.RemindersSent >= settings.MaxReminders {
		if err := m.failTimeout(ctx, sess, settings); err != nil {
			m.logger.Error("timeout transition failed", zap.String("session", sess.ID), zap.Error(err))
		}
		return
	}
	sess.RemindersSent++
	sess.LastReminderAt = m.clock.Now()
	if err := m.store.Sessions.Put(ctx, sess); err != nil {
		m.logger.Error("reminder persist failed", zap.String("session", sess.ID), zap.Error(err))
		return
	}
	m.send(ctx, sess.ChatID, m.msgs.Message("reminder", map[string]string{"name": sess.DisplayName}))
	metrics.ReminderSent(sess.ChatID)
	m.armResponseTimer(sess, settings)
}

// HandleReminderDue is the sweep entry point. The lock is only tried: a
// contended session is being worked on and is skipped this cycle.
func (m *Manager) HandleReminderDue(ctx context.Context, sessionID string) {
	m.withTriedLock(ctx, sessionID, func(sess *models.Session) {
		settings, err := m.settingsFor(ctx, sess.ChatID)
		if err != nil {
			return
		}
		now := m.clock.Now()
		if now.Sub(sess.LastActivityAt) < settings.ReminderTimeout {
			return
		}
		// The counter plus last_reminder_at make repeat sweeps no-ops.
		if !sess.LastReminderAt.IsZero() && now.Sub(sess.LastReminderAt) < settings.ReminderTimeout {
			return
		}
		m.remindOrFail(ctx, sess, settings)
	})
}

// HandleExpired transitions an overdue session to expired.
func (m *Manager) HandleExpired(ctx context.Context, sessionID string) {
	m.withTriedLock(ctx, sessionID, func(sess *models.Session) {
		if !m.clock.Now().After(sess.ExpiresAt) {
			return
		}
		if err := m.markTerminal(ctx, sess, models.StateExpired); err != nil {
			m.logger.Error("expiry transition failed", zap.String("session", sess.ID), zap.Error(err))
		}
	})
}

// HandleStuckEvaluating reconciles a session left in evaluating by a
// crash. With a Result already written the terminal transition is
// finished from it; without one the session is re-scored with the
// deterministic fallback, never assumed approved.
func (m *Manager) HandleStuckEvaluating(ctx context.Context, sessionID string) {
	m.withTriedLock(ctx, sessionID, func(sess *models.Session) {
		if sess.State != models.StateEvaluating {
			return
		}
		settings, err := m.settingsFor(ctx, sess.ChatID)
		if err != nil {
			return
		}
		if result, err := m.store.Results.Get(ctx, sess.ID); err == nil {
			sess.Score = result.Score
			sess.Percentage = result.Percentage
			sess.VerdictFeedback = result.Feedback
			sess.CompletedAt = result.CompletedAt
			sess.State = result.State
			if err := m.store.Sessions.Put(ctx, sess); err != nil {
				m.logger.Error("reconcile persist failed", zap.String("session", sess.ID), zap.Error(err))
			}
			return
		}
		verdict := m.eval.FallbackVerdict(sess)
		if err := m.finalize(ctx, sess, settings, verdict.Terminal(settings.PassThreshold), verdict); err != nil {
			m.logger.Error("fallback finalize failed", zap.String("session", sess.ID), zap.Error(err))
		}
	})
}

// withTriedLock loads the session, try-locks its candidate, re-reads it
// under the lock and runs fn if it is still live.
func (m *Manager) withTriedLock(ctx context.Context, sessionID string, fn func(*models.Session)) {
	sess, err := m.store.Sessions.Get(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			m.logger.Error("session load failed in sweep", zap.String("session", sessionID), zap.Error(err))
		}
		return
	}
	mu := m.lockFor(sess.Key())
	if !mu.TryLock() {
		return
	}
	defer mu.Unlock()

	sess, err = m.store.Sessions.Get(ctx, sessionID)
	if err != nil || sess.State.Terminal() {
		return
	}
	fn(sess)
}

// Rehydrate rebuilds timer obligations from persisted timestamps after a
// restart. In-memory timers are only a latency optimisation; the sweeps
// remain authoritative.
func (m *Manager) Rehydrate(ctx context.Context) error {
	live, err := m.store.Sessions.FindNonTerminal(ctx)
	if err != nil {
		return err
	}
	now := m.clock.Now()
	for _, sess := range live {
		settings, err := m.settingsFor(ctx, sess.ChatID)
		if err != nil {
			m.logger.Warn("settings load failed during rehydration", zap.Error(err))
			continue
		}
		key := sess.Key()
		deadline := sess.LastActivityAt.Add(settings.ResponseTimeout)
		d := deadline.Sub(now)
		if d < time.Second {
			d = time.Second
		}
		k := key
		m.timers.Set(k, scheduler.TimerResponse, d, func() {
			m.HandleTimer(context.Background(), k, scheduler.TimerResponse)
		})
		m.armExpiryTimer(sess)
	}
	m.logger.Info("sessions rehydrated", zap.Int("count", len(live)))
	return nil
}

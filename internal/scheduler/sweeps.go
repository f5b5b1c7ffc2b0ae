package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"gatekeeper/internal/store"
)

// Cron schedules: reminder sweep every two hours, expiry sweep (plus the
// stuck-evaluating reconciliation) daily.
const (
	reminderSchedule = "0 */2 * * *"
	expirySchedule   = "30 3 * * *"
)

// reminderPrefilter bounds the store query; the handler re-checks the
// per-chat reminder window under the session lock.
const reminderPrefilter = 2 * time.Hour

// Handler receives the sessions a sweep selects. Implementations must
// acquire the per-session lock and re-validate before acting, and must
// skip (not block) when the lock is contended.
type Handler interface {
	HandleReminderDue(ctx context.Context, sessionID string)
	HandleExpired(ctx context.Context, sessionID string)
	HandleStuckEvaluating(ctx context.Context, sessionID string)
}

// Sweeper runs the periodic scans over persisted sessions.
type Sweeper struct {
	sessions store.SessionRepository
	handler  Handler
	clock    Clock
	logger   *zap.Logger
	cron     *cron.Cron
}

func NewSweeper(sessions store.SessionRepository, handler Handler, clock Clock, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		sessions: sessions,
		handler:  handler,
		clock:    clock,
		logger:   logger,
		cron:     cron.New(),
	}
}

// Start schedules both sweeps.
func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc(reminderSchedule, func() {
		if err := s.RunReminderSweep(context.Background()); err != nil {
			s.logger.Error("reminder sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule reminder sweep: %w", err)
	}
	_, err = s.cron.AddFunc(expirySchedule, func() {
		if err := s.RunExpirySweep(context.Background()); err != nil {
			s.logger.Error("expiry sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule expiry sweep: %w", err)
	}
	s.cron.Start()
	s.logger.Info("sweeps scheduled",
		zap.String("reminder", reminderSchedule),
		zap.String("expiry", expirySchedule))
	return nil
}

// Stop halts the cron scheduler.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// RunReminderSweep nudges sessions whose candidates have gone quiet. The
// reminders_sent counter is the idempotency token: a session swept twice
// within one window is a no-op the second time.
func (s *Sweeper) RunReminderSweep(ctx context.Context) error {
	cutoff := s.clock.Now().Add(-reminderPrefilter)
	due, err := s.sessions.FindReminderDue(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to list reminder candidates: %w", err)
	}
	for _, sess := range due {
		s.handler.HandleReminderDue(ctx, sess.ID)
	}
	if len(due) > 0 {
		s.logger.Info("reminder sweep done", zap.Int("candidates", len(due)))
	}
	return nil
}

// RunExpirySweep expires overdue sessions and re-evaluates any session
// left in evaluating with no written Result (crash between the result
// write and the terminal transition).
func (s *Sweeper) RunExpirySweep(ctx context.Context) error {
	now := s.clock.Now()
	expired, err := s.sessions.FindExpired(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to list expired sessions: %w", err)
	}
	for _, sess := range expired {
		s.handler.HandleExpired(ctx, sess.ID)
	}

	stuck, err := s.sessions.FindEvaluating(ctx)
	if err != nil {
		return fmt.Errorf("failed to list evaluating sessions: %w", err)
	}
	for _, sess := range stuck {
		s.handler.HandleStuckEvaluating(ctx, sess.ID)
	}

	if len(expired) > 0 || len(stuck) > 0 {
		s.logger.Info("expiry sweep done",
			zap.Int("expired", len(expired)), zap.Int("stuck", len(stuck)))
	}
	return nil
}

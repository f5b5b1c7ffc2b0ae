// Package store exposes the typed collections the vetting core persists to.
// Implementations must keep the answers and followups arrays ordered.
package store

import (
	"context"
	"errors"
	"time"

	"gatekeeper/internal/models"
)

// ErrNotFound is returned when a lookup matches no document.
var ErrNotFound = errors.New("store: not found")

// SessionRepository persists interview sessions.
type SessionRepository interface {
	// Put upserts the full session document by its id.
	Put(ctx context.Context, s *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	// FindActive returns the single non-terminal session for a candidate,
	// or ErrNotFound.
	FindActive(ctx context.Context, key models.CandidateKey) (*models.Session, error)
	// CountTerminal counts the candidate's attempts that ended in one of
	// the given states.
	CountTerminal(ctx context.Context, key models.CandidateKey, states []models.State) (int64, error)
	// FindNonTerminal lists every live session; used for startup
	// rehydration and sweeps.
	FindNonTerminal(ctx context.Context) ([]*models.Session, error)
	// FindReminderDue lists live sessions whose last activity and last
	// reminder both predate cutoff and whose reminder budget is not
	// exhausted.
	FindReminderDue(ctx context.Context, cutoff time.Time) ([]*models.Session, error)
	// FindExpired lists live sessions past their expiry instant.
	FindExpired(ctx context.Context, now time.Time) ([]*models.Session, error)
	// FindEvaluating lists sessions stuck in the evaluating state.
	FindEvaluating(ctx context.Context) ([]*models.Session, error)
}

// SettingsRepository persists per-chat policy.
type SettingsRepository interface {
	Get(ctx context.Context, chatID string) (*models.Settings, error)
	Put(ctx context.Context, s *models.Settings) error
}

// QuestionRepository persists per-chat question banks.
type QuestionRepository interface {
	Get(ctx context.Context, chatID string) (*models.QuestionBank, error)
	Put(ctx context.Context, b *models.QuestionBank) error
	Delete(ctx context.Context, chatID string) error
}

// ResultRepository persists immutable terminal records.
type ResultRepository interface {
	// Put writes the result once; rewrites of the same session id are
	// refused so results stay immutable.
	Put(ctx context.Context, r *models.Result) error
	Get(ctx context.Context, sessionID string) (*models.Result, error)
	Exists(ctx context.Context, sessionID string) (bool, error)
}

// StatsRepository maintains per-chat counters with atomic increments.
type StatsRepository interface {
	Get(ctx context.Context, chatID string) (*models.Stats, error)
	// Increment atomically adds delta to a counter field.
	Increment(ctx context.Context, chatID, field string, delta int64) error
	// RecordCompletion folds a finished attempt into the rolling averages.
	RecordCompletion(ctx context.Context, chatID string, percentage float64, duration time.Duration) error
}

// PromptRepository persists per-chat scoring prompt overrides.
type PromptRepository interface {
	Get(ctx context.Context, chatID string) (*models.EvalPrompt, error)
	Put(ctx context.Context, p *models.EvalPrompt) error
	Delete(ctx context.Context, chatID string) error
}

// Store bundles every repository the core consumes.
type Store struct {
	Sessions  SessionRepository
	Settings  SettingsRepository
	Questions QuestionRepository
	Results   ResultRepository
	Stats     StatsRepository
	Prompts   PromptRepository
}

// Stat counter field names, shared by the mongo and memory implementations.
const (
	StatTotal         = "total"
	StatApproved      = "approved"
	StatRejected      = "rejected"
	StatAutoRemoved   = "auto_removed"
	StatPendingReview = "pending_review"
	StatFailedTimeout = "failed_timeout"
)

// Package session drives the per-candidate interview state machine. All
// work for one candidate is serialised under a per-candidate lock; work
// for different candidates proceeds concurrently.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gatekeeper/internal/evaluator"
	"gatekeeper/internal/metrics"
	"gatekeeper/internal/models"
	"gatekeeper/internal/prompts"
	"gatekeeper/internal/questions"
	"gatekeeper/internal/scheduler"
	"gatekeeper/internal/store"
	"gatekeeper/internal/transport"
)

// StartOutcome reports what Start did.
type StartOutcome string

const (
	StartStarted         StartOutcome = "started"
	StartAlreadyActive   StartOutcome = "already_active"
	StartTooManyAttempts StartOutcome = "too_many_attempts"
	StartDisabled        StartOutcome = "disabled"
)

// AdminAction is an operator intervention on a live session.
type AdminAction string

const (
	AdminSkip    AdminAction = "skip"
	AdminEnd     AdminAction = "end"
	AdminReset   AdminAction = "reset"
	AdminApprove AdminAction = "approve"
	AdminReject  AdminAction = "reject"
)

// AdminOutcome reports what an admin action did.
type AdminOutcome string

const (
	AdminOK        AdminOutcome = "ok"
	AdminNotFound  AdminOutcome = "not_found"
	AdminForbidden AdminOutcome = "forbidden"
)

// IngestResult reports how a message event was absorbed.
type IngestResult struct {
	Handled  bool
	Advanced bool
	Terminal models.State
}

// dedupWindow bounds the exact-answer redelivery check.
const dedupWindow = 30 * time.Second

// Manager owns every live interview. It is the only writer of Session
// documents.
type Manager struct {
	store     *store.Store
	eval      *evaluator.Evaluator
	transport transport.Transport
	timers    *scheduler.TimerService
	msgs      *prompts.Manager
	clock     scheduler.Clock
	logger    *zap.Logger

	locks sync.Map // candidate key string -> *sync.Mutex
}

func NewManager(st *store.Store, eval *evaluator.Evaluator, tr transport.Transport, timers *scheduler.TimerService, msgs *prompts.Manager, clock scheduler.Clock, logger *zap.Logger) *Manager {
	return &Manager{
		store:     st,
		eval:      eval,
		transport: tr,
		timers:    timers,
		msgs:      msgs,
		clock:     clock,
		logger:    logger,
	}
}

func (m *Manager) lockFor(key models.CandidateKey) *sync.Mutex {
	mu, _ := m.locks.LoadOrStore(key.String(), &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Start begins a new interview attempt for the candidate.
func (m *Manager) Start(ctx context.Context, chatID, userID, pushName string) (StartOutcome, error) {
	key := models.CandidateKey{ChatID: chatID, UserID: userID}
	mu := m.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	settings, err := m.settingsFor(ctx, chatID)
	if err != nil {
		return "", err
	}
	if !settings.Enabled {
		return StartDisabled, nil
	}

	if _, err := m.store.Sessions.FindActive(ctx, key); err == nil {
		return StartAlreadyActive, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	failed, err := m.store.Sessions.CountTerminal(ctx, key, models.TerminalFailureStates)
	if err != nil {
		return "", err
	}
	if failed >= int64(settings.MaxRetries) {
		return StartTooManyAttempts, nil
	}

	bank, err := m.bankFor(ctx, chatID)
	if err != nil {
		return "", err
	}

	now := m.clock.Now()
	sess := &models.Session{
		ID:             uuid.NewString(),
		ChatID:         chatID,
		UserID:         userID,
		DisplayName:    pushName,
		Attempt:        int(failed) + 1,
		State:          models.StateActive,
		Answers:        []models.Answer{},
		Followups:      []models.Followup{},
		LastActivityAt: now,
		StartedAt:      now,
		ExpiresAt:      now.Add(settings.SessionExpiry),
	}
	if err := m.askQuestion(ctx, sess, bank); err != nil {
		return "", err
	}

	if err := m.store.Stats.Increment(ctx, chatID, store.StatTotal, 1); err != nil {
		m.logger.Warn("stats increment failed", zap.Error(err))
	}
	metrics.InterviewStarted(chatID)

	welcome := m.renderTemplate(settings.WelcomeTemplate, "welcome", sess, settings)
	m.send(ctx, chatID, welcome)
	if sess.State == models.StateAwaitingRulesAck {
		m.send(ctx, chatID, m.msgs.Message("rules", map[string]string{"name": sess.DisplayName}))
	} else {
		m.sendQuestionText(ctx, sess, bank)
	}
	m.armResponseTimer(sess, settings)
	m.armExpiryTimer(sess)

	m.logger.Info("interview started",
		zap.String("chat", chatID), zap.String("user", userID),
		zap.Int("attempt", sess.Attempt))
	return StartStarted, nil
}

// Status returns a snapshot of the candidate's live session, or nil.
func (m *Manager) Status(ctx context.Context, chatID, userID string) (*models.Session, error) {
	sess, err := m.store.Sessions.FindActive(ctx, models.CandidateKey{ChatID: chatID, UserID: userID})
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return sess, err
}

// HandleLeave terminates the candidate's live session when they leave the
// vetting chat. Rejoining starts a fresh attempt; terminated sessions do
// not count against the retry budget.
func (m *Manager) HandleLeave(ctx context.Context, chatID, userID string) {
	key := models.CandidateKey{ChatID: chatID, UserID: userID}
	mu := m.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	sess, err := m.store.Sessions.FindActive(ctx, key)
	if err != nil {
		return
	}
	if err := m.markTerminal(ctx, sess, models.StateTerminated); err != nil {
		m.logger.Error("failed to terminate session on leave",
			zap.String("session", sess.ID), zap.Error(err))
	}
}

// Admin applies an operator action to the candidate's live session.
func (m *Manager) Admin(ctx context.Context, chatID, userID string, action AdminAction) (AdminOutcome, error) {
	key := models.CandidateKey{ChatID: chatID, UserID: userID}
	mu := m.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	sess, err := m.store.Sessions.FindActive(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return AdminNotFound, nil
	}
	if err != nil {
		return "", err
	}
	settings, err := m.settingsFor(ctx, chatID)
	if err != nil {
		return "", err
	}
	bank, err := m.bankFor(ctx, chatID)
	if err != nil {
		return "", err
	}

	switch action {
	case AdminSkip:
		if sess.Cursor >= len(bank.Questions) {
			return AdminForbidden, nil
		}
		q := bank.Questions[sess.Cursor]
		sess.Answers = append(sess.Answers, models.Answer{
			QuestionID:   q.ID,
			QuestionText: q.Text,
			Cursor:       sess.Cursor,
			RawAnswer:    "(skipped by admin)",
			Score:        0,
			MaxScore:     q.Weight,
			At:           m.clock.Now(),
		})
		return AdminOK, m.advance(ctx, sess, bank, settings)
	case AdminEnd, AdminReset:
		if err := m.markTerminal(ctx, sess, models.StateTerminated); err != nil {
			return "", err
		}
		return AdminOK, nil
	case AdminApprove:
		// Mandatory attributes still gate a manual approve.
		if sess.Photo == nil || sess.DOB == nil || !sess.DOB.Valid() {
			return AdminForbidden, nil
		}
		v := evaluator.Verdict{
			Decision:   "APPROVE",
			Score:      100,
			Percentage: evaluator.Percentage(sess.Answers),
			Feedback:   "Approved manually by an admin.",
		}
		return AdminOK, m.finalize(ctx, sess, settings, models.StateApproved, v)
	case AdminReject:
		v := evaluator.Verdict{
			Decision:   "REJECT",
			Score:      0,
			Percentage: evaluator.Percentage(sess.Answers),
			Feedback:   "Rejected manually by an admin.",
		}
		return AdminOK, m.finalize(ctx, sess, settings, models.StateRejected, v)
	default:
		return AdminForbidden, nil
	}
}

func (m *Manager) settingsFor(ctx context.Context, chatID string) (*models.Settings, error) {
	s, err := m.store.Settings.Get(ctx, chatID)
	if errors.Is(err, store.ErrNotFound) {
		return models.DefaultSettings(chatID), nil
	}
	return s, err
}

// bankFor loads the chat's question bank, seeding the built-in one on
// first use so the bank the interview ran against is always persisted.
func (m *Manager) bankFor(ctx context.Context, chatID string) (*models.QuestionBank, error) {
	b, err := m.store.Questions.Get(ctx, chatID)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	defaults, err := questions.DefaultBank()
	if err != nil {
		return nil, err
	}
	b = &models.QuestionBank{ChatID: chatID, Questions: defaults}
	if err := m.store.Questions.Put(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (m *Manager) send(ctx context.Context, chatID, text string) {
	if text == "" {
		return
	}
	if _, err := m.transport.Send(ctx, chatID, text); err != nil {
		m.logger.Warn("outbound send failed", zap.String("chat", chatID), zap.Error(err))
	}
}

func (m *Manager) renderTemplate(override, name string, sess *models.Session, settings *models.Settings) string {
	vars := map[string]string{
		"name": sess.DisplayName,
		"link": settings.MainChatLink,
	}
	if override != "" {
		return prompts.Render(override, vars)
	}
	return m.msgs.Message(name, vars)
}

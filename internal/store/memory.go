package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gatekeeper/internal/models"
)

// NewMemoryStore returns a fully in-memory Store. It backs the test suites
// and keeps the same semantics as the mongo implementation, including
// result immutability and ordered array round-trips.
func NewMemoryStore() *Store {
	return &Store{
		Sessions:  &memSessions{docs: map[string]*models.Session{}},
		Settings:  &memSettings{docs: map[string]*models.Settings{}},
		Questions: &memQuestions{docs: map[string]*models.QuestionBank{}},
		Results:   &memResults{docs: map[string]*models.Result{}},
		Stats:     &memStats{docs: map[string]*models.Stats{}},
		Prompts:   &memPrompts{docs: map[string]*models.EvalPrompt{}},
	}
}

type memSessions struct {
	mu   sync.RWMutex
	docs map[string]*models.Session
}

func cloneSession(s *models.Session) *models.Session {
	c := *s
	c.Answers = append([]models.Answer(nil), s.Answers...)
	c.Followups = append([]models.Followup(nil), s.Followups...)
	if s.Photo != nil {
		p := *s.Photo
		c.Photo = &p
	}
	if s.DOB != nil {
		d := *s.DOB
		c.DOB = &d
	}
	return &c
}

func (r *memSessions) Put(_ context.Context, s *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[s.ID] = cloneSession(s)
	return nil
}

func (r *memSessions) Get(_ context.Context, id string) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSession(s), nil
}

func (r *memSessions) FindActive(_ context.Context, key models.CandidateKey) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.docs {
		if s.ChatID == key.ChatID && s.UserID == key.UserID && !s.State.Terminal() {
			return cloneSession(s), nil
		}
	}
	return nil, ErrNotFound
}

func (r *memSessions) CountTerminal(_ context.Context, key models.CandidateKey, states []models.State) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for _, s := range r.docs {
		if s.ChatID != key.ChatID || s.UserID != key.UserID {
			continue
		}
		for _, st := range states {
			if s.State == st {
				n++
				break
			}
		}
	}
	return n, nil
}

func (r *memSessions) list(match func(*models.Session) bool) []*models.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.Session
	for _, s := range r.docs {
		if match(s) {
			out = append(out, cloneSession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivityAt.Before(out[j].LastActivityAt)
	})
	return out
}

func (r *memSessions) FindNonTerminal(_ context.Context) ([]*models.Session, error) {
	return r.list(func(s *models.Session) bool { return !s.State.Terminal() }), nil
}

func (r *memSessions) FindReminderDue(_ context.Context, cutoff time.Time) ([]*models.Session, error) {
	return r.list(func(s *models.Session) bool {
		return !s.State.Terminal() &&
			s.LastActivityAt.Before(cutoff) &&
			(s.LastReminderAt.IsZero() || s.LastReminderAt.Before(cutoff))
	}), nil
}

func (r *memSessions) FindExpired(_ context.Context, now time.Time) ([]*models.Session, error) {
	return r.list(func(s *models.Session) bool {
		return !s.State.Terminal() && s.ExpiresAt.Before(now)
	}), nil
}

func (r *memSessions) FindEvaluating(_ context.Context) ([]*models.Session, error) {
	return r.list(func(s *models.Session) bool { return s.State == models.StateEvaluating }), nil
}

type memSettings struct {
	mu   sync.RWMutex
	docs map[string]*models.Settings
}

func (r *memSettings) Get(_ context.Context, chatID string) (*models.Settings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.docs[chatID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *s
	return &c, nil
}

func (r *memSettings) Put(_ context.Context, s *models.Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *s
	c.UpdatedAt = time.Now().UTC()
	r.docs[s.ChatID] = &c
	return nil
}

type memQuestions struct {
	mu   sync.RWMutex
	docs map[string]*models.QuestionBank
}

func (r *memQuestions) Get(_ context.Context, chatID string) (*models.QuestionBank, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.docs[chatID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *b
	c.Questions = append([]models.Question(nil), b.Questions...)
	return &c, nil
}

func (r *memQuestions) Put(_ context.Context, b *models.QuestionBank) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *b
	c.Questions = append([]models.Question(nil), b.Questions...)
	c.UpdatedAt = time.Now().UTC()
	r.docs[b.ChatID] = &c
	return nil
}

func (r *memQuestions) Delete(_ context.Context, chatID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, chatID)
	return nil
}

type memResults struct {
	mu   sync.RWMutex
	docs map[string]*models.Result
}

func (r *memResults) Put(_ context.Context, res *models.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[res.SessionID]; ok {
		return fmt.Errorf("store: result for session %s already written", res.SessionID)
	}
	c := *res
	r.docs[res.SessionID] = &c
	return nil
}

func (r *memResults) Get(_ context.Context, sessionID string) (*models.Result, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.docs[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *res
	return &c, nil
}

func (r *memResults) Exists(_ context.Context, sessionID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.docs[sessionID]
	return ok, nil
}

type memStats struct {
	mu   sync.RWMutex
	docs map[string]*models.Stats
}

func (r *memStats) Get(_ context.Context, chatID string) (*models.Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.docs[chatID]
	if !ok {
		return &models.Stats{ChatID: chatID}, nil
	}
	c := *s
	return &c, nil
}

func (r *memStats) upsert(chatID string) *models.Stats {
	s, ok := r.docs[chatID]
	if !ok {
		s = &models.Stats{ChatID: chatID}
		r.docs[chatID] = s
	}
	return s
}

func (r *memStats) Increment(_ context.Context, chatID, field string, delta int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.upsert(chatID)
	switch field {
	case StatTotal:
		s.Total += delta
	case StatApproved:
		s.Approved += delta
	case StatRejected:
		s.Rejected += delta
	case StatAutoRemoved:
		s.AutoRemoved += delta
	case StatPendingReview:
		s.PendingReview += delta
	case StatFailedTimeout:
		s.FailedTimeout += delta
	default:
		return fmt.Errorf("store: unknown stats field %q", field)
	}
	return nil
}

func (r *memStats) RecordCompletion(_ context.Context, chatID string, percentage float64, duration time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.upsert(chatID)
	s.Completed++
	s.ScoreSum += percentage
	s.DurationSum += duration.Seconds()
	return nil
}

type memPrompts struct {
	mu   sync.RWMutex
	docs map[string]*models.EvalPrompt
}

func (r *memPrompts) Get(_ context.Context, chatID string) (*models.EvalPrompt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.docs[chatID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *p
	return &c, nil
}

func (r *memPrompts) Put(_ context.Context, p *models.EvalPrompt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *p
	c.UpdatedAt = time.Now().UTC()
	r.docs[p.ChatID] = &c
	return nil
}

func (r *memPrompts) Delete(_ context.Context, chatID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, chatID)
	return nil
}

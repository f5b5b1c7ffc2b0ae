package scheduler

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"gatekeeper/internal/models"
)

// TimerKind names the three per-session obligations.
type TimerKind string

const (
	TimerResponse TimerKind = "response"
	TimerReminder TimerKind = "reminder"
	TimerExpiry   TimerKind = "expiry"
)

// TimerService keeps at most one live timer per (candidate, kind). Setting
// a timer cancels the prior one of the same kind.
type TimerService struct {
	logger *zap.Logger

	mu     sync.Mutex
	timers map[string]map[TimerKind]*time.Timer
	closed bool
}

func NewTimerService(logger *zap.Logger) *TimerService {
	return &TimerService{
		logger: logger,
		timers: make(map[string]map[TimerKind]*time.Timer),
	}
}

// Set arms a one-shot timer for the candidate. fn runs on its own
// goroutine after d elapses unless the timer is cancelled or replaced.
func (t *TimerService) Set(key models.CandidateKey, kind TimerKind, d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	k := key.String()
	byKind, ok := t.timers[k]
	if !ok {
		byKind = make(map[TimerKind]*time.Timer)
		t.timers[k] = byKind
	}
	if prev, ok := byKind[kind]; ok {
		prev.Stop()
	}
	byKind[kind] = time.AfterFunc(d, func() {
		t.clear(key, kind)
		fn()
	})
}

// Cancel stops one timer kind for the candidate.
func (t *TimerService) Cancel(key models.CandidateKey, kind TimerKind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if byKind, ok := t.timers[key.String()]; ok {
		if timer, ok := byKind[kind]; ok {
			timer.Stop()
			delete(byKind, kind)
		}
	}
}

// CancelAll stops every timer for the candidate.
func (t *TimerService) CancelAll(key models.CandidateKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := key.String()
	for _, timer := range t.timers[k] {
		timer.Stop()
	}
	delete(t.timers, k)
}

// Stop cancels all timers; the service accepts no further Sets. Called on
// shutdown; persisted timestamps rebuild obligations on the next start.
func (t *TimerService) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for _, byKind := range t.timers {
		for _, timer := range byKind {
			timer.Stop()
		}
	}
	t.timers = make(map[string]map[TimerKind]*time.Timer)
}

func (t *TimerService) clear(key models.CandidateKey, kind TimerKind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if byKind, ok := t.timers[key.String()]; ok {
		delete(byKind, kind)
	}
}

package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gatekeeper/internal/models"
	"gatekeeper/internal/store"
)

type recordingHandler struct {
	mu         sync.Mutex
	reminders  []string
	expired    []string
	evaluating []string
}

func (h *recordingHandler) HandleReminderDue(_ context.Context, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reminders = append(h.reminders, id)
}

func (h *recordingHandler) HandleExpired(_ context.Context, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.expired = append(h.expired, id)
}

func (h *recordingHandler) HandleStuckEvaluating(_ context.Context, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.evaluating = append(h.evaluating, id)
}

func seedSession(t *testing.T, st *store.Store, id string, state models.State, lastActivity, expiresAt time.Time) {
	t.Helper()
	require.NoError(t, st.Sessions.Put(context.Background(), &models.Session{
		ID: id, ChatID: "chat", UserID: "user-" + id,
		State: state, LastActivityAt: lastActivity, ExpiresAt: expiresAt,
	}))
}

func TestReminderSweepSelectsQuietSessions(t *testing.T) {
	st := store.NewMemoryStore()
	h := &recordingHandler{}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := NewManualClock(now)
	s := NewSweeper(st.Sessions, h, clock, zap.NewNop())

	seedSession(t, st, "quiet", models.StateActive, now.Add(-3*time.Hour), now.Add(24*time.Hour))
	seedSession(t, st, "chatty", models.StateActive, now.Add(-10*time.Minute), now.Add(24*time.Hour))
	seedSession(t, st, "done", models.StateApproved, now.Add(-3*time.Hour), now.Add(24*time.Hour))

	require.NoError(t, s.RunReminderSweep(context.Background()))
	assert.Equal(t, []string{"quiet"}, h.reminders)
}

func TestExpirySweepSelectsOverdueAndStuck(t *testing.T) {
	st := store.NewMemoryStore()
	h := &recordingHandler{}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := NewManualClock(now)
	s := NewSweeper(st.Sessions, h, clock, zap.NewNop())

	seedSession(t, st, "overdue", models.StateActive, now.Add(-50*time.Hour), now.Add(-time.Hour))
	seedSession(t, st, "live", models.StateActive, now, now.Add(24*time.Hour))
	seedSession(t, st, "stuck", models.StateEvaluating, now.Add(-time.Hour), now.Add(24*time.Hour))

	require.NoError(t, s.RunExpirySweep(context.Background()))
	assert.Equal(t, []string{"overdue"}, h.expired)
	assert.Equal(t, []string{"stuck"}, h.evaluating)
}

func TestSweeperStartStop(t *testing.T) {
	st := store.NewMemoryStore()
	s := NewSweeper(st.Sessions, &recordingHandler{}, RealClock{}, zap.NewNop())
	require.NoError(t, s.Start())
	s.Stop()
}

func TestManualClock(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewManualClock(start)
	assert.Equal(t, start, c.Now())
	c.Advance(90 * time.Minute)
	assert.Equal(t, start.Add(90*time.Minute), c.Now())
}

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatekeeper/internal/models"
)

func TestSessionsFindActive(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	key := models.CandidateKey{ChatID: "chat", UserID: "user"}

	_, err := st.Sessions.FindActive(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, st.Sessions.Put(ctx, &models.Session{
		ID: "s1", ChatID: "chat", UserID: "user", Attempt: 1, State: models.StateRejected,
	}))
	require.NoError(t, st.Sessions.Put(ctx, &models.Session{
		ID: "s2", ChatID: "chat", UserID: "user", Attempt: 2, State: models.StateAwaitingPhoto,
	}))

	sess, err := st.Sessions.FindActive(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "s2", sess.ID)
}

func TestSessionsCountTerminal(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	key := models.CandidateKey{ChatID: "chat", UserID: "user"}

	states := []models.State{
		models.StateRejected, models.StateFailedTimeout,
		models.StateTerminated, models.StateExpired, models.StateApproved,
	}
	for i, state := range states {
		require.NoError(t, st.Sessions.Put(ctx, &models.Session{
			ID: "s" + string(rune('1'+i)), ChatID: "chat", UserID: "user",
			Attempt: i + 1, State: state,
		}))
	}

	n, err := st.Sessions.CountTerminal(ctx, key, models.TerminalFailureStates)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestSessionsPutReturnsCopies(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	sess := &models.Session{ID: "s1", ChatID: "chat", UserID: "user", State: models.StateActive,
		Answers: []models.Answer{{QuestionID: "q1", RawAnswer: "hi"}}}
	require.NoError(t, st.Sessions.Put(ctx, sess))

	// Mutating the caller's copy must not leak into the store.
	sess.Answers[0].RawAnswer = "mutated"
	sess.State = models.StateApproved

	got, err := st.Sessions.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "hi", got.Answers[0].RawAnswer)
	assert.Equal(t, models.StateActive, got.State)
}

func TestResultsAreImmutable(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	r := &models.Result{SessionID: "s1", ChatID: "chat", State: models.StateApproved}
	require.NoError(t, st.Results.Put(ctx, r))

	err := st.Results.Put(ctx, &models.Result{SessionID: "s1", State: models.StateRejected})
	assert.Error(t, err)

	got, err := st.Results.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.StateApproved, got.State)

	exists, err := st.Results.Exists(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = st.Results.Exists(ctx, "s2")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStatsIncrementAndCompletion(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, st.Stats.Increment(ctx, "chat", StatTotal, 1))
	require.NoError(t, st.Stats.Increment(ctx, "chat", StatTotal, 1))
	require.NoError(t, st.Stats.Increment(ctx, "chat", StatApproved, 1))

	require.NoError(t, st.Stats.RecordCompletion(ctx, "chat", 80, 10*time.Minute))
	require.NoError(t, st.Stats.RecordCompletion(ctx, "chat", 60, 20*time.Minute))

	stats, err := st.Stats.Get(ctx, "chat")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Approved)
	assert.InDelta(t, 70.0, stats.AvgScore(), 0.01)
	assert.Equal(t, 15*time.Minute, stats.AvgDuration())
}

func TestSettingsRoundTrip(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	_, err := st.Settings.Get(ctx, "chat")
	assert.ErrorIs(t, err, ErrNotFound)

	s := models.DefaultSettings("chat")
	s.Enabled = true
	s.PassThreshold = 80
	require.NoError(t, st.Settings.Put(ctx, s))

	got, err := st.Settings.Get(ctx, "chat")
	require.NoError(t, err)
	assert.True(t, got.Enabled)
	assert.Equal(t, 80, got.PassThreshold)
}

func TestPromptsDelete(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, st.Prompts.Put(ctx, &models.EvalPrompt{ChatID: "chat", Template: "x ${responses}"}))
	got, err := st.Prompts.Get(ctx, "chat")
	require.NoError(t, err)
	assert.Contains(t, got.Template, "${responses}")

	require.NoError(t, st.Prompts.Delete(ctx, "chat"))
	_, err = st.Prompts.Get(ctx, "chat")
	assert.ErrorIs(t, err, ErrNotFound)
}

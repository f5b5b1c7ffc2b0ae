package selection

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func redisMatcher(t *testing.T) (*Matcher, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewMatcher(rdb, zap.NewNop()), mr
}

func TestMatchDispatchesOnce(t *testing.T) {
	m, _ := redisMatcher(t)
	ctx := context.Background()

	m.Remember(ctx, "msg-1", Context{
		Kind:       "questions.remove",
		Options:    []string{"q1", "q2", "q3"},
		HandlerRef: "chat",
	})

	d, ok := m.Match(ctx, "msg-1", "2")
	require.True(t, ok)
	assert.Equal(t, 2, d.Choice)
	assert.Equal(t, "questions.remove", d.Context.Kind)
	assert.Equal(t, "q2", d.Context.Options[d.Choice-1])

	// Contexts are one-shot; a second reply to the same menu misses.
	_, ok = m.Match(ctx, "msg-1", "2")
	assert.False(t, ok)
}

func TestMatchRequiresQuotedNumericReply(t *testing.T) {
	m, _ := redisMatcher(t)
	ctx := context.Background()

	m.Remember(ctx, "msg-1", Context{Kind: "k", Options: []string{"a", "b"}})

	_, ok := m.Match(ctx, "", "1")
	assert.False(t, ok)

	// A non-numeric reply falls through without consuming the context.
	_, ok = m.Match(ctx, "msg-1", "the first one")
	assert.False(t, ok)
	_, ok = m.Match(ctx, "msg-1", " 1 ")
	assert.True(t, ok)
}

func TestMatchRejectsOutOfRangeChoice(t *testing.T) {
	m, _ := redisMatcher(t)
	ctx := context.Background()

	m.Remember(ctx, "msg-1", Context{Kind: "k", Options: []string{"a", "b"}})

	_, ok := m.Match(ctx, "msg-1", "0")
	assert.False(t, ok)
	_, ok = m.Match(ctx, "msg-1", "3")
	assert.False(t, ok)

	// Out-of-range replies must not burn the menu; a corrected reply
	// still dispatches.
	d, ok := m.Match(ctx, "msg-1", "2")
	require.True(t, ok)
	assert.Equal(t, "b", d.Context.Options[d.Choice-1])
}

func TestContextsExpire(t *testing.T) {
	m, mr := redisMatcher(t)
	ctx := context.Background()

	m.Remember(ctx, "msg-1", Context{Kind: "k", Options: []string{"a"}})
	mr.FastForward(TTL + time.Minute)

	_, ok := m.Match(ctx, "msg-1", "1")
	assert.False(t, ok)
}

func TestLocalFallbackWithoutRedis(t *testing.T) {
	m := NewMatcher(nil, zap.NewNop())
	ctx := context.Background()

	m.Remember(ctx, "msg-1", Context{Kind: "k", Options: []string{"a", "b"}})

	// An out-of-range reply leaves the local entry in place too.
	_, ok := m.Match(ctx, "msg-1", "9")
	assert.False(t, ok)

	d, ok := m.Match(ctx, "msg-1", "1")
	require.True(t, ok)
	assert.Equal(t, 1, d.Choice)

	_, ok = m.Match(ctx, "msg-1", "1")
	assert.False(t, ok)
}

// Package selection maps numeric replies that quote a previously sent
// enumerated menu back to the handler that issued it. Contexts are best
// effort: losing one only degrades UX, so routing failures fall through
// to normal ingest.
package selection

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// TTL caps how long a menu stays answerable.
const TTL = 30 * time.Minute

const keyPrefix = "selection:"

// Context is one outstanding enumerated menu.
type Context struct {
	Kind       string    `json:"kind"`
	Options    []string  `json:"options"`
	HandlerRef string    `json:"handler_ref"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Dispatch is a matched numeric reply.
type Dispatch struct {
	Context Context
	Choice  int // 1-based index into Options
}

type memEntry struct {
	ctx       Context
	expiresAt time.Time
}

// Matcher stores contexts in redis keyed by outbound message id, with an
// in-process TTL cache standing in when redis is absent. Contexts are
// consumed one-shot so a menu can never dispatch twice.
type Matcher struct {
	rdb    *redis.Client
	logger *zap.Logger

	mu    sync.Mutex
	local map[string]memEntry
}

func NewMatcher(rdb *redis.Client, logger *zap.Logger) *Matcher {
	return &Matcher{
		rdb:    rdb,
		logger: logger,
		local:  make(map[string]memEntry),
	}
}

// Remember registers the menu sent as messageID.
func (m *Matcher) Remember(ctx context.Context, messageID string, sc Context) {
	sc.ExpiresAt = time.Now().Add(TTL)

	if m.rdb != nil {
		payload, err := json.Marshal(sc)
		if err == nil {
			if err := m.rdb.Set(ctx, keyPrefix+messageID, payload, TTL).Err(); err == nil {
				return
			} else {
				m.logger.Debug("selection context fell back to memory", zap.Error(err))
			}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.local[messageID] = memEntry{ctx: sc, expiresAt: sc.ExpiresAt}
	m.cleanupLocked()
}

// Match resolves an inbound reply. It returns a dispatch only when the
// reply quotes a live menu and parses as an integer in [1, N]. The
// context is consumed only on a valid dispatch; an out-of-range choice
// puts the menu back so a corrected reply can still land.
func (m *Matcher) Match(ctx context.Context, quotedID, text string) (*Dispatch, bool) {
	if quotedID == "" {
		return nil, false
	}
	choice, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return nil, false
	}

	sc, ok := m.take(ctx, quotedID)
	if !ok {
		return nil, false
	}
	if time.Now().After(sc.ExpiresAt) {
		return nil, false
	}
	if choice < 1 || choice > len(sc.Options) {
		m.restore(ctx, quotedID, sc)
		return nil, false
	}
	return &Dispatch{Context: sc, Choice: choice}, true
}

// restore puts a consumed context back for whatever TTL it has left.
func (m *Matcher) restore(ctx context.Context, messageID string, sc Context) {
	ttl := time.Until(sc.ExpiresAt)
	if ttl <= 0 {
		return
	}

	if m.rdb != nil {
		payload, err := json.Marshal(sc)
		if err == nil {
			if err := m.rdb.Set(ctx, keyPrefix+messageID, payload, ttl).Err(); err == nil {
				return
			} else {
				m.logger.Debug("selection context restore fell back to memory", zap.Error(err))
			}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.local[messageID] = memEntry{ctx: sc, expiresAt: sc.ExpiresAt}
}

func (m *Matcher) take(ctx context.Context, messageID string) (Context, bool) {
	if m.rdb != nil {
		raw, err := m.rdb.GetDel(ctx, keyPrefix+messageID).Result()
		if err == nil {
			var sc Context
			if json.Unmarshal([]byte(raw), &sc) == nil {
				return sc, true
			}
			return Context{}, false
		}
		if !errors.Is(err, redis.Nil) {
			m.logger.Debug("selection context lookup failed", zap.Error(err))
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.local[messageID]
	if !ok {
		return Context{}, false
	}
	delete(m.local, messageID)
	if time.Now().After(entry.expiresAt) {
		return Context{}, false
	}
	return entry.ctx, true
}

func (m *Matcher) cleanupLocked() {
	now := time.Now()
	for id, entry := range m.local {
		if now.After(entry.expiresAt) {
			delete(m.local, id)
		}
	}
}

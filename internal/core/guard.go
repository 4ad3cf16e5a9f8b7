package core

import (
	"strconv"
	"sync"
	"time"
)

// Scope selects the key the guard counts events against.
type Scope string

const (
	// ScopeConnection throttles each connection independently.
	ScopeConnection Scope = "per_connection"
	// ScopeIdentity throttles all of an identity's devices together.
	ScopeIdentity Scope = "per_identity"
)

// ParseScope maps a config string to a scope, defaulting to
// per-connection.
func ParseScope(s string) Scope {
	if Scope(s) == ScopeIdentity {
		return ScopeIdentity
	}
	return ScopeConnection
}

// Guard is a sliding-window event throttle. A zero or negative
// maxEvents disables it entirely.
type Guard struct {
	window time.Duration
	max    int
	scope  Scope

	mu   sync.Mutex
	hits map[string][]time.Time

	now func() time.Time // stubbed in tests
}

// NewGuard builds a guard admitting at most maxEvents per window.
func NewGuard(window time.Duration, maxEvents int, scope Scope) *Guard {
	if window <= 0 {
		window = time.Second
	}
	return &Guard{
		window: window,
		max:    maxEvents,
		scope:  scope,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Admit reports whether the connection may publish another event and,
// when allowed, counts it against the window.
func (g *Guard) Admit(conn *Conn) bool {
	if g == nil || g.max <= 0 {
		return true
	}

	key := g.key(conn)
	now := g.now()
	cutoff := now.Add(-g.window)

	g.mu.Lock()
	defer g.mu.Unlock()

	hits := g.hits[key]
	kept := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= g.max {
		g.hits[key] = kept
		return false
	}
	g.hits[key] = append(kept, now)
	return true
}

// Forget drops the per-connection window state so disconnects do not
// leak counters. Identity-scope state is shared across devices and is
// released through ForgetIdentity once the last device goes away.
func (g *Guard) Forget(conn *Conn) {
	if g == nil || g.max <= 0 || g.scope == ScopeIdentity {
		return
	}
	g.mu.Lock()
	delete(g.hits, conn.ID)
	g.mu.Unlock()
}

// ForgetIdentity drops the shared window state for an identity. Called
// when the identity's last connection unregisters; without it every
// identity that ever published would leave a map entry behind forever.
func (g *Guard) ForgetIdentity(userID int64) {
	if g == nil || g.max <= 0 || g.scope != ScopeIdentity {
		return
	}
	g.mu.Lock()
	delete(g.hits, identityKey(userID))
	g.mu.Unlock()
}

func (g *Guard) key(conn *Conn) string {
	if g.scope == ScopeIdentity {
		return identityKey(conn.Identity.UserID)
	}
	return conn.ID
}

func identityKey(userID int64) string {
	return "u:" + strconv.FormatInt(userID, 10)
}

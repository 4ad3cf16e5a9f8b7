package core

import (
	"sync"

	"github.com/emberlink/matchwire-server/internal/utils"
)

// Registry owns every live connection. It is the only component that
// creates and destroys Conn records.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]*Conn
	byUser map[int64]map[string]*Conn

	sendBuffer int
}

// NewRegistry constructs an empty registry. sendBuffer sizes each
// connection's outbound event buffer.
func NewRegistry(sendBuffer int) *Registry {
	return &Registry{
		byID:       make(map[string]*Conn),
		byUser:     make(map[int64]map[string]*Conn),
		sendBuffer: sendBuffer,
	}
}

// Register allocates a connection for the authenticated identity.
// Multiple connections per identity are permitted; registration always
// succeeds.
func (r *Registry) Register(identity Identity) *Conn {
	conn := newConn(utils.NewID(), identity, r.sendBuffer)

	r.mu.Lock()
	r.byID[conn.ID] = conn
	devices := r.byUser[identity.UserID]
	if devices == nil {
		devices = make(map[string]*Conn)
		r.byUser[identity.UserID] = devices
	}
	devices[conn.ID] = conn
	r.mu.Unlock()

	return conn
}

// Unregister removes the connection and marks it disconnected.
// Idempotent: unknown ids are a no-op. Returns the removed connection
// so the caller can cascade channel eviction.
func (r *Registry) Unregister(connID string) *Conn {
	r.mu.Lock()
	conn, ok := r.byID[connID]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.byID, connID)
	if devices := r.byUser[conn.Identity.UserID]; devices != nil {
		delete(devices, connID)
		if len(devices) == 0 {
			delete(r.byUser, conn.Identity.UserID)
		}
	}
	r.mu.Unlock()

	conn.close()
	return conn
}

// Get resolves a connection by id.
func (r *Registry) Get(connID string) (*Conn, bool) {
	r.mu.RLock()
	conn, ok := r.byID[connID]
	r.mu.RUnlock()
	return conn, ok
}

// Connections returns a snapshot of every live connection the identity
// owns, supporting multi-device delivery.
func (r *Registry) Connections(userID int64) []*Conn {
	r.mu.RLock()
	devices := r.byUser[userID]
	out := make([]*Conn, 0, len(devices))
	for _, c := range devices {
		out = append(out, c)
	}
	r.mu.RUnlock()
	return out
}

// Touch records inbound activity on the connection, used for idle
// detection.
func (r *Registry) Touch(connID string) {
	if conn, ok := r.Get(connID); ok {
		conn.touch()
	}
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Identities returns the number of distinct identities with at least
// one live connection.
func (r *Registry) Identities() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

func (r *Registry) snapshot() []*Conn {
	r.mu.RLock()
	out := make([]*Conn, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	r.mu.RUnlock()
	return out
}

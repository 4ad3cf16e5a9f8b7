package core

import (
	"sync"
	"sync/atomic"
	"time"
)

// Identity is the authenticated principal behind a connection. It is
// derived once from the verified token and never changes afterwards.
type Identity struct {
	UserID   int64
	Username string
}

// State tracks where a connection is in its lifecycle.
type State int32

const (
	// StateConnecting is the initial state before the handshake finishes.
	StateConnecting State = iota
	// StateAuthenticated means the token was verified but the connection
	// has not been registered yet.
	StateAuthenticated
	// StateActive is a registered connection with recent activity.
	StateActive
	// StateIdle is a registered connection past the idle timeout.
	StateIdle
	// StateDisconnected is terminal.
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateIdle:
		return "idle"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Conn is one live transport session as seen by the core layer. An
// identity may own several connections at once (multi-device).
type Conn struct {
	ID       string
	Identity Identity

	// Events is drained by the transport write loop. Delivery enqueues
	// here and never blocks; a full buffer counts as a failed delivery.
	Events chan *Event

	state      atomic.Int32
	lastActive atomic.Int64 // unix nanos

	mu       sync.Mutex
	channels map[string]struct{}

	done     chan struct{}
	doneOnce sync.Once
}

func newConn(id string, identity Identity, sendBuffer int) *Conn {
	if sendBuffer <= 0 {
		sendBuffer = 32
	}
	c := &Conn{
		ID:       id,
		Identity: identity,
		Events:   make(chan *Event, sendBuffer),
		channels: make(map[string]struct{}),
		done:     make(chan struct{}),
	}
	c.state.Store(int32(StateActive))
	c.lastActive.Store(time.Now().UnixNano())
	return c
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// Done is closed when the connection is torn down. The transport write
// loop selects on it so an eviction unblocks the writer.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// LastActive returns the time of the most recent inbound activity.
func (c *Conn) LastActive() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

func (c *Conn) touch() {
	c.lastActive.Store(time.Now().UnixNano())
	// Idle connections come back to Active on any inbound traffic.
	c.state.CompareAndSwap(int32(StateIdle), int32(StateActive))
}

func (c *Conn) markIdle() bool {
	return c.state.CompareAndSwap(int32(StateActive), int32(StateIdle))
}

// close transitions to Disconnected and releases the writer. Safe to
// call more than once.
func (c *Conn) close() {
	c.state.Store(int32(StateDisconnected))
	c.doneOnce.Do(func() { close(c.done) })
}

// deliver enqueues an event for the transport writer. It never blocks:
// a closed connection or a full buffer is reported as an error so the
// caller can isolate the failure from other recipients.
func (c *Conn) deliver(ev *Event) error {
	if c.State() == StateDisconnected {
		return ErrConnClosed
	}
	select {
	case c.Events <- ev:
		return nil
	default:
		return ErrSlowConsumer
	}
}

func (c *Conn) addChannel(id string) {
	c.mu.Lock()
	c.channels[id] = struct{}{}
	c.mu.Unlock()
}

func (c *Conn) removeChannel(id string) {
	c.mu.Lock()
	delete(c.channels, id)
	c.mu.Unlock()
}

func (c *Conn) inChannel(id string) bool {
	c.mu.Lock()
	_, ok := c.channels[id]
	c.mu.Unlock()
	return ok
}

// Channels returns a snapshot of the channels this connection joined.
func (c *Conn) Channels() []string {
	c.mu.Lock()
	out := make([]string, 0, len(c.channels))
	for id := range c.channels {
		out = append(out, id)
	}
	c.mu.Unlock()
	return out
}

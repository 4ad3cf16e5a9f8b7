package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/emberlink/matchwire-server/internal/metrics"
)

// Options configures the hub's core behavior.
type Options struct {
	// SendBuffer sizes each connection's outbound queue.
	SendBuffer int

	// RateWindow and RateMaxEvents bound publishes per RateScope key.
	RateWindow    time.Duration
	RateMaxEvents int
	RateScope     Scope

	// EchoSelf delivers published events back to the originating
	// connection as well.
	EchoSelf bool

	// IdleTimeout marks a silent connection Idle; DisconnectTimeout
	// evicts it. Zero disables the sweep.
	IdleTimeout       time.Duration
	DisconnectTimeout time.Duration
}

// Hub owns the connection registry, channel state, router, and rate
// guard. It is created at process start and passed to the transport;
// there are no package-level registries.
type Hub struct {
	registry *Registry
	rooms    *Rooms
	router   *Router
	guard    *Guard

	opts Options
	log  zerolog.Logger
	met  *metrics.Metrics
}

// NewHub wires the core components together.
func NewHub(opts Options, logger zerolog.Logger, met *metrics.Metrics) *Hub {
	registry := NewRegistry(opts.SendBuffer)
	rooms := NewRooms()
	guard := NewGuard(opts.RateWindow, opts.RateMaxEvents, opts.RateScope)
	router := NewRouter(rooms, guard, logger, met, opts.EchoSelf)

	return &Hub{
		registry: registry,
		rooms:    rooms,
		router:   router,
		guard:    guard,
		opts:     opts,
		log:      logger,
		met:      met,
	}
}

// Connect registers a connection for a verified identity. The caller
// must have completed authentication first; no partial registration
// happens on a failed handshake.
func (h *Hub) Connect(identity Identity) *Conn {
	conn := h.registry.Register(identity)
	h.met.Connections.Set(float64(h.registry.Len()))
	h.log.Info().
		Str("conn_id", conn.ID).
		Int64("user_id", identity.UserID).
		Str("username", identity.Username).
		Msg("connection registered")
	return conn
}

// Disconnect tears the connection down: it leaves every channel it
// joined (cascading empty-channel teardown), its guard state is
// released, and the record is destroyed. Idempotent, and safe to call
// while a publish to one of its channels is in flight.
func (h *Hub) Disconnect(connID string) {
	conn := h.registry.Unregister(connID)
	if conn == nil {
		return
	}
	h.rooms.Evict(conn)
	h.guard.Forget(conn)
	if len(h.registry.Connections(conn.Identity.UserID)) == 0 {
		h.guard.ForgetIdentity(conn.Identity.UserID)
	}
	h.met.Connections.Set(float64(h.registry.Len()))
	h.met.Channels.Set(float64(h.rooms.Len()))
	h.log.Info().Str("conn_id", connID).Msg("connection unregistered")
}

// Join subscribes the connection to a channel, creating it on first
// join. Members are notified; duplicate joins are a no-op. A
// connection that is unknown or was disconnected mid-flight is refused
// without touching channel state.
func (h *Hub) Join(conn *Conn, channelID string, kind Kind) (*Channel, error) {
	if _, ok := h.registry.Get(conn.ID); !ok {
		return nil, ErrNotAuthenticated
	}
	ch, added, err := h.rooms.Join(conn, channelID, kind)
	if err != nil {
		return nil, ErrNotAuthenticated
	}
	if added {
		h.router.Announce(conn, channelID, EventMemberJoined)
		h.met.Channels.Set(float64(h.rooms.Len()))
	}
	return ch, nil
}

// Leave unsubscribes the connection; the channel disappears with its
// last member.
func (h *Hub) Leave(conn *Conn, channelID string) error {
	if err := h.rooms.Leave(conn, channelID); err != nil {
		return err
	}
	h.router.Announce(conn, channelID, EventMemberLeft)
	h.met.Channels.Set(float64(h.rooms.Len()))
	return nil
}

// Publish routes a payload to the channel's current members.
func (h *Hub) Publish(conn *Conn, channelID string, payload json.RawMessage) (Delivery, error) {
	return h.router.Publish(conn, channelID, payload)
}

// Touch records inbound activity for idle detection.
func (h *Hub) Touch(connID string) {
	h.registry.Touch(connID)
}

// Connections exposes the identity's live connections for multi-device
// delivery.
func (h *Hub) Connections(userID int64) []*Conn {
	return h.registry.Connections(userID)
}

// KindOf reports a live channel's kind.
func (h *Hub) KindOf(channelID string) (Kind, error) {
	return h.rooms.KindOf(channelID)
}

// Stats is a point-in-time snapshot of hub occupancy.
type Stats struct {
	Connections int `json:"connections"`
	Identities  int `json:"identities"`
	Channels    int `json:"channels"`
}

// Stats returns current connection and channel counts.
func (h *Hub) Stats() Stats {
	return Stats{
		Connections: h.registry.Len(),
		Identities:  h.registry.Identities(),
		Channels:    h.rooms.Len(),
	}
}

// Run drives the idle sweep until ctx is canceled. Connections silent
// past IdleTimeout go Idle; past DisconnectTimeout they are evicted.
func (h *Hub) Run(ctx context.Context) {
	if h.opts.IdleTimeout <= 0 {
		<-ctx.Done()
		return
	}

	interval := h.opts.IdleTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sweep()
		}
	}
}

func (h *Hub) sweep() {
	now := time.Now()
	for _, conn := range h.registry.snapshot() {
		silent := now.Sub(conn.LastActive())
		if h.opts.DisconnectTimeout > 0 && silent > h.opts.DisconnectTimeout {
			h.log.Info().
				Str("conn_id", conn.ID).
				Dur("silent", silent).
				Msg("evicting idle connection")
			h.Disconnect(conn.ID)
			continue
		}
		if silent > h.opts.IdleTimeout && conn.markIdle() {
			h.log.Debug().Str("conn_id", conn.ID).Msg("connection idle")
		}
	}
}

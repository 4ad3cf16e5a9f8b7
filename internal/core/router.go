package core

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/emberlink/matchwire-server/internal/metrics"
)

// Router validates publishes and fans events out to channel members.
// Delivery is best effort: only currently connected members receive an
// event, and one broken recipient never affects the rest.
type Router struct {
	rooms *Rooms
	guard *Guard
	log   zerolog.Logger
	met   *metrics.Metrics

	// echoSelf delivers the event back to the originating connection
	// too. Other devices of the same identity always receive it.
	echoSelf bool
}

// NewRouter wires the router to shared room state and the rate guard.
func NewRouter(rooms *Rooms, guard *Guard, logger zerolog.Logger, met *metrics.Metrics, echoSelf bool) *Router {
	return &Router{rooms: rooms, guard: guard, log: logger, met: met, echoSelf: echoSelf}
}

// Publish delivers payload to every current member of the channel.
//
// The sender must be a member (ErrNotMember) and within its rate budget
// (ErrRateLimited); both are reported to the sender only. Membership is
// snapshotted before iterating, so a concurrent disconnect of a member
// is tolerated: the event is simply not delivered past that member's
// removal point.
//
// Events from one connection to one channel are fanned out in publish
// order; Publish runs synchronously in the caller's read loop and each
// recipient's queue preserves enqueue order.
func (rt *Router) Publish(conn *Conn, channelID string, payload json.RawMessage) (Delivery, error) {
	if !conn.inChannel(channelID) {
		return Delivery{}, ErrNotMember
	}
	if !rt.guard.Admit(conn) {
		rt.met.RateLimited.Inc()
		return Delivery{}, ErrRateLimited
	}

	members, err := rt.rooms.Members(channelID)
	if err != nil {
		// Membership was verified above, so the channel can only vanish
		// through our own eviction of this connection mid-flight.
		return Delivery{}, ErrNotMember
	}

	ev := &Event{
		Kind:    EventMessage,
		Channel: channelID,
		Sender:  conn.Identity,
		Payload: payload,
		At:      time.Now(),
	}

	rt.met.Published.Inc()
	return rt.fanOut(conn, ev, members), nil
}

// Announce broadcasts a membership event (joined/left) to current
// members, excluding the subject connection itself.
func (rt *Router) Announce(conn *Conn, channelID string, kind EventKind) {
	members, err := rt.rooms.Members(channelID)
	if err != nil {
		return
	}
	ev := &Event{
		Kind:    kind,
		Channel: channelID,
		Sender:  conn.Identity,
		At:      time.Now(),
	}
	rt.fanOut(conn, ev, members)
}

func (rt *Router) fanOut(origin *Conn, ev *Event, members []*Conn) Delivery {
	var res Delivery
	for _, member := range members {
		if member.ID == origin.ID && !rt.echoSelf {
			continue
		}
		if err := member.deliver(ev); err != nil {
			res.Dropped++
			rt.met.Dropped.Inc()
			if errors.Is(err, ErrSlowConsumer) {
				rt.log.Warn().
					Str("conn_id", member.ID).
					Str("channel", ev.Channel).
					Msg("recipient buffer full, event dropped")
			}
			continue
		}
		res.Delivered++
		rt.met.Delivered.Inc()
	}
	return res
}

package core

import (
	"encoding/json"
	"time"
)

// EventKind is a notification the core emits to connections.
type EventKind int

const (
	// EventMessage carries a published payload to channel members.
	EventMessage EventKind = iota
	// EventMemberJoined notifies members about a connection joining.
	EventMemberJoined
	// EventMemberLeft notifies members about a connection leaving.
	EventMemberLeft
	// EventError is a structured rejection for the originating
	// connection only.
	EventError
)

// Event is delivered to connections to describe what happened.
type Event struct {
	Kind    EventKind
	Channel string
	Sender  Identity
	Payload json.RawMessage
	At      time.Time
	Error   *Error
}

// Delivery summarizes one fan-out: how many members received the event
// and how many were skipped because their transport could not take it.
type Delivery struct {
	Delivered int
	Dropped   int
}

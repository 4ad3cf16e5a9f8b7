package proto

import "encoding/json"

// Inbound is the envelope for events coming from the client.
type Inbound struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel"`
	Kind    string          `json:"kind,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const (
	ProtocolVersion = 1

	InboundTypeJoin    = "join"
	InboundTypeLeave   = "leave"
	InboundTypePublish = "publish"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventMessage      = "message"
	EventMemberJoined = "member_joined"
	EventMemberLeft   = "member_left"
	EventLiveJoin     = "live_join"
)

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// EventData carries a published payload to a channel member.
type EventData struct {
	Channel  string          `json:"channel"`
	Sender   string          `json:"sender"`
	SenderID int64           `json:"sender_id"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	TS       int64           `json:"ts"`
}

// MemberData notifies members about a join or leave.
type MemberData struct {
	Channel string `json:"channel"`
	User    string `json:"user"`
	UserID  int64  `json:"user_id"`
}

// LiveJoinData delivers media credentials for a live channel to the
// joining connection only.
type LiveJoinData struct {
	Channel  string `json:"channel"`
	URL      string `json:"url"`
	Token    string `json:"token"`
	Room     string `json:"room"`
	Identity string `json:"identity"`
}

// Error describes a protocol-level rejection.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

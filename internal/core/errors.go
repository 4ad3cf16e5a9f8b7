package core

import "errors"

// Error codes surfaced to clients in structured rejections.
const (
	ErrCodeNotAuthenticated = "not_authenticated"
	ErrCodeNotMember        = "not_member"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeChannelNotFound  = "channel_not_found"
	ErrCodeBadRequest       = "bad_request"
)

var (
	// ErrNotAuthenticated means the connection id is not registered.
	ErrNotAuthenticated = errors.New("connection not authenticated")
	// ErrNotMember means the connection never joined the channel.
	ErrNotMember = errors.New("not a channel member")
	// ErrRateLimited means the guard rejected the event.
	ErrRateLimited = errors.New("rate limited")
	// ErrChannelNotFound means the channel has no members and so does
	// not exist.
	ErrChannelNotFound = errors.New("channel not found")

	// Per-recipient delivery failures. Isolated and logged, never
	// propagated to the sender.
	ErrConnClosed   = errors.New("connection closed")
	ErrSlowConsumer = errors.New("slow consumer")
)

// Error wraps a machine-readable code and a human-readable message for
// the outbound error envelope.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Reject maps a domain error to its structured client-facing form.
func Reject(err error) *Error {
	switch {
	case errors.Is(err, ErrNotAuthenticated):
		return &Error{Code: ErrCodeNotAuthenticated, Message: "connection is not authenticated"}
	case errors.Is(err, ErrNotMember):
		return &Error{Code: ErrCodeNotMember, Message: "not a member of this channel"}
	case errors.Is(err, ErrRateLimited):
		return &Error{Code: ErrCodeRateLimited, Message: "too many events, slow down"}
	case errors.Is(err, ErrChannelNotFound):
		return &Error{Code: ErrCodeChannelNotFound, Message: "channel not found"}
	default:
		return &Error{Code: ErrCodeBadRequest, Message: err.Error()}
	}
}

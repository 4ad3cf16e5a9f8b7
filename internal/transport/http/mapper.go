package http

import (
	"github.com/emberlink/matchwire-server/internal/core"
	"github.com/emberlink/matchwire-server/internal/proto"
)

// outboundFromEvent maps a core event to its wire envelope.
func outboundFromEvent(ev *core.Event) proto.Outbound {
	switch ev.Kind {
	case core.EventMessage:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventMessage,
			Data: proto.EventData{
				Channel:  ev.Channel,
				Sender:   ev.Sender.Username,
				SenderID: ev.Sender.UserID,
				Payload:  ev.Payload,
				TS:       ev.At.UnixMilli(),
			},
		}
	case core.EventMemberJoined, core.EventMemberLeft:
		name := proto.EventMemberJoined
		if ev.Kind == core.EventMemberLeft {
			name = proto.EventMemberLeft
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: name,
			Data: proto.MemberData{
				Channel: ev.Channel,
				User:    ev.Sender.Username,
				UserID:  ev.Sender.UserID,
			},
		}
	case core.EventError:
		return outboundError(ev.Error)
	}
	return proto.Outbound{Type: proto.OutboundTypeEvent}
}

func outboundError(e *core.Error) proto.Outbound {
	if e == nil {
		e = &core.Error{Code: core.ErrCodeBadRequest, Message: "bad request"}
	}
	return proto.Outbound{
		Type:  proto.OutboundTypeError,
		Error: &proto.Error{Code: e.Code, Msg: e.Message},
	}
}

// rejectOutbound maps a domain error to the outbound error envelope.
func rejectOutbound(err error) proto.Outbound {
	return outboundError(core.Reject(err))
}

package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/emberlink/matchwire-server/internal/auth"
	"github.com/emberlink/matchwire-server/internal/config"
	"github.com/emberlink/matchwire-server/internal/core"
	"github.com/emberlink/matchwire-server/internal/live"
	"github.com/emberlink/matchwire-server/internal/metrics"
	"github.com/emberlink/matchwire-server/internal/proto"
)

// WSHandler authenticates WebSocket handshakes and bridges each
// accepted connection to the hub.
type WSHandler struct {
	hub          *core.Hub
	authCfg      *auth.Config
	issuer       *live.Issuer
	met          *metrics.Metrics
	writeTimeout time.Duration
	log          *zerolog.Logger
}

// NewWSHandler builds the handler for the /ws endpoint.
func NewWSHandler(hub *core.Hub, authCfg *auth.Config, issuer *live.Issuer, met *metrics.Metrics, cfg *config.Config, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		hub:          hub,
		authCfg:      authCfg,
		issuer:       issuer,
		met:          met,
		writeTimeout: cfg.WriteTimeout,
		log:          logger,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	// The credential is verified before the upgrade and before any
	// registration, so a rejected handshake never mutates core state.
	token, err := auth.FromRequest(r)
	var claims *auth.Claims
	if err == nil {
		claims, err = auth.VerifyToken(h.authCfg, token)
	}
	if err != nil {
		h.met.AuthRejected.Inc()
		h.log.Debug().Err(err).Msg("rejected ws handshake")
		stdhttp.Error(w, "unauthorized", stdhttp.StatusUnauthorized)
		return
	}

	ctx := r.Context()

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer ws.Close(websocket.StatusInternalError, "internal error")

	identity := core.Identity{UserID: claims.UserID, Username: claims.Username}
	conn := h.hub.Connect(identity)
	defer h.hub.Disconnect(conn.ID)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sess := newSession(h, ws, conn)

	errCh := make(chan error, 2)
	go func() {
		errCh <- sess.readLoop(ctx)
	}()
	go func() {
		errCh <- sess.writeLoop(ctx)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("conn_id", conn.ID).Msg("ws connection closed with error")
		}
	}

	ws.Close(status, reason)
}

// session is the per-connection bridge between the socket and the hub.
// Inbound events are routed through a single typed dispatch table.
type session struct {
	h        *WSHandler
	ws       *websocket.Conn
	conn     *core.Conn
	handlers map[string]func(ctx context.Context, in proto.Inbound) (*proto.Outbound, error)
}

func newSession(h *WSHandler, ws *websocket.Conn, conn *core.Conn) *session {
	s := &session{h: h, ws: ws, conn: conn}
	s.handlers = map[string]func(ctx context.Context, in proto.Inbound) (*proto.Outbound, error){
		proto.InboundTypeJoin:    s.handleJoin,
		proto.InboundTypeLeave:   s.handleLeave,
		proto.InboundTypePublish: s.handlePublish,
	}
	return s
}

func (s *session) readLoop(ctx context.Context) error {
	for {
		var in proto.Inbound
		if err := wsjson.Read(ctx, s.ws, &in); err != nil {
			return err
		}

		s.h.hub.Touch(s.conn.ID)

		handler, ok := s.handlers[in.Type]
		if !ok {
			if err := s.write(ctx, outboundError(&core.Error{
				Code:    core.ErrCodeBadRequest,
				Message: "unknown event type",
			})); err != nil {
				return err
			}
			continue
		}
		if in.Channel == "" {
			if err := s.write(ctx, outboundError(&core.Error{
				Code:    core.ErrCodeBadRequest,
				Message: "channel is required",
			})); err != nil {
				return err
			}
			continue
		}

		reply, err := handler(ctx, in)
		if err != nil {
			// Domain rejections go back to the originating connection
			// only; the socket stays up.
			if writeErr := s.write(ctx, rejectOutbound(err)); writeErr != nil {
				return writeErr
			}
			continue
		}
		if reply != nil {
			if err := s.write(ctx, *reply); err != nil {
				return err
			}
		}
	}
}

func (s *session) writeLoop(ctx context.Context) error {
	for {
		select {
		case ev := <-s.conn.Events:
			if err := s.write(ctx, outboundFromEvent(ev)); err != nil {
				s.h.log.Error().Err(err).Str("conn_id", s.conn.ID).Msg("write ws event")
				return err
			}
		case <-s.conn.Done():
			// Evicted by the hub (idle timeout or explicit disconnect).
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// write sends one outbound envelope with a bounded deadline so a slow
// socket cannot stall its session.
func (s *session) write(ctx context.Context, out proto.Outbound) error {
	if s.h.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.h.writeTimeout)
		defer cancel()
	}
	return wsjson.Write(ctx, s.ws, out)
}

func (s *session) handleJoin(_ context.Context, in proto.Inbound) (*proto.Outbound, error) {
	ch, err := s.h.hub.Join(s.conn, in.Channel, core.ParseKind(in.Kind))
	if err != nil {
		return nil, err
	}

	if ch.Kind == core.KindLive && s.h.issuer != nil {
		info, err := s.h.issuer.JoinInfo(ch.ID, s.conn.Identity)
		if err != nil {
			s.h.log.Error().Err(err).Str("channel", ch.ID).Msg("live join credentials")
			return nil, nil
		}
		return &proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventLiveJoin,
			Data: proto.LiveJoinData{
				Channel:  ch.ID,
				URL:      info.URL,
				Token:    info.Token,
				Room:     info.Room,
				Identity: info.Identity,
			},
		}, nil
	}
	return nil, nil
}

func (s *session) handleLeave(_ context.Context, in proto.Inbound) (*proto.Outbound, error) {
	return nil, s.h.hub.Leave(s.conn, in.Channel)
}

func (s *session) handlePublish(_ context.Context, in proto.Inbound) (*proto.Outbound, error) {
	delivery, err := s.h.hub.Publish(s.conn, in.Channel, in.Payload)
	if err != nil {
		return nil, err
	}
	if delivery.Dropped > 0 {
		s.h.log.Debug().
			Str("channel", in.Channel).
			Int("delivered", delivery.Delivered).
			Int("dropped", delivery.Dropped).
			Msg("partial fan-out")
	}
	return nil, nil
}

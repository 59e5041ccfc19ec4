package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"roomrelay/internal/relay"
)

const (
	writeWait      = 10 * time.Second
	handlerTimeout = 1900 * time.Millisecond
)

// Options tunes per-connection limits.
type Options struct {
	MaxMessageBytes int64
	PongWait        time.Duration
	AllowedOrigins  []string
}

func (o Options) pingPeriod() time.Duration { return (o.PongWait * 9) / 10 }

// ConnContext is what event handlers see of the calling connection.
type ConnContext struct {
	Participant *relay.Participant
	Server      *WsServer
}

type WsServer struct {
	hub      *Hub
	router   *Router
	opts     Options
	upgrader websocket.Upgrader
}

func NewWsServer(h *Hub, opts Options) *WsServer {
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = 64 * 1024
	}
	if opts.PongWait <= 0 {
		opts.PongWait = 60 * time.Second
	}
	srv := &WsServer{
		hub:    h,
		router: NewRouter(),
		opts:   opts,
	}
	srv.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     srv.checkOrigin,
	}
	srv.registerHandlers() // ← all WS endpoints configured here
	return srv
}

// ---------------------------------------------------------------------------
//  Public: Gin entry‑point
// ---------------------------------------------------------------------------

func (s *WsServer) Handle(ginCtx *gin.Context) {
	rawConn, err := s.upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("ws.accept", zap.Error(err))
		return
	}
	rawConn.SetReadLimit(s.opts.MaxMessageBytes)

	conn := &clientConn{rawConn: rawConn}
	p := s.hub.coord.Registry().Register(func() {
		zap.L().Warn("ws.slow_consumer", zap.String("conn", rawConn.RemoteAddr().String()))
		conn.close(websocket.ClosePolicyViolation, "slow consumer")
	})
	zap.L().Debug("ws.connected",
		zap.String("handle", p.Handle()),
		zap.String("remote", rawConn.RemoteAddr().String()))

	go s.writer(conn, p)
	go s.reader(conn, p)
}

// ---------------------------------------------------------------------------
//  Private helpers
// ---------------------------------------------------------------------------

func (s *WsServer) registerHandlers() {
	// 🔹 join-room ------------------------------------------------------------
	Register(
		s.router,
		eventJoinRoom,
		func(ctx context.Context, cc *ConnContext, req JoinRoomRequest) (noAck, error) {
			// the ack is queued by the coordinator, ahead of any presence event
			_, err := s.hub.coord.Join(ctx, cc.Participant, req.RoomID, req.PeerID)
			return noAck{}, err
		},
	)

	// 🔹 signal ---------------------------------------------------------------
	Register(
		s.router,
		eventSignal,
		func(ctx context.Context, cc *ConnContext, body json.RawMessage) (noAck, error) {
			var target signalTarget
			if err := json.Unmarshal(body, &target); err != nil {
				return noAck{}, errInvalidBody
			}
			return noAck{}, s.hub.signal.Route(ctx, cc.Participant, target.To, body)
		},
	)
}

func (s *WsServer) reader(conn *clientConn, p *relay.Participant) {
	defer func() {
		s.hub.coord.Disconnect(p)
		conn.close(websocket.CloseNormalClosure, "")
	}()

	_ = conn.rawConn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	conn.rawConn.SetPongHandler(func(string) error {
		return conn.rawConn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	cc := &ConnContext{Participant: p, Server: s}

	for {
		_, data, err := conn.rawConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				zap.L().Debug("ws.read", zap.String("handle", p.Handle()), zap.Error(err))
			}
			return // client closed or errored
		}

		var env Envelope
		var res any
		if err = json.Unmarshal(data, &env); err != nil {
			err = errInvalidBody
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
			res, err = s.router.dispatch(ctx, cc, env)
			cancel()
		}

		// Replies go through the outbox so they keep their place behind
		// events already queued for this participant.

		// ---- error -> {"event":"error", "body":{...}} ---------------
		if err != nil {
			zap.L().Debug("ws.dispatch",
				zap.String("event", env.Event),
				zap.String("handle", p.Handle()),
				zap.Error(err))
			p.Notify(relay.Event{Kind: relay.EventError, Code: errorCode(err)})
			continue
		}
		if _, ok := res.(noAck); ok {
			continue
		}

		// ---- success -> {"event":"<evt>-ack", "body":{...}} --------
		reply := relay.Event{Kind: env.Event + "-ack"}
		if res != nil {
			if reply.Payload, err = json.Marshal(res); err != nil {
				zap.L().Warn("ws.encode", zap.String("event", reply.Kind), zap.Error(err))
				continue
			}
		}
		p.Notify(reply)
	}
}

// writer drains the participant's outbox onto the socket and keeps the
// connection alive with pings. When the outbox is closed on leave it closes
// the socket, whichever side started the teardown.
func (s *WsServer) writer(conn *clientConn, p *relay.Participant) {
	ticker := time.NewTicker(s.opts.pingPeriod())
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-p.Outbox():
			if !ok {
				conn.close(websocket.CloseGoingAway, "")
				return
			}
			env, err := outbound(ev)
			var data []byte
			if err == nil {
				data, err = env.frame()
			}
			if err != nil {
				zap.L().Warn("ws.encode", zap.String("event", ev.Kind), zap.Error(err))
				continue
			}
			if err := conn.write(websocket.TextMessage, data); err != nil {
				conn.close(websocket.CloseInternalServerErr, "write failed")
				return
			}
		case <-ticker.C:
			if err := conn.write(websocket.PingMessage, nil); err != nil {
				conn.close(websocket.CloseGoingAway, "ping timeout")
				return
			}
		}
	}
}

func (s *WsServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" {
			return true
		}
		if strings.EqualFold(strings.TrimRight(allowed, "/"), origin) {
			return true
		}
	}
	// same-origin pages are always accepted
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}

var errorCodes = []error{
	relay.ErrMalformedJoin,
	relay.ErrAlreadyInRoom,
	relay.ErrPeerIDInUse,
	relay.ErrParticipantLeft,
	relay.ErrNotJoined,
	relay.ErrMissingTarget,
	errUnknownEvent,
	errInvalidBody,
	context.DeadlineExceeded,
}

// errorCode maps err to the stable code sent to clients.
func errorCode(err error) string {
	for _, known := range errorCodes {
		if errors.Is(err, known) {
			if known == context.DeadlineExceeded {
				return "timeout"
			}
			return known.Error()
		}
	}
	return "internal_error"
}

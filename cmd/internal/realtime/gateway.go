// Package realtime pushes newly published listings to websocket subscribers.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	// Subprotocol is the only websocket subprotocol the gateway speaks.
	Subprotocol = "haven.live.v1"

	wsDefaultSendQueueSize = 64
	wsMinSendQueueSize     = 16

	wsDefaultWriteTimeout = 5 * time.Second
	wsCloseGrace          = 1 * time.Second

	wsMaxPingFailures = 3
)

// GatewayConfig controls origin policy, queues, heartbeats and rate limits.
type GatewayConfig struct {
	// OriginRequired rejects upgrades without an Origin header.
	OriginRequired bool
	AllowedOrigins []string

	// DevInsecure disables websocket.Accept's own origin verification. Dev only.
	DevInsecure bool

	WriteTimeout time.Duration
	// ReadIdleTimeout closes sessions that send nothing for this long. Zero
	// disables it; heartbeats still detect dead peers.
	ReadIdleTimeout time.Duration
	SendQueueSize   int

	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	RateEvents int
	RateWindow time.Duration
}

// DefaultGatewayConfig returns secure defaults: origin required, localhost only.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		OriginRequired:    true,
		AllowedOrigins:    []string{"http://localhost", "http://127.0.0.1"},
		WriteTimeout:      wsDefaultWriteTimeout,
		SendQueueSize:     wsDefaultSendQueueSize,
		HeartbeatInterval: heartbeatInterval,
		HeartbeatTimeout:  heartbeatTimeout,
		RateEvents:        rateLimitEvents,
		RateWindow:        rateLimitWindow,
	}
}

// WSGateway is the websocket entrypoint for live listing channels.
//
// It enforces origin policy, subprotocol selection, rate limits and
// heartbeats, and routes validated envelopes to the Hub.
type WSGateway struct {
	log     *slog.Logger
	hub     *Hub
	metrics *Metrics
	cfg     GatewayConfig

	// Derived for websocket.Accept origin checks.
	originPatterns []string
}

// NewWSGateway constructs a gateway. A nil hub gets a private one.
func NewWSGateway(log *slog.Logger, hub *Hub, cfg GatewayConfig, m *Metrics) *WSGateway {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if hub == nil {
		hub = NewHub(log, m)
	}

	def := DefaultGatewayConfig()
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.SendQueueSize < wsMinSendQueueSize {
		cfg.SendQueueSize = wsMinSendQueueSize
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = def.HeartbeatTimeout
	}
	if cfg.RateEvents <= 0 {
		cfg.RateEvents = def.RateEvents
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = def.RateWindow
	}

	return &WSGateway{
		log:            log,
		hub:            hub,
		metrics:        m,
		cfg:            cfg,
		originPatterns: deriveOriginPatterns(cfg.AllowedOrigins),
	}
}

// Hub returns the gateway's hub (the publisher for new listings).
func (g *WSGateway) Hub() *Hub { return g.hub }

// ServeHTTP adapter so it can be mounted as http.Handler.
func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades an HTTP request to a websocket session and runs the session loop.
func (g *WSGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.metrics.reject("origin")
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	// Server read/write timeouts would otherwise carry over to the hijacked conn.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{Subprotocol},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.cfg.DevInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != Subprotocol {
		g.metrics.reject("subprotocol")
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", Subprotocol)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	conn.SetReadLimit(maxFrameBytes)

	sessionID, err := NewSessionID(time.Now())
	if err != nil {
		g.log.Error("ws.session_id.fail", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "internal error")
		return
	}
	consumerID := strings.TrimSpace(r.Header.Get("X-Consumer-ID"))
	client := NewClient(sessionID, consumerID, g.cfg.SendQueueSize)

	g.metrics.connOpened()
	defer g.metrics.connClosed()
	g.log.Info("ws.session.open", "session_id", sessionID, "consumer_id", consumerID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var (
		closeOnce sync.Once
		subsMu    sync.Mutex
		subs      = make(map[string]struct{})
	)

	// shutdown is idempotent. It leaves every channel before closing the
	// client so broadcasters never hold a closed session.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			subsMu.Lock()
			for name := range subs {
				g.hub.Leave(name, sessionID)
			}
			clear(subs)
			subsMu.Unlock()

			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	rl := NewRateLimiter(g.cfg.RateEvents, g.cfg.RateWindow)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case env := <-client.Send:
				if err := writeEnvelope(ctx, conn, env, g.cfg.WriteTimeout); err != nil {
					g.log.Info("ws.write.fail", "session_id", sessionID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.cfg.HeartbeatInterval)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "session_id", sessionID, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

readLoop:
	for {
		env, err := g.read(ctx, conn)
		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				g.trySendError(client, "bad_json", "invalid JSON")
				continue readLoop
			default:
				g.log.Info("ws.read.fail", "session_id", sessionID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		if !rl.Allow(time.Now()) {
			g.metrics.reject("rate_limited")
			g.trySendError(client, "rate_limited", "too many events")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if err := env.Validate(); err != nil {
			g.trySendError(client, "bad_envelope", err.Error())
			continue readLoop
		}

		switch env.Type {
		case TypeHello:
			if err := g.onHello(client); err != nil {
				g.trySendError(client, "hello_failed", err.Error())
				shutdown(websocket.StatusPolicyViolation, "hello failed")
				break readLoop
			}

		case TypeChannelJoin:
			subsMu.Lock()
			err := g.onJoin(client, env, subs)
			subsMu.Unlock()
			if err != nil {
				g.trySendError(client, "join_failed", err.Error())
			}

		case TypeChannelLeave:
			subsMu.Lock()
			err := g.onLeave(client, env, subs)
			subsMu.Unlock()
			if err != nil {
				g.trySendError(client, "leave_failed", err.Error())
			}

		default:
			g.trySendError(client, "unsupported", fmt.Sprintf("unsupported type: %s", env.Type))
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
	g.log.Info("ws.session.close", "session_id", sessionID)
}

func (g *WSGateway) read(ctx context.Context, conn *websocket.Conn) (Envelope, error) {
	if g.cfg.ReadIdleTimeout <= 0 {
		return readEnvelope(ctx, conn)
	}
	readCtx, cancel := context.WithTimeout(ctx, g.cfg.ReadIdleTimeout)
	defer cancel()
	return readEnvelope(readCtx, conn)
}

// ---- handlers ----

func (g *WSGateway) onHello(client *Client) error {
	ackPayload, _ := json.Marshal(HelloAckPayload{SessionID: client.SessionID})
	if !client.offer(newEnvelope(TypeHelloAck, ackPayload, time.Now().UTC())) {
		return errors.New("backpressure: hello.ack")
	}
	return nil
}

func (g *WSGateway) onJoin(client *Client, env Envelope, subs map[string]struct{}) error {
	name, err := channelFromPayload(env.Payload)
	if err != nil {
		return err
	}
	if _, ok := subs[name]; !ok && len(subs) >= maxChannelsPerClient {
		return fmt.Errorf("too many channels: max=%d", maxChannelsPerClient)
	}

	g.hub.Join(name, client)
	subs[name] = struct{}{}

	echoPayload, _ := json.Marshal(ChannelPayload{Channel: name})
	if !client.offer(newEnvelope(TypeChannelJoin, echoPayload, time.Now().UTC())) {
		g.hub.Leave(name, client.SessionID)
		delete(subs, name)
		return errors.New("backpressure: join echo")
	}
	return nil
}

func (g *WSGateway) onLeave(client *Client, env Envelope, subs map[string]struct{}) error {
	name, err := channelFromPayload(env.Payload)
	if err != nil {
		return err
	}
	if _, ok := subs[name]; !ok {
		return errors.New("not subscribed")
	}

	g.hub.Leave(name, client.SessionID)
	delete(subs, name)

	echoPayload, _ := json.Marshal(ChannelPayload{Channel: name})
	_ = client.offer(newEnvelope(TypeChannelLeave, echoPayload, time.Now().UTC()))
	return nil
}

func channelFromPayload(raw json.RawMessage) (string, error) {
	var p ChannelPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", fmt.Errorf("invalid payload: %w", err)
	}
	name := strings.ToLower(strings.TrimSpace(p.Channel))
	if !ValidChannel(name) {
		return "", fmt.Errorf("invalid channel: %q", p.Channel)
	}
	return name, nil
}

// ---- send helpers ----

func (g *WSGateway) trySendError(client *Client, code, msg string) {
	p, _ := json.Marshal(ErrorPayload{Code: code, Message: msg})
	_ = client.offer(newEnvelope(TypeError, p, time.Now().UTC()))
}

// ---- envelope IO ----

func newEnvelope(typ string, payload json.RawMessage, ts time.Time) Envelope {
	id, _ := NewEnvelopeID(ts)
	return Envelope{
		V:       Version,
		Type:    typ,
		ID:      id,
		TS:      ts,
		Payload: payload,
	}
}

func readEnvelope(ctx context.Context, conn *websocket.Conn) (Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, errBadJSON{err}
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type errBadJSON struct{ err error }

func (e errBadJSON) Error() string { return "bad json: " + e.err.Error() }
func (e errBadJSON) Unwrap() error { return e.err }

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	var bad errBadJSON
	switch {
	case errors.As(err, &bad):
		return readErrBadJSON
	case websocket.CloseStatus(err) != -1:
		return readErrClose
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return readErrCtxDone
	case errors.Is(err, net.ErrClosed), errors.Is(err, io.EOF):
		return readErrConnClosed
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *WSGateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.cfg.OriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.cfg.AllowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)

	for _, a := range g.cfg.AllowedOrigins {
		a = strings.TrimSpace(a)
		switch {
		case a == "":
			continue
		case a == "*":
			return nil
		case origin == a:
			return nil
		case originHost != "" && originHost == originHostOnly(a):
			// Host match ignores port and scheme.
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = strings.TrimSpace(u.Host)
		if s == "" {
			return ""
		}
	}

	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

// deriveOriginPatterns turns the allowlist into websocket.Accept host
// patterns, with and without a port, so both origin layers agree. A "*"
// entry passes through as the match-any pattern.
func deriveOriginPatterns(allowed []string) []string {
	var out []string
	for _, a := range allowed {
		h := originHostOnly(a)
		switch h {
		case "":
			continue
		case "*":
			out = append(out, "*")
			continue
		}
		out = append(out, h, h+":*")
	}
	slices.Sort(out)
	return slices.Compact(out)
}

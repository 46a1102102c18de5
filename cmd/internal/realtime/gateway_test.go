package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func startWSTestServer(t *testing.T, gw *WSGateway) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle("/ws", gw)
	return httptest.NewServer(mux)
}

func dialWS(t *testing.T, baseHTTPURL, origin string, subprotocols ...string) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	u, err := url.Parse(baseHTTPURL)
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/ws"

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}
	h.Set("X-Consumer-ID", "consumer-1")

	if subprotocols == nil {
		subprotocols = []string{Subprotocol}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		Subprotocols: subprotocols,
		HTTPHeader:   h,
	})
}

func writeEnvelopeWS(t *testing.T, conn *websocket.Conn, env Envelope) {
	t.Helper()
	b, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		t.Fatalf("conn.Write: %v", err)
	}
}

func readUntilType(t *testing.T, conn *websocket.Conn, typ string, maxReads int) Envelope {
	t.Helper()
	if maxReads <= 0 {
		maxReads = 1
	}
	for i := 0; i < maxReads; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, b, err := conn.Read(ctx)
		cancel()
		if err != nil {
			t.Fatalf("conn.Read: %v", err)
		}
		var env Envelope
		if err := json.Unmarshal(b, &env); err != nil {
			t.Fatalf("unmarshal envelope: %v", err)
		}
		if env.Type == typ {
			return env
		}
	}
	t.Fatalf("did not receive envelope type %q", typ)
	return Envelope{}
}

func mustJSONRaw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	return b
}

func testGatewayConfig() GatewayConfig {
	cfg := DefaultGatewayConfig()
	cfg.OriginRequired = false
	return cfg
}

func waitForSubscribers(t *testing.T, hub *Hub, channel string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers(channel) != want {
		if time.Now().After(deadline) {
			t.Fatalf("channel %s: subscribers=%d want=%d", channel, hub.Subscribers(channel), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWSGateway_HelloJoinAndReceiveListing(t *testing.T) {
	t.Parallel()

	gw := NewWSGateway(nil, nil, testGatewayConfig(), nil)
	ts := startWSTestServer(t, gw)
	defer ts.Close()

	conn, resp, err := dialWS(t, ts.URL, "")
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	writeEnvelopeWS(t, conn, Envelope{V: Version, Type: TypeHello, TS: time.Now().UTC()})
	ack := readUntilType(t, conn, TypeHelloAck, 2)
	var ackPayload HelloAckPayload
	if err := json.Unmarshal(ack.Payload, &ackPayload); err != nil || len(ackPayload.SessionID) != 26 {
		t.Fatalf("expected ULID session id, got %+v (%v)", ackPayload, err)
	}

	writeEnvelopeWS(t, conn, Envelope{
		V:       Version,
		Type:    TypeChannelJoin,
		TS:      time.Now().UTC(),
		Payload: mustJSONRaw(t, ChannelPayload{Channel: "Listings.Douala"}),
	})
	echo := readUntilType(t, conn, TypeChannelJoin, 2)
	var joined ChannelPayload
	_ = json.Unmarshal(echo.Payload, &joined)
	if joined.Channel != "listings.douala" {
		t.Fatalf("expected normalized channel, got %q", joined.Channel)
	}

	if got := gw.Hub().Publish(testProperty("Buea")); got != 0 {
		t.Fatalf("other city must not be delivered, got %d", got)
	}
	if got := gw.Hub().Publish(testProperty("Douala")); got != 1 {
		t.Fatalf("expected 1 delivery, got %d", got)
	}

	env := readUntilType(t, conn, TypeListingNew, 2)
	var p ListingNewPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if p.City != "Douala" {
		t.Fatalf("unexpected listing: %+v", p)
	}
}

func TestWSGateway_RejectsBadRequests(t *testing.T) {
	t.Parallel()

	gw := NewWSGateway(nil, nil, testGatewayConfig(), nil)
	ts := startWSTestServer(t, gw)
	defer ts.Close()

	conn, resp, err := dialWS(t, ts.URL, "")
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if code := errorCodeOf(t, readUntilType(t, conn, TypeError, 1)); code != "bad_json" {
		t.Fatalf("expected bad_json, got %q", code)
	}

	writeEnvelopeWS(t, conn, Envelope{V: "v9", Type: TypeHello})
	if code := errorCodeOf(t, readUntilType(t, conn, TypeError, 1)); code != "bad_envelope" {
		t.Fatalf("expected bad_envelope, got %q", code)
	}

	writeEnvelopeWS(t, conn, Envelope{V: Version, Type: TypeChannelJoin, Payload: mustJSONRaw(t, ChannelPayload{Channel: "chat.general"})})
	if code := errorCodeOf(t, readUntilType(t, conn, TypeError, 1)); code != "join_failed" {
		t.Fatalf("expected join_failed, got %q", code)
	}

	writeEnvelopeWS(t, conn, Envelope{V: Version, Type: TypeChannelLeave, Payload: mustJSONRaw(t, ChannelPayload{Channel: ChannelAll})})
	if code := errorCodeOf(t, readUntilType(t, conn, TypeError, 1)); code != "leave_failed" {
		t.Fatalf("expected leave_failed, got %q", code)
	}

	writeEnvelopeWS(t, conn, Envelope{V: Version, Type: TypeListingNew})
	if code := errorCodeOf(t, readUntilType(t, conn, TypeError, 1)); code != "unsupported" {
		t.Fatalf("expected unsupported, got %q", code)
	}
}

func errorCodeOf(t *testing.T, env Envelope) string {
	t.Helper()
	var p ErrorPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("error payload: %v", err)
	}
	return p.Code
}

func TestWSGateway_DisconnectLeavesChannels(t *testing.T) {
	t.Parallel()

	gw := NewWSGateway(nil, nil, testGatewayConfig(), nil)
	ts := startWSTestServer(t, gw)
	defer ts.Close()

	conn, resp, err := dialWS(t, ts.URL, "")
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	writeEnvelopeWS(t, conn, Envelope{V: Version, Type: TypeChannelJoin, Payload: mustJSONRaw(t, ChannelPayload{Channel: ChannelAll})})
	readUntilType(t, conn, TypeChannelJoin, 1)
	waitForSubscribers(t, gw.Hub(), ChannelAll, 1)

	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	waitForSubscribers(t, gw.Hub(), ChannelAll, 0)
}

func TestWSGateway_RateLimitClosesSession(t *testing.T) {
	t.Parallel()

	cfg := testGatewayConfig()
	cfg.RateEvents = 2
	cfg.RateWindow = time.Minute
	gw := NewWSGateway(nil, nil, cfg, nil)
	ts := startWSTestServer(t, gw)
	defer ts.Close()

	conn, resp, err := dialWS(t, ts.URL, "")
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	for i := 0; i < 3; i++ {
		writeEnvelopeWS(t, conn, Envelope{V: Version, Type: TypeHello})
	}

	// Up to two acks and the rate-limit error may arrive before the policy close.
	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, _, err := conn.Read(ctx)
		cancel()
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusPolicyViolation {
				t.Fatalf("expected policy violation close, got %v", err)
			}
			return
		}
	}
	t.Fatalf("session was not closed")
}

func TestWSGateway_OriginPolicy(t *testing.T) {
	t.Parallel()

	cfg := DefaultGatewayConfig()
	cfg.AllowedOrigins = []string{"https://app.example.com"}
	gw := NewWSGateway(nil, nil, cfg, nil)
	ts := startWSTestServer(t, gw)
	defer ts.Close()

	for _, origin := range []string{"", "https://evil.example.com"} {
		_, resp, err := dialWS(t, ts.URL, origin)
		if err == nil {
			t.Fatalf("origin %q: expected rejection", origin)
		}
		if resp == nil || resp.StatusCode != http.StatusForbidden {
			t.Fatalf("origin %q: expected 403, got %+v", origin, resp)
		}
		if resp.Body != nil {
			_ = resp.Body.Close()
		}
	}

	conn, resp, err := dialWS(t, ts.URL, "https://app.example.com")
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("allowed origin: %v", err)
	}
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func TestWSGateway_WildcardOriginAcceptsAnyOrigin(t *testing.T) {
	t.Parallel()

	cfg := DefaultGatewayConfig()
	cfg.AllowedOrigins = []string{"*"}
	gw := NewWSGateway(nil, nil, cfg, nil)
	ts := startWSTestServer(t, gw)
	defer ts.Close()

	conn, resp, err := dialWS(t, ts.URL, "https://app.example.com")
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("wildcard origin: %v", err)
	}
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func TestDeriveOriginPatterns(t *testing.T) {
	t.Parallel()

	got := deriveOriginPatterns([]string{"http://localhost:3000", "https://App.Example.com", "*", "http://localhost"})
	want := []string{"*", "app.example.com", "app.example.com:*", "localhost", "localhost:*"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("got %v want %v", got, want)
	}
}

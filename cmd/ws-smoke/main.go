// Package main provides a CI-friendly end-to-end smoke test against a running haven server.
//
// It validates:
//   - handshake + subprotocol selection
//   - hello/ack session establishment
//   - city channel join echo
//   - POST /v1/properties fans out listing.new to the subscriber
//   - the new unit shows up in GET /v1/feed, and disappears after POST /v1/feed/seen
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/st-eve-code/RealEstate-sub000/cmd/internal/realtime"
)

const maxReadBytes = 1 << 20 // 1MiB

type smokeClient struct {
	conn      *websocket.Conn
	sessionID string

	inbox chan realtime.Envelope
	errCh chan error
}

func main() {
	var (
		baseURL  = flag.String("url", "http://127.0.0.1:8080", "server base URL")
		origin   = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		city     = flag.String("city", "Douala", "city channel to subscribe to")
		consumer = flag.String("consumer", fmt.Sprintf("smoke-%d", time.Now().UnixNano()), "consumer id for feed calls")
		timeout  = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	wsURL, err := wsURLFor(*baseURL)
	if err != nil {
		fatalf("invalid -url: %v", err)
	}

	root := context.Background()

	c := mustConnect(root, wsURL, *origin, *consumer, *timeout)
	defer func() { _ = c.conn.Close(websocket.StatusNormalClosure, "bye") }()
	if *verbose {
		fmt.Printf("connected: session=%s origin=%q\n", c.sessionID, *origin)
	}

	channel := realtime.CityChannel(*city)
	mustJoin(root, c, channel, *timeout)

	title := fmt.Sprintf("smoke unit %d", time.Now().UnixNano())
	created := mustCreateProperty(root, *baseURL, *consumer, *city, title, *timeout)
	if *verbose {
		fmt.Printf("created property %s\n", created)
	}

	live := c.mustReadUntilType(root, realtime.TypeListingNew, *timeout)
	var p realtime.ListingNewPayload
	if err := json.Unmarshal(live.Payload, &p); err != nil {
		fatalf("listing.new payload: %v", err)
	}
	if p.ID != created {
		fatalf("listing.new id=%s want %s", p.ID, created)
	}

	if !feedContains(root, *baseURL, *consumer, created, *timeout) {
		fatalf("feed does not contain new property %s", created)
	}
	mustMarkSeen(root, *baseURL, *consumer, created, *timeout)
	if feedContains(root, *baseURL, *consumer, created, *timeout) {
		fatalf("feed still contains property %s after marking it seen", created)
	}

	fmt.Printf("OK: session=%s channel=%s property=%s consumer=%s\n", c.sessionID, channel, created, *consumer)
}

func wsURLFor(base string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", errors.New("missing host")
	}
	u.Path = "/ws"
	return u.String(), nil
}

func mustConnect(parent context.Context, wsURL, origin, consumer string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}
	h.Set("X-Consumer-ID", consumer)

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{realtime.Subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect: %v", err)
	}
	if got := conn.Subprotocol(); got != realtime.Subprotocol {
		fatalf("subprotocol mismatch: got=%q want=%q", got, realtime.Subprotocol)
	}

	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		conn:  conn,
		inbox: make(chan realtime.Envelope, 512),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()

	mustWrite(parent, conn, realtime.Envelope{V: realtime.Version, Type: realtime.TypeHello, TS: time.Now().UTC()}, stepTimeout)

	ack := c.mustReadUntilType(parent, realtime.TypeHelloAck, stepTimeout)
	var p realtime.HelloAckPayload
	if err := json.Unmarshal(ack.Payload, &p); err != nil {
		fatalf("unmarshal hello.ack payload: %v", err)
	}
	if strings.TrimSpace(p.SessionID) == "" {
		fatalf("hello.ack missing session_id")
	}
	c.sessionID = p.SessionID
	return c
}

func mustJoin(parent context.Context, c *smokeClient, channel string, stepTimeout time.Duration) {
	mustWrite(parent, c.conn, realtime.Envelope{
		V:       realtime.Version,
		Type:    realtime.TypeChannelJoin,
		TS:      time.Now().UTC(),
		Payload: mustJSON(realtime.ChannelPayload{Channel: channel}),
	}, stepTimeout)

	echo := c.mustReadUntilType(parent, realtime.TypeChannelJoin, stepTimeout)
	var p realtime.ChannelPayload
	if err := json.Unmarshal(echo.Payload, &p); err != nil || p.Channel != channel {
		fatalf("join echo mismatch: %+v (%v)", p, err)
	}
}

func (c *smokeClient) startReadLoop() {
	go func() {
		for {
			_, b, err := c.conn.Read(context.Background())
			if err != nil {
				c.errCh <- err
				return
			}
			var env realtime.Envelope
			if err := json.Unmarshal(b, &env); err != nil {
				c.errCh <- fmt.Errorf("decode envelope: %w", err)
				return
			}
			c.inbox <- env
		}
	}()
}

func (c *smokeClient) mustReadUntilType(parent context.Context, typ string, stepTimeout time.Duration) realtime.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case env := <-c.inbox:
			if env.Type == typ {
				return env
			}
			if env.Type == realtime.TypeError {
				fatalf("server error while waiting for %s: %s", typ, env.Payload)
			}
		case err := <-c.errCh:
			fatalf("read while waiting for %s: %v", typ, err)
		case <-ctx.Done():
			fatalf("timeout waiting for %s", typ)
		}
	}
}

func mustWrite(parent context.Context, conn *websocket.Conn, env realtime.Envelope, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, mustJSON(env)); err != nil {
		fatalf("write %s: %v", env.Type, err)
	}
}

func mustCreateProperty(parent context.Context, base, consumer, city, title string, stepTimeout time.Duration) string {
	body := mustJSON(map[string]any{
		"title":        title,
		"city":         city,
		"monthly_rent": 75_000,
		"bedrooms":     2,
		"status":       "published",
	})
	var out struct {
		ID string `json:"id"`
	}
	mustDo(parent, http.MethodPost, base+"/v1/properties", consumer, body, http.StatusCreated, &out, stepTimeout)
	if out.ID == "" {
		fatalf("create property: empty id")
	}
	return out.ID
}

func mustMarkSeen(parent context.Context, base, consumer, id string, stepTimeout time.Duration) {
	var out struct {
		Marked int `json:"marked"`
	}
	mustDo(parent, http.MethodPost, base+"/v1/feed/seen", consumer, mustJSON(map[string]any{"ids": []string{id}}), http.StatusOK, &out, stepTimeout)
	if out.Marked != 1 {
		fatalf("mark seen: marked=%d want 1", out.Marked)
	}
}

// feedContains walks every page of the consumer's unseen feed looking for id.
func feedContains(parent context.Context, base, consumer, id string, stepTimeout time.Duration) bool {
	cursor := ""
	for range 1000 {
		q := url.Values{"limit": {"100"}}
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		var page struct {
			Units []struct {
				ID string `json:"id"`
			} `json:"units"`
			NextCursor *string `json:"next_cursor"`
			HasMore    bool    `json:"has_more"`
		}
		mustDo(parent, http.MethodGet, base+"/v1/feed?"+q.Encode(), consumer, nil, http.StatusOK, &page, stepTimeout)
		for _, u := range page.Units {
			if u.ID == id {
				return true
			}
		}
		if page.NextCursor == nil {
			return false
		}
		cursor = *page.NextCursor
	}
	fatalf("feed did not terminate")
	return false
}

func mustDo(parent context.Context, method, target, consumer string, body []byte, wantStatus int, out any, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		fatalf("%s %s: %v", method, target, err)
	}
	req.Header.Set("X-Consumer-ID", consumer)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("%s %s: %v", method, target, err)
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxReadBytes))
	if resp.StatusCode != wantStatus {
		fatalf("%s %s: status=%d want=%d body=%s", method, target, resp.StatusCode, wantStatus, b)
	}
	if out != nil {
		if err := json.Unmarshal(b, out); err != nil {
			fatalf("%s %s: decode: %v", method, target, err)
		}
	}
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		fatalf("json marshal: %v", err)
	}
	return b
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}

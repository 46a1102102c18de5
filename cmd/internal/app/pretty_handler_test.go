package app

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestPrettyHandler_PlainLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, false))

	log.With("consumer_id", "c-1").Info("feed.page",
		"outcome", "full",
		"status", 200,
		"status_class", "2xx",
		"duration_ms", int64(12),
		"note", "two words",
	)

	line := buf.String()
	for _, want := range []string{
		"lvl=[INFO]",
		"msg=feed.page",
		"consumer_id=c-1",
		"outcome=full",
		"status=200",
		"class=2xx",
		"duration=12ms",
		`note="two words"`,
	} {
		if !strings.Contains(line, want) {
			t.Fatalf("missing %q in %q", want, line)
		}
	}
	if strings.Contains(line, "\x1b[") {
		t.Fatalf("uncolored output must not carry escapes: %q", line)
	}
	if !strings.HasSuffix(line, "\n") {
		t.Fatalf("line must end with newline")
	}
}

func TestPrettyHandler_ColoredLevels(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, nil, true))

	log.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug must be filtered at default level: %q", buf.String())
	}

	log.Error("boom", "status", 503)
	line := buf.String()
	if !strings.Contains(line, "\x1b[") || !strings.Contains(line, "[ERROR]") {
		t.Fatalf("expected colored error line, got %q", line)
	}
}

func TestPrettyHandler_Groups(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, nil, false)).WithGroup("ws")

	log.Info("realtime.publish", slog.Group("listing", "city", "Douala"), "delivered", 3)

	line := buf.String()
	if !strings.Contains(line, "ws.listing.city=Douala") || !strings.Contains(line, "ws.delivered=3") {
		t.Fatalf("unexpected grouping: %q", line)
	}
}

func TestQuoteIfNeeded(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":        `""`,
		"plain":   "plain",
		"a b":     `"a b"`,
		"k=v":     `"k=v"`,
		`say "x"`: `"say \"x\""`,
	}
	for in, want := range cases {
		if got := quoteIfNeeded(in); got != want {
			t.Fatalf("quoteIfNeeded(%q)=%q want=%q", in, got, want)
		}
	}
}

package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/st-eve-code/RealEstate-sub000/cmd/internal/feed"
)

// palette holds the colors used by prettyHandler. Each color has its own
// enable flag so output does not depend on the global color.NoColor.
type palette struct {
	dim, bold                *color.Color
	red, yellow, green, blue *color.Color
	cyan, hiMagenta          *color.Color
}

func newPalette(enabled bool) palette {
	mk := func(attrs ...color.Attribute) *color.Color {
		c := color.New(attrs...)
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c
	}
	return palette{
		dim:       mk(color.Faint),
		bold:      mk(color.Bold),
		red:       mk(color.FgRed),
		yellow:    mk(color.FgYellow),
		green:     mk(color.FgGreen),
		blue:      mk(color.FgBlue),
		cyan:      mk(color.FgCyan),
		hiMagenta: mk(color.FgHiMagenta),
	}
}

// prettyHandler renders records as one key=value line for local development.
type prettyHandler struct {
	w      io.Writer
	opts   slog.HandlerOptions
	attrs  []slog.Attr
	groups []string
	pal    palette
	mu     *sync.Mutex
}

func newPrettyHandler(w io.Writer, opts *slog.HandlerOptions, colored bool) slog.Handler {
	h := &prettyHandler{
		w:   w,
		pal: newPalette(colored),
		mu:  &sync.Mutex{},
	}
	if opts != nil {
		h.opts = *opts
	}
	return h
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	b.WriteString("ts=")
	b.WriteString(h.pal.dim.Sprint(ts.Format("15:04:05.000")))
	b.WriteString(" lvl=")
	b.WriteString(h.levelTag(r.Level))
	b.WriteString(" msg=")
	b.WriteString(h.pal.bold.Sprint(r.Message))

	if h.opts.AddSource && r.PC != 0 {
		frames := runtime.CallersFrames([]uintptr{r.PC})
		frame, _ := frames.Next()
		if frame.File != "" {
			b.WriteString(" src=")
			b.WriteString(h.pal.dim.Sprint(fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)))
		}
	}

	for _, a := range h.attrs {
		h.appendAttr(&b, a, "")
	}
	r.Attrs(func(a slog.Attr) bool {
		h.appendAttr(&b, a, "")
		return true
	})

	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &cp
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	if strings.TrimSpace(name) == "" {
		return h
	}
	cp := *h
	cp.groups = append(append([]string{}, h.groups...), name)
	return &cp
}

func (h *prettyHandler) appendAttr(b *strings.Builder, a slog.Attr, parent string) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	key := strings.TrimSpace(a.Key)
	if key == "" {
		return
	}

	fullKey := key
	if parent != "" {
		fullKey = parent + "." + key
	}
	if len(h.groups) > 0 && parent == "" {
		fullKey = strings.Join(h.groups, ".") + "." + fullKey
	}

	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			h.appendAttr(b, ga, fullKey)
		}
		return
	}

	b.WriteByte(' ')
	b.WriteString(remapPrettyKey(fullKey))
	b.WriteByte('=')
	b.WriteString(h.prettyValue(fullKey, a.Value))
}

func (h *prettyHandler) prettyValue(key string, v slog.Value) string {
	switch key {
	case "method":
		return h.pal.cyan.Sprint(strings.ToUpper(strings.TrimSpace(v.String())))
	case "path":
		return h.pal.cyan.Sprint(strings.TrimSpace(v.String()))
	case "status":
		if n, ok := valueToInt64(v); ok {
			return h.statusColor(int(n)).Sprint(strconv.FormatInt(n, 10))
		}
	case "status_class":
		s := strings.TrimSpace(v.String())
		if len(s) == 3 && s[0] >= '1' && s[0] <= '5' {
			return h.statusColor(int(s[0]-'0') * 100).Sprint(s)
		}
		return s
	case "duration_ms":
		if n, ok := valueToInt64(v); ok {
			return h.durationColor(n).Sprint(strconv.FormatInt(n, 10) + "ms")
		}
	case "result", "outcome":
		return h.resultColor(strings.ToLower(strings.TrimSpace(v.String())))
	}

	return quoteIfNeeded(valueToString(v))
}

func (h *prettyHandler) statusColor(code int) *color.Color {
	switch {
	case code >= http.StatusInternalServerError:
		return h.pal.red
	case code >= http.StatusBadRequest:
		return h.pal.yellow
	case code >= http.StatusMultipleChoices:
		return h.pal.cyan
	default:
		return h.pal.green
	}
}

func (h *prettyHandler) durationColor(ms int64) *color.Color {
	switch {
	case ms >= 1000:
		return h.pal.red
	case ms >= 250:
		return h.pal.yellow
	default:
		return h.pal.dim
	}
}

func (h *prettyHandler) resultColor(s string) string {
	switch s {
	case "success", feed.OutcomeFull:
		return h.pal.green.Sprint(s)
	case "redirect", feed.OutcomeExhausted:
		return h.pal.cyan.Sprint(s)
	case "client_error", feed.OutcomeAttemptsExceeded:
		return h.pal.yellow.Sprint(s)
	case "server_error", feed.OutcomeSourceError:
		return h.pal.red.Sprint(s)
	default:
		return quoteIfNeeded(s)
	}
}

func (h *prettyHandler) levelTag(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return h.pal.red.Sprint("[ERROR]")
	case level >= slog.LevelWarn:
		return h.pal.yellow.Sprint("[WARN]")
	case level < slog.LevelInfo:
		return h.pal.hiMagenta.Sprint("[DEBUG]")
	default:
		return h.pal.blue.Sprint("[INFO]")
	}
}

func remapPrettyKey(k string) string {
	switch k {
	case "status_class":
		return "class"
	case "duration_ms":
		return "duration"
	default:
		return k
	}
}

func valueToInt64(v slog.Value) (int64, bool) {
	switch v.Kind() {
	case slog.KindInt64:
		return v.Int64(), true
	case slog.KindUint64:
		return int64(v.Uint64()), true
	case slog.KindFloat64:
		return int64(v.Float64()), true
	default:
		return 0, false
	}
}

func valueToString(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	default:
		return fmt.Sprint(v.Any())
	}
}

func quoteIfNeeded(s string) string {
	if s == "" {
		return `""`
	}
	if strings.ContainsAny(s, " \t\r\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

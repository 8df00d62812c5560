package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"grimm.is/originguard/internal/brand"
)

// ConsoleHandler writes one human-readable line per record:
//
//	<RFC3339> originguard[pid]: [level] component: msg key=value
type ConsoleHandler struct {
	opts  slog.HandlerOptions
	out   io.Writer
	mu    *sync.Mutex
	attrs []slog.Attr
	name  string
	pid   int
}

// NewConsoleHandler creates a ConsoleHandler.
func NewConsoleHandler(out io.Writer, opts *slog.HandlerOptions) *ConsoleHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	name := brand.LowerName
	if name == "" {
		name = "originguard"
	}
	return &ConsoleHandler{
		out:  out,
		opts: *opts,
		mu:   &sync.Mutex{},
		name: name,
		pid:  os.Getpid(),
	}
}

// Enabled reports whether the handler is enabled for this level.
func (h *ConsoleHandler) Enabled(ctx context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

// Handle formats and writes the record.
func (h *ConsoleHandler) Handle(ctx context.Context, r slog.Record) error {
	t := r.Time
	if t.IsZero() {
		t = time.Now()
	}

	var rest []slog.Attr
	component := ""
	collect := func(a slog.Attr) bool {
		if a.Key == "component" {
			component = strings.ToLower(a.Value.String())
		} else {
			rest = append(rest, a)
		}
		return true
	}
	for _, a := range h.attrs {
		collect(a)
	}
	r.Attrs(collect)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s[%d]: [%s] ", t.Format(time.RFC3339), h.name, h.pid, strings.ToLower(r.Level.String()))
	if component != "" {
		sb.WriteString(component)
		sb.WriteString(": ")
	}
	sb.WriteString(r.Message)
	for _, a := range rest {
		sb.WriteByte(' ')
		writeAttr(&sb, a)
	}
	sb.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, sb.String())
	return err
}

func writeAttr(sb *strings.Builder, a slog.Attr) {
	sb.WriteString(a.Key)
	sb.WriteByte('=')
	var val string
	switch v := a.Value.Resolve(); v.Kind() {
	case slog.KindDuration:
		val = v.Duration().Round(time.Millisecond).String()
	case slog.KindTime:
		val = v.Time().Format(time.RFC3339)
	default:
		val = v.String()
	}
	if val == "" || strings.ContainsAny(val, " \t\n\"=") {
		val = fmt.Sprintf("%q", val)
	}
	sb.WriteString(val)
}

// WithAttrs returns a new handler with the given attributes.
func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append(make([]slog.Attr, 0, len(h.attrs)+len(attrs)), h.attrs...), attrs...)
	return &clone
}

// WithGroup returns the handler unchanged; console output is flat.
func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	return h
}

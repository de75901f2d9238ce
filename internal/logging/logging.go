// Package logging configures the process-wide slog.Logger the reactor and
// every subsystem (loop, accept, transport, binding) log through (spec.md
// §2 "ambient stack: structured logging").
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config controls how Configure builds the root logger: plain text for a
// terminal, JSON for log shipping, plus the fields every line in this
// process should carry (pid, deployment tags).
type Config struct {
	Level            string
	Structured       bool
	StructuredFormat string
	IncludePID       bool
	ExtraFields      map[string]string
}

// Configure builds the root *slog.Logger from cfg, installs it as
// slog.Default (so packages that reach for slog.Info/Error directly before
// a logger is threaded through still land in the same sink), and returns it
// for explicit wiring into cmd/serveez's components.
func Configure(cfg Config) *slog.Logger {
	handler := newHandler(os.Stderr, cfg)
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// newHandler picks a JSON or text slog.Handler per cfg.StructuredFormat and
// attaches the process-wide attrs (pid, operator-supplied extra fields)
// that belong on every record rather than being repeated at each call site.
func newHandler(out io.Writer, cfg Config) slog.Handler {
	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Structured && strings.ToLower(cfg.StructuredFormat) == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	if attrs := rootAttrs(cfg); len(attrs) > 0 {
		handler = handler.WithAttrs(attrs)
	}
	return handler
}

// rootAttrs builds the set of attrs attached to every record: the
// operator's extra fields, then pid last if requested, matching the order
// they'd be read in a log line (context first, process identity last).
func rootAttrs(cfg Config) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(cfg.ExtraFields)+1)
	for k, v := range cfg.ExtraFields {
		attrs = append(attrs, slog.String(k, v))
	}
	if cfg.IncludePID {
		attrs = append(attrs, slog.Int("pid", os.Getpid()))
	}
	return attrs
}

// parseLevel maps a case-insensitive level name to a slog.Level, defaulting
// to info for anything unrecognized rather than failing startup over a
// logging typo.
func parseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

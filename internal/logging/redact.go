// Package logging builds the application slog handlers.
package logging

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"strings"
)

// Redacted replaces any attribute value that must not reach a log sink.
const Redacted = "[REDACTED]"

// DefaultRedactedKeys lists attribute names whose values are always replaced.
var DefaultRedactedKeys = []string{
	"passphrase",
	"password",
	"api_key",
	"apikey",
	"credential",
	"plaintext",
	"private_key",
	"secret",
	"token",
	"authorization",
}

// defaultPatterns match provider key shapes that may appear inside free-form values.
var defaultPatterns = []*regexp.Regexp{
	regexp.MustCompile(`AGE-SECRET-KEY-1[0-9A-Z]+`),
	regexp.MustCompile(`sk-[A-Za-z0-9_\-]{16,}`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._\-]+`),
}

// RedactingHandler wraps a slog.Handler and scrubs secret-looking attributes.
type RedactingHandler struct {
	next     slog.Handler
	keys     map[string]struct{}
	patterns []*regexp.Regexp
}

// NewRedactingHandler wraps next with the default key list and value patterns.
func NewRedactingHandler(next slog.Handler) *RedactingHandler {
	keys := make(map[string]struct{}, len(DefaultRedactedKeys))
	for _, k := range DefaultRedactedKeys {
		keys[k] = struct{}{}
	}
	return &RedactingHandler{next: next, keys: keys, patterns: defaultPatterns}
}

// NewLogger returns a JSON logger at the given level with redaction applied.
func NewLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(NewRedactingHandler(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})))
}

// Enabled implements slog.Handler.
func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, h.scrub(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.redact(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

// WithAttrs implements slog.Handler.
func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = h.redact(a)
	}
	return &RedactingHandler{next: h.next.WithAttrs(redacted), keys: h.keys, patterns: h.patterns}
}

// WithGroup implements slog.Handler.
func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{next: h.next.WithGroup(name), keys: h.keys, patterns: h.patterns}
}

func (h *RedactingHandler) redact(a slog.Attr) slog.Attr {
	if h.sensitiveKey(a.Key) {
		return slog.String(a.Key, Redacted)
	}

	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindGroup:
		group := v.Group()
		attrs := make([]any, len(group))
		for i, ga := range group {
			attrs[i] = h.redact(ga)
		}
		return slog.Group(a.Key, attrs...)
	case slog.KindString:
		return slog.String(a.Key, h.scrub(v.String()))
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return slog.String(a.Key, h.scrub(err.Error()))
		}
	}
	return slog.Attr{Key: a.Key, Value: v}
}

func (h *RedactingHandler) sensitiveKey(key string) bool {
	_, ok := h.keys[strings.ToLower(key)]
	return ok
}

func (h *RedactingHandler) scrub(s string) string {
	for _, re := range h.patterns {
		s = re.ReplaceAllString(s, Redacted)
	}
	return s
}

// Package logger configures the process-wide slog logger and carries
// request-scoped attributes through contexts.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type fieldsKey struct{}

// fields are the attributes accumulated on a context. requestID is kept
// apart so middleware can echo it in responses.
type fields struct {
	requestID string
	attrs     []any
}

// Setup installs the default logger on stdout.
func Setup(level, format string) {
	SetupWriter(os.Stdout, level, format)
}

// SetupWriter installs the default logger on w. The CLI passes stderr so
// command output stays machine readable. Debug logs carry source lines.
func SetupWriter(w io.Writer, level, format string) {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{Level: lvl, AddSource: lvl <= slog.LevelDebug}
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
}

// ParseLevel accepts slog level names in any case, with offsets such as
// "debug+2". Anything unparseable is info.
func ParseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func fieldsFrom(ctx context.Context) fields {
	f, _ := ctx.Value(fieldsKey{}).(fields)
	return f
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	f := fieldsFrom(ctx)
	f.requestID = requestID
	return context.WithValue(ctx, fieldsKey{}, f)
}

func RequestID(ctx context.Context) string {
	return fieldsFrom(ctx).requestID
}

// With returns a context whose FromContext logger also carries args.
func With(ctx context.Context, args ...any) context.Context {
	f := fieldsFrom(ctx)
	f.attrs = append(f.attrs[:len(f.attrs):len(f.attrs)], args...)
	return context.WithValue(ctx, fieldsKey{}, f)
}

// FromContext returns the default logger with the context's attributes.
func FromContext(ctx context.Context) *slog.Logger {
	f := fieldsFrom(ctx)
	l := slog.Default()
	if f.requestID != "" {
		l = l.With("request_id", f.requestID)
	}
	if len(f.attrs) > 0 {
		l = l.With(f.attrs...)
	}
	return l
}

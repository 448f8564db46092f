// Package logger builds slog loggers with consistent defaults: JSON output
// for deployed environments, text for local development, and a service name
// attached to every record.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// Format selects the handler's output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config is loaded from the environment by the caller.
type Config struct {
	Level  slog.Level `env:"LOG_LEVEL" envDefault:"info"`
	Format Format     `env:"LOG_FORMAT" envDefault:"json"`
}

// Option adjusts logger construction.
type Option func(*settings)

type settings struct {
	level  slog.Level
	format Format
	output io.Writer
	attrs  []slog.Attr
}

func WithLevel(l slog.Level) Option {
	return func(s *settings) { s.level = l }
}

func WithFormat(f Format) Option {
	return func(s *settings) { s.format = f }
}

// WithOutput sets the destination writer. Nil writers are ignored.
func WithOutput(w io.Writer) Option {
	return func(s *settings) {
		if w != nil {
			s.output = w
		}
	}
}

// WithAttrs attaches static attributes to every record.
func WithAttrs(attrs ...slog.Attr) Option {
	return func(s *settings) { s.attrs = append(s.attrs, attrs...) }
}

// New builds a logger for the named service. Unknown formats fall back to
// JSON so a typo in LOG_FORMAT never silences production logs.
func New(service string, cfg Config, opts ...Option) *slog.Logger {
	s := settings{
		level:  cfg.Level,
		format: cfg.Format,
		output: os.Stdout,
	}
	for _, opt := range opts {
		opt(&s)
	}

	handlerOpts := &slog.HandlerOptions{Level: s.level}

	var h slog.Handler
	switch s.format {
	case FormatText:
		h = slog.NewTextHandler(s.output, handlerOpts)
	default:
		h = slog.NewJSONHandler(s.output, handlerOpts)
	}

	attrs := make([]slog.Attr, 0, len(s.attrs)+1)
	if service != "" {
		attrs = append(attrs, slog.String("service", service))
	}
	attrs = append(attrs, s.attrs...)
	if len(attrs) > 0 {
		h = h.WithAttrs(attrs)
	}

	return slog.New(h)
}

// Error wraps err under the conventional "error" key. A nil err yields an
// empty attribute that slog drops.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID records the user identifier under "user_id".
func UserID(id string) slog.Attr {
	return slog.String("user_id", id)
}

// SubscriptionID records the provider subscription identifier.
func SubscriptionID(id string) slog.Attr {
	return slog.String("subscription_id", id)
}

package billing

import (
	"log/slog"
	"time"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*service)

// WithLogger sets the service logger. Nil loggers are ignored.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides the time source, letting tests pin the evaluation
// instant the grace-period comparison uses.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithReplayGuard enables webhook redelivery detection. Without a guard every
// delivery is processed; that is safe but wasteful.
func WithReplayGuard(guard ReplayGuard) ServiceOption {
	return func(s *service) {
		s.guard = guard
	}
}

// WithNotifier enables best-effort customer notifications on payment failure
// and expiry.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *service) {
		s.notifier = n
	}
}

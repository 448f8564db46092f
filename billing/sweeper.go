package billing

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/subsync/pkg/logger"
	"github.com/dmitrymomot/subsync/pkg/metrics"
)

// Sweeper owns the periodic sweep lifecycle. It runs the expiry sweep on
// every tick, the drift sweep on every Nth tick, and once shortly after
// process start, so grace-period expiries are caught even when no webhook
// ever arrives.
//
// Start blocks until the context is cancelled; run it in its own goroutine
// and cancel the context to stop. Trigger forces an immediate pass, which is
// what the force-sweep endpoint and tests use instead of waiting on the wall
// clock.
type Sweeper struct {
	svc      Service
	interval time.Duration
	initial  time.Duration
	driftNth int
	log      *slog.Logger
	trigger  chan struct{}
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweeperLogger sets the sweeper logger. Nil loggers are ignored.
func WithSweeperLogger(log *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		if log != nil {
			s.log = log
		}
	}
}

// NewSweeper creates a Sweeper driving the given service.
// Panics on a nil service to fail fast during initialization.
func NewSweeper(svc Service, cfg Config, opts ...SweeperOption) *Sweeper {
	if svc == nil {
		panic("billing: Sweeper requires a service")
	}

	s := &Sweeper{
		svc:      svc,
		interval: cfg.SweepInterval,
		initial:  cfg.SweepInitialDelay,
		driftNth: cfg.DriftSweepEvery,
		log:      slog.Default(),
		trigger:  make(chan struct{}),
	}
	if s.interval <= 0 {
		s.interval = time.Hour
	}
	if s.driftNth <= 0 {
		s.driftNth = 1
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the sweep loop until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	initial := time.NewTimer(s.initial)
	defer initial.Stop()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			s.log.InfoContext(ctx, "sweeper shutting down")
			return ctx.Err()
		case <-initial.C:
			s.run(ctx, true)
		case <-ticker.C:
			tick++
			s.run(ctx, tick%s.driftNth == 0)
		case <-s.trigger:
			s.run(ctx, false)
		}
	}
}

// Trigger requests an immediate sweep pass. It blocks until the running loop
// accepts the request or ctx is cancelled.
func (s *Sweeper) Trigger(ctx context.Context) error {
	select {
	case s.trigger <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sweeper) run(ctx context.Context, withDrift bool) {
	metrics.SweepRuns.WithLabelValues("expired").Inc()
	if report, err := s.svc.SweepExpired(ctx); err != nil {
		s.log.ErrorContext(ctx, "expiry sweep failed", logger.Error(err))
	} else if report.Checked > 0 {
		s.log.InfoContext(ctx, "expiry sweep finished",
			slog.Int("checked", report.Checked),
			slog.Int("updated", report.Updated),
			slog.Int("failed", report.Failed))
	}

	if !withDrift {
		return
	}

	metrics.SweepRuns.WithLabelValues("drift").Inc()
	if report, err := s.svc.SweepDrift(ctx); err != nil {
		s.log.ErrorContext(ctx, "drift sweep failed", logger.Error(err))
	} else if report.Checked > 0 {
		s.log.InfoContext(ctx, "drift sweep finished",
			slog.Int("checked", report.Checked),
			slog.Int("updated", report.Updated),
			slog.Int("failed", report.Failed))
	}
}

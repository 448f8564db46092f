package billing

import "time"

// Config holds billing service configuration.
type Config struct {
	// DefaultPriceID is the provider price used when a checkout request does
	// not name a product.
	DefaultPriceID string `env:"BILLING_PRICE_ID,required"`
	SuccessURL     string `env:"BILLING_SUCCESS_URL,required"`
	CancelURL      string `env:"BILLING_CANCEL_URL"`

	// WebhookReplayTTL is how long webhook event IDs are remembered for
	// redelivery detection.
	WebhookReplayTTL time.Duration `env:"BILLING_WEBHOOK_REPLAY_TTL" envDefault:"24h"`

	// SweepInterval is the fixed period between sweep ticks; the first tick
	// runs SweepInitialDelay after process start.
	SweepInterval     time.Duration `env:"BILLING_SWEEP_INTERVAL" envDefault:"1h"`
	SweepInitialDelay time.Duration `env:"BILLING_SWEEP_INITIAL_DELAY" envDefault:"30s"`

	// DriftSweepEvery runs the provider re-fetch sweep on every Nth tick.
	DriftSweepEvery int `env:"BILLING_DRIFT_SWEEP_EVERY" envDefault:"6"`

	// DriftRequestDelay is the fixed pause between provider fetches during
	// the drift sweep, to respect the provider's rate limit.
	DriftRequestDelay time.Duration `env:"BILLING_DRIFT_REQUEST_DELAY" envDefault:"500ms"`
}

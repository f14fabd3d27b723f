package config

import "time"

// ReconcilerConfig holds production timer reconciler configuration
type ReconcilerConfig struct {
	// Countdown derivation interval
	TickInterval time.Duration `mapstructure:"tick_interval"`
}

// QueueConfig holds offline action queue configuration
type QueueConfig struct {
	// Retry ceiling per queued action before it is abandoned
	MaxAttempts int `mapstructure:"max_attempts" validate:"min=1"`

	// Base delay between attempts (scales linearly with attempt number)
	BackoffBase time.Duration `mapstructure:"backoff_base"`
}

// RealtimeConfig holds change subscription configuration
type RealtimeConfig struct {
	// Enable the websocket change feed; when false the daemon polls
	Enabled bool `mapstructure:"enabled"`

	// Websocket URL of the change feed
	URL string `mapstructure:"url" validate:"omitempty,url"`

	// Poll interval used when the change feed is disabled or down
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

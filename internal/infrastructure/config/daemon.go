package config

import "time"

// DaemonConfig holds daemon process configuration
type DaemonConfig struct {
	// PID file path for single-instance enforcement
	PIDFile string `mapstructure:"pid_file"`

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

package config

import (
	"strings"
	"time"

	"github.com/marmos91/coordcore/internal/bytesize"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields. It is called after loading configuration from file and
// environment variables to fill in any missing values with sensible
// defaults.
//
// Default strategy: zero values (0, "", false, nil) are replaced with
// defaults; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	applyStorageDefaults(&cfg.Storage)
	applyExchangeDefaults(&cfg.Exchange)
	applySessionDefaults(&cfg.Session)

	if cfg.ListenAddress == "" {
		cfg.ListenAddress = "0.0.0.0:7070"
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation.
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// Enabled defaults to false (opt-in for telemetry).

	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	// Enabled defaults to false (opt-in for profiling).

	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Port defaults to 9090 if metrics are enabled.
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyStorageDefaults sets storage backend defaults.
func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Backend == "" {
		cfg.Backend = "memory"
	}
	if cfg.Badger.Path == "" {
		cfg.Badger.Path = "/var/lib/coordcore/badger"
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = 5432
	}
	if cfg.Postgres.SSLMode == "" {
		cfg.Postgres.SSLMode = "disable"
	}
	if cfg.Postgres.MaxOpenConns == 0 {
		cfg.Postgres.MaxOpenConns = 25
	}
	if cfg.Postgres.MaxIdleConns == 0 {
		cfg.Postgres.MaxIdleConns = 5
	}
	if cfg.MaxValueSize == 0 {
		cfg.MaxValueSize = bytesize.MiB
	}
}

// applyExchangeDefaults sets exchange transport defaults.
func applyExchangeDefaults(cfg *ExchangeConfig) {
	if cfg.Transport == "" {
		cfg.Transport = "local"
	}
	if cfg.GRPC.ListenAddress == "" {
		cfg.GRPC.ListenAddress = "0.0.0.0:7071"
	}
}

// applySessionDefaults sets session lease and grace-period defaults.
func applySessionDefaults(cfg *SessionConfig) {
	if cfg.LeaseDuration == 0 {
		cfg.LeaseDuration = 30 * time.Second
	}
	if cfg.BlockingTimeout == 0 {
		cfg.BlockingTimeout = 60 * time.Second
	}
	if cfg.GracePeriodDuration == 0 {
		cfg.GracePeriodDuration = 90 * time.Second
	}
}

// GetDefaultConfig returns a Config struct with all default values
// applied. Useful for generating sample configuration files and for
// tests.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

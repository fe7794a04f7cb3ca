package config

import (
	"strings"
	"testing"
)

func TestValidateValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Errorf("expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidateInvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidateInvalidLogFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for invalid log format")
	}
}

func TestValidateInvalidMetricsPort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Metrics.Port = 70000 // out of range

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error for port out of range")
	}
	if !strings.Contains(err.Error(), "max") {
		t.Errorf("expected 'max' validation error, got: %v", err)
	}
}

func TestValidateMissingListenAddress(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.ListenAddress = ""

	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for missing listen address")
	}
}

func TestValidateInvalidStorageBackend(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Storage.Backend = "dbase3"

	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for unknown storage backend")
	}
}

func TestValidatePostgresRequiresHostAndDatabase(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Storage.Backend = "postgres"

	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for postgres backend missing host/database")
	}
}

func TestValidateGRPCExchangeRequiresListenAddress(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Exchange.Transport = "grpc"
	cfg.Exchange.GRPC.ListenAddress = ""

	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for grpc exchange missing listen address")
	}
}

func TestValidateGRPCExchangeCredentialSecretTooShort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Exchange.Transport = "grpc"
	cfg.Exchange.GRPC.ListenAddress = "0.0.0.0:7071"
	cfg.Exchange.GRPC.CredentialSecret = "too-short"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error for short credential secret")
	}
	if !strings.Contains(err.Error(), "min") {
		t.Errorf("expected 'min' validation error, got: %v", err)
	}
}

func TestValidateTelemetrySampleRate(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.SampleRate = 1.5 // out of range (should be 0.0-1.0)

	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for sample rate out of range")
	}
}

func TestValidateLogLevelNormalization(t *testing.T) {
	// Validation accepts both uppercase and lowercase log levels.
	testCases := []string{"info", "INFO", "debug", "DEBUG", "warn", "WARN", "error", "ERROR"}

	for _, level := range testCases {
		cfg := GetDefaultConfig()
		cfg.Logging.Level = level

		if err := Validate(cfg); err != nil {
			t.Errorf("validation failed for level %q: %v", level, err)
		}
		// Validation does not normalize; the level stays as-is.
		if cfg.Logging.Level != level {
			t.Errorf("expected level to remain %q after validation, got %q", level, cfg.Logging.Level)
		}
	}

	// Normalization happens in ApplyDefaults, not Validate.
	cfg := &Config{Logging: LoggingConfig{Level: "info"}}
	ApplyDefaults(cfg)
	if cfg.Logging.Level != "INFO" {
		t.Errorf("expected ApplyDefaults to normalize 'info' to 'INFO', got %q", cfg.Logging.Level)
	}
}

package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks cfg against its `validate` struct tags and a handful of
// cross-field rules the tags can't express (e.g. backend-specific
// required fields).
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	switch cfg.Storage.Backend {
	case "badger":
		if cfg.Storage.Badger.Path == "" {
			return fmt.Errorf("storage.badger.path is required when storage.backend is \"badger\"")
		}
	case "postgres":
		if cfg.Storage.Postgres.Host == "" || cfg.Storage.Postgres.Database == "" {
			return fmt.Errorf("storage.postgres.host and storage.postgres.database are required when storage.backend is \"postgres\"")
		}
	}

	if cfg.Exchange.Transport == "grpc" && cfg.Exchange.GRPC.ListenAddress == "" {
		return fmt.Errorf("exchange.grpc.listen_address is required when exchange.transport is \"grpc\"")
	}

	return nil
}

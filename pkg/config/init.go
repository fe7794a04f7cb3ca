package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// configTemplate is the commented YAML scaffold written by InitConfig. It
// documents every section a deployer is expected to look at; values left
// out here are filled in by ApplyDefaults at load time.
const configTemplate = `# Coordination core configuration file

listen_address: "0.0.0.0:7070"
shutdown_timeout: 30s

logging:
  level: "INFO"
  format: "text"
  output: "stdout"

metrics:
  enabled: true
  port: 9090

# storage.backend selects the entry/session persistence layer:
# "memory" (single-process, no durability), "badger" (embedded,
# single-node durable), or "postgres" (shared, multi-node durable).
storage:
  backend: memory
  badger:
    path: "/var/lib/coordcore/badger"
  postgres:
    host: ""
    port: 5432
    database: ""
    user: ""
    ssl_mode: disable

# exchange.transport selects how lock-release notifications cross
# process boundaries: "local" (single process only) or "grpc" (fan out
# to peers).
exchange:
  transport: local
  grpc:
    listen_address: "0.0.0.0:7071"
    peers: []
    # credential_secret: at least 32 bytes, signs the token each outbound
    # peer stream presents. Leave unset to disable credential checking.
    # credential_secret: ""

session:
  lease_duration: 30s
  blocking_timeout: 60s
  grace_period: 90s

telemetry:
  enabled: false
  endpoint: "localhost:4317"
  insecure: true
  sample_rate: 1.0
`

// InitConfig writes a fresh configuration file to the default location
// (honoring XDG_CONFIG_HOME) and returns its path. If force is false and a
// config file already exists there, it returns an error instead of
// overwriting it.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a fresh configuration file to path. If force is
// false and a file already exists at path, it returns an error instead of
// overwriting it.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

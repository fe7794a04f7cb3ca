package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "INFO"

listen_address: "0.0.0.0:7070"
shutdown_timeout: 30s

storage:
  backend: memory
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Logging.Format != "text" {
		t.Errorf("expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("expected default output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("expected default shutdown_timeout 30s, got %v", cfg.ShutdownTimeout)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("expected storage backend 'memory', got %q", cfg.Storage.Backend)
	}
}

func TestLoadNoConfigFile(t *testing.T) {
	// Loading with no config file returns a valid default config, so the
	// server can run without one for quick testing.
	tmpDir := t.TempDir()
	nonExistentPath := filepath.Join(tmpDir, "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("expected no error when loading default config, got: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected default config to be returned")
	}
	if cfg.ListenAddress != "0.0.0.0:7070" {
		t.Errorf("expected default listen address, got %q", cfg.ListenAddress)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	configContent := `
logging:
  level: INFO
  invalid yaml here [[[
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Fatal("expected error with invalid YAML, got nil")
	}
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Logging.Level != "INFO" {
		t.Errorf("expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("expected default shutdown timeout 30s, got %v", cfg.ShutdownTimeout)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("expected default storage backend 'memory', got %q", cfg.Storage.Backend)
	}
	if cfg.Exchange.Transport != "local" {
		t.Errorf("expected default exchange transport 'local', got %q", cfg.Exchange.Transport)
	}
	if cfg.Session.LeaseDuration != 30*time.Second {
		t.Errorf("expected default lease duration 30s, got %v", cfg.Session.LeaseDuration)
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	path := GetDefaultConfigPath()

	if !filepath.IsAbs(path) {
		t.Errorf("expected absolute path, got %q", path)
	}
	if filepath.Base(path) != "config.yaml" {
		t.Errorf("expected filename 'config.yaml', got %q", filepath.Base(path))
	}
}

func TestGetConfigDir(t *testing.T) {
	dir := GetConfigDir()

	if filepath.Base(dir) != "coordcore" {
		t.Errorf("expected directory name 'coordcore', got %q", filepath.Base(dir))
	}
}

func TestLoadEnvironmentVariables(t *testing.T) {
	_ = os.Setenv("COORDCORE_LOGGING_LEVEL", "ERROR")
	_ = os.Setenv("COORDCORE_LISTEN_ADDRESS", "127.0.0.1:9999")
	defer func() {
		_ = os.Unsetenv("COORDCORE_LOGGING_LEVEL")
		_ = os.Unsetenv("COORDCORE_LISTEN_ADDRESS")
	}()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "INFO"

listen_address: "0.0.0.0:7070"
shutdown_timeout: 30s

storage:
  backend: memory
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Logging.Level != "ERROR" {
		t.Errorf("expected level 'ERROR' from env var, got %q", cfg.Logging.Level)
	}
	if cfg.ListenAddress != "127.0.0.1:9999" {
		t.Errorf("expected listen address from env var, got %q", cfg.ListenAddress)
	}
}

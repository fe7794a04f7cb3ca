package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/marmos91/coordcore/internal/bytesize"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the coordination core's static configuration.
//
// This structure captures everything the server needs before it starts
// accepting sessions:
//   - Logging and telemetry configuration
//   - Server settings (listen address, shutdown timeout, metrics)
//   - Storage backend selection (in-memory, Badger, or PostgreSQL)
//   - Exchange transport selection (in-process bus or gRPC peer fanout)
//   - Session lease and post-restart grace period tuning
//
// Configuration sources (in order of precedence):
//  1. Environment variables (COORDCORE_*) (highest priority)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
//
// No individual setting can be overridden by a CLI flag; flags only
// choose which configuration file is read.
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ListenAddress is the node's configured service address (e.g.
	// "0.0.0.0:7070"). coordd logs it at startup; it does not open a
	// listener on it.
	ListenAddress string `mapstructure:"listen_address" validate:"required" yaml:"listen_address"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Metrics contains Prometheus metrics server configuration.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Storage selects and configures the persistent entry/session backend.
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Exchange selects and configures cross-process lock-release notification.
	Exchange ExchangeConfig `mapstructure:"exchange" yaml:"exchange"`

	// Session contains lease and grace-period tuning.
	Session SessionConfig `mapstructure:"session" yaml:"session"`
}

// StorageConfig selects the entry/session storage backend.
type StorageConfig struct {
	// Backend selects the storage implementation.
	// Valid values: "memory", "badger", "postgres"
	Backend string `mapstructure:"backend" validate:"required,oneof=memory badger postgres" yaml:"backend"`

	// Badger configures the embedded Badger backend. Only used when
	// Backend is "badger".
	Badger BadgerConfig `mapstructure:"badger" yaml:"badger"`

	// Postgres configures the PostgreSQL backend. Only used when Backend
	// is "postgres".
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`

	// MaxValueSize caps the size of a single entry's value. Requests
	// exceeding this are rejected before they reach the backend.
	// Supports human-readable formats: "1MB", "512Ki".
	// Default: 1MiB
	MaxValueSize bytesize.ByteSize `mapstructure:"max_value_size" yaml:"max_value_size,omitempty"`
}

// BadgerConfig configures the embedded Badger storage backend.
type BadgerConfig struct {
	// Path is the directory Badger stores its LSM tree and value log in.
	Path string `mapstructure:"path" yaml:"path"`
}

// PostgresConfig configures the PostgreSQL storage backend.
type PostgresConfig struct {
	Host         string `mapstructure:"host" yaml:"host"`
	Port         int    `mapstructure:"port" yaml:"port"`
	Database     string `mapstructure:"database" yaml:"database"`
	User         string `mapstructure:"user" yaml:"user"`
	Password     string `mapstructure:"password" yaml:"password,omitempty"`
	SSLMode      string `mapstructure:"ssl_mode" yaml:"ssl_mode"`
	MaxOpenConns int    `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
}

// ExchangeConfig selects the cross-process wait/exchange transport.
type ExchangeConfig struct {
	// Transport selects the exchange implementation.
	// Valid values: "local" (single-process, in-memory bus),
	// "grpc" (peer-to-peer notification fanout over gRPC)
	Transport string `mapstructure:"transport" validate:"required,oneof=local grpc" yaml:"transport"`

	// GRPC configures the gRPC transport. Only used when Transport is
	// "grpc".
	GRPC GRPCExchangeConfig `mapstructure:"grpc" yaml:"grpc"`
}

// GRPCExchangeConfig configures the gRPC exchange transport.
type GRPCExchangeConfig struct {
	// ListenAddress is the address this node accepts peer notification
	// streams on (e.g. "0.0.0.0:7071").
	ListenAddress string `mapstructure:"listen_address" yaml:"listen_address"`

	// Peers is the set of other nodes' exchange addresses to fan
	// notifications out to.
	Peers []string `mapstructure:"peers" yaml:"peers,omitempty"`

	// CredentialSecret signs the token each outbound peer stream presents,
	// binding the connection to this node's identity so a peer can reject
	// a stream claiming an identity it never issued. Empty disables
	// credential checking; must be at least 32 bytes when set.
	CredentialSecret string `mapstructure:"credential_secret" yaml:"credential_secret,omitempty" validate:"omitempty,min=32"`
}

// SessionConfig contains lease and grace-period tuning.
type SessionConfig struct {
	// LeaseDuration is a session lease length. It is loaded and defaulted
	// here, but no component reads it: callers of TryBegin and Update pass
	// their own lease end.
	// Default: 30s
	LeaseDuration time.Duration `mapstructure:"lease_duration" yaml:"lease_duration"`

	// BlockingTimeout is a timeout for blocking lock and wait requests. It
	// is loaded and defaulted here, but no component reads it.
	// Default: 60s
	BlockingTimeout time.Duration `mapstructure:"blocking_timeout" yaml:"blocking_timeout"`

	// GracePeriodDuration is the duration of the reclaim window opened at
	// boot for sessions that owned locks before restart.
	// Default: 90s
	GracePeriodDuration time.Duration `mapstructure:"grace_period" yaml:"grace_period"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format.
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written.
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector
// (e.g., Jaeger, Tempo, or any OTLP receiver).
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled.
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port).
	// Default: "localhost:4317" (standard OTLP gRPC port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use an insecure (non-TLS) connection.
	// Default: true (for local development)
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0).
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration.
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL).
	// Default: "http://localhost:4040"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect.
	// Default: ["cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space", "goroutines"]
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection and the HTTP server are enabled.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint.
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (COORDCORE_*)
//  2. Configuration file
//  3. Default values
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages. It checks if
// the config file exists and provides user-friendly instructions if not.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  coordctl init\n\n"+
				"Or specify a custom config file:\n"+
				"  coordd --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  coordctl init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML
// format.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: config may carry a postgres password.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variable and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the COORDCORE_ prefix.
	// Example: COORDCORE_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("COORDCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. Returns
// (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and integers to bytesize.ByteSize.
// This enables config files to use human-readable sizes like "1Gi",
// "500Mi", "100MB", or plain numbers.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64.
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings like "30s", "5m", "1h" to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64.
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "coordcore")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "coordcore")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	path := GetDefaultConfigPath()
	_, err := os.Stat(path)
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for the
// init command).
func GetConfigDir() string {
	return getConfigDir()
}

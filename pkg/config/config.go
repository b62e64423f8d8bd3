// Package config loads, defaults, validates, and materializes the depositd
// configuration: the record store, the target repositories with their
// transport and packaging settings, the pipeline tuning knobs, and the
// ambient server concerns (logging, telemetry, metrics, admin API).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/marmos91/depositd/internal/bytesize"
	"github.com/marmos91/depositd/pkg/api"
	"github.com/marmos91/depositd/pkg/deposit"
	"github.com/marmos91/depositd/pkg/ingress"
	"github.com/marmos91/depositd/pkg/status"
	httpstore "github.com/marmos91/depositd/pkg/store/http"
	pgstore "github.com/marmos91/depositd/pkg/store/postgres"
	sqlstore "github.com/marmos91/depositd/pkg/store/sql"
	"github.com/marmos91/depositd/pkg/transport/ftp"
	"github.com/marmos91/depositd/pkg/transport/fsys"
	"github.com/marmos91/depositd/pkg/transport/s3"
	"github.com/marmos91/depositd/pkg/transport/sword"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the full depositd configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (DEPOSITD_*)
//  2. Configuration file (YAML)
//  3. Default values
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing and Pyroscope
	// continuous profiling.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Store selects and configures the shared record store backend.
	Store StoreConfig `mapstructure:"store" yaml:"store"`

	// Repositories maps repository keys (as referenced by deposit records)
	// to their transport and packaging configuration.
	Repositories map[string]RepositoryConfig `mapstructure:"repositories" validate:"dive" yaml:"repositories"`

	// Transports holds the protocol-level transport settings shared by
	// every repository on that protocol. Per-repository differences travel
	// in each repository's connection block.
	Transports TransportsConfig `mapstructure:"transports" yaml:"transports"`

	// Pool tunes the deposit worker pool.
	Pool deposit.PoolConfig `mapstructure:"pool" yaml:"pool"`

	// Poller tunes the per-deposit status polling backoff.
	Poller status.PollerConfig `mapstructure:"poller" yaml:"poller"`

	// Aggregator tunes the submission status roll-up sweep.
	Aggregator status.AggregatorConfig `mapstructure:"aggregator" yaml:"aggregator"`

	// Ingress tunes the change-event queue.
	Ingress ingress.Config `mapstructure:"ingress" yaml:"ingress"`

	// Scan tunes the record-store poll source that recovers lost events.
	Scan ingress.PollSourceConfig `mapstructure:"scan" yaml:"scan"`

	// API configures the admin REST API server.
	API api.APIConfig `mapstructure:"api" yaml:"api"`

	// Metrics configures the Prometheus metrics server.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Admin holds the admin credential used by the API.
	Admin AdminConfig `mapstructure:"admin" yaml:"admin"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format.
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written.
	// Valid values: stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled.
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port).
	// Default: "localhost:4317"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection.
	// Default: true (for local development)
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0).
	// Default: 1.0 (sample all)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration.
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled.
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL).
	// Default: "http://localhost:4040"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect.
	// Valid values: cpu, alloc_objects, alloc_space, inuse_objects,
	// inuse_space, goroutines, mutex_count, mutex_duration, block_count,
	// block_duration
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection and the HTTP server are
	// enabled.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint.
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// StoreConfig selects the record store backend and carries its settings.
type StoreConfig struct {
	// Type selects the backend.
	// Valid values: memory, badger, sql, postgres, http
	Type string `mapstructure:"type" validate:"required,oneof=memory badger sql postgres http" yaml:"type"`

	// Badger configures the embedded BadgerDB backend.
	Badger BadgerStoreConfig `mapstructure:"badger" yaml:"badger,omitempty"`

	// SQL configures the GORM backend (SQLite or PostgreSQL).
	SQL sqlstore.Config `mapstructure:"sql" yaml:"sql,omitempty"`

	// Postgres configures the native pgx backend.
	Postgres pgstore.Config `mapstructure:"postgres" yaml:"postgres,omitempty"`

	// HTTP configures the remote record-store client.
	HTTP httpstore.Config `mapstructure:"http" yaml:"http,omitempty"`
}

// BadgerStoreConfig configures the embedded BadgerDB record store.
type BadgerStoreConfig struct {
	// Path is the BadgerDB data directory.
	Path string `mapstructure:"path" yaml:"path"`
}

// TransportsConfig holds per-protocol transport settings.
type TransportsConfig struct {
	SWORD      sword.Config `mapstructure:"sword" yaml:"sword,omitempty"`
	FTP        ftp.Config   `mapstructure:"ftp" yaml:"ftp,omitempty"`
	Filesystem fsys.Config  `mapstructure:"filesystem" yaml:"filesystem,omitempty"`
	S3         s3.Config    `mapstructure:"s3" yaml:"s3,omitempty"`
}

// AdminConfig holds the admin credential used by the API.
// It is pre-configured by 'depositd init'.
type AdminConfig struct {
	// Username is the admin username.
	// Default: "admin"
	Username string `mapstructure:"username" yaml:"username"`

	// PasswordHash is the bcrypt hash of the admin password, generated
	// during 'depositd init'.
	PasswordHash string `mapstructure:"password_hash" yaml:"password_hash,omitempty"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DEPOSITD_*)
//  2. Configuration file
//  3. Default values
func Load(configPath string) (*Config, error) {
	// A non-dot key delimiter keeps URI map keys intact: status-map terms
	// like "http://dspace.org/state/archived" contain dots and must not be
	// split into nested keys.
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	// If no config file was found, use defaults
	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	// Unmarshal into config struct with custom decode hooks
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

// MustLoad loads configuration with helpful error messages.
// It checks if the config file exists and provides instructions if not.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  depositd init\n\n"+
				"Or specify a custom config file:\n"+
				"  depositd <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  depositd init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Restricted permissions: the file carries credentials (store
	// passwords, repository passwords, admin hash, JWT secret).
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file
// settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the DEPOSITD_ prefix and underscores.
	// Example: DEPOSITD_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("DEPOSITD")
	v.SetEnvKeyReplacer(strings.NewReplacer("::", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/depositd/config.yaml
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was
// found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is acceptable - use defaults
			return false, nil
		}
		// Also check for os.PathError when an explicit config file is gone
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

// byteSizeDecodeHook converts strings and integers to bytesize.ByteSize so
// config files can use human-readable sizes like "1Gi", "500Mi", "100MB".
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
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings to time.Duration so config files can
// use human-readable durations like "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
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
		return filepath.Join(xdgConfig, "depositd")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "depositd")
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

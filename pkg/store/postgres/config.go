package postgres

import (
	"fmt"
	"time"
)

// Config holds the PostgreSQL record-store connection settings.
type Config struct {
	// Host is the PostgreSQL server hostname.
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the PostgreSQL server port.
	// Default: 5432
	Port int `mapstructure:"port" yaml:"port"`

	// Database is the database name.
	Database string `mapstructure:"database" yaml:"database"`

	// User is the database user.
	User string `mapstructure:"user" yaml:"user"`

	// Password is the database password.
	Password string `mapstructure:"password" yaml:"password,omitempty"`

	// SSLMode is the libpq sslmode value (disable, require, verify-full, ...).
	// Default: prefer
	SSLMode string `mapstructure:"ssl_mode" yaml:"ssl_mode,omitempty"`

	// MaxConns bounds the connection pool.
	// Default: 10
	MaxConns int32 `mapstructure:"max_conns" yaml:"max_conns,omitempty"`

	// MinConns keeps a floor of warm connections.
	// Default: 2
	MinConns int32 `mapstructure:"min_conns" yaml:"min_conns,omitempty"`

	// QueryTimeout is applied as the server-side statement timeout.
	// Default: 30s
	QueryTimeout time.Duration `mapstructure:"query_timeout" yaml:"query_timeout,omitempty"`

	// AutoMigrate runs pending schema migrations on startup.
	// Default: true
	AutoMigrate *bool `mapstructure:"auto_migrate" yaml:"auto_migrate,omitempty"`
}

// ApplyDefaults fills unset fields with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 5432
	}
	if c.SSLMode == "" {
		c.SSLMode = "prefer"
	}
	if c.MaxConns == 0 {
		c.MaxConns = 10
	}
	if c.MinConns == 0 {
		c.MinConns = 2
	}
	if c.QueryTimeout == 0 {
		c.QueryTimeout = 30 * time.Second
	}
	if c.AutoMigrate == nil {
		enabled := true
		c.AutoMigrate = &enabled
	}
}

// Validate checks the configuration for required fields.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("postgres record store requires host")
	}
	if c.Database == "" {
		return fmt.Errorf("postgres record store requires database")
	}
	if c.User == "" {
		return fmt.Errorf("postgres record store requires user")
	}
	return nil
}

// ConnectionString renders the libpq-style DSN.
func (c *Config) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration for errors.
//
// Struct tags cover value-level constraints (oneof, ranges); cross-field
// rules that tags cannot express are checked explicitly afterwards.
// Validation never mutates the config; normalization happens in
// ApplyDefaults.
func Validate(cfg *Config) error {
	validate := validator.New()

	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("field %s failed on the '%s' rule", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := validateTelemetry(&cfg.Telemetry); err != nil {
		return err
	}
	if err := validateStore(&cfg.Store); err != nil {
		return err
	}
	if err := validateRepositories(cfg.Repositories); err != nil {
		return err
	}

	return nil
}

// validateTelemetry checks tracing settings that tags cannot express.
func validateTelemetry(cfg *TelemetryConfig) error {
	if cfg.Enabled && cfg.Endpoint == "" {
		return fmt.Errorf("invalid configuration: telemetry is enabled but no endpoint is set")
	}
	if cfg.Profiling.Enabled && cfg.Profiling.Endpoint == "" {
		return fmt.Errorf("invalid configuration: profiling is enabled but no endpoint is set")
	}
	return nil
}

// validateStore checks that the selected backend has what it needs.
func validateStore(cfg *StoreConfig) error {
	switch cfg.Type {
	case "badger":
		if cfg.Badger.Path == "" {
			return fmt.Errorf("invalid configuration: badger store requires store.badger.path")
		}
	case "postgres":
		if cfg.Postgres.Host == "" || cfg.Postgres.Database == "" {
			return fmt.Errorf("invalid configuration: postgres store requires store.postgres.host and store.postgres.database")
		}
	case "http":
		if cfg.HTTP.BaseURL == "" {
			return fmt.Errorf("invalid configuration: http store requires store.http.base_url")
		}
	}
	return nil
}

// validateRepositories checks per-repository rules that depend on the
// protocol.
func validateRepositories(repos map[string]RepositoryConfig) error {
	for key, repo := range repos {
		if repo.Connection.Auth == "userpass" && repo.Connection.Username == "" {
			return fmt.Errorf("invalid configuration: repository %q uses userpass auth but has no username", key)
		}
		for _, status := range repo.Status.Map {
			switch status {
			case "accepted", "rejected", "failed", "inProgress":
			default:
				return fmt.Errorf("invalid configuration: repository %q maps to unknown status %q", key, status)
			}
		}
	}
	return nil
}

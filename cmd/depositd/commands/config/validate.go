package config

import (
	"fmt"

	"github.com/marmos91/depositd/pkg/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the depositd configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  depositd config validate

  # Validate specific config file
  depositd config validate --config /etc/depositd/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	// Get config path from parent's persistent flag
	configPath, _ := cmd.Flags().GetString("config")

	// Load and validate configuration
	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	// Determine path for display
	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	// Additional validation checks
	var warnings []string

	if cfg.API.IsEnabled() && cfg.API.JWTSecret == "" {
		warnings = append(warnings, "JWT secret not configured - API authentication will fail")
	}
	if cfg.API.IsEnabled() && cfg.Admin.PasswordHash == "" {
		warnings = append(warnings, "Admin password not configured - run 'depositd init' or set admin.password_hash")
	}
	if len(cfg.Repositories) == 0 {
		warnings = append(warnings, "No repositories configured - submissions will have nowhere to go")
	}

	// Print results
	fmt.Printf("Configuration file: %s\n", displayPath)
	fmt.Println("Validation: OK")

	if len(warnings) > 0 {
		fmt.Println("\nWarnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
	}

	fmt.Printf("\nConfiguration summary:\n")
	fmt.Printf("  Store type:      %s\n", cfg.Store.Type)
	fmt.Printf("  Repositories:    %d\n", len(cfg.Repositories))
	fmt.Printf("  API port:        %d\n", cfg.API.Port)
	fmt.Printf("  Log level:       %s\n", cfg.Logging.Level)

	return nil
}

package commands

import (
	"fmt"

	"github.com/marmos91/depositd/internal/cli/prompt"
	"github.com/marmos91/depositd/pkg/api/auth"
	"github.com/marmos91/depositd/pkg/config"
	"github.com/spf13/cobra"
)

var (
	initForce         bool
	initAdminPassword string
	initNoPassword    bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample depositd configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/depositd/config.yaml.
Use --config to specify a custom path.

The command prompts for an admin password used by the admin API and
depositctl; the password is stored as a bcrypt hash. Use --no-admin-password
for unattended setups and set the hash later.

Examples:
  # Initialize with default location
  depositd init

  # Initialize with custom path
  depositd init --config /etc/depositd/config.yaml

  # Force overwrite existing config
  depositd init --force

  # Non-interactive
  depositd init --admin-password s3cret-passw0rd`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
	initCmd.Flags().StringVar(&initAdminPassword, "admin-password", "", "Admin password (prompted when omitted)")
	initCmd.Flags().BoolVar(&initNoPassword, "no-admin-password", false, "Skip the admin password prompt")
}

func runInit(cmd *cobra.Command, args []string) error {
	adminHash, err := resolveAdminHash()
	if err != nil {
		return err
	}

	configFile := GetConfigFile()

	configPath := configFile
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if err := config.InitConfigToPathWithAdmin(configPath, initForce, adminHash); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to add your target repositories")
	fmt.Println("  2. Start the service with: depositd start")
	fmt.Printf("  3. Or specify custom config: depositd start --config %s\n", configPath)
	fmt.Println("\nSecurity note:")
	fmt.Println("  A random JWT secret has been generated for development use.")
	fmt.Println("  For production, generate a secure secret and use an environment variable:")
	fmt.Println("    # Generates a 64-character hex string (32 bytes of entropy)")
	fmt.Println("    export DEPOSITD_API_JWT_SECRET=$(openssl rand -hex 32)")

	return nil
}

// resolveAdminHash turns the password flag or an interactive prompt into a
// bcrypt hash for the generated config.
func resolveAdminHash() (string, error) {
	if initNoPassword {
		return "", nil
	}

	password := initAdminPassword
	if password == "" {
		var err error
		password, err = prompt.PasswordWithConfirmation("Admin password", "Confirm admin password", 8)
		if err != nil {
			if prompt.IsAborted(err) {
				return "", fmt.Errorf("aborted")
			}
			return "", err
		}
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("failed to hash admin password: %w", err)
	}
	return hash, nil
}

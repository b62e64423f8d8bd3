// Package commands implements the depositctl CLI commands.
package commands

import (
	"os"

	"github.com/marmos91/depositd/cmd/depositctl/cmdutil"
	contextcmd "github.com/marmos91/depositd/cmd/depositctl/commands/context"
	depositcmd "github.com/marmos91/depositd/cmd/depositctl/commands/deposit"
	submissioncmd "github.com/marmos91/depositd/cmd/depositctl/commands/submission"
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "depositctl",
	Short: "depositctl - Control the depositd service",
	Long: `depositctl talks to the depositd admin API: inspect submissions and
their deposits, retry failures, and watch the pipeline.

Login once with 'depositctl login', then run commands against the stored
context.

Use "depositctl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cmdutil.Flags.ServerURL, "server", "", "Server URL (overrides stored context)")
	rootCmd.PersistentFlags().StringVar(&cmdutil.Flags.Token, "token", "", "Access token (overrides stored credentials)")
	rootCmd.PersistentFlags().StringVarP(&cmdutil.Flags.Output, "output", "o", "table", "Output format (table|json|yaml)")
	rootCmd.PersistentFlags().BoolVar(&cmdutil.Flags.NoColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&cmdutil.Flags.Verbose, "verbose", "v", false, "Verbose output")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(submissioncmd.Cmd)
	rootCmd.AddCommand(depositcmd.Cmd)
	rootCmd.AddCommand(contextcmd.Cmd)
	rootCmd.AddCommand(completionCmd)

	// Hide the default completion command (we provide our own)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}

// Exit prints an error and exits with code 1.
func Exit(format string, args ...any) {
	PrintErr(format, args...)
	os.Exit(1)
}

package commands

import (
	"fmt"

	"github.com/marmos91/depositd/cmd/depositctl/cmdutil"
	"github.com/spf13/cobra"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the authenticated user",
	Long: `Show the username the current token authenticates as.

Examples:
  depositctl whoami`,
	RunE: runWhoami,
}

func runWhoami(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	username, err := client.Me()
	if err != nil {
		return fmt.Errorf("failed to query current user: %w", err)
	}

	fmt.Println(username)
	return nil
}

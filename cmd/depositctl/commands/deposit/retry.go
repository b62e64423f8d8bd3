package deposit

import (
	"fmt"

	"github.com/marmos91/depositd/cmd/depositctl/cmdutil"
	"github.com/spf13/cobra"
)

var retryCmd = &cobra.Command{
	Use:   "retry <id>",
	Short: "Retry a failed deposit",
	Long: `Re-arm a failed deposit and schedule it for another attempt.

Only deposits in the failed state can be retried; the server rejects
retries for deposits that are still in flight or already accepted.

Examples:
  # Retry a failed deposit
  depositctl deposit retry 4b7c9d2a`,
	Args: cobra.ExactArgs(1),
	RunE: runRetry,
}

func runRetry(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	if err := client.RetryDeposit(args[0]); err != nil {
		return fmt.Errorf("failed to retry deposit: %w", err)
	}

	cmdutil.PrintSuccess(fmt.Sprintf("Deposit '%s' scheduled for retry", args[0]))
	return nil
}

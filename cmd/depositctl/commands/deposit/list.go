package deposit

import (
	"fmt"
	"os"

	"github.com/marmos91/depositd/cmd/depositctl/cmdutil"
	"github.com/marmos91/depositd/pkg/model"
	"github.com/spf13/cobra"
)

var (
	listSubmission string
	listStatus     string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List deposits",
	Long: `List deposits, narrowed to one submission or one deposit state.

Examples:
  # Deposits of one submission
  depositctl deposit list --submission 8f14e45f

  # All failed deposits
  depositctl deposit list --status failed

  # As JSON
  depositctl deposit list --status failed -o json`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVar(&listSubmission, "submission", "", "List deposits belonging to a submission")
	listCmd.Flags().StringVar(&listStatus, "status", "", "List deposits in a state (submitted|accepted|rejected|failed)")
}

// DepositList is a list of deposits for table rendering.
type DepositList []*model.Deposit

// Headers implements TableRenderer.
func (dl DepositList) Headers() []string {
	return []string{"ID", "SUBMISSION", "REPOSITORY", "STATUS", "UPDATED"}
}

// Rows implements TableRenderer.
func (dl DepositList) Rows() [][]string {
	rows := make([][]string, 0, len(dl))
	for _, d := range dl {
		updated := "-"
		if !d.UpdatedAt.IsZero() {
			updated = d.UpdatedAt.Format("2006-01-02 15:04:05")
		}
		rows = append(rows, []string{
			d.ID,
			d.Submission,
			d.Repository,
			cmdutil.EmptyOr(string(d.DepositStatus), "-"),
			updated,
		})
	}
	return rows
}

func runList(cmd *cobra.Command, args []string) error {
	if (listSubmission == "") == (listStatus == "") {
		return fmt.Errorf("specify exactly one of --submission or --status")
	}

	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	var deposits []*model.Deposit
	if listSubmission != "" {
		deposits, err = client.ListDepositsBySubmission(listSubmission)
	} else {
		deposits, err = client.ListDepositsByStatus(listStatus)
	}
	if err != nil {
		return fmt.Errorf("failed to list deposits: %w", err)
	}

	return cmdutil.PrintOutput(os.Stdout, deposits, len(deposits) == 0, "No deposits found.", DepositList(deposits))
}

package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/marmos91/depositd/cmd/depositctl/cmdutil"
	"github.com/marmos91/depositd/internal/cli/output"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline status",
	Long: `Display a snapshot of the deposit pipeline.

Shows the deposit pool (pending, completed, failed) and the number of
deposits the status poller is watching.

Examples:
  # Show pipeline status
  depositctl status

  # As JSON
  depositctl status -o json`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	status, err := client.Status()
	if err != nil {
		return fmt.Errorf("failed to query pipeline status: %w", err)
	}

	format, err := cmdutil.GetOutputFormatParsed()
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, status)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, status)
	}

	var rows [][2]string
	if status.Pool != nil {
		rows = append(rows,
			[2]string{"Pending deposits", strconv.Itoa(status.Pool.Pending)},
			[2]string{"Completed deposits", strconv.Itoa(status.Pool.Completed)},
			[2]string{"Failed deposits", strconv.Itoa(status.Pool.Failed)},
		)
		if status.Pool.LastError != "" {
			rows = append(rows, [2]string{"Last error", status.Pool.LastError})
		}
	}
	if status.Poller != nil {
		rows = append(rows, [2]string{"Polling statements", strconv.Itoa(status.Poller.Active)})
	}

	if len(rows) == 0 {
		fmt.Println("No pipeline statistics available.")
		return nil
	}
	return output.SimpleTable(os.Stdout, rows)
}

package submission

import (
	"fmt"
	"os"

	"github.com/marmos91/depositd/cmd/depositctl/cmdutil"
	"github.com/marmos91/depositd/internal/cli/output"
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a submission with its deposits",
	Long: `Show one submission together with its deposits and repository copies.

Examples:
  # Show a submission
  depositctl submission get 8f14e45f

  # As JSON
  depositctl submission get 8f14e45f -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

func runGet(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	detail, err := client.GetSubmission(args[0])
	if err != nil {
		return fmt.Errorf("failed to get submission: %w", err)
	}

	format, err := cmdutil.GetOutputFormatParsed()
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, detail)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, detail)
	}

	sub := detail.Submission
	rows := [][2]string{
		{"ID", sub.ID},
		{"Submitted", cmdutil.BoolToYesNo(sub.Submitted)},
		{"Status", cmdutil.EmptyOr(string(sub.SubmissionStatus), "-")},
		{"Aggregated", cmdutil.EmptyOr(string(sub.AggregatedDepositStatus), "-")},
		{"Files", fmt.Sprintf("%d", len(sub.Files))},
	}
	if sub.SubmittedAt != nil {
		rows = append(rows, [2]string{"Submitted at", sub.SubmittedAt.Format("2006-01-02 15:04:05")})
	}
	if err := output.SimpleTable(os.Stdout, rows); err != nil {
		return err
	}

	if len(detail.Deposits) > 0 {
		fmt.Println("\nDeposits:")
		table := output.NewTableData("ID", "REPOSITORY", "STATUS", "MESSAGE")
		for _, d := range detail.Deposits {
			table.AddRow(d.ID, d.Repository, string(d.DepositStatus), cmdutil.EmptyOr(d.StatusMessage, "-"))
		}
		if err := output.PrintTable(os.Stdout, table); err != nil {
			return err
		}
	}

	if len(detail.Copies) > 0 {
		fmt.Println("\nRepository copies:")
		table := output.NewTableData("ID", "REPOSITORY", "STATUS", "ACCESS URL")
		for _, c := range detail.Copies {
			table.AddRow(c.ID, c.Repository, string(c.CopyStatus), cmdutil.EmptyOr(c.AccessURL, "-"))
		}
		if err := output.PrintTable(os.Stdout, table); err != nil {
			return err
		}
	}

	return nil
}

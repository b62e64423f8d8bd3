package deposit

import (
	"fmt"
	"os"

	"github.com/marmos91/depositd/cmd/depositctl/cmdutil"
	"github.com/marmos91/depositd/internal/cli/output"
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a deposit",
	Long: `Show one deposit record.

Examples:
  # Show a deposit
  depositctl deposit get 4b7c9d2a

  # As YAML
  depositctl deposit get 4b7c9d2a -o yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

func runGet(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	dep, err := client.GetDeposit(args[0])
	if err != nil {
		return fmt.Errorf("failed to get deposit: %w", err)
	}

	format, err := cmdutil.GetOutputFormatParsed()
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, dep)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, dep)
	}

	rows := [][2]string{
		{"ID", dep.ID},
		{"Submission", dep.Submission},
		{"Repository", dep.Repository},
		{"Status", cmdutil.EmptyOr(string(dep.DepositStatus), "-")},
		{"Status reference", cmdutil.EmptyOr(dep.DepositStatusRef, "-")},
		{"Message", cmdutil.EmptyOr(dep.StatusMessage, "-")},
	}
	if !dep.CreatedAt.IsZero() {
		rows = append(rows, [2]string{"Created", dep.CreatedAt.Format("2006-01-02 15:04:05")})
	}
	if !dep.UpdatedAt.IsZero() {
		rows = append(rows, [2]string{"Updated", dep.UpdatedAt.Format("2006-01-02 15:04:05")})
	}

	return output.SimpleTable(os.Stdout, rows)
}

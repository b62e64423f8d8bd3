package submission

import (
	"fmt"
	"os"
	"strconv"

	"github.com/marmos91/depositd/cmd/depositctl/cmdutil"
	"github.com/marmos91/depositd/pkg/model"
	"github.com/spf13/cobra"
)

var listStatus string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List submissions",
	Long: `List submitted submissions on the depositd server.

Examples:
  # List all submitted submissions
  depositctl submission list

  # Only submissions whose deposits all failed
  depositctl submission list --status failed

  # List as JSON
  depositctl submission list -o json`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVar(&listStatus, "status", "", "Filter by aggregated deposit status (not-started|in-progress|accepted|rejected|failed)")
}

// SubmissionList is a list of submissions for table rendering.
type SubmissionList []*model.Submission

// Headers implements TableRenderer.
func (sl SubmissionList) Headers() []string {
	return []string{"ID", "STATUS", "AGGREGATED", "REPOSITORIES", "SUBMITTED AT"}
}

// Rows implements TableRenderer.
func (sl SubmissionList) Rows() [][]string {
	rows := make([][]string, 0, len(sl))
	for _, s := range sl {
		submittedAt := "-"
		if s.SubmittedAt != nil {
			submittedAt = s.SubmittedAt.Format("2006-01-02 15:04:05")
		}
		rows = append(rows, []string{
			s.ID,
			cmdutil.EmptyOr(string(s.SubmissionStatus), "-"),
			cmdutil.EmptyOr(string(s.AggregatedDepositStatus), "-"),
			strconv.Itoa(len(s.Repositories)),
			submittedAt,
		})
	}
	return rows
}

func runList(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	submissions, err := client.ListSubmissions(listStatus)
	if err != nil {
		return fmt.Errorf("failed to list submissions: %w", err)
	}

	return cmdutil.PrintOutput(os.Stdout, submissions, len(submissions) == 0, "No submissions found.", SubmissionList(submissions))
}

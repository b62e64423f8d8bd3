// Package submission implements the 'depositctl submission' command group.
package submission

import (
	"github.com/spf13/cobra"
)

// Cmd is the parent command for submission operations.
var Cmd = &cobra.Command{
	Use:     "submission",
	Aliases: []string{"submissions", "sub"},
	Short:   "Inspect submissions",
	Long:    `List submitted submissions and inspect their deposit progress.`,
}

func init() {
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(getCmd)
}

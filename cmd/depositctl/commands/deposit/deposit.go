// Package deposit implements the 'depositctl deposit' command group.
package deposit

import (
	"github.com/spf13/cobra"
)

// Cmd is the parent command for deposit operations.
var Cmd = &cobra.Command{
	Use:     "deposit",
	Aliases: []string{"deposits", "dep"},
	Short:   "Inspect and retry deposits",
	Long:    `List deposits, inspect individual transfers, and retry failures.`,
}

func init() {
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(getCmd)
	Cmd.AddCommand(retryCmd)
}

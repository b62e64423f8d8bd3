// Package context implements the 'depositctl context' command group.
package context

import (
	"github.com/spf13/cobra"
)

// Cmd is the parent command for context management.
var Cmd = &cobra.Command{
	Use:     "context",
	Aliases: []string{"contexts", "ctx"},
	Short:   "Manage server contexts",
	Long:    `Manage saved server contexts (URLs and credentials).`,
}

func init() {
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(currentCmd)
	Cmd.AddCommand(useCmd)
	Cmd.AddCommand(renameCmd)
	Cmd.AddCommand(deleteCmd)
}

// Package config implements the 'depositd config' command group.
package config

import (
	"github.com/spf13/cobra"
)

// Cmd is the parent command for configuration management.
var Cmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Inspect, validate, and edit the depositd configuration file.`,
}

func init() {
	Cmd.AddCommand(schemaCmd)
	Cmd.AddCommand(validateCmd)
	Cmd.AddCommand(editCmd)
}

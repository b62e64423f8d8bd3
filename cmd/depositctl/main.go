// depositctl is the command-line client for the depositd admin API.
package main

import (
	"os"

	"github.com/marmos91/depositd/cmd/depositctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		commands.PrintErr("Error: %v", err)
		os.Exit(1)
	}
}

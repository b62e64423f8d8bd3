// depositd is the deposit orchestration daemon. It watches submission
// records, assembles packages, and delivers them to configured repositories.
package main

import (
	"os"

	"github.com/marmos91/depositd/cmd/depositd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		commands.PrintErr("Error: %v", err)
		os.Exit(1)
	}
}

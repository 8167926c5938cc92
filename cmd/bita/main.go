// Command bita is the local-first vendor and invoice ledger.
package main

import (
	"fmt"
	"os"

	"github.com/abm1119/bita/internal/cli"
	"github.com/abm1119/bita/internal/config"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCommandError)
	}

	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}

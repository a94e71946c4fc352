package main

import (
	"fmt"
	"os"

	bbctlcmd "github.com/forgecli/bbctl/pkg/bbctl/cmd"
	"github.com/forgecli/bbctl/pkg/bbctl/errs"
)

func main() {
	root := bbctlcmd.NewRootCommand(bbctlcmd.DefaultConfig())
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		if suggestion := errs.Suggestion(err); suggestion != "" {
			fmt.Fprintf(os.Stderr, "Suggestion: %s\n", suggestion)
		}
		os.Exit(errs.ExitCode(err))
	}
}

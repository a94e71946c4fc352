package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Set at build time with -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show bbctl version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, _ := getRuntime(cmd)
			writer := cmd.OutOrStdout()
			if rt != nil && rt.writer != nil {
				writer = rt.Writer()
			}
			_, _ = fmt.Fprintf(writer, "bbctl %s (commit: %s)\n", Version, GitCommit)
			return nil
		},
	}
}

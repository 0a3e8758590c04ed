package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewVersionCommand returns the command printing version and build time.
func NewVersionCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(stdout, "otedlite %s (built %s)\n", Version, BuildTime)
		},
	}
}

func init() {
	subcommandFns["version"] = NewVersionCommand
}

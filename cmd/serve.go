package cmd

import (
	"io"

	"github.com/jaffee/commandeer"
	"github.com/pilosa/oteapi-dlite/http"
	"github.com/spf13/cobra"
)

// ServeMain is wrapped by NewServeCommand and only exported for testing purposes.
var ServeMain *http.Main

// NewServeCommand returns a new cobra command wrapping ServeMain.
func NewServeCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	ServeMain = http.NewMain()
	serveCommand := &cobra.Command{
		Use:   "serve",
		Short: "Run pipelines posted as JSON to /pipeline.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ServeMain.Run()
		},
	}
	err := commandeer.Flags(serveCommand.Flags(), ServeMain)
	if err != nil {
		panic(err)
	}
	return serveCommand
}

func init() {
	subcommandFns["serve"] = NewServeCommand
}

package cmd

import (
	"io"

	"github.com/jaffee/commandeer"
	"github.com/pilosa/oteapi-dlite/influx"
	"github.com/spf13/cobra"
)

// InfluxMain is wrapped by NewInfluxCommand and only exported for testing purposes.
var InfluxMain *influx.Main

// NewInfluxCommand returns a new cobra command wrapping InfluxMain.
func NewInfluxCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	InfluxMain = influx.NewMain()
	InfluxMain.Stdout = stdout
	influxCommand := &cobra.Command{
		Use:   "parse-influx",
		Short: "Query InfluxDB measurements into a data model instance.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return InfluxMain.Run()
		},
	}
	err := commandeer.Flags(influxCommand.Flags(), InfluxMain)
	if err != nil {
		panic(err)
	}
	return influxCommand
}

func init() {
	subcommandFns["parse-influx"] = NewInfluxCommand
}

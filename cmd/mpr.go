package cmd

import (
	"io"

	"github.com/jaffee/commandeer"
	"github.com/pilosa/oteapi-dlite/mpr"
	"github.com/spf13/cobra"
)

// MPRMain is wrapped by NewMPRCommand and only exported for testing purposes.
var MPRMain *mpr.Main

// NewMPRCommand returns a new cobra command wrapping MPRMain.
func NewMPRCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	MPRMain = mpr.NewMain()
	MPRMain.Stdout = stdout
	mprCommand := &cobra.Command{
		Use:   "parse-mpr",
		Short: "Read a BioLogic .mpr file into a data model instance, or list its columns.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return MPRMain.Run()
		},
	}
	err := commandeer.Flags(mprCommand.Flags(), MPRMain)
	if err != nil {
		panic(err)
	}
	return mprCommand
}

func init() {
	subcommandFns["parse-mpr"] = NewMPRCommand
}

package cmd

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"

	dlite "github.com/pilosa/oteapi-dlite"
	"github.com/pilosa/oteapi-dlite/metrics"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	// strategies and storage drivers available to pipelines
	_ "github.com/pilosa/oteapi-dlite/avro"
	_ "github.com/pilosa/oteapi-dlite/generate"
	_ "github.com/pilosa/oteapi-dlite/influx"
	_ "github.com/pilosa/oteapi-dlite/json"
	_ "github.com/pilosa/oteapi-dlite/kafka"
	_ "github.com/pilosa/oteapi-dlite/leveldb"
	_ "github.com/pilosa/oteapi-dlite/mapping"
	_ "github.com/pilosa/oteapi-dlite/mpr"
	_ "github.com/pilosa/oteapi-dlite/sqlite"
	_ "github.com/pilosa/oteapi-dlite/yaml"
)

// RunFlags holds the flags of the run command.
type RunFlags struct {
	CollectionID string
	Stats        bool
}

// NewRunCommand returns the command which runs a pipeline file and prints the
// final session state as JSON.
func NewRunCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	rf := &RunFlags{}
	runCommand := &cobra.Command{
		Use:   "run <pipeline.yaml>",
		Short: "Run the steps of a pipeline file. '-' reads the pipeline from stdin.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = stdin
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return errors.Wrap(err, "opening pipeline")
				}
				defer f.Close()
				r = f
			}
			p, err := dlite.LoadPipeline(r)
			if err != nil {
				return err
			}

			sess, closeStore, err := newSession(stderr, rf.CollectionID)
			if err != nil {
				return err
			}
			defer closeStore()
			if rf.Stats {
				ts := metrics.NewTermStatter(stderr, 0)
				defer ts.Close()
				sess.Stats = ts
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, os.Interrupt)
			defer signal.Stop(sigs)
			go func() {
				select {
				case <-sigs:
					cancel()
				case <-ctx.Done():
				}
			}()

			if err := p.Run(ctx, sess); err != nil {
				return errors.Wrap(err, "running pipeline")
			}
			enc := json.NewEncoder(stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(sess.State())
		},
	}
	runCommand.Flags().StringVar(&rf.CollectionID, "collection-id", "", "Continue on this collection of the store.")
	runCommand.Flags().BoolVar(&rf.Stats, "stats", false, "Print pipeline stats to stderr when done.")
	return runCommand
}

func init() {
	subcommandFns["run"] = NewRunCommand
}

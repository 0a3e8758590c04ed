package mpr

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	dlite "github.com/pilosa/oteapi-dlite"
	"github.com/pilosa/oteapi-dlite/file"
	"github.com/pkg/errors"
)

// Main contains the configuration for the parse-mpr command.
type Main struct {
	Path        string   `help:"Path or URL of the .mpr file."`
	Entity      string   `help:"URI of the data model to create. Empty lists the columns of the file."`
	Columns     []string `help:"Comma separated property=column pairs."`
	StoragePath string   `help:"'|' separated directories to search for data models."`
	Output      string   `help:"Location to save the instance to."`
	Driver      string   `help:"Storage driver used for the output."`
	Options     string   `help:"Comma separated storage driver options."`
	Verbose     bool     `help:"Enable verbose logging."`

	Fetcher dlite.Fetcher `flag:"-"`
	Stdout  io.Writer     `flag:"-"`
}

// NewMain gets a new Main with the default configuration.
func NewMain() *Main {
	return &Main{
		Driver: "json",
		Stdout: os.Stdout,
	}
}

// Run parses the file, and either saves the instance or lists the columns.
func (m *Main) Run() error {
	ctx := context.Background()
	fetcher := m.Fetcher
	if fetcher == nil {
		fetcher = dlite.FetcherFunc(func(ctx context.Context, url string) ([]byte, error) {
			return file.ReadAll(url)
		})
	}
	if m.Entity == "" {
		data, err := fetcher.Fetch(ctx, m.Path)
		if err != nil {
			return errors.Wrap(err, "reading mpr file")
		}
		f, err := Decode(data)
		if err != nil {
			return err
		}
		fmt.Fprintf(m.Stdout, "version %d, %d records, started %s\n", f.Version, f.Rows, f.StartDate.Format("2006-01-02"))
		for _, c := range f.Columns {
			fmt.Fprintln(m.Stdout, c)
		}
		return nil
	}

	columns := make(map[string]interface{}, len(m.Columns))
	for _, pair := range m.Columns {
		i := strings.IndexByte(pair, '=')
		if i < 0 {
			return errors.Errorf("column mapping %q is not property=column", pair)
		}
		columns[pair[:i]] = pair[i+1:]
	}

	sess := dlite.NewSession(
		dlite.OptSessionFetcher(fetcher),
		dlite.OptSessionLogger(dlite.NewLogger(os.Stderr, m.Verbose)),
	)
	p := &dlite.Pipeline{Steps: []dlite.StrategyConfig{{
		MediaType: MediaType,
		Entity:    m.Entity,
		Configuration: map[string]interface{}{
			"downloadUrl":  m.Path,
			"storage_path": m.StoragePath,
			"mpr_config":   columns,
		},
	}}}
	if err := p.Run(ctx, sess); err != nil {
		return errors.Wrap(err, "parsing mpr")
	}
	st := sess.State()
	if m.Output == "" {
		fmt.Fprintln(m.Stdout, st.InstUUID)
		return nil
	}

	coll, err := sess.Collection(ctx, st.CollectionID)
	if err != nil {
		return err
	}
	inst, err := coll.Get(st.Label)
	if err != nil {
		return err
	}
	d, err := dlite.LookupDriver(m.Driver)
	if err != nil {
		return err
	}
	if err := d.Save(ctx, inst, m.Output, dlite.ParseOptions(m.Options)); err != nil {
		return errors.Wrap(err, "saving instance")
	}
	fmt.Fprintf(m.Stdout, "%s saved to %s\n", inst.UUID, m.Output)
	return nil
}

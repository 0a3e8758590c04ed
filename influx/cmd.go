package influx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	dlite "github.com/pilosa/oteapi-dlite"
	"github.com/pkg/errors"
)

// Main contains the configuration for the parse-influx command.
type Main struct {
	URL          string   `help:"InfluxDB server URL."`
	User         string   `help:"InfluxDB user."`
	Password     string   `help:"InfluxDB password."`
	Database     string   `help:"Database name."`
	RetPolicy    string   `help:"Retention policy."`
	Measurements []string `help:"Comma separated measurement=field pairs. Empty queries the CTD series."`
	TimeRange    string   `help:"Start of the queried range, relative to now."`
	Limit        int      `help:"Maximum number of rows per measurement."`
	Entity       string   `help:"URI of the data model to create."`
	StoragePath  string   `help:"'|' separated directories to search for data models."`
	Query        bool     `help:"Print the Flux query and exit."`
	Verbose      bool     `help:"Enable verbose logging."`

	Querier Querier   `flag:"-"`
	Stdout  io.Writer `flag:"-"`
}

// NewMain gets a new Main with the default configuration.
func NewMain() *Main {
	return &Main{
		URL:       "http://localhost:8086",
		TimeRange: "-12h",
		Limit:     50,
		Stdout:    os.Stdout,
	}
}

// Run queries the server and prints the created instance as JSON.
func (m *Main) Run() error {
	ctx := context.Background()
	conf := map[string]interface{}{
		"url":          m.URL,
		"USER":         m.User,
		"PASSWORD":     m.Password,
		"DATABASE":     m.Database,
		"RETPOLICY":    m.RetPolicy,
		"timeRange":    m.TimeRange,
		"limitSize":    m.Limit,
		"storage_path": m.StoragePath,
	}
	if len(m.Measurements) > 0 {
		ms := make([]map[string]interface{}, 0, len(m.Measurements))
		for _, pair := range m.Measurements {
			i := strings.IndexByte(pair, '=')
			if i < 0 {
				return errors.Errorf("measurement %q is not measurement=field", pair)
			}
			ms = append(ms, map[string]interface{}{"measurement": pair[:i], "field": pair[i+1:]})
		}
		conf["measurements"] = ms
	}
	cfg := dlite.StrategyConfig{ParserType: ParserType, Entity: m.Entity, Configuration: conf}

	if m.Query {
		st, err := NewStrategyWithQuerier(cfg, nil)
		if err != nil {
			return err
		}
		q, err := st.conf.Query().Render()
		if err != nil {
			return err
		}
		fmt.Fprintln(m.Stdout, q)
		return nil
	}

	q := m.Querier
	if q == nil {
		q = defaultQuerier
	}
	st, err := NewStrategyWithQuerier(cfg, q)
	if err != nil {
		return err
	}
	sess := dlite.NewSession(dlite.OptSessionLogger(dlite.NewLogger(os.Stderr, m.Verbose)))
	u, err := st.Initialize(ctx, sess)
	if err != nil {
		return err
	}
	sess.Update(u)
	if u, err = st.Get(ctx, sess); err != nil {
		return errors.Wrap(err, "parsing influx")
	}
	coll, err := sess.Collection(ctx, u.CollectionID)
	if err != nil {
		return err
	}
	inst, err := coll.Get(u.Label)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(m.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(inst.Record())
}

package dlite_test

import (
	"context"
	"strings"
	"testing"

	dlite "github.com/pilosa/oteapi-dlite"
	"github.com/pilosa/oteapi-dlite/mock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is a strategy which logs its calls into a shared slice.
type recorder struct {
	name  string
	calls *[]string
	fail  bool
}

func (r *recorder) Initialize(ctx context.Context, s *dlite.Session) (*dlite.SessionUpdate, error) {
	*r.calls = append(*r.calls, "init "+r.name)
	return &dlite.SessionUpdate{Label: r.name}, nil
}

func (r *recorder) Get(ctx context.Context, s *dlite.Session) (*dlite.SessionUpdate, error) {
	*r.calls = append(*r.calls, "get "+r.name)
	if r.fail {
		return nil, dlite.NetworkError(errors.New("boom"), "get %s", r.name)
	}
	return &dlite.SessionUpdate{Properties: map[string]interface{}{r.name: true}}, nil
}

var calls []string

func init() {
	dlite.RegisterStrategy(dlite.StrategyKey{Type: "functionType", Value: "test/recorder"}, func(cfg dlite.StrategyConfig) (dlite.Strategy, error) {
		name, _ := cfg.Configuration["name"].(string)
		fail, _ := cfg.Configuration["fail"].(bool)
		return &recorder{name: name, calls: &calls, fail: fail}, nil
	})
}

const pipelineYAML = `
steps:
  - functionType: test/recorder
    configuration:
      name: one
  - parserType: not/registered
    functionType: test/recorder
    configuration:
      name: two
`

func TestPipelineRun(t *testing.T) {
	calls = nil
	p, err := dlite.LoadPipeline(strings.NewReader(pipelineYAML))
	require.NoError(t, err)
	require.Len(t, p.Steps, 2)

	stats := &mock.RecordingStatter{}
	s := dlite.NewSession(dlite.OptSessionStats(stats))
	require.NoError(t, p.Run(context.Background(), s))

	assert.Equal(t, []string{"init one", "init two", "get one", "get two"}, calls)
	st := s.State()
	assert.Equal(t, "two", st.Label)
	assert.Equal(t, map[string]interface{}{"one": true, "two": true}, st.Properties)
	assert.Equal(t, int64(2), stats.Get("strategy.initialize"))
	assert.Equal(t, int64(2), stats.Get("strategy.get"))
	assert.Equal(t, 2, stats.Timings["strategy.get"])
}

func TestPipelineStopsAtError(t *testing.T) {
	calls = nil
	p := &dlite.Pipeline{Steps: []dlite.StrategyConfig{
		{FunctionType: "test/recorder", Configuration: map[string]interface{}{"name": "a", "fail": true}},
		{FunctionType: "test/recorder", Configuration: map[string]interface{}{"name": "b"}},
	}}
	stats := &mock.RecordingStatter{}
	err := p.Run(context.Background(), dlite.NewSession(dlite.OptSessionStats(stats)))
	require.Error(t, err)
	assert.True(t, dlite.Retryable(err))
	assert.Equal(t, []string{"init a", "init b", "get a"}, calls)
	assert.Equal(t, int64(1), stats.Get("strategy.error"))
}

func TestPipelineUnknownStrategy(t *testing.T) {
	p := &dlite.Pipeline{Steps: []dlite.StrategyConfig{{MappingType: "nope"}}}
	err := p.Run(context.Background(), dlite.NewSession())
	assert.Equal(t, dlite.KindConfig, dlite.KindOf(err))

	_, err = dlite.LoadPipeline(strings.NewReader("steps: []"))
	assert.Equal(t, dlite.KindConfig, dlite.KindOf(err))
}

type sampleConfig struct {
	ID      string  `mapstructure:"id"`
	Label   string  `mapstructure:"label"`
	Limit   int     `mapstructure:"limitSize"`
	Factors []int64 `mapstructure:"factors"`
}

func (c *sampleConfig) Validate() error {
	if c.Limit < 0 {
		return errors.New("limitSize must not be negative")
	}
	return nil
}

func TestDecodeConfig(t *testing.T) {
	cfg := sampleConfig{Label: "json-data", Limit: 50}
	require.NoError(t, dlite.DecodeConfig(map[string]interface{}{"id": "x", "factors": []interface{}{1, 2}}, &cfg))
	assert.Equal(t, sampleConfig{ID: "x", Label: "json-data", Limit: 50, Factors: []int64{1, 2}}, cfg)

	err := dlite.DecodeConfig(map[string]interface{}{"id": 123}, &sampleConfig{})
	assert.Equal(t, dlite.KindConfig, dlite.KindOf(err))

	err = dlite.DecodeConfig(map[string]interface{}{"limitSize": -1}, &sampleConfig{})
	assert.Equal(t, dlite.KindConfig, dlite.KindOf(err))
}

func TestDriverRegistry(t *testing.T) {
	d := &mock.Driver{}
	dlite.RegisterDriver("testdrv", d, "application/x-testdrv")

	name, err := dlite.DriverForMediaType("application/x-testdrv; charset=utf-8")
	require.NoError(t, err)
	assert.Equal(t, "testdrv", name)
	name, err = dlite.DriverForMediaType("application/vnd.dlite-testdrv")
	require.NoError(t, err)
	assert.Equal(t, "testdrv", name)
	_, err = dlite.DriverForMediaType("application/unknown")
	assert.Equal(t, dlite.KindConfig, dlite.KindOf(err))

	got, err := dlite.LookupDriver("testdrv")
	require.NoError(t, err)
	assert.Equal(t, d, got)
	_, err = dlite.LookupDriver("missing")
	assert.Equal(t, dlite.KindConfig, dlite.KindOf(err))

	assert.Panics(t, func() { dlite.RegisterDriver("testdrv", d) })
}

func TestParseOptions(t *testing.T) {
	o := dlite.ParseOptions("mode=w, single ;indent = 2")
	assert.Equal(t, dlite.Options{"mode": "w", "single": "true", "indent": "2"}, o)
	assert.True(t, o.Bool("single"))
	assert.False(t, o.Bool("mode"))
	assert.Equal(t, "x", o.Get("missing", "x"))
	assert.Empty(t, dlite.ParseOptions(""))
}

func TestErrorKinds(t *testing.T) {
	err := errors.Wrap(dlite.StorageError(errors.New("disk"), "save %s", "x"), "outer")
	assert.Equal(t, dlite.KindStorage, dlite.KindOf(err))
	assert.False(t, dlite.Retryable(err))
	assert.Equal(t, "outer: save x: disk", err.Error())
	assert.Equal(t, dlite.KindUnknown, dlite.KindOf(errors.New("plain")))
	assert.Equal(t, "missing", dlite.KindMissing.String())
}

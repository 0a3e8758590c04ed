package dlite

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Pipeline is an ordered list of strategy steps sharing one Session.
type Pipeline struct {
	Steps []StrategyConfig `json:"steps" yaml:"steps"`
}

// LoadPipeline reads a YAML (or JSON) pipeline definition.
func LoadPipeline(r io.Reader) (*Pipeline, error) {
	p := &Pipeline{}
	if err := yaml.NewDecoder(r).Decode(p); err != nil {
		return nil, ConfigError(err, "load pipeline")
	}
	if len(p.Steps) == 0 {
		return nil, ConfigError(errors.New("no steps"), "load pipeline")
	}
	return p, nil
}

// Run creates the strategy of every step, initializes all of them in order,
// then calls Get on each in order. Every update is merged into the session
// state. Run stops at the first error.
func (p *Pipeline) Run(ctx context.Context, s *Session) error {
	steps := make([]Strategy, len(p.Steps))
	for i, cfg := range p.Steps {
		st, err := NewStrategy(cfg)
		if err != nil {
			return errors.Wrapf(err, "step %d", i)
		}
		steps[i] = st
	}

	for i, st := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		u, err := st.Initialize(ctx, s)
		if err != nil {
			s.Stats.Count("strategy.error", 1, 1, "phase:initialize")
			return errors.Wrapf(err, "initializing step %d (%v)", i, p.Steps[i].Keys())
		}
		s.Stats.Count("strategy.initialize", 1, 1)
		s.Update(u)
	}

	for i, st := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		u, err := st.Get(ctx, s)
		if err != nil {
			s.Stats.Count("strategy.error", 1, 1, "phase:get")
			return errors.Wrapf(err, "running step %d (%v)", i, p.Steps[i].Keys())
		}
		s.Stats.Count("strategy.get", 1, 1)
		s.Stats.Timing("strategy.get", time.Since(start), 1)
		s.Update(u)
		s.Log.Debugf("step %d done: %+v", i, u)
	}
	return nil
}

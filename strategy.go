package dlite

import (
	"context"
	"sort"
	"sync"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// Strategy is one step of a pipeline. Initialize is called on every step
// before Get is called on any of them.
type Strategy interface {
	Initialize(ctx context.Context, s *Session) (*SessionUpdate, error)
	Get(ctx context.Context, s *Session) (*SessionUpdate, error)
}

// StrategyConfig selects and configures a strategy. Exactly one of the type
// fields is normally set; it picks the strategy from the registry.
type StrategyConfig struct {
	ParserType   string `json:"parserType,omitempty" yaml:"parserType,omitempty" mapstructure:"parserType"`
	MediaType    string `json:"mediaType,omitempty" yaml:"mediaType,omitempty" mapstructure:"mediaType"`
	FunctionType string `json:"functionType,omitempty" yaml:"functionType,omitempty" mapstructure:"functionType"`
	MappingType  string `json:"mappingType,omitempty" yaml:"mappingType,omitempty" mapstructure:"mappingType"`

	DownloadURL  string `json:"downloadUrl,omitempty" yaml:"downloadUrl,omitempty" mapstructure:"downloadUrl"`
	ResourceType string `json:"resourceType,omitempty" yaml:"resourceType,omitempty" mapstructure:"resourceType"`

	// Entity is the URI of the data model the strategy produces or consumes.
	Entity string `json:"entity,omitempty" yaml:"entity,omitempty" mapstructure:"entity"`

	// Prefixes and Triples are the semantic mappings of a mapping step.
	Prefixes map[string]string `json:"prefixes,omitempty" yaml:"prefixes,omitempty" mapstructure:"prefixes"`
	Triples  [][]string        `json:"triples,omitempty" yaml:"triples,omitempty" mapstructure:"triples"`

	// Configuration holds the strategy specific settings. It is decoded into
	// the strategy's own config type with DecodeConfig.
	Configuration map[string]interface{} `json:"configuration,omitempty" yaml:"configuration,omitempty" mapstructure:"configuration"`
}

// StrategyKey identifies a strategy by the config field which selects it and
// that field's value, e.g. {"parserType", "json/vnd.dlite-json"}.
type StrategyKey struct {
	Type  string
	Value string
}

func (k StrategyKey) String() string { return k.Type + "=" + k.Value }

// Factory creates a Strategy from its config.
type Factory func(cfg StrategyConfig) (Strategy, error)

var (
	strategiesMu sync.RWMutex
	strategies   = make(map[StrategyKey]Factory)
)

// RegisterStrategy makes a strategy available under key. It panics if key is
// registered twice, the same way database/sql drivers do.
func RegisterStrategy(key StrategyKey, f Factory) {
	strategiesMu.Lock()
	defer strategiesMu.Unlock()
	if _, dup := strategies[key]; dup {
		panic("dlite: RegisterStrategy called twice for " + key.String())
	}
	strategies[key] = f
}

// Strategies returns the registered keys, sorted.
func Strategies() []StrategyKey {
	strategiesMu.RLock()
	defer strategiesMu.RUnlock()
	keys := make([]StrategyKey, 0, len(strategies))
	for k := range strategies {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Type != keys[j].Type {
			return keys[i].Type < keys[j].Type
		}
		return keys[i].Value < keys[j].Value
	})
	return keys
}

// Keys returns the strategy keys cfg could select, in lookup order.
func (cfg StrategyConfig) Keys() []StrategyKey {
	var keys []StrategyKey
	for _, k := range []StrategyKey{
		{"parserType", cfg.ParserType},
		{"mediaType", cfg.MediaType},
		{"functionType", cfg.FunctionType},
		{"mappingType", cfg.MappingType},
	} {
		if k.Value != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// NewStrategy creates the strategy selected by the first registered key of
// cfg.
func NewStrategy(cfg StrategyConfig) (Strategy, error) {
	strategiesMu.RLock()
	var f Factory
	for _, k := range cfg.Keys() {
		if f = strategies[k]; f != nil {
			break
		}
	}
	strategiesMu.RUnlock()
	if f == nil {
		return nil, ConfigError(errors.Errorf("no strategy registered for %v", cfg.Keys()), "new strategy")
	}
	return f(cfg)
}

// Validator is implemented by strategy config types which check themselves
// after decoding.
type Validator interface {
	Validate() error
}

// DecodeConfig decodes a generic configuration map into out, which must be a
// pointer to a struct with mapstructure tags. Fields missing from in keep the
// value they have in out, so defaults can be set before decoding. If out
// implements Validator, it is validated. Any failure is a KindConfig error.
func DecodeConfig(in map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     out,
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return ConfigError(err, "decode config")
	}
	if err := dec.Decode(in); err != nil {
		return ConfigError(err, "decode config")
	}
	if v, ok := out.(Validator); ok {
		if err := v.Validate(); err != nil {
			return ConfigError(err, "validate config")
		}
	}
	return nil
}

package lxucache

import (
	"encoding/json"
	"fmt"

	"github.com/jamiealquiza/lxucache/lxu"
	"github.com/jamiealquiza/lxucache/sharded"
	"github.com/jamiealquiza/lxucache/table"
)

// StrategyConfig configures the lxu_strategy document.
type StrategyConfig struct {
	Type             string  `json:"type"`
	MinUsedFreqPower *uint16 `json:"min_used_freq_power,omitempty"`
}

// TransformerConfig configures the id_transformer document.
// Underlying and NumThreads are only meaningful when Type == "thread".
type TransformerConfig struct {
	Type       string             `json:"type"`
	Underlying *TransformerConfig `json:"underlying,omitempty"`
	NumThreads *uint32            `json:"num_threads,omitempty"`
}

// Config is the hierarchical options document recognized by New.
type Config struct {
	LXUStrategy   StrategyConfig    `json:"lxu_strategy"`
	IDTransformer TransformerConfig `json:"id_transformer"`
}

// ParseConfig decodes a Config from its JSON document form.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, newError(ConfigInvalid, "malformed configuration document", err)
	}
	return cfg, nil
}

// variant is the tagged-union contract behind IDTransformer: either a
// single table wrapped to present a filter-free Transform, or a
// sharded.Sharded composite (which already has this exact shape).
type variant interface {
	Transform(globals, slotsOut []int64, update table.UpdateFunc, fetch table.FetchFunc) int
	Evict(globals []int64)
	ForEach(func(global, slot int64, rec lxu.Record))
	Close()
}

// directVariant adapts a single table.Table (no sharding) to variant
// by supplying the identity filter.
type directVariant struct {
	t table.Table
}

func (d directVariant) Transform(globals, slotsOut []int64, update table.UpdateFunc, fetch table.FetchFunc) int {
	return d.t.Transform(globals, slotsOut, func(int64) bool { return true }, update, fetch)
}

func (d directVariant) Evict(globals []int64)                               { d.t.Evict(globals) }
func (d directVariant) ForEach(cb func(global, slot int64, rec lxu.Record)) { d.t.ForEach(cb) }
func (d directVariant) Close()                                              {}

// shardedVariant adapts sharded.Sharded to variant; the embedded
// composite supplies every method, Close included.
type shardedVariant struct {
	*sharded.Sharded
}

// tableRegistry maps id_transformer.type values to Table constructors,
// also usable as a "thread" variant's underlying.
var tableRegistry = map[string]sharded.NewTableFunc{
	"naive":     func(n, offset int64) table.Table { return table.NewNaive(n, offset) },
	"cacheline": func(n, offset int64) table.Table { return table.NewCacheline(n, offset) },
}

func newTableCtor(typ string) (sharded.NewTableFunc, error) {
	ctor, ok := tableRegistry[typ]
	if !ok {
		return nil, newError(ConfigInvalid, fmt.Sprintf("unrecognized id_transformer type %q", typ), nil)
	}
	return ctor, nil
}

// newVariant constructs the transformer variant described by cfg for
// a table of n total slots.
func newVariant(cfg TransformerConfig, n int64) (variant, error) {
	switch cfg.Type {
	case "naive", "cacheline":
		ctor, err := newTableCtor(cfg.Type)
		if err != nil {
			return nil, err
		}
		return directVariant{t: ctor(n, 0)}, nil

	case "thread":
		if cfg.Underlying == nil {
			return nil, newError(ConfigInvalid, `id_transformer.type "thread" requires "underlying"`, nil)
		}
		ctor, err := newTableCtor(cfg.Underlying.Type)
		if err != nil {
			return nil, err
		}
		if cfg.NumThreads == nil || *cfg.NumThreads == 0 {
			return nil, newError(ConfigInvalid, `id_transformer.type "thread" requires num_threads > 0`, nil)
		}
		return shardedVariant{sharded.New(ctor, n, int(*cfg.NumThreads))}, nil

	default:
		return nil, newError(ConfigInvalid, fmt.Sprintf("unrecognized id_transformer type %q", cfg.Type), nil)
	}
}

// newStrategy constructs the lxu.Strategy described by cfg. seed fixes
// the strategy's random-bit stream.
func newStrategy(cfg StrategyConfig, seed int64) (lxu.Strategy, error) {
	switch cfg.Type {
	case "mixed_lru_lfu":
		p := lxu.DefaultMinUsedFreqPower
		if cfg.MinUsedFreqPower != nil {
			p = uint8(*cfg.MinUsedFreqPower)
		}
		return lxu.NewMixedLFULRU(p, seed), nil
	default:
		return nil, newError(ConfigInvalid, fmt.Sprintf("unrecognized lxu_strategy type %q", cfg.Type), nil)
	}
}

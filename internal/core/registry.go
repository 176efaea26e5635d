// Device factory registry: devices are instantiated by a "kind" string
// read from configuration rather than by the caller constructing concrete
// types directly. Grounded on a RegisterTaskBuilder/
// taskBuilders pattern in runner.go (a package-scope slice of builder
// funcs guarded by a mutex, populated by init() functions), generalized
// from "one slice of builders invoked unconditionally" to "a lookup table
// keyed by kind" since multiple device kinds now coexist in one config.

package sihd_core

import (
	"fmt"
	"sync"

	sihd_util "github.com/mdufaud/sihd-sub000/internal/util"
)

// DeviceFactory builds a device of some kind from its name, the clock it
// should use, and its raw YAML config. Implementations type-assert the resolved Named back to their
// concrete *DevFilter/etc. when wiring children.
type DeviceFactory func(name string, clock sihd_util.Clock, rawConfig []byte) (sihd_util.Named, error)

var deviceFactories = struct {
	mu     sync.Mutex
	byKind map[string]DeviceFactory
}{byKind: make(map[string]DeviceFactory)}

// RegisterDeviceFactory associates a kind name with a constructor; called
// from init() functions the same way metrics generators once registered
// task builders.
func RegisterDeviceFactory(kind string, factory DeviceFactory) {
	deviceFactories.mu.Lock()
	defer deviceFactories.mu.Unlock()
	deviceFactories.byKind[kind] = factory
}

// BuildDevice looks up the factory for kind and invokes it.
func BuildDevice(kind, name string, clock sihd_util.Clock, rawConfig []byte) (sihd_util.Named, error) {
	deviceFactories.mu.Lock()
	factory, ok := deviceFactories.byKind[kind]
	deviceFactories.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("sihd_core: no device factory registered for kind %q", kind)
	}
	return factory(name, clock, rawConfig)
}

func init() {
	RegisterDeviceFactory("devfilter", buildDevFilter)
}

// devFilterConfig is the devfilter-kind device's own raw YAML shape: a
// list of rules, each naming the match operator to parse it with.
type devFilterConfig struct {
	Rules []struct {
		Op   string `yaml:"op"`
		Rule string `yaml:"rule"`
	} `yaml:"rules"`
}

var ruleOpByName = map[string]MatchOp{
	"equal":      MatchEqual,
	"less":       MatchLess,
	"less_eq":    MatchLessEq,
	"greater":    MatchGreater,
	"greater_eq": MatchGreaterEq,
	"bit_and":    MatchBitAnd,
	"bit_or":     MatchBitOr,
	"bit_xor":    MatchBitXor,
}

func buildDevFilter(name string, clock sihd_util.Clock, rawConfig []byte) (sihd_util.Named, error) {
	var cfg devFilterConfig
	if len(rawConfig) > 0 {
		if err := sihd_util.DecodeYAML(rawConfig, &cfg); err != nil {
			return nil, fmt.Errorf("sihd_core: devfilter %q: %w", name, err)
		}
	}
	f := NewDevFilter(name, clock)
	for _, r := range cfg.Rules {
		op, ok := ruleOpByName[r.Op]
		if !ok {
			return nil, fmt.Errorf("sihd_core: devfilter %q: unknown match op %q", name, r.Op)
		}
		if err := f.addParsed(op, r.Rule); err != nil {
			return nil, fmt.Errorf("sihd_core: devfilter %q: %w", name, err)
		}
	}
	return f, nil
}

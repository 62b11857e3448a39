package engine

import (
	"fmt"
	"time"

	"github.com/wbrown/janus-volcano/volcano/algebra"
	"github.com/wbrown/janus-volcano/volcano/annotations"
	"github.com/wbrown/janus-volcano/volcano/plan"
	"github.com/wbrown/janus-volcano/volcano/planner"
	"github.com/wbrown/janus-volcano/volcano/planstore"
)

// TraitConfig is a trait dimension and the converter between its traits.
// Converter may be nil.
type TraitConfig struct {
	Def       plan.TraitDef
	Converter planner.TraitConverter
}

// PhaseRule is a rule and the search phase it runs in
type PhaseRule struct {
	Rule  planner.Rule
	Phase planner.Phase
}

// Config configures an Engine. Rules and converters are shared by every
// planner the engine creates and must not keep per-run state.
type Config struct {
	Options planner.Options
	Model   planner.CostModel
	Traits  []TraitConfig
	Rules   []PhaseRule

	// RootTraits are the traits requested of every plan, replacing the
	// defaults of the planner's trait set. Empty means {plan.Physical}.
	RootTraits []plan.Trait

	CacheSize    int           // maximum cached plans (default 1000)
	CacheTTL     time.Duration // cached plan lifetime (default 5 minutes)
	DisableCache bool

	Workers int // batch parallelism (0 = NumCPU)

	// Store, when set, receives a record of every successful optimization
	Store *planstore.Store

	// Handler, when set, receives annotation events from every run
	Handler annotations.Handler
}

// DefaultConfig returns a configuration with default options and no
// model or rules
func DefaultConfig() Config {
	return Config{
		Options:    planner.DefaultOptions(),
		RootTraits: []plan.Trait{plan.Physical},
		CacheSize:  1000,
		CacheTTL:   5 * time.Minute,
	}
}

// AlgebraConfig returns a configuration for the relational algebra with
// the given rules, or all of its rules when none are given.
func AlgebraConfig(rules ...planner.Rule) (Config, error) {
	if len(rules) == 0 {
		var err error
		if rules, err = algebra.Rules(); err != nil {
			return Config{}, err
		}
	}
	cfg := DefaultConfig()
	cfg.Model = algebra.CostModel{}
	cfg.Traits = []TraitConfig{{Def: algebra.CollationDef, Converter: algebra.CollationConverter}}
	for _, r := range rules {
		cfg.Rules = append(cfg.Rules, PhaseRule{Rule: r, Phase: planner.PhaseOptimize})
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Model == nil {
		return fmt.Errorf("engine config has no cost model")
	}
	seen := make(map[string]bool, len(c.Rules))
	for _, pr := range c.Rules {
		if pr.Rule == nil {
			return fmt.Errorf("engine config has a nil rule")
		}
		if seen[pr.Rule.Name()] {
			return fmt.Errorf("rule %s configured twice", pr.Rule.Name())
		}
		seen[pr.Rule.Name()] = true
	}
	return nil
}

// ruleNames lists configured rule names in configuration order
func (c Config) ruleNames() []string {
	names := make([]string, len(c.Rules))
	for i, pr := range c.Rules {
		names[i] = pr.Rule.Name()
	}
	return names
}

// Package engine is a reusable front-end for the planner. It holds one
// configuration, builds a fresh planner for every tree, caches the
// extracted plans, optimizes batches of trees in parallel, and can
// persist every result to a plan store.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/wbrown/janus-volcano/volcano/annotations"
	"github.com/wbrown/janus-volcano/volcano/logging"
	"github.com/wbrown/janus-volcano/volcano/plan"
	"github.com/wbrown/janus-volcano/volcano/planner"
	"github.com/wbrown/janus-volcano/volcano/planstore"
)

// Result is the outcome of optimizing one tree
type Result struct {
	Tree        *planner.Expr
	Plan        *planner.Expr
	Cost        plan.Cost
	Explain     string
	Fingerprint string
	RunID       string
	Stats       planner.Stats
	Duration    time.Duration
	Cached      bool
	// Dump is the registry after the search, kept only when requested
	Dump string
}

// Outcome is one entry of a batch: a result or the error that prevented it
type Outcome struct {
	Result *Result
	Err    error
}

// Engine optimizes trees under one configuration. It is safe for
// concurrent use.
type Engine struct {
	config Config
	cache  *PlanCache
	pool   *WorkerPool
}

// New creates an engine for config
func New(config Config) (*Engine, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if len(config.RootTraits) == 0 {
		config.RootTraits = []plan.Trait{plan.Physical}
	}
	e := &Engine{
		config: config,
		pool:   NewWorkerPool(config.Workers),
	}
	if !config.DisableCache {
		e.cache = NewPlanCache(config.CacheSize, config.CacheTTL)
	}
	return e, nil
}

// Config returns the engine's configuration
func (e *Engine) Config() Config { return e.config }

// Cache returns the plan cache, or nil when caching is disabled
func (e *Engine) Cache() *PlanCache { return e.cache }

// NewPlanner builds a planner with the configured traits and rules
func (e *Engine) NewPlanner() (*planner.Planner, error) {
	p := planner.NewPlanner(e.config.Model, e.config.Options)
	for _, tc := range e.config.Traits {
		if err := p.AddTraitDef(tc.Def, tc.Converter); err != nil {
			return nil, err
		}
	}
	for _, pr := range e.config.Rules {
		var err error
		if pr.Phase == planner.PhaseOptimize {
			_, err = p.AddRule(pr.Rule)
		} else {
			_, err = p.AddRuleToPhase(pr.Rule, pr.Phase)
		}
		if err != nil {
			return nil, fmt.Errorf("add rule %s: %w", pr.Rule.Name(), err)
		}
	}
	return p, nil
}

// rootTraits builds the trait set requested of every plan
func (e *Engine) rootTraits(p *planner.Planner) plan.TraitSet {
	traits := p.EmptyTraitSet()
	for _, t := range e.config.RootTraits {
		traits = traits.Replace(t)
	}
	return traits
}

// cacheKey identifies a tree under everything in this engine's
// configuration that can change the chosen plan, so engines sharing a
// cache never see each other's plans.
func (e *Engine) cacheKey(tree *planner.Expr) string {
	h := xxhash.New()
	fmt.Fprintf(h, "TREE:%s;", tree.Digest())
	fmt.Fprintf(h, "MODEL:%T:%+v;", e.config.Model, e.config.Model)
	for _, tc := range e.config.Traits {
		fmt.Fprintf(h, "TRAIT:%s/%T;", tc.Def.Name(), tc.Converter)
	}
	for _, pr := range e.config.Rules {
		fmt.Fprintf(h, "RULE:%s@%s;", pr.Rule.Name(), pr.Phase)
	}
	for _, t := range e.config.RootTraits {
		fmt.Fprintf(h, "ROOT:%s;", t)
	}
	o := e.config.Options
	fmt.Fprintf(h, "OPTIONS:%v;%v;%v;%v;%d;%T", o.Ambitious, o.Impatient, o.CostImprovement, o.NoneConventionInfiniteCost, o.MaxTicks, o.Costs)
	return fmt.Sprintf("%016x", h.Sum64())
}

// Optimize finds the cheapest plan for tree
func (e *Engine) Optimize(ctx context.Context, tree *planner.Expr) (*Result, error) {
	return e.optimize(ctx, tree, false)
}

// OptimizeWithDump is Optimize, keeping the registry dump in the result.
// It bypasses the cache.
func (e *Engine) OptimizeWithDump(ctx context.Context, tree *planner.Expr) (*Result, error) {
	return e.optimize(ctx, tree, true)
}

func (e *Engine) optimize(ctx context.Context, tree *planner.Expr, dump bool) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	fingerprint := planstore.Fingerprint(tree.Digest())
	log := logging.Ctx(ctx).With().Str("tree", fingerprint).Logger()
	collector := annotations.NewCollector(e.config.Handler)

	key := e.cacheKey(tree)
	if !dump {
		if cached, ok := e.cache.Get(key); ok {
			log.Debug().Msg("plan cache hit")
			collector.AddTiming(annotations.OptimizeCached, start, map[string]interface{}{
				"fingerprint": fingerprint,
			})
			hit := *cached
			hit.Cached = true
			hit.Duration = time.Since(start)
			return &hit, nil
		}
	}

	p, err := e.NewPlanner()
	if err != nil {
		return nil, err
	}
	if collector.Enabled() {
		if err := p.AddListener(annotations.NewRecorder(collector, p.RunID())); err != nil {
			return nil, err
		}
	}

	collector.Add(annotations.Event{
		Name:  annotations.OptimizeBegin,
		Start: start,
		End:   start,
		Data:  map[string]interface{}{"tree": planner.Explain(tree)},
		RunID: p.RunID(),
	})

	p.SetRoot(p.ChangeTraits(tree, e.rootTraits(p)))
	best, err := p.FindBestContext(ctx)
	if err != nil {
		collector.Add(annotations.Event{
			Name:    annotations.OptimizeComplete,
			Start:   start,
			End:     time.Now(),
			Latency: time.Since(start),
			Data:    map[string]interface{}{"error": err},
			RunID:   p.RunID(),
		})
		log.Debug().Err(err).Msg("optimization failed")
		return nil, fmt.Errorf("optimize %s: %w", fingerprint, err)
	}

	result := &Result{
		Tree:        tree,
		Plan:        best,
		Cost:        p.Root().BestCost(),
		Explain:     planner.Explain(best),
		Fingerprint: fingerprint,
		RunID:       p.RunID(),
		Stats:       p.Stats(),
		Duration:    time.Since(start),
	}
	if dump {
		result.Dump = p.Dump()
	}

	collector.Add(annotations.Event{
		Name:    annotations.OptimizeComplete,
		Start:   start,
		End:     time.Now(),
		Latency: result.Duration,
		Data: map[string]interface{}{
			"cost":  result.Cost.String(),
			"ticks": result.Stats.Ticks,
			"sets":  result.Stats.LiveSets,
		},
		RunID: p.RunID(),
	})
	log.Debug().
		Stringer("cost", result.Cost).
		Int("ticks", result.Stats.Ticks).
		Dur("took", result.Duration).
		Msg("optimized")

	e.cache.Set(key, result)
	if err := e.persist(result); err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) persist(r *Result) error {
	if e.config.Store == nil {
		return nil
	}
	err := e.config.Store.Put(planstore.Record{
		Fingerprint: r.Fingerprint,
		Tree:        planner.Explain(r.Tree),
		Explain:     r.Explain,
		Cost:        r.Cost.String(),
		Ticks:       r.Stats.Ticks,
		Rules:       e.config.ruleNames(),
		RunID:       r.RunID,
	})
	if err != nil {
		return fmt.Errorf("persist plan %s: %w", r.Fingerprint, err)
	}
	return nil
}

// OptimizeBatch optimizes trees in parallel, one planner per tree. The
// outcomes are in input order. A tree that fails does not stop the
// others; the returned error is only set when ctx ends the batch early.
func (e *Engine) OptimizeBatch(ctx context.Context, trees []*planner.Expr) ([]Outcome, error) {
	outcomes := make([]Outcome, len(trees))
	err := e.pool.Execute(ctx, len(trees), func(ctx context.Context, idx int) error {
		r, err := e.Optimize(ctx, trees[idx])
		outcomes[idx] = Outcome{Result: r, Err: err}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return nil
	})
	if err != nil {
		for i := range outcomes {
			if outcomes[i].Result == nil && outcomes[i].Err == nil {
				outcomes[i].Err = ctx.Err()
			}
		}
		return outcomes, err
	}
	return outcomes, nil
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/wbrown/janus-volcano/volcano/algebra"
	"github.com/wbrown/janus-volcano/volcano/annotations"
	"github.com/wbrown/janus-volcano/volcano/plan"
	"github.com/wbrown/janus-volcano/volcano/planner"
	"github.com/wbrown/janus-volcano/volcano/planstore"
)

const mergeJoinTree = `(join (scan emp :rows 1000 :index [1])
                             (scan dept :rows 10 :index [0])
                             :on deptno :keys [1 0])`

func newTestEngine(t *testing.T, configure ...func(*Config)) *Engine {
	t.Helper()
	cfg, err := AlgebraConfig()
	require.NoError(t, err)
	for _, fn := range configure {
		fn(&cfg)
	}
	e, err := New(cfg)
	require.NoError(t, err)
	return e
}

func parse(t *testing.T, tree string) *planner.Expr {
	t.Helper()
	expr, err := algebra.ParseTree(tree)
	require.NoError(t, err)
	return expr
}

func TestOptimize(t *testing.T) {
	e := newTestEngine(t)

	r, err := e.Optimize(context.Background(), parse(t, mergeJoinTree))
	require.NoError(t, err)

	assert.Equal(t, plan.KindMergeJoin, r.Plan.Kind())
	assert.Equal(t, plan.ScalarCost(909), r.Cost)
	assert.True(t, strings.HasPrefix(r.Explain, "MergeJoin.PHYSICAL"), r.Explain)
	assert.Len(t, r.Fingerprint, 16)
	assert.NotEmpty(t, r.RunID)
	assert.Positive(t, r.Stats.Ticks)
	assert.False(t, r.Cached)
	assert.Empty(t, r.Dump)
}

func TestOptimizeUsesCache(t *testing.T) {
	e := newTestEngine(t)
	tree := parse(t, mergeJoinTree)

	first, err := e.Optimize(context.Background(), tree)
	require.NoError(t, err)
	second, err := e.Optimize(context.Background(), parse(t, mergeJoinTree))
	require.NoError(t, err)

	assert.True(t, second.Cached)
	assert.Same(t, first.Plan, second.Plan)
	assert.Equal(t, first.RunID, second.RunID)

	hits, misses, size := e.Cache().Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
	assert.Equal(t, 1, size)
}

func TestOptimizeWithDumpBypassesCache(t *testing.T) {
	e := newTestEngine(t)
	tree := parse(t, "(scan emp :rows 10)")

	_, err := e.Optimize(context.Background(), tree)
	require.NoError(t, err)
	r, err := e.OptimizeWithDump(context.Background(), tree)
	require.NoError(t, err)

	assert.False(t, r.Cached)
	assert.Contains(t, r.Dump, "Sets:")
}

func TestCacheKeyDependsOnRules(t *testing.T) {
	all := newTestEngine(t)
	scanOnly := newTestEngine(t, func(c *Config) {
		c.Rules = []PhaseRule{{Rule: algebra.ImplementScan(), Phase: planner.PhaseOptimize}}
	})
	tree := parse(t, "(scan emp :rows 10 :index [0])")

	assert.NotEqual(t, all.cacheKey(tree), scanOnly.cacheKey(tree))
	assert.Equal(t, all.cacheKey(tree), all.cacheKey(parse(t, "(scan emp :rows 10 :index [0])")))

	r, err := scanOnly.Optimize(context.Background(), tree)
	require.NoError(t, err)
	assert.Equal(t, plan.KindTableScan, r.Plan.Kind(), "no index rule installed")
}

// pessimisticModel charges twice what the algebra model does
type pessimisticModel struct{ algebra.CostModel }

func (m pessimisticModel) SelfCost(e *planner.Expr, md planner.Metadata) plan.Cost {
	return m.CostModel.SelfCost(e, md).MultiplyBy(2)
}

func TestCacheKeyCoversModelTraitsAndPhases(t *testing.T) {
	base := newTestEngine(t)
	pessimistic := newTestEngine(t, func(c *Config) { c.Model = pessimisticModel{} })
	noConverter := newTestEngine(t, func(c *Config) { c.Traits[0].Converter = nil })
	noTraits := newTestEngine(t, func(c *Config) { c.Traits = nil })
	preProcess := newTestEngine(t, func(c *Config) {
		for i := range c.Rules {
			c.Rules[i].Phase = planner.PhasePreProcess
		}
	})
	tree := parse(t, "(scan emp :rows 10)")

	keys := map[string]string{}
	for name, e := range map[string]*Engine{
		"base":        base,
		"pessimistic": pessimistic,
		"noConverter": noConverter,
		"noTraits":    noTraits,
		"preProcess":  preProcess,
	} {
		key := e.cacheKey(tree)
		if other, ok := keys[key]; ok {
			t.Errorf("%s and %s share cache key %s", name, other, key)
		}
		keys[key] = name
	}

	r, err := base.Optimize(context.Background(), tree)
	require.NoError(t, err)
	assert.Equal(t, plan.ScalarCost(10), r.Cost)
	r, err = pessimistic.Optimize(context.Background(), tree)
	require.NoError(t, err)
	assert.Equal(t, plan.ScalarCost(20), r.Cost)
}

func TestDisableCache(t *testing.T) {
	e := newTestEngine(t, func(c *Config) { c.DisableCache = true })
	tree := parse(t, "(scan emp)")

	_, err := e.Optimize(context.Background(), tree)
	require.NoError(t, err)
	r, err := e.Optimize(context.Background(), tree)
	require.NoError(t, err)

	assert.False(t, r.Cached)
	assert.Nil(t, e.Cache())
}

func TestOptimizeCannotPlan(t *testing.T) {
	e := newTestEngine(t, func(c *Config) {
		c.Rules = []PhaseRule{{Rule: algebra.ImplementJoin(), Phase: planner.PhaseOptimize}}
	})

	_, err := e.Optimize(context.Background(), parse(t, "(scan emp)"))
	require.Error(t, err)
	assert.ErrorIs(t, err, planner.ErrCannotPlan)

	var cpe *planner.CannotPlanError
	require.True(t, errors.As(err, &cpe))
	assert.Contains(t, cpe.Dump, "Sets:")
}

func TestOptimizeCancelled(t *testing.T) {
	e := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Optimize(ctx, parse(t, "(scan emp)"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOptimizeBatch(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	e := newTestEngine(t, func(c *Config) { c.Workers = 4 })
	var trees []*planner.Expr
	for i := 1; i <= 20; i++ {
		trees = append(trees, parse(t, fmt.Sprintf("(filter (scan t%d :rows %d) :cond x)", i, i*100)))
	}

	outcomes, err := e.OptimizeBatch(context.Background(), trees)
	require.NoError(t, err)
	require.Len(t, outcomes, len(trees))

	for i, o := range outcomes {
		require.NoError(t, o.Err)
		assert.Same(t, trees[i], o.Result.Tree, "outcomes are in input order")
		assert.Contains(t, o.Result.Explain, fmt.Sprintf("table=t%d)", i+1))
	}
}

func TestOptimizeBatchReportsFailuresPerTree(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	e := newTestEngine(t, func(c *Config) {
		c.Rules = []PhaseRule{{Rule: algebra.ImplementScan(), Phase: planner.PhaseOptimize}}
	})
	trees := []*planner.Expr{
		parse(t, "(scan a)"),
		parse(t, "(filter (scan b) :cond x)"),
		parse(t, "(scan c)"),
	}

	outcomes, err := e.OptimizeBatch(context.Background(), trees)
	require.NoError(t, err)
	assert.NoError(t, outcomes[0].Err)
	assert.ErrorIs(t, outcomes[1].Err, planner.ErrCannotPlan)
	assert.Nil(t, outcomes[1].Result)
	assert.NoError(t, outcomes[2].Err)
}

func TestOptimizeBatchCancelled(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	e := newTestEngine(t, func(c *Config) { c.Workers = 2 })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	trees := []*planner.Expr{parse(t, "(scan a)"), parse(t, "(scan b)"), parse(t, "(scan c)")}
	outcomes, err := e.OptimizeBatch(ctx, trees)
	assert.ErrorIs(t, err, context.Canceled)
	for _, o := range outcomes {
		assert.Nil(t, o.Result)
		assert.ErrorIs(t, o.Err, context.Canceled)
	}
}

func TestOptimizePersists(t *testing.T) {
	store, err := planstore.OpenInMemory()
	require.NoError(t, err)
	defer store.Close()

	e := newTestEngine(t, func(c *Config) { c.Store = store })
	r, err := e.Optimize(context.Background(), parse(t, mergeJoinTree))
	require.NoError(t, err)

	rec, err := store.Get(r.Fingerprint)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, r.Explain, rec.Explain)
	assert.Equal(t, "{909}", rec.Cost)
	assert.Equal(t, r.RunID, rec.RunID)
	assert.Contains(t, rec.Rules, "JoinCommute")
	assert.True(t, strings.HasPrefix(rec.Tree, "Join"), rec.Tree)
}

func TestOptimizeAnnotates(t *testing.T) {
	var mu sync.Mutex
	counts := make(map[string]int)
	e := newTestEngine(t, func(c *Config) {
		c.Handler = func(ev annotations.Event) {
			mu.Lock()
			counts[ev.Name]++
			mu.Unlock()
		}
	})
	tree := parse(t, "(scan emp :rows 10 :index [0])")

	_, err := e.Optimize(context.Background(), tree)
	require.NoError(t, err)
	_, err = e.Optimize(context.Background(), tree)
	require.NoError(t, err)

	assert.Equal(t, 1, counts[annotations.OptimizeBegin])
	assert.Equal(t, 1, counts[annotations.OptimizeComplete])
	assert.Equal(t, 1, counts[annotations.OptimizeCached])
	assert.Equal(t, 1, counts[annotations.PlanChosen])
	assert.Positive(t, counts[annotations.RuleAttempted])
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(DefaultConfig())
	assert.ErrorContains(t, err, "no cost model")

	cfg, err := AlgebraConfig(algebra.ImplementScan(), algebra.ImplementScan())
	require.NoError(t, err)
	_, err = New(cfg)
	assert.ErrorContains(t, err, "configured twice")
}

func TestRulesInOtherPhases(t *testing.T) {
	e := newTestEngine(t, func(c *Config) {
		c.Rules = []PhaseRule{
			{Rule: algebra.ImplementScan(), Phase: planner.PhaseOptimize},
			{Rule: algebra.ScanToIndexScan(), Phase: planner.PhasePreProcess},
		}
	})

	r, err := e.Optimize(context.Background(), parse(t, "(scan emp :rows 100 :index [0])"))
	require.NoError(t, err)
	assert.Equal(t, plan.KindIndexScan, r.Plan.Kind())
}

package planner

import (
	"fmt"
	"testing"

	"github.com/wbrown/janus-volcano/volcano/plan"
)

// testCost is the payload of test expressions: their self cost
type testCost float64

type testModel struct{}

func (testModel) SelfCost(e *Expr, md Metadata) plan.Cost {
	if c, ok := e.Payload().(testCost); ok {
		return plan.ScalarCost(float64(c))
	}
	return plan.ScalarCost(1)
}

func (testModel) RowCount(e *Expr, md Metadata) float64 { return 100 }

var (
	logical  = plan.NewTraitSet(plan.None)
	physical = plan.NewTraitSet(plan.Physical)
)

// sorted is a second trait dimension: sorted input satisfies any order
type sorted bool

type sortedDef struct{}

func (sortedDef) Name() string { return "sorted" }

func (sortedDef) Default() plan.Trait { return sorted(false) }

func (s sorted) Def() plan.TraitDef { return sortedDef{} }

func (s sorted) Satisfies(other plan.Trait) bool {
	o, ok := other.(sorted)
	return ok && (bool(s) || !bool(o))
}

func (s sorted) String() string {
	if s {
		return "sorted"
	}
	return "any"
}

// sortConverter wraps physical inputs in a sort and declines logical ones
var sortConverter = TraitConverterFunc(func(p *Planner, n *Expr, to plan.Trait) *Expr {
	if n.Convention() != plan.Physical {
		return nil
	}
	return NewExpr(plan.KindSort, n.Traits().Replace(to), "", testCost(5), n)
})

// hashed is a third trait dimension, produced by a partitioning sort
type hashed bool

type hashedDef struct{}

func (hashedDef) Name() string { return "hashed" }

func (hashedDef) Default() plan.Trait { return hashed(false) }

func (h hashed) Def() plan.TraitDef { return hashedDef{} }

func (h hashed) Satisfies(other plan.Trait) bool {
	o, ok := other.(hashed)
	return ok && (bool(h) || !bool(o))
}

func (h hashed) String() string {
	if h {
		return "hashed"
	}
	return "any"
}

// hashConverter partitions physical inputs and keeps their other traits
var hashConverter = TraitConverterFunc(func(p *Planner, n *Expr, to plan.Trait) *Expr {
	if n.Convention() != plan.Physical {
		return nil
	}
	return NewExpr(plan.KindSort, n.Traits().Replace(to), "hash", testCost(3), n)
})

type testRule struct {
	name    string
	operand *Operand
	onMatch func(call *RuleCall) error
}

func (r *testRule) Name() string { return r.name }

func (r *testRule) Operand() *Operand { return r.operand }

func (r *testRule) OnMatch(call *RuleCall) error { return r.onMatch(call) }

// rewrite builds a rule that replaces the root operand with whatever fn returns
func rewrite(name string, op *Operand, fn func(call *RuleCall) *Expr) *testRule {
	return &testRule{name: name, operand: op, onMatch: func(call *RuleCall) error {
		if e := fn(call); e != nil {
			call.TransformTo(e)
		}
		return nil
	}}
}

func newTestPlanner(t *testing.T, configure ...func(*Options)) *Planner {
	t.Helper()
	opts := DefaultOptions()
	for _, fn := range configure {
		fn(&opts)
	}
	return NewPlanner(testModel{}, opts)
}

func tableScan(table string, cost float64) *Expr {
	return NewExpr(plan.KindTableScan, physical, "table="+table, testCost(cost))
}

func logicalScan(table string, cost float64) *Expr {
	return NewExpr(plan.KindScan, logical, "table="+table, testCost(cost))
}

// implementScan turns a logical scan into a table scan of the same cost
func implementScan() *testRule {
	return rewrite("ImplementScan", Match(plan.KindScan), func(call *RuleCall) *Expr {
		scan := call.Expr(0)
		return NewExpr(plan.KindTableScan, physical, scan.Attrs(), scan.Payload())
	})
}

// indexScan replaces a table scan with an index scan at 40% of its cost
func indexScan() *testRule {
	return rewrite("ScanToIndexScan", Match(plan.KindTableScan), func(call *RuleCall) *Expr {
		scan := call.Expr(0)
		return NewExpr(plan.KindIndexScan, physical, scan.Attrs(), scan.Payload().(testCost)*0.4)
	})
}

func implementJoin() *testRule {
	return rewrite("ImplementJoin", Match(plan.KindJoin), func(call *RuleCall) *Expr {
		join := call.Expr(0)
		inputs := make([]Node, join.Arity())
		for i := range inputs {
			inputs[i] = call.ChangeTraits(join.Input(i), physical)
		}
		return NewExpr(plan.KindHashJoin, physical, join.Attrs(), testCost(1), inputs...)
	})
}

func joinCommute() *testRule {
	return rewrite("JoinCommute", Match(plan.KindJoin), func(call *RuleCall) *Expr {
		join := call.Expr(0)
		return NewExpr(plan.KindJoin, join.Traits(), join.Attrs(), join.Payload(), join.Input(1), join.Input(0))
	})
}

// recordingListener captures planner callbacks for assertions
type recordingListener struct {
	discovered []DiscoveredEvent
	chosen     []ChosenEvent
	attempted  []RuleAttemptedEvent
	produced   []RuleProductionEvent
	afterFire  func(ev RuleAttemptedEvent)
}

func (l *recordingListener) ExpressionDiscovered(ev DiscoveredEvent) {
	l.discovered = append(l.discovered, ev)
}

func (l *recordingListener) ExpressionChosen(ev ChosenEvent) { l.chosen = append(l.chosen, ev) }

func (l *recordingListener) RuleAttempted(ev RuleAttemptedEvent) {
	l.attempted = append(l.attempted, ev)
	if !ev.Before && l.afterFire != nil {
		l.afterFire(ev)
	}
}

func (l *recordingListener) RuleProductionSucceeded(ev RuleProductionEvent) {
	l.produced = append(l.produced, ev)
}

func stepScan(kind plan.Kind, traits plan.TraitSet, step int) *Expr {
	return NewExpr(kind, traits, fmt.Sprintf("table=emp,step=%d", step), testCost(10))
}

func stepOf(e *Expr) int {
	var n int
	if _, err := fmt.Sscanf(e.Attrs(), "table=emp,step=%d", &n); err != nil {
		return -1
	}
	return n
}

// restep rewrites a scan of the given kind at step n into step n+1 of
// the same cost, up to last. Every firing registers exactly one new
// expression and queues exactly one new match.
func restep(kind plan.Kind, last int) *testRule {
	op := Match(kind).Where(func(e *Expr) bool {
		n := stepOf(e)
		return n >= 0 && n < last
	})
	return rewrite("Restep", op, func(call *RuleCall) *Expr {
		e := call.Expr(0)
		return stepScan(kind, e.Traits(), stepOf(e)+1)
	})
}

// implementStep implements only the logical scan at the given step
func implementStep(step int) *testRule {
	op := Match(plan.KindScan).Where(func(e *Expr) bool { return stepOf(e) == step })
	return rewrite("ImplementStep", op, func(call *RuleCall) *Expr {
		return stepScan(plan.KindTableScan, physical, step)
	})
}

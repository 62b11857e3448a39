package algebra

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-volcano/volcano/plan"
	"github.com/wbrown/janus-volcano/volcano/planner"
)

func optimize(t *testing.T, tree string, rules ...planner.Rule) (*planner.Planner, *planner.Expr) {
	t.Helper()
	expr, err := ParseTree(tree)
	require.NoError(t, err)
	p, err := NewPlanner(planner.DefaultOptions(), rules...)
	require.NoError(t, err)
	best, err := Optimize(p, expr)
	require.NoError(t, err)
	return p, best
}

func TestCollationSatisfies(t *testing.T) {
	assert.True(t, Collation{0, 1}.Satisfies(Collation{0}))
	assert.True(t, Collation{0, 1}.Satisfies(Collation(nil)))
	assert.True(t, Collation(nil).Satisfies(Collation{}))
	assert.False(t, Collation{0}.Satisfies(Collation{0, 1}))
	assert.False(t, Collation{1, 0}.Satisfies(Collation{0}))
	assert.False(t, Collation{0}.Satisfies(plan.Physical))
	assert.Equal(t, "[0, 1]", Collation{0, 1}.String())
	assert.Equal(t, "[]", Collation(nil).String())
	assert.Equal(t, "PHYSICAL.[2]", PhysicalSorted(2).String())
}

func TestScanPicksCheapestAccessPath(t *testing.T) {
	_, best := optimize(t, "(scan emp :rows 1000)")
	assert.Equal(t, plan.KindTableScan, best.Kind())

	p, best := optimize(t, "(scan emp :rows 1000 :index [0])")
	assert.Equal(t, plan.KindIndexScan, best.Kind())
	assert.Equal(t, plan.ScalarCost(400), p.Cost(best))
	assert.Equal(t, "PHYSICAL.[0]", best.Traits().String())
}

func TestMergeJoinOverIndexes(t *testing.T) {
	p, best := optimize(t, `(join (scan emp :rows 1000 :index [1])
	                               (scan dept :rows 10 :index [0])
	                               :on deptno :keys [1 0])`)
	require.Equal(t, plan.KindMergeJoin, best.Kind())
	assert.Equal(t, plan.ScalarCost(505+400+4), p.Cost(best))
	for _, in := range best.Inputs() {
		assert.Equal(t, plan.KindIndexScan, in.Kind())
	}
}

func TestSortFeedsMergeJoin(t *testing.T) {
	p, best := optimize(t, `(join (scan emp :rows 1000 :index [1])
	                               (scan dept :rows 10)
	                               :on deptno :keys [1 0])`)
	require.Equal(t, plan.KindMergeJoin, best.Kind())

	var kinds []plan.Kind
	for _, in := range best.Inputs() {
		kinds = append(kinds, in.Kind())
	}
	assert.ElementsMatch(t, []plan.Kind{plan.KindIndexScan, plan.KindSort}, kinds)
	assert.InDelta(t, 505+400+10+10*math.Log2(10), p.Cost(best).Value(), 1e-9)
}

func TestHashJoinWithoutKeys(t *testing.T) {
	p, best := optimize(t, "(join (scan emp :rows 1000) (scan dept :rows 10) :on \"e.sal > d.budget\")")
	assert.Equal(t, plan.KindHashJoin, best.Kind())
	assert.Equal(t, plan.ScalarCost(1010+1000+10), p.Cost(best))
}

func TestFilterMerge(t *testing.T) {
	_, best := optimize(t, `(filter (filter (scan emp :rows 1000) :cond a :selectivity 0.5)
	                                :cond b :selectivity 0.5)`)
	require.Equal(t, plan.KindCalc, best.Kind())
	assert.Equal(t, "cond=(b) AND (a)", best.Attrs())
	assert.Equal(t, plan.KindTableScan, best.Input(0).Kind())
}

func TestAggregateOverProject(t *testing.T) {
	_, best := optimize(t, `(aggregate (project (scan emp :rows 1000) :exprs "deptno, sal") :group deptno)`)
	assert.Equal(t, "HashAggregate.PHYSICAL.[](group=deptno)\n"+
		"  Calc.PHYSICAL.[](exprs=deptno, sal)\n"+
		"    TableScan.PHYSICAL.[](table=emp)", planner.Explain(best))
}

func TestMissingImplementationCannotPlan(t *testing.T) {
	expr, err := ParseTree("(join (scan emp) (scan dept))")
	require.NoError(t, err)
	p, err := NewPlanner(planner.DefaultOptions(), ImplementJoin())
	require.NoError(t, err)
	_, err = Optimize(p, expr)
	assert.ErrorIs(t, err, planner.ErrCannotPlan)
}

func TestCollationConverter(t *testing.T) {
	assert.Nil(t, CollationConverter.Convert(nil, Scan("emp", 10, nil), Collation{0}))

	scan := planner.NewExpr(plan.KindTableScan, Physical, "table=emp", Props{Rows: 10})
	sorted := CollationConverter.Convert(nil, scan, Collation{0})
	require.NotNil(t, sorted)
	assert.Equal(t, plan.KindSort, sorted.Kind())
	assert.Equal(t, "PHYSICAL.[0]", sorted.Traits().String())
	assert.Same(t, scan, sorted.Input(0))
}

// exprMetadata answers row counts for unregistered trees
type exprMetadata struct{}

func (exprMetadata) RowCount(n planner.Node) float64 {
	return CostModel{}.RowCount(n.(*planner.Expr), exprMetadata{})
}

func TestCostModel(t *testing.T) {
	m := CostModel{}
	md := exprMetadata{}
	emp := planner.NewExpr(plan.KindTableScan, Physical, "table=emp", Props{Rows: 1000})
	dept := planner.NewExpr(plan.KindTableScan, Physical, "table=dept", Props{Rows: 10})

	filter := planner.NewExpr(plan.KindCalc, Physical, "cond=x", Props{Cond: "x", Selectivity: 0.2}, emp)
	assert.Equal(t, 200.0, m.RowCount(filter, md))
	assert.Equal(t, plan.ScalarCost(250), m.SelfCost(filter, md))

	hash := planner.NewExpr(plan.KindHashJoin, Physical, "", nil, emp, dept)
	assert.Equal(t, 1000.0, m.RowCount(hash, md))
	assert.Equal(t, plan.ScalarCost(1010), m.SelfCost(hash, md))

	loop := planner.NewExpr(plan.KindNestedLoopJoin, Physical, "", nil, emp, dept)
	assert.Equal(t, plan.ScalarCost(10000), m.SelfCost(loop, md))

	agg := planner.NewExpr(plan.KindHashAggregate, Physical, "", nil, dept)
	assert.Equal(t, 1.0, m.RowCount(agg, md))

	sort := Sort(dept, PhysicalSorted(0))
	assert.InDelta(t, 10*math.Log2(10), m.SelfCost(sort, md).Value(), 1e-9)

	unknownSelectivity := Filter(emp, "y", 0)
	assert.Equal(t, 500.0, m.RowCount(unknownSelectivity, md))
}

func TestRulesByName(t *testing.T) {
	names := RuleNames()
	assert.Len(t, names, 8)
	assert.IsIncreasing(t, names)

	rules, err := Rules("JoinCommute", "FilterMerge")
	require.NoError(t, err)
	assert.Equal(t, "JoinCommute", rules[0].Name())

	_, err = Rules("Nope")
	assert.EqualError(t, err, `unknown rule "Nope"`)
}

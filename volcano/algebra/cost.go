package algebra

import (
	"math"

	"github.com/wbrown/janus-volcano/volcano/plan"
	"github.com/wbrown/janus-volcano/volcano/planner"
)

const (
	defaultSelectivity = 0.5
	joinSelectivity    = 0.1
	groupReduction     = 0.1
	indexScanFactor    = 0.4
	calcFactor         = 0.25
	mergeJoinFactor    = 0.5
)

// CostModel estimates costs from row counts. Scans know their row
// count; everything else derives it from its inputs.
type CostModel struct{}

var _ planner.CostModel = CostModel{}

// RowCount estimates the number of rows e produces
func (CostModel) RowCount(e *planner.Expr, md planner.Metadata) float64 {
	p := PropsOf(e)
	input := func(i int) float64 { return md.RowCount(e.Input(i)) }

	switch e.Kind() {
	case plan.KindScan, plan.KindTableScan, plan.KindIndexScan:
		return math.Max(p.Rows, 1)
	case plan.KindFilter:
		return input(0) * selectivity(p)
	case plan.KindCalc:
		if p.Cond != "" {
			return input(0) * selectivity(p)
		}
		return input(0)
	case plan.KindJoin, plan.KindHashJoin, plan.KindMergeJoin, plan.KindNestedLoopJoin:
		return math.Max(input(0)*input(1)*joinSelectivity, 1)
	case plan.KindAggregate, plan.KindHashAggregate:
		return math.Max(input(0)*groupReduction, 1)
	default:
		if e.Arity() > 0 {
			return input(0)
		}
		return 1
	}
}

// SelfCost is the cost of running e alone
func (m CostModel) SelfCost(e *planner.Expr, md planner.Metadata) plan.Cost {
	p := PropsOf(e)
	input := func(i int) float64 { return md.RowCount(e.Input(i)) }

	switch e.Kind() {
	case plan.KindTableScan:
		return plan.ScalarCost(math.Max(p.Rows, 1))
	case plan.KindIndexScan:
		return plan.ScalarCost(math.Max(p.Rows, 1) * indexScanFactor)
	case plan.KindCalc:
		return plan.ScalarCost(input(0) * calcFactor)
	case plan.KindHashJoin:
		return plan.ScalarCost(input(0) + input(1))
	case plan.KindMergeJoin:
		return plan.ScalarCost((input(0) + input(1)) * mergeJoinFactor)
	case plan.KindNestedLoopJoin:
		return plan.ScalarCost(input(0) * input(1))
	case plan.KindHashAggregate:
		return plan.ScalarCost(input(0))
	case plan.KindSort:
		n := math.Max(input(0), 2)
		return plan.ScalarCost(n * math.Log2(n))
	default:
		return plan.ScalarCost(m.RowCount(e, md))
	}
}

func selectivity(p Props) float64 {
	if p.Selectivity <= 0 || p.Selectivity > 1 {
		return defaultSelectivity
	}
	return p.Selectivity
}

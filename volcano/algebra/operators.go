package algebra

import (
	"strings"

	"github.com/wbrown/janus-volcano/volcano/plan"
	"github.com/wbrown/janus-volcano/volcano/planner"
)

// Props carries the operator properties the cost model needs. Only the
// fields that identify an operator are copied into its digest.
type Props struct {
	Table       string
	Rows        float64
	Index       Collation // ordering of the table's index, empty if none
	Cond        string
	Selectivity float64
	Exprs       string
	On          string
	LeftKey     int // join field in the left input, -1 if none
	RightKey    int
	Group       string
}

// PropsOf returns the properties of e, or zero Props
func PropsOf(e *planner.Expr) Props {
	if p, ok := e.Payload().(Props); ok {
		return p
	}
	return Props{LeftKey: -1, RightKey: -1}
}

// attrs builds the canonical attribute string from key/value pairs,
// skipping empty values
func attrs(kv ...string) string {
	var parts []string
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			parts = append(parts, kv[i]+"="+kv[i+1])
		}
	}
	return strings.Join(parts, ",")
}

func (p Props) attrs() string {
	index := ""
	if len(p.Index) > 0 {
		index = p.Index.String()
	}
	return attrs("table", p.Table, "index", index, "cond", p.Cond, "exprs", p.Exprs, "on", p.On, "group", p.Group)
}

// Scan reads a table. index is the ordering an index on the table
// provides; nil if there is none.
func Scan(table string, rows float64, index Collation) *planner.Expr {
	p := Props{Table: table, Rows: rows, Index: index, LeftKey: -1, RightKey: -1}
	return planner.NewExpr(plan.KindScan, Logical, p.attrs(), p)
}

// Filter keeps the rows of input matching cond. A selectivity of zero
// means the default estimate.
func Filter(input planner.Node, cond string, selectivity float64) *planner.Expr {
	p := Props{Cond: cond, Selectivity: selectivity, LeftKey: -1, RightKey: -1}
	return planner.NewExpr(plan.KindFilter, Logical, p.attrs(), p, input)
}

// Project computes exprs over every row of input
func Project(input planner.Node, exprs string) *planner.Expr {
	p := Props{Exprs: exprs, LeftKey: -1, RightKey: -1}
	return planner.NewExpr(plan.KindProject, Logical, p.attrs(), p, input)
}

// Join is an inner join on the named condition. leftKey and rightKey
// are the joined field ordinals, or -1 when the condition is not a
// simple equality; only equi-joins can be merge joined.
func Join(left, right planner.Node, on string, leftKey, rightKey int) *planner.Expr {
	p := Props{On: on, LeftKey: leftKey, RightKey: rightKey}
	return planner.NewExpr(plan.KindJoin, Logical, p.attrs(), p, left, right)
}

// Aggregate groups input by the named fields
func Aggregate(input planner.Node, group string) *planner.Expr {
	p := Props{Group: group, LeftKey: -1, RightKey: -1}
	return planner.NewExpr(plan.KindAggregate, Logical, p.attrs(), p, input)
}

// Sort orders input by collation
func Sort(input planner.Node, traits plan.TraitSet) *planner.Expr {
	return planner.NewExpr(plan.KindSort, traits, "", Props{LeftKey: -1, RightKey: -1}, input)
}

// implement re-creates e as kind with new traits and inputs, keeping
// its attributes and properties
func implement(e *planner.Expr, kind plan.Kind, traits plan.TraitSet, inputs ...planner.Node) *planner.Expr {
	return planner.NewExpr(kind, traits, e.Attrs(), e.Payload(), inputs...)
}

package plan

import (
	"math"
	"strconv"
)

// Cost is the planner's cost contract. Costs are non-negative, totally
// ordered, additive, and have a distinguished infinite value.
type Cost interface {
	Less(other Cost) bool
	LessOrEqual(other Cost) bool
	Plus(other Cost) Cost
	MultiplyBy(factor float64) Cost
	IsInfinite() bool
	// Value collapses the cost to a single number for importance ratios
	Value() float64
	String() string
}

// CostFactory creates the distinguished cost values.
type CostFactory interface {
	Zero() Cost
	Tiny() Cost
	Huge() Cost
	Infinite() Cost
	Make(v float64) Cost
}

// ScalarCost is a cost measured by a single number
type ScalarCost float64

// ScalarCosts is the factory for ScalarCost
var ScalarCosts CostFactory = scalarCosts{}

type scalarCosts struct{}

func (scalarCosts) Zero() Cost { return ScalarCost(0) }
func (scalarCosts) Tiny() Cost { return ScalarCost(1) }
func (scalarCosts) Huge() Cost { return ScalarCost(math.MaxFloat64) }
func (scalarCosts) Infinite() Cost { return ScalarCost(math.Inf(1)) }
func (scalarCosts) Make(v float64) Cost { return ScalarCost(v) }

func (c ScalarCost) Less(other Cost) bool {
	if c.IsInfinite() {
		return false
	}
	return float64(c) < other.Value()
}

func (c ScalarCost) LessOrEqual(other Cost) bool {
	if other.IsInfinite() {
		return true
	}
	return float64(c) <= other.Value()
}

func (c ScalarCost) Plus(other Cost) Cost {
	if c.IsInfinite() || other.IsInfinite() {
		return ScalarCost(math.Inf(1))
	}
	return c + ScalarCost(other.Value())
}

func (c ScalarCost) MultiplyBy(factor float64) Cost {
	if c.IsInfinite() {
		return c
	}
	return ScalarCost(float64(c) * factor)
}

func (c ScalarCost) IsInfinite() bool { return math.IsInf(float64(c), 1) }

func (c ScalarCost) Value() float64 { return float64(c) }

func (c ScalarCost) String() string {
	if c.IsInfinite() {
		return "{inf}"
	}
	return "{" + strconv.FormatFloat(float64(c), 'g', 6, 64) + "}"
}

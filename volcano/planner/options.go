package planner

import "github.com/wbrown/janus-volcano/volcano/plan"

// Options configures the search loop
type Options struct {
	// Ambitious keeps searching after the first finite plan, each time
	// demanding CostImprovement of the current best
	Ambitious bool
	// Impatient gives up a bounded number of ticks after the first finite plan
	Impatient bool

	CostImprovement   float64 // target factor in ambitious mode (default 0.9)
	ImpatientMinTicks int     // minimum extra ticks in impatient mode (default 25)
	ImpatientDivisor  int     // extra ticks = firstFiniteTick / divisor (default 10)

	BoostInterval int     // ticks between boosts while the root is unplanned (default 10)
	BoostFactor   float64 // importance multiplier for logical-only subsets (default 1.25)

	InitialImportanceDecay float64 // importance = decay^depth below the root (default 0.9)

	// NoneConventionInfiniteCost makes logical expressions unimplementable
	NoneConventionInfiniteCost bool

	// MaxTicks aborts the search after this many ticks in total (0 = no limit)
	MaxTicks int

	TrackProvenance bool
	// CheckInvariants validates the whole registry after every fired match
	CheckInvariants bool

	Costs plan.CostFactory
}

// DefaultOptions returns the options the planner is tuned for
func DefaultOptions() Options {
	return Options{
		Ambitious:                  true,
		Impatient:                  false,
		CostImprovement:            0.9,
		ImpatientMinTicks:          25,
		ImpatientDivisor:           10,
		BoostInterval:              10,
		BoostFactor:                1.25,
		InitialImportanceDecay:     0.9,
		NoneConventionInfiniteCost: true,
		Costs:                      plan.ScalarCosts,
	}
}

// withDefaults fills zero numeric fields from DefaultOptions
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.CostImprovement <= 0 || o.CostImprovement >= 1 {
		o.CostImprovement = d.CostImprovement
	}
	if o.ImpatientMinTicks <= 0 {
		o.ImpatientMinTicks = d.ImpatientMinTicks
	}
	if o.ImpatientDivisor <= 0 {
		o.ImpatientDivisor = d.ImpatientDivisor
	}
	if o.BoostInterval <= 0 {
		o.BoostInterval = d.BoostInterval
	}
	if o.BoostFactor <= 0 {
		o.BoostFactor = d.BoostFactor
	}
	if o.InitialImportanceDecay <= 0 || o.InitialImportanceDecay >= 1 {
		o.InitialImportanceDecay = d.InitialImportanceDecay
	}
	if o.Costs == nil {
		o.Costs = d.Costs
	}
	return o
}

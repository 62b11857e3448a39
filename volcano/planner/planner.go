// Package planner is a cost-based, rule-driven query optimizer in the
// Volcano style. Expressions are grouped into equivalence sets, each set
// is split into subsets by physical traits, and rules are fired in order
// of importance until the cheapest plan for the root stops improving.
//
// File organization:
//   - planner.go: Planner struct, SetRoot and the FindBest search loop
//   - registry.go: registration, digests, set merging and renaming
//   - set.go / subset.go: equivalence sets, subsets and cost propagation
//   - rule.go / rulecall.go: rules, operand patterns, matching and firing
//   - rulequeue.go: per-phase match lists and importance bookkeeping
//   - converter.go: trait definitions, converters and conversion search
//   - extract.go: building the cheapest plan from the registry
//   - dump.go: registry dumps, plan explain strings and normalization
//   - validate.go: registry consistency checks
//   - provenance.go: which rule call produced each expression
//
// Start with SetRoot() and FindBest() in planner.go.
package planner

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/google/btree"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wbrown/janus-volcano/volcano/logging"
	"github.com/wbrown/janus-volcano/volcano/plan"
)

// CostModel supplies operator-specific costs. The planner only adds
// and compares what it returns.
type CostModel interface {
	// SelfCost is the cost of e alone, excluding its inputs
	SelfCost(e *Expr, md Metadata) plan.Cost
	// RowCount estimates the number of rows e produces
	RowCount(e *Expr, md Metadata) float64
}

// Metadata answers questions about inputs while costing an expression
type Metadata interface {
	RowCount(n Node) float64
}

// Planner owns one optimization run. It is not safe for concurrent use;
// separate planners share nothing.
type Planner struct {
	options Options
	model   CostModel
	costs   plan.CostFactory
	runID   string
	log     zerolog.Logger

	traitDefs  []plan.TraitDef
	converters map[string]TraitConverter

	// Registry. Index 0 of exprs is unused so that ExprID 0 means unregistered.
	sets        []*set
	live        *btree.BTreeG[*set]
	subsets     []*Subset
	exprs       []*Expr
	exprSubset  map[ExprID]SubsetID
	digests     map[string]*Expr
	importances map[ExprID]float64
	provenance  map[ExprID]Provenance

	rules        map[string]*ruleEntry
	ruleOrder    []*ruleEntry
	kindOperands map[plan.Kind][]*operandRef
	queue        *ruleQueue
	callStack    []*RuleCall
	nextCallID   int

	root         *Subset
	originalRoot *Expr
	originalPlan string

	listener      Listener
	locked        bool
	registerCount int
	ticks         int
	rowCountBusy  map[SetID]struct{}
}

// NewPlanner creates a planner with the convention trait as its only
// trait dimension. Add further dimensions with AddTraitDef before
// registering anything.
func NewPlanner(model CostModel, options Options) *Planner {
	options = options.withDefaults()
	p := &Planner{
		options:    options,
		model:      model,
		costs:      options.Costs,
		runID:      uuid.NewString(),
		converters: make(map[string]TraitConverter),
	}
	p.log = logging.Logger.With().Str("planner", p.runID).Logger()
	p.traitDefs = []plan.TraitDef{plan.ConventionDef}
	p.reset()
	return p
}

func (p *Planner) reset() {
	p.sets = nil
	p.live = btree.NewG[*set](8, func(a, b *set) bool { return a.id < b.id })
	p.subsets = nil
	p.exprs = []*Expr{nil}
	p.exprSubset = make(map[ExprID]SubsetID)
	p.digests = make(map[string]*Expr)
	p.importances = make(map[ExprID]float64)
	p.provenance = make(map[ExprID]Provenance)
	p.rules = make(map[string]*ruleEntry)
	p.ruleOrder = nil
	p.kindOperands = make(map[plan.Kind][]*operandRef)
	p.queue = newRuleQueue(p)
	p.callStack = nil
	p.root = nil
	p.originalRoot = nil
	p.originalPlan = ""
	p.rowCountBusy = make(map[SetID]struct{})
}

// Clear forgets every rule, expression and set
func (p *Planner) Clear() {
	p.reset()
	p.locked = false
	p.ticks = 0
	p.registerCount = 0
}

// RunID identifies this planner in logs and events
func (p *Planner) RunID() string { return p.runID }

// Options returns the effective options
func (p *Planner) Options() Options { return p.options }

// Costs returns the cost factory
func (p *Planner) Costs() plan.CostFactory { return p.costs }

// Ticks returns the number of search iterations run so far
func (p *Planner) Ticks() int { return p.ticks }

// RegisterCount returns the number of registrations performed
func (p *Planner) RegisterCount() int { return p.registerCount }

// SetRoot registers the tree rooted at n and makes its subset the
// root. Pass the result of ChangeTraits to demand particular traits of
// the final plan.
func (p *Planner) SetRoot(n Node) *Subset {
	p.root = p.EnsureRegistered(n, nil)
	if p.originalPlan == "" {
		if e, ok := n.(*Expr); ok {
			p.originalRoot = e
		}
		p.originalPlan = Explain(n)
	}
	// Making a subset the root changes its importance
	p.queue.recompute(p.root, true)
	p.ensureRootConverters()
	p.log.Debug().Stringer("root", p.root).Msg("set root")
	return p.root
}

// Root returns the canonical root subset, or nil before SetRoot
func (p *Planner) Root() *Subset {
	if p.root == nil {
		return nil
	}
	return p.Canonize(p.root)
}

// SetImportance records an explicit importance for e. Only zero is
// kept: it prunes e, so matches binding it never fire.
func (p *Planner) SetImportance(e *Expr, importance float64) {
	if importance == 0 {
		p.importances[e.id] = 0
	}
}

// Importance returns the cached importance of a subset
func (p *Planner) Importance(s *Subset) float64 {
	return p.queue.getImportance(s)
}

// Cost returns the cumulative cost of n: a subset costs its best, an
// expression costs itself plus its inputs. Abstract converters, and
// logical expressions when NoneConventionInfiniteCost is set, are
// infinitely expensive.
func (p *Planner) Cost(n Node) plan.Cost {
	switch n := n.(type) {
	case *Subset:
		return n.bestCost
	case *Expr:
		if n.IsAbstractConverter() {
			return p.costs.Infinite()
		}
		if p.options.NoneConventionInfiniteCost && n.traits.Convention() == plan.None {
			return p.costs.Infinite()
		}
		cost := p.model.SelfCost(n, p)
		if !p.costs.Zero().Less(cost) {
			cost = p.costs.Tiny()
		}
		for _, in := range n.inputs {
			cost = cost.Plus(p.Cost(in))
		}
		return cost
	}
	return p.costs.Infinite()
}

// RowCount implements Metadata. A subset is estimated from its best
// expression, or from the first member of its set.
func (p *Planner) RowCount(n Node) float64 {
	switch n := n.(type) {
	case *Expr:
		return p.model.RowCount(n, p)
	case *Subset:
		if n.best != nil {
			return p.model.RowCount(n.best, p)
		}
		root := p.equivRoot(n.set)
		if _, busy := p.rowCountBusy[root]; busy {
			return 1
		}
		s := p.sets[root]
		if s.first == 0 {
			return 1
		}
		p.rowCountBusy[root] = struct{}{}
		defer delete(p.rowCountBusy, root)
		return p.model.RowCount(p.exprs[s.first], p)
	}
	return 1
}

// FindBest runs every phase and returns the cheapest plan for the root.
// It returns a *CannotPlanError if some subset needed by the plan has
// no implementable member, and the first error returned by a rule.
func (p *Planner) FindBest() (*Expr, error) {
	return p.FindBestContext(context.Background())
}

// FindBestContext is FindBest, checking ctx between ticks. A cancelled
// search returns ctx's error and leaves the registry as it was.
func (p *Planner) FindBestContext(ctx context.Context) (*Expr, error) {
	if p.root == nil {
		return nil, fmt.Errorf("find best: no root has been set")
	}
	p.ensureRootConverters()

	aborted := false
	for _, phase := range Phases {
		if !aborted {
			var err error
			aborted, err = p.runPhase(ctx, phase)
			if err != nil {
				return nil, err
			}
		}
		p.queue.phaseCompleted(phase)
	}

	if p.log.GetLevel() <= zerolog.TraceLevel {
		p.log.Trace().Msg(p.Dump())
	}
	best, err := p.buildCheapestPlan(p.Root())
	if err != nil {
		return nil, err
	}
	p.log.Debug().Stringer("cost", p.Root().bestCost).Int("ticks", p.ticks).Msg("cheapest plan")
	return best, nil
}

// runPhase drains one phase's match list. It reports whether the tick
// budget ran out.
func (p *Planner) runPhase(ctx context.Context, phase Phase) (bool, error) {
	p.setInitialImportance()
	p.log.Debug().Stringer("phase", phase).Int("pending", p.queue.pending(phase)).Msg("phase begin")

	target := p.costs.Huge()
	tick := 0
	firstFiniteTick := -1
	giveUpTick := math.MaxInt
	for {
		if err := ctx.Err(); err != nil {
			return false, fmt.Errorf("find best: %w", err)
		}
		tick++
		p.ticks++
		root := p.Root()
		if root.bestCost.LessOrEqual(target) {
			if firstFiniteTick < 0 {
				firstFiniteTick = p.ticks
				p.clearImportanceBoost()
			}
			if !p.options.Ambitious {
				break
			}
			// Ask for a cheaper plan, and give it a few more ticks when impatient
			target = root.bestCost.MultiplyBy(p.options.CostImprovement)
			if p.options.Impatient {
				giveUpTick = p.impatientGiveUpTick(firstFiniteTick)
			}
		} else if p.ticks > giveUpTick {
			p.log.Debug().Int("tick", p.ticks).Msg("no recent progress, taking current best")
			break
		} else if root.bestCost.IsInfinite() && tick%p.options.BoostInterval == 0 {
			p.injectImportanceBoost()
		}
		if p.options.MaxTicks > 0 && p.ticks > p.options.MaxTicks {
			p.log.Warn().Int("ticks", p.ticks).Stringer("phase", phase).Msg("tick budget exhausted")
			return true, nil
		}

		p.log.Debug().
			Int("tick", p.ticks).
			Int("phaseTick", tick).
			Stringer("phase", phase).
			Stringer("cost", root.bestCost).
			Msg("planner tick")

		m := p.queue.popMatch(phase)
		if m == nil {
			break
		}
		if err := p.fire(m); err != nil {
			return false, err
		}
		if p.options.CheckInvariants {
			if err := p.Validate(); err != nil {
				invariantf("after %s: %v", m.digest, err)
			}
		}
		// The root may have been merged into another set
		p.root = p.Canonize(p.root)
	}
	return false, nil
}

// impatientGiveUpTick bounds the extra work after the first finite plan:
// a fixed minimum if it came almost at once, otherwise a tenth of the
// ticks it took, but never less than the minimum.
func (p *Planner) impatientGiveUpTick(firstFiniteTick int) int {
	minTicks := p.options.ImpatientMinTicks
	if firstFiniteTick < p.options.ImpatientDivisor {
		return p.ticks + minTicks
	}
	extra := firstFiniteTick / p.options.ImpatientDivisor
	if extra < minTicks {
		extra = minTicks
	}
	return p.ticks + extra
}

// setInitialImportance seeds subset importances by depth below the root
func (p *Planner) setInitialImportance() {
	root := p.Root()
	visited := make(map[SubsetID]struct{})
	var visit func(s *Subset, depth int)
	visit = func(s *Subset, depth int) {
		if _, ok := visited[s.id]; ok {
			return
		}
		visited[s.id] = struct{}{}
		if s != root {
			p.queue.updateImportance(s, math.Pow(p.options.InitialImportanceDecay, float64(depth)))
		}
		for _, e := range p.Members(s) {
			for _, in := range e.inputs {
				if child, ok := in.(*Subset); ok {
					visit(p.Canonize(child), depth+1)
				}
			}
		}
	}
	visit(root, 0)
}

// injectImportanceBoost raises every subset that holds only logical
// expressions, to push the search toward an implementable plan.
func (p *Planner) injectImportanceBoost() {
	ids := make([]SubsetID, 0, len(p.queue.importances))
	for sid := range p.queue.importances {
		ids = append(ids, sid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	root := p.Root()
	var boost []*Subset
	for _, sid := range ids {
		s := p.subsets[sid]
		if s == root || p.sets[s.set].dead() {
			continue
		}
		logical := true
		for _, e := range p.Members(s) {
			if e.traits.Convention() != plan.None {
				logical = false
				break
			}
		}
		if logical {
			boost = append(boost, s)
		}
	}
	p.log.Debug().Int("subsets", len(boost)).Msg("boost importance")
	p.queue.boostImportance(boost, p.options.BoostFactor)
}

func (p *Planner) clearImportanceBoost() {
	p.queue.boostImportance(nil, 1.0)
}

// Stats summarizes the registry
type Stats struct {
	Sets        int
	LiveSets    int
	Subsets     int
	Expressions int
	Rules       int
	Ticks       int
	Registers   int
}

// Stats returns registry counters
func (p *Planner) Stats() Stats {
	return Stats{
		Sets:        len(p.sets),
		LiveSets:    p.live.Len(),
		Subsets:     len(p.subsets),
		Expressions: len(p.exprs) - 1,
		Rules:       len(p.ruleOrder),
		Ticks:       p.ticks,
		Registers:   p.registerCount,
	}
}

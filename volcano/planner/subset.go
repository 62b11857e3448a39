package planner

import (
	"fmt"

	"github.com/wbrown/janus-volcano/volcano/plan"
)

// SubsetID identifies a subset within one planner
type SubsetID int

// Subset is the part of an equivalence set whose members satisfy a
// given trait set. It records the cheapest member found so far. A
// subset belongs to the set it was created in for its whole life; after
// that set is merged away, Planner.Canonize finds its live counterpart.
type Subset struct {
	id        SubsetID
	set       SetID
	traits    plan.TraitSet
	digest    string
	best      *Expr
	bestCost  plan.Cost
	timestamp int64
	boosted   bool
}

func newSubset(id SubsetID, set SetID, traits plan.TraitSet, infinite plan.Cost) *Subset {
	return &Subset{
		id:       id,
		set:      set,
		traits:   traits,
		digest:   fmt.Sprintf("Subset#%d.%s", set, traits),
		bestCost: infinite,
	}
}

func (s *Subset) isNode() {}

// Kind is always plan.KindSubset
func (s *Subset) Kind() plan.Kind { return plan.KindSubset }

func (s *Subset) Traits() plan.TraitSet { return s.traits }

// Digest is "Subset#<set id>.<traits>"
func (s *Subset) Digest() string { return s.digest }

func (s *Subset) ID() SubsetID { return s.id }

// SetID returns the id of the set the subset was created in
func (s *Subset) SetID() SetID { return s.set }

// Best returns the cheapest known member, or nil
func (s *Subset) Best() *Expr { return s.best }

// BestCost returns the cost of Best, infinite if there is none
func (s *Subset) BestCost() plan.Cost { return s.bestCost }

// Timestamp counts cost propagation visits
func (s *Subset) Timestamp() int64 { return s.timestamp }

func (s *Subset) String() string { return s.digest }

// Members returns the registered expressions of the subset's live set
// whose traits satisfy the subset's traits.
func (p *Planner) Members(s *Subset) []*Expr {
	set := p.sets[p.equivRoot(s.set)]
	var members []*Expr
	for _, id := range set.exprs {
		e := p.exprs[id]
		if e.traits.Satisfies(s.traits) {
			members = append(members, e)
		}
	}
	return members
}

// subsetParents returns parent expressions consuming the subset's set
// under traits the subset satisfies.
func (p *Planner) subsetParents(s *Subset) []*Expr {
	set := p.sets[s.set]
	var parents []*Expr
	seen := make(map[ExprID]struct{})
	for _, id := range set.parents {
		if _, ok := seen[id]; ok {
			continue
		}
		parent := p.exprs[id]
		for _, in := range parent.inputs {
			is, ok := in.(*Subset)
			if ok && is.set == s.set && s.traits.Satisfies(is.traits) {
				seen[id] = struct{}{}
				parents = append(parents, parent)
				break
			}
		}
	}
	return parents
}

// parentSubsets returns the subsets of parent expressions that use
// exactly this subset as an input.
func (p *Planner) parentSubsets(s *Subset) []*Subset {
	set := p.sets[s.set]
	var subsets []*Subset
	seen := make(map[SubsetID]struct{})
	for _, id := range set.parents {
		parent := p.exprs[id]
		for _, in := range parent.inputs {
			if in != Node(s) {
				continue
			}
			ps := p.subsetOfExpr(parent)
			if ps == nil {
				break
			}
			if _, ok := seen[ps.id]; !ok {
				seen[ps.id] = struct{}{}
				subsets = append(subsets, ps)
			}
			break
		}
	}
	return subsets
}

// propagateCostImprovements offers e as a new best to every subset of
// its set that e satisfies.
func (p *Planner) propagateCostImprovements(e *Expr, active map[SubsetID]struct{}) {
	set := p.sets[p.subsetOfExpr(e).set]
	for _, sid := range append([]SubsetID(nil), set.subsets...) {
		s := p.subsets[sid]
		if e.traits.Satisfies(s.traits) {
			p.propagateCostImprovement(s, e, active)
		}
	}
}

// propagateCostImprovement updates s if e is cheaper than its best and
// pushes the improvement to every parent. A subset already on the
// active chain is skipped: the graph is cyclic there, and the cost of e
// along that path cannot be trusted.
func (p *Planner) propagateCostImprovement(s *Subset, e *Expr, active map[SubsetID]struct{}) {
	s.timestamp++
	if _, ok := active[s.id]; ok {
		p.log.Trace().Stringer("subset", s).Msg("cyclic cost propagation")
		return
	}
	active[s.id] = struct{}{}
	defer delete(active, s.id)

	cost := p.Cost(e)
	if !cost.Less(s.bestCost) {
		return
	}
	p.log.Trace().
		Stringer("subset", s).
		Stringer("was", s.bestCost).
		Stringer("now", cost).
		Msg("subset cost improved")
	s.bestCost = cost
	s.best = e

	// Lower cost means lower importance
	p.queue.recompute(s, false)
	for _, parent := range p.subsetParents(s) {
		ps := p.subsetOfExpr(parent)
		if ps == nil {
			continue
		}
		p.propagateCostImprovements(parent, active)
	}
	p.checkForSatisfiedConverters(s.set, e)
}

// propagateBoostRemoval recomputes the importance of s and of every
// ancestor that was boosted on its behalf.
func (p *Planner) propagateBoostRemoval(s *Subset) {
	p.queue.recompute(s, false)
	if !s.boosted {
		return
	}
	s.boosted = false
	for _, parent := range p.parentSubsets(s) {
		p.propagateBoostRemoval(parent)
	}
}

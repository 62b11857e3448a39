package planner

import (
	"sort"

	"github.com/wbrown/janus-volcano/volcano/plan"
)

// SetID identifies an equivalence set. Ids are handed out in creation
// order and double as the merge order: the smaller id survives.
type SetID int

const noSet SetID = -1

// set is an equivalence class of expressions. Once merged into another
// set it is dead: equivalent points at the survivor (possibly through a
// chain) and it is only consulted to follow that chain.
type set struct {
	id      SetID
	exprs   []ExprID
	subsets []SubsetID
	// parents holds every expression with an input in this set, once per input edge
	parents []ExprID
	// abstractConverters are placeholders still waiting for a real conversion
	abstractConverters []ExprID
	equivalent         SetID
	first              ExprID

	varsPropagated map[string]struct{}
	varsUsed       map[string]struct{}
}

func newSet(id SetID) *set {
	return &set{
		id:             id,
		equivalent:     noSet,
		varsPropagated: make(map[string]struct{}),
		varsUsed:       make(map[string]struct{}),
	}
}

func (s *set) dead() bool { return s.equivalent != noSet }

func (s *set) containsExpr(id ExprID) bool {
	for _, x := range s.exprs {
		if x == id {
			return true
		}
	}
	return false
}

func (s *set) removeExpr(id ExprID) {
	for i, x := range s.exprs {
		if x == id {
			s.exprs = append(s.exprs[:i], s.exprs[i+1:]...)
			return
		}
	}
}

// removeParent drops one occurrence of id from the parent multiset
func (s *set) removeParent(id ExprID) {
	for i, x := range s.parents {
		if x == id {
			s.parents = append(s.parents[:i], s.parents[i+1:]...)
			return
		}
	}
}

func (s *set) removeAbstractConverter(id ExprID) bool {
	for i, x := range s.abstractConverters {
		if x == id {
			s.abstractConverters = append(s.abstractConverters[:i], s.abstractConverters[i+1:]...)
			return true
		}
	}
	return false
}

// distinctParents returns parent ids without repeats, in first-seen order
func (s *set) distinctParents() []ExprID {
	seen := make(map[ExprID]struct{}, len(s.parents))
	out := make([]ExprID, 0, len(s.parents))
	for _, id := range s.parents {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func sortedVars(vars map[string]struct{}) []string {
	out := make([]string, 0, len(vars))
	for v := range vars {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// newSet allocates a set in the arena, seeded with e's correlation
// variables: those used below e but not defined by e itself propagate.
func (p *Planner) newSet(e *Expr) *set {
	s := newSet(SetID(len(p.sets)))
	defined := make(map[string]struct{}, len(e.varsSet))
	for _, v := range e.varsSet {
		defined[v] = struct{}{}
	}
	for _, v := range p.variablesUsedBelow(e) {
		s.varsUsed[v] = struct{}{}
		if _, ok := defined[v]; !ok {
			s.varsPropagated[v] = struct{}{}
		}
	}
	p.sets = append(p.sets, s)
	p.live.ReplaceOrInsert(s)
	return s
}

// variablesUsedBelow collects the correlation variables read by e and
// propagated up by its inputs.
func (p *Planner) variablesUsedBelow(e *Expr) []string {
	vars := make(map[string]struct{})
	for _, v := range e.varsUsed {
		vars[v] = struct{}{}
	}
	for _, in := range e.inputs {
		switch in := in.(type) {
		case *Subset:
			for v := range p.sets[p.equivRoot(in.set)].varsPropagated {
				vars[v] = struct{}{}
			}
		case *Expr:
			for _, v := range p.variablesUsedBelow(in) {
				vars[v] = struct{}{}
			}
		}
	}
	return sortedVars(vars)
}

// subsetOf returns the subset of s with exactly traits, or nil
func (p *Planner) subsetOf(s *set, traits plan.TraitSet) *Subset {
	for _, sid := range s.subsets {
		if sub := p.subsets[sid]; sub.traits.Equal(traits) {
			return sub
		}
	}
	return nil
}

// getOrCreateSubset returns the subset of s for traits, creating it and
// seeding its best from the existing members when needed.
func (p *Planner) getOrCreateSubset(s *set, traits plan.TraitSet) *Subset {
	if sub := p.subsetOf(s, traits); sub != nil {
		return sub
	}
	sub := newSubset(SubsetID(len(p.subsets)), s.id, traits, p.costs.Infinite())
	p.subsets = append(p.subsets, sub)
	s.subsets = append(s.subsets, sub.id)
	for _, id := range s.exprs {
		e := p.exprs[id]
		if !e.traits.Satisfies(traits) {
			continue
		}
		if cost := p.Cost(e); cost.Less(sub.bestCost) {
			sub.bestCost = cost
			sub.best = e
		}
	}
	if p.listener != nil {
		p.listener.ExpressionDiscovered(DiscoveredEvent{
			Subset:   sub,
			SetID:    s.id,
			Physical: traits.Convention() != plan.None,
		})
	}
	return sub
}

// addToSet places e in s and returns the subset for e's traits
func (p *Planner) addToSet(s *set, e *Expr) *Subset {
	if s.dead() {
		invariantf("adding %s to dead set %d", e, s.id)
	}
	sub := p.getOrCreateSubset(s, e.traits)
	if !s.containsExpr(e.id) {
		s.exprs = append(s.exprs, e.id)
		if p.listener != nil {
			p.listener.ExpressionDiscovered(DiscoveredEvent{
				Expr:     e,
				Subset:   sub,
				SetID:    s.id,
				Physical: e.traits.Convention() != plan.None,
			})
		}
	}
	if s.first == 0 {
		s.first = e.id
	}
	return sub
}

// mergeWith folds other into s. other is marked dead first so that
// anything reached during the merge resolves to s.
func (p *Planner) mergeWith(s, other *set) {
	if s == other || s.dead() || other.dead() {
		invariantf("cannot merge set %d into set %d", other.id, s.id)
	}
	p.log.Trace().Int("set", int(s.id)).Int("other", int(other.id)).Msg("merge sets")
	other.equivalent = s.id
	p.live.Delete(other)

	for v := range other.varsPropagated {
		s.varsPropagated[v] = struct{}{}
	}
	for v := range other.varsUsed {
		s.varsUsed[v] = struct{}{}
	}

	// Absorb subsets, keeping the cheaper best on collisions
	var changed []*Subset
	for _, osid := range other.subsets {
		otherSubset := p.subsets[osid]
		p.queue.forget(otherSubset)
		sub := p.getOrCreateSubset(s, otherSubset.traits)
		if otherSubset.bestCost.Less(sub.bestCost) {
			sub.bestCost = otherSubset.bestCost
			sub.best = otherSubset.best
			changed = append(changed, sub)
		}
	}

	s.abstractConverters = append(s.abstractConverters, other.abstractConverters...)
	other.abstractConverters = nil

	for _, id := range append([]ExprID(nil), other.exprs...) {
		p.reregister(s, p.exprs[id])
	}

	// Parents of other hold stale digests; renaming may cascade into more merges
	for _, id := range other.distinctParents() {
		p.rename(p.exprs[id])
	}
	if s.dead() {
		return
	}

	for _, sub := range changed {
		p.queue.recompute(sub, false)
	}

	active := make(map[SubsetID]struct{})
	for _, id := range s.distinctParents() {
		parent := p.exprs[id]
		if p.subsetOfExpr(parent) == nil {
			continue
		}
		p.propagateCostImprovements(parent, active)
	}
	if len(active) != 0 {
		invariantf("cost propagation left %d subsets active", len(active))
	}

	// New neighbours may enable rules that could not fire before
	for _, id := range append([]ExprID(nil), s.exprs...) {
		p.fireRules(p.exprs[id])
	}
}

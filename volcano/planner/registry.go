package planner

import (
	"fmt"

	"github.com/wbrown/janus-volcano/volcano/plan"
)

// Register adds e to the planner. If equiv is non-nil, e is known to be
// equivalent to it and joins (or merges with) its set. Registering an
// expression that is already registered panics; use EnsureRegistered
// when that may happen.
func (p *Planner) Register(e *Expr, equiv Node) *Subset {
	if p.isRegistered(e) {
		invariantf("expression %s is already registered", e)
	}
	target := noSet
	if equiv != nil {
		es := p.SubsetOf(equiv)
		if es == nil {
			invariantf("equivalent %s is not registered", equiv.Digest())
		}
		target = p.equivRoot(es.set)
	}
	return p.registerImpl(e, target)
}

// EnsureRegistered registers n unless it already is, and returns its
// canonical subset. If equiv is given and lives in another set, the two
// sets are merged.
func (p *Planner) EnsureRegistered(n Node, equiv Node) *Subset {
	if sub := p.SubsetOf(n); sub != nil {
		if equiv != nil {
			if es := p.SubsetOf(equiv); es != nil && p.equivRoot(es.set) != p.equivRoot(sub.set) {
				p.merge(p.equivRoot(es.set), p.equivRoot(sub.set))
			}
		}
		return p.Canonize(sub)
	}
	e, ok := n.(*Expr)
	if !ok {
		invariantf("subset %s does not belong to this planner", n.Digest())
	}
	return p.Register(e, equiv)
}

// IsRegistered reports whether n is known to the planner
func (p *Planner) IsRegistered(n Node) bool {
	return p.SubsetOf(n) != nil
}

func (p *Planner) isRegistered(e *Expr) bool {
	return p.subsetOfExpr(e) != nil
}

// SubsetOf returns the subset a registered node belongs to. A subset is
// its own subset. Unregistered expressions return nil.
func (p *Planner) SubsetOf(n Node) *Subset {
	switch n := n.(type) {
	case *Subset:
		if int(n.id) < len(p.subsets) && p.subsets[n.id] == n {
			return n
		}
		return nil
	case *Expr:
		return p.subsetOfExpr(n)
	}
	return nil
}

func (p *Planner) subsetOfExpr(e *Expr) *Subset {
	if e == nil || e.id <= 0 || int(e.id) >= len(p.exprs) || p.exprs[e.id] != e {
		return nil
	}
	sid, ok := p.exprSubset[e.id]
	if !ok {
		return nil
	}
	return p.subsets[sid]
}

// Canonize returns the equivalent subset in the live set
func (p *Planner) Canonize(s *Subset) *Subset {
	root := p.equivRoot(s.set)
	if root == s.set {
		return s
	}
	return p.getOrCreateSubset(p.sets[root], s.traits)
}

// equivRoot follows the forwarding chain from id to the live set. The
// chain is walked with a second cursor at double speed; if the two ever
// meet the registry is corrupt.
func (p *Planner) equivRoot(id SetID) SetID {
	slow, fast := id, id
	for {
		next := p.sets[fast].equivalent
		if next == noSet {
			return fast
		}
		fast = next
		if next = p.sets[fast].equivalent; next == noSet {
			return fast
		}
		fast = next
		slow = p.sets[slow].equivalent
		if slow == fast {
			invariantf("cycle in equivalence chain starting at set %d", id)
		}
	}
}

// merge unions two sets and returns the survivor. The set with the
// larger id is folded into the one with the smaller id.
func (p *Planner) merge(a, b SetID) SetID {
	a, b = p.equivRoot(a), p.equivRoot(b)
	if a == b {
		return a
	}
	if a > b {
		a, b = b, a
	}
	p.mergeWith(p.sets[a], p.sets[b])

	if p.root != nil && p.equivRoot(p.root.set) != p.root.set {
		p.root = p.Canonize(p.root)
		p.ensureRootConverters()
	}
	return p.equivRoot(a)
}

func (p *Planner) registerImpl(e *Expr, target SetID) *Subset {
	if e.traits.Size() != len(p.traitDefs) {
		invariantf("expression %s has %d traits, planner has %d trait definitions",
			e, e.traits.Size(), len(p.traitDefs))
	}
	if p.isRegistered(e) {
		invariantf("expression %s is already registered", e)
	}

	e = p.registerInputs(e)

	key := e.digest
	if equiv, ok := p.digests[key]; ok && equiv != e {
		if es := p.subsetOfExpr(equiv); es != nil {
			p.log.Trace().Str("digest", key).Stringer("equiv", equiv).Msg("register equivalent")
			return p.registerSubset(target, es)
		}
	}

	// Converters live in the same set as their input
	if e.IsConverter() {
		childSet := p.equivRoot(e.inputs[0].(*Subset).set)
		if target != noSet && target != childSet && !p.sets[target].dead() {
			p.log.Trace().Str("digest", key).Msg("register converter and merge sets")
			p.merge(target, childSet)
			p.registerCount++
			// The merge may have renamed our input while we were not yet registered
			if p.fixUpInputs(e) {
				key = e.recomputeDigest()
				if equiv, ok := p.digests[key]; ok && equiv != e {
					return p.Canonize(p.subsetOfExpr(equiv))
				}
			}
		} else {
			target = childSet
		}
	}

	var s *set
	if target == noSet {
		s = p.newSet(e)
	} else {
		s = p.sets[p.equivRoot(target)]
	}

	p.registerCount++
	p.assignID(e)
	p.recordProvenance(e)
	before := len(s.subsets)
	sub := p.addExprToSet(e, s)
	p.digests[key] = e

	p.log.Trace().Stringer("expr", e).Stringer("subset", sub).Msg("register")

	// Back-links make children more important now that a parent uses them
	for _, in := range e.inputs {
		child := in.(*Subset)
		p.sets[child.set].parents = append(p.sets[child.set].parents, e.id)
		p.queue.recompute(child, false)
	}

	s = p.sets[p.equivRoot(s.id)]
	if e.IsAbstractConverter() {
		s.abstractConverters = append(s.abstractConverters, e.id)
		p.resolveConverter(s, e)
	}
	p.checkForSatisfiedConverters(s.id, e)

	p.queue.recompute(p.subsetOfExpr(e), true)
	p.fireRules(e)

	s = p.sets[p.equivRoot(s.id)]
	if len(s.subsets) > before && p.root != nil && p.equivRoot(p.root.set) == s.id {
		p.ensureRootConverters()
	}
	return p.Canonize(p.subsetOfExpr(e))
}

// registerInputs makes sure every input of e is registered and returns
// an expression whose inputs are canonical subsets. e itself is
// returned when nothing had to change.
func (p *Planner) registerInputs(e *Expr) *Expr {
	changed := false
	inputs := make([]Node, len(e.inputs))
	for i, in := range e.inputs {
		sub := p.EnsureRegistered(in, nil)
		inputs[i] = sub
		if in != Node(sub) {
			changed = true
		}
	}
	if changed {
		return e.Copy(e.traits, inputs)
	}
	e.recomputeDigest()
	return e
}

func (p *Planner) registerSubset(target SetID, sub *Subset) *Subset {
	if target != noSet && target != sub.set && !p.sets[target].dead() {
		p.log.Trace().Stringer("subset", sub).Int("set", int(target)).Msg("register subset and merge sets")
		p.merge(target, sub.set)
		p.registerCount++
	}
	return p.Canonize(sub)
}

func (p *Planner) assignID(e *Expr) {
	e.id = ExprID(len(p.exprs))
	p.exprs = append(p.exprs, e)
}

func (p *Planner) addExprToSet(e *Expr, s *set) *Subset {
	sub := p.addToSet(s, e)
	p.exprSubset[e.id] = sub.id
	// A member registered while its own inputs were still being wired
	// may not have offered its cost yet
	p.propagateCostImprovements(e, make(map[SubsetID]struct{}))
	return sub
}

// fixUpInputs points every input of e at its canonical subset, moving
// parent back-links between sets as needed. It reports whether any
// input changed.
func (p *Planner) fixUpInputs(e *Expr) bool {
	changed := false
	for i, in := range e.inputs {
		sub, ok := in.(*Subset)
		if !ok {
			continue
		}
		canon := p.Canonize(sub)
		if canon == sub {
			continue
		}
		e.inputs[i] = canon
		if canon.set != sub.set && e.id != 0 {
			p.sets[sub.set].removeParent(e.id)
			p.sets[canon.set].parents = append(p.sets[canon.set].parents, e.id)
		}
		changed = true
	}
	return changed
}

// rename refreshes the digest of e after one of its input sets was
// merged away. If the new digest collides with another expression, e
// is dropped from its set and the two sets are merged.
func (p *Planner) rename(e *Expr) {
	oldKey := e.digest
	if !p.fixUpInputs(e) {
		return
	}
	if p.digests[oldKey] == e {
		delete(p.digests, oldKey)
	}
	newKey := e.recomputeDigest()
	p.log.Trace().Str("old", oldKey).Str("new", newKey).Msg("rename")

	equiv, ok := p.digests[newKey]
	if !ok || equiv == e {
		p.digests[newKey] = e
		return
	}

	equivSubset := p.subsetOfExpr(equiv)
	p.queue.recompute(equivSubset, true)

	// e is a duplicate of equiv now; forget it
	for _, in := range e.inputs {
		p.sets[in.(*Subset).set].removeParent(e.id)
	}
	sub := p.subsetOfExpr(e)
	p.exprSubset[e.id] = equivSubset.id
	p.sets[sub.set].removeExpr(e.id)

	if p.equivRoot(equivSubset.set) != p.equivRoot(sub.set) {
		if !equivSubset.traits.Equal(sub.traits) {
			invariantf("renamed %s collides with %s under different traits", e, equiv)
		}
		p.merge(equivSubset.set, sub.set)
	}
}

// reregister moves e into s during a merge, unless an equivalent
// expression is already registered.
func (p *Planner) reregister(s *set, e *Expr) {
	if equiv, ok := p.digests[e.digest]; ok && equiv != e {
		p.queue.recompute(p.subsetOfExpr(equiv), true)
		return
	}
	s = p.sets[p.equivRoot(s.id)]
	p.addExprToSet(e, s)
}

// ChangeTraits registers n and returns the subset of its set with the
// requested traits. If no member satisfies them yet, conversion is
// attempted, and failing that an abstract converter placeholder is left
// in the set to be completed later.
func (p *Planner) ChangeTraits(n Node, traits plan.TraitSet) *Subset {
	if traits.Size() != len(p.traitDefs) {
		invariantf("requested traits %s have %d dimensions, planner has %d", traits, traits.Size(), len(p.traitDefs))
	}
	from := p.EnsureRegistered(n, nil)
	s := p.sets[p.equivRoot(from.set)]
	target := p.getOrCreateSubset(s, traits)
	if target == from || len(p.Members(target)) > 0 {
		return target
	}

	source := p.Canonize(from).best
	if e, ok := n.(*Expr); ok && p.isRegistered(e) {
		source = e
	}
	if source != nil {
		if converted := p.changeTraitsUsingConverters(source, traits); converted != nil {
			if !p.isRegistered(converted) {
				p.registerImpl(converted, s.id)
			}
			return p.Canonize(target)
		}
	}

	p.EnsureRegistered(NewConverter(p.Canonize(from), traits), from)
	return p.Canonize(target)
}

func (p *Planner) String() string {
	return fmt.Sprintf("Planner#%s", p.runID)
}

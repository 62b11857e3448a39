package planner

import (
	"fmt"

	"github.com/wbrown/janus-volcano/volcano/plan"
)

// TraitConverter produces an expression that re-expresses n under a
// different trait of one dimension, or nil if it cannot. The result
// must satisfy to in that dimension; other dimensions may change.
type TraitConverter interface {
	Convert(p *Planner, n *Expr, to plan.Trait) *Expr
}

// TraitConverterFunc adapts a function to TraitConverter
type TraitConverterFunc func(p *Planner, n *Expr, to plan.Trait) *Expr

func (f TraitConverterFunc) Convert(p *Planner, n *Expr, to plan.Trait) *Expr {
	return f(p, n, to)
}

// AddTraitDef appends a trait dimension. It must be called before any
// expression is registered. conv may be nil when the dimension can only
// change through rules.
func (p *Planner) AddTraitDef(def plan.TraitDef, conv TraitConverter) error {
	if len(p.exprs) > 1 {
		return fmt.Errorf("add trait %s: expressions are already registered", def.Name())
	}
	for _, d := range p.traitDefs {
		if d.Name() == def.Name() {
			if conv != nil {
				p.converters[def.Name()] = conv
			}
			return nil
		}
	}
	p.traitDefs = append(p.traitDefs, def)
	if conv != nil {
		p.converters[def.Name()] = conv
	}
	return nil
}

// TraitDefs returns the trait dimensions in order
func (p *Planner) TraitDefs() []plan.TraitDef {
	return append([]plan.TraitDef(nil), p.traitDefs...)
}

// EmptyTraitSet returns the default trait of every dimension
func (p *Planner) EmptyTraitSet() plan.TraitSet {
	return plan.DefaultTraitSet(p.traitDefs...)
}

// changeTraitsUsingConverters walks the dimensions in order, converting
// e one dimension at a time. Later dimensions see the result of earlier
// conversions, since converting one trait may destroy another (a
// redistribution loses ordering). It returns nil as soon as one
// dimension cannot be converted.
func (p *Planner) changeTraitsUsingConverters(e *Expr, to plan.TraitSet) *Expr {
	converted := e
	for i := 0; converted != nil && i < to.Size(); i++ {
		want := to.Trait(i)
		if want == nil || converted.traits.Trait(i).Satisfies(want) {
			continue
		}
		conv := p.converters[want.Def().Name()]
		if conv == nil {
			return nil
		}
		next := conv.Convert(p, converted, want)
		if next == nil {
			return nil
		}
		if !next.traits.Trait(i).Satisfies(want) {
			invariantf("converter for %s produced %s, which does not satisfy %s",
				want.Def().Name(), next, want)
		}
		if !p.isRegistered(next) {
			p.EnsureRegistered(next, converted)
			if reg := p.registeredForm(next); reg != nil {
				next = reg
			}
		}
		converted = next
	}
	if converted != nil && !converted.traits.Satisfies(to) {
		return nil
	}
	return converted
}

// registeredForm returns the registered expression e stands for. A
// converter output built around a registered expression is registered
// as a copy whose input is that expression's subset, so e itself may
// never be. Returns nil if an input of e is unknown or no member has
// the canonical digest.
func (p *Planner) registeredForm(e *Expr) *Expr {
	if p.isRegistered(e) {
		return e
	}
	inputs := make([]Node, len(e.inputs))
	for i, in := range e.inputs {
		sub := p.SubsetOf(in)
		if sub == nil {
			return nil
		}
		inputs[i] = p.Canonize(sub)
	}
	return p.digests[e.Copy(e.traits, inputs).digest]
}

// checkForSatisfiedConverters tries to complete each pending abstract
// converter of the set from e. Completed placeholders are removed.
func (p *Planner) checkForSatisfiedConverters(id SetID, e *Expr) {
	if e.IsAbstractConverter() {
		return
	}
	s := p.sets[p.equivRoot(id)]
	for i := 0; i < len(s.abstractConverters); {
		conv := p.exprs[s.abstractConverters[i]]
		converted := p.changeTraitsUsingConverters(e, conv.traits)
		if converted == nil {
			i++
			continue
		}
		if !p.isRegistered(converted) {
			p.registerImpl(converted, s.id)
		}
		p.log.Trace().Stringer("converter", conv).Stringer("by", converted).Msg("converter satisfied")
		s = p.sets[p.equivRoot(s.id)]
		if !s.removeAbstractConverter(conv.id) {
			// removed by a nested call; rescan from the start
			i = 0
		}
	}
}

// resolveConverter tries to complete a new placeholder from the
// members already in its set.
func (p *Planner) resolveConverter(s *set, conv *Expr) {
	for _, id := range append([]ExprID(nil), s.exprs...) {
		e := p.exprs[id]
		if e.IsAbstractConverter() || !containsExprID(p.sets[p.equivRoot(s.id)].abstractConverters, conv.id) {
			continue
		}
		p.checkForSatisfiedConverters(s.id, e)
	}
}

func containsExprID(ids []ExprID, id ExprID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

// AbstractConverters returns the unresolved converter placeholders of
// the set that s belongs to
func (p *Planner) AbstractConverters(s *Subset) []*Expr {
	set := p.sets[p.equivRoot(s.set)]
	out := make([]*Expr, len(set.abstractConverters))
	for i, id := range set.abstractConverters {
		out[i] = p.exprs[id]
	}
	return out
}

// ensureRootConverters makes sure every subset of the root's set that
// differs from the root in exactly one trait has a converter toward the
// root. Nothing outside the planner consumes the root, so nothing else
// would ask for these conversions.
func (p *Planner) ensureRootConverters() {
	root := p.Root()
	if root == nil {
		return
	}
	done := make(map[SubsetID]struct{})
	for _, e := range p.Members(root) {
		if e.IsAbstractConverter() {
			done[e.inputs[0].(*Subset).id] = struct{}{}
		}
	}
	s := p.sets[root.set]
	for _, sid := range append([]SubsetID(nil), s.subsets...) {
		sub := p.subsets[sid]
		if sub == root {
			continue
		}
		if _, ok := done[sid]; ok {
			continue
		}
		if len(root.traits.Difference(sub.traits)) != 1 {
			continue
		}
		done[sid] = struct{}{}
		conv := NewConverter(sub, root.traits)
		if _, exists := p.digests[conv.digest]; exists {
			continue
		}
		p.Register(conv, root)
		root = p.Root()
	}
}

package planner

import (
	"fmt"

	"github.com/wbrown/janus-volcano/volcano/plan"
)

// Rule is a pattern-guarded transformation. The operand tree selects
// expressions; OnMatch receives the bound expressions and may register
// equivalents through RuleCall.TransformTo. Returning an error aborts
// the search.
type Rule interface {
	// Name identifies the rule; it must be unique within a planner and
	// is used for phase membership and deterministic tie breaking
	Name() string
	Operand() *Operand
	OnMatch(call *RuleCall) error
}

// MatchChecker is implemented by rules that reject some complete
// bindings before they are queued.
type MatchChecker interface {
	Matches(call *RuleCall) bool
}

// ConverterRule is implemented by rules whose output carries a known
// trait. The planner uses it to guess the subset the rule will populate.
type ConverterRule interface {
	Rule
	OutTrait() plan.Trait
}

// ChildPolicy says how an operand's children bind to expression inputs
type ChildPolicy int

const (
	// ChildrenAny leaves inputs unconstrained
	ChildrenAny ChildPolicy = iota
	// ChildrenSome matches child operand i against input i
	ChildrenSome
	// ChildrenUnordered matches the single child operand against any input
	ChildrenUnordered
)

// Operand is one node of a rule pattern
type Operand struct {
	Kind      plan.Kind       // plan.KindAny matches every kind
	Caps      plan.Capability // capabilities the kind must declare
	Trait     plan.Trait      // optional trait the expression must satisfy
	Predicate func(*Expr) bool
	Policy    ChildPolicy
	Children  []*Operand
}

// Match builds an operand for kind whose children match inputs in order.
// Without children the inputs are unconstrained.
func Match(kind plan.Kind, children ...*Operand) *Operand {
	op := &Operand{Kind: kind, Children: children}
	if len(children) > 0 {
		op.Policy = ChildrenSome
	}
	return op
}

// MatchUnordered builds an operand whose single child may match any input
func MatchUnordered(kind plan.Kind, child *Operand) *Operand {
	return &Operand{Kind: kind, Policy: ChildrenUnordered, Children: []*Operand{child}}
}

// MatchCaps builds an operand matching any kind declaring caps
func MatchCaps(caps plan.Capability, children ...*Operand) *Operand {
	op := Match(plan.KindAny, children...)
	op.Caps = caps
	return op
}

// WithTrait requires the matched expression to satisfy t
func (o *Operand) WithTrait(t plan.Trait) *Operand {
	o.Trait = t
	return o
}

// Where adds a predicate on the matched expression
func (o *Operand) Where(pred func(*Expr) bool) *Operand {
	o.Predicate = pred
	return o
}

func (o *Operand) matches(e *Expr) bool {
	if o.Kind != plan.KindAny && o.Kind != e.kind {
		return false
	}
	if o.Caps != plan.CapNone && !e.kind.Capabilities().Has(o.Caps) {
		return false
	}
	if o.Trait != nil {
		have := e.traits.Get(o.Trait.Def())
		if have == nil || !have.Satisfies(o.Trait) {
			return false
		}
	}
	if o.Predicate != nil && !o.Predicate(e) {
		return false
	}
	return true
}

// operandRef is the planner's private view of one operand of a
// registered rule: its position in the rule and the order in which a
// match entering at this operand solves the others.
type operandRef struct {
	op              *Operand
	rule            *ruleEntry
	parent          *operandRef
	children        []*operandRef
	ordinalInRule   int
	ordinalInParent int
	// solveOrder lists operand ordinals: this one, its ancestors up to
	// the root, then the rest in pre-order
	solveOrder []int
	// ascending is how many leading solveOrder entries walk upwards
	ascending int
}

type ruleEntry struct {
	rule     Rule
	name     string
	operands []*operandRef // pre-order, operands[0] is the root
	removed  bool
}

func newRuleEntry(r Rule) (*ruleEntry, error) {
	root := r.Operand()
	if root == nil {
		return nil, fmt.Errorf("rule %s has no operand", r.Name())
	}
	entry := &ruleEntry{rule: r, name: r.Name()}
	var flatten func(op *Operand, parent *operandRef, ordinal int) error
	flatten = func(op *Operand, parent *operandRef, ordinal int) error {
		if op.Policy == ChildrenUnordered && len(op.Children) != 1 {
			return fmt.Errorf("rule %s: unordered operand needs exactly one child", r.Name())
		}
		ref := &operandRef{
			op:              op,
			rule:            entry,
			parent:          parent,
			ordinalInRule:   len(entry.operands),
			ordinalInParent: ordinal,
		}
		entry.operands = append(entry.operands, ref)
		if parent != nil {
			parent.children = append(parent.children, ref)
		}
		for i, child := range op.Children {
			if err := flatten(child, ref, i); err != nil {
				return err
			}
		}
		return nil
	}
	if err := flatten(root, nil, -1); err != nil {
		return nil, err
	}
	for _, ref := range entry.operands {
		ref.solveOrder = make([]int, 0, len(entry.operands))
		for o := ref; o != nil; o = o.parent {
			ref.solveOrder = append(ref.solveOrder, o.ordinalInRule)
		}
		ref.ascending = len(ref.solveOrder)
		for _, other := range entry.operands {
			if !containsInt(ref.solveOrder, other.ordinalInRule) {
				ref.solveOrder = append(ref.solveOrder, other.ordinalInRule)
			}
		}
	}
	return entry, nil
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// AddRule registers r for every phase that accepts it. Adding a rule
// with a name already in use, or to a locked planner, returns false. A
// rule added after SetRoot is matched against every expression already
// registered.
func (p *Planner) AddRule(r Rule) (bool, error) {
	if p.locked {
		return false, nil
	}
	if _, ok := p.rules[r.Name()]; ok {
		return false, nil
	}
	entry, err := newRuleEntry(r)
	if err != nil {
		return false, err
	}
	p.rules[entry.name] = entry
	p.ruleOrder = append(p.ruleOrder, entry)
	for _, ref := range entry.operands {
		p.kindOperands[ref.op.Kind] = append(p.kindOperands[ref.op.Kind], ref)
	}
	p.log.Debug().Str("rule", entry.name).Msg("add rule")

	if p.root != nil {
		p.matchExisting(entry)
	}
	return true, nil
}

// AddRuleToPhase adds r (if needed) and makes phase accept it
func (p *Planner) AddRuleToPhase(r Rule, phase Phase) (bool, error) {
	p.queue.acceptInPhase(phase, r.Name())
	if _, ok := p.rules[r.Name()]; ok {
		return true, nil
	}
	return p.AddRule(r)
}

// RemoveRule unregisters r. Matches already queued for it are dropped
// when popped.
func (p *Planner) RemoveRule(r Rule) bool {
	entry, ok := p.rules[r.Name()]
	if !ok {
		return false
	}
	entry.removed = true
	delete(p.rules, entry.name)
	for i, e := range p.ruleOrder {
		if e == entry {
			p.ruleOrder = append(p.ruleOrder[:i], p.ruleOrder[i+1:]...)
			break
		}
	}
	for _, ref := range entry.operands {
		refs := p.kindOperands[ref.op.Kind]
		for i, x := range refs {
			if x == ref {
				p.kindOperands[ref.op.Kind] = append(refs[:i], refs[i+1:]...)
				break
			}
		}
	}
	return true
}

// Rules returns the registered rules in registration order
func (p *Planner) Rules() []Rule {
	rules := make([]Rule, len(p.ruleOrder))
	for i, e := range p.ruleOrder {
		rules[i] = e.rule
	}
	return rules
}

// SetLocked stops AddRule from accepting new rules
func (p *Planner) SetLocked(locked bool) { p.locked = locked }

// matchExisting matches one new rule against the current population
func (p *Planner) matchExisting(entry *ruleEntry) {
	var ids []ExprID
	p.live.Ascend(func(s *set) bool {
		ids = append(ids, s.exprs...)
		return true
	})
	for _, id := range ids {
		e := p.exprs[id]
		for _, ref := range entry.operands {
			if ref.op.matches(e) {
				p.matchFrom(ref, e)
			}
		}
	}
}

// fireRules queues every match that has e as one of its operands
func (p *Planner) fireRules(e *Expr) {
	for _, kind := range [2]plan.Kind{e.kind, plan.KindAny} {
		for _, ref := range append([]*operandRef(nil), p.kindOperands[kind]...) {
			if ref.op.matches(e) {
				p.matchFrom(ref, e)
			}
		}
	}
}

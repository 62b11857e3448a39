package algebra

import (
	"fmt"
	"sort"

	"github.com/wbrown/janus-volcano/volcano/plan"
	"github.com/wbrown/janus-volcano/volcano/planner"
)

// implementRule is the shape shared by rules that turn one logical
// operator into physical ones. Its output is always physical, which
// lets the planner rank its matches by the physical subset they feed.
type implementRule struct {
	name    string
	operand *planner.Operand
	fire    func(call *planner.RuleCall) []*planner.Expr
}

func (r *implementRule) Name() string { return r.name }

func (r *implementRule) Operand() *planner.Operand { return r.operand }

func (r *implementRule) OutTrait() plan.Trait { return plan.Physical }

func (r *implementRule) OnMatch(call *planner.RuleCall) error {
	for _, e := range r.fire(call) {
		call.TransformTo(e)
	}
	return nil
}

// physicalInput asks for input i of e in executable form
func physicalInput(call *planner.RuleCall, e *planner.Expr, i int) planner.Node {
	return call.ChangeTraits(e.Input(i), Physical)
}

// ImplementScan reads a table directly
func ImplementScan() planner.Rule {
	return &implementRule{
		name:    "ImplementScan",
		operand: planner.Match(plan.KindScan),
		fire: func(call *planner.RuleCall) []*planner.Expr {
			return []*planner.Expr{implement(call.Expr(0), plan.KindTableScan, Physical)}
		},
	}
}

// ScanToIndexScan reads a table through its index, producing rows in
// index order
func ScanToIndexScan() planner.Rule {
	hasIndex := func(e *planner.Expr) bool { return len(PropsOf(e).Index) > 0 }
	return &implementRule{
		name:    "ScanToIndexScan",
		operand: planner.Match(plan.KindScan).Where(hasIndex),
		fire: func(call *planner.RuleCall) []*planner.Expr {
			scan := call.Expr(0)
			traits := Traits(plan.Physical, PropsOf(scan).Index)
			return []*planner.Expr{implement(scan, plan.KindIndexScan, traits)}
		},
	}
}

// ImplementFilter evaluates a filter as a calc over physical input
func ImplementFilter() planner.Rule {
	return &implementRule{
		name:    "ImplementFilter",
		operand: planner.Match(plan.KindFilter),
		fire: func(call *planner.RuleCall) []*planner.Expr {
			f := call.Expr(0)
			return []*planner.Expr{implement(f, plan.KindCalc, Physical, physicalInput(call, f, 0))}
		},
	}
}

// ImplementProject evaluates a projection as a calc over physical input
func ImplementProject() planner.Rule {
	return &implementRule{
		name:    "ImplementProject",
		operand: planner.Match(plan.KindProject),
		fire: func(call *planner.RuleCall) []*planner.Expr {
			p := call.Expr(0)
			return []*planner.Expr{implement(p, plan.KindCalc, Physical, physicalInput(call, p, 0))}
		},
	}
}

// ImplementJoin offers a hash join and a nested loop join, and for
// equi-joins a merge join over inputs sorted on the join keys
func ImplementJoin() planner.Rule {
	return &implementRule{
		name:    "ImplementJoin",
		operand: planner.Match(plan.KindJoin),
		fire: func(call *planner.RuleCall) []*planner.Expr {
			j := call.Expr(0)
			left, right := physicalInput(call, j, 0), physicalInput(call, j, 1)
			out := []*planner.Expr{
				implement(j, plan.KindHashJoin, Physical, left, right),
				implement(j, plan.KindNestedLoopJoin, Physical, left, right),
			}
			if p := PropsOf(j); p.LeftKey >= 0 && p.RightKey >= 0 {
				sortedLeft := call.ChangeTraits(j.Input(0), PhysicalSorted(p.LeftKey))
				sortedRight := call.ChangeTraits(j.Input(1), PhysicalSorted(p.RightKey))
				out = append(out, implement(j, plan.KindMergeJoin, PhysicalSorted(p.LeftKey), sortedLeft, sortedRight))
			}
			return out
		},
	}
}

// ImplementAggregate groups with a hash table
func ImplementAggregate() planner.Rule {
	return &implementRule{
		name:    "ImplementAggregate",
		operand: planner.Match(plan.KindAggregate),
		fire: func(call *planner.RuleCall) []*planner.Expr {
			a := call.Expr(0)
			return []*planner.Expr{implement(a, plan.KindHashAggregate, Physical, physicalInput(call, a, 0))}
		},
	}
}

type joinCommute struct{}

// JoinCommute swaps the inputs of a join. Applying it twice yields the
// original digest, so the planner stops there.
func JoinCommute() planner.Rule { return joinCommute{} }

func (joinCommute) Name() string { return "JoinCommute" }

func (joinCommute) Operand() *planner.Operand { return planner.Match(plan.KindJoin) }

func (joinCommute) OnMatch(call *planner.RuleCall) error {
	j := call.Expr(0)
	p := PropsOf(j)
	call.TransformTo(Join(j.Input(1), j.Input(0), p.On, p.RightKey, p.LeftKey))
	return nil
}

type filterMerge struct{}

// FilterMerge combines a filter directly over another filter into one
func FilterMerge() planner.Rule { return filterMerge{} }

func (filterMerge) Name() string { return "FilterMerge" }

func (filterMerge) Operand() *planner.Operand {
	return planner.Match(plan.KindFilter, planner.Match(plan.KindFilter))
}

func (filterMerge) OnMatch(call *planner.RuleCall) error {
	outer, inner := call.Expr(0), call.Expr(1)
	po, pi := PropsOf(outer), PropsOf(inner)
	cond := fmt.Sprintf("(%s) AND (%s)", po.Cond, pi.Cond)
	call.TransformTo(Filter(inner.Input(0), cond, selectivity(po)*selectivity(pi)))
	return nil
}

// CollationConverter sorts physical input into the requested order.
// Logical input is declined, so the planner leaves a placeholder until
// an implementation of it arrives.
var CollationConverter = planner.TraitConverterFunc(func(p *planner.Planner, n *planner.Expr, to plan.Trait) *planner.Expr {
	c, ok := to.(Collation)
	if !ok || n.Convention() != plan.Physical {
		return nil
	}
	return Sort(n, n.Traits().Replace(c))
})

var ruleFactories = map[string]func() planner.Rule{
	"ImplementScan":      ImplementScan,
	"ScanToIndexScan":    ScanToIndexScan,
	"ImplementFilter":    ImplementFilter,
	"ImplementProject":   ImplementProject,
	"ImplementJoin":      ImplementJoin,
	"ImplementAggregate": ImplementAggregate,
	"JoinCommute":        JoinCommute,
	"FilterMerge":        FilterMerge,
}

// RuleNames lists every rule of the algebra, sorted
func RuleNames() []string {
	names := make([]string, 0, len(ruleFactories))
	for name := range ruleFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Rules returns fresh instances of the named rules, or of every rule
// when no names are given
func Rules(names ...string) ([]planner.Rule, error) {
	if len(names) == 0 {
		names = RuleNames()
	}
	rules := make([]planner.Rule, 0, len(names))
	for _, name := range names {
		factory, ok := ruleFactories[name]
		if !ok {
			return nil, fmt.Errorf("unknown rule %q", name)
		}
		rules = append(rules, factory())
	}
	return rules, nil
}

// NewPlanner creates a planner with the collation trait and rules
// installed. With no rules given, every rule of the algebra is added.
func NewPlanner(opts planner.Options, rules ...planner.Rule) (*planner.Planner, error) {
	p := planner.NewPlanner(CostModel{}, opts)
	if err := p.AddTraitDef(CollationDef, CollationConverter); err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		var err error
		if rules, err = Rules(); err != nil {
			return nil, err
		}
	}
	for _, r := range rules {
		if _, err := p.AddRule(r); err != nil {
			return nil, fmt.Errorf("add rule %s: %w", r.Name(), err)
		}
	}
	return p, nil
}

// Optimize finds the cheapest physical plan for tree
func Optimize(p *planner.Planner, tree *planner.Expr) (*planner.Expr, error) {
	p.SetRoot(p.ChangeTraits(tree, Physical))
	return p.FindBest()
}

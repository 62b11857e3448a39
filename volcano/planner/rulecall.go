package planner

import (
	"fmt"
	"strings"

	"github.com/wbrown/janus-volcano/volcano/plan"
)

// RuleCall is one invocation of a rule on a complete binding. Exprs are
// indexed by operand ordinal in pre-order.
type RuleCall struct {
	planner *Planner
	entry   *ruleEntry
	exprs   []*Expr
	id      int
	results int
}

// Planner returns the planner running the call
func (c *RuleCall) Planner() *Planner { return c.planner }

// Rule returns the rule being invoked
func (c *RuleCall) Rule() Rule { return c.entry.rule }

// ID is unique per planner; it is zero while a binding is being checked
func (c *RuleCall) ID() int { return c.id }

// Expr returns the expression bound to operand i
func (c *RuleCall) Expr(i int) *Expr { return c.exprs[i] }

// Exprs returns the bound expressions in operand order
func (c *RuleCall) Exprs() []*Expr { return append([]*Expr(nil), c.exprs...) }

// Results counts expressions passed to TransformTo
func (c *RuleCall) Results() int { return c.results }

// TransformTo registers e as equivalent to the expression bound to the
// root operand.
func (c *RuleCall) TransformTo(e *Expr) *Subset {
	return c.TransformToWith(e, nil)
}

// TransformToWith is TransformTo with extra known equivalences, which
// are registered first so that e's subtree is not registered twice.
func (c *RuleCall) TransformToWith(e *Expr, equiv map[*Expr]Node) *Subset {
	p := c.planner
	for from, to := range equiv {
		p.EnsureRegistered(from, to)
	}
	sub := p.EnsureRegistered(e, c.exprs[0])
	c.results++
	if p.listener != nil {
		p.listener.RuleProductionSucceeded(RuleProductionEvent{Rule: c.entry.name, CallID: c.id, Expr: e})
	}
	return sub
}

// ChangeTraits is shorthand for Planner().ChangeTraits
func (c *RuleCall) ChangeTraits(n Node, traits plan.TraitSet) *Subset {
	return c.planner.ChangeTraits(n, traits)
}

// RuleMatch is a complete binding waiting in the rule queue
type RuleMatch struct {
	entry  *ruleEntry
	exprs  []*Expr
	origin SetID
	digest string

	importance    float64
	hasImportance bool
	targetSubset  *Subset
	key           SubsetID
	fired         bool
}

func newRuleMatch(entry *ruleEntry, exprs []*Expr, origin SetID) *RuleMatch {
	m := &RuleMatch{
		entry:  entry,
		exprs:  append([]*Expr(nil), exprs...),
		origin: origin,
	}
	m.digest = matchDigest(entry.name, m.exprs)
	return m
}

func matchDigest(rule string, exprs []*Expr) string {
	var sb strings.Builder
	sb.WriteString("rule [")
	sb.WriteString(rule)
	sb.WriteString("] exprs [")
	for i, e := range exprs {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "#%d:%s", e.id, e.describe())
	}
	sb.WriteByte(']')
	return sb.String()
}

// Rule returns the matched rule
func (m *RuleMatch) Rule() Rule { return m.entry.rule }

// Exprs returns the bound expressions
func (m *RuleMatch) Exprs() []*Expr { return append([]*Expr(nil), m.exprs...) }

func (m *RuleMatch) Digest() string { return m.digest }

func (m *RuleMatch) String() string { return m.digest }

// clone gives each phase list its own copy so a match can be consumed
// once per phase
func (m *RuleMatch) clone() *RuleMatch {
	c := *m
	c.exprs = append([]*Expr(nil), m.exprs...)
	c.hasImportance = false
	c.targetSubset = nil
	return &c
}

func (m *RuleMatch) clearCachedImportance() { m.hasImportance = false }

// importanceIn is the importance of the subset holding the root operand,
// or of the subset the rule is expected to fill if that is higher
func (m *RuleMatch) importanceIn(q *ruleQueue) float64 {
	if m.hasImportance {
		return m.importance
	}
	p := q.p
	sub := p.subsetOfExpr(m.exprs[0])
	imp := 0.0
	if sub != nil {
		imp = q.getImportance(sub)
	}
	if target := m.guessSubset(p); target != nil && target != sub {
		if t := q.getImportance(target); t > imp {
			imp = t
		}
	}
	m.importance = imp
	m.hasImportance = true
	return imp
}

func (m *RuleMatch) guessSubset(p *Planner) *Subset {
	if m.targetSubset != nil {
		return m.targetSubset
	}
	cr, ok := m.entry.rule.(ConverterRule)
	if !ok || m.origin == noSet {
		return nil
	}
	traits := m.exprs[0].traits.Replace(cr.OutTrait())
	m.targetSubset = p.subsetOf(p.sets[p.equivRoot(m.origin)], traits)
	return m.targetSubset
}

// binding accumulates a partial match while solving operands
type binding struct {
	p        *Planner
	entry    *ruleEntry
	operand0 *operandRef
	exprs    []*Expr
}

// matchFrom enumerates every complete binding in which e fills ref and
// queues one match for each.
func (p *Planner) matchFrom(ref *operandRef, e *Expr) {
	if ref.rule.removed {
		return
	}
	b := &binding{
		p:        p,
		entry:    ref.rule,
		operand0: ref,
		exprs:    make([]*Expr, len(ref.rule.operands)),
	}
	b.exprs[ref.ordinalInRule] = e
	b.solve(1)
}

func (b *binding) solve(step int) {
	ops := b.entry.operands
	if step == len(ops) {
		b.complete()
		return
	}
	op := ops[b.operand0.solveOrder[step]]
	prevOp := ops[b.operand0.solveOrder[step-1]]

	if step < b.operand0.ascending {
		// op is the parent of prevOp
		prev := b.exprs[prevOp.ordinalInRule]
		prevSubset := b.p.subsetOfExpr(prev)
		if prevSubset == nil {
			return
		}
		liveSet := b.p.equivRoot(prevSubset.set)
		for _, parent := range b.p.parentsOfSet(liveSet) {
			if !op.op.matches(parent) || !b.feeds(parent, op, prevOp, prev, liveSet) {
				continue
			}
			b.exprs[op.ordinalInRule] = parent
			b.solve(step + 1)
		}
		b.exprs[op.ordinalInRule] = nil
		return
	}

	parent := b.exprs[op.parent.ordinalInRule]
	var inputs []Node
	if op.parent.op.Policy == ChildrenUnordered {
		inputs = parent.inputs
	} else if op.ordinalInParent < len(parent.inputs) {
		inputs = parent.inputs[op.ordinalInParent : op.ordinalInParent+1]
	}
	seen := make(map[ExprID]struct{})
	for _, in := range inputs {
		sub, ok := in.(*Subset)
		if !ok {
			continue
		}
		for _, child := range b.p.Members(sub) {
			if _, dup := seen[child.id]; dup {
				continue
			}
			seen[child.id] = struct{}{}
			if !op.op.matches(child) {
				continue
			}
			b.exprs[op.ordinalInRule] = child
			b.solve(step + 1)
		}
	}
	b.exprs[op.ordinalInRule] = nil
}

// feeds reports whether prev can be the input of parent that prevOp
// describes.
func (b *binding) feeds(parent *Expr, op, prevOp *operandRef, prev *Expr, liveSet SetID) bool {
	check := func(in Node) bool {
		sub, ok := in.(*Subset)
		return ok && b.p.equivRoot(sub.set) == liveSet && prev.traits.Satisfies(sub.traits)
	}
	if op.op.Policy == ChildrenUnordered {
		for _, in := range parent.inputs {
			if check(in) {
				return true
			}
		}
		return false
	}
	if prevOp.ordinalInParent < 0 || prevOp.ordinalInParent >= len(parent.inputs) {
		return false
	}
	return check(parent.inputs[prevOp.ordinalInParent])
}

func (b *binding) complete() {
	if mc, ok := b.entry.rule.(MatchChecker); ok {
		call := &RuleCall{planner: b.p, entry: b.entry, exprs: b.exprs}
		if !mc.Matches(call) {
			return
		}
	}
	origin := noSet
	if sub := b.p.subsetOfExpr(b.exprs[0]); sub != nil {
		origin = sub.set
	}
	m := newRuleMatch(b.entry, b.exprs, origin)
	b.p.log.Trace().Str("match", m.digest).Msg("queue match")
	b.p.queue.addMatch(m)
}

// parentsOfSet returns the distinct registered parents of a live set
func (p *Planner) parentsOfSet(id SetID) []*Expr {
	ids := p.sets[id].distinctParents()
	parents := make([]*Expr, 0, len(ids))
	for _, pid := range ids {
		if e := p.exprs[pid]; p.isRegistered(e) {
			parents = append(parents, e)
		}
	}
	return parents
}

// fire invokes the rule of m. Matches whose operands have gone stale
// since they were queued are dropped without invoking the rule.
func (p *Planner) fire(m *RuleMatch) error {
	if m.fired {
		invariantf("rule match %s fired twice", m.digest)
	}
	m.fired = true
	if m.entry.removed {
		return nil
	}
	for i, e := range m.exprs {
		sub := p.subsetOfExpr(e)
		if sub == nil {
			p.log.Debug().Str("match", m.digest).Int("operand", i).Msg("rule not fired: operand has no subset")
			return nil
		}
		if p.sets[sub.set].dead() {
			p.log.Debug().Str("match", m.digest).Int("operand", i).Msg("rule not fired: operand belongs to obsolete set")
			return nil
		}
		if imp, ok := p.importances[e.id]; ok && imp == 0 {
			p.log.Debug().Str("match", m.digest).Int("operand", i).Msg("rule not fired: operand has importance 0")
			return nil
		}
	}

	p.nextCallID++
	call := &RuleCall{planner: p, entry: m.entry, exprs: m.exprs, id: p.nextCallID}
	if p.listener != nil {
		p.listener.RuleAttempted(RuleAttemptedEvent{Rule: m.entry.name, CallID: call.id, Exprs: call.Exprs(), Before: true})
	}
	p.log.Trace().Int("call", call.id).Str("match", m.digest).Msg("fire rule")

	p.callStack = append(p.callStack, call)
	err := m.entry.rule.OnMatch(call)
	p.callStack = p.callStack[:len(p.callStack)-1]

	if p.listener != nil {
		p.listener.RuleAttempted(RuleAttemptedEvent{Rule: m.entry.name, CallID: call.id, Exprs: call.Exprs(), Before: false})
	}
	if err != nil {
		return fmt.Errorf("rule %s on %s: %w", m.entry.name, m.digest, err)
	}
	return nil
}

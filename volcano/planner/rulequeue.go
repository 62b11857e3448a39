package planner

import (
	"math"
	"sort"

	"github.com/emirpasic/gods/maps/linkedhashmap"

	"github.com/wbrown/janus-volcano/volcano/plan"
)

// Phase is a stage of the search. Each phase has its own match list and
// accepts its own subset of the rules.
type Phase int

const (
	PhasePreProcessMDR Phase = iota
	PhasePreProcess
	PhaseOptimize
	PhaseCleanup

	phaseCount
)

// Phases lists the phases in the order the search runs them
var Phases = [...]Phase{PhasePreProcessMDR, PhasePreProcess, PhaseOptimize, PhaseCleanup}

func (ph Phase) String() string {
	switch ph {
	case PhasePreProcessMDR:
		return "PRE_PROCESS_MDR"
	case PhasePreProcess:
		return "PRE_PROCESS"
	case PhaseOptimize:
		return "OPTIMIZE"
	case PhaseCleanup:
		return "CLEANUP"
	default:
		return "UNKNOWN"
	}
}

// oneMinusEpsilon is the largest float64 below 1
var oneMinusEpsilon = math.Nextafter(1, 0)

// phaseMatchList holds the pending matches of one phase
type phaseMatchList struct {
	phase Phase
	// matches maps digest to *RuleMatch in arrival order
	matches *linkedhashmap.Map
	// names remembers every digest ever queued, so rediscovery is ignored
	names map[string]struct{}
	// bySubset indexes matches by the subset of their root operand, to
	// clear cached importances when that subset changes
	bySubset map[SubsetID][]*RuleMatch
	done     bool
}

func newPhaseMatchList(phase Phase) *phaseMatchList {
	return &phaseMatchList{
		phase:    phase,
		matches:  linkedhashmap.New(),
		names:    make(map[string]struct{}),
		bySubset: make(map[SubsetID][]*RuleMatch),
	}
}

func (l *phaseMatchList) unindex(m *RuleMatch) {
	list := l.bySubset[m.key]
	for i, x := range list {
		if x == m {
			l.bySubset[m.key] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(l.bySubset[m.key]) == 0 {
		delete(l.bySubset, m.key)
	}
}

// ruleQueue orders pending matches by importance and owns the per
// subset importance table.
type ruleQueue struct {
	p           *Planner
	importances map[SubsetID]float64
	boosted     map[SubsetID]struct{}
	lists       [phaseCount]*phaseMatchList
	// phaseRules names the rules each phase accepts; nil accepts all
	phaseRules [phaseCount]map[string]struct{}
}

func newRuleQueue(p *Planner) *ruleQueue {
	q := &ruleQueue{
		p:           p,
		importances: make(map[SubsetID]float64),
		boosted:     make(map[SubsetID]struct{}),
	}
	for _, ph := range Phases {
		q.lists[ph] = newPhaseMatchList(ph)
		if ph != PhaseOptimize {
			q.phaseRules[ph] = make(map[string]struct{})
		}
	}
	return q
}

// acceptInPhase makes phase accept the named rule. A phase that accepts
// every rule is left alone.
func (q *ruleQueue) acceptInPhase(phase Phase, rule string) {
	if q.phaseRules[phase] != nil {
		q.phaseRules[phase][rule] = struct{}{}
	}
}

func (q *ruleQueue) accepts(phase Phase, rule string) bool {
	names := q.phaseRules[phase]
	if names == nil {
		return true
	}
	_, ok := names[rule]
	return ok
}

func (q *ruleQueue) clear() {
	q.importances = make(map[SubsetID]float64)
	q.boosted = make(map[SubsetID]struct{})
	for _, ph := range Phases {
		q.lists[ph] = newPhaseMatchList(ph)
	}
}

// phaseCompleted drops the match list of phase for good
func (q *ruleQueue) phaseCompleted(phase Phase) {
	l := q.lists[phase]
	l.matches.Clear()
	l.bySubset = nil
	l.done = true
}

// addMatch files m under every phase that accepts its rule, ignoring
// digests the phase has already seen
func (q *ruleQueue) addMatch(m *RuleMatch) {
	key := q.p.subsetOfExpr(m.exprs[0])
	for _, ph := range Phases {
		l := q.lists[ph]
		if l.done || !q.accepts(ph, m.entry.name) {
			continue
		}
		if _, seen := l.names[m.digest]; seen {
			continue
		}
		l.names[m.digest] = struct{}{}
		pm := m.clone()
		if key != nil {
			pm.key = key.id
		}
		l.matches.Put(pm.digest, pm)
		l.bySubset[pm.key] = append(l.bySubset[pm.key], pm)
	}
}

// popMatch removes and returns the most important surviving match of
// phase, or nil when the phase has nothing left.
func (q *ruleQueue) popMatch(phase Phase) *RuleMatch {
	l := q.lists[phase]
	if l.done {
		invariantf("match list for phase %s used after the phase completed", phase)
	}
	for !l.matches.Empty() {
		var best *RuleMatch
		it := l.matches.Iterator()
		for it.Next() {
			m := it.Value().(*RuleMatch)
			if best == nil || q.before(m, best) {
				best = m
			}
		}
		l.matches.Remove(best.digest)
		l.unindex(best)
		if q.skipMatch(best) {
			q.p.log.Debug().Str("match", best.digest).Msg("skip match")
			continue
		}
		q.p.log.Debug().Str("match", best.digest).Float64("importance", best.importance).Msg("pop match")
		return best
	}
	return nil
}

// pending counts queued matches for phase
func (q *ruleQueue) pending(phase Phase) int {
	if l := q.lists[phase]; !l.done {
		return l.matches.Size()
	}
	return 0
}

// before orders matches: higher importance first, then by rule name and
// expression ids, both descending
func (q *ruleQueue) before(a, b *RuleMatch) bool {
	ia, ib := a.importanceIn(q), b.importanceIn(q)
	if ia != ib {
		return ia > ib
	}
	if a.entry.name != b.entry.name {
		return a.entry.name > b.entry.name
	}
	return compareExprs(a.exprs, b.exprs) > 0
}

func compareExprs(a, b []*Expr) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	for i := range a {
		if a[i].id != b[i].id {
			if a[i].id < b[i].id {
				return -1
			}
			return 1
		}
	}
	return 0
}

// skipMatch drops matches binding a pruned expression, matches of
// removed rules, and matches that visit one subset twice on a path from
// the root operand to a leaf. Such a match consumes its own output and
// would only generate ever larger copies of it.
func (q *ruleQueue) skipMatch(m *RuleMatch) bool {
	if m.entry.removed {
		return true
	}
	for _, e := range m.exprs {
		if imp, ok := q.p.importances[e.id]; ok && imp == 0 {
			return true
		}
	}
	return q.hasDuplicateSubsets(nil, m.entry.operands[0], m.exprs)
}

func (q *ruleQueue) hasDuplicateSubsets(path []SubsetID, op *operandRef, exprs []*Expr) bool {
	sub := q.p.subsetOfExpr(exprs[op.ordinalInRule])
	if sub == nil {
		return false
	}
	for _, id := range path {
		if id == sub.id {
			return true
		}
	}
	if len(op.children) == 0 {
		return false
	}
	path = append(path, sub.id)
	for _, child := range op.children {
		if q.hasDuplicateSubsets(path, child, exprs) {
			return true
		}
	}
	return false
}

// recompute refreshes the cached importance of s. Subsets with no
// cached importance are left alone unless force is set.
func (q *ruleQueue) recompute(s *Subset, force bool) {
	if s == nil {
		return
	}
	prev, ok := q.importances[s.id]
	if !ok {
		if !force {
			return
		}
		prev = math.Inf(-1)
	}
	imp := q.computeImportance(s)
	if prev == imp {
		return
	}
	q.updateImportance(s, imp)
}

func (q *ruleQueue) updateImportance(s *Subset, imp float64) {
	q.importances[s.id] = imp
	for _, l := range q.lists {
		if l.done {
			continue
		}
		for _, m := range l.bySubset[s.id] {
			m.clearCachedImportance()
		}
	}
}

// forget drops the importance of a subset whose set is being merged away
func (q *ruleQueue) forget(s *Subset) {
	delete(q.importances, s.id)
	delete(q.boosted, s.id)
}

// getImportance is the highest importance in the subset's set, where
// other subsets of the set count for half. This encourages conversions
// between subsets of an important set.
func (q *ruleQueue) getImportance(s *Subset) float64 {
	imp := 0.0
	for _, sid := range q.p.sets[s.set].subsets {
		d, ok := q.importances[sid]
		if !ok {
			continue
		}
		if sid != s.id {
			d /= 2
		}
		if d > imp {
			imp = d
		}
	}
	return imp
}

// computeImportance is 1 for the root and otherwise the highest
// importance any parent subset lends this subset.
func (q *ruleQueue) computeImportance(s *Subset) float64 {
	if q.p.root != nil && s == q.p.root {
		return 1.0
	}
	imp := 0.0
	for _, parent := range q.p.parentSubsets(s) {
		if c := q.computeImportanceOfChild(s, parent); c > imp {
			imp = c
		}
	}
	return imp
}

// computeImportanceOfChild pro-rates the parent's importance by the
// share of the parent's cost spent in the child. A child is always
// strictly less important than its parent.
func (q *ruleQueue) computeImportanceOfChild(child, parent *Subset) float64 {
	parentImportance := q.getImportance(parent)
	childCost := costToFloat(q.p.Cost(child))
	parentCost := costToFloat(q.p.Cost(parent))
	alpha := childCost / parentCost
	if alpha >= 1.0 || math.IsNaN(alpha) {
		alpha = 0.99
	}
	return parentImportance * alpha
}

func costToFloat(c plan.Cost) float64 {
	if c.IsInfinite() {
		return 1e30
	}
	return c.Value()
}

// boostImportance multiplies the importance of subsets by factor,
// staying below 1, after undoing every boost not renewed by this call.
func (q *ruleQueue) boostImportance(subsets []*Subset, factor float64) {
	keep := make(map[SubsetID]struct{}, len(subsets))
	for _, s := range subsets {
		keep[s.id] = struct{}{}
	}
	var removals []*Subset
	for sid := range q.boosted {
		if _, ok := keep[sid]; !ok {
			delete(q.boosted, sid)
			removals = append(removals, q.p.subsets[sid])
		}
	}
	// Children first, then by id, so the result does not depend on map order
	childCount := func(s *Subset) int {
		n := 0
		for _, e := range q.p.Members(s) {
			n += len(e.inputs)
		}
		return n
	}
	sort.Slice(removals, func(i, j int) bool {
		ci, cj := childCount(removals[i]), childCount(removals[j])
		if ci != cj {
			return ci < cj
		}
		return removals[i].id < removals[j].id
	})
	for _, s := range removals {
		q.p.propagateBoostRemoval(s)
	}

	for _, s := range subsets {
		imp := q.importances[s.id]
		q.updateImportance(s, math.Min(oneMinusEpsilon, imp*factor))
		s.boosted = true
		q.boosted[s.id] = struct{}{}
	}
}

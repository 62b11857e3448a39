package planner

import (
	"fmt"
	"strings"
)

// Provenance records where a registered expression came from
type Provenance struct {
	Direct bool
	Rule   string
	CallID int
	Inputs []ExprID
}

func (pv Provenance) String() string {
	if pv.Direct {
		return "direct"
	}
	if pv.Rule == "" {
		return "unknown"
	}
	ids := make([]string, len(pv.Inputs))
	for i, id := range pv.Inputs {
		ids[i] = fmt.Sprintf("#%d", id)
	}
	return fmt.Sprintf("call#%d %s [%s]", pv.CallID, pv.Rule, strings.Join(ids, ", "))
}

func (p *Planner) recordProvenance(e *Expr) {
	if !p.options.TrackProvenance {
		return
	}
	if len(p.callStack) == 0 {
		p.provenance[e.id] = Provenance{Direct: true}
		return
	}
	call := p.callStack[len(p.callStack)-1]
	inputs := make([]ExprID, len(call.exprs))
	for i, x := range call.exprs {
		inputs[i] = x.id
	}
	p.provenance[e.id] = Provenance{Rule: call.entry.name, CallID: call.id, Inputs: inputs}
}

// Provenance returns how e entered the planner. It is empty unless
// Options.TrackProvenance is set.
func (p *Planner) Provenance(e *Expr) Provenance {
	return p.provenance[e.id]
}

// Lineage walks provenance from e back to the original tree, listing
// each step, e.g. for printing how a chosen expression was derived
func (p *Planner) Lineage(e *Expr) []string {
	var steps []string
	seen := make(map[ExprID]struct{})
	var walk func(id ExprID, depth int)
	walk = func(id ExprID, depth int) {
		if _, ok := seen[id]; ok || id <= 0 || int(id) >= len(p.exprs) {
			return
		}
		seen[id] = struct{}{}
		pv := p.provenance[id]
		steps = append(steps, fmt.Sprintf("%s%s <- %s", strings.Repeat("  ", depth), p.exprs[id], pv))
		for _, in := range pv.Inputs {
			walk(in, depth+1)
		}
	}
	walk(e.id, 0)
	return steps
}

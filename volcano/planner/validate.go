package planner

import (
	"errors"
	"fmt"
)

// Validate checks registry consistency: live sets are not forwarded,
// subsets point back at their sets, no member is cheaper than its
// subset's best, and every digest maps to a registered expression.
func (p *Planner) Validate() error {
	var errs []error
	p.live.Ascend(func(s *set) bool {
		if s.dead() {
			errs = append(errs, fmt.Errorf("set %d is live but forwards to %d", s.id, s.equivalent))
		}
		for _, sid := range s.subsets {
			sub := p.subsets[sid]
			if sub.set != s.id {
				errs = append(errs, fmt.Errorf("subset %s is listed in set %d", sub, s.id))
			}
			for _, e := range p.Members(sub) {
				if cost := p.Cost(e); cost.Less(sub.bestCost) {
					errs = append(errs, fmt.Errorf("subset %s has best cost %s but member %s costs %s",
						sub, sub.bestCost, e, cost))
				}
			}
			if sub.best != nil && !sub.best.traits.Satisfies(sub.traits) {
				errs = append(errs, fmt.Errorf("best %s of subset %s does not satisfy its traits", sub.best, sub))
			}
		}
		for _, id := range s.exprs {
			if sub := p.subsetOfExpr(p.exprs[id]); sub == nil {
				errs = append(errs, fmt.Errorf("member expr#%d of set %d is not registered", id, s.id))
			}
		}
		return true
	})
	for digest, e := range p.digests {
		if !p.isRegistered(e) {
			errs = append(errs, fmt.Errorf("digest %q maps to unregistered %s", digest, e))
		}
	}
	for _, s := range p.sets {
		if s.dead() {
			p.equivRoot(s.id)
		}
	}
	return errors.Join(errs...)
}

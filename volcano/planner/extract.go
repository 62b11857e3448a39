package planner

// buildCheapestPlan replaces every subset reachable from root by its
// best expression. Expressions are copied only where an input changed.
func (p *Planner) buildCheapestPlan(root *Subset) (*Expr, error) {
	active := make(map[SubsetID]struct{})
	var visit func(n Node) (*Expr, error)
	visit = func(n Node) (*Expr, error) {
		var e *Expr
		switch n := n.(type) {
		case *Subset:
			s := p.Canonize(n)
			if s.best == nil {
				return nil, &CannotPlanError{Subset: s.digest, Dump: p.Dump()}
			}
			if _, cyclic := active[s.id]; cyclic {
				invariantf("best plan for %s is cyclic", s)
			}
			active[s.id] = struct{}{}
			defer delete(active, s.id)
			e = s.best
		case *Expr:
			e = n
		}

		changed := false
		inputs := make([]Node, len(e.inputs))
		for i, in := range e.inputs {
			child, err := visit(in)
			if err != nil {
				return nil, err
			}
			inputs[i] = child
			if Node(child) != in {
				changed = true
			}
		}
		if p.listener != nil {
			p.listener.ExpressionChosen(ChosenEvent{Expr: e})
		}
		if changed {
			return e.Copy(e.traits, inputs), nil
		}
		return e, nil
	}

	best, err := visit(root)
	if err != nil {
		return nil, err
	}
	if p.listener != nil {
		p.listener.ExpressionChosen(ChosenEvent{})
	}
	return best, nil
}

package planner

// Listener receives planner events for tracing tools. A planner has at
// most one.
type Listener interface {
	// ExpressionDiscovered fires when an expression joins an equivalence
	// set, or when a subset is first created (Expr is nil then).
	ExpressionDiscovered(ev DiscoveredEvent)
	// ExpressionChosen fires for every expression of the extracted plan,
	// then once more with a nil Expr.
	ExpressionChosen(ev ChosenEvent)
	RuleAttempted(ev RuleAttemptedEvent)
	RuleProductionSucceeded(ev RuleProductionEvent)
}

// DiscoveredEvent describes a new set member or subset
type DiscoveredEvent struct {
	Expr     *Expr
	Subset   *Subset
	SetID    SetID
	Physical bool
}

// ChosenEvent describes one expression of the final plan
type ChosenEvent struct {
	Expr *Expr
}

// RuleAttemptedEvent brackets a rule invocation
type RuleAttemptedEvent struct {
	Rule   string
	CallID int
	Exprs  []*Expr
	Before bool
}

// RuleProductionEvent reports an expression produced by a rule
type RuleProductionEvent struct {
	Rule   string
	CallID int
	Expr   *Expr
}

// AddListener installs l. Only one listener may be installed.
func (p *Planner) AddListener(l Listener) error {
	if p.listener != nil {
		return ErrListenerAlreadySet
	}
	p.listener = l
	return nil
}

// Listener returns the installed listener, or nil
func (p *Planner) Listener() Listener { return p.listener }

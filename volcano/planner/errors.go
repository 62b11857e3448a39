package planner

import (
	"errors"
	"fmt"
)

var (
	// ErrCannotPlan is matched by every *CannotPlanError
	ErrCannotPlan = errors.New("cannot plan")

	// ErrListenerAlreadySet is returned when a second listener is added
	ErrListenerAlreadySet = errors.New("planner already has a listener")
)

// CannotPlanError reports that a subset needed by the final plan has no
// implementable member. Dump holds the registry snapshot at failure.
type CannotPlanError struct {
	Subset string
	Dump   string
}

func (e *CannotPlanError) Error() string {
	return fmt.Sprintf("node [%s] could not be implemented; planner state:\n\n%s", e.Subset, e.Dump)
}

// Is lets errors.Is match ErrCannotPlan
func (e *CannotPlanError) Is(target error) bool {
	return target == ErrCannotPlan
}

// invariantf panics with a registry corruption report. It is reserved
// for programmer errors that would otherwise silently yield wrong plans.
func invariantf(format string, args ...any) {
	panic(fmt.Sprintf("volcano invariant violated: "+format, args...))
}

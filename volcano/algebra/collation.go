package algebra

import (
	"strconv"
	"strings"

	"github.com/wbrown/janus-volcano/volcano/plan"
)

// Collation lists the field ordinals a relation is sorted on, most
// significant first. The empty collation means unordered.
type Collation []int

type collationDef struct{}

// CollationDef is the trait definition for Collation
var CollationDef plan.TraitDef = collationDef{}

func (collationDef) Name() string { return "collation" }

func (collationDef) Default() plan.Trait { return Collation(nil) }

func (c Collation) Def() plan.TraitDef { return CollationDef }

// Satisfies reports whether other is a prefix of c: data sorted on
// [0, 1] is also sorted on [0], and everything is sorted on [].
func (c Collation) Satisfies(other plan.Trait) bool {
	o, ok := other.(Collation)
	if !ok || len(o) > len(c) {
		return false
	}
	for i := range o {
		if c[i] != o[i] {
			return false
		}
	}
	return true
}

func (c Collation) String() string {
	parts := make([]string, len(c))
	for i, f := range c {
		parts[i] = strconv.Itoa(f)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Traits builds a trait set for the algebra's two dimensions
func Traits(conv plan.Convention, c Collation) plan.TraitSet {
	return plan.NewTraitSet(conv, c)
}

var (
	// Logical is the trait set of every logical operator
	Logical = Traits(plan.None, nil)
	// Physical is an executable, unordered trait set
	Physical = Traits(plan.Physical, nil)
)

// PhysicalSorted is Physical with a collation
func PhysicalSorted(fields ...int) plan.TraitSet {
	return Traits(plan.Physical, Collation(fields))
}

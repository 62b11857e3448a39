package plan

// TraitDef describes one dimension of a trait set (convention, collation, ...).
type TraitDef interface {
	// Name identifies the dimension; it must be unique within a planner
	Name() string
	// Default is the trait used when an expression does not care
	Default() Trait
}

// Trait is one physical property value.
type Trait interface {
	Def() TraitDef
	// Satisfies reports whether an expression with this trait can be used
	// where other is required. It must be reflexive.
	Satisfies(other Trait) bool
	String() string
}

// TraitEqual compares two traits by definition and printed form.
func TraitEqual(a, b Trait) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Def().Name() == b.Def().Name() && a.String() == b.String()
}

// Convention is the calling convention trait. Expressions in the None
// convention are logical only and cannot be executed.
type Convention string

const (
	None     Convention = "NONE"
	Physical Convention = "PHYSICAL"
)

type conventionDef struct{}

// ConventionDef is the trait definition for Convention. Every planner
// carries it as its first trait dimension.
var ConventionDef TraitDef = conventionDef{}

func (conventionDef) Name() string { return "convention" }
func (conventionDef) Default() Trait { return None }

func (c Convention) Def() TraitDef { return ConventionDef }

// Satisfies requires an exact match; conventions have no ordering.
func (c Convention) Satisfies(other Trait) bool {
	o, ok := other.(Convention)
	return ok && o == c
}

func (c Convention) String() string { return string(c) }

package plan

import "strings"

// TraitSet is an immutable, fixed-length vector of traits, one per
// trait definition registered with the planner, in registration order.
// Its printed form doubles as its identity.
type TraitSet struct {
	traits []Trait
	key    string
}

// NewTraitSet builds a trait set from traits in dimension order
func NewTraitSet(traits ...Trait) TraitSet {
	cp := make([]Trait, len(traits))
	copy(cp, traits)
	return TraitSet{traits: cp, key: joinTraits(cp)}
}

// DefaultTraitSet builds the trait set of defaults for the given definitions
func DefaultTraitSet(defs ...TraitDef) TraitSet {
	traits := make([]Trait, len(defs))
	for i, def := range defs {
		traits[i] = def.Default()
	}
	return TraitSet{traits: traits, key: joinTraits(traits)}
}

func joinTraits(traits []Trait) string {
	parts := make([]string, len(traits))
	for i, t := range traits {
		parts[i] = t.String()
	}
	return strings.Join(parts, ".")
}

// Size returns the number of dimensions
func (s TraitSet) Size() int { return len(s.traits) }

// Trait returns the trait at dimension i
func (s TraitSet) Trait(i int) Trait { return s.traits[i] }

// Traits returns a copy of the underlying traits
func (s TraitSet) Traits() []Trait {
	cp := make([]Trait, len(s.traits))
	copy(cp, s.traits)
	return cp
}

// Index returns the dimension holding traits of def, or -1
func (s TraitSet) Index(def TraitDef) int {
	for i, t := range s.traits {
		if t.Def().Name() == def.Name() {
			return i
		}
	}
	return -1
}

// Get returns the trait for def, or nil if the set has no such dimension
func (s TraitSet) Get(def TraitDef) Trait {
	if i := s.Index(def); i >= 0 {
		return s.traits[i]
	}
	return nil
}

// Convention returns the calling convention, or None if absent
func (s TraitSet) Convention() Convention {
	if c, ok := s.Get(ConventionDef).(Convention); ok {
		return c
	}
	return None
}

// Replace returns a copy with t stored in its definition's dimension.
// A trait whose definition is not present leaves the set unchanged.
func (s TraitSet) Replace(t Trait) TraitSet {
	i := s.Index(t.Def())
	if i < 0 {
		return s
	}
	return s.ReplaceAt(i, t)
}

// ReplaceAt returns a copy with dimension i set to t
func (s TraitSet) ReplaceAt(i int, t Trait) TraitSet {
	if TraitEqual(s.traits[i], t) {
		return s
	}
	traits := s.Traits()
	traits[i] = t
	return TraitSet{traits: traits, key: joinTraits(traits)}
}

// Satisfies reports whether every dimension of s satisfies the
// corresponding dimension of required.
func (s TraitSet) Satisfies(required TraitSet) bool {
	if len(s.traits) != len(required.traits) {
		return false
	}
	for i, t := range s.traits {
		if !t.Satisfies(required.traits[i]) {
			return false
		}
	}
	return true
}

// Equal compares two trait sets dimension by dimension
func (s TraitSet) Equal(other TraitSet) bool {
	return s.key == other.key && len(s.traits) == len(other.traits)
}

// Difference returns the traits of other at every dimension where it
// differs from s.
func (s TraitSet) Difference(other TraitSet) []Trait {
	var diff []Trait
	for i := 0; i < len(s.traits) && i < len(other.traits); i++ {
		if !TraitEqual(s.traits[i], other.traits[i]) {
			diff = append(diff, other.traits[i])
		}
	}
	return diff
}

// IsZero reports whether the set has no dimensions
func (s TraitSet) IsZero() bool { return len(s.traits) == 0 }

// String returns the printed form, e.g. "PHYSICAL.[0]"
func (s TraitSet) String() string { return s.key }

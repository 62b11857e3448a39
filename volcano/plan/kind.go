package plan

import "fmt"

// Kind is the operator tag carried by every expression.
// The set of kinds is closed; rules index their operands by kind.
type Kind uint8

const (
	KindAny Kind = iota // matches every kind in an operand, never carried by an expression

	// Logical operators
	KindScan
	KindFilter
	KindProject
	KindJoin
	KindAggregate

	// Physical operators
	KindTableScan
	KindIndexScan
	KindCalc
	KindHashJoin
	KindMergeJoin
	KindNestedLoopJoin
	KindHashAggregate
	KindSort

	// Synthetic
	KindConverter // abstract trait converter placeholder
	KindSubset    // a property subset used as an input reference

	kindCount
)

var kindNames = [...]string{
	KindAny:            "Any",
	KindScan:           "Scan",
	KindFilter:         "Filter",
	KindProject:        "Project",
	KindJoin:           "Join",
	KindAggregate:      "Aggregate",
	KindTableScan:      "TableScan",
	KindIndexScan:      "IndexScan",
	KindCalc:           "Calc",
	KindHashJoin:       "HashJoin",
	KindMergeJoin:      "MergeJoin",
	KindNestedLoopJoin: "NestedLoopJoin",
	KindHashAggregate:  "HashAggregate",
	KindSort:           "Sort",
	KindConverter:      "AbstractConverter",
	KindSubset:         "Subset",
}

// String returns the operator name used in digests
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind looks a kind up by name (case sensitive, as printed by String)
func ParseKind(name string) (Kind, bool) {
	for k := KindScan; k < kindCount; k++ {
		if kindNames[k] == name {
			return k, true
		}
	}
	return KindAny, false
}

// Kinds returns every concrete kind in declaration order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, kindCount-1)
	for k := KindScan; k < kindCount; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// Capability is a bit set of properties an operator kind declares.
// Operands may require capabilities instead of (or as well as) a kind.
type Capability uint16

const (
	// CapJoin marks two-input join operators
	CapJoin Capability = 1 << iota
	// CapCollation marks operators that produce or preserve an ordering
	CapCollation
	CapLeaf
	// CapConverter marks operators that change traits without changing content
	CapConverter
	// CapPhysical marks directly executable operators
	CapPhysical
	CapAggregate
	CapSingleInput
)

// CapNone declares nothing
const CapNone Capability = 0

var kindCaps = [...]Capability{
	KindScan:           CapLeaf,
	KindFilter:         CapSingleInput,
	KindProject:        CapSingleInput,
	KindJoin:           CapJoin,
	KindAggregate:      CapAggregate | CapSingleInput,
	KindTableScan:      CapLeaf | CapPhysical,
	KindIndexScan:      CapLeaf | CapPhysical | CapCollation,
	KindCalc:           CapSingleInput | CapPhysical,
	KindHashJoin:       CapJoin | CapPhysical,
	KindMergeJoin:      CapJoin | CapPhysical | CapCollation,
	KindNestedLoopJoin: CapJoin | CapPhysical,
	KindHashAggregate:  CapAggregate | CapSingleInput | CapPhysical,
	KindSort:           CapSingleInput | CapPhysical | CapCollation | CapConverter,
	KindConverter:      CapSingleInput | CapConverter,
	KindSubset:         CapNone,
}

// Capabilities returns the capabilities declared by the kind
func (k Kind) Capabilities() Capability {
	if int(k) < len(kindCaps) {
		return kindCaps[k]
	}
	return CapNone
}

// Has reports whether every bit in want is present
func (c Capability) Has(want Capability) bool {
	return c&want == want
}

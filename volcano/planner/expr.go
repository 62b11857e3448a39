package planner

import (
	"fmt"
	"strings"

	"github.com/wbrown/janus-volcano/volcano/plan"
)

// ExprID identifies a registered expression within one planner. Zero
// means the expression has not been registered.
type ExprID int

// Node is anything that can appear as an expression input: either an
// expression or a subset of an equivalence set. The set of
// implementations is closed.
type Node interface {
	Kind() plan.Kind
	Traits() plan.TraitSet
	Digest() string
	isNode()
}

// Expr is an operator expression. Its kind, traits, attributes and
// payload never change; the planner repairs input references after
// equivalence sets merge.
type Expr struct {
	id      ExprID
	kind    plan.Kind
	traits  plan.TraitSet
	attrs   string // canonical operator attributes, part of the digest
	payload any    // operator properties for the cost model, not part of the digest
	inputs  []Node
	digest  string

	varsSet  []string // correlation variables this expression defines
	varsUsed []string // correlation variables this expression reads
}

// NewExpr creates an unregistered expression
func NewExpr(kind plan.Kind, traits plan.TraitSet, attrs string, payload any, inputs ...Node) *Expr {
	e := &Expr{
		kind:    kind,
		traits:  traits,
		attrs:   attrs,
		payload: payload,
		inputs:  append([]Node(nil), inputs...),
	}
	e.recomputeDigest()
	return e
}

// NewConverter creates an abstract converter: the content of input,
// viewed under traits. It is never executable and costs infinity.
func NewConverter(input *Subset, traits plan.TraitSet) *Expr {
	return NewExpr(plan.KindConverter, traits, "", nil, input)
}

func (e *Expr) isNode() {}

// ID returns the planner-assigned id, zero if unregistered
func (e *Expr) ID() ExprID { return e.id }

func (e *Expr) Kind() plan.Kind { return e.kind }

func (e *Expr) Traits() plan.TraitSet { return e.traits }

// Convention is shorthand for Traits().Convention()
func (e *Expr) Convention() plan.Convention { return e.traits.Convention() }

func (e *Expr) Attrs() string { return e.attrs }

func (e *Expr) Payload() any { return e.payload }

func (e *Expr) Digest() string { return e.digest }

// Inputs returns a copy of the input list
func (e *Expr) Inputs() []Node {
	return append([]Node(nil), e.inputs...)
}

// Input returns input i
func (e *Expr) Input(i int) Node { return e.inputs[i] }

// Arity returns the number of inputs
func (e *Expr) Arity() int { return len(e.inputs) }

// VariablesSet returns the correlation variables defined here
func (e *Expr) VariablesSet() []string { return e.varsSet }

// VariablesUsed returns the correlation variables read here
func (e *Expr) VariablesUsed() []string { return e.varsUsed }

// WithCorrelation returns a copy declaring correlation variables
func (e *Expr) WithCorrelation(set, used []string) *Expr {
	c := e.Copy(e.traits, e.inputs)
	c.varsSet = append([]string(nil), set...)
	c.varsUsed = append([]string(nil), used...)
	return c
}

// Copy returns an unregistered copy with new traits and inputs
func (e *Expr) Copy(traits plan.TraitSet, inputs []Node) *Expr {
	c := &Expr{
		kind:     e.kind,
		traits:   traits,
		attrs:    e.attrs,
		payload:  e.payload,
		inputs:   append([]Node(nil), inputs...),
		varsSet:  e.varsSet,
		varsUsed: e.varsUsed,
	}
	c.recomputeDigest()
	return c
}

// WithInputs returns an unregistered copy with new inputs
func (e *Expr) WithInputs(inputs ...Node) *Expr {
	return e.Copy(e.traits, inputs)
}

// IsConverter reports whether e only changes traits of its single input
func (e *Expr) IsConverter() bool {
	return e.kind.Capabilities().Has(plan.CapConverter) && len(e.inputs) == 1
}

// IsAbstractConverter reports whether e is an unresolved converter placeholder
func (e *Expr) IsAbstractConverter() bool {
	return e.kind == plan.KindConverter
}

// recomputeDigest rebuilds the digest from the kind, traits, input
// identities and attributes. Registered inputs are subsets, so the
// digest depends on child set identity rather than child expressions.
func (e *Expr) recomputeDigest() string {
	var sb strings.Builder
	sb.WriteString(e.describe())
	sb.WriteByte('(')
	for i, in := range e.inputs {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(in.Digest())
	}
	if e.attrs != "" {
		if len(e.inputs) > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(e.attrs)
	}
	sb.WriteByte(')')
	e.digest = sb.String()
	return e.digest
}

func (e *Expr) describe() string {
	if e.traits.IsZero() {
		return e.kind.String()
	}
	return e.kind.String() + "." + e.traits.String()
}

// String returns "expr#id:digest" for registered expressions and the
// digest otherwise
func (e *Expr) String() string {
	if e.id == 0 {
		return e.digest
	}
	return fmt.Sprintf("expr#%d:%s", e.id, e.digest)
}

package sexpr

import (
	"fmt"
	"strconv"
	"strings"
)

// NodeType is the syntactic class of a parsed value
type NodeType int

const (
	NodeBool NodeType = iota
	NodeInt
	NodeFloat
	NodeString
	NodeSymbol
	NodeKeyword
	NodeList
	NodeVector
)

// Node is a parsed value. Atoms keep their source text in Value;
// lists and vectors keep their elements in Nodes.
type Node struct {
	Type  NodeType
	Line  int
	Col   int
	Value string
	Nodes []Node
}

func (n Node) String() string {
	switch n.Type {
	case NodeString:
		return strconv.Quote(n.Value)
	case NodeBool, NodeInt, NodeFloat, NodeSymbol, NodeKeyword:
		return n.Value
	case NodeList:
		return "(" + joinNodes(n.Nodes) + ")"
	case NodeVector:
		return "[" + joinNodes(n.Nodes) + "]"
	default:
		return fmt.Sprintf("Unknown[%v]", n.Value)
	}
}

func joinNodes(nodes []Node) string {
	parts := make([]string, len(nodes))
	for i, node := range nodes {
		parts[i] = node.String()
	}
	return strings.Join(parts, " ")
}

// Pos formats the source position for error messages
func (n Node) Pos() string {
	return fmt.Sprintf("%d:%d", n.Line, n.Col)
}

// AsString returns the value of a string node
func (n Node) AsString() (string, error) {
	if n.Type != NodeString {
		return "", fmt.Errorf("expected string at %s, got %s", n.Pos(), n)
	}
	return n.Value, nil
}

// AsInt returns the value of an int node
func (n Node) AsInt() (int64, error) {
	if n.Type != NodeInt {
		return 0, fmt.Errorf("expected integer at %s, got %s", n.Pos(), n)
	}
	return strconv.ParseInt(n.Value, 10, 64)
}

// AsFloat returns the value of any numeric node
func (n Node) AsFloat() (float64, error) {
	if n.Type != NodeFloat && n.Type != NodeInt {
		return 0, fmt.Errorf("expected number at %s, got %s", n.Pos(), n)
	}
	return strconv.ParseFloat(n.Value, 64)
}

// AsBool returns the value of a bool node
func (n Node) AsBool() (bool, error) {
	if n.Type != NodeBool {
		return false, fmt.Errorf("expected boolean at %s, got %s", n.Pos(), n)
	}
	return n.Value == "true", nil
}

// AsSymbol returns the name of a symbol node
func (n Node) AsSymbol() (string, error) {
	if n.Type != NodeSymbol {
		return "", fmt.Errorf("expected symbol at %s, got %s", n.Pos(), n)
	}
	return n.Value, nil
}

// AsKeyword returns a keyword without its leading colon
func (n Node) AsKeyword() (string, error) {
	if n.Type != NodeKeyword {
		return "", fmt.Errorf("expected keyword at %s, got %s", n.Pos(), n)
	}
	return n.Value[1:], nil
}

// IsCollection reports whether the node is a list or vector
func (n Node) IsCollection() bool {
	return n.Type == NodeList || n.Type == NodeVector
}

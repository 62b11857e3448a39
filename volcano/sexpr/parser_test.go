package sexpr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParserAtoms(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Node
	}{
		{"true", "true", Node{Type: NodeBool, Value: "true", Line: 1, Col: 1}},
		{"integer", "42", Node{Type: NodeInt, Value: "42", Line: 1, Col: 1}},
		{"negative integer", "-42", Node{Type: NodeInt, Value: "-42", Line: 1, Col: 1}},
		{"float", "0.25", Node{Type: NodeFloat, Value: "0.25", Line: 1, Col: 1}},
		{"scientific notation", "1e6", Node{Type: NodeFloat, Value: "1e6", Line: 1, Col: 1}},
		{"string", `"sal > 10"`, Node{Type: NodeString, Value: "sal > 10", Line: 1, Col: 1}},
		{"escaped string", `"a\"b"`, Node{Type: NodeString, Value: `a"b`, Line: 1, Col: 1}},
		{"symbol", "emp", Node{Type: NodeSymbol, Value: "emp", Line: 1, Col: 1}},
		{"keyword", ":rows", Node{Type: NodeKeyword, Value: ":rows", Line: 1, Col: 1}},
		{"leading whitespace", "  \n ; note\n  x", Node{Type: NodeSymbol, Value: "x", Line: 3, Col: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, *node)
		})
	}
}

func TestParseTree(t *testing.T) {
	node, err := Parse(`(join (scan emp :rows 1000) (scan dept :rows 10) :on "deptno")`)
	require.NoError(t, err)
	require.Equal(t, NodeList, node.Type)
	require.Len(t, node.Nodes, 5)

	op, err := node.Nodes[0].AsSymbol()
	require.NoError(t, err)
	assert.Equal(t, "join", op)

	scan := node.Nodes[1]
	assert.Equal(t, "(scan emp :rows 1000)", scan.String())
	rows, err := scan.Nodes[3].AsFloat()
	require.NoError(t, err)
	assert.Equal(t, 1000.0, rows)

	key, err := node.Nodes[3].AsKeyword()
	require.NoError(t, err)
	assert.Equal(t, "on", key)
	assert.Equal(t, 1, node.Nodes[3].Line)
	assert.Equal(t, 50, node.Nodes[3].Col)
}

func TestParseVector(t *testing.T) {
	node, err := Parse("[0, 1 2]")
	require.NoError(t, err)
	assert.Equal(t, NodeVector, node.Type)
	assert.Equal(t, "[0 1 2]", node.String())
	assert.True(t, node.IsCollection())
}

func TestParseAll(t *testing.T) {
	nodes, err := ParseAll("(scan a) ; first\n(scan b)")
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, 2, nodes[1].Line)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		msg   string
	}{
		{"empty", "", "unexpected EOF"},
		{"unclosed", "(scan emp", "unclosed collection starting at 1:1"},
		{"mismatched", "(scan emp]", "mismatched ']' at 1:10, expected )"},
		{"stray close", ")", "unexpected ')' at 1:1"},
		{"unterminated string", `"abc`, "unterminated string"},
		{"bad escape", `"a\qb"`, "invalid escape"},
		{"bad keyword", "(scan :9)", "invalid keyword :9"},
		{"trailing", "(scan a) (scan b)", "unexpected trailing input at 1:10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestTokenString(t *testing.T) {
	lexer := NewLexer(`(scan "emp" [0])`)
	require.NoError(t, lexer.Lex())

	var got []string
	for {
		tok := lexer.NextToken()
		got = append(got, tok.String())
		if tok.Kind == TokenEOF {
			break
		}
	}
	assert.Equal(t, []string{"'('", "scan", `"emp"`, "'['", "0", "']'", "')'", "end of input"}, got)
	assert.Equal(t, "token(42)", TokenKind(42).String())
}

func TestTypedAccessorsReject(t *testing.T) {
	node := Node{Type: NodeSymbol, Value: "emp", Line: 2, Col: 4}
	_, err := node.AsInt()
	assert.EqualError(t, err, "expected integer at 2:4, got emp")
	_, err = node.AsKeyword()
	assert.Error(t, err)
	_, err = node.AsString()
	assert.Error(t, err)
}

package sexpr

import (
	"fmt"
	"regexp"
)

var (
	intPattern     = regexp.MustCompile(`^[+-]?\d+$`)
	floatPattern   = regexp.MustCompile(`^[+-]?\d+(\.\d+)?([eE][+-]?\d+)?$`)
	keywordPattern = regexp.MustCompile(`^:[A-Za-z_][A-Za-z0-9_.\-/]*$`)
)

// Parser turns tokens into nodes
type Parser struct {
	lexer *Lexer
}

// NewParser creates a parser over an already lexed input
func NewParser(lexer *Lexer) *Parser {
	return &Parser{lexer: lexer}
}

// Parse reads exactly one value from input
func Parse(input string) (*Node, error) {
	lexer := NewLexer(input)
	if err := lexer.Lex(); err != nil {
		return nil, err
	}
	parser := NewParser(lexer)
	node, err := parser.Parse()
	if err != nil {
		return nil, err
	}
	if tok := lexer.PeekToken(); tok.Kind != TokenEOF {
		return nil, fmt.Errorf("unexpected trailing input at %d:%d", tok.Line, tok.Col)
	}
	return node, nil
}

// ParseAll reads every value in input
func ParseAll(input string) ([]Node, error) {
	lexer := NewLexer(input)
	if err := lexer.Lex(); err != nil {
		return nil, err
	}
	return NewParser(lexer).ParseAll()
}

// Parse reads a single value
func (p *Parser) Parse() (*Node, error) {
	return p.readNode()
}

// ParseAll reads values until EOF
func (p *Parser) ParseAll() ([]Node, error) {
	var nodes []Node
	for p.lexer.PeekToken().Kind != TokenEOF {
		node, err := p.readNode()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *node)
	}
	return nodes, nil
}

func (p *Parser) readNode() (*Node, error) {
	token := p.lexer.PeekToken()
	switch token.Kind {
	case TokenEOF:
		return nil, fmt.Errorf("unexpected EOF at %d:%d", token.Line, token.Col)
	case TokenString:
		p.lexer.NextToken()
		return &Node{Type: NodeString, Value: token.Value, Line: token.Line, Col: token.Col}, nil
	case TokenAtom:
		return p.readAtom()
	case TokenOpen:
		return p.readCollection(NodeList, TokenClose, ")")
	case TokenOpenVector:
		return p.readCollection(NodeVector, TokenCloseVector, "]")
	default:
		return nil, fmt.Errorf("unexpected %s at %d:%d", token, token.Line, token.Col)
	}
}

func (p *Parser) readAtom() (*Node, error) {
	token := p.lexer.NextToken()
	value := token.Value
	node := &Node{Value: value, Line: token.Line, Col: token.Col}

	switch {
	case value == "true" || value == "false":
		node.Type = NodeBool
	case value[0] == ':':
		if !keywordPattern.MatchString(value) {
			return nil, fmt.Errorf("invalid keyword %s at %d:%d", value, token.Line, token.Col)
		}
		node.Type = NodeKeyword
	case intPattern.MatchString(value):
		node.Type = NodeInt
	case floatPattern.MatchString(value):
		node.Type = NodeFloat
	default:
		node.Type = NodeSymbol
	}
	return node, nil
}

func (p *Parser) readCollection(typ NodeType, closer TokenKind, closeText string) (*Node, error) {
	start := p.lexer.NextToken()
	node := &Node{Type: typ, Line: start.Line, Col: start.Col}
	for {
		token := p.lexer.PeekToken()
		switch token.Kind {
		case closer:
			p.lexer.NextToken()
			return node, nil
		case TokenEOF:
			return nil, fmt.Errorf("unclosed collection starting at %d:%d, expected %s", start.Line, start.Col, closeText)
		case TokenClose, TokenCloseVector:
			return nil, fmt.Errorf("mismatched %s at %d:%d, expected %s", token, token.Line, token.Col, closeText)
		}
		child, err := p.readNode()
		if err != nil {
			return nil, err
		}
		node.Nodes = append(node.Nodes, *child)
	}
}

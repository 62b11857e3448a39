package sexpr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// TokenKind classifies a token
type TokenKind int

const (
	TokenEOF TokenKind = iota
	TokenString
	TokenAtom
	TokenOpen        // (
	TokenClose       // )
	TokenOpenVector  // [
	TokenCloseVector // ]
)

var tokenNames = [...]string{
	TokenEOF:         "end of input",
	TokenString:      "string",
	TokenAtom:        "atom",
	TokenOpen:        "'('",
	TokenClose:       "')'",
	TokenOpenVector:  "'['",
	TokenCloseVector: "']'",
}

func (k TokenKind) String() string {
	if k < 0 || int(k) >= len(tokenNames) {
		return "token(" + strconv.Itoa(int(k)) + ")"
	}
	return tokenNames[k]
}

// Token is one token and the position it starts at
type Token struct {
	Kind  TokenKind
	Value string
	Line  int
	Col   int
}

// String renders the token the way error messages quote it
func (t Token) String() string {
	switch t.Kind {
	case TokenString:
		return strconv.Quote(t.Value)
	case TokenAtom:
		return t.Value
	}
	return t.Kind.String()
}

// Lexer tokenizes operator-tree text. Commas are whitespace and ';'
// starts a comment running to the end of the line.
type Lexer struct {
	input   string
	pos     int
	line    int
	col     int
	tokens  []Token
	current int
}

// NewLexer creates a lexer for input
func NewLexer(input string) *Lexer {
	return &Lexer{input: input, line: 1, col: 1}
}

// Lex tokenizes the entire input
func (l *Lexer) Lex() error {
	for l.pos < len(l.input) {
		l.skipWhitespaceAndComments()
		if l.pos >= len(l.input) {
			break
		}

		startLine, startCol := l.line, l.col
		ch := l.peek()
		var kind TokenKind
		switch ch {
		case '"':
			str, err := l.readString()
			if err != nil {
				return err
			}
			l.emit(TokenString, str, startLine, startCol)
			continue
		case '(':
			kind = TokenOpen
		case ')':
			kind = TokenClose
		case '[':
			kind = TokenOpenVector
		case ']':
			kind = TokenCloseVector
		default:
			atom := l.readAtom()
			if atom == "" {
				return fmt.Errorf("unexpected character '%c' at %d:%d", ch, l.line, l.col)
			}
			l.emit(TokenAtom, atom, startLine, startCol)
			continue
		}
		l.advance()
		l.emit(kind, "", startLine, startCol)
	}

	l.emit(TokenEOF, "", l.line, l.col)
	return nil
}

func (l *Lexer) emit(kind TokenKind, value string, line, col int) {
	l.tokens = append(l.tokens, Token{Kind: kind, Value: value, Line: line, Col: col})
}

// NextToken returns the next token
func (l *Lexer) NextToken() Token {
	if l.current >= len(l.tokens) {
		return Token{Kind: TokenEOF, Line: l.line, Col: l.col}
	}
	token := l.tokens[l.current]
	l.current++
	return token
}

// PeekToken returns the next token without advancing
func (l *Lexer) PeekToken() Token {
	if l.current >= len(l.tokens) {
		return Token{Kind: TokenEOF, Line: l.line, Col: l.col}
	}
	return l.tokens[l.current]
}

func (l *Lexer) peek() byte {
	if l.pos >= len(l.input) {
		return 0
	}
	return l.input[l.pos]
}

func (l *Lexer) advance() {
	if l.pos < len(l.input) {
		if l.input[l.pos] == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
		l.pos++
	}
}

func (l *Lexer) skipWhitespaceAndComments() {
	for l.pos < len(l.input) {
		ch := l.peek()
		if unicode.IsSpace(rune(ch)) || ch == ',' {
			l.advance()
		} else if ch == ';' {
			for l.pos < len(l.input) && l.peek() != '\n' {
				l.advance()
			}
		} else {
			break
		}
	}
}

func (l *Lexer) readString() (string, error) {
	var result strings.Builder
	l.advance() // opening quote

	for l.pos < len(l.input) {
		ch := l.peek()
		switch ch {
		case '"':
			l.advance()
			return result.String(), nil
		case '\\':
			l.advance()
			if l.pos >= len(l.input) {
				return "", fmt.Errorf("unexpected end of input in string at %d:%d", l.line, l.col)
			}
			switch escaped := l.peek(); escaped {
			case 't':
				result.WriteByte('\t')
			case 'n':
				result.WriteByte('\n')
			case '\\', '"':
				result.WriteByte(escaped)
			default:
				return "", fmt.Errorf("invalid escape sequence '\\%c' at %d:%d", escaped, l.line, l.col)
			}
			l.advance()
		default:
			result.WriteByte(ch)
			l.advance()
		}
	}
	return "", fmt.Errorf("unterminated string at %d:%d", l.line, l.col)
}

func (l *Lexer) readAtom() string {
	start := l.pos
	for l.pos < len(l.input) {
		ch := l.peek()
		if isDelimiter(ch) || unicode.IsSpace(rune(ch)) || ch == ',' {
			break
		}
		l.advance()
	}
	return l.input[start:l.pos]
}

func isDelimiter(ch byte) bool {
	return ch == '(' || ch == ')' || ch == '[' || ch == ']' || ch == '"' || ch == ';'
}

// Package filter implements the filter-set query language used to narrow
// findings before allocation.
//
// Two query forms exist. A special query (actionParam "true") is a list of
// space-separated field:value clauses that are ANDed:
//
//	confidence:[4,5] analyzer:dataflow category:!Dead Code
//	severity:(2.5,5] audience:targeted
//	[fortify priority order]:critical
//
// An advanced query (actionParam is a folder GUID) must match one of three
// fixed grammars as a whole, otherwise it matches every finding:
//
//	confidence:[3.5-5] AND [fortify priority order]:high
//	confidence:[4,5] severity:(3,5]
//	[fortify priority order]:critical
package filter

import (
	"fmt"
	"strings"
	"unicode"
)

// TokenType represents the type of a lexer token.
type TokenType int

const (
	TokenEOF    TokenType = iota
	TokenField            // field name, bare or bracketed
	TokenColon            // :
	TokenNot              // ! at the start of a value
	TokenValue            // clause value, \: unescaped
	TokenLBracket         // [
	TokenLParen           // (
	TokenRBracket         // ]
	TokenRParen           // )
	TokenComma            // ,
	TokenDash             // -
	TokenNumber           // 4, 2.5
)

// String returns the string representation of a TokenType.
func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenField:
		return "FIELD"
	case TokenColon:
		return ":"
	case TokenNot:
		return "!"
	case TokenValue:
		return "VALUE"
	case TokenLBracket:
		return "["
	case TokenLParen:
		return "("
	case TokenRBracket:
		return "]"
	case TokenRParen:
		return ")"
	case TokenComma:
		return ","
	case TokenDash:
		return "-"
	case TokenNumber:
		return "NUMBER"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", t)
	}
}

// Token represents a single token from the lexer.
type Token struct {
	Type  TokenType
	Value string
	Pos   int // Position in input string
}

type lexState int

const (
	stateField lexState = iota
	stateColon
	stateValue
)

// Lexer splits a special query into field, colon, negation and value
// tokens. A value runs until a whitespace character followed by the next
// "field:" or the end of input, so values may contain spaces.
type Lexer struct {
	input   string
	pos     int
	state   lexState
	pending *Token
}

// NewLexer creates a new Lexer for the given input string.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() Token {
	if l.pending != nil {
		tok := *l.pending
		l.pending = nil
		return tok
	}

	switch l.state {
	case stateColon:
		l.state = stateValue
		start := l.pos
		l.pos++
		return Token{Type: TokenColon, Value: ":", Pos: start}

	case stateValue:
		l.state = stateField
		tok := l.readValue()
		if strings.HasPrefix(tok.Value, "!") {
			rest := Token{Type: TokenValue, Value: tok.Value[1:], Pos: tok.Pos + 1}
			l.pending = &rest
			return Token{Type: TokenNot, Value: "!", Pos: tok.Pos}
		}
		return tok
	}

	// Text that does not start a clause is ignored.
	for {
		l.skipWhitespace()
		if l.pos >= len(l.input) {
			return Token{Type: TokenEOF, Pos: l.pos}
		}
		if end, ok := fieldAt(l.input, l.pos); ok {
			start := l.pos
			name := l.input[start:end]
			if strings.HasPrefix(name, "[") {
				name = name[1 : len(name)-1]
			}
			l.pos = end
			l.state = stateColon
			return Token{Type: TokenField, Value: strings.TrimSpace(name), Pos: start}
		}
		for l.pos < len(l.input) && !isSpace(l.input[l.pos]) {
			l.pos++
		}
	}
}

// Tokens returns every token up to and including EOF.
func (l *Lexer) Tokens() []Token {
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens
		}
	}
}

func (l *Lexer) readValue() Token {
	start := l.pos
	for l.pos < len(l.input) && !l.atBoundary(l.pos) {
		l.pos++
	}
	raw := strings.TrimSpace(l.input[start:l.pos])
	return Token{Type: TokenValue, Value: strings.ReplaceAll(raw, `\:`, ":"), Pos: start}
}

// atBoundary reports whether a value ends at i: a whitespace character
// immediately followed by a field name and colon.
func (l *Lexer) atBoundary(i int) bool {
	if !isSpace(l.input[i]) {
		return false
	}
	_, ok := fieldAt(l.input, i+1)
	return ok
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) && isSpace(l.input[l.pos]) {
		l.pos++
	}
}

// fieldAt reports whether a field name followed by ':' starts at i and
// returns the offset of the colon.
func fieldAt(s string, i int) (int, bool) {
	if i >= len(s) {
		return 0, false
	}
	if s[i] == '[' {
		end := strings.IndexByte(s[i:], ']')
		if end < 0 || i+end+1 >= len(s) || s[i+end+1] != ':' {
			return 0, false
		}
		return i + end + 1, end > 1
	}
	j := i
	for j < len(s) && isWord(s[j]) {
		j++
	}
	if j == i || j >= len(s) || s[j] != ':' {
		return 0, false
	}
	return j, true
}

func isWord(b byte) bool {
	return b == '_' || b < 0x80 && (unicode.IsLetter(rune(b)) || unicode.IsDigit(rune(b)))
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// scanRange tokenizes an interval or range value such as "[4,5]", "(2.5,5]"
// or "[3-5]".
func scanRange(s string) ([]Token, error) {
	var tokens []Token
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case isSpace(c):
			i++
			continue
		case c == '[':
			tokens = append(tokens, Token{Type: TokenLBracket, Value: "[", Pos: i})
		case c == '(':
			tokens = append(tokens, Token{Type: TokenLParen, Value: "(", Pos: i})
		case c == ']':
			tokens = append(tokens, Token{Type: TokenRBracket, Value: "]", Pos: i})
		case c == ')':
			tokens = append(tokens, Token{Type: TokenRParen, Value: ")", Pos: i})
		case c == ',':
			tokens = append(tokens, Token{Type: TokenComma, Value: ",", Pos: i})
		case c == '-':
			tokens = append(tokens, Token{Type: TokenDash, Value: "-", Pos: i})
		case c >= '0' && c <= '9':
			start := i
			for i < len(s) && s[i] >= '0' && s[i] <= '9' {
				i++
			}
			if i+1 < len(s) && s[i] == '.' && s[i+1] >= '0' && s[i+1] <= '9' {
				i++
				for i < len(s) && s[i] >= '0' && s[i] <= '9' {
					i++
				}
			}
			tokens = append(tokens, Token{Type: TokenNumber, Value: s[start:i], Pos: start})
			continue
		default:
			return nil, fmt.Errorf("unexpected character %q at position %d", c, i)
		}
		i++
	}
	return append(tokens, Token{Type: TokenEOF, Pos: len(s)}), nil
}

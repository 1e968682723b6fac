package ruleql

import "fmt"

// TokenType represents the type of a lexical token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenWord
	TokenString
	TokenOperator
	TokenLParen
	TokenRParen
	TokenAnd
	TokenOr
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "end of input"
	case TokenWord:
		return "word"
	case TokenString:
		return "string"
	case TokenOperator:
		return "operator"
	case TokenLParen:
		return "'('"
	case TokenRParen:
		return "')'"
	case TokenAnd:
		return "AND"
	case TokenOr:
		return "OR"
	default:
		return fmt.Sprintf("TokenType(%d)", int(t))
	}
}

// Token represents a lexical token. Pos is the byte offset of the token in the input.
type Token struct {
	Type  TokenType
	Value string
	Pos   int
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return t.Type.String()
	}
	return fmt.Sprintf("%s %q at %d", t.Type, t.Value, t.Pos)
}

// Lexer tokenizes rule text.
type Lexer struct {
	input string
	pos   int
}

// NewLexer creates a new Lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// NextToken returns the next token from the input.
// Characters that cannot start a token are skipped.
func (l *Lexer) NextToken() Token {
	for l.pos < len(l.input) {
		ch := l.input[l.pos]

		switch {
		case ch == '(':
			l.pos++
			return Token{Type: TokenLParen, Value: "(", Pos: l.pos - 1}
		case ch == ')':
			l.pos++
			return Token{Type: TokenRParen, Value: ")", Pos: l.pos - 1}
		case isWordChar(ch):
			return l.readWord()
		case isOperatorChar(ch):
			return l.readOperator()
		case ch == '\'':
			if tok, ok := l.readString(); ok {
				return tok
			}
		}

		// Whitespace, unterminated quote or unknown character, skip
		l.pos++
	}
	return Token{Type: TokenEOF, Pos: len(l.input)}
}

// Tokenize returns every token of input, without the trailing EOF token.
// Input with no recognizable tokens is a syntax error.
func Tokenize(input string) ([]Token, error) {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok := l.NextToken()
		if tok.Type == TokenEOF {
			break
		}
		tokens = append(tokens, tok)
	}
	if len(tokens) == 0 {
		return nil, &SyntaxError{Pos: 0, Expected: "rule expression", Found: "empty input"}
	}
	return tokens, nil
}

func (l *Lexer) readWord() Token {
	start := l.pos
	for l.pos < len(l.input) && isWordChar(l.input[l.pos]) {
		l.pos++
	}
	value := l.input[start:l.pos]

	// Keywords are case sensitive
	switch value {
	case "AND":
		return Token{Type: TokenAnd, Value: value, Pos: start}
	case "OR":
		return Token{Type: TokenOr, Value: value, Pos: start}
	}
	return Token{Type: TokenWord, Value: value, Pos: start}
}

func (l *Lexer) readOperator() Token {
	start := l.pos
	for l.pos < len(l.input) && isOperatorChar(l.input[l.pos]) {
		l.pos++
	}
	return Token{Type: TokenOperator, Value: l.input[start:l.pos], Pos: start}
}

// readString reads a single-quoted literal, keeping the quotes in the value.
// It reports false when the quote is never closed.
func (l *Lexer) readString() (Token, bool) {
	start := l.pos
	end := l.pos + 1
	for end < len(l.input) && l.input[end] != '\'' {
		end++
	}
	if end >= len(l.input) {
		return Token{}, false
	}
	l.pos = end + 1
	return Token{Type: TokenString, Value: l.input[start:l.pos], Pos: start}, true
}

func isWordChar(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9')
}

func isOperatorChar(ch byte) bool {
	return ch == '<' || ch == '>' || ch == '='
}

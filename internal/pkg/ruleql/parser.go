package ruleql

import "fmt"

// Parser parses rule tokens into an AST.
type Parser struct {
	tokens  []Token
	pos     int
	current Token
}

// Parse tokenizes and parses the input string and returns the AST root node.
func Parse(input string) (Node, error) {
	tokens, err := Tokenize(input)
	if err != nil {
		return nil, err
	}
	return ParseTokens(tokens)
}

// ParseTokens parses an already tokenized rule.
//
// AND and OR share one precedence level and associate to the left, so
// a AND b OR c is (a AND b) OR c. Parentheses group explicitly.
func ParseTokens(tokens []Token) (Node, error) {
	if len(tokens) == 0 {
		return nil, &SyntaxError{Pos: 0, Expected: "rule expression", Found: "empty input"}
	}
	p := &Parser{tokens: tokens, pos: -1}
	p.advance()

	node, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if p.current.Type != TokenEOF {
		return nil, p.errorf("AND, OR or end of input")
	}
	return node, nil
}

func (p *Parser) advance() {
	p.pos++
	if p.pos < len(p.tokens) {
		p.current = p.tokens[p.pos]
		return
	}
	end := 0
	if n := len(p.tokens); n > 0 {
		last := p.tokens[n-1]
		end = last.Pos + len(last.Value)
	}
	p.current = Token{Type: TokenEOF, Pos: end}
}

func (p *Parser) peek() Token {
	if p.pos+1 < len(p.tokens) {
		return p.tokens[p.pos+1]
	}
	return Token{Type: TokenEOF}
}

func (p *Parser) errorf(expected string) error {
	found := p.current.Type.String()
	if p.current.Type != TokenEOF {
		found = fmt.Sprintf("%q", p.current.Value)
	}
	return &SyntaxError{Pos: p.current.Pos, Expected: expected, Found: found}
}

// parseExpression handles Term (('AND'|'OR') Term)*.
func (p *Parser) parseExpression() (Node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	for p.current.Type == TokenAnd || p.current.Type == TokenOr {
		op := LogicalOp(p.current.Value)
		p.advance()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = BinaryExpr{Op: op, Left: left, Right: right}
	}

	return left, nil
}

// parseTerm handles (expr), identifier operator literal, and bare literals.
func (p *Parser) parseTerm() (Node, error) {
	switch p.current.Type {
	case TokenLParen:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if p.current.Type != TokenRParen {
			return nil, p.errorf("')'")
		}
		p.advance()
		return expr, nil

	case TokenWord:
		if p.peek().Type == TokenOperator {
			return p.parseComparison()
		}
		lit := Literal{Raw: p.current.Value}
		p.advance()
		return lit, nil

	case TokenString:
		if p.peek().Type == TokenOperator {
			return nil, p.errorf("identifier")
		}
		lit := Literal{Raw: p.current.Value}
		p.advance()
		return lit, nil

	default:
		return nil, p.errorf("comparison, literal or '('")
	}
}

// parseComparison consumes identifier, operator and literal.
func (p *Parser) parseComparison() (Node, error) {
	ident := Identifier{Name: p.current.Value}
	p.advance()

	op, ok := compareOps[p.current.Value]
	if !ok {
		return nil, p.errorf("one of > < = >= <=")
	}
	p.advance()

	if p.current.Type != TokenWord && p.current.Type != TokenString {
		return nil, p.errorf("literal")
	}
	lit := Literal{Raw: p.current.Value}
	p.advance()

	return ComparisonExpr{Op: op, Left: ident, Right: lit}, nil
}

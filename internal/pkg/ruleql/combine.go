package ruleql

import (
	"fmt"
	"strings"
)

// OperatorCount holds the number of AND and OR nodes in one or more trees.
type OperatorCount struct {
	And int
	Or  int
}

// CountOperators counts logical operators in the tree. Comparison operators are not counted.
func CountOperators(node Node) OperatorCount {
	var c OperatorCount
	countInto(&c, node)
	return c
}

func countInto(c *OperatorCount, node Node) {
	bin, ok := node.(BinaryExpr)
	if !ok {
		return
	}
	switch bin.Op {
	case OpAnd:
		c.And++
	case OpOr:
		c.Or++
	}
	countInto(c, bin.Left)
	countInto(c, bin.Right)
}

// Dominant returns the operator used to join combined rules. Ties go to AND.
func (c OperatorCount) Dominant() LogicalOp {
	if c.And >= c.Or {
		return OpAnd
	}
	return OpOr
}

// Combine parses every rule and joins them into one tree using the
// operator that occurs most often across all of them.
//
// The rules are folded left to right and then flattened once, bottom up,
// so (A op B) op C becomes A op (B op C). A single rule is returned as parsed.
func Combine(rules []string) (Node, error) {
	if len(rules) == 0 {
		return nil, ErrEmptyInput
	}

	asts := make([]Node, 0, len(rules))
	var total OperatorCount
	for i, rule := range rules {
		ast, err := Parse(rule)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		c := CountOperators(ast)
		total.And += c.And
		total.Or += c.Or
		asts = append(asts, ast)
	}

	if len(asts) == 1 {
		return asts[0], nil
	}

	op := total.Dominant()
	combined := asts[0]
	for _, ast := range asts[1:] {
		combined = BinaryExpr{Op: op, Left: combined, Right: ast}
	}

	return Flatten(combined), nil
}

// Flatten rewrites left-nested chains of the same operator into right-nested
// ones. Each node is rewritten at most once; the node created by a rewrite is
// not visited again, so deeply nested inputs may keep some left nesting.
func Flatten(node Node) Node {
	bin, ok := node.(BinaryExpr)
	if !ok {
		return node
	}

	bin.Left = Flatten(bin.Left)
	bin.Right = Flatten(bin.Right)

	if left, ok := bin.Left.(BinaryExpr); ok && left.Op == bin.Op {
		return BinaryExpr{
			Op:   bin.Op,
			Left: left.Left,
			Right: BinaryExpr{
				Op:    bin.Op,
				Left:  left.Right,
				Right: bin.Right,
			},
		}
	}

	return bin
}

// CombinedName joins rule names in input order, e.g. "R1 + R2 + R3".
func CombinedName(names []string) string {
	return strings.Join(names, " + ")
}

package ruleql

import "fmt"

// Evaluate interprets the AST against a tuple and reports whether the rule holds.
func Evaluate(node Node, t Tuple) (bool, error) {
	switch n := node.(type) {
	case BinaryExpr:
		return evalBinary(n, t)
	case ComparisonExpr:
		return evalComparison(n, t)
	default:
		return false, &UnknownNodeTypeError{Type: nodeType(node)}
	}
}

// evalBinary always evaluates both sides before combining them.
func evalBinary(expr BinaryExpr, t Tuple) (bool, error) {
	left, err := Evaluate(expr.Left, t)
	if err != nil {
		return false, err
	}
	right, err := Evaluate(expr.Right, t)
	if err != nil {
		return false, err
	}

	switch expr.Op {
	case OpAnd:
		return left && right, nil
	case OpOr:
		return left || right, nil
	default:
		return false, &UnknownOperatorError{Op: string(expr.Op), Kind: "binary"}
	}
}

func evalComparison(expr ComparisonExpr, t Tuple) (bool, error) {
	left, err := t.Lookup(expr.Left.Name)
	if err != nil {
		return false, err
	}
	right := LiteralValue(expr.Right.Raw)

	switch expr.Op {
	case OpEq:
		return strictEqual(left, right), nil
	case OpGt:
		return order(left, right, func(c int) bool { return c > 0 }), nil
	case OpLt:
		return order(left, right, func(c int) bool { return c < 0 }), nil
	case OpGte:
		return order(left, right, func(c int) bool { return c >= 0 }), nil
	case OpLte:
		return order(left, right, func(c int) bool { return c <= 0 }), nil
	default:
		return false, &UnknownOperatorError{Op: string(expr.Op), Kind: "comparison"}
	}
}

// strictEqual requires the same kind and the same value.
func strictEqual(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNumber:
		return a.Num == b.Num
	case KindString:
		return a.Str == b.Str
	default:
		return false
	}
}

// order compares two strings lexicographically, anything else numerically.
// Operands that have no numeric reading never satisfy an ordering.
func order(a, b Value, ok func(c int) bool) bool {
	if a.Kind == KindString && b.Kind == KindString {
		switch {
		case a.Str < b.Str:
			return ok(-1)
		case a.Str > b.Str:
			return ok(1)
		default:
			return ok(0)
		}
	}

	x, okA := toNumber(a)
	y, okB := toNumber(b)
	if !okA || !okB {
		return false
	}
	switch {
	case x < y:
		return ok(-1)
	case x > y:
		return ok(1)
	default:
		return ok(0)
	}
}

// nodeType returns the interchange type name of a node.
func nodeType(node Node) string {
	switch node.(type) {
	case BinaryExpr:
		return TypeBinary
	case ComparisonExpr:
		return TypeComparison
	case Identifier:
		return TypeIdentifier
	case Literal:
		return TypeLiteral
	case nil:
		return "nil"
	default:
		return fmt.Sprintf("%T", node)
	}
}

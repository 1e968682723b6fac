package ruleql

import "strings"

// String reconstructs canonical rule text from an AST.
//
// A side of a binary expression is parenthesized only when it is itself a
// binary expression, so the source text's own parentheses are not preserved.
func String(node Node) string {
	switch n := node.(type) {
	case ComparisonExpr:
		return n.Left.Name + " " + string(n.Op) + " " + n.Right.Raw
	case BinaryExpr:
		return side(n.Left) + " " + string(n.Op) + " " + side(n.Right)
	case Identifier:
		return n.Name
	case Literal:
		return n.Raw
	default:
		return ""
	}
}

func side(node Node) string {
	if _, ok := node.(BinaryExpr); ok {
		return "(" + String(node) + ")"
	}
	return String(node)
}

// Dump renders the tree one node per line for debugging, e.g.
//
//	BinaryExpression (AND)
//	  ComparisonExpression (>)
//	    Identifier: age
//	    Literal: 30
func Dump(node Node) string {
	var sb strings.Builder
	dump(&sb, node, "")
	return sb.String()
}

func dump(sb *strings.Builder, node Node, indent string) {
	if node == nil {
		return
	}
	sb.WriteString(indent)
	sb.WriteString(nodeType(node))

	switch n := node.(type) {
	case BinaryExpr:
		sb.WriteString(" (" + string(n.Op) + ")\n")
		dump(sb, n.Left, indent+"  ")
		dump(sb, n.Right, indent+"  ")
	case ComparisonExpr:
		sb.WriteString(" (" + string(n.Op) + ")\n")
		dump(sb, n.Left, indent+"  ")
		dump(sb, n.Right, indent+"  ")
	case Identifier:
		sb.WriteString(": " + n.Name + "\n")
	case Literal:
		sb.WriteString(": " + n.Raw + "\n")
	default:
		sb.WriteString("\n")
	}
}

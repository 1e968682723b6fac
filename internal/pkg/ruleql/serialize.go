package ruleql

import (
	"encoding/json"
	"fmt"
)

// Interchange node type names.
const (
	TypeBinary     = "BinaryExpression"
	TypeComparison = "ComparisonExpression"
	TypeIdentifier = "Identifier"
	TypeLiteral    = "Literal"
)

// Tree is the persisted shape of an AST node.
// Leaves carry Value, inner nodes carry Operator and both children;
// absent fields encode as null.
type Tree struct {
	Type     string  `json:"type"`
	Value    *string `json:"value"`
	Operator *string `json:"operator"`
	Left     *Tree   `json:"left"`
	Right    *Tree   `json:"right"`
}

// Serialize converts an AST into its interchange tree. A nil node yields nil.
func Serialize(node Node) *Tree {
	switch n := node.(type) {
	case BinaryExpr:
		return &Tree{
			Type:     TypeBinary,
			Operator: ptr(string(n.Op)),
			Left:     Serialize(n.Left),
			Right:    Serialize(n.Right),
		}
	case ComparisonExpr:
		return &Tree{
			Type:     TypeComparison,
			Operator: ptr(string(n.Op)),
			Left:     Serialize(n.Left),
			Right:    Serialize(n.Right),
		}
	case Identifier:
		return &Tree{Type: TypeIdentifier, Value: ptr(n.Name)}
	case Literal:
		return &Tree{Type: TypeLiteral, Value: ptr(n.Raw)}
	default:
		return nil
	}
}

// Deserialize rebuilds an AST from an interchange tree.
//
// Operators are carried over as stored; an operator the evaluator does not
// know is reported when the rule is evaluated.
func Deserialize(t *Tree) (Node, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: missing node", ErrMalformedTree)
	}

	switch t.Type {
	case TypeBinary:
		if t.Left == nil || t.Right == nil {
			return nil, fmt.Errorf("%w: %s needs two children", ErrMalformedTree, t.Type)
		}
		left, err := Deserialize(t.Left)
		if err != nil {
			return nil, err
		}
		right, err := Deserialize(t.Right)
		if err != nil {
			return nil, err
		}
		return BinaryExpr{Op: LogicalOp(deref(t.Operator)), Left: left, Right: right}, nil

	case TypeComparison:
		if t.Left == nil || t.Left.Type != TypeIdentifier || t.Left.Value == nil {
			return nil, fmt.Errorf("%w: %s left side must be an identifier", ErrMalformedTree, t.Type)
		}
		if t.Right == nil || t.Right.Type != TypeLiteral || t.Right.Value == nil {
			return nil, fmt.Errorf("%w: %s right side must be a literal", ErrMalformedTree, t.Type)
		}
		return ComparisonExpr{
			Op:    CompareOp(deref(t.Operator)),
			Left:  Identifier{Name: *t.Left.Value},
			Right: Literal{Raw: *t.Right.Value},
		}, nil

	case TypeIdentifier:
		if t.Value == nil {
			return nil, fmt.Errorf("%w: identifier without a name", ErrMalformedTree)
		}
		return Identifier{Name: *t.Value}, nil

	case TypeLiteral:
		if t.Value == nil {
			return nil, fmt.Errorf("%w: literal without a value", ErrMalformedTree)
		}
		return Literal{Raw: *t.Value}, nil

	default:
		return nil, &UnknownNodeTypeError{Type: t.Type}
	}
}

// MarshalNode encodes an AST as interchange JSON.
func MarshalNode(node Node) ([]byte, error) {
	t := Serialize(node)
	if t == nil {
		return nil, &UnknownNodeTypeError{Type: nodeType(node)}
	}
	return json.Marshal(t)
}

// UnmarshalNode decodes interchange JSON into an AST.
func UnmarshalNode(data []byte) (Node, error) {
	var t Tree
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTree, err)
	}
	return Deserialize(&t)
}

func ptr(s string) *string { return &s }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

package ruleql

import (
	"errors"
	"fmt"
)

// ErrEmptyInput is returned when combining zero rules.
var ErrEmptyInput = errors.New("no rules to combine")

// ErrMalformedTree is returned when an interchange tree cannot be rebuilt into an AST.
var ErrMalformedTree = errors.New("malformed rule tree")

// SyntaxError reports rule text that could not be parsed.
type SyntaxError struct {
	Pos      int    // byte offset in the input
	Expected string // what the parser was looking for
	Found    string // what it got instead
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at %d: expected %s, found %s", e.Pos, e.Expected, e.Found)
}

// UnknownIdentifierError reports a field name outside the record schema.
type UnknownIdentifierError struct {
	Name string
}

func (e *UnknownIdentifierError) Error() string {
	return fmt.Sprintf("unknown identifier: %s", e.Name)
}

// UnknownOperatorError reports an operator the evaluator cannot apply.
type UnknownOperatorError struct {
	Op   string
	Kind string // "comparison" or "binary"
}

func (e *UnknownOperatorError) Error() string {
	return fmt.Sprintf("unknown %s operator: %s", e.Kind, e.Op)
}

// UnknownNodeTypeError reports a node that cannot be evaluated as a boolean.
type UnknownNodeTypeError struct {
	Type string
}

func (e *UnknownNodeTypeError) Error() string {
	return fmt.Sprintf("unknown node type: %s", e.Type)
}

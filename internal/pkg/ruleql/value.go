package ruleql

import (
	"math"
	"strconv"
	"strings"
)

// Kind is the dynamic type of a Value.
type Kind uint8

const (
	KindMissing Kind = iota
	KindNumber
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	default:
		return "missing"
	}
}

// Value is a record field or literal value: a number, a string, or missing.
type Value struct {
	Kind Kind
	Num  float64
	Str  string
}

// NumberValue returns a numeric Value.
func NumberValue(f float64) Value {
	return Value{Kind: KindNumber, Num: f}
}

// StringValue returns a string Value.
func StringValue(s string) Value {
	return Value{Kind: KindString, Str: s}
}

func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindString:
		return v.Str
	default:
		return "<missing>"
	}
}

// Tuple is the record a rule is evaluated against.
type Tuple struct {
	Age        Value
	Department Value
	Salary     Value
	Experience Value
}

// Fields lists the record field names in schema order.
var Fields = []string{"age", "department", "salary", "experience"}

// Lookup returns the value of a field by name. Names are case sensitive.
func (t Tuple) Lookup(name string) (Value, error) {
	switch name {
	case "age":
		return t.Age, nil
	case "department":
		return t.Department, nil
	case "salary":
		return t.Salary, nil
	case "experience":
		return t.Experience, nil
	default:
		return Value{}, &UnknownIdentifierError{Name: name}
	}
}

// Set assigns a field by name.
func (t *Tuple) Set(name string, v Value) error {
	switch name {
	case "age":
		t.Age = v
	case "department":
		t.Department = v
	case "salary":
		t.Salary = v
	case "experience":
		t.Experience = v
	default:
		return &UnknownIdentifierError{Name: name}
	}
	return nil
}

// LiteralValue resolves literal text: surrounding single quotes are removed,
// then the text becomes a number if it parses as one.
func LiteralValue(raw string) Value {
	s := raw
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		s = s[1 : len(s)-1]
	}
	if f, ok := parseNumber(s); ok {
		return NumberValue(f)
	}
	return StringValue(s)
}

// parseNumber accepts finite decimal numbers, surrounding spaces allowed.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// toNumber coerces a value for ordering comparisons.
func toNumber(v Value) (float64, bool) {
	switch v.Kind {
	case KindNumber:
		return v.Num, true
	case KindString:
		return parseNumber(v.Str)
	default:
		return 0, false
	}
}

package ruleql

// Node is the interface implemented by all AST nodes.
type Node interface {
	node() // marker method
}

// LogicalOp is the operator of a BinaryExpr.
type LogicalOp string

const (
	OpAnd LogicalOp = "AND"
	OpOr  LogicalOp = "OR"
)

// CompareOp is the operator of a ComparisonExpr.
type CompareOp string

const (
	OpGt  CompareOp = ">"
	OpLt  CompareOp = "<"
	OpEq  CompareOp = "="
	OpGte CompareOp = ">="
	OpLte CompareOp = "<="
)

// compareOps lists the comparison operators the parser accepts.
var compareOps = map[string]CompareOp{
	">":  OpGt,
	"<":  OpLt,
	"=":  OpEq,
	">=": OpGte,
	"<=": OpLte,
}

// BinaryExpr represents a binary logical expression (AND, OR).
type BinaryExpr struct {
	Op    LogicalOp
	Left  Node
	Right Node
}

func (BinaryExpr) node() {}

// ComparisonExpr compares a record field against a literal, e.g. age > 30.
type ComparisonExpr struct {
	Op    CompareOp
	Left  Identifier
	Right Literal
}

func (ComparisonExpr) node() {}

// Identifier names a record field.
type Identifier struct {
	Name string
}

func (Identifier) node() {}

// Literal holds the raw token text, quotes included.
type Literal struct {
	Raw string
}

func (Literal) node() {}

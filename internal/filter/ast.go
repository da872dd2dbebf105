// Package filter implements the RFC 7644 query filter grammar: a lexer, a
// recursive-descent parser, and a pure in-memory evaluator. The same grammar
// machinery parses PATCH operation paths, which share attribute-path syntax
// with filters.
package filter

import (
	"fmt"
	"strings"
)

// LogicalOperator joins two boolean sub-expressions.
type LogicalOperator string

const (
	And LogicalOperator = "and"
	Or  LogicalOperator = "or"
)

// CompareOperator is a filter comparison operator.
type CompareOperator string

const (
	EQ CompareOperator = "eq"
	NE CompareOperator = "ne"
	CO CompareOperator = "co"
	SW CompareOperator = "sw"
	EW CompareOperator = "ew"
	GT CompareOperator = "gt"
	GE CompareOperator = "ge"
	LT CompareOperator = "lt"
	LE CompareOperator = "le"
)

var compareOperators = map[string]CompareOperator{
	"eq": EQ, "ne": NE, "co": CO, "sw": SW, "ew": EW,
	"gt": GT, "ge": GE, "lt": LT, "le": LE,
}

// Expression is a node in a parsed filter tree.
type Expression interface {
	fmt.Stringer
	exprNode()
}

// LogicalExpression is `left and right` or `left or right`.
type LogicalExpression struct {
	Op    LogicalOperator
	Left  Expression
	Right Expression
}

// NotExpression negates its inner expression.
type NotExpression struct {
	Expr Expression
}

// AttributeExpression compares an attribute path against a literal. Value is
// a string, float64, bool, or nil as produced by the literal grammar.
type AttributeExpression struct {
	Path  Path
	Op    CompareOperator
	Value any
}

// PresentExpression tests that an attribute exists and, for multi-valued
// attributes, is non-empty.
type PresentExpression struct {
	Path Path
}

// Path is a parsed attribute path: an optional schema URI prefix, the
// attribute name, an optional value filter restricting elements of a
// multi-valued attribute, and an optional sub-attribute.
type Path struct {
	URIPrefix    string
	Name         string
	SubAttribute string
	ValueFilter  Expression
}

func (LogicalExpression) exprNode()   {}
func (NotExpression) exprNode()       {}
func (AttributeExpression) exprNode() {}
func (PresentExpression) exprNode()   {}

func (e LogicalExpression) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Left, e.Op, e.Right)
}

func (e NotExpression) String() string {
	return fmt.Sprintf("not (%s)", e.Expr)
}

func (e AttributeExpression) String() string {
	switch v := e.Value.(type) {
	case string:
		return fmt.Sprintf("%s %s %q", e.Path, e.Op, v)
	case nil:
		return fmt.Sprintf("%s %s null", e.Path, e.Op)
	default:
		return fmt.Sprintf("%s %s %v", e.Path, e.Op, v)
	}
}

func (e PresentExpression) String() string {
	return e.Path.String() + " pr"
}

func (p Path) String() string {
	var b strings.Builder
	if p.URIPrefix != "" {
		b.WriteString(p.URIPrefix)
		b.WriteString(":")
	}
	b.WriteString(p.Name)
	if p.ValueFilter != nil {
		fmt.Fprintf(&b, "[%s]", p.ValueFilter)
	}
	if p.SubAttribute != "" {
		b.WriteString(".")
		b.WriteString(p.SubAttribute)
	}
	return b.String()
}

// Names returns the attribute name chain of the path, suitable for schema
// resolution.
func (p Path) Names() []string {
	if p.SubAttribute != "" {
		return []string{p.Name, p.SubAttribute}
	}
	return []string{p.Name}
}

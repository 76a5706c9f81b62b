package dsl

import "strings"

// Pos locates a syntax element in the source text.
type Pos struct {
	Line int
	Col  int
}

// Expr is a node in the DSL expression tree. A statement is a pipeline whose
// innermost node is an IdentifierExpr naming a collection and whose outer
// nodes are the chained stages applied to it, left to right.
type Expr interface {
	Position() Pos
	exprNode()
}

// IdentifierExpr references a named collection in the evaluation context,
// e.g. tracks, clips, plugins.
type IdentifierExpr struct {
	Name string
	Pos  Pos
}

// FilterExpr keeps the source items satisfying a predicate, preserving order.
type FilterExpr struct {
	Source Expr
	Pred   Predicate
	Pos    Pos
}

// MapExpr replaces each source item with the value of a field selector.
type MapExpr struct {
	Source   Expr
	Selector FieldPath
	Pos      Pos
}

// ForEachExpr emits one Action per source item, in source order.
type ForEachExpr struct {
	Source Expr
	Spec   ActionSpec
	Pos    Pos
}

func (e *IdentifierExpr) Position() Pos { return e.Pos }
func (e *FilterExpr) Position() Pos     { return e.Pos }
func (e *MapExpr) Position() Pos        { return e.Pos }
func (e *ForEachExpr) Position() Pos    { return e.Pos }

func (*IdentifierExpr) exprNode() {}
func (*FilterExpr) exprNode()     {}
func (*MapExpr) exprNode()        {}
func (*ForEachExpr) exprNode()    {}

// FieldPath is a dotted reference to an item field, e.g. name or fx.name.
// A leading segment matching the pipeline's iteration variable (track for
// tracks, clip for clips) is stripped during resolution, so track.name and
// name address the same field.
type FieldPath []string

func (p FieldPath) String() string { return strings.Join(p, ".") }

// Predicate is a boolean-valued test over an item's fields.
type Predicate interface {
	predNode()
}

// CompareOp enumerates the comparison operators of the DSL.
type CompareOp string

const (
	OpEq       CompareOp = "=="
	OpNeq      CompareOp = "!="
	OpLt       CompareOp = "<"
	OpGt       CompareOp = ">"
	OpLe       CompareOp = "<="
	OpGe       CompareOp = ">="
	OpContains CompareOp = "contains"
)

// Operand is one side of a comparison: either an item field reference or a
// literal (string, float64, or bool).
type Operand struct {
	Field   FieldPath
	Lit     any
	IsField bool
}

// ComparePred compares two operands.
type ComparePred struct {
	Left  Operand
	Op    CompareOp
	Right Operand
}

// FieldTestPred tests a boolean field's value directly, e.g.
// tracks.filter(is_muted). A missing field tests false.
type FieldTestPred struct {
	Field FieldPath
}

// AndPred, OrPred, NotPred are the boolean connectives.
type AndPred struct{ Left, Right Predicate }
type OrPred struct{ Left, Right Predicate }
type NotPred struct{ Inner Predicate }

func (*ComparePred) predNode()   {}
func (*FieldTestPred) predNode() {}
func (*AndPred) predNode()       {}
func (*OrPred) predNode()        {}
func (*NotPred) predNode()       {}

// ActionSpec is a template for one DAW-level operation: an action name plus
// parameter bindings, where a binding is either a literal or a reference to
// the current item's fields.
type ActionSpec struct {
	Name   string
	Params []ParamBinding
}

// ParamBinding binds one action parameter to a literal or an item field.
type ParamBinding struct {
	Name    string
	Field   FieldPath
	Lit     any
	IsField bool
}

// Action is the fully resolved, executable unit handed to the translator:
// an action name plus concrete parameter values.
type Action struct {
	Name   string
	Params map[string]any
}

package dsl

import "fmt"

// ParseError reports malformed DSL syntax: unknown operators, arity
// mismatches, unbalanced delimiters, or statements exceeding structural
// limits. It always names the offending token and its position.
type ParseError struct {
	Line  int
	Col   int
	Token string
	Msg   string
}

func (e *ParseError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("parse error at line %d, col %d near %q: %s", e.Line, e.Col, e.Token, e.Msg)
	}
	return fmt.Sprintf("parse error at line %d, col %d: %s", e.Line, e.Col, e.Msg)
}

// FieldResolutionError reports a map or for_each stage referencing a field
// that is absent from an item. Unlike filter, these stages cannot degrade
// gracefully: downstream actions depend on the value being present.
type FieldResolutionError struct {
	Field string
	Stage string
}

func (e *FieldResolutionError) Error() string {
	return fmt.Sprintf("%s: field %q is not defined on item", e.Stage, e.Field)
}

// UnknownCollectionError reports a statement whose source identifier names
// no collection in the evaluation context.
type UnknownCollectionError struct {
	Name string
}

func (e *UnknownCollectionError) Error() string {
	return fmt.Sprintf("unknown collection %q in evaluation context", e.Name)
}

// TypeMismatchError reports a predicate or transform combining values of
// incompatible types, e.g. a numeric ordering against a string field. A
// present-but-wrong-typed field is an authoring bug and must surface, in
// contrast to the missing-field case which filter treats as non-matching.
type TypeMismatchError struct {
	Field string
	Op    string
	Left  any
	Right any
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch on field %q: cannot apply %q to %T and %T", e.Field, e.Op, e.Left, e.Right)
}

// EvaluationAbortedError reports that a single item's failure inside a
// for_each aborted the whole call. No partial action list is ever returned.
type EvaluationAbortedError struct {
	Index int // position of the failing item in the source collection
	Cause error
}

func (e *EvaluationAbortedError) Error() string {
	return fmt.Sprintf("for_each aborted at item %d: %v", e.Index, e.Cause)
}

func (e *EvaluationAbortedError) Unwrap() error {
	return e.Cause
}

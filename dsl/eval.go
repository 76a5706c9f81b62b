package dsl

import "strings"

// Evaluator walks parsed expression trees against a read-only Context. One
// evaluator serves one parse/evaluate pass; it holds no state of its own, so
// re-evaluating the same trees against an unchanged context yields equal
// results. The pass is pure CPU work: no I/O, no locking, no suspension.
type Evaluator struct {
	ctx *Context
}

// NewEvaluator creates an evaluator over the given context.
func NewEvaluator(ctx *Context) *Evaluator {
	return &Evaluator{ctx: ctx}
}

// Execute parses an isolated DSL block and evaluates it against the context,
// returning the ordered action sequence. This is the main entry point for
// the agent façade.
func Execute(src string, ctx *Context) ([]Action, error) {
	stmts, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return NewEvaluator(ctx).EvalProgram(stmts)
}

// EvalProgram evaluates each statement in order and returns the actions
// emitted by for_each stages, in source order. Statements ending in filter
// or map are still evaluated (surfacing type errors) but contribute no
// actions. Any failure returns the typed error with zero actions.
func (e *Evaluator) EvalProgram(stmts []Expr) ([]Action, error) {
	var actions []Action
	for _, stmt := range stmts {
		if fe, ok := stmt.(*ForEachExpr); ok {
			out, err := e.evalForEach(fe)
			if err != nil {
				return nil, err
			}
			actions = append(actions, out...)
			continue
		}
		if _, err := e.EvalCollection(stmt); err != nil {
			return nil, err
		}
	}
	return actions, nil
}

// EvalCollection evaluates an identifier/filter/map pipeline to a Collection.
func (e *Evaluator) EvalCollection(expr Expr) (Collection, error) {
	switch node := expr.(type) {
	case *IdentifierExpr:
		col, ok := e.ctx.Collection(node.Name)
		if !ok {
			return Collection{}, &UnknownCollectionError{Name: node.Name}
		}
		return col, nil
	case *FilterExpr:
		return e.evalFilter(node)
	case *MapExpr:
		return e.evalMap(node)
	case *ForEachExpr:
		return Collection{}, &ParseError{Line: node.Pos.Line, Col: node.Pos.Col, Token: "for_each", Msg: "for_each is terminal and produces actions, not a collection"}
	default:
		return Collection{}, &UnknownCollectionError{Name: "<invalid expression>"}
	}
}

// evalFilter keeps the items satisfying the predicate. The result is a
// subsequence of the source in source order. A comparison touching a field
// the item does not carry evaluates false for that item: LLM-authored
// predicates frequently reference optional fields, and the pipeline degrades
// gracefully instead of aborting the agent turn. A present field of the
// wrong type still fails with TypeMismatchError.
func (e *Evaluator) evalFilter(node *FilterExpr) (Collection, error) {
	src, err := e.EvalCollection(node.Source)
	if err != nil {
		return Collection{}, err
	}
	iterVar := iterVarFor(src.Name)
	out := Collection{Name: src.Name, Items: make([]any, 0, len(src.Items))}
	for _, item := range src.Items {
		keep, perr := e.evalPred(node.Pred, item, iterVar)
		if perr != nil {
			return Collection{}, perr
		}
		if keep {
			out.Items = append(out.Items, item)
		}
	}
	return out, nil
}

// evalMap replaces each item with the selected field's value. Count and
// order are preserved; position i of the result derives only from position i
// of the source. A missing field fails the whole stage: downstream stages
// depend on the mapped value being present.
func (e *Evaluator) evalMap(node *MapExpr) (Collection, error) {
	src, err := e.EvalCollection(node.Source)
	if err != nil {
		return Collection{}, err
	}
	iterVar := iterVarFor(src.Name)
	out := Collection{Name: src.Name, Items: make([]any, 0, len(src.Items))}
	for _, item := range src.Items {
		val, found := resolveField(item, node.Selector, iterVar)
		if !found {
			return Collection{}, &FieldResolutionError{Field: node.Selector.String(), Stage: "map"}
		}
		out.Items = append(out.Items, val)
	}
	return out, nil
}

// evalForEach resolves the action template once per item, in source order.
// All-or-nothing: one failing item aborts the whole call with zero actions,
// never a truncated plan that could leave a session half edited.
func (e *Evaluator) evalForEach(node *ForEachExpr) ([]Action, error) {
	src, err := e.EvalCollection(node.Source)
	if err != nil {
		return nil, err
	}
	iterVar := iterVarFor(src.Name)
	actions := make([]Action, 0, len(src.Items))
	for i, item := range src.Items {
		action, rerr := resolveAction(node.Spec, item, iterVar)
		if rerr != nil {
			return nil, &EvaluationAbortedError{Index: i, Cause: rerr}
		}
		actions = append(actions, action)
	}
	return actions, nil
}

// resolveAction instantiates an ActionSpec for one item. Field bindings
// resolve against the item; when the item carries an index field and the
// template does not bind "track" explicitly, the index is injected as the
// track target (how a plan addresses existing tracks). Scalar items are
// bound as "value".
func resolveAction(spec ActionSpec, item any, iterVar string) (Action, error) {
	params := make(map[string]any, len(spec.Params)+1)
	for _, b := range spec.Params {
		if !b.IsField {
			params[b.Name] = b.Lit
			continue
		}
		val, found := resolveField(item, b.Field, iterVar)
		if !found {
			return Action{}, &FieldResolutionError{Field: b.Field.String(), Stage: "for_each"}
		}
		params[b.Name] = val
	}
	if fields, ok := item.(map[string]any); ok {
		if _, bound := params["track"]; !bound {
			if idx, has := fields["index"]; has {
				if n, numeric := toNumber(idx); numeric {
					params["track"] = int(n)
				}
			}
		}
	} else if _, bound := params["value"]; !bound {
		params["value"] = item
	}
	return Action{Name: spec.Name, Params: params}, nil
}

func (e *Evaluator) evalPred(pred Predicate, item any, iterVar string) (bool, error) {
	switch node := pred.(type) {
	case *AndPred:
		left, err := e.evalPred(node.Left, item, iterVar)
		if err != nil {
			return false, err
		}
		if !left {
			return false, nil
		}
		return e.evalPred(node.Right, item, iterVar)
	case *OrPred:
		left, err := e.evalPred(node.Left, item, iterVar)
		if err != nil {
			return false, err
		}
		if left {
			return true, nil
		}
		return e.evalPred(node.Right, item, iterVar)
	case *NotPred:
		inner, err := e.evalPred(node.Inner, item, iterVar)
		if err != nil {
			return false, err
		}
		return !inner, nil
	case *FieldTestPred:
		val, found := resolveField(item, node.Field, iterVar)
		if !found {
			return false, nil
		}
		b, ok := val.(bool)
		if !ok {
			return false, &TypeMismatchError{Field: node.Field.String(), Op: "boolean test", Left: val, Right: true}
		}
		return b, nil
	case *ComparePred:
		return e.evalCompare(node, item, iterVar)
	default:
		return false, nil
	}
}

func (e *Evaluator) evalCompare(cmp *ComparePred, item any, iterVar string) (bool, error) {
	left, lok := operandValue(cmp.Left, item, iterVar)
	right, rok := operandValue(cmp.Right, item, iterVar)
	if !lok || !rok {
		// Missing optional field: the comparison is false, not an error.
		return false, nil
	}
	fieldName := cmp.Left.Field.String()
	if !cmp.Left.IsField {
		fieldName = cmp.Right.Field.String()
	}
	return compareValues(cmp.Op, left, right, fieldName)
}

func operandValue(op Operand, item any, iterVar string) (any, bool) {
	if !op.IsField {
		return op.Lit, true
	}
	return resolveField(item, op.Field, iterVar)
}

// compareValues applies the comparison with the declared-type rules:
// equality is exact within one type family, ordering requires both operands
// numeric, containment requires both strings and is case-sensitive.
func compareValues(op CompareOp, left, right any, fieldName string) (bool, error) {
	switch op {
	case OpEq, OpNeq:
		eq, err := valuesEqual(left, right, fieldName, op)
		if err != nil {
			return false, err
		}
		if op == OpNeq {
			return !eq, nil
		}
		return eq, nil
	case OpLt, OpGt, OpLe, OpGe:
		ln, lok := toNumber(left)
		rn, rok := toNumber(right)
		if !lok || !rok {
			return false, &TypeMismatchError{Field: fieldName, Op: string(op), Left: left, Right: right}
		}
		switch op {
		case OpLt:
			return ln < rn, nil
		case OpGt:
			return ln > rn, nil
		case OpLe:
			return ln <= rn, nil
		default:
			return ln >= rn, nil
		}
	case OpContains:
		ls, lok := left.(string)
		rs, rok := right.(string)
		if !lok || !rok {
			return false, &TypeMismatchError{Field: fieldName, Op: string(op), Left: left, Right: right}
		}
		return strings.Contains(ls, rs), nil
	default:
		return false, &TypeMismatchError{Field: fieldName, Op: string(op), Left: left, Right: right}
	}
}

func valuesEqual(left, right any, fieldName string, op CompareOp) (bool, error) {
	if ls, ok := left.(string); ok {
		rs, ok := right.(string)
		if !ok {
			return false, &TypeMismatchError{Field: fieldName, Op: string(op), Left: left, Right: right}
		}
		return ls == rs, nil
	}
	if lb, ok := left.(bool); ok {
		rb, ok := right.(bool)
		if !ok {
			return false, &TypeMismatchError{Field: fieldName, Op: string(op), Left: left, Right: right}
		}
		return lb == rb, nil
	}
	ln, lok := toNumber(left)
	rn, rok := toNumber(right)
	if lok && rok {
		return ln == rn, nil
	}
	return false, &TypeMismatchError{Field: fieldName, Op: string(op), Left: left, Right: right}
}

// toNumber coerces the numeric type family (JSON decoding yields float64,
// hand-built state may carry int) to float64 for comparison.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// resolveField looks a dotted field path up on an item. The pipeline's
// iteration variable may prefix the path (track.name over tracks) or stand
// alone to mean the item itself. Scalar items resolve under "value".
func resolveField(item any, path FieldPath, iterVar string) (any, bool) {
	effective := path
	if len(path) > 0 && (path[0] == iterVar || path[0] == "item") {
		if len(path) == 1 {
			return item, true
		}
		effective = path[1:]
	}
	cur := item
	for _, seg := range effective {
		fields, ok := cur.(map[string]any)
		if !ok {
			if len(effective) == 1 && seg == "value" {
				return cur, true
			}
			return nil, false
		}
		val, present := fields[seg]
		if !present {
			return nil, false
		}
		cur = val
	}
	return cur, true
}

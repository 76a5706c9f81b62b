package dsl

import "fmt"

// Structural limits enforced during parsing. A statement exceeding them is
// rejected with a ParseError instead of risking unbounded recursion on
// pathological LLM output.
const (
	MaxStatements     = 64
	MaxChainStages    = 16
	MaxPredicateDepth = 16
)

// Parse converts an isolated DSL block into a sequence of top-level
// expression trees, one per statement, in source order. A statement either
// parses completely or the whole call fails with a *ParseError; no partial
// trees are returned.
func Parse(src string) ([]Expr, error) {
	toks, err := newLexer(src).tokens()
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	return p.parseProgram()
}

type parser struct {
	toks []token
	i    int
}

func (p *parser) cur() token { return p.toks[p.i] }

func (p *parser) next() token {
	tok := p.toks[p.i]
	if tok.kind != tokEOF {
		p.i++
	}
	return tok
}

func (p *parser) errf(tok token, format string, args ...any) *ParseError {
	e := &ParseError{Line: tok.line, Col: tok.col, Token: tok.text}
	if tok.kind == tokEOF {
		e.Token = ""
	}
	e.Msg = fmt.Sprintf(format, args...)
	return e
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	tok := p.cur()
	if tok.kind != kind {
		return token{}, p.errf(tok, "expected %s", what)
	}
	return p.next(), nil
}

func (p *parser) skipTerminators() {
	for p.cur().kind == tokTerminator {
		p.next()
	}
}

func (p *parser) parseProgram() ([]Expr, error) {
	var stmts []Expr
	p.skipTerminators()
	for p.cur().kind != tokEOF {
		if len(stmts) >= MaxStatements {
			return nil, p.errf(p.cur(), "too many statements (limit %d)", MaxStatements)
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
		if p.cur().kind != tokTerminator && p.cur().kind != tokEOF {
			return nil, p.errf(p.cur(), "expected end of statement")
		}
		p.skipTerminators()
	}
	if len(stmts) == 0 {
		return nil, p.errf(p.cur(), "empty DSL input")
	}
	return stmts, nil
}

// parseStatement parses IDENT followed by one or more chained stages. Chains
// bind left to right: each stage's output is the next stage's source.
func (p *parser) parseStatement() (Expr, error) {
	identTok, err := p.expect(tokIdent, "collection name")
	if err != nil {
		return nil, err
	}
	var expr Expr = &IdentifierExpr{Name: identTok.text, Pos: Pos{identTok.line, identTok.col}}

	stages := 0
	for {
		// Tolerate a line break before a continuing ".stage(...)".
		j := p.i
		for p.toks[j].kind == tokTerminator {
			j++
		}
		if p.toks[j].kind == tokDot {
			p.i = j
		}
		if p.cur().kind != tokDot {
			break
		}
		p.next()
		if stages >= MaxChainStages {
			return nil, p.errf(p.cur(), "chain too deep (limit %d stages)", MaxChainStages)
		}
		stages++
		expr, err = p.parseStage(expr)
		if err != nil {
			return nil, err
		}
	}
	if stages == 0 {
		return nil, p.errf(p.cur(), "expected '.' after collection %q", identTok.text)
	}
	return expr, nil
}

func (p *parser) parseStage(source Expr) (Expr, error) {
	opTok, err := p.expect(tokIdent, "operator name")
	if err != nil {
		return nil, err
	}
	if _, ok := source.(*ForEachExpr); ok {
		return nil, p.errf(opTok, "for_each is terminal and cannot be chained")
	}
	pos := Pos{opTok.line, opTok.col}
	if _, err = p.expect(tokLParen, "'('"); err != nil {
		return nil, err
	}

	var stage Expr
	switch opTok.text {
	case "filter":
		pred, perr := p.parsePredicate(0)
		if perr != nil {
			return nil, perr
		}
		stage = &FilterExpr{Source: source, Pred: pred, Pos: pos}
	case "map":
		path, perr := p.parseFieldPath()
		if perr != nil {
			return nil, perr
		}
		stage = &MapExpr{Source: source, Selector: path, Pos: pos}
	case "for_each":
		spec, perr := p.parseActionSpec()
		if perr != nil {
			return nil, perr
		}
		stage = &ForEachExpr{Source: source, Spec: spec, Pos: pos}
	default:
		return nil, p.errf(opTok, "unknown operator %q (expected filter, map, or for_each)", opTok.text)
	}

	if tok := p.cur(); tok.kind != tokRParen {
		if tok.kind == tokComma {
			return nil, p.errf(tok, "%s takes exactly one argument", opTok.text)
		}
		return nil, p.errf(tok, "unbalanced delimiter: expected ')' to close %s(", opTok.text)
	}
	p.next()
	return stage, nil
}

func (p *parser) parseFieldPath() (FieldPath, error) {
	tok, err := p.expect(tokIdent, "field name")
	if err != nil {
		return nil, err
	}
	path := FieldPath{tok.text}
	for p.cur().kind == tokDot {
		p.next()
		seg, serr := p.expect(tokIdent, "field name after '.'")
		if serr != nil {
			return nil, serr
		}
		path = append(path, seg.text)
	}
	return path, nil
}

func (p *parser) parseActionSpec() (ActionSpec, error) {
	nameTok, err := p.expect(tokIdent, "action name")
	if err != nil {
		return ActionSpec{}, err
	}
	spec := ActionSpec{Name: nameTok.text}
	if p.cur().kind != tokLParen {
		return spec, nil
	}
	p.next()
	if p.cur().kind == tokRParen {
		p.next()
		return spec, nil
	}
	for {
		binding, berr := p.parseParamBinding()
		if berr != nil {
			return ActionSpec{}, berr
		}
		spec.Params = append(spec.Params, binding)
		if p.cur().kind == tokComma {
			p.next()
			continue
		}
		break
	}
	if _, err = p.expect(tokRParen, "')' to close action parameters"); err != nil {
		return ActionSpec{}, err
	}
	return spec, nil
}

func (p *parser) parseParamBinding() (ParamBinding, error) {
	nameTok, err := p.expect(tokIdent, "parameter name")
	if err != nil {
		return ParamBinding{}, err
	}
	if _, err = p.expect(tokAssign, "'=' after parameter name"); err != nil {
		return ParamBinding{}, err
	}
	binding := ParamBinding{Name: nameTok.text}
	switch tok := p.cur(); tok.kind {
	case tokString:
		binding.Lit = tok.text
		p.next()
	case tokNumber:
		binding.Lit = tok.num
		p.next()
	case tokBool:
		binding.Lit = tok.bool
		p.next()
	case tokIdent:
		path, perr := p.parseFieldPath()
		if perr != nil {
			return ParamBinding{}, perr
		}
		binding.Field = path
		binding.IsField = true
	default:
		return ParamBinding{}, p.errf(tok, "expected literal or field reference for parameter %q", nameTok.text)
	}
	return binding, nil
}

// Predicate grammar: or-expr with and binding tighter than or, and not
// tighter still. Parenthesised groups and not chains count against
// MaxPredicateDepth.
func (p *parser) parsePredicate(depth int) (Predicate, error) {
	return p.parseOr(depth)
}

func (p *parser) parseOr(depth int) (Predicate, error) {
	left, err := p.parseAnd(depth)
	if err != nil {
		return nil, err
	}
	for p.cur().kind == tokOr {
		p.next()
		right, rerr := p.parseAnd(depth)
		if rerr != nil {
			return nil, rerr
		}
		left = &OrPred{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd(depth int) (Predicate, error) {
	left, err := p.parseUnary(depth)
	if err != nil {
		return nil, err
	}
	for p.cur().kind == tokAnd {
		p.next()
		right, rerr := p.parseUnary(depth)
		if rerr != nil {
			return nil, rerr
		}
		left = &AndPred{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary(depth int) (Predicate, error) {
	if tok := p.cur(); tok.kind == tokNot {
		if depth >= MaxPredicateDepth {
			return nil, p.errf(tok, "predicate nesting too deep (limit %d)", MaxPredicateDepth)
		}
		p.next()
		inner, err := p.parseUnary(depth + 1)
		if err != nil {
			return nil, err
		}
		return &NotPred{Inner: inner}, nil
	}
	return p.parsePrimary(depth)
}

func (p *parser) parsePrimary(depth int) (Predicate, error) {
	if tok := p.cur(); tok.kind == tokLParen {
		if depth >= MaxPredicateDepth {
			return nil, p.errf(tok, "predicate nesting too deep (limit %d)", MaxPredicateDepth)
		}
		p.next()
		inner, err := p.parseOr(depth + 1)
		if err != nil {
			return nil, err
		}
		if _, err = p.expect(tokRParen, "')' to close predicate group"); err != nil {
			return nil, err
		}
		return inner, nil
	}

	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	op, isCompare := compareOpFor(p.cur().kind)
	if !isCompare {
		if !left.IsField {
			return nil, p.errf(p.cur(), "literal is not a predicate (expected comparison operator)")
		}
		return &FieldTestPred{Field: left.Field}, nil
	}
	p.next()
	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return &ComparePred{Left: left, Op: op, Right: right}, nil
}

func (p *parser) parseOperand() (Operand, error) {
	switch tok := p.cur(); tok.kind {
	case tokString:
		p.next()
		return Operand{Lit: tok.text}, nil
	case tokNumber:
		p.next()
		return Operand{Lit: tok.num}, nil
	case tokBool:
		p.next()
		return Operand{Lit: tok.bool}, nil
	case tokIdent:
		path, err := p.parseFieldPath()
		if err != nil {
			return Operand{}, err
		}
		return Operand{Field: path, IsField: true}, nil
	default:
		return Operand{}, p.errf(tok, "expected field reference or literal")
	}
}

func compareOpFor(kind tokenKind) (CompareOp, bool) {
	switch kind {
	case tokEq:
		return OpEq, true
	case tokNeq:
		return OpNeq, true
	case tokLt:
		return OpLt, true
	case tokGt:
		return OpGt, true
	case tokLe:
		return OpLe, true
	case tokGe:
		return OpGe, true
	case tokContains:
		return OpContains, true
	default:
		return "", false
	}
}

package dsl

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokBool
	tokDot
	tokComma
	tokLParen
	tokRParen
	tokAssign     // =
	tokEq         // ==
	tokNeq        // !=
	tokLt         // <
	tokGt         // >
	tokLe         // <=
	tokGe         // >=
	tokAnd        // and, &&
	tokOr         // or, ||
	tokNot        // not, !
	tokContains   // contains
	tokTerminator // newline or ;
)

type token struct {
	kind tokenKind
	text string
	num  float64
	bool bool
	line int
	col  int
}

func (t token) String() string {
	if t.kind == tokEOF {
		return "end of input"
	}
	return t.text
}

// lexer converts a DSL statement sequence into tokens. The input is assumed
// to already be an isolated DSL block; prose and markdown fences are the
// caller's problem (see agents/daw IsolateDSLBlock).
type lexer struct {
	src  string
	pos  int
	line int
	col  int
}

func newLexer(src string) *lexer {
	return &lexer{src: src, line: 1, col: 1}
}

func (l *lexer) errorf(line, col int, tok, format string, args ...any) *ParseError {
	return &ParseError{Line: line, Col: col, Token: tok, Msg: fmt.Sprintf(format, args...)}
}

func (l *lexer) peek() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *lexer) advance() byte {
	ch := l.src[l.pos]
	l.pos++
	if ch == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return ch
}

// tokens lexes the whole input up front. Inputs are small (one LLM response)
// so there is no need for on-demand scanning.
func (l *lexer) tokens() ([]token, error) {
	var out []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
		if tok.kind == tokEOF {
			return out, nil
		}
	}
}

//nolint:gocyclo // single scanning switch keeps the token rules in one place
func (l *lexer) next() (token, error) {
	// Skip horizontal whitespace and comments.
	for l.pos < len(l.src) {
		ch := l.peek()
		if ch == ' ' || ch == '\t' || ch == '\r' {
			l.advance()
			continue
		}
		if ch == '#' || (ch == '/' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '/') {
			for l.pos < len(l.src) && l.peek() != '\n' {
				l.advance()
			}
			continue
		}
		break
	}

	line, col := l.line, l.col
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, line: line, col: col}, nil
	}

	ch := l.advance()
	switch {
	case ch == '\n' || ch == ';':
		return token{kind: tokTerminator, text: string(ch), line: line, col: col}, nil
	case ch == '.':
		return token{kind: tokDot, text: ".", line: line, col: col}, nil
	case ch == ',':
		return token{kind: tokComma, text: ",", line: line, col: col}, nil
	case ch == '(':
		return token{kind: tokLParen, text: "(", line: line, col: col}, nil
	case ch == ')':
		return token{kind: tokRParen, text: ")", line: line, col: col}, nil
	case ch == '=':
		if l.peek() == '=' {
			l.advance()
			return token{kind: tokEq, text: "==", line: line, col: col}, nil
		}
		return token{kind: tokAssign, text: "=", line: line, col: col}, nil
	case ch == '!':
		if l.peek() == '=' {
			l.advance()
			return token{kind: tokNeq, text: "!=", line: line, col: col}, nil
		}
		return token{kind: tokNot, text: "!", line: line, col: col}, nil
	case ch == '<':
		if l.peek() == '=' {
			l.advance()
			return token{kind: tokLe, text: "<=", line: line, col: col}, nil
		}
		return token{kind: tokLt, text: "<", line: line, col: col}, nil
	case ch == '>':
		if l.peek() == '=' {
			l.advance()
			return token{kind: tokGe, text: ">=", line: line, col: col}, nil
		}
		return token{kind: tokGt, text: ">", line: line, col: col}, nil
	case ch == '&':
		if l.peek() == '&' {
			l.advance()
			return token{kind: tokAnd, text: "&&", line: line, col: col}, nil
		}
		return token{}, l.errorf(line, col, "&", "unexpected character")
	case ch == '|':
		if l.peek() == '|' {
			l.advance()
			return token{kind: tokOr, text: "||", line: line, col: col}, nil
		}
		return token{}, l.errorf(line, col, "|", "unexpected character")
	case ch == '"':
		return l.scanString(line, col)
	case ch == '-' || (ch >= '0' && ch <= '9'):
		return l.scanNumber(ch, line, col)
	case ch == '_' || unicode.IsLetter(rune(ch)):
		return l.scanIdent(ch, line, col), nil
	default:
		return token{}, l.errorf(line, col, string(ch), "unexpected character")
	}
}

func (l *lexer) scanString(line, col int) (token, error) {
	var sb strings.Builder
	for l.pos < len(l.src) {
		ch := l.advance()
		switch ch {
		case '"':
			return token{kind: tokString, text: sb.String(), line: line, col: col}, nil
		case '\\':
			if l.pos >= len(l.src) {
				return token{}, l.errorf(line, col, "\\", "unterminated escape in string literal")
			}
			esc := l.advance()
			switch esc {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case '"':
				sb.WriteByte('"')
			case '\\':
				sb.WriteByte('\\')
			default:
				sb.WriteByte(esc)
			}
		case '\n':
			return token{}, l.errorf(line, col, sb.String(), "unterminated string literal")
		default:
			sb.WriteByte(ch)
		}
	}
	return token{}, l.errorf(line, col, sb.String(), "unterminated string literal")
}

func (l *lexer) scanNumber(first byte, line, col int) (token, error) {
	var sb strings.Builder
	sb.WriteByte(first)
	if first == '-' && (l.peek() < '0' || l.peek() > '9') {
		return token{}, l.errorf(line, col, "-", "expected digit after '-'")
	}
	seenDot := false
	for l.pos < len(l.src) {
		ch := l.peek()
		if ch >= '0' && ch <= '9' {
			sb.WriteByte(l.advance())
			continue
		}
		if ch == '.' && !seenDot && l.pos+1 < len(l.src) && l.src[l.pos+1] >= '0' && l.src[l.pos+1] <= '9' {
			seenDot = true
			sb.WriteByte(l.advance())
			continue
		}
		break
	}
	num, err := strconv.ParseFloat(sb.String(), 64)
	if err != nil {
		return token{}, l.errorf(line, col, sb.String(), "invalid number literal")
	}
	return token{kind: tokNumber, text: sb.String(), num: num, line: line, col: col}, nil
}

func (l *lexer) scanIdent(first byte, line, col int) token {
	var sb strings.Builder
	sb.WriteByte(first)
	for l.pos < len(l.src) {
		ch := l.peek()
		if ch == '_' || unicode.IsLetter(rune(ch)) || unicode.IsDigit(rune(ch)) {
			sb.WriteByte(l.advance())
			continue
		}
		break
	}
	text := sb.String()
	switch text {
	case "true":
		return token{kind: tokBool, text: text, bool: true, line: line, col: col}
	case "false":
		return token{kind: tokBool, text: text, bool: false, line: line, col: col}
	case "and":
		return token{kind: tokAnd, text: text, line: line, col: col}
	case "or":
		return token{kind: tokOr, text: text, line: line, col: col}
	case "not":
		return token{kind: tokNot, text: text, line: line, col: col}
	case "contains":
		return token{kind: tokContains, text: text, line: line, col: col}
	}
	return token{kind: tokIdent, text: text, line: line, col: col}
}

package dsl

import (
	"errors"
	"strings"
	"testing"
)

// TestParseStatements tests well-formed programs parse into the expected
// statement shapes.
func TestParseStatements(t *testing.T) {
	tests := []struct {
		name      string
		src       string
		wantCount int
	}{
		{
			name:      "single filter for_each chain",
			src:       `tracks.filter(volume < 0).for_each(mute())`,
			wantCount: 1,
		},
		{
			name:      "map projection",
			src:       `tracks.map(name)`,
			wantCount: 1,
		},
		{
			name: "multiple statements on separate lines",
			src: `tracks.filter(muted == true).for_each(unmute())
tracks.for_each(deselect())`,
			wantCount: 2,
		},
		{
			name:      "semicolon separated statements",
			src:       `tracks.for_each(mute()); tracks.for_each(deselect())`,
			wantCount: 2,
		},
		{
			name: "comments and blank lines skipped",
			src: `# mute everything
tracks.for_each(mute())

// then deselect
tracks.for_each(deselect())`,
			wantCount: 2,
		},
		{
			name: "chain continues across line break",
			src: `tracks.filter(volume < 0)
	.for_each(mute())`,
			wantCount: 1,
		},
		{
			name:      "nested predicate with combinators",
			src:       `tracks.filter((muted == true or soloed == true) and not (index > 4)).for_each(select())`,
			wantCount: 1,
		},
		{
			name:      "field binding in action params",
			src:       `tracks.for_each(set_name(name=track.name))`,
			wantCount: 1,
		},
		{
			name:      "contains predicate",
			src:       `tracks.filter(name contains "Drum").for_each(mute())`,
			wantCount: 1,
		},
		{
			name:      "negative number literal",
			src:       `tracks.filter(volume >= -6.5).for_each(set_volume(volume_db=-12))`,
			wantCount: 1,
		},
		{
			name:      "bare boolean field test",
			src:       `tracks.filter(muted).for_each(unmute())`,
			wantCount: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmts, err := Parse(tt.src)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if len(stmts) != tt.wantCount {
				t.Errorf("Parse() returned %d statements, want %d", len(stmts), tt.wantCount)
			}
		})
	}
}

// TestParseChainShape verifies a chain binds left to right.
func TestParseChainShape(t *testing.T) {
	stmts, err := Parse(`tracks.filter(volume < 0).map(name)`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	mapExpr, ok := stmts[0].(*MapExpr)
	if !ok {
		t.Fatalf("outermost stage = %T, want *MapExpr", stmts[0])
	}
	filterExpr, ok := mapExpr.Source.(*FilterExpr)
	if !ok {
		t.Fatalf("map source = %T, want *FilterExpr", mapExpr.Source)
	}
	ident, ok := filterExpr.Source.(*IdentifierExpr)
	if !ok {
		t.Fatalf("filter source = %T, want *IdentifierExpr", filterExpr.Source)
	}
	if ident.Name != "tracks" {
		t.Errorf("collection name = %q, want %q", ident.Name, "tracks")
	}
}

// TestParseErrors tests that malformed input fails with a positioned
// ParseError and never returns partial statements.
func TestParseErrors(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		wantLine int
		wantMsg  string
	}{
		{
			name:     "unknown operator",
			src:      `tracks.reduce(volume)`,
			wantLine: 1,
			wantMsg:  "unknown operator",
		},
		{
			name:     "missing stage after dot",
			src:      `tracks.`,
			wantLine: 1,
			wantMsg:  "expected operator name",
		},
		{
			name:     "bare collection without stage",
			src:      `tracks`,
			wantLine: 1,
			wantMsg:  "expected '.'",
		},
		{
			name:     "unbalanced paren in filter",
			src:      `tracks.filter(volume < 0`,
			wantLine: 1,
			wantMsg:  "unbalanced delimiter",
		},
		{
			name:     "two arguments to filter",
			src:      `tracks.filter(volume < 0, muted == true)`,
			wantLine: 1,
			wantMsg:  "exactly one argument",
		},
		{
			name:     "unterminated string",
			src:      `tracks.filter(name contains "Drum)`,
			wantLine: 1,
			wantMsg:  "unterminated string",
		},
		{
			name:     "empty input",
			src:      "",
			wantLine: 1,
			wantMsg:  "empty DSL input",
		},
		{
			name:     "comment-only input",
			src:      "# nothing here\n",
			wantLine: 2,
			wantMsg:  "empty DSL input",
		},
		{
			name: "error position on second line",
			src: `tracks.for_each(mute())
tracks.squash(volume)`,
			wantLine: 2,
			wantMsg:  "unknown operator",
		},
		{
			name:     "literal predicate rejected",
			src:      `tracks.filter(42).for_each(mute())`,
			wantLine: 1,
			wantMsg:  "literal is not a predicate",
		},
		{
			name:     "missing value after parameter name",
			src:      `tracks.for_each(set_volume(volume_db=))`,
			wantLine: 1,
			wantMsg:  "expected literal or field reference",
		},
		{
			name:     "stage chained after for_each",
			src:      `tracks.for_each(mute()).filter(muted == true)`,
			wantLine: 1,
			wantMsg:  "for_each is terminal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmts, err := Parse(tt.src)
			if err == nil {
				t.Fatalf("Parse() succeeded with %d statements, want error", len(stmts))
			}
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("Parse() error type = %T, want *ParseError", err)
			}
			if perr.Line != tt.wantLine {
				t.Errorf("error line = %d, want %d (err: %v)", perr.Line, tt.wantLine, perr)
			}
			if !strings.Contains(perr.Msg, tt.wantMsg) {
				t.Errorf("error msg = %q, want substring %q", perr.Msg, tt.wantMsg)
			}
			if stmts != nil {
				t.Errorf("Parse() returned partial statements alongside error")
			}
		})
	}
}

// TestParseStructuralLimits tests the statement, chain, and nesting caps.
func TestParseStructuralLimits(t *testing.T) {
	t.Run("too many statements", func(t *testing.T) {
		var sb strings.Builder
		for i := 0; i <= MaxStatements; i++ {
			sb.WriteString("tracks.for_each(mute())\n")
		}
		_, err := Parse(sb.String())
		var perr *ParseError
		if !errors.As(err, &perr) {
			t.Fatalf("Parse() error = %v, want *ParseError", err)
		}
		if !strings.Contains(perr.Msg, "too many statements") {
			t.Errorf("error msg = %q, want statement limit message", perr.Msg)
		}
	})

	t.Run("chain too deep", func(t *testing.T) {
		src := "tracks" + strings.Repeat(".filter(volume < 0)", MaxChainStages+1)
		_, err := Parse(src)
		var perr *ParseError
		if !errors.As(err, &perr) {
			t.Fatalf("Parse() error = %v, want *ParseError", err)
		}
		if !strings.Contains(perr.Msg, "chain too deep") {
			t.Errorf("error msg = %q, want chain limit message", perr.Msg)
		}
	})

	t.Run("predicate nesting too deep", func(t *testing.T) {
		depth := MaxPredicateDepth + 1
		src := "tracks.filter(" + strings.Repeat("(", depth) + "volume < 0" + strings.Repeat(")", depth) + ").for_each(mute())"
		_, err := Parse(src)
		var perr *ParseError
		if !errors.As(err, &perr) {
			t.Fatalf("Parse() error = %v, want *ParseError", err)
		}
		if !strings.Contains(perr.Msg, "nesting too deep") {
			t.Errorf("error msg = %q, want nesting limit message", perr.Msg)
		}
	})

	t.Run("not chain too deep", func(t *testing.T) {
		src := "tracks.filter(" + strings.Repeat("not ", MaxPredicateDepth+1) + "muted).for_each(mute())"
		_, err := Parse(src)
		var perr *ParseError
		if !errors.As(err, &perr) {
			t.Fatalf("Parse() error = %v, want *ParseError", err)
		}
		if !strings.Contains(perr.Msg, "nesting too deep") {
			t.Errorf("error msg = %q, want nesting limit message", perr.Msg)
		}
	})

	t.Run("not chain at the limit still parses", func(t *testing.T) {
		src := "tracks.filter(" + strings.Repeat("not ", MaxPredicateDepth) + "muted).for_each(mute())"
		if _, err := Parse(src); err != nil {
			t.Errorf("Parse() at limit error = %v", err)
		}
	})

	t.Run("at the chain limit still parses", func(t *testing.T) {
		src := "tracks" + strings.Repeat(".filter(volume < 0)", MaxChainStages-1) + ".for_each(mute())"
		if _, err := Parse(src); err != nil {
			t.Errorf("Parse() at limit error = %v", err)
		}
	})
}

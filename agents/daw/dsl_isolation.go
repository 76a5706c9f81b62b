package daw

import (
	"strings"
)

// IsolateDSLBlock extracts pipeline DSL from raw model output. Handles
// markdown code fences and surrounding prose: fenced content wins; otherwise
// only the lines that look like pipeline statements are kept.
func IsolateDSLBlock(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}

	if fenced := extractFencedBlock(text); fenced != "" {
		return fenced
	}

	// No fence: keep the statement-shaped lines, drop prose around them.
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if isStatementLine(trimmed) {
			kept = append(kept, trimmed)
		}
	}
	if len(kept) > 0 {
		return strings.Join(kept, "\n")
	}
	return text
}

// extractFencedBlock returns the content of the first ``` fence, if any.
func extractFencedBlock(text string) string {
	start := strings.Index(text, "```")
	if start == -1 {
		return ""
	}
	rest := text[start+3:]
	// Skip the language tag on the fence line.
	if nl := strings.Index(rest, "\n"); nl != -1 {
		firstLine := strings.TrimSpace(rest[:nl])
		if firstLine != "" && !strings.Contains(firstLine, "(") {
			rest = rest[nl+1:]
		}
	}
	end := strings.Index(rest, "```")
	if end == -1 {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(rest[:end])
}

// isStatementLine reports whether a line is shaped like a pipeline statement:
// an identifier followed by at least one chained stage call.
func isStatementLine(line string) bool {
	dot := strings.Index(line, ".")
	if dot <= 0 {
		return false
	}
	head := line[:dot]
	for _, r := range head {
		if !isIdentRune(r) {
			return false
		}
	}
	rest := line[dot:]
	return strings.HasPrefix(rest, ".filter(") ||
		strings.HasPrefix(rest, ".map(") ||
		strings.HasPrefix(rest, ".for_each(")
}

func isIdentRune(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// looksLikeDSL reports whether isolated text contains pipeline stages.
func looksLikeDSL(text string) bool {
	return strings.Contains(text, ".filter(") ||
		strings.Contains(text, ".map(") ||
		strings.Contains(text, ".for_each(")
}

// countStatements counts non-empty, non-comment lines in isolated DSL.
func countStatements(code string) int {
	count := 0
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		count++
	}
	return count
}

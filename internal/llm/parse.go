package llm

import (
	"strings"
)

// ExtractExpressions pulls one expression per line out of a model
// response, stripping code fences, list numbering and bullet markers.
// Lines without a function call are dropped; models pad responses with
// prose despite instructions.
func ExtractExpressions(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = stripDecorations(line)
		if line == "" {
			continue
		}
		if !strings.Contains(line, "(") || !strings.Contains(line, ")") {
			continue
		}
		out = append(out, line)
	}
	return out
}

// CleanExpression extracts a single expression from a model response.
// When the response spans several lines, the first line that looks
// like an expression wins.
func CleanExpression(text string) string {
	lines := strings.Split(text, "\n")
	var fallback string
	for _, line := range lines {
		line = stripDecorations(line)
		if line == "" {
			continue
		}
		if fallback == "" {
			fallback = line
		}
		if strings.Contains(line, "(") && strings.Contains(line, ")") {
			return line
		}
	}
	return fallback
}

// stripDecorations removes markdown fences, list numbering and bullet
// prefixes from one line.
func stripDecorations(line string) string {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "```") {
		return ""
	}
	line = strings.TrimPrefix(line, "- ")
	line = strings.TrimPrefix(line, "* ")
	// "1. expr", "12. expr"
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i > 0 && i < len(line) && line[i] == '.' {
		line = strings.TrimSpace(line[i+1:])
	}
	line = strings.Trim(line, "`")
	return strings.TrimSpace(line)
}

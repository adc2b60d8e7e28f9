// Package expr provides syntactic validation of alpha expressions and
// the parameter-variation engine that expands one expression into a
// bounded lattice of numeric variants.
package expr

import (
	"errors"
	"fmt"
	"strings"
)

// Validation errors. Each names the single rule that failed so callers
// can report a precise reason without any network round trip.
var (
	ErrEmptyExpression  = errors.New("expression is empty")
	ErrUnbalancedParens = errors.New("unbalanced parentheses")
	ErrTooSimple        = errors.New("expression is a bare literal or identifier")
	ErrNoFunctionCall   = errors.New("no function calls found in expression")
	ErrStrayComma       = errors.New("commas without function calls")
	ErrEmptyCall        = errors.New("empty function call")
	ErrMissingOperator  = errors.New("missing operator between terms")
)

// ValidationError wraps a rule failure with the offending expression.
type ValidationError struct {
	Expression string
	Reason     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid expression %q: %v", truncate(e.Expression, 60), e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Reason }

// Validate checks an expression for basic syntactic shape: balanced
// parentheses, at least one function-call-like token, and none of the
// common malformations. Semantic validity is the remote service's
// concern.
func Validate(expression string) error {
	trimmed := strings.TrimSpace(expression)

	if trimmed == "" {
		return &ValidationError{Expression: expression, Reason: ErrEmptyExpression}
	}

	if strings.Count(trimmed, "(") != strings.Count(trimmed, ")") {
		return &ValidationError{Expression: expression, Reason: ErrUnbalancedParens}
	}

	if isBareToken(trimmed) {
		return &ValidationError{Expression: expression, Reason: ErrTooSimple}
	}

	if !hasFunctionCall(trimmed) {
		return &ValidationError{Expression: expression, Reason: ErrNoFunctionCall}
	}

	if strings.Contains(trimmed, ",") && !strings.Contains(trimmed, "(") {
		return &ValidationError{Expression: expression, Reason: ErrStrayComma}
	}

	if hasEmptyCall(trimmed) {
		return &ValidationError{Expression: expression, Reason: ErrEmptyCall}
	}

	if hasAdjacentGroups(trimmed) {
		return &ValidationError{Expression: expression, Reason: ErrMissingOperator}
	}

	return nil
}

// isBareToken reports whether the expression is just a number
// (optionally with a trailing dot) or a single identifier.
func isBareToken(s string) bool {
	allDigits := true
	for i, r := range s {
		if r >= '0' && r <= '9' {
			continue
		}
		// A single trailing dot still counts as a bare number.
		if r == '.' && i == len(s)-1 {
			continue
		}
		allDigits = false
		break
	}
	if allDigits {
		return true
	}

	for _, r := range s {
		if !isIdentRune(r) || (r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// hasFunctionCall reports whether an identifier is followed
// (ignoring spaces) by an opening parenthesis anywhere in s.
func hasFunctionCall(s string) bool {
	runes := []rune(s)
	for i, r := range runes {
		if r != '(' {
			continue
		}
		j := i - 1
		for j >= 0 && runes[j] == ' ' {
			j--
		}
		if j >= 0 && isIdentRune(runes[j]) && !(runes[j] >= '0' && runes[j] <= '9') {
			return true
		}
		// Identifier may end in a digit, e.g. vwap20(...): accept a
		// digit only when the token starts with a letter or underscore.
		if j >= 0 && runes[j] >= '0' && runes[j] <= '9' {
			k := j
			for k >= 0 && isIdentRune(runes[k]) {
				k--
			}
			if k+1 <= j && !(runes[k+1] >= '0' && runes[k+1] <= '9') {
				return true
			}
		}
	}
	return false
}

// hasEmptyCall reports whether s contains "(" followed only by spaces
// and then ")".
func hasEmptyCall(s string) bool {
	runes := []rune(s)
	for i, r := range runes {
		if r != '(' {
			continue
		}
		j := i + 1
		for j < len(runes) && runes[j] == ' ' {
			j++
		}
		if j < len(runes) && runes[j] == ')' {
			return true
		}
	}
	return false
}

// hasAdjacentGroups reports whether a ")" is followed (ignoring
// spaces) by "(" with no operator between, e.g. "rank(x) (y)".
func hasAdjacentGroups(s string) bool {
	runes := []rune(s)
	for i, r := range runes {
		if r != ')' {
			continue
		}
		j := i + 1
		for j < len(runes) && runes[j] == ' ' {
			j++
		}
		if j < len(runes) && runes[j] == '(' {
			return true
		}
	}
	return false
}

func isIdentRune(r rune) bool {
	return r == '_' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

package expr

import (
	"errors"
	"testing"
)

func TestValidate_Accepts(t *testing.T) {
	valid := []string{
		"ts_mean(close, 10)",
		"rank(ts_delta(close, 5)) * scale(volume)",
		"group_rank(ts_std_dev(returns, 22), industry)",
		"-ts_rank(vwap20(close), 10)",
	}

	for _, expression := range valid {
		if err := Validate(expression); err != nil {
			t.Errorf("Validate(%q): unexpected error: %v", expression, err)
		}
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := []struct {
		expression string
		reason     error
	}{
		{"", ErrEmptyExpression},
		{"   ", ErrEmptyExpression},
		{"ts_mean(close, 10", ErrUnbalancedParens},
		{"rank(close))", ErrUnbalancedParens},
		{"42", ErrTooSimple},
		{"42.", ErrTooSimple},
		{"close", ErrTooSimple},
		{"close + volume", ErrNoFunctionCall},
		{"(close + volume)", ErrNoFunctionCall},
		{"rank()", ErrEmptyCall},
		{"ts_mean( )", ErrEmptyCall},
		{"rank(close) (volume)", ErrMissingOperator},
	}

	for _, tc := range cases {
		err := Validate(tc.expression)
		if err == nil {
			t.Errorf("Validate(%q): expected error, got nil", tc.expression)
			continue
		}
		if !errors.Is(err, tc.reason) {
			t.Errorf("Validate(%q): expected %v, got %v", tc.expression, tc.reason, err)
		}
	}
}

func TestValidate_ErrorCarriesExpression(t *testing.T) {
	err := Validate("rank()")

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}

	if verr.Expression != "rank()" {
		t.Errorf("expected expression rank(), got %q", verr.Expression)
	}
}

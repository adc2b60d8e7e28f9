package metrics

import (
	"math"
	"testing"

	"brain-alpha-lab/internal/domain"
)

func fptr(v float64) *float64 { return &v }

func TestComparePolishImprovement(t *testing.T) {
	before := &domain.MetricSet{Sharpe: 1.0, Turnover: 0.9}
	after := &domain.MetricSet{Sharpe: 1.3, Turnover: 0.5}

	report := Compare(before, after)

	sharpe, ok := report.Delta("sharpe")
	if !ok {
		t.Fatal("missing sharpe delta")
	}
	if !sharpe.Improved {
		t.Error("sharpe 1.0 -> 1.3 must be an improvement")
	}
	if math.Abs(sharpe.Change-0.3) > 1e-9 {
		t.Errorf("expected change 0.3, got %f", sharpe.Change)
	}
	if sharpe.PercentChange == nil || math.Abs(*sharpe.PercentChange-30) > 1e-6 {
		t.Errorf("expected +30%%, got %v", sharpe.PercentChange)
	}

	turnover, ok := report.Delta("turnover")
	if !ok {
		t.Fatal("missing turnover delta")
	}
	if !turnover.Improved {
		t.Error("turnover entering the band (0.9 -> 0.5) must be an improvement")
	}

	if !report.Overall {
		t.Error("expected overall improvement")
	}
}

func TestCompareTurnoverRules(t *testing.T) {
	tests := []struct {
		name     string
		before   float64
		after    float64
		improved bool
	}{
		{"enters band from above", 0.9, 0.5, true},
		{"enters band from below", 0.005, 0.05, true},
		{"leaves band", 0.5, 0.9, false},
		{"small drift inside band", 0.30, 0.35, true},
		{"large jump inside band", 0.05, 0.65, false},
		{"stays outside band", 0.8, 0.9, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := Compare(
				&domain.MetricSet{Sharpe: 1, Turnover: tt.before},
				&domain.MetricSet{Sharpe: 1, Turnover: tt.after},
			)
			d, ok := report.Delta("turnover")
			if !ok {
				t.Fatal("missing turnover delta")
			}
			if d.Improved != tt.improved {
				t.Errorf("turnover %f -> %f: improved=%v, want %v", tt.before, tt.after, d.Improved, tt.improved)
			}
		})
	}
}

func TestCompareOverallNeedsSharpeOrFitness(t *testing.T) {
	// Turnover improves but both headline metrics degrade.
	report := Compare(
		&domain.MetricSet{Sharpe: 1.5, Fitness: fptr(1.2), Turnover: 0.9, Returns: 0.2},
		&domain.MetricSet{Sharpe: 1.2, Fitness: fptr(1.0), Turnover: 0.5, Returns: 0.1},
	)
	if report.Overall {
		t.Error("turnover improvement alone must not flag overall improvement")
	}

	// Fitness alone carries the flag.
	report = Compare(
		&domain.MetricSet{Sharpe: 1.5, Fitness: fptr(1.0)},
		&domain.MetricSet{Sharpe: 1.4, Fitness: fptr(1.3)},
	)
	if !report.Overall {
		t.Error("fitness improvement must flag overall improvement")
	}
}

func TestCompareFitnessSkippedWhenAbsent(t *testing.T) {
	report := Compare(
		&domain.MetricSet{Sharpe: 1.0, Fitness: fptr(1.0)},
		&domain.MetricSet{Sharpe: 1.1},
	)
	if _, ok := report.Delta("fitness"); ok {
		t.Error("fitness delta must be skipped when one side lacks it")
	}
}

func TestComparePercentGuardedNearZero(t *testing.T) {
	report := Compare(
		&domain.MetricSet{Sharpe: 0},
		&domain.MetricSet{Sharpe: 0.5},
	)
	d, _ := report.Delta("sharpe")
	if d.PercentChange != nil {
		t.Errorf("expected nil percent change for zero baseline, got %f", *d.PercentChange)
	}
	if !d.Improved {
		t.Error("0 -> 0.5 is still an improvement")
	}
}

func TestCompareNilInputs(t *testing.T) {
	report := Compare(nil, &domain.MetricSet{Sharpe: 1})
	if len(report.Deltas) != 0 || report.Overall {
		t.Errorf("expected empty report for nil input, got %+v", report)
	}
}

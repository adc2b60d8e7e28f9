package polisher

import (
	"context"
	"errors"
	"strings"
	"testing"

	"brain-alpha-lab/internal/brain"
	"brain-alpha-lab/internal/domain"
	"brain-alpha-lab/internal/llm"
)

// fakeSimClient returns canned metrics per expression.
type fakeSimClient struct {
	metrics map[string]*domain.MetricSet
	fail    map[string]bool
}

func (f *fakeSimClient) SimulateAlpha(ctx context.Context, expression string, settings domain.SimulationSettings) (*domain.SimulationResult, error) {
	if f.fail[expression] {
		return nil, errors.New("simulation failed")
	}
	return &domain.SimulationResult{
		Expression: expression,
		Job:        domain.SimulationStatus{Status: domain.JobComplete, AlphaID: "A1"},
		Details:    &domain.AlphaDetails{ID: "A1", InSample: f.metrics[expression]},
	}, nil
}

type fakeSource struct {
	polished string
	err      error
}

func (f *fakeSource) PolishExpression(ctx context.Context, expression, requirements string, operators []brain.Operator) (string, error) {
	return f.polished, f.err
}

func (f *fakeSource) AnalyzeExpression(ctx context.Context, expression string, metrics map[string]float64) (*llm.Analysis, error) {
	return &llm.Analysis{Expression: expression, Text: "mean reversion"}, nil
}

func TestPolishComparesBeforeAndAfter(t *testing.T) {
	original := "rank(ts_delta(close, 5))"
	polished := "winsorize(rank(ts_delta(close, 5)), 0.05)"
	sim := &fakeSimClient{metrics: map[string]*domain.MetricSet{
		original: {Sharpe: 1.0, Turnover: 0.9},
		polished: {Sharpe: 1.3, Turnover: 0.5},
	}}
	p := New(sim, &fakeSource{polished: polished}, nil, Options{})

	result, err := p.Polish(context.Background(), original, "reduce turnover", domain.DefaultSettings())
	if err != nil {
		t.Fatalf("Polish: %v", err)
	}
	if result.PolishedExpression != polished {
		t.Errorf("unexpected polished expression %q", result.PolishedExpression)
	}
	if !result.Report.Overall {
		t.Error("sharpe 1.0 -> 1.3 must flag overall improvement")
	}
	turnover, ok := result.Report.Delta("turnover")
	if !ok || !turnover.Improved {
		t.Error("turnover 0.9 -> 0.5 must count as improved")
	}
}

func TestPolishRejectsInvalidModelOutput(t *testing.T) {
	sim := &fakeSimClient{metrics: map[string]*domain.MetricSet{}}
	p := New(sim, &fakeSource{polished: "not an expression"}, nil, Options{})

	_, err := p.Polish(context.Background(), "rank(close)", "", domain.DefaultSettings())
	if err == nil || !strings.Contains(err.Error(), "invalid expression") {
		t.Fatalf("expected invalid-expression error, got %v", err)
	}
}

func TestPolishRejectsUnchangedOutput(t *testing.T) {
	sim := &fakeSimClient{metrics: map[string]*domain.MetricSet{}}
	p := New(sim, &fakeSource{polished: "rank(close)"}, nil, Options{})

	_, err := p.Polish(context.Background(), "rank(close)", "", domain.DefaultSettings())
	if err == nil || !strings.Contains(err.Error(), "unchanged") {
		t.Fatalf("expected unchanged-expression error, got %v", err)
	}
}

func TestPolishFailsWithoutBaseline(t *testing.T) {
	sim := &fakeSimClient{fail: map[string]bool{"rank(close)": true}}
	p := New(sim, &fakeSource{polished: "zscore(rank(close))"}, nil, Options{})

	_, err := p.Polish(context.Background(), "rank(close)", "", domain.DefaultSettings())
	if err == nil || !strings.Contains(err.Error(), "simulate original") {
		t.Fatalf("expected baseline simulation error, got %v", err)
	}
}

func TestAnalyzeIncludesMetrics(t *testing.T) {
	p := New(&fakeSimClient{}, &fakeSource{}, nil, Options{})
	fitness := 1.1
	analysis, err := p.Analyze(context.Background(), "rank(close)", &domain.MetricSet{Sharpe: 1.4, Fitness: &fitness})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if analysis.Text == "" {
		t.Fatal("expected analysis text")
	}
}

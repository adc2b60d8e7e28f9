// Package polisher reworks existing alphas through a language model
// and measures whether the rework actually improved them.
package polisher

import (
	"context"
	"fmt"
	"log"

	"brain-alpha-lab/internal/brain"
	"brain-alpha-lab/internal/domain"
	"brain-alpha-lab/internal/expr"
	"brain-alpha-lab/internal/generator"
	"brain-alpha-lab/internal/llm"
	"brain-alpha-lab/internal/metrics"
	"brain-alpha-lab/internal/simulator"
)

// PolishSource reworks and analyzes expressions; satisfied by
// *llm.Client.
type PolishSource interface {
	PolishExpression(ctx context.Context, expression, requirements string, operators []brain.Operator) (string, error)
	AnalyzeExpression(ctx context.Context, expression string, metrics map[string]float64) (*llm.Analysis, error)
}

// Polisher drives the simulate/rework/resimulate/compare loop.
type Polisher struct {
	client  simulator.SimulationClient
	source  PolishSource
	catalog *generator.Catalog
	verbose bool
}

// Options for creating a Polisher.
type Options struct {
	Verbose bool
}

// New creates a Polisher. catalog may be nil; the model then polishes
// without an operator listing in its prompt.
func New(client simulator.SimulationClient, source PolishSource, catalog *generator.Catalog, opts Options) *Polisher {
	return &Polisher{client: client, source: source, catalog: catalog, verbose: opts.Verbose}
}

// Result is the full outcome of one polish run.
type Result struct {
	OriginalExpression string                    `json:"original_expression"`
	PolishedExpression string                    `json:"polished_expression"`
	Original           *domain.SimulationResult  `json:"original"`
	Polished           *domain.SimulationResult  `json:"polished"`
	Report             metrics.ImprovementReport `json:"improvement"`
}

// Polish simulates the expression as-is, asks the model to rework it
// under the given free-form requirements, simulates the rework, and
// compares the two metric sets. The original's simulation failing is
// fatal; there is no baseline to improve on without it.
func (p *Polisher) Polish(ctx context.Context, expression, requirements string, settings domain.SimulationSettings) (*Result, error) {
	if err := expr.Validate(expression); err != nil {
		return nil, err
	}

	p.log("simulating original %q", expression)
	original, err := p.client.SimulateAlpha(ctx, expression, settings)
	if err != nil {
		return nil, fmt.Errorf("simulate original: %w", err)
	}

	polished, err := p.rework(ctx, expression, requirements)
	if err != nil {
		return nil, err
	}

	p.log("simulating polished %q", polished)
	polishedResult, err := p.client.SimulateAlpha(ctx, polished, settings)
	if err != nil {
		return nil, fmt.Errorf("simulate polished expression: %w", err)
	}

	return &Result{
		OriginalExpression: expression,
		PolishedExpression: polished,
		Original:           original,
		Polished:           polishedResult,
		Report:             metrics.Compare(original.MetricsOrNil(), polishedResult.MetricsOrNil()),
	}, nil
}

// rework asks the model for a polished expression and insists the
// answer both validates and differs from the input.
func (p *Polisher) rework(ctx context.Context, expression, requirements string) (string, error) {
	var operators []brain.Operator
	if p.catalog != nil {
		ops, err := p.catalog.Operators(ctx, false)
		if err != nil {
			p.log("operator catalog unavailable, polishing without it: %v", err)
		} else {
			operators = ops
		}
	}

	polished, err := p.source.PolishExpression(ctx, expression, requirements, operators)
	if err != nil {
		return "", fmt.Errorf("polish expression: %w", err)
	}
	if err := expr.Validate(polished); err != nil {
		return "", fmt.Errorf("model returned invalid expression: %w", err)
	}
	if polished == expression {
		return "", fmt.Errorf("model returned the expression unchanged")
	}
	return polished, nil
}

// Analyze asks the model for a qualitative read of an expression,
// optionally informed by already-known metrics.
func (p *Polisher) Analyze(ctx context.Context, expression string, m *domain.MetricSet) (*llm.Analysis, error) {
	if err := expr.Validate(expression); err != nil {
		return nil, err
	}
	var observed map[string]float64
	if m != nil {
		observed = map[string]float64{
			"sharpe":   m.Sharpe,
			"turnover": m.Turnover,
			"returns":  m.Returns,
			"drawdown": m.Drawdown,
		}
		if m.Fitness != nil {
			observed["fitness"] = *m.Fitness
		}
	}
	return p.source.AnalyzeExpression(ctx, expression, observed)
}

func (p *Polisher) log(format string, args ...any) {
	if p.verbose {
		log.Printf("[polisher] "+format, args...)
	}
}

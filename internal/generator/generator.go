package generator

import (
	"context"
	"errors"
	"fmt"
	"log"

	"brain-alpha-lab/internal/brain"
	"brain-alpha-lab/internal/domain"
	"brain-alpha-lab/internal/expr"
	"brain-alpha-lab/internal/llm"
	"brain-alpha-lab/internal/observability"
)

var (
	// ErrNoOperators means the platform returned an empty operator
	// catalog; generation cannot build a meaningful prompt.
	ErrNoOperators = errors.New("generator: no operators available")
	// ErrNoDataFields means the requested dataset/region/universe has
	// no fields.
	ErrNoDataFields = errors.New("generator: no data fields available")
	// ErrNoValidExpressions means the model produced output but none
	// of it survived validation.
	ErrNoValidExpressions = errors.New("generator: model produced no valid expressions")
)

// ExpressionSource produces raw candidate expressions; satisfied by
// *llm.Client.
type ExpressionSource interface {
	GenerateExpressions(ctx context.Context, req llm.GenerateRequest) ([]string, error)
}

// Generator turns catalog context and a language model into validated
// candidate alphas.
type Generator struct {
	source  ExpressionSource
	catalog *Catalog
	verbose bool
}

// Options for creating a Generator.
type Options struct {
	Verbose bool
}

// New creates a Generator.
func New(source ExpressionSource, catalog *Catalog, opts Options) *Generator {
	return &Generator{source: source, catalog: catalog, verbose: opts.Verbose}
}

// Request shapes one generation run.
type Request struct {
	Dataset      string
	Region       string
	Universe     string
	Count        int
	StrategyType string
	FocusFields  []string
	Complexity   string
	// Refresh bypasses the catalog cache.
	Refresh bool
}

// Generate asks the model for Count expressions and returns the ones
// passing local validation as alphas configured for the requested
// region and universe. Invalid expressions are dropped, not fatal; the
// whole run fails only when the catalogs are empty, the model call
// fails, or nothing validates.
func (g *Generator) Generate(ctx context.Context, req Request) ([]*domain.Alpha, error) {
	region := req.Region
	if region == "" {
		region = "USA"
	}
	universe := req.Universe
	if universe == "" {
		universe = "TOP3000"
	}

	operators, err := g.catalog.Operators(ctx, req.Refresh)
	if err != nil {
		return nil, fmt.Errorf("fetch operators: %w", err)
	}
	if len(operators) == 0 {
		return nil, ErrNoOperators
	}
	fields, err := g.catalog.DataFields(ctx, g.fieldsQuery(req, region, universe), req.Refresh)
	if err != nil {
		return nil, fmt.Errorf("fetch data fields: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w for %s/%s", ErrNoDataFields, region, universe)
	}

	expressions, err := g.source.GenerateExpressions(ctx, llm.GenerateRequest{
		Operators:    operators,
		DataFields:   fields,
		Count:        req.Count,
		StrategyType: req.StrategyType,
		FocusFields:  req.FocusFields,
		Complexity:   req.Complexity,
	})
	if err != nil {
		return nil, fmt.Errorf("generate expressions: %w", err)
	}

	settings := domain.DefaultSettings()
	settings.Region = region
	settings.Universe = universe

	var alphas []*domain.Alpha
	for _, expression := range expressions {
		if err := expr.Validate(expression); err != nil {
			g.log("dropping invalid expression %q: %v", expression, err)
			observability.RecordExpressionRejected(rejectionReason(err))
			continue
		}
		alpha := domain.NewAlpha(expression)
		alpha.Settings = settings
		alphas = append(alphas, alpha)
		observability.RecordExpressionGenerated()
	}
	if len(alphas) == 0 {
		return nil, ErrNoValidExpressions
	}
	g.log("kept %d of %d generated expressions", len(alphas), len(expressions))
	return alphas, nil
}

func (g *Generator) fieldsQuery(req Request, region, universe string) brain.DataFieldsQuery {
	dataset := req.Dataset
	if dataset == "" {
		dataset = "fundamental6"
	}
	return brain.DataFieldsQuery{
		Dataset:        dataset,
		Region:         region,
		Universe:       universe,
		Delay:          1,
		InstrumentType: "EQUITY",
	}
}

func rejectionReason(err error) string {
	var vErr *expr.ValidationError
	if errors.As(err, &vErr) {
		return vErr.Reason.Error()
	}
	return "unknown"
}

func (g *Generator) log(format string, args ...any) {
	if g.verbose {
		log.Printf("[generator] "+format, args...)
	}
}

// Package simulator fans expression batches out to the remote
// simulation service through a bounded worker pool.
package simulator

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"brain-alpha-lab/internal/domain"
	"brain-alpha-lab/internal/expr"
	"brain-alpha-lab/internal/observability"
)

// SimulationClient runs one expression to a terminal state. It is
// satisfied by *brain.Client.
type SimulationClient interface {
	SimulateAlpha(ctx context.Context, expression string, settings domain.SimulationSettings) (*domain.SimulationResult, error)
}

// Input is one unit of batch work.
type Input struct {
	Expression string
	Settings   domain.SimulationSettings
}

// Outcome pairs an input with its result or failure. Exactly one of
// Result and Err is set.
type Outcome struct {
	Input  Input
	Result *domain.SimulationResult
	Err    error
}

// Succeeded reports whether the job reached COMPLETE.
func (o Outcome) Succeeded() bool { return o.Err == nil }

const defaultConcurrency = 3

// Simulator owns the worker pool configuration. The zero concurrency
// falls back to a conservative default; the remote service throttles
// aggressive parallelism anyway.
type Simulator struct {
	client      SimulationClient
	concurrency int
	verbose     bool
}

// Options for creating a Simulator.
type Options struct {
	Concurrency int
	Verbose     bool
}

// New creates a Simulator around the given client.
func New(client SimulationClient, opts Options) *Simulator {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Simulator{client: client, concurrency: concurrency, verbose: opts.Verbose}
}

// SimulateBatch runs every input through the pool and returns one
// outcome per input, index-aligned with the input slice. A single
// job's failure is recorded in its own outcome and never interrupts
// sibling jobs; only context cancellation stops the batch early, and
// even then every input still gets an outcome (cancelled jobs carry
// the context error).
func (s *Simulator) SimulateBatch(ctx context.Context, inputs []Input) []Outcome {
	started := time.Now()
	outcomes := make([]Outcome, len(inputs))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i := range inputs {
		i := i
		in := inputs[i]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				outcomes[i] = Outcome{Input: in, Err: err}
				return nil
			}
			s.log("simulating %q", in.Expression)
			result, err := s.client.SimulateAlpha(ctx, in.Expression, in.Settings)
			if err != nil {
				s.log("simulation failed for %q: %v", in.Expression, err)
				outcomes[i] = Outcome{Input: in, Err: err}
				return nil
			}
			outcomes[i] = Outcome{Input: in, Result: result}
			return nil
		})
	}
	g.Wait()

	summary := Summarize(outcomes)
	observability.RecordBatch(len(inputs), time.Since(started).Seconds(), len(summary.Failures) == 0)
	return outcomes
}

// SimulateExpressions is SimulateBatch over a uniform settings value.
func (s *Simulator) SimulateExpressions(ctx context.Context, expressions []string, settings domain.SimulationSettings) []Outcome {
	inputs := make([]Input, len(expressions))
	for i, e := range expressions {
		inputs[i] = Input{Expression: e, Settings: settings}
	}
	return s.SimulateBatch(ctx, inputs)
}

// SimulateRegions re-runs the same inputs once per region, cloning
// each input's settings with the region overridden. Regions run
// sequentially and independently: a failing region contributes its
// own failed outcomes without touching the others.
func (s *Simulator) SimulateRegions(ctx context.Context, inputs []Input, regions []string) map[string][]Outcome {
	results := make(map[string][]Outcome, len(regions))
	for _, region := range regions {
		regional := make([]Input, len(inputs))
		for i, in := range inputs {
			regional[i] = Input{Expression: in.Expression, Settings: in.Settings.WithRegion(region)}
		}
		s.log("simulating %d expressions in region %s", len(regional), region)
		results[region] = s.SimulateBatch(ctx, regional)
	}
	return results
}

// SimulateVariations expands one expression into its parameter
// variations and runs the whole set as a batch. Outcome 0 is always
// the unmodified original.
func (s *Simulator) SimulateVariations(ctx context.Context, expression string, settings domain.SimulationSettings, opts expr.VariationOptions) []Outcome {
	variations := expr.GenerateVariations(expression, opts)
	observability.RecordVariations(len(variations))
	s.log("expanded %q into %d variations", expression, len(variations))
	return s.SimulateExpressions(ctx, variations, settings)
}

// Failure describes one failed job in a batch.
type Failure struct {
	Expression string `json:"expression"`
	Reason     string `json:"reason"`
}

// BatchSummary is the caller-facing tally of a finished batch.
type BatchSummary struct {
	Total     int       `json:"total"`
	Succeeded int       `json:"succeeded"`
	Failures  []Failure `json:"failures,omitempty"`
}

// Summarize tallies a batch into a success count and failure list.
func Summarize(outcomes []Outcome) BatchSummary {
	summary := BatchSummary{Total: len(outcomes)}
	for _, o := range outcomes {
		if o.Succeeded() {
			summary.Succeeded++
			continue
		}
		summary.Failures = append(summary.Failures, Failure{
			Expression: o.Input.Expression,
			Reason:     o.Err.Error(),
		})
	}
	return summary
}

func (s *Simulator) log(format string, args ...any) {
	if s.verbose {
		log.Printf("[simulator] "+format, args...)
	}
}

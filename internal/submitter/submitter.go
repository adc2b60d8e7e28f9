// Package submitter screens simulated alphas against submission
// criteria and pushes the survivors through the platform's
// submission-acceptance flow.
package submitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"brain-alpha-lab/internal/brain"
	"brain-alpha-lab/internal/domain"
)

// Submission thresholds the platform effectively enforces; screening
// locally avoids burning the submission quota on certain rejections.
const (
	MinSharpe   = 1.25
	MinFitness  = 1.0
	MinTurnover = 0.01
	MaxTurnover = 0.7
)

// ErrNoAlphaID means the alpha was never simulated, so there is
// nothing to submit.
var ErrNoAlphaID = errors.New("submitter: alpha has no remote id")

// SubmissionClient is the slice of the platform client the submitter
// needs; satisfied by *brain.Client.
type SubmissionClient interface {
	ListAlphas(ctx context.Context, q brain.ListAlphasQuery) (*brain.AlphaPage, error)
	SubmitAlpha(ctx context.Context, alphaID string) (json.RawMessage, error)
	SetAlphaProperties(ctx context.Context, alphaID string, props brain.AlphaProperties) error
}

// Criteria select which alphas qualify for submission. Zero fields
// fall back to the platform thresholds.
type Criteria struct {
	MinSharpe   float64
	MinFitness  float64
	MinTurnover float64
	MaxTurnover float64
	MaxResults  int
}

func (c Criteria) withDefaults() Criteria {
	if c.MinSharpe == 0 {
		c.MinSharpe = MinSharpe
	}
	if c.MinFitness == 0 {
		c.MinFitness = MinFitness
	}
	if c.MinTurnover == 0 {
		c.MinTurnover = MinTurnover
	}
	if c.MaxTurnover == 0 {
		c.MaxTurnover = MaxTurnover
	}
	if c.MaxResults == 0 {
		c.MaxResults = 50
	}
	return c
}

// Submitter coordinates screening and submission.
type Submitter struct {
	client      SubmissionClient
	concurrency int
	verbose     bool
}

// Options for creating a Submitter.
type Options struct {
	Concurrency int
	Verbose     bool
}

// New creates a Submitter.
func New(client SubmissionClient, opts Options) *Submitter {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 2
	}
	return &Submitter{client: client, concurrency: concurrency, verbose: opts.Verbose}
}

// FindSuccessfulAlphas walks the caller's unsubmitted alphas, newest
// first, and returns those whose in-sample metrics clear the criteria,
// up to MaxResults.
func (s *Submitter) FindSuccessfulAlphas(ctx context.Context, criteria Criteria) ([]domain.AlphaDetails, error) {
	criteria = criteria.withDefaults()
	const pageSize = 50

	var found []domain.AlphaDetails
	for offset := 0; len(found) < criteria.MaxResults; offset += pageSize {
		page, err := s.client.ListAlphas(ctx, brain.ListAlphasQuery{
			Status: domain.AlphaStatusUnsubmitted,
			Order:  "-dateCreated",
			Limit:  pageSize,
			Offset: offset,
		})
		if err != nil {
			return nil, fmt.Errorf("list alphas at offset %d: %w", offset, err)
		}
		if len(page.Results) == 0 {
			break
		}
		for _, details := range page.Results {
			if !meetsCriteria(details.InSample, criteria) {
				continue
			}
			found = append(found, details)
			if len(found) >= criteria.MaxResults {
				break
			}
		}
		if len(page.Results) < pageSize {
			break
		}
	}
	s.log("found %d alphas meeting criteria", len(found))
	return found, nil
}

func meetsCriteria(m *domain.MetricSet, criteria Criteria) bool {
	if m == nil {
		return false
	}
	if abs(m.Sharpe) < criteria.MinSharpe {
		return false
	}
	if m.Fitness == nil || abs(*m.Fitness) < criteria.MinFitness {
		return false
	}
	return m.Turnover >= criteria.MinTurnover && m.Turnover <= criteria.MaxTurnover
}

// ValidateForSubmission checks one alpha against the thresholds and
// its remote check results. The returned reason is empty when the
// alpha qualifies.
func ValidateForSubmission(details *domain.AlphaDetails) (bool, string) {
	m := details.InSample
	if m == nil {
		return false, "no in-sample metrics"
	}
	if abs(m.Sharpe) < MinSharpe {
		return false, fmt.Sprintf("sharpe too low: %.3f", m.Sharpe)
	}
	if m.Fitness == nil {
		return false, "fitness unavailable"
	}
	if abs(*m.Fitness) < MinFitness {
		return false, fmt.Sprintf("fitness too low: %.3f", *m.Fitness)
	}
	if m.Turnover < MinTurnover {
		return false, fmt.Sprintf("turnover too low: %.4f", m.Turnover)
	}
	if m.Turnover > MaxTurnover {
		return false, fmt.Sprintf("turnover too high: %.4f", m.Turnover)
	}
	for _, check := range m.Checks {
		if check.Result == domain.CheckFail {
			return false, fmt.Sprintf("check failed: %s", check.Name)
		}
	}
	return true, ""
}

// SubmissionOutcome pairs one alpha with its submission result.
type SubmissionOutcome struct {
	AlphaID    string          `json:"alpha_id"`
	Expression string          `json:"expression"`
	Skipped    string          `json:"skipped_reason,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Err        error           `json:"-"`
}

// Submitted reports whether the alpha went through.
func (o SubmissionOutcome) Submitted() bool { return o.Err == nil && o.Skipped == "" }

// SubmitAlphas validates and submits a set of alphas with bounded
// concurrency. Every input produces one outcome: skipped (failed
// local validation), submitted, or failed. One alpha's failure never
// blocks the others.
func (s *Submitter) SubmitAlphas(ctx context.Context, alphas []domain.AlphaDetails) []SubmissionOutcome {
	outcomes := make([]SubmissionOutcome, len(alphas))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i := range alphas {
		i := i
		details := alphas[i]
		outcomes[i] = SubmissionOutcome{AlphaID: details.ID, Expression: details.Regular.Code}
		if details.ID == "" {
			outcomes[i].Err = ErrNoAlphaID
			continue
		}
		if ok, reason := ValidateForSubmission(&details); !ok {
			s.log("skipping %s: %s", details.ID, reason)
			outcomes[i].Skipped = reason
			continue
		}
		g.Go(func() error {
			result, err := s.client.SubmitAlpha(ctx, details.ID)
			if err != nil {
				s.log("submission of %s failed: %v", details.ID, err)
				outcomes[i].Err = err
				return nil
			}
			outcomes[i].Result = result
			return nil
		})
	}
	g.Wait()
	return outcomes
}

// TagAlpha sets organizational properties on a submitted alpha.
func (s *Submitter) TagAlpha(ctx context.Context, alphaID string, tags []string, name, color, description string) error {
	if alphaID == "" {
		return ErrNoAlphaID
	}
	props := brain.AlphaProperties{Tags: tags}
	if name != "" {
		props.Name = &name
	}
	if color != "" {
		props.Color = &color
	}
	if description != "" {
		props.Description = &description
	}
	return s.client.SetAlphaProperties(ctx, alphaID, props)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func (s *Submitter) log(format string, args ...any) {
	if s.verbose {
		log.Printf("[submitter] "+format, args...)
	}
}

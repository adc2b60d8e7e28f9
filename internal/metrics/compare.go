// Package metrics compares and ranks alpha performance metrics.
package metrics

import (
	"brain-alpha-lab/internal/domain"
)

// Turnover outside this band is either too stale to trade or too
// expensive to hold; submission checks enforce the same limits.
const (
	TurnoverMin = 0.01
	TurnoverMax = 0.7
)

// smallTurnoverDrift is the largest in-band movement still counted as
// an improvement.
const smallTurnoverDrift = 0.1

// nearZero guards percentage deltas against division by ~0 baselines.
const nearZero = 1e-9

// Delta is the before/after movement of a single metric.
type Delta struct {
	Metric        string   `json:"metric"`
	Before        float64  `json:"before"`
	After         float64  `json:"after"`
	Change        float64  `json:"change"`
	PercentChange *float64 `json:"percent_change,omitempty"`
	Improved      bool     `json:"improved"`
}

// ImprovementReport summarizes how a reworked alpha moved against its
// original across the headline metrics.
type ImprovementReport struct {
	Deltas  []Delta `json:"deltas"`
	Overall bool    `json:"overall_improved"`
}

// Delta returns the entry for the named metric, if present.
func (r *ImprovementReport) Delta(metric string) (Delta, bool) {
	for _, d := range r.Deltas {
		if d.Metric == metric {
			return d, true
		}
	}
	return Delta{}, false
}

// Compare evaluates how after moved relative to before across sharpe,
// fitness, turnover and returns. Fitness is skipped when either side
// lacks it. Sharpe, fitness and returns improve when they increase.
// Turnover improves when it enters the tradable band, or stays inside
// it with only a small drift; leaving the band or a large in-band jump
// is not an improvement. Overall improvement requires sharpe or
// fitness to have improved — turnover movement alone is too weak a
// signal.
func Compare(before, after *domain.MetricSet) ImprovementReport {
	var report ImprovementReport
	if before == nil || after == nil {
		return report
	}

	sharpe := higherIsBetter("sharpe", before.Sharpe, after.Sharpe)
	report.Deltas = append(report.Deltas, sharpe)
	report.Overall = sharpe.Improved

	if before.Fitness != nil && after.Fitness != nil {
		fitness := higherIsBetter("fitness", *before.Fitness, *after.Fitness)
		report.Deltas = append(report.Deltas, fitness)
		report.Overall = report.Overall || fitness.Improved
	}

	report.Deltas = append(report.Deltas, turnoverDelta(before.Turnover, after.Turnover))
	report.Deltas = append(report.Deltas, higherIsBetter("returns", before.Returns, after.Returns))

	return report
}

func higherIsBetter(name string, before, after float64) Delta {
	d := newDelta(name, before, after)
	d.Improved = after > before
	return d
}

func turnoverDelta(before, after float64) Delta {
	d := newDelta("turnover", before, after)
	beforeIn := before >= TurnoverMin && before <= TurnoverMax
	afterIn := after >= TurnoverMin && after <= TurnoverMax
	switch {
	case !beforeIn && afterIn:
		d.Improved = true
	case beforeIn && afterIn:
		d.Improved = abs(after-before) < smallTurnoverDrift
	}
	return d
}

func newDelta(name string, before, after float64) Delta {
	d := Delta{Metric: name, Before: before, After: after, Change: after - before}
	if abs(before) > nearZero {
		pct := (after - before) / abs(before) * 100
		d.PercentChange = &pct
	}
	return d
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

package simulator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"brain-alpha-lab/internal/domain"
	"brain-alpha-lab/internal/expr"
)

// fakeClient simulates instantly and fails expressions containing
// "bad". It tracks the peak number of concurrent calls.
type fakeClient struct {
	mu       sync.Mutex
	inFlight int
	peak     int
	calls    atomic.Int32
	delay    time.Duration
}

func (f *fakeClient) SimulateAlpha(ctx context.Context, expression string, settings domain.SimulationSettings) (*domain.SimulationResult, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if strings.Contains(expression, "bad") {
		return nil, errors.New("simulation rejected")
	}
	return &domain.SimulationResult{
		Expression: expression,
		Job:        domain.SimulationStatus{Status: domain.JobComplete, AlphaID: "A-" + expression},
	}, nil
}

func TestSimulateBatchPairsEveryInput(t *testing.T) {
	client := &fakeClient{}
	sim := New(client, Options{Concurrency: 4})

	inputs := []Input{
		{Expression: "rank(volume)", Settings: domain.DefaultSettings()},
		{Expression: "bad(close)", Settings: domain.DefaultSettings()},
		{Expression: "ts_mean(close, 10)", Settings: domain.DefaultSettings()},
		{Expression: "another bad one", Settings: domain.DefaultSettings()},
		{Expression: "rank(open)", Settings: domain.DefaultSettings()},
	}
	outcomes := sim.SimulateBatch(context.Background(), inputs)

	if len(outcomes) != len(inputs) {
		t.Fatalf("expected %d outcomes, got %d", len(inputs), len(outcomes))
	}
	for i, o := range outcomes {
		if o.Input.Expression != inputs[i].Expression {
			t.Errorf("outcome %d paired with %q, want %q", i, o.Input.Expression, inputs[i].Expression)
		}
	}

	summary := Summarize(outcomes)
	if summary.Succeeded != 3 {
		t.Errorf("expected 3 successes, got %d", summary.Succeeded)
	}
	if len(summary.Failures) != 2 {
		t.Errorf("expected 2 failures, got %d", len(summary.Failures))
	}
}

func TestSimulateBatchFailureDoesNotCancelSiblings(t *testing.T) {
	client := &fakeClient{}
	sim := New(client, Options{Concurrency: 2})

	inputs := []Input{
		{Expression: "bad(1)"},
		{Expression: "bad(2)"},
		{Expression: "rank(volume)"},
	}
	outcomes := sim.SimulateBatch(context.Background(), inputs)
	if !outcomes[2].Succeeded() {
		t.Errorf("sibling failures must not affect outcome 2: %v", outcomes[2].Err)
	}
	if client.calls.Load() != 3 {
		t.Errorf("expected all 3 inputs simulated, got %d calls", client.calls.Load())
	}
}

func TestSimulateBatchHonorsConcurrencyLimit(t *testing.T) {
	client := &fakeClient{delay: 20 * time.Millisecond}
	sim := New(client, Options{Concurrency: 2})

	inputs := make([]Input, 8)
	for i := range inputs {
		inputs[i] = Input{Expression: fmt.Sprintf("rank(field%d)", i)}
	}
	sim.SimulateBatch(context.Background(), inputs)

	if client.peak > 2 {
		t.Errorf("peak concurrency %d exceeds limit 2", client.peak)
	}
}

func TestSimulateRegions(t *testing.T) {
	client := &fakeClient{}
	sim := New(client, Options{Concurrency: 2})

	inputs := []Input{
		{Expression: "rank(volume)", Settings: domain.DefaultSettings()},
		{Expression: "rank(open)", Settings: domain.DefaultSettings()},
	}
	regions := []string{"USA", "EUR", "ASI"}
	results := sim.SimulateRegions(context.Background(), inputs, regions)

	if len(results) != 3 {
		t.Fatalf("expected 3 regions, got %d", len(results))
	}
	for _, region := range regions {
		outcomes, ok := results[region]
		if !ok {
			t.Fatalf("missing region %s", region)
		}
		if len(outcomes) != len(inputs) {
			t.Errorf("region %s: expected %d outcomes, got %d", region, len(inputs), len(outcomes))
		}
		for _, o := range outcomes {
			if o.Input.Settings.Region != region {
				t.Errorf("region %s: outcome carries settings region %s", region, o.Input.Settings.Region)
			}
		}
	}
	// Inputs themselves must stay untouched.
	for _, in := range inputs {
		if in.Settings.Region != "USA" {
			t.Errorf("input settings mutated to region %s", in.Settings.Region)
		}
	}
}

func TestSimulateVariationsRunsOriginalFirst(t *testing.T) {
	client := &fakeClient{}
	sim := New(client, Options{Concurrency: 2})

	outcomes := sim.SimulateVariations(context.Background(), "ts_mean(close, 10)", domain.DefaultSettings(), expr.DefaultVariationOptions())
	if len(outcomes) == 0 {
		t.Fatal("expected at least the original expression")
	}
	if outcomes[0].Input.Expression != "ts_mean(close, 10)" {
		t.Errorf("outcome 0 must be the original, got %q", outcomes[0].Input.Expression)
	}
	if int(client.calls.Load()) != len(outcomes) {
		t.Errorf("expected %d simulations, got %d", len(outcomes), client.calls.Load())
	}
}

func TestSimulateBatchCancelledContext(t *testing.T) {
	client := &fakeClient{delay: time.Second}
	sim := New(client, Options{Concurrency: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	inputs := []Input{{Expression: "rank(volume)"}, {Expression: "rank(open)"}}
	outcomes := sim.SimulateBatch(ctx, inputs)

	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	for i, o := range outcomes {
		if o.Err == nil {
			t.Errorf("outcome %d: expected context error", i)
		}
	}
}

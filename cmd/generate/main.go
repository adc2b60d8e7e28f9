// Package main generates candidate alpha expressions with a language
// model grounded on the live operator and data-field catalogs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"brain-alpha-lab/internal/brain"
	"brain-alpha-lab/internal/config"
	"brain-alpha-lab/internal/domain"
	"brain-alpha-lab/internal/generator"
	"brain-alpha-lab/internal/llm"
	"brain-alpha-lab/internal/reporting"
	"brain-alpha-lab/internal/simulator"
	"brain-alpha-lab/internal/storage"
	"brain-alpha-lab/internal/storage/memory"
	"brain-alpha-lab/internal/storage/migrations"
	pgstore "brain-alpha-lab/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", os.Getenv("LAB_CONFIG"), "Path to YAML config file")
	dataset := flag.String("dataset", "fundamental6", "Data-field dataset id")
	region := flag.String("region", "USA", "Simulation region")
	universe := flag.String("universe", "TOP3000", "Simulation universe")
	count := flag.Int("count", 5, "Number of expressions to request")
	strategy := flag.String("strategy", "", "Strategy theme hint for the model (e.g. momentum, value)")
	complexity := flag.String("complexity", "", "Expression complexity hint (simple, moderate, complex)")
	focus := flag.String("focus", "", "Comma-separated data fields the model should prefer")
	simulate := flag.Bool("simulate", false, "Also batch-simulate the generated expressions and record the run")
	outputDir := flag.String("output-dir", "", "Output directory (overrides config)")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	logger := log.New(os.Stdout, "[generate] ", log.LstdFlags)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal(err)
	}
	if cfg.LLM.APIKey == "" {
		logger.Fatal("Model API key missing (set OPENROUTER_API_KEY)")
	}
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if *verbose {
		cfg.Verbose = true
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, cancelling...", sig)
		cancel()
	}()

	client, err := newBrainClient(cfg)
	if err != nil {
		logger.Fatalf("Failed to create platform client: %v", err)
	}
	if err := client.Authenticate(ctx); err != nil {
		logger.Fatalf("Authentication failed: %v", err)
	}

	model, err := llm.NewClient(llm.Options{
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		BaseURL: cfg.LLM.BaseURL,
		Verbose: cfg.Verbose,
	})
	if err != nil {
		logger.Fatalf("Failed to create model client: %v", err)
	}

	catalog := generator.NewCatalog(client)
	gen := generator.New(model, catalog, generator.Options{Verbose: cfg.Verbose})

	var focusFields []string
	if *focus != "" {
		for _, f := range strings.Split(*focus, ",") {
			if f = strings.TrimSpace(f); f != "" {
				focusFields = append(focusFields, f)
			}
		}
	}

	alphas, err := gen.Generate(ctx, generator.Request{
		Dataset:      *dataset,
		Region:       *region,
		Universe:     *universe,
		Count:        *count,
		StrategyType: *strategy,
		FocusFields:  focusFields,
		Complexity:   *complexity,
	})
	if err != nil {
		logger.Fatalf("Generation failed: %v", err)
	}

	fmt.Printf("Generated %d candidate expressions:\n", len(alphas))
	for i, a := range alphas {
		fmt.Printf("  %d. %s\n", i+1, a.Expression)
	}

	writer := reporting.NewWriter(cfg.Output.Dir)
	path, err := writer.WriteJSON("generated", alphas)
	if err != nil {
		logger.Fatalf("Failed to write output: %v", err)
	}
	fmt.Printf("Saved to %s\n", path)

	if !*simulate {
		return
	}

	store, cleanup, err := newRecordStore(ctx, cfg)
	if err != nil {
		logger.Fatalf("Failed to create record store: %v", err)
	}
	defer cleanup()

	sim := simulator.New(client, simulator.Options{
		Concurrency: cfg.Brain.Concurrency,
		Verbose:     cfg.Verbose,
	})
	inputs := make([]simulator.Input, len(alphas))
	for i, a := range alphas {
		inputs[i] = simulator.Input{Expression: a.Expression, Settings: a.Settings}
	}
	outcomes := sim.SimulateBatch(ctx, inputs)

	summary := simulator.Summarize(outcomes)
	fmt.Printf("Simulated %d/%d successfully\n", summary.Succeeded, summary.Total)
	for _, f := range summary.Failures {
		fmt.Printf("  failed: %s (%s)\n", f.Expression, f.Reason)
	}

	runID := uuid.NewString()
	if err := persistOutcomes(ctx, store, runID, *region, *universe, outcomes); err != nil {
		logger.Printf("Failed to persist outcomes: %v", err)
	}
	simPath, err := writer.WriteBatch("generated_sim", outcomes)
	if err != nil {
		logger.Fatalf("Failed to write simulation report: %v", err)
	}
	fmt.Printf("Saved to %s\n", simPath)
}

// newRecordStore returns a postgres-backed store when a DSN is
// configured, otherwise an in-memory store.
func newRecordStore(ctx context.Context, cfg config.Config) (storage.AlphaRecordStore, func(), error) {
	if cfg.Storage.PostgresDSN == "" {
		return memory.NewAlphaRecordStore(), func() {}, nil
	}
	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN,
		pgstore.WithMaxConns(int32(cfg.Storage.MaxConns)))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	return pgstore.NewAlphaRecordStore(pool), pool.Close, nil
}

// persistOutcomes records every outcome of a batch, including failed
// ones, so runs can be audited later.
func persistOutcomes(ctx context.Context, store storage.AlphaRecordStore, runID, region, universe string, outcomes []simulator.Outcome) error {
	now := time.Now().UnixMilli()
	records := make([]*domain.AlphaRecord, 0, len(outcomes))
	for _, o := range outcomes {
		r := &domain.AlphaRecord{
			RecordID:   uuid.NewString(),
			RunID:      runID,
			Expression: o.Input.Expression,
			Region:     region,
			Universe:   universe,
			CreatedAt:  now,
		}
		if o.Err != nil {
			r.Status = string(domain.JobError)
		}
		if o.Result != nil {
			r.AlphaID = o.Result.Job.AlphaID
			r.Status = string(o.Result.Job.Status)
			if m := o.Result.MetricsOrNil(); m != nil {
				r.Sharpe = m.Sharpe
				r.Fitness = m.Fitness
				r.Turnover = m.Turnover
				r.Returns = m.Returns
			}
		}
		records = append(records, r)
	}
	return store.InsertBulk(ctx, records)
}

// newBrainClient builds the platform client from config.
func newBrainClient(cfg config.Config) (*brain.Client, error) {
	creds := brain.Credentials{Username: cfg.Brain.Username, Password: cfg.Brain.Password}
	var opts []brain.Option
	if cfg.Brain.BaseURL != "" {
		opts = append(opts, brain.WithBaseURL(cfg.Brain.BaseURL))
	}
	if cfg.Brain.MaxRetries > 0 {
		opts = append(opts, brain.WithMaxRetries(cfg.Brain.MaxRetries))
	}
	if cfg.Brain.RateLimit > 0 {
		opts = append(opts, brain.WithRateLimit(cfg.Brain.RateLimit, int(cfg.Brain.RateLimit*2)))
	}
	return brain.NewClient(creds, opts...)
}

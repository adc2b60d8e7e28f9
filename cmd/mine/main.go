// Package main runs a batch of alpha simulations: reads expressions
// from a file or the command line, simulates them concurrently
// (optionally across regions or as parameter variations), writes a
// JSON report, and records the run in storage.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"brain-alpha-lab/internal/brain"
	"brain-alpha-lab/internal/config"
	"brain-alpha-lab/internal/domain"
	"brain-alpha-lab/internal/expr"
	"brain-alpha-lab/internal/observability"
	"brain-alpha-lab/internal/reporting"
	"brain-alpha-lab/internal/simulator"
	"brain-alpha-lab/internal/storage"
	"brain-alpha-lab/internal/storage/memory"
	"brain-alpha-lab/internal/storage/migrations"
	pgstore "brain-alpha-lab/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", os.Getenv("LAB_CONFIG"), "Path to YAML config file")
	input := flag.String("input", "", "File with one expression per line")
	expressions := flag.String("expr", "", "Semicolon-separated expressions (alternative to -input)")
	region := flag.String("region", "USA", "Simulation region")
	universe := flag.String("universe", "TOP3000", "Simulation universe")
	regions := flag.String("regions", "", "Comma-separated regions; runs every expression in each")
	variations := flag.Bool("variations", false, "Simulate numeric parameter variations of a single expression")
	concurrency := flag.Int("concurrency", 0, "Worker pool size (overrides config)")
	outputDir := flag.String("output-dir", "", "Output directory (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address (disabled when empty)")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	logger := log.New(os.Stdout, "[mine] ", log.LstdFlags)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal(err)
	}
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if *concurrency > 0 {
		cfg.Brain.Concurrency = *concurrency
	}
	if *verbose {
		cfg.Verbose = true
	}

	exprs, err := loadExpressions(*input, *expressions)
	if err != nil {
		logger.Fatal(err)
	}
	if len(exprs) == 0 {
		logger.Fatal("No expressions given (use -input or -expr)")
	}
	if *variations && len(exprs) != 1 {
		logger.Fatal("-variations takes exactly one expression")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, cancelling batch...", sig)
		cancel()
	}()

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			logger.Printf("Serving metrics on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	client, err := newBrainClient(cfg)
	if err != nil {
		logger.Fatalf("Failed to create platform client: %v", err)
	}
	if err := client.Authenticate(ctx); err != nil {
		logger.Fatalf("Authentication failed: %v", err)
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
	writer := reporting.NewWriter(cfg.Output.Dir)
	settings := domain.DefaultSettings()
	settings.Region = *region
	settings.Universe = *universe

	runID := uuid.NewString()
	logger.Printf("Run %s: %d expressions", runID, len(exprs))

	switch {
	case *regions != "":
		regionList := splitList(*regions)
		inputs := make([]simulator.Input, len(exprs))
		for i, e := range exprs {
			inputs[i] = simulator.Input{Expression: e, Settings: settings}
		}
		results := sim.SimulateRegions(ctx, inputs, regionList)
		for _, r := range regionList {
			printSummary(r, results[r])
			if err := persistOutcomes(ctx, store, runID, r, *universe, results[r]); err != nil {
				logger.Printf("Failed to persist %s outcomes: %v", r, err)
			}
		}
		path, err := writer.WriteRegions("regions", results)
		if err != nil {
			logger.Fatalf("Failed to write report: %v", err)
		}
		fmt.Printf("Saved to %s\n", path)

	case *variations:
		outcomes := sim.SimulateVariations(ctx, exprs[0], settings, expr.DefaultVariationOptions())
		printSummary(*region, outcomes)
		if err := persistOutcomes(ctx, store, runID, *region, *universe, outcomes); err != nil {
			logger.Printf("Failed to persist outcomes: %v", err)
		}
		path, err := writer.WriteBatch("variations", outcomes)
		if err != nil {
			logger.Fatalf("Failed to write report: %v", err)
		}
		fmt.Printf("Saved to %s\n", path)

	default:
		outcomes := sim.SimulateExpressions(ctx, exprs, settings)
		printSummary(*region, outcomes)
		if err := persistOutcomes(ctx, store, runID, *region, *universe, outcomes); err != nil {
			logger.Printf("Failed to persist outcomes: %v", err)
		}
		path, err := writer.WriteBatch("batch", outcomes)
		if err != nil {
			logger.Fatalf("Failed to write report: %v", err)
		}
		fmt.Printf("Saved to %s\n", path)
	}
}

// loadExpressions reads expressions from the input file and/or the
// -expr flag. Blank lines and # comments in the file are skipped.
func loadExpressions(path, inline string) ([]string, error) {
	var exprs []string
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open input file: %w", err)
		}
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			exprs = append(exprs, line)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read input file: %w", err)
		}
	}
	for _, e := range strings.Split(inline, ";") {
		if e = strings.TrimSpace(e); e != "" {
			exprs = append(exprs, e)
		}
	}
	return exprs, nil
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
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

func printSummary(region string, outcomes []simulator.Outcome) {
	summary := simulator.Summarize(outcomes)
	fmt.Printf("%s: %d/%d succeeded\n", region, summary.Succeeded, summary.Total)
	for _, f := range summary.Failures {
		fmt.Printf("  failed: %s (%s)\n", f.Expression, f.Reason)
	}
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

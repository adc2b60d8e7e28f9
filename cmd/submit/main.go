// Package main screens unsubmitted alphas against the platform
// thresholds and submits the qualifying ones.
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

	"brain-alpha-lab/internal/brain"
	"brain-alpha-lab/internal/config"
	"brain-alpha-lab/internal/reporting"
	"brain-alpha-lab/internal/submitter"
)

func main() {
	configPath := flag.String("config", os.Getenv("LAB_CONFIG"), "Path to YAML config file")
	minSharpe := flag.Float64("min-sharpe", 0, "Minimum absolute sharpe (default: platform threshold)")
	minFitness := flag.Float64("min-fitness", 0, "Minimum absolute fitness (default: platform threshold)")
	maxResults := flag.Int("max-results", 0, "Stop after this many qualifying alphas")
	dryRun := flag.Bool("dry-run", false, "List qualifying alphas without submitting")
	tags := flag.String("tags", "", "Comma-separated tags applied to submitted alphas")
	concurrency := flag.Int("concurrency", 0, "Concurrent submissions")
	outputDir := flag.String("output-dir", "", "Output directory (overrides config)")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	logger := log.New(os.Stdout, "[submit] ", log.LstdFlags)

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

	sub := submitter.New(client, submitter.Options{
		Concurrency: *concurrency,
		Verbose:     cfg.Verbose,
	})

	candidates, err := sub.FindSuccessfulAlphas(ctx, submitter.Criteria{
		MinSharpe:  *minSharpe,
		MinFitness: *minFitness,
		MaxResults: *maxResults,
	})
	if err != nil {
		logger.Fatalf("Screening failed: %v", err)
	}

	fmt.Printf("Found %d qualifying alphas\n", len(candidates))
	for _, a := range candidates {
		sharpe := 0.0
		if a.InSample != nil {
			sharpe = a.InSample.Sharpe
		}
		fmt.Printf("  %s  sharpe=%.2f  %s\n", a.ID, sharpe, a.Regular.Code)
	}

	if *dryRun || len(candidates) == 0 {
		return
	}

	outcomes := sub.SubmitAlphas(ctx, candidates)

	submitted := 0
	for _, o := range outcomes {
		switch {
		case o.Skipped != "":
			fmt.Printf("  skipped %s: %s\n", o.AlphaID, o.Skipped)
		case o.Err != nil:
			fmt.Printf("  failed %s: %v\n", o.AlphaID, o.Err)
		default:
			submitted++
			fmt.Printf("  submitted %s\n", o.AlphaID)
			if *tags != "" {
				if err := sub.TagAlpha(ctx, o.AlphaID, splitList(*tags), "", "", ""); err != nil {
					logger.Printf("Failed to tag %s: %v", o.AlphaID, err)
				}
			}
		}
	}
	fmt.Printf("Submitted %d/%d alphas\n", submitted, len(outcomes))

	writer := reporting.NewWriter(cfg.Output.Dir)
	path, err := writer.WriteJSON("submissions", outcomes)
	if err != nil {
		logger.Fatalf("Failed to write output: %v", err)
	}
	fmt.Printf("Saved to %s\n", path)
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

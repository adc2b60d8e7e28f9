// Package main polishes one alpha expression: simulates it, asks the
// language model for a rework, simulates the rework, and reports the
// metric deltas between the two runs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"brain-alpha-lab/internal/brain"
	"brain-alpha-lab/internal/config"
	"brain-alpha-lab/internal/domain"
	"brain-alpha-lab/internal/generator"
	"brain-alpha-lab/internal/llm"
	"brain-alpha-lab/internal/polisher"
	"brain-alpha-lab/internal/reporting"
)

func main() {
	configPath := flag.String("config", os.Getenv("LAB_CONFIG"), "Path to YAML config file")
	expression := flag.String("expr", "", "Expression to polish (required)")
	requirements := flag.String("requirements", "", "Free-form guidance for the rework")
	region := flag.String("region", "USA", "Simulation region")
	universe := flag.String("universe", "TOP3000", "Simulation universe")
	analyze := flag.Bool("analyze", false, "Also print a model analysis of the original expression")
	outputDir := flag.String("output-dir", "", "Output directory (overrides config)")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	logger := log.New(os.Stdout, "[polish] ", log.LstdFlags)

	if *expression == "" {
		logger.Fatal("-expr is required")
	}

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
	pol := polisher.New(client, model, catalog, polisher.Options{Verbose: cfg.Verbose})

	settings := domain.DefaultSettings()
	settings.Region = *region
	settings.Universe = *universe

	result, err := pol.Polish(ctx, *expression, *requirements, settings)
	if err != nil {
		logger.Fatalf("Polish failed: %v", err)
	}

	fmt.Printf("Original: %s\n", result.OriginalExpression)
	fmt.Printf("Polished: %s\n\n", result.PolishedExpression)
	for _, d := range result.Report.Deltas {
		arrow := "worse"
		if d.Improved {
			arrow = "improved"
		}
		if d.PercentChange != nil {
			fmt.Printf("  %-10s %.4f -> %.4f (%+.1f%%, %s)\n", d.Metric, d.Before, d.After, *d.PercentChange, arrow)
		} else {
			fmt.Printf("  %-10s %.4f -> %.4f (%s)\n", d.Metric, d.Before, d.After, arrow)
		}
	}
	if result.Report.Overall {
		fmt.Println("\nOverall: improved")
	} else {
		fmt.Println("\nOverall: no improvement")
	}

	if *analyze {
		analysis, err := pol.Analyze(ctx, result.OriginalExpression, result.Original.MetricsOrNil())
		if err != nil {
			logger.Printf("Analysis failed: %v", err)
		} else {
			fmt.Printf("\nAnalysis:\n%s\n", analysis.Text)
		}
	}

	writer := reporting.NewWriter(cfg.Output.Dir)
	path, err := writer.WriteJSON("polish", result)
	if err != nil {
		logger.Fatalf("Failed to write output: %v", err)
	}
	fmt.Printf("\nSaved to %s\n", path)
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

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	fundamentals "github.com/RxDataLab/go-fundamentals"
)

func main() {
	var (
		configPath  string
		outputPath  string
		email       string
		force       bool
		concurrency int
	)

	flag.StringVar(&configPath, "config", "", "Path to TOML config file (default: built-in defaults)")
	flag.StringVar(&configPath, "c", "", "Path to TOML config file (shorthand)")
	flag.StringVar(&outputPath, "output", "", "Output JSON file path (default: stdout)")
	flag.StringVar(&outputPath, "o", "", "Output JSON file path (shorthand)")
	flag.StringVar(&email, "email", "", "Email for SEC User-Agent header (or use SEC_EMAIL env var)")
	flag.StringVar(&email, "e", "", "Email for SEC User-Agent (shorthand)")
	flag.BoolVar(&force, "force", false, "Invalidate cached data before fetching")
	flag.IntVar(&concurrency, "concurrency", 0, "Worker bound for multi-ticker runs (default: config value)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: fundamentals [options] <ticker> [ticker...]\n\n")
		fmt.Fprintf(os.Stderr, "Fetch SEC filings and emit normalized fundamentals reports as JSON.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  fundamentals AAPL\n")
		fmt.Fprintf(os.Stderr, "  fundamentals -o reports.json AAPL MSFT NVDA\n")
		fmt.Fprintf(os.Stderr, "  fundamentals -c engine.toml -force AAPL\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment:\n")
		fmt.Fprintf(os.Stderr, "  SEC_EMAIL    Email for SEC User-Agent header (required)\n")
	}

	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Error: at least one ticker required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	if err := run(configPath, outputPath, email, force, concurrency, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, outputPath, email string, force bool, concurrency int, tickers []string) error {
	// Optional .env for SEC_EMAIL and friends; absence is fine.
	_ = godotenv.Load()

	cfg, err := fundamentals.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if email != "" {
		cfg.Provider.Email = email
	}
	if cfg.Provider.Email == "" {
		return fmt.Errorf("SEC contact email required: pass -email or set SEC_EMAIL")
	}

	log, err := fundamentals.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer log.Sync()

	client := fundamentals.NewEDGARClient(cfg.Provider, log)
	resolver := fundamentals.NewTickerResolver(client, cfg.Provider, log)
	ingestor := fundamentals.NewIngestor(client, resolver, cfg.Provider, log)

	cache, err := fundamentals.OpenFactCache(cfg.Cache, log)
	if err != nil {
		return err
	}
	defer cache.Close()

	svc := fundamentals.NewService(ingestor, cache, cfg, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var payload any
	if len(tickers) == 1 && !force {
		report, err := svc.GetFundamentals(ctx, tickers[0])
		if err != nil {
			return err
		}
		payload = report
	} else {
		result, err := svc.RefreshBatch(ctx, fundamentals.BatchOptions{
			Tickers:     tickers,
			Concurrency: concurrency,
			Force:       force,
		})
		if result == nil {
			return err
		}
		payload = batchOutput(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: run interrupted, emitting %d completed reports\n", result.Succeeded)
		}
	}

	return writeJSON(outputPath, payload)
}

// batchOutput flattens a batch result for JSON output, rendering errors as
// strings.
func batchOutput(result *fundamentals.BatchResult) map[string]any {
	reports := make(map[string]*fundamentals.FundamentalsReport)
	failures := make(map[string]string)
	for _, tr := range result.Results {
		if tr.Err != nil {
			failures[tr.Ticker] = tr.Err.Error()
			continue
		}
		reports[tr.Ticker] = tr.Report
	}
	return map[string]any{
		"jobId":     result.JobID,
		"requested": result.Requested,
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
		"reports":   reports,
		"failures":  failures,
	}
}

func writeJSON(path string, v any) error {
	out := os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

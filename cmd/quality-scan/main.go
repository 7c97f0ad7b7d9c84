package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"

	fundamentals "github.com/RxDataLab/go-fundamentals"
)

func main() {
	var (
		configPath   string
		email        string
		showWarnings bool
		concurrency  int
	)

	flag.StringVar(&configPath, "config", "", "Path to TOML config file (default: built-in defaults)")
	flag.StringVar(&configPath, "c", "", "Path to TOML config file (shorthand)")
	flag.StringVar(&email, "email", "", "Email for SEC User-Agent header (or use SEC_EMAIL env var)")
	flag.StringVar(&email, "e", "", "Email for SEC User-Agent (shorthand)")
	flag.BoolVar(&showWarnings, "warnings", false, "Print data-quality warnings under each ticker")
	flag.BoolVar(&showWarnings, "w", false, "Print data-quality warnings (shorthand)")
	flag.IntVar(&concurrency, "concurrency", 0, "Worker bound (default: config value)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: quality-scan [options] <ticker> [ticker...]\n\n")
		fmt.Fprintf(os.Stderr, "Score SEC filing data quality for a set of tickers.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  quality-scan AAPL MSFT NVDA\n")
		fmt.Fprintf(os.Stderr, "  quality-scan -w BRK-B\n")
	}

	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Error: at least one ticker required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	if err := run(configPath, email, showWarnings, concurrency, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, email string, showWarnings bool, concurrency int, tickers []string) error {
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

	result, err := svc.RefreshBatch(ctx, fundamentals.BatchOptions{
		Tickers:     tickers,
		Concurrency: concurrency,
	})
	if result == nil {
		return err
	}

	sort.Slice(result.Results, func(i, j int) bool {
		return result.Results[i].Ticker < result.Results[j].Ticker
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TICKER\tGRADE\tOVERALL\tCOMPLETE\tFRESH\tGRANULAR")
	for _, tr := range result.Results {
		if tr.Err != nil {
			fmt.Fprintf(w, "%s\t-\terror: %v\t\t\t\n", tr.Ticker, tr.Err)
			continue
		}
		q := tr.Report.Quality
		fmt.Fprintf(w, "%s\t%s\t%.1f\t%.1f\t%.1f\t%.1f\n",
			tr.Ticker, q.Grade, q.OverallScore,
			q.CompletenessScore, q.FreshnessScore, q.DataQualityScore)
	}
	w.Flush()

	if showWarnings {
		for _, tr := range result.Results {
			if tr.Err != nil || len(tr.Report.Warnings) == 0 {
				continue
			}
			fmt.Printf("\n%s:\n", tr.Ticker)
			for _, warn := range tr.Report.Warnings {
				if warn.Metric != "" {
					fmt.Printf("  [%s] %s: %s\n", warn.Severity, warn.Metric, warn.Message)
				} else {
					fmt.Printf("  [%s] %s\n", warn.Severity, warn.Message)
				}
			}
		}
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: run interrupted after %d tickers\n", len(result.Results))
	}
	return nil
}

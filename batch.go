package fundamentals

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BatchOptions configures a multi-ticker refresh run.
type BatchOptions struct {
	Tickers     []string // Required: tickers to refresh
	Concurrency int      // Optional: worker bound, 0 uses the configured default
	Force       bool     // If true, invalidate cached entries before refreshing
}

// TickerResult is the per-ticker outcome of a batch run.
type TickerResult struct {
	Ticker  string
	Report  *FundamentalsReport
	Err     error
	Elapsed time.Duration
}

// BatchResult is the aggregate outcome of a batch refresh. Results for
// tickers completed before a cancellation are preserved.
type BatchResult struct {
	JobID     string
	Requested int
	Succeeded int
	Failed    int
	Results   []TickerResult
	Elapsed   time.Duration
}

// RefreshBatch builds reports for many tickers with a bounded worker pool.
// One ticker's failure never aborts the others; cancellation stops scheduling
// new tickers but keeps every result gathered so far. The returned error is
// only the context's, so callers can distinguish a cancelled run from one
// that merely had failing tickers.
func (s *Service) RefreshBatch(ctx context.Context, opts BatchOptions) (*BatchResult, error) {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = s.cfg.Workers.Concurrency
	}

	result := &BatchResult{
		JobID:     uuid.NewString(),
		Requested: len(opts.Tickers),
		Results:   make([]TickerResult, 0, len(opts.Tickers)),
	}
	start := time.Now()

	s.log.Info("batch refresh started",
		zap.String("jobID", result.JobID),
		zap.Int("tickers", len(opts.Tickers)),
		zap.Int("concurrency", concurrency))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, ticker := range opts.Tickers {
		if gctx.Err() != nil {
			break
		}
		ticker := ticker
		g.Go(func() error {
			tr := TickerResult{Ticker: ticker}
			tickStart := time.Now()

			if opts.Force {
				if err := s.Invalidate(ticker); err != nil {
					s.log.Warn("batch invalidate failed",
						zap.String("ticker", ticker), zap.Error(err))
				}
			}
			tr.Report, tr.Err = s.GetFundamentals(gctx, ticker)
			tr.Elapsed = time.Since(tickStart)

			mu.Lock()
			result.Results = append(result.Results, tr)
			if tr.Err != nil {
				result.Failed++
			} else {
				result.Succeeded++
			}
			mu.Unlock()

			if tr.Err != nil && !errors.Is(tr.Err, context.Canceled) {
				s.log.Warn("batch ticker failed",
					zap.String("jobID", result.JobID),
					zap.String("ticker", ticker),
					zap.Error(tr.Err))
			}
			return nil
		})
	}

	_ = g.Wait()
	result.Elapsed = time.Since(start)

	s.log.Info("batch refresh finished",
		zap.String("jobID", result.JobID),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Duration("elapsed", result.Elapsed))

	return result, ctx.Err()
}

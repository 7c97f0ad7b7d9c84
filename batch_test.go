package fundamentals

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newBatchService(t *testing.T, provider FactsProvider, tickers ...string) *Service {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Provider = fastRetryConfig()

	table := make(map[string]string, len(tickers))
	for i, ticker := range tickers {
		table[ticker] = PadCIK(i + 1)
	}
	resolver := &StaticResolver{Table: table}

	ing := NewIngestor(provider, resolver, cfg.Provider, zap.NewNop())
	return NewService(ing, openTestCache(t), cfg, zap.NewNop())
}

func TestBatch_RefreshesAllTickers(t *testing.T) {
	provider := &fakeProvider{payload: richPayload()}
	svc := newBatchService(t, provider, "AAA", "BBB", "CCC")

	result, err := svc.RefreshBatch(context.Background(), BatchOptions{
		Tickers: []string{"AAA", "BBB", "CCC"},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, result.JobID)
	assert.Equal(t, 3, result.Requested)
	assert.Equal(t, 3, result.Succeeded)
	assert.Zero(t, result.Failed)
	require.Len(t, result.Results, 3)
	for _, tr := range result.Results {
		assert.NoError(t, tr.Err)
		require.NotNil(t, tr.Report)
	}
}

func TestBatch_OneFailureDoesNotAbortOthers(t *testing.T) {
	provider := &fakeProvider{payload: richPayload()}
	svc := newBatchService(t, provider, "AAA", "BBB")

	result, err := svc.RefreshBatch(context.Background(), BatchOptions{
		Tickers: []string{"AAA", "ZZZZ123", "BBB"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Failed)

	for _, tr := range result.Results {
		if tr.Ticker == "ZZZZ123" {
			assert.True(t, errors.Is(tr.Err, ErrUnknownTicker))
		} else {
			assert.NoError(t, tr.Err)
		}
	}
}

func TestBatch_CancelledContextPreservesResults(t *testing.T) {
	provider := &fakeProvider{payload: richPayload()}
	svc := newBatchService(t, provider, "AAA", "BBB")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := svc.RefreshBatch(ctx, BatchOptions{Tickers: []string{"AAA", "BBB"}})
	assert.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, result)
	assert.Equal(t, 2, result.Requested)
	// Nothing scheduled after cancellation succeeds, but the result set and
	// job metadata still come back.
	assert.Equal(t, result.Succeeded+result.Failed, len(result.Results))
}

func TestBatch_ForceInvalidatesCache(t *testing.T) {
	provider := &fakeProvider{payload: richPayload()}
	svc := newBatchService(t, provider, "AAA")

	_, err := svc.GetFundamentals(context.Background(), "AAA")
	require.NoError(t, err)
	require.Equal(t, int64(1), provider.calls.Load())

	result, err := svc.RefreshBatch(context.Background(), BatchOptions{
		Tickers: []string{"AAA"},
		Force:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, int64(2), provider.calls.Load(), "force must bypass the cache")
}

func TestBatch_DefaultConcurrencyFromConfig(t *testing.T) {
	provider := &fakeProvider{payload: richPayload()}
	svc := newBatchService(t, provider, "AAA")

	result, err := svc.RefreshBatch(context.Background(), BatchOptions{
		Tickers:     []string{"AAA"},
		Concurrency: 0,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
}

package fundamentals

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeProvider serves scripted responses and counts calls.
type fakeProvider struct {
	calls   atomic.Int64
	payload *CompanyFactsPayload
	errs    []error // consumed one per call before payload is served
	delay   time.Duration
}

func (p *fakeProvider) CompanyFacts(ctx context.Context, cik string) (*CompanyFactsPayload, error) {
	n := p.calls.Add(1)
	if p.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.delay):
		}
	}
	if int(n) <= len(p.errs) {
		return nil, p.errs[n-1]
	}
	if p.payload == nil {
		return nil, ErrNoUsableData
	}
	return p.payload, nil
}

func fastRetryConfig() ProviderConfig {
	cfg := DefaultConfig().Provider
	cfg.Email = "test@example.com"
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	return cfg
}

func testResolver() *StaticResolver {
	return &StaticResolver{Table: map[string]string{"TEST": "0000000001"}}
}

func simplePayload() *CompanyFactsPayload {
	return &CompanyFactsPayload{
		CIK:        1,
		EntityName: "Test Corp",
		Facts: map[string]map[string]TagFacts{
			"us-gaap": {
				"Revenues": {
					Units: map[string][]FactEntry{
						"USD": {
							{Start: "2024-01-01", End: "2024-03-31", Val: "100", FY: 2024, FP: "Q1", Form: "10-Q", Filed: "2024-05-01"},
							{Start: "2024-01-01", End: "2024-12-31", Val: "460", FY: 2024, FP: "FY", Form: "10-K", Filed: "2025-02-15"},
						},
					},
				},
			},
		},
	}
}

func TestIngest_HappyPath(t *testing.T) {
	provider := &fakeProvider{payload: simplePayload()}
	ing := NewIngestor(provider, testResolver(), fastRetryConfig(), zap.NewNop())

	set, err := ing.FetchCompanyFacts(context.Background(), "TEST")
	require.NoError(t, err)

	assert.Equal(t, "TEST", set.Ticker)
	assert.Equal(t, "0000000001", set.CIK)
	assert.Equal(t, "Test Corp", set.CompanyName)
	assert.Zero(t, set.Dropped)
	require.Len(t, set.Facts["Revenues"], 2)

	fact := set.Facts["Revenues"][0]
	assert.Equal(t, 100.0, fact.Value)
	assert.Equal(t, "10-Q", fact.FormType)
	assert.Equal(t, day("2024-03-31"), fact.PeriodEnd)
	assert.False(t, set.FetchedAt.IsZero())
}

func TestIngest_UnknownTicker(t *testing.T) {
	provider := &fakeProvider{payload: simplePayload()}
	ing := NewIngestor(provider, testResolver(), fastRetryConfig(), zap.NewNop())

	_, err := ing.FetchCompanyFacts(context.Background(), "ZZZZ123")
	assert.True(t, errors.Is(err, ErrUnknownTicker))
	assert.Zero(t, provider.calls.Load(), "provider must not be called for unknown tickers")
}

func TestIngest_RetriesTransientFailures(t *testing.T) {
	provider := &fakeProvider{
		payload: simplePayload(),
		errs:    []error{ErrUpstreamUnavailable, &RateLimitError{RetryAfter: time.Millisecond}},
	}
	ing := NewIngestor(provider, testResolver(), fastRetryConfig(), zap.NewNop())

	set, err := ing.FetchCompanyFacts(context.Background(), "TEST")
	require.NoError(t, err)
	assert.Equal(t, int64(3), provider.calls.Load())
	assert.NotNil(t, set)
}

func TestIngest_RetriesExhausted(t *testing.T) {
	provider := &fakeProvider{
		errs: []error{
			ErrUpstreamUnavailable, ErrUpstreamUnavailable,
			ErrUpstreamUnavailable, ErrUpstreamUnavailable,
		},
	}
	ing := NewIngestor(provider, testResolver(), fastRetryConfig(), zap.NewNop())

	_, err := ing.FetchCompanyFacts(context.Background(), "TEST")
	assert.True(t, errors.Is(err, ErrUpstreamUnavailable))
	// initial attempt + MaxRetries
	assert.Equal(t, int64(4), provider.calls.Load())
}

func TestIngest_NonRetryableFailsFast(t *testing.T) {
	provider := &fakeProvider{errs: []error{ErrNoUsableData}}
	ing := NewIngestor(provider, testResolver(), fastRetryConfig(), zap.NewNop())

	_, err := ing.FetchCompanyFacts(context.Background(), "TEST")
	assert.True(t, errors.Is(err, ErrNoUsableData))
	assert.Equal(t, int64(1), provider.calls.Load())
}

func TestIngest_CancelledDuringBackoff(t *testing.T) {
	cfg := fastRetryConfig()
	cfg.InitialBackoff = time.Minute

	provider := &fakeProvider{errs: []error{ErrUpstreamUnavailable, ErrUpstreamUnavailable}}
	ing := NewIngestor(provider, testResolver(), cfg, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := ing.FetchCompanyFacts(ctx, "TEST")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, int64(1), provider.calls.Load())
}

func TestIngest_DropsMalformedEntries(t *testing.T) {
	payload := simplePayload()
	payload.Facts["us-gaap"]["NetIncomeLoss"] = TagFacts{
		Units: map[string][]FactEntry{
			"USD": {
				{Start: "2024-01-01", End: "not-a-date", Val: "50", Form: "10-Q", Filed: "2024-05-01"},
				{Start: "2024-01-01", End: "2024-03-31", Val: "fifty", Form: "10-Q", Filed: "2024-05-01"},
				{Start: "2024-03-31", End: "2024-01-01", Val: "50", Form: "10-Q", Filed: "2024-05-01"}, // inverted period
				{End: "2024-03-31", Val: "50", Form: "10-Q"},                                           // missing filed date
				{Start: "2024-01-01", End: "2024-03-31", Val: "50", Form: "10-Q", Filed: "2024-05-01"},
			},
		},
	}

	provider := &fakeProvider{payload: payload}
	ing := NewIngestor(provider, testResolver(), fastRetryConfig(), zap.NewNop())

	set, err := ing.FetchCompanyFacts(context.Background(), "TEST")
	require.NoError(t, err)

	assert.Equal(t, 4, set.Dropped)
	require.Len(t, set.Facts["NetIncomeLoss"], 1)
	assert.Equal(t, 50.0, set.Facts["NetIncomeLoss"][0].Value)
}

func TestIngest_SkipsNonFinancialForms(t *testing.T) {
	payload := simplePayload()
	payload.Facts["us-gaap"]["Revenues"] = TagFacts{
		Units: map[string][]FactEntry{
			"USD": {
				{Start: "2024-01-01", End: "2024-03-31", Val: "100", Form: "8-K", Filed: "2024-04-10"},
				{Start: "2024-01-01", End: "2024-03-31", Val: "100", Form: "10-Q", Filed: "2024-05-01"},
				{Start: "2024-01-01", End: "2024-03-31", Val: "101", Form: "10-Q/A", Filed: "2024-06-01"},
			},
		},
	}

	provider := &fakeProvider{payload: payload}
	ing := NewIngestor(provider, testResolver(), fastRetryConfig(), zap.NewNop())

	set, err := ing.FetchCompanyFacts(context.Background(), "TEST")
	require.NoError(t, err)

	// The 8-K entry is skipped silently, not counted as malformed.
	assert.Zero(t, set.Dropped)
	assert.Len(t, set.Facts["Revenues"], 2)
}

// namedResolver is a static resolver that also knows index titles.
type namedResolver struct {
	StaticResolver
	names map[string]string
}

func (r *namedResolver) CompanyName(_ context.Context, ticker string) string {
	return r.names[strings.ToUpper(strings.TrimSpace(ticker))]
}

func TestIngest_FallsBackToIndexCompanyName(t *testing.T) {
	payload := simplePayload()
	payload.EntityName = ""

	resolver := &namedResolver{
		StaticResolver: StaticResolver{Table: map[string]string{"TEST": "0000000001"}},
		names:          map[string]string{"TEST": "Test Corp (Index)"},
	}
	ing := NewIngestor(&fakeProvider{payload: payload}, resolver, fastRetryConfig(), zap.NewNop())

	set, err := ing.FetchCompanyFacts(context.Background(), "TEST")
	require.NoError(t, err)
	assert.Equal(t, "Test Corp (Index)", set.CompanyName)
}

func TestIngest_ProviderNameWins(t *testing.T) {
	resolver := &namedResolver{
		StaticResolver: StaticResolver{Table: map[string]string{"TEST": "0000000001"}},
		names:          map[string]string{"TEST": "Test Corp (Index)"},
	}
	ing := NewIngestor(&fakeProvider{payload: simplePayload()}, resolver, fastRetryConfig(), zap.NewNop())

	set, err := ing.FetchCompanyFacts(context.Background(), "TEST")
	require.NoError(t, err)
	assert.Equal(t, "Test Corp", set.CompanyName)
}

func TestIngest_InstantFactsKeepZeroStart(t *testing.T) {
	payload := simplePayload()
	payload.Facts["us-gaap"]["Assets"] = TagFacts{
		Units: map[string][]FactEntry{
			"USD": {
				{End: "2024-03-31", Val: "5000", Form: "10-Q", Filed: "2024-05-01"},
			},
		},
	}

	provider := &fakeProvider{payload: payload}
	ing := NewIngestor(provider, testResolver(), fastRetryConfig(), zap.NewNop())

	set, err := ing.FetchCompanyFacts(context.Background(), "TEST")
	require.NoError(t, err)

	require.Len(t, set.Facts["Assets"], 1)
	assert.True(t, set.Facts["Assets"][0].IsInstant())
}

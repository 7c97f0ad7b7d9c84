package fundamentals

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Forms the pipeline ingests. Everything else (8-K, S-1, proxies) carries no
// comparable financial facts and is skipped at ingestion.
var ingestedForms = map[string]bool{
	"10-K":   true,
	"10-K/A": true,
	"10-Q":   true,
	"10-Q/A": true,
}

// Ingestor turns a raw provider payload into a normalized RawFactSet,
// retrying transient upstream failures with exponential backoff.
type Ingestor struct {
	provider FactsProvider
	resolver Resolver
	cfg      ProviderConfig
	log      *zap.Logger
}

// NewIngestor builds an ingestor from its dependencies.
func NewIngestor(provider FactsProvider, resolver Resolver, cfg ProviderConfig, log *zap.Logger) *Ingestor {
	return &Ingestor{provider: provider, resolver: resolver, cfg: cfg, log: log}
}

// FetchCompanyFacts resolves a ticker and ingests its company facts.
// Unknown tickers fail immediately with ErrUnknownTicker; transient provider
// failures are retried up to MaxRetries before the error is surfaced.
func (ing *Ingestor) FetchCompanyFacts(ctx context.Context, ticker string) (*RawFactSet, error) {
	cik, err := ing.resolver.Resolve(ctx, ticker)
	if err != nil {
		return nil, err
	}

	payload, err := ing.fetchWithRetry(ctx, cik)
	if err != nil {
		return nil, err
	}

	set := ing.normalize(ticker, cik, payload)
	if set.CompanyName == "" {
		if namer, ok := ing.resolver.(CompanyNamer); ok {
			set.CompanyName = namer.CompanyName(ctx, ticker)
		}
	}
	return set, nil
}

// fetchWithRetry calls the provider with exponential backoff. A Retry-After
// hint from the server extends the computed backoff when it is longer.
func (ing *Ingestor) fetchWithRetry(ctx context.Context, cik string) (*CompanyFactsPayload, error) {
	backoff := ing.cfg.InitialBackoff

	var lastErr error
	for attempt := 0; attempt <= ing.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := backoff
			if hint := retryAfterHint(lastErr); hint > wait {
				wait = hint
			}
			ing.log.Debug("retrying company facts fetch",
				zap.String("cik", cik),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait))
			if err := sleepCtx(ctx, wait); err != nil {
				return nil, err
			}
			backoff *= 2
			if backoff > ing.cfg.MaxBackoff {
				backoff = ing.cfg.MaxBackoff
			}
		}

		payload, err := ing.provider.CompanyFacts(ctx, cik)
		if err == nil {
			return payload, nil
		}
		if !IsRetryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, eris.Wrapf(lastErr, "ingest: retries exhausted for CIK %s", cik)
}

// normalize flattens the provider payload into a RawFactSet, dropping
// individual malformed entries rather than failing the whole ingestion.
func (ing *Ingestor) normalize(ticker, cik string, payload *CompanyFactsPayload) *RawFactSet {
	set := &RawFactSet{
		Ticker:      ticker,
		CIK:         cik,
		CompanyName: payload.EntityName,
		Facts:       make(map[string][]RawFact),
		FetchedAt:   time.Now().UTC(),
	}

	for _, tags := range payload.Facts {
		for tag, tagFacts := range tags {
			for unit, entries := range tagFacts.Units {
				for _, entry := range entries {
					fact, err := normalizeEntry(tag, unit, entry)
					if err != nil {
						set.Dropped++
						ing.log.Debug("dropped malformed fact entry",
							zap.String("ticker", ticker),
							zap.String("tag", tag),
							zap.Error(err))
						continue
					}
					if fact == nil {
						continue // unusable form, not malformed
					}
					set.Facts[tag] = append(set.Facts[tag], *fact)
				}
			}
		}
	}
	return set
}

// normalizeEntry converts one wire entry into a RawFact. A nil, nil return
// means the entry is well-formed but from a form the pipeline ignores.
func normalizeEntry(tag, unit string, entry FactEntry) (*RawFact, error) {
	if !ingestedForms[entry.Form] {
		return nil, nil
	}
	if entry.End == "" || entry.Filed == "" {
		return nil, eris.Wrap(ErrMalformedPayload, "missing period end or filed date")
	}

	end, err := time.Parse("2006-01-02", entry.End)
	if err != nil {
		return nil, eris.Wrapf(ErrMalformedPayload, "period end %q", entry.End)
	}
	filed, err := time.Parse("2006-01-02", entry.Filed)
	if err != nil {
		return nil, eris.Wrapf(ErrMalformedPayload, "filed date %q", entry.Filed)
	}

	var start time.Time
	if entry.Start != "" {
		start, err = time.Parse("2006-01-02", entry.Start)
		if err != nil {
			return nil, eris.Wrapf(ErrMalformedPayload, "period start %q", entry.Start)
		}
		if !start.Before(end) {
			return nil, eris.Wrapf(ErrMalformedPayload, "period start %s not before end %s", entry.Start, entry.End)
		}
	}

	value, err := entry.Val.Float64()
	if err != nil {
		return nil, eris.Wrapf(ErrMalformedPayload, "value %q", entry.Val.String())
	}

	return &RawFact{
		Concept:      tag,
		Unit:         unit,
		Value:        value,
		PeriodStart:  start,
		PeriodEnd:    end,
		FiledDate:    filed,
		FormType:     entry.Form,
		FiscalYear:   entry.FY,
		FiscalPeriod: entry.FP,
	}, nil
}

// sleepCtx blocks for d or until the context is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

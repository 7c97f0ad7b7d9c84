package fundamentals

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Service is the public entry point of the fundamentals engine. It wires the
// ingestor, the read-through cache, and the normalization pipeline behind
// three operations: full reports, quality reports, and warning listings.
// Safe for concurrent use; concurrent misses for the same ticker coalesce
// into a single upstream fetch.
type Service struct {
	ingestor *Ingestor
	cache    *FactCache
	cfg      *Config
	log      *zap.Logger
	group    singleflight.Group
	now      func() time.Time
}

// NewService builds a service from its dependencies.
func NewService(ingestor *Ingestor, cache *FactCache, cfg *Config, log *zap.Logger) *Service {
	return &Service{
		ingestor: ingestor,
		cache:    cache,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// GetFundamentals returns the full normalized report for a ticker: classified
// series, growth metrics, quality grade, and warnings. ErrUnknownTicker is
// the only per-ticker failure a caller needs to branch on; transient upstream
// trouble is retried and, when a cached fact set exists, degrades into a
// stale report instead of an error.
func (s *Service) GetFundamentals(ctx context.Context, ticker string) (*FundamentalsReport, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))

	set, degraded, err := s.factSet(ctx, ticker)
	if err != nil {
		return nil, err
	}

	report := BuildReport(set, s.cfg, s.now)
	if degraded {
		report.Degraded = true
		report.Warnings = append(report.Warnings, Warning{
			Code:     WarnDegraded,
			Message:  "upstream unavailable, report built from stale cached data",
			Severity: SeverityWarning,
		})
	}
	return report, nil
}

// GetQualityReport returns just the quality scores and grade for a ticker.
func (s *Service) GetQualityReport(ctx context.Context, ticker string) (*QualityReport, error) {
	report, err := s.GetFundamentals(ctx, ticker)
	if err != nil {
		return nil, err
	}
	return &report.Quality, nil
}

// ListDataQualityWarnings returns the warnings a full report would carry,
// without the series payload.
func (s *Service) ListDataQualityWarnings(ctx context.Context, ticker string) ([]Warning, error) {
	report, err := s.GetFundamentals(ctx, ticker)
	if err != nil {
		return nil, err
	}
	return report.Warnings, nil
}

// Invalidate drops a ticker's cached fact set so the next request refetches.
func (s *Service) Invalidate(ticker string) error {
	return s.cache.Invalidate(strings.ToUpper(strings.TrimSpace(ticker)))
}

// factSet returns the fact set to build a report from, preferring a fresh
// cache entry, then a live fetch, then a stale cache entry flagged as
// degraded.
func (s *Service) factSet(ctx context.Context, ticker string) (*RawFactSet, bool, error) {
	cached, hit, err := s.cache.Get(ticker)
	if err != nil {
		s.log.Warn("cache read failed", zap.String("ticker", ticker), zap.Error(err))
	}
	if hit && s.isFresh(cached) {
		return cached, false, nil
	}

	set, err := s.fetchShared(ctx, ticker)
	if err == nil {
		return set, false, nil
	}
	if errors.Is(err, ErrUnknownTicker) {
		return nil, false, err
	}
	if errors.Is(err, ErrNoUsableData) {
		// Ticker resolved but the provider has nothing for it; score what we
		// have (nothing) instead of failing the call.
		return &RawFactSet{
			Ticker:    ticker,
			Facts:     map[string][]RawFact{},
			FetchedAt: s.now().UTC(),
		}, false, nil
	}
	if hit {
		s.log.Warn("serving stale fact set after fetch failure",
			zap.String("ticker", ticker),
			zap.Time("fetchedAt", cached.FetchedAt),
			zap.Error(err))
		return cached, true, nil
	}
	return nil, false, err
}

// fetchShared coalesces concurrent fetches for the same ticker and stores
// the result in the cache.
func (s *Service) fetchShared(ctx context.Context, ticker string) (*RawFactSet, error) {
	v, err, _ := s.group.Do(ticker, func() (any, error) {
		set, err := s.ingestor.FetchCompanyFacts(ctx, ticker)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Put(set); err != nil {
			s.log.Warn("cache write failed", zap.String("ticker", ticker), zap.Error(err))
		}
		return set, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*RawFactSet), nil
}

func (s *Service) isFresh(set *RawFactSet) bool {
	return s.now().Sub(set.FetchedAt) < s.cfg.Cache.TTL
}

package fundamentals

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Resolver maps a ticker symbol to a zero-padded 10-digit CIK.
type Resolver interface {
	Resolve(ctx context.Context, ticker string) (string, error)
}

// CompanyNamer is implemented by resolvers that can also supply the
// registrant's name. The ingestor uses it as a fallback when the provider
// payload omits the entity name.
type CompanyNamer interface {
	CompanyName(ctx context.Context, ticker string) string
}

// tickerIndexEntry is one row of the SEC company_tickers.json index. The
// document is a JSON object keyed by row number, not an array.
type tickerIndexEntry struct {
	CIK    int    `json:"cik_str"`
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
}

// TickerResolver resolves tickers against the SEC company index, caching the
// full table in memory. The index changes rarely, so it is refreshed at most
// once per TTL; a refresh failure falls back to the previously loaded table.
type TickerResolver struct {
	client *EDGARClient
	url    string
	ttl    time.Duration
	log    *zap.Logger

	mu       sync.RWMutex
	table    map[string]resolvedCompany // ticker -> padded CIK + name
	loadedAt time.Time
}

type resolvedCompany struct {
	CIK  string
	Name string
}

// NewTickerResolver builds a resolver backed by the SEC ticker index.
func NewTickerResolver(client *EDGARClient, cfg ProviderConfig, log *zap.Logger) *TickerResolver {
	return &TickerResolver{
		client: client,
		url:    cfg.TickerIndexURL,
		ttl:    24 * time.Hour,
		log:    log,
	}
}

// Resolve returns the zero-padded CIK for a ticker, loading the index on
// first use. Unknown tickers return ErrUnknownTicker.
func (r *TickerResolver) Resolve(ctx context.Context, ticker string) (string, error) {
	company, err := r.lookup(ctx, ticker)
	if err != nil {
		return "", err
	}
	return company.CIK, nil
}

// CompanyName returns the index title for a ticker, or "" when unknown.
func (r *TickerResolver) CompanyName(ctx context.Context, ticker string) string {
	company, err := r.lookup(ctx, ticker)
	if err != nil {
		return ""
	}
	return company.Name
}

func (r *TickerResolver) lookup(ctx context.Context, ticker string) (resolvedCompany, error) {
	key := strings.ToUpper(strings.TrimSpace(ticker))
	if key == "" {
		return resolvedCompany{}, eris.Wrap(ErrUnknownTicker, "empty ticker")
	}

	r.mu.RLock()
	table := r.table
	fresh := time.Since(r.loadedAt) < r.ttl
	r.mu.RUnlock()

	if table == nil || !fresh {
		refreshed, err := r.refresh(ctx)
		if err != nil {
			if table == nil {
				return resolvedCompany{}, err
			}
			// Stale table beats no table.
			r.log.Warn("ticker index refresh failed, using stale table",
				zap.Error(err))
		} else {
			table = refreshed
		}
	}

	company, ok := table[key]
	if !ok {
		return resolvedCompany{}, eris.Wrapf(ErrUnknownTicker, "ticker %q not in SEC index", key)
	}
	return company, nil
}

// refresh downloads and swaps in a new ticker table.
func (r *TickerResolver) refresh(ctx context.Context) (map[string]resolvedCompany, error) {
	var index map[string]tickerIndexEntry
	if err := r.client.getJSON(ctx, r.url, &index); err != nil {
		return nil, eris.Wrap(err, "tickers: load index")
	}

	table := make(map[string]resolvedCompany, len(index))
	for _, entry := range index {
		if entry.Ticker == "" || entry.CIK <= 0 {
			continue
		}
		table[strings.ToUpper(entry.Ticker)] = resolvedCompany{
			CIK:  PadCIK(entry.CIK),
			Name: entry.Title,
		}
	}
	if len(table) == 0 {
		return nil, eris.Wrap(ErrUpstreamUnavailable, "tickers: index was empty")
	}

	r.mu.Lock()
	r.table = table
	r.loadedAt = time.Now()
	r.mu.Unlock()

	r.log.Debug("ticker index refreshed", zap.Int("companies", len(table)))
	return table, nil
}

// StaticResolver resolves from a fixed ticker table. Used by tests and by
// callers that already know their CIKs.
type StaticResolver struct {
	Table map[string]string // ticker -> padded CIK
}

// Resolve implements Resolver.
func (s *StaticResolver) Resolve(_ context.Context, ticker string) (string, error) {
	key := strings.ToUpper(strings.TrimSpace(ticker))
	cik, ok := s.Table[key]
	if !ok {
		return "", eris.Wrapf(ErrUnknownTicker, "ticker %q not in table", key)
	}
	return cik, nil
}

// PadCIK renders a numeric CIK in the zero-padded 10-digit form the
// companyfacts endpoint expects.
func PadCIK(cik int) string {
	return fmt.Sprintf("%010d", cik)
}

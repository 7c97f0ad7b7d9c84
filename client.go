package fundamentals

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Version is reported in the SEC User-Agent header.
const Version = "0.1.0"

// BuildUserAgent creates the SEC-required User-Agent string. SEC asks for a
// contact email in every automated request.
func BuildUserAgent(email string) string {
	return fmt.Sprintf("go-fundamentals/%s (%s)", Version, email)
}

// CompanyFactsPayload mirrors the SEC companyfacts JSON
// (https://data.sec.gov/api/xbrl/companyfacts/CIK##########.json).
type CompanyFactsPayload struct {
	CIK        int                            `json:"cik"`
	EntityName string                         `json:"entityName"`
	Facts      map[string]map[string]TagFacts `json:"facts"` // taxonomy -> tag -> facts
}

// TagFacts holds every reported value for one XBRL tag, keyed by unit.
type TagFacts struct {
	Label       string                 `json:"label"`
	Description string                 `json:"description"`
	Units       map[string][]FactEntry `json:"units"`
}

// FactEntry is a single reported value as the provider ships it. Values and
// dates stay in wire form here; normalization into RawFact happens in the
// ingestor, where malformed entries are dropped individually.
type FactEntry struct {
	Start string      `json:"start,omitempty"`
	End   string      `json:"end"`
	Val   json.Number `json:"val"`
	Accn  string      `json:"accn"`
	FY    int         `json:"fy"`
	FP    string      `json:"fp"`
	Form  string      `json:"form"`
	Filed string      `json:"filed"`
	Frame string      `json:"frame,omitempty"`
}

// FactsProvider is the consumed upstream interface. Production uses
// EDGARClient; tests inject an in-memory fake.
type FactsProvider interface {
	CompanyFacts(ctx context.Context, cik string) (*CompanyFactsPayload, error)
}

// EDGARClient fetches company facts from SEC EDGAR, honoring the SEC rate
// limit (10 requests/second) and User-Agent conventions. Safe for concurrent
// use.
type EDGARClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	cfg        ProviderConfig
	userAgent  string
	log        *zap.Logger
}

// NewEDGARClient builds the production SEC client from provider config.
func NewEDGARClient(cfg ProviderConfig, log *zap.Logger) *EDGARClient {
	return &EDGARClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1),
		cfg:        cfg,
		userAgent:  BuildUserAgent(cfg.Email),
		log:        log,
	}
}

// CompanyFacts fetches the full companyfacts document for a zero-padded CIK.
func (c *EDGARClient) CompanyFacts(ctx context.Context, cik string) (*CompanyFactsPayload, error) {
	url := fmt.Sprintf("%s/CIK%s.json", c.cfg.BaseURL, cik)
	var payload CompanyFactsPayload
	if err := c.getJSON(ctx, url, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// getJSON performs a rate-limited GET and decodes the JSON body, mapping
// HTTP failures onto the pipeline error taxonomy.
func (c *EDGARClient) getJSON(ctx context.Context, url string, v any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "client: rate limiter")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return eris.Wrapf(err, "client: build request for %s", url)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return eris.Wrapf(ErrUpstreamUnavailable, "client: %v", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusNotFound:
		return eris.Wrapf(ErrNoUsableData, "client: %s returned 404", url)
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode >= 500:
		return eris.Wrapf(ErrUpstreamUnavailable, "client: %s returned status %d", url, resp.StatusCode)
	default:
		return eris.Wrapf(ErrUpstreamUnavailable, "client: %s returned unexpected status %d", url, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return eris.Wrapf(err, "client: decode response from %s", url)
	}
	return nil
}

// parseRetryAfter reads a Retry-After header given in seconds. HTTP-date
// form is rare from SEC and ignored.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

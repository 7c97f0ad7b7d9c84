package fundamentals

import (
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
)

// Error taxonomy for the fundamentals pipeline.
//
// ErrUnknownTicker is the only error surfaced to callers of GetFundamentals;
// everything transient is retried internally and everything else degrades into
// a report with warnings.
var (
	// ErrUnknownTicker means the ticker could not be resolved to a CIK.
	ErrUnknownTicker = eris.New("unknown ticker")

	// ErrUpstreamUnavailable means the data provider failed in a way that is
	// worth retrying (5xx, transport error, timeout).
	ErrUpstreamUnavailable = eris.New("upstream unavailable")

	// ErrMalformedPayload marks an individual fact entry that could not be
	// normalized. It is logged and skipped, never propagated as a failure.
	ErrMalformedPayload = eris.New("malformed payload")

	// ErrNoUsableData means the ticker resolved but the provider returned no
	// facts the engine can use. Callers receive a grade-F report, not this
	// error; it exists for internal signaling and tests.
	ErrNoUsableData = eris.New("no usable data")
)

// RateLimitError reports an HTTP 429 from the provider, carrying the
// Retry-After the server asked for (zero if the header was absent).
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited by provider (retry after %s)", e.RetryAfter)
	}
	return "rate limited by provider"
}

// IsRetryable reports whether the ingestor should retry after err.
func IsRetryable(err error) bool {
	var rl *RateLimitError
	return errors.Is(err, ErrUpstreamUnavailable) || errors.As(err, &rl)
}

// retryAfterHint extracts the server-requested backoff, if any.
func retryAfterHint(err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}

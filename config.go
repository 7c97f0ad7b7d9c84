package fundamentals

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/rotisserie/eris"
)

// Config is the full engine configuration. Zero values are filled in by
// DefaultConfig; Load overlays a TOML file on top of the defaults.
type Config struct {
	Provider   ProviderConfig   `toml:"provider"`
	Cache      CacheConfig      `toml:"cache"`
	Classifier ClassifierConfig `toml:"classifier"`
	Growth     GrowthConfig     `toml:"growth"`
	Workers    WorkersConfig    `toml:"workers"`
	Logging    LoggingConfig    `toml:"logging"`
}

// ProviderConfig controls the upstream SEC client.
type ProviderConfig struct {
	BaseURL        string        `toml:"base_url" validate:"required,url"`
	TickerIndexURL string        `toml:"ticker_index_url" validate:"required,url"`
	Email          string        `toml:"email"` // SEC contact email; SEC_EMAIL env overrides
	Timeout        time.Duration `toml:"timeout" validate:"gt=0"`
	RequestsPerSec float64       `toml:"requests_per_sec" validate:"gt=0"`
	MaxRetries     int           `toml:"max_retries" validate:"gte=0,lte=10"`
	InitialBackoff time.Duration `toml:"initial_backoff" validate:"gt=0"`
	MaxBackoff     time.Duration `toml:"max_backoff" validate:"gt=0"`
}

// CacheConfig controls the read-through fact cache.
type CacheConfig struct {
	Path     string        `toml:"path"`      // badger directory; empty with InMemory=false means ./data/facts
	InMemory bool          `toml:"in_memory"` // ephemeral store, used by tests and one-shot CLI runs
	TTL      time.Duration `toml:"ttl" validate:"gt=0"`
}

// ClassifierConfig holds the period-classification thresholds. The YTD rule
// compares against the company's detected final fiscal-quarter month; the
// override pins it for companies with too little 10-K history to detect.
type ClassifierConfig struct {
	YTDRatioThreshold  float64 `toml:"ytd_ratio_threshold" validate:"gt=1"`
	ExtremeValueRatio  float64 `toml:"extreme_value_ratio" validate:"gt=1"`
	UseDurationHints   bool    `toml:"use_duration_hints"`
	FinalMonthOverride int     `toml:"final_month_override" validate:"gte=0,lte=12"` // 0 = detect
}

// GrowthConfig holds the growth-metric guards.
type GrowthConfig struct {
	FlagCeilingPct float64 `toml:"flag_ceiling_pct" validate:"gt=0"`
}

// WorkersConfig bounds batch refresh concurrency.
type WorkersConfig struct {
	Concurrency int `toml:"concurrency" validate:"gte=1,lte=64"`
}

// LoggingConfig controls the zap logger built by NewLogger.
type LoggingConfig struct {
	Level  string `toml:"level" validate:"oneof=debug info warn error"`
	Format string `toml:"format" validate:"oneof=json console"`
}

// DefaultConfig returns the configuration used when no file is provided.
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			BaseURL:        "https://data.sec.gov/api/xbrl/companyfacts",
			TickerIndexURL: "https://www.sec.gov/files/company_tickers.json",
			Timeout:        10 * time.Second,
			RequestsPerSec: 10, // SEC allows 10 req/s
			MaxRetries:     3,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     8 * time.Second,
		},
		Cache: CacheConfig{
			Path: "data/facts",
			TTL:  24 * time.Hour,
		},
		Classifier: ClassifierConfig{
			YTDRatioThreshold: 8.0,
			ExtremeValueRatio: 100.0,
			UseDurationHints:  true,
		},
		Growth: GrowthConfig{
			FlagCeilingPct: 300,
		},
		Workers: WorkersConfig{
			Concurrency: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig reads a TOML config file over the defaults and validates the
// result. An empty path returns the validated defaults. The SEC_EMAIL
// environment variable overrides provider.email when set.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "config: read %s", path)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, eris.Wrapf(err, "config: parse %s", path)
		}
	}

	if email := os.Getenv("SEC_EMAIL"); email != "" {
		cfg.Provider.Email = email
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against its struct constraints.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return eris.Wrap(err, "config: validation failed")
	}
	return nil
}

// finalFiscalMonth resolves the month used by the YTD rule: the configured
// override when set, otherwise the detected fiscal year-end month.
func (c *ClassifierConfig) finalFiscalMonth(detected time.Month) time.Month {
	if c.FinalMonthOverride >= 1 && c.FinalMonthOverride <= 12 {
		return time.Month(c.FinalMonthOverride)
	}
	return detected
}

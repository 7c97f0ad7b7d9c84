package fundamentals

import (
	"time"
)

// Bucket is the temporal classification of a reported fact.
type Bucket string

const (
	BucketQuarterly   Bucket = "quarterly"   // discrete single-quarter figure
	BucketAnnual      Bucket = "annual"      // full fiscal year figure
	BucketYTD         Bucket = "ytd"         // cumulative year-to-date figure
	BucketPointInTime Bucket = "pointInTime" // balance sheet item as of a date
)

// RawFact is a single reported value from a company's XBRL filings,
// normalized from the provider payload. Immutable once ingested; many facts
// may share a period end (restatements, different forms).
type RawFact struct {
	Concept      string    `json:"concept"`
	Unit         string    `json:"unit"`
	Value        float64   `json:"value"`
	PeriodStart  time.Time `json:"periodStart,omitzero"` // zero for instant facts and sparse filings
	PeriodEnd    time.Time `json:"periodEnd"`
	FiledDate    time.Time `json:"filedDate"`
	FormType     string    `json:"formType"`     // "10-K", "10-Q", amendments keep the suffix
	FiscalYear   int       `json:"fiscalYear"`   // as tagged by the filer
	FiscalPeriod string    `json:"fiscalPeriod"` // "FY", "Q1".."Q4" as tagged by the filer
}

// IsInstant reports whether the fact is a point-in-time (balance sheet) value.
func (f *RawFact) IsInstant() bool {
	return f.PeriodStart.IsZero()
}

// DurationDays returns the covered period length in days, or 0 when the
// period start is unknown.
func (f *RawFact) DurationDays() int {
	if f.PeriodStart.IsZero() || f.PeriodEnd.IsZero() {
		return 0
	}
	return int(f.PeriodEnd.Sub(f.PeriodStart).Hours() / 24)
}

// IsAnnualForm reports whether the fact came from a 10-K or an amendment.
func (f *RawFact) IsAnnualForm() bool {
	return f.FormType == "10-K" || f.FormType == "10-K/A"
}

// IsQuarterlyForm reports whether the fact came from a 10-Q or an amendment.
func (f *RawFact) IsQuarterlyForm() bool {
	return f.FormType == "10-Q" || f.FormType == "10-Q/A"
}

// RawFactSet is everything ingested for one company, keyed by XBRL concept
// tag. This is the unit of caching; classification and scoring are pure
// functions of a RawFactSet.
type RawFactSet struct {
	Ticker      string               `json:"ticker"`
	CIK         string               `json:"cik"`
	CompanyName string               `json:"companyName"`
	Facts       map[string][]RawFact `json:"facts"`
	FetchedAt   time.Time            `json:"fetchedAt"`
	Dropped     int                  `json:"dropped"` // malformed entries skipped during ingestion
}

// ClassifiedFact is a RawFact plus its temporal bucket.
type ClassifiedFact struct {
	RawFact
	Bucket     Bucket  `json:"bucket"`
	Confidence float64 `json:"confidence"` // 0..1
	Reason     string  `json:"reason"`
}

// ConceptSeries holds all classified facts for one (ticker, logical metric).
// Quarterly holds at most one entry per distinct period end, latest filing
// winning; the other buckets keep every classified fact.
type ConceptSeries struct {
	Metric       string           `json:"metric"`  // logical metric name, e.g. "Revenue"
	Concept      string           `json:"concept"` // selected XBRL tag
	All          []ClassifiedFact `json:"all"`
	Quarterly    []ClassifiedFact `json:"quarterly"`
	Annual       []ClassifiedFact `json:"annual"`
	YTD          []ClassifiedFact `json:"ytd"`
	PointInTime  []ClassifiedFact `json:"pointInTime"`
	FiscalMonth  time.Month       `json:"fiscalMonth"`  // detected fiscal year-end month
	ScaleSuspect bool             `json:"scaleSuspect"` // quarterly values span an implausible range
}

// GrowthMetric is a period-over-period comparison between two same-bucket
// entries of a series.
type GrowthMetric struct {
	MetricName     string  `json:"metricName"` // e.g. "Revenue QoQ", "NetIncome YoY"
	CurrentPeriod  string  `json:"currentPeriod"`
	PreviousPeriod string  `json:"previousPeriod"`
	CurrentValue   float64 `json:"currentValue"`
	PreviousValue  float64 `json:"previousValue"`
	GrowthPct      float64 `json:"growthPct"`
	Meaningful     bool    `json:"meaningful"` // false when previous is zero or signs flip
	Flagged        bool    `json:"flagged"`    // true when |growthPct| exceeds the ceiling
}

// QualityReport carries the data-quality sub-scores and composite grade for a
// ticker. Sub-scores are reported individually so consumers can see why a
// ticker scored low.
type QualityReport struct {
	Ticker            string  `json:"ticker"`
	CompanyName       string  `json:"companyName"`
	CompletenessScore float64 `json:"completenessScore"`
	FreshnessScore    float64 `json:"freshnessScore"`
	DataQualityScore  float64 `json:"dataQualityScore"`
	OverallScore      float64 `json:"overallScore"`
	Grade             string  `json:"grade"`
}

// WarningSeverity indicates how much a warning should worry the consumer.
type WarningSeverity string

const (
	SeverityInfo    WarningSeverity = "info"
	SeverityWarning WarningSeverity = "warning"
)

// Warning is a data-quality annotation attached to a report. Warnings are
// always enumerable on the report, never hidden in logs only.
type Warning struct {
	Code     string          `json:"code"`
	Metric   string          `json:"metric,omitempty"`
	Message  string          `json:"message"`
	Severity WarningSeverity `json:"severity"`
}

// Warning codes attached by the pipeline.
const (
	WarnMetricUnavailable = "metric_unavailable"
	WarnNoBaseline        = "no_q1_baseline"
	WarnScaleMismatch     = "possible_scale_mismatch"
	WarnDegraded          = "degraded_fetch"
	WarnDroppedEntries    = "dropped_entries"
	WarnGrowthFlagged     = "growth_flagged"
)

// FundamentalsReport is the per-ticker aggregate the service returns.
type FundamentalsReport struct {
	Ticker      string                   `json:"ticker"`
	CIK         string                   `json:"cik"`
	CompanyName string                   `json:"companyName"`
	Series      map[string]ConceptSeries `json:"series"` // keyed by logical metric
	Growth      []GrowthMetric           `json:"growth"`
	Quality     QualityReport            `json:"quality"`
	Warnings    []Warning                `json:"warnings"`
	GeneratedAt time.Time                `json:"generatedAt"`
	Degraded    bool                     `json:"degraded"` // true when served stale after retry exhaustion
}

// fiscalYearFor returns the fiscal year a period end belongs to, given the
// company's fiscal year-end month. A period ending after the fiscal year-end
// month belongs to the next fiscal year.
func fiscalYearFor(end time.Time, fiscalMonth time.Month) int {
	if end.Month() > fiscalMonth {
		return end.Year() + 1
	}
	return end.Year()
}

// fiscalQuarterFor returns the 1-based fiscal quarter index of a period end
// within the company's fiscal calendar.
func fiscalQuarterFor(end time.Time, fiscalMonth time.Month) int {
	// Months since the fiscal year started, 0-based.
	offset := (int(end.Month()) - int(fiscalMonth) - 1 + 12) % 12
	return offset/3 + 1
}

package fundamentals

import (
	"fmt"
	"math"
	"time"
)

// GrowthCalculator derives period-over-period growth from classified buckets.
// Comparisons never mix bucket types: QoQ only ever sees two quarterly
// entries, YoY matches by relative fiscal position within the same bucket.
type GrowthCalculator struct {
	cfg GrowthConfig
}

// NewGrowthCalculator returns a calculator with the given guards.
func NewGrowthCalculator(cfg GrowthConfig) *GrowthCalculator {
	return &GrowthCalculator{cfg: cfg}
}

// Compute returns the growth metrics derivable from one series: QoQ and YoY
// on the quarterly bucket and YoY on the annual bucket. Point-in-time series
// produce no growth metrics.
func (g *GrowthCalculator) Compute(series ConceptSeries) []GrowthMetric {
	var out []GrowthMetric

	if m, ok := g.quarterOverQuarter(series); ok {
		out = append(out, m)
	}
	if m, ok := g.yearOverYearQuarterly(series); ok {
		out = append(out, m)
	}
	if m, ok := g.yearOverYearAnnual(series); ok {
		out = append(out, m)
	}
	return out
}

// quarterOverQuarter compares the latest quarterly entry to the immediately
// preceding fiscal quarter. A gap in the quarterly history suppresses the
// metric rather than comparing across it.
func (g *GrowthCalculator) quarterOverQuarter(series ConceptSeries) (GrowthMetric, bool) {
	last := series.Query().ByBucket(BucketQuarterly).Latest(2)
	if len(last) < 2 {
		return GrowthMetric{}, false
	}
	prev, cur := last[0], last[1]
	if !adjacentQuarters(prev, cur, series.FiscalMonth) {
		return GrowthMetric{}, false
	}
	m := g.compare(series, cur, prev)
	m.MetricName = series.Metric + " QoQ"
	return m, true
}

// adjacentQuarters reports whether prev is the fiscal quarter immediately
// before cur.
func adjacentQuarters(prev, cur ClassifiedFact, fiscalMonth time.Month) bool {
	curFY := fiscalYearFor(cur.PeriodEnd, fiscalMonth)
	curFQ := fiscalQuarterFor(cur.PeriodEnd, fiscalMonth)
	prevFY := fiscalYearFor(prev.PeriodEnd, fiscalMonth)
	prevFQ := fiscalQuarterFor(prev.PeriodEnd, fiscalMonth)

	if curFQ == 1 {
		return prevFY == curFY-1 && prevFQ == 4
	}
	return prevFY == curFY && prevFQ == curFQ-1
}

// yearOverYearQuarterly compares the latest quarterly entry to the entry in
// the same fiscal quarter one fiscal year earlier, matched by fiscal
// position rather than nearest calendar date.
func (g *GrowthCalculator) yearOverYearQuarterly(series ConceptSeries) (GrowthMetric, bool) {
	cur, err := series.Query().ByBucket(BucketQuarterly).MostRecent()
	if err != nil {
		return GrowthMetric{}, false
	}
	fy := fiscalYearFor(cur.PeriodEnd, series.FiscalMonth)
	fq := fiscalQuarterFor(cur.PeriodEnd, series.FiscalMonth)

	for _, candidate := range series.Query().ByBucket(BucketQuarterly).ForFiscalYear(fy - 1).Get() {
		if fiscalQuarterFor(candidate.PeriodEnd, series.FiscalMonth) != fq {
			continue
		}
		m := g.compare(series, *cur, candidate)
		m.MetricName = series.Metric + " YoY"
		return m, true
	}
	return GrowthMetric{}, false
}

// yearOverYearAnnual compares the latest annual entry to the prior fiscal
// year's annual entry.
func (g *GrowthCalculator) yearOverYearAnnual(series ConceptSeries) (GrowthMetric, bool) {
	cur, err := series.Query().ByBucket(BucketAnnual).MostRecent()
	if err != nil {
		return GrowthMetric{}, false
	}
	fy := fiscalYearFor(cur.PeriodEnd, series.FiscalMonth)

	prevYear := series.Query().ByBucket(BucketAnnual).ForFiscalYear(fy - 1).Get()
	if len(prevYear) == 0 {
		return GrowthMetric{}, false
	}
	m := g.compare(series, *cur, prevYear[len(prevYear)-1])
	m.MetricName = series.Metric + " YoY (FY)"
	return m, true
}

// compare applies the growth formula with its sanity guards. A zero or
// sign-flipped previous value yields meaningful=false rather than an extreme
// number; a value past the ceiling is flagged but still returned.
func (g *GrowthCalculator) compare(series ConceptSeries, cur, prev ClassifiedFact) GrowthMetric {
	m := GrowthMetric{
		CurrentPeriod:  periodLabel(cur, series.FiscalMonth),
		PreviousPeriod: periodLabel(prev, series.FiscalMonth),
		CurrentValue:   cur.Value,
		PreviousValue:  prev.Value,
	}

	if prev.Value == 0 || cur.Value*prev.Value < 0 {
		m.Meaningful = false
		return m
	}

	m.Meaningful = true
	m.GrowthPct = (cur.Value - prev.Value) / math.Abs(prev.Value) * 100
	if math.Abs(m.GrowthPct) > g.cfg.FlagCeilingPct {
		m.Flagged = true
	}
	return m
}

// periodLabel renders a fiscal period for display, e.g. "FY2024 Q3" or
// "FY2024".
func periodLabel(cf ClassifiedFact, fiscalMonth time.Month) string {
	fy := fiscalYearFor(cf.PeriodEnd, fiscalMonth)
	switch cf.Bucket {
	case BucketAnnual:
		return fmt.Sprintf("FY%d", fy)
	case BucketYTD:
		return fmt.Sprintf("FY%d YTD through %s", fy, cf.PeriodEnd.Format("2006-01-02"))
	default:
		return fmt.Sprintf("FY%d Q%d", fy, fiscalQuarterFor(cf.PeriodEnd, fiscalMonth))
	}
}

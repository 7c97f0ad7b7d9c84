package fundamentals

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Duration banding for reported periods, in days. Annual filings cover
// roughly a year, discrete quarters roughly 13 weeks; anything between is a
// cumulative year-to-date span.
const (
	quarterMinDays = 80
	quarterMaxDays = 110
	ytdMinDays     = 120
	annualMinDays  = 300
	annualMaxDays  = 400
)

// Classifier buckets raw facts into quarterly / annual / YTD / point-in-time.
// It is pure: the same selection always produces the same series, and nothing
// here raises a hard error — ambiguity resolves to a best-guess bucket with
// reduced confidence and a warning.
type Classifier struct {
	cfg ClassifierConfig
}

// NewClassifier returns a classifier with the given thresholds.
func NewClassifier(cfg ClassifierConfig) *Classifier {
	return &Classifier{cfg: cfg}
}

// Classify builds the ConceptSeries for one selected concept.
func (c *Classifier) Classify(sel Selection) (ConceptSeries, []Warning) {
	series := ConceptSeries{
		Metric:  sel.Metric,
		Concept: sel.Concept,
	}
	if !sel.Available || len(sel.Facts) == 0 {
		return series, nil
	}

	facts := make([]RawFact, len(sel.Facts))
	copy(facts, sel.Facts)
	sortFacts(facts)

	series.FiscalMonth = c.detectFiscalMonth(facts)

	var warnings []Warning
	if sel.PeriodType == PeriodInstant {
		c.classifyInstant(&series, facts)
	} else {
		warnings = c.classifyDuration(&series, facts)
	}

	if w, flagged := c.extremeValueCheck(series.Quarterly); flagged {
		w.Metric = sel.Metric
		series.ScaleSuspect = true
		warnings = append(warnings, w)
	}
	return series, warnings
}

// detectFiscalMonth finds the fiscal year-end month as the period-end month
// that recurs across the company's 10-K filings. Companies without 10-K
// history default to December.
func (c *Classifier) detectFiscalMonth(facts []RawFact) time.Month {
	counts := make(map[time.Month]int)
	for _, f := range facts {
		if !f.IsAnnualForm() {
			continue
		}
		days := f.DurationDays()
		if days != 0 && (days < annualMinDays || days > annualMaxDays) {
			continue
		}
		counts[f.PeriodEnd.Month()]++
	}

	best := time.December
	bestCount := 0
	for m := time.January; m <= time.December; m++ {
		if counts[m] > bestCount {
			best, bestCount = m, counts[m]
		}
	}
	return best
}

// classifyInstant marks every fact as point-in-time. Balance sheet items
// bypass bucket inference entirely.
func (c *Classifier) classifyInstant(series *ConceptSeries, facts []RawFact) {
	for _, f := range facts {
		cf := ClassifiedFact{
			RawFact:    f,
			Bucket:     BucketPointInTime,
			Confidence: 1.0,
			Reason:     fmt.Sprintf("instant concept, balance as of %s", f.PeriodEnd.Format("2006-01-02")),
		}
		series.All = append(series.All, cf)
	}
	series.PointInTime = dedupeByPeriodEnd(series.All)
}

// classifyDuration implements the bucket inference procedure for income and
// cash-flow concepts.
func (c *Classifier) classifyDuration(series *ConceptSeries, facts []RawFact) []Warning {
	finalMonth := c.cfg.finalFiscalMonth(series.FiscalMonth)
	baselines := c.findQ1Baselines(facts, series.FiscalMonth)

	var warnings []Warning
	missingBaseline := make(map[int]bool)

	for _, f := range facts {
		cf := c.classifyOne(f, series.FiscalMonth, finalMonth, baselines)

		if cf.Bucket == BucketQuarterly && cf.Confidence <= noBaselineConfidence {
			fy := fiscalYearFor(f.PeriodEnd, series.FiscalMonth)
			if !missingBaseline[fy] {
				missingBaseline[fy] = true
				warnings = append(warnings, Warning{
					Code:     WarnNoBaseline,
					Metric:   series.Metric,
					Message:  fmt.Sprintf("no Q1 baseline for fiscal %d; quarters classified at reduced confidence", fy),
					Severity: SeverityWarning,
				})
			}
		}
		series.All = append(series.All, cf)
	}

	for _, cf := range series.All {
		switch cf.Bucket {
		case BucketAnnual:
			series.Annual = append(series.Annual, cf)
		case BucketYTD:
			series.YTD = append(series.YTD, cf)
		}
	}

	var quarterly []ClassifiedFact
	for _, cf := range series.All {
		if cf.Bucket == BucketQuarterly {
			quarterly = append(quarterly, cf)
		}
	}
	series.Quarterly = dedupeByPeriodEnd(quarterly)
	series.Annual = dedupeByPeriodEnd(series.Annual)
	return warnings
}

const noBaselineConfidence = 0.5

// classifyOne assigns a bucket to a single duration fact.
func (c *Classifier) classifyOne(f RawFact, fiscalMonth, finalMonth time.Month, baselines map[int]float64) ClassifiedFact {
	cf := ClassifiedFact{RawFact: f}
	end := f.PeriodEnd.Format("2006-01-02")

	if f.IsAnnualForm() {
		cf.Bucket = BucketAnnual
		cf.Confidence = 0.95
		cf.Reason = fmt.Sprintf("reported on %s for period ending %s", f.FormType, end)
		return cf
	}

	// Period start, when the provider supplied one, settles cumulative vs
	// discrete without heuristics.
	if c.cfg.UseDurationHints {
		if days := f.DurationDays(); days >= ytdMinDays {
			cf.Bucket = BucketYTD
			cf.Confidence = 0.9
			cf.Reason = fmt.Sprintf("period spans %d days, cumulative year-to-date", days)
			return cf
		}
	}

	fy := fiscalYearFor(f.PeriodEnd, fiscalMonth)
	fq := fiscalQuarterFor(f.PeriodEnd, fiscalMonth)

	if fq == 1 {
		cf.Bucket = BucketQuarterly
		cf.Confidence = 0.95
		cf.Reason = fmt.Sprintf("first fiscal quarter of %d, baseline for the year", fy)
		return cf
	}

	baseline, ok := baselines[fy]
	if !ok || baseline == 0 {
		cf.Bucket = BucketQuarterly
		cf.Confidence = noBaselineConfidence
		cf.Reason = fmt.Sprintf("no Q1 baseline for fiscal %d, assuming discrete quarter", fy)
		return cf
	}

	ratio := f.Value / baseline
	if ratio > c.cfg.YTDRatioThreshold && f.PeriodEnd.Month() == finalMonth {
		cf.Bucket = BucketYTD
		cf.Confidence = 0.8
		cf.Reason = fmt.Sprintf("value is %.1fx the Q1 baseline with period ending in the final fiscal month (%s)", ratio, finalMonth)
		return cf
	}

	cf.Bucket = BucketQuarterly
	cf.Confidence = 0.9
	cf.Reason = fmt.Sprintf("10-Q discrete quarter, %.1fx the fiscal %d Q1 baseline", ratio, fy)
	return cf
}

// findQ1Baselines returns, per fiscal year, the value reported for the first
// fiscal quarter. When a quarter is restated the latest filing wins.
func (c *Classifier) findQ1Baselines(facts []RawFact, fiscalMonth time.Month) map[int]float64 {
	baselineFiled := make(map[int]time.Time)
	baselines := make(map[int]float64)

	for _, f := range facts {
		if !f.IsQuarterlyForm() {
			continue
		}
		if days := f.DurationDays(); days != 0 && (days < quarterMinDays || days > quarterMaxDays) {
			continue
		}
		if fiscalQuarterFor(f.PeriodEnd, fiscalMonth) != 1 {
			continue
		}
		fy := fiscalYearFor(f.PeriodEnd, fiscalMonth)
		if filed, ok := baselineFiled[fy]; !ok || f.FiledDate.After(filed) {
			baselineFiled[fy] = f.FiledDate
			baselines[fy] = f.Value
		}
	}
	return baselines
}

// extremeValueCheck flags a series whose quarterly history spans an
// implausible magnitude range, usually a unit or scale mismatch between
// filings. The series is annotated, never blocked.
func (c *Classifier) extremeValueCheck(quarterly []ClassifiedFact) (Warning, bool) {
	minAbs := math.Inf(1)
	maxAbs := 0.0
	for _, cf := range quarterly {
		v := math.Abs(cf.Value)
		if v == 0 {
			continue
		}
		if v < minAbs {
			minAbs = v
		}
		if v > maxAbs {
			maxAbs = v
		}
	}
	if maxAbs == 0 || math.IsInf(minAbs, 1) {
		return Warning{}, false
	}
	ratio := maxAbs / minAbs
	if ratio <= c.cfg.ExtremeValueRatio {
		return Warning{}, false
	}
	return Warning{
		Code:     WarnScaleMismatch,
		Message:  fmt.Sprintf("quarterly values span a %.0fx range, possible unit or scale mismatch", ratio),
		Severity: SeverityWarning,
	}, true
}

// sortFacts orders facts by period end, then filing date, for deterministic
// classification output.
func sortFacts(facts []RawFact) {
	sort.SliceStable(facts, func(i, j int) bool {
		if !facts[i].PeriodEnd.Equal(facts[j].PeriodEnd) {
			return facts[i].PeriodEnd.Before(facts[j].PeriodEnd)
		}
		return facts[i].FiledDate.Before(facts[j].FiledDate)
	})
}

// dedupeByPeriodEnd keeps one entry per distinct period end, resolving
// conflicts by latest filing date. Output is sorted by period end.
func dedupeByPeriodEnd(facts []ClassifiedFact) []ClassifiedFact {
	byEnd := make(map[time.Time]ClassifiedFact)
	for _, cf := range facts {
		prev, ok := byEnd[cf.PeriodEnd]
		if !ok || cf.FiledDate.After(prev.FiledDate) {
			byEnd[cf.PeriodEnd] = cf
		}
	}
	out := make([]ClassifiedFact, 0, len(byEnd))
	for _, cf := range byEnd {
		out = append(out, cf)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].PeriodEnd.Before(out[j].PeriodEnd)
	})
	if len(out) == 0 {
		return nil
	}
	return out
}

package fundamentals

import (
	"fmt"
	"time"
)

// BuildReport runs the full normalization pipeline over an ingested fact
// set: concept selection, period classification, growth, and quality
// scoring. It is a pure function of the fact set, the configuration, and the
// reference clock — rerunning it on an identical set yields an identical
// report apart from GeneratedAt.
func BuildReport(set *RawFactSet, cfg *Config, now func() time.Time) *FundamentalsReport {
	report := &FundamentalsReport{
		Ticker:      set.Ticker,
		CIK:         set.CIK,
		CompanyName: set.CompanyName,
		Series:      make(map[string]ConceptSeries),
		GeneratedAt: now(),
	}

	classifier := NewClassifier(cfg.Classifier)
	growth := NewGrowthCalculator(cfg.Growth)

	for _, metric := range MetricNames() {
		sel := SelectConcept(set, metric)
		if !sel.Available {
			report.Warnings = append(report.Warnings, Warning{
				Code:     WarnMetricUnavailable,
				Metric:   metric,
				Message:  fmt.Sprintf("no data for %s under any known tag alias", metric),
				Severity: SeverityWarning,
			})
			continue
		}

		series, warnings := classifier.Classify(sel)
		report.Series[metric] = series
		report.Warnings = append(report.Warnings, warnings...)

		for _, gm := range growth.Compute(series) {
			if gm.Flagged {
				report.Warnings = append(report.Warnings, Warning{
					Code:     WarnGrowthFlagged,
					Metric:   metric,
					Message:  fmt.Sprintf("%s of %.1f%% exceeds the plausibility ceiling", gm.MetricName, gm.GrowthPct),
					Severity: SeverityInfo,
				})
			}
			report.Growth = append(report.Growth, gm)
		}
	}

	if set.Dropped > 0 {
		report.Warnings = append(report.Warnings, Warning{
			Code:     WarnDroppedEntries,
			Message:  fmt.Sprintf("%d malformed provider entries were dropped during ingestion", set.Dropped),
			Severity: SeverityInfo,
		})
	}

	report.Quality = NewQualityScorerAt(now).Score(set, report.Series)
	return report
}

package fundamentals

import (
	"time"
)

// Quality score weights. Completeness dominates because a missing core
// metric hurts every downstream consumer; freshness and granularity split
// the remainder.
const (
	weightCompleteness = 0.4
	weightFreshness    = 0.3
	weightDataQuality  = 0.3
)

// A series whose quarterly history spans an implausible magnitude range is
// still classified and reported, but a suspected unit mismatch cannot earn
// full granularity marks.
const scaleMismatchPenalty = 20.0

// QualityScorer aggregates completeness, freshness, and granularity into
// sub-scores and a composite letter grade. Scoring is pure given a set of
// series and a reference time.
type QualityScorer struct {
	now func() time.Time
}

// NewQualityScorer returns a scorer using the real clock.
func NewQualityScorer() *QualityScorer {
	return &QualityScorer{now: time.Now}
}

// NewQualityScorerAt returns a scorer pinned to a fixed reference time, used
// by tests and by report rebuilds that must be reproducible.
func NewQualityScorerAt(now func() time.Time) *QualityScorer {
	return &QualityScorer{now: now}
}

// Score computes the quality report for a ticker's classified series.
func (s *QualityScorer) Score(set *RawFactSet, series map[string]ConceptSeries) QualityReport {
	report := QualityReport{
		Ticker:      set.Ticker,
		CompanyName: set.CompanyName,
	}

	report.CompletenessScore = s.completeness(series)
	report.FreshnessScore = s.freshness(series)
	report.DataQualityScore = s.granularity(series)
	if anyScaleSuspect(series) {
		report.DataQualityScore -= scaleMismatchPenalty
		if report.DataQualityScore < 0 {
			report.DataQualityScore = 0
		}
	}
	report.OverallScore = weightCompleteness*report.CompletenessScore +
		weightFreshness*report.FreshnessScore +
		weightDataQuality*report.DataQualityScore
	report.Grade = gradeFor(report.OverallScore)
	return report
}

// completeness is the share of core metrics with any usable data.
func (s *QualityScorer) completeness(series map[string]ConceptSeries) float64 {
	total := CoreMetricCount()
	if total == 0 {
		return 0
	}
	have := 0
	for name, sr := range series {
		def, ok := MetricDef(name)
		if !ok || !def.Core {
			continue
		}
		if len(sr.All) > 0 {
			have++
		}
	}
	return float64(have) / float64(total) * 100
}

// freshness maps the age of the most recent classified point, in months, to
// a tier score.
func (s *QualityScorer) freshness(series map[string]ConceptSeries) float64 {
	var latest time.Time
	for _, sr := range series {
		for _, cf := range sr.All {
			if cf.PeriodEnd.After(latest) {
				latest = cf.PeriodEnd
			}
		}
	}
	if latest.IsZero() {
		return 0
	}

	months := monthsBetween(latest, s.now())
	switch {
	case months <= 3:
		return 100
	case months <= 6:
		return 85
	case months <= 12:
		return 60
	default:
		return 30
	}
}

// granularity scores the depth of quarterly history, using the best-covered
// series so a single sparse metric does not sink a well-reported company.
func (s *QualityScorer) granularity(series map[string]ConceptSeries) float64 {
	best := 0
	for _, sr := range series {
		if n := len(sr.Quarterly); n > best {
			best = n
		}
	}
	switch {
	case best >= 8:
		return 100
	case best >= 6:
		return 85
	case best >= 4:
		return 70
	case best >= 2:
		return 50
	case best >= 1:
		return 30
	default:
		return 0
	}
}

// anyScaleSuspect reports whether any series carries a suspected unit or
// scale mismatch.
func anyScaleSuspect(series map[string]ConceptSeries) bool {
	for _, sr := range series {
		if sr.ScaleSuspect {
			return true
		}
	}
	return false
}

// gradeFor converts a composite score to a letter grade.
func gradeFor(score float64) string {
	switch {
	case score >= 95:
		return "A+"
	case score >= 90:
		return "A"
	case score >= 85:
		return "B+"
	case score >= 80:
		return "B"
	case score >= 75:
		return "C+"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}

// monthsBetween returns whole months from a to b, never negative.
func monthsBetween(a, b time.Time) int {
	if b.Before(a) {
		return 0
	}
	months := (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
	if b.Day() < a.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

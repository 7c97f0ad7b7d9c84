package fundamentals

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cleanFilerFacts builds five-plus years of clean calendar-year filings for
// every core metric: Q1-Q3 10-Qs per year plus a 10-K, and quarter-end
// balance sheet snapshots for the instant metrics.
func cleanFilerFacts() map[string][]RawFact {
	durationTags := map[string]float64{
		"Revenues":            100,
		"NetIncomeLoss":       20,
		"OperatingIncomeLoss": 30,
		"NetCashProvidedByUsedInOperatingActivities": 25,
	}
	instantTags := map[string]float64{
		"Assets":             5000,
		"StockholdersEquity": 2000,
	}

	quarters := []struct{ start, end, filed string }{
		{"-01-01", "-03-31", "-05-01"},
		{"-04-01", "-06-30", "-08-01"},
		{"-07-01", "-09-30", "-11-01"},
	}

	facts := make(map[string][]RawFact)
	for year := 2019; year <= 2024; year++ {
		y := fmt.Sprintf("%d", year)
		for tag, base := range durationTags {
			for qi, q := range quarters {
				f := quarterlyFact(base+float64(year-2019)*5+float64(qi), y+q.start, y+q.end, y+q.filed)
				f.Concept = tag
				facts[tag] = append(facts[tag], f)
			}
			k := annualFact(base*4+float64(year-2019)*20, y+"-01-01", y+"-12-31", fmt.Sprintf("%d-02-15", year+1))
			k.Concept = tag
			facts[tag] = append(facts[tag], k)
		}
		for tag, base := range instantTags {
			for _, q := range quarters {
				f := RawFact{
					Concept:   tag,
					Value:     base + float64(year-2019)*100,
					PeriodEnd: day(y + q.end),
					FiledDate: day(y + q.filed),
					FormType:  "10-Q",
				}
				facts[tag] = append(facts[tag], f)
			}
		}
	}
	return facts
}

func TestBuildReport_CleanFiler(t *testing.T) {
	set := &RawFactSet{
		Ticker:      "CLEAN",
		CIK:         "0000000042",
		CompanyName: "Clean Filer Inc.",
		Facts:       cleanFilerFacts(),
	}

	report := BuildReport(set, DefaultConfig(), fixedNow("2025-03-01"))

	revenue := report.Series["Revenue"]
	assert.Equal(t, time.December, revenue.FiscalMonth)
	assert.GreaterOrEqual(t, len(revenue.Quarterly), 16)
	assert.GreaterOrEqual(t, len(revenue.Annual), 5)

	// Nothing in a clean history should land in YTD.
	assert.Empty(t, revenue.YTD)

	grades := map[string]int{"A+": 7, "A": 6, "B+": 5, "B": 4, "C+": 3, "C": 2, "D": 1, "F": 0}
	require.Contains(t, grades, report.Quality.Grade)
	assert.GreaterOrEqual(t, grades[report.Quality.Grade], grades["B+"],
		"clean five-year history should grade at least B+, got %s (%.1f)",
		report.Quality.Grade, report.Quality.OverallScore)

	assets := report.Series["TotalAssets"]
	assert.NotEmpty(t, assets.PointInTime)
	assert.Empty(t, assets.Quarterly)
}

func TestBuildReport_DroppedEntriesWarning(t *testing.T) {
	set := &RawFactSet{
		Ticker:  "TEST",
		Facts:   map[string][]RawFact{},
		Dropped: 3,
	}

	report := BuildReport(set, DefaultConfig(), fixedNow("2025-01-01"))

	found := false
	for _, w := range report.Warnings {
		if w.Code == WarnDroppedEntries {
			found = true
			assert.Equal(t, SeverityInfo, w.Severity)
		}
	}
	assert.True(t, found)
}

func TestBuildReport_UnavailableMetricsWarn(t *testing.T) {
	set := &RawFactSet{
		Ticker: "TEST",
		Facts: map[string][]RawFact{
			"Revenues": {quarterlyFact(100, "2024-01-01", "2024-03-31", "2024-05-01")},
		},
	}

	report := BuildReport(set, DefaultConfig(), fixedNow("2024-06-01"))

	unavailable := 0
	for _, w := range report.Warnings {
		if w.Code == WarnMetricUnavailable {
			unavailable++
			assert.NotEmpty(t, w.Metric)
		}
	}
	// Every metric except Revenue has no data here.
	assert.Equal(t, len(MetricNames())-1, unavailable)
	assert.Contains(t, report.Series, "Revenue")
}

func TestBuildReport_Reproducible(t *testing.T) {
	set := &RawFactSet{
		Ticker: "TEST",
		Facts: map[string][]RawFact{
			"Revenues": {
				quarterlyFact(100, "2024-01-01", "2024-03-31", "2024-05-01"),
				quarterlyFact(110, "2024-04-01", "2024-06-30", "2024-08-01"),
				annualFact(460, "2024-01-01", "2024-12-31", "2025-02-15"),
			},
		},
	}

	now := fixedNow("2025-03-01")
	first := BuildReport(set, DefaultConfig(), now)
	second := BuildReport(set, DefaultConfig(), now)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("report not reproducible (-first +second):\n%s", diff)
	}
}

func TestBuildReport_ScaleMismatchPenalizesScore(t *testing.T) {
	factsWithQ2 := func(q2 float64) *RawFactSet {
		return &RawFactSet{
			Ticker: "TEST",
			Facts: map[string][]RawFact{
				"Revenues": {
					quarterlyFact(100, "2024-01-01", "2024-03-31", "2024-05-01"),
					quarterlyFact(q2, "2024-04-01", "2024-06-30", "2024-08-01"),
				},
			},
		}
	}

	now := fixedNow("2024-09-01")
	clean := BuildReport(factsWithQ2(110), DefaultConfig(), now)
	skewed := BuildReport(factsWithQ2(15000), DefaultConfig(), now) // 150x spread

	found := false
	for _, w := range skewed.Warnings {
		if w.Code == WarnScaleMismatch {
			found = true
		}
	}
	require.True(t, found)
	assert.True(t, skewed.Series["Revenue"].ScaleSuspect)

	assert.Less(t, skewed.Quality.DataQualityScore, clean.Quality.DataQualityScore)
	assert.Less(t, skewed.Quality.OverallScore, clean.Quality.OverallScore)
}

func TestBuildReport_FlagsExtremeGrowth(t *testing.T) {
	set := &RawFactSet{
		Ticker: "TEST",
		Facts: map[string][]RawFact{
			"Revenues": {
				quarterlyFact(10, "2024-01-01", "2024-03-31", "2024-05-01"),
				quarterlyFact(60, "2024-04-01", "2024-06-30", "2024-08-01"),
			},
		},
	}

	report := BuildReport(set, DefaultConfig(), fixedNow("2024-09-01"))

	qoq := findMetric(t, report.Growth, "Revenue QoQ")
	require.True(t, qoq.Flagged)

	found := false
	for _, w := range report.Warnings {
		if w.Code == WarnGrowthFlagged {
			found = true
			assert.Equal(t, "Revenue", w.Metric)
		}
	}
	assert.True(t, found)
}

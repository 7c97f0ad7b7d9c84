package fundamentals

import (
	"fmt"
	"sort"
	"time"
)

// SeriesQuery provides a fluent interface for querying classified facts
// within a ConceptSeries.
type SeriesQuery struct {
	facts        []ClassifiedFact
	fiscalMonth  time.Month
	bucketFilter Bucket
	yearFilter   int
}

// Query returns a new SeriesQuery over the series' deduplicated buckets.
func (s *ConceptSeries) Query() *SeriesQuery {
	all := make([]ClassifiedFact, 0, len(s.Quarterly)+len(s.Annual)+len(s.YTD)+len(s.PointInTime))
	all = append(all, s.Quarterly...)
	all = append(all, s.Annual...)
	all = append(all, s.YTD...)
	all = append(all, s.PointInTime...)
	return &SeriesQuery{facts: all, fiscalMonth: s.FiscalMonth}
}

// ByBucket filters facts by temporal bucket.
func (q *SeriesQuery) ByBucket(b Bucket) *SeriesQuery {
	q.bucketFilter = b
	return q
}

// ForFiscalYear filters facts to a single fiscal year.
func (q *SeriesQuery) ForFiscalYear(year int) *SeriesQuery {
	q.yearFilter = year
	return q
}

// Get returns all matching facts sorted by period end ascending.
func (q *SeriesQuery) Get() []ClassifiedFact {
	var results []ClassifiedFact
	for _, cf := range q.facts {
		if q.bucketFilter != "" && cf.Bucket != q.bucketFilter {
			continue
		}
		if q.yearFilter != 0 && fiscalYearFor(cf.PeriodEnd, q.fiscalMonth) != q.yearFilter {
			continue
		}
		results = append(results, cf)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].PeriodEnd.Before(results[j].PeriodEnd)
	})
	return results
}

// MostRecent returns the matching fact with the latest period end.
func (q *SeriesQuery) MostRecent() (*ClassifiedFact, error) {
	results := q.Get()
	if len(results) == 0 {
		return nil, fmt.Errorf("no facts match the query")
	}
	return &results[len(results)-1], nil
}

// Latest returns up to n most recent matching facts, oldest first.
func (q *SeriesQuery) Latest(n int) []ClassifiedFact {
	results := q.Get()
	if len(results) <= n {
		return results
	}
	return results[len(results)-n:]
}

// Sum returns the sum of all matching fact values.
func (q *SeriesQuery) Sum() (float64, error) {
	results := q.Get()
	if len(results) == 0 {
		return 0, fmt.Errorf("no facts match the query")
	}
	var sum float64
	for _, cf := range results {
		sum += cf.Value
	}
	return sum, nil
}

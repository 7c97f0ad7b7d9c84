package fundamentals

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

//go:embed concept_aliases.json
var conceptAliasesJSON []byte

// PeriodType distinguishes income/cash-flow metrics from balance-sheet ones.
type PeriodType string

const (
	PeriodDuration PeriodType = "duration"
	PeriodInstant  PeriodType = "instant"
)

// MetricDefinition declares a logical metric and its XBRL tag aliases in
// priority order.
type MetricDefinition struct {
	Aliases    []string   `json:"aliases"`
	PeriodType PeriodType `json:"periodType"`
	Core       bool       `json:"core"` // counts toward the completeness score
	Notes      string     `json:"notes"`
}

// aliasTable is the parsed shape of concept_aliases.json.
type aliasTable struct {
	Description string                      `json:"description"`
	Version     string                      `json:"version"`
	Metrics     map[string]MetricDefinition `json:"metrics"`
}

var metricTable aliasTable

func init() {
	if err := json.Unmarshal(conceptAliasesJSON, &metricTable); err != nil {
		panic(fmt.Sprintf("failed to load concept aliases: %v", err))
	}
}

// MetricNames returns all logical metric names in deterministic order.
func MetricNames() []string {
	names := make([]string, 0, len(metricTable.Metrics))
	for name := range metricTable.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CoreMetricCount returns how many tracked metrics count toward completeness.
func CoreMetricCount() int {
	n := 0
	for _, def := range metricTable.Metrics {
		if def.Core {
			n++
		}
	}
	return n
}

// MetricDef returns the definition for a logical metric.
func MetricDef(name string) (MetricDefinition, bool) {
	def, ok := metricTable.Metrics[name]
	return def, ok
}

// Selection is the outcome of choosing the best alias for one logical metric
// within a company's fact set.
type Selection struct {
	Metric     string
	Concept    string // chosen XBRL tag; empty when unavailable
	PeriodType PeriodType
	Facts      []RawFact
	Available  bool
}

// aliasStats summarizes one alias candidate for ranking.
type aliasStats struct {
	concept  string
	priority int // position in the alias list, lower preferred
	coverage int // distinct period ends with usable quarterly data
	latest   time.Time
	span     time.Duration
	facts    []RawFact
}

// SelectConcept picks, for one logical metric, the alias with the greatest
// usable quarterly coverage in the fact set. Ties break by most recent filing,
// then longest history, then declared priority. A metric with no data in any
// alias comes back with Available=false; the pipeline records a warning
// instead of aborting.
func SelectConcept(set *RawFactSet, metric string) Selection {
	def, ok := metricTable.Metrics[metric]
	if !ok {
		return Selection{Metric: metric}
	}

	var candidates []aliasStats
	for i, alias := range def.Aliases {
		facts := set.Facts[alias]
		if len(facts) == 0 {
			continue
		}
		candidates = append(candidates, rankAlias(alias, i, facts, def.PeriodType))
	}
	if len(candidates) == 0 {
		return Selection{Metric: metric, PeriodType: def.PeriodType}
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.coverage != b.coverage {
			return a.coverage > b.coverage
		}
		if !a.latest.Equal(b.latest) {
			return a.latest.After(b.latest)
		}
		if a.span != b.span {
			return a.span > b.span
		}
		return a.priority < b.priority
	})

	best := candidates[0]
	return Selection{
		Metric:     metric,
		Concept:    best.concept,
		PeriodType: def.PeriodType,
		Facts:      best.facts,
		Available:  true,
	}
}

// SelectAll runs concept selection for every tracked metric.
func SelectAll(set *RawFactSet) map[string]Selection {
	out := make(map[string]Selection, len(metricTable.Metrics))
	for _, name := range MetricNames() {
		out[name] = SelectConcept(set, name)
	}
	return out
}

func rankAlias(concept string, priority int, facts []RawFact, pt PeriodType) aliasStats {
	st := aliasStats{concept: concept, priority: priority, facts: facts}

	seen := make(map[time.Time]bool)
	var earliest, latestEnd time.Time
	for _, f := range facts {
		if f.FiledDate.After(st.latest) {
			st.latest = f.FiledDate
		}
		if earliest.IsZero() || f.PeriodEnd.Before(earliest) {
			earliest = f.PeriodEnd
		}
		if f.PeriodEnd.After(latestEnd) {
			latestEnd = f.PeriodEnd
		}

		// Usable quarterly coverage: for duration metrics, distinct period
		// ends reported on a 10-Q; instant metrics count all distinct dates.
		if pt == PeriodDuration {
			if f.IsQuarterlyForm() && !seen[f.PeriodEnd] {
				seen[f.PeriodEnd] = true
			}
		} else if !seen[f.PeriodEnd] {
			seen[f.PeriodEnd] = true
		}
	}
	st.coverage = len(seen)
	if !earliest.IsZero() {
		st.span = latestEnd.Sub(earliest)
	}
	return st
}

// Package allocation decides which eligible findings fit the triage budget.
//
// Each category may send at most MaxPerCategory findings and a run at most
// MaxTotal. When the per-category caps alone exceed the global budget,
// small categories are kept in full and large categories are trimmed to the
// same fraction of their capped size.
package allocation

import (
	"math"
	"slices"
	"sort"

	"github.com/zero-day-ai/aviator/finding"
)

// Default budget.
const (
	DefaultMaxPerCategory = 500
	DefaultMaxTotal       = 2500
)

// Limits is the triage budget of one run.
type Limits struct {
	MaxPerCategory int `yaml:"max_per_category" json:"max_per_category"`
	MaxTotal       int `yaml:"max_total" json:"max_total"`
}

// DefaultLimits returns the default budget.
func DefaultLimits() Limits {
	return Limits{MaxPerCategory: DefaultMaxPerCategory, MaxTotal: DefaultMaxTotal}
}

// Skip is an eligible finding that was left out, with the counts its
// explanation refers to.
type Skip struct {
	Finding  finding.Finding
	Reason   SkipReason
	Observed int
	Limit    int
}

// Message renders the explanation recorded on the finding.
func (s Skip) Message() string {
	return s.Reason.Message(s.Observed, s.Limit)
}

// CategoryStats summarizes the allocation of one category.
type CategoryStats struct {
	Name               string
	Eligible           int
	Capped             int
	Included           int
	SkippedPerCategory int
	SkippedPerTotal    int

	// Large is set on the proportional path for categories subject to
	// trimming.
	Large      bool
	LimitIndex int
}

// Plan is the outcome of an allocation.
type Plan struct {
	// Included is the triage batch: categories in name order, findings in
	// canonical order within each category.
	Included []finding.Finding
	Skipped  []Skip

	Categories []CategoryStats

	// Proportional is set when the global budget forced trimming.
	Proportional bool
	Threshold    float64
	Fraction     float64
}

// SortCanonical sorts findings in place by short file name
// (case-insensitive, empty first) and then line.
func SortCanonical(findings []finding.Finding) {
	slices.SortStableFunc(findings, func(a, b finding.Finding) int {
		return finding.Compare(&a, &b)
	})
}

type group struct {
	name     string
	findings []finding.Finding
	capped   int
}

// Allocate splits eligible findings into the triage batch and the skipped
// remainder. It is deterministic for a given input.
func Allocate(eligible []finding.Finding, limits Limits) *Plan {
	groups := groupByCategory(eligible, limits.MaxPerCategory)

	totalCapped := 0
	for _, g := range groups {
		totalCapped += g.capped
	}

	plan := &Plan{}
	if totalCapped <= limits.MaxTotal {
		for _, g := range groups {
			plan.take(g, limits, false, 0, len(eligible))
		}
		return plan
	}

	plan.Proportional = true
	if len(groups) > 0 {
		plan.Threshold = float64(totalCapped) / (2.0 * float64(len(groups)))
	}

	auditAll, auditSome := 0, 0
	for _, g := range groups {
		if float64(g.capped) < plan.Threshold {
			auditAll += g.capped
		} else {
			auditSome += g.capped
		}
	}
	if auditSome > 0 {
		plan.Fraction = clamp(float64(limits.MaxTotal-auditAll)/float64(auditSome), 0, 1)
	}

	for _, g := range groups {
		large := float64(g.capped) >= plan.Threshold
		limitIndex := int(math.Round(plan.Fraction * float64(g.capped)))
		plan.take(g, limits, large, limitIndex, len(eligible))
	}
	return plan
}

// take walks one category in canonical order.
func (p *Plan) take(g group, limits Limits, large bool, limitIndex, totalEligible int) {
	stats := CategoryStats{
		Name:     g.name,
		Eligible: len(g.findings),
		Capped:   g.capped,
		Large:    large,
	}
	if large {
		stats.LimitIndex = limitIndex
	}

	for i, f := range g.findings {
		switch {
		case i >= limits.MaxPerCategory:
			p.Skipped = append(p.Skipped, Skip{
				Finding:  f,
				Reason:   PerCategoryExceeded,
				Observed: len(g.findings),
				Limit:    limits.MaxPerCategory,
			})
			stats.SkippedPerCategory++
		case large && i >= limitIndex:
			p.Skipped = append(p.Skipped, Skip{
				Finding:  f,
				Reason:   PerTotalExceeded,
				Observed: totalEligible,
				Limit:    limits.MaxTotal,
			})
			stats.SkippedPerTotal++
		default:
			p.Included = append(p.Included, f)
			stats.Included++
		}
	}
	p.Categories = append(p.Categories, stats)
}

// groupByCategory groups findings by category, sorts each group canonically
// and returns the groups in category name order.
func groupByCategory(findings []finding.Finding, maxPerCategory int) []group {
	index := make(map[string]int)
	var groups []group
	for _, f := range findings {
		i, ok := index[f.Category]
		if !ok {
			i = len(groups)
			index[f.Category] = i
			groups = append(groups, group{name: f.Category})
		}
		groups[i].findings = append(groups[i].findings, f)
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i].name < groups[j].name
	})
	for i := range groups {
		SortCanonical(groups[i].findings)
		groups[i].capped = min(maxPerCategory, len(groups[i].findings))
	}
	return groups
}

// IncludedCount returns the number of findings in the batch.
func (p *Plan) IncludedCount() int {
	return len(p.Included)
}

// SkippedBy counts skips with the given reason.
func (p *Plan) SkippedBy(reason SkipReason) int {
	n := 0
	for _, s := range p.Skipped {
		if s.Reason == reason {
			n++
		}
	}
	return n
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

package filter

import (
	"strings"

	"github.com/google/uuid"

	"github.com/zero-day-ai/aviator/filtertemplate"
	"github.com/zero-day-ai/aviator/finding"
)

// Query is a compiled filter query.
type Query interface {
	Matches(f *finding.Finding) bool
}

// Matches reports whether f satisfies the clause.
func (c Clause) Matches(f *finding.Finding) bool {
	if !c.Valid() {
		return false
	}

	var match bool
	switch c.Field {
	case FieldConfidence:
		match = c.interval.Contains(f.Confidence)
	case FieldSeverity:
		match = c.interval.Contains(f.InstanceSeverity)
	case FieldAudience:
		match = strings.Contains(strings.ToLower(f.Audience), strings.ToLower(c.Value))
	case FieldAnalyzer:
		match = strings.EqualFold(f.Analyzer, c.Value)
	case FieldCategory:
		match = strings.EqualFold(f.Category, c.Value)
	case FieldPriorityOrder:
		match = f.Priority.Matches(c.Value)
	}

	if c.Negated {
		return !match
	}
	return match
}

// Matches reports whether f satisfies every clause. A query without
// clauses matches everything.
func (q *SpecialQuery) Matches(f *finding.Finding) bool {
	for _, c := range q.Clauses {
		if !c.Matches(f) {
			return false
		}
	}
	return true
}

// Matches reports whether f satisfies the advanced query.
func (q *AdvancedQuery) Matches(f *finding.Finding) bool {
	switch q.Grammar {
	case GrammarConfidencePriority:
		return q.Confidence.Contains(f.Confidence) && f.Priority.Matches(q.Priority)
	case GrammarConfidenceSeverity:
		return q.Confidence.Contains(f.Confidence) && q.Severity.Contains(f.InstanceSeverity)
	case GrammarPriority:
		return f.Priority.Matches(q.Priority)
	default:
		return true
	}
}

// Compile returns the query a filter runs, or nil when the filter's
// actionParam selects neither query form.
func Compile(flt filtertemplate.Filter) Query {
	param := strings.TrimSpace(flt.ActionParam)
	if strings.EqualFold(param, "true") {
		return ParseSpecial(flt.Query)
	}
	if _, err := uuid.Parse(param); err == nil {
		return ParseAdvanced(flt.Query)
	}
	return nil
}

// Apply runs the filters of set over findings. setFolder filters add their
// matches to the result and hide filters remove them, in filter order.
// A nil set returns findings unchanged. The result keeps input order.
func Apply(set *filtertemplate.FilterSet, findings []finding.Finding) []finding.Finding {
	if set == nil {
		return findings
	}

	selected := make([]bool, len(findings))
	for _, flt := range set.Filters {
		var add bool
		switch {
		case flt.IsSetFolder():
			add = true
		case flt.IsHide():
			add = false
		default:
			continue
		}

		q := Compile(flt)
		if q == nil {
			continue
		}

		for i := range findings {
			if q.Matches(&findings[i]) {
				selected[i] = add
			}
		}
	}

	out := make([]finding.Finding, 0, len(findings))
	for i, ok := range selected {
		if ok {
			out = append(out, findings[i])
		}
	}
	return out
}

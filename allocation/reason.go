package allocation

import (
	"strconv"
	"strings"
)

// SkipReason explains why an eligible finding was not sent for triage.
type SkipReason string

const (
	// PerCategoryExceeded means the finding's category had more eligible
	// findings than the per-category cap.
	PerCategoryExceeded SkipReason = "PER_CATEGORY_EXCEEDED"

	// PerTotalExceeded means the finding was trimmed to keep the run within
	// the global cap.
	PerTotalExceeded SkipReason = "PER_TOTAL_EXCEEDED"
)

const (
	perCategoryTemplate = "Fortify detected {observed} new issues in this (sub)category. Fortify Aviator auditing was limited to the first {limit}."
	perTotalTemplate    = "Fortify detected {observed} new issues. Fortify Aviator auditing was limited to {limit} issues in total, while ensuring that representative issues in each category were audited."
)

// String returns the string representation of the reason.
func (r SkipReason) String() string {
	return string(r)
}

// IsValid returns true if the reason is a known value.
func (r SkipReason) IsValid() bool {
	return r == PerCategoryExceeded || r == PerTotalExceeded
}

// Message renders the human-readable explanation for the given counts.
func (r SkipReason) Message(observed, limit int) string {
	var tmpl string
	switch r {
	case PerCategoryExceeded:
		tmpl = perCategoryTemplate
	case PerTotalExceeded:
		tmpl = perTotalTemplate
	default:
		return ""
	}
	return strings.NewReplacer(
		"{observed}", strconv.Itoa(observed),
		"{limit}", strconv.Itoa(limit),
	).Replace(tmpl)
}

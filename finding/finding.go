package finding

import (
	"cmp"
	"fmt"
	"strings"
)

// Finding is a single static-analysis result read from the archive.
// Findings are created once per ingestion and never modified afterwards.
type Finding struct {
	// InstanceID uniquely identifies the finding within the archive.
	InstanceID string `json:"instance_id"`

	// Category is the vulnerability category (e.g., "SQL Injection").
	Category string `json:"category"`

	// Subcategory refines the category, may be empty.
	Subcategory string `json:"subcategory,omitempty"`

	// Kingdom is the Seven Pernicious Kingdoms grouping of the category.
	Kingdom string `json:"kingdom,omitempty"`

	// Priority is the Fortify priority order.
	Priority Priority `json:"priority"`

	// Confidence is the analyzer confidence on a 0-5 scale.
	Confidence float64 `json:"confidence"`

	// InstanceSeverity is the per-instance severity on a 0-5 scale.
	InstanceSeverity float64 `json:"instance_severity"`

	// Accuracy and Probability come from the rule metadata.
	Accuracy    float64 `json:"accuracy"`
	Probability float64 `json:"probability"`

	// Analyzer names the analyzer that produced the finding (e.g., "dataflow").
	Analyzer string `json:"analyzer"`

	// Audience is the comma-separated audience list of the rule.
	Audience string `json:"audience,omitempty"`

	// Language is the programming language of the primary location.
	Language string `json:"language,omitempty"`

	// Trace is the ordered list of locations, source first and sink last.
	Trace []Location `json:"trace,omitempty"`
}

// Likelihood is accuracy * confidence * probability / 25.
func (f *Finding) Likelihood() float64 {
	return f.Accuracy * f.Confidence * f.Probability / 25
}

// Primary returns the first trace location, or the zero Location.
func (f *Finding) Primary() Location {
	if len(f.Trace) == 0 {
		return Location{}
	}
	return f.Trace[0]
}

// Sink returns the last trace location, or the zero Location.
func (f *Finding) Sink() Location {
	if len(f.Trace) == 0 {
		return Location{}
	}
	return f.Trace[len(f.Trace)-1]
}

// Validate checks the fields the engine relies on.
func (f *Finding) Validate() error {
	if f.InstanceID == "" {
		return fmt.Errorf("instance ID is required")
	}
	if f.Category == "" {
		return fmt.Errorf("category is required for finding %s", f.InstanceID)
	}
	if f.Priority != "" && !f.Priority.IsValid() {
		return fmt.Errorf("invalid priority %q for finding %s", f.Priority, f.InstanceID)
	}
	if f.Confidence < 0 {
		return fmt.Errorf("confidence must be non-negative, got %f", f.Confidence)
	}
	return nil
}

// Compare orders findings by the short file name of their primary location
// (case-insensitive, empty names first), then by line number ascending.
func Compare(a, b *Finding) int {
	la, lb := a.Primary(), b.Primary()
	fa, fb := la.ShortFileName(), lb.ShortFileName()
	ea, eb := strings.TrimSpace(fa) == "", strings.TrimSpace(fb) == ""

	switch {
	case ea && eb:
		return cmp.Compare(la.Line, lb.Line)
	case ea:
		return -1
	case eb:
		return 1
	}

	if c := strings.Compare(strings.ToLower(fa), strings.ToLower(fb)); c != 0 {
		return c
	}
	return cmp.Compare(la.Line, lb.Line)
}

// Index builds an instance-id lookup over findings.
func Index(findings []Finding) map[string]*Finding {
	idx := make(map[string]*Finding, len(findings))
	for i := range findings {
		idx[findings[i].InstanceID] = &findings[i]
	}
	return idx
}

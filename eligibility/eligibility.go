// Package eligibility decides which findings may be sent for triage based on
// their existing audit records.
package eligibility

import (
	"log/slog"
	"strings"

	"github.com/zero-day-ai/aviator/auditdoc"
	"github.com/zero-day-ai/aviator/finding"
	"github.com/zero-day-ai/aviator/tags"
)

// Records looks up audit records by instance id. *auditdoc.Document
// satisfies it.
type Records interface {
	Issue(instanceID string) *auditdoc.Issue
}

// IsEligible reports whether a finding with audit record rec may be sent for
// triage. A nil record (no audit history) is eligible.
func IsEligible(rec *auditdoc.Issue, resultTagID string) bool {
	if rec == nil {
		return true
	}
	if rec.Suppressed {
		return false
	}
	if _, ok := rec.Tag(tags.ExpectedOutcome.ID); ok {
		return false
	}
	if decided(rec, tags.HumanAudit.ID) || decided(rec, tags.AuditorStatus.ID) {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(rec.TagValue(tags.AviatorStatus.ID)), tags.ProcessedByAviator) {
		return false
	}
	if resultTagID != "" && decided(rec, resultTagID) {
		return false
	}
	// A decision in Analysis counts even when the project uses another result tag.
	if decided(rec, tags.Analysis.ID) {
		return false
	}
	return true
}

// decided reports whether the tag holds a value other than a pending one.
func decided(rec *auditdoc.Issue, id string) bool {
	v, ok := rec.Tag(id)
	return ok && !tags.IsPending(v)
}

// Filter selects eligible findings, optionally applying an operator
// exclusion rule on top of the audit-record checks.
type Filter struct {
	resultTagID string
	rule        *Rule
	logger      *slog.Logger
}

// Option configures a Filter.
type Option func(*Filter)

// WithRule excludes findings for which rule evaluates to true.
func WithRule(rule *Rule) Option {
	return func(f *Filter) {
		f.rule = rule
	}
}

// WithLogger sets the logger used to report rule evaluation problems.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Filter) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFilter creates a Filter for the given result tag.
func NewFilter(resultTagID string, opts ...Option) *Filter {
	f := &Filter{
		resultTagID: resultTagID,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Apply returns the eligible findings in input order.
func (f *Filter) Apply(findings []finding.Finding, records Records) []finding.Finding {
	out := make([]finding.Finding, 0, len(findings))
	for i := range findings {
		fd := &findings[i]

		var rec *auditdoc.Issue
		if records != nil {
			rec = records.Issue(fd.InstanceID)
		}
		if !IsEligible(rec, f.resultTagID) {
			continue
		}

		if f.rule != nil {
			excluded, err := f.rule.Excludes(fd)
			if err != nil {
				f.logger.Warn("exclusion rule failed, keeping finding",
					"instance_id", fd.InstanceID,
					"error", err)
			} else if excluded {
				f.logger.Debug("finding excluded by rule", "instance_id", fd.InstanceID)
				continue
			}
		}

		out = append(out, *fd)
	}
	return out
}

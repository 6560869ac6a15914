package eligibility

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/aviator"
	"github.com/zero-day-ai/aviator/auditdoc"
	"github.com/zero-day-ai/aviator/finding"
	"github.com/zero-day-ai/aviator/tags"
)

const (
	resultTag = "87f2364f-dcd4-49e6-861d-f8d3f351686b"
	customTag = "b1b9a2c4-7f4e-4a53-9a35-0d2c8f7b1e11"
)

func issueWith(suppressed bool, kv ...string) *auditdoc.Issue {
	issue := &auditdoc.Issue{InstanceID: "X", Suppressed: suppressed}
	for i := 0; i+1 < len(kv); i += 2 {
		issue.SetTag(kv[i], kv[i+1])
	}
	return issue
}

func TestIsEligible(t *testing.T) {
	tests := []struct {
		name      string
		rec       *auditdoc.Issue
		resultTag string
		want      bool
	}{
		{"no record", nil, "", true},
		{"empty record", issueWith(false), "", true},
		{"suppressed", issueWith(true), "", false},
		{"expected outcome present", issueWith(false, tags.ExpectedOutcome.ID, ""), "", false},
		{"FoD pending", issueWith(false, tags.HumanAudit.ID, "Pending Review/Not Set"), "", true},
		{"FoD decided", issueWith(false, tags.HumanAudit.ID, "False Positive"), "", false},
		{"FoD empty", issueWith(false, tags.HumanAudit.ID, ""), "", true},
		{"auditor status pending lower case", issueWith(false, tags.AuditorStatus.ID, "pending review"), "", true},
		{"auditor status decided", issueWith(false, tags.AuditorStatus.ID, "Unsure"), "", false},
		{"already processed", issueWith(false, tags.AviatorStatus.ID, "processed_by_aviator"), "", false},
		{"result not set", issueWith(false, resultTag, "Not Set"), "", true},
		{"result pending", issueWith(false, resultTag, "Pending Review"), "", true},
		{"result decided", issueWith(false, resultTag, "Exploitable"), "", false},
		{"result tag id case differs", issueWith(false, "87F2364F-DCD4-49E6-861D-F8D3F351686B", "Not an Issue"), "", false},
		{"unrelated tag", issueWith(false, "other", "whatever"), "", true},
		{"custom result tag, analysis decided", issueWith(false, tags.Analysis.ID, "Exploitable"), customTag, false},
		{"custom result tag, analysis not set", issueWith(false, tags.Analysis.ID, "Not Set"), customTag, true},
		{"custom result tag, analysis empty", issueWith(false, tags.Analysis.ID, ""), customTag, true},
		{"custom result tag decided", issueWith(false, customTag, "Reviewed"), customTag, false},
		{"analysis decided", issueWith(false, tags.Analysis.ID, "Suspicious"), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tag := tt.resultTag
			if tag == "" {
				tag = resultTag
			}
			assert.Equal(t, tt.want, IsEligible(tt.rec, tag))
		})
	}
}

type recordMap map[string]*auditdoc.Issue

func (m recordMap) Issue(id string) *auditdoc.Issue { return m[id] }

func findings() []finding.Finding {
	return []finding.Finding{
		{InstanceID: "A", Category: "SQL Injection", Analyzer: "dataflow", Confidence: 4},
		{InstanceID: "B", Category: "XSS", Analyzer: "configuration", Confidence: 5},
		{InstanceID: "C", Category: "XSS", Analyzer: "dataflow", Confidence: 1},
		{InstanceID: "D", Category: "SQL Injection", Analyzer: "dataflow", Confidence: 3},
	}
}

func TestFilter_Apply(t *testing.T) {
	records := recordMap{
		"B": issueWith(true),
		"D": issueWith(false, resultTag, "Not Set"),
	}

	got := NewFilter(resultTag).Apply(findings(), records)
	ids := make([]string, 0, len(got))
	for _, f := range got {
		ids = append(ids, f.InstanceID)
	}
	assert.Equal(t, []string{"A", "C", "D"}, ids)

	all := NewFilter(resultTag).Apply(findings(), nil)
	assert.Len(t, all, 4)
}

func TestFilter_WithRule(t *testing.T) {
	rule, err := CompileRule(`finding.analyzer == "configuration" || finding.confidence < 2.0`)
	require.NoError(t, err)
	assert.Contains(t, rule.String(), "configuration")

	got := NewFilter(resultTag, WithRule(rule)).Apply(findings(), recordMap{})
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].InstanceID)
	assert.Equal(t, "D", got[1].InstanceID)
}

func TestRule_NonBoolKeepsFinding(t *testing.T) {
	rule, err := CompileRule(`finding.category`)
	require.NoError(t, err)

	f := findings()[0]
	excluded, err := rule.Excludes(&f)
	assert.Error(t, err)
	assert.False(t, excluded)

	got := NewFilter(resultTag, WithRule(rule)).Apply(findings(), nil)
	assert.Len(t, got, 4)
}

func TestCompileRule_Invalid(t *testing.T) {
	_, err := CompileRule(`finding.category ==`)
	require.Error(t, err)
	assert.True(t, aviator.IsSimple(err))
}

package triage

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOutcome(t *testing.T) {
	tests := []struct {
		in   string
		want Outcome
	}{
		{"NOT_AN_ISSUE", OutcomeNotAnIssue},
		{"Not an Issue", OutcomeNotAnIssue},
		{"not-an-issue", OutcomeNotAnIssue},
		{"EXPLOITABLE", OutcomeExploitable},
		{" Exploitable ", OutcomeExploitable},
		{"UNSURE", OutcomeUnsure},
		{"Suspicious", OutcomeUnsure},
		{"", OutcomeUnsure},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseOutcome(tt.in))
		})
	}
}

func TestOutcome_Display(t *testing.T) {
	assert.Equal(t, "Not an Issue", OutcomeNotAnIssue.Display())
	assert.Equal(t, "Exploitable", OutcomeExploitable.Display())
	assert.Equal(t, "Unsure", OutcomeUnsure.Display())
}

func TestVerdict_JSON(t *testing.T) {
	var v Verdict
	require.NoError(t, json.Unmarshal([]byte(`{"request_id":"r","tier":"gold","outcome":"Not an Issue","status":"SUCCESS"}`), &v))

	assert.Equal(t, OutcomeNotAnIssue, v.Outcome)
	assert.True(t, v.IsGold())
	assert.True(t, v.Succeeded())

	v.Tier = "STANDARD"
	v.Status = StatusSkipped
	assert.False(t, v.IsGold())
	assert.False(t, v.Succeeded())
}

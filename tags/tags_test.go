package tags

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPending(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"", true},
		{"Not Set", true},
		{"not set", true},
		{"Pending Review", true},
		{"Pending Review/Not Set", true},
		{"  pending review ", true},
		{"Exploitable", false},
		{"Not an Issue", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPending(tt.value))
		})
	}
}

func TestSameID(t *testing.T) {
	assert.True(t, SameID(AviatorStatus.ID, "fb7b0462-2c2e-46d9-811a-dcc1f3c83051"))
	assert.False(t, SameID(AviatorStatus.ID, AviatorPrediction.ID))
}

func TestAviatorDefinitions(t *testing.T) {
	defs := Aviator()
	assert.Len(t, defs, 4)
	assert.True(t, AviatorPrediction.HasValue("aviator:unsure"))
	assert.False(t, AviatorStatus.HasValue(NotAnIssue))
}

package finding

import (
	"encoding/json"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loc(file string, line int) []Location {
	return []Location{{File: file, Line: line}}
}

func TestFinding_Likelihood(t *testing.T) {
	f := Finding{Accuracy: 5, Confidence: 4, Probability: 2.5}
	assert.InDelta(t, 2.0, f.Likelihood(), 1e-9)
}

func TestFinding_Validate(t *testing.T) {
	tests := []struct {
		name    string
		f       Finding
		wantErr bool
	}{
		{"valid", Finding{InstanceID: "A1", Category: "XSS", Priority: PriorityHigh}, false},
		{"no priority is accepted", Finding{InstanceID: "A1", Category: "XSS"}, false},
		{"missing id", Finding{Category: "XSS"}, true},
		{"missing category", Finding{InstanceID: "A1"}, true},
		{"bad priority", Finding{InstanceID: "A1", Category: "XSS", Priority: "urgent"}, true},
		{"negative confidence", Finding{InstanceID: "A1", Category: "XSS", Confidence: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.f.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLocation_ShortFileName(t *testing.T) {
	assert.Equal(t, "Main.java", Location{File: "src/com/acme/Main.java"}.ShortFileName())
	assert.Equal(t, "app.cs", Location{File: `C:\work\app.cs`}.ShortFileName())
	assert.Equal(t, "mixed.go", Location{File: `a\b/c\mixed.go`}.ShortFileName())
	assert.Equal(t, "plain.py", Location{File: "plain.py"}.ShortFileName())
	assert.Equal(t, "", Location{}.ShortFileName())
	assert.Equal(t, "", Location{File: "   "}.ShortFileName())
	assert.Equal(t, "src/dir/", Location{File: "src/dir/"}.ShortFileName())
	assert.Equal(t, `C:\work\`, Location{File: `C:\work\`}.ShortFileName())
	assert.Equal(t, " ", Location{File: "src/ "}.ShortFileName())
	assert.Equal(t, "java", Location{File: "src/Main.JAVA"}.Extension())
}

func TestCompare(t *testing.T) {
	findings := []*Finding{
		{InstanceID: "b20", Trace: loc("x/b.java", 20)},
		{InstanceID: "B10", Trace: loc("y/B.java", 10)},
		{InstanceID: "empty"},
		{InstanceID: "a5", Trace: loc(`win\A.java`, 5)},
		{InstanceID: "a3", Trace: loc("a.java", 3)},
		{InstanceID: "blank9", Trace: loc("src/ ", 9)},
		{InstanceID: "dir1", Trace: loc("src/dir/", 1)},
	}

	slices.SortStableFunc(findings, Compare)

	var ids []string
	for _, f := range findings {
		ids = append(ids, f.InstanceID)
	}
	assert.Equal(t, []string{"empty", "blank9", "a3", "a5", "B10", "b20", "dir1"}, ids)
}

func TestParsePriority(t *testing.T) {
	p, err := ParsePriority("critical")
	require.NoError(t, err)
	assert.Equal(t, PriorityCritical, p)
	assert.Equal(t, 4, p.Rank())

	_, err = ParsePriority("Info")
	assert.Error(t, err)
	assert.Equal(t, 0, Priority("Info").Rank())
	assert.Len(t, AllPriorities(), 4)
}

func TestNewCandidate(t *testing.T) {
	f := Finding{
		InstanceID:       "ID-1",
		Category:         "SQL Injection",
		Priority:         PriorityHigh,
		Confidence:       5,
		InstanceSeverity: 4,
		Accuracy:         5,
		Probability:      5,
		Analyzer:         "dataflow",
		Trace: []Location{
			{File: "src/Controller.java", Line: 12},
			{File: "src/Dao.java", Line: 40},
		},
	}

	c := NewCandidate(&f)
	assert.Equal(t, "ID-1", c.InstanceID)
	assert.Equal(t, "High", c.Priority)
	assert.Equal(t, 4.0, c.Severity)
	assert.InDelta(t, 5.0, c.Likelihood, 1e-9)
	assert.Equal(t, "java", c.FileExtension)
	assert.Equal(t, 12, c.Source.Line)
	assert.Equal(t, "src/Dao.java", c.Sink.File)

	// The candidate owns its trace.
	c.Trace[0].Line = 99
	assert.Equal(t, 12, f.Trace[0].Line)
}

func TestFinding_JSON(t *testing.T) {
	data := `{"instance_id":"X","category":"XSS","priority":"Low","confidence":2.5,"trace":[{"file":"a.js","line":3}]}`

	var f Finding
	require.NoError(t, json.Unmarshal([]byte(data), &f))
	assert.Equal(t, PriorityLow, f.Priority)
	assert.Equal(t, "a.js", f.Primary().File)
	assert.Equal(t, 3, f.Sink().Line)
}

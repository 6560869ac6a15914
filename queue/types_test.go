package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWorkItem_IsValid(t *testing.T) {
	valid := testItem(0)

	tests := []struct {
		name    string
		mutate  func(*WorkItem)
		wantErr string
	}{
		{"valid", func(*WorkItem) {}, ""},
		{"missing stream", func(w *WorkItem) { w.StreamID = "" }, "stream_id is required"},
		{"missing request", func(w *WorkItem) { w.RequestID = "" }, "request_id is required"},
		{"negative index", func(w *WorkItem) { w.Index = -1 }, "index must be non-negative"},
		{"zero total", func(w *WorkItem) { w.Total = 0 }, "total must be positive"},
		{"index out of bounds", func(w *WorkItem) { w.Index = 2 }, "out of bounds"},
		{"missing candidate", func(w *WorkItem) { w.CandidateJSON = "" }, "candidate_json is required"},
		{"missing submitted", func(w *WorkItem) { w.SubmittedAt = 0 }, "submitted_at must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := valid
			tt.mutate(&item)
			err := item.IsValid()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestWorkItem_Age(t *testing.T) {
	item := WorkItem{SubmittedAt: time.Now().Add(-time.Minute).UnixMilli()}
	assert.GreaterOrEqual(t, item.Age(), time.Minute)

	assert.Zero(t, (&WorkItem{}).Age())
}

func TestResult_IsValid(t *testing.T) {
	valid := Result{StreamID: "s", RequestID: "r", WorkerID: "w", VerdictJSON: "{}", StartedAt: 1, CompletedAt: 2}
	assert.NoError(t, valid.IsValid())

	errResult := valid
	errResult.VerdictJSON = ""
	errResult.Error = "boom"
	assert.NoError(t, errResult.IsValid())
	assert.True(t, errResult.HasError())

	empty := valid
	empty.VerdictJSON = ""
	assert.ErrorContains(t, empty.IsValid(), "verdict_json is required")

	backwards := valid
	backwards.CompletedAt = 0
	assert.ErrorContains(t, backwards.IsValid(), "cannot be before")
}

func TestResult_Duration(t *testing.T) {
	assert.Equal(t, 250*time.Millisecond, (&Result{StartedAt: 1000, CompletedAt: 1250}).Duration())
	assert.Zero(t, (&Result{}).Duration())
}

func TestKeys(t *testing.T) {
	k := Keys{Prefix: "p"}
	assert.Equal(t, "p:requests", k.Requests())
	assert.Equal(t, "p:results:abc", k.Results("abc"))
	assert.Equal(t, "p:workers", k.Workers())
	assert.Equal(t, "p:worker:w1:meta", k.WorkerMeta("w1"))
	assert.Equal(t, "p:worker:w1:health", k.WorkerHealth("w1"))

	assert.Equal(t, "aviator:requests", Keys{}.Requests())
}

package queue

import (
	"fmt"
	"strings"
	"time"
)

// WorkItem represents a single candidate submitted for triage.
type WorkItem struct {
	// StreamID correlates all work items of one batch
	StreamID string `json:"stream_id"`

	// RequestID identifies this candidate within the stream
	RequestID string `json:"request_id"`

	// Index is the position of this item in the batch (0-based)
	Index int `json:"index"`

	// Total is the total number of items in the batch
	Total int `json:"total"`

	// Token authorizes the request with the triage service
	Token string `json:"token,omitempty"`

	// ApplicationName and ApplicationVersion identify the scanned project
	ApplicationName    string `json:"application_name,omitempty"`
	ApplicationVersion string `json:"application_version,omitempty"`

	// CandidateJSON is the candidate finding serialized as JSON
	CandidateJSON string `json:"candidate_json"`

	// TraceID is the distributed tracing trace ID for observability
	TraceID string `json:"trace_id,omitempty"`

	// SpanID is the distributed tracing span ID for observability
	SpanID string `json:"span_id,omitempty"`

	// SubmittedAt is the Unix timestamp in milliseconds when work was submitted
	SubmittedAt int64 `json:"submitted_at"`
}

// Result represents the outcome of triaging a WorkItem.
// It is published to the stream's results channel.
type Result struct {
	// StreamID correlates this result with its batch
	StreamID string `json:"stream_id"`

	// RequestID correlates this result with the original work item
	RequestID string `json:"request_id"`

	// Index is the position of the work item in the batch
	Index int `json:"index"`

	// VerdictJSON is the verdict serialized as JSON.
	// Empty if Error is set
	VerdictJSON string `json:"verdict_json,omitempty"`

	// Error is the error message if triage failed
	Error string `json:"error,omitempty"`

	// WorkerID is the unique identifier of the worker that processed this item
	WorkerID string `json:"worker_id"`

	// StartedAt is the Unix timestamp in milliseconds when triage started
	StartedAt int64 `json:"started_at"`

	// CompletedAt is the Unix timestamp in milliseconds when triage completed
	CompletedAt int64 `json:"completed_at"`
}

// WorkerMeta contains metadata about a registered triage worker.
type WorkerMeta struct {
	// ID is the unique worker identifier
	ID string `json:"id"`

	// Version is the worker implementation version
	Version string `json:"version"`

	// Model names the triage model the worker runs, if any
	Model string `json:"model,omitempty"`

	// Capacity is the number of items the worker triages concurrently
	Capacity int `json:"capacity"`
}

// Keys builds the Redis key names for one prefix.
type Keys struct {
	Prefix string
}

// Requests returns the request list key.
func (k Keys) Requests() string { return k.join("requests") }

// Results returns the pub/sub channel for a stream.
func (k Keys) Results(streamID string) string { return k.join("results", streamID) }

// Workers returns the set of registered worker ids.
func (k Keys) Workers() string { return k.join("workers") }

// WorkerMeta returns the metadata hash of a worker.
func (k Keys) WorkerMeta(id string) string { return k.join("worker", id, "meta") }

// WorkerHealth returns the heartbeat key of a worker.
func (k Keys) WorkerHealth(id string) string { return k.join("worker", id, "health") }

func (k Keys) join(parts ...string) string {
	prefix := k.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + ":" + strings.Join(parts, ":")
}

// IsValid checks if the WorkItem has all required fields populated correctly.
// Returns an error describing any validation failures.
func (w *WorkItem) IsValid() error {
	if w.StreamID == "" {
		return fmt.Errorf("stream_id is required")
	}
	if w.RequestID == "" {
		return fmt.Errorf("request_id is required")
	}
	if w.Index < 0 {
		return fmt.Errorf("index must be non-negative, got %d", w.Index)
	}
	if w.Total <= 0 {
		return fmt.Errorf("total must be positive, got %d", w.Total)
	}
	if w.Index >= w.Total {
		return fmt.Errorf("index %d is out of bounds for total %d", w.Index, w.Total)
	}
	if w.CandidateJSON == "" {
		return fmt.Errorf("candidate_json is required")
	}
	if w.SubmittedAt <= 0 {
		return fmt.Errorf("submitted_at must be positive, got %d", w.SubmittedAt)
	}
	return nil
}

// Age returns the duration since this work item was submitted.
func (w *WorkItem) Age() time.Duration {
	if w.SubmittedAt <= 0 {
		return 0
	}
	now := time.Now().UnixMilli()
	return time.Duration(now-w.SubmittedAt) * time.Millisecond
}

// HasError returns true if the result represents a failed triage.
func (r *Result) HasError() bool {
	return r.Error != ""
}

// Duration returns the wall-clock time the worker spent on this item.
func (r *Result) Duration() time.Duration {
	if r.StartedAt <= 0 || r.CompletedAt <= 0 {
		return 0
	}
	return time.Duration(r.CompletedAt-r.StartedAt) * time.Millisecond
}

// IsValid checks if the Result has all required fields populated correctly.
func (r *Result) IsValid() error {
	if r.StreamID == "" {
		return fmt.Errorf("stream_id is required")
	}
	if r.RequestID == "" {
		return fmt.Errorf("request_id is required")
	}
	if r.WorkerID == "" {
		return fmt.Errorf("worker_id is required")
	}
	if r.CompletedAt < r.StartedAt {
		return fmt.Errorf("completed_at (%d) cannot be before started_at (%d)", r.CompletedAt, r.StartedAt)
	}
	if !r.HasError() && r.VerdictJSON == "" {
		return fmt.Errorf("verdict_json is required when error is empty")
	}
	return nil
}

// IsValid checks if the WorkerMeta has all required fields populated correctly.
func (m *WorkerMeta) IsValid() error {
	if m.ID == "" {
		return fmt.Errorf("worker id is required")
	}
	if m.Version == "" {
		return fmt.Errorf("version is required")
	}
	if m.Capacity < 0 {
		return fmt.Errorf("capacity must be non-negative, got %d", m.Capacity)
	}
	return nil
}

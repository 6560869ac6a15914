package engine

// Status is the aggregate result of a run.
type Status string

const (
	// StatusSkipped means no finding was eligible after filtering.
	StatusSkipped Status = "SKIPPED"

	// StatusFailed means findings were eligible but nothing was audited.
	StatusFailed Status = "FAILED"

	// StatusAudited means every eligible finding was merged, either with a
	// verdict or a skip annotation.
	StatusAudited Status = "AUDITED"

	// StatusPartiallyAudited covers everything in between.
	StatusPartiallyAudited Status = "PARTIALLY_AUDITED"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// AggregateStatus computes the run status from its counts. eligible is the
// count after filtering, merged the verdict merges and annotated the skip
// annotations.
func AggregateStatus(eligible, succeeded, merged, annotated int) Status {
	switch {
	case eligible == 0:
		return StatusSkipped
	case succeeded == 0 && merged == 0:
		return StatusFailed
	case merged+annotated >= eligible:
		return StatusAudited
	default:
		return StatusPartiallyAudited
	}
}

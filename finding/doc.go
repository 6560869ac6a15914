// Package finding provides the static-analysis finding model consumed by the
// audit engine.
//
// Findings are produced by the ingestion step that parses audit.fvdl; this
// package only defines the record and the projection sent to the triage
// service.
//
// # Core Types
//
// Finding is an immutable static-analysis result:
//   - instance id, category and subcategory
//   - Fortify priority (Critical, High, Medium, Low)
//   - confidence, instance severity, accuracy and probability
//   - the ordered trace of source locations
//
// Candidate is the flattened form of a Finding submitted for triage. There is
// exactly one Candidate per Finding and it is rebuilt for every run.
//
// # Ordering
//
// Compare implements the canonical ordering used for allocation and for batch
// submission: short file name of the first trace location (case-insensitive,
// empty names first), then line number.
package finding

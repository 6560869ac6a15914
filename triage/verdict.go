package triage

import (
	"strings"

	"github.com/zero-day-ai/aviator/finding"
)

// Outcome is the triage decision for one finding.
type Outcome string

const (
	OutcomeNotAnIssue  Outcome = "NOT_AN_ISSUE"
	OutcomeExploitable Outcome = "EXPLOITABLE"
	OutcomeUnsure      Outcome = "UNSURE"
)

// ParseOutcome accepts wire values ("NOT_AN_ISSUE") and display strings
// ("Not an Issue") in any case. Anything unrecognized is OutcomeUnsure.
func ParseOutcome(s string) Outcome {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	switch norm {
	case string(OutcomeNotAnIssue):
		return OutcomeNotAnIssue
	case string(OutcomeExploitable):
		return OutcomeExploitable
	default:
		return OutcomeUnsure
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Outcome) UnmarshalText(b []byte) error {
	*o = ParseOutcome(string(b))
	return nil
}

// Display returns the human-readable form used as a tag value.
func (o Outcome) Display() string {
	switch o {
	case OutcomeNotAnIssue:
		return "Not an Issue"
	case OutcomeExploitable:
		return "Exploitable"
	default:
		return "Unsure"
	}
}

// Verdict statuses.
const (
	StatusSuccess       = "SUCCESS"
	StatusSkipped       = "SKIPPED"
	StatusFailed        = "FAILED"
	StatusInternalError = "INTERNAL_ERROR"

	// stream control statuses, never surfaced as verdicts
	statusPong                  = "PONG"
	statusBackpressureWarning   = "BACKPRESSURE_WARNING"
	statusBackpressureViolation = "BACKPRESSURE_VIOLATION"
)

// TierGold marks verdicts produced by the higher-accuracy tier.
const TierGold = "GOLD"

// Verdict is the triage service's answer for one candidate.
type Verdict struct {
	RequestID     string  `json:"request_id"`
	InstanceID    string  `json:"instance_id,omitempty"`
	Tier          string  `json:"tier,omitempty"`
	Outcome       Outcome `json:"outcome"`
	Comment       string  `json:"comment,omitempty"`
	Status        string  `json:"status"`
	StatusMessage string  `json:"status_message,omitempty"`
	InputTokens   int64   `json:"input_tokens,omitempty"`
	OutputTokens  int64   `json:"output_tokens,omitempty"`
}

// IsGold reports whether the verdict came from the gold tier.
func (v *Verdict) IsGold() bool {
	return strings.EqualFold(v.Tier, TierGold)
}

// Succeeded reports whether the verdict carries a usable decision.
func (v *Verdict) Succeeded() bool {
	return v.Status == StatusSuccess
}

// ProjectMetadata identifies the scanned project to the triage service.
type ProjectMetadata struct {
	ProjectName        string `json:"project_name,omitempty"`
	BuildID            string `json:"build_id,omitempty"`
	ApplicationName    string `json:"application_name,omitempty"`
	ApplicationVersion string `json:"application_version,omitempty"`
}

// BatchRequest is one logical batch exchanged with the triage service.
// RequestIDs[i] identifies Candidates[i].
type BatchRequest struct {
	StreamID   string
	Project    ProjectMetadata
	Token      string
	Candidates []finding.Candidate
	RequestIDs []string
}

// Len returns the number of candidates.
func (r *BatchRequest) Len() int {
	return len(r.Candidates)
}

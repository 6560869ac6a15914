// Package tags is the registry of well-known audit tags.
//
// Tags are GUID-identified classification slots in audit.xml. The GUIDs below
// are fixed across every FPR; only the archive's result tag is resolved per
// archive (see filtertemplate.Template.ResolveResultTag).
package tags

import "strings"

// Definition describes a tag: its display name, GUID and allowed values.
type Definition struct {
	Name       string
	ID         string
	Values     []string
	HasDefault bool
}

// Tag values shared between the human workflow and automated verdicts.
const (
	NotAnIssue          = "Not an Issue"
	Exploitable         = "Exploitable"
	PendingReview       = "Pending Review/Not Set"
	PendingReviewShort  = "Pending Review"
	NotSet              = "Not Set"
	FalsePositive       = "False Positive"
	Suspicious          = "Suspicious"
	Sanitized           = "Sanitized"
	Unsure              = "Unsure"
	RemediationRequired = "Remediation Required"
	ProposedNotAnIssue  = "Proposed Not an Issue"
	ProcessedByAviator  = "PROCESSED_BY_AVIATOR"
)

// Values of the Aviator prediction tag.
const (
	PredictionNotAnIssue          = "AVIATOR:Not an Issue"
	PredictionRemediationRequired = "AVIATOR:Remediation Required"
	PredictionUnsure              = "AVIATOR:Unsure"
	PredictionExcluded            = "AVIATOR:Excluded due to Limiting"
	PredictionLikelyTP            = "AVIATOR:Suspicious"
	PredictionLikelyFP            = "AVIATOR:Proposed Not an Issue"
)

// Well-known tag definitions.
var (
	Analysis = Definition{
		Name:   "Analysis",
		ID:     "87f2364f-dcd4-49e6-861d-f8d3f351686b",
		Values: []string{NotAnIssue, Exploitable},
	}

	AuditorStatus = Definition{
		Name: "Auditor Status",
		ID:   "ACB05E55-E74D-468C-8501-52E1FDC27D71",
		Values: []string{
			PendingReview, NotAnIssue, Unsure, RemediationRequired, ProposedNotAnIssue, Suspicious,
		},
	}

	HumanAudit = Definition{
		Name:   "FoD",
		ID:     "604f0fbe-b5fe-47cd-a9cb-587ad8ebe93a",
		Values: []string{PendingReview, FalsePositive, Exploitable, Suspicious, Sanitized},
	}

	AviatorStatus = Definition{
		Name:   "Aviator status",
		ID:     "FB7B0462-2C2E-46D9-811A-DCC1F3C83051",
		Values: []string{ProcessedByAviator},
	}

	AviatorPrediction = Definition{
		Name: "Aviator prediction",
		ID:   "C2D6EC66-CCB3-4FB9-9EE0-0BB02F51008F",
		Values: []string{
			PredictionNotAnIssue,
			PredictionRemediationRequired,
			PredictionUnsure,
			PredictionExcluded,
			PredictionLikelyTP,
			PredictionLikelyFP,
		},
	}

	ExpectedOutcome = Definition{
		Name: "Aviator expected outcome",
		ID:   "013cc66f-8651-4e39-bacb-beb918c5ef65",
	}
)

// Aviator returns the definitions the engine writes to and therefore must
// exist in the archive's filter template.
func Aviator() []Definition {
	return []Definition{AviatorPrediction, AviatorStatus, HumanAudit, AuditorStatus}
}

// SameID reports whether two tag GUIDs are equal. GUIDs are compared
// case-insensitively because archives mix upper and lower case.
func SameID(a, b string) bool {
	return strings.EqualFold(a, b)
}

// IsPending reports whether v is one of the "no decision yet" values.
func IsPending(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "not set", "pending review", "pending review/not set":
		return true
	default:
		return false
	}
}

// HasValue reports whether v is one of the definition's allowed values.
func (d Definition) HasValue(v string) bool {
	for _, allowed := range d.Values {
		if strings.EqualFold(allowed, v) {
			return true
		}
	}
	return false
}

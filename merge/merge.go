// Package merge applies triage verdicts and allocation skips to an audit
// document.
//
// Every mutation follows the same shape: tags are set, a threaded comment is
// appended and one TagHistory entry records the tags that changed. Existing
// records get their revision bumped; records created here start at 0.
// Nothing already present in the document is removed.
package merge

import (
	"errors"
	"strings"
	"time"

	"github.com/zero-day-ai/aviator/allocation"
	"github.com/zero-day-ai/aviator/auditdoc"
	"github.com/zero-day-ai/aviator/config"
	"github.com/zero-day-ai/aviator/tags"
	"github.com/zero-day-ai/aviator/triage"
)

// Username attributes comments and trail entries written by the engine.
const Username = "Fortify Aviator"

// Merger writes verdicts and skips onto an audit document.
type Merger struct {
	// Mapping resolves tier and outcome to a result tag value.
	Mapping *config.TagMapping

	// ResultTagID is the GUID of the archive's result tag. Defaults to the
	// mapping's tag id.
	ResultTagID string

	// Username defaults to Username.
	Username string

	// Now defaults to time.Now.
	Now func() time.Time
}

// New returns a Merger for the given mapping and result tag.
func New(mapping *config.TagMapping, resultTagID string) *Merger {
	return &Merger{Mapping: mapping, ResultTagID: resultTagID}
}

// Prediction returns the Aviator prediction tag value for a verdict.
func Prediction(v triage.Verdict) string {
	switch v.Outcome {
	case triage.OutcomeNotAnIssue:
		if v.IsGold() {
			return tags.PredictionNotAnIssue
		}
		return tags.PredictionLikelyFP
	case triage.OutcomeExploitable:
		if v.IsGold() {
			return tags.PredictionRemediationRequired
		}
		return tags.PredictionLikelyTP
	default:
		return tags.PredictionUnsure
	}
}

// ApplyVerdict merges one verdict into doc. It reports whether the document
// changed. Failed verdicts and silent skips leave the document untouched.
func (m *Merger) ApplyVerdict(doc *auditdoc.Document, v triage.Verdict) (bool, error) {
	if v.InstanceID == "" {
		return false, errors.New("verdict has no instance id")
	}

	comment := strings.TrimSpace(v.Comment)
	skipped := strings.EqualFold(v.Status, triage.StatusSkipped)
	switch {
	case skipped && comment == "":
		return false, nil
	case !skipped && !v.Succeeded():
		return false, nil
	}

	if m.Mapping == nil {
		return false, errors.New("merger has no tag mapping")
	}

	issue := m.issue(doc, v.InstanceID)
	rec := recorder{issue: issue}

	// a skip with an explanation is recorded without a decision
	if !skipped {
		rec.set(tags.AviatorPrediction.ID, Prediction(v))

		result := m.Mapping.Result(v.IsGold(), mappingOutcome(v.Outcome))
		if result.Value != "" {
			rec.set(m.resultTagID(), result.Value)
		}
		if result.Suppress {
			issue.Suppressed = true
		}
	}
	rec.set(tags.AviatorStatus.ID, tags.ProcessedByAviator)

	m.finish(issue, rec, comment)
	return true, nil
}

// ApplySkip records why an eligible finding was not triaged. It never
// overwrites an existing decision.
func (m *Merger) ApplySkip(doc *auditdoc.Document, skip allocation.Skip) error {
	if skip.Finding.InstanceID == "" {
		return errors.New("skipped finding has no instance id")
	}

	issue := m.issue(doc, skip.Finding.InstanceID)
	rec := recorder{issue: issue}

	rec.set(tags.AviatorStatus.ID, tags.ProcessedByAviator)

	resultID := m.resultTagID()
	if current := strings.TrimSpace(issue.TagValue(resultID)); current == "" || strings.EqualFold(current, tags.NotSet) {
		rec.set(resultID, tags.PendingReviewShort)
	}

	if issue.IsNew() {
		rec.set(tags.AviatorPrediction.ID, tags.PredictionExcluded)
		issue.Suppressed = false
	}

	m.finish(issue, rec, skip.Message())
	return nil
}

// issue returns the record for id, creating it at revision 0 when absent.
// Existing records are bumped by one revision.
func (m *Merger) issue(doc *auditdoc.Document, id string) *auditdoc.Issue {
	if existing := doc.Issue(id); existing != nil {
		existing.Revision++
		return existing
	}
	return doc.AddIssue(id)
}

func (m *Merger) finish(issue *auditdoc.Issue, rec recorder, comment string) {
	stamp := m.now().Format(auditdoc.TimeLayout)
	user := m.username()

	if comment != "" {
		issue.AddComment(comment, user, stamp)
	}
	issue.AddTrail(rec.changes, stamp, user)
}

func (m *Merger) resultTagID() string {
	if m.ResultTagID != "" {
		return m.ResultTagID
	}
	if m.Mapping != nil && m.Mapping.TagID != "" {
		return m.Mapping.TagID
	}
	return tags.Analysis.ID
}

func (m *Merger) username() string {
	if m.Username != "" {
		return m.Username
	}
	return Username
}

func (m *Merger) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// recorder sets tags on an issue and remembers which ones changed.
type recorder struct {
	issue   *auditdoc.Issue
	changes []auditdoc.Tag
}

func (r *recorder) set(id, value string) {
	if r.issue.SetTag(id, value) {
		r.changes = append(r.changes, auditdoc.Tag{ID: id, Value: value})
	}
}

func mappingOutcome(o triage.Outcome) string {
	switch o {
	case triage.OutcomeNotAnIssue:
		return config.OutcomeFP
	case triage.OutcomeExploitable:
		return config.OutcomeTP
	default:
		return config.OutcomeUnsure
	}
}

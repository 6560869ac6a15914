package auditdoc

import (
	"encoding/xml"
	"strings"

	"github.com/zero-day-ai/aviator/tags"
)

// Tag is one tag value carried by an issue or recorded in its audit trail.
type Tag struct {
	ID    string
	Value string
}

// Comment is one threaded comment on an issue.
type Comment struct {
	Content   string
	Username  string
	Timestamp string

	raw []byte
}

// TrailEntry is one TagHistory record in an issue's client audit trail.
type TrailEntry struct {
	Changes  []Tag
	EditTime string
	Username string

	raw []byte
}

// Issue is the audit record of one finding, keyed by instance id.
// Comments and trail entries read from the archive are written back
// byte-for-byte; only appended ones are generated.
type Issue struct {
	InstanceID string
	Suppressed bool
	Revision   int
	Tags       []Tag
	Comments   []Comment
	Trail      []TrailEntry

	// isNew is set for issues created during this run.
	isNew bool

	attrs []xml.Attr
	extra [][]byte

	// unmodelled children of ThreadedComments and ClientAuditTrail
	commentExtra [][]byte
	trailExtra   [][]byte
}

// IsNew reports whether the issue did not exist in the archive.
func (i *Issue) IsNew() bool {
	return i.isNew
}

// Tag returns the value of the tag with the given GUID.
func (i *Issue) Tag(id string) (string, bool) {
	for _, t := range i.Tags {
		if tags.SameID(t.ID, id) {
			return t.Value, true
		}
	}
	return "", false
}

// TagValue returns the value of the tag with the given GUID, or "".
func (i *Issue) TagValue(id string) string {
	v, _ := i.Tag(id)
	return v
}

// SetTag sets a tag value, adding the tag if missing. It reports whether the
// stored value changed.
func (i *Issue) SetTag(id, value string) bool {
	for idx := range i.Tags {
		if tags.SameID(i.Tags[idx].ID, id) {
			if i.Tags[idx].Value == value {
				return false
			}
			i.Tags[idx].Value = value
			return true
		}
	}
	i.Tags = append(i.Tags, Tag{ID: id, Value: value})
	return true
}

// AddComment appends a threaded comment.
func (i *Issue) AddComment(content, username, timestamp string) {
	i.Comments = append(i.Comments, Comment{
		Content:   content,
		Username:  username,
		Timestamp: timestamp,
	})
}

// AddTrail appends a TagHistory entry. Entries without changes are ignored.
func (i *Issue) AddTrail(changes []Tag, editTime, username string) {
	if len(changes) == 0 {
		return
	}
	i.Trail = append(i.Trail, TrailEntry{
		Changes:  append([]Tag(nil), changes...),
		EditTime: editTime,
		Username: username,
	})
}

// HasPendingResult reports whether the tag with the given GUID is unset or
// holds a "no decision" value.
func (i *Issue) HasPendingResult(id string) bool {
	v, ok := i.Tag(id)
	return !ok || strings.TrimSpace(v) == "" || strings.EqualFold(v, tags.NotSet)
}

// Package auditdoc reads and writes the audit-decision document (audit.xml)
// of an FPR archive.
//
// The document is parsed into a typed model: one Issue per audited finding
// with its tags, threaded comments and client audit trail. Everything the
// model does not describe (project info, removed issues, unknown issue
// children, existing comments and trail entries) is kept as the original
// bytes and written back unchanged, so a parse/encode round trip never drops
// information. Mutations happen on the model; Encode is the single
// serialization step.
package auditdoc

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Namespace is the audit.xml schema namespace.
const Namespace = "xmlns://www.fortify.com/schema/audit"

// TimeLayout is the timestamp format used for comments and trail entries.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// defaultPrefix is the namespace prefix used by documents this package creates.
const defaultPrefix = "ns2"

// section is one child of the root element. Either raw bytes copied from the
// source document, or the position of the IssueList.
type section struct {
	raw       []byte
	issueList bool
}

// Document is the in-memory audit document.
type Document struct {
	prolog []byte
	root   xml.StartElement
	prefix string

	sections []section

	// issueListExtra holds IssueList children that are not Issue elements.
	issueListExtra [][]byte

	issues []*Issue
	index  map[string]*Issue
}

// New returns a minimal empty audit document: an Audit root at version 4.4,
// a ProjectInfo block for an unknown project and an empty IssueList.
func New(now time.Time) *Document {
	p := defaultPrefix
	root := xml.StartElement{
		Name: xml.Name{Space: p, Local: "Audit"},
		Attr: []xml.Attr{
			{Name: xml.Name{Space: "xmlns", Local: p}, Value: Namespace},
			{Name: xml.Name{Space: "xmlns", Local: "ns3"}, Value: "xmlns://www.fortifysoftware.com/schema/activitytemplate"},
			{Name: xml.Name{Space: "xmlns", Local: "ns4"}, Value: "xmlns://www.fortifysoftware.com/schema/wsTypes"},
			{Name: xml.Name{Space: "xmlns", Local: "ns5"}, Value: "xmlns://www.fortify.com/schema/issuemanagement"},
			{Name: xml.Name{Space: "xmlns", Local: "ns6"}, Value: "http://www.fortify.com/schema/fws"},
			{Name: xml.Name{Space: "xmlns", Local: "ns7"}, Value: "xmlns://www.fortifysoftware.com/schema/runtime"},
			{Name: xml.Name{Space: "xmlns", Local: "ns8"}, Value: "xmlns://www.fortifysoftware.com/schema/seed"},
			{Name: xml.Name{Space: "xmlns", Local: "ns9"}, Value: "xmlns://www.fortify.com/schema/attachments"},
			{Name: xml.Name{Space: "xmlns", Local: "xsi"}, Value: "http://www.w3.org/2001/XMLSchema-instance"},
			{Name: xml.Name{Local: "version"}, Value: "4.4"},
		},
	}

	var info bytes.Buffer
	fmt.Fprintf(&info, "<%[1]s:ProjectInfo><%[1]s:Name>Unknown Project</%[1]s:Name>", p)
	fmt.Fprintf(&info, "<%[1]s:ProjectVersionId>-1</%[1]s:ProjectVersionId>", p)
	fmt.Fprintf(&info, "<%[1]s:WriteDate>%[2]s</%[1]s:WriteDate></%[1]s:ProjectInfo>", p, now.Format(TimeLayout))

	return &Document{
		root:   root,
		prefix: p,
		sections: []section{
			{raw: info.Bytes()},
			{issueList: true},
		},
		index: make(map[string]*Issue),
	}
}

// Parse reads an audit document.
func Parse(data []byte) (*Document, error) {
	p := &parser{data: data, dec: xml.NewDecoder(bytes.NewReader(data))}
	doc, err := p.document()
	if err != nil {
		return nil, fmt.Errorf("failed to parse audit document: %w", err)
	}
	return doc, nil
}

// Issue returns the audit record for an instance id, or nil.
func (d *Document) Issue(instanceID string) *Issue {
	return d.index[instanceID]
}

// Issues returns all audit records in document order.
func (d *Document) Issues() []*Issue {
	return d.issues
}

// Records returns the audit records keyed by instance id.
func (d *Document) Records() map[string]*Issue {
	out := make(map[string]*Issue, len(d.index))
	for k, v := range d.index {
		out[k] = v
	}
	return out
}

// AddIssue creates a new audit record with revision 0. If a record for the
// instance id already exists it is returned unchanged.
func (d *Document) AddIssue(instanceID string) *Issue {
	if existing, ok := d.index[instanceID]; ok {
		return existing
	}
	issue := &Issue{InstanceID: instanceID, isNew: true}
	d.issues = append(d.issues, issue)
	d.index[instanceID] = issue
	return issue
}

// Len returns the number of audit records.
func (d *Document) Len() int {
	return len(d.issues)
}

type parser struct {
	data []byte
	dec  *xml.Decoder
}

// next returns the next raw token and the byte offset at which it started.
func (p *parser) next() (xml.Token, int64, error) {
	off := p.dec.InputOffset()
	tok, err := p.dec.RawToken()
	return tok, off, err
}

func (p *parser) document() (*Document, error) {
	doc := &Document{index: make(map[string]*Issue)}

	for {
		tok, off, err := p.next()
		if err == io.EOF {
			return nil, errors.New("document has no root element")
		}
		if err != nil {
			return nil, err
		}
		if start, ok := tok.(xml.StartElement); ok {
			doc.prolog = bytes.TrimSpace(p.data[:off])
			doc.root = start.Copy()
			doc.prefix = start.Name.Space
			break
		}
	}

	if doc.root.Name.Local != "Audit" {
		return nil, fmt.Errorf("unexpected root element %q", doc.root.Name.Local)
	}

	for {
		tok, off, err := p.next()
		if err != nil {
			if err == io.EOF {
				return nil, errors.New("unexpected end of document")
			}
			return nil, err
		}

		switch t := tok.(type) {
		case xml.EndElement:
			return doc, nil
		case xml.StartElement:
			if t.Name.Local == "IssueList" {
				if err := p.issueList(doc); err != nil {
					return nil, err
				}
				doc.sections = append(doc.sections, section{issueList: true})
				continue
			}
			raw, err := p.capture(off)
			if err != nil {
				return nil, err
			}
			doc.sections = append(doc.sections, section{raw: raw})
		case xml.Comment, xml.ProcInst:
			doc.sections = append(doc.sections, section{raw: copyBytes(p.data[off:p.dec.InputOffset()])})
		}
	}
}

func (p *parser) issueList(doc *Document) error {
	for {
		tok, off, err := p.next()
		if err != nil {
			return err
		}

		switch t := tok.(type) {
		case xml.EndElement:
			return nil
		case xml.StartElement:
			if t.Name.Local != "Issue" {
				raw, err := p.capture(off)
				if err != nil {
					return err
				}
				doc.issueListExtra = append(doc.issueListExtra, raw)
				continue
			}
			issue, err := p.issue(t)
			if err != nil {
				return err
			}
			if _, dup := doc.index[issue.InstanceID]; dup {
				return fmt.Errorf("duplicate issue %q", issue.InstanceID)
			}
			doc.issues = append(doc.issues, issue)
			doc.index[issue.InstanceID] = issue
		}
	}
}

func (p *parser) issue(start xml.StartElement) (*Issue, error) {
	issue := &Issue{}
	for _, a := range start.Attr {
		switch {
		case a.Name.Space == "" && a.Name.Local == "instanceId":
			issue.InstanceID = a.Value
		case a.Name.Space == "" && a.Name.Local == "suppressed":
			issue.Suppressed = strings.EqualFold(a.Value, "true")
		case a.Name.Space == "" && a.Name.Local == "revision":
			issue.Revision, _ = strconv.Atoi(strings.TrimSpace(a.Value))
		default:
			issue.attrs = append(issue.attrs, a)
		}
	}
	if issue.InstanceID == "" {
		return nil, errors.New("issue without instanceId")
	}

	for {
		tok, off, err := p.next()
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.EndElement:
			return issue, nil
		case xml.StartElement:
			switch t.Name.Local {
			case "Tag":
				tag, err := p.tag(t)
				if err != nil {
					return nil, err
				}
				issue.Tags = append(issue.Tags, tag)
			case "ThreadedComments":
				if err := p.comments(issue); err != nil {
					return nil, err
				}
			case "ClientAuditTrail":
				if err := p.trail(issue); err != nil {
					return nil, err
				}
			default:
				raw, err := p.capture(off)
				if err != nil {
					return nil, err
				}
				issue.extra = append(issue.extra, raw)
			}
		}
	}
}

// tag reads a Tag element whose start token has been consumed.
func (p *parser) tag(start xml.StartElement) (Tag, error) {
	tag := Tag{ID: attr(start, "id")}
	fields, err := p.fields()
	if err != nil {
		return Tag{}, err
	}
	tag.Value = fields["Value"]
	return tag, nil
}

func (p *parser) comments(issue *Issue) error {
	for {
		tok, off, err := p.next()
		if err != nil {
			return err
		}

		switch t := tok.(type) {
		case xml.EndElement:
			return nil
		case xml.StartElement:
			if t.Name.Local != "Comment" {
				raw, err := p.capture(off)
				if err != nil {
					return err
				}
				issue.commentExtra = append(issue.commentExtra, raw)
				continue
			}
			fields, err := p.fields()
			if err != nil {
				return err
			}
			issue.Comments = append(issue.Comments, Comment{
				Content:   fields["Content"],
				Username:  fields["Username"],
				Timestamp: fields["Timestamp"],
				raw:       copyBytes(p.data[off:p.dec.InputOffset()]),
			})
		}
	}
}

func (p *parser) trail(issue *Issue) error {
	for {
		tok, off, err := p.next()
		if err != nil {
			return err
		}

		switch t := tok.(type) {
		case xml.EndElement:
			return nil
		case xml.StartElement:
			if t.Name.Local != "TagHistory" {
				raw, err := p.capture(off)
				if err != nil {
					return err
				}
				issue.trailExtra = append(issue.trailExtra, raw)
				continue
			}
			entry, err := p.tagHistory()
			if err != nil {
				return err
			}
			entry.raw = copyBytes(p.data[off:p.dec.InputOffset()])
			issue.Trail = append(issue.Trail, entry)
		}
	}
}

func (p *parser) tagHistory() (TrailEntry, error) {
	var entry TrailEntry
	for {
		tok, _, err := p.next()
		if err != nil {
			return entry, err
		}

		switch t := tok.(type) {
		case xml.EndElement:
			return entry, nil
		case xml.StartElement:
			switch t.Name.Local {
			case "Tag":
				tag, err := p.tag(t)
				if err != nil {
					return entry, err
				}
				entry.Changes = append(entry.Changes, tag)
			case "EditTime":
				entry.EditTime, err = p.text()
			case "Username":
				entry.Username, err = p.text()
			default:
				err = p.skip()
			}
			if err != nil {
				return entry, err
			}
		}
	}
}

// fields reads the simple text children of the current element, keyed by
// local name, up to and including its end tag.
func (p *parser) fields() (map[string]string, error) {
	out := make(map[string]string)
	for {
		tok, _, err := p.next()
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.EndElement:
			return out, nil
		case xml.StartElement:
			text, err := p.text()
			if err != nil {
				return nil, err
			}
			if _, seen := out[t.Name.Local]; !seen {
				out[t.Name.Local] = text
			}
		}
	}
}

// text returns the character data of the current element, including that of
// nested elements, and consumes its end tag.
func (p *parser) text() (string, error) {
	var sb strings.Builder
	depth := 1
	for depth > 0 {
		tok, _, err := p.next()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			sb.Write(t)
		}
	}
	return sb.String(), nil
}

// skip consumes the current element.
func (p *parser) skip() error {
	depth := 1
	for depth > 0 {
		tok, _, err := p.next()
		if err != nil {
			return err
		}
		switch tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		}
	}
	return nil
}

// capture consumes the current element and returns its source bytes, starting
// at off.
func (p *parser) capture(off int64) ([]byte, error) {
	if err := p.skip(); err != nil {
		return nil, err
	}
	return copyBytes(p.data[off:p.dec.InputOffset()]), nil
}

func attr(start xml.StartElement, local string) string {
	for _, a := range start.Attr {
		if a.Name.Space == "" && a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func copyBytes(b []byte) []byte {
	return append([]byte(nil), b...)
}

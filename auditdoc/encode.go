package auditdoc

import (
	"bytes"
	"encoding/xml"
	"io"
	"strconv"
	"strings"
)

const xmlHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`

// Encode serializes the document.
func (d *Document) Encode(w io.Writer) error {
	b, err := d.Bytes()
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// Bytes serializes the document into a new byte slice.
func (d *Document) Bytes() ([]byte, error) {
	pr := &printer{prefix: d.prefix}

	if len(d.prolog) > 0 {
		pr.buf.Write(d.prolog)
	} else {
		pr.buf.WriteString(xmlHeader)
	}
	pr.buf.WriteByte('\n')

	pr.buf.WriteByte('<')
	pr.buf.WriteString(qualified(d.root.Name))
	for _, a := range d.root.Attr {
		pr.attr(qualified(a.Name), a.Value)
	}
	pr.buf.WriteByte('>')

	wroteIssues := false
	for _, s := range d.sections {
		if s.issueList {
			d.writeIssueList(pr)
			wroteIssues = true
			continue
		}
		pr.newline(1)
		pr.buf.Write(s.raw)
	}
	if !wroteIssues {
		d.writeIssueList(pr)
	}

	pr.newline(0)
	pr.buf.WriteString("</")
	pr.buf.WriteString(qualified(d.root.Name))
	pr.buf.WriteString(">\n")

	return pr.buf.Bytes(), nil
}

func (d *Document) writeIssueList(pr *printer) {
	pr.newline(1)
	if len(d.issues) == 0 && len(d.issueListExtra) == 0 {
		pr.empty("IssueList")
		return
	}

	pr.open("IssueList")
	for _, issue := range d.issues {
		writeIssue(pr, issue)
	}
	for _, raw := range d.issueListExtra {
		pr.newline(2)
		pr.buf.Write(raw)
	}
	pr.newline(1)
	pr.close("IssueList")
}

func writeIssue(pr *printer, issue *Issue) {
	pr.newline(2)
	pr.buf.WriteByte('<')
	pr.buf.WriteString(pr.name("Issue"))
	pr.attr("instanceId", issue.InstanceID)
	pr.attr("suppressed", strconv.FormatBool(issue.Suppressed))
	pr.attr("revision", strconv.Itoa(issue.Revision))
	for _, a := range issue.attrs {
		pr.attr(qualified(a.Name), a.Value)
	}
	pr.buf.WriteByte('>')

	for _, tag := range issue.Tags {
		pr.newline(3)
		writeTag(pr, tag)
	}

	if len(issue.Comments) > 0 || len(issue.commentExtra) > 0 {
		pr.newline(3)
		pr.open("ThreadedComments")
		for _, c := range issue.Comments {
			if c.raw != nil {
				pr.newline(4)
				pr.buf.Write(c.raw)
			}
		}
		writeRaw(pr, 4, issue.commentExtra)
		for _, c := range issue.Comments {
			if c.raw != nil {
				continue
			}
			pr.newline(4)
			pr.open("Comment")
			pr.element("Content", c.Content)
			pr.element("Username", c.Username)
			pr.element("Timestamp", c.Timestamp)
			pr.close("Comment")
		}
		pr.newline(3)
		pr.close("ThreadedComments")
	}

	writeRaw(pr, 3, issue.extra)

	if len(issue.Trail) > 0 || len(issue.trailExtra) > 0 {
		pr.newline(3)
		pr.open("ClientAuditTrail")
		for _, e := range issue.Trail {
			if e.raw != nil {
				pr.newline(4)
				pr.buf.Write(e.raw)
			}
		}
		writeRaw(pr, 4, issue.trailExtra)
		for _, e := range issue.Trail {
			if e.raw != nil {
				continue
			}
			pr.newline(4)
			pr.open("TagHistory")
			for _, tag := range e.Changes {
				writeTag(pr, tag)
			}
			pr.element("EditTime", e.EditTime)
			pr.element("Username", e.Username)
			pr.close("TagHistory")
		}
		pr.newline(3)
		pr.close("ClientAuditTrail")
	}

	pr.newline(2)
	pr.close("Issue")
}

// writeRaw copies captured elements back unchanged.
func writeRaw(pr *printer, depth int, elems [][]byte) {
	for _, raw := range elems {
		pr.newline(depth)
		pr.buf.Write(raw)
	}
}

func writeTag(pr *printer, tag Tag) {
	pr.buf.WriteByte('<')
	pr.buf.WriteString(pr.name("Tag"))
	pr.attr("id", tag.ID)
	pr.buf.WriteByte('>')
	pr.element("Value", tag.Value)
	pr.close("Tag")
}

// printer writes prefixed elements. encoding/xml cannot emit a chosen
// namespace prefix, so names are written literally.
type printer struct {
	buf    bytes.Buffer
	prefix string
}

func (p *printer) name(local string) string {
	if p.prefix == "" {
		return local
	}
	return p.prefix + ":" + local
}

func (p *printer) newline(depth int) {
	p.buf.WriteByte('\n')
	p.buf.WriteString(strings.Repeat("    ", depth))
}

func (p *printer) open(local string) {
	p.buf.WriteByte('<')
	p.buf.WriteString(p.name(local))
	p.buf.WriteByte('>')
}

func (p *printer) close(local string) {
	p.buf.WriteString("</")
	p.buf.WriteString(p.name(local))
	p.buf.WriteByte('>')
}

func (p *printer) empty(local string) {
	p.buf.WriteByte('<')
	p.buf.WriteString(p.name(local))
	p.buf.WriteString("/>")
}

func (p *printer) element(local, text string) {
	p.open(local)
	_ = xml.EscapeText(&p.buf, []byte(text))
	p.close(local)
}

func (p *printer) attr(name, value string) {
	p.buf.WriteByte(' ')
	p.buf.WriteString(name)
	p.buf.WriteString(`="`)
	_ = xml.EscapeText(&p.buf, []byte(value))
	p.buf.WriteByte('"')
}

func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

// Package filtertemplate reads the filter template (filtertemplate.xml) of an
// FPR archive: its tag definitions and filter sets.
//
// The template is never re-serialized as a whole. Missing tag definitions
// are spliced in after the last existing TagDefinition and every other byte
// of the file is kept as is.
package filtertemplate

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/zero-day-ai/aviator/tags"
)

// Filter actions.
const (
	ActionSetFolder = "setFolder"
	ActionHide      = "hide"
)

// TagValue is one allowed value of a tag definition.
type TagValue struct {
	ID        string
	Value     string
	IsDefault bool
	Hidden    bool
}

// TagDefinition is a tag declared by the template.
type TagDefinition struct {
	ID        string
	Name      string
	Type      string
	ValueType string
	Hidden    bool
	Values    []TagValue
}

// Filter is one rule of a filter set.
type Filter struct {
	Action      string
	ActionParam string
	Query       string
}

// IsSetFolder reports whether the filter assigns matches to a folder.
func (f Filter) IsSetFolder() bool {
	return strings.EqualFold(f.Action, ActionSetFolder)
}

// IsHide reports whether the filter hides matches.
func (f Filter) IsHide() bool {
	return strings.EqualFold(f.Action, ActionHide)
}

// FilterSet is an ordered list of filters.
type FilterSet struct {
	ID      string
	Type    string
	Title   string
	Enabled bool
	Filters []Filter
}

// Template is a parsed filter template.
type Template struct {
	ID             string
	Name           string
	TagDefinitions []TagDefinition
	FilterSets     []FilterSet

	data     []byte
	prefix   string
	insertAt int
	added    []tags.Definition
}

// Parse reads a filter template.
func Parse(data []byte) (*Template, error) {
	t, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse filter template: %w", err)
	}
	return t, nil
}

// DefaultFilterSet returns the first enabled filter set, or nil.
func (t *Template) DefaultFilterSet() *FilterSet {
	if t == nil {
		return nil
	}
	for i := range t.FilterSets {
		if t.FilterSets[i].Enabled {
			return &t.FilterSets[i]
		}
	}
	return nil
}

// TagByName finds a tag definition by name, ignoring case.
func (t *Template) TagByName(name string) (TagDefinition, bool) {
	if t == nil {
		return TagDefinition{}, false
	}
	for _, d := range t.TagDefinitions {
		if strings.EqualFold(d.Name, name) {
			return d, true
		}
	}
	return TagDefinition{}, false
}

// TagByID finds a tag definition by GUID, ignoring case.
func (t *Template) TagByID(id string) (TagDefinition, bool) {
	if t == nil {
		return TagDefinition{}, false
	}
	for _, d := range t.TagDefinitions {
		if tags.SameID(d.ID, id) {
			return d, true
		}
	}
	return TagDefinition{}, false
}

// ResolveResultTag picks the tag verdicts are written to: the template tag
// called name if there is one, else the template's Analysis tag, else a
// synthesized definition using id (or the well-known Analysis GUID).
// A nil template is allowed.
func (t *Template) ResolveResultTag(name, id string) tags.Definition {
	if name != "" {
		if d, ok := t.TagByName(name); ok {
			return d.Definition()
		}
	}
	if d, ok := t.TagByName(tags.Analysis.Name); ok {
		return d.Definition()
	}

	def := tags.Definition{
		Name:   name,
		ID:     id,
		Values: []string{tags.NotAnIssue, tags.Exploitable},
	}
	if def.Name == "" {
		def.Name = tags.Analysis.Name
	}
	if def.ID == "" {
		def.ID = tags.Analysis.ID
	}
	return def
}

// Definition converts the template definition into the tag registry form.
func (d TagDefinition) Definition() tags.Definition {
	def := tags.Definition{Name: d.Name, ID: d.ID}
	for _, v := range d.Values {
		def.Values = append(def.Values, v.Value)
		if v.IsDefault {
			def.HasDefault = true
		}
	}
	return def
}

// EnsureTagDefinitions declares every definition in defs that the template
// does not already have. It reports whether anything was added.
func (t *Template) EnsureTagDefinitions(defs ...tags.Definition) bool {
	changed := false
	for _, def := range defs {
		if _, ok := t.TagByID(def.ID); ok {
			continue
		}
		td := TagDefinition{ID: def.ID, Name: def.Name, Type: "user", ValueType: "LIST"}
		for i, v := range def.Values {
			td.Values = append(td.Values, TagValue{ID: strconv.Itoa(i), Value: v})
		}
		t.TagDefinitions = append(t.TagDefinitions, td)
		t.added = append(t.added, def)
		changed = true
	}
	return changed
}

// Modified reports whether Bytes differs from the parsed input.
func (t *Template) Modified() bool {
	return len(t.added) > 0
}

// Bytes returns the template with any added tag definitions spliced in.
func (t *Template) Bytes() []byte {
	if len(t.added) == 0 {
		return append([]byte(nil), t.data...)
	}

	var gen bytes.Buffer
	for _, def := range t.added {
		t.writeDefinition(&gen, def)
	}

	out := make([]byte, 0, len(t.data)+gen.Len())
	out = append(out, t.data[:t.insertAt]...)
	out = append(out, gen.Bytes()...)
	out = append(out, t.data[t.insertAt:]...)
	return out
}

func (t *Template) writeDefinition(buf *bytes.Buffer, def tags.Definition) {
	name := func(local string) string {
		if t.prefix == "" {
			return local
		}
		return t.prefix + ":" + local
	}
	esc := func(s string) string {
		var b bytes.Buffer
		_ = xml.EscapeText(&b, []byte(s))
		return b.String()
	}

	fmt.Fprintf(buf, "\n    <%s id=\"%s\" type=\"user\" extensible=\"false\" hidden=\"false\" objectVersion=\"0\" valueType=\"LIST\">",
		name("TagDefinition"), esc(def.ID))
	fmt.Fprintf(buf, "\n        <%[1]s>%[2]s</%[1]s>", name("name"), esc(def.Name))
	fmt.Fprintf(buf, "\n        <%s/>", name("Description"))
	for i, v := range def.Values {
		fmt.Fprintf(buf, "\n        <%[1]s id=\"%[2]d\" hidden=\"false\">%[3]s</%[1]s>", name("value"), i, esc(v))
	}
	fmt.Fprintf(buf, "\n    </%s>", name("TagDefinition"))
}

type parser struct {
	data []byte
	dec  *xml.Decoder
}

func (p *parser) next() (xml.Token, int64, error) {
	off := p.dec.InputOffset()
	tok, err := p.dec.RawToken()
	return tok, off, err
}

func parse(data []byte) (*Template, error) {
	p := &parser{data: data, dec: xml.NewDecoder(bytes.NewReader(data))}
	t := &Template{data: append([]byte(nil), data...)}

	var root *xml.StartElement
	depth := 0
	for {
		tok, off, err := p.next()
		if err == io.EOF {
			return nil, errors.New("unexpected end of document")
		}
		if err != nil {
			return nil, err
		}

		switch el := tok.(type) {
		case xml.StartElement:
			if root == nil {
				r := el.Copy()
				root = &r
				if r.Name.Local != "FilterTemplate" {
					return nil, fmt.Errorf("unexpected root element %q", r.Name.Local)
				}
				t.prefix = r.Name.Space
				t.ID = attr(r, "id")
				depth = 1
				continue
			}
			switch el.Name.Local {
			case "TagDefinition":
				def, err := p.tagDefinition(el)
				if err != nil {
					return nil, err
				}
				t.TagDefinitions = append(t.TagDefinitions, def)
				t.insertAt = int(p.dec.InputOffset())
			case "FilterSet":
				fs, err := p.filterSet(el)
				if err != nil {
					return nil, err
				}
				t.FilterSets = append(t.FilterSets, fs)
			case "Name":
				if depth == 1 {
					if t.Name, err = p.text(); err != nil {
						return nil, err
					}
					continue
				}
				depth++
			default:
				depth++
			}
		case xml.EndElement:
			depth--
			if depth == 0 {
				if len(t.TagDefinitions) == 0 {
					t.insertAt = int(off)
				}
				return t, nil
			}
		}
	}
}

func (p *parser) tagDefinition(start xml.StartElement) (TagDefinition, error) {
	def := TagDefinition{
		ID:        attr(start, "id"),
		Type:      attr(start, "type"),
		ValueType: attr(start, "valueType"),
		Hidden:    strings.EqualFold(attr(start, "hidden"), "true"),
	}
	for {
		tok, _, err := p.next()
		if err != nil {
			return def, err
		}
		switch el := tok.(type) {
		case xml.EndElement:
			return def, nil
		case xml.StartElement:
			switch el.Name.Local {
			case "name":
				def.Name, err = p.text()
			case "value":
				var text string
				text, err = p.text()
				def.Values = append(def.Values, TagValue{
					ID:        attr(el, "id"),
					Value:     text,
					IsDefault: strings.EqualFold(attr(el, "isDefault"), "true"),
					Hidden:    strings.EqualFold(attr(el, "hidden"), "true"),
				})
			default:
				_, err = p.text()
			}
			if err != nil {
				return def, err
			}
		}
	}
}

func (p *parser) filterSet(start xml.StartElement) (FilterSet, error) {
	fs := FilterSet{
		ID:      attr(start, "id"),
		Type:    attr(start, "type"),
		Enabled: strings.EqualFold(attr(start, "enabled"), "true"),
	}
	for {
		tok, _, err := p.next()
		if err != nil {
			return fs, err
		}
		switch el := tok.(type) {
		case xml.EndElement:
			return fs, nil
		case xml.StartElement:
			switch el.Name.Local {
			case "Title":
				fs.Title, err = p.text()
			case "Filter":
				var f Filter
				f, err = p.filter()
				fs.Filters = append(fs.Filters, f)
			default:
				_, err = p.text()
			}
			if err != nil {
				return fs, err
			}
		}
	}
}

func (p *parser) filter() (Filter, error) {
	var f Filter
	for {
		tok, _, err := p.next()
		if err != nil {
			return f, err
		}
		switch el := tok.(type) {
		case xml.EndElement:
			return f, nil
		case xml.StartElement:
			var text string
			if text, err = p.text(); err != nil {
				return f, err
			}
			switch el.Name.Local {
			case "action":
				f.Action = strings.TrimSpace(text)
			case "actionParam":
				f.ActionParam = strings.TrimSpace(text)
			case "query":
				f.Query = strings.TrimSpace(text)
			}
		}
	}
}

// text returns the character data of the current element, including nested
// elements, and consumes its end tag.
func (p *parser) text() (string, error) {
	var sb strings.Builder
	depth := 1
	for depth > 0 {
		tok, _, err := p.next()
		if err != nil {
			return "", err
		}
		switch el := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			sb.Write(el)
		}
	}
	return sb.String(), nil
}

func attr(start xml.StartElement, local string) string {
	for _, a := range start.Attr {
		if a.Name.Space == "" && a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

package finding

import (
	"path"
	"strings"
)

// Location is one step of a finding's trace.
type Location struct {
	// File is the source path as recorded by the analyzer (either separator).
	File string `json:"file"`

	// Line is the 1-based source line, 0 when unknown.
	Line int `json:"line"`

	// Snippet is the source fragment at this location, if ingestion extracted one.
	Snippet string `json:"snippet,omitempty"`
}

// ShortFileName returns the part of File after the last '/' or '\'. A path
// ending in a separator is returned whole; a blank path yields "".
func (l Location) ShortFileName() string {
	if strings.TrimSpace(l.File) == "" {
		return ""
	}
	idx := strings.LastIndexAny(l.File, `/\`)
	if idx == len(l.File)-1 {
		return l.File
	}
	return l.File[idx+1:]
}

// Extension returns the lower-cased file extension without the dot.
func (l Location) Extension() string {
	ext := path.Ext(l.ShortFileName())
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsZero reports whether the location carries no information.
func (l Location) IsZero() bool {
	return l.File == "" && l.Line == 0 && l.Snippet == ""
}

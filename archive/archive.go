// Package archive handles the FPR container: validation, reading entries and
// the atomic rewrite that replaces audit documents in place.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/zero-day-ai/aviator"
)

// Well-known entry names.
const (
	FVDLEntry           = "audit.fvdl"
	AuditEntry          = "audit.xml"
	FilterTemplateEntry = "filtertemplate.xml"
	RemediationsEntry   = "remediations.xml"
)

// sourcePrefixes are the directories that hold scanned source code.
// Longer prefixes first so "src" does not shadow them.
var sourcePrefixes = []string{"src-archive", "src-xrefdata", "src"}

// Reader gives read access to the entries of an FPR archive.
type Reader struct {
	zr      *zip.ReadCloser
	entries map[string]*zip.File
}

// Open opens an FPR archive for reading.
func Open(path string) (*Reader, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", path, err)
	}

	entries := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		if _, dup := entries[f.Name]; !dup {
			entries[f.Name] = f
		}
	}
	return &Reader{zr: zr, entries: entries}, nil
}

// Has reports whether the archive has an entry with the given name.
func (r *Reader) Has(name string) bool {
	_, ok := r.entries[name]
	return ok
}

// ReadFile returns the content of an entry. The boolean is false when the
// entry does not exist.
func (r *Reader) ReadFile(name string) ([]byte, bool, error) {
	f, ok := r.entries[name]
	if !ok {
		return nil, false, nil
	}
	data, err := readEntry(f)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read entry %s: %w", name, err)
	}
	return data, true, nil
}

// HasSource reports whether the archive contains scanned source files.
func (r *Reader) HasSource() bool {
	for _, f := range r.zr.File {
		if !f.FileInfo().IsDir() && IsSourceEntry(f.Name) {
			return true
		}
	}
	return false
}

// Close releases the archive.
func (r *Reader) Close() error {
	return r.zr.Close()
}

// Validate checks that path is a readable FPR archive with an audit.fvdl
// entry and, when requireSource is set, that it carries source code.
// Failures are KindSimple errors.
func Validate(path string, requireSource bool) error {
	const op = "archive.Validate"

	r, err := Open(path)
	if err != nil {
		return aviator.NewSimpleError(op, fmt.Errorf("%w: %v", aviator.ErrInvalidArchive, err)).
			WithContext(map[string]any{"path": path})
	}
	defer r.Close()

	if !r.Has(FVDLEntry) {
		return aviator.NewSimpleError(op, fmt.Errorf("%w: %s entry not found", aviator.ErrInvalidArchive, FVDLEntry)).
			WithContext(map[string]any{"path": path})
	}

	if requireSource && !r.HasSource() {
		return aviator.NewSimpleError(op, aviator.ErrMissingSource).
			WithContext(map[string]any{"path": path})
	}

	return nil
}

// IsSourceEntry reports whether an entry name is a scanned source file:
// a path under src/, src-archive/ or src-xrefdata/ (either separator)
// other than the index.xml and ScanUUID bookkeeping files.
func IsSourceEntry(name string) bool {
	for _, prefix := range sourcePrefixes {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		rest := name[len(prefix):]
		switch {
		case strings.HasPrefix(rest, "/"):
			rest = rest[1:]
		case strings.HasPrefix(rest, `\`):
			rest = strings.TrimLeft(rest, `\`)
		default:
			continue
		}
		if rest == "" || strings.HasPrefix(rest, "index.xml") || strings.HasPrefix(rest, "ScanUUID") {
			return false
		}
		return true
	}
	return false
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(rc)
	closeErr := rc.Close()
	return data, errors.Join(err, closeErr)
}

package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/aviator"
)

type entry struct {
	name string
	data string
}

func writeArchive(t *testing.T, entries ...entry) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "scan.fpr")
	f, err := os.Create(path)
	require.NoError(t, err)

	zw := zip.NewWriter(f)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(e.data))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func readAll(t *testing.T, path string) ([]string, map[string]string) {
	t.Helper()

	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	var names []string
	content := make(map[string]string)
	for _, f := range zr.File {
		data, err := readEntry(f)
		require.NoError(t, err)
		names = append(names, f.Name)
		content[f.Name] = string(data)
	}
	return names, content
}

func TestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		path := writeArchive(t,
			entry{FVDLEntry, "<FVDL/>"},
			entry{"src-archive/index.xml", "<index/>"},
			entry{"src-archive/a/Main.java", "class Main {}"},
		)
		assert.NoError(t, Validate(path, true))
	})

	t.Run("not a zip", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "broken.fpr")
		require.NoError(t, os.WriteFile(path, []byte("nope"), 0o644))

		err := Validate(path, false)
		require.Error(t, err)
		assert.True(t, aviator.IsSimple(err))
		assert.ErrorIs(t, err, aviator.ErrInvalidArchive)
	})

	t.Run("missing fvdl", func(t *testing.T) {
		path := writeArchive(t, entry{AuditEntry, "<Audit/>"})
		err := Validate(path, false)
		assert.ErrorIs(t, err, aviator.ErrInvalidArchive)
	})

	t.Run("missing source", func(t *testing.T) {
		path := writeArchive(t,
			entry{FVDLEntry, "<FVDL/>"},
			entry{"src-archive/index.xml", "<index/>"},
		)
		err := Validate(path, true)
		require.Error(t, err)
		assert.True(t, aviator.IsSimple(err))
		assert.ErrorIs(t, err, aviator.ErrMissingSource)

		assert.NoError(t, Validate(path, false), "source check disabled")
	})
}

func TestIsSourceEntry(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"src-archive/app/Main.java", true},
		{"src/Main.java", true},
		{"src-xrefdata/x.dat", true},
		{`src-archive\\app\\Main.java`, true},
		{`src\Main.java`, true},
		{"src-archive/index.xml", false},
		{"src-archive/ScanUUID", false},
		{"src-archive/", false},
		{"srcfoo/Main.java", false},
		{"audit.fvdl", false},
		{"other/src/Main.java", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSourceEntry(tt.name))
		})
	}
}

func TestReader(t *testing.T) {
	path := writeArchive(t, entry{FVDLEntry, "<FVDL/>"}, entry{AuditEntry, "<Audit/>"})

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	assert.True(t, r.Has(AuditEntry))
	assert.False(t, r.Has(FilterTemplateEntry))
	assert.False(t, r.HasSource())

	data, ok, err := r.ReadFile(AuditEntry)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "<Audit/>", string(data))

	data, ok, err = r.ReadFile(FilterTemplateEntry)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, data)
}

func TestRewrite_ReplacesAndPreserves(t *testing.T) {
	path := writeArchive(t,
		entry{FVDLEntry, "<FVDL/>"},
		entry{AuditEntry, "<old/>"},
		entry{"src-archive/Main.java", "class Main {}"},
		entry{RemediationsEntry, "<Remediations/>"},
	)

	err := Rewrite(context.Background(), path, map[string][]byte{
		FilterTemplateEntry: []byte("<FilterTemplate/>"),
		AuditEntry:          []byte("<new/>"),
	})
	require.NoError(t, err)

	names, content := readAll(t, path)
	assert.Equal(t, []string{FVDLEntry, "src-archive/Main.java", RemediationsEntry, AuditEntry, FilterTemplateEntry}, names)
	assert.Equal(t, "<new/>", content[AuditEntry])
	assert.Equal(t, "<FilterTemplate/>", content[FilterTemplateEntry])
	assert.Equal(t, "class Main {}", content["src-archive/Main.java"])
	assert.Equal(t, "<Remediations/>", content[RemediationsEntry])

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*"))
	require.NoError(t, err)
	assert.Equal(t, []string{path}, leftovers, "no backup or .new file left behind")
}

type failingWriter struct {
	f     *os.File
	limit int
	n     int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.n+len(p) > w.limit {
		return 0, errors.New("disk full")
	}
	w.n += len(p)
	return w.f.Write(p)
}

func (w *failingWriter) Close() error { return w.f.Close() }

func TestRewrite_WriteFailureRestoresOriginal(t *testing.T) {
	path := writeArchive(t,
		entry{FVDLEntry, "<FVDL/>"},
		entry{AuditEntry, "<old/>"},
		entry{"src-archive/Main.java", string(bytes.Repeat([]byte("x"), 64*1024))},
	)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	rw := NewRewriter()
	rw.createOutput = func(name string) (io.WriteCloser, error) {
		f, err := os.Create(name)
		if err != nil {
			return nil, err
		}
		return &failingWriter{f: f, limit: 100}, nil
	}

	err = rw.Rewrite(context.Background(), path, map[string][]byte{AuditEntry: []byte("<new/>")})
	require.Error(t, err)
	assert.True(t, aviator.IsTechnical(err))
	assert.ErrorIs(t, err, aviator.ErrArchiveRewrite)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.NoFileExists(t, path+".new")
}

func TestRewrite_RenameFailureRestoresOriginal(t *testing.T) {
	path := writeArchive(t, entry{FVDLEntry, "<FVDL/>"}, entry{AuditEntry, "<old/>"})
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	attempts := 0
	rw := NewRewriter(WithRenameRetry(2, time.Millisecond))
	rw.rename = func(oldPath, newPath string) error {
		attempts++
		// simulate a rename that clobbered the target before failing
		if err := os.WriteFile(newPath, []byte("garbage"), 0o644); err != nil {
			return err
		}
		return errors.New("device busy")
	}

	err = rw.Rewrite(context.Background(), path, map[string][]byte{AuditEntry: []byte("<new/>")})
	require.Error(t, err)
	assert.ErrorIs(t, err, aviator.ErrArchiveRewrite)
	assert.Equal(t, 3, attempts, "initial attempt plus two retries")

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.NoFileExists(t, path+".new")
}

func TestRewrite_CancelledRestoresOriginal(t *testing.T) {
	path := writeArchive(t, entry{FVDLEntry, "<FVDL/>"}, entry{AuditEntry, "<old/>"})
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = NewRewriter().Rewrite(ctx, path, map[string][]byte{AuditEntry: []byte("<new/>")})
	require.Error(t, err)
	assert.True(t, aviator.IsInterrupted(err))
	assert.False(t, aviator.IsTechnical(err))
	assert.ErrorIs(t, err, context.Canceled)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.NoFileExists(t, path+".new")
}

func TestRewrite_MissingArchive(t *testing.T) {
	err := Rewrite(context.Background(), filepath.Join(t.TempDir(), "nope.fpr"), nil)
	require.Error(t, err)
	assert.True(t, aviator.IsTechnical(err))
}

func TestReplacementOrder(t *testing.T) {
	got := replacementOrder(map[string][]byte{
		"zeta.xml":          nil,
		FilterTemplateEntry: nil,
		"alpha.xml":         nil,
		AuditEntry:          nil,
	})
	assert.Equal(t, []string{AuditEntry, FilterTemplateEntry, "alpha.xml", "zeta.xml"}, got)
}

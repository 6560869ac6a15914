package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/zero-day-ai/aviator"
)

// Rewriter replaces entries of an FPR archive in place.
//
// The original archive is copied to a backup next to it, a new archive is
// streamed to "<path>.new" and renamed over the original. If anything fails
// the original is restored from the backup, so the archive is either fully
// rewritten or byte-identical to what it was before.
type Rewriter struct {
	logger        *slog.Logger
	renameRetries uint64
	renameDelay   time.Duration

	// test hooks
	createOutput func(name string) (io.WriteCloser, error)
	rename       func(oldPath, newPath string) error
}

// RewriterOption configures a Rewriter.
type RewriterOption func(*Rewriter)

// WithLogger sets the logger used for rewrite diagnostics.
func WithLogger(logger *slog.Logger) RewriterOption {
	return func(r *Rewriter) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRenameRetry sets how often a failed rename of the new archive over the
// original is retried, and the initial delay between attempts.
func WithRenameRetry(retries uint64, initialDelay time.Duration) RewriterOption {
	return func(r *Rewriter) {
		r.renameRetries = retries
		r.renameDelay = initialDelay
	}
}

// NewRewriter creates a Rewriter.
func NewRewriter(opts ...RewriterOption) *Rewriter {
	r := &Rewriter{
		logger:        slog.Default(),
		renameRetries: 3,
		renameDelay:   100 * time.Millisecond,
		createOutput: func(name string) (io.WriteCloser, error) {
			return os.OpenFile(name, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		},
		rename: os.Rename,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rewrite replaces (or adds) the given entries in the archive at path.
// Replaced entries are written after all preserved entries, audit.xml first.
// Entries that cannot be read from the original are kept as empty
// placeholders. Failures are KindTechnical errors wrapping
// aviator.ErrArchiveRewrite; cancellation is reported as KindInterrupted.
// The original archive is restored in both cases.
func (r *Rewriter) Rewrite(ctx context.Context, path string, replacements map[string][]byte) error {
	const op = "Rewriter.Rewrite"

	fail := func(err error) error {
		if errors.Is(err, context.Canceled) {
			return aviator.NewInterruptedError(op, err).
				WithContext(map[string]any{"path": path})
		}
		return aviator.NewTechnicalError(op, fmt.Errorf("%w: %w", aviator.ErrArchiveRewrite, err)).
			WithContext(map[string]any{"path": path})
	}

	backup, err := r.backup(path)
	if err != nil {
		return fail(err)
	}
	defer func() {
		if err := os.Remove(backup); err != nil && !os.IsNotExist(err) {
			r.logger.Warn("failed to remove archive backup", "backup", backup, "error", err)
		}
	}()

	tmp := path + ".new"
	if err := r.writeArchive(ctx, path, tmp, replacements); err != nil {
		r.rollback(path, tmp, backup)
		return fail(err)
	}

	if err := r.replace(ctx, tmp, path); err != nil {
		r.rollback(path, tmp, backup)
		return fail(err)
	}

	r.logger.Debug("archive rewritten", "path", path, "replaced", len(replacements))
	return nil
}

// backup copies the original archive to a temporary file in the same
// directory and returns its name.
func (r *Rewriter) backup(path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open archive: %w", err)
	}
	defer aviator.CloseWithLog(src, r.logger, "archive")

	dst, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".backup-*")
	if err != nil {
		return "", fmt.Errorf("failed to create backup: %w", err)
	}
	name := dst.Name()

	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(name)
		return "", fmt.Errorf("failed to write backup: %w", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("failed to close backup: %w", err)
	}
	return name, nil
}

func (r *Rewriter) writeArchive(ctx context.Context, src, dst string, replacements map[string][]byte) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer aviator.CloseWithLog(zr, r.logger, "archive")

	out, err := r.createOutput(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	zw := zip.NewWriter(out)
	if err := r.copyEntries(ctx, zr, zw, replacements); err != nil {
		_ = zw.Close()
		_ = out.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dst, err)
	}
	return nil
}

func (r *Rewriter) copyEntries(ctx context.Context, zr *zip.ReadCloser, zw *zip.Writer, replacements map[string][]byte) error {
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, replaced := replacements[f.Name]; replaced {
			continue
		}

		header := f.FileHeader
		data, err := readEntry(f)
		if err != nil {
			r.logger.Warn("unreadable archive entry kept as empty placeholder", "entry", f.Name, "error", err)
			data = nil
		}
		header.CompressedSize64 = 0
		header.UncompressedSize64 = 0
		header.CRC32 = 0

		w, err := zw.CreateHeader(&header)
		if err != nil {
			return fmt.Errorf("failed to create entry %s: %w", f.Name, err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("failed to write entry %s: %w", f.Name, err)
		}
	}

	for _, name := range replacementOrder(replacements) {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: time.Now(),
		})
		if err != nil {
			return fmt.Errorf("failed to create entry %s: %w", name, err)
		}
		if _, err := w.Write(replacements[name]); err != nil {
			return fmt.Errorf("failed to write entry %s: %w", name, err)
		}
	}
	return nil
}

// replace renames tmp over path, retrying transient failures.
func (r *Rewriter) replace(ctx context.Context, tmp, path string) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.renameDelay

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := r.rename(tmp, path)
		if err != nil && os.IsNotExist(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, r.renameRetries), ctx))
	if err != nil {
		return fmt.Errorf("failed to replace archive after %d attempt(s): %w", attempt, err)
	}
	return nil
}

// rollback removes the partial output and puts the backup back in place.
func (r *Rewriter) rollback(path, tmp, backup string) {
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		r.logger.Warn("failed to remove partial archive", "path", tmp, "error", err)
	}
	if err := copyFile(backup, path); err != nil {
		r.logger.Error("failed to restore archive from backup", "path", path, "backup", backup, "error", err)
		return
	}
	r.logger.Info("archive restored from backup", "path", path)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// replacementOrder puts audit.xml and filtertemplate.xml first, then any
// other replaced entries by name.
func replacementOrder(replacements map[string][]byte) []string {
	rank := func(name string) int {
		switch name {
		case AuditEntry:
			return 0
		case FilterTemplateEntry:
			return 1
		default:
			return 2
		}
	}

	names := make([]string, 0, len(replacements))
	for name := range replacements {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ri, rj := rank(names[i]), rank(names[j])
		if ri != rj {
			return ri < rj
		}
		return names[i] < names[j]
	})
	return names
}

// Rewrite replaces entries of the archive at path using a default Rewriter.
func Rewrite(ctx context.Context, path string, replacements map[string][]byte) error {
	return NewRewriter().Rewrite(ctx, path, replacements)
}

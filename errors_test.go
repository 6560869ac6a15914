package aviator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AuditError
		want string
	}{
		{
			name: "without underlying error",
			err:  &AuditError{Op: "Engine.Run", Kind: KindTechnical},
			want: "aviator: Engine.Run: technical",
		},
		{
			name: "with underlying error",
			err:  NewSimpleError("archive.Validate", ErrInvalidArchive),
			want: "aviator: archive.Validate (simple): invalid FPR archive",
		},
		{
			name: "with context",
			err:  NewTechnicalError("Coordinator.Submit", ErrAuditTimeout).WithContext(map[string]any{"batch": 3}),
			want: "aviator: Coordinator.Submit (technical): audit timed out [context: map[batch:3]]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestAuditError_Is(t *testing.T) {
	err := fmt.Errorf("run failed: %w", NewSimpleError("archive.Validate", ErrMissingSource))

	assert.True(t, errors.Is(err, ErrMissingSource))
	assert.True(t, errors.Is(err, &AuditError{Kind: KindSimple}))
	assert.True(t, errors.Is(err, &AuditError{Kind: KindSimple, Op: "archive.Validate"}))
	assert.False(t, errors.Is(err, &AuditError{Kind: KindSimple, Op: "Engine.Run"}))
	assert.False(t, errors.Is(err, &AuditError{Kind: KindTechnical}))
	assert.False(t, errors.Is(err, ErrInvalidArchive))
}

func TestAuditError_WithContextDoesNotMutate(t *testing.T) {
	base := NewTechnicalError("op", ErrArchiveRewrite).WithContext(map[string]any{"a": 1})
	derived := base.WithContext(map[string]any{"b": 2})

	assert.Len(t, base.Context, 1)
	assert.Len(t, derived.Context, 2)
}

func TestKindPredicates(t *testing.T) {
	simple := fmt.Errorf("wrapped: %w", NewSimpleError("op", ErrRemoteRejected))
	technical := NewTechnicalError("op", ErrAuditTimeout)
	interrupted := NewInterruptedError("op", context.Canceled)

	assert.True(t, IsSimple(simple))
	assert.False(t, IsTechnical(simple))
	assert.True(t, IsTechnical(technical))
	assert.True(t, IsInterrupted(interrupted))
	assert.False(t, IsSimple(errors.New("plain")))
}

func TestClassify(t *testing.T) {
	assert.NoError(t, Classify("op", nil))

	simple := NewSimpleError("inner", ErrInvalidArchive)
	assert.Same(t, simple, Classify("outer", simple))

	canceled := Classify("op", fmt.Errorf("waiting: %w", context.Canceled))
	assert.True(t, IsInterrupted(canceled))
	assert.ErrorIs(t, canceled, context.Canceled)

	other := Classify("op", errors.New("disk full"))
	assert.True(t, IsTechnical(other))
}

type mockCloser struct {
	closeErr   error
	closeCalls int
}

func (m *mockCloser) Close() error {
	m.closeCalls++
	return m.closeErr
}

func TestCloseWithLog(t *testing.T) {
	t.Run("nil closer", func(t *testing.T) {
		var logBuf bytes.Buffer
		CloseWithLog(nil, slog.New(slog.NewTextHandler(&logBuf, nil)), "archive")
		assert.Empty(t, logBuf.String())
	})

	t.Run("successful close", func(t *testing.T) {
		closer := &mockCloser{}
		var logBuf bytes.Buffer
		CloseWithLog(closer, slog.New(slog.NewTextHandler(&logBuf, nil)), "archive")
		assert.Equal(t, 1, closer.closeCalls)
		assert.Empty(t, logBuf.String())
	})

	t.Run("close error is logged", func(t *testing.T) {
		closer := &mockCloser{closeErr: errors.New("resource busy")}
		var logBuf bytes.Buffer
		CloseWithLog(closer, slog.New(slog.NewTextHandler(&logBuf, nil)), "backup file")

		require.Equal(t, 1, closer.closeCalls)
		out := logBuf.String()
		assert.Contains(t, out, "failed to close resource")
		assert.Contains(t, out, "backup file")
		assert.Contains(t, out, "resource busy")
	})
}

package aviator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Sentinel errors for common audit failure conditions.
// These errors can be used with errors.Is() for error checking.
var (
	// ErrInvalidArchive indicates the input file is not a readable FPR archive.
	ErrInvalidArchive = errors.New("invalid FPR archive")

	// ErrMissingSource indicates the archive was produced without source code.
	ErrMissingSource = errors.New("FPR archive does not contain source code")

	// ErrAuditTimeout indicates the triage service did not answer within the configured timeout.
	ErrAuditTimeout = errors.New("audit timed out")

	// ErrTagMapping indicates the tier mapping configuration could not be read or is incomplete.
	ErrTagMapping = errors.New("invalid tag mapping configuration")

	// ErrRemoteRejected indicates the triage service rejected the request as invalid.
	ErrRemoteRejected = errors.New("request rejected by triage service")

	// ErrArchiveRewrite indicates the archive could not be rewritten. The original
	// archive has been restored when this error is returned.
	ErrArchiveRewrite = errors.New("failed to rewrite archive")
)

// Error kinds categorize errors by how the caller should react to them.
const (
	// KindSimple represents user-actionable problems such as a bad archive or
	// a rejected request. The message is meant to be shown verbatim.
	KindSimple = "simple"

	// KindTechnical represents operational failures: I/O, parsing, archive
	// rewrite and timeouts.
	KindTechnical = "technical"

	// KindInterrupted represents cooperative cancellation of a run.
	KindInterrupted = "interrupted"
)

// AuditError is a structured error type that wraps underlying errors with
// the operation that failed and the kind of failure.
//
// AuditError supports errors.Is() and errors.As(). Matching against another
// *AuditError compares Kind (and Op when the target sets one).
type AuditError struct {
	// Op is the operation that failed (e.g., "Engine.Run", "Coordinator.Submit").
	Op string

	// Kind categorizes the error (KindSimple, KindTechnical or KindInterrupted).
	Kind string

	// Err is the underlying error that caused this error.
	Err error

	// Context provides additional debugging information (optional).
	Context map[string]any
}

// Error implements the error interface.
func (e *AuditError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("aviator: %s: %s", e.Op, e.Kind)
	}

	if len(e.Context) > 0 {
		return fmt.Sprintf("aviator: %s (%s): %v [context: %+v]", e.Op, e.Kind, e.Err, e.Context)
	}

	return fmt.Sprintf("aviator: %s (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *AuditError) Unwrap() error {
	return e.Err
}

// Is implements error matching for AuditError.
func (e *AuditError) Is(target error) bool {
	if target == nil {
		return false
	}

	if t, ok := target.(*AuditError); ok {
		if t.Kind != "" && e.Kind == t.Kind {
			if t.Op == "" || e.Op == t.Op {
				return true
			}
		}
	}

	return errors.Is(e.Err, target)
}

// WithContext returns a copy of the error with the provided context merged in.
func (e *AuditError) WithContext(ctx map[string]any) *AuditError {
	newErr := *e
	newErr.Context = make(map[string]any, len(e.Context)+len(ctx))
	for k, v := range e.Context {
		newErr.Context[k] = v
	}
	for k, v := range ctx {
		newErr.Context[k] = v
	}
	return &newErr
}

// NewSimpleError creates a new AuditError with KindSimple.
func NewSimpleError(op string, err error) *AuditError {
	return &AuditError{
		Op:   op,
		Kind: KindSimple,
		Err:  err,
	}
}

// NewTechnicalError creates a new AuditError with KindTechnical.
func NewTechnicalError(op string, err error) *AuditError {
	return &AuditError{
		Op:   op,
		Kind: KindTechnical,
		Err:  err,
	}
}

// NewInterruptedError creates a new AuditError with KindInterrupted.
func NewInterruptedError(op string, err error) *AuditError {
	return &AuditError{
		Op:   op,
		Kind: KindInterrupted,
		Err:  err,
	}
}

// IsSimple reports whether err carries KindSimple anywhere in its chain.
func IsSimple(err error) bool {
	return hasKind(err, KindSimple)
}

// IsTechnical reports whether err carries KindTechnical anywhere in its chain.
func IsTechnical(err error) bool {
	return hasKind(err, KindTechnical)
}

// IsInterrupted reports whether err carries KindInterrupted anywhere in its chain.
func IsInterrupted(err error) bool {
	return hasKind(err, KindInterrupted)
}

func hasKind(err error, kind string) bool {
	var ae *AuditError
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

// Classify wraps err in an AuditError if it is not one already. Context
// cancellation becomes KindInterrupted, everything else KindTechnical.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var ae *AuditError
	if errors.As(err, &ae) {
		return err
	}

	if errors.Is(err, context.Canceled) {
		return NewInterruptedError(op, err)
	}

	return NewTechnicalError(op, err)
}

// CloseWithLog attempts to close the provided resource and logs any error
// at warning level. This is intended for use in defer statements.
//
// Example usage:
//
//	defer aviator.CloseWithLog(reader, logger, "archive")
//	defer aviator.CloseWithLog(conn, logger, "gRPC connection")
func CloseWithLog(closer io.Closer, logger *slog.Logger, name string) {
	if closer == nil {
		return
	}

	if logger == nil {
		logger = slog.Default()
	}

	if err := closer.Close(); err != nil {
		logger.Warn("failed to close resource",
			"resource", name,
			"error", err)
	}
}

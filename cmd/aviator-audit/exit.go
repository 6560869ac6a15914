package main

import (
	"errors"
	"fmt"

	"github.com/zero-day-ai/aviator"
	"github.com/zero-day-ai/aviator/engine"
)

// Process exit codes.
const (
	exitOK          = 0
	exitTechnical   = 1
	exitSimple      = 2
	exitFailed      = 3
	exitInterrupted = 130
)

// statusError reports a run that completed without auditing anything.
type statusError struct {
	status engine.Status
}

func (e *statusError) Error() string {
	return fmt.Sprintf("audit finished with status %s", e.status)
}

// exitCode maps an error to the process exit code. Errors that carry no
// kind come from flag parsing or configuration and count as user errors.
func exitCode(err error) int {
	var se *statusError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &se):
		return exitFailed
	case aviator.IsInterrupted(err):
		return exitInterrupted
	case aviator.IsTechnical(err):
		return exitTechnical
	default:
		return exitSimple
	}
}

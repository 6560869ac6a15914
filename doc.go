// Package aviator is the root of the Aviator audit engine.
//
// The engine takes a Fortify FPR archive together with the findings extracted
// from it, decides which findings should be sent to the Aviator triage service,
// submits them as one batch, and merges the returned verdicts into the
// archive's audit.xml without ever leaving the archive half written.
//
// # Packages
//
// The work is split across flat packages:
//
//   - finding: static-analysis findings and their triage projection (Candidate)
//   - eligibility: decides which findings are already resolved
//   - filter: the filter-set query language used to scope findings
//   - allocation: per-category and global capacity allocation
//   - triage: batch submission to the remote triage service (gRPC or Redis queue)
//   - merge: applies verdicts and skip annotations to the audit document
//   - auditdoc, filtertemplate, archive: the FPR documents and container
//   - engine: runs the whole pipeline and computes the aggregate status
//
// # Errors
//
// Every error surfaced by the engine is an *AuditError with one of three
// kinds. KindSimple errors are user-actionable and safe to print verbatim,
// KindTechnical errors are operational failures, and KindInterrupted means
// the caller cancelled the run:
//
//	outcome, err := eng.Run(ctx, input)
//	switch {
//	case aviator.IsSimple(err):
//		fmt.Fprintln(os.Stderr, err)
//	case aviator.IsInterrupted(err):
//		return err
//	case err != nil:
//		logger.Error("audit failed", "error", err)
//	}
package aviator

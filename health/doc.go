// Package health provides the pre-flight checks run before an audit.
//
// Each check returns a Status rather than an error so that `aviator-audit
// check` can report every problem at once instead of stopping at the first.
//
// # Checks
//
//   - ArchiveCheck: the FPR opens, has audit.fvdl and (optionally) source
//   - FileCheck: a file or directory exists (findings file, tag mapping)
//   - NetworkCheck: TCP connectivity to the triage endpoint
//   - PingCheck: a dependency answers Ping (Redis work queue)
//   - DiscoveryCheck: the triage service is registered in etcd
//   - Combine: aggregate several checks into one Status
//
// # Usage Example
//
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
//	defer cancel()
//
//	overall := health.Combine(
//	    health.ArchiveCheck("app.fpr", true),
//	    health.NetworkCheck(ctx, "triage.internal:443"),
//	)
//	if overall.IsUnhealthy() {
//	    log.Fatal(overall.Message)
//	}
//
// # Status Aggregation
//
// Combine follows this priority:
//
//   - Unhealthy if any check is unhealthy
//   - Degraded if any check is degraded and none are unhealthy
//   - Healthy if every check is healthy
package health

package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/zero-day-ai/aviator/archive"
	"github.com/zero-day-ai/aviator/registry"
)

// Health states.
const (
	// StateHealthy indicates the dependency is usable.
	StateHealthy = "healthy"

	// StateDegraded indicates the run can start but may not complete, for
	// example when the triage service is not registered yet.
	StateDegraded = "degraded"

	// StateUnhealthy indicates the run cannot succeed.
	StateUnhealthy = "unhealthy"
)

// Status is the outcome of one check.
type Status struct {
	// State is healthy, degraded or unhealthy.
	State string `json:"status"`

	// Message is a human-readable description.
	Message string `json:"message,omitempty"`

	// Details carries diagnostic context.
	Details map[string]any `json:"details,omitempty"`
}

// IsHealthy returns true if the state is StateHealthy.
func (s Status) IsHealthy() bool {
	return s.State == StateHealthy
}

// IsDegraded returns true if the state is StateDegraded.
func (s Status) IsDegraded() bool {
	return s.State == StateDegraded
}

// IsUnhealthy returns true if the state is StateUnhealthy.
func (s Status) IsUnhealthy() bool {
	return s.State == StateUnhealthy
}

// Healthy creates a healthy status.
func Healthy(message string) Status {
	return Status{State: StateHealthy, Message: message}
}

// Degraded creates a degraded status.
func Degraded(message string, details map[string]any) Status {
	return Status{State: StateDegraded, Message: message, Details: details}
}

// Unhealthy creates an unhealthy status.
func Unhealthy(message string, details map[string]any) Status {
	return Status{State: StateUnhealthy, Message: message, Details: details}
}

// ArchiveCheck verifies that path is a usable FPR archive.
func ArchiveCheck(path string, requireSource bool) Status {
	if path == "" {
		return Unhealthy("archive path cannot be empty", nil)
	}

	if err := archive.Validate(path, requireSource); err != nil {
		return Unhealthy(
			fmt.Sprintf("archive '%s' is not usable", path),
			map[string]any{
				"path":  path,
				"error": err.Error(),
			},
		)
	}

	return Healthy(fmt.Sprintf("archive '%s' is valid", path))
}

// FileCheck verifies that a file or directory exists at the specified path.
func FileCheck(path string) Status {
	if path == "" {
		return Unhealthy("path cannot be empty", nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Unhealthy(
				fmt.Sprintf("path '%s' does not exist", path),
				map[string]any{"path": path},
			)
		}

		return Unhealthy(
			fmt.Sprintf("failed to stat path '%s'", path),
			map[string]any{
				"path":  path,
				"error": err.Error(),
			},
		)
	}

	fileType := "file"
	if info.IsDir() {
		fileType = "directory"
	}

	return Healthy(fmt.Sprintf("%s '%s' exists", fileType, path))
}

// NetworkCheck verifies TCP connectivity to a host:port address.
// Without a deadline on ctx the dial is bounded to 5 seconds.
func NetworkCheck(ctx context.Context, address string) Status {
	if address == "" {
		return Unhealthy("address cannot be empty", nil)
	}

	if _, _, err := net.SplitHostPort(address); err != nil {
		return Unhealthy(
			fmt.Sprintf("invalid address: %s", address),
			map[string]any{
				"address": address,
				"error":   err.Error(),
			},
		)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return Unhealthy(
			fmt.Sprintf("failed to connect to %s", address),
			map[string]any{
				"address": address,
				"error":   err.Error(),
			},
		)
	}
	conn.Close()

	return Healthy(fmt.Sprintf("successfully connected to %s", address))
}

// Pinger is a dependency that can verify its own connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck verifies that p answers Ping.
func PingCheck(ctx context.Context, name string, p Pinger) Status {
	if p == nil {
		return Unhealthy(fmt.Sprintf("%s is not configured", name), nil)
	}

	if err := p.Ping(ctx); err != nil {
		return Unhealthy(
			fmt.Sprintf("%s did not answer ping", name),
			map[string]any{
				"dependency": name,
				"error":      err.Error(),
			},
		)
	}

	return Healthy(fmt.Sprintf("%s is reachable", name))
}

// DiscoveryCheck verifies that service has a live registered instance.
// An empty registry is degraded since the engine waits for the service to
// appear before giving up.
func DiscoveryCheck(ctx context.Context, d registry.Discoverer, service string) Status {
	instances, err := d.Discover(ctx, registry.KindService, service)
	if err != nil {
		return Unhealthy(
			fmt.Sprintf("failed to query registry for '%s'", service),
			map[string]any{
				"service": service,
				"error":   err.Error(),
			},
		)
	}

	selected, ok := registry.Select(instances)
	if !ok {
		return Degraded(
			fmt.Sprintf("no registered instance of '%s'", service),
			map[string]any{"service": service},
		)
	}

	return Healthy(fmt.Sprintf("service '%s' available at %s", service, selected.Endpoint))
}

// Combine aggregates multiple health checks into a single status.
func Combine(checks ...Status) Status {
	if len(checks) == 0 {
		return Healthy("no checks provided")
	}

	var unhealthyChecks []string
	var degradedChecks []string
	var healthyCount int

	for _, check := range checks {
		msg := check.Message
		if msg == "" {
			msg = "unnamed check"
		}
		switch check.State {
		case StateUnhealthy:
			unhealthyChecks = append(unhealthyChecks, msg)
		case StateDegraded:
			degradedChecks = append(degradedChecks, msg)
		case StateHealthy:
			healthyCount++
		}
	}

	if len(unhealthyChecks) > 0 {
		return Unhealthy(
			fmt.Sprintf("%d check(s) failed", len(unhealthyChecks)),
			map[string]any{
				"total":         len(checks),
				"unhealthy":     len(unhealthyChecks),
				"degraded":      len(degradedChecks),
				"healthy":       healthyCount,
				"failed_checks": unhealthyChecks,
			},
		)
	}

	if len(degradedChecks) > 0 {
		return Degraded(
			fmt.Sprintf("%d check(s) degraded", len(degradedChecks)),
			map[string]any{
				"total":           len(checks),
				"degraded":        len(degradedChecks),
				"healthy":         healthyCount,
				"degraded_checks": degradedChecks,
			},
		)
	}

	return Healthy(fmt.Sprintf("all %d check(s) passed", len(checks)))
}

// Package registry provides etcd-based discovery of triage service endpoints.
//
// Triage services register themselves under a namespace with a leased key so
// that crashed instances disappear on their own. The audit engine resolves a
// service name to one live endpoint before opening a session.
//
// Keys have the form /{namespace}/{kind}/{name}/{instance-id}; the value is a
// JSON-encoded ServiceInfo.
package registry

import (
	"context"
	"time"
)

// KindService is the kind under which triage services register.
const KindService = "service"

// ServiceInfo describes a registered service instance.
type ServiceInfo struct {
	// Kind identifies the component type, normally KindService
	Kind string `json:"kind"`

	// Name is the service name (e.g., "triage")
	Name string `json:"name"`

	// Version is the semantic version of the service (e.g., "1.2.3")
	Version string `json:"version"`

	// InstanceID is a unique identifier for this specific instance (typically UUID)
	InstanceID string `json:"instance_id"`

	// Endpoint is the network address where this instance can be reached
	// Format: "host:port"
	Endpoint string `json:"endpoint"`

	// Metadata carries service-specific attributes (model, region, ...)
	Metadata map[string]string `json:"metadata,omitempty"`

	// StartedAt is the timestamp when this instance started
	StartedAt time.Time `json:"started_at"`
}

// Discoverer finds service instances.
type Discoverer interface {
	// Discover finds all instances of a service by kind and name.
	// The returned slice may be empty if no instances are registered.
	Discover(ctx context.Context, kind, name string) ([]ServiceInfo, error)
}

// Registry defines service registration and discovery.
//
// Implementations must be safe for concurrent use. Registrations are bound to
// a lease with the configured TTL and renewed in the background until
// Deregister or Close.
type Registry interface {
	Discoverer

	// Register adds this service instance to the registry. Registering the
	// same InstanceID again replaces the entry.
	Register(ctx context.Context, info ServiceInfo) error

	// Deregister removes this service instance. Unknown instances are a no-op.
	Deregister(ctx context.Context, info ServiceInfo) error

	// Close releases registry resources and stops background goroutines.
	Close() error
}

// Config holds registry connection configuration.
type Config struct {
	// Endpoints is the list of etcd endpoints
	// Format: ["host1:2379", "host2:2379"]
	Endpoints []string `json:"endpoints" yaml:"endpoints"`

	// Namespace is the etcd key prefix for all entries
	// Default: "aviator"
	Namespace string `json:"namespace" yaml:"namespace"`

	// TTL is the lease time-to-live in seconds
	// Default: 30 seconds
	TTL int `json:"ttl" yaml:"ttl"`

	// DialTimeout bounds the initial connection
	// Default: 5 seconds
	DialTimeout time.Duration `json:"dial_timeout" yaml:"dial_timeout"`

	// TLS holds TLS configuration for etcd communication. Nil disables TLS.
	TLS *TLSConfig `json:"tls" yaml:"tls"`
}

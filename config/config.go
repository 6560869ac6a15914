// Package config provides loading and parsing of aviator.yaml run
// configuration and of tier mapping files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zero-day-ai/aviator/allocation"
)

// Transport names.
const (
	TransportGRPC  = "grpc"
	TransportQueue = "queue"
)

// Config represents an aviator.yaml configuration file.
type Config struct {
	// ResultTag selects the tag verdicts are written to.
	ResultTag ResultTagConfig `yaml:"result_tag,omitempty"`

	// Limits is the triage budget.
	Limits *LimitsConfig `yaml:"limits,omitempty"`

	// RequireSource rejects archives that were scanned without source code.
	// Default: true
	RequireSource *bool `yaml:"require_source,omitempty"`

	// ExclusionRule is an optional CEL expression over `finding`; findings
	// for which it is true are not sent for triage.
	ExclusionRule string `yaml:"exclusion_rule,omitempty"`

	// TagMapping is the path of a tier mapping file. Empty means the
	// built-in mapping.
	TagMapping string `yaml:"tag_mapping,omitempty"`

	// Triage configures the connection to the triage service.
	Triage *TriageConfig `yaml:"triage,omitempty"`

	// Telemetry configures tracing.
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// ResultTagConfig names the result tag. Both fields are optional.
type ResultTagConfig struct {
	Name string `yaml:"name,omitempty"`
	ID   string `yaml:"id,omitempty"`
}

// LimitsConfig overrides the allocation caps.
type LimitsConfig struct {
	MaxPerCategory int `yaml:"max_per_category,omitempty"`
	MaxTotal       int `yaml:"max_total,omitempty"`
}

// TriageConfig describes how to reach the triage service.
type TriageConfig struct {
	// Transport is "grpc" or "queue".
	// Default: grpc
	Transport string `yaml:"transport,omitempty"`

	// Address is the host:port of the service. Ignored when Discovery is set.
	Address string `yaml:"address,omitempty"`

	// Timeout bounds the whole batch exchange.
	// Format: Go duration string (e.g., "30m", "8h20m")
	// Default: 8h20m
	Timeout string `yaml:"timeout,omitempty"`

	// Insecure disables TLS.
	Insecure bool `yaml:"insecure,omitempty"`

	// CACert is a PEM file used to verify the server.
	CACert string `yaml:"ca_cert,omitempty"`

	// ServerName overrides the TLS server name.
	ServerName string `yaml:"server_name,omitempty"`

	// KeepaliveInterval is the gRPC keepalive ping interval.
	// Default: 30s
	KeepaliveInterval string `yaml:"keepalive_interval,omitempty"`

	// ApplicationName and ApplicationVersion identify the scanned project
	// to the service when the caller does not.
	ApplicationName    string `yaml:"application_name,omitempty"`
	ApplicationVersion string `yaml:"application_version,omitempty"`

	// Discovery resolves Address through etcd.
	Discovery *DiscoveryConfig `yaml:"discovery,omitempty"`

	// Queue configures the Redis queue transport.
	Queue *QueueConfig `yaml:"queue,omitempty"`
}

// DiscoveryConfig locates the triage service in etcd.
type DiscoveryConfig struct {
	Endpoints []string `yaml:"endpoints"`

	// Namespace is the etcd key prefix.
	// Default: aviator
	Namespace string `yaml:"namespace,omitempty"`

	// Service is the registered service name.
	// Default: triage
	Service string `yaml:"service,omitempty"`

	// Wait is how long to keep retrying before giving up.
	// Default: 30s
	Wait string `yaml:"wait,omitempty"`
}

// QueueConfig configures the Redis work queue.
type QueueConfig struct {
	URL string `yaml:"url"`

	// Prefix is the Redis key prefix.
	// Default: aviator
	Prefix string `yaml:"prefix,omitempty"`

	// ConnectTimeout bounds the initial connection.
	// Default: 10s
	ConnectTimeout string `yaml:"connect_timeout,omitempty"`
}

// TelemetryConfig configures tracing.
type TelemetryConfig struct {
	// ServiceName is the OpenTelemetry service name.
	// Default: aviator-audit
	ServiceName string `yaml:"service_name,omitempty"`

	// Exporter is "none" or "stdout".
	// Default: none
	Exporter string `yaml:"exporter,omitempty"`
}

// Defaults.
const (
	DefaultTimeout           = 8*time.Hour + 20*time.Minute
	DefaultKeepaliveInterval = 30 * time.Second
	DefaultDiscoveryWait     = 30 * time.Second
	DefaultConnectTimeout    = 10 * time.Second
	DefaultNamespace         = "aviator"
	DefaultService           = "triage"
	DefaultQueuePrefix       = "aviator"
	DefaultServiceName       = "aviator-audit"
)

// GetLimits returns the configured caps, using the defaults for unset fields.
func (c *Config) GetLimits() allocation.Limits {
	limits := allocation.DefaultLimits()
	if c == nil || c.Limits == nil {
		return limits
	}
	if c.Limits.MaxPerCategory > 0 {
		limits.MaxPerCategory = c.Limits.MaxPerCategory
	}
	if c.Limits.MaxTotal > 0 {
		limits.MaxTotal = c.Limits.MaxTotal
	}
	return limits
}

// GetRequireSource returns whether archives must contain source code.
func (c *Config) GetRequireSource() bool {
	if c == nil || c.RequireSource == nil {
		return true
	}
	return *c.RequireSource
}

// GetTransport returns the configured transport or the default value.
func (t *TriageConfig) GetTransport() string {
	if t == nil || t.Transport == "" {
		return TransportGRPC
	}
	return t.Transport
}

// GetTimeout parses the timeout string and returns a duration.
// Returns the default value if not set or invalid.
func (t *TriageConfig) GetTimeout() time.Duration {
	if t == nil {
		return DefaultTimeout
	}
	return parseDuration(t.Timeout, DefaultTimeout)
}

// GetKeepaliveInterval parses the keepalive interval and returns a duration.
// Returns the default value if not set or invalid.
func (t *TriageConfig) GetKeepaliveInterval() time.Duration {
	if t == nil {
		return DefaultKeepaliveInterval
	}
	return parseDuration(t.KeepaliveInterval, DefaultKeepaliveInterval)
}

// GetNamespace returns the configured namespace or the default value.
func (d *DiscoveryConfig) GetNamespace() string {
	if d == nil || d.Namespace == "" {
		return DefaultNamespace
	}
	return d.Namespace
}

// GetService returns the configured service name or the default value.
func (d *DiscoveryConfig) GetService() string {
	if d == nil || d.Service == "" {
		return DefaultService
	}
	return d.Service
}

// GetWait parses the discovery wait and returns a duration.
// Returns the default value if not set or invalid.
func (d *DiscoveryConfig) GetWait() time.Duration {
	if d == nil {
		return DefaultDiscoveryWait
	}
	return parseDuration(d.Wait, DefaultDiscoveryWait)
}

// GetPrefix returns the queue prefix or the default value.
func (q *QueueConfig) GetPrefix() string {
	if q == nil || q.Prefix == "" {
		return DefaultQueuePrefix
	}
	return q.Prefix
}

// GetConnectTimeout parses the connect timeout and returns a duration.
// Returns the default value if not set or invalid.
func (q *QueueConfig) GetConnectTimeout() time.Duration {
	if q == nil {
		return DefaultConnectTimeout
	}
	return parseDuration(q.ConnectTimeout, DefaultConnectTimeout)
}

// GetServiceName returns the configured service name or the default value.
func (t *TelemetryConfig) GetServiceName() string {
	if t == nil || t.ServiceName == "" {
		return DefaultServiceName
	}
	return t.ServiceName
}

// GetExporter returns the configured exporter or "none".
func (t *TelemetryConfig) GetExporter() string {
	if t == nil || t.Exporter == "" {
		return "none"
	}
	return t.Exporter
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Validate checks values that have no sensible fallback.
func (c *Config) Validate() error {
	if c.Triage != nil {
		switch c.Triage.GetTransport() {
		case TransportGRPC:
			if c.Triage.Address == "" && c.Triage.Discovery == nil {
				return fmt.Errorf("triage.address or triage.discovery is required for the grpc transport")
			}
		case TransportQueue:
			if c.Triage.Queue == nil || c.Triage.Queue.URL == "" {
				return fmt.Errorf("triage.queue.url is required for the queue transport")
			}
		default:
			return fmt.Errorf("unknown triage transport %q", c.Triage.Transport)
		}
		if c.Triage.Discovery != nil && len(c.Triage.Discovery.Endpoints) == 0 {
			return fmt.Errorf("triage.discovery.endpoints must not be empty")
		}
	}
	if c.Limits != nil && (c.Limits.MaxPerCategory < 0 || c.Limits.MaxTotal < 0) {
		return fmt.Errorf("limits must not be negative")
	}
	return nil
}

// Load reads and parses an aviator.yaml file from the given path.
// If the path is a directory, it looks for aviator.yaml or aviator.yml in that directory.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	configPath := path
	if info.IsDir() {
		configPath = ""
		for _, name := range []string{"aviator.yaml", "aviator.yml"} {
			candidate := filepath.Join(path, name)
			if _, err := os.Stat(candidate); err == nil {
				configPath = candidate
				break
			}
		}
		if configPath == "" {
			return nil, fmt.Errorf("no aviator.yaml or aviator.yml found in %s", path)
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses and validates aviator.yaml content.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

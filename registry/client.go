package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EnvEndpoints names the environment variable holding comma-separated etcd
// endpoints.
const EnvEndpoints = "AVIATOR_REGISTRY_ENDPOINTS"

// DefaultNamespace is the key prefix used when none is configured.
const DefaultNamespace = "aviator"

// Client implements Registry on top of etcd.
//
// Thread-safety: All methods are safe for concurrent use.
type Client struct {
	client    *clientv3.Client
	namespace string
	ttl       int

	// Lease tracking for keepalive
	mu         sync.Mutex
	leases     map[string]clientv3.LeaseID // key: instance ID
	cancelFns  map[string]context.CancelFunc
	wg         sync.WaitGroup
	closed     bool
	closedChan chan struct{}
}

// NewClient creates a registry client and verifies connectivity.
//
// The client must be closed using Close() to release resources and stop
// background keepalive goroutines.
func NewClient(cfg Config) (*Client, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("registry endpoints cannot be empty")
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = DefaultNamespace
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30
	}

	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}

	clientCfg := clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: dialTimeout,
	}

	if cfg.TLS != nil {
		tlsConfig, err := cfg.TLS.ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
		clientCfg.TLS = tlsConfig
	}

	cli, err := clientv3.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	// Verify connectivity with a quick health check
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	if _, err := cli.Get(ctx, "health-check"); err != nil {
		cli.Close()
		return nil, fmt.Errorf("etcd health check failed: %w", err)
	}

	return &Client{
		client:     cli,
		namespace:  namespace,
		ttl:        ttl,
		leases:     make(map[string]clientv3.LeaseID),
		cancelFns:  make(map[string]context.CancelFunc),
		closedChan: make(chan struct{}),
	}, nil
}

// EndpointsFromEnv returns the endpoints listed in AVIATOR_REGISTRY_ENDPOINTS,
// or nil when it is unset.
func EndpointsFromEnv() []string {
	raw := os.Getenv(EnvEndpoints)
	if raw == "" {
		return nil
	}

	var endpoints []string
	for _, ep := range strings.Split(raw, ",") {
		if ep = strings.TrimSpace(ep); ep != "" {
			endpoints = append(endpoints, ep)
		}
	}
	return endpoints
}

// Register adds this service instance to the registry and keeps its lease
// alive in the background.
func (c *Client) Register(ctx context.Context, info ServiceInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("registry client is closed")
	}

	// Cancel existing keepalive if re-registering
	if cancelFn, exists := c.cancelFns[info.InstanceID]; exists {
		cancelFn()
		delete(c.cancelFns, info.InstanceID)
	}

	leaseResp, err := c.client.Grant(ctx, int64(c.ttl))
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}

	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal service info: %w", err)
	}

	key := c.buildKey(info.Kind, info.Name, info.InstanceID)
	if _, err := c.client.Put(ctx, key, string(data), clientv3.WithLease(leaseResp.ID)); err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	c.leases[info.InstanceID] = leaseResp.ID

	keepaliveCtx, cancel := context.WithCancel(context.Background())
	c.cancelFns[info.InstanceID] = cancel

	c.wg.Add(1)
	go c.keepalive(keepaliveCtx, leaseResp.ID, info.InstanceID)

	return nil
}

// Deregister revokes the instance's lease, which deletes its entry.
func (c *Client) Deregister(ctx context.Context, info ServiceInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("registry client is closed")
	}

	if cancelFn, exists := c.cancelFns[info.InstanceID]; exists {
		cancelFn()
		delete(c.cancelFns, info.InstanceID)
	}

	leaseID, exists := c.leases[info.InstanceID]
	if !exists {
		return nil
	}

	if _, err := c.client.Revoke(ctx, leaseID); err != nil {
		return fmt.Errorf("failed to revoke lease: %w", err)
	}

	delete(c.leases, info.InstanceID)
	return nil
}

// Discover finds all instances of a service by kind and name.
func (c *Client) Discover(ctx context.Context, kind, name string) ([]ServiceInfo, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("registry client is closed")
	}

	resp, err := c.client.Get(ctx, c.prefix(kind, name), clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to discover services: %w", err)
	}

	values := make([][]byte, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		values = append(values, kv.Value)
	}
	return decodeInstances(values), nil
}

// Close stops keepalives and closes the etcd connection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true

	for _, cancel := range c.cancelFns {
		cancel()
	}
	c.cancelFns = make(map[string]context.CancelFunc)

	close(c.closedChan)
	c.mu.Unlock()

	c.wg.Wait()

	return c.client.Close()
}

// keepalive renews the lease every TTL/3 until cancelled or the lease is lost.
func (c *Client) keepalive(ctx context.Context, leaseID clientv3.LeaseID, instanceID string) {
	defer c.wg.Done()

	ticker := time.NewTicker(time.Duration(c.ttl) * time.Second / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closedChan:
			return
		case <-ticker.C:
			if _, err := c.client.KeepAliveOnce(ctx, leaseID); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				c.mu.Lock()
				delete(c.leases, instanceID)
				delete(c.cancelFns, instanceID)
				c.mu.Unlock()
				return
			}
		}
	}
}

// buildKey constructs the etcd key for a service instance.
//
// Format: /namespace/kind/name/instance-id
func (c *Client) buildKey(kind, name, instanceID string) string {
	return c.prefix(kind, name) + instanceID
}

func (c *Client) prefix(kind, name string) string {
	return fmt.Sprintf("/%s/%s/%s/", c.namespace, kind, name)
}

// decodeInstances parses stored values, skipping invalid entries.
func decodeInstances(values [][]byte) []ServiceInfo {
	instances := make([]ServiceInfo, 0, len(values))
	for _, v := range values {
		var info ServiceInfo
		if err := json.Unmarshal(v, &info); err != nil {
			continue
		}
		instances = append(instances, info)
	}
	return instances
}

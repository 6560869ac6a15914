package queue

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultPrefix is the key prefix used when none is configured.
	DefaultPrefix = "aviator"

	// HeartbeatTTL is how long a worker heartbeat stays valid.
	HeartbeatTTL = 30 * time.Second
)

// Client defines the interface for interacting with the Redis triage queue.
type Client interface {
	// Push adds a work item to the request list (LPUSH).
	Push(ctx context.Context, item WorkItem) error

	// Pop removes and returns a work item from the request list (BRPOP).
	// Blocks up to timeout; returns nil, nil when nothing arrived.
	Pop(ctx context.Context, timeout time.Duration) (*WorkItem, error)

	// Publish sends a result to its stream's channel.
	Publish(ctx context.Context, result Result) error

	// Subscribe creates a subscription to a stream's results channel.
	// Returns a channel that receives results until ctx is cancelled.
	Subscribe(ctx context.Context, streamID string) (<-chan Result, error)

	// RegisterWorker writes worker metadata and adds it to the workers set.
	RegisterWorker(ctx context.Context, meta WorkerMeta) error

	// ListWorkers returns metadata for all registered workers.
	ListWorkers(ctx context.Context) ([]WorkerMeta, error)

	// Heartbeat refreshes the health key of a worker.
	Heartbeat(ctx context.Context, workerID string) error

	// IsAlive reports whether a worker has a live heartbeat.
	IsAlive(ctx context.Context, workerID string) (bool, error)

	// Ping checks the connection.
	Ping(ctx context.Context) error

	// Close closes the Redis connection.
	Close() error
}

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379")
	URL string

	// Prefix scopes every key. Defaults to DefaultPrefix.
	Prefix string

	// TLS configuration for secure connections
	TLS *tls.Config

	// ConnectTimeout is the maximum time to wait for connection establishment
	ConnectTimeout time.Duration

	// ReadTimeout is the maximum time to wait for read operations
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait for write operations
	WriteTimeout time.Duration

	// Logger receives decode failures on subscriptions. Defaults to slog.Default().
	Logger *slog.Logger
}

// RedisClient implements the Client interface using go-redis/v9.
type RedisClient struct {
	client *redis.Client
	keys   Keys
	logger *slog.Logger
}

// NewRedisClient creates a new Redis queue client with the given options.
func NewRedisClient(opts RedisOptions) (*RedisClient, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}

	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}

	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 30 * time.Second
	}

	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if opts.TLS != nil {
		redisOpts.TLSConfig = opts.TLS
	}
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{
		client: client,
		keys:   Keys{Prefix: opts.Prefix},
		logger: opts.Logger,
	}, nil
}

// Keys returns the key builder used by this client.
func (c *RedisClient) Keys() Keys {
	return c.keys
}

// Push adds a work item to the request list.
func (c *RedisClient) Push(ctx context.Context, item WorkItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal work item: %w", err)
	}

	key := c.keys.Requests()
	if err := c.client.LPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("failed to push to queue %s: %w", key, err)
	}

	return nil
}

// Pop removes and returns a work item from the request list.
func (c *RedisClient) Pop(ctx context.Context, timeout time.Duration) (*WorkItem, error) {
	key := c.keys.Requests()

	// BRPOP returns [queue_name, value] or redis.Nil on timeout
	result, err := c.client.BRPop(ctx, timeout, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop from queue %s: %w", key, err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP result length: %d", len(result))
	}

	var item WorkItem
	if err := json.Unmarshal([]byte(result[1]), &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal work item: %w", err)
	}

	return &item, nil
}

// Publish sends a result to its stream's channel.
func (c *RedisClient) Publish(ctx context.Context, result Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	channel := c.keys.Results(result.StreamID)
	if err := c.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to channel %s: %w", channel, err)
	}

	return nil
}

// Subscribe creates a subscription to a stream's results channel.
func (c *RedisClient) Subscribe(ctx context.Context, streamID string) (<-chan Result, error) {
	channel := c.keys.Results(streamID)
	pubsub := c.client.Subscribe(ctx, channel)

	// Wait for subscription confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to channel %s: %w", channel, err)
	}

	resultChan := make(chan Result)

	go func() {
		defer close(resultChan)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var result Result
				if err := json.Unmarshal([]byte(msg.Payload), &result); err != nil {
					c.logger.Warn("dropping undecodable result",
						"channel", channel,
						"error", err)
					continue
				}

				select {
				case resultChan <- result:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return resultChan, nil
}

// RegisterWorker writes worker metadata and adds it to the workers set.
func (c *RedisClient) RegisterWorker(ctx context.Context, meta WorkerMeta) error {
	if err := meta.IsValid(); err != nil {
		return fmt.Errorf("invalid worker metadata: %w", err)
	}

	fields := map[string]any{
		"id":       meta.ID,
		"version":  meta.Version,
		"model":    meta.Model,
		"capacity": strconv.Itoa(meta.Capacity),
	}
	if err := c.client.HSet(ctx, c.keys.WorkerMeta(meta.ID), fields).Err(); err != nil {
		return fmt.Errorf("failed to set worker metadata: %w", err)
	}

	if err := c.client.SAdd(ctx, c.keys.Workers(), meta.ID).Err(); err != nil {
		return fmt.Errorf("failed to add worker to set: %w", err)
	}

	return nil
}

// ListWorkers returns metadata for all registered workers.
func (c *RedisClient) ListWorkers(ctx context.Context) ([]WorkerMeta, error) {
	ids, err := c.client.SMembers(ctx, c.keys.Workers()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get registered workers: %w", err)
	}

	workers := make([]WorkerMeta, 0, len(ids))
	for _, id := range ids {
		fields, err := c.client.HGetAll(ctx, c.keys.WorkerMeta(id)).Result()
		if err != nil || len(fields) == 0 {
			// Skip workers with missing metadata
			continue
		}

		capacity, _ := strconv.Atoi(fields["capacity"])
		workers = append(workers, WorkerMeta{
			ID:       fields["id"],
			Version:  fields["version"],
			Model:    fields["model"],
			Capacity: capacity,
		})
	}

	return workers, nil
}

// Heartbeat refreshes the health key of a worker with HeartbeatTTL.
func (c *RedisClient) Heartbeat(ctx context.Context, workerID string) error {
	if err := c.client.Set(ctx, c.keys.WorkerHealth(workerID), "ok", HeartbeatTTL).Err(); err != nil {
		return fmt.Errorf("failed to set heartbeat for worker %s: %w", workerID, err)
	}
	return nil
}

// IsAlive reports whether a worker has a live heartbeat.
func (c *RedisClient) IsAlive(ctx context.Context, workerID string) (bool, error) {
	n, err := c.client.Exists(ctx, c.keys.WorkerHealth(workerID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check heartbeat for worker %s: %w", workerID, err)
	}
	return n > 0, nil
}

// Ping checks the connection.
func (c *RedisClient) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *RedisClient) Close() error {
	return c.client.Close()
}

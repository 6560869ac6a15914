package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrNoInstances is returned when no live instance of a service is registered.
var ErrNoInstances = errors.New("no registered instances")

// Select picks the instance to use: the most recently started one with an
// endpoint, ties broken by instance id.
func Select(instances []ServiceInfo) (ServiceInfo, bool) {
	candidates := make([]ServiceInfo, 0, len(instances))
	for _, in := range instances {
		if in.Endpoint != "" {
			candidates = append(candidates, in)
		}
	}
	if len(candidates) == 0 {
		return ServiceInfo{}, false
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if !a.StartedAt.Equal(b.StartedAt) {
			return a.StartedAt.After(b.StartedAt)
		}
		return a.InstanceID < b.InstanceID
	})
	return candidates[0], true
}

// Resolve returns the endpoint of a live instance of name, retrying with
// exponential backoff until one appears or wait elapses.
func Resolve(ctx context.Context, d Discoverer, name string, wait time.Duration) (string, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = wait

	var endpoint string
	operation := func() error {
		instances, err := d.Discover(ctx, KindService, name)
		if err != nil {
			return err
		}
		selected, ok := Select(instances)
		if !ok {
			return fmt.Errorf("%w for service %q", ErrNoInstances, name)
		}
		endpoint = selected.Endpoint
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", fmt.Errorf("failed to resolve service %q: %w", name, err)
	}
	return endpoint, nil
}

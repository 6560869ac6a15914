package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"

	"github.com/zero-day-ai/aviator"
	"github.com/zero-day-ai/aviator/config"
	"github.com/zero-day-ai/aviator/queue"
	"github.com/zero-day-ai/aviator/registry"
	"github.com/zero-day-ai/aviator/triage"
)

// newCoordinator builds the triage coordinator described by cfg. The
// returned cleanup releases the discovery client, if any.
func newCoordinator(cfg *config.TriageConfig, logger *slog.Logger) (*triage.Coordinator, func(), error) {
	const op = "cli.newCoordinator"
	cleanup := func() {}

	if cfg == nil {
		return nil, cleanup, aviator.NewSimpleError(op, fmt.Errorf("the configuration has no triage section"))
	}

	var transport triage.Transport
	switch cfg.GetTransport() {
	case config.TransportQueue:
		transport = triage.NewQueueTransport(queueOptions(cfg.Queue, logger), logger)

	case config.TransportGRPC:
		opts := []triage.GRPCOption{
			triage.WithKeepalive(cfg.GetKeepaliveInterval()),
			triage.WithGRPCLogger(logger),
		}

		if !cfg.Insecure {
			tlsConf, err := triageTLS(cfg)
			if err != nil {
				return nil, cleanup, aviator.NewSimpleError(op, err)
			}
			opts = append(opts, triage.WithTLS(tlsConf))
		}

		if d := cfg.Discovery; d != nil {
			client, err := newRegistryClient(d)
			if err != nil {
				return nil, cleanup, aviator.NewTechnicalError(op, err)
			}
			cleanup = func() { aviator.CloseWithLog(client, logger, "registry client") }

			service, wait := d.GetService(), d.GetWait()
			opts = append(opts, triage.WithResolver(func(ctx context.Context) (string, error) {
				return registry.Resolve(ctx, client, service, wait)
			}))
		}

		transport = triage.NewGRPCTransport(cfg.Address, opts...)

	default:
		return nil, cleanup, aviator.NewSimpleError(op, fmt.Errorf("unknown triage transport %q", cfg.Transport))
	}

	coord := triage.NewCoordinator(transport,
		triage.WithTimeout(cfg.GetTimeout()),
		triage.WithLogger(logger),
	)
	return coord, cleanup, nil
}

func triageTLS(cfg *config.TriageConfig) (*tls.Config, error) {
	tc := registry.TLSConfig{CAFile: cfg.CACert, ServerName: cfg.ServerName}
	return tc.ClientConfig()
}

func queueOptions(cfg *config.QueueConfig, logger *slog.Logger) queue.RedisOptions {
	opts := queue.RedisOptions{
		Prefix:         cfg.GetPrefix(),
		ConnectTimeout: cfg.GetConnectTimeout(),
		Logger:         logger,
	}
	if cfg != nil {
		opts.URL = cfg.URL
	}
	return opts
}

// newRegistryClient connects to the etcd endpoints of d. A non-empty
// AVIATOR_REGISTRY_ENDPOINTS takes precedence over the configured list.
func newRegistryClient(d *config.DiscoveryConfig) (*registry.Client, error) {
	endpoints := d.Endpoints
	if env := registry.EndpointsFromEnv(); len(env) > 0 {
		endpoints = env
	}
	return registry.NewClient(registry.Config{
		Endpoints: endpoints,
		Namespace: d.GetNamespace(),
	})
}

package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/zero-day-ai/aviator"
	"github.com/zero-day-ai/aviator/config"
	"github.com/zero-day-ai/aviator/finding"
	"github.com/zero-day-ai/aviator/registry"
	"github.com/zero-day-ai/aviator/triage"
)

const stubVersion = "0.1.0"

func (c *cli) newStubCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stub",
		Short: "Serve a fixed-answer triage service for local runs",
		Long: `Start a gRPC triage service that answers every finding with the same verdict.
When triage.discovery is configured the service registers itself in etcd and
deregisters on shutdown, so audits can find it through discovery.`,
		Args: cobra.NoArgs,
		RunE: c.runStub,
	}

	f := cmd.Flags()
	f.String("listen", "127.0.0.1:50051", "Address to listen on")
	f.String("advertise", "", "Endpoint to register (defaults to the listen address)")
	f.String("outcome", string(triage.OutcomeUnsure), "Outcome returned for every finding")
	f.String("tier", "STANDARD", "Tier returned for every finding")
	f.String("comment", "", "Comment returned for every finding")
	f.String("token", "", "Require this bearer token")
	return cmd
}

func (c *cli) runStub(cmd *cobra.Command, args []string) error {
	const op = "cli.stub"
	ctx := cmd.Context()

	outcome := triage.ParseOutcome(c.v.GetString("outcome"))
	tier := c.v.GetString("tier")
	comment := c.v.GetString("comment")

	stub := &triage.StubServer{
		Token: c.v.GetString("token"),
		Triage: func(ctx context.Context, cand finding.Candidate) triage.Verdict {
			return triage.Verdict{
				InstanceID: cand.InstanceID,
				Tier:       tier,
				Outcome:    outcome,
				Comment:    comment,
				Status:     triage.StatusSuccess,
			}
		},
	}

	lis, err := net.Listen("tcp", c.v.GetString("listen"))
	if err != nil {
		return aviator.NewSimpleError(op, fmt.Errorf("failed to listen: %w", err))
	}

	srv := grpc.NewServer()
	triage.RegisterTriageServer(srv, stub)
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	endpoint := c.v.GetString("advertise")
	if endpoint == "" {
		endpoint = lis.Addr().String()
	}

	if t := c.cfg.Triage; t != nil && t.Discovery != nil {
		deregister, err := c.register(ctx, t.Discovery, endpoint)
		if err != nil {
			c.logger.Warn("failed to register with registry", "error", err, "endpoint", endpoint)
		} else {
			defer deregister()
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(lis)
	}()
	c.logger.Info("triage stub started", "address", lis.Addr().String(), "outcome", outcome, "tier", tier)

	select {
	case err := <-errCh:
		return aviator.NewTechnicalError(op, err)
	case <-ctx.Done():
	}

	c.logger.Info("shutting down triage stub")
	hs.Shutdown()

	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(10 * time.Second):
		srv.Stop()
	}
	return nil
}

// register announces the stub in etcd and returns a function that removes
// the entry and closes the client.
func (c *cli) register(ctx context.Context, d *config.DiscoveryConfig, endpoint string) (func(), error) {
	client, err := newRegistryClient(d)
	if err != nil {
		return nil, err
	}

	info := registry.ServiceInfo{
		Kind:       registry.KindService,
		Name:       d.GetService(),
		Version:    stubVersion,
		InstanceID: uuid.NewString(),
		Endpoint:   endpoint,
		Metadata:   map[string]string{"implementation": "stub"},
		StartedAt:  time.Now(),
	}
	if err := client.Register(ctx, info); err != nil {
		aviator.CloseWithLog(client, c.logger, "registry client")
		return nil, err
	}
	c.logger.Info("registered with registry", "service", info.Name, "endpoint", endpoint, "instance_id", info.InstanceID)

	return func() {
		if err := client.Deregister(context.WithoutCancel(ctx), info); err != nil {
			c.logger.Warn("failed to deregister from registry", "error", err, "instance_id", info.InstanceID)
		}
		aviator.CloseWithLog(client, c.logger, "registry client")
	}, nil
}

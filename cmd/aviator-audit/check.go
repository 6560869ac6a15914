package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/zero-day-ai/aviator"
	"github.com/zero-day-ai/aviator/config"
	"github.com/zero-day-ai/aviator/health"
	"github.com/zero-day-ai/aviator/queue"
)

func (c *cli) newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run pre-flight checks for an audit",
		Long: `Check that the archive is usable and that the configured triage service can
be reached: TCP reachability for gRPC, a Redis ping for the queue transport
and an etcd lookup when discovery is configured.

Exits non-zero when any check is unhealthy. Degraded checks are reported but
do not fail the command.`,
		Args: cobra.NoArgs,
		RunE: c.runCheck,
	}

	f := cmd.Flags()
	f.String("archive", "", "Path of the FPR archive")
	f.String("findings", "", "JSON file with the archive's findings")
	return cmd
}

type namedCheck struct {
	Name   string        `json:"name"`
	Status health.Status `json:"result"`
}

func (c *cli) runCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var checks []namedCheck
	add := func(name string, s health.Status) {
		checks = append(checks, namedCheck{Name: name, Status: s})
	}

	if path := c.v.GetString("archive"); path != "" {
		add("archive", health.ArchiveCheck(path, c.cfg.GetRequireSource()))
	}
	if path := c.v.GetString("findings"); path != "" {
		add("findings", health.FileCheck(path))
	}
	if t := c.cfg.Triage; t != nil {
		add("triage", c.triageCheck(ctx, t))
	}

	statuses := make([]health.Status, len(checks))
	for i, nc := range checks {
		statuses[i] = nc.Status
	}
	overall := health.Combine(statuses...)

	if err := printChecks(cmd.OutOrStdout(), checks, overall, c.v.GetBool("json")); err != nil {
		return err
	}
	if overall.IsUnhealthy() {
		return aviator.NewTechnicalError("cli.check", fmt.Errorf("pre-flight checks failed: %s", overall.Message))
	}
	return nil
}

func (c *cli) triageCheck(ctx context.Context, t *config.TriageConfig) health.Status {
	switch t.GetTransport() {
	case config.TransportQueue:
		client, err := queue.NewRedisClient(queueOptions(t.Queue, c.logger))
		if err != nil {
			return health.Unhealthy("redis unreachable", map[string]any{"error": err.Error()})
		}
		defer aviator.CloseWithLog(client, c.logger, "redis client")
		return health.PingCheck(ctx, "redis", client)

	default:
		if d := t.Discovery; d != nil {
			client, err := newRegistryClient(d)
			if err != nil {
				return health.Unhealthy("registry unreachable", map[string]any{"error": err.Error()})
			}
			defer aviator.CloseWithLog(client, c.logger, "registry client")
			return health.DiscoveryCheck(ctx, client, d.GetService())
		}
		return health.NetworkCheck(ctx, t.Address)
	}
}

func printChecks(w io.Writer, checks []namedCheck, overall health.Status, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Overall health.Status `json:"overall"`
			Checks  []namedCheck  `json:"checks"`
		}{overall, checks})
	}

	for _, nc := range checks {
		fmt.Fprintf(w, "%-10s %-10s %s\n", nc.Name, nc.Status.State, nc.Status.Message)
	}
	fmt.Fprintf(w, "%-10s %-10s %s\n", "overall", overall.State, overall.Message)
	return nil
}

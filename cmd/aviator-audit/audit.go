package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zero-day-ai/aviator"
	"github.com/zero-day-ai/aviator/engine"
	"github.com/zero-day-ai/aviator/telemetry"
)

func (c *cli) newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Triage an archive and write the verdicts back into it",
		Long: `Run a full audit: select eligible findings, allocate the triage budget, send
one batch to the triage service and merge the verdicts into audit.xml.

The archive is only rewritten when at least one finding was updated. A
rejected request, a timeout or an interrupt leaves it untouched.

Exit codes: 0 audited, partially audited or skipped; 1 technical failure;
2 invalid input or rejected request; 3 nothing could be audited;
130 interrupted.`,
		Args: cobra.NoArgs,
		RunE: c.runAudit,
	}

	f := cmd.Flags()
	addInputFlags(f)
	f.String("token", "", "Bearer token for the triage service")
	f.String("project-name", "", "Project name sent to the triage service")
	f.String("build-id", "", "Build id sent to the triage service")
	f.String("application-name", "", "Application name (defaults to triage.application_name)")
	f.String("application-version", "", "Application version (defaults to triage.application_version)")
	f.String("trace", "", "Trace exporter: none or stdout (defaults to telemetry.exporter)")
	f.String("trace-id", "", "Hex trace id of the calling pipeline's trace")
	f.String("parent-span-id", "", "Hex span id to parent the run span under")
	return cmd
}

func (c *cli) runAudit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	in, err := c.input(cmd)
	if err != nil {
		return err
	}

	tel, shutdown, err := c.newTelemetry(ctx)
	if err != nil {
		return err
	}
	defer shutdown()

	coord, cleanup, err := newCoordinator(c.cfg.Triage, c.logger)
	if err != nil {
		return err
	}
	defer cleanup()

	opts := append(c.engineOptions(), engine.WithTelemetry(tel))
	eng, err := engine.FromConfig(c.cfg, coord, opts...)
	if err != nil {
		return err
	}

	ctx = telemetry.ParentContext(ctx, c.v.GetString("trace-id"), c.v.GetString("parent-span-id"))
	out, err := eng.Run(ctx, in)
	if err != nil {
		return err
	}

	if err := printOutcome(cmd.OutOrStdout(), out, c.v.GetBool("json")); err != nil {
		return err
	}
	if out.Status == engine.StatusFailed {
		return &statusError{status: out.Status}
	}
	return nil
}

// newTelemetry creates the tracer provider for a run. The returned shutdown
// flushes pending spans.
func (c *cli) newTelemetry(ctx context.Context) (*telemetry.Telemetry, func(), error) {
	const op = "cli.telemetry"

	exporter := c.v.GetString("trace")
	if exporter == "" {
		exporter = c.cfg.Telemetry.GetExporter()
	}

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.ProviderOptions{
		ServiceName: c.cfg.Telemetry.GetServiceName(),
		Exporter:    exporter,
		Logger:      c.logger,
	})
	if err != nil {
		return nil, nil, aviator.NewSimpleError(op, err)
	}
	shutdown := func() {
		if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
			c.logger.Warn("failed to shut down tracer provider", "error", err)
		}
	}

	tel, err := telemetry.New(tp, nil)
	if err != nil {
		shutdown()
		return nil, nil, aviator.NewTechnicalError(op, fmt.Errorf("failed to create instruments: %w", err))
	}
	return tel, shutdown, nil
}

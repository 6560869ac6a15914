package main

import (
	"github.com/spf13/cobra"

	"github.com/zero-day-ai/aviator/engine"
)

func (c *cli) newAllocateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "allocate",
		Short: "Show which findings an audit would send, without sending them",
		Long: `Run eligibility, filtering and allocation for an archive and print the plan.
Nothing is sent to the triage service and the archive is not modified.`,
		Args: cobra.NoArgs,
		RunE: c.runAllocate,
	}
	addInputFlags(cmd.Flags())
	return cmd
}

func (c *cli) runAllocate(cmd *cobra.Command, args []string) error {
	in, err := c.input(cmd)
	if err != nil {
		return err
	}

	eng, err := engine.FromConfig(c.cfg, nil, c.engineOptions()...)
	if err != nil {
		return err
	}

	out, err := eng.Plan(cmd.Context(), in)
	if err != nil {
		return err
	}
	return printOutcome(cmd.OutOrStdout(), out, c.v.GetBool("json"))
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/zero-day-ai/aviator"
	"github.com/zero-day-ai/aviator/engine"
	"github.com/zero-day-ai/aviator/finding"
	"github.com/zero-day-ai/aviator/triage"
)

// addInputFlags registers the flags shared by audit and allocate.
func addInputFlags(f *pflag.FlagSet) {
	f.String("archive", "", "Path of the FPR archive")
	f.String("findings", "", "JSON file with the archive's findings, - for stdin")
	f.Int("max-per-category", 0, "Per-category triage cap (0 uses the configured value)")
	f.Int("max-total", 0, "Total triage cap (0 uses the configured value)")
	f.String("result-tag", "", "Name of the tag verdicts are written to")
}

// input assembles the run input from flags and environment.
func (c *cli) input(cmd *cobra.Command) (engine.Input, error) {
	const op = "cli.input"

	in := engine.Input{
		ArchivePath: c.v.GetString("archive"),
		Token:       c.v.GetString("token"),
		Project: triage.ProjectMetadata{
			ProjectName:        c.v.GetString("project-name"),
			BuildID:            c.v.GetString("build-id"),
			ApplicationName:    c.v.GetString("application-name"),
			ApplicationVersion: c.v.GetString("application-version"),
		},
	}
	if in.ArchivePath == "" {
		return in, aviator.NewSimpleError(op, fmt.Errorf("--archive is required"))
	}

	if t := c.cfg.Triage; t != nil {
		if in.Project.ApplicationName == "" {
			in.Project.ApplicationName = t.ApplicationName
		}
		if in.Project.ApplicationVersion == "" {
			in.Project.ApplicationVersion = t.ApplicationVersion
		}
	}

	path := c.v.GetString("findings")
	if path == "" {
		return in, aviator.NewSimpleError(op, fmt.Errorf("--findings is required"))
	}

	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return in, aviator.NewSimpleError(op, fmt.Errorf("failed to open findings: %w", err))
		}
		defer aviator.CloseWithLog(f, c.logger, "findings file")
		r = f
	}

	findings, err := readFindings(r)
	if err != nil {
		return in, aviator.NewSimpleError(op, err).WithContext(map[string]any{"path": path})
	}
	in.Findings = findings
	return in, nil
}

func readFindings(r io.Reader) ([]finding.Finding, error) {
	var findings []finding.Finding
	if err := json.NewDecoder(r).Decode(&findings); err != nil {
		return nil, fmt.Errorf("failed to decode findings: %w", err)
	}
	return findings, nil
}

// engineOptions returns the flag overrides applied on top of the
// configuration.
func (c *cli) engineOptions() []engine.Option {
	opts := []engine.Option{engine.WithLogger(c.logger)}

	limits := c.cfg.GetLimits()
	if n := c.v.GetInt("max-per-category"); n > 0 {
		limits.MaxPerCategory = n
	}
	if n := c.v.GetInt("max-total"); n > 0 {
		limits.MaxTotal = n
	}
	opts = append(opts, engine.WithLimits(limits))

	if name := c.v.GetString("result-tag"); name != "" {
		opts = append(opts, engine.WithResultTag(name, c.cfg.ResultTag.ID))
	}
	return opts
}

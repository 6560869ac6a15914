// Command aviator-audit triages the findings of a Fortify FPR archive with
// the Aviator service and writes the verdicts back into the archive.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zero-day-ai/aviator/config"
)

// cli holds the state shared by all commands of one invocation.
type cli struct {
	v      *viper.Viper
	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:   "aviator-audit",
		Short: "Audit Fortify FPR archives with Aviator",
		Long: `aviator-audit selects the open findings of an FPR archive, sends them to the
Aviator triage service and merges the verdicts back into the archive's audit.xml.

Every flag can also be set through the environment with the AVIATOR_ prefix,
for example AVIATOR_TOKEN or AVIATOR_LOG_LEVEL.

Examples:
  aviator-audit audit --archive scan.fpr --findings findings.json
  aviator-audit allocate --archive scan.fpr --findings findings.json --json
  aviator-audit check --archive scan.fpr --config aviator.yaml
  aviator-audit stub --listen 127.0.0.1:50051 --outcome NOT_AN_ISSUE`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "Path to aviator.yaml or a directory containing it")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.String("log-format", "json", "Log format: json or text")
	pf.Bool("json", false, "Print results as JSON")

	c.v.SetEnvPrefix("AVIATOR")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	root.AddCommand(
		c.newAuditCmd(),
		c.newAllocateCmd(),
		c.newCheckCmd(),
		c.newStubCmd(),
	)
	return root
}

// setup binds the executing command's flags, installs the logger and loads
// the configuration file.
func (c *cli) setup(cmd *cobra.Command, args []string) error {
	if err := c.v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	logger, err := newLogger(cmd.ErrOrStderr(), c.v.GetString("log-level"), c.v.GetString("log-format"))
	if err != nil {
		return err
	}
	c.logger = logger
	slog.SetDefault(logger)

	c.cfg = &config.Config{}
	if path := c.v.GetString("config"); path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		c.cfg = cfg
		c.logger.Debug("loaded configuration", "path", path)
	}
	return nil
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "Error: "+err.Error())
		return exitCode(err)
	}
	return exitOK
}

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

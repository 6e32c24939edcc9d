// Command refine runs evaluate, transform, and critique passes over a
// structured document and manages the sessions those passes record into.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const appName = "refine"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Refine structured documents with an LLM pipeline",
		Long: `Refine runs a three-stage pipeline over the fields of a YAML or JSON document:

  evaluate   assess the selected fields
  transform  rewrite them using the evaluation
  critique   score the rewrite against the original

Every run records into a session. Quick iterate feeds the latest critique
back into a refinement transform and critiques the result again.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to config.toml (default ./config.toml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&opts.memory, "memory", false, "Keep sessions in memory instead of Postgres")
	cmd.PersistentFlags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve /metrics and /healthz on host:port while running")

	cmd.AddCommand(
		runCmd(opts),
		stageCmd(opts),
		iterateCmd(opts),
		sessionsCmd(opts),
		versionCmd(opts),
	)

	return cmd
}

func versionCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (env: %s)\n", appName, cfg.Version, cfg.Env())
			return nil
		},
	}
}

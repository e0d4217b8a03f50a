package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"solarverify/internal/preflight"
	"solarverify/internal/services/oracle"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check that a run can start",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			var checker preflight.HealthChecker
			if client, err := oracle.New(cfg.Oracle.URL,
				oracle.WithTimeout(time.Duration(cfg.Oracle.TimeoutSeconds)*time.Second),
				oracle.WithLogger(ctx.commandLogger()),
			); err == nil {
				checker = client
			}

			results := preflight.RunAll(cmd.Context(), cfg, checker)
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Preflight", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, result := range results {
				fmt.Fprintln(out, renderPreflight(result, colorize))
			}
			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d of %d checks failed", len(failed), len(results))
			}
			return nil
		},
	}
}

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"solarverify/internal/preflight"
	"solarverify/internal/services/oracle"
)

func newOracleCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oracle",
		Short: "Detection oracle utilities",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Probe the detection oracle health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := oracle.New(cfg.Oracle.URL,
				oracle.WithTimeout(time.Duration(cfg.Oracle.TimeoutSeconds)*time.Second),
				oracle.WithLogger(ctx.commandLogger()),
			)
			if err != nil {
				return err
			}
			result := preflight.CheckOracle(cmd.Context(), client)
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderStatusLine("Endpoint", statusInfo, client.HealthURL(), false))
			fmt.Fprintln(out, renderPreflight(result, shouldColorize(out)))
			if !result.Passed {
				return fmt.Errorf("detection oracle unhealthy: %s", result.Detail)
			}
			return nil
		},
	})
	return cmd
}

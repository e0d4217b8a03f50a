package main

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"solarverify/internal/config"
	"solarverify/internal/detection"
	"solarverify/internal/ledger"
	"solarverify/internal/logging"
	"solarverify/internal/pipeline"
	"solarverify/internal/services"
	"solarverify/internal/services/oracle"
	"solarverify/internal/services/staticmap"
)

type runFlags struct {
	input    string
	workers  int
	layout   string
	areaMode string
	eventLog string
	json     bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Verify every sample in the input table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := applyRunFlags(cmd, cfg, flags); err != nil {
				return err
			}
			return executeRun(cmd, cfg, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.input, "input", "i", "", "Input table (.csv or .xlsx); defaults to paths.input_file")
	cmd.Flags().IntVarP(&flags.workers, "workers", "w", 0, "Samples processed concurrently")
	cmd.Flags().StringVar(&flags.layout, "layout", "", "Output layout: shared or run_scoped")
	cmd.Flags().StringVar(&flags.areaMode, "area-mode", "", "Panel area aggregation: sum or union")
	cmd.Flags().StringVar(&flags.eventLog, "event-log", "", "Also write JSON log records to this file")
	cmd.Flags().BoolVar(&flags.json, "json", false, "Print the run summary as JSON")

	return cmd
}

// applyRunFlags copies explicitly set flags onto cfg and revalidates it.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config, flags runFlags) error {
	if cmd.Flags().Changed("input") {
		path, err := config.ExpandPath(strings.TrimSpace(flags.input))
		if err != nil {
			return err
		}
		cfg.Paths.InputFile = path
	}
	if cmd.Flags().Changed("workers") {
		cfg.Pipeline.Workers = flags.workers
	}
	if cmd.Flags().Changed("layout") {
		cfg.Output.Layout = strings.ToLower(strings.TrimSpace(flags.layout))
	}
	if cmd.Flags().Changed("area-mode") {
		cfg.Metrics.AreaMode = strings.ToLower(strings.TrimSpace(flags.areaMode))
	}
	return cfg.Validate()
}

func executeRun(cmd *cobra.Command, cfg *config.Config, flags runFlags) error {
	runID := uuid.NewString()
	logger, err := logging.NewFromConfig(cfg, runID)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if path := strings.TrimSpace(flags.eventLog); path != "" {
		handler, closer, err := logging.NewFileHandler(path, cfg.Logging.Level)
		if err != nil {
			return err
		}
		defer closer.Close()
		logger = logging.TeeLogger(logger, handler)
	}

	runCtx := services.WithRunID(cmd.Context(), runID)

	store, err := ledger.Open(runCtx, cfg.LedgerPath())
	if err != nil {
		logging.WarnWithContext(logger, "run ledger unavailable", "ledger_unavailable",
			logging.String("path", cfg.LedgerPath()),
			logging.Error(err),
			logging.String(logging.FieldImpact, "this run will not appear in 'solarverify runs'"),
		)
		store = nil
	}
	if store != nil {
		defer store.Close()
	}

	oracleClient, err := oracle.New(cfg.Oracle.URL,
		oracle.WithTimeout(time.Duration(cfg.Oracle.TimeoutSeconds)*time.Second),
		oracle.WithLogger(logger),
	)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "preflight", "oracle client", "", err)
	}

	runner, err := pipeline.NewRunner(pipeline.Options{
		Config:     cfg,
		Logger:     logger,
		NewFetcher: staticMapFactory(cfg, logger),
		Detector:   detection.NewAdapter(oracleClient, logger),
		Ledger:     store,
		Health:     oracleClient,
	})
	if err != nil {
		return err
	}

	summary, runErr := runner.Run(runCtx, cfg.Paths.InputFile)
	if summary != nil {
		if flags.json {
			if err := writeJSON(cmd, summary); err != nil {
				return err
			}
		} else {
			printRunSummary(cmd.OutOrStdout(), summary, shouldColorize(cmd.OutOrStdout()))
		}
	}
	return runErr
}

func staticMapFactory(cfg *config.Config, logger *slog.Logger) pipeline.FetcherFactory {
	params := staticmap.Params{
		BaseURL: cfg.ImageService.BaseURL,
		APIKey:  cfg.ImageService.APIKey,
		Zoom:    cfg.ImageService.Zoom,
		Width:   cfg.ImageService.Width,
		Height:  cfg.ImageService.Height,
		MapType: cfg.ImageService.MapType,
	}
	timeout := time.Duration(cfg.ImageService.TimeoutSeconds) * time.Second
	return func(dir string) (pipeline.ImageFetcher, error) {
		client, err := staticmap.New(params, dir,
			staticmap.WithTimeout(timeout),
			staticmap.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

func printRunSummary(w io.Writer, summary *pipeline.Summary, colorize bool) {
	for _, line := range renderSectionHeader("Run "+summary.RunID, colorize) {
		fmt.Fprintln(w, line)
	}

	rows := [][]string{
		{"Samples", strconv.Itoa(summary.Total)},
		{"Processed", strconv.Itoa(summary.Processed)},
		{"Failed", strconv.Itoa(summary.Failed)},
		{"Skipped", strconv.Itoa(summary.Skipped)},
		{"Certified", strconv.Itoa(summary.Certified)},
		{"Duration", summary.Duration.Round(time.Millisecond).String()},
		{"Metrics", summary.MetricsPath},
	}
	fmt.Fprintln(w, renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignRight}, colorize))

	if len(summary.FailuresByStage) > 0 {
		stages := make([]string, 0, len(summary.FailuresByStage))
		for stage := range summary.FailuresByStage {
			stages = append(stages, stage)
		}
		sort.Strings(stages)
		parts := make([]string, 0, len(stages))
		for _, stage := range stages {
			parts = append(parts, fmt.Sprintf("%s=%d", stage, summary.FailuresByStage[stage]))
		}
		fmt.Fprintln(w, renderStatusLine("Failures by stage", statusWarn, strings.Join(parts, " "), colorize))
	}

	if len(summary.Failures) == 0 {
		return
	}
	failureRows := make([][]string, 0, len(summary.Failures))
	for _, f := range summary.Failures {
		failureRows = append(failureRows, []string{
			f.SampleID,
			strconv.Itoa(f.Row),
			f.Stage,
			f.Kind,
			truncate(f.Message, 80),
		})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"Sample", "Row", "Stage", "Kind", "Error"},
		failureRows,
		[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
		colorize,
	))
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-3]) + "..."
}

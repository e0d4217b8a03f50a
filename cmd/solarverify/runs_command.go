package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"

	"solarverify/internal/artifacts"
	"solarverify/internal/ledger"
	"solarverify/internal/metrics"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded runs",
	}
	cmd.AddCommand(newRunsListCommand(ctx))
	cmd.AddCommand(newRunsShowCommand(ctx))
	return cmd
}

func newRunsListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openLedger(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				views := make([]runView, 0, len(runs))
				for _, run := range runs {
					views = append(views, newRunView(run))
				}
				return writeJSON(cmd, views)
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				rows = append(rows, []string{
					shortID(run.ID),
					string(run.Status),
					run.StartedAt.Local().Format("2006-01-02 15:04:05"),
					formatDuration(run.Duration()),
					strconv.Itoa(run.Total),
					strconv.Itoa(run.Processed),
					strconv.Itoa(run.Failed),
					strconv.Itoa(run.Certified),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Status", "Started", "Duration", "Total", "OK", "Failed", "Certified"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
				shouldColorize(out),
			))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to show (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print runs as JSON")
	return cmd
}

func newRunsShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run and its samples",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openLedger(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			samples, err := store.Samples(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			stats := computeAreaStats(samples)

			if asJSON {
				views := make([]sampleView, 0, len(samples))
				for _, s := range samples {
					views = append(views, newSampleView(s))
				}
				return writeJSON(cmd, runDetailView{
					Run:     newRunView(*run),
					Area:    stats,
					Samples: views,
				})
			}
			printRunDetail(cmd.OutOrStdout(), *run, samples, stats, shouldColorize(cmd.OutOrStdout()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the run as JSON")
	return cmd
}

func (c *commandContext) openLedger(ctx context.Context) (*ledger.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return ledger.Open(ctx, cfg.LedgerPath())
}

// areaStats summarizes total_area over processed samples.
type areaStats struct {
	Count  int     `json:"count"`
	Sum    float64 `json:"sum"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"stddev"`
	Max    float64 `json:"max"`
}

func computeAreaStats(samples []ledger.Sample) areaStats {
	values := make([]float64, 0, len(samples))
	for _, s := range samples {
		if s.Outcome == ledger.OutcomeProcessed {
			values = append(values, s.TotalArea)
		}
	}
	if len(values) == 0 {
		return areaStats{}
	}
	sort.Float64s(values)

	var sum float64
	for _, v := range values {
		sum += v
	}
	out := areaStats{
		Count:  len(values),
		Sum:    metrics.Round2(sum),
		Mean:   metrics.Round2(stat.Mean(values, nil)),
		Median: metrics.Round2(stat.Quantile(0.5, stat.Empirical, values, nil)),
		Max:    values[len(values)-1],
	}
	if len(values) > 1 {
		out.StdDev = metrics.Round2(stat.StdDev(values, nil))
	}
	return out
}

type runView struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	InputPath  string    `json:"input_path"`
	OutputRoot string    `json:"output_root"`
	Layout     string    `json:"layout"`
	AreaMode   string    `json:"area_mode"`
	Workers    int       `json:"workers"`
	Total      int       `json:"total"`
	Processed  int       `json:"processed"`
	Failed     int       `json:"failed"`
	Certified  int       `json:"certified"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

func newRunView(run ledger.Run) runView {
	return runView{
		ID:         run.ID,
		Status:     string(run.Status),
		InputPath:  run.InputPath,
		OutputRoot: run.OutputRoot,
		Layout:     run.Layout,
		AreaMode:   run.AreaMode,
		Workers:    run.Workers,
		Total:      run.Total,
		Processed:  run.Processed,
		Failed:     run.Failed,
		Certified:  run.Certified,
		Error:      run.ErrorMessage,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
}

type sampleView struct {
	Seq          int     `json:"seq"`
	SampleID     string  `json:"sample_id"`
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	Outcome      string  `json:"outcome"`
	FailureStage string  `json:"failure_stage,omitempty"`
	FailureKind  string  `json:"failure_kind,omitempty"`
	Error        string  `json:"error,omitempty"`
	PanelCount   int     `json:"panel_count"`
	TotalArea    float64 `json:"total_area"`
	QCFlag       string  `json:"qc_flag,omitempty"`
	Health       string  `json:"solar_health_score,omitempty"`
	Certified    bool    `json:"certified"`
}

func newSampleView(s ledger.Sample) sampleView {
	return sampleView{
		Seq:          s.Seq,
		SampleID:     s.SampleID,
		Lat:          s.Lat,
		Lon:          s.Lon,
		Outcome:      string(s.Outcome),
		FailureStage: s.FailureStage,
		FailureKind:  s.FailureKind,
		Error:        s.ErrorMessage,
		PanelCount:   s.PanelCount,
		TotalArea:    s.TotalArea,
		QCFlag:       s.QCFlag,
		Health:       s.Health,
		Certified:    s.Certified,
	}
}

type runDetailView struct {
	Run     runView      `json:"run"`
	Area    areaStats    `json:"area"`
	Samples []sampleView `json:"samples"`
}

func printRunDetail(w io.Writer, run ledger.Run, samples []ledger.Sample, stats areaStats, colorize bool) {
	for _, line := range renderSectionHeader("Run "+run.ID, colorize) {
		fmt.Fprintln(w, line)
	}
	statusKindFor := statusOK
	switch run.Status {
	case ledger.RunFailed:
		statusKindFor = statusError
	case ledger.RunRunning:
		statusKindFor = statusInfo
	}
	fmt.Fprintln(w, renderStatusLine("Status", statusKindFor, run.ErrorMessage, colorize))
	fmt.Fprintln(w, renderStatusLine("Input", statusInfo, run.InputPath, colorize))
	fmt.Fprintln(w, renderStatusLine("Output root", statusInfo, run.OutputRoot, colorize))
	fmt.Fprintln(w, renderStatusLine("Layout", statusInfo, fmt.Sprintf("%s, area=%s, workers=%d", run.Layout, run.AreaMode, run.Workers), colorize))
	fmt.Fprintln(w, renderStatusLine("Samples", statusInfo,
		fmt.Sprintf("%d total, %d processed, %d failed, %d certified", run.Total, run.Processed, run.Failed, run.Certified), colorize))
	if stats.Count > 0 {
		fmt.Fprintln(w, renderStatusLine("Panel area", statusInfo,
			fmt.Sprintf("sum %s, mean %s, median %s, stddev %s, max %s",
				artifacts.FormatDecimal(stats.Sum),
				artifacts.FormatDecimal(stats.Mean),
				artifacts.FormatDecimal(stats.Median),
				artifacts.FormatDecimal(stats.StdDev),
				artifacts.FormatDecimal(stats.Max),
			), colorize))
	}

	if len(samples) == 0 {
		return
	}
	rows := make([][]string, 0, len(samples))
	for _, s := range samples {
		detail := s.QCFlag
		if s.Outcome == ledger.OutcomeFailed {
			detail = strings.TrimSpace(s.FailureStage + " " + s.FailureKind)
		}
		cert := ""
		if s.Certified {
			cert = "yes"
		}
		rows = append(rows, []string{
			strconv.Itoa(s.Seq),
			s.SampleID,
			string(s.Outcome),
			strconv.Itoa(s.PanelCount),
			artifacts.FormatDecimal(s.TotalArea),
			detail,
			s.Health,
			cert,
		})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"#", "Sample", "Outcome", "Panels", "Area", "QC / Failure", "Health", "Cert"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft, alignLeft},
		colorize,
	))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Second).String()
}

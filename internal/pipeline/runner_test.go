package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/go-cmp/cmp"

	"solarverify/internal/artifacts"
	"solarverify/internal/config"
	"solarverify/internal/detection"
	"solarverify/internal/ledger"
	"solarverify/internal/pipeline"
	"solarverify/internal/services"
	"solarverify/internal/testsupport"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

var header = []string{"sample_id", "lat", "lon"}

type harness struct {
	cfg     *config.Config
	fetcher *testsupport.StubFetcher
	oracle  *testsupport.ScriptedOracle
	ledger  *ledger.Store
	runner  *pipeline.Runner
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	h := &harness{
		cfg:     cfg,
		fetcher: &testsupport.StubFetcher{Fail: map[string]bool{}, Corrupt: map[string]bool{}},
		oracle: &testsupport.ScriptedOracle{
			Detections: map[string][]detection.RawDetection{},
			Errors:     map[string]error{},
			Panics:     map[string]bool{},
		},
		ledger: testsupport.MustOpenLedger(t, cfg),
	}
	runner, err := pipeline.NewRunner(pipeline.Options{
		Config: cfg,
		NewFetcher: func(dir string) (pipeline.ImageFetcher, error) {
			h.fetcher.Dir = dir
			return h.fetcher, nil
		},
		Detector: detection.NewAdapter(h.oracle, nil),
		Ledger:   h.ledger,
		Clock:    func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	h.runner = runner
	return h
}

func (h *harness) input(t *testing.T, rows ...[]string) string {
	t.Helper()
	testsupport.WriteCSV(t, h.cfg.Paths.InputFile, header, rows...)
	return h.cfg.Paths.InputFile
}

func (h *harness) layout() artifacts.Layout {
	return artifacts.SharedLayout(h.cfg.Paths.OutputRoot, h.cfg.Paths.CertificateTemplate)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// highCoverage is two boxes totalling 1500 px².
var highCoverage = testsupport.Boxes(0.91, [4]float64{0, 0, 30, 30}, [4]float64{100, 100, 125, 124})

// lowCoverage is one box of 900 px².
var lowCoverage = testsupport.Boxes(0.42, [4]float64{0, 0, 30, 30})

func TestRunScenarios(t *testing.T) {
	h := newHarness(t)
	h.oracle.Detections["12"] = highCoverage
	h.oracle.Detections["20"] = lowCoverage
	path := h.input(t,
		[]string{"12.0", "22.57", "88.36"},
		[]string{"20", "10.5", "20.25"},
		[]string{"30", "1", "2"},
	)

	summary, err := h.runner.Run(context.Background(), path)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Total != 3 || summary.Processed != 3 || summary.Failed != 0 || summary.Certified != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	layout := h.layout()
	records := testsupport.ReadCSV(t, layout.MetricsPath())
	want := [][]string{
		{"sample_id", "panel_count", "total_area", "qc_flag", "solar_health_score"},
		{"12", "2", "1500.0", "Pass", "High"},
		{"20", "1", "900.0", "Fail", "Medium"},
		{"30", "0", "0.0", "Fail", "N/A"},
	}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Fatalf("metrics mismatch (-want +got):\n%s", diff)
	}

	// Scenario A: certificate issued under the normalized id.
	cert, err := os.ReadFile(layout.CertificatePath("12"))
	if err != nil {
		t.Fatalf("expected certificate for 12: %v", err)
	}
	if !strings.Contains(string(cert), "Certificate for 12\n") || !strings.Contains(string(cert), "Area: 1500.0\n") {
		t.Fatalf("unexpected certificate:\n%s", cert)
	}
	// Scenarios B and C: no certificate.
	for _, id := range []string{"20", "30"} {
		if exists(layout.CertificatePath(id)) {
			t.Fatalf("no certificate expected for %s", id)
		}
	}

	var manifest artifacts.Manifest
	raw, err := os.ReadFile(layout.ManifestPath("30"))
	if err != nil {
		t.Fatalf("manifest for 30: %v", err)
	}
	if err := json.Unmarshal(raw, &manifest); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if manifest.HasSolar || manifest.QCStatus != "NOT_VERIFIABLE" || len(manifest.BBoxOrMask) != 0 || manifest.Confidence != 0 {
		t.Fatalf("unexpected empty-detection manifest %+v", manifest)
	}
	for _, id := range []string{"12", "20", "30"} {
		if !exists(layout.OverlayPath(id)) {
			t.Fatalf("expected overlay for %s", id)
		}
	}

	var ids []string
	raw, err = os.ReadFile(layout.ValidIDsPath())
	if err != nil {
		t.Fatalf("valid ids: %v", err)
	}
	if err := json.Unmarshal(raw, &ids); err != nil {
		t.Fatalf("decode valid ids: %v", err)
	}
	if diff := cmp.Diff([]string{"12", "20", "30"}, ids); diff != "" {
		t.Fatalf("valid ids mismatch (-want +got):\n%s", diff)
	}
}

func TestRunIsolatesSampleFailures(t *testing.T) {
	h := newHarness(t)
	h.fetcher.Fail["2"] = true
	h.fetcher.Corrupt["3"] = true
	h.oracle.Errors["4"] = errors.New("model offline")
	h.oracle.Panics["5"] = true
	h.oracle.Detections["1"] = highCoverage
	h.oracle.Detections["6"] = highCoverage
	path := h.input(t,
		[]string{"1", "1", "1"},
		[]string{"2", "2", "2"},
		[]string{"3", "3", "3"},
		[]string{"4", "4", "4"},
		[]string{"5", "5", "5"},
		[]string{"6", "6", "6"},
		[]string{"7", "not-a-number", "7"},
	)

	summary, err := h.runner.Run(context.Background(), path)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Processed != 2 || summary.Failed != 5 || summary.Certified != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	wantStages := map[string]int{
		pipeline.StageFetch:    1,
		pipeline.StageDecode:   1,
		pipeline.StageDetect:   2,
		pipeline.StageValidate: 1,
	}
	if diff := cmp.Diff(wantStages, summary.FailuresByStage); diff != "" {
		t.Fatalf("failure stages mismatch (-want +got):\n%s", diff)
	}

	layout := h.layout()
	records := testsupport.ReadCSV(t, layout.MetricsPath())
	if len(records) != 3 || records[1][0] != "1" || records[2][0] != "6" {
		t.Fatalf("metrics should hold only processed samples, got %v", records)
	}
	for _, id := range []string{"2", "3", "4", "5", "7"} {
		if exists(layout.ManifestPath(id)) {
			t.Fatalf("failed sample %s must not have a manifest", id)
		}
	}

	samples, err := h.ledger.Samples(context.Background(), summary.RunID)
	if err != nil {
		t.Fatalf("ledger samples: %v", err)
	}
	kinds := make([]string, 0, len(samples))
	for _, s := range samples {
		kinds = append(kinds, s.SampleID+":"+s.FailureKind)
	}
	wantKinds := []string{"1:", "2:fetch", "3:decode", "4:detect", "5:unexpected", "6:", "7:validation"}
	if diff := cmp.Diff(wantKinds, kinds); diff != "" {
		t.Fatalf("ledger outcomes mismatch (-want +got):\n%s", diff)
	}
}

func TestRunResetPurgesPreviousOutputs(t *testing.T) {
	h := newHarness(t)
	layout := h.layout()
	stale := []string{
		layout.CertificatePath("99"),
		layout.ManifestPath("99"),
		layout.OverlayPath("99"),
		filepath.Join(layout.Fetched, "99.jpg"),
	}
	for _, p := range stale {
		testsupport.WriteText(t, p, "stale")
	}
	testsupport.WriteText(t, layout.MetricsPath(), "sample_id,panel_count,total_area,qc_flag,solar_health_score\n99,1,2000.0,Pass,High\n")

	h.oracle.Detections["1"] = lowCoverage
	path := h.input(t, []string{"1", "1", "1"})
	if _, err := h.runner.Run(context.Background(), path); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, p := range stale {
		if exists(p) {
			t.Fatalf("stale artifact %s survived reset", p)
		}
	}
	if !exists(h.cfg.Paths.CertificateTemplate) {
		t.Fatal("template must survive reset")
	}
	records := testsupport.ReadCSV(t, layout.MetricsPath())
	if len(records) != 2 || records[1][0] != "1" {
		t.Fatalf("metrics should only contain this run, got %v", records)
	}
}

func TestRunTwiceIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.oracle.Detections["1"] = highCoverage
	path := h.input(t, []string{"1", "1", "1"}, []string{"2", "2", "2"})

	for i := 0; i < 2; i++ {
		if _, err := h.runner.Run(context.Background(), path); err != nil {
			t.Fatalf("Run %d: %v", i, err)
		}
	}
	records := testsupport.ReadCSV(t, h.layout().MetricsPath())
	if len(records) != 3 {
		t.Fatalf("expected header plus 2 rows after rerun, got %d", len(records))
	}
	runs, err := h.ledger.ListRuns(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 recorded runs, got %d", len(runs))
	}
}

func TestRunMissingTemplateSkipsCertificateOnly(t *testing.T) {
	h := newHarness(t, testsupport.WithoutTemplate())
	h.oracle.Detections["1"] = highCoverage
	path := h.input(t, []string{"1", "1", "1"})

	summary, err := h.runner.Run(context.Background(), path)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Processed != 1 || summary.Failed != 0 || summary.Certified != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	layout := h.layout()
	if !exists(layout.ManifestPath("1")) {
		t.Fatal("manifest must still be written")
	}
	if exists(layout.CertificatePath("1")) {
		t.Fatal("no certificate without a template")
	}
	if records := testsupport.ReadCSV(t, layout.MetricsPath()); len(records) != 2 {
		t.Fatalf("metrics row must still be written, got %v", records)
	}
}

func TestRunMalformedTemplateIsFatalBeforeReset(t *testing.T) {
	h := newHarness(t, testsupport.WithTemplate("Issued to {owner}"))
	stale := h.layout().CertificatePath("99")
	testsupport.WriteText(t, stale, "stale")
	path := h.input(t, []string{"1", "1", "1"})

	summary, err := h.runner.Run(context.Background(), path)
	if !errors.Is(err, services.ErrConfiguration) || !services.IsFatal(err) {
		t.Fatalf("expected fatal configuration error, got %v", err)
	}
	if summary != nil {
		t.Fatalf("expected no summary, got %+v", summary)
	}
	if !exists(stale) {
		t.Fatal("outputs must not be reset when the run fails preflight")
	}
	if calls := h.fetcher.Calls(); len(calls) != 0 {
		t.Fatalf("no samples should be fetched, got %v", calls)
	}
}

func TestRunMissingColumnIsFatal(t *testing.T) {
	h := newHarness(t)
	testsupport.WriteCSV(t, h.cfg.Paths.InputFile, []string{"sample_id", "lat"}, []string{"1", "1"})

	_, err := h.runner.Run(services.WithRunID(context.Background(), "run-fatal"), h.cfg.Paths.InputFile)
	if !errors.Is(err, services.ErrFatalInput) {
		t.Fatalf("expected ErrFatalInput, got %v", err)
	}
	if calls := h.fetcher.Calls(); len(calls) != 0 {
		t.Fatalf("no samples should be fetched, got %v", calls)
	}
	run, err := h.ledger.GetRun(context.Background(), "run-fatal")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != ledger.RunFailed || !strings.Contains(run.ErrorMessage, "missing required columns") {
		t.Fatalf("unexpected ledger run %+v", run)
	}
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	h := newHarness(t)
	path := h.input(t, []string{"1", "1", "1"})
	if err := h.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	held := flock.New(h.cfg.LockPath())
	locked, err := held.TryLock()
	if err != nil || !locked {
		t.Fatalf("TryLock: locked=%v err=%v", locked, err)
	}
	defer held.Unlock()

	_, err = h.runner.Run(context.Background(), path)
	if !errors.Is(err, services.ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
}

func TestRunParallelKeepsInputOrder(t *testing.T) {
	h := newHarness(t, testsupport.WithWorkers(4))
	var rows [][]string
	var want []string
	for i := 1; i <= 24; i++ {
		id := strconv.Itoa(i)
		rows = append(rows, []string{id, "1", "1"})
		want = append(want, id)
		if i%3 == 0 {
			h.oracle.Detections[id] = highCoverage
		}
		if i%7 == 0 {
			h.fetcher.Fail[id] = true
		}
	}
	path := h.input(t, rows...)

	summary, err := h.runner.Run(context.Background(), path)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Failed != 3 || summary.Processed != 21 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	records := testsupport.ReadCSV(t, h.layout().MetricsPath())
	var got []string
	for _, rec := range records[1:] {
		got = append(got, rec[0])
	}
	var wantProcessed []string
	for _, id := range want {
		if !h.fetcher.Fail[id] {
			wantProcessed = append(wantProcessed, id)
		}
	}
	if diff := cmp.Diff(wantProcessed, got); diff != "" {
		t.Fatalf("metrics order mismatch (-want +got):\n%s", diff)
	}
}

func TestRunScopedLayoutKeepsEarlierRuns(t *testing.T) {
	h := newHarness(t, testsupport.WithLayout(config.LayoutRunScoped))
	h.oracle.Detections["1"] = highCoverage
	path := h.input(t, []string{"1", "1", "1"})

	first, err := h.runner.Run(services.WithRunID(context.Background(), "run-one"), path)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	second, err := h.runner.Run(services.WithRunID(context.Background(), "run-two"), path)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if first.OutputRoot == second.OutputRoot {
		t.Fatal("runs must use separate directories")
	}
	for _, root := range []string{first.OutputRoot, second.OutputRoot} {
		cert := filepath.Join(root, "certificates", "1_certificate.txt")
		if !exists(cert) {
			t.Fatalf("expected certificate %s", cert)
		}
	}
	target, err := os.Readlink(filepath.Join(h.cfg.Paths.OutputRoot, "runs", artifacts.LatestLink))
	if err != nil || target != "run-two" {
		t.Fatalf("latest -> %q (err %v), want run-two", target, err)
	}
}

func TestRunCancelledSkipsUnscheduledSamples(t *testing.T) {
	h := newHarness(t)
	path := h.input(t, []string{"1", "1", "1"}, []string{"2", "2", "2"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary, err := h.runner.Run(ctx, path)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if summary == nil || summary.Skipped != 2 || summary.Processed != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if calls := h.fetcher.Calls(); len(calls) != 0 {
		t.Fatalf("expected no fetches, got %v", calls)
	}
}

func TestRunUnionAreaMode(t *testing.T) {
	h := newHarness(t, testsupport.WithAreaMode(config.AreaModeUnion))
	// Two identical 30x30 boxes: sum would report 1800 (Pass), union 900 (Fail).
	h.oracle.Detections["1"] = testsupport.Boxes(0.8, [4]float64{0, 0, 30, 30}, [4]float64{0, 0, 30, 30})
	path := h.input(t, []string{"1", "1", "1"})

	if _, err := h.runner.Run(context.Background(), path); err != nil {
		t.Fatalf("Run: %v", err)
	}
	records := testsupport.ReadCSV(t, h.layout().MetricsPath())
	if diff := cmp.Diff([]string{"1", "2", "900.0", "Fail", "Medium"}, records[1]); diff != "" {
		t.Fatalf("union metrics mismatch (-want +got):\n%s", diff)
	}
}

func TestNewRunnerValidatesOptions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cases := []pipeline.Options{
		{},
		{Config: cfg},
		{Config: cfg, NewFetcher: func(string) (pipeline.ImageFetcher, error) { return nil, fmt.Errorf("unused") }},
	}
	for i, opts := range cases {
		if _, err := pipeline.NewRunner(opts); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestRunRejectsSampleIDsWithPathSeparators(t *testing.T) {
	h := newHarness(t)
	h.oracle.Detections["sub/7"] = highCoverage
	h.oracle.Detections["99"] = highCoverage
	path := h.input(t,
		[]string{"sub/7", "1", "1"},
		[]string{"99", "2", "2"},
	)

	summary, err := h.runner.Run(context.Background(), path)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Processed != 1 || summary.Failed != 1 || summary.FailuresByStage[pipeline.StageValidate] != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if diff := cmp.Diff([]string{"99"}, h.fetcher.Calls()); diff != "" {
		t.Fatalf("fetch calls mismatch (-want +got):\n%s", diff)
	}

	layout := h.layout()
	for _, dir := range []string{layout.Fetched, layout.Overlays, layout.Manifests, layout.Certificates} {
		err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() && p != dir {
				t.Errorf("unexpected nested directory %s", p)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("walk %s: %v", dir, err)
		}
	}
}

func TestRunInterruptedInFlightSampleIsSkipped(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.fetcher.Hook = func(ctx context.Context, _, _ float64, id string) error {
		if id != "1" {
			return nil
		}
		cancel()
		return services.Wrap(services.ErrFetch, "fetch", "request", id, ctx.Err())
	}
	path := h.input(t, []string{"1", "1", "1"}, []string{"2", "2", "2"}, []string{"3", "3", "3"})

	summary, err := h.runner.Run(ctx, path)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if summary == nil || summary.Skipped != 3 || summary.Failed != 0 || summary.Processed != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	samples, err := h.ledger.Samples(context.Background(), summary.RunID)
	if err != nil {
		t.Fatalf("ledger samples: %v", err)
	}
	for _, s := range samples {
		if s.Outcome != ledger.OutcomeSkipped {
			t.Fatalf("sample %s recorded as %s, want skipped", s.SampleID, s.Outcome)
		}
	}
}

func TestRunDuplicateIDsResolveInInputOrder(t *testing.T) {
	h := newHarness(t, testsupport.WithWorkers(2))
	h.oracle.Detections["5"] = highCoverage
	layout := h.layout()
	// The first row holds its fetch until the second row's manifest shows up
	// or a short deadline passes, so it always completes last.
	h.fetcher.Hook = func(_ context.Context, lat, _ float64, _ string) error {
		if lat != 1 {
			return nil
		}
		deadline := time.Now().Add(300 * time.Millisecond)
		for time.Now().Before(deadline) && !exists(layout.ManifestPath("5")) {
			time.Sleep(10 * time.Millisecond)
		}
		return nil
	}
	path := h.input(t, []string{"5", "1", "1"}, []string{"5", "2", "2"})

	summary, err := h.runner.Run(context.Background(), path)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Processed != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	data, err := os.ReadFile(layout.ManifestPath("5"))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var manifest artifacts.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if manifest.Lat != 2 {
		t.Fatalf("manifest lat = %v, want the later row's 2", manifest.Lat)
	}
}

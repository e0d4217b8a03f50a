package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"runtime/debug"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"solarverify/internal/artifacts"
	"solarverify/internal/detection"
	"solarverify/internal/input"
	"solarverify/internal/logging"
	"solarverify/internal/metrics"
	"solarverify/internal/services"
)

// Stage names used in logs, failures, and the ledger.
const (
	StageValidate = "validate"
	StageFetch    = "fetch"
	StageDecode   = "decode"
	StageDetect   = "detect"
	StageDerive   = "derive"
	StageWrite    = "write"
)

type processor struct {
	fetcher  ImageFetcher
	detector Detector
	writer   *artifacts.Writer
	mode     metrics.AreaMode
	source   string
	logger   *slog.Logger
}

// sampleOutcome carries one sample from its worker to the ordered committer.
type sampleOutcome struct {
	seq     int
	sample  input.Sample
	stage   string
	err     error
	summary metrics.Summary
	record  artifacts.MetricsRecord

	// overlay and manifest are written by the committer so that duplicate
	// ids resolve in input order.
	overlay  image.Image
	manifest artifacts.Manifest
}

func (o *sampleOutcome) fail(stage string, err error) {
	o.stage = stage
	o.err = err
}

// processAll schedules samples on a bounded pool and commits their outcomes in
// input order. Cancelling ctx stops scheduling; samples never scheduled are
// counted as skipped.
func (r *Runner) processAll(ctx context.Context, proc *processor, samples []input.Sample, summary *Summary, rec *runRecorder) error {
	outcomes := make([]sampleOutcome, len(samples))
	ready := make([]chan struct{}, len(samples))
	for i := range ready {
		ready[i] = make(chan struct{})
	}

	committed := make(chan struct{})
	go func() {
		defer close(committed)
		for i := range samples {
			<-ready[i]
			proc.commit(ctx, &outcomes[i], summary, rec)
		}
	}()

	var group errgroup.Group
	group.SetLimit(max(1, r.cfg.Pipeline.Workers))

	scheduled := 0
	for i, sample := range samples {
		if ctx.Err() != nil {
			break
		}
		outcomes[i] = sampleOutcome{seq: i + 1, sample: sample}
		group.Go(func() error {
			defer close(ready[i])
			proc.process(ctx, &outcomes[i])
			return nil
		})
		scheduled++
	}
	_ = group.Wait()

	for i := scheduled; i < len(samples); i++ {
		outcomes[i] = sampleOutcome{seq: i + 1, sample: samples[i], stage: "scheduling", err: errSkipped}
		close(ready[i])
	}
	<-committed

	if err := ctx.Err(); err != nil {
		proc.logger.Warn("run interrupted",
			logging.String(logging.FieldEventType, "run_interrupted"),
			logging.Int("skipped", summary.Skipped),
			logging.String(logging.FieldImpact, "remaining samples were not processed"),
		)
		return fmt.Errorf("run interrupted: %w", err)
	}
	return nil
}

var errSkipped = errors.New("sample skipped")

// process runs fetch through derive for one sample. Every error and panic
// stays inside the outcome. A stage that fails because the run was
// interrupted leaves the sample skipped rather than failed.
func (p *processor) process(ctx context.Context, out *sampleOutcome) {
	sample := out.sample
	if ctx.Err() != nil {
		out.fail("scheduling", errSkipped)
		return
	}
	ctx = services.WithSampleID(ctx, sample.ID)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	stage := StageValidate
	fail := func(err error) {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: interrupted during %s: %w", errSkipped, stage, err)
		}
		out.fail(stage, err)
	}

	defer func() {
		if rec := recover(); rec != nil {
			out.fail(stage, fmt.Errorf("panic during %s: %v", stage, rec))
			logging.WithContext(ctx, p.logger).Error("sample panicked",
				logging.String(logging.FieldStage, stage),
				logging.Any("panic", rec),
				logging.String("stack", string(debug.Stack())),
			)
		}
	}()

	if sample.Err != nil {
		out.fail(stage, sample.Err)
		return
	}

	stage = StageFetch
	path, err := p.fetcher.Fetch(services.WithStage(ctx, stage), sample.Lat, sample.Lon, sample.ID)
	if err != nil {
		fail(err)
		return
	}

	stage = StageDecode
	img, err := detection.DecodeFile(path)
	if err != nil {
		fail(err)
		return
	}
	logging.WithContext(ctx, p.logger).Debug("image decoded", logging.String("path", path))

	stage = StageDetect
	result, overlay, err := p.detector.Detect(services.WithStage(ctx, stage), img)
	if err != nil {
		fail(err)
		return
	}

	stage = StageDerive
	summary := metrics.Derive(result, p.mode)
	out.summary = summary
	out.record = artifacts.NewMetricsRecord(sample.ID, summary)
	logging.WithContext(ctx, p.logger).Info("sample processed",
		logging.Int("panel_count", summary.PanelCount),
		logging.Float64("area", metrics.Round2(summary.Area)),
		logging.String("qc_flag", string(summary.QC)),
		logging.String("solar_health_score", string(summary.Health)),
	)
	out.overlay = overlay
	out.manifest = artifacts.BuildManifest(sample.ID, sample.Lat, sample.Lon, result, summary, p.source, p.writer.Now())
}

// commit writes the overlay, manifest, metrics row, and certificate for a
// processed sample, then records the outcome. It runs on a single goroutine
// in input order.
func (p *processor) commit(ctx context.Context, out *sampleOutcome, summary *Summary, rec *runRecorder) {
	ctx = services.WithSampleID(ctx, out.sample.ID)
	logger := logging.WithContext(ctx, p.logger)
	certified := false

	if out.err == nil {
		if err := p.writeArtifacts(out); err != nil {
			out.fail(StageWrite, err)
		}
	}
	if out.err == nil && out.summary.Eligible {
		_, err := p.writer.WriteCertificate(out.record)
		switch {
		case err == nil:
			certified = true
		case errors.Is(err, services.ErrTemplateMissing):
			logging.WarnWithContext(logger, "certificate template not found", "template_missing",
				logging.String("template", p.writer.Layout().Template),
				logging.String(logging.FieldErrorHint, "create the certificate template to issue certificates"),
				logging.String(logging.FieldImpact, "certificate skipped; manifest and metrics are unaffected"),
			)
		default:
			out.fail(StageWrite, err)
		}
	}

	if out.err != nil && !errors.Is(out.err, errSkipped) {
		logging.ErrorWithContext(logger, "sample failed", "sample_failed",
			logging.String(logging.FieldStage, out.stage),
			logging.String("failure_kind", services.FailureKind(out.err)),
			logging.Float64("lat", out.sample.Lat),
			logging.Float64("lon", out.sample.Lon),
			logging.Error(out.err),
		)
	}
	summary.add(out, certified)
	rec.sample(ctx, out, certified)
	out.overlay = nil
}

func (p *processor) writeArtifacts(out *sampleOutcome) error {
	if _, err := p.writer.WriteOverlay(out.sample.ID, out.overlay); err != nil {
		return err
	}
	if _, err := p.writer.WriteManifest(out.manifest); err != nil {
		return err
	}
	return p.writer.AppendMetrics(out.record)
}

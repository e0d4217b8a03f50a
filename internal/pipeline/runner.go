package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"solarverify/internal/artifacts"
	"solarverify/internal/config"
	"solarverify/internal/detection"
	"solarverify/internal/input"
	"solarverify/internal/ledger"
	"solarverify/internal/logging"
	"solarverify/internal/metrics"
	"solarverify/internal/preflight"
	"solarverify/internal/services"
)

// ImageFetcher retrieves the raster image for one sample and returns its path.
type ImageFetcher interface {
	Fetch(ctx context.Context, lat, lon float64, sampleID string) (string, error)
}

// FetcherFactory builds a fetcher that stores images in dir. The directory
// depends on the run layout, so fetchers are created per run.
type FetcherFactory func(dir string) (ImageFetcher, error)

// Detector runs detection over a decoded image and returns an overlay.
type Detector interface {
	Detect(ctx context.Context, img image.Image) (detection.Result, image.Image, error)
}

// Options wires a Runner's collaborators. Ledger and Health are optional.
type Options struct {
	Config     *config.Config
	Logger     *slog.Logger
	NewFetcher FetcherFactory
	Detector   Detector
	Ledger     *ledger.Store
	Health     preflight.HealthChecker
	Clock      func() time.Time
}

// Runner executes verification runs.
type Runner struct {
	cfg        *config.Config
	logger     *slog.Logger
	newFetcher FetcherFactory
	detector   Detector
	ledger     *ledger.Store
	health     preflight.HealthChecker
	clock      func() time.Time
}

// NewRunner validates opts and constructs a Runner.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Config == nil {
		return nil, errors.New("pipeline config required")
	}
	if opts.NewFetcher == nil {
		return nil, errors.New("image fetcher required")
	}
	if opts.Detector == nil {
		return nil, errors.New("detector required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Runner{
		cfg:        opts.Config,
		logger:     logging.NewComponentLogger(opts.Logger, "pipeline"),
		newFetcher: opts.NewFetcher,
		detector:   opts.Detector,
		ledger:     opts.Ledger,
		health:     opts.Health,
		clock:      clock,
	}, nil
}

// Run processes the input table at inputPath. The run id is taken from ctx
// (services.WithRunID) or generated. A non-nil Summary is returned whenever
// sample processing started, including when ctx is cancelled mid-run.
func (r *Runner) Run(ctx context.Context, inputPath string) (*Summary, error) {
	runID, ok := services.RunIDFromContext(ctx)
	if !ok {
		runID = uuid.NewString()
		ctx = services.WithRunID(ctx, runID)
	}
	logger := r.logger.With(logging.String(logging.FieldRunID, runID))
	started := r.clock()

	if err := r.cfg.EnsureDirectories(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "lock", "ensure directories", "", err)
	}
	lock := flock.New(r.cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "lock", "acquire", r.cfg.LockPath(), err)
	}
	if !locked {
		return nil, services.Wrap(services.ErrRunInProgress, "lock", "acquire",
			fmt.Sprintf("another run holds %s", r.cfg.LockPath()), nil)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release run lock", logging.Error(err))
		}
	}()

	if err := artifacts.ValidateTemplate(r.cfg.Paths.CertificateTemplate); err != nil {
		return nil, err
	}

	var layout artifacts.Layout
	if r.cfg.RunScoped() {
		layout = artifacts.RunScopedLayout(r.cfg.Paths.OutputRoot, runID, r.cfg.Paths.CertificateTemplate)
	} else {
		layout = artifacts.SharedLayout(r.cfg.Paths.OutputRoot, r.cfg.Paths.CertificateTemplate)
	}

	rec := r.startLedger(ctx, logger, ledger.Run{
		ID:         runID,
		InputPath:  inputPath,
		OutputRoot: layout.Root,
		Layout:     r.cfg.Output.Layout,
		AreaMode:   r.cfg.Metrics.AreaMode,
		Workers:    r.cfg.Pipeline.Workers,
		StartedAt:  started,
	})

	summary, err := r.execute(ctx, logger, layout, inputPath, rec)
	if summary != nil {
		summary.RunID = runID
		summary.StartedAt = started
		summary.Duration = r.clock().Sub(started)
	}
	rec.finish(ctx, summary, err)
	if err != nil {
		return summary, err
	}

	logger.Info("run complete",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Int("total", summary.Total),
		logging.Int("processed", summary.Processed),
		logging.Int("failed", summary.Failed),
		logging.Int("certified", summary.Certified),
		logging.Duration("duration", summary.Duration),
	)
	return summary, nil
}

func (r *Runner) execute(ctx context.Context, logger *slog.Logger, layout artifacts.Layout, inputPath string, rec *runRecorder) (*Summary, error) {
	if err := layout.Prepare(logger); err != nil {
		return nil, err
	}

	batch, err := input.Load(inputPath)
	if err != nil {
		logging.ErrorWithContext(logger, "input validation failed", "input_invalid",
			logging.String("input", inputPath),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "input must be .csv or .xlsx with sample_id, lat, lon columns"),
		)
		return nil, err
	}
	if err := layout.WriteValidIDs(batch.ValidIDs()); err != nil {
		return nil, err
	}
	logger.Info("input loaded",
		logging.String("input", inputPath),
		logging.Int("samples", len(batch.Samples)),
	)

	if r.cfg.Oracle.HealthCheck && r.health != nil {
		if result := preflight.CheckOracle(ctx, r.health); !result.Passed {
			logging.WarnWithContext(logger, "detection oracle health check failed", "oracle_unhealthy",
				logging.String("detail", result.Detail),
				logging.String(logging.FieldErrorHint, "start the detection service or check oracle.url"),
				logging.String(logging.FieldImpact, "samples will fail at the detect stage"),
			)
		}
	}

	fetcher, err := r.newFetcher(layout.Fetched)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "fetch", "build client", "", err)
	}
	writer := artifacts.NewWriter(layout, logger)
	writer.SetClock(r.clock)

	proc := &processor{
		fetcher:  fetcher,
		detector: r.detector,
		writer:   writer,
		mode:     metrics.AreaMode(r.cfg.Metrics.AreaMode),
		source:   r.cfg.ImageService.SourceName,
		logger:   logger,
	}
	summary := newSummary(layout)
	err = r.processAll(ctx, proc, batch.Samples, summary, rec)
	return summary, err
}

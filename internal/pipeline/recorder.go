package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"solarverify/internal/ledger"
	"solarverify/internal/logging"
	"solarverify/internal/services"
)

// runRecorder mirrors run progress into the ledger. Ledger failures are logged
// and never affect the run. A nil recorder or store is a no-op.
type runRecorder struct {
	store  *ledger.Store
	runID  string
	logger *slog.Logger
}

func (r *Runner) startLedger(ctx context.Context, logger *slog.Logger, run ledger.Run) *runRecorder {
	if r.ledger == nil {
		return nil
	}
	if err := r.ledger.StartRun(context.WithoutCancel(ctx), run); err != nil {
		logging.WarnWithContext(logger, "failed to record run start", "ledger_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "run will be missing from run history"),
			logging.String(logging.FieldErrorHint, "check the state directory and ledger.db permissions"),
		)
		return nil
	}
	return &runRecorder{store: r.ledger, runID: run.ID, logger: logger}
}

func (rec *runRecorder) sample(ctx context.Context, out *sampleOutcome, certified bool) {
	if rec == nil || rec.store == nil {
		return
	}
	entry := ledger.Sample{
		RunID:     rec.runID,
		Seq:       out.seq,
		SampleID:  out.sample.ID,
		Lat:       out.sample.Lat,
		Lon:       out.sample.Lon,
		Outcome:   ledger.OutcomeProcessed,
		Certified: certified,
	}
	if out.err != nil {
		entry.Outcome = ledger.OutcomeFailed
		entry.FailureStage = out.stage
		entry.FailureKind = services.FailureKind(out.err)
		if errors.Is(out.err, errSkipped) {
			entry.Outcome = ledger.OutcomeSkipped
			entry.FailureKind = ""
		}
		entry.ErrorMessage = out.err.Error()
	} else {
		entry.PanelCount = out.summary.PanelCount
		entry.TotalArea = out.summary.Area
		entry.QCFlag = string(out.summary.QC)
		entry.Health = string(out.summary.Health)
	}
	if err := rec.store.RecordSample(context.WithoutCancel(ctx), entry); err != nil {
		rec.logger.Warn("failed to record sample outcome",
			logging.String(logging.FieldSampleID, out.sample.ID),
			logging.Error(err),
		)
	}
}

func (rec *runRecorder) finish(ctx context.Context, summary *Summary, runErr error) {
	if rec == nil || rec.store == nil {
		return
	}
	var totals ledger.Totals
	if summary != nil {
		totals = ledger.Totals{
			Total:     summary.Total,
			Processed: summary.Processed,
			Failed:    summary.Failed,
			Certified: summary.Certified,
		}
	}
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	if err := rec.store.FinishRun(context.WithoutCancel(ctx), rec.runID, totals, msg); err != nil {
		rec.logger.Warn("failed to record run completion", logging.Error(err))
	}
}

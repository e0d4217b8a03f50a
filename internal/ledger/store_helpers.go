package ledger

import (
	"database/sql"
	"strings"
	"time"
)

const runColumns = "id, status, input_path, output_root, layout, area_mode, workers, total, processed, failed, certified, error_message, started_at, finished_at"

const sampleColumns = "run_id, seq, sample_id, lat, lon, outcome, failure_stage, failure_kind, error_message, panel_count, total_area, qc_flag, health, certified, recorded_at"

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run         Run
		status      string
		errorMsg    sql.NullString
		startedRaw  string
		finishedRaw sql.NullString
	)
	if err := scanner.Scan(
		&run.ID,
		&status,
		&run.InputPath,
		&run.OutputRoot,
		&run.Layout,
		&run.AreaMode,
		&run.Workers,
		&run.Total,
		&run.Processed,
		&run.Failed,
		&run.Certified,
		&errorMsg,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}
	run.Status = RunStatus(status)
	run.ErrorMessage = errorMsg.String
	run.StartedAt = parseTime(startedRaw)
	if finishedRaw.Valid {
		run.FinishedAt = parseTime(finishedRaw.String)
	}
	return &run, nil
}

func scanSample(scanner interface{ Scan(dest ...any) error }) (*Sample, error) {
	var (
		sample       Sample
		lat          sql.NullFloat64
		lon          sql.NullFloat64
		outcome      string
		failureStage sql.NullString
		failureKind  sql.NullString
		errorMsg     sql.NullString
		qcFlag       sql.NullString
		health       sql.NullString
		certified    int
		recordedRaw  string
	)
	if err := scanner.Scan(
		&sample.RunID,
		&sample.Seq,
		&sample.SampleID,
		&lat,
		&lon,
		&outcome,
		&failureStage,
		&failureKind,
		&errorMsg,
		&sample.PanelCount,
		&sample.TotalArea,
		&qcFlag,
		&health,
		&certified,
		&recordedRaw,
	); err != nil {
		return nil, err
	}
	sample.Lat = lat.Float64
	sample.Lon = lon.Float64
	sample.Outcome = Outcome(outcome)
	sample.FailureStage = failureStage.String
	sample.FailureKind = failureKind.String
	sample.ErrorMessage = errorMsg.String
	sample.QCFlag = qcFlag.String
	sample.Health = health.String
	sample.Certified = certified != 0
	sample.RecordedAt = parseTime(recordedRaw)
	return &sample, nil
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(value string) sql.NullString {
	if strings.TrimSpace(value) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}

package artifacts

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"solarverify/internal/fileutil"
	"solarverify/internal/logging"
	"solarverify/internal/services"
)

// OverlayQuality is the JPEG quality used for overlay images.
const OverlayQuality = 90

// Writer persists per-sample artifacts into a Layout. Each write is
// independent; a failure in one does not roll back the others.
type Writer struct {
	layout Layout
	now    func() time.Time
	logger *slog.Logger

	mu            sync.Mutex
	headerWritten bool
}

// NewWriter constructs a writer for layout.
func NewWriter(layout Layout, logger *slog.Logger) *Writer {
	return &Writer{
		layout: layout,
		now:    time.Now,
		logger: logging.NewComponentLogger(logger, "artifacts"),
	}
}

// SetClock overrides the time source used for dates and timestamps.
func (w *Writer) SetClock(now func() time.Time) {
	if now != nil {
		w.now = now
	}
}

// Now returns the writer's current time.
func (w *Writer) Now() time.Time {
	return w.now()
}

// Layout returns the writer's layout.
func (w *Writer) Layout() Layout {
	return w.layout
}

// WriteOverlay stores img as a JPEG overlay for id.
func (w *Writer) WriteOverlay(id string, img image.Image) (string, error) {
	path := w.layout.OverlayPath(id)
	err := fileutil.WriteAtomic(path, 0o644, func(out io.Writer) error {
		return jpeg.Encode(out, img, &jpeg.Options{Quality: OverlayQuality})
	})
	if err != nil {
		return "", services.Wrap(services.ErrWrite, "write", "overlay", id, err)
	}
	return path, nil
}

// WriteManifest stores the manifest as 2-space indented JSON.
func (w *Writer) WriteManifest(m Manifest) (string, error) {
	if m.BBoxOrMask == nil {
		m.BBoxOrMask = [][4]int{}
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", services.Wrap(services.ErrWrite, "write", "encode manifest", m.SampleID, err)
	}
	path := w.layout.ManifestPath(m.SampleID)
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", services.Wrap(services.ErrWrite, "write", "manifest", m.SampleID, err)
	}
	return path, nil
}

// AppendMetrics adds a row to the metrics table. The first row of a run
// truncates the table and writes the header.
func (w *Writer) AppendMetrics(record MetricsRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if !w.headerWritten {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	if err := os.MkdirAll(w.layout.Metrics, 0o755); err != nil {
		return services.Wrap(services.ErrWrite, "write", "metrics dir", w.layout.Metrics, err)
	}
	file, err := os.OpenFile(w.layout.MetricsPath(), flags, 0o644)
	if err != nil {
		return services.Wrap(services.ErrWrite, "write", "open metrics", record.SampleID, err)
	}

	out := csv.NewWriter(file)
	if !w.headerWritten {
		if err := out.Write(MetricsHeader); err != nil {
			file.Close()
			return services.Wrap(services.ErrWrite, "write", "metrics header", record.SampleID, err)
		}
	}
	if err := out.Write(record.Fields()); err != nil {
		file.Close()
		return services.Wrap(services.ErrWrite, "write", "metrics row", record.SampleID, err)
	}
	out.Flush()
	if err := errors.Join(out.Error(), file.Close()); err != nil {
		return services.Wrap(services.ErrWrite, "write", "flush metrics", record.SampleID, err)
	}
	w.headerWritten = true
	return nil
}

// WriteCertificate renders the certificate template for an eligible sample.
// A missing template returns ErrTemplateMissing, which callers treat as a
// warning.
func (w *Writer) WriteCertificate(record MetricsRecord) (string, error) {
	tmpl, err := LoadTemplate(w.layout.Template)
	if err != nil {
		return "", err
	}
	text := tmpl.Render(CertificateValues(record, w.now()))
	path := w.layout.CertificatePath(record.SampleID)
	if err := fileutil.WriteFileAtomic(path, []byte(text), 0o644); err != nil {
		return "", services.Wrap(services.ErrWrite, "write", "certificate", record.SampleID, err)
	}
	w.logger.Debug("certificate issued", logging.String(logging.FieldSampleID, record.SampleID), logging.String("path", path))
	return path, nil
}

// ValidateTemplate checks the template at run start. A missing template is
// not an error here; it only suppresses certificates later.
func ValidateTemplate(path string) error {
	_, err := LoadTemplate(path)
	if err == nil || errors.Is(err, services.ErrTemplateMissing) {
		return nil
	}
	return fmt.Errorf("validate certificate template: %w", err)
}

package artifacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"solarverify/internal/fileutil"
	"solarverify/internal/logging"
	"solarverify/internal/services"
)

const (
	// MetricsFileName is the metrics table inside the metrics directory.
	MetricsFileName = "pipeline_metrics.csv"
	// ValidIDsFileName lists the normalized ids of the current run.
	ValidIDsFileName = "valid_ids.json"
	// CertificatePattern matches issued certificates; the template never matches.
	CertificatePattern = "*_certificate.txt"
	// LatestLink names the symlink to the newest run-scoped directory.
	LatestLink = "latest"
)

// Layout resolves every artifact location for one run.
type Layout struct {
	Root         string
	RunScoped    bool
	RunID        string
	Fetched      string
	Outputs      string
	Overlays     string
	Manifests    string
	Metrics      string
	Certificates string
	Template     string
}

// SharedLayout returns the fixed directory layout that every run resets.
func SharedLayout(root, template string) Layout {
	outputs := filepath.Join(root, "outputs")
	return Layout{
		Root:         root,
		Fetched:      filepath.Join(root, "data", "fetched"),
		Outputs:      outputs,
		Overlays:     filepath.Join(outputs, "overlays"),
		Manifests:    filepath.Join(outputs, "manifests"),
		Metrics:      filepath.Join(outputs, "metrics"),
		Certificates: filepath.Join(root, "certificates"),
		Template:     template,
	}
}

// RunScopedLayout places all artifacts of runID under root/runs/<runID>. The
// certificate template stays shared.
func RunScopedLayout(root, runID, template string) Layout {
	runDir := filepath.Join(root, "runs", runID)
	outputs := filepath.Join(runDir, "outputs")
	return Layout{
		Root:         runDir,
		RunScoped:    true,
		RunID:        runID,
		Fetched:      filepath.Join(runDir, "data", "fetched"),
		Outputs:      outputs,
		Overlays:     filepath.Join(outputs, "overlays"),
		Manifests:    filepath.Join(outputs, "manifests"),
		Metrics:      filepath.Join(outputs, "metrics"),
		Certificates: filepath.Join(runDir, "certificates"),
		Template:     template,
	}
}

// MetricsPath returns the metrics table location.
func (l Layout) MetricsPath() string {
	return filepath.Join(l.Metrics, MetricsFileName)
}

// ValidIDsPath returns the valid id list location.
func (l Layout) ValidIDsPath() string {
	return filepath.Join(l.Outputs, ValidIDsFileName)
}

// OverlayPath returns the overlay location for a sample.
func (l Layout) OverlayPath(id string) string {
	return filepath.Join(l.Overlays, id+".jpg")
}

// ManifestPath returns the manifest location for a sample.
func (l Layout) ManifestPath(id string) string {
	return filepath.Join(l.Manifests, id+".json")
}

// CertificatePath returns the certificate location for a sample.
func (l Layout) CertificatePath(id string) string {
	return filepath.Join(l.Certificates, id+"_certificate.txt")
}

// Prepare readies the layout for a new run. The shared layout wipes the
// fetched, overlay, and manifest directories, removes the previous metrics
// table, and purges issued certificates while keeping the template. A
// run-scoped layout deletes nothing and repoints the latest symlink.
func (l Layout) Prepare(logger *slog.Logger) error {
	logger = logging.NewComponentLogger(logger, "artifacts")
	if !l.RunScoped {
		if err := l.reset(logger); err != nil {
			return err
		}
	}
	for _, dir := range []string{l.Fetched, l.Overlays, l.Manifests, l.Metrics, l.Certificates} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return services.Wrap(services.ErrConfiguration, "reset", "mkdir", dir, err)
		}
	}
	if l.RunScoped {
		if err := l.linkLatest(); err != nil {
			logging.WarnWithContext(logger, "failed to update latest run link", "latest_link_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "runs/latest points at an older run"),
				logging.String(logging.FieldErrorHint, "check filesystem symlink support"),
			)
		}
	}
	return nil
}

func (l Layout) reset(logger *slog.Logger) error {
	for _, dir := range []string{l.Fetched, l.Overlays, l.Manifests} {
		if err := os.RemoveAll(dir); err != nil {
			return services.Wrap(services.ErrConfiguration, "reset", "remove", dir, err)
		}
	}
	if err := os.Remove(l.MetricsPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return services.Wrap(services.ErrConfiguration, "reset", "remove metrics", l.MetricsPath(), err)
	}
	purged, err := fileutil.RemoveMatching(l.Certificates, CertificatePattern)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "reset", "purge certificates", l.Certificates, err)
	}
	logger.Info("outputs reset",
		logging.String("root", l.Root),
		logging.Int("certificates_purged", purged),
	)
	return nil
}

func (l Layout) linkLatest() error {
	link := filepath.Join(filepath.Dir(l.Root), LatestLink)
	tmp := link + ".tmp"
	_ = os.Remove(tmp)
	if err := os.Symlink(l.RunID, tmp); err != nil {
		return err
	}
	return os.Rename(tmp, link)
}

// WriteValidIDs persists the run's normalized sample ids as a JSON array.
func (l Layout) WriteValidIDs(ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode valid ids: %w", err)
	}
	if err := fileutil.WriteFileAtomic(l.ValidIDsPath(), data, 0o644); err != nil {
		return services.Wrap(services.ErrWrite, "load_input", "valid ids", l.ValidIDsPath(), err)
	}
	return nil
}

package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"solarverify/internal/config"
)

// DefaultTemplate is a certificate template using every placeholder.
const DefaultTemplate = "Certificate for {sample_id}\nPanels: {panel_count}\nArea: {total_area}\nQC: {qc_flag}\nHealth: {solar_health_score}\nDate: {date}\n"

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The certificate template is written with DefaultTemplate unless an option
// changes it.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.OutputRoot = filepath.Join(base, "out")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.InputFile = filepath.Join(base, "input.csv")
	cfgVal.Paths.CertificateTemplate = filepath.Join(cfgVal.Paths.OutputRoot, "certificates", "cert_temp.txt")
	cfgVal.ImageService.APIKey = "test"
	cfgVal.Oracle.HealthCheck = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	WriteText(t, cfgVal.Paths.CertificateTemplate, DefaultTemplate)

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithWorkers sets the worker pool size.
func WithWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.Workers = n
	}
}

// WithLayout sets the output layout.
func WithLayout(layout string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Output.Layout = layout
	}
}

// WithAreaMode sets the metrics area mode.
func WithAreaMode(mode string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Metrics.AreaMode = mode
	}
}

// WithTemplate replaces the certificate template contents.
func WithTemplate(text string) ConfigOption {
	return func(b *configBuilder) {
		WriteText(b.t, b.cfg.Paths.CertificateTemplate, text)
	}
}

// WithoutTemplate removes the certificate template.
func WithoutTemplate() ConfigOption {
	return func(b *configBuilder) {
		if err := os.Remove(b.cfg.Paths.CertificateTemplate); err != nil && !os.IsNotExist(err) {
			b.t.Fatalf("remove template: %v", err)
		}
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}

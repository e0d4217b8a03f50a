package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains input, output, and state locations.
type Paths struct {
	InputFile           string `toml:"input_file"`
	OutputRoot          string `toml:"output_root"`
	StateDir            string `toml:"state_dir"`
	LogDir              string `toml:"log_dir"`
	CertificateTemplate string `toml:"certificate_template"`
}

// Output controls how run artifacts are laid out on disk.
type Output struct {
	// Layout is "shared" (fixed directories reset at the start of every run)
	// or "run_scoped" (one directory per run, nothing deleted).
	Layout string `toml:"layout"`
}

// ImageService contains configuration for the static map imagery API.
type ImageService struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Zoom           int    `toml:"zoom"`
	Width          int    `toml:"width"`
	Height         int    `toml:"height"`
	MapType        string `toml:"map_type"`
	SourceName     string `toml:"source_name"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Oracle contains configuration for the remote object-detection service.
type Oracle struct {
	URL            string `toml:"url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	HealthCheck    bool   `toml:"health_check"`
}

// Metrics contains configuration for metric derivation.
type Metrics struct {
	// AreaMode selects "sum" (naive per-box sum) or "union" (overlap-aware).
	AreaMode string `toml:"area_mode"`
}

// Pipeline contains run scheduling settings.
type Pipeline struct {
	Workers int `toml:"workers"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for solarverify.
//
// Configuration sections by subsystem:
//   - Paths: input file, output root, ledger/log state, certificate template
//   - Output: artifact layout (shared vs run-scoped)
//   - ImageService: static map imagery request parameters and credential
//   - Oracle: detection service endpoint
//   - Metrics: area computation mode
//   - Pipeline: worker count
//   - Logging: log format and level
type Config struct {
	Paths        Paths        `toml:"paths"`
	Output       Output       `toml:"output"`
	ImageService ImageService `toml:"image_service"`
	Oracle       Oracle       `toml:"oracle"`
	Metrics      Metrics      `toml:"metrics"`
	Pipeline     Pipeline     `toml:"pipeline"`
	Logging      Logging      `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/solarverify/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("solarverify.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state, log, and output root directories.
// Per-run artifact directories are owned by the artifacts package.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir, c.Paths.OutputRoot} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LedgerPath returns the SQLite run ledger location.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.StateDir, "ledger.db")
}

// LockPath returns the run lock file guarding the output root.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.OutputRoot, ".solarverify.lock")
}

// RunScoped reports whether each run writes into its own namespace.
func (c *Config) RunScoped() bool {
	return c.Output.Layout == LayoutRunScoped
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

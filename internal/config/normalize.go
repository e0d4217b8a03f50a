package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeOutput()
	c.normalizeImageService()
	c.normalizeOracle()
	c.normalizeMetrics()
	c.normalizeLogging()
	if c.Pipeline.Workers <= 0 {
		c.Pipeline.Workers = defaultWorkers
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.OutputRoot) == "" {
		c.Paths.OutputRoot = defaultOutputRoot
	}
	if c.Paths.OutputRoot, err = expandPath(c.Paths.OutputRoot); err != nil {
		return fmt.Errorf("paths.output_root: %w", err)
	}
	if strings.TrimSpace(c.Paths.InputFile) == "" {
		c.Paths.InputFile = defaultInputFile
	}
	if c.Paths.InputFile, err = expandPath(c.Paths.InputFile); err != nil {
		return fmt.Errorf("paths.input_file: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.StateDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}

	// A relative template path lives under the output root, next to the
	// certificates it produces.
	template := strings.TrimSpace(c.Paths.CertificateTemplate)
	if template == "" {
		template = defaultCertificateTemplate
	}
	if !filepath.IsAbs(template) && !strings.HasPrefix(template, "~") {
		template = filepath.Join(c.Paths.OutputRoot, template)
	}
	if c.Paths.CertificateTemplate, err = expandPath(template); err != nil {
		return fmt.Errorf("paths.certificate_template: %w", err)
	}
	return nil
}

func (c *Config) normalizeOutput() {
	c.Output.Layout = strings.ToLower(strings.TrimSpace(c.Output.Layout))
	if c.Output.Layout == "" {
		c.Output.Layout = LayoutShared
	}
}

func (c *Config) normalizeImageService() {
	c.ImageService.APIKey = strings.TrimSpace(c.ImageService.APIKey)
	if c.ImageService.APIKey == "" {
		if value, ok := os.LookupEnv("GOOGLE_MAPS_API_KEY"); ok {
			c.ImageService.APIKey = strings.TrimSpace(value)
		}
	}
	c.ImageService.BaseURL = strings.TrimSpace(c.ImageService.BaseURL)
	if c.ImageService.BaseURL == "" {
		c.ImageService.BaseURL = defaultImageBaseURL
	}
	if c.ImageService.Zoom == 0 {
		c.ImageService.Zoom = defaultImageZoom
	}
	if c.ImageService.Width == 0 {
		c.ImageService.Width = defaultImageSize
	}
	if c.ImageService.Height == 0 {
		c.ImageService.Height = defaultImageSize
	}
	c.ImageService.MapType = strings.ToLower(strings.TrimSpace(c.ImageService.MapType))
	if c.ImageService.MapType == "" {
		c.ImageService.MapType = defaultImageMapType
	}
	c.ImageService.SourceName = strings.TrimSpace(c.ImageService.SourceName)
	if c.ImageService.SourceName == "" {
		c.ImageService.SourceName = defaultImageSourceName
	}
	if c.ImageService.TimeoutSeconds < 0 {
		c.ImageService.TimeoutSeconds = 0
	}
}

func (c *Config) normalizeOracle() {
	c.Oracle.URL = strings.TrimSpace(c.Oracle.URL)
	if value, ok := os.LookupEnv("SOLARVERIFY_ORACLE_URL"); ok && strings.TrimSpace(value) != "" {
		c.Oracle.URL = strings.TrimSpace(value)
	}
	if c.Oracle.URL == "" {
		c.Oracle.URL = defaultOracleURL
	}
	if c.Oracle.TimeoutSeconds < 0 {
		c.Oracle.TimeoutSeconds = 0
	}
}

func (c *Config) normalizeMetrics() {
	c.Metrics.AreaMode = strings.ToLower(strings.TrimSpace(c.Metrics.AreaMode))
	if c.Metrics.AreaMode == "" {
		c.Metrics.AreaMode = AreaModeSum
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateImageService(); err != nil {
		return err
	}
	if err := c.validateOracle(); err != nil {
		return err
	}
	if err := c.validateOutput(); err != nil {
		return err
	}
	if err := c.validateMetrics(); err != nil {
		return err
	}
	if c.Pipeline.Workers < 1 {
		return errors.New("pipeline.workers must be >= 1")
	}
	return nil
}

func (c *Config) validateImageService() error {
	if c.ImageService.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/solarverify/config.toml"
		}
		return fmt.Errorf("image_service.api_key is required. Set GOOGLE_MAPS_API_KEY env var or edit %s (create with 'solarverify config init')", defaultPath)
	}
	if err := validateHTTPURL("image_service.base_url", c.ImageService.BaseURL); err != nil {
		return err
	}
	if c.ImageService.Zoom < 0 || c.ImageService.Zoom > 21 {
		return errors.New("image_service.zoom must be between 0 and 21")
	}
	if err := ensurePositiveMap(map[string]int{
		"image_service.width":  c.ImageService.Width,
		"image_service.height": c.ImageService.Height,
	}); err != nil {
		return err
	}
	if c.ImageService.Width > 640 || c.ImageService.Height > 640 {
		return errors.New("image_service.width and image_service.height must not exceed 640")
	}
	return nil
}

func (c *Config) validateOracle() error {
	return validateHTTPURL("oracle.url", c.Oracle.URL)
}

func (c *Config) validateOutput() error {
	switch c.Output.Layout {
	case LayoutShared, LayoutRunScoped:
		return nil
	default:
		return fmt.Errorf("output.layout must be %q or %q, got %q", LayoutShared, LayoutRunScoped, c.Output.Layout)
	}
}

func (c *Config) validateMetrics() error {
	switch c.Metrics.AreaMode {
	case AreaModeSum, AreaModeUnion:
		return nil
	default:
		return fmt.Errorf("metrics.area_mode must be %q or %q, got %q", AreaModeSum, AreaModeUnion, c.Metrics.AreaMode)
	}
}

func validateHTTPURL(key, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s must be set", key)
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", key, value)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", key)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

package staticmap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"solarverify/internal/fileutil"
	"solarverify/internal/logging"
	"solarverify/internal/services"
)

// maxErrorBody bounds how much of a failed response is logged.
const maxErrorBody = 512

// Params are the fixed request parameters shared by every fetch in a run.
type Params struct {
	BaseURL string
	APIKey  string
	Zoom    int
	Width   int
	Height  int
	MapType string
}

// Client fetches satellite imagery from a static map endpoint.
type Client struct {
	params     Params
	dir        string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets a request timeout. Zero keeps the client default.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout, Transport: c.httpClient.Transport}
		}
	}
}

// WithLogger sets the logging destination.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "staticmap")
	}
}

// New creates a static map client storing images under dir.
func New(params Params, dir string, opts ...Option) (*Client, error) {
	params.BaseURL = strings.TrimSpace(params.BaseURL)
	if params.BaseURL == "" {
		return nil, errors.New("static map base url required")
	}
	params.APIKey = strings.TrimSpace(params.APIKey)
	if params.APIKey == "" {
		return nil, errors.New("static map api key required")
	}
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("image directory required")
	}
	client := &Client{
		params:     params,
		dir:        dir,
		httpClient: &http.Client{},
		logger:     logging.NewComponentLogger(nil, "staticmap"),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// RequestURL builds the static map request for a coordinate.
func (c *Client) RequestURL(lat, lon float64) string {
	values := url.Values{}
	values.Set("center", formatCoord(lat)+","+formatCoord(lon))
	values.Set("zoom", strconv.Itoa(c.params.Zoom))
	values.Set("size", fmt.Sprintf("%dx%d", c.params.Width, c.params.Height))
	values.Set("maptype", c.params.MapType)
	values.Set("key", c.params.APIKey)

	sep := "?"
	if strings.Contains(c.params.BaseURL, "?") {
		sep = "&"
	}
	return c.params.BaseURL + sep + values.Encode()
}

// Fetch issues one GET for the coordinate and stores the body as
// <dir>/<sampleID>.jpg. Any non-200 response or transport error is returned
// as ErrFetch; the caller skips the sample.
func (c *Client) Fetch(ctx context.Context, lat, lon float64, sampleID string) (string, error) {
	logger := logging.WithContext(ctx, c.logger)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.RequestURL(lat, lon), nil)
	if err != nil {
		return "", services.Wrap(services.ErrFetch, "fetch", "build request", sampleID, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logging.ErrorWithContext(logger, "image request failed", "image_fetch_failed",
			logging.Float64("lat", lat),
			logging.Float64("lon", lon),
			logging.Error(redactError(err, c.params.APIKey)),
			logging.String(logging.FieldErrorHint, "check network access to the static map service"),
		)
		return "", services.Wrap(services.ErrFetch, "fetch", "request", sampleID, redactError(err, c.params.APIKey))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		logging.ErrorWithContext(logger, "failed to fetch image", "image_fetch_failed",
			logging.Float64("lat", lat),
			logging.Float64("lon", lon),
			logging.Int("status_code", resp.StatusCode),
			logging.String("response", strings.TrimSpace(string(body))),
			logging.String(logging.FieldErrorHint, "check image_service.api_key and quota"),
		)
		return "", services.Wrap(services.ErrFetch, "fetch", "status", fmt.Sprintf("%s: status %d", sampleID, resp.StatusCode), nil)
	}

	path := filepath.Join(c.dir, sampleID+".jpg")
	err = fileutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		_, err := io.Copy(w, resp.Body)
		return err
	})
	if err != nil {
		return "", services.Wrap(services.ErrFetch, "fetch", "store", sampleID, err)
	}
	logger.Debug("image fetched", logging.String("path", path))
	return path, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// redactError strips the API key from transport errors, which embed the URL.
func redactError(err error, key string) error {
	if err == nil || key == "" {
		return err
	}
	msg := err.Error()
	if !strings.Contains(msg, key) {
		return err
	}
	return errors.New(strings.ReplaceAll(msg, key, "REDACTED"))
}

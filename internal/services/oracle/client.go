package oracle

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	_ "image/jpeg"

	"solarverify/internal/detection"
	"solarverify/internal/logging"
	"solarverify/internal/services"
)

const maxErrorBody = 512

// Client calls a remote detection service over multipart HTTP.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ detection.Oracle = (*Client)(nil)

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

// WithTimeout sets the per-request timeout.
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
		c.logger = logging.NewComponentLogger(logger, "oracle")
	}
}

// New constructs a detection client for the given prediction endpoint.
func New(endpoint string, opts ...Option) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("oracle url required")
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("parse oracle url: %w", err)
	}
	client := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{},
		logger:     logging.NewComponentLogger(nil, "oracle"),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type predictResponse struct {
	Detections     []detection.RawDetection `json:"detections"`
	AnnotatedImage string                   `json:"annotated_image,omitempty"`
}

// Predict uploads img as PNG in the "file" field with the confidence floor in
// "conf" and decodes the returned detections.
func (c *Client) Predict(ctx context.Context, img image.Image, confidence float64) (*detection.Prediction, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "image.png")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if err := png.Encode(part, img); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	if err := writer.WriteField("conf", strconv.FormatFloat(confidence, 'f', -1, 64)); err != nil {
		return nil, fmt.Errorf("write conf field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		req.Header.Set("X-Request-ID", rid)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrDetect, "detect", "request", "oracle unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		logging.WithContext(ctx, c.logger).Debug("oracle rejected request",
			logging.Int("status_code", resp.StatusCode),
			logging.String("response", strings.TrimSpace(string(snippet))),
		)
		return nil, services.Wrap(services.ErrDetect, "detect", "status", fmt.Sprintf("inference failed with status: %d", resp.StatusCode), nil)
	}

	var payload predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, services.Wrap(services.ErrDetect, "detect", "decode response", "", err)
	}

	prediction := &detection.Prediction{Detections: payload.Detections}
	if payload.AnnotatedImage != "" {
		annotated, err := decodeAnnotated(payload.AnnotatedImage)
		if err != nil {
			logging.WithContext(ctx, c.logger).Debug("ignoring undecodable annotated image", logging.Error(err))
		} else {
			prediction.Annotated = annotated
		}
	}
	return prediction, nil
}

// Health probes the service's /health endpoint, a sibling of the predict path.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.HealthURL(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ml service unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ml service unhealthy: %d", resp.StatusCode)
	}
	return nil
}

// HealthURL returns the health endpoint derived from the predict endpoint.
func (c *Client) HealthURL() string {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return strings.TrimRight(c.endpoint, "/") + "/health"
	}
	dir := path.Dir(strings.TrimRight(u.Path, "/"))
	if dir == "." {
		dir = "/"
	}
	u.Path = path.Join(dir, "health")
	u.RawQuery = ""
	return u.String()
}

func decodeAnnotated(encoded string) (image.Image, error) {
	if idx := strings.Index(encoded, ","); idx >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[idx+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

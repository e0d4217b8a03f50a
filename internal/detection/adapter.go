package detection

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"math"

	"solarverify/internal/logging"
	"solarverify/internal/services"
)

// Adapter invokes the oracle at the fixed confidence floor and normalizes its output.
type Adapter struct {
	oracle Oracle
	logger *slog.Logger
}

// NewAdapter constructs a detection adapter around the supplied oracle.
func NewAdapter(oracle Oracle, logger *slog.Logger) *Adapter {
	a := &Adapter{oracle: oracle}
	a.SetLogger(logger)
	return a
}

// SetLogger updates the adapter's logging destination.
func (a *Adapter) SetLogger(logger *slog.Logger) {
	a.logger = logging.NewComponentLogger(logger, "detection")
}

// Detect runs the oracle and returns the normalized result along with an
// overlay image. The overlay is the oracle's annotated rendering when it
// supplies one; otherwise boxes are drawn locally.
func (a *Adapter) Detect(ctx context.Context, img image.Image) (Result, image.Image, error) {
	if a == nil || a.oracle == nil {
		return Result{}, nil, services.Wrap(services.ErrConfiguration, "detect", "oracle", "detection oracle unavailable", nil)
	}
	if img == nil {
		return Result{}, nil, services.Wrap(services.ErrDetect, "detect", "input", "nil image", nil)
	}

	prediction, err := a.oracle.Predict(ctx, img, ConfidenceFloor)
	if err != nil {
		if errors.Is(err, services.ErrDetect) || errors.Is(err, context.Canceled) {
			return Result{}, nil, err
		}
		return Result{}, nil, services.Wrap(services.ErrDetect, "detect", "predict", "", err)
	}
	if prediction == nil {
		prediction = &Prediction{}
	}

	result := Normalize(prediction.Detections)
	if result.PanelCount == 0 {
		logging.WithContext(ctx, a.logger).Info("no panels detected")
	}

	overlay := prediction.Annotated
	if overlay == nil {
		overlay = RenderOverlay(img, result)
	}
	return result, overlay, nil
}

// Normalize rounds oracle coordinates to the nearest integer pixel (half to
// even) and keeps confidences in oracle order.
func Normalize(detections []RawDetection) Result {
	result := Result{
		Boxes:       make([]BoundingBox, 0, len(detections)),
		Confidences: make([]float64, 0, len(detections)),
	}
	for _, det := range detections {
		result.Boxes = append(result.Boxes, BoundingBox{
			X1: roundPixel(det.X1),
			Y1: roundPixel(det.Y1),
			X2: roundPixel(det.X2),
			Y2: roundPixel(det.Y2),
		})
		result.Confidences = append(result.Confidences, det.Confidence)
	}
	result.PanelCount = len(result.Boxes)
	return result
}

func roundPixel(v float64) int {
	return int(math.RoundToEven(v))
}

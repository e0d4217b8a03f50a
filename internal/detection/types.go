package detection

import (
	"context"
	"image"
)

// ConfidenceFloor is the fixed oracle confidence threshold. It is kept low so
// the detector favours recall; QC thresholds downstream filter weak evidence.
const ConfidenceFloor = 0.1

// BoundingBox is an axis-aligned detection in integer pixel coordinates.
// x2 > x1 and y2 > y1 are assumed, not validated.
type BoundingBox struct {
	X1 int
	Y1 int
	X2 int
	Y2 int
}

// Area returns the box area in square pixels.
func (b BoundingBox) Area() float64 {
	return float64(b.X2-b.X1) * float64(b.Y2-b.Y1)
}

// Coords returns the box as [x1, y1, x2, y2].
func (b BoundingBox) Coords() [4]int {
	return [4]int{b.X1, b.Y1, b.X2, b.Y2}
}

// Result is the normalized oracle output for one image.
type Result struct {
	Boxes       []BoundingBox
	Confidences []float64
	PanelCount  int
}

// RawDetection is one oracle detection before coordinate rounding.
type RawDetection struct {
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
	Confidence float64 `json:"confidence"`
	Class      string  `json:"class,omitempty"`
}

// Prediction is the raw oracle response. Annotated may be nil when the oracle
// does not return a rendered image.
type Prediction struct {
	Detections []RawDetection
	Annotated  image.Image
}

// Oracle runs object detection over a decoded image.
type Oracle interface {
	Predict(ctx context.Context, img image.Image, confidence float64) (*Prediction, error)
}

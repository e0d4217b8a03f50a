package testsupport

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"solarverify/internal/detection"
	"solarverify/internal/services"
)

// StubFetcher writes a small PNG for every sample unless the id is listed in
// Fail or Corrupt.
type StubFetcher struct {
	Dir string
	// Fail lists ids that return ErrFetch.
	Fail map[string]bool
	// Corrupt lists ids whose stored image is not decodable.
	Corrupt map[string]bool
	// Hook, when set, runs before anything else; a non-nil error is returned
	// as the fetch result.
	Hook func(ctx context.Context, lat, lon float64, sampleID string) error

	mu    sync.Mutex
	calls []string
}

// Fetch implements the pipeline image fetcher.
func (f *StubFetcher) Fetch(ctx context.Context, lat, lon float64, sampleID string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, sampleID)
	f.mu.Unlock()

	if f.Hook != nil {
		if err := f.Hook(ctx, lat, lon, sampleID); err != nil {
			return "", err
		}
	}

	if f.Fail[sampleID] {
		return "", services.Wrap(services.ErrFetch, "fetch", "status", fmt.Sprintf("%s: status 403", sampleID), nil)
	}
	path := filepath.Join(f.Dir, sampleID+".jpg")
	if f.Corrupt[sampleID] {
		if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
			return "", err
		}
		return path, nil
	}
	file, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	if err := encodePNG(file, SolidImage(32, 32)); err != nil {
		return "", err
	}
	return path, nil
}

// Calls returns the ids fetched so far.
func (f *StubFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// ScriptedOracle answers Predict from per-sample scripts keyed by the sample
// id carried in the context.
type ScriptedOracle struct {
	Detections map[string][]detection.RawDetection
	Errors     map[string]error
	Panics     map[string]bool
}

// Predict implements detection.Oracle.
func (o *ScriptedOracle) Predict(ctx context.Context, _ image.Image, _ float64) (*detection.Prediction, error) {
	id, _ := services.SampleIDFromContext(ctx)
	if o.Panics[id] {
		panic("oracle exploded for " + id)
	}
	if err := o.Errors[id]; err != nil {
		return nil, err
	}
	return &detection.Prediction{Detections: o.Detections[id]}, nil
}

// Boxes converts integer rectangles into raw detections with the given
// confidence.
func Boxes(confidence float64, rects ...[4]float64) []detection.RawDetection {
	out := make([]detection.RawDetection, 0, len(rects))
	for _, r := range rects {
		out = append(out, detection.RawDetection{X1: r[0], Y1: r[1], X2: r[2], Y2: r[3], Confidence: confidence, Class: "solar"})
	}
	return out
}

package metrics

import (
	"math"
	"sort"

	"solarverify/internal/detection"
)

const (
	// QCAreaThreshold is the detected area (square pixels) a sample must exceed
	// to be verifiable. It assumes the fixed zoom and size of fetched imagery.
	QCAreaThreshold = 1000.0
	// HealthAreaThreshold splits Medium from High health.
	HealthAreaThreshold = 1000.0
	// PixelAreaToSqm converts pixel area to the manifest's area estimate.
	// It is a calibration constant, not derived from ground sample distance.
	PixelAreaToSqm = 10.764
)

// QCFlag is the binary verification outcome.
type QCFlag string

const (
	QCPass QCFlag = "Pass"
	QCFail QCFlag = "Fail"
)

// QCStatus returns the manifest form of the flag.
func (f QCFlag) QCStatus() string {
	if f == QCPass {
		return "VERIFIABLE"
	}
	return "NOT_VERIFIABLE"
}

// Health is the coarse solar coverage tier.
type Health string

const (
	HealthNA     Health = "N/A"
	HealthMedium Health = "Medium"
	HealthHigh   Health = "High"
)

// AreaMode selects how overlapping boxes contribute to the total area.
type AreaMode string

const (
	// AreaSum adds every box; overlapping detections are counted twice.
	AreaSum AreaMode = "sum"
	// AreaUnion measures the region covered by at least one box.
	AreaUnion AreaMode = "union"
)

// Summary is the derived per-sample outcome.
type Summary struct {
	Area         float64
	PanelCount   int
	QC           QCFlag
	Health       Health
	PVAreaSqm    float64
	BufferRadius int
	Eligible     bool
}

// Derive maps a detection result to area, QC, health, and eligibility. It is
// pure and deterministic.
func Derive(result detection.Result, mode AreaMode) Summary {
	area := TotalArea(result.Boxes, mode)
	panels := len(result.Boxes)
	qc := QCFor(area)
	health := HealthFor(panels, area)
	return Summary{
		Area:         area,
		PanelCount:   panels,
		QC:           qc,
		Health:       health,
		PVAreaSqm:    Round2(area / PixelAreaToSqm),
		BufferRadius: int(math.RoundToEven(area)),
		Eligible:     Eligible(qc, health),
	}
}

// QCFor returns Pass when area strictly exceeds QCAreaThreshold.
func QCFor(area float64) QCFlag {
	if area > QCAreaThreshold {
		return QCPass
	}
	return QCFail
}

// HealthFor returns N/A without panels, Medium below HealthAreaThreshold, High otherwise.
func HealthFor(panels int, area float64) Health {
	switch {
	case panels == 0:
		return HealthNA
	case area < HealthAreaThreshold:
		return HealthMedium
	default:
		return HealthHigh
	}
}

// Eligible reports whether a certificate should be issued. With matching
// thresholds a Pass always implies High, so the Medium branch cannot fire.
func Eligible(qc QCFlag, health Health) bool {
	return qc == QCPass && (health == HealthHigh || health == HealthMedium)
}

// TotalArea computes the detected area under the requested mode.
func TotalArea(boxes []detection.BoundingBox, mode AreaMode) float64 {
	if mode == AreaUnion {
		return UnionArea(boxes)
	}
	var area float64
	for _, box := range boxes {
		area += box.Area()
	}
	return area
}

// UnionArea returns the area covered by at least one box using coordinate
// compression over x and a sweep of covered y intervals per column strip.
func UnionArea(boxes []detection.BoundingBox) float64 {
	valid := make([]detection.BoundingBox, 0, len(boxes))
	xs := make([]int, 0, len(boxes)*2)
	for _, b := range boxes {
		if b.X2 <= b.X1 || b.Y2 <= b.Y1 {
			continue
		}
		valid = append(valid, b)
		xs = append(xs, b.X1, b.X2)
	}
	if len(valid) == 0 {
		return 0
	}
	sort.Ints(xs)
	xs = dedupe(xs)

	type span struct{ lo, hi int }
	var area float64
	for i := 0; i+1 < len(xs); i++ {
		left, right := xs[i], xs[i+1]
		spans := make([]span, 0, len(valid))
		for _, b := range valid {
			if b.X1 <= left && b.X2 >= right {
				spans = append(spans, span{b.Y1, b.Y2})
			}
		}
		if len(spans) == 0 {
			continue
		}
		sort.Slice(spans, func(a, b int) bool { return spans[a].lo < spans[b].lo })
		covered := 0
		cur := spans[0]
		for _, s := range spans[1:] {
			if s.lo <= cur.hi {
				if s.hi > cur.hi {
					cur.hi = s.hi
				}
				continue
			}
			covered += cur.hi - cur.lo
			cur = s
		}
		covered += cur.hi - cur.lo
		area += float64(covered) * float64(right-left)
	}
	return area
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func dedupe(sorted []int) []int {
	out := sorted[:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			out = append(out, v)
		}
	}
	return out
}

package artifacts

import (
	"strconv"
	"strings"
	"time"

	"solarverify/internal/detection"
	"solarverify/internal/metrics"
)

const (
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02T15:04:05.000000Z"
)

// Manifest is the per-sample JSON record consumed by the dashboards.
type Manifest struct {
	SampleID         string        `json:"sample_id"`
	Lat              float64       `json:"lat"`
	Lon              float64       `json:"lon"`
	HasSolar         bool          `json:"has_solar"`
	Confidence       float64       `json:"confidence"`
	PVAreaSqmEst     float64       `json:"pv_area_sqm_est"`
	BufferRadiusSqft int           `json:"buffer_radius_sqft"`
	QCStatus         string        `json:"qc_status"`
	BBoxOrMask       [][4]int      `json:"bbox_or_mask"`
	ImageMetadata    ImageMetadata `json:"image_metadata"`
	Timestamp        string        `json:"timestamp"`
}

// ImageMetadata describes the imagery behind a manifest.
type ImageMetadata struct {
	Source      string `json:"source"`
	CaptureDate string `json:"capture_date"`
}

// MetricsRecord is one row of the metrics table.
type MetricsRecord struct {
	SampleID    string
	PanelCount  int
	TotalArea   float64
	QCFlag      metrics.QCFlag
	HealthScore metrics.Health
}

// MetricsHeader is the metrics table header row.
var MetricsHeader = []string{"sample_id", "panel_count", "total_area", "qc_flag", "solar_health_score"}

// Fields returns the row in MetricsHeader order.
func (r MetricsRecord) Fields() []string {
	return []string{
		r.SampleID,
		strconv.Itoa(r.PanelCount),
		FormatDecimal(metrics.Round2(r.TotalArea)),
		string(r.QCFlag),
		string(r.HealthScore),
	}
}

// BuildManifest assembles the manifest for a processed sample. capture_date
// uses the local date of now; timestamp is now in UTC with microseconds.
func BuildManifest(id string, lat, lon float64, result detection.Result, summary metrics.Summary, source string, now time.Time) Manifest {
	boxes := make([][4]int, 0, len(result.Boxes))
	for _, box := range result.Boxes {
		boxes = append(boxes, box.Coords())
	}
	confidence := 0.0
	if len(result.Confidences) > 0 {
		confidence = metrics.Round2(result.Confidences[0])
	}
	return Manifest{
		SampleID:         id,
		Lat:              lat,
		Lon:              lon,
		HasSolar:         summary.PanelCount > 0,
		Confidence:       confidence,
		PVAreaSqmEst:     summary.PVAreaSqm,
		BufferRadiusSqft: summary.BufferRadius,
		QCStatus:         summary.QC.QCStatus(),
		BBoxOrMask:       boxes,
		ImageMetadata: ImageMetadata{
			Source:      source,
			CaptureDate: now.Local().Format(dateLayout),
		},
		Timestamp: now.UTC().Format(timestampLayout),
	}
}

// NewMetricsRecord converts a derived summary into a metrics row.
func NewMetricsRecord(id string, summary metrics.Summary) MetricsRecord {
	return MetricsRecord{
		SampleID:    id,
		PanelCount:  summary.PanelCount,
		TotalArea:   summary.Area,
		QCFlag:      summary.QC,
		HealthScore: summary.Health,
	}
}

// CertificateValues returns placeholder values for a certificate issued at now.
func CertificateValues(record MetricsRecord, now time.Time) map[string]string {
	return map[string]string{
		FieldSampleID:    record.SampleID,
		FieldPanelCount:  strconv.Itoa(record.PanelCount),
		FieldTotalArea:   FormatDecimal(metrics.Round2(record.TotalArea)),
		FieldQCFlag:      string(record.QCFlag),
		FieldHealthScore: string(record.HealthScore),
		FieldDate:        now.Local().Format(dateLayout),
	}
}

// FormatDecimal renders v with the shortest representation that keeps at
// least one fractional digit (1500 -> "1500.0", 12.5 -> "12.5").
func FormatDecimal(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".nN") {
		s += ".0"
	}
	return s
}

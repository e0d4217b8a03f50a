package input

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/cases"

	"solarverify/internal/services"
)

// Required column names. Matching is case-insensitive and ignores surrounding
// whitespace.
const (
	ColumnSampleID = "sample_id"
	ColumnLat      = "lat"
	ColumnLon      = "lon"
)

// pathUnsafe lists characters that would move a per-sample artifact out of
// its directory. Ids name files directly.
const pathUnsafe = "/\\\x00"

var requiredColumns = []string{ColumnSampleID, ColumnLat, ColumnLon}

// Sample is one input row. Err is set when the row itself is unusable; such
// rows are reported and skipped without failing the batch.
type Sample struct {
	ID  string
	Lat float64
	Lon float64
	// Row is the 1-based data row number, excluding the header.
	Row int
	Err error
}

// Batch is a loaded input table.
type Batch struct {
	Path    string
	Samples []Sample
}

// ValidIDs returns the normalized id of every row, in input order.
func (b *Batch) ValidIDs() []string {
	ids := make([]string, 0, len(b.Samples))
	for _, s := range b.Samples {
		ids = append(ids, s.ID)
	}
	return ids
}

// Load reads a .csv or .xlsx table. Unreadable files, unsupported formats, and
// missing required columns are ErrFatalInput.
func Load(path string) (*Batch, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		rows, err = readCSV(path)
	case ".xlsx", ".xlsm":
		rows, err = readXLSX(path)
	default:
		return nil, services.Wrap(services.ErrFatalInput, "load_input", "format", fmt.Sprintf("unsupported input format %q", filepath.Ext(path)), nil)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrFatalInput, "load_input", "read", path, err)
	}
	samples, err := parseRows(rows)
	if err != nil {
		return nil, services.Wrap(services.ErrFatalInput, "load_input", "validate", path, err)
	}
	return &Batch{Path: path, Samples: samples}, nil
}

func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		rows = append(rows, record)
	}
	return rows, nil
}

func readXLSX(path string) ([][]string, error) {
	book, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

func parseRows(rows [][]string) ([]Sample, error) {
	if len(rows) == 0 {
		return nil, errors.New("input has no header row")
	}
	columns := indexHeader(rows[0])
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}

	samples := make([]Sample, 0, len(rows)-1)
	for i, record := range rows[1:] {
		if blankRecord(record) {
			continue
		}
		samples = append(samples, parseRecord(record, columns, i+1))
	}
	return samples, nil
}

func indexHeader(header []string) map[string]int {
	fold := cases.Fold()
	columns := make(map[string]int, len(header))
	for i, name := range header {
		key := fold.String(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, seen := columns[key]; !seen {
			columns[key] = i
		}
	}
	return columns
}

func parseRecord(record []string, columns map[string]int, row int) Sample {
	get := func(col string) string {
		if idx, ok := columns[col]; ok && idx < len(record) {
			return strings.TrimSpace(record[idx])
		}
		return ""
	}

	sample := Sample{ID: NormalizeSampleID(get(ColumnSampleID)), Row: row}
	if sample.ID == "" {
		sample.Err = services.Wrap(services.ErrValidation, "load_input", "sample_id", fmt.Sprintf("row %d: empty sample_id", row), nil)
		return sample
	}
	if strings.ContainsAny(sample.ID, pathUnsafe) {
		sample.Err = services.Wrap(services.ErrValidation, "load_input", "sample_id",
			fmt.Sprintf("row %d: sample_id %q contains a path separator", row, sample.ID), nil)
		return sample
	}
	lat, err := parseCoordinate(get(ColumnLat), -90, 90)
	if err != nil {
		sample.Err = services.Wrap(services.ErrValidation, "load_input", "lat", fmt.Sprintf("row %d", row), err)
		return sample
	}
	lon, err := parseCoordinate(get(ColumnLon), -180, 180)
	if err != nil {
		sample.Err = services.Wrap(services.ErrValidation, "load_input", "lon", fmt.Sprintf("row %d", row), err)
		return sample
	}
	sample.Lat = lat
	sample.Lon = lon
	return sample
}

func parseCoordinate(raw string, lo, hi float64) (float64, error) {
	if raw == "" {
		return 0, errors.New("empty value")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", raw)
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("%v out of range [%v, %v]", v, lo, hi)
	}
	return v, nil
}

func blankRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// NormalizeSampleID trims whitespace and drops everything from the first ".",
// so ids read as floating values ("12.0") become "12".
func NormalizeSampleID(raw string) string {
	id := strings.TrimSpace(raw)
	if idx := strings.Index(id, "."); idx >= 0 {
		id = id[:idx]
	}
	return id
}

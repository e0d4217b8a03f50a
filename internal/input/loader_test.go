package input_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/xuri/excelize/v2"

	"solarverify/internal/input"
	"solarverify/internal/services"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestNormalizeSampleID(t *testing.T) {
	tests := map[string]string{
		"12.0":  "12",
		" 42 ":  "42",
		"7":     "7",
		"a.b.c": "a",
		"":      "",
		".5":    "",
	}
	for raw, want := range tests {
		if got := input.NormalizeSampleID(raw); got != want {
			t.Fatalf("NormalizeSampleID(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestLoadCSV(t *testing.T) {
	path := writeFile(t, "input.csv", "Sample_ID,LAT,Lon,notes\n12.0,22.57,88.36,roof\n13,10,20,\n\n14,abc,1,\n")

	batch, err := input.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(batch.Samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(batch.Samples))
	}

	want := []input.Sample{
		{ID: "12", Lat: 22.57, Lon: 88.36, Row: 1},
		{ID: "13", Lat: 10, Lon: 20, Row: 2},
	}
	if diff := cmp.Diff(want, batch.Samples[:2], cmpopts.EquateErrors()); diff != "" {
		t.Fatalf("samples mismatch (-want +got):\n%s", diff)
	}
	bad := batch.Samples[2]
	if bad.ID != "14" || !errors.Is(bad.Err, services.ErrValidation) {
		t.Fatalf("expected row validation error for 14, got %+v", bad)
	}
	if services.IsFatal(bad.Err) {
		t.Fatal("row errors must not be fatal")
	}
	if diff := cmp.Diff([]string{"12", "13", "14"}, batch.ValidIDs()); diff != "" {
		t.Fatalf("valid ids mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadMissingColumnIsFatal(t *testing.T) {
	path := writeFile(t, "input.csv", "sample_id,lat\n1,2\n")
	_, err := input.Load(path)
	if !errors.Is(err, services.ErrFatalInput) {
		t.Fatalf("expected ErrFatalInput, got %v", err)
	}
	if !services.IsFatal(err) {
		t.Fatal("expected fatal classification")
	}
}

func TestLoadUnreadableIsFatal(t *testing.T) {
	_, err := input.Load(filepath.Join(t.TempDir(), "missing.csv"))
	if !errors.Is(err, services.ErrFatalInput) {
		t.Fatalf("expected ErrFatalInput, got %v", err)
	}
	_, err = input.Load(writeFile(t, "input.txt", "sample_id,lat,lon\n"))
	if !errors.Is(err, services.ErrFatalInput) {
		t.Fatalf("expected ErrFatalInput for unsupported format, got %v", err)
	}
}

func TestLoadEmptyFileIsFatal(t *testing.T) {
	_, err := input.Load(writeFile(t, "input.csv", ""))
	if !errors.Is(err, services.ErrFatalInput) {
		t.Fatalf("expected ErrFatalInput, got %v", err)
	}
}

func TestLoadRejectsUnsafeIDsAndRangeErrors(t *testing.T) {
	path := writeFile(t, "input.csv", "sample_id,lat,lon\n,1,1\n5,91,0\n6,0,-181\nsub/7,1,1\nwin\\8,1,1\n")
	batch, err := input.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(batch.Samples) != 5 {
		t.Fatalf("expected 5 samples, got %d", len(batch.Samples))
	}
	for _, s := range batch.Samples {
		if !errors.Is(s.Err, services.ErrValidation) {
			t.Fatalf("expected validation error for row %d, got %v", s.Row, s.Err)
		}
	}
}

func TestLoadXLSX(t *testing.T) {
	book := excelize.NewFile()
	defer book.Close()
	sheet := book.GetSheetName(0)
	rows := [][]any{
		{"sample_id", "lat", "lon"},
		{"12.0", 22.57, 88.36},
		{7, -33.5, 151.25},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := book.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	path := filepath.Join(t.TempDir(), "input.xlsx")
	if err := book.SaveAs(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	batch, err := input.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []input.Sample{
		{ID: "12", Lat: 22.57, Lon: 88.36, Row: 1},
		{ID: "7", Lat: -33.5, Lon: 151.25, Row: 2},
	}
	if diff := cmp.Diff(want, batch.Samples, cmpopts.EquateErrors()); diff != "" {
		t.Fatalf("samples mismatch (-want +got):\n%s", diff)
	}
}

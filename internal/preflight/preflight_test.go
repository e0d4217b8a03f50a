package preflight

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"solarverify/internal/config"
)

type stubHealth struct{ err error }

func (s stubHealth) Health(context.Context) error { return s.err }

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckInputFile(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "input.csv")
	if err := os.WriteFile(csvPath, []byte("sample_id,lat,lon\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	txtPath := filepath.Join(dir, "input.txt")
	if err := os.WriteFile(txtPath, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if r := CheckInputFile(csvPath); !r.Passed {
		t.Fatalf("expected pass, got %s", r.Detail)
	}
	if r := CheckInputFile(txtPath); r.Passed {
		t.Fatal("expected failure for unsupported format")
	}
	if r := CheckInputFile(filepath.Join(dir, "missing.xlsx")); r.Passed {
		t.Fatal("expected failure for missing file")
	}
	if r := CheckInputFile(dir); r.Passed {
		t.Fatal("expected failure for directory")
	}
}

func TestCheckTemplate(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.txt")
	bad := filepath.Join(dir, "bad.txt")
	if err := os.WriteFile(good, []byte("Certificate {sample_id}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bad, []byte("Certificate {owner}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if r := CheckTemplate(good); !r.Passed {
		t.Fatalf("expected pass, got %s", r.Detail)
	}
	if r := CheckTemplate(bad); r.Passed {
		t.Fatal("expected failure for unknown placeholder")
	}
	if r := CheckTemplate(filepath.Join(dir, "absent.txt")); r.Passed {
		t.Fatal("expected failure for missing template")
	}
}

func TestCheckOracle(t *testing.T) {
	if r := CheckOracle(context.Background(), stubHealth{}); !r.Passed {
		t.Fatalf("expected pass, got %s", r.Detail)
	}
	r := CheckOracle(context.Background(), stubHealth{err: errors.New("ml service unhealthy: 503")})
	if r.Passed || r.Detail != "ml service unhealthy: 503" {
		t.Fatalf("unexpected result %+v", r)
	}
	r = CheckOracle(context.Background(), stubHealth{err: context.DeadlineExceeded})
	if r.Passed || r.Detail != "health check timed out (oracle unresponsive)" {
		t.Fatalf("unexpected result %+v", r)
	}
}

func TestRunAllSkipsOracleWhenDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.OutputRoot = t.TempDir()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Paths.InputFile = filepath.Join(cfg.Paths.OutputRoot, "input.csv")
	cfg.Paths.CertificateTemplate = filepath.Join(cfg.Paths.OutputRoot, "cert_temp.txt")
	cfg.ImageService.APIKey = "k"

	cfg.Oracle.HealthCheck = false
	results := RunAll(context.Background(), &cfg, stubHealth{})
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}

	cfg.Oracle.HealthCheck = true
	results = RunAll(context.Background(), &cfg, stubHealth{})
	if len(results) != 6 {
		t.Fatalf("expected 6 results, got %d", len(results))
	}
	failed := Failed(results)
	if len(failed) != 2 {
		t.Fatalf("expected input and template failures, got %+v", failed)
	}
}

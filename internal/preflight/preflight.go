package preflight

import (
	"context"

	"solarverify/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// HealthChecker is implemented by remote services that expose a health probe.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// RunAll executes all applicable preflight checks for the given config.
// oracle may be nil, in which case the oracle check is skipped.
func RunAll(ctx context.Context, cfg *config.Config, oracle HealthChecker) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckInputFile(cfg.Paths.InputFile),
		CheckDirectoryAccess("Output root", cfg.Paths.OutputRoot),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckTemplate(cfg.Paths.CertificateTemplate),
		CheckAPIKey(cfg.ImageService.APIKey),
	}

	if cfg.Oracle.HealthCheck && oracle != nil {
		results = append(results, CheckOracle(ctx, oracle))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

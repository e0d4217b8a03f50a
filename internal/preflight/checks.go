package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"solarverify/internal/artifacts"
	"solarverify/internal/services"
)

// oracleCheckTimeout bounds the oracle health probe.
const oracleCheckTimeout = 10 * time.Second

// CheckOracle probes the detection service health endpoint with a single
// attempt.
func CheckOracle(ctx context.Context, oracle HealthChecker) Result {
	const name = "Detection oracle"
	if oracle == nil {
		return Result{Name: name, Detail: "not configured"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, oracleCheckTimeout)
	defer cancel()

	if err := oracle.Health(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeHealthError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

// CheckInputFile verifies the input table exists, is readable, and has a
// supported extension.
func CheckInputFile(path string) Result {
	const name = "Input file"
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", path)}
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".xlsx", ".xlsm":
	default:
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: unsupported format)", path)}
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckTemplate verifies the certificate template parses. A missing template
// fails the check because no certificates will be issued.
func CheckTemplate(path string) Result {
	const name = "Certificate template"
	_, err := artifacts.LoadTemplate(path)
	switch {
	case err == nil:
		return Result{Name: name, Passed: true, Detail: path}
	case errors.Is(err, services.ErrTemplateMissing):
		return Result{Name: name, Detail: fmt.Sprintf("%s (missing: certificates will be skipped)", path)}
	default:
		return Result{Name: name, Detail: err.Error()}
	}
}

// CheckAPIKey verifies an imagery credential is configured.
func CheckAPIKey(key string) Result {
	const name = "Imagery API key"
	if strings.TrimSpace(key) == "" {
		return Result{Name: name, Detail: "missing (set image_service.api_key or GOOGLE_MAPS_API_KEY)"}
	}
	return Result{Name: name, Passed: true, Detail: "configured"}
}

func summarizeHealthError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (oracle unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (oracle unreachable)"
	}
	return err.Error()
}

package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrFatalInput marks an unreadable input batch or one missing required columns.
	ErrFatalInput = errors.New("fatal input error")
	// ErrConfiguration marks unusable configuration, including bad certificate templates.
	ErrConfiguration = errors.New("configuration error")
	// ErrRunInProgress is returned when another run holds the output lock.
	ErrRunInProgress = errors.New("run in progress")

	// ErrFetch marks image retrieval failures (non-200, network).
	ErrFetch = errors.New("image fetch error")
	// ErrDecode marks unreadable or corrupt raster images.
	ErrDecode = errors.New("image decode error")
	// ErrDetect marks detection oracle failures.
	ErrDetect = errors.New("detection error")
	// ErrWrite marks artifact persistence failures.
	ErrWrite = errors.New("artifact write error")
	// ErrValidation marks malformed sample rows.
	ErrValidation = errors.New("validation error")
	// ErrTemplateMissing is a warning-level condition: the certificate template is absent.
	ErrTemplateMissing = errors.New("certificate template missing")
	// ErrTransient marks failures with no more specific classification.
	ErrTransient = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsFatal reports whether err must abort the whole run rather than a single sample.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatalInput) ||
		errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrRunInProgress)
}

// FailureKind maps a per-sample error to a short label used in logs and the run ledger.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrFetch):
		return "fetch"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrDetect):
		return "detect"
	case errors.Is(err, ErrWrite):
		return "write"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	default:
		return "unexpected"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

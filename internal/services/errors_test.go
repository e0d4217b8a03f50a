package services_test

import (
	"errors"
	"strings"
	"testing"

	"solarverify/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrFetch, "fetch", "get", "status 404", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrFetch) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"fetch", "get", "status 404"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestIsFatal(t *testing.T) {
	fatal := []error{
		services.Wrap(services.ErrFatalInput, "load", "read", "missing columns", nil),
		services.Wrap(services.ErrConfiguration, "preflight", "template", "unknown placeholder", nil),
		services.ErrRunInProgress,
	}
	for _, err := range fatal {
		if !services.IsFatal(err) {
			t.Fatalf("expected %v to be fatal", err)
		}
	}
	sampleLocal := []error{
		services.Wrap(services.ErrFetch, "fetch", "", "", nil),
		services.Wrap(services.ErrDecode, "decode", "", "", nil),
		errors.New("plain"),
		nil,
	}
	for _, err := range sampleLocal {
		if services.IsFatal(err) {
			t.Fatalf("expected %v to be sample-local", err)
		}
	}
}

func TestFailureKind(t *testing.T) {
	cases := map[string]error{
		"fetch":      services.Wrap(services.ErrFetch, "", "", "x", nil),
		"decode":     services.Wrap(services.ErrDecode, "", "", "x", nil),
		"detect":     services.Wrap(services.ErrDetect, "", "", "x", nil),
		"write":      services.Wrap(services.ErrWrite, "", "", "x", nil),
		"validation": services.Wrap(services.ErrValidation, "", "", "x", nil),
		"unexpected": errors.New("panic"),
		"":           nil,
	}
	for want, err := range cases {
		if got := services.FailureKind(err); got != want {
			t.Fatalf("FailureKind(%v) = %q, want %q", err, got, want)
		}
	}
}

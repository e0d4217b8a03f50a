package services_test

import (
	"context"
	"testing"

	"solarverify/internal/services"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRunID(ctx, "run-1")
	ctx = services.WithSampleID(ctx, "12")
	ctx = services.WithStage(ctx, "fetch")
	ctx = services.WithRequestID(ctx, "req-9")

	if id, ok := services.RunIDFromContext(ctx); !ok || id != "run-1" {
		t.Fatalf("unexpected run id %q ok=%v", id, ok)
	}
	if id, ok := services.SampleIDFromContext(ctx); !ok || id != "12" {
		t.Fatalf("unexpected sample id %q ok=%v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "fetch" {
		t.Fatalf("unexpected stage %q ok=%v", stage, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-9" {
		t.Fatalf("unexpected request id %q ok=%v", rid, ok)
	}
}

func TestContextIgnoresEmptyValues(t *testing.T) {
	ctx := context.Background()
	if services.WithSampleID(ctx, "") != ctx {
		t.Fatal("expected empty sample id to return original context")
	}
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage on empty context")
	}
}

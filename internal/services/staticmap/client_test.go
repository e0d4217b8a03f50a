package staticmap_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"solarverify/internal/pipeline"
	"solarverify/internal/services"
	"solarverify/internal/services/staticmap"
)

var _ pipeline.ImageFetcher = (*staticmap.Client)(nil)

func newClient(t *testing.T, baseURL, dir string) *staticmap.Client {
	t.Helper()
	client, err := staticmap.New(staticmap.Params{
		BaseURL: baseURL,
		APIKey:  "secret",
		Zoom:    20,
		Width:   640,
		Height:  640,
		MapType: "satellite",
	}, dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func TestFetchStoresImage(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()

	dir := filepath.Join(t.TempDir(), "fetched")
	client := newClient(t, srv.URL, dir)

	path, err := client.Fetch(context.Background(), 22.57, 88.36, "12")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if path != filepath.Join(dir, "12.jpg") {
		t.Fatalf("unexpected path %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "jpeg-bytes" {
		t.Fatalf("unexpected body %q", data)
	}

	want := map[string]string{
		"center":  "22.57,88.36",
		"zoom":    "20",
		"size":    "640x640",
		"maptype": "satellite",
		"key":     "secret",
	}
	for k, v := range want {
		if gotQuery[k] != v {
			t.Fatalf("query %s = %q, want %q", k, gotQuery[k], v)
		}
	}
}

func TestFetchNon200IsSampleLocal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	dir := t.TempDir()
	client := newClient(t, srv.URL, dir)

	path, err := client.Fetch(context.Background(), 1, 2, "7")
	if path != "" {
		t.Fatalf("expected no path, got %q", path)
	}
	if !errors.Is(err, services.ErrFetch) {
		t.Fatalf("expected ErrFetch, got %v", err)
	}
	if services.IsFatal(err) {
		t.Fatal("fetch failure must not be fatal")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected status in error, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "7.jpg")); !os.IsNotExist(statErr) {
		t.Fatalf("expected no image file, stat err=%v", statErr)
	}
}

func TestFetchTransportErrorRedactsKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := newClient(t, url, t.TempDir())
	_, err := client.Fetch(context.Background(), 1, 2, "9")
	if !errors.Is(err, services.ErrFetch) {
		t.Fatalf("expected ErrFetch, got %v", err)
	}
	if strings.Contains(err.Error(), "secret") {
		t.Fatalf("expected API key to be redacted, got %v", err)
	}
}

func TestNewValidatesParams(t *testing.T) {
	if _, err := staticmap.New(staticmap.Params{BaseURL: "http://x"}, t.TempDir()); err == nil {
		t.Fatal("expected error without api key")
	}
	if _, err := staticmap.New(staticmap.Params{APIKey: "k"}, t.TempDir()); err == nil {
		t.Fatal("expected error without base url")
	}
	if _, err := staticmap.New(staticmap.Params{BaseURL: "http://x", APIKey: "k"}, ""); err == nil {
		t.Fatal("expected error without directory")
	}
}

func TestRequestURLAppendsToExistingQuery(t *testing.T) {
	client := newClient(t, "https://maps.example/staticmap?style=x", t.TempDir())
	got := client.RequestURL(1.5, -2.25)
	if !strings.HasPrefix(got, "https://maps.example/staticmap?style=x&") {
		t.Fatalf("unexpected url %q", got)
	}
	if !strings.Contains(got, "center=1.5%2C-2.25") {
		t.Fatalf("expected encoded center in %q", got)
	}
}

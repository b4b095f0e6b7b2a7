// Package integration provides live integration tests against a public STAC API.
// Run with: go test -v ./internal/integration -tags=integration
//go:build integration

package integration

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/robert-malhotra/stac-cube/pkg/server"
)

const defaultCatalogURL = "https://planetarycomputer.microsoft.com/api/stac/v1"

func setupTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	catalogURL := os.Getenv("CATALOG_URL")
	if catalogURL == "" {
		catalogURL = defaultCatalogURL
	}

	srv, err := server.New(server.Options{
		CatalogURL:     catalogURL,
		CatalogTimeout: 60 * time.Second,
		ProductsDir:    "../../products",
		MaxItems:       200,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	t.Cleanup(srv.Close)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func postCube(t *testing.T, ts *httptest.Server, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/cubes", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp, out
}

func TestProducts(t *testing.T) {
	ts := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/products/sentinel-2-l2a")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestDescribeSentinel2Cube(t *testing.T) {
	ts := setupTestServer(t)

	resp, out := postCube(t, ts, `{
		"product": "sentinel-2-l2a",
		"bbox": [7.60, 45.00, 7.70, 45.06],
		"crs": "EPSG:4326",
		"datetime": "2024-06-01/2024-06-15",
		"resolution": 0.0002,
		"variables": ["b04", "scl"]
	}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", resp.StatusCode, out)
	}

	days, _ := out["days"].([]any)
	if len(days) == 0 {
		t.Fatal("expected at least one day")
	}
	t.Logf("cube %v has %d days, shape %v", out["id"], len(days), out["shape"])

	methods, _ := out["methods"].(map[string]any)
	scl, _ := methods["scl"].(map[string]any)
	if scl["aggregation"] != "mode" {
		t.Errorf("expected mode aggregation for scl, got %v", scl["aggregation"])
	}
}

func TestDescribeNativeCube(t *testing.T) {
	ts := setupTestServer(t)

	resp, out := postCube(t, ts, `{
		"product": "sentinel-2-l2a",
		"bbox": [399960, 5000040, 409960, 5010040],
		"crs": "native",
		"bbox_crs": "EPSG:32632",
		"datetime": "2024-06-01/2024-06-10",
		"resolution": 10,
		"variables": ["b04"]
	}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", resp.StatusCode, out)
	}
	if out["path"] != "native" {
		t.Errorf("expected native path, got %v", out["path"])
	}
}

func TestEmptyQuery(t *testing.T) {
	ts := setupTestServer(t)

	resp, out := postCube(t, ts, `{
		"product": "sentinel-2-l2a",
		"bbox": [-150.1, -40.1, -150.0, -40.0],
		"datetime": "2024-06-01",
		"resolution": 0.001
	}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for open ocean, got %d: %v", resp.StatusCode, out)
	}
	if out["code"] != "NoData" {
		t.Errorf("expected NoData code, got %v", out["code"])
	}
}

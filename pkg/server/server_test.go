package server

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/robert-malhotra/stac-cube/internal/assetio"
	"github.com/robert-malhotra/stac-cube/internal/config"
	"github.com/robert-malhotra/stac-cube/internal/crs"
	"github.com/robert-malhotra/stac-cube/internal/raster"
)

// footprint is the UTM 32N extent of every test tile: 8x8 pixels at 10 m.
var footprint = crs.BBox{500000, 5000000, 500080, 5000080}

func testProducts(t *testing.T) *config.ProductRegistry {
	t.Helper()
	reg := config.NewProductRegistry()
	p := &config.ProductConfig{
		ID:                "sentinel-2-l2a",
		Title:             "Sentinel-2 L2A",
		Collection:        "sentinel-2-l2a",
		NativeResolutions: []float64{10},
		Variables: []config.VariableConfig{
			{Name: "b04", Asset: "B04", DataType: "float32", Resolution: 10},
		},
	}
	if err := config.ValidateProduct(p); err != nil {
		t.Fatal(err)
	}
	if err := reg.Add(p); err != nil {
		t.Fatal(err)
	}
	return reg
}

// upstream serves a STAC search endpoint and the binary assets its items
// point to.
type upstream struct {
	server   *httptest.Server
	searches atomic.Int32
	reads    atomic.Int32
	assets   map[string][]byte
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{assets: make(map[string][]byte)}
	for day, value := range map[string]float64{"20240601": 1, "20240602": 2} {
		r := raster.New(8, 8)
		for i := range r.Data {
			r.Data[i] = value
		}
		data, err := assetio.Encode(r, "float32", nil)
		if err != nil {
			t.Fatal(err)
		}
		u.assets["/assets/"+day+"/B04.bin"] = data
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /search", func(w http.ResponseWriter, r *http.Request) {
		u.searches.Add(1)
		w.Header().Set("Content-Type", "application/geo+json")
		fmt.Fprintf(w, `{"type": "FeatureCollection", "features": [%s, %s], "links": []}`,
			u.item(t, "S2A_20240601", "2024-06-01T10:30:00Z", "20240601"),
			u.item(t, "S2B_20240602", "2024-06-02T10:30:00Z", "20240602"))
	})
	mux.HandleFunc("GET /assets/", func(w http.ResponseWriter, r *http.Request) {
		u.reads.Add(1)
		data, ok := u.assets[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(data)
	})
	u.server = httptest.NewServer(mux)
	t.Cleanup(u.server.Close)
	return u
}

func (u *upstream) item(t *testing.T, id, datetime, day string) string {
	t.Helper()
	wgs84, err := crs.ReprojectBBox(footprint, crs.MustParse("EPSG:32632"), crs.WGS84, 0)
	if err != nil {
		t.Fatal(err)
	}
	return fmt.Sprintf(`{
		"type": "Feature",
		"stac_version": "1.0.0",
		"id": %q,
		"collection": "sentinel-2-l2a",
		"geometry": null,
		"bbox": [%f, %f, %f, %f],
		"properties": {"datetime": %q, "proj:epsg": 32632},
		"links": [{"rel": "self", "href": "%s/collections/sentinel-2-l2a/items/%s"}],
		"assets": {
			"B04": {"href": "%s/assets/%s/B04.bin", "proj:shape": [8, 8], "proj:transform": [10, 0, 500000, 0, -10, 5000080]}
		}
	}`, id, wgs84.MinX(), wgs84.MinY(), wgs84.MaxX(), wgs84.MaxY(), datetime,
		u.server.URL, id, u.server.URL, day)
}

func newTestServer(t *testing.T, u *upstream) *httptest.Server {
	t.Helper()
	srv, err := New(Options{
		CatalogURL: u.server.URL,
		Products:   testProducts(t),
		Workers:    2,
		Metrics:    true,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(srv.Close)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func TestNewRequiresCatalogURL(t *testing.T) {
	if _, err := New(Options{Products: testProducts(t)}); err == nil {
		t.Error("expected error without catalog URL")
	}
}

func TestEndToEnd(t *testing.T) {
	u := newUpstream(t)
	ts := newTestServer(t, u)

	body := `{
		"product": "sentinel-2-l2a",
		"bbox": [500000, 5000000, 500080, 5000080],
		"crs": "EPSG:32632",
		"datetime": "2024-06-01/2024-06-02",
		"resolution": 10,
		"tile_size": 4
	}`
	resp, err := http.Post(ts.URL+"/cubes", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		data, _ := io.ReadAll(resp.Body)
		t.Fatalf("POST /cubes status = %d, body = %s", resp.StatusCode, data)
	}

	var meta struct {
		ID    string `json:"id"`
		Path  string `json:"path"`
		Shape [3]int `json:"shape"`
		Days  []struct {
			Tiles []string `json:"tiles"`
		} `json:"days"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		t.Fatal(err)
	}
	if meta.Path != "native" {
		t.Errorf("path = %q, want native", meta.Path)
	}
	if meta.Shape != [3]int{2, 8, 8} {
		t.Errorf("shape = %v, want [2 8 8]", meta.Shape)
	}
	if len(meta.Days) != 2 || len(meta.Days[0].Tiles) != 1 {
		t.Fatalf("days = %+v", meta.Days)
	}
	if got := u.reads.Load(); got != 0 {
		t.Errorf("planning read %d assets, want 0", got)
	}

	for day, want := range []float32{1, 2} {
		values := getChunk(t, fmt.Sprintf("%s/cubes/%s/variables/b04/chunks/%d/1/0", ts.URL, meta.ID, day))
		if len(values) != 16 {
			t.Fatalf("day %d: got %d values, want 16", day, len(values))
		}
		for i, v := range values {
			if v != want {
				t.Fatalf("day %d: values[%d] = %v, want %v", day, i, v, want)
			}
		}
	}
	reads := u.reads.Load()
	if reads != 2 {
		t.Errorf("asset reads = %d, want 2", reads)
	}

	// The cached read serves the remaining chunks of the day.
	getChunk(t, fmt.Sprintf("%s/cubes/%s/variables/b04/chunks/0/0/1", ts.URL, meta.ID))
	if got := u.reads.Load(); got != reads {
		t.Errorf("asset reads after cached chunk = %d, want %d", got, reads)
	}

	metrics := getBody(t, ts.URL+"/metrics")
	for _, want := range []string{
		`stac_cube_builds_total{outcome="success",product="sentinel-2-l2a"} 1`,
		"stac_cube_cubes_stored 1",
		"stac_cube_catalog_pages_total 1",
	} {
		if !strings.Contains(metrics, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestEndToEndUnknownProduct(t *testing.T) {
	u := newUpstream(t)
	ts := newTestServer(t, u)

	resp, err := http.Post(ts.URL+"/cubes", "application/json",
		strings.NewReader(`{"product": "landsat", "bbox": [0, 0, 1, 1], "datetime": "2024-06-01", "resolution": 0.1}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if got := u.searches.Load(); got != 0 {
		t.Errorf("catalog searched %d times, want 0", got)
	}
}

func getBody(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s status = %d, body = %s", url, resp.StatusCode, data)
	}
	return string(data)
}

func getChunk(t *testing.T, url string) []float32 {
	t.Helper()
	data := []byte(getBody(t, url))
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}

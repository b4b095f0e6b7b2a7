package api

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/robert-malhotra/stac-cube/internal/catalog"
	"github.com/robert-malhotra/stac-cube/internal/config"
	"github.com/robert-malhotra/stac-cube/internal/crs"
	"github.com/robert-malhotra/stac-cube/internal/cube"
	"github.com/robert-malhotra/stac-cube/internal/cubeerr"
	"github.com/robert-malhotra/stac-cube/internal/cubestore"
	"github.com/robert-malhotra/stac-cube/internal/grid"
	"github.com/robert-malhotra/stac-cube/internal/raster"
	"github.com/robert-malhotra/stac-cube/internal/resample"
	"github.com/robert-malhotra/stac-cube/internal/tile"
)

var (
	utm32    = crs.MustParse("EPSG:32632")
	tileBBox = crs.BBox{500000, 5000000, 500080, 5000080}
)

type stubSearcher struct {
	tiles []tile.Descriptor
	err   error
}

func (s *stubSearcher) Search(context.Context, *config.ProductConfig, catalog.Query) ([]tile.Descriptor, error) {
	return s.tiles, s.err
}

type stubReader struct {
	rasters map[string]*raster.Raster
}

func (s *stubReader) ReadAsset(_ context.Context, a tile.Asset) (*raster.Raster, error) {
	r, ok := s.rasters[a.Href]
	if !ok {
		return nil, fmt.Errorf("asset %s not found", a.Href)
	}
	return r.Clone(), nil
}

func (s *stubReader) ReadGeolocation(context.Context, tile.Geolocation) (raster.Geolocation, error) {
	return raster.Geolocation{}, errors.New("no geolocation")
}

// failingBuilder returns err from every Build.
type failingBuilder struct{ err error }

func (f failingBuilder) Build(context.Context, cube.Request) (*cube.Cube, error) {
	return nil, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRegistry(t *testing.T) *config.ProductRegistry {
	t.Helper()
	reg := config.NewProductRegistry()
	p := &config.ProductConfig{
		ID:                "test-l2a",
		Title:             "Test L2A",
		Collection:        "test-l2a",
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

// testTile is an 8x8 tile at 10 m whose pixels hold their row-major index.
func testTile(t *testing.T, reader *stubReader) tile.Descriptor {
	t.Helper()
	wgs84, err := crs.ReprojectBBox(tileBBox, utm32, crs.WGS84, 0)
	if err != nil {
		t.Fatal(err)
	}
	r := raster.New(8, 8)
	for i := range r.Data {
		r.Data[i] = float64(i)
	}
	reader.rasters["mem://a/b04"] = r
	d := tile.NewDescriptor("a", time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC), utm32, tileBBox, wgs84,
		map[string]tile.Asset{
			"b04": {
				Variable: "b04",
				Href:     "mem://a/b04",
				DataType: "float32",
				Grid: grid.Spec{
					CRS: utm32, OriginX: tileBBox.MinX(), OriginY: tileBBox.MaxY(),
					ResX: 10, ResY: 10, Width: 8, Height: 8,
				},
			},
		})
	return d
}

type testServer struct {
	router http.Handler
	store  *cubestore.MemoryStore
}

func newTestServer(t *testing.T, builder CubeBuilder) *testServer {
	t.Helper()
	store := cubestore.NewMemoryStore(time.Hour, time.Hour)
	t.Cleanup(store.Stop)
	h := NewHandlers(testRegistry(t), builder, store, testLogger())
	return &testServer{router: NewRouter(h, nil, testLogger()), store: store}
}

func newCubeServer(t *testing.T) *testServer {
	t.Helper()
	reader := &stubReader{rasters: make(map[string]*raster.Raster)}
	searcher := &stubSearcher{tiles: []tile.Descriptor{testTile(t, reader)}}
	builder := cube.NewBuilder(testRegistry(t), searcher, reader, resample.NewKernel()).
		WithLogger(testLogger())
	return newTestServer(t, builder)
}

func (s *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

const cubeBody = `{
	"product": "test-l2a",
	"bbox": [500000, 5000000, 500080, 5000080],
	"crs": "EPSG:32632",
	"datetime": "2024-06-01",
	"resolution": 10,
	"tile_size": 4
}`

func (s *testServer) createCube(t *testing.T) CubeResponse {
	t.Helper()
	w := s.do(t, http.MethodPost, "/cubes", cubeBody)
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /cubes status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp CubeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if loc := w.Header().Get("Location"); !strings.HasSuffix(loc, "/cubes/"+resp.ID) {
		t.Errorf("Location = %q, want suffix /cubes/%s", loc, resp.ID)
	}
	return resp
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, failingBuilder{})
	w := s.do(t, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
}

func TestLandingPage(t *testing.T) {
	s := newTestServer(t, failingBuilder{})
	w := s.do(t, http.MethodGet, "/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Links []Link `json:"links"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	rels := make(map[string]bool)
	for _, l := range resp.Links {
		rels[l.Rel] = true
	}
	for _, rel := range []string{"self", "products", "cubes"} {
		if !rels[rel] {
			t.Errorf("missing link rel %q", rel)
		}
	}
}

func TestProducts(t *testing.T) {
	s := newTestServer(t, failingBuilder{})

	w := s.do(t, http.MethodGet, "/products", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var list struct {
		Products []ProductSummary `json:"products"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Products) != 1 || list.Products[0].ID != "test-l2a" {
		t.Fatalf("products = %+v", list.Products)
	}
	if v := list.Products[0].Variables; len(v) != 1 || v[0].Name != "b04" {
		t.Errorf("variables = %+v", v)
	}

	tests := []struct {
		path string
		want int
	}{
		{path: "/products/test-l2a", want: http.StatusOK},
		{path: "/products/unknown", want: http.StatusNotFound},
	}
	for _, tt := range tests {
		if w := s.do(t, http.MethodGet, tt.path, ""); w.Code != tt.want {
			t.Errorf("GET %s status = %d, want %d", tt.path, w.Code, tt.want)
		}
	}
}

func TestCubeLifecycle(t *testing.T) {
	s := newCubeServer(t)
	resp := s.createCube(t)

	if resp.Path != "native" {
		t.Errorf("path = %q, want native", resp.Path)
	}
	if resp.Shape != [3]int{1, 8, 8} {
		t.Errorf("shape = %v, want [1 8 8]", resp.Shape)
	}
	if resp.ChunkCounts != [3]int{1, 2, 2} {
		t.Errorf("chunk_counts = %v, want [1 2 2]", resp.ChunkCounts)
	}
	if s.store.Len() != 1 {
		t.Errorf("store holds %d cubes, want 1", s.store.Len())
	}

	if w := s.do(t, http.MethodGet, "/cubes/"+resp.ID, ""); w.Code != http.StatusOK {
		t.Errorf("GET cube status = %d", w.Code)
	}
	if w := s.do(t, http.MethodDelete, "/cubes/"+resp.ID, ""); w.Code != http.StatusNoContent {
		t.Errorf("DELETE cube status = %d", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/cubes/"+resp.ID, ""); w.Code != http.StatusNotFound {
		t.Errorf("GET deleted cube status = %d, want 404", w.Code)
	}
	if w := s.do(t, http.MethodDelete, "/cubes/"+resp.ID, ""); w.Code != http.StatusNotFound {
		t.Errorf("DELETE deleted cube status = %d, want 404", w.Code)
	}
}

func decodeFloat32(t *testing.T, body []byte) []float32 {
	t.Helper()
	if len(body)%4 != 0 {
		t.Fatalf("body length %d is not a multiple of 4", len(body))
	}
	out := make([]float32, len(body)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[i*4:]))
	}
	return out
}

func TestChunk(t *testing.T) {
	s := newCubeServer(t)
	id := s.createCube(t).ID

	w := s.do(t, http.MethodGet, "/cubes/"+id+"/variables/b04/chunks/0/1/1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Content-Type"); got != chunkContentType {
		t.Errorf("Content-Type = %q", got)
	}
	if got := w.Header().Get(HeaderChunkShape); got != "4,4" {
		t.Errorf("%s = %q, want 4,4", HeaderChunkShape, got)
	}
	if got := w.Header().Get(HeaderChunkOffset); got != "4,4" {
		t.Errorf("%s = %q, want 4,4", HeaderChunkOffset, got)
	}
	values := decodeFloat32(t, w.Body.Bytes())
	if len(values) != 16 {
		t.Fatalf("got %d values, want 16", len(values))
	}
	// Chunk (1, 1) starts at tile pixel (4, 4).
	if values[0] != 36 || values[15] != 63 {
		t.Errorf("values[0], values[15] = %v, %v, want 36, 63", values[0], values[15])
	}
}

func TestSlice(t *testing.T) {
	s := newCubeServer(t)
	id := s.createCube(t).ID

	w := s.do(t, http.MethodGet, "/cubes/"+id+"/variables/b04/slices/0", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get(HeaderChunkShape); got != "8,8" {
		t.Errorf("%s = %q, want 8,8", HeaderChunkShape, got)
	}
	values := decodeFloat32(t, w.Body.Bytes())
	for i, v := range values {
		if v != float32(i) {
			t.Fatalf("values[%d] = %v, want %d", i, v, i)
		}
	}
}

func TestChunkErrors(t *testing.T) {
	s := newCubeServer(t)
	id := s.createCube(t).ID

	tests := []struct {
		name string
		path string
		want int
	}{
		{name: "non-integer index", path: "/cubes/" + id + "/variables/b04/chunks/0/a/0", want: http.StatusBadRequest},
		{name: "time out of range", path: "/cubes/" + id + "/variables/b04/chunks/3/0/0", want: http.StatusBadRequest},
		{name: "chunk out of range", path: "/cubes/" + id + "/variables/b04/chunks/0/2/0", want: http.StatusBadRequest},
		{name: "unknown variable", path: "/cubes/" + id + "/variables/b99/chunks/0/0/0", want: http.StatusNotFound},
		{name: "unknown cube", path: "/cubes/missing/variables/b04/chunks/0/0/0", want: http.StatusNotFound},
		{name: "slice out of range", path: "/cubes/" + id + "/variables/b04/slices/-1", want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodGet, tt.path, "")
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d, body = %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestCreateCubeErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		want     int
		wantCode string
	}{
		{name: "malformed json", body: "{", want: http.StatusBadRequest, wantCode: cubeerr.CodeInvalidRequest},
		{name: "unknown field", body: `{"product":"x","colour":"red"}`, want: http.StatusBadRequest, wantCode: cubeerr.CodeInvalidRequest},
		{name: "no data", body: "{}", err: cubeerr.ErrQueryEmpty, want: http.StatusNotFound, wantCode: cubeerr.CodeNoData},
		{name: "unknown variable", body: "{}", err: fmt.Errorf("%w: b99", cubeerr.ErrUnknownVariable), want: http.StatusBadRequest, wantCode: cubeerr.CodeUnknownVariable},
		{name: "grid ambiguity", body: "{}", err: cubeerr.ErrGridAmbiguity, want: http.StatusBadRequest, wantCode: cubeerr.CodeGridAmbiguity},
		{name: "incompatible grid", body: "{}", err: cubeerr.ErrIncompatibleGrid, want: http.StatusInternalServerError, wantCode: cubeerr.CodeInternal},
		{name: "catalog down", body: "{}", err: errors.New("connection refused"), want: http.StatusBadGateway, wantCode: cubeerr.CodeUpstream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, failingBuilder{err: tt.err})
			w := s.do(t, http.MethodPost, "/cubes", tt.body)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d, body = %s", w.Code, tt.want, w.Body.String())
			}
			var resp APIError
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", resp.Code, tt.wantCode)
			}
			if resp.RequestID == "" {
				t.Error("Expected request_id in error response")
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{err: cubestore.ErrNotFound, wantStatus: http.StatusNotFound, wantCode: ErrCodeNotFound},
		{err: fmt.Errorf("cube x: %w", cubestore.ErrExpired), wantStatus: http.StatusNotFound, wantCode: ErrCodeNotFound},
		{err: cubeerr.ErrQueryEmpty, wantStatus: http.StatusNotFound, wantCode: cubeerr.CodeNoData},
		{err: cubeerr.ErrUnresolvableMethod, wantStatus: http.StatusBadRequest, wantCode: cubeerr.CodeInvalidMethod},
		{err: cubeerr.ErrInvalidRequest, wantStatus: http.StatusBadRequest, wantCode: cubeerr.CodeInvalidRequest},
		{err: cubeerr.ErrIncompatibleGrid, wantStatus: http.StatusInternalServerError, wantCode: cubeerr.CodeInternal},
		{err: context.DeadlineExceeded, wantStatus: http.StatusBadGateway, wantCode: cubeerr.CodeUpstream},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			status, code := StatusFor(tt.err)
			if status != tt.wantStatus || code != tt.wantCode {
				t.Errorf("StatusFor() = (%d, %q), want (%d, %q)", status, code, tt.wantStatus, tt.wantCode)
			}
		})
	}
}

func TestRouterMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, failingBuilder{})
	w := s.do(t, http.MethodPut, "/products", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/nowhere", ""); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestRouterMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("cube_builds_total 1\n"))
	})
	h := NewHandlers(testRegistry(t), failingBuilder{}, cubestore.NewMemoryStore(time.Hour, time.Hour), testLogger())
	r := NewRouter(h, metrics, testLogger())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "cube_builds_total") {
		t.Errorf("GET /metrics = %d %q", w.Code, w.Body.String())
	}
}

func TestIntParams(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("t", "2")
	rctx.URLParams.Add("y", "x")
	r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))

	got, err := intParams(r, "t")
	if err != nil || got[0] != 2 {
		t.Errorf("intParams(t) = %v, %v", got, err)
	}
	if _, err := intParams(r, "t", "y"); err == nil {
		t.Error("expected error for non-integer y")
	}
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/robert-malhotra/stac-cube/internal/config"
	"github.com/robert-malhotra/stac-cube/internal/cube"
	"github.com/robert-malhotra/stac-cube/internal/cubeerr"
	"github.com/robert-malhotra/stac-cube/internal/cubestore"
	"github.com/robert-malhotra/stac-cube/internal/raster"
)

// Chunk response headers.
const (
	HeaderChunkShape  = "X-Chunk-Shape"
	HeaderChunkOffset = "X-Chunk-Offset"
	HeaderDataType    = "X-Data-Type"

	chunkContentType = "application/octet-stream"
	chunkDataType    = "float32"
)

// CubeBuilder plans cubes from requests.
type CubeBuilder interface {
	Build(ctx context.Context, req cube.Request) (*cube.Cube, error)
}

// Handlers contains all HTTP handlers of the service.
type Handlers struct {
	products *config.ProductRegistry
	builder  CubeBuilder
	store    cubestore.Store
	logger   *slog.Logger
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(products *config.ProductRegistry, builder CubeBuilder, store cubestore.Store, logger *slog.Logger) *Handlers {
	return &Handlers{
		products: products,
		builder:  builder,
		store:    store,
		logger:   logger,
	}
}

// Link is a hypermedia link in a JSON response.
type Link struct {
	Rel    string `json:"rel"`
	Href   string `json:"href"`
	Type   string `json:"type,omitempty"`
	Method string `json:"method,omitempty"`
}

// VariableSummary describes one variable of a product.
type VariableSummary struct {
	Name        string  `json:"name"`
	DataType    string  `json:"data_type"`
	Categorical bool    `json:"categorical,omitempty"`
	Resolution  float64 `json:"resolution,omitempty"`
}

// ProductSummary describes a product in listings.
type ProductSummary struct {
	ID                string            `json:"id"`
	Title             string            `json:"title"`
	Description       string            `json:"description,omitempty"`
	Collection        string            `json:"collection"`
	Irregular         bool              `json:"irregular"`
	NativeResolutions []float64         `json:"native_resolutions"`
	Variables         []VariableSummary `json:"variables"`
	License           string            `json:"license,omitempty"`
	Links             []Link            `json:"links"`
}

// CubeResponse is the JSON view of a stored cube.
type CubeResponse struct {
	cube.Metadata
	Links []Link `json:"links"`
}

// LandingPage lists the entry points of the service.
// GET /
func (h *Handlers) LandingPage(w http.ResponseWriter, r *http.Request) {
	base := baseURL(r)
	WriteJSON(w, http.StatusOK, map[string]any{
		"title":       "stac-cube",
		"description": "Daily mosaics of STAC catalog tiles assembled into lazy raster cubes",
		"links": []Link{
			{Rel: "self", Href: base + "/", Type: "application/json"},
			{Rel: "products", Href: base + "/products", Type: "application/json"},
			{Rel: "cubes", Href: base + "/cubes", Type: "application/json", Method: http.MethodPost},
			{Rel: "health", Href: base + "/health", Type: "application/json"},
		},
	})
}

// Health reports liveness.
// GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"products": h.products.Count(),
	})
}

// Products lists every configured product.
// GET /products
func (h *Handlers) Products(w http.ResponseWriter, r *http.Request) {
	base := baseURL(r)
	all := h.products.All()
	out := make([]ProductSummary, 0, len(all))
	for _, p := range all {
		out = append(out, summarize(p, base))
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"products": out,
		"links":    []Link{{Rel: "self", Href: base + "/products", Type: "application/json"}},
	})
}

// Product returns one product.
// GET /products/{productId}
func (h *Handlers) Product(w http.ResponseWriter, r *http.Request) {
	p := h.products.Get(chi.URLParam(r, "productId"))
	if p == nil {
		WriteNotFound(w, "product not found")
		return
	}
	WriteJSON(w, http.StatusOK, summarize(p, baseURL(r)))
}

func summarize(p *config.ProductConfig, base string) ProductSummary {
	s := ProductSummary{
		ID:                p.ID,
		Title:             p.Title,
		Description:       p.Description,
		Collection:        p.Collection,
		Irregular:         p.Irregular,
		NativeResolutions: p.NativeResolutions,
		Variables:         make([]VariableSummary, len(p.Variables)),
		License:           p.License,
		Links: []Link{
			{Rel: "self", Href: base + "/products/" + p.ID, Type: "application/json"},
		},
	}
	for i, v := range p.Variables {
		s.Variables[i] = VariableSummary{
			Name:        v.Name,
			DataType:    v.DataType,
			Categorical: v.Categorical,
			Resolution:  v.Resolution,
		}
	}
	return s
}

// CreateCube plans a cube and stores it.
// POST /cubes
func (h *Handlers) CreateCube(w http.ResponseWriter, r *http.Request) {
	var req cube.Request
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: malformed cube request: %v", cubeerr.ErrInvalidRequest, err))
		return
	}

	c, err := h.builder.Build(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.store.Put(c); err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := cubeResponse(c, baseURL(r))
	w.Header().Set("Location", resp.Links[0].Href)
	WriteJSON(w, http.StatusCreated, resp)
}

// GetCube returns the description of a stored cube.
// GET /cubes/{cubeId}
func (h *Handlers) GetCube(w http.ResponseWriter, r *http.Request) {
	c, err := h.store.Get(chi.URLParam(r, "cubeId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, cubeResponse(c, baseURL(r)))
}

// DeleteCube forgets a stored cube.
// DELETE /cubes/{cubeId}
func (h *Handlers) DeleteCube(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "cubeId")
	if _, err := h.store.Get(id); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.store.Delete(id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Chunk computes one chunk and writes it as little-endian float32 samples
// in row-major order. NaN marks missing data.
// GET /cubes/{cubeId}/variables/{variable}/chunks/{t}/{y}/{x}
func (h *Handlers) Chunk(w http.ResponseWriter, r *http.Request) {
	idx, err := intParams(r, "t", "y", "x")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	a, ok := h.array(w, r)
	if !ok {
		return
	}
	win, err := a.ChunkWindow(idx[1], idx[2])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out, err := a.Chunk(r.Context(), idx[0], idx[1], idx[2])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set(HeaderChunkOffset, fmt.Sprintf("%d,%d", win.Row, win.Col))
	writeRaster(w, out)
}

// Slice computes the full 2D raster of one time step.
// GET /cubes/{cubeId}/variables/{variable}/slices/{t}
func (h *Handlers) Slice(w http.ResponseWriter, r *http.Request) {
	idx, err := intParams(r, "t")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	a, ok := h.array(w, r)
	if !ok {
		return
	}
	out, err := a.Slice(r.Context(), idx[0])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeRaster(w, out)
}

func (h *Handlers) array(w http.ResponseWriter, r *http.Request) (*cube.Array, bool) {
	c, err := h.store.Get(chi.URLParam(r, "cubeId"))
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	a, err := c.Array(chi.URLParam(r, "variable"))
	if err != nil {
		WriteErrorWithRequestID(w, http.StatusNotFound, ErrCodeNotFound, err.Error(), GetRequestID(r.Context()))
		return nil, false
	}
	return a, true
}

func writeRaster(w http.ResponseWriter, out *raster.Raster) {
	body := out.Float32LE()
	w.Header().Set("Content-Type", chunkContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.Header().Set(HeaderChunkShape, fmt.Sprintf("%d,%d", out.Rows, out.Cols))
	w.Header().Set(HeaderDataType, chunkDataType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// writeError logs err and writes the matching error response.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := StatusFor(err)
	reqID := GetRequestID(r.Context())
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.LogAttrs(r.Context(), level, "request failed",
		slog.String("request_id", reqID),
		slog.String("code", code),
		slog.String("error", err.Error()),
	)

	msg := err.Error()
	if errors.Is(err, context.Canceled) {
		msg = "request cancelled"
	}
	WriteErrorWithRequestID(w, status, code, msg, reqID)
}

func cubeResponse(c *cube.Cube, base string) CubeResponse {
	self := base + "/cubes/" + c.ID
	links := []Link{
		{Rel: "self", Href: self, Type: "application/json"},
		{Rel: "product", Href: base + "/products/" + c.Product, Type: "application/json"},
	}
	for _, v := range c.Variables {
		links = append(links, Link{
			Rel:  "chunks",
			Href: self + "/variables/" + v + "/chunks/{t}/{y}/{x}",
			Type: chunkContentType,
		})
	}
	return CubeResponse{Metadata: c.Metadata(), Links: links}
}

func intParams(r *http.Request, names ...string) ([]int, error) {
	out := make([]int, len(names))
	for i, n := range names {
		v, err := strconv.Atoi(chi.URLParam(r, n))
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be an integer, got %q", cubeerr.ErrInvalidRequest, n, chi.URLParam(r, n))
		}
		out[i] = v
	}
	return out, nil
}

// baseURL derives the public root of the service from the request.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	return scheme + "://" + r.Host
}

// Package grid describes regular raster grids and decides how a cube request
// maps the native tile grids onto one shared target grid.
package grid

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/robert-malhotra/stac-cube/internal/crs"
)

// snapEpsilon absorbs floating point noise when rounding extents to whole
// pixels.
const snapEpsilon = 1e-6

// Spec is a north-up regular grid. The origin is the outer corner of the
// top-left pixel; rows increase southwards.
type Spec struct {
	CRS       crs.CRS `json:"-"`
	OriginX   float64 `json:"origin_x"`
	OriginY   float64 `json:"origin_y"`
	ResX      float64 `json:"res_x"`
	ResY      float64 `json:"res_y"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	ChunkSize int     `json:"chunk_size,omitempty"`
}

// Window is a pixel rectangle inside a grid.
type Window struct {
	Row, Col   int
	Rows, Cols int
}

// Empty reports whether the window covers no pixels.
func (w Window) Empty() bool {
	return w.Rows <= 0 || w.Cols <= 0
}

// Validate checks that the grid has positive size and resolution.
func (s Spec) Validate() error {
	if s.CRS.IsZero() {
		return fmt.Errorf("grid has no CRS")
	}
	if !(s.ResX > 0) || !(s.ResY > 0) {
		return fmt.Errorf("grid resolution must be positive, got %g x %g", s.ResX, s.ResY)
	}
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("grid size must be positive, got %d x %d", s.Width, s.Height)
	}
	if s.ChunkSize < 0 {
		return fmt.Errorf("chunk size must not be negative, got %d", s.ChunkSize)
	}
	return nil
}

// Bounds returns the outer extent of the grid.
func (s Spec) Bounds() crs.BBox {
	return crs.BBox{
		s.OriginX,
		s.OriginY - float64(s.Height)*s.ResY,
		s.OriginX + float64(s.Width)*s.ResX,
		s.OriginY,
	}
}

// PixelCenter returns the coordinates of the centre of pixel (row, col).
func (s Spec) PixelCenter(row, col int) (x, y float64) {
	return s.OriginX + (float64(col)+0.5)*s.ResX, s.OriginY - (float64(row)+0.5)*s.ResY
}

// Fractional returns the continuous pixel position of (x, y); the centre of
// pixel (0, 0) is (0.5, 0.5).
func (s Spec) Fractional(x, y float64) (row, col float64) {
	return (s.OriginY - y) / s.ResY, (x - s.OriginX) / s.ResX
}

// Equal reports whether the two grids describe the same pixels and chunking.
func (s Spec) Equal(o Spec) bool {
	return s.CRS.Equal(o.CRS) &&
		s.OriginX == o.OriginX && s.OriginY == o.OriginY &&
		s.ResX == o.ResX && s.ResY == o.ResY &&
		s.Width == o.Width && s.Height == o.Height &&
		s.ChunkSize == o.ChunkSize
}

// Fingerprint hashes every field of the grid.
func (s Spec) Fingerprint() uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(s.CRS.Code)
	var buf [8]byte
	for _, v := range []float64{s.OriginX, s.OriginY, s.ResX, s.ResY} {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		_, _ = d.Write(buf[:])
	}
	for _, v := range []int{s.Width, s.Height, s.ChunkSize} {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}

func (s Spec) chunk() int {
	if s.ChunkSize <= 0 {
		return max(s.Width, s.Height)
	}
	return s.ChunkSize
}

// ChunkCounts returns the number of chunk rows and columns.
func (s Spec) ChunkCounts() (rows, cols int) {
	c := s.chunk()
	return (s.Height + c - 1) / c, (s.Width + c - 1) / c
}

// ChunkWindow returns the pixel window of chunk (cy, cx). Edge chunks are
// truncated to the grid.
func (s Spec) ChunkWindow(cy, cx int) (Window, error) {
	ny, nx := s.ChunkCounts()
	if cy < 0 || cy >= ny || cx < 0 || cx >= nx {
		return Window{}, fmt.Errorf("chunk (%d, %d) outside %d x %d chunk grid", cy, cx, ny, nx)
	}
	c := s.chunk()
	w := Window{Row: cy * c, Col: cx * c, Rows: c, Cols: c}
	w.Rows = min(w.Rows, s.Height-w.Row)
	w.Cols = min(w.Cols, s.Width-w.Col)
	return w, nil
}

// Sub returns the grid covering window w of s. The result is not chunked.
func (s Spec) Sub(w Window) Spec {
	return Spec{
		CRS:     s.CRS,
		OriginX: s.OriginX + float64(w.Col)*s.ResX,
		OriginY: s.OriginY - float64(w.Row)*s.ResY,
		ResX:    s.ResX,
		ResY:    s.ResY,
		Width:   w.Cols,
		Height:  w.Rows,
	}
}

// Window returns the pixel window of s covering bbox, snapped outward to
// whole pixels and clipped to the grid.
func (s Spec) Window(bbox crs.BBox) Window {
	top, left := s.Fractional(bbox.MinX(), bbox.MaxY())
	bottom, right := s.Fractional(bbox.MaxX(), bbox.MinY())
	r0 := max(0, int(math.Floor(top+snapEpsilon)))
	c0 := max(0, int(math.Floor(left+snapEpsilon)))
	r1 := min(s.Height, int(math.Ceil(bottom-snapEpsilon)))
	c1 := min(s.Width, int(math.Ceil(right-snapEpsilon)))
	return Window{Row: r0, Col: c0, Rows: r1 - r0, Cols: c1 - c0}
}

// FromBBox builds a grid whose origin is the bbox's minimum x and whose
// extent covers the bbox rounded up to whole pixels.
func FromBBox(bbox crs.BBox, c crs.CRS, res float64, chunk int) Spec {
	w := int(math.Ceil(bbox.Width()/res - snapEpsilon))
	h := int(math.Ceil(bbox.Height()/res - snapEpsilon))
	w, h = max(w, 1), max(h, 1)
	return Spec{
		CRS:       c,
		OriginX:   bbox.MinX(),
		OriginY:   bbox.MinY() + float64(h)*res,
		ResX:      res,
		ResY:      res,
		Width:     w,
		Height:    h,
		ChunkSize: chunk,
	}
}

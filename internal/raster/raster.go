// Package raster holds owned 2D sample buffers with NaN as the no-data value.
package raster

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Raster is a row-major 2D buffer. Each Raster owns its Data slice.
type Raster struct {
	Rows, Cols int
	Data       []float64
}

// New allocates a raster filled with NaN.
func New(rows, cols int) *Raster {
	r := &Raster{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
	for i := range r.Data {
		r.Data[i] = math.NaN()
	}
	return r
}

// FromSlice wraps data, which must hold rows*cols samples.
func FromSlice(rows, cols int, data []float64) (*Raster, error) {
	if len(data) != rows*cols {
		return nil, fmt.Errorf("raster data has %d samples, want %d x %d", len(data), rows, cols)
	}
	return &Raster{Rows: rows, Cols: cols, Data: data}, nil
}

// At returns the sample at (row, col), or NaN outside the raster.
func (r *Raster) At(row, col int) float64 {
	if row < 0 || row >= r.Rows || col < 0 || col >= r.Cols {
		return math.NaN()
	}
	return r.Data[row*r.Cols+col]
}

// Set writes the sample at (row, col).
func (r *Raster) Set(row, col int, v float64) {
	r.Data[row*r.Cols+col] = v
}

// Clone returns a deep copy.
func (r *Raster) Clone() *Raster {
	c := &Raster{Rows: r.Rows, Cols: r.Cols, Data: make([]float64, len(r.Data))}
	copy(c.Data, r.Data)
	return c
}

// Valid returns the number of non-NaN samples.
func (r *Raster) Valid() int {
	n := 0
	for _, v := range r.Data {
		if !math.IsNaN(v) {
			n++
		}
	}
	return n
}

// Float32LE encodes the raster as little-endian float32 samples.
func (r *Raster) Float32LE() []byte {
	out := make([]byte, 4*len(r.Data))
	for i, v := range r.Data {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(float32(v)))
	}
	return out
}

// Geolocation holds per-pixel longitude and latitude of an irregular tile.
type Geolocation struct {
	Lon, Lat *Raster
}

// Validate checks that the arrays match and contain usable coordinates.
func (g Geolocation) Validate() error {
	if g.Lon == nil || g.Lat == nil {
		return fmt.Errorf("geolocation arrays missing")
	}
	if g.Lon.Rows != g.Lat.Rows || g.Lon.Cols != g.Lat.Cols {
		return fmt.Errorf("geolocation arrays differ in shape: %dx%d vs %dx%d", g.Lon.Rows, g.Lon.Cols, g.Lat.Rows, g.Lat.Cols)
	}
	if g.Lon.Rows < 2 || g.Lon.Cols < 2 {
		return fmt.Errorf("geolocation grid %dx%d is degenerate", g.Lon.Rows, g.Lon.Cols)
	}
	if g.Lon.Valid() == 0 || g.Lat.Valid() == 0 {
		return fmt.Errorf("geolocation arrays contain no valid coordinates")
	}
	return nil
}

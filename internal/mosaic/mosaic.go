// Package mosaic merges overlapping tile rasters that already share a target
// grid into one raster per variable.
package mosaic

import (
	"fmt"
	"math"
	"time"

	"github.com/robert-malhotra/stac-cube/internal/grid"
	"github.com/robert-malhotra/stac-cube/internal/raster"
)

// Layer is one tile's raster on the target grid. A nil Raster means the tile
// contributes nothing, e.g. it failed rectification or misses the window.
type Layer struct {
	TileID string
	Raster *raster.Raster
}

// Mosaic is the merged rasters of one solar day.
type Mosaic struct {
	Day       time.Time
	Grid      grid.Spec
	Variables map[string]*raster.Raster
	// Provenance lists the tiles of the day in priority order.
	Provenance []string
}

// Merge allocates a new NaN raster and fills it from layers in the given
// order. A pixel is written only while it still holds NaN, so the first
// valid value in priority order wins.
func Merge(rows, cols int, layers []Layer) (*raster.Raster, error) {
	out := raster.New(rows, cols)
	remaining := rows * cols
	for _, l := range layers {
		if l.Raster == nil {
			continue
		}
		if l.Raster.Rows != rows || l.Raster.Cols != cols {
			return nil, fmt.Errorf("layer %s is %dx%d, want %dx%d", l.TileID, l.Raster.Rows, l.Raster.Cols, rows, cols)
		}
		for i, v := range l.Raster.Data {
			if math.IsNaN(out.Data[i]) && !math.IsNaN(v) {
				out.Data[i] = v
				remaining--
			}
		}
		if remaining == 0 {
			break
		}
	}
	return out, nil
}

// LayerFunc returns the layers of one variable in priority order.
type LayerFunc func(variable string) ([]Layer, error)

// Build merges every variable of one day onto g. Each variable is merged
// into its own freshly allocated raster.
func Build(day time.Time, g grid.Spec, provenance, variables []string, layers LayerFunc) (*Mosaic, error) {
	m := &Mosaic{
		Day:        day,
		Grid:       g,
		Variables:  make(map[string]*raster.Raster, len(variables)),
		Provenance: append([]string(nil), provenance...),
	}
	for _, v := range variables {
		ls, err := layers(v)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", v, err)
		}
		r, err := Merge(g.Height, g.Width, ls)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", v, err)
		}
		m.Variables[v] = r
	}
	return m, nil
}

package cube

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robert-malhotra/stac-cube/internal/cubeerr"
	"github.com/robert-malhotra/stac-cube/internal/grid"
	"github.com/robert-malhotra/stac-cube/internal/lazy"
	"github.com/robert-malhotra/stac-cube/internal/method"
	"github.com/robert-malhotra/stac-cube/internal/mosaic"
	"github.com/robert-malhotra/stac-cube/internal/raster"
)

// Day describes one time step of a cube.
type Day struct {
	// Time is the solar day at midnight UTC.
	Time             time.Time `json:"time"`
	FirstAcquisition time.Time `json:"first_acquisition"`
	Zones            []string  `json:"zones"`
	// Tiles lists the contributing tiles in priority order.
	Tiles []string `json:"tiles"`
	Links []string `json:"links,omitempty"`
}

// Cube is a lazy time-major stack of daily mosaics. Its pixels are computed
// chunk by chunk on demand and memoised.
type Cube struct {
	ID        string
	Product   string
	Request   Request
	Grid      grid.Spec
	Path      string
	Variables []string
	Methods   map[string]method.Spec
	Days      []Day
	CreatedAt time.Time

	graph  *lazy.Graph
	engine *lazy.Engine
}

// Metadata is the JSON view of a cube.
type Metadata struct {
	ID          string                 `json:"id"`
	Product     string                 `json:"product"`
	Request     Request                `json:"request"`
	CRS         string                 `json:"crs"`
	Path        string                 `json:"path"`
	Grid        grid.Spec              `json:"grid"`
	Shape       [3]int                 `json:"shape"`
	Chunks      [3]int                 `json:"chunks"`
	ChunkCounts [3]int                 `json:"chunk_counts"`
	Variables   []string               `json:"variables"`
	Methods     map[string]method.Spec `json:"methods"`
	Days        []Day                  `json:"days"`
	Nodes       map[string]int         `json:"nodes"`
	CreatedAt   time.Time              `json:"created_at"`
}

// Metadata summarises c.
func (c *Cube) Metadata() Metadata {
	ny, nx := c.Grid.ChunkCounts()
	return Metadata{
		ID:          c.ID,
		Product:     c.Product,
		Request:     c.Request,
		CRS:         c.Grid.CRS.Code,
		Path:        c.Path,
		Grid:        c.Grid,
		Shape:       c.Shape(),
		Chunks:      [3]int{1, c.Grid.ChunkSize, c.Grid.ChunkSize},
		ChunkCounts: [3]int{len(c.Days), ny, nx},
		Variables:   c.Variables,
		Methods:     c.Methods,
		Days:        c.Days,
		Nodes:       c.graph.Kinds(),
		CreatedAt:   c.CreatedAt,
	}
}

// Shape returns the (time, y, x) shape shared by every variable.
func (c *Cube) Shape() [3]int {
	return [3]int{len(c.Days), c.Grid.Height, c.Grid.Width}
}

// Times returns the time coordinate.
func (c *Cube) Times() []time.Time {
	out := make([]time.Time, len(c.Days))
	for i, d := range c.Days {
		out[i] = d.Time
	}
	return out
}

// Array returns the lazy array of variable name.
func (c *Cube) Array(name string) (*Array, error) {
	for _, v := range c.Variables {
		if v == name {
			return &Array{cube: c, name: name}, nil
		}
	}
	return nil, fmt.Errorf("%w: %q is not a variable of cube %s", cubeerr.ErrUnknownVariable, name, c.ID)
}

// Mosaic computes every variable of time step t. Each slice is already the
// merge of the day's tiles and enters the mosaic as one layer named after
// them.
func (c *Cube) Mosaic(ctx context.Context, t int) (*mosaic.Mosaic, error) {
	if t < 0 || t >= len(c.Days) {
		return nil, fmt.Errorf("%w: time index %d outside [0, %d)", cubeerr.ErrInvalidRequest, t, len(c.Days))
	}
	day := c.Days[t]
	merged := strings.Join(day.Tiles, "+")
	return mosaic.Build(day.Time, c.Grid, day.Tiles, c.Variables, func(v string) ([]mosaic.Layer, error) {
		a, err := c.Array(v)
		if err != nil {
			return nil, err
		}
		r, err := a.Slice(ctx, t)
		if err != nil {
			return nil, err
		}
		return []mosaic.Layer{{TileID: merged, Raster: r}}, nil
	})
}

// Array is one variable of a cube.
type Array struct {
	cube *Cube
	name string
}

// Name returns the variable name.
func (a *Array) Name() string { return a.name }

// Shape returns the (time, y, x) shape.
func (a *Array) Shape() [3]int { return a.cube.Shape() }

// ChunkCounts returns the number of chunks along (time, y, x).
func (a *Array) ChunkCounts() [3]int {
	ny, nx := a.cube.Grid.ChunkCounts()
	return [3]int{len(a.cube.Days), ny, nx}
}

// ChunkWindow returns the pixel window of chunk (cy, cx).
func (a *Array) ChunkWindow(cy, cx int) (grid.Window, error) {
	w, err := a.cube.Grid.ChunkWindow(cy, cx)
	if err != nil {
		return grid.Window{}, fmt.Errorf("%w: %v", cubeerr.ErrInvalidRequest, err)
	}
	return w, nil
}

// Chunk computes chunk (t, cy, cx). The returned raster is shared with the
// cache and must not be modified.
func (a *Array) Chunk(ctx context.Context, t, cy, cx int) (*raster.Raster, error) {
	if t < 0 || t >= len(a.cube.Days) {
		return nil, fmt.Errorf("%w: time index %d outside [0, %d)", cubeerr.ErrInvalidRequest, t, len(a.cube.Days))
	}
	if _, err := a.ChunkWindow(cy, cx); err != nil {
		return nil, err
	}
	v, err := a.cube.engine.Compute(ctx, mosaicID(a.name, t, cy, cx))
	if err != nil {
		return nil, err
	}
	return v.(*raster.Raster), nil
}

// Slice computes the full 2D raster of time step t.
func (a *Array) Slice(ctx context.Context, t int) (*raster.Raster, error) {
	if t < 0 || t >= len(a.cube.Days) {
		return nil, fmt.Errorf("%w: time index %d outside [0, %d)", cubeerr.ErrInvalidRequest, t, len(a.cube.Days))
	}
	g := a.cube.Grid
	ny, nx := g.ChunkCounts()
	ids := make([]string, 0, ny*nx)
	windows := make([]grid.Window, 0, ny*nx)
	for cy := 0; cy < ny; cy++ {
		for cx := 0; cx < nx; cx++ {
			w, err := g.ChunkWindow(cy, cx)
			if err != nil {
				return nil, err
			}
			ids = append(ids, mosaicID(a.name, t, cy, cx))
			windows = append(windows, w)
		}
	}

	values, err := a.cube.engine.ComputeAll(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := raster.New(g.Height, g.Width)
	for i, v := range values {
		r := v.(*raster.Raster)
		w := windows[i]
		if r.Rows != w.Rows || r.Cols != w.Cols {
			return nil, fmt.Errorf("%w: chunk %s is %dx%d, want %dx%d", cubeerr.ErrIncompatibleGrid, ids[i], r.Rows, r.Cols, w.Rows, w.Cols)
		}
		for row := 0; row < w.Rows; row++ {
			copy(out.Data[(w.Row+row)*g.Width+w.Col:], r.Data[row*r.Cols:(row+1)*r.Cols])
		}
	}
	return out, nil
}

// Materialize computes every time step.
func (a *Array) Materialize(ctx context.Context) ([]*raster.Raster, error) {
	out := make([]*raster.Raster, len(a.cube.Days))
	for t := range a.cube.Days {
		r, err := a.Slice(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("time step %d: %w", t, err)
		}
		out[t] = r
	}
	return out, nil
}

// checkConsistency verifies that time steps are strictly increasing and that
// every day was planned on the same grid.
func checkConsistency(days []Day, grids []grid.Spec) error {
	if len(days) != len(grids) {
		return fmt.Errorf("%w: %d days but %d grids", cubeerr.ErrIncompatibleGrid, len(days), len(grids))
	}
	for i := 1; i < len(days); i++ {
		if !days[i].Time.After(days[i-1].Time) {
			return fmt.Errorf("%w: day %s does not follow %s", cubeerr.ErrIncompatibleGrid,
				days[i].Time.Format(time.DateOnly), days[i-1].Time.Format(time.DateOnly))
		}
		if grids[i].Fingerprint() != grids[0].Fingerprint() || !grids[i].Equal(grids[0]) {
			return fmt.Errorf("%w: day %s uses a different grid", cubeerr.ErrIncompatibleGrid,
				days[i].Time.Format(time.DateOnly))
		}
	}
	return nil
}

package resample

import (
	"fmt"
	"math"

	"github.com/robert-malhotra/stac-cube/internal/crs"
	"github.com/robert-malhotra/stac-cube/internal/cubeerr"
	"github.com/robert-malhotra/stac-cube/internal/grid"
	"github.com/robert-malhotra/stac-cube/internal/method"
	"github.com/robert-malhotra/stac-cube/internal/raster"
)

// Rectify bins every valid source pixel into the geographic cell containing
// its geolocation and reduces each cell with m. The output grid covers the
// valid geolocation extent.
func (k *Kernel) Rectify(src *raster.Raster, geo raster.Geolocation, res float64, m method.Aggregation) (*raster.Raster, grid.Spec, error) {
	if err := geo.Validate(); err != nil {
		return nil, grid.Spec{}, fmt.Errorf("%w: %v", cubeerr.ErrTileRectification, err)
	}
	if src.Rows != geo.Lon.Rows || src.Cols != geo.Lon.Cols {
		return nil, grid.Spec{}, fmt.Errorf("%w: raster %dx%d does not match geolocation %dx%d",
			cubeerr.ErrTileRectification, src.Rows, src.Cols, geo.Lon.Rows, geo.Lon.Cols)
	}
	if !(res > 0) {
		return nil, grid.Spec{}, fmt.Errorf("%w: resolution must be positive, got %g", cubeerr.ErrTileRectification, res)
	}

	bbox := crs.BBox{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	for i := range geo.Lon.Data {
		lon, lat := geo.Lon.Data[i], geo.Lat.Data[i]
		if math.IsNaN(lon) || math.IsNaN(lat) {
			continue
		}
		bbox[0] = math.Min(bbox[0], lon)
		bbox[1] = math.Min(bbox[1], lat)
		bbox[2] = math.Max(bbox[2], lon)
		bbox[3] = math.Max(bbox[3], lat)
	}
	// Pad by half a cell so edge pixels fall inside the grid.
	bbox = crs.BBox{bbox[0] - res/2, bbox[1] - res/2, bbox[2] + res/2, bbox[3] + res/2}
	g := grid.FromBBox(bbox, crs.WGS84, res, 0)

	bins := make([][]float64, g.Width*g.Height)
	for i, v := range src.Data {
		lon, lat := geo.Lon.Data[i], geo.Lat.Data[i]
		if math.IsNaN(v) || math.IsNaN(lon) || math.IsNaN(lat) {
			continue
		}
		fr, fc := g.Fractional(lon, lat)
		r, c := int(fr), int(fc)
		if r < 0 || c < 0 || r >= g.Height || c >= g.Width {
			continue
		}
		bins[r*g.Width+c] = append(bins[r*g.Width+c], v)
	}

	out := raster.New(g.Height, g.Width)
	for i, vals := range bins {
		if len(vals) > 0 {
			out.Data[i] = reduce(vals, m)
		}
	}
	if out.Valid() == 0 {
		return nil, grid.Spec{}, fmt.Errorf("%w: no valid pixels after rectification", cubeerr.ErrTileRectification)
	}
	return out, g, nil
}

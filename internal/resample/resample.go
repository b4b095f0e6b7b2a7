// Package resample defines the pixel resampling collaborator and provides a
// reference implementation of it.
package resample

import (
	"github.com/robert-malhotra/stac-cube/internal/grid"
	"github.com/robert-malhotra/stac-cube/internal/method"
	"github.com/robert-malhotra/stac-cube/internal/raster"
)

// Resampler moves rasters between grids. Implementations must not modify
// their inputs and must return freshly allocated rasters.
type Resampler interface {
	// Aggregate combines factor x factor blocks of src, in the CRS of src.
	Aggregate(src *raster.Raster, srcGrid grid.Spec, factor int, m method.Aggregation) (*raster.Raster, grid.Spec, error)

	// Warp samples src onto target, reprojecting when the CRSs differ.
	Warp(src *raster.Raster, srcGrid, target grid.Spec, m method.Interpolation) (*raster.Raster, error)

	// Rectify places a raster on an irregular geolocation grid onto a
	// regular geographic grid of the given resolution.
	Rectify(src *raster.Raster, geo raster.Geolocation, res float64, m method.Aggregation) (*raster.Raster, grid.Spec, error)
}

// Kernel is the built-in Resampler.
type Kernel struct{}

// NewKernel returns the built-in Resampler.
func NewKernel() *Kernel {
	return &Kernel{}
}

var _ Resampler = (*Kernel)(nil)

package cube

import (
	"math"

	"github.com/robert-malhotra/stac-cube/internal/grid"
	"github.com/robert-malhotra/stac-cube/internal/raster"
)

// alignTolerance is the fraction of a pixel under which two lattices are
// treated as aligned.
const alignTolerance = 1e-6

// aligned reports whether every pixel of dst coincides with a pixel of src.
func aligned(src, dst grid.Spec) bool {
	if !src.CRS.Equal(dst.CRS) || !grid.SameResolution(src.ResX, dst.ResX) || !grid.SameResolution(src.ResY, dst.ResY) {
		return false
	}
	return isWhole((dst.OriginX-src.OriginX)/src.ResX) && isWhole((src.OriginY-dst.OriginY)/src.ResY)
}

func isWhole(f float64) bool {
	return math.Abs(f-math.Round(f)) <= alignTolerance
}

// crop copies the pixels of dst out of src. Both grids must be aligned.
// Pixels of dst outside src are NaN.
func crop(src *raster.Raster, srcGrid, dst grid.Spec) *raster.Raster {
	rowOff := int(math.Round((srcGrid.OriginY - dst.OriginY) / srcGrid.ResY))
	colOff := int(math.Round((dst.OriginX - srcGrid.OriginX) / srcGrid.ResX))
	out := raster.New(dst.Height, dst.Width)
	for r := 0; r < dst.Height; r++ {
		sr := r + rowOff
		if sr < 0 || sr >= src.Rows {
			continue
		}
		for c := 0; c < dst.Width; c++ {
			sc := c + colOff
			if sc < 0 || sc >= src.Cols {
				continue
			}
			out.Data[r*dst.Width+c] = src.Data[sr*src.Cols+sc]
		}
	}
	return out
}

// aggregatedGrid is the grid Aggregate produces from g with factor.
func aggregatedGrid(g grid.Spec, factor int) grid.Spec {
	out := g
	out.ResX *= float64(factor)
	out.ResY *= float64(factor)
	out.Width = (g.Width + factor - 1) / factor
	out.Height = (g.Height + factor - 1) / factor
	out.ChunkSize = 0
	return out
}

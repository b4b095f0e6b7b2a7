package resample

import (
	"fmt"
	"math"

	"github.com/robert-malhotra/stac-cube/internal/crs"
	"github.com/robert-malhotra/stac-cube/internal/grid"
	"github.com/robert-malhotra/stac-cube/internal/method"
	"github.com/robert-malhotra/stac-cube/internal/raster"
)

// Warp samples src at the centre of every target pixel. Target pixels whose
// centre falls outside src are NaN.
func (k *Kernel) Warp(src *raster.Raster, srcGrid, target grid.Spec, m method.Interpolation) (*raster.Raster, error) {
	if src.Rows != srcGrid.Height || src.Cols != srcGrid.Width {
		return nil, fmt.Errorf("raster %dx%d does not match grid %dx%d", src.Rows, src.Cols, srcGrid.Height, srcGrid.Width)
	}
	toSrc, err := crs.Transformer(target.CRS, srcGrid.CRS)
	if err != nil {
		return nil, err
	}

	sample := sampler(m)
	out := raster.New(target.Height, target.Width)
	for r := 0; r < target.Height; r++ {
		for c := 0; c < target.Width; c++ {
			x, y := target.PixelCenter(r, c)
			sx, sy, err := toSrc(x, y)
			if err != nil {
				continue
			}
			fr, fc := srcGrid.Fractional(sx, sy)
			if fr < 0 || fc < 0 || fr >= float64(src.Rows) || fc >= float64(src.Cols) {
				continue
			}
			out.Set(r, c, sample(src, fr, fc))
		}
	}
	return out, nil
}

type sampleFunc func(src *raster.Raster, fr, fc float64) float64

func sampler(m method.Interpolation) sampleFunc {
	switch m {
	case method.InterpBilinear:
		return bilinear
	case method.InterpCubic:
		return bicubic
	default:
		return nearest
	}
}

func nearest(src *raster.Raster, fr, fc float64) float64 {
	return src.At(int(fr), int(fc))
}

// bilinear interpolates between the four surrounding pixel centres, ignoring
// NaN neighbours and renormalising the remaining weights.
func bilinear(src *raster.Raster, fr, fc float64) float64 {
	r, c := fr-0.5, fc-0.5
	r0, c0 := int(math.Floor(r)), int(math.Floor(c))
	dr, dc := r-float64(r0), c-float64(c0)

	var sum, wsum float64
	for _, n := range [4]struct {
		row, col int
		w        float64
	}{
		{r0, c0, (1 - dr) * (1 - dc)},
		{r0, c0 + 1, (1 - dr) * dc},
		{r0 + 1, c0, dr * (1 - dc)},
		{r0 + 1, c0 + 1, dr * dc},
	} {
		v := src.At(n.row, n.col)
		if math.IsNaN(v) || n.w == 0 {
			continue
		}
		sum += v * n.w
		wsum += n.w
	}
	if wsum == 0 {
		return nearest(src, fr, fc)
	}
	return sum / wsum
}

// bicubic uses a Catmull-Rom kernel over the surrounding 4x4 pixels and
// falls back to bilinear when any of them is NaN.
func bicubic(src *raster.Raster, fr, fc float64) float64 {
	r, c := fr-0.5, fc-0.5
	r0, c0 := int(math.Floor(r)), int(math.Floor(c))
	dr, dc := r-float64(r0), c-float64(c0)

	var sum float64
	for i := -1; i <= 2; i++ {
		wr := cubicWeight(float64(i) - dr)
		for j := -1; j <= 2; j++ {
			v := src.At(r0+i, c0+j)
			if math.IsNaN(v) {
				return bilinear(src, fr, fc)
			}
			sum += v * wr * cubicWeight(float64(j)-dc)
		}
	}
	return sum
}

func cubicWeight(x float64) float64 {
	const a = -0.5
	x = math.Abs(x)
	switch {
	case x <= 1:
		return (a+2)*x*x*x - (a+3)*x*x + 1
	case x < 2:
		return a*x*x*x - 5*a*x*x + 8*a*x - 4*a
	}
	return 0
}

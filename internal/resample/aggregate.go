package resample

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/robert-malhotra/stac-cube/internal/grid"
	"github.com/robert-malhotra/stac-cube/internal/method"
	"github.com/robert-malhotra/stac-cube/internal/raster"
)

// Aggregate combines factor x factor blocks of src. Edge blocks are partial.
// NaN samples are ignored; a block without valid samples is NaN, except for
// count which yields 0.
func (k *Kernel) Aggregate(src *raster.Raster, srcGrid grid.Spec, factor int, m method.Aggregation) (*raster.Raster, grid.Spec, error) {
	if factor < 1 {
		return nil, grid.Spec{}, fmt.Errorf("aggregation factor must be positive, got %d", factor)
	}
	rows := (src.Rows + factor - 1) / factor
	cols := (src.Cols + factor - 1) / factor
	out := raster.New(rows, cols)

	block := make([]float64, 0, factor*factor)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			block = block[:0]
			r0, c0 := r*factor, c*factor
			r1, c1 := min(r0+factor, src.Rows), min(c0+factor, src.Cols)
			for y := r0; y < r1; y++ {
				for x := c0; x < c1; x++ {
					if v := src.At(y, x); !math.IsNaN(v) {
						block = append(block, v)
					}
				}
			}
			if m == method.AggCenter {
				out.Set(r, c, src.At((r0+r1)/2, (c0+c1)/2))
				continue
			}
			out.Set(r, c, reduce(block, m))
		}
	}

	g := srcGrid
	g.ResX *= float64(factor)
	g.ResY *= float64(factor)
	g.Width, g.Height = cols, rows
	g.ChunkSize = 0
	return out, g, nil
}

// reduce applies m to the valid samples of one block. vals may be reordered.
func reduce(vals []float64, m method.Aggregation) float64 {
	if len(vals) == 0 {
		if m == method.AggCount {
			return 0
		}
		return math.NaN()
	}
	switch m {
	case method.AggFirst, method.AggCenter:
		return vals[0]
	case method.AggLast:
		return vals[len(vals)-1]
	case method.AggMin:
		return floats.Min(vals)
	case method.AggMax:
		return floats.Max(vals)
	case method.AggMean:
		return stat.Mean(vals, nil)
	case method.AggMedian:
		sort.Float64s(vals)
		if n := len(vals); n%2 == 0 {
			return (vals[n/2-1] + vals[n/2]) / 2
		}
		return stat.Quantile(0.5, stat.Empirical, vals, nil)
	case method.AggMode:
		return mode(vals)
	case method.AggSum:
		return floats.Sum(vals)
	case method.AggCount:
		return float64(len(vals))
	case method.AggStd:
		return stat.PopStdDev(vals, nil)
	case method.AggVar:
		return stat.PopVariance(vals, nil)
	case method.AggProd:
		return floats.Prod(vals)
	}
	return math.NaN()
}

// mode returns the most frequent value; ties go to the smallest value.
func mode(vals []float64) float64 {
	sort.Float64s(vals)
	best, bestN := vals[0], 0
	for i := 0; i < len(vals); {
		j := i
		for j < len(vals) && vals[j] == vals[i] {
			j++
		}
		if j-i > bestN {
			best, bestN = vals[i], j-i
		}
		i = j
	}
	return best
}

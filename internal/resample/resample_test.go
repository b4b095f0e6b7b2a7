package resample

import (
	"errors"
	"math"
	"testing"

	"github.com/robert-malhotra/stac-cube/internal/crs"
	"github.com/robert-malhotra/stac-cube/internal/cubeerr"
	"github.com/robert-malhotra/stac-cube/internal/grid"
	"github.com/robert-malhotra/stac-cube/internal/method"
	"github.com/robert-malhotra/stac-cube/internal/raster"
)

func mustRaster(t *testing.T, rows, cols int, data ...float64) *raster.Raster {
	t.Helper()
	r, err := raster.FromSlice(rows, cols, data)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func unitGrid(rows, cols int) grid.Spec {
	return grid.Spec{CRS: crs.WGS84, OriginX: 0, OriginY: float64(rows), ResX: 1, ResY: 1, Width: cols, Height: rows}
}

func TestAggregateMethods(t *testing.T) {
	nan := math.NaN()
	// One 3x3 block with a NaN in the middle of the top row.
	src := []float64{
		1, nan, 2,
		2, 4, 2,
		3, 5, 6,
	}

	tests := []struct {
		method method.Aggregation
		want   float64
	}{
		{method.AggCenter, 4},
		{method.AggFirst, 1},
		{method.AggLast, 6},
		{method.AggMin, 1},
		{method.AggMax, 6},
		{method.AggMean, 25.0 / 8},
		{method.AggMedian, 2.5},
		{method.AggMode, 2},
		{method.AggSum, 25},
		{method.AggCount, 8},
		{method.AggProd, 2880},
	}

	k := NewKernel()
	for _, tt := range tests {
		t.Run(string(tt.method), func(t *testing.T) {
			r := mustRaster(t, 3, 3, src...)
			out, g, err := k.Aggregate(r, unitGrid(3, 3), 3, tt.method)
			if err != nil {
				t.Fatal(err)
			}
			if out.Rows != 1 || out.Cols != 1 || g.ResX != 3 || g.Width != 1 {
				t.Fatalf("unexpected output shape %dx%d grid %+v", out.Rows, out.Cols, g)
			}
			if got := out.At(0, 0); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("got %v, want %v", got, tt.want)
			}
			if !math.IsNaN(r.At(0, 1)) || r.At(0, 0) != 1 {
				t.Error("input raster was modified")
			}
		})
	}
}

func TestAggregateStd(t *testing.T) {
	r := mustRaster(t, 2, 2, 1, 3, 1, 3)
	out, _, err := NewKernel().Aggregate(r, unitGrid(2, 2), 2, method.AggStd)
	if err != nil {
		t.Fatal(err)
	}
	if got := out.At(0, 0); math.Abs(got-1) > 1e-12 {
		t.Errorf("population std = %v, want 1", got)
	}
	out, _, _ = NewKernel().Aggregate(r, unitGrid(2, 2), 2, method.AggVar)
	if got := out.At(0, 0); math.Abs(got-1) > 1e-12 {
		t.Errorf("population variance = %v, want 1", got)
	}
}

func TestAggregatePartialBlocksAndEmpty(t *testing.T) {
	nan := math.NaN()
	r := mustRaster(t, 3, 3,
		nan, nan, 7,
		nan, nan, 7,
		1, 1, 1,
	)
	out, g, err := NewKernel().Aggregate(r, unitGrid(3, 3), 2, method.AggMean)
	if err != nil {
		t.Fatal(err)
	}
	if out.Rows != 2 || out.Cols != 2 || g.Width != 2 || g.Height != 2 {
		t.Fatalf("shape %dx%d", out.Rows, out.Cols)
	}
	if !math.IsNaN(out.At(0, 0)) {
		t.Errorf("all-NaN block = %v, want NaN", out.At(0, 0))
	}
	if out.At(0, 1) != 7 || out.At(1, 0) != 1 || out.At(1, 1) != 1 {
		t.Errorf("unexpected partial blocks %v", out.Data)
	}
}

func TestModeTieBreak(t *testing.T) {
	if got := mode([]float64{5, 3, 5, 3}); got != 3 {
		t.Errorf("mode tie = %v, want smallest value 3", got)
	}
}

func TestWarpIdentity(t *testing.T) {
	r := mustRaster(t, 2, 3, 1, 2, 3, 4, 5, 6)
	g := unitGrid(2, 3)
	for _, m := range method.Interpolations {
		t.Run(string(m), func(t *testing.T) {
			out, err := NewKernel().Warp(r, g, g, m)
			if err != nil {
				t.Fatal(err)
			}
			for i := range r.Data {
				if math.Abs(out.Data[i]-r.Data[i]) > 1e-12 {
					t.Fatalf("sample %d = %v, want %v", i, out.Data[i], r.Data[i])
				}
			}
		})
	}
}

func TestWarpUpsampleAndOutside(t *testing.T) {
	r := mustRaster(t, 1, 2, 0, 10)
	src := unitGrid(1, 2)
	target := grid.Spec{CRS: crs.WGS84, OriginX: 0, OriginY: 1, ResX: 0.5, ResY: 0.5, Width: 6, Height: 2}

	out, err := NewKernel().Warp(r, src, target, method.InterpNearest)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{0, 0, 10, 10}
	for c, w := range want {
		if out.At(0, c) != w {
			t.Errorf("col %d = %v, want %v", c, out.At(0, c), w)
		}
	}
	if !math.IsNaN(out.At(0, 4)) || !math.IsNaN(out.At(1, 5)) {
		t.Error("pixels outside the source should be NaN")
	}

	out, err = NewKernel().Warp(r, src, target, method.InterpBilinear)
	if err != nil {
		t.Fatal(err)
	}
	// Centre x=0.75 lies a quarter of the way from the first to the second pixel centre.
	if got := out.At(0, 1); math.Abs(got-2.5) > 1e-9 {
		t.Errorf("bilinear sample = %v, want 2.5", got)
	}
}

func TestRectify(t *testing.T) {
	lon := mustRaster(t, 2, 2, 10.0, 10.1, 10.0, 10.1)
	lat := mustRaster(t, 2, 2, 50.1, 50.1, 50.0, 50.0)
	src := mustRaster(t, 2, 2, 1, 2, 3, 4)

	out, g, err := NewKernel().Rectify(src, raster.Geolocation{Lon: lon, Lat: lat}, 0.1, method.AggMean)
	if err != nil {
		t.Fatal(err)
	}
	if !g.CRS.Equal(crs.WGS84) {
		t.Errorf("rectified CRS = %s", g.CRS)
	}
	if out.Valid() != 4 {
		t.Errorf("expected 4 valid cells, got %d (%dx%d)", out.Valid(), out.Rows, out.Cols)
	}
	if got := out.At(0, 0); got != 1 {
		t.Errorf("north-west cell = %v, want 1", got)
	}
}

func TestRectifyDegenerate(t *testing.T) {
	nan := math.NaN()
	lon := mustRaster(t, 2, 2, nan, nan, nan, nan)
	lat := mustRaster(t, 2, 2, nan, nan, nan, nan)
	_, _, err := NewKernel().Rectify(raster.New(2, 2), raster.Geolocation{Lon: lon, Lat: lat}, 0.1, method.AggMean)
	if !errors.Is(err, cubeerr.ErrTileRectification) {
		t.Errorf("expected ErrTileRectification, got %v", err)
	}
}

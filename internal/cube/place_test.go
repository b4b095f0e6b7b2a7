package cube

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/robert-malhotra/stac-cube/internal/crs"
	"github.com/robert-malhotra/stac-cube/internal/grid"
	"github.com/robert-malhotra/stac-cube/internal/method"
	"github.com/robert-malhotra/stac-cube/internal/raster"
	"github.com/robert-malhotra/stac-cube/internal/resample"
)

func TestAligned(t *testing.T) {
	src := grid.Spec{CRS: utm32, OriginX: 1000, OriginY: 2000, ResX: 10, ResY: 10, Width: 10, Height: 10}

	tests := []struct {
		name string
		dst  grid.Spec
		want bool
	}{
		{"same", src, true},
		{"whole pixel offset", grid.Spec{CRS: utm32, OriginX: 1030, OriginY: 1980, ResX: 10, ResY: 10, Width: 2, Height: 2}, true},
		{"offset beyond source", grid.Spec{CRS: utm32, OriginX: 900, OriginY: 2100, ResX: 10, ResY: 10, Width: 2, Height: 2}, true},
		{"half pixel offset", grid.Spec{CRS: utm32, OriginX: 1005, OriginY: 2000, ResX: 10, ResY: 10, Width: 2, Height: 2}, false},
		{"different resolution", grid.Spec{CRS: utm32, OriginX: 1000, OriginY: 2000, ResX: 20, ResY: 20, Width: 2, Height: 2}, false},
		{"different crs", grid.Spec{CRS: crs.WGS84, OriginX: 1000, OriginY: 2000, ResX: 10, ResY: 10, Width: 2, Height: 2}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := aligned(src, tt.dst); got != tt.want {
				t.Errorf("aligned() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCrop(t *testing.T) {
	srcGrid := grid.Spec{CRS: utm32, OriginX: 0, OriginY: 40, ResX: 10, ResY: 10, Width: 4, Height: 4}
	src := raster.New(4, 4)
	for i := range src.Data {
		src.Data[i] = float64(i)
	}

	// One pixel right and down of the source, hanging off its far corner.
	dst := grid.Spec{CRS: utm32, OriginX: 10, OriginY: 30, ResX: 10, ResY: 10, Width: 4, Height: 4}
	got := crop(src, srcGrid, dst)

	want := []float64{
		5, 6, 7, nan,
		9, 10, 11, nan,
		13, 14, 15, nan,
		nan, nan, nan, nan,
	}
	if diff := cmp.Diff(want, got.Data, cmp.Comparer(func(a, b float64) bool {
		return a == b || (math.IsNaN(a) && math.IsNaN(b))
	})); diff != "" {
		t.Errorf("crop mismatch (-want +got):\n%s", diff)
	}
	if src.Data[5] != 5 {
		t.Error("crop modified its input")
	}
}

func TestAggregatedGridMatchesKernel(t *testing.T) {
	g := grid.Spec{CRS: utm32, OriginX: 300000, OriginY: 5100000, ResX: 10, ResY: 10, Width: 11, Height: 7, ChunkSize: 4}
	for _, factor := range []int{2, 3, 6} {
		_, got, err := resample.NewKernel().Aggregate(raster.New(g.Height, g.Width), g, factor, method.AggMean)
		if err != nil {
			t.Fatal(err)
		}
		if want := aggregatedGrid(g, factor); !want.Equal(got) {
			t.Errorf("factor %d: predicted %+v, kernel produced %+v", factor, want, got)
		}
	}
}

package grid

import (
	"fmt"
	"math"

	"github.com/robert-malhotra/stac-cube/internal/crs"
)

// StepKind names one resampling operation.
type StepKind string

// Resampling operations in the order they may appear in a plan.
const (
	StepRectify   StepKind = "rectify"
	StepAggregate StepKind = "aggregate"
	StepWarp      StepKind = "warp"
)

// Step is one resampling operation applied to a tile raster.
type Step struct {
	Kind StepKind
	// Factor is the block size of an aggregate step.
	Factor int
	// Resolution is the output pixel size of the step in the CRS the step
	// produces.
	Resolution float64
}

func (s Step) String() string {
	switch s.Kind {
	case StepAggregate:
		return fmt.Sprintf("aggregate(x%d -> %g)", s.Factor, s.Resolution)
	default:
		return fmt.Sprintf("%s(%g)", s.Kind, s.Resolution)
	}
}

// Plan is the ordered list of steps that brings one tile variable onto the
// target grid.
type Plan struct {
	Steps []Step
	// Reproject is true when the warp step changes CRS.
	Reproject bool
	// Downsample is true when the target is coarser than the source.
	Downsample bool
}

// Kinds returns the step kinds in order.
func (p Plan) Kinds() []StepKind {
	kinds := make([]StepKind, len(p.Steps))
	for i, s := range p.Steps {
		kinds[i] = s.Kind
	}
	return kinds
}

// EquivalentResolution expresses the target pixel size in units of src by
// transforming the target extent into src.
func EquivalentResolution(target Spec, src crs.CRS) (float64, error) {
	if target.CRS.Equal(src) {
		return target.ResX, nil
	}
	b, err := crs.ReprojectBBox(target.Bounds(), target.CRS, src, 0)
	if err != nil {
		return 0, err
	}
	rx := b.Width() / float64(target.Width)
	ry := b.Height() / float64(target.Height)
	return math.Min(rx, ry), nil
}

// PlanResample plans the steps for a regular source grid. When the target is
// coarser than the source, the source is first block-aggregated in its own
// CRS by the largest whole factor not exceeding the ratio, and only then
// warped. Otherwise a single warp interpolates directly onto the target.
func PlanResample(src, target Spec) (Plan, error) {
	equiv, err := EquivalentResolution(target, src.CRS)
	if err != nil {
		return Plan{}, fmt.Errorf("planning resample from %s to %s: %w", src.CRS, target.CRS, err)
	}
	p := Plan{Reproject: !src.CRS.Equal(target.CRS)}

	if factor := int(math.Floor(equiv/src.ResX + snapEpsilon)); factor >= 2 {
		p.Downsample = true
		p.Steps = append(p.Steps, Step{Kind: StepAggregate, Factor: factor, Resolution: src.ResX * float64(factor)})
	}
	p.Steps = append(p.Steps, Step{Kind: StepWarp, Resolution: target.ResX})
	return p, nil
}

// PlanRectify plans the steps for a tile on an irregular geolocation grid
// whose native pixel size, in units of the geographic CRS, is nativeRes.
// Rectification targets the coarser of the native and the target-equivalent
// resolution, so downsampling happens before the warp onto the target.
func PlanRectify(nativeRes float64, target Spec) (Plan, error) {
	equiv, err := EquivalentResolution(target, crs.WGS84)
	if err != nil {
		return Plan{}, fmt.Errorf("planning rectification onto %s: %w", target.CRS, err)
	}
	res := nativeRes
	p := Plan{Reproject: !target.CRS.Equal(crs.WGS84)}
	if equiv > nativeRes*(1+snapEpsilon) {
		res = equiv
		p.Downsample = true
	}
	p.Steps = []Step{
		{Kind: StepRectify, Resolution: res},
		{Kind: StepWarp, Resolution: target.ResX},
	}
	return p, nil
}

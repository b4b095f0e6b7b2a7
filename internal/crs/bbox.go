package crs

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
)

// densifyPoints is the number of points sampled along each bbox edge when
// transforming it to another CRS.
const densifyPoints = 21

// BBox is an axis-aligned box [minx, miny, maxx, maxy].
type BBox [4]float64

// MinX returns the west edge.
func (b BBox) MinX() float64 { return b[0] }

// MinY returns the south edge.
func (b BBox) MinY() float64 { return b[1] }

// MaxX returns the east edge.
func (b BBox) MaxX() float64 { return b[2] }

// MaxY returns the north edge.
func (b BBox) MaxY() float64 { return b[3] }

// Width returns the x extent.
func (b BBox) Width() float64 { return b[2] - b[0] }

// Height returns the y extent.
func (b BBox) Height() float64 { return b[3] - b[1] }

// Center returns the centre point.
func (b BBox) Center() (x, y float64) {
	return (b[0] + b[2]) / 2, (b[1] + b[3]) / 2
}

// Valid reports whether the box has positive, finite extent.
func (b BBox) Valid() bool {
	for _, v := range b {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b[2] > b[0] && b[3] > b[1]
}

// Bounds converts the box to geom bounds.
func (b BBox) Bounds() *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: b[0], Y: b[1]},
		Max: geom.Point{X: b[2], Y: b[3]},
	}
}

// FromBounds converts geom bounds to a box.
func FromBounds(g *geom.Bounds) BBox {
	return BBox{g.Min.X, g.Min.Y, g.Max.X, g.Max.Y}
}

// Intersects reports whether the two boxes share any area or edge.
func (b BBox) Intersects(o BBox) bool {
	return b.Bounds().Overlaps(o.Bounds())
}

// Intersection returns the overlapping box and whether it is non-empty.
func (b BBox) Intersection(o BBox) (BBox, bool) {
	out := BBox{
		math.Max(b[0], o[0]),
		math.Max(b[1], o[1]),
		math.Min(b[2], o[2]),
		math.Min(b[3], o[3]),
	}
	return out, out[2] > out[0] && out[3] > out[1]
}

// ReprojectBBox transforms bbox from src to dst by sampling densifyPoints
// along every edge. A positive buffer grows the result by that fraction of
// its width and height. For geographic targets an x-min greater than x-max
// means the box crosses the antimeridian; 360 is added to x-max.
func ReprojectBBox(bbox BBox, src, dst CRS, buffer float64) (BBox, error) {
	out := bbox
	if !src.Equal(dst) {
		t, err := Transformer(src, dst)
		if err != nil {
			return BBox{}, err
		}
		out = BBox{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
		for _, p := range densifyEdges(bbox) {
			x, y, err := t(p.X, p.Y)
			if err != nil {
				return BBox{}, fmt.Errorf("transforming (%g, %g) from %s to %s: %w", p.X, p.Y, src, dst, err)
			}
			if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
				continue
			}
			out[0] = math.Min(out[0], x)
			out[1] = math.Min(out[1], y)
			out[2] = math.Max(out[2], x)
			out[3] = math.Max(out[3], y)
		}
		if math.IsInf(out[0], 1) {
			return BBox{}, fmt.Errorf("bbox %v has no valid points in %s", bbox, dst)
		}
	}

	if dst.Geographic && out[0] > out[2] {
		out[2] += 360
	}
	if buffer > 0 {
		dx := out.Width() * buffer
		dy := out.Height() * buffer
		out = BBox{out[0] - dx, out[1] - dy, out[2] + dx, out[3] + dy}
	}
	return out, nil
}

// densifyEdges returns the points along the four edges of b, corners
// included once per edge.
func densifyEdges(b BBox) []geom.Point {
	pts := make([]geom.Point, 0, 4*densifyPoints)
	for i := 0; i < densifyPoints; i++ {
		f := float64(i) / float64(densifyPoints-1)
		x := b[0] + f*b.Width()
		y := b[1] + f*b.Height()
		pts = append(pts,
			geom.Point{X: x, Y: b[1]},
			geom.Point{X: x, Y: b[3]},
			geom.Point{X: b[0], Y: y},
			geom.Point{X: b[2], Y: y},
		)
	}
	return pts
}

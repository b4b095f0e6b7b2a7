// Package geojson provides GeoJSON geometry types and utilities for tile
// footprints and search areas.
package geojson

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/ctessum/geom"
)

// Geometry types handled by this package.
const (
	TypePoint        = "Point"
	TypePolygon      = "Polygon"
	TypeMultiPolygon = "MultiPolygon"
)

// Geometry represents a GeoJSON geometry object.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Point returns the coordinates as a Point [lon, lat].
// Returns error if geometry is not a Point.
func (g *Geometry) Point() ([]float64, error) {
	if g.Type != TypePoint {
		return nil, fmt.Errorf("geometry is not a Point, got %s", g.Type)
	}
	var coords []float64
	if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
		return nil, fmt.Errorf("failed to unmarshal Point coordinates: %w", err)
	}
	if len(coords) < 2 {
		return nil, fmt.Errorf("invalid Point coordinates: expected at least 2 values, got %d", len(coords))
	}
	return coords, nil
}

// Polygon returns the coordinates as a Polygon [][][lon, lat].
// Returns error if geometry is not a Polygon.
func (g *Geometry) Polygon() ([][][]float64, error) {
	if g.Type != TypePolygon {
		return nil, fmt.Errorf("geometry is not a Polygon, got %s", g.Type)
	}
	var coords [][][]float64
	if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
		return nil, fmt.Errorf("failed to unmarshal Polygon coordinates: %w", err)
	}
	return coords, nil
}

// MultiPolygon returns the coordinates as a MultiPolygon [][][][lon, lat].
// Returns error if geometry is not a MultiPolygon.
func (g *Geometry) MultiPolygon() ([][][][]float64, error) {
	if g.Type != TypeMultiPolygon {
		return nil, fmt.Errorf("geometry is not a MultiPolygon, got %s", g.Type)
	}
	var coords [][][][]float64
	if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
		return nil, fmt.Errorf("failed to unmarshal MultiPolygon coordinates: %w", err)
	}
	return coords, nil
}

// ToGeom converts the geometry to its ctessum/geom form.
func (g *Geometry) ToGeom() (geom.Geom, error) {
	if g == nil {
		return nil, fmt.Errorf("geometry is nil")
	}
	switch g.Type {
	case TypePoint:
		c, err := g.Point()
		if err != nil {
			return nil, err
		}
		return geom.Point{X: c[0], Y: c[1]}, nil
	case TypePolygon:
		c, err := g.Polygon()
		if err != nil {
			return nil, err
		}
		return toPolygon(c), nil
	case TypeMultiPolygon:
		c, err := g.MultiPolygon()
		if err != nil {
			return nil, err
		}
		mp := make(geom.MultiPolygon, len(c))
		for i, p := range c {
			mp[i] = toPolygon(p)
		}
		return mp, nil
	default:
		return nil, fmt.Errorf("unsupported geometry type: %s", g.Type)
	}
}

func toPolygon(rings [][][]float64) geom.Polygon {
	p := make(geom.Polygon, 0, len(rings))
	for _, ring := range rings {
		path := make(geom.Path, 0, len(ring))
		for _, pt := range ring {
			if len(pt) < 2 {
				continue
			}
			path = append(path, geom.Point{X: pt[0], Y: pt[1]})
		}
		p = append(p, path)
	}
	return p
}

// BBox computes the bounding box of the geometry.
// Returns [west, south, east, north].
func (g *Geometry) BBox() ([]float64, error) {
	return ComputeBBox(g)
}

// ComputeBBox computes the bounding box of a geometry as
// [west, south, east, north]. A MultiPolygon split at the antimeridian
// yields west > east, as in RFC 7946 section 5.2.
func ComputeBBox(g *Geometry) ([]float64, error) {
	gm, err := g.ToGeom()
	if err != nil {
		return nil, err
	}
	b := gm.Bounds()
	if b == nil || math.IsInf(b.Min.X, 0) || math.IsInf(b.Min.Y, 0) || math.IsNaN(b.Min.X) {
		return nil, fmt.Errorf("failed to compute bounding box: no valid coordinates found")
	}

	if mp, ok := gm.(geom.MultiPolygon); ok && crossesAntimeridian(mp) {
		west, east := math.Inf(1), math.Inf(-1)
		for _, p := range mp {
			pb := p.Bounds()
			if pb.Min.X >= 0 {
				west = math.Min(west, pb.Min.X)
			} else {
				east = math.Max(east, pb.Max.X)
			}
		}
		return []float64{west, b.Min.Y, east, b.Max.Y}, nil
	}
	return []float64{b.Min.X, b.Min.Y, b.Max.X, b.Max.Y}, nil
}

// crossesAntimeridian reports whether mp has parts touching both +180 and
// -180.
func crossesAntimeridian(mp geom.MultiPolygon) bool {
	var east, west bool
	for _, p := range mp {
		b := p.Bounds()
		east = east || b.Max.X >= 180
		west = west || b.Min.X <= -180
	}
	return east && west
}

// NewPolygonFromBBox creates a polygon geometry from a bounding box.
// bbox should be [west, south, east, north]. An east edge beyond 180, or a
// west edge greater than the east edge, describes a box crossing the
// antimeridian and yields a MultiPolygon split at 180.
func NewPolygonFromBBox(bbox []float64) (*Geometry, error) {
	if len(bbox) != 4 {
		return nil, fmt.Errorf("bbox must have 4 values [west, south, east, north], got %d", len(bbox))
	}

	west, south, east, north := bbox[0], bbox[1], bbox[2], bbox[3]
	if west > east {
		east += 360
	}

	if east <= 180 {
		return newGeometry(TypePolygon, rectangle(west, south, east, north))
	}
	return newGeometry(TypeMultiPolygon, [][][][]float64{
		rectangle(west, south, 180, north),
		rectangle(-180, south, east-360, north),
	})
}

func rectangle(west, south, east, north float64) [][][]float64 {
	return [][][]float64{{
		{west, south},
		{east, south},
		{east, north},
		{west, north},
		{west, south},
	}}
}

func newGeometry(typ string, coords any) (*Geometry, error) {
	data, err := json.Marshal(coords)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s coordinates: %w", typ, err)
	}
	return &Geometry{Type: typ, Coordinates: data}, nil
}

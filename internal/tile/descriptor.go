// Package tile models the tiles returned by a catalog search and groups them
// into per-day, per-zone mosaic groups.
package tile

import (
	"sort"
	"time"

	"github.com/robert-malhotra/stac-cube/internal/crs"
	"github.com/robert-malhotra/stac-cube/internal/grid"
)

// Asset references the raster of one variable of a tile.
type Asset struct {
	Variable string
	Href     string
	// DataType is the sample type on disk, e.g. "uint8" or "float32".
	DataType string
	// Categorical marks classification layers.
	Categorical bool
	// Grid is the native pixel grid of the asset. For irregular products
	// only Width and Height are meaningful.
	Grid grid.Spec
	// NoData is the on-disk fill value, if any.
	NoData *float64
}

// Resolution returns the native pixel size of the asset.
func (a Asset) Resolution() float64 {
	return a.Grid.ResX
}

// Geolocation references the longitude and latitude arrays of an irregular
// tile.
type Geolocation struct {
	LonHref string
	LatHref string
	Width   int
	Height  int
}

// Descriptor is one tile returned by the catalog. It is immutable once
// built.
type Descriptor struct {
	ID   string
	Time time.Time
	// Day is the solar-day key at midnight UTC.
	Day time.Time
	CRS crs.CRS
	// Footprint is the tile extent in its native CRS.
	Footprint crs.BBox
	// BBoxWGS84 is the tile extent in geographic coordinates.
	BBoxWGS84 crs.BBox
	Assets    map[string]Asset
	// Geolocation is set for tiles stored on an irregular grid.
	Geolocation *Geolocation
	SelfLink    string
}

// NewDescriptor builds a descriptor and derives its solar day from the centre
// of its geographic bbox.
func NewDescriptor(id string, t time.Time, c crs.CRS, footprint, wgs84 crs.BBox, assets map[string]Asset) Descriptor {
	lon, _ := wgs84.Center()
	return Descriptor{
		ID:        id,
		Time:      t.UTC(),
		Day:       SolarDay(t, lon),
		CRS:       c,
		Footprint: footprint,
		BBoxWGS84: wgs84,
		Assets:    assets,
	}
}

// Variables returns the variable names of the tile in sorted order.
func (d Descriptor) Variables() []string {
	names := make([]string, 0, len(d.Assets))
	for name := range d.Assets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Asset returns the asset of variable name.
func (d Descriptor) Asset(name string) (Asset, bool) {
	a, ok := d.Assets[name]
	return a, ok
}

// Irregular reports whether the tile needs rectification.
func (d Descriptor) Irregular() bool {
	return d.Geolocation != nil
}

// ZeroSized reports whether any native grid dimension is at most one pixel.
func (d Descriptor) ZeroSized() bool {
	if d.Geolocation != nil {
		return d.Geolocation.Width <= 1 || d.Geolocation.Height <= 1
	}
	for _, a := range d.Assets {
		if a.Grid.Width <= 1 || a.Grid.Height <= 1 {
			return true
		}
	}
	return false
}

// Less orders tiles by acquisition time, then id.
func Less(a, b Descriptor) bool {
	if !a.Time.Equal(b.Time) {
		return a.Time.Before(b.Time)
	}
	return a.ID < b.ID
}

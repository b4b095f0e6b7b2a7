package grid

import (
	"fmt"
	"math"

	"github.com/robert-malhotra/stac-cube/internal/crs"
	"github.com/robert-malhotra/stac-cube/internal/cubeerr"
)

// resolutionTolerance is the relative difference under which two resolutions
// are considered equal.
const resolutionTolerance = 1e-9

// Request is the spatial part of a cube request.
type Request struct {
	// BBox is expressed in BBoxCRS.
	BBox    crs.BBox
	BBoxCRS crs.CRS
	CRS     crs.Request
	// Resolution is in units of the target CRS.
	Resolution float64
	TileSize   int
	// Limits bound the size of the target grid.
	Limits Limits
}

// Limits bound the size of a target grid. Zero fields are unlimited.
type Limits struct {
	MaxPixels int64
	MaxChunks int64
}

// DefaultLimits allow about a gigapixel per time step.
var DefaultLimits = Limits{MaxPixels: 1 << 30, MaxChunks: 100_000}

// Check returns ErrGridAmbiguity when a grid covering bbox at res with
// chunk-sized tiles would exceed l. Sizes are computed in floating point so
// absurd requests cannot overflow.
func (l Limits) Check(bbox crs.BBox, res float64, chunk int) error {
	w := math.Max(math.Ceil(bbox.Width()/res-snapEpsilon), 1)
	h := math.Max(math.Ceil(bbox.Height()/res-snapEpsilon), 1)
	if l.MaxPixels > 0 && w*h > float64(l.MaxPixels) {
		return fmt.Errorf("%w: grid of %.0fx%.0f pixels exceeds the limit of %d", cubeerr.ErrGridAmbiguity, w, h, l.MaxPixels)
	}
	if chunk > 0 && l.MaxChunks > 0 {
		c := float64(chunk)
		if n := math.Ceil(w/c) * math.Ceil(h/c); n > float64(l.MaxChunks) {
			return fmt.Errorf("%w: grid of %.0f chunks exceeds the limit of %d", cubeerr.ErrGridAmbiguity, n, l.MaxChunks)
		}
	}
	return nil
}

// Zone summarises the tiles of one native CRS found by the search.
type Zone struct {
	CRS crs.CRS
	// Irregular zones hold tiles that need rectification and can never use
	// the native grid directly.
	Irregular bool
	// Resolutions are the native pixel sizes offered by the product.
	Resolutions []float64
	// AnchorX and AnchorY are a corner of the native pixel lattice, usually
	// the origin of the first tile in priority order.
	AnchorX, AnchorY float64
}

// Decision is the outcome of Resolve: either NativeCrop or Reprojected.
type Decision interface {
	Target() Spec
	String() string
	decision()
}

// NativeCrop keeps the native pixel lattice of a single zone, cropped to the
// request bbox.
type NativeCrop struct {
	Grid Spec
	Zone Zone
}

// Target returns the cropped native grid.
func (n NativeCrop) Target() Spec { return n.Grid }

func (n NativeCrop) String() string { return "native" }

func (NativeCrop) decision() {}

// Reprojected places every tile onto a grid computed from the request.
type Reprojected struct {
	Grid Spec
}

// Target returns the request grid.
func (r Reprojected) Target() Spec { return r.Grid }

func (r Reprojected) String() string { return "reprojected" }

func (Reprojected) decision() {}

// Resolve picks the grid path for a whole cube. The native path applies when
// the search found a single regular zone, the requested CRS is that zone's
// CRS or the native sentinel, and the requested resolution is one of the
// zone's native resolutions. Everything else is reprojected.
func Resolve(req Request, zones []Zone) (Decision, error) {
	if !(req.Resolution > 0) || math.IsInf(req.Resolution, 0) {
		return nil, fmt.Errorf("%w: resolution must be positive, got %g", cubeerr.ErrGridAmbiguity, req.Resolution)
	}
	if req.TileSize <= 0 {
		return nil, fmt.Errorf("%w: tile size must be positive, got %d", cubeerr.ErrGridAmbiguity, req.TileSize)
	}
	if !req.BBox.Valid() {
		return nil, fmt.Errorf("%w: bbox %v is empty or not finite", cubeerr.ErrGridAmbiguity, req.BBox)
	}
	if len(zones) == 0 {
		return nil, fmt.Errorf("%w: no native zones to resolve against", cubeerr.ErrGridAmbiguity)
	}

	target := req.CRS.CRS
	if req.CRS.Native {
		if len(zones) > 1 {
			return nil, fmt.Errorf("%w: native CRS requested but bbox spans %d zones", cubeerr.ErrGridAmbiguity, len(zones))
		}
		target = zones[0].CRS
	}

	bbox, err := crs.ReprojectBBox(req.BBox, req.BBoxCRS, target, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cubeerr.ErrGridAmbiguity, err)
	}
	if err := req.Limits.Check(bbox, req.Resolution, req.TileSize); err != nil {
		return nil, err
	}

	if len(zones) == 1 {
		z := zones[0]
		if !z.Irregular && target.Equal(z.CRS) && hasResolution(z.Resolutions, req.Resolution) {
			g, err := snapToLattice(bbox, z, req.Resolution, req.TileSize)
			if err != nil {
				return nil, err
			}
			return NativeCrop{Grid: g, Zone: z}, nil
		}
	}

	g := FromBBox(bbox, target, req.Resolution, req.TileSize)
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", cubeerr.ErrGridAmbiguity, err)
	}
	return Reprojected{Grid: g}, nil
}

// SameResolution reports whether a and b are equal within tolerance.
func SameResolution(a, b float64) bool {
	return math.Abs(a-b) <= resolutionTolerance*math.Max(math.Abs(a), math.Abs(b))
}

func hasResolution(native []float64, res float64) bool {
	for _, r := range native {
		if SameResolution(r, res) {
			return true
		}
	}
	return false
}

// snapToLattice grows bbox outward to whole pixels of the lattice anchored
// at the zone's anchor point.
func snapToLattice(bbox crs.BBox, z Zone, res float64, chunk int) (Spec, error) {
	col0 := math.Floor((bbox.MinX()-z.AnchorX)/res + snapEpsilon)
	col1 := math.Ceil((bbox.MaxX()-z.AnchorX)/res - snapEpsilon)
	row0 := math.Floor((z.AnchorY-bbox.MaxY())/res + snapEpsilon)
	row1 := math.Ceil((z.AnchorY-bbox.MinY())/res - snapEpsilon)

	g := Spec{
		CRS:       z.CRS,
		OriginX:   z.AnchorX + col0*res,
		OriginY:   z.AnchorY - row0*res,
		ResX:      res,
		ResY:      res,
		Width:     int(col1 - col0),
		Height:    int(row1 - row0),
		ChunkSize: chunk,
	}
	if err := g.Validate(); err != nil {
		return Spec{}, fmt.Errorf("%w: %v", cubeerr.ErrGridAmbiguity, err)
	}
	return g, nil
}

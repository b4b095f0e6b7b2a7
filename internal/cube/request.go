// Package cube assembles per-day mosaics of catalog tiles into lazy,
// time-major raster cubes.
package cube

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/robert-malhotra/stac-cube/internal/config"
	"github.com/robert-malhotra/stac-cube/internal/crs"
	"github.com/robert-malhotra/stac-cube/internal/cubeerr"
	"github.com/robert-malhotra/stac-cube/internal/method"
	"github.com/robert-malhotra/stac-cube/internal/stac"
)

// Request is a cube request as accepted by the API.
type Request struct {
	Product string   `json:"product"`
	BBox    crs.BBox `json:"bbox"`
	// BBoxCRS is the CRS of BBox. It defaults to CRS, or to EPSG:4326 when
	// CRS is the native sentinel.
	BBoxCRS string `json:"bbox_crs,omitempty"`
	// DateTime is a STAC datetime interval.
	DateTime   string  `json:"datetime"`
	CRS        string  `json:"crs,omitempty"`
	Resolution float64 `json:"resolution"`
	TileSize   int     `json:"tile_size,omitempty"`
	// Variables are exact names or regular expressions matched against the
	// whole variable name. Empty selects every variable.
	Variables []string         `json:"variables,omitempty"`
	Methods   method.Overrides `json:"methods,omitempty"`
	// Query is passed to the catalog as STAC query extension filters.
	Query map[string]any `json:"query,omitempty"`
}

// Defaults fill request fields left empty.
type Defaults struct {
	CRS      string
	TileSize int
}

// parsed is a validated request.
type parsed struct {
	Request
	crs        crs.Request
	bboxCRS    crs.CRS
	start, end time.Time
}

func parseRequest(r Request, d Defaults) (*parsed, error) {
	if r.CRS == "" {
		r.CRS = d.CRS
	}
	if r.TileSize == 0 {
		r.TileSize = d.TileSize
	}

	p := &parsed{Request: r}

	var err error
	if p.crs, err = crs.ParseRequest(r.CRS); err != nil {
		return nil, fmt.Errorf("%w: crs: %v", cubeerr.ErrInvalidRequest, err)
	}

	switch {
	case r.BBoxCRS != "":
		p.bboxCRS, err = crs.Parse(r.BBoxCRS)
	case p.crs.Native:
		p.bboxCRS = crs.WGS84
	default:
		p.bboxCRS = p.crs.CRS
	}
	if err != nil {
		return nil, fmt.Errorf("%w: bbox_crs: %v", cubeerr.ErrInvalidRequest, err)
	}

	if r.DateTime == "" {
		return nil, fmt.Errorf("%w: datetime is required", cubeerr.ErrInvalidRequest)
	}
	if strings.Contains(r.DateTime, "/") {
		start, end, err := stac.ParseDatetimeInterval(r.DateTime)
		if err != nil {
			return nil, fmt.Errorf("%w: datetime: %v", cubeerr.ErrInvalidRequest, err)
		}
		if start != nil {
			p.start = *start
		}
		if end != nil {
			p.end = *end
		}
	} else {
		t, err := stac.ParseTime(r.DateTime)
		if err != nil {
			return nil, fmt.Errorf("%w: datetime: %v", cubeerr.ErrInvalidRequest, err)
		}
		p.start, p.end = t, t.Add(24*time.Hour-time.Nanosecond)
	}

	// Geometry errors are reported as grid ambiguity before any catalog access.
	if !r.BBox.Valid() {
		return nil, fmt.Errorf("%w: bbox %v is empty or not finite", cubeerr.ErrGridAmbiguity, [4]float64(r.BBox))
	}
	if p.bboxCRS.Geographic {
		if err := stac.ValidateBBox(r.BBox[:]); err != nil {
			return nil, fmt.Errorf("%w: %v", cubeerr.ErrGridAmbiguity, err)
		}
	}
	if !(r.Resolution > 0) {
		return nil, fmt.Errorf("%w: resolution must be positive, got %g", cubeerr.ErrGridAmbiguity, r.Resolution)
	}
	if r.TileSize <= 0 {
		return nil, fmt.Errorf("%w: tile size must be positive, got %d", cubeerr.ErrGridAmbiguity, r.TileSize)
	}
	return p, nil
}

// SelectVariables resolves requested names or patterns against the
// variables of p. The result follows the product's declaration order.
func SelectVariables(p *config.ProductConfig, requested []string) ([]string, error) {
	names := p.VariableNames()
	if len(requested) == 0 {
		return names, nil
	}

	selected := make(map[string]bool)
	for _, req := range requested {
		if _, ok := p.Variable(req); ok {
			selected[req] = true
			continue
		}
		re, err := regexp.Compile("^(?:" + req + ")$")
		if err != nil {
			return nil, fmt.Errorf("%w: %q is neither a variable of %s nor a valid pattern", cubeerr.ErrUnknownVariable, req, p.ID)
		}
		matched := false
		for _, n := range names {
			if re.MatchString(n) {
				selected[n] = true
				matched = true
			}
		}
		if !matched {
			return nil, fmt.Errorf("%w: %q matches no variable of %s", cubeerr.ErrUnknownVariable, req, p.ID)
		}
	}

	out := make([]string, 0, len(selected))
	for _, n := range names {
		if selected[n] {
			out = append(out, n)
		}
	}
	return out, nil
}

// resolveMethods binds aggregation and interpolation methods to the
// selected variables of p.
func resolveMethods(p *config.ProductConfig, names []string, o method.Overrides, logger *slog.Logger) (map[string]method.Spec, error) {
	for name := range o.Variables {
		if _, ok := p.Variable(name); !ok {
			return nil, fmt.Errorf("%w: method override for %q", cubeerr.ErrUnknownVariable, name)
		}
	}

	vars := make([]method.Variable, 0, len(names))
	for _, n := range names {
		v, _ := p.Variable(n)
		vars = append(vars, method.Variable{Name: v.Name, DataType: v.DataType, Categorical: v.Categorical})
	}
	return method.Resolve(vars, o, logger)
}

// Package crs parses coordinate reference system identifiers and transforms
// coordinates and bounding boxes between them.
package crs

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/ctessum/geom/proj"
)

// Native is the request sentinel meaning "keep the native CRS of the tiles".
const Native = "native"

// DefaultCode is used when a request does not name a CRS.
const DefaultCode = "EPSG:4326"

// CRS is a parsed coordinate reference system.
type CRS struct {
	// Code is the normalised identifier, e.g. "EPSG:32632".
	Code string
	// Proj4 is the PROJ.4 definition used for transforms.
	Proj4 string
	// Geographic is true for longitude/latitude systems.
	Geographic bool
}

// String returns the normalised code.
func (c CRS) String() string {
	return c.Code
}

// IsZero reports whether c is the zero value.
func (c CRS) IsZero() bool {
	return c.Code == ""
}

// Equal reports whether two CRSs are the same system.
func (c CRS) Equal(o CRS) bool {
	if c.Code != "" && c.Code == o.Code {
		return true
	}
	return c.Proj4 != "" && c.Proj4 == o.Proj4
}

// Request is the CRS part of a cube request: either a concrete CRS or the
// native sentinel.
type Request struct {
	Native bool
	CRS    CRS
}

// ParseRequest parses a requested CRS. An empty string selects DefaultCode.
func ParseRequest(s string) (Request, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, Native) {
		return Request{Native: true}, nil
	}
	if s == "" {
		s = DefaultCode
	}
	c, err := Parse(s)
	if err != nil {
		return Request{}, err
	}
	return Request{CRS: c}, nil
}

// String returns "native" or the CRS code.
func (r Request) String() string {
	if r.Native {
		return Native
	}
	return r.CRS.Code
}

var wellKnown = map[int]string{
	4326: "+proj=longlat +datum=WGS84 +no_defs",
	4258: "+proj=longlat +ellps=GRS80 +no_defs",
	3857: "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +no_defs",
	3035: "+proj=laea +lat_0=52 +lon_0=10 +x_0=4321000 +y_0=3210000 +ellps=GRS80 +units=m +no_defs",
}

// Parse accepts "EPSG:<code>", "urn:ogc:def:crs:EPSG::<code>", "OGC:CRS84",
// a bare EPSG number, or a PROJ.4 string.
func Parse(s string) (CRS, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return CRS{}, fmt.Errorf("empty CRS")
	}
	if strings.HasPrefix(s, "+") {
		if _, err := proj.Parse(s); err != nil {
			return CRS{}, fmt.Errorf("invalid PROJ.4 definition %q: %w", s, err)
		}
		return CRS{Code: s, Proj4: s, Geographic: strings.Contains(s, "+proj=longlat")}, nil
	}

	upper := strings.ToUpper(s)
	if upper == "OGC:CRS84" || upper == "CRS84" {
		return FromEPSG(4326)
	}
	upper = strings.TrimPrefix(upper, "URN:OGC:DEF:CRS:")
	upper = strings.TrimPrefix(upper, "EPSG:")
	upper = strings.TrimPrefix(upper, ":")
	code, err := strconv.Atoi(upper)
	if err != nil {
		return CRS{}, fmt.Errorf("unsupported CRS %q", s)
	}
	return FromEPSG(code)
}

// FromEPSG builds a CRS from an EPSG code. WGS84 UTM zones (326xx, 327xx) and a
// small table of common systems are supported.
func FromEPSG(code int) (CRS, error) {
	c := CRS{Code: "EPSG:" + strconv.Itoa(code)}
	switch {
	case wellKnown[code] != "":
		c.Proj4 = wellKnown[code]
	case code > 32600 && code <= 32660:
		c.Proj4 = fmt.Sprintf("+proj=utm +zone=%d +datum=WGS84 +units=m +no_defs", code-32600)
	case code > 32700 && code <= 32760:
		c.Proj4 = fmt.Sprintf("+proj=utm +zone=%d +south +datum=WGS84 +units=m +no_defs", code-32700)
	default:
		return CRS{}, fmt.Errorf("unsupported EPSG code %d", code)
	}
	c.Geographic = strings.Contains(c.Proj4, "+proj=longlat")
	return c, nil
}

// MustParse is Parse for package-level defaults and tests.
func MustParse(s string) CRS {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

// WGS84 is the geographic system used for catalog searches.
var WGS84 = MustParse(DefaultCode)

type pair struct{ src, dst string }

var (
	transformMu sync.Mutex
	transforms  = map[pair]proj.Transformer{}
)

// Transformer returns a coordinate transform from src to dst. Transforms are
// parsed once and shared; proj transformers are safe for concurrent use.
func Transformer(src, dst CRS) (proj.Transformer, error) {
	if src.Equal(dst) {
		return func(x, y float64) (float64, float64, error) { return x, y, nil }, nil
	}

	key := pair{src.Proj4, dst.Proj4}
	transformMu.Lock()
	defer transformMu.Unlock()
	if t, ok := transforms[key]; ok {
		return t, nil
	}

	srcSR, err := proj.Parse(src.Proj4)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", src, err)
	}
	dstSR, err := proj.Parse(dst.Proj4)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", dst, err)
	}
	t, err := srcSR.NewTransform(dstSR)
	if err != nil {
		return nil, fmt.Errorf("creating transform %s -> %s: %w", src, dst, err)
	}
	transforms[key] = t
	return t, nil
}

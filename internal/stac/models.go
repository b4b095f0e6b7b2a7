// Package stac provides the STAC API wire types shared by the catalog client
// and the HTTP surface, wrapping planetlabs/go-stac for the core types.
package stac

import (
	"encoding/json"

	gostac "github.com/planetlabs/go-stac"
)

// Re-export core types from planetlabs/go-stac for convenience
type (
	Item  = gostac.Item
	Asset = gostac.Asset
	Link  = gostac.Link
)

// Link relations used when following search results.
const (
	RelNext = "next"
	RelSelf = "self"
)

// ItemCollection is a page of a STAC item search. Features are kept raw so
// that callers can decode both the go-stac item and extension fields from the
// same bytes.
type ItemCollection struct {
	Type           string            `json:"type"`
	Features       []json.RawMessage `json:"features"`
	Links          []SearchLink      `json:"links"`
	NumberMatched  *int              `json:"numberMatched,omitempty"`
	NumberReturned int               `json:"numberReturned,omitempty"`
}

// SearchLink is a link of a search page. Next links of POST searches may
// carry a method and a body to send instead of a plain GET.
type SearchLink struct {
	Rel    string          `json:"rel"`
	Href   string          `json:"href"`
	Type   string          `json:"type,omitempty"`
	Method string          `json:"method,omitempty"`
	Body   json.RawMessage `json:"body,omitempty"`
	Merge  bool            `json:"merge,omitempty"`
}

// NextLink returns the next-page link of the collection, or nil on the last
// page.
func (ic *ItemCollection) NextLink() *SearchLink {
	for i := range ic.Links {
		if ic.Links[i].Rel == RelNext {
			return &ic.Links[i]
		}
	}
	return nil
}

// FindLink returns the first link with relation rel.
func FindLink(links []*gostac.Link, rel string) *gostac.Link {
	for _, l := range links {
		if l != nil && l.Rel == rel {
			return l
		}
	}
	return nil
}

// SearchRequest is the body of a POST /search request.
type SearchRequest struct {
	BBox        []float64       `json:"bbox,omitempty"`
	Intersects  json.RawMessage `json:"intersects,omitempty"`
	DateTime    string          `json:"datetime,omitempty"`
	Collections []string        `json:"collections,omitempty"`
	Limit       int             `json:"limit,omitempty"`

	// Query carries the STAC query extension object.
	Query map[string]any `json:"query,omitempty"`

	// Token is set by servers that page POST searches with a body token.
	Token string `json:"token,omitempty"`
}

// ProjectionFields are the projection extension fields of an item or asset.
type ProjectionFields struct {
	EPSG      *int      `json:"proj:epsg,omitempty"`
	Code      string    `json:"proj:code,omitempty"`
	Shape     []int     `json:"proj:shape,omitempty"`
	Transform []float64 `json:"proj:transform,omitempty"`
	BBox      []float64 `json:"proj:bbox,omitempty"`
}

// RawAsset is the subset of an asset this service reads, including its
// projection and raster extension fields.
type RawAsset struct {
	Href string `json:"href"`
	Type string `json:"type,omitempty"`
	ProjectionFields
	Bands []RasterBand `json:"raster:bands,omitempty"`
}

// RasterBand is one entry of the raster extension's band list.
type RasterBand struct {
	DataType string   `json:"data_type,omitempty"`
	NoData   *float64 `json:"nodata,omitempty"`
}

// RawItem is the extension view of an item. It complements gostac.Item,
// which does not expose extension fields on assets.
type RawItem struct {
	ID         string `json:"id"`
	Properties struct {
		DateTime      string `json:"datetime"`
		StartDateTime string `json:"start_datetime"`
		ProjectionFields
	} `json:"properties"`
	Assets map[string]RawAsset `json:"assets"`
}

// Projection extension URI
const ExtensionProjection = "https://stac-extensions.github.io/projection/v1.1.0/schema.json"

package catalog

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/robert-malhotra/stac-cube/internal/config"
	"github.com/robert-malhotra/stac-cube/internal/crs"
	"github.com/robert-malhotra/stac-cube/internal/grid"
	"github.com/robert-malhotra/stac-cube/internal/stac"
	"github.com/robert-malhotra/stac-cube/internal/tile"
	"github.com/robert-malhotra/stac-cube/pkg/geojson"
)

// defaultDataType is assumed for assets that declare no sample type.
const defaultDataType = "float32"

// ToDescriptor translates one raw STAC item into a tile descriptor holding
// the assets of the product's variables. Variables whose asset is missing
// from the item are left out of the descriptor.
func ToDescriptor(raw json.RawMessage, p *config.ProductConfig) (tile.Descriptor, error) {
	var item stac.Item
	if err := json.Unmarshal(raw, &item); err != nil {
		return tile.Descriptor{}, fmt.Errorf("failed to decode item: %w", err)
	}
	var ext stac.RawItem
	if err := json.Unmarshal(raw, &ext); err != nil {
		return tile.Descriptor{}, fmt.Errorf("failed to decode item extensions: %w", err)
	}

	id := item.Id
	if id == "" {
		id = ext.ID
	}
	if id == "" {
		return tile.Descriptor{}, fmt.Errorf("item has no id")
	}

	ts := ext.Properties.DateTime
	if ts == "" {
		ts = ext.Properties.StartDateTime
	}
	acquired, err := stac.ParseTime(ts)
	if err != nil {
		return tile.Descriptor{}, fmt.Errorf("item %s: %w", id, err)
	}

	nativeCRS, err := itemCRS(&ext, p)
	if err != nil {
		return tile.Descriptor{}, fmt.Errorf("item %s: %w", id, err)
	}

	assets := make(map[string]tile.Asset, len(p.Variables))
	for _, v := range p.Variables {
		ra, ok := ext.Assets[v.Asset]
		if !ok || ra.Href == "" {
			continue
		}
		a, err := translateAsset(v, ra, ext.Properties.ProjectionFields, nativeCRS, p.Irregular)
		if err != nil {
			return tile.Descriptor{}, fmt.Errorf("item %s: %w", id, err)
		}
		assets[v.Name] = a
	}
	if len(assets) == 0 {
		return tile.Descriptor{}, fmt.Errorf("item %s has none of the assets of product %s", id, p.ID)
	}

	wgs84, err := geographicBBox(&item, nativeCRS, assets)
	if err != nil {
		return tile.Descriptor{}, fmt.Errorf("item %s: %w", id, err)
	}

	footprint := wgs84
	if !p.Irregular {
		footprint = nativeFootprint(ext.Properties.BBox, assets)
	}

	d := tile.NewDescriptor(id, acquired, nativeCRS, footprint, wgs84, assets)
	if link := stac.FindLink(item.Links, stac.RelSelf); link != nil {
		d.SelfLink = link.Href
	}

	if p.Irregular {
		geo, err := geolocation(&ext, p, assets)
		if err != nil {
			return tile.Descriptor{}, fmt.Errorf("item %s: %w", id, err)
		}
		d.Geolocation = geo
	}

	return d, nil
}

// itemCRS returns the native CRS of an item. Irregular products are located
// by geographic coordinates.
func itemCRS(ext *stac.RawItem, p *config.ProductConfig) (crs.CRS, error) {
	if p.Irregular {
		return crs.WGS84, nil
	}
	if c, ok, err := projCRS(ext.Properties.ProjectionFields); ok || err != nil {
		return c, err
	}
	for _, v := range p.Variables {
		if ra, found := ext.Assets[v.Asset]; found {
			if c, ok, err := projCRS(ra.ProjectionFields); ok || err != nil {
				return c, err
			}
		}
	}
	return crs.CRS{}, fmt.Errorf("no proj:epsg or proj:code")
}

func projCRS(f stac.ProjectionFields) (crs.CRS, bool, error) {
	switch {
	case f.EPSG != nil:
		c, err := crs.FromEPSG(*f.EPSG)
		return c, true, err
	case f.Code != "":
		c, err := crs.Parse(f.Code)
		return c, true, err
	}
	return crs.CRS{}, false, nil
}

func translateAsset(v config.VariableConfig, ra stac.RawAsset, item stac.ProjectionFields, c crs.CRS, irregular bool) (tile.Asset, error) {
	a := tile.Asset{
		Variable:    v.Name,
		Href:        ra.Href,
		DataType:    v.DataType,
		Categorical: v.Categorical,
		NoData:      v.NoData,
	}
	if len(ra.Bands) > 0 {
		if a.DataType == "" {
			a.DataType = ra.Bands[0].DataType
		}
		if a.NoData == nil {
			a.NoData = ra.Bands[0].NoData
		}
	}
	if a.DataType == "" {
		a.DataType = defaultDataType
	}

	shape := ra.Shape
	if len(shape) != 2 {
		shape = item.Shape
	}
	if len(shape) != 2 {
		return tile.Asset{}, fmt.Errorf("asset %s has no proj:shape", v.Asset)
	}

	if irregular {
		a.Grid = grid.Spec{CRS: c, ResX: v.Resolution, ResY: v.Resolution, Height: shape[0], Width: shape[1]}
		return a, nil
	}

	g, err := assetGrid(c, shape, ra.ProjectionFields, item)
	if err != nil {
		return tile.Asset{}, fmt.Errorf("asset %s: %w", v.Asset, err)
	}
	a.Grid = g
	return a, nil
}

// assetGrid derives the pixel grid of an asset from proj:transform, or from
// proj:bbox and proj:shape when no transform is given.
func assetGrid(c crs.CRS, shape []int, asset, item stac.ProjectionFields) (grid.Spec, error) {
	g := grid.Spec{CRS: c, Height: shape[0], Width: shape[1]}

	transform := asset.Transform
	if len(transform) < 6 && len(asset.Shape) != 2 {
		transform = item.Transform
	}
	if len(transform) >= 6 {
		if transform[1] != 0 || transform[3] != 0 {
			return grid.Spec{}, fmt.Errorf("rotated grids are not supported")
		}
		g.ResX, g.OriginX = transform[0], transform[2]
		g.ResY, g.OriginY = -transform[4], transform[5]
		return g, g.Validate()
	}

	bbox := asset.BBox
	if len(bbox) != 4 {
		bbox = item.BBox
	}
	if len(bbox) != 4 || g.Width <= 0 || g.Height <= 0 {
		return grid.Spec{}, fmt.Errorf("no proj:transform or proj:bbox")
	}
	g.OriginX, g.OriginY = bbox[0], bbox[3]
	g.ResX = (bbox[2] - bbox[0]) / float64(g.Width)
	g.ResY = (bbox[3] - bbox[1]) / float64(g.Height)
	return g, g.Validate()
}

// unwrap moves the east edge of a box crossing the antimeridian past 180.
func unwrap(b crs.BBox) crs.BBox {
	if b[0] > b[2] {
		b[2] += 360
	}
	return b
}

// nativeFootprint returns proj:bbox, or the union of the asset grids.
func nativeFootprint(projBBox []float64, assets map[string]tile.Asset) crs.BBox {
	if len(projBBox) == 4 {
		return crs.BBox{projBBox[0], projBBox[1], projBBox[2], projBBox[3]}
	}
	fp := crs.BBox{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	for _, a := range assets {
		b := a.Grid.Bounds()
		fp[0], fp[1] = min(fp[0], b[0]), min(fp[1], b[1])
		fp[2], fp[3] = max(fp[2], b[2]), max(fp[3], b[3])
	}
	return fp
}

// geographicBBox returns the item bbox, the bbox of its geometry, or the
// native footprint reprojected to WGS84, in that order of preference.
func geographicBBox(item *stac.Item, c crs.CRS, assets map[string]tile.Asset) (crs.BBox, error) {
	switch len(item.Bbox) {
	case 4:
		return unwrap(crs.BBox{item.Bbox[0], item.Bbox[1], item.Bbox[2], item.Bbox[3]}), nil
	case 6:
		return unwrap(crs.BBox{item.Bbox[0], item.Bbox[1], item.Bbox[3], item.Bbox[4]}), nil
	}

	if item.Geometry != nil {
		data, err := json.Marshal(item.Geometry)
		if err == nil {
			var g geojson.Geometry
			if err := json.Unmarshal(data, &g); err == nil {
				if b, err := geojson.ComputeBBox(&g); err == nil {
					return unwrap(crs.BBox{b[0], b[1], b[2], b[3]}), nil
				}
			}
		}
	}

	if c.Equal(crs.WGS84) {
		return crs.BBox{}, fmt.Errorf("no bbox or geometry")
	}
	return crs.ReprojectBBox(nativeFootprint(nil, assets), c, crs.WGS84, 0)
}

// geolocation locates the longitude and latitude arrays of an irregular tile.
func geolocation(ext *stac.RawItem, p *config.ProductConfig, assets map[string]tile.Asset) (*tile.Geolocation, error) {
	lon, okLon := ext.Assets[p.Geolocation.Lon]
	lat, okLat := ext.Assets[p.Geolocation.Lat]
	if !okLon || !okLat || lon.Href == "" || lat.Href == "" {
		return nil, fmt.Errorf("missing geolocation assets %s/%s", p.Geolocation.Lon, p.Geolocation.Lat)
	}

	geo := &tile.Geolocation{LonHref: lon.Href, LatHref: lat.Href}
	shape := lon.Shape
	if len(shape) != 2 {
		shape = ext.Properties.Shape
	}
	if len(shape) == 2 {
		geo.Height, geo.Width = shape[0], shape[1]
		return geo, nil
	}
	for _, v := range p.Variables {
		if a, ok := assets[v.Name]; ok {
			geo.Height, geo.Width = a.Grid.Height, a.Grid.Width
			break
		}
	}
	return geo, nil
}

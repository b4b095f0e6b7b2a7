package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/robert-malhotra/stac-cube/internal/config"
	"github.com/robert-malhotra/stac-cube/internal/crs"
	"github.com/robert-malhotra/stac-cube/internal/cubeerr"
	"github.com/robert-malhotra/stac-cube/internal/stac"
	"github.com/robert-malhotra/stac-cube/internal/tile"
	"github.com/robert-malhotra/stac-cube/pkg/geojson"
)

// Query is the spatio-temporal part of a cube request as sent to the
// catalog.
type Query struct {
	// BBox is in WGS84. MaxX may exceed 180 for boxes crossing the
	// antimeridian.
	BBox crs.BBox
	// Start and End bound the acquisition time; zero values leave the
	// interval open.
	Start, End time.Time
	// Filters are merged into the product's STAC query extension object.
	Filters map[string]any
}

// Searcher finds the tiles of a product.
type Searcher interface {
	Search(ctx context.Context, p *config.ProductConfig, q Query) ([]tile.Descriptor, error)
}

// SearchRequest builds the STAC search body for q against product p.
func SearchRequest(p *config.ProductConfig, q Query) (stac.SearchRequest, error) {
	req := stac.SearchRequest{
		Collections: []string{p.Collection},
		DateTime:    stac.FormatInterval(q.Start, q.End),
	}

	bbox := []float64{q.BBox.MinX(), q.BBox.MinY(), q.BBox.MaxX(), q.BBox.MaxY()}
	if p.SearchByIntersects {
		poly, err := geojson.NewPolygonFromBBox(bbox)
		if err != nil {
			return stac.SearchRequest{}, err
		}
		data, err := json.Marshal(poly)
		if err != nil {
			return stac.SearchRequest{}, fmt.Errorf("failed to encode intersects polygon: %w", err)
		}
		req.Intersects = data
	} else {
		if bbox[2] > 180 {
			bbox[2] -= 360
		}
		req.BBox = bbox
	}

	if len(p.Query) > 0 || len(q.Filters) > 0 {
		req.Query = make(map[string]any, len(p.Query)+len(q.Filters))
		for k, v := range p.Query {
			req.Query[k] = v
		}
		for k, v := range q.Filters {
			req.Query[k] = v
		}
	}

	return req, nil
}

// Search returns the tiles of product p matching q, in catalog order. Items
// that cannot be translated are skipped with a warning. An empty result is
// reported as cubeerr.ErrQueryEmpty.
func (c *Client) Search(ctx context.Context, p *config.ProductConfig, q Query) ([]tile.Descriptor, error) {
	req, err := SearchRequest(p, q)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cubeerr.ErrInvalidRequest, err)
	}

	raw, err := c.SearchItems(ctx, req)
	if err != nil {
		return nil, err
	}

	tiles := make([]tile.Descriptor, 0, len(raw))
	for _, item := range raw {
		d, err := ToDescriptor(item, p)
		if err != nil {
			c.logger.WarnContext(ctx, "skipping catalog item",
				slog.String("product", p.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		tiles = append(tiles, d)
	}

	if len(tiles) == 0 {
		return nil, fmt.Errorf("%w: collection %s, bbox %v, datetime %s",
			cubeerr.ErrQueryEmpty, p.Collection, [4]float64(q.BBox), req.DateTime)
	}

	c.logger.InfoContext(ctx, "catalog search completed",
		slog.String("product", p.ID),
		slog.Int("items", len(raw)),
		slog.Int("tiles", len(tiles)),
	)
	return tiles, nil
}

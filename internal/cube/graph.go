package cube

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"

	"github.com/robert-malhotra/stac-cube/internal/assetio"
	"github.com/robert-malhotra/stac-cube/internal/crs"
	"github.com/robert-malhotra/stac-cube/internal/cubeerr"
	"github.com/robert-malhotra/stac-cube/internal/grid"
	"github.com/robert-malhotra/stac-cube/internal/lazy"
	"github.com/robert-malhotra/stac-cube/internal/method"
	"github.com/robert-malhotra/stac-cube/internal/mosaic"
	"github.com/robert-malhotra/stac-cube/internal/raster"
	"github.com/robert-malhotra/stac-cube/internal/rectify"
	"github.com/robert-malhotra/stac-cube/internal/resample"
	"github.com/robert-malhotra/stac-cube/internal/tile"
)

// Node kinds of a cube graph.
const (
	KindRead        = "read"
	KindGeolocation = "geolocation"
	KindRectify     = "rectify"
	KindAggregate   = "aggregate"
	KindWarp        = "warp"
	KindCrop        = "crop"
	KindMosaic      = "mosaic"
)

// source is a tile raster with the grid it lives on.
type source struct {
	Raster *raster.Raster
	Grid   grid.Spec
}

// extent is a tile footprint in the target CRS, indexed by its position in
// the day's priority order.
type extent struct {
	geom.Polygon
	rank int
	bbox crs.BBox
}

func newExtent(rank int, b crs.BBox) *extent {
	return &extent{
		Polygon: geom.Polygon{{
			{X: b.MinX(), Y: b.MinY()},
			{X: b.MaxX(), Y: b.MinY()},
			{X: b.MaxX(), Y: b.MaxY()},
			{X: b.MinX(), Y: b.MaxY()},
		}},
		rank: rank,
		bbox: b,
	}
}

// planner adds the nodes of one cube to a graph.
type planner struct {
	graph     *lazy.Graph
	reader    assetio.Reader
	resampler resample.Resampler
	rectifier *rectify.Rectifier
	target    grid.Spec
	methods   map[string]method.Spec
	logger    *slog.Logger

	sources map[string]sourceRef
}

// sourceRef is the last node of a tile variable's source chain.
type sourceRef struct {
	id    string
	grid  grid.Spec
	known bool
}

func mosaicID(variable string, t, cy, cx int) string {
	return fmt.Sprintf("%s/%s/%d/%d/%d", KindMosaic, variable, t, cy, cx)
}

// addDay adds the mosaic nodes of every variable and chunk of one day.
func (p *planner) addDay(t int, day tile.Day, variables []string) error {
	tree := rtree.NewTree(25, 50)
	for i, d := range day.Tiles {
		b, err := p.tileExtent(d)
		if err != nil {
			p.logger.Warn("skipping tile outside target CRS domain",
				slog.String("tile_id", d.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if _, ok := b.Intersection(p.target.Bounds()); ok {
			tree.Insert(newExtent(i, b))
		}
	}

	rows, cols := p.target.ChunkCounts()
	for _, v := range variables {
		empty := 0
		for cy := 0; cy < rows; cy++ {
			for cx := 0; cx < cols; cx++ {
				win, err := p.target.ChunkWindow(cy, cx)
				if err != nil {
					return err
				}
				chunk := p.target.Sub(win)
				tiles := intersecting(tree, day.Tiles, chunk.Bounds().Bounds())

				var deps, ids []string
				for _, d := range tiles {
					if _, ok := d.Asset(v); !ok {
						continue
					}
					id, err := p.place(d, v, cy, cx, chunk)
					if err != nil {
						return fmt.Errorf("tile %s variable %s: %w", d.ID, v, err)
					}
					deps = append(deps, id)
					ids = append(ids, d.ID)
				}
				if len(deps) == 0 {
					empty++
				}
				if err := p.addMosaic(mosaicID(v, t, cy, cx), chunk, deps, ids); err != nil {
					return err
				}
			}
		}
		if empty > 0 {
			p.logger.Warn("chunks without tiles",
				slog.String("day", day.Day.Format(tile.DayFormat)),
				slog.String("variable", v),
				slog.Int("chunks", empty),
				slog.Int("total", rows*cols),
			)
		}
	}
	return nil
}

// intersecting returns the tiles whose extent overlaps b, in priority
// order.
func intersecting(tree *rtree.Rtree, tiles []tile.Descriptor, b *geom.Bounds) []tile.Descriptor {
	box := crs.FromBounds(b)
	var ranks []int
	for _, s := range tree.SearchIntersect(b) {
		e := s.(*extent)
		if _, ok := e.bbox.Intersection(box); ok {
			ranks = append(ranks, e.rank)
		}
	}
	sort.Ints(ranks)
	out := make([]tile.Descriptor, len(ranks))
	for i, r := range ranks {
		out[i] = tiles[r]
	}
	return out
}

func (p *planner) tileExtent(d tile.Descriptor) (crs.BBox, error) {
	if d.Irregular() {
		return crs.ReprojectBBox(d.BBoxWGS84, crs.WGS84, p.target.CRS, 0)
	}
	return crs.ReprojectBBox(d.Footprint, d.CRS, p.target.CRS, 0)
}

// place adds the nodes that put tile variable (d, v) onto one chunk and
// returns the id of the last one.
func (p *planner) place(d tile.Descriptor, v string, cy, cx int, chunk grid.Spec) (string, error) {
	key := d.ID + "/" + v
	ref, ok := p.sources[key]
	if !ok {
		id, g, known, err := p.source(d, v)
		if err != nil {
			return "", err
		}
		ref = sourceRef{id: id, grid: g, known: known}
		p.sources[key] = ref
	}
	srcID, srcGrid, known := ref.id, ref.grid, ref.known

	if known && aligned(srcGrid, chunk) {
		id := fmt.Sprintf("%s/%s/%s/%d/%d", KindCrop, d.ID, v, cy, cx)
		return id, p.graph.Add(lazy.Node{
			ID:   id,
			Kind: KindCrop,
			Deps: []string{srcID},
			Fn: func(_ context.Context, deps []any) (any, error) {
				s, _ := deps[0].(*source)
				if s == nil {
					return nil, nil
				}
				return crop(s.Raster, s.Grid, chunk), nil
			},
		})
	}

	interp := p.methods[v].Interpolation
	id := fmt.Sprintf("%s/%s/%s/%d/%d", KindWarp, d.ID, v, cy, cx)
	return id, p.graph.Add(lazy.Node{
		ID:   id,
		Kind: KindWarp,
		Deps: []string{srcID},
		Fn: func(_ context.Context, deps []any) (any, error) {
			s, _ := deps[0].(*source)
			if s == nil {
				return nil, nil
			}
			return p.resampler.Warp(s.Raster, s.Grid, chunk, interp)
		},
	})
}

// source adds the nodes that bring tile variable (d, v) onto a regular grid
// at or below the target density. known is false when the grid is only
// determined at run time.
func (p *planner) source(d tile.Descriptor, v string) (id string, g grid.Spec, known bool, err error) {
	a, _ := d.Asset(v)
	readID := fmt.Sprintf("%s/%s/%s", KindRead, d.ID, v)
	if err := p.graph.Add(lazy.Node{
		ID:   readID,
		Kind: KindRead,
		Fn: func(ctx context.Context, _ []any) (any, error) {
			r, err := p.reader.ReadAsset(ctx, a)
			if err != nil {
				return nil, err
			}
			return &source{Raster: r, Grid: a.Grid}, nil
		},
	}); err != nil {
		return "", grid.Spec{}, false, err
	}

	if d.Irregular() {
		id, err := p.rectified(d, v, a, readID)
		return id, grid.Spec{}, false, err
	}

	plan, err := grid.PlanResample(a.Grid, p.target)
	if err != nil {
		return "", grid.Spec{}, false, err
	}
	if plan.Steps[0].Kind != grid.StepAggregate {
		return readID, a.Grid, true, nil
	}

	factor := plan.Steps[0].Factor
	agg := p.methods[v].Aggregation
	aggID := fmt.Sprintf("%s/%s/%s", KindAggregate, d.ID, v)
	err = p.graph.Add(lazy.Node{
		ID:   aggID,
		Kind: KindAggregate,
		Deps: []string{readID},
		Fn: func(_ context.Context, deps []any) (any, error) {
			s := deps[0].(*source)
			r, g, err := p.resampler.Aggregate(s.Raster, s.Grid, factor, agg)
			if err != nil {
				return nil, err
			}
			return &source{Raster: r, Grid: g}, nil
		},
	})
	return aggID, aggregatedGrid(a.Grid, factor), true, err
}

// rectified adds the geolocation and rectification nodes of an irregular
// tile variable. A failed rectification yields an absent source.
func (p *planner) rectified(d tile.Descriptor, v string, a tile.Asset, readID string) (string, error) {
	geo := *d.Geolocation
	geoID := fmt.Sprintf("%s/%s", KindGeolocation, d.ID)
	if err := p.graph.Add(lazy.Node{
		ID:   geoID,
		Kind: KindGeolocation,
		Fn: func(ctx context.Context, _ []any) (any, error) {
			g, err := p.reader.ReadGeolocation(ctx, geo)
			if err != nil {
				return nil, err
			}
			return &g, nil
		},
	}); err != nil {
		return "", err
	}

	plan, err := grid.PlanRectify(a.Resolution(), p.target)
	if err != nil {
		return "", err
	}
	res := plan.Steps[0].Resolution
	agg := p.methods[v].Aggregation
	tileID := d.ID

	id := fmt.Sprintf("%s/%s/%s", KindRectify, d.ID, v)
	return id, p.graph.Add(lazy.Node{
		ID:   id,
		Kind: KindRectify,
		Deps: []string{readID, geoID},
		Fn: func(_ context.Context, deps []any) (any, error) {
			s := deps[0].(*source)
			g := deps[1].(*raster.Geolocation)
			out := p.rectifier.Tile(rectify.Input{
				TileID:      tileID,
				Variable:    v,
				Raster:      s.Raster,
				Geolocation: *g,
				Resolution:  res,
				Aggregation: agg,
			})
			if out == nil {
				return nil, nil
			}
			return &source{Raster: out.Raster, Grid: out.Grid}, nil
		},
	})
}

// addMosaic adds the node merging the placed tiles of one chunk, given in
// priority order.
func (p *planner) addMosaic(id string, chunk grid.Spec, deps, tileIDs []string) error {
	return p.graph.Add(lazy.Node{
		ID:   id,
		Kind: KindMosaic,
		Deps: deps,
		Fn: func(_ context.Context, values []any) (any, error) {
			layers := make([]mosaic.Layer, len(values))
			for i, v := range values {
				r, _ := v.(*raster.Raster)
				layers[i] = mosaic.Layer{TileID: tileIDs[i], Raster: r}
			}
			out, err := mosaic.Merge(chunk.Height, chunk.Width, layers)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", cubeerr.ErrIncompatibleGrid, err)
			}
			return out, nil
		},
	})
}

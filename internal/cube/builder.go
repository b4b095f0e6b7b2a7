package cube

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/robert-malhotra/stac-cube/internal/assetio"
	"github.com/robert-malhotra/stac-cube/internal/catalog"
	"github.com/robert-malhotra/stac-cube/internal/config"
	"github.com/robert-malhotra/stac-cube/internal/crs"
	"github.com/robert-malhotra/stac-cube/internal/cubeerr"
	"github.com/robert-malhotra/stac-cube/internal/grid"
	"github.com/robert-malhotra/stac-cube/internal/lazy"
	"github.com/robert-malhotra/stac-cube/internal/rectify"
	"github.com/robert-malhotra/stac-cube/internal/resample"
	"github.com/robert-malhotra/stac-cube/internal/tile"
)

// Recorder receives build, node and rectification events.
type Recorder interface {
	lazy.Observer
	rectify.FailureRecorder
	ObserveBuild(product, outcome string, d time.Duration, tiles int)
}

// Builder turns cube requests into lazy cubes.
type Builder struct {
	products  *config.ProductRegistry
	searcher  catalog.Searcher
	reader    assetio.Reader
	resampler resample.Resampler

	defaults Defaults
	limits   grid.Limits
	workers  int
	cache    *lazy.Cache
	recorder Recorder
	logger   *slog.Logger
}

// NewBuilder creates a builder over the given collaborators.
func NewBuilder(products *config.ProductRegistry, searcher catalog.Searcher, reader assetio.Reader, resampler resample.Resampler) *Builder {
	return &Builder{
		products:  products,
		searcher:  searcher,
		reader:    reader,
		resampler: resampler,
		defaults:  Defaults{CRS: crs.DefaultCode, TileSize: 1024},
		limits:    grid.DefaultLimits,
		logger:    slog.Default(),
	}
}

// WithLogger sets the logger.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithDefaults sets the values used for request fields left empty.
func (b *Builder) WithDefaults(d Defaults) *Builder {
	b.defaults = d
	return b
}

// WithLimits bounds the size of the grids the builder will plan.
func (b *Builder) WithLimits(l grid.Limits) *Builder {
	b.limits = l
	return b
}

// WithWorkers bounds the node functions running at once per cube.
func (b *Builder) WithWorkers(n int) *Builder {
	b.workers = n
	return b
}

// WithCache shares c between every cube built.
func (b *Builder) WithCache(c *lazy.Cache) *Builder {
	b.cache = c
	return b
}

// WithRecorder sets the metrics recorder.
func (b *Builder) WithRecorder(r Recorder) *Builder {
	b.recorder = r
	return b
}

// Build validates req, searches the catalog and plans the cube. No asset is
// read until a chunk is computed.
func (b *Builder) Build(ctx context.Context, req Request) (c *Cube, err error) {
	start := time.Now()
	tiles := 0
	defer func() {
		if b.recorder == nil {
			return
		}
		outcome := "success"
		if err != nil {
			outcome = cubeerr.Code(err)
		}
		b.recorder.ObserveBuild(req.Product, outcome, time.Since(start), tiles)
	}()

	p := b.products.Get(req.Product)
	if p == nil {
		return nil, fmt.Errorf("%w: unknown product %q", cubeerr.ErrInvalidRequest, req.Product)
	}
	pr, err := parseRequest(req, b.defaults)
	if err != nil {
		return nil, err
	}
	names, err := SelectVariables(p, req.Variables)
	if err != nil {
		return nil, err
	}
	methods, err := resolveMethods(p, names, req.Methods, b.logger)
	if err != nil {
		return nil, err
	}

	wgs84, err := crs.ReprojectBBox(pr.BBox, pr.bboxCRS, crs.WGS84, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cubeerr.ErrGridAmbiguity, err)
	}

	if !pr.crs.Native {
		target, err := crs.ReprojectBBox(pr.BBox, pr.bboxCRS, pr.crs.CRS, 0)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", cubeerr.ErrGridAmbiguity, err)
		}
		if err := b.limits.Check(target, pr.Resolution, pr.TileSize); err != nil {
			return nil, err
		}
	}

	found, err := b.searcher.Search(ctx, p, catalog.Query{
		BBox:    wgs84,
		Start:   pr.start,
		End:     pr.end,
		Filters: req.Query,
	})
	if err != nil {
		return nil, err
	}
	if p.AcquisitionDedup {
		found = tile.DedupAcquisitions(found, b.logger)
	}
	found = b.dropZeroSized(found)
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: every tile of %s in bbox %v is zero-sized", cubeerr.ErrQueryEmpty, p.ID, [4]float64(wgs84))
	}
	tiles = len(found)
	if err := checkVariables(found, names); err != nil {
		return nil, err
	}

	days := tile.Days(tile.GroupTiles(found, b.logger))
	decision, err := grid.Resolve(grid.Request{
		BBox:       pr.BBox,
		BBoxCRS:    pr.bboxCRS,
		CRS:        pr.crs,
		Resolution: pr.Resolution,
		TileSize:   pr.TileSize,
		Limits:     b.limits,
	}, zones(p, days, names))
	if err != nil {
		return nil, err
	}
	target := decision.Target()

	id := uuid.NewString()
	logger := b.logger.With(slog.String("cube_id", id))

	rectifier := rectify.New(b.resampler).WithLogger(logger)
	if b.recorder != nil {
		rectifier = rectifier.WithRecorder(b.recorder)
	}
	pl := &planner{
		graph:     lazy.NewGraph(),
		reader:    b.reader,
		resampler: b.resampler,
		rectifier: rectifier,
		target:    target,
		methods:   methods,
		logger:    logger,
		sources:   make(map[string]sourceRef),
	}
	grids := make([]grid.Spec, len(days))
	for t, day := range days {
		if err := pl.addDay(t, day, names); err != nil {
			return nil, err
		}
		grids[t] = target
	}

	var observer lazy.Observer
	if b.recorder != nil {
		observer = b.recorder
	}
	engine, err := lazy.NewEngine(pl.graph, lazy.Options{
		Namespace: id,
		Workers:   b.workers,
		Cache:     b.cache,
		Observer:  observer,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	c = &Cube{
		ID:        id,
		Product:   p.ID,
		Request:   pr.Request,
		Grid:      target,
		Path:      decision.String(),
		Variables: names,
		Methods:   methods,
		Days:      dayInfos(days),
		CreatedAt: time.Now().UTC(),
		graph:     pl.graph,
		engine:    engine,
	}
	if err := checkConsistency(c.Days, grids); err != nil {
		return nil, err
	}

	logger.Info("cube planned",
		slog.String("product", p.ID),
		slog.String("path", c.Path),
		slog.String("crs", target.CRS.Code),
		slog.Int("width", target.Width),
		slog.Int("height", target.Height),
		slog.Int("days", len(c.Days)),
		slog.Int("tiles", tiles),
		slog.Int("nodes", pl.graph.Len()),
		slog.Duration("duration", time.Since(start)),
	)
	return c, nil
}

func (b *Builder) dropZeroSized(tiles []tile.Descriptor) []tile.Descriptor {
	out := make([]tile.Descriptor, 0, len(tiles))
	for _, d := range tiles {
		if d.ZeroSized() {
			b.logger.Warn("skipping zero-sized tile", slog.String("tile_id", d.ID))
			continue
		}
		out = append(out, d)
	}
	return out
}

// checkVariables fails when a selected variable is absent from every tile.
func checkVariables(tiles []tile.Descriptor, names []string) error {
	for _, n := range names {
		found := false
		for _, d := range tiles {
			if _, ok := d.Asset(n); ok {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %q is not present in any tile", cubeerr.ErrUnknownVariable, n)
		}
	}
	return nil
}

// zones summarises the native CRSs of the tiles. The lattice anchor of a
// zone is the grid origin of its first tile in priority order.
func zones(p *config.ProductConfig, days []tile.Day, names []string) []grid.Zone {
	var out []grid.Zone
	seen := make(map[string]bool)
	for _, day := range days {
		for _, d := range day.Tiles {
			if seen[d.CRS.Code] {
				continue
			}
			seen[d.CRS.Code] = true
			z := grid.Zone{
				CRS:         d.CRS,
				Irregular:   p.Irregular || d.Irregular(),
				Resolutions: p.NativeResolutions,
			}
			for _, n := range names {
				if a, ok := d.Asset(n); ok {
					z.AnchorX, z.AnchorY = a.Grid.OriginX, a.Grid.OriginY
					break
				}
			}
			out = append(out, z)
		}
	}
	return out
}

func dayInfos(days []tile.Day) []Day {
	out := make([]Day, len(days))
	for i, d := range days {
		info := Day{
			Time:             d.Day,
			FirstAcquisition: d.FirstAcquisition,
			Zones:            d.Zones,
			Tiles:            make([]string, len(d.Tiles)),
		}
		for j, t := range d.Tiles {
			info.Tiles[j] = t.ID
			if t.SelfLink != "" {
				info.Links = append(info.Links, t.SelfLink)
			}
		}
		out[i] = info
	}
	return out
}

// Package rectify sequences the rectification of irregular tiles and absorbs
// per-tile failures.
package rectify

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/robert-malhotra/stac-cube/internal/cubeerr"
	"github.com/robert-malhotra/stac-cube/internal/grid"
	"github.com/robert-malhotra/stac-cube/internal/method"
	"github.com/robert-malhotra/stac-cube/internal/raster"
	"github.com/robert-malhotra/stac-cube/internal/resample"
)

// FailureRecorder counts rectification failures.
type FailureRecorder interface {
	RectifyFailed(variable string)
}

// Input is one tile variable on its irregular grid.
type Input struct {
	TileID      string
	Variable    string
	Raster      *raster.Raster
	Geolocation raster.Geolocation
	// Resolution is the output pixel size in degrees.
	Resolution  float64
	Aggregation method.Aggregation
}

// Result is a rectified tile variable tagged with its source tile.
type Result struct {
	TileID string
	Raster *raster.Raster
	Grid   grid.Spec
}

// Rectifier calls the resampling collaborator for irregular tiles.
type Rectifier struct {
	resampler resample.Resampler
	recorder  FailureRecorder
	logger    *slog.Logger
}

// New creates a Rectifier.
func New(r resample.Resampler) *Rectifier {
	return &Rectifier{resampler: r, logger: slog.Default()}
}

// WithLogger sets the logger for degraded-quality warnings.
func (r *Rectifier) WithLogger(logger *slog.Logger) *Rectifier {
	r.logger = logger
	return r
}

// WithRecorder sets the failure counter.
func (r *Rectifier) WithRecorder(rec FailureRecorder) *Rectifier {
	r.recorder = rec
	return r
}

// Tile rectifies one input. A failure is logged and returns nil so that
// only this tile drops out of its mosaic.
func (r *Rectifier) Tile(in Input) *Result {
	out, g, err := r.resampler.Rectify(in.Raster, in.Geolocation, in.Resolution, in.Aggregation)
	if err != nil {
		if !errors.Is(err, cubeerr.ErrTileRectification) {
			err = fmt.Errorf("%w: %v", cubeerr.ErrTileRectification, err)
		}
		r.logger.Warn("excluding tile from mosaic",
			slog.String("tile_id", in.TileID),
			slog.String("variable", in.Variable),
			slog.String("error", err.Error()),
		)
		if r.recorder != nil {
			r.recorder.RectifyFailed(in.Variable)
		}
		return nil
	}
	return &Result{TileID: in.TileID, Raster: out, Grid: g}
}

// Group rectifies inputs in order and returns the successful results in the
// same relative order.
func (r *Rectifier) Group(inputs []Input) []Result {
	out := make([]Result, 0, len(inputs))
	for _, in := range inputs {
		if res := r.Tile(in); res != nil {
			out = append(out, *res)
		}
	}
	return out
}

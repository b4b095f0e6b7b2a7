// Package assetio reads raster assets. Assets are uncompressed row-major
// little-endian sample buffers served over HTTP or from the local disk.
package assetio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/robert-malhotra/stac-cube/internal/raster"
	"github.com/robert-malhotra/stac-cube/internal/tile"
)

// GeolocationDataType is the sample type of longitude and latitude assets.
const GeolocationDataType = "float32"

// Reader loads tile assets into rasters.
type Reader interface {
	ReadAsset(ctx context.Context, a tile.Asset) (*raster.Raster, error)
	ReadGeolocation(ctx context.Context, g tile.Geolocation) (raster.Geolocation, error)
}

// HTTPReader reads assets over HTTP(S) and from file:// or plain paths.
type HTTPReader struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewReader creates an asset reader.
func NewReader(timeout time.Duration) *HTTPReader {
	return &HTTPReader{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 32,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: slog.Default(),
	}
}

// WithLogger sets a custom logger for the reader
func (r *HTTPReader) WithLogger(logger *slog.Logger) *HTTPReader {
	r.logger = logger
	return r
}

// ReadAsset reads the raster of a tile asset. Samples equal to the asset's
// no-data value become NaN.
func (r *HTTPReader) ReadAsset(ctx context.Context, a tile.Asset) (*raster.Raster, error) {
	return r.read(ctx, a.Href, a.DataType, a.Grid.Height, a.Grid.Width, a.NoData)
}

// ReadGeolocation reads the longitude and latitude arrays of an irregular
// tile.
func (r *HTTPReader) ReadGeolocation(ctx context.Context, g tile.Geolocation) (raster.Geolocation, error) {
	lon, err := r.read(ctx, g.LonHref, GeolocationDataType, g.Height, g.Width, nil)
	if err != nil {
		return raster.Geolocation{}, fmt.Errorf("longitude: %w", err)
	}
	lat, err := r.read(ctx, g.LatHref, GeolocationDataType, g.Height, g.Width, nil)
	if err != nil {
		return raster.Geolocation{}, fmt.Errorf("latitude: %w", err)
	}
	return raster.Geolocation{Lon: lon, Lat: lat}, nil
}

func (r *HTTPReader) read(ctx context.Context, href, dtype string, rows, cols int, nodata *float64) (*raster.Raster, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("asset %s has invalid shape %dx%d", href, rows, cols)
	}
	size, err := SampleSize(dtype)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := r.fetch(ctx, href)
	if err != nil {
		return nil, err
	}
	r.logger.DebugContext(ctx, "asset read",
		slog.String("href", href),
		slog.Int("bytes", len(data)),
		slog.Duration("duration", time.Since(start)),
	)

	if want := rows * cols * size; len(data) != want {
		return nil, fmt.Errorf("asset %s has %d bytes, want %d for %dx%d %s", href, len(data), want, rows, cols, dtype)
	}
	return Decode(data, dtype, rows, cols, nodata)
}

func (r *HTTPReader) fetch(ctx context.Context, href string) ([]byte, error) {
	u, err := url.Parse(href)
	if err != nil {
		return nil, fmt.Errorf("invalid asset href %q: %w", href, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	case "file":
		return os.ReadFile(u.Path)
	case "":
		return os.ReadFile(href)
	default:
		return nil, fmt.Errorf("unsupported asset scheme %q", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "stac-cube/1.0")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.logger.ErrorContext(ctx, "asset request failed",
			slog.String("error", err.Error()),
			slog.String("href", href),
		)
		return nil, fmt.Errorf("asset request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("asset %s returned status %d", href, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

var sampleSizes = map[string]int{
	"int8": 1, "uint8": 1,
	"int16": 2, "uint16": 2,
	"int32": 4, "uint32": 4, "float32": 4,
	"int64": 8, "uint64": 8, "float64": 8,
}

// SampleSize returns the size in bytes of one sample of dtype.
func SampleSize(dtype string) (int, error) {
	n, ok := sampleSizes[strings.ToLower(dtype)]
	if !ok {
		return 0, fmt.Errorf("unsupported sample type %q", dtype)
	}
	return n, nil
}

// Decode converts little-endian samples of dtype into a raster. Samples equal
// to nodata, and NaN floats, are stored as NaN.
func Decode(data []byte, dtype string, rows, cols int, nodata *float64) (*raster.Raster, error) {
	size, err := SampleSize(dtype)
	if err != nil {
		return nil, err
	}
	if len(data) != rows*cols*size {
		return nil, fmt.Errorf("%d bytes cannot hold %dx%d %s samples", len(data), rows, cols, dtype)
	}

	le := binary.LittleEndian
	at := func(i int) float64 {
		b := data[i*size:]
		switch strings.ToLower(dtype) {
		case "int8":
			return float64(int8(b[0]))
		case "uint8":
			return float64(b[0])
		case "int16":
			return float64(int16(le.Uint16(b)))
		case "uint16":
			return float64(le.Uint16(b))
		case "int32":
			return float64(int32(le.Uint32(b)))
		case "uint32":
			return float64(le.Uint32(b))
		case "float32":
			return float64(math.Float32frombits(le.Uint32(b)))
		case "int64":
			return float64(int64(le.Uint64(b)))
		case "uint64":
			return float64(le.Uint64(b))
		default:
			return math.Float64frombits(le.Uint64(b))
		}
	}

	out := make([]float64, rows*cols)
	for i := range out {
		v := at(i)
		if nodata != nil && v == *nodata {
			v = math.NaN()
		}
		out[i] = v
	}
	return raster.FromSlice(rows, cols, out)
}

// Encode writes r as little-endian samples of dtype. NaN is written as nodata
// when given, and as zero for integer types otherwise.
func Encode(r *raster.Raster, dtype string, nodata *float64) ([]byte, error) {
	size, err := SampleSize(dtype)
	if err != nil {
		return nil, err
	}

	le := binary.LittleEndian
	out := make([]byte, len(r.Data)*size)
	for i, v := range r.Data {
		if math.IsNaN(v) && nodata != nil {
			v = *nodata
		}
		b := out[i*size:]
		switch strings.ToLower(dtype) {
		case "int8", "uint8":
			b[0] = byte(int64(nanToZero(v)))
		case "int16", "uint16":
			le.PutUint16(b, uint16(int64(nanToZero(v))))
		case "int32", "uint32":
			le.PutUint32(b, uint32(int64(nanToZero(v))))
		case "float32":
			le.PutUint32(b, math.Float32bits(float32(v)))
		case "int64", "uint64":
			le.PutUint64(b, uint64(int64(nanToZero(v))))
		default:
			le.PutUint64(b, math.Float64bits(v))
		}
	}
	return out, nil
}

func nanToZero(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}

// Package cubeerr defines the failure taxonomy of a cube build.
package cubeerr

import "errors"

var (
	// ErrQueryEmpty is returned when the catalog yields no tiles for the request.
	ErrQueryEmpty = errors.New("no tiles found")

	// ErrUnknownVariable is returned when a requested variable is not offered by the product.
	ErrUnknownVariable = errors.New("unknown variable")

	// ErrUnresolvableMethod is returned when no aggregation or interpolation method
	// can be bound to a variable.
	ErrUnresolvableMethod = errors.New("unresolvable resampling method")

	// ErrIncompatibleGrid is returned when mosaics feeding one cube disagree on their grid.
	ErrIncompatibleGrid = errors.New("incompatible grids")

	// ErrTileRectification marks a per-tile rectification failure. It never aborts a build.
	ErrTileRectification = errors.New("tile rectification failed")

	// ErrGridAmbiguity is returned when a request cannot be classified as a
	// native-crop or a reprojection request.
	ErrGridAmbiguity = errors.New("ambiguous grid request")

	// ErrInvalidRequest is returned for malformed request parameters.
	ErrInvalidRequest = errors.New("invalid request")
)

// Error codes reported by the HTTP surface.
const (
	CodeNoData          = "NoData"
	CodeUnknownVariable = "UnknownVariable"
	CodeInvalidMethod   = "UnresolvableMethod"
	CodeGridAmbiguity   = "GridAmbiguity"
	CodeInvalidRequest  = "InvalidParameterValue"
	CodeInternal        = "ServerError"
	CodeUpstream        = "UpstreamServiceError"
)

// Code classifies err into one of the error codes above. Errors outside the
// taxonomy are attributed to the upstream catalog or asset services.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrQueryEmpty):
		return CodeNoData
	case errors.Is(err, ErrUnknownVariable):
		return CodeUnknownVariable
	case errors.Is(err, ErrUnresolvableMethod):
		return CodeInvalidMethod
	case errors.Is(err, ErrGridAmbiguity):
		return CodeGridAmbiguity
	case errors.Is(err, ErrInvalidRequest):
		return CodeInvalidRequest
	case errors.Is(err, ErrIncompatibleGrid):
		return CodeInternal
	default:
		return CodeUpstream
	}
}

// IsConfiguration reports whether err is a request configuration error that is
// raised before any tile access.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrUnknownVariable) ||
		errors.Is(err, ErrUnresolvableMethod) ||
		errors.Is(err, ErrGridAmbiguity) ||
		errors.Is(err, ErrInvalidRequest)
}

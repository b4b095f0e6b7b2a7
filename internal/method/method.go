// Package method binds an aggregation and an interpolation method to every
// requested variable.
package method

import (
	"fmt"
	"strings"

	"github.com/robert-malhotra/stac-cube/internal/cubeerr"
)

// Aggregation combines a block of source pixels into one coarser pixel.
type Aggregation string

// Supported aggregation methods.
const (
	AggCenter Aggregation = "center"
	AggFirst  Aggregation = "first"
	AggLast   Aggregation = "last"
	AggMin    Aggregation = "min"
	AggMax    Aggregation = "max"
	AggMean   Aggregation = "mean"
	AggMedian Aggregation = "median"
	AggMode   Aggregation = "mode"
	AggSum    Aggregation = "sum"
	AggCount  Aggregation = "count"
	AggStd    Aggregation = "std"
	AggVar    Aggregation = "var"
	AggProd   Aggregation = "prod"
)

// Aggregations lists every supported aggregation method.
var Aggregations = []Aggregation{
	AggCenter, AggFirst, AggLast, AggMin, AggMax, AggMean, AggMedian,
	AggMode, AggSum, AggCount, AggStd, AggVar, AggProd,
}

// Interpolation estimates values between source pixel centres.
type Interpolation string

// Supported interpolation methods.
const (
	InterpNearest  Interpolation = "nearest"
	InterpBilinear Interpolation = "bilinear"
	InterpCubic    Interpolation = "cubic"
)

// Interpolations lists every supported interpolation method.
var Interpolations = []Interpolation{InterpNearest, InterpBilinear, InterpCubic}

// ParseAggregation parses a case-insensitive aggregation name.
func ParseAggregation(s string) (Aggregation, error) {
	a := Aggregation(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Aggregations {
		if a == known {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: unknown aggregation method %q", cubeerr.ErrUnresolvableMethod, s)
}

// ParseInterpolation parses a case-insensitive interpolation name. The spline
// orders 0, 1 and 3 are accepted as aliases.
func ParseInterpolation(s string) (Interpolation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nearest", "0":
		return InterpNearest, nil
	case "bilinear", "linear", "1":
		return InterpBilinear, nil
	case "cubic", "3":
		return InterpCubic, nil
	}
	return "", fmt.Errorf("%w: unknown interpolation method %q", cubeerr.ErrUnresolvableMethod, s)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Aggregation) UnmarshalText(b []byte) error {
	v, err := ParseAggregation(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *Interpolation) UnmarshalText(b []byte) error {
	v, err := ParseInterpolation(string(b))
	if err != nil {
		return err
	}
	*i = v
	return nil
}

// categoricalSafe reports whether a picks an existing source value.
func (a Aggregation) categoricalSafe() bool {
	switch a {
	case AggCenter, AggFirst, AggLast, AggMode:
		return true
	}
	return false
}

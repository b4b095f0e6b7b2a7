package method

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/robert-malhotra/stac-cube/internal/cubeerr"
)

// Data type classes.
const (
	ClassCategorical = "categorical"
	ClassContinuous  = "continuous"
)

// Choice is a partial method selection. Empty fields defer to the next tier.
type Choice struct {
	Aggregation   Aggregation   `json:"aggregation,omitempty"`
	Interpolation Interpolation `json:"interpolation,omitempty"`
}

// Overrides are the caller's method selections. DTypes keys are either a
// class ("categorical", "continuous") or a sample type ("uint8", "float32").
type Overrides struct {
	Variables map[string]Choice `json:"variables,omitempty"`
	DTypes    map[string]Choice `json:"dtypes,omitempty"`
}

// Variable describes the source of one requested variable.
type Variable struct {
	Name        string
	DataType    string
	Categorical bool
}

// Spec is the resolved method pair of one variable.
type Spec struct {
	Aggregation   Aggregation   `json:"aggregation"`
	Interpolation Interpolation `json:"interpolation"`
	Class         string        `json:"class"`
}

// Defaults returns the built-in methods for a data type class.
func Defaults(class string) Choice {
	if class == ClassCategorical {
		return Choice{Aggregation: AggMode, Interpolation: InterpNearest}
	}
	return Choice{Aggregation: AggMean, Interpolation: InterpBilinear}
}

// Classify maps a sample type to a class. Variables flagged categorical are
// always categorical.
func Classify(v Variable) (string, error) {
	if v.Categorical {
		return ClassCategorical, nil
	}
	switch strings.ToLower(v.DataType) {
	case "float16", "float32", "float64", "":
		return ClassContinuous, nil
	case "bool", "int8", "int16", "int32", "int64", "uint8", "uint16", "uint32", "uint64":
		return ClassCategorical, nil
	}
	return "", fmt.Errorf("%w: unsupported data type %q for variable %q", cubeerr.ErrUnresolvableMethod, v.DataType, v.Name)
}

// Resolve binds a method pair to every variable. Each field is taken from, in
// order, the variable override, a data type override keyed by sample type,
// a data type override keyed by class, and the class default. Non-default
// choices for categorical variables are logged as warnings.
func Resolve(vars []Variable, o Overrides, logger *slog.Logger) (map[string]Spec, error) {
	if logger == nil {
		logger = slog.Default()
	}

	out := make(map[string]Spec, len(vars))
	for _, v := range vars {
		class, err := Classify(v)
		if err != nil {
			return nil, err
		}

		tiers := []Choice{
			o.Variables[v.Name],
			o.DTypes[strings.ToLower(v.DataType)],
			o.DTypes[class],
			Defaults(class),
		}
		var s Spec
		s.Class = class
		for _, c := range tiers {
			if s.Aggregation == "" {
				s.Aggregation = c.Aggregation
			}
			if s.Interpolation == "" {
				s.Interpolation = c.Interpolation
			}
		}

		if class == ClassCategorical {
			if !s.Aggregation.categoricalSafe() {
				logger.Warn(fmt.Sprintf("Aggregation method '%s' selected for '%s' (categorical data). This may produce corrupted results.", s.Aggregation, v.Name))
			}
			if s.Interpolation != InterpNearest {
				logger.Warn(fmt.Sprintf("Interpolation method '%s' selected for '%s' (categorical data). This may produce corrupted results.", s.Interpolation, v.Name))
			}
		}
		out[v.Name] = s
	}
	return out, nil
}

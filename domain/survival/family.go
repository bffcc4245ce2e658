package survival

import (
	"fmt"
	"strings"

	"goequity/domain/core"
)

// Family identifies a parametric survival distribution
type Family string

const (
	FamilyWeibull     Family = "weibull"
	FamilyLogLogistic Family = "loglogistic"
	FamilyGamma       Family = "gamma"
)

// familySpec describes the natural-scale parameters of a family, in the
// order they appear in the fitted estimate vector.
type familySpec struct {
	paramNames []string
	build      func(params []float64) Distribution
}

var families = map[Family]familySpec{
	FamilyWeibull: {
		paramNames: []string{"shape", "scale"},
		build:      func(p []float64) Distribution { return Weibull{Shape: p[0], Scale: p[1]} },
	},
	FamilyLogLogistic: {
		paramNames: []string{"shape", "scale"},
		build:      func(p []float64) Distribution { return LogLogistic{Shape: p[0], Scale: p[1]} },
	},
	FamilyGamma: {
		paramNames: []string{"shape", "rate"},
		build:      func(p []float64) Distribution { return Gamma{Shape: p[0], Rate: p[1]} },
	},
}

// ParseFamily normalises a family name ("Weibull", "llogis", ...) to a Family
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "weibull", "weibull.quiet", "weibullaft":
		return FamilyWeibull, nil
	case "loglogistic", "llogis", "log-logistic":
		return FamilyLogLogistic, nil
	case "gamma":
		return FamilyGamma, nil
	}
	return "", fmt.Errorf("%w: %q", core.ErrUnknownFamily, s)
}

// Families lists the supported families in a stable order
func Families() []Family {
	return []Family{FamilyWeibull, FamilyLogLogistic, FamilyGamma}
}

// ParamCount returns the number of parameters of the family
func (f Family) ParamCount() int {
	return len(families[f].paramNames)
}

// ParamNames returns the natural-scale parameter names
func (f Family) ParamNames() []string {
	names := families[f].paramNames
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// Valid reports whether f is a supported family
func (f Family) Valid() bool {
	_, ok := families[f]
	return ok
}

func (f Family) String() string { return string(f) }

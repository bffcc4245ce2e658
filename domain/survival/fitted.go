package survival

import (
	"fmt"
	"math"

	"goequity/domain/core"
)

// symmetryTolerance bounds |Σij - Σji| relative to the largest entry
const symmetryTolerance = 1e-9

// FittedDistribution is the output of the external fitting step for one arm:
// a point estimate on the log (estimation) scale and its covariance matrix.
type FittedDistribution struct {
	Family     Family      `json:"family" yaml:"family"`
	Estimate   []float64   `json:"estimate" yaml:"estimate"`
	Covariance [][]float64 `json:"covariance" yaml:"covariance"`
}

// Validate checks dimensions, finiteness and symmetry. Positive
// semi-definiteness is left to the resampler, which has to decompose the
// matrix anyway.
func (f FittedDistribution) Validate() error {
	if !f.Family.Valid() {
		return fmt.Errorf("%w: %q", core.ErrUnknownFamily, f.Family)
	}

	k := f.Family.ParamCount()
	if len(f.Estimate) != k {
		return fmt.Errorf("%w: %s estimate has %d entries, want %d",
			core.ErrDimensionMismatch, f.Family, len(f.Estimate), k)
	}
	for i, v := range f.Estimate {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return core.NewParameterError(f.Family.String(), i, v)
		}
	}

	if len(f.Covariance) != k {
		return fmt.Errorf("%w: covariance has %d rows, want %d",
			core.ErrDimensionMismatch, len(f.Covariance), k)
	}
	maxAbs := 0.0
	for i, row := range f.Covariance {
		if len(row) != k {
			return fmt.Errorf("%w: covariance row %d has %d columns, want %d",
				core.ErrDimensionMismatch, i, len(row), k)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: non-finite covariance entry", core.ErrSingularCovariance)
			}
			maxAbs = math.Max(maxAbs, math.Abs(v))
		}
	}
	for i := 0; i < k; i++ {
		for j := i + 1; j < k; j++ {
			if math.Abs(f.Covariance[i][j]-f.Covariance[j][i]) > symmetryTolerance*math.Max(1, maxAbs) {
				return fmt.Errorf("%w: covariance is not symmetric at (%d,%d)",
					core.ErrSingularCovariance, i, j)
			}
		}
	}
	return nil
}

// NaturalParams maps the log-scale estimate to natural-scale parameters
func (f FittedDistribution) NaturalParams() []float64 {
	return ToNatural(f.Estimate)
}

// PointDistribution returns the distribution at the point estimate
func (f FittedDistribution) PointDistribution() (Distribution, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return NewDistribution(f.Family, f.NaturalParams())
}

// Clone returns a deep copy
func (f FittedDistribution) Clone() FittedDistribution {
	out := FittedDistribution{Family: f.Family}
	out.Estimate = append([]float64(nil), f.Estimate...)
	out.Covariance = make([][]float64, len(f.Covariance))
	for i, row := range f.Covariance {
		out.Covariance[i] = append([]float64(nil), row...)
	}
	return out
}

// HashFields flattens the model for fingerprinting
func (f FittedDistribution) HashFields(prefix string, fields map[string]interface{}) {
	fields[prefix+".family"] = string(f.Family)
	fields[prefix+".estimate"] = f.Estimate
	fields[prefix+".covariance"] = f.Covariance
}

// ToNatural applies the elementwise exponential used by log-scale fits
func ToNatural(logParams []float64) []float64 {
	out := make([]float64, len(logParams))
	for i, v := range logParams {
		out[i] = math.Exp(v)
	}
	return out
}

// FromNatural is the inverse of ToNatural
func FromNatural(params []float64) []float64 {
	out := make([]float64, len(params))
	for i, v := range params {
		out[i] = math.Log(v)
	}
	return out
}

// NewFitted builds a fitted model from natural-scale parameters and a
// log-scale covariance. Mostly useful for fixtures and hand-entered inputs.
func NewFitted(family Family, naturalParams []float64, covariance [][]float64) FittedDistribution {
	if covariance == nil {
		k := len(naturalParams)
		covariance = make([][]float64, k)
		for i := range covariance {
			covariance[i] = make([]float64, k)
		}
	}
	return FittedDistribution{
		Family:     family,
		Estimate:   FromNatural(naturalParams),
		Covariance: covariance,
	}
}

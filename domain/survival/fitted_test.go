package survival

import (
	"math"
	"testing"

	"goequity/domain/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFittedDistribution_Validate(t *testing.T) {
	good := FittedDistribution{
		Family:     FamilyWeibull,
		Estimate:   []float64{math.Log(3), math.Log(10)},
		Covariance: [][]float64{{0.01, 0.002}, {0.002, 0.005}},
	}
	require.NoError(t, good.Validate())

	tests := []struct {
		name    string
		mutate  func(f *FittedDistribution)
		wantErr error
	}{
		{"unknown family", func(f *FittedDistribution) { f.Family = "exp" }, core.ErrUnknownFamily},
		{"short estimate", func(f *FittedDistribution) { f.Estimate = f.Estimate[:1] }, core.ErrDimensionMismatch},
		{"nan estimate", func(f *FittedDistribution) { f.Estimate[0] = math.NaN() }, core.ErrInvalidParameter},
		{"missing row", func(f *FittedDistribution) { f.Covariance = f.Covariance[:1] }, core.ErrDimensionMismatch},
		{"ragged row", func(f *FittedDistribution) { f.Covariance[1] = []float64{0.002} }, core.ErrDimensionMismatch},
		{"asymmetric", func(f *FittedDistribution) { f.Covariance[0][1] = 0.5 }, core.ErrSingularCovariance},
		{"inf entry", func(f *FittedDistribution) { f.Covariance[1][1] = math.Inf(1) }, core.ErrSingularCovariance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := good.Clone()
			tt.mutate(&f)
			assert.ErrorIs(t, f.Validate(), tt.wantErr)
		})
	}
}

func TestFittedDistribution_PointDistribution(t *testing.T) {
	f := NewFitted(FamilyWeibull, []float64{3.5, 8}, nil)
	require.NoError(t, f.Validate())

	dist, err := f.PointDistribution()
	require.NoError(t, err)

	w, ok := dist.(Weibull)
	require.True(t, ok)
	assert.InDelta(t, 3.5, w.Shape, 1e-12)
	assert.InDelta(t, 8, w.Scale, 1e-12)
}

func TestFittedDistribution_CloneIsDeep(t *testing.T) {
	f := NewFitted(FamilyGamma, []float64{2, 1}, [][]float64{{0.1, 0}, {0, 0.1}})
	c := f.Clone()
	c.Estimate[0] = 99
	c.Covariance[0][0] = 99

	assert.NotEqual(t, 99.0, f.Estimate[0])
	assert.NotEqual(t, 99.0, f.Covariance[0][0])
}

func TestNaturalScaleRoundTrip(t *testing.T) {
	params := []float64{0.25, 1, 40}
	back := ToNatural(FromNatural(params))
	for i := range params {
		assert.InDelta(t, params[i], back[i], 1e-12)
	}
}

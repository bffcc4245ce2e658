package resample

import (
	"context"
	"testing"

	"goequity/domain/core"
	"goequity/domain/survival"
	"goequity/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResampler() *Resampler {
	return NewResampler(testkit.NewTestKit().RNGAdapter())
}

func TestResample_Deterministic(t *testing.T) {
	r := newResampler()
	fitted := testkit.ComparatorWeibull(testkit.SmallCovariance())
	ctx := context.Background()

	d1, err := r.Resample(ctx, fitted, 11, "comparator")
	require.NoError(t, err)

	// unrelated draws in between must not change the result
	_, err = r.Resample(ctx, fitted, 12, "intervention")
	require.NoError(t, err)

	d2, err := r.Resample(ctx, fitted, 11, "comparator")
	require.NoError(t, err)
	assert.Equal(t, d1.Params(), d2.Params())

	d3, err := r.Resample(ctx, fitted, 12, "comparator")
	require.NoError(t, err)
	assert.NotEqual(t, d1.Params(), d3.Params())
}

func TestResample_PreparedMatchesOneShot(t *testing.T) {
	r := newResampler()
	fitted := testkit.InterventionWeibull(testkit.SmallCovariance())
	ctx := context.Background()

	p, err := r.Prepare(fitted)
	require.NoError(t, err)
	assert.Equal(t, survival.FamilyWeibull, p.Family())

	for seed := uint64(1); seed <= 5; seed++ {
		a, err := r.Draw(ctx, p, seed, "intervention")
		require.NoError(t, err)
		b, err := r.Resample(ctx, fitted, seed, "intervention")
		require.NoError(t, err)
		assert.Equal(t, a.Params(), b.Params())
	}
}

func TestResample_ZeroCovarianceIsPointEstimate(t *testing.T) {
	r := newResampler()
	fitted := testkit.ComparatorWeibull(testkit.ZeroCovariance(2))
	point, err := fitted.PointDistribution()
	require.NoError(t, err)

	for seed := uint64(0); seed < 20; seed++ {
		d, err := r.Resample(context.Background(), fitted, seed, "comparator")
		require.NoError(t, err)
		assert.Equal(t, point.Params(), d.Params())
	}
}

func TestResample_DrawsArePositive(t *testing.T) {
	r := newResampler()
	fitted := survival.NewFitted(survival.FamilyGamma, []float64{1.5, 0.2}, [][]float64{{0.5, 0.1}, {0.1, 0.5}})
	p, err := r.Prepare(fitted)
	require.NoError(t, err)

	for seed := uint64(0); seed < 100; seed++ {
		d, err := r.Draw(context.Background(), p, seed, "comparator")
		require.NoError(t, err)
		for _, v := range d.Params() {
			assert.Greater(t, v, 0.0)
		}
	}
}

func TestPrepare_Errors(t *testing.T) {
	r := newResampler()

	tests := []struct {
		name    string
		fitted  survival.FittedDistribution
		wantErr error
	}{
		{
			name:    "not positive semi-definite",
			fitted:  testkit.ComparatorWeibull([][]float64{{1, 2}, {2, 1}}),
			wantErr: core.ErrSingularCovariance,
		},
		{
			name:    "asymmetric",
			fitted:  testkit.ComparatorWeibull([][]float64{{1, 0.5}, {0, 1}}),
			wantErr: core.ErrSingularCovariance,
		},
		{
			name:    "wrong covariance shape",
			fitted:  testkit.ComparatorWeibull([][]float64{{1}}),
			wantErr: core.ErrDimensionMismatch,
		},
		{
			name: "wrong estimate length",
			fitted: survival.FittedDistribution{
				Family:     survival.FamilyWeibull,
				Estimate:   []float64{1, 2, 3},
				Covariance: testkit.ZeroCovariance(3),
			},
			wantErr: core.ErrDimensionMismatch,
		},
		{
			name:    "unknown family",
			fitted:  survival.FittedDistribution{Family: "pareto"},
			wantErr: core.ErrUnknownFamily,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Prepare(tt.fitted)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPrepare_TinyNegativeEigenvalueTolerated(t *testing.T) {
	// rank-one matrix with rounding noise
	cov := [][]float64{{1, 1 + 1e-13}, {1 + 1e-13, 1}}
	_, err := newResampler().Prepare(testkit.ComparatorWeibull(cov))
	assert.NoError(t, err)
}

func TestResample_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newResampler().Resample(ctx, testkit.ComparatorWeibull(testkit.SmallCovariance()), 1, "comparator")
	assert.ErrorIs(t, err, context.Canceled)
}

package testkit

import (
	"context"
	"math/rand/v2"

	"goequity/adapters/memory"
	"goequity/adapters/rng"
	"goequity/domain/survival"
	"goequity/ports"
)

// TestKit provides testing utilities and fixtures
type TestKit struct {
	repo *memory.AnalysisRepository // Shared repository instance
}

// NewTestKit creates a new test kit instance
func NewTestKit() *TestKit {
	return &TestKit{repo: memory.NewAnalysisRepository()}
}

// RNGAdapter returns the production PCG adapter; tests must see the same
// streams the binaries do.
func (t *TestKit) RNGAdapter() ports.RNGPort {
	return rng.NewPCGAdapter()
}

// AnalysisRepository returns the shared in-memory repository
func (t *TestKit) AnalysisRepository() *memory.AnalysisRepository {
	return t.repo
}

// Fixtures

// ComparatorWeibull is Weibull(shape 3.5, scale 8) at the point estimate
func ComparatorWeibull(cov [][]float64) survival.FittedDistribution {
	return survival.NewFitted(survival.FamilyWeibull, []float64{3.5, 8}, cov)
}

// InterventionWeibull is Weibull(shape 3, scale 10) at the point estimate
func InterventionWeibull(cov [][]float64) survival.FittedDistribution {
	return survival.NewFitted(survival.FamilyWeibull, []float64{3, 10}, cov)
}

// SmallCovariance is a well-conditioned log-scale covariance for two-parameter fits
func SmallCovariance() [][]float64 {
	return [][]float64{
		{0.0040, -0.0006},
		{-0.0006, 0.0025},
	}
}

// ZeroCovariance returns a k×k zero matrix
func ZeroCovariance(k int) [][]float64 {
	out := make([][]float64, k)
	for i := range out {
		out[i] = make([]float64, k)
	}
	return out
}

// FailingRNGAdapter wraps an RNG port and fails for selected seeds. Used to
// exercise failure policies without crafting pathological models.
type FailingRNGAdapter struct {
	Inner     ports.RNGPort
	FailSeeds map[uint64]error
}

// Source fails with the configured error when seed is listed
func (f *FailingRNGAdapter) Source(ctx context.Context, stream string, seed uint64) (rand.Source, error) {
	if err, ok := f.FailSeeds[seed]; ok {
		return nil, err
	}
	return f.Inner.Source(ctx, stream, seed)
}

// ValidateSeed delegates to the wrapped adapter
func (f *FailingRNGAdapter) ValidateSeed(ctx context.Context, stream string, seed uint64, expected []float64) error {
	return f.Inner.ValidateSeed(ctx, stream, seed, expected)
}

var _ ports.RNGPort = (*FailingRNGAdapter)(nil)

package resample

import (
	"context"
	"fmt"
	"math"

	"goequity/domain/core"
	"goequity/domain/survival"
	"goequity/ports"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// psdTolerance is the relative slack allowed on the smallest eigenvalue
const psdTolerance = 1e-10

// Resampler draws parameter vectors for a fitted model from its
// multivariate normal sampling distribution.
type Resampler struct {
	rng ports.RNGPort
}

// NewResampler creates a resampler over the given RNG port
func NewResampler(rng ports.RNGPort) *Resampler {
	return &Resampler{rng: rng}
}

// Prepared is a fitted model with its covariance already decomposed. It is
// read-only after construction and safe to share between goroutines.
type Prepared struct {
	family survival.Family
	mean   []float64
	cov    *distmv.PositivePartEigenSym
}

// Family returns the distribution family of the prepared model
func (p *Prepared) Family() survival.Family { return p.family }

// Prepare validates the fitted model and eigendecomposes its covariance
func (r *Resampler) Prepare(fitted survival.FittedDistribution) (*Prepared, error) {
	if err := fitted.Validate(); err != nil {
		return nil, err
	}

	k := len(fitted.Estimate)
	data := make([]float64, 0, k*k)
	for _, row := range fitted.Covariance {
		data = append(data, row...)
	}
	sym := mat.NewSymDense(k, data)

	var eig mat.EigenSym
	if ok := eig.Factorize(sym, true); !ok {
		return nil, fmt.Errorf("%w: eigendecomposition failed", core.ErrSingularCovariance)
	}

	// eigenvalues come back in ascending order
	values := eig.RawValues()
	smallest, largest := values[0], values[len(values)-1]
	if smallest < -psdTolerance*math.Max(1, math.Abs(largest)) {
		return nil, fmt.Errorf("%w: covariance is not positive semi-definite (eigenvalue %g)",
			core.ErrSingularCovariance, smallest)
	}

	return &Prepared{
		family: fitted.Family,
		mean:   append([]float64(nil), fitted.Estimate...),
		cov:    distmv.NewPositivePartEigenSym(&eig),
	}, nil
}

// Draw samples one natural-scale distribution for the (seed, stream) pair
func (r *Resampler) Draw(ctx context.Context, p *Prepared, seed uint64, stream string) (survival.Distribution, error) {
	src, err := r.rng.Source(ctx, stream, seed)
	if err != nil {
		return nil, err
	}
	logParams := distmv.NormalRandCov(nil, p.mean, p.cov, src)
	return survival.NewDistribution(p.family, survival.ToNatural(logParams))
}

// Resample prepares and draws in one step. Callers drawing many times from
// the same model should Prepare once and call Draw.
func (r *Resampler) Resample(ctx context.Context, fitted survival.FittedDistribution, seed uint64, stream string) (survival.Distribution, error) {
	p, err := r.Prepare(fitted)
	if err != nil {
		return nil, err
	}
	return r.Draw(ctx, p, seed, stream)
}

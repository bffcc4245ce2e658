package equity

import (
	"fmt"

	"goequity/domain/core"
	"goequity/domain/inequality"

	"gonum.org/v1/gonum/stat"
)

// AbsoluteDifference is the spread between the best- and worst-off stratum.
// A single group has no spread and yields exactly 0.
func AbsoluteDifference(hd inequality.HealthDistribution) (float64, error) {
	switch len(hd) {
	case 0:
		return 0, core.NewGroupCountError(0)
	case 1:
		return 0, nil
	}
	return hd[len(hd)-1] - hd[0], nil
}

// InequalityGradient is the least-squares slope of stratum value regressed
// on 1-based stratum rank: cov(rank, value) / var(rank).
func InequalityGradient(hd inequality.HealthDistribution) (float64, error) {
	n := len(hd)
	if n == 0 {
		return 0, core.NewGroupCountError(0)
	}
	if n < 2 {
		return 0, fmt.Errorf("%w: n_groups=%d", core.ErrInsufficientGroups, n)
	}
	if isFlat(hd) {
		return 0, nil
	}

	ranks := make([]float64, n)
	for i := range ranks {
		ranks[i] = float64(i + 1)
	}
	return stat.Covariance(ranks, hd, nil) / stat.Variance(ranks, nil), nil
}

// ComputeMetrics returns AD and IG for a health distribution. It fails with
// core.ErrInsufficientGroups for a single group because IG is undefined;
// callers that only need AD use AbsoluteDifference.
func ComputeMetrics(hd inequality.HealthDistribution) (inequality.Metrics, error) {
	ad, err := AbsoluteDifference(hd)
	if err != nil {
		return inequality.Metrics{}, err
	}
	ig, err := InequalityGradient(hd)
	if err != nil {
		return inequality.Metrics{}, err
	}
	return inequality.Metrics{AD: ad, IG: ig}, nil
}

func isFlat(values []float64) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}

package equity

import (
	"goequity/domain/core"
	"goequity/domain/inequality"
	"goequity/domain/survival"
)

// StratumProbabilities returns the mid-points of n equal-width probability
// bins: (k - 0.5) / n for k = 1..n.
func StratumProbabilities(nGroups int) ([]float64, error) {
	if nGroups < 1 {
		return nil, core.NewGroupCountError(nGroups)
	}
	probs := make([]float64, nGroups)
	n := float64(nGroups)
	for k := 1; k <= nGroups; k++ {
		probs[k-1] = (float64(k) - 0.5) / n
	}
	return probs, nil
}

// Stratify evaluates the quantile function of dist at each stratum
// mid-point, producing the health distribution. Each stratum is represented
// by its median member, so a zero lower bound never appears as a value.
func Stratify(dist survival.Distribution, nGroups int) (inequality.HealthDistribution, error) {
	probs, err := StratumProbabilities(nGroups)
	if err != nil {
		return nil, err
	}
	if err := dist.Validate(); err != nil {
		return nil, err
	}

	hd := make(inequality.HealthDistribution, nGroups)
	for i, p := range probs {
		hd[i] = dist.Quantile(p)
	}
	return hd, nil
}

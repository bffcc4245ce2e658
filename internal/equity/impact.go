package equity

import (
	"fmt"
	"math"

	"goequity/domain/core"
	"goequity/domain/inequality"
)

// ZeroDenominatorPolicy decides how a relative change against a zero
// comparator value is reported
type ZeroDenominatorPolicy string

const (
	// ZeroDenominatorError fails with core.ErrDivisionByZero
	ZeroDenominatorError ZeroDenominatorPolicy = "error"
	// ZeroDenominatorSentinel yields ±Inf, or NaN when the change is also zero
	ZeroDenominatorSentinel ZeroDenominatorPolicy = "sentinel"
)

// ParseZeroDenominatorPolicy accepts "", "error" or "sentinel"
func ParseZeroDenominatorPolicy(s string) (ZeroDenominatorPolicy, error) {
	switch ZeroDenominatorPolicy(s) {
	case "", ZeroDenominatorError:
		return ZeroDenominatorError, nil
	case ZeroDenominatorSentinel:
		return ZeroDenominatorSentinel, nil
	}
	return "", core.NewConfigError("zero_policy", fmt.Sprintf("%q is not one of error|sentinel", s))
}

// ComputeImpact returns absolute (intervention - comparator) and relative
// (absolute / comparator) changes for AD and IG.
func ComputeImpact(comparator, intervention inequality.Metrics, policy ZeroDenominatorPolicy) (inequality.Impact, error) {
	absAD := intervention.AD - comparator.AD
	relAD, err := relativeChange("ad", absAD, comparator.AD, policy)
	if err != nil {
		return inequality.Impact{}, err
	}

	absIG := intervention.IG - comparator.IG
	relIG, err := relativeChange("ig", absIG, comparator.IG, policy)
	if err != nil {
		return inequality.Impact{}, err
	}

	return inequality.Impact{
		AbsoluteAD: absAD,
		RelativeAD: relAD,
		AbsoluteIG: absIG,
		RelativeIG: relIG,
	}, nil
}

func relativeChange(metric string, absolute, denominator float64, policy ZeroDenominatorPolicy) (float64, error) {
	if denominator != 0 {
		return absolute / denominator, nil
	}
	if policy != ZeroDenominatorSentinel {
		return 0, fmt.Errorf("%w: comparator %s is 0", core.ErrDivisionByZero, metric)
	}
	switch {
	case absolute > 0:
		return math.Inf(1), nil
	case absolute < 0:
		return math.Inf(-1), nil
	default:
		return math.NaN(), nil
	}
}

package inequality

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunResult_JSONWithNonFinite(t *testing.T) {
	in := RunResult{
		Comparator:   Metrics{AD: 0, IG: 0},
		Intervention: Metrics{AD: 1.25, IG: 0.5},
		Impact: Impact{
			AbsoluteAD: 1.25,
			RelativeAD: math.Inf(1),
			AbsoluteIG: 0.5,
			RelativeIG: math.NaN(),
		},
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"ad_relative_change":"+Inf"`)
	assert.Contains(t, string(data), `"ig_relative_change":"NaN"`)

	var out RunResult
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in.Intervention, out.Intervention)
	assert.True(t, math.IsInf(out.Impact.RelativeAD, 1))
	assert.True(t, math.IsNaN(out.Impact.RelativeIG))
}

func TestProbabilisticReport_JSONRoundTrip(t *testing.T) {
	in := ProbabilisticReport{
		NGroups:         5,
		Iterations:      2,
		Successful:      0,
		ConfidenceLevel: 0.95,
		BaseSeed:        math.MaxUint64,
		Summaries: map[OutputName]SummaryStatistic{
			OutputADComparator: {Mean: 2, Lower: 1, Upper: 3, StdDev: 0.5, N: 2},
			OutputADRelativeChange: {
				Mean: math.NaN(), Lower: math.NaN(), Upper: math.NaN(), StdDev: math.NaN(),
			},
		},
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out ProbabilisticReport
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, uint64(math.MaxUint64), out.BaseSeed)
	assert.Equal(t, in.Summaries[OutputADComparator], out.Summaries[OutputADComparator])
	assert.True(t, math.IsNaN(out.Summaries[OutputADRelativeChange].Mean))
}

func TestHealthDistribution_JSON(t *testing.T) {
	data, err := json.Marshal(BaseCaseReport{Comparator: HealthDistribution{1, 2.5}})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"comparator_distribution":[1,2.5]`)
	assert.Contains(t, string(data), `"intervention_distribution":null`)

	var out BaseCaseReport
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, HealthDistribution{1, 2.5}, out.Comparator)
	assert.Nil(t, out.Intervention)
}

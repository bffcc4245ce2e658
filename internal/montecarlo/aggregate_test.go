package montecarlo

import (
	"errors"
	"math"
	"testing"

	"goequity/domain/inequality"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantile_Type7(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	tests := []struct {
		q    float64
		want float64
	}{
		{0, 1},
		{1, 10},
		{0.5, 5.5},
		{0.025, 1.225},
		{0.975, 9.775},
		{0.25, 3.25},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, quantile(data, tt.q), 1e-12, "q=%v", tt.q)
	}

	assert.Equal(t, 4.2, quantile([]float64{4.2}, 0.025))
	assert.True(t, math.IsNaN(quantile(nil, 0.5)))
}

func TestSummarizeColumn(t *testing.T) {
	values := []float64{10, 9, 8, 7, 6, 5, 4, 3, 2, 1}
	s := summarizeColumn(values, 0.95)

	assert.Equal(t, 10, s.N)
	assert.InDelta(t, 5.5, s.Mean, 1e-12)
	assert.InDelta(t, 3.0276503540974917, s.StdDev, 1e-12)
	assert.InDelta(t, 1.225, s.Lower, 1e-12)
	assert.InDelta(t, 9.775, s.Upper, 1e-12)
	assert.LessOrEqual(t, s.Lower, s.Mean)
	assert.LessOrEqual(t, s.Mean, s.Upper)
}

func TestSummarizeColumn_ConstantIsExact(t *testing.T) {
	v := 0.1 + 0.2
	s := summarizeColumn([]float64{v, v, v, v, v, v, v}, 0.9)
	assert.Equal(t, v, s.Mean)
	assert.Equal(t, v, s.Lower)
	assert.Equal(t, v, s.Upper)
	assert.Equal(t, 0.0, s.StdDev)
}

func TestSummarizeColumn_Empty(t *testing.T) {
	s := summarizeColumn(nil, 0.95)
	assert.Equal(t, 0, s.N)
	assert.True(t, math.IsNaN(s.Mean))
	assert.True(t, math.IsNaN(s.Lower))
}

func TestSummarize_SkipsFailedAndNonFinite(t *testing.T) {
	row := func(adComp, relAD float64) inequality.IterationResult {
		return inequality.IterationResult{Result: inequality.RunResult{
			Comparator: inequality.Metrics{AD: adComp},
			Impact:     inequality.Impact{RelativeAD: relAD},
		}}
	}
	rows := []inequality.IterationResult{
		row(1, 0.5),
		row(2, math.Inf(1)),
		row(3, math.NaN()),
		{Err: errors.New("boom"), Result: inequality.RunResult{Comparator: inequality.Metrics{AD: 1000}}},
	}

	summaries := Summarize(rows, 0.95)
	require.Len(t, summaries, inequality.NumOutputs)

	ad := summaries[inequality.OutputADComparator]
	assert.Equal(t, 3, ad.N)
	assert.InDelta(t, 2.0, ad.Mean, 1e-12)

	rel := summaries[inequality.OutputADRelativeChange]
	assert.Equal(t, 1, rel.N)
	assert.Equal(t, 0.5, rel.Mean)
	assert.Equal(t, 0.5, rel.Lower)
	assert.Equal(t, 0.5, rel.Upper)
}

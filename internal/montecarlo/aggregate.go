package montecarlo

import (
	"math"
	"sort"

	"goequity/domain/inequality"

	"github.com/montanaflynn/stats"
)

// Summarize aggregates every output column over the successful rows.
// Non-finite values are dropped per column; N records how many remained.
func Summarize(rows []inequality.IterationResult, confidence float64) map[inequality.OutputName]inequality.SummaryStatistic {
	columns := make([][]float64, inequality.NumOutputs)
	for i := range columns {
		columns[i] = make([]float64, 0, len(rows))
	}
	for _, row := range rows {
		if !row.OK() {
			continue
		}
		for i, v := range row.Result.Values() {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			columns[i] = append(columns[i], v)
		}
	}

	out := make(map[inequality.OutputName]inequality.SummaryStatistic, inequality.NumOutputs)
	for i, name := range inequality.OutputNames {
		out[name] = summarizeColumn(columns[i], confidence)
	}
	return out
}

// summarizeColumn computes mean, sample SD and the central interval of
// width confidence. values is sorted in place.
func summarizeColumn(values []float64, confidence float64) inequality.SummaryStatistic {
	n := len(values)
	if n == 0 {
		nan := math.NaN()
		return inequality.SummaryStatistic{Mean: nan, Lower: nan, Upper: nan, StdDev: nan}
	}

	sort.Float64s(values)
	alpha := (1 - confidence) / 2
	s := inequality.SummaryStatistic{
		Lower: quantile(values, alpha),
		Upper: quantile(values, 1-alpha),
		N:     n,
	}

	// a constant column must summarise to exactly that constant
	if values[0] == values[n-1] {
		s.Mean = values[0]
		return s
	}

	s.Mean, _ = stats.Mean(values)
	if n > 1 {
		s.StdDev, _ = stats.StandardDeviationSample(values)
	}
	return s
}

// quantile is the linear-interpolation estimator (Hyndman-Fan type 7)
// over already sorted data, q in [0, 1].
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}

	index := q * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	if lower < 0 {
		return sorted[0]
	}
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	weight := index - float64(lower)
	lo, hi := sorted[lower], sorted[upper]
	return lo + (hi-lo)*weight
}

package montecarlo

import (
	"bytes"
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"goequity/domain/core"
	"goequity/domain/inequality"
	"goequity/domain/survival"
	"goequity/internal"
	"goequity/internal/equity"
	"goequity/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietEngine() *Engine {
	return NewEngine(testkit.NewTestKit().RNGAdapter(), internal.NewLoggerTo(&bytes.Buffer{}, internal.LogLevelError))
}

func baseRequest(comp, interv survival.FittedDistribution) Request {
	return Request{
		AnalysisID:   core.NewAnalysisID(),
		Comparator:   comp,
		Intervention: interv,
		NGroups:      5,
		NIterations:  50,
		BaseSeed:     100,
		Workers:      4,
	}
}

func pointResult(t *testing.T, comp, interv survival.FittedDistribution, nGroups int) inequality.RunResult {
	t.Helper()
	c, err := comp.PointDistribution()
	require.NoError(t, err)
	iv, err := interv.PointDistribution()
	require.NoError(t, err)
	result, err := equity.NewPipeline(nGroups).RunOnce(c, iv)
	require.NoError(t, err)
	return result
}

func TestRun_SingleIterationMatchesBaseCase(t *testing.T) {
	comp := testkit.ComparatorWeibull(testkit.ZeroCovariance(2))
	interv := testkit.InterventionWeibull(testkit.ZeroCovariance(2))

	req := baseRequest(comp, interv)
	req.NIterations = 1
	report, err := quietEngine().Run(context.Background(), req)
	require.NoError(t, err)

	want := pointResult(t, comp, interv, 5)
	for _, name := range inequality.OutputNames {
		v, ok := want.Value(name)
		require.True(t, ok)
		s, ok := report.Summary(name)
		require.True(t, ok)
		assert.Equal(t, v, s.Mean, "%s mean", name)
		assert.Equal(t, v, s.Lower, "%s lower", name)
		assert.Equal(t, v, s.Upper, "%s upper", name)
		assert.Equal(t, 1, s.N)
	}

	// Weibull(3.5, 8) vs Weibull(3, 10) over five groups
	ad, _ := report.Summary(inequality.OutputADComparator)
	assert.InDelta(t, 5.946805214986302, ad.Mean, 1e-9)
	ig, _ := report.Summary(inequality.OutputIGIntervention)
	assert.InDelta(t, 2.051031779156566, ig.Mean, 1e-9)
}

func TestRun_ZeroCovarianceCollapses(t *testing.T) {
	comp := testkit.ComparatorWeibull(testkit.ZeroCovariance(2))
	interv := testkit.InterventionWeibull(testkit.ZeroCovariance(2))

	report, err := quietEngine().Run(context.Background(), baseRequest(comp, interv))
	require.NoError(t, err)
	assert.Equal(t, 50, report.Successful)

	want := pointResult(t, comp, interv, 5)
	for _, name := range inequality.OutputNames {
		v, _ := want.Value(name)
		s, _ := report.Summary(name)
		assert.Equal(t, v, s.Mean, "%s", name)
		assert.Equal(t, v, s.Lower, "%s", name)
		assert.Equal(t, v, s.Upper, "%s", name)
		assert.Equal(t, 0.0, s.StdDev, "%s", name)
	}
}

func TestRun_IdenticalArmsHaveZeroImpact(t *testing.T) {
	arm := testkit.InterventionWeibull(testkit.ZeroCovariance(2))

	report, err := quietEngine().Run(context.Background(), baseRequest(arm, arm))
	require.NoError(t, err)

	for _, name := range []inequality.OutputName{
		inequality.OutputADAbsoluteChange,
		inequality.OutputADRelativeChange,
		inequality.OutputIGAbsoluteChange,
		inequality.OutputIGRelativeChange,
	} {
		s, _ := report.Summary(name)
		assert.Equal(t, 0.0, s.Mean, "%s", name)
		assert.Equal(t, 0.0, s.Lower, "%s", name)
		assert.Equal(t, 0.0, s.Upper, "%s", name)
	}
}

func TestRun_IndependentOfWorkerCount(t *testing.T) {
	comp := testkit.ComparatorWeibull(testkit.SmallCovariance())
	interv := testkit.InterventionWeibull(testkit.SmallCovariance())

	var reports []*inequality.ProbabilisticReport
	for _, workers := range []int{1, 3, 16} {
		req := baseRequest(comp, interv)
		req.NIterations = 200
		req.Workers = workers
		req.KeepIterations = true
		report, err := quietEngine().Run(context.Background(), req)
		require.NoError(t, err)
		reports = append(reports, report)
	}

	for _, r := range reports[1:] {
		assert.Equal(t, reports[0].Summaries, r.Summaries)
		assert.Equal(t, reports[0].Rows, r.Rows)
	}

	rows := reports[0].Rows
	require.Len(t, rows, 200)
	for i, row := range rows {
		assert.Equal(t, i+1, row.Iteration)
		assert.Equal(t, IterationSeed(100, i+1), row.Seed)
	}

	s, _ := reports[0].Summary(inequality.OutputADComparator)
	assert.Greater(t, s.StdDev, 0.0)
	assert.Less(t, s.Lower, s.Upper)
	assert.LessOrEqual(t, s.Lower, s.Mean)
	assert.LessOrEqual(t, s.Mean, s.Upper)
}

func TestRun_SameSeedSameReport(t *testing.T) {
	req := baseRequest(testkit.ComparatorWeibull(testkit.SmallCovariance()), testkit.InterventionWeibull(testkit.SmallCovariance()))

	a, err := quietEngine().Run(context.Background(), req)
	require.NoError(t, err)
	b, err := quietEngine().Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, a.Summaries, b.Summaries)

	req.BaseSeed = 101
	c, err := quietEngine().Run(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, a.Summaries, c.Summaries)
}

func failingEngine(failSeeds ...uint64) *Engine {
	fail := make(map[uint64]error)
	for _, s := range failSeeds {
		fail[s] = fmt.Errorf("%w: injected at seed %d", core.ErrInvalidParameter, s)
	}
	rng := &testkit.FailingRNGAdapter{Inner: testkit.NewTestKit().RNGAdapter(), FailSeeds: fail}
	return NewEngine(rng, internal.NewLoggerTo(&bytes.Buffer{}, internal.LogLevelError))
}

func TestRun_StrictAbortsOnLowestFailure(t *testing.T) {
	req := baseRequest(testkit.ComparatorWeibull(testkit.SmallCovariance()), testkit.InterventionWeibull(testkit.SmallCovariance()))
	req.Workers = 8

	_, err := failingEngine(140, 105, 122).Run(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidParameter)
	assert.Contains(t, err.Error(), "iteration 5 (seed 105)")
	assert.Contains(t, err.Error(), "comparator")
}

func TestRun_LenientSkipsFailures(t *testing.T) {
	req := baseRequest(testkit.ComparatorWeibull(testkit.SmallCovariance()), testkit.InterventionWeibull(testkit.SmallCovariance()))
	req.FailureMode = inequality.FailureLenient
	req.KeepIterations = true

	report, err := failingEngine(102, 105).Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 50, report.Iterations)
	assert.Equal(t, 48, report.Successful)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, map[string]int{"invalid_parameter": 2}, report.SkippedByKind)
	require.Len(t, report.SkippedSamples, 2)
	assert.Equal(t, 2, report.SkippedSamples[0].Iteration)
	assert.Equal(t, 5, report.SkippedSamples[1].Iteration)
	assert.Len(t, report.Rows, 48)

	s, _ := report.Summary(inequality.OutputIGComparator)
	assert.Equal(t, 48, s.N)

	// the surviving rows are exactly the ones a clean run produces
	clean, err := quietEngine().Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, clean.Rows[0], report.Rows[0])
	assert.Equal(t, clean.Rows[49], report.Rows[47])
}

func TestRun_LenientAllFailed(t *testing.T) {
	req := baseRequest(testkit.ComparatorWeibull(nil), testkit.InterventionWeibull(nil))
	req.NIterations = 3
	req.FailureMode = inequality.FailureLenient

	_, err := failingEngine(101, 102, 103).Run(context.Background(), req)
	assert.ErrorIs(t, err, core.ErrNoSuccessfulIterations)
}

func TestRun_PipelineErrorsPropagate(t *testing.T) {
	req := baseRequest(testkit.ComparatorWeibull(nil), testkit.InterventionWeibull(nil))
	req.NGroups = 1

	_, err := quietEngine().Run(context.Background(), req)
	assert.ErrorIs(t, err, core.ErrInsufficientGroups)

	req.FailureMode = inequality.FailureLenient
	_, err = quietEngine().Run(context.Background(), req)
	assert.ErrorIs(t, err, core.ErrNoSuccessfulIterations)
}

func TestRun_InvalidRequest(t *testing.T) {
	good := baseRequest(testkit.ComparatorWeibull(nil), testkit.InterventionWeibull(nil))

	tests := []struct {
		name    string
		mutate  func(r *Request)
		wantErr error
	}{
		{"zero iterations", func(r *Request) { r.NIterations = 0 }, core.ErrInvalidConfig},
		{"zero groups", func(r *Request) { r.NGroups = 0 }, core.ErrInvalidGroupCount},
		{"confidence above one", func(r *Request) { r.ConfidenceLevel = 1.2 }, core.ErrInvalidConfig},
		{"negative confidence", func(r *Request) { r.ConfidenceLevel = -0.5 }, core.ErrInvalidConfig},
		{"unknown failure mode", func(r *Request) { r.FailureMode = "retry" }, core.ErrInvalidConfig},
		{"unknown zero policy", func(r *Request) { r.ZeroPolicy = "skip" }, core.ErrInvalidConfig},
		{"singular covariance", func(r *Request) {
			r.Intervention = testkit.InterventionWeibull([][]float64{{1, 2}, {2, 1}})
		}, core.ErrSingularCovariance},
		{"bad family", func(r *Request) { r.Comparator.Family = "lognormal" }, core.ErrUnknownFamily},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := good
			req.Comparator = good.Comparator.Clone()
			tt.mutate(&req)
			_, err := quietEngine().Run(context.Background(), req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRun_Defaults(t *testing.T) {
	req := baseRequest(testkit.ComparatorWeibull(nil), testkit.InterventionWeibull(nil))
	req.Workers = 0
	req.NIterations = 3

	report, err := quietEngine().Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfidenceLevel, report.ConfidenceLevel)
	assert.Equal(t, inequality.FailureStrict, report.FailureMode)
	assert.Nil(t, report.Rows)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := quietEngine().Run(ctx, baseRequest(testkit.ComparatorWeibull(nil), testkit.InterventionWeibull(nil)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_CancelledMidway(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := baseRequest(testkit.ComparatorWeibull(testkit.SmallCovariance()), testkit.InterventionWeibull(testkit.SmallCovariance()))
	req.NIterations = 10000
	req.Workers = 2
	req.Progress = func(done, total int) {
		if done == 10 {
			cancel()
		}
	}

	_, err := quietEngine().Run(ctx, req)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_Progress(t *testing.T) {
	var calls atomic.Int64
	var maxDone atomic.Int64

	req := baseRequest(testkit.ComparatorWeibull(nil), testkit.InterventionWeibull(nil))
	req.Progress = func(done, total int) {
		calls.Add(1)
		assert.Equal(t, 50, total)
		for {
			cur := maxDone.Load()
			if int64(done) <= cur || maxDone.CompareAndSwap(cur, int64(done)) {
				break
			}
		}
	}

	_, err := quietEngine().Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(50), calls.Load())
	assert.Equal(t, int64(50), maxDone.Load())
}

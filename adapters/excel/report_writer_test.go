package excel

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"

	"goequity/domain/core"
	"goequity/domain/inequality"
	"goequity/domain/run"
	"goequity/domain/survival"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func manifest(kind run.Kind) *run.RunManifest {
	comp := survival.NewFitted(survival.FamilyWeibull, []float64{3.5, 8}, nil)
	interv := survival.NewFitted(survival.FamilyGamma, []float64{2, 0.2}, nil)
	return run.NewRunManifest(core.NewAnalysisID(), kind, comp, interv,
		run.Settings{NGroups: 3, NIterations: 2, ConfidenceLevel: 0.95}, 18446744073709551615, "test")
}

func probabilisticRecord() *run.Record {
	m := manifest(run.KindProbabilistic)
	summaries := make(map[inequality.OutputName]inequality.SummaryStatistic)
	for i, name := range inequality.OutputNames {
		v := float64(i) + 0.125
		summaries[name] = inequality.SummaryStatistic{Mean: v, Lower: v - 1, Upper: v + 1, StdDev: 0.5, N: 2}
	}
	summaries[inequality.OutputADRelativeChange] = inequality.SummaryStatistic{
		Mean: math.NaN(), Lower: math.NaN(), Upper: math.NaN(), StdDev: math.NaN(), N: 0,
	}
	return &run.Record{
		Manifest: m,
		Probabilistic: &inequality.ProbabilisticReport{
			AnalysisID:      m.AnalysisID,
			NGroups:         3,
			Iterations:      3,
			Successful:      2,
			Skipped:         1,
			ConfidenceLevel: 0.95,
			BaseSeed:        m.Seed,
			Summaries:       summaries,
			Rows: []inequality.IterationResult{
				{Iteration: 1, Seed: 1, Result: inequality.RunResult{Impact: inequality.Impact{RelativeAD: math.Inf(1)}}},
				{Iteration: 3, Seed: 3},
			},
			SkippedSamples: []inequality.SkippedIteration{{Iteration: 2, Kind: "division_by_zero", Message: "impact: relative change denominator is zero"}},
		},
	}
}

func TestReportWriter_Probabilistic(t *testing.T) {
	record := probabilisticRecord()
	w := NewReportWriter()
	assert.Equal(t, ".xlsx", w.Extension())
	assert.Contains(t, w.ContentType(), "spreadsheetml")

	var buf bytes.Buffer
	require.NoError(t, w.Write(context.Background(), record, &buf))

	wb, err := ReadWorkbook(&buf)
	require.NoError(t, err)
	assert.Equal(t, []string{SheetManifest, SheetProbabilistic, SheetIterations, SheetSkipped}, wb.Order)

	id, ok := wb.Field("analysis_id")
	require.True(t, ok)
	assert.Equal(t, record.ID().String(), id)
	seed, _ := wb.Field("seed")
	assert.Equal(t, "18446744073709551615", seed)

	summaries, err := wb.Summaries()
	require.NoError(t, err)
	for _, name := range inequality.OutputNames {
		want := record.Probabilistic.Summaries[name]
		got := summaries[name]
		if name == inequality.OutputADRelativeChange {
			assert.True(t, math.IsNaN(got.Mean))
			assert.Equal(t, 0, got.N)
			continue
		}
		assert.Equal(t, want, got, "%s", name)
	}

	assert.Equal(t, "lower_2.5", wb.Sheets[SheetProbabilistic][0][2])
	assert.Len(t, wb.Sheets[SheetIterations], 3)
	assert.Equal(t, "+Inf", wb.Sheets[SheetIterations][1][2+5])
	assert.Equal(t, "division_by_zero", wb.Sheets[SheetSkipped][1][1])
}

func TestReportWriter_BaseCase(t *testing.T) {
	m := manifest(run.KindBaseCase)
	record := &run.Record{
		Manifest: m,
		BaseCase: &inequality.BaseCaseReport{
			AnalysisID:   m.AnalysisID,
			NGroups:      3,
			Comparator:   inequality.HealthDistribution{1, 2, 3},
			Intervention: inequality.HealthDistribution{2, 4, 6},
			Result: inequality.RunResult{
				Comparator:   inequality.Metrics{AD: 2, IG: 1},
				Intervention: inequality.Metrics{AD: 4, IG: 2},
				Impact:       inequality.Impact{AbsoluteAD: 2, RelativeAD: 1, AbsoluteIG: 1, RelativeIG: 1},
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, NewReportWriter().Write(context.Background(), record, &buf))

	wb, err := ReadWorkbook(&buf)
	require.NoError(t, err)
	assert.Equal(t, []string{SheetManifest, SheetBaseCase}, wb.Order)

	rows := wb.Sheets[SheetBaseCase]
	assert.Equal(t, []string{"ad_comparator", "2"}, rows[1])
	assert.Equal(t, []string{"group", "comparator", "intervention"}, rows[10])
	assert.Equal(t, []string{"3", "3", "6"}, rows[13])

	_, err = wb.Summaries()
	assert.Error(t, err)
}

func TestReportWriter_Errors(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, NewReportWriter().Write(context.Background(), &run.Record{}, &buf))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewReportWriter().Write(ctx, probabilisticRecord(), &buf)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestParseCell_NonFinite(t *testing.T) {
	for _, s := range []string{"+Inf", "Inf"} {
		v, err := parseCell(s)
		require.NoError(t, err)
		assert.True(t, math.IsInf(v, 1), s)
	}
	v, err := parseCell("-Inf")
	require.NoError(t, err)
	assert.True(t, math.IsInf(v, -1))
	_, err = parseCell("infinite")
	assert.Error(t, err)
}

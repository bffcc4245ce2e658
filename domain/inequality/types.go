package inequality

import (
	"sort"

	"goequity/domain/core"
)

// Arm identifies one of the two treatments being compared
type Arm string

const (
	ArmComparator   Arm = "comparator"
	ArmIntervention Arm = "intervention"
)

// HealthDistribution holds one survival-time quantile per equal-probability
// stratum, ordered by increasing cumulative probability.
type HealthDistribution []float64

// Groups returns the number of strata
func (h HealthDistribution) Groups() int { return len(h) }

// IsNonDecreasing reports whether the distribution is ordered
func (h HealthDistribution) IsNonDecreasing() bool {
	for i := 1; i < len(h); i++ {
		if h[i] < h[i-1] {
			return false
		}
	}
	return true
}

// Metrics are the scalar inequality summaries of one arm
type Metrics struct {
	AD float64 `json:"ad"` // absolute difference: last - first
	IG float64 `json:"ig"` // inequality gradient: OLS slope on group rank
}

// Impact compares intervention against comparator metrics
type Impact struct {
	AbsoluteAD float64 `json:"ad_absolute_change"`
	RelativeAD float64 `json:"ad_relative_change"`
	AbsoluteIG float64 `json:"ig_absolute_change"`
	RelativeIG float64 `json:"ig_relative_change"`
}

// RunResult is the output of one deterministic pass over both arms
type RunResult struct {
	Comparator   Metrics `json:"comparator"`
	Intervention Metrics `json:"intervention"`
	Impact       Impact  `json:"impact"`
}

// OutputName is the stable key of one of the eight scalar outputs
type OutputName string

const (
	OutputADComparator     OutputName = "ad_comparator"
	OutputIGComparator     OutputName = "ig_comparator"
	OutputADIntervention   OutputName = "ad_intervention"
	OutputIGIntervention   OutputName = "ig_intervention"
	OutputADAbsoluteChange OutputName = "ad_absolute_change"
	OutputADRelativeChange OutputName = "ad_relative_change"
	OutputIGAbsoluteChange OutputName = "ig_absolute_change"
	OutputIGRelativeChange OutputName = "ig_relative_change"
)

// OutputNames lists the outputs in column order
var OutputNames = []OutputName{
	OutputADComparator,
	OutputIGComparator,
	OutputADIntervention,
	OutputIGIntervention,
	OutputADAbsoluteChange,
	OutputADRelativeChange,
	OutputIGAbsoluteChange,
	OutputIGRelativeChange,
}

// NumOutputs is the width of a results row
const NumOutputs = 8

// Values flattens the result in OutputNames order
func (r RunResult) Values() [NumOutputs]float64 {
	return [NumOutputs]float64{
		r.Comparator.AD,
		r.Comparator.IG,
		r.Intervention.AD,
		r.Intervention.IG,
		r.Impact.AbsoluteAD,
		r.Impact.RelativeAD,
		r.Impact.AbsoluteIG,
		r.Impact.RelativeIG,
	}
}

// Value returns a single output by name
func (r RunResult) Value(name OutputName) (float64, bool) {
	values := r.Values()
	for i, n := range OutputNames {
		if n == name {
			return values[i], true
		}
	}
	return 0, false
}

// IterationResult is one Monte Carlo row. Err is set only for iterations
// skipped under the lenient failure mode.
type IterationResult struct {
	Iteration int       `json:"iteration"`
	Seed      uint64    `json:"seed"`
	Result    RunResult `json:"result"`
	Err       error     `json:"-"`
}

// OK reports whether the iteration produced a result
func (r IterationResult) OK() bool { return r.Err == nil }

// SummaryStatistic aggregates one output column across iterations
type SummaryStatistic struct {
	Mean   float64 `json:"mean"`
	Lower  float64 `json:"lower"`
	Upper  float64 `json:"upper"`
	StdDev float64 `json:"std_dev"`
	N      int     `json:"n"`
}

// FailureMode decides what happens when a single iteration fails
type FailureMode string

const (
	// FailureStrict aborts the whole run on the first failing iteration
	FailureStrict FailureMode = "strict"
	// FailureLenient records the failure and excludes the iteration
	FailureLenient FailureMode = "lenient"
)

// Valid reports whether m is a known mode
func (m FailureMode) Valid() bool {
	return m == FailureStrict || m == FailureLenient
}

// BaseCaseReport is the deterministic result at the point estimates
type BaseCaseReport struct {
	AnalysisID   core.AnalysisID    `json:"analysis_id"`
	NGroups      int                `json:"n_groups"`
	Comparator   HealthDistribution `json:"comparator_distribution"`
	Intervention HealthDistribution `json:"intervention_distribution"`
	Result       RunResult          `json:"result"`
	CreatedAt    core.Timestamp     `json:"created_at"`
}

// SkippedIteration is a compact record of a lenient-mode failure
type SkippedIteration struct {
	Iteration int    `json:"iteration"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
}

// ProbabilisticReport is the aggregated Monte Carlo output
type ProbabilisticReport struct {
	AnalysisID      core.AnalysisID                 `json:"analysis_id"`
	NGroups         int                             `json:"n_groups"`
	Iterations      int                             `json:"iterations"`
	Successful      int                             `json:"successful"`
	Skipped         int                             `json:"skipped"`
	SkippedByKind   map[string]int                  `json:"skipped_by_kind,omitempty"`
	SkippedSamples  []SkippedIteration              `json:"skipped_samples,omitempty"`
	ConfidenceLevel float64                         `json:"confidence_level"`
	FailureMode     FailureMode                     `json:"failure_mode"`
	BaseSeed        uint64                          `json:"base_seed"`
	Summaries       map[OutputName]SummaryStatistic `json:"summaries"`
	Rows            []IterationResult               `json:"rows,omitempty"`
	DurationMs      int64                           `json:"duration_ms"`
	CreatedAt       core.Timestamp                  `json:"created_at"`
}

// Summary returns the statistic for name, if present
func (p *ProbabilisticReport) Summary(name OutputName) (SummaryStatistic, bool) {
	s, ok := p.Summaries[name]
	return s, ok
}

// SkippedKinds lists the failure kinds seen in a lenient run, sorted
func (p *ProbabilisticReport) SkippedKinds() []string {
	kinds := make([]string, 0, len(p.SkippedByKind))
	for kind := range p.SkippedByKind {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

package equity

import (
	"fmt"

	"goequity/domain/inequality"
	"goequity/domain/survival"
)

// Pipeline runs the deterministic stratify -> metrics -> impact chain for
// one parameter set per arm. It holds no state between calls.
type Pipeline struct {
	NGroups    int
	ZeroPolicy ZeroDenominatorPolicy
}

// NewPipeline creates a pipeline with the default (error) zero policy
func NewPipeline(nGroups int) Pipeline {
	return Pipeline{NGroups: nGroups, ZeroPolicy: ZeroDenominatorError}
}

// ArmOutput is the intermediate result for one arm
type ArmOutput struct {
	Distribution inequality.HealthDistribution
	Metrics      inequality.Metrics
}

// EvaluateArm stratifies one distribution and computes its metrics
func (p Pipeline) EvaluateArm(arm inequality.Arm, dist survival.Distribution) (ArmOutput, error) {
	hd, err := Stratify(dist, p.NGroups)
	if err != nil {
		return ArmOutput{}, fmt.Errorf("%s: stratify: %w", arm, err)
	}
	metrics, err := ComputeMetrics(hd)
	if err != nil {
		return ArmOutput{}, fmt.Errorf("%s: metrics: %w", arm, err)
	}
	return ArmOutput{Distribution: hd, Metrics: metrics}, nil
}

// RunOnce evaluates both arms and the impact between them. Errors are
// returned as-is (wrapped) so callers decide whether to abort or skip.
func (p Pipeline) RunOnce(comparator, intervention survival.Distribution) (inequality.RunResult, error) {
	result, _, _, err := p.RunDetailed(comparator, intervention)
	return result, err
}

// RunDetailed is RunOnce plus both health distributions
func (p Pipeline) RunDetailed(comparator, intervention survival.Distribution) (inequality.RunResult, ArmOutput, ArmOutput, error) {
	comp, err := p.EvaluateArm(inequality.ArmComparator, comparator)
	if err != nil {
		return inequality.RunResult{}, ArmOutput{}, ArmOutput{}, err
	}
	interv, err := p.EvaluateArm(inequality.ArmIntervention, intervention)
	if err != nil {
		return inequality.RunResult{}, ArmOutput{}, ArmOutput{}, err
	}

	impact, err := ComputeImpact(comp.Metrics, interv.Metrics, p.ZeroPolicy)
	if err != nil {
		return inequality.RunResult{}, ArmOutput{}, ArmOutput{}, fmt.Errorf("impact: %w", err)
	}

	return inequality.RunResult{
		Comparator:   comp.Metrics,
		Intervention: interv.Metrics,
		Impact:       impact,
	}, comp, interv, nil
}

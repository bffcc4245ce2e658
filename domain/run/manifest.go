package run

import (
	"goequity/domain/core"
	"goequity/domain/inequality"
	"goequity/domain/survival"
)

// RunManifest is the complete specification for an analysis run. Replaying
// the manifest's inputs with the same code version reproduces the result.
type RunManifest struct {
	RunID        core.RunID                  `json:"run_id"`
	AnalysisID   core.AnalysisID             `json:"analysis_id"`
	Kind         Kind                        `json:"kind"`
	Comparator   survival.FittedDistribution `json:"comparator"`
	Intervention survival.FittedDistribution `json:"intervention"`
	Settings     Settings                    `json:"settings"`
	Seed         uint64                      `json:"seed"`
	CodeVersion  string                      `json:"code_version"`
	Fingerprint  RunFingerprint              `json:"fingerprint"`
	CreatedAt    core.Timestamp              `json:"created_at"`
}

// NewRunManifest builds a manifest and its fingerprint
func NewRunManifest(
	analysisID core.AnalysisID,
	kind Kind,
	comparator, intervention survival.FittedDistribution,
	settings Settings,
	seed uint64,
	codeVersion string,
) *RunManifest {
	fingerprint := NewRunFingerprint(kind, ModelHash(comparator, intervention), settings.Hash(), seed, codeVersion)

	return &RunManifest{
		RunID:        core.RunID(core.NewID()),
		AnalysisID:   analysisID,
		Kind:         kind,
		Comparator:   comparator.Clone(),
		Intervention: intervention.Clone(),
		Settings:     settings,
		Seed:         seed,
		CodeVersion:  codeVersion,
		Fingerprint:  fingerprint,
		CreatedAt:    core.Now(),
	}
}

// Validate checks if the manifest is complete
func (r *RunManifest) Validate() error {
	if core.ID(r.RunID).IsEmpty() {
		return core.NewValidationError("run_manifest", "run_id cannot be empty")
	}
	if core.ID(r.AnalysisID).IsEmpty() {
		return core.NewValidationError("run_manifest", "analysis_id cannot be empty")
	}
	if !r.Kind.Valid() {
		return core.NewValidationError("run_manifest", "unknown kind "+string(r.Kind))
	}
	if r.CodeVersion == "" {
		return core.NewValidationError("run_manifest", "code_version cannot be empty")
	}
	if r.Fingerprint.Fingerprint.IsEmpty() {
		return core.NewValidationError("run_manifest", "fingerprint cannot be empty")
	}
	return nil
}

// Record is a stored analysis: its manifest plus exactly one report
type Record struct {
	Manifest      *RunManifest                    `json:"manifest"`
	BaseCase      *inequality.BaseCaseReport      `json:"base_case,omitempty"`
	Probabilistic *inequality.ProbabilisticReport `json:"probabilistic,omitempty"`
}

// ID returns the analysis ID of the record
func (r *Record) ID() core.AnalysisID {
	if r.Manifest == nil {
		return ""
	}
	return r.Manifest.AnalysisID
}

// Kind returns the analysis kind of the record
func (r *Record) Kind() Kind {
	if r.Manifest == nil {
		return ""
	}
	return r.Manifest.Kind
}

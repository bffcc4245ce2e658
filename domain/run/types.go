package run

import (
	"fmt"

	"goequity/domain/core"
	"goequity/domain/survival"
)

// Kind distinguishes deterministic from probabilistic analyses
type Kind string

const (
	KindBaseCase      Kind = "base_case"
	KindProbabilistic Kind = "probabilistic"
)

// Valid reports whether k is a known analysis kind
func (k Kind) Valid() bool {
	return k == KindBaseCase || k == KindProbabilistic
}

// Settings are the run parameters that influence the numeric result.
// Worker count is deliberately absent: results do not depend on it.
type Settings struct {
	NGroups         int     `json:"n_groups" yaml:"n_groups"`
	NIterations     int     `json:"n_iterations,omitempty" yaml:"n_iterations"`
	ConfidenceLevel float64 `json:"confidence_level,omitempty" yaml:"confidence_level"`
	FailureMode     string  `json:"failure_mode,omitempty" yaml:"failure_mode"`
	ZeroPolicy      string  `json:"zero_policy,omitempty" yaml:"zero_policy"`
}

// Hash returns a stable hash of the settings
func (s Settings) Hash() core.Hash {
	return core.ComputeFieldsHash(map[string]interface{}{
		"n_groups":         s.NGroups,
		"n_iterations":     s.NIterations,
		"confidence_level": s.ConfidenceLevel,
		"failure_mode":     s.FailureMode,
		"zero_policy":      s.ZeroPolicy,
	})
}

// ModelHash fingerprints the two fitted arms
func ModelHash(comparator, intervention survival.FittedDistribution) core.Hash {
	fields := make(map[string]interface{})
	comparator.HashFields("comparator", fields)
	intervention.HashFields("intervention", fields)
	return core.ComputeFieldsHash(fields)
}

// RunFingerprint ensures deterministic replay
type RunFingerprint struct {
	Kind         Kind      `json:"kind"`
	ModelHash    core.Hash `json:"model_hash"`
	SettingsHash core.Hash `json:"settings_hash"`
	Seed         uint64    `json:"seed"`
	CodeVersion  string    `json:"code_version"`
	Fingerprint  core.Hash `json:"fingerprint"` // Hash of all above
}

// NewRunFingerprint creates a fingerprint from determinism parameters
func NewRunFingerprint(kind Kind, modelHash, settingsHash core.Hash, seed uint64, codeVersion string) RunFingerprint {
	return RunFingerprint{
		Kind:         kind,
		ModelHash:    modelHash,
		SettingsHash: settingsHash,
		Seed:         seed,
		CodeVersion:  codeVersion,
		Fingerprint:  computeRunFingerprint(kind, modelHash, settingsHash, seed, codeVersion),
	}
}

// computeRunFingerprint generates deterministic hash from all determinism parameters
func computeRunFingerprint(kind Kind, modelHash, settingsHash core.Hash, seed uint64, codeVersion string) core.Hash {
	data := fmt.Sprintf("kind:%s|model:%s|settings:%s|seed:%d|code:%s",
		kind, modelHash, settingsHash, seed, codeVersion)

	return core.NewHash([]byte(data))
}

package modelio

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"goequity/domain/core"
	"goequity/domain/survival"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// Format identifies an analysis definition encoding
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath picks the format from a file extension
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", core.NewConfigError("definition", fmt.Sprintf("unsupported file extension %q", filepath.Ext(path)))
	}
}

// Settings are the optional run parameters carried by a definition file
type Settings struct {
	NGroups         int     `yaml:"n_groups"`
	NIterations     int     `yaml:"n_iterations"`
	ConfidenceLevel float64 `yaml:"confidence_level"`
	Seed            *uint64 `yaml:"seed"`
	FailureMode     string  `yaml:"failure_mode"`
	ZeroPolicy      string  `yaml:"zero_policy"`
}

// Definition is a fully parsed analysis input
type Definition struct {
	Name         string
	Comparator   survival.FittedDistribution
	Intervention survival.FittedDistribution
	Settings     Settings
}

// armSpec is one arm as written in YAML. Exactly one of Estimate (log
// scale) or Parameters (natural scale) is given.
type armSpec struct {
	Family     string      `yaml:"family"`
	Estimate   []float64   `yaml:"estimate"`
	Parameters []float64   `yaml:"parameters"`
	Covariance [][]float64 `yaml:"covariance"`
}

type yamlDefinition struct {
	Name         string   `yaml:"name"`
	Settings     Settings `yaml:"settings"`
	Comparator   armSpec  `yaml:"comparator"`
	Intervention armSpec  `yaml:"intervention"`
}

// Load reads and validates a definition file
func Load(path string) (*Definition, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition %s: %w", path, err)
	}
	def, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if def.Name == "" {
		def.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return def, nil
}

// Parse decodes a definition from data
func Parse(data []byte, format Format) (*Definition, error) {
	var (
		def *Definition
		err error
	)
	switch format {
	case FormatYAML:
		def, err = parseYAML(data)
	case FormatJSON:
		def, err = parseJSON(data)
	default:
		return nil, core.NewConfigError("definition", fmt.Sprintf("unknown format %q", format))
	}
	if err != nil {
		return nil, err
	}

	if err := def.Comparator.Validate(); err != nil {
		return nil, fmt.Errorf("comparator: %w", err)
	}
	if err := def.Intervention.Validate(); err != nil {
		return nil, fmt.Errorf("intervention: %w", err)
	}
	return def, nil
}

func parseYAML(data []byte) (*Definition, error) {
	var raw yamlDefinition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return nil, core.NewConfigError("definition", fmt.Sprintf("invalid YAML: %v", err))
	}

	comp, err := raw.Comparator.fitted()
	if err != nil {
		return nil, fmt.Errorf("comparator: %w", err)
	}
	interv, err := raw.Intervention.fitted()
	if err != nil {
		return nil, fmt.Errorf("intervention: %w", err)
	}
	return &Definition{
		Name:         raw.Name,
		Comparator:   comp,
		Intervention: interv,
		Settings:     raw.Settings,
	}, nil
}

func (a armSpec) fitted() (survival.FittedDistribution, error) {
	family, err := survival.ParseFamily(a.Family)
	if err != nil {
		return survival.FittedDistribution{}, err
	}
	return build(family, a.Estimate, a.Parameters, a.Covariance)
}

// build resolves estimate vs natural parameters. A missing covariance means
// the arm is fixed at its point estimate.
func build(family survival.Family, estimate, parameters []float64, cov [][]float64) (survival.FittedDistribution, error) {
	switch {
	case len(estimate) > 0 && len(parameters) > 0:
		return survival.FittedDistribution{}, core.NewConfigError("arm", "give either estimate or parameters, not both")
	case len(parameters) > 0:
		for i, p := range parameters {
			if !(p > 0) {
				return survival.FittedDistribution{}, core.NewParameterError(family.String(), i, p)
			}
		}
		return survival.NewFitted(family, parameters, cov), nil
	case len(estimate) > 0:
		if cov == nil {
			cov = zeroMatrix(len(estimate))
		}
		return survival.FittedDistribution{Family: family, Estimate: estimate, Covariance: cov}, nil
	default:
		return survival.FittedDistribution{}, core.NewConfigError("arm", "estimate or parameters is required")
	}
}

// parseJSON reads the export of an external fitting tool. Field names vary
// between tools, so each value is looked up under several aliases.
func parseJSON(data []byte) (*Definition, error) {
	if !gjson.ValidBytes(data) {
		return nil, core.NewConfigError("definition", "invalid JSON")
	}
	doc := gjson.ParseBytes(data)

	comp, err := jsonArm(doc, "comparator")
	if err != nil {
		return nil, fmt.Errorf("comparator: %w", err)
	}
	interv, err := jsonArm(doc, "intervention")
	if err != nil {
		return nil, fmt.Errorf("intervention: %w", err)
	}

	def := &Definition{
		Name:         doc.Get("name").String(),
		Comparator:   comp,
		Intervention: interv,
	}
	settings := doc.Get("settings")
	if def.Settings.NGroups, err = jsonInt(settings, "n_groups"); err != nil {
		return nil, err
	}
	if def.Settings.NIterations, err = jsonInt(settings, "n_iterations"); err != nil {
		return nil, err
	}
	if v := settings.Get("confidence_level"); v.Exists() {
		if v.Type != gjson.Number {
			return nil, core.NewConfigError("confidence_level", fmt.Sprintf("must be a number, got %s", v.Raw))
		}
		def.Settings.ConfidenceLevel = v.Float()
	}
	def.Settings.FailureMode = settings.Get("failure_mode").String()
	def.Settings.ZeroPolicy = settings.Get("zero_policy").String()
	if v := settings.Get("seed"); v.Exists() {
		seed, err := strconv.ParseUint(v.Raw, 10, 64)
		if v.Type != gjson.Number || err != nil {
			return nil, core.NewConfigError("seed", fmt.Sprintf("must be an unsigned integer, got %s", v.Raw))
		}
		def.Settings.Seed = &seed
	}
	return def, nil
}

// jsonInt reads an optional integer setting. Fractions and strings are
// rejected rather than truncated.
func jsonInt(settings gjson.Result, name string) (int, error) {
	v := settings.Get(name)
	if !v.Exists() {
		return 0, nil
	}
	n, err := strconv.Atoi(v.Raw)
	if v.Type != gjson.Number || err != nil {
		return 0, core.NewConfigError(name, fmt.Sprintf("must be an integer, got %s", v.Raw))
	}
	return n, nil
}

func jsonArm(doc gjson.Result, name string) (survival.FittedDistribution, error) {
	arm := first(doc, name, "arms."+name)
	if !arm.Exists() {
		return survival.FittedDistribution{}, core.NewConfigError(name, "missing")
	}

	family, err := survival.ParseFamily(first(arm, "family", "dist", "distribution").String())
	if err != nil {
		return survival.FittedDistribution{}, err
	}

	estimate := floats(first(arm, "estimate", "coefficients", "coef"))
	parameters := floats(first(arm, "parameters", "natural"))

	var cov [][]float64
	if c := first(arm, "covariance", "vcov", "cov"); c.Exists() {
		for _, row := range c.Array() {
			cov = append(cov, floats(row))
		}
	}
	return build(family, estimate, parameters, cov)
}

// first returns the first existing path
func first(r gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}

// floats reads a numeric array, or the values of an object in key order
// (fitting tools often export named coefficients)
func floats(r gjson.Result) []float64 {
	if !r.Exists() {
		return nil
	}
	var out []float64
	r.ForEach(func(_, v gjson.Result) bool {
		out = append(out, v.Float())
		return true
	})
	return out
}

func zeroMatrix(k int) [][]float64 {
	out := make([][]float64, k)
	for i := range out {
		out[i] = make([]float64, k)
	}
	return out
}

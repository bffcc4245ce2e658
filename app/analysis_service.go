package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"goequity/domain/core"
	"goequity/domain/inequality"
	"goequity/domain/run"
	"goequity/domain/survival"
	"goequity/internal"
	"goequity/internal/config"
	"goequity/internal/equity"
	apperrors "goequity/internal/errors"
	"goequity/internal/metrics"
	"goequity/internal/montecarlo"
	"goequity/ports"
)

// AnalysisService orchestrates base-case and probabilistic analyses,
// persistence of their manifests and export of stored results
type AnalysisService struct {
	engine   *montecarlo.Engine
	repo     ports.AnalysisRepository
	writers  map[string]ports.ReportWriter
	defaults config.SimulationConfig
	logger   *internal.Logger
}

// AnalysisRequest defines inputs for one analysis. Zero values fall back to
// the configured simulation defaults.
type AnalysisRequest struct {
	Comparator      survival.FittedDistribution
	Intervention    survival.FittedDistribution
	NGroups         int
	NIterations     int
	ConfidenceLevel float64
	Seed            *uint64
	Workers         int
	FailureMode     string
	ZeroPolicy      string
	KeepIterations  bool
	Progress        func(done, total int)
}

// NewAnalysisService creates an analysis service
func NewAnalysisService(rngPort ports.RNGPort, repo ports.AnalysisRepository, defaults config.SimulationConfig, logger *internal.Logger) *AnalysisService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &AnalysisService{
		engine:   montecarlo.NewEngine(rngPort, logger),
		repo:     repo,
		writers:  make(map[string]ports.ReportWriter),
		defaults: defaults,
		logger:   logger,
	}
}

// RegisterWriter makes an export format available under name
func (s *AnalysisService) RegisterWriter(name string, w ports.ReportWriter) {
	s.writers[name] = w
}

// RunBaseCase evaluates both arms at their point estimates and stores the result
func (s *AnalysisService) RunBaseCase(ctx context.Context, req AnalysisRequest) (*run.Record, error) {
	start := time.Now()
	settings, err := s.settings(req, run.KindBaseCase)
	if err != nil {
		return nil, err
	}
	policy, err := equity.ParseZeroDenominatorPolicy(settings.ZeroPolicy)
	if err != nil {
		return nil, err
	}

	comp, err := req.Comparator.PointDistribution()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", inequality.ArmComparator, err)
	}
	interv, err := req.Intervention.PointDistribution()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", inequality.ArmIntervention, err)
	}

	pipeline := equity.Pipeline{NGroups: settings.NGroups, ZeroPolicy: policy}
	result, compOut, intervOut, err := pipeline.RunDetailed(comp, interv)
	if err != nil {
		metrics.Run(string(run.KindBaseCase), "", "failed", time.Since(start))
		return nil, err
	}

	analysisID := core.NewAnalysisID()
	record := &run.Record{
		Manifest: run.NewRunManifest(analysisID, run.KindBaseCase, req.Comparator, req.Intervention,
			settings, 0, s.defaults.CodeVersion),
		BaseCase: &inequality.BaseCaseReport{
			AnalysisID:   analysisID,
			NGroups:      settings.NGroups,
			Comparator:   compOut.Distribution,
			Intervention: intervOut.Distribution,
			Result:       result,
			CreatedAt:    core.Now(),
		},
	}
	if err := s.save(ctx, record); err != nil {
		return nil, err
	}

	metrics.Run(string(run.KindBaseCase), "", "ok", time.Since(start))
	s.logger.WithFields(map[string]interface{}{"analysis_id": analysisID.String()}).
		Info("base case complete: AD %.4f -> %.4f, IG %.4f -> %.4f",
			result.Comparator.AD, result.Intervention.AD, result.Comparator.IG, result.Intervention.IG)
	return record, nil
}

// RunProbabilistic runs the Monte Carlo analysis and stores the result
func (s *AnalysisService) RunProbabilistic(ctx context.Context, req AnalysisRequest) (*run.Record, error) {
	settings, err := s.settings(req, run.KindProbabilistic)
	if err != nil {
		return nil, err
	}
	policy, err := equity.ParseZeroDenominatorPolicy(settings.ZeroPolicy)
	if err != nil {
		return nil, err
	}

	seed := s.defaults.BaseSeed
	if req.Seed != nil {
		seed = *req.Seed
	}
	workers := req.Workers
	if workers == 0 {
		workers = s.defaults.Workers
	}

	if s.defaults.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.defaults.RunTimeout)
		defer cancel()
	}

	analysisID := core.NewAnalysisID()
	report, err := s.engine.Run(ctx, montecarlo.Request{
		AnalysisID:      analysisID,
		Comparator:      req.Comparator,
		Intervention:    req.Intervention,
		NGroups:         settings.NGroups,
		NIterations:     settings.NIterations,
		ConfidenceLevel: settings.ConfidenceLevel,
		BaseSeed:        seed,
		Workers:         workers,
		FailureMode:     inequality.FailureMode(settings.FailureMode),
		ZeroPolicy:      policy,
		KeepIterations:  req.KeepIterations,
		Progress:        req.Progress,
	})
	if err != nil {
		return nil, err
	}

	record := &run.Record{
		Manifest: run.NewRunManifest(analysisID, run.KindProbabilistic, req.Comparator, req.Intervention,
			settings, seed, s.defaults.CodeVersion),
		Probabilistic: report,
	}
	if err := s.save(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// Replay re-runs a stored analysis from its manifest. The second return
// value reports whether the fresh summaries equal the stored ones.
func (s *AnalysisService) Replay(ctx context.Context, id core.AnalysisID) (*run.Record, bool, error) {
	stored, err := s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	m := stored.Manifest
	if m == nil {
		return nil, false, apperrors.InternalError(fmt.Sprintf("stored analysis %s has no manifest", id))
	}
	seed := m.Seed
	req := AnalysisRequest{
		Comparator:      m.Comparator,
		Intervention:    m.Intervention,
		NGroups:         m.Settings.NGroups,
		NIterations:     m.Settings.NIterations,
		ConfidenceLevel: m.Settings.ConfidenceLevel,
		Seed:            &seed,
		FailureMode:     m.Settings.FailureMode,
		ZeroPolicy:      m.Settings.ZeroPolicy,
		KeepIterations:  stored.Probabilistic != nil && stored.Probabilistic.Rows != nil,
	}

	switch m.Kind {
	case run.KindBaseCase:
		fresh, err := s.RunBaseCase(ctx, req)
		if err != nil {
			return nil, false, err
		}
		return fresh, stored.BaseCase != nil && sameResult(fresh.BaseCase.Result, stored.BaseCase.Result), nil
	case run.KindProbabilistic:
		fresh, err := s.RunProbabilistic(ctx, req)
		if err != nil {
			return nil, false, err
		}
		return fresh, sameSummaries(fresh.Probabilistic, stored.Probabilistic), nil
	default:
		return nil, false, apperrors.ValidationError(fmt.Sprintf("cannot replay analysis of kind %q", m.Kind))
	}
}

// Get loads a stored analysis
func (s *AnalysisService) Get(ctx context.Context, id core.AnalysisID) (*run.Record, error) {
	if s.repo == nil {
		return nil, core.NewNotFoundError("analysis", id.String())
	}
	return s.repo.Get(ctx, id)
}

// List returns recent analyses, newest first
func (s *AnalysisService) List(ctx context.Context, limit int) ([]*run.Record, error) {
	if s.repo == nil {
		return nil, nil
	}
	return s.repo.List(ctx, limit)
}

// Delete removes a stored analysis
func (s *AnalysisService) Delete(ctx context.Context, id core.AnalysisID) error {
	if s.repo == nil {
		return core.NewNotFoundError("analysis", id.String())
	}
	return s.repo.Delete(ctx, id)
}

// Writer returns the report writer registered under format
func (s *AnalysisService) Writer(format string) (ports.ReportWriter, error) {
	writer, ok := s.writers[format]
	if !ok {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown export format %q", format))
	}
	return writer, nil
}

// Export renders a record in a registered format
func (s *AnalysisService) Export(ctx context.Context, record *run.Record, format string, w io.Writer) error {
	writer, err := s.Writer(format)
	if err != nil {
		return err
	}
	if err := writer.Write(ctx, record, w); err != nil {
		return apperrors.Wrapf(err, "export %s as %s", record.ID(), format)
	}
	return nil
}

// settings merges request values over configured defaults
func (s *AnalysisService) settings(req AnalysisRequest, kind run.Kind) (run.Settings, error) {
	out := run.Settings{
		NGroups:    firstNonZero(req.NGroups, s.defaults.NGroups),
		ZeroPolicy: firstNonEmpty(req.ZeroPolicy, s.defaults.ZeroPolicy),
	}
	if kind == run.KindProbabilistic {
		out.NIterations = firstNonZero(req.NIterations, s.defaults.NIterations)
		out.ConfidenceLevel = req.ConfidenceLevel
		if out.ConfidenceLevel == 0 {
			out.ConfidenceLevel = s.defaults.ConfidenceLevel
		}
		out.FailureMode = firstNonEmpty(req.FailureMode, s.defaults.FailureMode)

		if s.defaults.MaxIterations > 0 && out.NIterations > s.defaults.MaxIterations {
			return out, core.NewConfigError("n_iterations",
				fmt.Sprintf("%d exceeds the limit of %d", out.NIterations, s.defaults.MaxIterations))
		}
	}
	if out.NGroups < 1 {
		return out, core.NewGroupCountError(out.NGroups)
	}
	if s.defaults.MaxGroups > 0 && out.NGroups > s.defaults.MaxGroups {
		return out, core.NewConfigError("n_groups",
			fmt.Sprintf("%d exceeds the limit of %d", out.NGroups, s.defaults.MaxGroups))
	}
	return out, nil
}

func (s *AnalysisService) save(ctx context.Context, record *run.Record) error {
	if s.repo == nil {
		return nil
	}
	if err := record.Manifest.Validate(); err != nil {
		return apperrors.Wrap(err, "invalid run manifest")
	}
	if err := s.repo.Save(ctx, record); err != nil {
		return apperrors.DatabaseError("failed to store analysis", err)
	}
	return nil
}

func sameSummaries(a, b *inequality.ProbabilisticReport) bool {
	if a == nil || b == nil || len(a.Summaries) != len(b.Summaries) {
		return false
	}
	for name, sa := range a.Summaries {
		sb, ok := b.Summaries[name]
		if !ok || !sameFloat(sa.Mean, sb.Mean) || !sameFloat(sa.Lower, sb.Lower) ||
			!sameFloat(sa.Upper, sb.Upper) || sa.N != sb.N {
			return false
		}
	}
	return true
}

func sameResult(a, b inequality.RunResult) bool {
	va, vb := a.Values(), b.Values()
	for i := range va {
		if !sameFloat(va[i], vb[i]) {
			return false
		}
	}
	return true
}

// sameFloat treats two NaNs as equal
func sameFloat(a, b float64) bool {
	return a == b || (a != a && b != b)
}

func firstNonZero(v, fallback int) int {
	if v != 0 {
		return v
	}
	return fallback
}

func firstNonEmpty(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

package montecarlo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync/atomic"
	"time"

	"goequity/domain/core"
	"goequity/domain/inequality"
	"goequity/domain/survival"
	"goequity/internal"
	"goequity/internal/equity"
	"goequity/internal/metrics"
	"goequity/internal/resample"
	"goequity/ports"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultConfidenceLevel gives the 2.5th and 97.5th percentiles
	DefaultConfidenceLevel = 0.95

	// maxSkippedSamples bounds the failure messages kept in lenient mode
	maxSkippedSamples = 5
)

// Request describes one probabilistic sensitivity analysis
type Request struct {
	AnalysisID      core.AnalysisID
	Comparator      survival.FittedDistribution
	Intervention    survival.FittedDistribution
	NGroups         int
	NIterations     int
	ConfidenceLevel float64 // 0 means DefaultConfidenceLevel
	BaseSeed        uint64
	Workers         int // <= 0 means GOMAXPROCS
	FailureMode     inequality.FailureMode
	ZeroPolicy      equity.ZeroDenominatorPolicy
	KeepIterations  bool

	// Progress, if set, is called after each finished iteration from the
	// worker goroutine that finished it.
	Progress func(done, total int)
}

// Normalize fills defaults in place and validates the request
func (r *Request) Normalize() error {
	if r.ConfidenceLevel == 0 {
		r.ConfidenceLevel = DefaultConfidenceLevel
	}
	if r.FailureMode == "" {
		r.FailureMode = inequality.FailureStrict
	}
	if r.ZeroPolicy == "" {
		r.ZeroPolicy = equity.ZeroDenominatorError
	}
	if r.Workers <= 0 {
		r.Workers = runtime.GOMAXPROCS(0)
	}

	if r.NGroups < 1 {
		return core.NewGroupCountError(r.NGroups)
	}
	if r.NIterations < 1 {
		return core.NewConfigError("n_iterations", fmt.Sprintf("must be >= 1, got %d", r.NIterations))
	}
	if math.IsNaN(r.ConfidenceLevel) || r.ConfidenceLevel <= 0 || r.ConfidenceLevel >= 1 {
		return core.NewConfigError("confidence_level", fmt.Sprintf("must be in (0,1), got %v", r.ConfidenceLevel))
	}
	if !r.FailureMode.Valid() {
		return core.NewConfigError("failure_mode", fmt.Sprintf("unknown mode %q", r.FailureMode))
	}
	if _, err := equity.ParseZeroDenominatorPolicy(string(r.ZeroPolicy)); err != nil {
		return err
	}
	return nil
}

// IterationSeed is the seed of iteration i (1-based)
func IterationSeed(base uint64, i int) uint64 {
	return base + uint64(i)
}

// Engine runs Monte Carlo probabilistic sensitivity analyses
type Engine struct {
	resampler *resample.Resampler
	logger    *internal.Logger
}

// NewEngine creates an engine drawing randomness from rng
func NewEngine(rng ports.RNGPort, logger *internal.Logger) *Engine {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Engine{
		resampler: resample.NewResampler(rng),
		logger:    logger,
	}
}

// Run executes all iterations and aggregates them. Iteration i always uses
// seed BaseSeed+i and writes slot i-1, so the report does not depend on the
// number of workers.
func (e *Engine) Run(ctx context.Context, req Request) (*inequality.ProbabilisticReport, error) {
	start := time.Now()
	if err := req.Normalize(); err != nil {
		return nil, err
	}

	comp, err := e.resampler.Prepare(req.Comparator)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", inequality.ArmComparator, err)
	}
	interv, err := e.resampler.Prepare(req.Intervention)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", inequality.ArmIntervention, err)
	}

	log := e.logger.WithFields(map[string]interface{}{
		"analysis_id": req.AnalysisID.String(),
		"iterations":  req.NIterations,
		"workers":     req.Workers,
		"mode":        string(req.FailureMode),
	})
	log.Info("starting probabilistic analysis")

	pipeline := equity.Pipeline{NGroups: req.NGroups, ZeroPolicy: req.ZeroPolicy}
	rows := make([]inequality.IterationResult, req.NIterations)

	// In strict mode iterations above the lowest known failure cannot
	// change the outcome and are skipped.
	var firstFailed atomic.Int64
	firstFailed.Store(math.MaxInt64)
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(req.Workers)

	for idx := 0; idx < req.NIterations; idx++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if req.FailureMode == inequality.FailureStrict && int64(idx) > firstFailed.Load() {
				return nil
			}

			i := idx + 1
			seed := IterationSeed(req.BaseSeed, i)
			result, err := e.iterate(gctx, pipeline, comp, interv, seed)
			if err != nil && isContextError(err) {
				return err
			}

			rows[idx] = inequality.IterationResult{Iteration: i, Seed: seed, Result: result, Err: err}
			if err != nil {
				log.Trace("iteration %d (seed %d) failed: %v", i, seed, err)
				metrics.Iteration(core.ErrorKind(err))
				storeMin(&firstFailed, int64(idx))
			} else {
				metrics.Iteration("ok")
			}

			n := int(done.Add(1))
			if req.Progress != nil {
				req.Progress(n, req.NIterations)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		metrics.Run("probabilistic", string(req.FailureMode), "cancelled", time.Since(start))
		return nil, fmt.Errorf("monte carlo stopped after %d of %d iterations: %w", done.Load(), req.NIterations, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("monte carlo stopped after %d of %d iterations: %w", done.Load(), req.NIterations, err)
	}

	report := &inequality.ProbabilisticReport{
		AnalysisID:      req.AnalysisID,
		NGroups:         req.NGroups,
		Iterations:      req.NIterations,
		ConfidenceLevel: req.ConfidenceLevel,
		FailureMode:     req.FailureMode,
		BaseSeed:        req.BaseSeed,
		CreatedAt:       core.Now(),
	}

	for _, row := range rows {
		if row.OK() {
			report.Successful++
			continue
		}
		if req.FailureMode == inequality.FailureStrict {
			metrics.Run("probabilistic", string(req.FailureMode), "failed", time.Since(start))
			log.WithError(row.Err).Warn("iteration %d failed, aborting", row.Iteration)
			return nil, fmt.Errorf("iteration %d (seed %d): %w", row.Iteration, row.Seed, row.Err)
		}
		recordSkip(report, row)
	}

	if report.Successful == 0 {
		metrics.Run("probabilistic", string(req.FailureMode), "failed", time.Since(start))
		return nil, fmt.Errorf("%w: all %d iterations failed", core.ErrNoSuccessfulIterations, req.NIterations)
	}

	report.Summaries = Summarize(rows, req.ConfidenceLevel)
	if req.KeepIterations {
		report.Rows = successfulRows(rows, report.Successful)
	}
	report.DurationMs = time.Since(start).Milliseconds()

	metrics.Run("probabilistic", string(req.FailureMode), "ok", time.Since(start))
	log.Info("finished: %d successful, %d skipped in %dms", report.Successful, report.Skipped, report.DurationMs)
	return report, nil
}

// iterate resamples both arms for one seed and runs the pipeline
func (e *Engine) iterate(ctx context.Context, p equity.Pipeline, comp, interv *resample.Prepared, seed uint64) (inequality.RunResult, error) {
	c, err := e.resampler.Draw(ctx, comp, seed, string(inequality.ArmComparator))
	if err != nil {
		return inequality.RunResult{}, fmt.Errorf("%s: resample: %w", inequality.ArmComparator, err)
	}
	iv, err := e.resampler.Draw(ctx, interv, seed, string(inequality.ArmIntervention))
	if err != nil {
		return inequality.RunResult{}, fmt.Errorf("%s: resample: %w", inequality.ArmIntervention, err)
	}
	return p.RunOnce(c, iv)
}

func recordSkip(report *inequality.ProbabilisticReport, row inequality.IterationResult) {
	kind := core.ErrorKind(row.Err)
	report.Skipped++
	if report.SkippedByKind == nil {
		report.SkippedByKind = make(map[string]int)
	}
	report.SkippedByKind[kind]++
	if len(report.SkippedSamples) < maxSkippedSamples {
		report.SkippedSamples = append(report.SkippedSamples, inequality.SkippedIteration{
			Iteration: row.Iteration,
			Kind:      kind,
			Message:   row.Err.Error(),
		})
	}
}

func successfulRows(rows []inequality.IterationResult, n int) []inequality.IterationResult {
	out := make([]inequality.IterationResult, 0, n)
	for _, row := range rows {
		if row.OK() {
			out = append(out, row)
		}
	}
	return out
}

func storeMin(v *atomic.Int64, candidate int64) {
	for {
		cur := v.Load()
		if candidate >= cur || v.CompareAndSwap(cur, candidate) {
			return
		}
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

package api

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"goequity/adapters/modelio"
	"goequity/app"
	"goequity/domain/core"
	"goequity/domain/run"
	"goequity/internal"
	apperrors "goequity/internal/errors"

	"github.com/gin-gonic/gin"
)

// maxBodyBytes caps an analysis definition upload
const maxBodyBytes = 1 << 20

// AnalysisHandler serves the analysis endpoints
type AnalysisHandler struct {
	service *app.AnalysisService
	hub     *ProgressHub
	logger  *internal.Logger
}

// NewAnalysisHandler creates a new analysis handler. hub may be nil, in
// which case progress streaming is unavailable.
func NewAnalysisHandler(service *app.AnalysisService, hub *ProgressHub, logger *internal.Logger) *AnalysisHandler {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &AnalysisHandler{service: service, hub: hub, logger: logger}
}

// analysisSummary is one entry of the list endpoint
type analysisSummary struct {
	ID          core.AnalysisID `json:"id"`
	Kind        run.Kind        `json:"kind"`
	Fingerprint core.Hash       `json:"fingerprint"`
	Seed        uint64          `json:"seed"`
	CreatedAt   core.Timestamp  `json:"created_at"`
}

// CreateBaseCase runs a deterministic analysis from the posted definition
func (h *AnalysisHandler) CreateBaseCase(c *gin.Context) {
	req, err := h.parseRequest(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	record, err := h.service.RunBaseCase(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

// CreateProbabilistic runs a Monte Carlo analysis from the posted definition.
// With ?progress=<key>, progress is published to subscribers of that key,
// ending with one finished event whether the run succeeds or fails.
func (h *AnalysisHandler) CreateProbabilistic(c *gin.Context) {
	key := c.Query("progress")
	tracked := key != "" && h.hub != nil
	var done, total atomic.Int64

	record, err := func() (*run.Record, error) {
		req, err := h.parseRequest(c)
		if err != nil {
			return nil, err
		}
		if tracked {
			report := h.hub.Reporter(key)
			req.Progress = func(d, t int) {
				// workers report out of order; keep the highest count
				for cur := done.Load(); int64(d) > cur && !done.CompareAndSwap(cur, int64(d)); cur = done.Load() {
				}
				total.Store(int64(t))
				report(d, t)
			}
		}
		return h.service.RunProbabilistic(c.Request.Context(), req)
	}()

	if tracked {
		h.hub.Complete(key, int(done.Load()), int(total.Load()), err)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

// GetAnalysis returns a stored analysis as JSON, or as a report file when
// ?format= names a registered writer
func (h *AnalysisHandler) GetAnalysis(c *gin.Context) {
	id, err := core.ParseAnalysisID(c.Param("id"))
	if err != nil {
		h.respondError(c, apperrors.InvalidInput(err.Error()))
		return
	}

	record, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	format := c.Query("format")
	if format == "" || format == "json" {
		c.JSON(http.StatusOK, record)
		return
	}

	writer, err := h.service.Writer(format)
	if err != nil {
		h.respondError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := h.service.Export(c.Request.Context(), record, format, &buf); err != nil {
		h.respondError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+id.String()+writer.Extension()+`"`)
	c.Data(http.StatusOK, writer.ContentType(), buf.Bytes())
}

// ListAnalyses returns the most recent analyses, newest first
func (h *AnalysisHandler) ListAnalyses(c *gin.Context) {
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		h.respondError(c, err)
		return
	}

	records, err := h.service.List(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}

	out := make([]analysisSummary, 0, len(records))
	for _, r := range records {
		out = append(out, analysisSummary{
			ID:          r.ID(),
			Kind:        r.Kind(),
			Fingerprint: r.Manifest.Fingerprint.Fingerprint,
			Seed:        r.Manifest.Seed,
			CreatedAt:   r.Manifest.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"analyses": out, "count": len(out)})
}

// ReplayAnalysis re-runs a stored analysis and reports whether it reproduced
func (h *AnalysisHandler) ReplayAnalysis(c *gin.Context) {
	id, err := core.ParseAnalysisID(c.Param("id"))
	if err != nil {
		h.respondError(c, apperrors.InvalidInput(err.Error()))
		return
	}

	fresh, reproduced, err := h.service.Replay(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"replayed_from": id,
		"reproduced":    reproduced,
		"record":        fresh,
	})
}

// DeleteAnalysis removes a stored analysis
func (h *AnalysisHandler) DeleteAnalysis(c *gin.Context) {
	id, err := core.ParseAnalysisID(c.Param("id"))
	if err != nil {
		h.respondError(c, apperrors.InvalidInput(err.Error()))
		return
	}
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// parseRequest reads a YAML or JSON analysis definition from the body.
// Query parameters override definition settings.
func (h *AnalysisHandler) parseRequest(c *gin.Context) (app.AnalysisRequest, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		return app.AnalysisRequest{}, apperrors.InvalidInput("failed to read request body")
	}

	format := modelio.FormatJSON
	if strings.Contains(c.ContentType(), "yaml") {
		format = modelio.FormatYAML
	}
	def, err := modelio.Parse(body, format)
	if err != nil {
		return app.AnalysisRequest{}, err
	}

	req := app.AnalysisRequest{
		Comparator:      def.Comparator,
		Intervention:    def.Intervention,
		NGroups:         def.Settings.NGroups,
		NIterations:     def.Settings.NIterations,
		ConfidenceLevel: def.Settings.ConfidenceLevel,
		Seed:            def.Settings.Seed,
		FailureMode:     def.Settings.FailureMode,
		ZeroPolicy:      def.Settings.ZeroPolicy,
	}

	if req.NGroups, err = queryInt(c, "groups", req.NGroups); err != nil {
		return req, err
	}
	if req.NIterations, err = queryInt(c, "iterations", req.NIterations); err != nil {
		return req, err
	}
	if req.Workers, err = queryInt(c, "workers", 0); err != nil {
		return req, err
	}
	if v := c.Query("seed"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return req, apperrors.InvalidInput("seed must be an unsigned integer")
		}
		req.Seed = &seed
	}
	if v := c.Query("failure_mode"); v != "" {
		req.FailureMode = v
	}
	req.KeepIterations = c.Query("keep_iterations") == "true"
	return req, nil
}

func (h *AnalysisHandler) respondError(c *gin.Context, err error) {
	appErr := apperrors.FromDomain(err)
	status := apperrors.HTTPStatus(appErr)
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).Error("request %s %s failed", c.Request.Method, c.FullPath())
	}
	c.JSON(status, gin.H{
		"error": err.Error(),
		"code":  apperrors.GetCode(appErr),
	})
}

func queryInt(c *gin.Context, name string, fallback int) (int, error) {
	v := c.Query(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperrors.InvalidInput(name + " must be an integer")
	}
	return n, nil
}

// Health reports liveness and the running code version
func Health(codeVersion string) gin.HandlerFunc {
	start := time.Now()
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":         "ok",
			"code_version":   codeVersion,
			"uptime_seconds": int(time.Since(start).Seconds()),
		})
	}
}

package api

import (
	"strconv"
	"time"

	"goequity/internal"
	"goequity/internal/metrics"

	"github.com/gin-gonic/gin"
)

// RouterOptions configures NewRouter
type RouterOptions struct {
	CodeVersion      string
	MetricsEnabled   bool
	// MetricsOnOwnPort leaves /metrics off this router
	MetricsOnOwnPort bool
	Logger           *internal.Logger
}

// NewRouter wires the analysis endpoints, health check and metrics
func NewRouter(handler *AnalysisHandler, hub *ProgressHub, opts RouterOptions) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = internal.DefaultLogger
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))
	if opts.MetricsEnabled {
		router.Use(requestMetrics())
		if !opts.MetricsOnOwnPort {
			router.GET("/metrics", gin.WrapH(metrics.Handler()))
		}
	}
	router.GET("/healthz", Health(opts.CodeVersion))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/analyses/base-case", handler.CreateBaseCase)
		v1.POST("/analyses/probabilistic", handler.CreateProbabilistic)
		v1.GET("/analyses", handler.ListAnalyses)
		v1.GET("/analyses/:id", handler.GetAnalysis)
		v1.POST("/analyses/:id/replay", handler.ReplayAnalysis)
		v1.DELETE("/analyses/:id", handler.DeleteAnalysis)
		if hub != nil {
			v1.GET("/progress", hub.HandleSSE)
		}
	}
	return router
}

func requestLogger(logger *internal.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(map[string]interface{}{
			"method":      c.Request.Method,
			"route":       routeLabel(c),
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("request served")
	}
}

func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		metrics.HTTPRequest(routeLabel(c), strconv.Itoa(c.Writer.Status()))
	}
}

// routeLabel keeps metric cardinality bounded by using the route template
func routeLabel(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return "unmatched"
}

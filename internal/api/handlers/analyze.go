package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tonalworks/sonata-api/internal/analysis"
	"github.com/tonalworks/sonata-api/internal/config"
	"github.com/tonalworks/sonata-api/internal/enhance"
	"github.com/tonalworks/sonata-api/internal/logger"
	"github.com/tonalworks/sonata-api/internal/metrics"
	"github.com/tonalworks/sonata-api/internal/midifile"
	"github.com/tonalworks/sonata-api/internal/score"
)

const (
	formFileField  = "midi_file"
	maxUploadBytes = 10 << 20 // 10 MiB
)

// AnalysisHandler handles sonata-form analysis requests
type AnalysisHandler struct {
	cfg      *config.Config
	pipeline *analysis.Pipeline
	enhancer enhance.Enhancer
	cw       *metrics.Client
}

// NewAnalysisHandler creates a new analysis handler. enhancer may be
// nil, in which case responses carry the core result only.
func NewAnalysisHandler(cfg *config.Config, enhancer enhance.Enhancer, cw *metrics.Client) *AnalysisHandler {
	return &AnalysisHandler{
		cfg:      cfg,
		pipeline: analysis.NewPipeline(analysis.DefaultConfig()),
		enhancer: enhancer,
		cw:       cw,
	}
}

// Analyze accepts a MIDI file upload and returns the sonata-form
// segmentation. Invalid uploads fail with 400; everything past
// validation either succeeds or fails with 500.
func (h *AnalysisHandler) Analyze(c *gin.Context) {
	startTime := time.Now()
	fields := logger.WithContext(c)

	fileHeader, err := c.FormFile(formFileField)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"message": "multipart field 'midi_file' is required",
		})
		return
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if ext != ".mid" && ext != ".midi" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid file type",
			"message": "only .mid and .midi files are supported",
		})
		return
	}
	if fileHeader.Size > maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "File too large",
			"message": "uploads are limited to 10 MiB",
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		logger.Error("Failed to open upload", err, fields)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read upload"})
		return
	}
	defer func() {
		_ = file.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		logger.Error("Failed to read upload", err, fields)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read upload"})
		return
	}

	fields["filename"] = fileHeader.Filename
	fields["size_bytes"] = len(data)
	logger.Info("Analysis request received", fields)

	s, err := midifile.Read(data)
	if err != nil {
		h.respondAnalysisError(c, err, fields)
		return
	}

	result, err := h.pipeline.Analyze(s)
	if err != nil {
		h.respondAnalysisError(c, err, fields)
		return
	}

	duration := time.Since(startTime)
	logger.LogAnalysisRequest(c, duration, len(result.Sections), result.OverallConfidence, nil)
	sentryMetricsRecord(c, duration, len(result.Sections))
	if h.cw != nil {
		h.cw.RecordAnalysisDuration(duration, true)
	}

	c.JSON(http.StatusOK, h.enhanceOrFallback(c, result))
}

// enhanceOrFallback runs the optional enrichment step. Failures are
// logged and swallowed; the caller always gets a complete analysis.
// Langfuse tracing happens inside the providers at the call site.
func (h *AnalysisHandler) enhanceOrFallback(c *gin.Context, result *analysis.Result) any {
	if h.enhancer == nil {
		return result
	}

	startTime := time.Now()
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.cfg.EnhancementTimeout)
	defer cancel()

	enhanced, err := h.enhancer.Enhance(ctx, result)
	duration := time.Since(startTime)

	if err != nil {
		logger.Warn("Enhancement unavailable, returning core analysis", logger.Fields{
			"request_id": c.GetString("request_id"),
			"provider":   h.enhancer.Name(),
			"error":      err.Error(),
		})
		logger.LogEnhancementRequest(h.cfg.EnhancementModel, duration, false, nil)
		analysisMetrics.RecordEnhancementUsage(c.Request.Context(), h.enhancer.Name(), false, duration)
		analysisMetrics.RecordCustomMetric("enhancement_fallback", map[string]interface{}{
			"request_id": c.GetString("request_id"),
			"provider":   h.enhancer.Name(),
			"error":      err.Error(),
		})
		if h.cw != nil {
			h.cw.RecordEnhancementUsage(h.enhancer.Name(), false)
		}
		return result
	}

	logger.LogEnhancementRequest(h.cfg.EnhancementModel, duration, true, nil)
	analysisMetrics.RecordEnhancementUsage(c.Request.Context(), h.enhancer.Name(), true, duration)
	if h.cw != nil {
		h.cw.RecordEnhancementUsage(h.enhancer.Name(), true)
	}
	return enhanced
}

// respondAnalysisError maps pipeline errors to HTTP statuses. The two
// validation sentinels are client errors; anything else is ours.
func (h *AnalysisHandler) respondAnalysisError(c *gin.Context, err error, fields logger.Fields) {
	if errors.Is(err, score.ErrInvalidInputFormat) || errors.Is(err, score.ErrInvalidTempoMap) {
		logger.Warn("Rejected invalid score", logger.Fields{
			"request_id": c.GetString("request_id"),
			"reason":     err.Error(),
		})
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid MIDI file",
			"message": err.Error(),
		})
		return
	}

	logger.Error("Analysis failed", err, fields)
	if h.cw != nil {
		h.cw.RecordAnalysisDuration(0, false)
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":      "Analysis failed",
		"request_id": c.GetString("request_id"),
	})
}

var analysisMetrics = metrics.NewSentryMetrics()

func sentryMetricsRecord(c *gin.Context, duration time.Duration, sections int) {
	analysisMetrics.RecordAnalysisDuration(c.Request.Context(), duration, sections, true)
}

package handler

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/obe-analytics-api/internal/middleware"
	"github.com/noah-isme/obe-analytics-api/internal/models"
	"github.com/noah-isme/obe-analytics-api/internal/service"
	appErrors "github.com/noah-isme/obe-analytics-api/pkg/errors"
	"github.com/noah-isme/obe-analytics-api/pkg/response"
)

// AnalyticsHandler exposes achievement and attainment reporting endpoints.
type AnalyticsHandler struct {
	analytics *service.AnalyticsService
	exports   *service.ExportService
}

// NewAnalyticsHandler constructs the analytics handler.
func NewAnalyticsHandler(analytics *service.AnalyticsService, exports *service.ExportService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics, exports: exports}
}

// Detailed godoc
// @Summary Per-student achievement report by subject, CO and Bloom's level
// @Tags Analytics
// @Produce json
// @Param enrollmentNumber path string true "Enrollment number"
// @Param semesterNumber path int true "Semester number"
// @Param subject_code query string false "Limit report to one subject"
// @Param mode query string false "Projection mode: full (default) or proportional"
// @Success 200 {object} models.DetailedAchievement
// @Router /analytics/blooms/detailed/{enrollmentNumber}/{semesterNumber} [get]
func (h *AnalyticsHandler) Detailed(c *gin.Context) {
	if h.analytics == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	semester, err := semesterParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	mode := models.AchievementMode(c.DefaultQuery("mode", string(models.AchievementModeFull)))
	if mode != models.AchievementModeFull && mode != models.AchievementModeProportional {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "mode must be full or proportional"))
		return
	}
	start := time.Now()
	report, cacheHit, err := h.analytics.Detailed(c.Request.Context(), c.Param("enrollmentNumber"), semester, subjectFilter(c), mode)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = make(map[string]interface{})
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, report, nil, meta)
}

// Compare godoc
// @Summary Cross-cohort Bloom's level comparison for a batch
// @Tags Analytics
// @Produce json
// @Param batchId path int true "Batch ID"
// @Param semesterNumber path int true "Semester number"
// @Param subject_code query string false "Limit comparison to one subject"
// @Success 200 {object} models.BloomsComparison
// @Router /analytics/blooms/compare/{batchId}/{semesterNumber} [get]
func (h *AnalyticsHandler) Compare(c *gin.Context) {
	if h.analytics == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	batchID, err := batchParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	semester, err := semesterParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	start := time.Now()
	comparison, cacheHit, err := h.analytics.Compare(c.Request.Context(), batchID, semester, subjectFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = make(map[string]interface{})
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, comparison, nil, meta)
}

// COAttainment godoc
// @Summary CO attainment report for a subject and batch
// @Tags Analytics
// @Produce json
// @Param subjectCode path string true "Subject code"
// @Param batchId path int true "Batch ID"
// @Param semesterNumber path int true "Semester number"
// @Success 200 {object} models.COAttainmentReport
// @Router /analytics/co-attainment/{subjectCode}/{batchId}/{semesterNumber} [get]
func (h *AnalyticsHandler) COAttainment(c *gin.Context) {
	if h.analytics == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	batchID, err := batchParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	semester, err := semesterParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	start := time.Now()
	report, cacheHit, err := h.analytics.COAttainment(c.Request.Context(), c.Param("subjectCode"), batchID, semester)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = make(map[string]interface{})
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, report, nil, meta)
}

// ExportAttainment godoc
// @Summary Export the CO attainment report as CSV or PDF
// @Tags Analytics
// @Produce json
// @Param subjectCode path string true "Subject code"
// @Param batchId path int true "Batch ID"
// @Param semesterNumber path int true "Semester number"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {object} service.ExportResult
// @Router /analytics/co-attainment/{subjectCode}/{batchId}/{semesterNumber}/export [get]
func (h *AnalyticsHandler) ExportAttainment(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	batchID, err := batchParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	semester, err := semesterParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	format := models.ReportFormat(c.DefaultQuery("format", string(models.ReportFormatCSV)))
	result, err := h.exports.GenerateAttainment(c.Request.Context(), c.Param("subjectCode"), batchID, semester, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Download godoc
// @Summary Download a previously exported report via signed token
// @Tags Analytics
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Router /analytics/exports/{token} [get]
func (h *AnalyticsHandler) Download(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	file, err := h.exports.ResolveDownload(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck
	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat export file"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filepath.Base(info.Name())))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), "application/octet-stream", file, nil)
}

// BloomsLevels godoc
// @Summary List the Bloom's taxonomy levels
// @Tags Analytics
// @Produce json
// @Success 200 {array} models.BloomsLevel
// @Router /blooms-taxonomy [get]
func (h *AnalyticsHandler) BloomsLevels(c *gin.Context) {
	if h.analytics == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	levels, err := h.analytics.BloomsLevels(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, levels, nil)
}

// System godoc
// @Summary Instrumentation snapshot for the analytics subsystem
// @Tags Analytics
// @Produce json
// @Success 200 {object} models.AnalyticsSystemMetrics
// @Router /analytics/system [get]
func (h *AnalyticsHandler) System(c *gin.Context) {
	if h.analytics == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	start := time.Now()
	metrics := h.analytics.SystemMetrics()
	middleware.SetCacheHit(c, false)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = make(map[string]interface{})
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, metrics, nil, meta)
}

// subjectFilter reads the optional subject narrowing from either the trailing
// path segment or the subject_code query parameter.
func subjectFilter(c *gin.Context) string {
	if subject := c.Param("subjectCode"); subject != "" {
		return subject
	}
	return c.Query("subject_code")
}

func batchParam(c *gin.Context) (int64, error) {
	batchID, err := strconv.ParseInt(c.Param("batchId"), 10, 64)
	if err != nil || batchID < 1 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "invalid batch id")
	}
	return batchID, nil
}

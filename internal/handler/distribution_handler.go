package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/obe-analytics-api/internal/middleware"
	"github.com/noah-isme/obe-analytics-api/internal/service"
	appErrors "github.com/noah-isme/obe-analytics-api/pkg/errors"
	"github.com/noah-isme/obe-analytics-api/pkg/response"
)

// DistributionHandler exposes the weighted marks distribution endpoints.
type DistributionHandler struct {
	distribution *service.DistributionService
	analytics    *service.AnalyticsService
}

// NewDistributionHandler constructs the distribution handler.
func NewDistributionHandler(distribution *service.DistributionService, analytics *service.AnalyticsService) *DistributionHandler {
	return &DistributionHandler{distribution: distribution, analytics: analytics}
}

// Calculate godoc
// @Summary Recompute and store the Bloom's distribution for a student semester
// @Tags BloomsDistribution
// @Produce json
// @Param enrollmentNumber path string true "Enrollment number"
// @Param semesterNumber path int true "Semester number"
// @Param subject_code query string false "Limit recomputation to one subject"
// @Success 200 {object} models.DistributionResult
// @Router /blooms-distribution/calculate/{enrollmentNumber}/{semesterNumber} [post]
func (h *DistributionHandler) Calculate(c *gin.Context) {
	if h.distribution == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	semester, err := semesterParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.distribution.Process(c.Request.Context(), c.Param("enrollmentNumber"), semester, c.Query("subject_code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Stored godoc
// @Summary Read the stored Bloom's distribution grouped by subject
// @Tags BloomsDistribution
// @Produce json
// @Param enrollmentNumber path string true "Enrollment number"
// @Param semesterNumber path int true "Semester number"
// @Success 200 {object} models.StoredDistributionResponse
// @Router /blooms-distribution/stored/{enrollmentNumber}/{semesterNumber} [get]
func (h *DistributionHandler) Stored(c *gin.Context) {
	if h.analytics == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	semester, err := semesterParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	start := time.Now()
	result, cacheHit, err := h.analytics.Stored(c.Request.Context(), c.Param("enrollmentNumber"), semester)
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
	response.JSON(c, http.StatusOK, result, nil, meta)
}

func semesterParam(c *gin.Context) (int, error) {
	raw := c.Param("semesterNumber")
	semester, err := strconv.Atoi(raw)
	if err != nil || semester < 1 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "invalid semester number")
	}
	return semester, nil
}

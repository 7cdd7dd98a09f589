package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/obe-analytics-api/internal/models"
	"github.com/noah-isme/obe-analytics-api/internal/service"
	appErrors "github.com/noah-isme/obe-analytics-api/pkg/errors"
	"github.com/noah-isme/obe-analytics-api/pkg/response"
)

// MarksHandler exposes the faculty marks-entry endpoint.
type MarksHandler struct {
	marks *service.MarksService
}

// NewMarksHandler constructs the marks handler.
func NewMarksHandler(marks *service.MarksService) *MarksHandler {
	return &MarksHandler{marks: marks}
}

type markEntryRequest struct {
	ComponentType  string  `json:"component_type" binding:"required"`
	ComponentName  *string `json:"component_name"`
	SubComponentID *int64  `json:"sub_component_id"`
	IsSubComponent bool    `json:"is_sub_component"`
	MarksObtained  float64 `json:"marks_obtained" binding:"min=0"`
	TotalMarks     float64 `json:"total_marks" binding:"min=0"`
}

type updateMarksRequest struct {
	SemesterNumber int                `json:"semester_number" binding:"required,min=1"`
	Entries        []markEntryRequest `json:"entries" binding:"required,min=1,dive"`
}

// Update godoc
// @Summary Upsert component marks for a student and subject
// @Description Saves the submitted component marks and schedules a background
// @Description recompute of the Bloom's distribution for the affected scope.
// @Tags StudentMarks
// @Accept json
// @Produce json
// @Param enrollmentNumber path string true "Enrollment number"
// @Param subjectCode path string true "Subject code"
// @Param request body updateMarksRequest true "Marks payload"
// @Success 200 {array} models.StudentMark
// @Router /student-marks/{enrollmentNumber}/{subjectCode} [put]
func (h *MarksHandler) Update(c *gin.Context) {
	if h.marks == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	var req updateMarksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}

	entries := make([]service.MarkEntry, 0, len(req.Entries))
	for _, entry := range req.Entries {
		component, ok := models.ParseComponentType(entry.ComponentType)
		if !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown component_type "+entry.ComponentType))
			return
		}
		entries = append(entries, service.MarkEntry{
			ComponentType:  component,
			ComponentName:  entry.ComponentName,
			SubComponentID: entry.SubComponentID,
			IsSubComponent: entry.IsSubComponent,
			MarksObtained:  entry.MarksObtained,
			TotalMarks:     entry.TotalMarks,
		})
	}

	saved, err := h.marks.Update(c.Request.Context(), c.Param("enrollmentNumber"), c.Param("subjectCode"), req.SemesterNumber, entries)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, saved, nil)
}

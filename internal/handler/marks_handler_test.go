package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/obe-analytics-api/internal/models"
	"github.com/noah-isme/obe-analytics-api/internal/service"
)

type subjectReaderStub struct {
	subject *models.Subject
}

func (s *subjectReaderStub) FindByCode(context.Context, string) (*models.Subject, error) {
	if s.subject == nil {
		return nil, sql.ErrNoRows
	}
	return s.subject, nil
}

type marksWriterStub struct {
	saved []models.StudentMark
}

func (s *marksWriterStub) Upsert(_ context.Context, mark *models.StudentMark) error {
	mark.ID = int64(len(s.saved) + 1)
	s.saved = append(s.saved, *mark)
	return nil
}

func newMarksFixture() (*MarksHandler, *marksWriterStub) {
	writer := &marksWriterStub{}
	svc := service.NewMarksService(
		&studentReaderStub{student: &models.Student{ID: 7, EnrollmentNumber: "EN001", BatchID: 3}},
		&subjectReaderStub{subject: &models.Subject{Code: "CS101", Name: "Data Structures"}},
		writer, nil, nil, zap.NewNop())
	return NewMarksHandler(svc), writer
}

func newMarksContext(body string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPut, "/student-marks/EN001/CS101", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{
		{Key: "enrollmentNumber", Value: "EN001"},
		{Key: "subjectCode", Value: "CS101"},
	}
	return c, w
}

func TestMarksHandlerUpdate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, writer := newMarksFixture()

	c, w := newMarksContext(`{
		"semester_number": 4,
		"entries": [
			{"component_type": "ese", "marks_obtained": 40, "total_marks": 50},
			{"component_type": "IA", "marks_obtained": 18, "total_marks": 20}
		]
	}`)
	h.Update(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, writer.saved, 2)
	assert.Equal(t, models.ComponentESE, writer.saved[0].ComponentType)
	assert.Equal(t, int64(3), writer.saved[0].BatchID)

	var envelope struct {
		Data []models.StudentMark `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Len(t, envelope.Data, 2)
}

func TestMarksHandlerUpdateRejectsUnknownComponent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, writer := newMarksFixture()

	c, w := newMarksContext(`{
		"semester_number": 4,
		"entries": [{"component_type": "QUIZ", "marks_obtained": 5, "total_marks": 10}]
	}`)
	h.Update(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, writer.saved)
}

func TestMarksHandlerUpdateRejectsEmptyEntries(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, writer := newMarksFixture()

	c, w := newMarksContext(`{"semester_number": 4, "entries": []}`)
	h.Update(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, writer.saved)
}

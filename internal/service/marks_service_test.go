package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/obe-analytics-api/internal/models"
	appErrors "github.com/noah-isme/obe-analytics-api/pkg/errors"
	"github.com/noah-isme/obe-analytics-api/pkg/jobs"
)

type mockSubjectReader struct {
	subjects map[string]*models.Subject
}

func (m *mockSubjectReader) FindByCode(_ context.Context, code string) (*models.Subject, error) {
	subject, ok := m.subjects[code]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return subject, nil
}

type mockMarksWriter struct {
	saved []models.StudentMark
	err   error
}

func (m *mockMarksWriter) Upsert(_ context.Context, mark *models.StudentMark) error {
	if m.err != nil {
		return m.err
	}
	mark.ID = int64(len(m.saved) + 1)
	m.saved = append(m.saved, *mark)
	return nil
}

func newMarksFixture(queue *jobs.Queue) (*MarksService, *mockMarksWriter) {
	students := &mockStudentReader{students: map[string]*models.Student{
		"EN001": {ID: 7, EnrollmentNumber: "EN001", Name: "Asha", BatchID: 3},
	}}
	subjects := &mockSubjectReader{subjects: map[string]*models.Subject{
		"CS101": {Code: "CS101", Name: "Data Structures"},
	}}
	writer := &mockMarksWriter{}
	return NewMarksService(students, subjects, writer, queue, nil, zap.NewNop()), writer
}

func TestMarksUpdatePersistsEntries(t *testing.T) {
	svc, writer := newMarksFixture(nil)

	saved, err := svc.Update(context.Background(), "EN001", "CS101", 4, []MarkEntry{
		{ComponentType: models.ComponentESE, MarksObtained: 40, TotalMarks: 50},
		{ComponentType: models.ComponentIA, MarksObtained: 18, TotalMarks: 20},
	})
	require.NoError(t, err)
	require.Len(t, saved, 2)
	require.Len(t, writer.saved, 2)
	assert.Equal(t, int64(7), writer.saved[0].StudentID)
	assert.Equal(t, int64(3), writer.saved[0].BatchID)
	assert.Equal(t, 4, writer.saved[0].SemesterNumber)
}

func TestMarksUpdateSucceedsWhenEnqueueFails(t *testing.T) {
	// The queue exists but was never started, so Enqueue returns an error.
	// The marks write must still report success.
	queue := jobs.NewQueue("test", func(context.Context, jobs.Job) error { return nil }, jobs.QueueConfig{Logger: zap.NewNop()})
	svc, writer := newMarksFixture(queue)

	saved, err := svc.Update(context.Background(), "EN001", "CS101", 4, []MarkEntry{
		{ComponentType: models.ComponentESE, MarksObtained: 40, TotalMarks: 50},
	})
	require.NoError(t, err)
	assert.Len(t, saved, 1)
	assert.Len(t, writer.saved, 1)
}

func TestMarksUpdateEnqueuesScopedRecompute(t *testing.T) {
	received := make(chan jobs.Job, 1)
	queue := jobs.NewQueue("test", func(_ context.Context, job jobs.Job) error {
		received <- job
		return nil
	}, jobs.QueueConfig{Workers: 1, Logger: zap.NewNop()})
	queue.Start(context.Background())
	defer queue.Stop()

	svc, _ := newMarksFixture(queue)
	_, err := svc.Update(context.Background(), "EN001", "CS101", 4, []MarkEntry{
		{ComponentType: models.ComponentESE, MarksObtained: 40, TotalMarks: 50},
	})
	require.NoError(t, err)

	job := <-received
	payload, ok := job.Payload.(RecomputePayload)
	require.True(t, ok)
	assert.Equal(t, "EN001", payload.EnrollmentNumber)
	assert.Equal(t, 4, payload.SemesterNumber)
	assert.Equal(t, "CS101", payload.SubjectCode)
}

func TestMarksUpdateValidation(t *testing.T) {
	svc, _ := newMarksFixture(nil)

	cases := []struct {
		name  string
		entry MarkEntry
	}{
		{"unknown component", MarkEntry{ComponentType: "PRACTICAL", MarksObtained: 1, TotalMarks: 2}},
		{"negative obtained", MarkEntry{ComponentType: models.ComponentESE, MarksObtained: -1, TotalMarks: 10}},
		{"obtained above total", MarkEntry{ComponentType: models.ComponentESE, MarksObtained: 11, TotalMarks: 10}},
		{"sub-component without id", MarkEntry{ComponentType: models.ComponentCA, IsSubComponent: true, MarksObtained: 5, TotalMarks: 10}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Update(context.Background(), "EN001", "CS101", 4, []MarkEntry{tc.entry})
			require.Error(t, err)
			var appErr *appErrors.Error
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
		})
	}
}

func TestMarksUpdateUnknownSubject(t *testing.T) {
	svc, _ := newMarksFixture(nil)

	_, err := svc.Update(context.Background(), "EN001", "NOPE", 4, []MarkEntry{
		{ComponentType: models.ComponentESE, MarksObtained: 40, TotalMarks: 50},
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

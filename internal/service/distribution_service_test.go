package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/obe-analytics-api/internal/models"
	appErrors "github.com/noah-isme/obe-analytics-api/pkg/errors"
	"github.com/noah-isme/obe-analytics-api/pkg/jobs"
)

func jobWithPayload(payload interface{}) jobs.Job {
	return jobs.Job{ID: "test-job", Type: JobTypeDistributionRecompute, Payload: payload}
}

type mockStudentReader struct {
	students map[string]*models.Student
}

func (m *mockStudentReader) FindByEnrollment(_ context.Context, enrollmentNumber string) (*models.Student, error) {
	student, ok := m.students[enrollmentNumber]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return student, nil
}

type mockWeightageReader struct {
	weightages map[string]*models.ComponentWeightage
}

func (m *mockWeightageReader) FindBySubject(_ context.Context, subjectCode string) (*models.ComponentWeightage, error) {
	return m.weightages[subjectCode], nil
}

func (m *mockWeightageReader) FindSubComponent(_ context.Context, id int64) (*models.SubComponent, error) {
	return nil, sql.ErrNoRows
}

type mockOutcomeReader struct {
	componentCOs map[models.ComponentType][]int64
	bloomsByCO   map[int64][]models.BloomsLevel
}

func (m *mockOutcomeReader) ListComponentCOIDs(_ context.Context, _ int64, component models.ComponentType) ([]int64, error) {
	return m.componentCOs[component], nil
}

func (m *mockOutcomeReader) ListBloomsByOutcome(_ context.Context, outcomeID int64) ([]models.BloomsLevel, error) {
	return m.bloomsByCO[outcomeID], nil
}

type mockMarksReader struct {
	marks    []models.StudentMark
	subjects []string
}

func (m *mockMarksReader) ListForSubject(_ context.Context, filter models.MarkFilter) ([]models.StudentMark, error) {
	var out []models.StudentMark
	for _, mark := range m.marks {
		if mark.SubjectCode == filter.SubjectCode && mark.StudentID == filter.StudentID && mark.SemesterNumber == filter.SemesterNumber {
			out = append(out, mark)
		}
	}
	return out, nil
}

func (m *mockMarksReader) ListSubjectCodes(_ context.Context, _ int64, _ int) ([]string, error) {
	return m.subjects, nil
}

type capturingStore struct {
	scope   models.DistributionScope
	records []models.DistributionRecord
	calls   int
	err     error
}

func (s *capturingStore) ReplaceScope(_ context.Context, scope models.DistributionScope, records []models.DistributionRecord) error {
	s.calls++
	s.scope = scope
	s.records = records
	return s.err
}

func TestComputeWeightedMarks(t *testing.T) {
	cases := []struct {
		name      string
		obtained  float64
		total     float64
		weightage float64
		maxScore  float64
		want      float64
	}{
		{"half of fifty percent component", 40, 50, 50, 150, 60},
		{"full marks full weightage", 100, 100, 100, 150, 150},
		{"zero total yields zero", 10, 0, 50, 150, 0},
		{"negative total yields zero", 10, -5, 50, 150, 0},
		{"rounds to two decimals", 1, 3, 10, 150, 5},
		{"uneven ratio", 33, 40, 30, 150, 37.13},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, ComputeWeightedMarks(tc.obtained, tc.total, tc.weightage, tc.maxScore), 0.001)
		})
	}
}

func newEngineFixture() (*DistributionService, *capturingStore) {
	students := &mockStudentReader{students: map[string]*models.Student{
		"EN001": {ID: 7, EnrollmentNumber: "EN001", Name: "Asha", BatchID: 3},
	}}
	weightages := &mockWeightageReader{weightages: map[string]*models.ComponentWeightage{
		"CS101": {ID: 11, SubjectCode: "CS101", ESE: 50, IA: 0},
	}}
	outcomes := &mockOutcomeReader{
		componentCOs: map[models.ComponentType][]int64{
			models.ComponentESE: {1, 2},
		},
		bloomsByCO: map[int64][]models.BloomsLevel{
			1: {{ID: 101, Name: "Remember"}},
			2: {{ID: 102, Name: "Apply"}, {ID: 103, Name: "Analyze"}},
		},
	}
	marks := &mockMarksReader{
		marks: []models.StudentMark{
			{ID: 500, StudentID: 7, SubjectCode: "CS101", SemesterNumber: 4, ComponentType: models.ComponentESE, MarksObtained: 40, TotalMarks: 50},
		},
		subjects: []string{"CS101"},
	}
	store := &capturingStore{}
	svc := NewDistributionService(students, weightages, outcomes, marks, store, nil, nil, 150, zap.NewNop())
	return svc, store
}

func TestProcessFansOutFullValuePerPair(t *testing.T) {
	svc, store := newEngineFixture()

	result, err := svc.Process(context.Background(), "EN001", 4, "")
	require.NoError(t, err)

	// One mark, two COs, three levels in total: each pair carries the whole
	// weighted value of 60.
	require.Equal(t, 3, result.RecordsCreated)
	require.Len(t, store.records, 3)
	for _, record := range store.records {
		assert.Equal(t, int64(500), record.StudentMarkID)
		assert.InDelta(t, 60.0, record.AssignedMarks, 0.001)
		assert.Equal(t, "CS101", record.SubjectCode)
		assert.InDelta(t, 50.0, record.WeightageUsed, 0.001)
	}
	assert.Equal(t, models.DistributionScope{StudentID: 7, SemesterNumber: 4}, store.scope)
}

func TestProcessSkipsZeroWeightageComponents(t *testing.T) {
	svc, store := newEngineFixture()
	marksReader := svc.marks.(*mockMarksReader)
	marksReader.marks = append(marksReader.marks, models.StudentMark{
		ID: 501, StudentID: 7, SubjectCode: "CS101", SemesterNumber: 4,
		ComponentType: models.ComponentIA, MarksObtained: 18, TotalMarks: 20,
	})

	result, err := svc.Process(context.Background(), "EN001", 4, "")
	require.NoError(t, err)

	require.Equal(t, 3, result.RecordsCreated)
	for _, record := range store.records {
		assert.NotEqual(t, int64(501), record.StudentMarkID)
	}
}

func TestProcessSubComponentUsesSelectedCOs(t *testing.T) {
	svc, store := newEngineFixture()
	weightages := svc.weightages.(*mockWeightageReader)
	subID := int64(77)
	weightages.weightages["CS101"].SubComponents = []models.SubComponent{
		{ID: subID, ComponentWeightageID: 11, ComponentType: models.ComponentCA, Name: "Quiz 1", Weightage: 20, TotalMarks: 20, SelectedCOs: types.JSONText(`[2]`)},
	}
	marksReader := svc.marks.(*mockMarksReader)
	marksReader.marks = []models.StudentMark{
		{ID: 502, StudentID: 7, SubjectCode: "CS101", SemesterNumber: 4, ComponentType: models.ComponentCA, SubComponentID: &subID, IsSubComponent: true, MarksObtained: 15, TotalMarks: 20},
	}

	result, err := svc.Process(context.Background(), "EN001", 4, "CS101")
	require.NoError(t, err)

	// CO 2 maps to two levels; 15/20 of 20% of 150 is 22.50 on each pair.
	require.Equal(t, 2, result.RecordsCreated)
	for _, record := range store.records {
		assert.Equal(t, int64(2), record.CourseOutcomeID)
		assert.InDelta(t, 22.5, record.AssignedMarks, 0.001)
	}
	assert.Equal(t, "CS101", store.scope.SubjectCode)
}

func TestProcessUnknownStudent(t *testing.T) {
	svc, store := newEngineFixture()

	_, err := svc.Process(context.Background(), "MISSING", 4, "")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	assert.Zero(t, store.calls)
}

func TestProcessEmptyMarksStillReplacesScope(t *testing.T) {
	svc, store := newEngineFixture()
	marksReader := svc.marks.(*mockMarksReader)
	marksReader.marks = nil

	result, err := svc.Process(context.Background(), "EN001", 4, "")
	require.NoError(t, err)

	// A replace with zero rows clears whatever was stored before.
	assert.Equal(t, 0, result.RecordsCreated)
	assert.Equal(t, 1, store.calls)
	assert.Empty(t, store.records)
}

func TestHandleRecomputeJobRejectsForeignPayload(t *testing.T) {
	svc, _ := newEngineFixture()

	err := svc.HandleRecomputeJob(context.Background(), jobWithPayload("bogus"))
	require.Error(t, err)
}

func TestHandleRecomputeJobProcessesScope(t *testing.T) {
	svc, store := newEngineFixture()

	err := svc.HandleRecomputeJob(context.Background(), jobWithPayload(RecomputePayload{
		EnrollmentNumber: "EN001",
		SemesterNumber:   4,
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, store.calls)
}

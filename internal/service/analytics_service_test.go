package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/obe-analytics-api/internal/models"
	appErrors "github.com/noah-isme/obe-analytics-api/pkg/errors"
)

type stubCacheRepo struct {
	store map[string][]byte
}

func (s *stubCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	payload, ok := s.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (s *stubCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if s.store == nil {
		s.store = make(map[string][]byte)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.store[key] = payload
	return nil
}

func (s *stubCacheRepo) DeleteByPattern(_ context.Context, _ string) error {
	s.store = nil
	return nil
}

type mockStudentDirectory struct {
	byEnrollment map[string]*models.Student
	byBatch      map[int64][]models.Student
}

func (m *mockStudentDirectory) FindByEnrollment(ctx context.Context, enrollmentNumber string) (*models.Student, error) {
	return (&mockStudentReader{students: m.byEnrollment}).FindByEnrollment(ctx, enrollmentNumber)
}

func (m *mockStudentDirectory) ListByBatch(_ context.Context, batchID int64) ([]models.Student, error) {
	return m.byBatch[batchID], nil
}

type mockOutcomeCatalog struct {
	outcomes map[string][]models.CourseOutcome
	levels   []models.BloomsLevel
}

func (m *mockOutcomeCatalog) ListBySubject(_ context.Context, subjectCode string) ([]models.CourseOutcome, error) {
	return m.outcomes[subjectCode], nil
}

func (m *mockOutcomeCatalog) ListBloomsLevels(_ context.Context) ([]models.BloomsLevel, error) {
	return m.levels, nil
}

type mockDistributionReader struct {
	rows map[int64][]models.StoredDistribution
}

func (m *mockDistributionReader) ListForStudent(_ context.Context, studentID int64, _ int, subjectCode string) ([]models.StoredDistribution, error) {
	var out []models.StoredDistribution
	for _, row := range m.rows[studentID] {
		if subjectCode != "" && row.SubjectCode != subjectCode {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func storedRow(studentID, markID, coID, levelID int64, coCode, levelName string, assigned, weightage float64) models.StoredDistribution {
	return models.StoredDistribution{
		DistributionRecord: models.DistributionRecord{
			StudentID:       studentID,
			SemesterNumber:  4,
			SubjectCode:     "CS101",
			StudentMarkID:   markID,
			ComponentTotal:  50,
			WeightageUsed:   weightage,
			CourseOutcomeID: coID,
			BloomsLevelID:   levelID,
			AssignedMarks:   assigned,
		},
		SubjectName:     "Data Structures",
		BloomsLevelName: levelName,
		OutcomeCode:     coCode,
	}
}

// fanOutRows models one 60-mark component mapped to CO1 (Remember) and CO2
// (Remember, Understand): three stored rows for a single mark.
func fanOutRows(studentID int64) []models.StoredDistribution {
	return []models.StoredDistribution{
		storedRow(studentID, 500, 1, 101, "CO1", "Remember", 60, 50),
		storedRow(studentID, 500, 2, 101, "CO2", "Remember", 60, 50),
		storedRow(studentID, 500, 2, 102, "CO2", "Understand", 60, 50),
	}
}

func newAnalyticsFixture(rows map[int64][]models.StoredDistribution) *AnalyticsService {
	students := &mockStudentDirectory{
		byEnrollment: map[string]*models.Student{
			"EN001": {ID: 7, EnrollmentNumber: "EN001", Name: "Asha", BatchID: 3},
			"EN002": {ID: 8, EnrollmentNumber: "EN002", Name: "Ravi", BatchID: 3},
		},
		byBatch: map[int64][]models.Student{
			3: {
				{ID: 7, EnrollmentNumber: "EN001", Name: "Asha", BatchID: 3},
				{ID: 8, EnrollmentNumber: "EN002", Name: "Ravi", BatchID: 3},
			},
		},
	}
	outcomes := &mockOutcomeCatalog{
		outcomes: map[string][]models.CourseOutcome{
			"CS101": {
				{ID: 1, SubjectCode: "CS101", Code: "CO1", Description: "Recall fundamentals"},
				{ID: 2, SubjectCode: "CS101", Code: "CO2", Description: "Apply fundamentals"},
			},
		},
		levels: []models.BloomsLevel{
			{ID: 101, Name: "Remember"},
			{ID: 102, Name: "Understand"},
		},
	}
	return NewAnalyticsService(students, outcomes, &mockDistributionReader{rows: rows}, nil, nil, 150, 60, zap.NewNop())
}

func TestDetailedCountsEachMarkOnce(t *testing.T) {
	svc := newAnalyticsFixture(map[int64][]models.StoredDistribution{7: fanOutRows(7)})

	report, cached, err := svc.Detailed(context.Background(), "EN001", 4, "", models.AchievementModeFull)
	require.NoError(t, err)
	assert.False(t, cached)

	subject := report.BySubject["CS101"]
	require.NotNil(t, subject)
	// Three stored rows, one underlying mark: the subject total is 60, not 180.
	assert.InDelta(t, 60.0, subject.TotalWeightedMarks, 0.001)
	assert.InDelta(t, 40.0, subject.Percentage, 0.001)
	assert.Len(t, subject.Components, 1)

	// Per-bucket de-duplication: each CO and each level sees the mark once.
	assert.InDelta(t, 60.0, subject.CourseOutcomes["CO1"].Marks, 0.001)
	assert.InDelta(t, 60.0, subject.CourseOutcomes["CO2"].Marks, 0.001)
	assert.InDelta(t, 60.0, subject.BloomsLevels["Remember"].Marks, 0.001)
	assert.InDelta(t, 60.0, subject.BloomsLevels["Understand"].Marks, 0.001)

	assert.InDelta(t, 60.0, report.Summary.TotalWeightedMarks, 0.001)
	assert.InDelta(t, 150.0, report.Summary.TotalPossibleMarks, 0.001)
	assert.InDelta(t, 40.0, report.Summary.OverallPercentage, 0.001)
}

func TestDetailedProportionalSplitsAcrossPairs(t *testing.T) {
	svc := newAnalyticsFixture(map[int64][]models.StoredDistribution{7: fanOutRows(7)})

	report, _, err := svc.Detailed(context.Background(), "EN001", 4, "", models.AchievementModeProportional)
	require.NoError(t, err)

	subject := report.BySubject["CS101"]
	require.NotNil(t, subject)
	// Two COs split 60 into 30 each; CO2's half splits again across its two
	// levels.
	assert.InDelta(t, 30.0, subject.CourseOutcomes["CO1"].Marks, 0.001)
	assert.InDelta(t, 30.0, subject.CourseOutcomes["CO2"].Marks, 0.001)
	assert.InDelta(t, 45.0, subject.BloomsLevels["Remember"].Marks, 0.001)
	assert.InDelta(t, 15.0, subject.BloomsLevels["Understand"].Marks, 0.001)
	// The subject rollup is unchanged by the projection mode.
	assert.InDelta(t, 60.0, subject.TotalWeightedMarks, 0.001)
}

func TestCompareAveragesAcrossBatch(t *testing.T) {
	svc := newAnalyticsFixture(map[int64][]models.StoredDistribution{7: fanOutRows(7)})

	comparison, _, err := svc.Compare(context.Background(), 3, 4, "")
	require.NoError(t, err)

	require.Len(t, comparison.Students, 2)
	assert.Equal(t, "All Subjects", comparison.Subject)

	first := comparison.Students[0]
	assert.InDelta(t, 60.0, first.BloomsAchievement["Remember"], 0.001)
	assert.InDelta(t, 60.0, first.TotalWeightedMarks, 0.001)

	// Averages divide by the batch size, students without rows included.
	remember := comparison.BloomsLevelAverages["Remember"]
	require.NotNil(t, remember)
	assert.Equal(t, 2, remember.StudentCount)
	assert.InDelta(t, 30.0, remember.Average, 0.001)

	// Levels nobody scored still appear, zero-valued.
	understand := comparison.BloomsLevelAverages["Understand"]
	require.NotNil(t, understand)
	assert.InDelta(t, 30.0, understand.Average, 0.001)
}

func TestCOAttainmentThresholdInclusive(t *testing.T) {
	rows := map[int64][]models.StoredDistribution{
		// 90 of 150 is exactly 60%: attained.
		7: {storedRow(7, 500, 1, 101, "CO1", "Remember", 90, 60)},
		// 89 of 150 falls short.
		8: {storedRow(8, 600, 1, 101, "CO1", "Remember", 89, 60)},
	}
	svc := newAnalyticsFixture(rows)

	report, _, err := svc.COAttainment(context.Background(), "CS101", 3, 4)
	require.NoError(t, err)

	assert.InDelta(t, 60.0, report.AttainmentThreshold, 0.001)
	assert.Equal(t, 2, report.StudentCount)

	co1 := report.CourseOutcomes["CO1"]
	require.NotNil(t, co1)
	assert.Equal(t, 1, co1.StudentsAttained)
	assert.InDelta(t, 50.0, co1.AttainmentPercentage, 0.001)
	assert.InDelta(t, 89.5, co1.AverageMarks, 0.001)
	require.Len(t, co1.Students, 2)

	// CO2 has no marks but still appears in the report.
	co2 := report.CourseOutcomes["CO2"]
	require.NotNil(t, co2)
	assert.Equal(t, 0, co2.StudentsAttained)
	assert.Empty(t, co2.Students)
}

func TestCOAttainmentDeduplicatesPerCO(t *testing.T) {
	// One mark fanned across two levels of the same CO must count once.
	rows := map[int64][]models.StoredDistribution{
		7: {
			storedRow(7, 500, 1, 101, "CO1", "Remember", 50, 60),
			storedRow(7, 500, 1, 102, "CO1", "Understand", 50, 60),
		},
	}
	svc := newAnalyticsFixture(rows)

	report, _, err := svc.COAttainment(context.Background(), "CS101", 3, 4)
	require.NoError(t, err)

	co1 := report.CourseOutcomes["CO1"]
	require.Len(t, co1.Students, 1)
	assert.InDelta(t, 50.0, co1.Students[0].Marks, 0.001)
}

func TestStoredGroupsBySubjectAndLevel(t *testing.T) {
	svc := newAnalyticsFixture(map[int64][]models.StoredDistribution{7: fanOutRows(7)})

	response, cached, err := svc.Stored(context.Background(), "EN001", 4)
	require.NoError(t, err)
	assert.False(t, cached)

	assert.Equal(t, 4, response.Semester)
	assert.Equal(t, 3, response.TotalRecords)
	require.Len(t, response.BloomsDistribution, 1)

	subject := response.BloomsDistribution[0]
	assert.Equal(t, "CS101", subject.Code)
	assert.Equal(t, "Data Structures", subject.Subject)
	require.Len(t, subject.BloomsLevels, 2)

	byName := make(map[string]models.BloomsLevelMarks)
	for _, level := range subject.BloomsLevels {
		byName[level.Level] = level
	}
	// 50% weightage of a 150 maximum allocates 75 possible marks per level.
	remember := byName["Remember"]
	assert.InDelta(t, 60.0, remember.Marks, 0.001)
	assert.InDelta(t, 75.0, remember.TotalMarks, 0.001)
	assert.InDelta(t, 80.0, remember.Percentage, 0.001)
}

func TestDetailedUsesCache(t *testing.T) {
	svc := newAnalyticsFixture(map[int64][]models.StoredDistribution{7: fanOutRows(7)})
	cacheRepo := &stubCacheRepo{}
	svc.cache = NewCacheService(cacheRepo, nil, 0, zap.NewNop(), true)

	_, cached, err := svc.Detailed(context.Background(), "EN001", 4, "", models.AchievementModeFull)
	require.NoError(t, err)
	assert.False(t, cached)

	report, cached, err := svc.Detailed(context.Background(), "EN001", 4, "", models.AchievementModeFull)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.InDelta(t, 60.0, report.Summary.TotalWeightedMarks, 0.001)
}

package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/obe-analytics-api/internal/models"
)

func newDistributionMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestDistributionReplaceScopeDeletesThenInserts(t *testing.T) {
	db, mock, cleanup := newDistributionMock(t)
	defer cleanup()
	repo := NewDistributionRepository(db)

	scope := models.DistributionScope{StudentID: 7, SemesterNumber: 4, SubjectCode: "CS101"}
	records := []models.DistributionRecord{
		{StudentID: 7, SemesterNumber: 4, SubjectCode: "CS101", StudentMarkID: 500, ComponentTotal: 50, WeightageUsed: 50, CourseOutcomeID: 1, BloomsLevelID: 101, AssignedMarks: 60},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM student_blooms_distribution WHERE student_id = \$1 AND semester_number = \$2 AND subject_code = \$3`).
		WithArgs(int64(7), 4, "CS101").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`INSERT INTO student_blooms_distribution`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.ReplaceScope(context.Background(), scope, records)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
	// The repository assigns ids and timestamps when the caller leaves them
	// blank.
	assert.NotEmpty(t, records[0].ID)
	assert.False(t, records[0].CalculatedAt.IsZero())
}

func TestDistributionReplaceScopeEmptyBatchStillClears(t *testing.T) {
	db, mock, cleanup := newDistributionMock(t)
	defer cleanup()
	repo := NewDistributionRepository(db)

	scope := models.DistributionScope{StudentID: 7, SemesterNumber: 4}

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM student_blooms_distribution WHERE student_id = \$1 AND semester_number = \$2`).
		WithArgs(int64(7), 4).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	err := repo.ReplaceScope(context.Background(), scope, nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDistributionReplaceScopeRollsBackOnInsertFailure(t *testing.T) {
	db, mock, cleanup := newDistributionMock(t)
	defer cleanup()
	repo := NewDistributionRepository(db)

	scope := models.DistributionScope{StudentID: 7, SemesterNumber: 4}
	records := []models.DistributionRecord{{StudentID: 7, SemesterNumber: 4, SubjectCode: "CS101", StudentMarkID: 500, CourseOutcomeID: 1, BloomsLevelID: 101}}

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM student_blooms_distribution`).
		WithArgs(int64(7), 4).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO student_blooms_distribution`).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := repo.ReplaceScope(context.Background(), scope, records)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDistributionListForStudentFiltersSubject(t *testing.T) {
	db, mock, cleanup := newDistributionMock(t)
	defer cleanup()
	repo := NewDistributionRepository(db)

	columns := []string{"id", "student_id", "semester_number", "subject_code", "student_mark_id", "component_total",
		"weightage_used", "selected_cos", "course_outcome_id", "blooms_level_id", "assigned_marks", "calculated_at",
		"subject_name", "blooms_level_name", "co_code", "co_description"}
	rows := sqlmock.NewRows(columns).
		AddRow("rec-1", int64(7), 4, "CS101", int64(500), 50.0, 50.0, []byte(`[1,2]`), int64(1), int64(101), 60.0, time.Now(),
			"Data Structures", "Remember", "CO1", "Recall fundamentals")

	mock.ExpectQuery(`SELECT d\.id, d\.student_id, .+ FROM student_blooms_distribution d`).
		WithArgs(int64(7), 4, "CS101").
		WillReturnRows(rows)

	result, err := repo.ListForStudent(context.Background(), 7, 4, "CS101")
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "Remember", result[0].BloomsLevelName)
	assert.Equal(t, "CO1", result[0].OutcomeCode)
	assert.InDelta(t, 60.0, result[0].AssignedMarks, 0.001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

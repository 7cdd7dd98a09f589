package repository

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/obe-analytics-api/internal/models"
)

// The arbiter must coalesce sub_component_id: with a plain column list,
// Postgres's NULLS-DISTINCT semantics would never match two main-component
// rows, and every marks correction would insert a duplicate that downstream
// reports count twice.
const upsertArbiter = `ON CONFLICT \(student_id, subject_code, semester_number, component_type, COALESCE\(sub_component_id, 0\)\)`

func newMarksMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestMarksUpsertUsesNullSafeArbiter(t *testing.T) {
	db, mock, cleanup := newMarksMock(t)
	defer cleanup()
	repo := NewMarksRepository(db)

	mock.ExpectQuery(upsertArbiter).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(500)))

	mark := models.StudentMark{
		StudentID:      7,
		SubjectCode:    "CS101",
		SemesterNumber: 4,
		BatchID:        3,
		ComponentType:  models.ComponentESE,
		MarksObtained:  40,
		TotalMarks:     50,
	}
	require.NoError(t, repo.Upsert(context.Background(), &mark))
	assert.Equal(t, int64(500), mark.ID)
	assert.False(t, mark.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarksUpsertResubmissionHitsSameRow(t *testing.T) {
	db, mock, cleanup := newMarksMock(t)
	defer cleanup()
	repo := NewMarksRepository(db)

	// Same main-component key twice; the conflict path returns the existing
	// row id both times instead of minting a second row.
	mock.ExpectQuery(upsertArbiter).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(500)))
	mock.ExpectQuery(upsertArbiter).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(500)))

	first := models.StudentMark{
		StudentID:      7,
		SubjectCode:    "CS101",
		SemesterNumber: 4,
		BatchID:        3,
		ComponentType:  models.ComponentESE,
		MarksObtained:  40,
		TotalMarks:     50,
	}
	require.NoError(t, repo.Upsert(context.Background(), &first))

	corrected := first
	corrected.ID = 0
	corrected.MarksObtained = 42
	require.NoError(t, repo.Upsert(context.Background(), &corrected))

	assert.Equal(t, first.ID, corrected.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarksListSubjectCodes(t *testing.T) {
	db, mock, cleanup := newMarksMock(t)
	defer cleanup()
	repo := NewMarksRepository(db)

	mock.ExpectQuery(`SELECT DISTINCT subject_code FROM student_marks`).
		WithArgs(int64(7), 4).
		WillReturnRows(sqlmock.NewRows([]string{"subject_code"}).AddRow("CS101").AddRow("CS102"))

	codes, err := repo.ListSubjectCodes(context.Background(), 7, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"CS101", "CS102"}, codes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

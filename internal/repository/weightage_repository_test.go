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

func newWeightageMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestWeightageFindBySubjectLoadsSubComponents(t *testing.T) {
	db, mock, cleanup := newWeightageMock(t)
	defer cleanup()
	repo := NewWeightageRepository(db)

	mock.ExpectQuery(`SELECT id, subject_code, batch_id, semester_id, ese, ca, ia, tw, viva`).
		WithArgs("CS101").
		WillReturnRows(sqlmock.NewRows([]string{"id", "subject_code", "batch_id", "semester_id", "ese", "ca", "ia", "tw", "viva"}).
			AddRow(int64(11), "CS101", nil, nil, 50.0, 20.0, 10.0, 10.0, 10.0))
	mock.ExpectQuery(`SELECT id, component_weightage_id, component_type, name, weightage, total_marks, selected_cos`).
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "component_weightage_id", "component_type", "name", "weightage", "total_marks", "selected_cos"}).
			AddRow(int64(77), int64(11), "CA", "Quiz 1", 10.0, 20.0, []byte(`[1,2]`)))

	weightage, err := repo.FindBySubject(context.Background(), "CS101")
	require.NoError(t, err)
	require.NotNil(t, weightage)
	assert.InDelta(t, 50.0, weightage.WeightageFor(models.ComponentESE), 0.001)
	require.Len(t, weightage.SubComponents, 1)

	ids, err := weightage.SubComponents[0].SelectedCOIDs()
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWeightageFindBySubjectMissingConfigIsNotAnError(t *testing.T) {
	db, mock, cleanup := newWeightageMock(t)
	defer cleanup()
	repo := NewWeightageRepository(db)

	mock.ExpectQuery(`SELECT id, subject_code, batch_id, semester_id, ese, ca, ia, tw, viva`).
		WithArgs("UNCONFIGURED").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	weightage, err := repo.FindBySubject(context.Background(), "UNCONFIGURED")
	require.NoError(t, err)
	assert.Nil(t, weightage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

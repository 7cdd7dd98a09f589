package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/obe-analytics-api/internal/models"
)

// StudentRepository reads student rows owned by the admissions workflow.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository creates a new student repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByEnrollment returns the student with the given enrollment number.
func (r *StudentRepository) FindByEnrollment(ctx context.Context, enrollmentNumber string) (*models.Student, error) {
	const query = `SELECT id, enrollment_number, name, batch_id, current_semester, created_at, updated_at
        FROM students WHERE enrollment_number = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, enrollmentNumber); err != nil {
		return nil, err
	}
	return &student, nil
}

// ListByBatch returns every student registered in the batch.
func (r *StudentRepository) ListByBatch(ctx context.Context, batchID int64) ([]models.Student, error) {
	const query = `SELECT id, enrollment_number, name, batch_id, current_semester, created_at, updated_at
        FROM students WHERE batch_id = $1 ORDER BY enrollment_number`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, batchID); err != nil {
		return nil, fmt.Errorf("list students by batch: %w", err)
	}
	return students, nil
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/obe-analytics-api/internal/models"
)

// DistributionRepository owns the student_blooms_distribution table.
type DistributionRepository struct {
	db *sqlx.DB
}

// NewDistributionRepository creates a new distribution repository.
func NewDistributionRepository(db *sqlx.DB) *DistributionRepository {
	return &DistributionRepository{db: db}
}

// ReplaceScope deletes every stored row matching the scope and inserts the
// freshly generated batch in the same transaction. Running it twice with the
// same records leaves identical stored state, and an empty batch still clears
// prior rows.
func (r *DistributionRepository) ReplaceScope(ctx context.Context, scope models.DistributionScope, records []models.DistributionRecord) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin distribution replace: %w", err)
	}

	deleteQuery := `DELETE FROM student_blooms_distribution WHERE student_id = $1 AND semester_number = $2`
	args := []interface{}{scope.StudentID, scope.SemesterNumber}
	if scope.SubjectCode != "" {
		deleteQuery += " AND subject_code = $3"
		args = append(args, scope.SubjectCode)
	}
	if _, err := tx.ExecContext(ctx, deleteQuery, args...); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("clear distribution scope: %w", err)
	}

	const insertQuery = `INSERT INTO student_blooms_distribution (id, student_id, semester_number, subject_code,
            student_mark_id, component_total, weightage_used, selected_cos, course_outcome_id, blooms_level_id,
            assigned_marks, calculated_at)
        VALUES (:id, :student_id, :semester_number, :subject_code,
            :student_mark_id, :component_total, :weightage_used, :selected_cos, :course_outcome_id, :blooms_level_id,
            :assigned_marks, :calculated_at)`
	for i := range records {
		if records[i].ID == "" {
			records[i].ID = uuid.NewString()
		}
		if records[i].CalculatedAt.IsZero() {
			records[i].CalculatedAt = time.Now().UTC()
		}
		if _, err := tx.NamedExecContext(ctx, insertQuery, records[i]); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("insert distribution record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit distribution replace: %w", err)
	}
	return nil
}

// ListForStudent returns stored rows for a student+semester, optionally
// narrowed to one subject, joined with subject and Bloom's level names.
func (r *DistributionRepository) ListForStudent(ctx context.Context, studentID int64, semesterNumber int, subjectCode string) ([]models.StoredDistribution, error) {
	query := `SELECT d.id, d.student_id, d.semester_number, d.subject_code, d.student_mark_id, d.component_total,
            d.weightage_used, d.selected_cos, d.course_outcome_id, d.blooms_level_id, d.assigned_marks, d.calculated_at,
            COALESCE(s.name, d.subject_code) AS subject_name,
            COALESCE(bt.name, 'Unknown') AS blooms_level_name,
            COALESCE(co.co_code, '') AS co_code,
            COALESCE(co.description, '') AS co_description
        FROM student_blooms_distribution d
        LEFT JOIN subjects s ON s.code = d.subject_code
        LEFT JOIN blooms_taxonomy bt ON bt.id = d.blooms_level_id
        LEFT JOIN course_outcomes co ON co.id = d.course_outcome_id
        WHERE d.student_id = $1 AND d.semester_number = $2`
	args := []interface{}{studentID, semesterNumber}
	if subjectCode != "" {
		query += " AND d.subject_code = $3"
		args = append(args, subjectCode)
	}
	query += " ORDER BY d.subject_code, d.course_outcome_id, d.blooms_level_id"
	var rows []models.StoredDistribution
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list stored distribution: %w", err)
	}
	return rows, nil
}

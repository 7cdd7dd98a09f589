package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/obe-analytics-api/internal/models"
)

// MarksRepository handles faculty-entered student mark rows.
type MarksRepository struct {
	db *sqlx.DB
}

// NewMarksRepository creates a new marks repository.
func NewMarksRepository(db *sqlx.DB) *MarksRepository {
	return &MarksRepository{db: db}
}

// ListForSubject returns every mark row for (student, subject, semester).
func (r *MarksRepository) ListForSubject(ctx context.Context, filter models.MarkFilter) ([]models.StudentMark, error) {
	const query = `SELECT id, student_id, subject_code, semester_number, batch_id, component_type,
            component_name, sub_component_id, is_sub_component, marks_obtained, total_marks, created_at, updated_at
        FROM student_marks
        WHERE student_id = $1 AND subject_code = $2 AND semester_number = $3
        ORDER BY id`
	var marks []models.StudentMark
	if err := r.db.SelectContext(ctx, &marks, query, filter.StudentID, filter.SubjectCode, filter.SemesterNumber); err != nil {
		return nil, fmt.Errorf("list student marks: %w", err)
	}
	return marks, nil
}

// ListSubjectCodes returns the distinct subjects a student has marks for in
// the semester.
func (r *MarksRepository) ListSubjectCodes(ctx context.Context, studentID int64, semesterNumber int) ([]string, error) {
	const query = `SELECT DISTINCT subject_code FROM student_marks
        WHERE student_id = $1 AND semester_number = $2 ORDER BY subject_code`
	var codes []string
	if err := r.db.SelectContext(ctx, &codes, query, studentID, semesterNumber); err != nil {
		return nil, fmt.Errorf("list marked subjects: %w", err)
	}
	return codes, nil
}

// Upsert inserts or updates a mark row keyed by the natural component key.
// The conflict arbiter coalesces sub_component_id because Postgres treats
// NULLs as distinct: a plain column arbiter would let every main-component
// re-submission insert a fresh row instead of updating. Backed by the
// expression index uq_student_marks_component on
// (student_id, subject_code, semester_number, component_type,
// COALESCE(sub_component_id, 0)).
func (r *MarksRepository) Upsert(ctx context.Context, mark *models.StudentMark) error {
	now := time.Now().UTC()
	if mark.CreatedAt.IsZero() {
		mark.CreatedAt = now
	}
	mark.UpdatedAt = now
	const query = `INSERT INTO student_marks (student_id, subject_code, semester_number, batch_id, component_type,
            component_name, sub_component_id, is_sub_component, marks_obtained, total_marks, created_at, updated_at)
        VALUES (:student_id, :subject_code, :semester_number, :batch_id, :component_type,
            :component_name, :sub_component_id, :is_sub_component, :marks_obtained, :total_marks, :created_at, :updated_at)
        ON CONFLICT (student_id, subject_code, semester_number, component_type, COALESCE(sub_component_id, 0))
        DO UPDATE SET marks_obtained = EXCLUDED.marks_obtained,
            total_marks = EXCLUDED.total_marks,
            component_name = EXCLUDED.component_name,
            updated_at = EXCLUDED.updated_at
        RETURNING id`
	rows, err := r.db.NamedQueryContext(ctx, query, mark)
	if err != nil {
		return fmt.Errorf("upsert student mark: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&mark.ID); err != nil {
			return fmt.Errorf("scan student mark id: %w", err)
		}
	}
	return rows.Err()
}

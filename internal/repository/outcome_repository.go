package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/obe-analytics-api/internal/models"
)

// OutcomeRepository resolves Course Outcomes and their Bloom's level
// associations. The joins the legacy ORM traversed implicitly are explicit
// queries here so the fan-out logic stays testable.
type OutcomeRepository struct {
	db *sqlx.DB
}

// NewOutcomeRepository creates a new outcome repository.
func NewOutcomeRepository(db *sqlx.DB) *OutcomeRepository {
	return &OutcomeRepository{db: db}
}

// ListBySubject returns all Course Outcomes declared for a subject.
func (r *OutcomeRepository) ListBySubject(ctx context.Context, subjectCode string) ([]models.CourseOutcome, error) {
	const query = `SELECT id, subject_code, co_code, description, created_at, updated_at
        FROM course_outcomes WHERE subject_code = $1 ORDER BY co_code`
	var outcomes []models.CourseOutcome
	if err := r.db.SelectContext(ctx, &outcomes, query, subjectCode); err != nil {
		return nil, fmt.Errorf("list course outcomes: %w", err)
	}
	return outcomes, nil
}

// ListComponentCOIDs returns the CO ids a main component maps to, via the
// (weightage configuration, component type) join table.
func (r *OutcomeRepository) ListComponentCOIDs(ctx context.Context, weightageID int64, component models.ComponentType) ([]int64, error) {
	const query = `SELECT course_outcome_id FROM subject_component_cos
        WHERE component_weightage_id = $1 AND component = $2 ORDER BY course_outcome_id`
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, query, weightageID, component); err != nil {
		return nil, fmt.Errorf("list component CO ids: %w", err)
	}
	return ids, nil
}

// ListBloomsByOutcome returns the Bloom's levels linked to one CO. An
// unlinked CO yields an empty slice, not an error.
func (r *OutcomeRepository) ListBloomsByOutcome(ctx context.Context, outcomeID int64) ([]models.BloomsLevel, error) {
	const query = `SELECT bt.id, bt.name, bt.description
        FROM co_blooms_taxonomy cbt
        JOIN blooms_taxonomy bt ON bt.id = cbt.blooms_taxonomy_id
        WHERE cbt.course_outcome_id = $1 ORDER BY bt.id`
	var levels []models.BloomsLevel
	if err := r.db.SelectContext(ctx, &levels, query, outcomeID); err != nil {
		return nil, fmt.Errorf("list blooms for outcome: %w", err)
	}
	return levels, nil
}

// ListBloomsLevels returns the global Bloom's taxonomy catalogue.
func (r *OutcomeRepository) ListBloomsLevels(ctx context.Context) ([]models.BloomsLevel, error) {
	const query = `SELECT id, name, description FROM blooms_taxonomy ORDER BY id`
	var levels []models.BloomsLevel
	if err := r.db.SelectContext(ctx, &levels, query); err != nil {
		return nil, fmt.Errorf("list blooms levels: %w", err)
	}
	return levels, nil
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/obe-analytics-api/internal/models"
)

// WeightageRepository reads per-subject component weightage configuration.
type WeightageRepository struct {
	db *sqlx.DB
}

// NewWeightageRepository creates a new weightage repository.
func NewWeightageRepository(db *sqlx.DB) *WeightageRepository {
	return &WeightageRepository{db: db}
}

// FindBySubject returns the weightage configuration for a subject with its
// sub-components loaded. A missing configuration returns (nil, nil): an
// unconfigured subject contributes zero weightage everywhere, it is not an
// error.
func (r *WeightageRepository) FindBySubject(ctx context.Context, subjectCode string) (*models.ComponentWeightage, error) {
	const query = `SELECT id, subject_code, batch_id, semester_id, ese, ca, ia, tw, viva
        FROM component_weightages WHERE subject_code = $1`
	var weightage models.ComponentWeightage
	if err := r.db.GetContext(ctx, &weightage, query, subjectCode); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find component weightage: %w", err)
	}

	const subQuery = `SELECT id, component_weightage_id, component_type, name, weightage, total_marks, selected_cos
        FROM sub_components WHERE component_weightage_id = $1 ORDER BY id`
	if err := r.db.SelectContext(ctx, &weightage.SubComponents, subQuery, weightage.ID); err != nil {
		return nil, fmt.Errorf("list sub components: %w", err)
	}
	return &weightage, nil
}

// FindSubComponent returns one sub-component row by id.
func (r *WeightageRepository) FindSubComponent(ctx context.Context, id int64) (*models.SubComponent, error) {
	const query = `SELECT id, component_weightage_id, component_type, name, weightage, total_marks, selected_cos
        FROM sub_components WHERE id = $1`
	var sub models.SubComponent
	if err := r.db.GetContext(ctx, &sub, query, id); err != nil {
		return nil, err
	}
	return &sub, nil
}

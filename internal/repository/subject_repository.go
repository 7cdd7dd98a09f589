package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/obe-analytics-api/internal/models"
)

// SubjectRepository reads the subject catalogue.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository creates a new subject repository.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// FindByCode returns the subject with the given code.
func (r *SubjectRepository) FindByCode(ctx context.Context, code string) (*models.Subject, error) {
	const query = `SELECT code, name, created_at, updated_at FROM subjects WHERE code = $1`
	var subject models.Subject
	if err := r.db.GetContext(ctx, &subject, query, code); err != nil {
		return nil, err
	}
	return &subject, nil
}

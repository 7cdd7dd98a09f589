package models

import "time"

// CourseOutcome is a subject-scoped learning objective.
type CourseOutcome struct {
	ID          int64     `db:"id" json:"id"`
	SubjectCode string    `db:"subject_code" json:"subject_code"`
	Code        string    `db:"co_code" json:"co_code"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// BloomsLevel is a global cognitive level (Remember, Understand, Apply, ...).
type BloomsLevel struct {
	ID          int64   `db:"id" json:"id"`
	Name        string  `db:"name" json:"name"`
	Description *string `db:"description" json:"description,omitempty"`
}

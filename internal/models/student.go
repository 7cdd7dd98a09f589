package models

import "time"

// Student represents a learner registered in the institution. Student rows
// are owned by the admissions workflow; this service only reads them.
type Student struct {
	ID               int64     `db:"id" json:"id"`
	EnrollmentNumber string    `db:"enrollment_number" json:"enrollment_number"`
	Name             string    `db:"name" json:"name"`
	BatchID          int64     `db:"batch_id" json:"batch_id"`
	CurrentSemester  int       `db:"current_semester" json:"current_semester"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

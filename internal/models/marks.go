package models

import "time"

// StudentMark is one faculty-entered mark row for a component or
// sub-component. TotalMarks is the actual maximum for the entry, which may
// differ from the configured component total when faculty override it.
type StudentMark struct {
	ID             int64         `db:"id" json:"id"`
	StudentID      int64         `db:"student_id" json:"student_id"`
	SubjectCode    string        `db:"subject_code" json:"subject_code"`
	SemesterNumber int           `db:"semester_number" json:"semester_number"`
	BatchID        int64         `db:"batch_id" json:"batch_id"`
	ComponentType  ComponentType `db:"component_type" json:"component_type"`
	ComponentName  *string       `db:"component_name" json:"component_name,omitempty"`
	SubComponentID *int64        `db:"sub_component_id" json:"sub_component_id,omitempty"`
	IsSubComponent bool          `db:"is_sub_component" json:"is_sub_component"`
	MarksObtained  float64       `db:"marks_obtained" json:"marks_obtained"`
	TotalMarks     float64       `db:"total_marks" json:"total_marks"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// MarkFilter scopes student mark queries.
type MarkFilter struct {
	StudentID      int64
	SubjectCode    string
	SemesterNumber int
}

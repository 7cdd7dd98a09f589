package models

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// DistributionRecord attributes a student's weighted component marks to one
// (Course Outcome, Bloom's level) pair. Rows are derived data: the generator
// rebuilds them wholesale from StudentMark rows, so a recompute for the same
// scope always replaces, never merges.
type DistributionRecord struct {
	ID              string         `db:"id" json:"id"`
	StudentID       int64          `db:"student_id" json:"student_id"`
	SemesterNumber  int            `db:"semester_number" json:"semester_number"`
	SubjectCode     string         `db:"subject_code" json:"subject_code"`
	StudentMarkID   int64          `db:"student_mark_id" json:"student_mark_id"`
	ComponentTotal  float64        `db:"component_total" json:"component_total"`
	WeightageUsed   float64        `db:"weightage_used" json:"weightage_used"`
	SelectedCOs     types.JSONText `db:"selected_cos" json:"selected_cos"`
	CourseOutcomeID int64          `db:"course_outcome_id" json:"course_outcome_id"`
	BloomsLevelID   int64          `db:"blooms_level_id" json:"blooms_level_id"`
	AssignedMarks   float64        `db:"assigned_marks" json:"assigned_marks"`
	CalculatedAt    time.Time      `db:"calculated_at" json:"calculated_at"`
}

// DistributionScope identifies the replace unit of the distribution store.
// SubjectCode is optional: empty means all subjects for the student+semester.
type DistributionScope struct {
	StudentID      int64
	SemesterNumber int
	SubjectCode    string
}

// Key renders a stable lock/cache key for the scope.
func (s DistributionScope) Key() string {
	return fmt.Sprintf("%d:%d:%s", s.StudentID, s.SemesterNumber, s.SubjectCode)
}

// StoredDistribution is a DistributionRecord joined with subject and Bloom's
// level names for read endpoints.
type StoredDistribution struct {
	DistributionRecord
	SubjectName        string `db:"subject_name" json:"subject_name"`
	BloomsLevelName    string `db:"blooms_level_name" json:"blooms_level_name"`
	OutcomeCode        string `db:"co_code" json:"co_code"`
	OutcomeDescription string `db:"co_description" json:"co_description"`
}

// DistributionResult summarises a recompute run.
type DistributionResult struct {
	Message        string               `json:"message"`
	RecordsCreated int                  `json:"recordsCreated"`
	Distributions  []DistributionRecord `json:"distributions"`
}

// BloomsLevelMarks is one Bloom's level slice of a subject summary.
type BloomsLevelMarks struct {
	Level      string  `json:"level"`
	Marks      float64 `json:"marks"`
	TotalMarks float64 `json:"totalMarks"`
	Percentage float64 `json:"percentage"`
}

// SubjectBloomsSummary groups stored distribution rows for one subject.
type SubjectBloomsSummary struct {
	Subject      string             `json:"subject"`
	Code         string             `json:"code"`
	BloomsLevels []BloomsLevelMarks `json:"bloomsLevels"`
}

// StoredDistributionResponse is the payload for the stored-distribution read.
type StoredDistributionResponse struct {
	Semester           int                    `json:"semester"`
	BloomsDistribution []SubjectBloomsSummary `json:"bloomsDistribution"`
	TotalRecords       int                    `json:"totalRecords"`
}

package models

// AchievementMode selects how stored distribution rows are projected.
type AchievementMode string

const (
	// AchievementModeFull reports the stored full-assignment values: every
	// (CO, Bloom's) pair a component maps to receives the component's whole
	// weighted value.
	AchievementModeFull AchievementMode = "full"
	// AchievementModeProportional divides a component's weighted value
	// evenly among its mapped COs and again among each CO's Bloom's levels.
	AchievementModeProportional AchievementMode = "proportional"
)

// StudentInfo is the student header echoed in analytics payloads.
type StudentInfo struct {
	ID               int64  `json:"id"`
	EnrollmentNumber string `json:"enrollmentNumber"`
	Name             string `json:"name"`
}

// ComponentAchievement describes one mark row's contribution.
type ComponentAchievement struct {
	StudentMarkID  int64    `json:"studentMarkId"`
	Weightage      float64  `json:"weightage"`
	TotalMarks     float64  `json:"totalMarks"`
	AssignedMarks  float64  `json:"assignedMarks"`
	CourseOutcomes []string `json:"courseOutcomes"`
}

// OutcomeAchievement accumulates marks attributed to one CO within a subject.
type OutcomeAchievement struct {
	Description string  `json:"description"`
	Marks       float64 `json:"marks"`
}

// LevelAchievement accumulates marks attributed to one Bloom's level within a
// subject.
type LevelAchievement struct {
	Marks float64 `json:"marks"`
}

// SubjectAchievement is the per-subject slice of a detailed report.
type SubjectAchievement struct {
	Name               string                           `json:"name"`
	TotalWeightedMarks float64                          `json:"totalWeightedMarks"`
	TotalPossibleMarks float64                          `json:"totalPossibleMarks"`
	Percentage         float64                          `json:"percentage"`
	Components         map[string]*ComponentAchievement `json:"components"`
	CourseOutcomes     map[string]*OutcomeAchievement   `json:"courseOutcomes"`
	BloomsLevels       map[string]*LevelAchievement     `json:"bloomsLevels"`
}

// AchievementSummary aggregates across all subjects of the report.
type AchievementSummary struct {
	TotalWeightedMarks float64 `json:"totalWeightedMarks"`
	TotalPossibleMarks float64 `json:"totalPossibleMarks"`
	OverallPercentage  float64 `json:"overallPercentage"`
}

// DetailedAchievement is the per-student analytics payload.
type DetailedAchievement struct {
	Student   StudentInfo                    `json:"student"`
	Semester  int                            `json:"semester"`
	Mode      AchievementMode                `json:"mode"`
	BySubject map[string]*SubjectAchievement `json:"bySubject"`
	Summary   AchievementSummary             `json:"summary"`
}

// StudentComparison is one student's Bloom's totals inside a cohort report.
type StudentComparison struct {
	ID                 int64              `json:"id"`
	EnrollmentNumber   string             `json:"enrollmentNumber"`
	Name               string             `json:"name"`
	BloomsAchievement  map[string]float64 `json:"bloomsAchievement"`
	TotalWeightedMarks float64            `json:"totalWeightedMarks"`
}

// LevelAverage carries cohort-wide aggregates for one Bloom's level.
type LevelAverage struct {
	TotalMarks   float64 `json:"totalMarks"`
	StudentCount int     `json:"studentCount"`
	Average      float64 `json:"average"`
}

// BloomsComparison is the cross-cohort analytics payload.
type BloomsComparison struct {
	Batch               int64                    `json:"batch"`
	Semester            int                      `json:"semester"`
	Subject             string                   `json:"subject"`
	Students            []StudentComparison      `json:"students"`
	BloomsLevelAverages map[string]*LevelAverage `json:"bloomsLevelAverages"`
}

// COStudentResult captures one student's attainment of one CO.
type COStudentResult struct {
	EnrollmentNumber string  `json:"enrollmentNumber"`
	Name             string  `json:"name"`
	Marks            float64 `json:"marks"`
	Percentage       float64 `json:"percentage"`
}

// COAttainment summarises cohort attainment of one CO.
type COAttainment struct {
	ID                   int64             `json:"id"`
	Description          string            `json:"description"`
	TotalStudents        int               `json:"totalStudents"`
	StudentsAttained     int               `json:"studentsAttained"`
	AverageMarks         float64           `json:"averageMarks"`
	AttainmentPercentage float64           `json:"attainmentPercentage"`
	Students             []COStudentResult `json:"students"`
}

// COAttainmentReport is the per-subject attainment payload.
type COAttainmentReport struct {
	Subject             string                   `json:"subject"`
	Batch               int64                    `json:"batch"`
	Semester            int                      `json:"semester"`
	AttainmentThreshold float64                  `json:"attainmentThreshold"`
	StudentCount        int                      `json:"studentCount"`
	CourseOutcomes      map[string]*COAttainment `json:"courseOutcomes"`
}

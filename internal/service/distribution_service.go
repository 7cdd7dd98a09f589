package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/obe-analytics-api/internal/models"
	appErrors "github.com/noah-isme/obe-analytics-api/pkg/errors"
	"github.com/noah-isme/obe-analytics-api/pkg/jobs"
)

// DefaultMaxSubjectScore is the fixed maximum a subject's weighted components
// add up to, used when no override is configured.
const DefaultMaxSubjectScore = 150.0

type studentReader interface {
	FindByEnrollment(ctx context.Context, enrollmentNumber string) (*models.Student, error)
}

type weightageReader interface {
	FindBySubject(ctx context.Context, subjectCode string) (*models.ComponentWeightage, error)
	FindSubComponent(ctx context.Context, id int64) (*models.SubComponent, error)
}

type outcomeReader interface {
	ListComponentCOIDs(ctx context.Context, weightageID int64, component models.ComponentType) ([]int64, error)
	ListBloomsByOutcome(ctx context.Context, outcomeID int64) ([]models.BloomsLevel, error)
}

type marksReader interface {
	ListForSubject(ctx context.Context, filter models.MarkFilter) ([]models.StudentMark, error)
	ListSubjectCodes(ctx context.Context, studentID int64, semesterNumber int) ([]string, error)
}

type distributionStore interface {
	ReplaceScope(ctx context.Context, scope models.DistributionScope, records []models.DistributionRecord) error
}

// JobTypeDistributionRecompute labels recompute jobs on the background queue.
const JobTypeDistributionRecompute = "distribution_recompute"

// RecomputePayload is the job body enqueued by the marks-entry workflow.
type RecomputePayload struct {
	EnrollmentNumber string `json:"enrollment_number"`
	SemesterNumber   int    `json:"semester_number"`
	SubjectCode      string `json:"subject_code,omitempty"`
}

// ComputeWeightedMarks converts an obtained/total mark pair into its weighted
// share of the subject's maximum score, rounded to two decimals. A zero or
// absent total yields 0: a component without configured marks must not poison
// the rest of the calculation.
func ComputeWeightedMarks(obtained, total, weightagePercent, maxSubjectScore float64) float64 {
	if total <= 0 {
		return 0
	}
	allocated := (weightagePercent / 100) * maxSubjectScore
	return round2((obtained / total) * allocated)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// DistributionService turns raw component marks into per-(CO, Bloom's level)
// distribution rows and stores them idempotently.
type DistributionService struct {
	students        studentReader
	weightages      weightageReader
	outcomes        outcomeReader
	marks           marksReader
	store           distributionStore
	cache           *CacheService
	metrics         *MetricsService
	logger          *zap.Logger
	maxSubjectScore float64

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewDistributionService constructs the distribution engine.
func NewDistributionService(students studentReader, weightages weightageReader, outcomes outcomeReader, marks marksReader, store distributionStore, cache *CacheService, metrics *MetricsService, maxSubjectScore float64, logger *zap.Logger) *DistributionService {
	if maxSubjectScore <= 0 {
		maxSubjectScore = DefaultMaxSubjectScore
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DistributionService{
		students:        students,
		weightages:      weightages,
		outcomes:        outcomes,
		marks:           marks,
		store:           store,
		cache:           cache,
		metrics:         metrics,
		logger:          logger,
		maxSubjectScore: maxSubjectScore,
		locks:           make(map[string]*sync.Mutex),
	}
}

// MaxSubjectScore exposes the configured subject maximum.
func (s *DistributionService) MaxSubjectScore() float64 {
	return s.maxSubjectScore
}

// Generate produces the distribution rows for one (student, subject,
// semester) scope without persisting them. Configuration gaps (no weightage
// row, no CO mapping, no Bloom's link) yield fewer rows, never errors; backing
// store failures propagate.
func (s *DistributionService) Generate(ctx context.Context, student *models.Student, subjectCode string, semesterNumber int) ([]models.DistributionRecord, error) {
	weightage, err := s.weightages.FindBySubject(ctx, subjectCode)
	if err != nil {
		return nil, err
	}
	if weightage == nil {
		s.logger.Warn("no component weightage configured",
			zap.String("subject", subjectCode))
		return nil, nil
	}

	marks, err := s.marks.ListForSubject(ctx, models.MarkFilter{
		StudentID:      student.ID,
		SubjectCode:    subjectCode,
		SemesterNumber: semesterNumber,
	})
	if err != nil {
		return nil, err
	}
	if len(marks) == 0 {
		return nil, nil
	}

	subComponents := make(map[int64]models.SubComponent, len(weightage.SubComponents))
	for _, sub := range weightage.SubComponents {
		subComponents[sub.ID] = sub
	}

	var records []models.DistributionRecord
	for _, mark := range marks {
		weightagePercent, coIDs, err := s.resolveWeightageAndCOs(ctx, weightage, subComponents, mark)
		if err != nil {
			return nil, err
		}
		if weightagePercent == 0 {
			continue
		}

		weighted := ComputeWeightedMarks(mark.MarksObtained, mark.TotalMarks, weightagePercent, s.maxSubjectScore)

		selected, err := json.Marshal(coIDs)
		if err != nil {
			return nil, fmt.Errorf("encode selected COs: %w", err)
		}

		for _, coID := range coIDs {
			levels, err := s.outcomes.ListBloomsByOutcome(ctx, coID)
			if err != nil {
				return nil, err
			}
			for _, level := range levels {
				// The full weighted value goes to every pair; rollups
				// de-duplicate by mark row id instead of splitting here.
				records = append(records, models.DistributionRecord{
					StudentID:       student.ID,
					SemesterNumber:  semesterNumber,
					SubjectCode:     subjectCode,
					StudentMarkID:   mark.ID,
					ComponentTotal:  mark.TotalMarks,
					WeightageUsed:   weightagePercent,
					SelectedCOs:     selected,
					CourseOutcomeID: coID,
					BloomsLevelID:   level.ID,
					AssignedMarks:   weighted,
					CalculatedAt:    time.Now().UTC(),
				})
			}
		}
	}
	return records, nil
}

func (s *DistributionService) resolveWeightageAndCOs(ctx context.Context, weightage *models.ComponentWeightage, subComponents map[int64]models.SubComponent, mark models.StudentMark) (float64, []int64, error) {
	if mark.IsSubComponent && mark.SubComponentID != nil {
		sub, ok := subComponents[*mark.SubComponentID]
		if !ok {
			fetched, err := s.weightages.FindSubComponent(ctx, *mark.SubComponentID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					s.logger.Warn("mark references missing sub-component",
						zap.Int64("student_mark_id", mark.ID),
						zap.Int64("sub_component_id", *mark.SubComponentID))
					return 0, nil, nil
				}
				return 0, nil, err
			}
			sub = *fetched
		}
		coIDs, err := sub.SelectedCOIDs()
		if err != nil {
			return 0, nil, fmt.Errorf("decode sub-component COs: %w", err)
		}
		return sub.Weightage, coIDs, nil
	}

	percent := weightage.WeightageFor(mark.ComponentType)
	if percent == 0 {
		return 0, nil, nil
	}
	coIDs, err := s.outcomes.ListComponentCOIDs(ctx, weightage.ID, mark.ComponentType)
	if err != nil {
		return 0, nil, err
	}
	return percent, coIDs, nil
}

// Process recomputes and stores the distribution for a student semester. An
// empty subjectCode covers every subject the student has marks for; a
// non-empty one narrows both generation and the replaced scope to that
// subject. The delete-then-insert is serialized per student+semester so
// concurrent recomputes cannot interleave.
func (s *DistributionService) Process(ctx context.Context, enrollmentNumber string, semesterNumber int, subjectCode string) (*models.DistributionResult, error) {
	start := time.Now()
	student, err := s.students.FindByEnrollment(ctx, enrollmentNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	var subjectCodes []string
	if subjectCode != "" {
		subjectCodes = []string{subjectCode}
	} else {
		subjectCodes, err = s.marks.ListSubjectCodes(ctx, student.ID, semesterNumber)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list marked subjects")
		}
	}

	records := make([]models.DistributionRecord, 0)
	for _, code := range subjectCodes {
		generated, err := s.Generate(ctx, student, code, semesterNumber)
		if err != nil {
			s.logger.Error("distribution generation failed",
				zap.String("enrollment", enrollmentNumber),
				zap.String("subject", code),
				zap.Int("semester", semesterNumber),
				zap.Error(err))
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status,
				fmt.Sprintf("failed to generate distribution for subject %s", code))
		}
		records = append(records, generated...)
	}

	scope := models.DistributionScope{StudentID: student.ID, SemesterNumber: semesterNumber, SubjectCode: subjectCode}
	unlock := s.lockScope(student.ID, semesterNumber)
	err = s.store.ReplaceScope(ctx, scope, records)
	unlock()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store distribution")
	}

	if s.metrics != nil {
		s.metrics.ObserveDBQuery("distribution_replace", time.Since(start))
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, "analytics:*"); err != nil {
			s.logger.Warn("analytics cache invalidation failed", zap.Error(err))
		}
	}

	s.logger.Info("distribution recomputed",
		zap.String("enrollment", enrollmentNumber),
		zap.Int("semester", semesterNumber),
		zap.String("subject", subjectCode),
		zap.Int("records", len(records)))

	return &models.DistributionResult{
		Message:        "Bloom's taxonomy distribution calculated and stored successfully",
		RecordsCreated: len(records),
		Distributions:  records,
	}, nil
}

// HandleRecomputeJob adapts Process to the job queue handler signature used
// by the marks-entry side effect.
func (s *DistributionService) HandleRecomputeJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(RecomputePayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T for job %s", job.Payload, job.ID)
	}
	_, err := s.Process(ctx, payload.EnrollmentNumber, payload.SemesterNumber, payload.SubjectCode)
	return err
}

// lockScope serializes store replacement per student+semester. Subject-scoped
// and full-semester recomputes for the same student share the lock because
// their delete ranges overlap.
func (s *DistributionService) lockScope(studentID int64, semesterNumber int) func() {
	key := fmt.Sprintf("%d:%d", studentID, semesterNumber)
	s.mu.Lock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	s.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}

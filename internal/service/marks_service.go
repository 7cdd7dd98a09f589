package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/obe-analytics-api/internal/models"
	appErrors "github.com/noah-isme/obe-analytics-api/pkg/errors"
	"github.com/noah-isme/obe-analytics-api/pkg/jobs"
)

type subjectReader interface {
	FindByCode(ctx context.Context, code string) (*models.Subject, error)
}

type marksWriter interface {
	Upsert(ctx context.Context, mark *models.StudentMark) error
}

// MarkEntry is one component score submitted through the marks-entry
// endpoint.
type MarkEntry struct {
	ComponentType  models.ComponentType `validate:"required"`
	ComponentName  *string
	SubComponentID *int64
	IsSubComponent bool
	MarksObtained  float64 `validate:"min=0"`
	TotalMarks     float64 `validate:"min=0"`
}

// MarksService persists faculty-entered component marks and triggers a
// background distribution recompute for the affected scope.
type MarksService struct {
	students  studentReader
	subjects  subjectReader
	marks     marksWriter
	queue     *jobs.Queue
	validator *validator.Validate
	logger    *zap.Logger
}

// NewMarksService constructs the marks-entry service. queue may be nil, in
// which case writes succeed without scheduling a recompute.
func NewMarksService(students studentReader, subjects subjectReader, marks marksWriter, queue *jobs.Queue, validate *validator.Validate, logger *zap.Logger) *MarksService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MarksService{
		students:  students,
		subjects:  subjects,
		marks:     marks,
		queue:     queue,
		validator: validate,
		logger:    logger,
	}
}

// Update upserts the submitted entries for one (student, subject, semester)
// and enqueues a recompute of that scope. The recompute is fire-and-forget: a
// full queue or a later worker failure never fails the marks write.
func (s *MarksService) Update(ctx context.Context, enrollmentNumber, subjectCode string, semesterNumber int, entries []MarkEntry) ([]models.StudentMark, error) {
	student, err := s.students.FindByEnrollment(ctx, enrollmentNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	subject, err := s.subjects.FindByCode(ctx, subjectCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}

	saved := make([]models.StudentMark, 0, len(entries))
	for i, entry := range entries {
		if err := s.validator.Struct(entry); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status,
				fmt.Sprintf("entry %d: invalid marks payload", i))
		}
		if err := validateEntry(entry); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("entry %d: %s", i, err.Error()))
		}
		mark := models.StudentMark{
			StudentID:      student.ID,
			SubjectCode:    subject.Code,
			SemesterNumber: semesterNumber,
			BatchID:        student.BatchID,
			ComponentType:  entry.ComponentType,
			ComponentName:  entry.ComponentName,
			SubComponentID: entry.SubComponentID,
			IsSubComponent: entry.IsSubComponent,
			MarksObtained:  entry.MarksObtained,
			TotalMarks:     entry.TotalMarks,
		}
		if err := s.marks.Upsert(ctx, &mark); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save marks")
		}
		saved = append(saved, mark)
	}

	s.scheduleRecompute(enrollmentNumber, semesterNumber, subjectCode)
	return saved, nil
}

func (s *MarksService) scheduleRecompute(enrollmentNumber string, semesterNumber int, subjectCode string) {
	if s.queue == nil {
		return
	}
	err := s.queue.Enqueue(jobs.Job{
		ID:   fmt.Sprintf("recompute:%s:%d:%s", enrollmentNumber, semesterNumber, subjectCode),
		Type: JobTypeDistributionRecompute,
		Payload: RecomputePayload{
			EnrollmentNumber: enrollmentNumber,
			SemesterNumber:   semesterNumber,
			SubjectCode:      subjectCode,
		},
	})
	if err != nil {
		s.logger.Warn("failed to enqueue distribution recompute",
			zap.String("enrollment", enrollmentNumber),
			zap.Int("semester", semesterNumber),
			zap.String("subject", subjectCode),
			zap.Error(err))
	}
}

func validateEntry(entry MarkEntry) error {
	if !entry.ComponentType.Valid() {
		return fmt.Errorf("unknown component type %q", entry.ComponentType)
	}
	if entry.IsSubComponent && entry.SubComponentID == nil {
		return errors.New("sub-component entries require sub_component_id")
	}
	if entry.MarksObtained < 0 {
		return errors.New("marks_obtained cannot be negative")
	}
	if entry.TotalMarks < 0 {
		return errors.New("total_marks cannot be negative")
	}
	if entry.TotalMarks > 0 && entry.MarksObtained > entry.TotalMarks {
		return errors.New("marks_obtained cannot exceed total_marks")
	}
	return nil
}

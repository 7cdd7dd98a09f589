package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/obe-analytics-api/internal/models"
	appErrors "github.com/noah-isme/obe-analytics-api/pkg/errors"
)

type studentDirectory interface {
	FindByEnrollment(ctx context.Context, enrollmentNumber string) (*models.Student, error)
	ListByBatch(ctx context.Context, batchID int64) ([]models.Student, error)
}

type outcomeCatalog interface {
	ListBySubject(ctx context.Context, subjectCode string) ([]models.CourseOutcome, error)
	ListBloomsLevels(ctx context.Context) ([]models.BloomsLevel, error)
}

type distributionReader interface {
	ListForStudent(ctx context.Context, studentID int64, semesterNumber int, subjectCode string) ([]models.StoredDistribution, error)
}

// AnalyticsService answers read-only reporting queries over stored
// distribution rows with cache integration. It never triggers recomputation.
type AnalyticsService struct {
	students      studentDirectory
	outcomes      outcomeCatalog
	distributions distributionReader
	cache         *CacheService
	metrics       *MetricsService
	logger        *zap.Logger

	maxSubjectScore     float64
	attainmentThreshold float64
}

// NewAnalyticsService constructs an analytics service.
func NewAnalyticsService(students studentDirectory, outcomes outcomeCatalog, distributions distributionReader, cache *CacheService, metrics *MetricsService, maxSubjectScore, attainmentThreshold float64, logger *zap.Logger) *AnalyticsService {
	if maxSubjectScore <= 0 {
		maxSubjectScore = DefaultMaxSubjectScore
	}
	if attainmentThreshold <= 0 {
		attainmentThreshold = 60
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyticsService{
		students:            students,
		outcomes:            outcomes,
		distributions:       distributions,
		cache:               cache,
		metrics:             metrics,
		logger:              logger,
		maxSubjectScore:     maxSubjectScore,
		attainmentThreshold: attainmentThreshold,
	}
}

// AttainmentThreshold exposes the configured CO attainment cutoff.
func (s *AnalyticsService) AttainmentThreshold() float64 {
	return s.attainmentThreshold
}

// Stored returns the stored distribution grouped by subject and Bloom's
// level. The boolean indicates whether data originated from cache.
func (s *AnalyticsService) Stored(ctx context.Context, enrollmentNumber string, semesterNumber int) (*models.StoredDistributionResponse, bool, error) {
	cacheKey := makeAnalyticsCacheKey("stored", enrollmentNumber, strconv.Itoa(semesterNumber))
	var cached models.StoredDistributionResponse
	if s.cache != nil {
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err != nil {
			return nil, false, fmt.Errorf("get stored-distribution cache: %w", err)
		} else if hit {
			return &cached, true, nil
		}
	}

	rows, err := s.loadRows(ctx, enrollmentNumber, semesterNumber, "")
	if err != nil {
		return nil, false, err
	}

	type levelBucket struct {
		marks    float64
		possible float64
		seen     map[int64]bool
	}
	type subjectBucket struct {
		name   string
		order  []string
		levels map[string]*levelBucket
	}
	subjects := make(map[string]*subjectBucket)
	var subjectOrder []string

	for _, row := range rows {
		bucket, ok := subjects[row.SubjectCode]
		if !ok {
			bucket = &subjectBucket{name: row.SubjectName, levels: make(map[string]*levelBucket)}
			subjects[row.SubjectCode] = bucket
			subjectOrder = append(subjectOrder, row.SubjectCode)
		}
		level, ok := bucket.levels[row.BloomsLevelName]
		if !ok {
			level = &levelBucket{seen: make(map[int64]bool)}
			bucket.levels[row.BloomsLevelName] = level
			bucket.order = append(bucket.order, row.BloomsLevelName)
		}
		// A mark fanned out across several COs lands on the same level more
		// than once; count its weighted value a single time per level.
		if !level.seen[row.StudentMarkID] {
			level.seen[row.StudentMarkID] = true
			level.marks += row.AssignedMarks
			level.possible += (row.WeightageUsed / 100) * s.maxSubjectScore
		}
	}

	response := models.StoredDistributionResponse{
		Semester:           semesterNumber,
		BloomsDistribution: make([]models.SubjectBloomsSummary, 0, len(subjectOrder)),
		TotalRecords:       len(rows),
	}
	for _, code := range subjectOrder {
		bucket := subjects[code]
		summary := models.SubjectBloomsSummary{
			Subject:      bucket.name,
			Code:         code,
			BloomsLevels: make([]models.BloomsLevelMarks, 0, len(bucket.order)),
		}
		for _, name := range bucket.order {
			level := bucket.levels[name]
			var pct float64
			if level.possible > 0 {
				pct = round2(level.marks / level.possible * 100)
			}
			summary.BloomsLevels = append(summary.BloomsLevels, models.BloomsLevelMarks{
				Level:      name,
				Marks:      round2(level.marks),
				TotalMarks: round2(level.possible),
				Percentage: pct,
			})
		}
		response.BloomsDistribution = append(response.BloomsDistribution, summary)
	}

	s.cacheSet(ctx, cacheKey, response)
	return &response, false, nil
}

// Detailed builds the per-student achievement report. In full mode every
// (CO, Bloom's) bucket receives the component's whole weighted value with
// per-bucket de-duplication; proportional mode splits each component's value
// evenly across its COs and their levels instead.
func (s *AnalyticsService) Detailed(ctx context.Context, enrollmentNumber string, semesterNumber int, subjectCode string, mode models.AchievementMode) (*models.DetailedAchievement, bool, error) {
	if mode == "" {
		mode = models.AchievementModeFull
	}
	cacheKey := makeAnalyticsCacheKey("detailed", enrollmentNumber, strconv.Itoa(semesterNumber), subjectCode, string(mode))
	var cached models.DetailedAchievement
	if s.cache != nil {
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err != nil {
			return nil, false, fmt.Errorf("get detailed-achievement cache: %w", err)
		} else if hit {
			return &cached, true, nil
		}
	}

	student, err := s.students.FindByEnrollment(ctx, enrollmentNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	start := time.Now()
	rows, err := s.distributions.ListForStudent(ctx, student.ID, semesterNumber, subjectCode)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stored distribution")
	}
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("analytics_detailed", time.Since(start))
	}

	shares := proportionalShares(rows)

	report := models.DetailedAchievement{
		Student: models.StudentInfo{
			ID:               student.ID,
			EnrollmentNumber: student.EnrollmentNumber,
			Name:             student.Name,
		},
		Semester:  semesterNumber,
		Mode:      mode,
		BySubject: make(map[string]*models.SubjectAchievement),
	}

	subjectSeen := make(map[string]map[int64]bool)
	coSeen := make(map[string]bool)
	levelSeen := make(map[string]bool)

	for i, row := range rows {
		subject, ok := report.BySubject[row.SubjectCode]
		if !ok {
			subject = &models.SubjectAchievement{
				Name:               row.SubjectName,
				TotalPossibleMarks: s.maxSubjectScore,
				Components:         make(map[string]*models.ComponentAchievement),
				CourseOutcomes:     make(map[string]*models.OutcomeAchievement),
				BloomsLevels:       make(map[string]*models.LevelAchievement),
			}
			report.BySubject[row.SubjectCode] = subject
			subjectSeen[row.SubjectCode] = make(map[int64]bool)
		}

		componentKey := strconv.FormatInt(row.StudentMarkID, 10)
		component, ok := subject.Components[componentKey]
		if !ok {
			component = &models.ComponentAchievement{
				StudentMarkID: row.StudentMarkID,
				Weightage:     row.WeightageUsed,
				TotalMarks:    row.ComponentTotal,
				AssignedMarks: row.AssignedMarks,
			}
			subject.Components[componentKey] = component
		}
		if !containsString(component.CourseOutcomes, row.OutcomeCode) {
			component.CourseOutcomes = append(component.CourseOutcomes, row.OutcomeCode)
		}

		if !subjectSeen[row.SubjectCode][row.StudentMarkID] {
			subjectSeen[row.SubjectCode][row.StudentMarkID] = true
			subject.TotalWeightedMarks = round2(subject.TotalWeightedMarks + row.AssignedMarks)
			report.Summary.TotalWeightedMarks = round2(report.Summary.TotalWeightedMarks + row.AssignedMarks)
		}

		outcome, ok := subject.CourseOutcomes[row.OutcomeCode]
		if !ok {
			outcome = &models.OutcomeAchievement{Description: row.OutcomeDescription}
			subject.CourseOutcomes[row.OutcomeCode] = outcome
		}
		level, ok := subject.BloomsLevels[row.BloomsLevelName]
		if !ok {
			level = &models.LevelAchievement{}
			subject.BloomsLevels[row.BloomsLevelName] = level
		}

		switch mode {
		case models.AchievementModeProportional:
			share := shares[i]
			outcome.Marks = round2(outcome.Marks + share)
			level.Marks = round2(level.Marks + share)
		default:
			coKey := fmt.Sprintf("%s:%s:%d", row.SubjectCode, row.OutcomeCode, row.StudentMarkID)
			if !coSeen[coKey] {
				coSeen[coKey] = true
				outcome.Marks = round2(outcome.Marks + row.AssignedMarks)
			}
			levelKey := fmt.Sprintf("%s:%s:%d", row.SubjectCode, row.BloomsLevelName, row.StudentMarkID)
			if !levelSeen[levelKey] {
				levelSeen[levelKey] = true
				level.Marks = round2(level.Marks + row.AssignedMarks)
			}
		}
	}

	for _, subject := range report.BySubject {
		if subject.TotalPossibleMarks > 0 {
			subject.Percentage = round2(subject.TotalWeightedMarks / subject.TotalPossibleMarks * 100)
		}
	}
	report.Summary.TotalPossibleMarks = float64(len(report.BySubject)) * s.maxSubjectScore
	if report.Summary.TotalPossibleMarks > 0 {
		report.Summary.OverallPercentage = round2(report.Summary.TotalWeightedMarks / report.Summary.TotalPossibleMarks * 100)
	}

	s.cacheSet(ctx, cacheKey, report)
	return &report, false, nil
}

// Compare aggregates Bloom's-level totals for every student of a batch and
// averages each level across the student count. Every known level appears in
// the averages map even when no student has marks for it.
func (s *AnalyticsService) Compare(ctx context.Context, batchID int64, semesterNumber int, subjectCode string) (*models.BloomsComparison, bool, error) {
	cacheKey := makeAnalyticsCacheKey("compare", strconv.FormatInt(batchID, 10), strconv.Itoa(semesterNumber), subjectCode)
	var cached models.BloomsComparison
	if s.cache != nil {
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err != nil {
			return nil, false, fmt.Errorf("get comparison cache: %w", err)
		} else if hit {
			return &cached, true, nil
		}
	}

	students, err := s.students.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list batch students")
	}
	if len(students) == 0 {
		return nil, false, appErrors.Clone(appErrors.ErrNotFound, "no students found in this batch")
	}

	comparison := models.BloomsComparison{
		Batch:               batchID,
		Semester:            semesterNumber,
		Subject:             subjectCode,
		Students:            make([]models.StudentComparison, 0, len(students)),
		BloomsLevelAverages: make(map[string]*models.LevelAverage),
	}
	if subjectCode == "" {
		comparison.Subject = "All Subjects"
	}

	levels, err := s.outcomes.ListBloomsLevels(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list Bloom's levels")
	}
	for _, level := range levels {
		comparison.BloomsLevelAverages[level.Name] = &models.LevelAverage{}
	}

	start := time.Now()
	for _, student := range students {
		rows, err := s.distributions.ListForStudent(ctx, student.ID, semesterNumber, subjectCode)
		if err != nil {
			return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stored distribution")
		}

		entry := models.StudentComparison{
			ID:                student.ID,
			EnrollmentNumber:  student.EnrollmentNumber,
			Name:              student.Name,
			BloomsAchievement: make(map[string]float64),
		}
		levelSeen := make(map[string]bool)
		totalSeen := make(map[int64]bool)
		for _, row := range rows {
			levelKey := fmt.Sprintf("%s:%d", row.BloomsLevelName, row.StudentMarkID)
			if !levelSeen[levelKey] {
				levelSeen[levelKey] = true
				entry.BloomsAchievement[row.BloomsLevelName] = round2(entry.BloomsAchievement[row.BloomsLevelName] + row.AssignedMarks)
				if avg, ok := comparison.BloomsLevelAverages[row.BloomsLevelName]; ok {
					avg.TotalMarks = round2(avg.TotalMarks + row.AssignedMarks)
				}
			}
			if !totalSeen[row.StudentMarkID] {
				totalSeen[row.StudentMarkID] = true
				entry.TotalWeightedMarks = round2(entry.TotalWeightedMarks + row.AssignedMarks)
			}
		}
		comparison.Students = append(comparison.Students, entry)
	}
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("analytics_compare", time.Since(start))
	}

	for _, avg := range comparison.BloomsLevelAverages {
		avg.StudentCount = len(students)
		avg.Average = round2(avg.TotalMarks / float64(len(students)))
	}

	s.cacheSet(ctx, cacheKey, comparison)
	return &comparison, false, nil
}

// COAttainment reports, per Course Outcome of a subject, how many students of
// a batch reached the attainment threshold. A student attains a CO when their
// de-duplicated CO total is at least the threshold percentage of the subject
// maximum.
func (s *AnalyticsService) COAttainment(ctx context.Context, subjectCode string, batchID int64, semesterNumber int) (*models.COAttainmentReport, bool, error) {
	cacheKey := makeAnalyticsCacheKey("co-attainment", subjectCode, strconv.FormatInt(batchID, 10), strconv.Itoa(semesterNumber))
	var cached models.COAttainmentReport
	if s.cache != nil {
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err != nil {
			return nil, false, fmt.Errorf("get attainment cache: %w", err)
		} else if hit {
			return &cached, true, nil
		}
	}

	students, err := s.students.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list batch students")
	}
	outcomes, err := s.outcomes.ListBySubject(ctx, subjectCode)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list course outcomes")
	}
	if len(outcomes) == 0 {
		return nil, false, appErrors.Clone(appErrors.ErrNotFound, "no course outcomes found for this subject")
	}

	report := models.COAttainmentReport{
		Subject:             subjectCode,
		Batch:               batchID,
		Semester:            semesterNumber,
		AttainmentThreshold: s.attainmentThreshold,
		StudentCount:        len(students),
		CourseOutcomes:      make(map[string]*models.COAttainment, len(outcomes)),
	}
	codeByID := make(map[int64]string, len(outcomes))
	for _, co := range outcomes {
		report.CourseOutcomes[co.Code] = &models.COAttainment{
			ID:            co.ID,
			Description:   co.Description,
			TotalStudents: len(students),
			Students:      make([]models.COStudentResult, 0),
		}
		codeByID[co.ID] = co.Code
	}

	start := time.Now()
	for _, student := range students {
		rows, err := s.distributions.ListForStudent(ctx, student.ID, semesterNumber, subjectCode)
		if err != nil {
			return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stored distribution")
		}

		coMarks := make(map[string]float64)
		seen := make(map[string]bool)
		for _, row := range rows {
			code, ok := codeByID[row.CourseOutcomeID]
			if !ok {
				continue
			}
			key := fmt.Sprintf("%d:%d", row.StudentMarkID, row.CourseOutcomeID)
			if seen[key] {
				continue
			}
			seen[key] = true
			coMarks[code] = round2(coMarks[code] + row.AssignedMarks)
		}

		for code, marks := range coMarks {
			attainment := report.CourseOutcomes[code]
			pct := round2(marks / s.maxSubjectScore * 100)
			attainment.Students = append(attainment.Students, models.COStudentResult{
				EnrollmentNumber: student.EnrollmentNumber,
				Name:             student.Name,
				Marks:            marks,
				Percentage:       pct,
			})
			attainment.AverageMarks += marks
			if pct >= s.attainmentThreshold {
				attainment.StudentsAttained++
			}
		}
	}
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("analytics_co_attainment", time.Since(start))
	}

	for _, attainment := range report.CourseOutcomes {
		if attainment.TotalStudents > 0 {
			attainment.AverageMarks = round2(attainment.AverageMarks / float64(attainment.TotalStudents))
			attainment.AttainmentPercentage = round2(float64(attainment.StudentsAttained) / float64(attainment.TotalStudents) * 100)
		}
	}

	s.cacheSet(ctx, cacheKey, report)
	return &report, false, nil
}

// BloomsLevels lists the taxonomy levels known to the system.
func (s *AnalyticsService) BloomsLevels(ctx context.Context) ([]models.BloomsLevel, error) {
	levels, err := s.outcomes.ListBloomsLevels(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list Bloom's levels")
	}
	return levels, nil
}

// SystemMetrics returns a system instrumentation snapshot.
func (s *AnalyticsService) SystemMetrics() models.AnalyticsSystemMetrics {
	if s.metrics == nil {
		return models.AnalyticsSystemMetrics{}
	}
	return s.metrics.Snapshot()
}

func (s *AnalyticsService) loadRows(ctx context.Context, enrollmentNumber string, semesterNumber int, subjectCode string) ([]models.StoredDistribution, error) {
	student, err := s.students.FindByEnrollment(ctx, enrollmentNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	start := time.Now()
	rows, err := s.distributions.ListForStudent(ctx, student.ID, semesterNumber, subjectCode)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stored distribution")
	}
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("analytics_stored", time.Since(start))
	}
	return rows, nil
}

func (s *AnalyticsService) cacheSet(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, 0); err != nil {
		s.logger.Warn("analytics cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// proportionalShares computes, row-aligned with the input, each row's share
// of its mark's weighted value when split evenly across the mark's COs and
// each CO's Bloom's levels.
func proportionalShares(rows []models.StoredDistribution) []float64 {
	coCount := make(map[int64]map[int64]bool)
	levelCount := make(map[string]int)
	for _, row := range rows {
		if coCount[row.StudentMarkID] == nil {
			coCount[row.StudentMarkID] = make(map[int64]bool)
		}
		coCount[row.StudentMarkID][row.CourseOutcomeID] = true
		levelCount[fmt.Sprintf("%d:%d", row.StudentMarkID, row.CourseOutcomeID)]++
	}

	shares := make([]float64, len(rows))
	for i, row := range rows {
		cos := len(coCount[row.StudentMarkID])
		levels := levelCount[fmt.Sprintf("%d:%d", row.StudentMarkID, row.CourseOutcomeID)]
		if cos == 0 || levels == 0 {
			continue
		}
		shares[i] = round2(row.AssignedMarks / float64(cos*levels))
	}
	return shares
}

func containsString(values []string, v string) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}

func makeAnalyticsCacheKey(parts ...string) string {
	var builder strings.Builder
	builder.Grow(len(parts) * 16)
	builder.WriteString("analytics")
	for _, part := range parts {
		if part == "" {
			continue
		}
		builder.WriteByte(':')
		builder.WriteString(strings.ReplaceAll(part, ":", "|"))
	}
	return builder.String()
}

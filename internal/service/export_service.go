package service

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/obe-analytics-api/internal/models"
	appErrors "github.com/noah-isme/obe-analytics-api/pkg/errors"
	"github.com/noah-isme/obe-analytics-api/pkg/export"
	"github.com/noah-isme/obe-analytics-api/pkg/storage"
)

type attainmentReporter interface {
	COAttainment(ctx context.Context, subjectCode string, batchID int64, semesterNumber int) (*models.COAttainmentReport, bool, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string              `json:"relative_path"`
	Token        string              `json:"token"`
	URL          string              `json:"url"`
	Format       models.ReportFormat `json:"format"`
	ExpiresAt    time.Time           `json:"expires_at"`
}

// ExportService renders CO attainment reports to downloadable files with
// signed, expiring URLs.
type ExportService struct {
	analytics attainmentReporter
	storage   fileStorage
	csv       csvRenderer
	pdf       pdfRenderer
	signer    *storage.SignedURLSigner
	logger    *zap.Logger
	cfg       ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(analytics attainmentReporter, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		analytics: analytics,
		storage:   store,
		csv:       csv,
		pdf:       pdf,
		signer:    signer,
		logger:    logger,
		cfg:       cfg,
	}
}

// GenerateAttainment builds the CO attainment dataset for a subject+batch
// and stores the rendered file.
func (s *ExportService) GenerateAttainment(ctx context.Context, subjectCode string, batchID int64, semesterNumber int, format models.ReportFormat) (*ExportResult, error) {
	if !format.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	report, _, err := s.analytics.COAttainment(ctx, subjectCode, batchID, semesterNumber)
	if err != nil {
		return nil, err
	}

	dataset, title := attainmentDataset(report)

	var payload []byte
	switch format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
	}

	filename := fmt.Sprintf("co_attainment_%s_%d_sem%d_%s.%s",
		sanitizeFilename(subjectCode), batchID, semesterNumber,
		time.Now().UTC().Format("20060102_150405"), format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store report")
	}

	jobID := fmt.Sprintf("attainment-%s-%d-%d", sanitizeFilename(subjectCode), batchID, semesterNumber)
	token, expiresAt, err := s.signer.Generate(jobID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download URL")
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	s.logger.Info("attainment report exported",
		zap.String("subject", subjectCode),
		zap.Int64("batch", batchID),
		zap.Int("semester", semesterNumber),
		zap.String("format", string(format)),
		zap.String("file", relPath))

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/analytics/exports/%s", prefix, token),
		Format:       format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ResolveDownload validates a download token and opens the referenced file.
func (s *ExportService) ResolveDownload(token string) (*os.File, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "invalid or expired download token")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export file no longer available")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return file, nil
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL
// when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func attainmentDataset(report *models.COAttainmentReport) (export.Dataset, string) {
	headers := []string{"co_code", "description", "total_students", "students_attained", "average_marks", "attainment_percentage"}

	codes := make([]string, 0, len(report.CourseOutcomes))
	for code := range report.CourseOutcomes {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	rows := make([]map[string]string, 0, len(codes))
	for _, code := range codes {
		co := report.CourseOutcomes[code]
		rows = append(rows, map[string]string{
			"co_code":               code,
			"description":           co.Description,
			"total_students":        fmt.Sprintf("%d", co.TotalStudents),
			"students_attained":     fmt.Sprintf("%d", co.StudentsAttained),
			"average_marks":         fmt.Sprintf("%.2f", co.AverageMarks),
			"attainment_percentage": fmt.Sprintf("%.2f", co.AttainmentPercentage),
		})
	}

	title := fmt.Sprintf("CO Attainment: %s (batch %d, semester %d)", report.Subject, report.Batch, report.Semester)
	return export.Dataset{Headers: headers, Rows: rows}, title
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

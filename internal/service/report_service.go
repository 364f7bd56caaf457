package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-export/internal/aggregate"
	"github.com/noah-isme/course-export/internal/backend"
	"github.com/noah-isme/course-export/internal/dto"
	"github.com/noah-isme/course-export/internal/models"
	"github.com/noah-isme/course-export/internal/report"
	appErrors "github.com/noah-isme/course-export/pkg/errors"
	"github.com/noah-isme/course-export/pkg/export"
)

type reportSource interface {
	courseSource
	TopStudents(ctx context.Context, courseID int64) ([]models.TopStudent, error)
	QuizEntries(ctx context.Context, courseID *int64) ([]models.QuizEntry, error)
}

type attendanceRenderer interface {
	RenderAttendance(report export.AttendanceReport) ([]byte, error)
}

// Document is a rendered file ready to be served.
type Document struct {
	Filename string
	Format   models.ExportFormat
	Data     []byte
}

// ReportService renders course documents locally, without fallbacks.
type ReportService struct {
	source    reportSource
	collector *Collector
	renderers map[models.ExportFormat]export.Renderer
	html      attendanceRenderer
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewReportService constructs the report service.
func NewReportService(source reportSource, collector *Collector, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		source:    source,
		collector: collector,
		renderers: map[models.ExportFormat]export.Renderer{
			models.ExportFormatCSV:  export.NewCSVExporter(),
			models.ExportFormatXLSX: export.NewXLSXExporter(),
			models.ExportFormatXLS:  export.NewSpreadsheetMLExporter(),
			models.ExportFormatPDF:  export.NewPDFExporter(),
		},
		html:      export.NewHTMLExporter(),
		validator: validator.New(),
		logger:    logger,
		now:       time.Now,
	}
}

// CourseReport renders the per-student course table in the requested format.
func (s *ReportService) CourseReport(ctx context.Context, q dto.CourseReportQuery) (*Document, error) {
	if q.CourseID <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course id must be a positive integer")
	}
	if err := s.validator.Struct(q); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnsupportedFormat.Code, appErrors.ErrUnsupportedFormat.Status, "format must be one of csv, xlsx, xls, pdf")
	}
	format := models.ExportFormat(strings.ToLower(q.Format))
	if format == "" {
		format = models.ExportFormatCSV
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.ErrUnsupportedFormat
	}

	in, err := s.collector.Collect(ctx, q.CourseID, false)
	if err != nil {
		return nil, backendError(err, "failed to collect course data")
	}
	data, err := renderer.Render(report.Build(*in))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
	}
	return &Document{Filename: ExportFilename(in.Course, format), Format: format, Data: data}, nil
}

// CourseAnalytics returns course averages and the grade distribution of the
// backend's top students ranking.
func (s *ReportService) CourseAnalytics(ctx context.Context, courseID int64) (*dto.CourseAnalyticsResponse, error) {
	if courseID <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course id must be a positive integer")
	}
	in, err := s.collector.Collect(ctx, courseID, false)
	if err != nil {
		return nil, backendError(err, "failed to collect course data")
	}

	resp := &dto.CourseAnalyticsResponse{CourseID: courseID, CourseTitle: in.Course.Title}
	for _, avg := range aggregate.CourseAverages(report.Metrics(*in)) {
		if avg.CourseID != in.Course.ID {
			continue
		}
		resp.Students = avg.Students
		resp.AverageGrade = round1(avg.AverageGrade)
		resp.AverageAttendance = round1(avg.AverageAttendance)
	}

	top, err := s.source.TopStudents(ctx, courseID)
	if err != nil {
		s.logger.Warn("top students unavailable, distribution left empty", zap.Int64("course_id", courseID), zap.Error(err))
		return resp, nil
	}
	dist := aggregate.GradeDistributionBuckets(top)
	resp.Distribution = dto.GradeDistributionDTO{
		Excellent: dist.Excellent,
		Good:      dist.Good,
		Average:   dist.Average,
		Below:     dist.Below,
	}
	return resp, nil
}

// AttendanceReport renders one student's attendance as a standalone HTML page.
// A missing profile degrades to a placeholder name.
func (s *ReportService) AttendanceReport(ctx context.Context, q dto.AttendanceReportQuery) (*Document, error) {
	if err := s.validator.Struct(q); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "course and student ids must be positive integers")
	}
	course, err := s.source.Course(ctx, q.CourseID)
	if err != nil {
		return nil, backendError(err, "failed to load course")
	}
	rows, err := s.source.AttendanceSummary(ctx, q.CourseID)
	if err != nil {
		return nil, backendError(err, "failed to load attendance summary")
	}

	doc := export.AttendanceReport{CourseTitle: course.Title, GeneratedAt: s.now()}
	student, err := s.source.Student(ctx, q.StudentID)
	if err != nil {
		s.logger.Warn("student profile unavailable", zap.Int64("student_id", q.StudentID), zap.Error(err))
	} else {
		doc.StudentName = student.FullName
		doc.StudentNumber = student.StudentNumber
	}
	stats := aggregate.AttendanceFor(q.StudentID, rows)
	doc.Present, doc.Absent, doc.Late, doc.Excused = stats.Present, stats.Absent, stats.Late, stats.Excused
	doc.Total, doc.Percent = stats.Total, stats.Percent

	data, err := s.html.RenderAttendance(doc)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render attendance report")
	}
	name := sanitizeFilename(doc.StudentName, "student-"+strconv.FormatInt(q.StudentID, 10))
	return &Document{Filename: fmt.Sprintf("attendance-%s.html", name), Format: models.ExportFormatHTML, Data: data}, nil
}

// QuizExport renders the quiz entries recorded on one day as CSV.
func (s *ReportService) QuizExport(ctx context.Context, q dto.QuizExportQuery) (*Document, error) {
	if err := s.validator.Struct(q); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "date must be YYYY-MM-DD")
	}
	date := q.Date
	if date == "" {
		date = s.now().Format("2006-01-02")
	}

	entries, err := s.source.QuizEntries(ctx, q.CourseID)
	if err != nil {
		return nil, backendError(err, "failed to load quiz entries")
	}
	sameDay := make([]models.QuizEntry, 0, len(entries))
	for _, entry := range entries {
		if strings.HasPrefix(entry.QuizDate, date) {
			sameDay = append(sameDay, entry)
		}
	}

	data, err := s.renderers[models.ExportFormatCSV].Render(report.QuizEntries(sameDay))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render quiz entries")
	}
	return &Document{Filename: fmt.Sprintf("quiz-entries-%s.csv", date), Format: models.ExportFormatCSV, Data: data}, nil
}

// backendError maps backend failures onto app errors; a 404 anywhere in the
// chain stays a 404.
func backendError(err error, message string) error {
	var status *backend.StatusError
	if errors.As(err, &status) {
		switch status.Status {
		case http.StatusNotFound:
			return appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, message)
		case http.StatusUnauthorized:
			return appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, message)
		case http.StatusForbidden:
			return appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, message)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return appErrors.Wrap(err, appErrors.ErrBackendUnavailable.Code, http.StatusGatewayTimeout, message)
	}
	return appErrors.Wrap(err, appErrors.ErrBackendUnavailable.Code, appErrors.ErrBackendUnavailable.Status, message)
}

func round1(v float64) float64 {
	f, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 1, 64), 64)
	return f
}

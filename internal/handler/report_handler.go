package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-export/internal/dto"
	"github.com/noah-isme/course-export/internal/service"
	appErrors "github.com/noah-isme/course-export/pkg/errors"
	"github.com/noah-isme/course-export/pkg/response"
)

type reportService interface {
	CourseReport(ctx context.Context, q dto.CourseReportQuery) (*service.Document, error)
	CourseAnalytics(ctx context.Context, courseID int64) (*dto.CourseAnalyticsResponse, error)
	AttendanceReport(ctx context.Context, q dto.AttendanceReportQuery) (*service.Document, error)
	QuizExport(ctx context.Context, q dto.QuizExportQuery) (*service.Document, error)
}

// ReportHandler exposes locally rendered course documents.
type ReportHandler struct {
	reports reportService
}

// NewReportHandler constructs handler.
func NewReportHandler(reports reportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// CourseReport godoc
// @Summary Course student report
// @Tags Reports
// @Produce octet-stream
// @Param id path int true "Course ID"
// @Param format query string false "csv, xlsx, xls or pdf"
// @Success 200 {file} binary
// @Router /courses/{id}/report [get]
func (h *ReportHandler) CourseReport(c *gin.Context) {
	courseID, err := int64Param(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var q dto.CourseReportQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query"))
		return
	}
	q.CourseID = courseID
	h.document(c, func(ctx context.Context) (*service.Document, error) {
		return h.reports.CourseReport(ctx, q)
	})
}

// CourseAnalytics godoc
// @Summary Course averages and grade distribution
// @Tags Reports
// @Produce json
// @Param id path int true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/analytics [get]
func (h *ReportHandler) CourseAnalytics(c *gin.Context) {
	courseID, err := int64Param(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	analytics, err := h.reports.CourseAnalytics(c.Request.Context(), courseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, analytics)
}

// AttendanceReport godoc
// @Summary Student attendance report
// @Tags Reports
// @Produce html
// @Param id path int true "Course ID"
// @Param studentId path int true "Student ID"
// @Success 200 {file} binary
// @Router /courses/{id}/students/{studentId}/attendance-report [get]
func (h *ReportHandler) AttendanceReport(c *gin.Context) {
	courseID, err := int64Param(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	studentID, err := int64Param(c, "studentId")
	if err != nil {
		response.Error(c, err)
		return
	}
	h.document(c, func(ctx context.Context) (*service.Document, error) {
		return h.reports.AttendanceReport(ctx, dto.AttendanceReportQuery{CourseID: courseID, StudentID: studentID})
	})
}

// QuizExport godoc
// @Summary Export quiz entries of one day
// @Tags Reports
// @Produce text/csv
// @Param date query string false "YYYY-MM-DD, defaults to today"
// @Param courseId query int false "Course ID"
// @Success 200 {file} binary
// @Router /quiz-entries/export [get]
func (h *ReportHandler) QuizExport(c *gin.Context) {
	var q dto.QuizExportQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query"))
		return
	}
	h.document(c, func(ctx context.Context) (*service.Document, error) {
		return h.reports.QuizExport(ctx, q)
	})
}

func (h *ReportHandler) document(c *gin.Context, render func(ctx context.Context) (*service.Document, error)) {
	doc, err := render(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, doc.Filename, doc.Format.ContentType(), doc.Data)
}

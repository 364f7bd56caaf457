package dto

import (
	"time"

	"github.com/noah-isme/course-export/internal/models"
)

// ExportJobRequest captures POST /exports payload.
type ExportJobRequest struct {
	CourseID int64 `json:"courseId" validate:"required,gt=0"`
}

// ExportJobResponse is returned after enqueueing an export.
type ExportJobResponse struct {
	ID     string              `json:"id"`
	Status models.ExportStatus `json:"status"`
}

// ExportStatusResponse exposes job progress and the tier history.
type ExportStatusResponse struct {
	ID         string               `json:"id"`
	CourseID   int64                `json:"courseId"`
	Status     models.ExportStatus  `json:"status"`
	Tier       string               `json:"tier,omitempty"`
	Filename   string               `json:"filename,omitempty"`
	ResultURL  *string              `json:"resultUrl,omitempty"`
	Error      *string              `json:"error,omitempty"`
	Attempts   []models.TierAttempt `json:"attempts,omitempty"`
	CreatedAt  time.Time            `json:"createdAt"`
	FinishedAt *time.Time           `json:"finishedAt,omitempty"`
}

// CourseReportQuery selects the encoding of a direct course report.
type CourseReportQuery struct {
	CourseID int64
	Format   string `form:"format" validate:"omitempty,oneof=csv xlsx xls pdf"`
}

// AttendanceReportQuery identifies one student's attendance report.
type AttendanceReportQuery struct {
	CourseID  int64 `validate:"required,gt=0"`
	StudentID int64 `validate:"required,gt=0"`
}

// QuizExportQuery filters the quiz entries export. Date defaults to today.
type QuizExportQuery struct {
	Date     string `form:"date" validate:"omitempty,datetime=2006-01-02"`
	CourseID *int64 `form:"courseId" validate:"omitempty,gt=0"`
}

// CourseAnalyticsResponse summarises a course.
type CourseAnalyticsResponse struct {
	CourseID          int64                `json:"courseId"`
	CourseTitle       string               `json:"courseTitle"`
	Students          int                  `json:"students"`
	AverageGrade      float64              `json:"averageGrade"`
	AverageAttendance float64              `json:"averageAttendance"`
	Distribution      GradeDistributionDTO `json:"gradeDistribution"`
}

// GradeDistributionDTO counts top students per grade band.
type GradeDistributionDTO struct {
	Excellent int `json:"excellent"`
	Good      int `json:"good"`
	Average   int `json:"average"`
	Below     int `json:"below"`
}

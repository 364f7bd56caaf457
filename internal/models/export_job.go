package models

import "time"

// ExportFormat enumerates artifact encodings.
type ExportFormat string

const (
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatXLSX ExportFormat = "xlsx"
	ExportFormatXLS  ExportFormat = "xls"
	ExportFormatPDF  ExportFormat = "pdf"
	ExportFormatHTML ExportFormat = "html"
)

// Extension returns the file extension used for the format.
func (f ExportFormat) Extension() string {
	return string(f)
}

// ContentType returns the MIME type served for the format.
func (f ExportFormat) ContentType() string {
	switch f {
	case ExportFormatCSV:
		return "text/csv; charset=utf-8"
	case ExportFormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ExportFormatXLS:
		return "application/vnd.ms-excel"
	case ExportFormatPDF:
		return "application/pdf"
	case ExportFormatHTML:
		return "text/html; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// ExportStatus captures background job lifecycle states.
type ExportStatus string

const (
	ExportStatusQueued     ExportStatus = "QUEUED"
	ExportStatusProcessing ExportStatus = "PROCESSING"
	ExportStatusFinished   ExportStatus = "FINISHED"
	ExportStatusFailed     ExportStatus = "FAILED"
)

// TierAttempt records the outcome of one export strategy.
type TierAttempt struct {
	Tier       string `json:"tier"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// ExportJob is the async export job kept in Redis.
type ExportJob struct {
	ID         string        `json:"id"`
	CourseID   int64         `json:"courseId"`
	Status     ExportStatus  `json:"status"`
	Tier       string        `json:"tier,omitempty"`
	Filename   string        `json:"filename,omitempty"`
	ResultURL  *string       `json:"resultUrl,omitempty"`
	Error      *string       `json:"error,omitempty"`
	Attempts   []TierAttempt `json:"attempts,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
	FinishedAt *time.Time    `json:"finishedAt,omitempty"`
}

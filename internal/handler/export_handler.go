package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-export/internal/dto"
	"github.com/noah-isme/course-export/internal/service"
	appErrors "github.com/noah-isme/course-export/pkg/errors"
	"github.com/noah-isme/course-export/pkg/logger"
	"github.com/noah-isme/course-export/pkg/response"
)

type exportRunner interface {
	Run(ctx context.Context, courseID int64) (*service.PipelineResult, error)
}

type exportJobService interface {
	CreateJob(ctx context.Context, req dto.ExportJobRequest) (*dto.ExportJobResponse, error)
	GetStatus(ctx context.Context, id string) (*dto.ExportStatusResponse, error)
	ResolveDownload(ctx context.Context, token string) (*service.ExportDownload, error)
}

// ExportHandler exposes the resilient course export.
type ExportHandler struct {
	pipeline exportRunner
	jobs     exportJobService
}

// NewExportHandler constructs the handler. jobs may be nil when async exports are disabled.
func NewExportHandler(pipeline exportRunner, jobs exportJobService) *ExportHandler {
	return &ExportHandler{pipeline: pipeline, jobs: jobs}
}

// ExportCourse godoc
// @Summary Export course students, falling back across strategies
// @Tags Exports
// @Produce octet-stream
// @Param id path int true "Course ID"
// @Success 200 {file} binary
// @Failure 502 {object} response.Envelope
// @Router /courses/{id}/export [post]
func (h *ExportHandler) ExportCourse(c *gin.Context) {
	courseID, err := int64Param(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.pipeline.Run(c.Request.Context(), courseID)
	if err != nil {
		response.Error(c, exportError(err))
		return
	}
	c.Header(logger.TierHeader, result.Tier)
	response.Attachment(c, result.Filename, result.Format.ContentType(), result.Data)
}

// CreateJob godoc
// @Summary Queue an asynchronous course export
// @Tags Exports
// @Accept json
// @Produce json
// @Param payload body dto.ExportJobRequest true "Export request"
// @Success 202 {object} response.Envelope
// @Router /exports [post]
func (h *ExportHandler) CreateJob(c *gin.Context) {
	if h.jobs == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrFeatureDisabled, "async exports are disabled"))
		return
	}
	var req dto.ExportJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	job, err := h.jobs.CreateJob(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, job)
}

// JobStatus godoc
// @Summary Get export job status
// @Tags Exports
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /exports/{id} [get]
func (h *ExportHandler) JobStatus(c *gin.Context) {
	if h.jobs == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrFeatureDisabled, "async exports are disabled"))
		return
	}
	status, err := h.jobs.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status)
}

// Download godoc
// @Summary Download a finished export via signed token
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Router /export/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	if h.jobs == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrFeatureDisabled, "async exports are disabled"))
		return
	}
	token := c.Param("token")
	if strings.TrimSpace(token) == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	download, err := h.jobs.ResolveDownload(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close() //nolint:errcheck

	info, err := download.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat export file"))
		return
	}
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), download.Format.ContentType(), download.File, map[string]string{
		"Content-Disposition": response.Disposition(download.Filename),
		logger.TierHeader:     download.Tier,
	})
}

func exportError(err error) error {
	var exhausted *service.ExhaustedError
	if errors.As(err, &exhausted) {
		return appErrors.Wrap(err, appErrors.ErrExportFailed.Code, appErrors.ErrExportFailed.Status, appErrors.ErrExportFailed.Message)
	}
	return err
}

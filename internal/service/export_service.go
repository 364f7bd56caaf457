package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/course-export/internal/backend"
	"github.com/noah-isme/course-export/internal/dto"
	"github.com/noah-isme/course-export/internal/models"
	"github.com/noah-isme/course-export/internal/repository"
	appErrors "github.com/noah-isme/course-export/pkg/errors"
	"github.com/noah-isme/course-export/pkg/jobs"
	"github.com/noah-isme/course-export/pkg/storage"
)

// ExportJobType tags queue jobs produced by ExportService.
const ExportJobType = "course-export"

type exportJobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	GetByID(ctx context.Context, id string) (*models.ExportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type pipelineRunner interface {
	Run(ctx context.Context, courseID int64) (*PipelineResult, error)
}

type fileStorage interface {
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type jobObserver interface {
	ObserveJob(status string)
}

// ExportServiceConfig tunes async exports.
type ExportServiceConfig struct {
	APIPrefix       string
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// ExportDownload is a resolved signed download.
type ExportDownload struct {
	File      *os.File
	Filename  string
	Format    models.ExportFormat
	Tier      string
	ExpiresAt time.Time
}

// ExportService manages the lifecycle of background course exports.
type ExportService struct {
	repo      exportJobStore
	queue     jobDispatcher
	pipeline  pipelineRunner
	storage   fileStorage
	signer    *storage.SignedURLSigner
	validator *validator.Validate
	observer  jobObserver
	logger    *zap.Logger
	cfg       ExportServiceConfig

	// bearer tokens of in-flight jobs; never persisted
	mu     sync.Mutex
	tokens map[string]string
}

// NewExportService constructs the service. The queue is attached later with
// SetQueue because the queue's handler is the service itself.
func NewExportService(repo exportJobStore, pipeline pipelineRunner, files fileStorage, signer *storage.SignedURLSigner, observer jobObserver, cfg ExportServiceConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 15 * time.Minute
	}
	return &ExportService{
		repo:      repo,
		pipeline:  pipeline,
		storage:   files,
		signer:    signer,
		validator: validator.New(),
		observer:  observer,
		logger:    logger,
		cfg:       cfg,
		tokens:    make(map[string]string),
	}
}

// SetQueue attaches the dispatcher used by CreateJob.
func (s *ExportService) SetQueue(queue jobDispatcher) {
	s.queue = queue
}

// CreateJob persists a QUEUED job and hands it to the queue. The caller's
// bearer token is remembered in memory for the manual tier.
func (s *ExportService) CreateJob(ctx context.Context, req dto.ExportJobRequest) (*dto.ExportJobResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "courseId must be a positive integer")
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrFeatureDisabled, "async exports are disabled")
	}

	job := &models.ExportJob{
		ID:        uuid.NewString(),
		CourseID:  req.CourseID,
		Status:    models.ExportStatusQueued,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}
	if token := backend.TokenFromContext(ctx); token != "" {
		s.rememberToken(job.ID, token)
	}

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: ExportJobType}); err != nil {
		s.forgetToken(job.ID)
		s.finishFailed(ctx, job.ID, "failed to enqueue job", nil)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export job")
	}
	return &dto.ExportJobResponse{ID: job.ID, Status: job.Status}, nil
}

// GetStatus returns job metadata.
func (s *ExportService) GetStatus(ctx context.Context, id string) (*dto.ExportStatusResponse, error) {
	job, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.ExportStatusResponse{
		ID:         job.ID,
		CourseID:   job.CourseID,
		Status:     job.Status,
		Tier:       job.Tier,
		Filename:   job.Filename,
		ResultURL:  job.ResultURL,
		Error:      job.Error,
		Attempts:   job.Attempts,
		CreatedAt:  job.CreatedAt,
		FinishedAt: job.FinishedAt,
	}, nil
}

// Handle runs the pipeline for a queued job. It is the queue's handler.
func (s *ExportService) Handle(ctx context.Context, job jobs.Job) error {
	record, err := s.repo.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	processing := models.ExportStatusProcessing
	if err := s.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{Status: &processing}); err != nil {
		return err
	}

	runCtx := ctx
	if token := s.token(job.ID); token != "" {
		runCtx = backend.WithToken(ctx, token)
	}
	result, err := s.pipeline.Run(runCtx, record.CourseID)
	if err != nil {
		var exhausted *ExhaustedError
		if errors.As(err, &exhausted) {
			attempts := exhausted.Attempts()
			msg := err.Error()
			queued := models.ExportStatusQueued
			if updateErr := s.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
				Status:   &queued,
				Error:    &msg,
				Attempts: attempts,
			}); updateErr != nil {
				s.logger.Warn("failed to record export attempts", zap.String("job_id", job.ID), zap.Error(updateErr))
			}
		}
		return err
	}

	token, _, err := s.signer.Generate(job.ID, result.RelPath)
	if err != nil {
		return fmt.Errorf("sign export %s: %w", job.ID, err)
	}
	url := s.downloadURL(token)
	finished := models.ExportStatusFinished
	now := time.Now().UTC()
	noError := ""
	tier := result.Tier
	filename := result.Filename
	if err := s.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
		Status:     &finished,
		Tier:       &tier,
		Filename:   &filename,
		ResultURL:  &url,
		Error:      &noError,
		Attempts:   result.Attempts,
		FinishedAt: &now,
	}); err != nil {
		s.logger.Warn("failed to mark export finished", zap.String("job_id", job.ID), zap.Error(err))
		return err
	}

	s.forgetToken(job.ID)
	s.observe(string(finished))
	s.logger.Info("export job finished", zap.String("job_id", job.ID), zap.Int64("course_id", record.CourseID), zap.String("tier", tier))
	return nil
}

// MarkFailed is called by the queue once a job has no retries left.
func (s *ExportService) MarkFailed(ctx context.Context, job jobs.Job, cause error) {
	s.forgetToken(job.ID)
	var attempts []models.TierAttempt
	var exhausted *ExhaustedError
	if errors.As(cause, &exhausted) {
		attempts = exhausted.Attempts()
	}
	s.finishFailed(ctx, job.ID, cause.Error(), attempts)
}

func (s *ExportService) finishFailed(ctx context.Context, id, msg string, attempts []models.TierAttempt) {
	failed := models.ExportStatusFailed
	now := time.Now().UTC()
	if err := s.repo.Update(ctx, id, repository.UpdateExportJobParams{
		Status:     &failed,
		Error:      &msg,
		Attempts:   attempts,
		FinishedAt: &now,
	}); err != nil {
		s.logger.Warn("failed to mark export failed", zap.String("job_id", id), zap.Error(err))
	}
	s.observe(string(failed))
}

// ResolveDownload validates a signed token and opens the artifact.
func (s *ExportService) ResolveDownload(ctx context.Context, token string) (*ExportDownload, error) {
	jobID, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.ResultURL == nil || !strings.HasSuffix(*job.ResultURL, token) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	if job.Status != models.ExportStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export not ready")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export file expired")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	filename := job.Filename
	if filename == "" {
		filename = path.Base(relPath)
	}
	return &ExportDownload{
		File:      file,
		Filename:  filename,
		Format:    formatFromFilename(filename),
		Tier:      job.Tier,
		ExpiresAt: expiresAt,
	}, nil
}

// StartCleanup periodically deletes artifacts older than the result TTL.
func (s *ExportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Cleanup()
			}
		}
	}()
}

// Cleanup runs one sweep and returns the removed files.
func (s *ExportService) Cleanup() []string {
	removed, err := s.storage.CleanupOlderThan(s.cfg.ResultTTL)
	if err != nil {
		s.logger.Warn("export cleanup failed", zap.Error(err))
	}
	if len(removed) > 0 {
		s.logger.Info("expired exports removed", zap.Int("count", len(removed)))
	}
	return removed
}

func (s *ExportService) load(ctx context.Context, id string) (*models.ExportJob, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	return job, nil
}

func (s *ExportService) downloadURL(token string) string {
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return fmt.Sprintf("%s/export/%s", prefix, token)
}

func (s *ExportService) observe(status string) {
	if s.observer != nil {
		s.observer.ObserveJob(status)
	}
}

func (s *ExportService) rememberToken(id, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[id] = token
}

func (s *ExportService) token(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens[id]
}

func (s *ExportService) forgetToken(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, id)
}

func formatFromFilename(name string) models.ExportFormat {
	ext := strings.TrimPrefix(path.Ext(name), ".")
	switch models.ExportFormat(strings.ToLower(ext)) {
	case models.ExportFormatCSV:
		return models.ExportFormatCSV
	case models.ExportFormatXLSX:
		return models.ExportFormatXLSX
	case models.ExportFormatXLS:
		return models.ExportFormatXLS
	case models.ExportFormatPDF:
		return models.ExportFormatPDF
	case models.ExportFormatHTML:
		return models.ExportFormatHTML
	default:
		return ""
	}
}

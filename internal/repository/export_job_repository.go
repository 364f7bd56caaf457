package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/course-export/internal/models"
	appErrors "github.com/noah-isme/course-export/pkg/errors"
)

const (
	exportJobKeyPrefix = "course-export:job:"
	maxUpdateAttempts  = 5
)

// UpdateExportJobParams lists the mutable job fields; nil means unchanged.
type UpdateExportJobParams struct {
	Status     *models.ExportStatus
	Tier       *string
	Filename   *string
	ResultURL  *string
	Error      *string
	Attempts   []models.TierAttempt
	FinishedAt *time.Time
}

// ExportJobRepository keeps async export jobs in Redis with a TTL.
type ExportJobRepository struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger

	// beforeCommit runs between the read and the write of an update.
	beforeCommit func()
}

// NewExportJobRepository constructs the repository.
func NewExportJobRepository(client *redis.Client, ttl time.Duration, logger *zap.Logger) *ExportJobRepository {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportJobRepository{client: client, ttl: ttl, logger: logger}
}

// Create stores a new job, refusing to overwrite an existing id.
func (r *ExportJobRepository) Create(ctx context.Context, job *models.ExportJob) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal export job %s: %w", job.ID, err)
	}
	ok, err := r.client.SetNX(ctx, r.key(job.ID), payload, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis setnx %s: %w", job.ID, err)
	}
	if !ok {
		return fmt.Errorf("export job %s already exists", job.ID)
	}
	return nil
}

// GetByID loads a job. Missing or expired jobs yield appErrors.ErrNotFound.
func (r *ExportJobRepository) GetByID(ctx context.Context, id string) (*models.ExportJob, error) {
	raw, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, appErrors.ErrNotFound
		}
		return nil, fmt.Errorf("redis get %s: %w", id, err)
	}
	var job models.ExportJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("unmarshal export job %s: %w", id, err)
	}
	return &job, nil
}

// Update applies params atomically, keeping the job's remaining TTL. A
// concurrent write to the same job re-reads and re-applies params.
func (r *ExportJobRepository) Update(ctx context.Context, id string, params UpdateExportJobParams) error {
	var err error
	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		err = r.update(ctx, id, params)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		r.logger.Debug("export job changed during update, retrying", zap.String("job_id", id), zap.Int("attempt", attempt))
	}
	return fmt.Errorf("update export job %s: %w", id, err)
}

func (r *ExportJobRepository) update(ctx context.Context, id string, params UpdateExportJobParams) error {
	key := r.key(id)
	return r.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return appErrors.ErrNotFound
			}
			return fmt.Errorf("redis get %s: %w", id, err)
		}
		var job models.ExportJob
		if err := json.Unmarshal(raw, &job); err != nil {
			return fmt.Errorf("unmarshal export job %s: %w", id, err)
		}
		applyUpdate(&job, params)

		payload, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("marshal export job %s: %w", id, err)
		}
		ttl, err := tx.TTL(ctx, key).Result()
		if err != nil || ttl <= 0 {
			ttl = r.ttl
		}
		if r.beforeCommit != nil {
			r.beforeCommit()
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, ttl)
			return nil
		})
		if err != nil {
			return fmt.Errorf("redis set %s: %w", id, err)
		}
		return nil
	}, key)
}

func (r *ExportJobRepository) key(id string) string {
	return exportJobKeyPrefix + id
}

func applyUpdate(job *models.ExportJob, params UpdateExportJobParams) {
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Tier != nil {
		job.Tier = *params.Tier
	}
	if params.Filename != nil {
		job.Filename = *params.Filename
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.Error != nil {
		if *params.Error == "" {
			job.Error = nil
		} else {
			job.Error = params.Error
		}
	}
	if params.Attempts != nil {
		job.Attempts = params.Attempts
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
}

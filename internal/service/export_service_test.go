package service

import (
	"context"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/course-export/internal/backend"
	"github.com/noah-isme/course-export/internal/dto"
	"github.com/noah-isme/course-export/internal/models"
	"github.com/noah-isme/course-export/internal/repository"
	appErrors "github.com/noah-isme/course-export/pkg/errors"
	"github.com/noah-isme/course-export/pkg/jobs"
	"github.com/noah-isme/course-export/pkg/storage"
)

type dispatcherStub struct {
	jobs []jobs.Job
	err  error
}

func (d *dispatcherStub) Enqueue(job jobs.Job) error {
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, job)
	return nil
}

type pipelineStub struct {
	store  *storage.LocalStorage
	err    error
	tokens []string
}

func (p *pipelineStub) Run(ctx context.Context, courseID int64) (*PipelineResult, error) {
	p.tokens = append(p.tokens, backend.TokenFromContext(ctx))
	if p.err != nil {
		return nil, p.err
	}
	data := []byte("\"Student ID\"\r\n\"7\"\r\n")
	rel, err := p.store.Save(path.Join("run-1", "students_CS101_Intro.csv"), data)
	if err != nil {
		return nil, err
	}
	return &PipelineResult{
		Artifact: Artifact{Tier: TierRemoteExport, Filename: "students_CS101_Intro.csv", RelPath: rel, Format: models.ExportFormatCSV, Data: data},
		Attempts: []models.TierAttempt{
			{Tier: TierLocalDirect, Error: "load roster: boom"},
			{Tier: TierRemoteExport, DurationMs: 12},
		},
	}, nil
}

type jobObserverStub struct {
	statuses []string
}

func (o *jobObserverStub) ObserveJob(status string) {
	o.statuses = append(o.statuses, status)
}

type exportServiceFixture struct {
	svc        *ExportService
	repo       *repository.ExportJobRepository
	store      *storage.LocalStorage
	pipeline   *pipelineStub
	dispatcher *dispatcherStub
	observer   *jobObserverStub
}

func newExportServiceFixture(t *testing.T) *exportServiceFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	f := &exportServiceFixture{
		repo:       repository.NewExportJobRepository(client, time.Hour, nil),
		store:      store,
		pipeline:   &pipelineStub{store: store},
		dispatcher: &dispatcherStub{},
		observer:   &jobObserverStub{},
	}
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	cfg := ExportServiceConfig{APIPrefix: "/api/v1/", ResultTTL: time.Hour}
	f.svc = NewExportService(f.repo, f.pipeline, store, signer, f.observer, cfg, zap.NewNop())
	f.svc.SetQueue(f.dispatcher)
	return f
}

func downloadToken(t *testing.T, url *string) string {
	t.Helper()
	require.NotNil(t, url)
	require.True(t, strings.HasPrefix(*url, "/api/v1/export/"))
	return strings.TrimPrefix(*url, "/api/v1/export/")
}

func TestExportServiceLifecycle(t *testing.T) {
	f := newExportServiceFixture(t)
	ctx := backend.WithToken(context.Background(), "user-token")

	created, err := f.svc.CreateJob(ctx, dto.ExportJobRequest{CourseID: 42})
	require.NoError(t, err)
	require.Equal(t, models.ExportStatusQueued, created.Status)
	require.Len(t, f.dispatcher.jobs, 1)
	require.Equal(t, ExportJobType, f.dispatcher.jobs[0].Type)

	require.NoError(t, f.svc.Handle(context.Background(), f.dispatcher.jobs[0]))
	require.Equal(t, []string{"user-token"}, f.pipeline.tokens)
	require.Empty(t, f.svc.token(created.ID))
	require.Equal(t, []string{string(models.ExportStatusFinished)}, f.observer.statuses)

	status, err := f.svc.GetStatus(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, models.ExportStatusFinished, status.Status)
	require.Equal(t, TierRemoteExport, status.Tier)
	require.Equal(t, "students_CS101_Intro.csv", status.Filename)
	require.Nil(t, status.Error)
	require.Len(t, status.Attempts, 2)
	require.NotNil(t, status.FinishedAt)

	download, err := f.svc.ResolveDownload(context.Background(), downloadToken(t, status.ResultURL))
	require.NoError(t, err)
	defer download.File.Close()
	require.Equal(t, models.ExportFormatCSV, download.Format)
	require.Equal(t, TierRemoteExport, download.Tier)
	body, err := io.ReadAll(download.File)
	require.NoError(t, err)
	require.Contains(t, string(body), `"Student ID"`)
}

func TestExportServiceCreateJobValidation(t *testing.T) {
	f := newExportServiceFixture(t)

	_, err := f.svc.CreateJob(context.Background(), dto.ExportJobRequest{CourseID: 0})
	require.ErrorIs(t, err, appErrors.ErrValidation)
	require.Empty(t, f.dispatcher.jobs)
}

func TestExportServiceCreateJobWithoutQueue(t *testing.T) {
	f := newExportServiceFixture(t)
	f.svc.SetQueue(nil)

	_, err := f.svc.CreateJob(context.Background(), dto.ExportJobRequest{CourseID: 42})
	require.ErrorIs(t, err, appErrors.ErrFeatureDisabled)
}

func TestExportServiceEnqueueFailureMarksJobFailed(t *testing.T) {
	f := newExportServiceFixture(t)
	f.dispatcher.err = errors.New("queue stopped")

	_, err := f.svc.CreateJob(backend.WithToken(context.Background(), "t"), dto.ExportJobRequest{CourseID: 42})
	require.ErrorIs(t, err, appErrors.ErrInternal)
	require.Empty(t, f.svc.tokens)
	require.Equal(t, []string{string(models.ExportStatusFailed)}, f.observer.statuses)
}

func TestExportServiceExhaustedJob(t *testing.T) {
	f := newExportServiceFixture(t)
	f.pipeline.err = &ExhaustedError{CourseID: 42, Failures: []TierError{
		{Tier: TierLocalDirect, Err: errors.New("load course: down")},
		{Tier: TierRemoteExport, Err: ErrRemoteTimeout},
		{Tier: TierManualFetch, Err: backend.ErrNoToken},
		{Tier: TierLocalXML, Err: errors.New("store artifact: disk full")},
	}}

	created, err := f.svc.CreateJob(context.Background(), dto.ExportJobRequest{CourseID: 42})
	require.NoError(t, err)
	job := f.dispatcher.jobs[0]

	handleErr := f.svc.Handle(context.Background(), job)
	require.Error(t, handleErr)

	status, err := f.svc.GetStatus(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, models.ExportStatusQueued, status.Status)
	require.Len(t, status.Attempts, 4)

	f.svc.MarkFailed(context.Background(), job, handleErr)
	status, err = f.svc.GetStatus(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, models.ExportStatusFailed, status.Status)
	require.NotNil(t, status.Error)
	require.Contains(t, *status.Error, "disk full")
	require.Equal(t, TierLocalXML, status.Attempts[3].Tier)
	require.Nil(t, status.ResultURL)
}

func TestExportServiceGetStatusNotFound(t *testing.T) {
	f := newExportServiceFixture(t)

	_, err := f.svc.GetStatus(context.Background(), "missing")
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestExportServiceResolveDownloadRejectsBadTokens(t *testing.T) {
	f := newExportServiceFixture(t)

	_, err := f.svc.ResolveDownload(context.Background(), "garbage")
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	forged, _, err := storage.NewSignedURLSigner("secret", time.Hour).Generate("unknown-job", "run-1/file.csv")
	require.NoError(t, err)
	_, err = f.svc.ResolveDownload(context.Background(), forged)
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestExportServiceCleanup(t *testing.T) {
	f := newExportServiceFixture(t)
	rel, err := f.store.Save("old/students.csv", []byte("x"))
	require.NoError(t, err)
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(f.store.Path(rel), old, old))
	_, err = f.store.Save("fresh/students.csv", []byte("y"))
	require.NoError(t, err)

	removed := f.svc.Cleanup()
	require.Equal(t, []string{filepath.Join("old", "students.csv")}, removed)
}

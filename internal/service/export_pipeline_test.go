package service

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/course-export/internal/backend"
	"github.com/noah-isme/course-export/internal/models"
	"github.com/noah-isme/course-export/pkg/export"
	"github.com/noah-isme/course-export/pkg/jobs"
	"github.com/noah-isme/course-export/pkg/storage"
)

type remoteExporterStub struct {
	fn    func(ctx context.Context, courseID int64) (*backend.Payload, error)
	calls int
}

func (s *remoteExporterStub) ExportStudents(ctx context.Context, courseID int64) (*backend.Payload, error) {
	s.calls++
	return s.fn(ctx, courseID)
}

type manualExporterStub struct {
	mu     sync.Mutex
	fn     func(ctx context.Context, courseID int64, token string) (*backend.Payload, error)
	calls  int
	tokens []string
}

func (s *manualExporterStub) Export(ctx context.Context, courseID int64, token string) (*backend.Payload, error) {
	s.mu.Lock()
	s.calls++
	s.tokens = append(s.tokens, token)
	s.mu.Unlock()
	return s.fn(ctx, courseID, token)
}

type failingStore struct {
	failures int
	saved    []string
}

func (s *failingStore) Save(filename string, data []byte) (string, error) {
	if s.failures > 0 {
		s.failures--
		return "", errors.New("disk full")
	}
	s.saved = append(s.saved, filename)
	return filename, nil
}

type observerStub struct {
	mu       sync.Mutex
	attempts map[string]int
	final    []string
}

func (o *observerStub) ObserveTierAttempt(tier string, err error, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.attempts == nil {
		o.attempts = map[string]int{}
	}
	o.attempts[tier]++
}

func (o *observerStub) ObservePipeline(tier string, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.final = append(o.final, tier)
}

func statusFailure(ctx context.Context, courseID int64, token string) (*backend.Payload, error) {
	return nil, &backend.StatusError{Status: 500, Message: "internal error"}
}

func newPipelineForTest(t *testing.T, source courseSource, remote remoteExporter, manual manualExporter, store artifactStore, timeout time.Duration) *ExportPipeline {
	t.Helper()
	collector := NewCollector(source, jobs.NewPool(2), zap.NewNop())
	return NewExportPipeline(collector, remote, manual, nil, store, nil, PipelineConfig{RemoteTimeout: timeout}, zap.NewNop())
}

func TestExportPipelineLocalDirect(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	remote := &remoteExporterStub{fn: func(ctx context.Context, courseID int64) (*backend.Payload, error) {
		return nil, errors.New("should not be called")
	}}
	observer := &observerStub{}
	collector := NewCollector(newCourseSourceStub(), jobs.NewPool(2), zap.NewNop())
	pipeline := NewExportPipeline(collector, remote, nil, nil, store, observer, PipelineConfig{RemoteTimeout: time.Second}, nil)

	result, err := pipeline.Run(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, TierLocalDirect, result.Tier)
	require.Equal(t, models.ExportFormatCSV, result.Format)
	require.Equal(t, "students_CS101_Intro_to_Go.csv", result.Filename)
	require.Len(t, result.Attempts, 1)
	require.Empty(t, result.Attempts[0].Error)
	require.Zero(t, remote.calls)
	require.Equal(t, []string{TierLocalDirect}, observer.final)

	body := string(result.Data)
	require.Contains(t, body, `"Ada Lovelace"`)
	require.Contains(t, body, `"8/10"`)
	require.Contains(t, body, `"Not submitted"`)

	onDisk, err := os.ReadFile(store.Path(result.RelPath))
	require.NoError(t, err)
	require.Equal(t, result.Data, onDisk)
}

func TestExportPipelineRemoteWorkbook(t *testing.T) {
	source := newCourseSourceStub()
	source.courseErr = errors.New("course service down")
	workbook, err := export.NewXLSXExporter().Render(export.Dataset{Headers: []string{"Student ID"}, Rows: [][]string{{"7"}}})
	require.NoError(t, err)
	remote := &remoteExporterStub{fn: func(ctx context.Context, courseID int64) (*backend.Payload, error) {
		return &backend.Payload{Data: workbook, ContentType: models.ExportFormatXLSX.ContentType()}, nil
	}}

	pipeline := newPipelineForTest(t, source, remote, nil, &failingStore{}, time.Second)
	result, err := pipeline.Run(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, TierRemoteExport, result.Tier)
	require.Equal(t, models.ExportFormatXLSX, result.Format)
	require.Equal(t, "students_42_course.xlsx", result.Filename)
	require.Len(t, result.Attempts, 2)
	require.Contains(t, result.Attempts[0].Error, "course service down")
}

func TestExportPipelineRejectsUnusableWorkbook(t *testing.T) {
	source := newCourseSourceStub()
	source.rosterErr = errors.New("roster down")
	remote := &remoteExporterStub{fn: func(ctx context.Context, courseID int64) (*backend.Payload, error) {
		return &backend.Payload{Data: []byte{0x00, 0x01, 0x02, 0x03}, ContentType: "application/octet-stream"}, nil
	}}
	manual := &manualExporterStub{fn: func(ctx context.Context, courseID int64, token string) (*backend.Payload, error) {
		return &backend.Payload{Data: []byte("student_id,name\n7,Ada\n"), ContentType: "text/csv"}, nil
	}}

	pipeline := newPipelineForTest(t, source, remote, manual, &failingStore{}, time.Second)
	ctx := backend.WithToken(context.Background(), "opaque-token")
	result, err := pipeline.Run(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, TierManualFetch, result.Tier)
	require.Equal(t, models.ExportFormatCSV, result.Format)
	require.Contains(t, result.Attempts[1].Error, "unusable workbook")
	require.Equal(t, []string{"opaque-token"}, manual.tokens)
}

func TestExportPipelineFallsBackToLocalXML(t *testing.T) {
	source := newCourseSourceStub()
	source.courseErr = errors.New("course service down")
	remote := &remoteExporterStub{fn: func(ctx context.Context, courseID int64) (*backend.Payload, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	manual := &manualExporterStub{fn: statusFailure}
	store := &failingStore{}

	pipeline := newPipelineForTest(t, source, remote, manual, store, 20*time.Millisecond)
	result, err := pipeline.Run(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, TierLocalXML, result.Tier)
	require.Equal(t, models.ExportFormatXLS, result.Format)
	require.Equal(t, "students_42_course.xls", result.Filename)
	require.NotEmpty(t, result.Data)
	require.True(t, strings.HasPrefix(string(result.Data), "<?xml"))
	require.Contains(t, string(result.Data), "Ada Lovelace")

	require.Len(t, result.Attempts, 4)
	require.Contains(t, result.Attempts[1].Error, ErrRemoteTimeout.Error())
	require.Contains(t, result.Attempts[2].Error, "500")
	require.Empty(t, result.Attempts[3].Error)
	require.Len(t, store.saved, 1)
}

func TestExportPipelineRemoteTimeoutDoesNotBlock(t *testing.T) {
	const unit = 40 * time.Millisecond
	source := newCourseSourceStub()
	source.courseErr = errors.New("course service down")

	cancelled := make(chan error, 1)
	remote := &remoteExporterStub{fn: func(ctx context.Context, courseID int64) (*backend.Payload, error) {
		select {
		case <-ctx.Done():
			cancelled <- ctx.Err()
			return nil, ctx.Err()
		case <-time.After(7 * unit):
			cancelled <- nil
			return &backend.Payload{Data: []byte("late,data\n"), ContentType: "text/csv"}, nil
		}
	}}
	manual := &manualExporterStub{fn: func(ctx context.Context, courseID int64, token string) (*backend.Payload, error) {
		return &backend.Payload{Data: []byte("student_id\n7\n"), ContentType: "text/csv"}, nil
	}}

	pipeline := newPipelineForTest(t, source, remote, manual, &failingStore{}, unit)
	started := time.Now()
	result, err := pipeline.Run(context.Background(), 42)
	require.NoError(t, err)
	require.Less(t, time.Since(started), 5*unit)
	require.Equal(t, TierManualFetch, result.Tier)
	require.Equal(t, 1, manual.calls)

	select {
	case err := <-cancelled:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("remote export was not cancelled")
	}
}

func TestExportPipelineSurfacesBackendErrorDocument(t *testing.T) {
	source := newCourseSourceStub()
	source.courseErr = errors.New("course service down")
	remote := &remoteExporterStub{fn: func(ctx context.Context, courseID int64) (*backend.Payload, error) {
		return nil, backend.ErrEmptyPayload
	}}
	manual := &manualExporterStub{fn: func(ctx context.Context, courseID int64, token string) (*backend.Payload, error) {
		return nil, &backend.PayloadError{Message: "Course not found"}
	}}

	pipeline := newPipelineForTest(t, source, remote, manual, &failingStore{}, time.Second)
	result, err := pipeline.Run(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, TierLocalXML, result.Tier)
	require.Contains(t, result.Attempts[1].Error, "empty export payload")
	require.Contains(t, result.Attempts[2].Error, "Course not found")
}

func TestExportPipelineReusesCompleteSnapshot(t *testing.T) {
	source := newCourseSourceStub()
	store := &failingStore{failures: 1}

	pipeline := newPipelineForTest(t, source, nil, nil, store, time.Second)
	result, err := pipeline.Run(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, TierLocalXML, result.Tier)
	require.Equal(t, "students_CS101_Intro_to_Go.xls", result.Filename)
	require.Equal(t, 1, source.courseCalls)
	require.Contains(t, result.Attempts[0].Error, "disk full")
}

func TestExportPipelineExhausted(t *testing.T) {
	source := newCourseSourceStub()
	source.courseErr = errors.New("course service down")
	remote := &remoteExporterStub{fn: func(ctx context.Context, courseID int64) (*backend.Payload, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	manual := &manualExporterStub{fn: statusFailure}
	observer := &observerStub{}
	collector := NewCollector(source, nil, nil)
	pipeline := NewExportPipeline(collector, remote, manual, nil, &failingStore{failures: 10}, observer, PipelineConfig{RemoteTimeout: 10 * time.Millisecond}, nil)

	result, err := pipeline.Run(context.Background(), 42)
	require.Nil(t, result)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Len(t, exhausted.Failures, 4)
	require.ErrorIs(t, err, ErrRemoteTimeout)

	var status *backend.StatusError
	require.ErrorAs(t, err, &status)
	require.Equal(t, 500, status.Status)

	attempts := exhausted.Attempts()
	require.Equal(t, TierLocalXML, attempts[3].Tier)
	require.Contains(t, attempts[3].Error, "disk full")
	require.Equal(t, []string{""}, observer.final)
	require.Equal(t, 1, observer.attempts[TierManualFetch])
}

func TestExportPipelineStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pipeline := newPipelineForTest(t, newCourseSourceStub(), nil, nil, &failingStore{}, time.Second)
	_, err := pipeline.Run(ctx, 42)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSanitizeFilename(t *testing.T) {
	require.Equal(t, "Intro_to_Go", sanitizeFilename("  Intro to Go! ", "x"))
	require.Equal(t, "a-b_c", sanitizeFilename("a-b / c", "x"))
	require.Equal(t, "fallback", sanitizeFilename(" ../ ", "fallback"))
	require.Equal(t, "Études_2024", sanitizeFilename("Études 2024", "x"))
}

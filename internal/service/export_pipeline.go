package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/noah-isme/course-export/internal/backend"
	"github.com/noah-isme/course-export/internal/models"
	"github.com/noah-isme/course-export/internal/report"
	"github.com/noah-isme/course-export/pkg/export"
)

// Export strategies, in the order they are tried.
const (
	TierLocalDirect  = "local-direct"
	TierRemoteExport = "remote-export"
	TierManualFetch  = "manual-fetch"
	TierLocalXML     = "local-xml"
)

// ErrRemoteTimeout marks a remote export that lost the race against its deadline.
var ErrRemoteTimeout = errors.New("remote export timed out")

type remoteExporter interface {
	ExportStudents(ctx context.Context, courseID int64) (*backend.Payload, error)
}

type manualExporter interface {
	Export(ctx context.Context, courseID int64, token string) (*backend.Payload, error)
}

type tokenSource interface {
	Token(ctx context.Context) string
}

type artifactStore interface {
	Save(filename string, data []byte) (string, error)
}

type pipelineObserver interface {
	ObserveTierAttempt(tier string, err error, duration time.Duration)
	ObservePipeline(tier string, duration time.Duration)
}

// PipelineConfig tunes the export pipeline.
type PipelineConfig struct {
	RemoteTimeout time.Duration
}

// Artifact is a delivered export file.
type Artifact struct {
	Tier     string
	Filename string
	RelPath  string
	Format   models.ExportFormat
	Data     []byte
}

// PipelineResult is a successful run with the history of every attempt.
type PipelineResult struct {
	Artifact
	Attempts []models.TierAttempt
}

// TierError is one failed strategy.
type TierError struct {
	Tier string
	Err  error
}

func (e TierError) Error() string {
	return e.Tier + ": " + e.Err.Error()
}

func (e TierError) Unwrap() error {
	return e.Err
}

// ExhaustedError is returned when every strategy failed. It keeps each failure.
type ExhaustedError struct {
	CourseID int64
	Failures []TierError
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Error())
	}
	return fmt.Sprintf("export of course %d failed on every tier: %s", e.CourseID, strings.Join(parts, "; "))
}

// Unwrap exposes the tier failures to errors.Is and errors.As.
func (e *ExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f)
	}
	return errs
}

// Attempts converts the failures into job history entries.
func (e *ExhaustedError) Attempts() []models.TierAttempt {
	attempts := make([]models.TierAttempt, 0, len(e.Failures))
	for _, f := range e.Failures {
		attempts = append(attempts, models.TierAttempt{Tier: f.Tier, Error: f.Err.Error()})
	}
	return attempts
}

// ExportPipeline produces a course export, falling back through
// progressively degraded strategies until one delivers a file.
type ExportPipeline struct {
	collector *Collector
	remote    remoteExporter
	manual    manualExporter
	tokens    tokenSource
	store     artifactStore
	csv       export.Renderer
	xml       export.Renderer
	observer  pipelineObserver
	tracer    trace.Tracer
	logger    *zap.Logger
	cfg       PipelineConfig
}

// NewExportPipeline wires the pipeline. tokens may be nil, in which case the
// manual tier reads the token from the request context.
func NewExportPipeline(collector *Collector, remote remoteExporter, manual manualExporter, tokens tokenSource, store artifactStore, observer pipelineObserver, cfg PipelineConfig, logger *zap.Logger) *ExportPipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RemoteTimeout <= 0 {
		cfg.RemoteTimeout = 6 * time.Second
	}
	return &ExportPipeline{
		collector: collector,
		remote:    remote,
		manual:    manual,
		tokens:    tokens,
		store:     store,
		csv:       export.NewCSVExporter(),
		xml:       export.NewSpreadsheetMLExporter(),
		observer:  observer,
		tracer:    otel.Tracer("github.com/noah-isme/course-export/internal/service/export_pipeline"),
		logger:    logger,
		cfg:       cfg,
	}
}

type pipelineRun struct {
	id       string
	courseID int64
	input    *report.Input
	complete bool
}

type tier struct {
	name string
	run  func(ctx context.Context, r *pipelineRun) (*Artifact, error)
}

func (p *ExportPipeline) tiers() []tier {
	return []tier{
		{TierLocalDirect, p.localDirect},
		{TierRemoteExport, p.remoteExport},
		{TierManualFetch, p.manualFetch},
		{TierLocalXML, p.localXML},
	}
}

// Run exports one course. Tiers run strictly in order and the first that
// delivers wins; if all fail the error is an *ExhaustedError.
func (p *ExportPipeline) Run(ctx context.Context, courseID int64) (*PipelineResult, error) {
	ctx, span := p.tracer.Start(ctx, "export.pipeline", trace.WithAttributes(attribute.Int64("course.id", courseID)))
	defer span.End()

	started := time.Now()
	r := &pipelineRun{id: uuid.NewString(), courseID: courseID}
	logger := p.logger.With(zap.Int64("course_id", courseID), zap.String("run_id", r.id))

	var (
		attempts []models.TierAttempt
		failures []TierError
	)
	for _, t := range p.tiers() {
		if err := ctx.Err(); err != nil {
			failures = append(failures, TierError{Tier: t.name, Err: err})
			attempts = append(attempts, models.TierAttempt{Tier: t.name, Error: err.Error()})
			continue
		}

		art, elapsed, err := p.attempt(ctx, t, r)
		attempt := models.TierAttempt{Tier: t.name, DurationMs: elapsed.Milliseconds()}
		if err != nil {
			attempt.Error = err.Error()
			attempts = append(attempts, attempt)
			failures = append(failures, TierError{Tier: t.name, Err: err})
			logger.Warn("export tier failed, falling back", zap.String("tier", t.name), zap.Duration("elapsed", elapsed), zap.Error(err))
			continue
		}
		attempts = append(attempts, attempt)

		logger.Info("export delivered", zap.String("tier", t.name), zap.String("file", art.RelPath), zap.Int("bytes", len(art.Data)))
		span.SetAttributes(attribute.String("export.tier", t.name))
		span.SetStatus(codes.Ok, "delivered")
		p.observePipeline(t.name, time.Since(started))
		return &PipelineResult{Artifact: *art, Attempts: attempts}, nil
	}

	exhausted := &ExhaustedError{CourseID: courseID, Failures: failures}
	logger.Error("export failed on every tier", zap.Error(exhausted))
	span.RecordError(exhausted)
	span.SetStatus(codes.Error, "all tiers failed")
	p.observePipeline("", time.Since(started))
	return nil, exhausted
}

func (p *ExportPipeline) attempt(ctx context.Context, t tier, r *pipelineRun) (*Artifact, time.Duration, error) {
	ctx, span := p.tracer.Start(ctx, "export.tier."+t.name)
	defer span.End()

	start := time.Now()
	art, err := t.run(ctx, r)
	elapsed := time.Since(start)

	if p.observer != nil {
		p.observer.ObserveTierAttempt(t.name, err, elapsed)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "tier failed")
		return nil, elapsed, err
	}
	span.SetStatus(codes.Ok, "delivered")
	return art, elapsed, nil
}

func (p *ExportPipeline) observePipeline(tier string, d time.Duration) {
	if p.observer != nil {
		p.observer.ObservePipeline(tier, d)
	}
}

func (p *ExportPipeline) localDirect(ctx context.Context, r *pipelineRun) (*Artifact, error) {
	in, err := p.collector.Collect(ctx, r.courseID, false)
	r.input = in
	if err != nil {
		return nil, err
	}
	r.complete = true

	data, err := p.csv.Render(report.Build(*in))
	if err != nil {
		return nil, fmt.Errorf("encode csv: %w", err)
	}
	return p.deliver(r, TierLocalDirect, models.ExportFormatCSV, data)
}

// remoteExport races the backend export against the configured timeout and
// cancels the request when the timer wins.
func (p *ExportPipeline) remoteExport(ctx context.Context, r *pipelineRun) (*Artifact, error) {
	if p.remote == nil {
		return nil, errors.New("remote export not configured")
	}
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		payload *backend.Payload
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		payload, err := p.remote.ExportStudents(raceCtx, r.courseID)
		done <- outcome{payload: payload, err: err}
	}()

	timer := time.NewTimer(p.cfg.RemoteTimeout)
	defer timer.Stop()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		return p.deliverPayload(r, TierRemoteExport, res.payload)
	case <-timer.C:
		return nil, fmt.Errorf("%w after %s", ErrRemoteTimeout, p.cfg.RemoteTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *ExportPipeline) manualFetch(ctx context.Context, r *pipelineRun) (*Artifact, error) {
	if p.manual == nil {
		return nil, errors.New("manual export not configured")
	}
	token := backend.TokenFromContext(ctx)
	if p.tokens != nil {
		token = p.tokens.Token(ctx)
	}
	payload, err := p.manual.Export(ctx, r.courseID, token)
	if err != nil {
		return nil, err
	}
	return p.deliverPayload(r, TierManualFetch, payload)
}

// localXML rebuilds the report from a lenient collection, so it still
// produces a workbook of placeholders when nothing could be read.
func (p *ExportPipeline) localXML(ctx context.Context, r *pipelineRun) (*Artifact, error) {
	if !r.complete {
		in, err := p.collector.Collect(ctx, r.courseID, true)
		if err != nil {
			p.logger.Warn("rebuilding export from partial data", zap.Int64("course_id", r.courseID), zap.Error(err))
		}
		r.input = in
	}

	data, err := p.xml.Render(report.Build(*r.input))
	if err != nil {
		return nil, fmt.Errorf("encode spreadsheetml: %w", err)
	}
	return p.deliver(r, TierLocalXML, models.ExportFormatXLS, data)
}

// deliverPayload accepts a backend file only if it is CSV or a workbook excelize can open.
func (p *ExportPipeline) deliverPayload(r *pipelineRun, tierName string, payload *backend.Payload) (*Artifact, error) {
	if payload == nil || len(payload.Data) == 0 {
		return nil, backend.ErrEmptyPayload
	}
	if payload.IsCSV() {
		return p.deliver(r, tierName, models.ExportFormatCSV, payload.Data)
	}
	if _, err := export.ParseXLSX(payload.Data); err != nil {
		return nil, fmt.Errorf("unusable workbook: %w", err)
	}
	return p.deliver(r, tierName, models.ExportFormatXLSX, payload.Data)
}

func (p *ExportPipeline) deliver(r *pipelineRun, tierName string, format models.ExportFormat, data []byte) (*Artifact, error) {
	if len(data) == 0 {
		return nil, backend.ErrEmptyPayload
	}
	course := placeholderCourse(r.courseID)
	if r.input != nil {
		course = r.input.Course
	}
	filename := ExportFilename(course, format)
	art := &Artifact{Tier: tierName, Filename: filename, Format: format, Data: data}
	if p.store == nil {
		return art, nil
	}
	relPath, err := p.store.Save(path.Join(r.id, filename), data)
	if err != nil {
		return nil, fmt.Errorf("store artifact: %w", err)
	}
	art.RelPath = relPath
	return art, nil
}

// ExportFilename builds students_<code>_<title>.<ext>.
func ExportFilename(course models.Course, format models.ExportFormat) string {
	code := sanitizeFilename(course.Code, fmt.Sprintf("%d", course.ID))
	title := sanitizeFilename(course.Title, "course")
	return fmt.Sprintf("students_%s_%s.%s", code, title, format.Extension())
}

// sanitizeFilename keeps letters, digits, dashes and underscores and joins
// everything else into single underscores.
func sanitizeFilename(raw, fallback string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		default:
			pendingSep = true
		}
	}
	result := b.String()
	if result == "" {
		return fallback
	}
	if runes := []rune(result); len(runes) > 100 {
		result = string(runes[:100])
	}
	return result
}

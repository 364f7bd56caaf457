package service

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/noah-isme/course-export/internal/models"
	"github.com/noah-isme/course-export/internal/report"
	"github.com/noah-isme/course-export/pkg/jobs"
)

type courseSource interface {
	Course(ctx context.Context, courseID int64) (*models.Course, error)
	Assignments(ctx context.Context, courseID int64) ([]models.Assignment, error)
	Enrollments(ctx context.Context, courseID int64) ([]models.Enrollment, error)
	Submissions(ctx context.Context, assignmentID int64) ([]models.Record, error)
	Student(ctx context.Context, studentID int64) (*models.Student, error)
	AttendanceSummary(ctx context.Context, courseID int64) ([]models.AttendanceSummaryRow, error)
}

// Collector gathers everything a course report needs. Per-assignment and
// per-student lookups run on a bounded pool and their failures only degrade
// the affected cells.
type Collector struct {
	source courseSource
	pool   *jobs.Pool
	logger *zap.Logger
}

// NewCollector constructs a Collector.
func NewCollector(source courseSource, pool *jobs.Pool, logger *zap.Logger) *Collector {
	if pool == nil {
		pool = jobs.NewPool(1)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{source: source, pool: pool, logger: logger}
}

// Collect fetches a course snapshot. The returned input is never nil and
// holds whatever could be read. The error is non-nil when the course, its
// assignments or its roster could not be loaded; the remaining lookups are
// then skipped unless lenient is set.
func (c *Collector) Collect(ctx context.Context, courseID int64, lenient bool) (*report.Input, error) {
	in := &report.Input{
		Course:      placeholderCourse(courseID),
		Submissions: make(map[int64][]models.Record),
		Profiles:    make(map[int64]models.Student),
	}

	var (
		course     *models.Course
		attendance []models.AttendanceSummaryRow
	)
	base := []func(ctx context.Context) error{
		func(ctx context.Context) (err error) {
			course, err = c.source.Course(ctx, courseID)
			return wrapStep("course", err)
		},
		func(ctx context.Context) (err error) {
			in.Assignments, err = c.source.Assignments(ctx, courseID)
			return wrapStep("assignments", err)
		},
		func(ctx context.Context) (err error) {
			in.Roster, err = c.source.Enrollments(ctx, courseID)
			return wrapStep("roster", err)
		},
		func(ctx context.Context) (err error) {
			attendance, err = c.source.AttendanceSummary(ctx, courseID)
			return wrapStep("attendance", err)
		},
	}
	errs := c.pool.Run(ctx, len(base), func(ctx context.Context, i int) error {
		return base[i](ctx)
	})

	if course != nil {
		in.Course = *course
	}
	if errs[3] != nil {
		c.logger.Warn("attendance summary unavailable, using zero counts", zap.Int64("course_id", courseID), zap.Error(errs[3]))
	} else {
		in.Attendance = attendance
	}

	required := multierr.Combine(errs[0], errs[1], errs[2])
	if required != nil && !lenient {
		return in, required
	}
	if ctx.Err() != nil {
		return in, multierr.Append(required, ctx.Err())
	}

	c.collectSubmissions(ctx, in)
	c.collectProfiles(ctx, in)
	return in, required
}

func (c *Collector) collectSubmissions(ctx context.Context, in *report.Input) {
	results := make([][]models.Record, len(in.Assignments))
	errs := c.pool.Run(ctx, len(in.Assignments), func(ctx context.Context, i int) error {
		subs, err := c.source.Submissions(ctx, in.Assignments[i].ID)
		results[i] = subs
		return err
	})
	for i, assignment := range in.Assignments {
		if errs[i] != nil {
			c.logger.Warn("submissions unavailable, cells render as not submitted",
				zap.Int64("assignment_id", assignment.ID), zap.Error(errs[i]))
			continue
		}
		in.Submissions[assignment.ID] = results[i]
	}
}

func (c *Collector) collectProfiles(ctx context.Context, in *report.Input) {
	ids := make([]int64, 0, len(in.Roster))
	seen := make(map[int64]struct{}, len(in.Roster))
	for _, enrollment := range in.Roster {
		if _, ok := seen[enrollment.StudentID]; ok {
			continue
		}
		seen[enrollment.StudentID] = struct{}{}
		ids = append(ids, enrollment.StudentID)
	}

	results := make([]*models.Student, len(ids))
	errs := c.pool.Run(ctx, len(ids), func(ctx context.Context, i int) error {
		student, err := c.source.Student(ctx, ids[i])
		results[i] = student
		return err
	})
	for i, id := range ids {
		if errs[i] != nil || results[i] == nil {
			c.logger.Warn("student profile unavailable, using roster identity", zap.Int64("student_id", id), zap.Error(errs[i]))
			continue
		}
		in.Profiles[id] = *results[i]
	}
}

func placeholderCourse(courseID int64) models.Course {
	return models.Course{ID: courseID, Code: fmt.Sprintf("%d", courseID), Title: "course"}
}

func wrapStep(step string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("load %s: %w", step, err)
}

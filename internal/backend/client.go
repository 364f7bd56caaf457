// Package backend talks to the course-management REST backend.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-export/internal/models"
	"github.com/noah-isme/course-export/pkg/middleware/requestid"
)

// submissionPageLimit is the largest page the submissions listing serves.
const submissionPageLimit = 200

// maxSubmissionPages stops paging a backend that ignores offset.
const maxSubmissionPages = 100

// CallObserver receives timing for every backend request.
type CallObserver interface {
	ObserveBackendCall(endpoint string, status int, duration time.Duration)
}

// Config locates the backend.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client issues JSON requests against the backend. The bearer token comes
// from the request context when present, else from Config.Token.
type Client struct {
	baseURL  string
	token    string
	http     *http.Client
	observer CallObserver
	logger   *zap.Logger
}

// NewClient constructs a backend client.
func NewClient(cfg Config, observer CallObserver, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		token:    cfg.Token,
		http:     &http.Client{Timeout: cfg.Timeout},
		observer: observer,
		logger:   logger,
	}
}

// Token resolves the bearer token for ctx.
func (c *Client) Token(ctx context.Context) string {
	if token := TokenFromContext(ctx); token != "" {
		return token
	}
	return c.token
}

// Course fetches course metadata.
func (c *Client) Course(ctx context.Context, courseID int64) (*models.Course, error) {
	var course models.Course
	path := fmt.Sprintf("/course-management/courses/%d", courseID)
	if err := c.getJSON(ctx, "course", path, nil, &course); err != nil {
		return nil, err
	}
	if course.ID == 0 {
		course.ID = courseID
	}
	return &course, nil
}

// Assignments lists a course's assignments.
func (c *Client) Assignments(ctx context.Context, courseID int64) ([]models.Assignment, error) {
	var assignments []models.Assignment
	path := fmt.Sprintf("/course-management/courses/%d/assignments", courseID)
	if err := c.getJSON(ctx, "assignments", path, nil, &assignments); err != nil {
		return nil, err
	}
	return assignments, nil
}

// Enrollments lists the course roster.
func (c *Client) Enrollments(ctx context.Context, courseID int64) ([]models.Enrollment, error) {
	var roster []models.Enrollment
	path := fmt.Sprintf("/course-management/enrollments/course/%d", courseID)
	if err := c.getJSON(ctx, "enrollments", path, nil, &roster); err != nil {
		return nil, err
	}
	return roster, nil
}

// Submissions lists every submission of an assignment with feedback included,
// following offset pages until one comes back short.
func (c *Client) Submissions(ctx context.Context, assignmentID int64) ([]models.Record, error) {
	var records []models.Record
	for page := 0; page < maxSubmissionPages; page++ {
		query := url.Values{}
		query.Set("assignment_id", strconv.FormatInt(assignmentID, 10))
		query.Set("include_feedback", "true")
		query.Set("mine_only", "false")
		query.Set("limit", strconv.Itoa(submissionPageLimit))
		query.Set("offset", strconv.Itoa(page*submissionPageLimit))

		var batch []models.Record
		if err := c.getJSON(ctx, "submissions", "/submissions", query, &batch); err != nil {
			return nil, err
		}
		records = append(records, batch...)
		if len(batch) < submissionPageLimit {
			return records, nil
		}
	}
	c.logger.Warn("submission listing truncated",
		zap.Int64("assignment_id", assignmentID), zap.Int("records", len(records)))
	return records, nil
}

// Student fetches a student profile.
func (c *Client) Student(ctx context.Context, studentID int64) (*models.Student, error) {
	var student models.Student
	path := fmt.Sprintf("/student-management/students/%d", studentID)
	if err := c.getJSON(ctx, "student", path, nil, &student); err != nil {
		return nil, err
	}
	if student.ID == 0 {
		student.ID = studentID
	}
	return &student, nil
}

// AttendanceSummary fetches per-student attendance counts for a course.
func (c *Client) AttendanceSummary(ctx context.Context, courseID int64) ([]models.AttendanceSummaryRow, error) {
	var rows []models.AttendanceSummaryRow
	path := fmt.Sprintf("/course-management/courses/%d/attendance/summary", courseID)
	if err := c.getJSON(ctx, "attendance_summary", path, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// TopStudents returns the instructor analytics ranking for a course.
func (c *Client) TopStudents(ctx context.Context, courseID int64) ([]models.TopStudent, error) {
	query := url.Values{}
	query.Set("course_id", strconv.FormatInt(courseID, 10))
	var doc struct {
		TopStudents []models.TopStudent `json:"topStudents"`
	}
	if err := c.getJSON(ctx, "analytics", "/instructor/analytics", query, &doc); err != nil {
		return nil, err
	}
	return doc.TopStudents, nil
}

// QuizEntries lists the instructor's quiz entries, optionally for one course.
func (c *Client) QuizEntries(ctx context.Context, courseID *int64) ([]models.QuizEntry, error) {
	query := url.Values{}
	if courseID != nil {
		query.Set("course_id", strconv.FormatInt(*courseID, 10))
	}
	var entries []models.QuizEntry
	if err := c.getJSON(ctx, "quiz_entries", "/instructor/quiz-entries", query, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ExportStudents calls the backend's bulk export.
func (c *Client) ExportStudents(ctx context.Context, courseID int64) (*Payload, error) {
	req, err := newExportRequest(ctx, c.baseURL, courseID)
	if err != nil {
		return nil, err
	}
	c.decorate(ctx, req)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe("export_students", 0, start)
		return nil, fmt.Errorf("export students: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	c.observe("export_students", resp.StatusCode, start)
	return readPayload(resp)
}

func (c *Client) getJSON(ctx context.Context, endpoint, path string, query url.Values, dest any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	c.decorate(ctx, req)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(endpoint, 0, start)
		return fmt.Errorf("%s request: %w", endpoint, err)
	}
	defer resp.Body.Close() //nolint:errcheck
	c.observe(endpoint, resp.StatusCode, start)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &StatusError{Status: resp.StatusCode, Message: ErrorMessage(body)}
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(dest); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

func (c *Client) decorate(ctx context.Context, req *http.Request) {
	if token := c.Token(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if id := requestid.FromContext(ctx); id != "" {
		req.Header.Set(requestid.HeaderKey, id)
	}
}

func (c *Client) observe(endpoint string, status int, start time.Time) {
	duration := time.Since(start)
	if c.observer != nil {
		c.observer.ObserveBackendCall(endpoint, status, duration)
	}
	c.logger.Debug("backend call", zap.String("endpoint", endpoint), zap.Int("status", status), zap.Duration("latency", duration))
}

func newExportRequest(ctx context.Context, baseURL string, courseID int64) (*http.Request, error) {
	query := url.Values{}
	query.Set("format", "excel")
	query.Set("include_grades", "true")
	query.Set("include_assignments", "true")
	query.Set("course_id", strconv.FormatInt(courseID, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/instructor/export/students?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build export request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet, text/csv, application/json")
	return req, nil
}

// Package report assembles course data into format-agnostic tables.
package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/noah-isme/course-export/internal/aggregate"
	"github.com/noah-isme/course-export/internal/models"
	"github.com/noah-isme/course-export/pkg/export"
)

// NotSubmitted marks a grade cell without a numeric grade for the student.
const NotSubmitted = "Not submitted"

var (
	// IdentityHeaders open every student row.
	IdentityHeaders = []string{"Student ID", "Name", "Email", "Phone"}
	// SummaryHeaders follow identity and precede the assignment columns.
	SummaryHeaders = []string{"Average Grade (%)", "Attendance (%)", "Present", "Absent", "Late", "Excused", "Total Lectures"}
)

// Input is everything collected for one course export. Submissions are keyed
// by assignment id and Profiles by student id; both may be partial.
type Input struct {
	Course      models.Course
	Roster      []models.Enrollment
	Assignments []models.Assignment
	Submissions map[int64][]models.Record
	Profiles    map[int64]models.Student
	Attendance  []models.AttendanceSummaryRow
}

// Build returns one row per roster entry with one grade cell per assignment.
func Build(in Input) export.Dataset {
	headers := make([]string, 0, len(IdentityHeaders)+len(SummaryHeaders)+len(in.Assignments))
	headers = append(headers, IdentityHeaders...)
	headers = append(headers, SummaryHeaders...)
	for _, assignment := range in.Assignments {
		headers = append(headers, assignmentTitle(assignment))
	}

	rows := make([][]string, 0, len(in.Roster))
	for _, enrollment := range in.Roster {
		rows = append(rows, buildRow(in, enrollment))
	}

	return export.Dataset{Title: courseTitle(in.Course), Headers: headers, Rows: rows}
}

func buildRow(in Input, enrollment models.Enrollment) []string {
	id := enrollment.StudentID
	profile, hasProfile := in.Profiles[id]

	name := fmt.Sprintf("Student #%d", id)
	switch {
	case hasProfile && strings.TrimSpace(profile.FullName) != "":
		name = profile.FullName
	case strings.TrimSpace(enrollment.StudentName) != "":
		name = enrollment.StudentName
	}
	var email, phone string
	if hasProfile {
		email, phone = profile.Email, profile.Phone
	}

	average := aggregate.WeightedAveragePercent(id, in.Assignments, in.Submissions)
	attendance := aggregate.AttendanceFor(id, in.Attendance)

	row := make([]string, 0, len(IdentityHeaders)+len(SummaryHeaders)+len(in.Assignments))
	row = append(row,
		strconv.FormatInt(id, 10),
		Flatten(name),
		Flatten(email),
		Flatten(phone),
		FormatPercent(average),
		FormatPercent(attendance.Percent),
		strconv.Itoa(attendance.Present),
		strconv.Itoa(attendance.Absent),
		strconv.Itoa(attendance.Late),
		strconv.Itoa(attendance.Excused),
		strconv.Itoa(attendance.Total),
	)
	for _, assignment := range in.Assignments {
		row = append(row, GradeCell(id, assignment, in.Submissions[assignment.ID]))
	}
	return row
}

// GradeCell renders "<grade>/<max>" or NotSubmitted.
func GradeCell(studentID int64, assignment models.Assignment, subs []models.Record) string {
	grade, ok := aggregate.GradeFor(studentID, subs)
	if !ok {
		return NotSubmitted
	}
	return formatNumber(grade) + "/" + formatNumber(assignment.MaxGrade)
}

// Metrics returns per-student figures for course-level averages.
func Metrics(in Input) []aggregate.StudentMetrics {
	metrics := make([]aggregate.StudentMetrics, 0, len(in.Roster))
	for _, enrollment := range in.Roster {
		id := enrollment.StudentID
		metrics = append(metrics, aggregate.StudentMetrics{
			StudentID:         id,
			CourseID:          in.Course.ID,
			GradePercent:      aggregate.WeightedAveragePercent(id, in.Assignments, in.Submissions),
			AttendancePercent: aggregate.AttendanceFor(id, in.Attendance).Percent,
		})
	}
	return metrics
}

// FormatPercent renders a percentage with one decimal.
func FormatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Flatten collapses a value to a single line of text.
func Flatten(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func assignmentTitle(a models.Assignment) string {
	if title := Flatten(a.Title); title != "" {
		return title
	}
	return fmt.Sprintf("Assignment #%d", a.ID)
}

func courseTitle(c models.Course) string {
	title := Flatten(c.Title)
	code := Flatten(c.Code)
	switch {
	case code != "" && title != "":
		return code + " " + title
	case title != "":
		return title
	default:
		return code
	}
}

package export

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

// AttendanceReport is the content of a single-student attendance document.
type AttendanceReport struct {
	StudentName   string
	StudentNumber string
	CourseTitle   string
	Present       int
	Absent        int
	Late          int
	Excused       int
	Total         int
	Percent       float64
	GeneratedAt   time.Time
}

var attendanceTemplate = template.Must(template.New("attendance").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Attendance Report - {{.StudentName}}</title>
<style>
body{font-family:Arial,Helvetica,sans-serif;margin:40px;color:#1f2933;background:#f8fafc}
.card{max-width:640px;margin:0 auto;background:#fff;border-radius:8px;padding:32px;box-shadow:0 2px 8px rgba(0,0,0,.08)}
h1{font-size:22px;margin:0 0 4px}
.meta{color:#64748b;font-size:13px;margin-bottom:24px}
table{width:100%;border-collapse:collapse}
th,td{padding:10px 12px;border-bottom:1px solid #e2e8f0;text-align:left}
th{background:#f1f5f9;font-size:13px;text-transform:uppercase;letter-spacing:.04em}
.rate{font-size:36px;font-weight:bold;color:{{.RateColor}};margin:24px 0 8px}
.footer{margin-top:24px;font-size:12px;color:#94a3b8}
</style>
</head>
<body>
<div class="card">
<h1>Attendance Report</h1>
<div class="meta">{{.StudentName}}{{if .StudentNumber}} ({{.StudentNumber}}){{end}}{{if .CourseTitle}} &middot; {{.CourseTitle}}{{end}}</div>
<div class="rate">{{.Rate}}%</div>
<table>
<tr><th>Status</th><th>Lectures</th></tr>
<tr><td>Present</td><td>{{.Present}}</td></tr>
<tr><td>Absent</td><td>{{.Absent}}</td></tr>
<tr><td>Late</td><td>{{.Late}}</td></tr>
<tr><td>Excused</td><td>{{.Excused}}</td></tr>
<tr><td><strong>Total</strong></td><td><strong>{{.Total}}</strong></td></tr>
</table>
<div class="footer">Generated {{.GeneratedAt}}</div>
</div>
</body>
</html>
`))

type attendanceView struct {
	StudentName   string
	StudentNumber string
	CourseTitle   string
	Present       int
	Absent        int
	Late          int
	Excused       int
	Total         int
	Rate          string
	RateColor     template.CSS
	GeneratedAt   string
}

// HTMLExporter renders standalone attendance documents with inline styling.
type HTMLExporter struct {
	policy *bluemonday.Policy
}

// NewHTMLExporter builds the HTML exporter.
func NewHTMLExporter() *HTMLExporter {
	return &HTMLExporter{policy: bluemonday.StrictPolicy()}
}

// RenderAttendance produces the document for one student.
func (e *HTMLExporter) RenderAttendance(report AttendanceReport) ([]byte, error) {
	generated := report.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}
	view := attendanceView{
		StudentName:   e.text(report.StudentName),
		StudentNumber: e.text(report.StudentNumber),
		CourseTitle:   e.text(report.CourseTitle),
		Present:       report.Present,
		Absent:        report.Absent,
		Late:          report.Late,
		Excused:       report.Excused,
		Total:         report.Total,
		Rate:          fmt.Sprintf("%.1f", report.Percent),
		RateColor:     rateColor(report.Percent),
		GeneratedAt:   generated.UTC().Format("2006-01-02 15:04 MST"),
	}
	if view.StudentName == "" {
		view.StudentName = "Unknown student"
	}

	buf := &bytes.Buffer{}
	if err := attendanceTemplate.Execute(buf, view); err != nil {
		return nil, fmt.Errorf("render attendance html: %w", err)
	}
	return buf.Bytes(), nil
}

// text strips markup; the template escapes the remaining characters itself.
func (e *HTMLExporter) text(raw string) string {
	return strings.TrimSpace(html.UnescapeString(e.policy.Sanitize(raw)))
}

func rateColor(percent float64) template.CSS {
	switch {
	case percent >= 90:
		return "#15803d"
	case percent >= 75:
		return "#ca8a04"
	default:
		return "#b91c1c"
	}
}

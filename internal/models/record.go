package models

// Record is a backend payload whose exact shape is not known up front.
// Numbers are decoded as json.Number so integral ids survive intact.
type Record map[string]any

// AttendanceSummaryRow holds one student's attendance counts for a course.
// Percentage is nil when the backend did not precompute it.
type AttendanceSummaryRow struct {
	StudentID     int64    `json:"student_id"`
	CourseID      int64    `json:"course_id"`
	TotalLectures int      `json:"total_lectures"`
	Present       int      `json:"present"`
	Absent        int      `json:"absent"`
	Late          int      `json:"late"`
	Excused       int      `json:"excused"`
	Percentage    *float64 `json:"percentage,omitempty"`
}

// TopStudent is an entry of the instructor analytics ranking. Grade is either
// a number or a "NN%" string depending on the backend version.
type TopStudent struct {
	Name        string `json:"name"`
	Grade       any    `json:"grade"`
	Submissions int    `json:"submissions"`
}

// QuizEntry is a locally entered quiz result.
type QuizEntry struct {
	ID        int64    `json:"id"`
	StudentID int64    `json:"student_id"`
	CourseID  *int64   `json:"course_id,omitempty"`
	Title     string   `json:"title"`
	QuizDate  string   `json:"quiz_date"`
	MaxGrade  *float64 `json:"max_grade,omitempty"`
	Grade     *float64 `json:"grade,omitempty"`
	Notes     string   `json:"notes,omitempty"`
}

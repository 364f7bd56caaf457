package models

// Student is the backend's student record (GET /student-management/students/{id}).
type Student struct {
	ID            int64  `json:"student_id"`
	StudentNumber string `json:"student_number"`
	FullName      string `json:"full_name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	Status        string `json:"status,omitempty"`
}

// Course describes a course and its display identity.
type Course struct {
	ID          int64  `json:"course_id"`
	Code        string `json:"code"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Assignment is one gradable item of a course.
type Assignment struct {
	ID       int64   `json:"assignment_id"`
	CourseID int64   `json:"course_id"`
	Title    string  `json:"title"`
	MaxGrade float64 `json:"max_grade"`
	Deadline string  `json:"deadline,omitempty"`
}

// Enrollment is a roster row returned for a course.
type Enrollment struct {
	EnrollmentID int64  `json:"enrollment_id"`
	CourseID     int64  `json:"course_id"`
	StudentID    int64  `json:"student_id"`
	StudentName  string `json:"student_name"`
	Status       string `json:"status"`
}

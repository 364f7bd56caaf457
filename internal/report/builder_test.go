package report

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-export/internal/models"
)

func sampleInput() Input {
	return Input{
		Course: models.Course{ID: 5, Code: "MATH101", Title: "Algebra"},
		Roster: []models.Enrollment{
			{StudentID: 1, StudentName: "Roster Name"},
			{StudentID: 2, StudentName: "Bea"},
			{StudentID: 3},
		},
		Assignments: []models.Assignment{
			{ID: 10, Title: "Quiz\n1", MaxGrade: 10},
			{ID: 11, Title: "Essay", MaxGrade: 20},
		},
		Submissions: map[int64][]models.Record{
			10: {{"student_id": 1, "grade": 8}, {"studentId": 2}},
			11: {{"student": map[string]any{"id": 1}, "score": 18}},
		},
		Profiles: map[int64]models.Student{
			1: {ID: 1, FullName: "O'Brien, Jr.", Email: "ob@example.edu", Phone: "555"},
		},
		Attendance: []models.AttendanceSummaryRow{
			{StudentID: 1, TotalLectures: 5, Present: 3, Absent: 1, Excused: 1},
		},
	}
}

func TestBuildShape(t *testing.T) {
	in := sampleInput()
	data := Build(in)

	require.Equal(t, "MATH101 Algebra", data.Title)
	require.Len(t, data.Headers, len(IdentityHeaders)+len(SummaryHeaders)+len(in.Assignments))
	require.Equal(t, "Quiz 1", data.Headers[11])
	require.Equal(t, "Essay", data.Headers[12])
	require.Len(t, data.Rows, len(in.Roster))
	for _, row := range data.Rows {
		require.Len(t, row, len(data.Headers))
	}
	require.NoError(t, data.Validate())
}

func TestBuildRowValues(t *testing.T) {
	data := Build(sampleInput())

	first := data.Rows[0]
	require.Equal(t, []string{"1", "O'Brien, Jr.", "ob@example.edu", "555", "86.7", "80.0", "3", "1", "0", "1", "5", "8/10", "18/20"}, first)

	second := data.Rows[1]
	require.Equal(t, "Bea", second[1])
	require.Equal(t, "", second[2])
	require.Equal(t, "0.0", second[4])
	require.Equal(t, NotSubmitted, second[11])
	require.Equal(t, NotSubmitted, second[12])

	third := data.Rows[2]
	require.Equal(t, "Student #3", third[1])
	require.Equal(t, "0", third[10])
}

func TestGradeCellFractional(t *testing.T) {
	cell := GradeCell(4, models.Assignment{ID: 1, MaxGrade: 12.5}, []models.Record{{"student_id": "4", "grade": "9.25"}})
	require.Equal(t, "9.25/12.5", cell)
}

func TestMetrics(t *testing.T) {
	metrics := Metrics(sampleInput())
	require.Len(t, metrics, 3)
	require.Equal(t, int64(5), metrics[0].CourseID)
	require.InDelta(t, 86.67, metrics[0].GradePercent, 0.01)
	require.Equal(t, 80.0, metrics[0].AttendancePercent)
}

func TestQuizEntries(t *testing.T) {
	grade, maxGrade := 7.5, 10.0
	data := QuizEntries([]models.QuizEntry{
		{StudentID: 2, QuizDate: "2024-03-02", Title: "Pop quiz", Grade: &grade, MaxGrade: &maxGrade},
		{StudentID: 1, QuizDate: "2024-03-01", Title: "Warm\r\nup", Notes: "late, \"excused\""},
	})

	require.Equal(t, QuizHeaders, data.Headers)
	require.Equal(t, []string{"2024-03-01", "1", "Warm up", "", "", `late, "excused"`}, data.Rows[0])
	require.Equal(t, []string{"2024-03-02", "2", "Pop quiz", "7.5", "10", ""}, data.Rows[1])
}

package report

import (
	"sort"
	"strconv"

	"github.com/noah-isme/course-export/internal/models"
	"github.com/noah-isme/course-export/pkg/export"
)

// QuizHeaders are the columns of the quiz entries export.
var QuizHeaders = []string{"Quiz Date", "Student ID", "Title", "Grade", "Max Grade", "Notes"}

// QuizEntries tabulates quiz rows ordered by date, then student.
func QuizEntries(entries []models.QuizEntry) export.Dataset {
	sorted := make([]models.QuizEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].QuizDate != sorted[j].QuizDate {
			return sorted[i].QuizDate < sorted[j].QuizDate
		}
		return sorted[i].StudentID < sorted[j].StudentID
	})

	rows := make([][]string, 0, len(sorted))
	for _, entry := range sorted {
		rows = append(rows, []string{
			entry.QuizDate,
			strconv.FormatInt(entry.StudentID, 10),
			Flatten(entry.Title),
			optionalNumber(entry.Grade),
			optionalNumber(entry.MaxGrade),
			Flatten(entry.Notes),
		})
	}
	return export.Dataset{Title: "Quiz Entries", Headers: QuizHeaders, Rows: rows}
}

func optionalNumber(v *float64) string {
	if v == nil {
		return ""
	}
	return formatNumber(*v)
}

// Package aggregate turns normalized submissions and attendance rows into
// report-level numbers.
package aggregate

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/noah-isme/course-export/internal/models"
	"github.com/noah-isme/course-export/internal/normalizer"
)

// FindSubmission returns the first record in subs whose student id matches.
func FindSubmission(studentID int64, subs []models.Record) (models.Record, bool) {
	for _, rec := range subs {
		id, ok := normalizer.ExtractStudentID(rec)
		if ok && id == studentID {
			return rec, true
		}
	}
	return nil, false
}

// GradeFor returns the student's grade among subs. A matching submission
// without a numeric grade yields false, same as no submission at all.
func GradeFor(studentID int64, subs []models.Record) (float64, bool) {
	rec, ok := FindSubmission(studentID, subs)
	if !ok {
		return 0, false
	}
	return normalizer.ExtractGrade(rec)
}

// WeightedAveragePercent weights assignments by their max points. Only
// graded assignments with a positive max contribute; 0 when none do.
func WeightedAveragePercent(studentID int64, assignments []models.Assignment, submissionsByAssignment map[int64][]models.Record) float64 {
	var earned, possible float64
	for _, assignment := range assignments {
		if assignment.MaxGrade <= 0 {
			continue
		}
		grade, ok := GradeFor(studentID, submissionsByAssignment[assignment.ID])
		if !ok {
			continue
		}
		earned += grade
		possible += assignment.MaxGrade
	}
	if possible <= 0 {
		return 0
	}
	return earned / possible * 100
}

// AttendanceStats is one student's attendance counts and rate.
type AttendanceStats struct {
	Present int     `json:"present"`
	Absent  int     `json:"absent"`
	Late    int     `json:"late"`
	Excused int     `json:"excused"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
}

// AttendanceFor looks the student up in rows. Missing students get all zeros.
// A precomputed percentage wins; otherwise excused lectures count as present.
func AttendanceFor(studentID int64, rows []models.AttendanceSummaryRow) AttendanceStats {
	for _, row := range rows {
		if row.StudentID != studentID {
			continue
		}
		stats := AttendanceStats{
			Present: row.Present,
			Absent:  row.Absent,
			Late:    row.Late,
			Excused: row.Excused,
			Total:   row.TotalLectures,
		}
		switch {
		case row.Percentage != nil:
			stats.Percent = *row.Percentage
		case row.TotalLectures > 0:
			stats.Percent = float64(row.Present+row.Excused) * 100 / float64(row.TotalLectures)
		}
		return stats
	}
	return AttendanceStats{}
}

// GradeDistribution counts students per grade band.
type GradeDistribution struct {
	Excellent int `json:"excellent"`
	Good      int `json:"good"`
	Average   int `json:"average"`
	Below     int `json:"below"`
}

// NormalizePercent maps a raw analytics grade onto a whole percent.
// Numbers up to 10 are read as a 0-10 scale, "NN%" strings are stripped and
// anything else is taken as a percent. The result is clamped then floored.
func NormalizePercent(raw any) (int, bool) {
	var value float64
	switch v := raw.(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, "%"))
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}
		value = f
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		value = scaleTen(f)
	default:
		f, ok := normalizer.ToFloat(raw)
		if !ok {
			return 0, false
		}
		value = scaleTen(f)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	value = math.Max(0, math.Min(100, value))
	return int(math.Floor(value)), true
}

func scaleTen(v float64) float64 {
	if v <= 10 {
		return v * 10
	}
	return v
}

// Bucket classifies a whole percent.
func Bucket(percent int, dist *GradeDistribution) {
	switch {
	case percent >= 90:
		dist.Excellent++
	case percent >= 70:
		dist.Good++
	case percent >= 60:
		dist.Average++
	default:
		dist.Below++
	}
}

// GradeDistributionBuckets buckets the analytics ranking. Entries whose
// grade cannot be read are left out.
func GradeDistributionBuckets(top []models.TopStudent) GradeDistribution {
	var dist GradeDistribution
	for _, student := range top {
		percent, ok := NormalizePercent(student.Grade)
		if !ok {
			continue
		}
		Bucket(percent, &dist)
	}
	return dist
}

// StudentMetrics is the per-student input of CourseAverages.
type StudentMetrics struct {
	StudentID         int64
	CourseID          int64
	GradePercent      float64
	AttendancePercent float64
}

// CourseAverage is the mean student performance in one course.
type CourseAverage struct {
	CourseID          int64   `json:"courseId"`
	Students          int     `json:"students"`
	AverageGrade      float64 `json:"averageGrade"`
	AverageAttendance float64 `json:"averageAttendance"`
}

// CourseAverages groups rows by course, ordered by course id.
func CourseAverages(rows []StudentMetrics) []CourseAverage {
	byCourse := make(map[int64]*CourseAverage)
	for _, row := range rows {
		avg, ok := byCourse[row.CourseID]
		if !ok {
			avg = &CourseAverage{CourseID: row.CourseID}
			byCourse[row.CourseID] = avg
		}
		avg.Students++
		avg.AverageGrade += row.GradePercent
		avg.AverageAttendance += row.AttendancePercent
	}

	result := make([]CourseAverage, 0, len(byCourse))
	for _, avg := range byCourse {
		n := float64(avg.Students)
		avg.AverageGrade /= n
		avg.AverageAttendance /= n
		result = append(result, *avg)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CourseID < result[j].CourseID })
	return result
}

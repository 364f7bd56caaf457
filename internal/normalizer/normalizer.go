// Package normalizer extracts canonical values from backend records whose
// field names vary between endpoints and backend versions.
package normalizer

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/noah-isme/course-export/internal/models"
)

// Path addresses a value inside a record, one key per nesting level.
type Path []string

func (p Path) String() string {
	return strings.Join(p, ".")
}

// GradePaths lists grade candidates from most to least specific. The first
// path holding a finite number wins.
var GradePaths = []Path{
	{"grade"},
	{"feedback", "grade"},
	{"final_grade"},
	{"finalGrade"},
	{"score"},
	{"points"},
	{"obtained_points"},
	{"awarded_points"},
	{"points_awarded"},
	{"result", "grade"},
	{"evaluation", "grade"},
}

// StudentIDPaths lists student identifier candidates, flat fields first.
var StudentIDPaths = []Path{
	{"studentId"},
	{"student_id"},
	{"studentID"},
	{"student", "student_id"},
	{"student", "id"},
	{"user", "student_id"},
	{"submission", "student_id"},
}

// Lookup walks path through nested objects.
func Lookup(rec models.Record, path Path) (any, bool) {
	if rec == nil || len(path) == 0 {
		return nil, false
	}
	var current any = map[string]any(rec)
	for _, key := range path {
		obj, ok := asObject(current)
		if !ok {
			return nil, false
		}
		current, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// ExtractGrade returns the first grade candidate that coerces to a finite number.
func ExtractGrade(rec models.Record) (float64, bool) {
	for _, path := range GradePaths {
		raw, ok := Lookup(rec, path)
		if !ok {
			continue
		}
		if value, ok := ToFloat(raw); ok {
			return value, true
		}
	}
	return 0, false
}

// ExtractStudentID returns the first identifier candidate that coerces to a whole number.
func ExtractStudentID(rec models.Record) (int64, bool) {
	for _, path := range StudentIDPaths {
		raw, ok := Lookup(rec, path)
		if !ok {
			continue
		}
		if id, ok := ToInt(raw); ok {
			return id, true
		}
	}
	return 0, false
}

// ToFloat coerces numbers, json.Number and numeric strings. NaN and infinities are rejected.
func ToFloat(raw any) (float64, bool) {
	var value float64
	switch v := raw.(type) {
	case nil:
		return 0, false
	case float64:
		value = v
	case float32:
		value = float64(v)
	case int:
		value = float64(v)
	case int8:
		value = float64(v)
	case int16:
		value = float64(v)
	case int32:
		value = float64(v)
	case int64:
		value = float64(v)
	case uint:
		value = float64(v)
	case uint8:
		value = float64(v)
	case uint16:
		value = float64(v)
	case uint32:
		value = float64(v)
	case uint64:
		value = float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		value = f
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}
		value = f
	default:
		return 0, false
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	return value, true
}

// ToInt coerces like ToFloat but only accepts whole numbers within int64 range.
func ToInt(raw any) (int64, bool) {
	switch v := raw.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case json.Number:
		if id, err := v.Int64(); err == nil {
			return id, true
		}
	}
	value, ok := ToFloat(raw)
	if !ok || value != math.Trunc(value) {
		return 0, false
	}
	if value < math.MinInt64 || value >= math.MaxInt64 {
		return 0, false
	}
	return int64(value), true
}

func asObject(v any) (map[string]any, bool) {
	switch obj := v.(type) {
	case map[string]any:
		return obj, true
	case models.Record:
		return obj, true
	default:
		return nil, false
	}
}

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/course-export/internal/normalizer"
	"github.com/noah-isme/course-export/pkg/middleware/requestid"
)

type observerStub struct {
	calls []string
}

func (o *observerStub) ObserveBackendCall(endpoint string, status int, duration time.Duration) {
	o.calls = append(o.calls, endpoint)
}

func TestClientFetchesAndForwardsToken(t *testing.T) {
	var gotAuth, gotReqID, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotReqID = r.Header.Get(requestid.HeaderKey)
		switch r.URL.Path {
		case "/course-management/courses/5":
			_, _ = w.Write([]byte(`{"course_id": 5, "code": "MATH101", "title": "Algebra"}`))
		case "/submissions":
			gotQuery = r.URL.RawQuery
			_, _ = w.Write([]byte(`[{"id": 1, "studentId": 12345678901, "grade": "8.5"}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	obs := &observerStub{}
	client := NewClient(Config{BaseURL: server.URL + "/", Token: "config-token"}, obs, zap.NewNop())
	ctx := requestid.WithValue(WithToken(context.Background(), "caller-token"), "req-1")

	course, err := client.Course(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, "MATH101", course.Code)
	require.Equal(t, "Bearer caller-token", gotAuth)
	require.Equal(t, "req-1", gotReqID)

	subs, err := client.Submissions(context.Background(), 9)
	require.NoError(t, err)
	require.Equal(t, "Bearer config-token", gotAuth)
	require.Equal(t, "assignment_id=9&include_feedback=true&limit=200&mine_only=false&offset=0", gotQuery)
	id, ok := normalizer.ExtractStudentID(subs[0])
	require.True(t, ok)
	require.Equal(t, int64(12345678901), id)

	require.Equal(t, []string{"course", "submissions"}, obs.calls)
}

func TestClientSubmissionsFollowsPages(t *testing.T) {
	const total = 450
	var offsets []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		offsets = append(offsets, q.Get("offset"))
		limit, _ := strconv.Atoi(q.Get("limit"))
		offset, _ := strconv.Atoi(q.Get("offset"))
		page := []map[string]any{}
		for i := offset; i < total && i < offset+limit; i++ {
			page = append(page, map[string]any{"id": i + 1, "student_id": i + 1, "grade": 7})
		}
		_ = json.NewEncoder(w).Encode(page)
	}))
	defer server.Close()

	subs, err := NewClient(Config{BaseURL: server.URL}, nil, nil).Submissions(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, subs, total)
	require.Equal(t, []string{"0", "200", "400"}, offsets)

	last, ok := normalizer.ExtractStudentID(subs[total-1])
	require.True(t, ok)
	require.Equal(t, int64(total), last)
}

func TestClientSubmissionsExactPageBoundary(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		page := []map[string]any{}
		for i := offset; i < 200 && i < offset+200; i++ {
			page = append(page, map[string]any{"id": i + 1, "student_id": i + 1})
		}
		_ = json.NewEncoder(w).Encode(page)
	}))
	defer server.Close()

	subs, err := NewClient(Config{BaseURL: server.URL}, nil, nil).Submissions(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, subs, 200)
	require.Equal(t, 2, calls)
}

func TestClientStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"detail": "Instructor access required"}`))
	}))
	defer server.Close()

	_, err := NewClient(Config{BaseURL: server.URL}, nil, nil).Assignments(context.Background(), 1)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusForbidden, statusErr.Status)
	require.Equal(t, "Instructor access required", statusErr.Message)
}

func TestExportStudentsPayloadChecks(t *testing.T) {
	cases := []struct {
		name        string
		contentType string
		body        string
		check       func(t *testing.T, p *Payload, err error)
	}{
		{
			name:        "json error under 200",
			contentType: "application/json",
			body:        `{"detail": "openpyxl not installed"}`,
			check: func(t *testing.T, p *Payload, err error) {
				var payloadErr *PayloadError
				require.True(t, errors.As(err, &payloadErr))
				require.Equal(t, "openpyxl not installed", payloadErr.Message)
			},
		},
		{
			name:        "sniffed json with binary content type",
			contentType: "application/octet-stream",
			body:        `{"message": "no students"}`,
			check: func(t *testing.T, p *Payload, err error) {
				require.ErrorContains(t, err, "no students")
			},
		},
		{
			name:        "empty",
			contentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			body:        "",
			check: func(t *testing.T, p *Payload, err error) {
				require.ErrorIs(t, err, ErrEmptyPayload)
			},
		},
		{
			name:        "csv fallback",
			contentType: "text/csv",
			body:        "Student ID,Name\r\n1,Ana\r\n",
			check: func(t *testing.T, p *Payload, err error) {
				require.NoError(t, err)
				require.True(t, p.IsCSV())
				require.Equal(t, "students_report.csv", p.Filename)
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var gotURL string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotURL = r.URL.String()
				w.Header().Set("Content-Type", tc.contentType)
				w.Header().Set("Content-Disposition", "attachment; filename=students_report.csv")
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			p, err := NewClient(Config{BaseURL: server.URL}, nil, nil).ExportStudents(context.Background(), 7)
			require.Equal(t, "/instructor/export/students?course_id=7&format=excel&include_assignments=true&include_grades=true", gotURL)
			tc.check(t, p, err)
		})
	}
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "1", "exp": exp.Unix()})
	signed, err := token.SignedString([]byte("test"))
	require.NoError(t, err)
	return signed
}

func TestRawExporter(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		_, _ = w.Write([]byte("PK\x03\x04payload"))
	}))
	defer server.Close()

	exporter := NewRawExporter(server.URL, nil, time.Second)

	_, err := exporter.Export(context.Background(), 1, "")
	require.ErrorIs(t, err, ErrNoToken)

	_, err = exporter.Export(context.Background(), 1, signedToken(t, time.Now().Add(-time.Minute)))
	require.ErrorContains(t, err, "expired")
	require.Empty(t, gotAuth)

	live := signedToken(t, time.Now().Add(time.Hour))
	p, err := exporter.Export(context.Background(), 1, live)
	require.NoError(t, err)
	require.Equal(t, "Bearer "+live, gotAuth)
	require.NotEmpty(t, p.Data)

	_, err = exporter.Export(context.Background(), 1, "opaque-token")
	require.NoError(t, err)
}

func TestErrorMessageShapes(t *testing.T) {
	list, err := json.Marshal(map[string]any{"detail": []map[string]string{{"msg": "field required"}, {"msg": "bad id"}}})
	require.NoError(t, err)
	require.Equal(t, "field required; bad id", ErrorMessage(list))
	require.Equal(t, "boom", ErrorMessage([]byte(`{"error": "boom"}`)))
	require.Equal(t, "Internal Server Error", ErrorMessage([]byte(" Internal Server Error ")))
}

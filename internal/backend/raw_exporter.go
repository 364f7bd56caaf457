package backend

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/noah-isme/course-export/pkg/middleware/requestid"
)

// RawExporter performs the bulk export on a bare http.Client with an
// explicit Authorization header, bypassing Client's defaults.
type RawExporter struct {
	baseURL string
	http    *http.Client
	now     func() time.Time
}

// NewRawExporter builds a RawExporter. A nil httpClient uses a fresh client with timeout.
func NewRawExporter(baseURL string, httpClient *http.Client, timeout time.Duration) *RawExporter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &RawExporter{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient, now: time.Now}
}

// Export downloads the students export using token. Expired JWTs are
// refused before any request is made.
func (e *RawExporter) Export(ctx context.Context, courseID int64, token string) (*Payload, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrNoToken
	}
	if TokenExpired(token, e.now()) {
		return nil, fmt.Errorf("bearer token expired")
	}

	req, err := newExportRequest(ctx, e.baseURL, courseID)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if id := requestid.FromContext(ctx); id != "" {
		req.Header.Set(requestid.HeaderKey, id)
	}

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("manual export request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	return readPayload(resp)
}

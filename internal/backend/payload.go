package backend

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// maxPayloadBytes bounds export downloads held in memory.
const maxPayloadBytes = 64 << 20

// Payload is a file produced by the backend's export endpoint.
type Payload struct {
	Data        []byte
	ContentType string
	Filename    string
}

// IsCSV reports whether the backend served CSV instead of a workbook.
func (p *Payload) IsCSV() bool {
	return mimetype.Detect(p.Data).Is("text/csv") || strings.HasPrefix(mediaType(p.ContentType), "text/csv")
}

// readPayload turns an export response into a Payload. JSON bodies are
// error documents even under a 200 status, and empty bodies are unusable.
func readPayload(resp *http.Response) (*Payload, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, fmt.Errorf("read export payload: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Status: resp.StatusCode, Message: ErrorMessage(body)}
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmptyPayload
	}
	contentType := resp.Header.Get("Content-Type")
	if isJSON(contentType, body) {
		return nil, &PayloadError{Message: ErrorMessage(body)}
	}

	return &Payload{
		Data:        body,
		ContentType: contentType,
		Filename:    dispositionFilename(resp.Header.Get("Content-Disposition")),
	}, nil
}

func isJSON(contentType string, body []byte) bool {
	mt := mediaType(contentType)
	if mt == "application/json" || strings.HasSuffix(mt, "+json") {
		return true
	}
	return mimetype.Detect(body).Is("application/json")
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

func dispositionFilename(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}

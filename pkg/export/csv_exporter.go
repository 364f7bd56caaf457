package export

import (
	"bytes"
	"fmt"
	"strings"
)

// CSVExporter renders Dataset records into CSV bytes. Every cell is quoted
// and rows end with CRLF so spreadsheet apps never guess at cell types.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes for the dataset.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if err := data.Validate(); err != nil {
		return nil, fmt.Errorf("csv: %w", err)
	}
	buf := &bytes.Buffer{}
	writeCSVRow(buf, data.Headers)
	for _, row := range data.Rows {
		writeCSVRow(buf, row)
	}
	return buf.Bytes(), nil
}

func writeCSVRow(buf *bytes.Buffer, cells []string) {
	for i, cell := range cells {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('"')
		buf.WriteString(strings.ReplaceAll(cell, `"`, `""`))
		buf.WriteByte('"')
	}
	buf.WriteString("\r\n")
}

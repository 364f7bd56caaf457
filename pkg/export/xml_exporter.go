package export

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

const defaultSheetName = "Students"

var sheetNameClean = strings.NewReplacer("[", "", "]", "", ":", "", "*", "", "?", "", "/", "", `\`, "")

// SpreadsheetMLExporter writes the XML workbook format older Excel versions
// open as .xls. Every cell is typed as a string.
type SpreadsheetMLExporter struct{}

// NewSpreadsheetMLExporter builds the XML workbook exporter.
func NewSpreadsheetMLExporter() *SpreadsheetMLExporter {
	return &SpreadsheetMLExporter{}
}

// Render produces a single worksheet workbook.
func (e *SpreadsheetMLExporter) Render(data Dataset) ([]byte, error) {
	if err := data.Validate(); err != nil {
		return nil, fmt.Errorf("spreadsheetml: %w", err)
	}

	buf := &bytes.Buffer{}
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	buf.WriteString(`<?mso-application progid="Excel.Sheet"?>` + "\n")
	buf.WriteString(`<Workbook xmlns="urn:schemas-microsoft-com:office:spreadsheet" xmlns:ss="urn:schemas-microsoft-com:office:spreadsheet">` + "\n")
	buf.WriteString(` <Worksheet ss:Name="`)
	writeXMLText(buf, sheetName(data.Title))
	buf.WriteString("\">\n  <Table>\n")
	writeXMLRow(buf, data.Headers)
	for _, row := range data.Rows {
		writeXMLRow(buf, row)
	}
	buf.WriteString("  </Table>\n </Worksheet>\n</Workbook>\n")
	return buf.Bytes(), nil
}

func writeXMLRow(buf *bytes.Buffer, cells []string) {
	buf.WriteString("   <Row>")
	for _, cell := range cells {
		buf.WriteString(`<Cell><Data ss:Type="String">`)
		writeXMLText(buf, cell)
		buf.WriteString("</Data></Cell>")
	}
	buf.WriteString("</Row>\n")
}

// writeXMLText escapes s for element text and quoted attributes. Control
// characters are dropped; other characters XML 1.0 cannot carry become U+FFFD.
func writeXMLText(buf *bytes.Buffer, s string) {
	_ = xml.EscapeText(buf, []byte(stripControl(s)))
}

// stripControl drops C0 controls other than tab and line breaks.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

// sheetName applies Excel's worksheet naming rules.
func sheetName(title string) string {
	name := strings.TrimSpace(sheetNameClean.Replace(title))
	if name == "" {
		return defaultSheetName
	}
	if runes := []rune(name); len(runes) > 31 {
		name = string(runes[:31])
	}
	return name
}

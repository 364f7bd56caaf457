package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// XLSXExporter writes Office Open XML workbooks.
type XLSXExporter struct{}

// NewXLSXExporter builds the xlsx exporter.
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{}
}

// Render writes the dataset to a single sheet with a bold, frozen header row.
func (e *XLSXExporter) Render(data Dataset) ([]byte, error) {
	if err := data.Validate(); err != nil {
		return nil, fmt.Errorf("xlsx: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	sheet := sheetName(data.Title)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	if err := setRow(f, sheet, 1, data.Headers); err != nil {
		return nil, err
	}
	for i, row := range data.Rows {
		if err := setRow(f, sheet, i+2, row); err != nil {
			return nil, err
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	lastCol, err := excelize.ColumnNumberToName(len(data.Headers))
	if err != nil {
		return nil, fmt.Errorf("header range: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", lastCol+"1", bold); err != nil {
		return nil, fmt.Errorf("apply header style: %w", err)
	}
	if err := f.SetColWidth(sheet, "A", lastCol, 16); err != nil {
		return nil, fmt.Errorf("column width: %w", err)
	}
	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("freeze header: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func setRow(f *excelize.File, sheet string, row int, cells []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("row %d: %w", row, err)
	}
	values := make([]interface{}, len(cells))
	for i, v := range cells {
		values[i] = v
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}

// ParseXLSX reads the first sheet of a workbook back into a dataset. It is
// also how a downloaded workbook is checked before it is handed out.
func ParseXLSX(payload []byte) (Dataset, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return Dataset{}, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close() //nolint:errcheck

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Dataset{}, fmt.Errorf("xlsx has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return Dataset{}, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return Dataset{Title: sheets[0]}, nil
	}

	data := Dataset{Title: sheets[0], Headers: rows[0]}
	for _, row := range rows[1:] {
		padded := make([]string, len(data.Headers))
		copy(padded, row)
		data.Rows = append(data.Rows, padded)
	}
	return data, nil
}

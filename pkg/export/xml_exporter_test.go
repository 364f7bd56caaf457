package export

import (
	"encoding/xml"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type workbook struct {
	Worksheet struct {
		Name string `xml:"Name,attr"`
		Rows []struct {
			Cells []struct {
				Data string `xml:"Data"`
			} `xml:"Cell"`
		} `xml:"Table>Row"`
	} `xml:"Worksheet"`
}

func TestSpreadsheetMLExporterEscapes(t *testing.T) {
	data := Dataset{
		Title:   "Course: Algebra & <Geometry>",
		Headers: []string{"Name", "Assignment <1>"},
		Rows:    [][]string{{"Tom & Jerry", "8/10"}, {"A<B>", "Not submitted"}},
	}

	out, err := NewSpreadsheetMLExporter().Render(data)
	require.NoError(t, err)
	body := string(out)
	require.Contains(t, body, `<Data ss:Type="String">Tom &amp; Jerry</Data>`)
	require.Contains(t, body, `Assignment &lt;1&gt;`)
	require.NotContains(t, body, "<B>")

	var parsed workbook
	require.NoError(t, xml.Unmarshal(out, &parsed))
	require.Equal(t, "Course Algebra & <Geometry>", parsed.Worksheet.Name)
	require.Len(t, parsed.Worksheet.Rows, 3)
	require.Equal(t, "A<B>", parsed.Worksheet.Rows[2].Cells[0].Data)
	require.Equal(t, "Not submitted", parsed.Worksheet.Rows[2].Cells[1].Data)
}

func TestSpreadsheetMLExporterReplacesIllegalCharacters(t *testing.T) {
	data := Dataset{
		Title:   "Notes \uFFFF",
		Headers: []string{"Name", "Comment"},
		Rows:    [][]string{{"x\uFFFEy", "bell\x07 \"quoted\"\nline"}},
	}

	out, err := NewSpreadsheetMLExporter().Render(data)
	require.NoError(t, err)

	var parsed workbook
	require.NoError(t, xml.Unmarshal(out, &parsed))
	require.Equal(t, "Notes \uFFFD", parsed.Worksheet.Name)
	require.Equal(t, "x\uFFFDy", parsed.Worksheet.Rows[1].Cells[0].Data)
	require.Equal(t, "bell \"quoted\"\nline", parsed.Worksheet.Rows[1].Cells[1].Data)
}

func TestSheetName(t *testing.T) {
	require.Equal(t, "Students", sheetName("  "))
	require.Equal(t, 31, len([]rune(sheetName(strings.Repeat("x", 40)))))
}

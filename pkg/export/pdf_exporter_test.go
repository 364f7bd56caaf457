package export

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPDFExporterRender(t *testing.T) {
	headers := make([]string, 12)
	row := make([]string, 12)
	for i := range headers {
		headers[i] = fmt.Sprintf("Assignment with a long title %d", i)
		row[i] = "8/10"
	}
	rows := make([][]string, 80)
	for i := range rows {
		rows[i] = row
	}

	out, err := NewPDFExporter().Render(Dataset{Title: "Algebra", Headers: headers, Rows: rows})
	require.NoError(t, err)
	require.Equal(t, "%PDF", string(out[:4]))
}

func TestPDFExporterRequiresHeaders(t *testing.T) {
	_, err := NewPDFExporter().Render(Dataset{Title: "x"})
	require.ErrorIs(t, err, ErrNoHeaders)
}

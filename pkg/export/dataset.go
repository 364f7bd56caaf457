package export

import (
	"errors"
	"fmt"
)

// ErrNoHeaders is returned by every encoder for a dataset without columns.
var ErrNoHeaders = errors.New("dataset requires at least one header")

// Dataset defines tabular export content. Rows are positional and must have
// one cell per header.
type Dataset struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// Renderer encodes a dataset into a file payload.
type Renderer interface {
	Render(data Dataset) ([]byte, error)
}

// Validate reports malformed datasets.
func (d Dataset) Validate() error {
	if len(d.Headers) == 0 {
		return ErrNoHeaders
	}
	for i, row := range d.Rows {
		if len(row) != len(d.Headers) {
			return fmt.Errorf("row %d has %d cells, want %d", i, len(row), len(d.Headers))
		}
	}
	return nil
}

package extraction

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// Source is one tabular input addressable by row and column index.
type Source interface {
	Reference() string
	Rows() ([][]string, error)
}

type GridSource struct {
	reference string
	rows      [][]string
}

func NewGridSource(reference string, rows [][]string) *GridSource {
	return &GridSource{reference: reference, rows: rows}
}

func (g *GridSource) Reference() string { return g.reference }

func (g *GridSource) Rows() ([][]string, error) { return g.rows, nil }

// WorkbookSource reads the first sheet of an xlsx workbook. The first
// physical row is the sheet's frame header and is not returned, so row 0 of
// Rows is sheet row 2. Parsing happens on Rows so a malformed upload surfaces
// as a per-source failure inside the batch instead of at upload time.
type WorkbookSource struct {
	reference string
	content   []byte
	sheet     string
}

func NewWorkbookSource(reference string, content []byte) *WorkbookSource {
	return &WorkbookSource{reference: reference, content: content}
}

// WithSheet selects a sheet by name instead of the first one.
func (w *WorkbookSource) WithSheet(name string) *WorkbookSource {
	cp := *w
	cp.sheet = name
	return &cp
}

func (w *WorkbookSource) Reference() string { return w.reference }

func (w *WorkbookSource) Rows() ([][]string, error) {
	if len(w.content) == 0 {
		return nil, fmt.Errorf("workbook is empty")
	}

	f, err := excelize.OpenReader(bytes.NewReader(w.content))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheet := w.sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return [][]string{}, nil
	}

	return rows[1:], nil
}

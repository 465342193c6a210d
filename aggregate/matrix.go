package aggregate

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
)

type cell struct {
	row, col int
}

// Matrix is a labeled two-dimensional table. Rows and columns keep the order
// in which their labels were first seen. A cell that was never set is
// missing, which is distinct from zero.
type Matrix struct {
	// IndexName heads the row-label column when the matrix is written.
	IndexName string

	Rows []string
	Cols []string

	rowIndex map[string]int
	colIndex map[string]int
	cells    map[cell]float64
}

func NewMatrix(indexName string) *Matrix {
	return &Matrix{
		IndexName: indexName,
		Rows:      make([]string, 0),
		Cols:      make([]string, 0),
		rowIndex:  make(map[string]int),
		colIndex:  make(map[string]int),
		cells:     make(map[cell]float64),
	}
}

func (m *Matrix) row(label string) int {
	if i, exists := m.rowIndex[label]; exists {
		return i
	}
	m.rowIndex[label] = len(m.Rows)
	m.Rows = append(m.Rows, label)
	return len(m.Rows) - 1
}

func (m *Matrix) col(label string) int {
	if i, exists := m.colIndex[label]; exists {
		return i
	}
	m.colIndex[label] = len(m.Cols)
	m.Cols = append(m.Cols, label)
	return len(m.Cols) - 1
}

// Set stores v, adding the row and column labels if they are new.
func (m *Matrix) Set(row, col string, v float64) {
	m.cells[cell{m.row(row), m.col(col)}] = v
}

// Get returns the value at (row, col) and whether it was set.
func (m *Matrix) Get(row, col string) (float64, bool) {
	r, exists := m.rowIndex[row]
	if !exists {
		return 0, false
	}
	c, exists := m.colIndex[col]
	if !exists {
		return 0, false
	}
	v, exists := m.cells[cell{r, c}]
	return v, exists
}

// AddColumn writes one column from parallel row labels and values.
func (m *Matrix) AddColumn(col string, rows []string, values []float64) {
	m.col(col)
	for i, row := range rows {
		m.Set(row, col, values[i])
	}
}

// AddRow writes one row from parallel column labels and values.
func (m *Matrix) AddRow(row string, cols []string, values []float64) {
	m.row(row)
	for i, col := range cols {
		m.Set(row, col, values[i])
	}
}

// WriteCSV writes a header of IndexName followed by the column labels, then
// one line per row. Missing cells are left empty.
func (m *Matrix) WriteCSV(w io.Writer, comma rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = comma

	line := make([]string, len(m.Cols)+1)
	line[0] = m.IndexName
	copy(line[1:], m.Cols)
	if err := cw.Write(line); err != nil {
		return err
	}

	for r, label := range m.Rows {
		line[0] = label
		for c := range m.Cols {
			v, exists := m.cells[cell{r, c}]
			if !exists {
				line[c+1] = ""
				continue
			}
			line[c+1] = formatFloat(v)
		}
		if err := cw.Write(line); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteFile writes the matrix to path, or to stdout if path is empty.
func (m *Matrix) WriteFile(path string, comma rune) error {
	if path == "" {
		return m.WriteCSV(os.Stdout, comma)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := m.WriteCSV(f, comma); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

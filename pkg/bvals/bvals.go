// Package bvals reads, rounds and rewrites diffusion b-value tables.
//
// A b-value file is a plain-text table with one row per line and
// whitespace-separated numeric fields. Rounding snaps every value to the
// nearest multiple of a base (1000 for the command-line tool), breaking
// ties at the intermediate step towards the even multiple.
package bvals

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// DefaultBase is the multiple b-values are rounded to
const DefaultBase = 1000

var (
	// ErrEmptyTable is returned when a file holds no numeric rows
	ErrEmptyTable = errors.New("bvals: table is empty")

	// ErrRaggedTable is returned when rows have different column counts
	ErrRaggedTable = errors.New("bvals: rows have different column counts")

	// ErrNonFinite is returned when a field parses as NaN or an infinity
	ErrNonFinite = errors.New("bvals: value is not finite")
)

// RoundToMultiple returns v rounded to the nearest multiple of base.
// v/base is rounded half-to-even, so RoundToMultiple(1000, 500) is 0
// and RoundToMultiple(1000, 1500) is 2000.
func RoundToMultiple(base, v float64) float64 {
	return math.RoundToEven(base * math.RoundToEven(v/base))
}

// Table is a rectangular table of b-values
type Table struct {
	data *mat.Dense
}

// NewTable builds a table from rows of equal length
func NewTable(rows [][]float64) (*Table, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, ErrEmptyTable
	}

	cols := len(rows[0])
	flat := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: row %d has %d values, expected %d",
				ErrRaggedTable, i+1, len(row), cols)
		}
		flat = append(flat, row...)
	}

	return &Table{data: mat.NewDense(len(rows), cols, flat)}, nil
}

// Dims returns the number of rows and columns
func (t *Table) Dims() (rows, cols int) {
	return t.data.Dims()
}

// At returns the value at row i, column j
func (t *Table) At(i, j int) float64 {
	return t.data.At(i, j)
}

// Rows returns a copy of the table contents
func (t *Table) Rows() [][]float64 {
	r, c := t.data.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = mat.Row(make([]float64, c), i, t.data)
	}
	return out
}

// Round replaces every value with its nearest multiple of base.
// The shape of the table is unchanged.
func (t *Table) Round(base float64) error {
	if base <= 0 || math.IsNaN(base) || math.IsInf(base, 0) {
		return fmt.Errorf("bvals: base must be a positive number, got %g", base)
	}
	t.data.Apply(func(_, _ int, v float64) float64 {
		return RoundToMultiple(base, v)
	}, t.data)
	return nil
}

// Read parses a whitespace-separated table. Blank lines are skipped.
func Read(r io.Reader) (*Table, error) {
	var rows [][]float64

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		row := make([]float64, len(fields))
		for i, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("bvals: line %d, field %d: %w", line, i+1, err)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: line %d, field %d: %q", ErrNonFinite, line, i+1, field)
			}
			row[i] = v
		}

		if len(rows) > 0 && len(row) != len(rows[0]) {
			return nil, fmt.Errorf("%w: line %d has %d values, expected %d",
				ErrRaggedTable, line, len(row), len(rows[0]))
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("bvals: reading table: %w", err)
	}

	return NewTable(rows)
}

// ReadFile reads a table from path
func ReadFile(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	table, err := Read(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return table, nil
}

// Write emits the table as integers, single-space delimited, one
// newline-terminated line per row, with no header or index column.
func (t *Table) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	r, c := t.data.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if j > 0 {
				bw.WriteByte(' ')
			}
			v := math.Round(t.data.At(i, j))
			if v == 0 {
				// no "-0"
				v = 0
			}
			bw.WriteString(strconv.FormatFloat(v, 'f', 0, 64))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// WriteFile replaces the file at path with the table. The new contents are
// written to a temporary file in the same directory and renamed over the
// original, keeping its permission bits. A symlinked path is followed so
// the link target is rewritten and the link itself is left in place.
func (t *Table) WriteFile(path string) error {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}

	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	tmpName := tmp.Name()

	if err := t.Write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("setting mode on %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// RoundFile rounds every b-value in the file at path to the nearest
// multiple of base and rewrites the file in place
func RoundFile(path string, base float64) (*Table, error) {
	table, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := table.Round(base); err != nil {
		return nil, err
	}
	if err := table.WriteFile(path); err != nil {
		return nil, err
	}
	return table, nil
}

package categorize

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/theimaginaryfoundation/prodcat/categorize/fileutils"
)

const (
	TitleColumn = "Title"
	BrandColumn = "Brand"
)

// Table is an in-memory CSV: an ordered header plus string rows. Columns can be added while
// classifying; every row is padded to the header width.
type Table struct {
	header []string
	index  map[string]int
	rows   [][]string
}

func NewTable(header []string) (*Table, error) {
	t := &Table{index: make(map[string]int, len(header))}
	for _, h := range header {
		if _, dup := t.index[h]; dup && h != "" {
			return nil, fmt.Errorf("duplicate column %q", h)
		}
		t.index[h] = len(t.header)
		t.header = append(t.header, h)
	}
	return t, nil
}

// ReadCSVFile loads a CSV file whose first record is the header.
func ReadCSVFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ReadCSVFile: %w", err)
	}
	defer f.Close()

	t, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("ReadCSVFile: %s: %w", path, err)
	}
	return t, nil
}

func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("csv has no header")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	t, err := NewTable(header)
	if err != nil {
		return nil, err
	}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record %d: %w", len(t.rows)+1, err)
		}
		if len(rec) > len(t.header) {
			return nil, fmt.Errorf("record %d has %d fields, header has %d", len(t.rows)+1, len(rec), len(t.header))
		}
		t.rows = append(t.rows, t.pad(rec))
	}
	return t, nil
}

func (t *Table) pad(rec []string) []string {
	if len(rec) >= len(t.header) {
		return rec
	}
	out := make([]string, len(t.header))
	copy(out, rec)
	return out
}

func (t *Table) Header() []string {
	return append([]string(nil), t.header...)
}

func (t *Table) Len() int {
	return len(t.rows)
}

func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// EnsureColumn appends an empty column unless it already exists.
func (t *Table) EnsureColumn(name string) {
	if t.HasColumn(name) {
		return
	}
	t.index[name] = len(t.header)
	t.header = append(t.header, name)
	for i := range t.rows {
		t.rows[i] = append(t.rows[i], "")
	}
}

func (t *Table) Get(row int, col string) string {
	i, ok := t.index[col]
	if !ok || row < 0 || row >= len(t.rows) {
		return ""
	}
	return t.rows[row][i]
}

// Set stores a value, creating the column when needed.
func (t *Table) Set(row int, col, value string) {
	if row < 0 || row >= len(t.rows) {
		return
	}
	t.EnsureColumn(col)
	t.rows[row][t.index[col]] = value
}

func (t *Table) SetCells(row int, cells []Cell) {
	for _, c := range cells {
		t.Set(row, c.Column, c.Value)
	}
}

// AppendRow adds a row from column values; unknown columns are created.
func (t *Table) AppendRow(values map[string]string) {
	t.rows = append(t.rows, make([]string, len(t.header)))
	row := len(t.rows) - 1
	for _, col := range slices.Sorted(maps.Keys(values)) {
		t.Set(row, col, values[col])
	}
}

// Column returns a copy of every value in the named column.
func (t *Table) Column(name string) ([]string, error) {
	i, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("column %q not found (have %s)", name, strings.Join(t.header, ", "))
	}
	out := make([]string, len(t.rows))
	for r, rec := range t.rows {
		out[r] = rec[i]
	}
	return out, nil
}

// Product reads the input features of a row.
func (t *Table) Product(row int, titleCol, brandCol string) Product {
	return Product{Title: t.Get(row, titleCol), Brand: t.Get(row, brandCol)}
}

func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.rows); err != nil {
		return err
	}
	return cw.Error()
}

// WriteCSVFile replaces path atomically with the table contents.
func (t *Table) WriteCSVFile(path string) error {
	var buf bytes.Buffer
	if err := t.WriteCSV(&buf); err != nil {
		return fmt.Errorf("WriteCSVFile: encode: %w", err)
	}
	if err := fileutils.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("WriteCSVFile: %w", err)
	}
	return nil
}

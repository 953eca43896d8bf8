package storage

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// Row is one record keyed by column name.
type Row map[string]string

// Table is the in-memory form of a persisted table.
type Table struct {
	Columns []string
	Rows    []Row
}

func NewTable(columns []string) *Table {
	return &Table{Columns: slices.Clone(columns)}
}

func (t *Table) Len() int {
	return len(t.Rows)
}

func (t *Table) HasColumn(col string) bool {
	return slices.Contains(t.Columns, col)
}

// EnsureColumns appends any missing columns to the header, preserving order.
// It reports whether the header changed.
func (t *Table) EnsureColumns(cols ...string) bool {
	changed := false
	for _, c := range cols {
		if !t.HasColumn(c) {
			t.Columns = append(t.Columns, c)
			changed = true
		}
	}
	return changed
}

// Record returns the row's values in column order. Missing values are empty.
func (t *Table) Record(row Row) []string {
	rec := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		rec[i] = row[c]
	}
	return rec
}

// TableStore persists a Table. Append writes rows that have already been
// added to t; a store may rewrite the whole table when t's header no longer
// matches what is on disk.
type TableStore interface {
	Load() (*Table, error)
	Append(t *Table, rows []Row) error
	Save(t *Table) error
	Path() string
}

// OpenTable picks a store by file extension.
func OpenTable(path string) (TableStore, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return NewCSVStore(path), nil
	case ".xlsx":
		return NewXLSXStore(path), nil
	default:
		return nil, fmt.Errorf("unsupported table format %q (want .csv or .xlsx)", path)
	}
}

// Convert copies src into dst, replacing dst's contents.
func Convert(src, dst TableStore) (int, error) {
	t, err := src.Load()
	if err != nil {
		return 0, fmt.Errorf("load %s: %w", src.Path(), err)
	}
	if err := dst.Save(t); err != nil {
		return 0, fmt.Errorf("save %s: %w", dst.Path(), err)
	}
	return t.Len(), nil
}

func sameColumns(a, b []string) bool {
	return slices.Equal(a, b)
}

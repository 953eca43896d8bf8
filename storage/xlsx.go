package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/xuri/excelize/v2"
)

const xlsxSheet = "Sheet1"

// XLSXStore keeps a table in the first sheet of a workbook. The format has no
// cheap append, so Append rewrites the workbook.
type XLSXStore struct {
	path string
}

func NewXLSXStore(path string) *XLSXStore {
	return &XLSXStore{path: path}
}

func (s *XLSXStore) Path() string {
	return s.path
}

func (s *XLSXStore) Load() (*Table, error) {
	f, err := excelize.OpenFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &Table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("read sheet: %w", err)
	}
	if len(rows) == 0 {
		return &Table{}, nil
	}

	header := rows[0]
	t := &Table{Columns: slices.Clone(header)}
	for _, cells := range rows[1:] {
		row := make(Row, len(header))
		for i, col := range header {
			if i < len(cells) {
				row[col] = cells[i]
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func (s *XLSXStore) Append(t *Table, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	return s.Save(t)
}

func (s *XLSXStore) Save(t *Table) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	sw, err := f.NewStreamWriter(xlsxSheet)
	if err != nil {
		return err
	}
	if err := sw.SetRow("A1", cellValues(t.Columns)); err != nil {
		return err
	}
	for i, row := range t.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, cellValues(t.Record(row))); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}

	tmp := strings.TrimSuffix(s.path, filepath.Ext(s.path)) + ".tmp.xlsx"
	if err := f.SaveAs(tmp); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("save workbook: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func cellValues(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

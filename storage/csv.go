package storage

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVStore is an append-only CSV table. The file starts with a UTF-8 BOM so
// spreadsheet tools pick the right encoding.
type CSVStore struct {
	path   string
	header []string
}

func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path}
}

func (s *CSVStore) Path() string {
	return s.path
}

func (s *CSVStore) Load() (*Table, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.header = nil
		return &Table{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := newCSVReader(f)
	header, err := r.Read()
	if err == io.EOF {
		s.header = nil
		return &Table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	t := &Table{Columns: slices.Clone(header)}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", t.Len()+1, err)
		}
		row := make(Row, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		t.Rows = append(t.Rows, row)
	}

	s.header = header
	return t, nil
}

// Append writes rows to the end of the file and fsyncs. The whole table is
// rewritten instead when the file is missing, its header differs from t's,
// or its last record was cut short. A failed append is truncated back to the
// previous size so a retry never duplicates rows.
func (s *CSVStore) Append(t *Table, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	if s.header == nil {
		s.header = s.readHeader()
	}
	if s.header == nil || !sameColumns(s.header, t.Columns) {
		return s.Save(t)
	}

	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	size, clean, err := recordBoundary(f)
	if err != nil {
		return err
	}
	if !clean {
		f.Close()
		return s.Save(t)
	}

	return rollbackOnError(f, size, appendRecords(f, t, rows))
}

// rollbackOnError cuts f back to size when err is set, dropping any partly
// written records.
func rollbackOnError(f *os.File, size int64, err error) error {
	if err == nil {
		return nil
	}
	if terr := f.Truncate(size); terr != nil {
		return fmt.Errorf("%w (truncate: %v)", err, terr)
	}
	return err
}

// recordBoundary reports the file size and whether the file ends with a
// newline.
func recordBoundary(f *os.File) (int64, bool, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, false, err
	}
	size := info.Size()
	if size == 0 {
		return 0, false, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		return size, false, err
	}
	return size, last[0] == '\n', nil
}

func appendRecords(f *os.File, t *Table, rows []Row) error {
	bufw := bufio.NewWriter(f)
	w := csv.NewWriter(bufw)
	for _, row := range rows {
		if err := w.Write(t.Record(row)); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	if err := bufw.Flush(); err != nil {
		return err
	}
	return f.Sync()
}

// Save replaces the file with t through a temp file and rename.
func (s *CSVStore) Save(t *Table) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	if err := writeCSV(f, t); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return err
	}

	s.header = slices.Clone(t.Columns)
	return nil
}

func writeCSV(f *os.File, t *Table) error {
	bufw := bufio.NewWriter(f)
	if _, err := bufw.Write(utf8BOM); err != nil {
		return err
	}
	w := csv.NewWriter(bufw)
	if err := w.Write(t.Columns); err != nil {
		return err
	}
	for _, row := range t.Rows {
		if err := w.Write(t.Record(row)); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return bufw.Flush()
}

func (s *CSVStore) readHeader() []string {
	f, err := os.Open(s.path)
	if err != nil {
		return nil
	}
	defer f.Close()
	header, err := newCSVReader(f).Read()
	if err != nil {
		return nil
	}
	return header
}

func newCSVReader(f io.Reader) *csv.Reader {
	br := bufio.NewReader(f)
	if first3, _ := br.Peek(3); len(first3) == 3 && first3[0] == 0xEF && first3[1] == 0xBB && first3[2] == 0xBF {
		br.Discard(3)
	}
	r := csv.NewReader(br)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r
}

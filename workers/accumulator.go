package workers

import (
	"fmt"
	"log"

	"rc_harvester/metrics"
	"rc_harvester/storage"
)

// Accumulator owns a stage's output table: the rows loaded at startup, the
// rows added during the run, and the rows not yet written to the sink.
type Accumulator struct {
	name    string
	store   storage.TableStore
	table   *storage.Table
	pending []storage.Row
}

// NewAccumulator loads the current contents of store.
func NewAccumulator(name string, store storage.TableStore) (*Accumulator, error) {
	t, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load %s table %s: %w", name, store.Path(), err)
	}
	return &Accumulator{name: name, store: store, table: t}, nil
}

func (a *Accumulator) Table() *storage.Table {
	return a.table
}

func (a *Accumulator) Path() string {
	return a.store.Path()
}

// Len counts every row, written or pending.
func (a *Accumulator) Len() int {
	return a.table.Len()
}

func (a *Accumulator) Pending() int {
	return len(a.pending)
}

func (a *Accumulator) EnsureColumns(cols ...string) {
	a.table.EnsureColumns(cols...)
}

func (a *Accumulator) Add(rows ...storage.Row) {
	a.table.Rows = append(a.table.Rows, rows...)
	a.pending = append(a.pending, rows...)
}

// Commit writes pending rows to the sink. On success it returns the rows
// that were flushed; on failure they stay pending for the next Commit.
func (a *Accumulator) Commit() ([]storage.Row, error) {
	if len(a.pending) == 0 {
		return nil, nil
	}
	if err := a.store.Append(a.table, a.pending); err != nil {
		metrics.TableWrites.WithLabelValues(a.name, "error").Inc()
		return nil, fmt.Errorf("write %s: %w", a.store.Path(), err)
	}
	metrics.TableWrites.WithLabelValues(a.name, "ok").Inc()

	flushed := a.pending
	a.pending = nil
	return flushed, nil
}

// Close makes a last attempt to flush pending rows.
func (a *Accumulator) Close() error {
	if len(a.pending) == 0 {
		return nil
	}
	n := len(a.pending)
	if _, err := a.Commit(); err != nil {
		log.Printf("Accumulator: %d %s rows could not be written: %v", n, a.name, err)
		return err
	}
	return nil
}

package upsert

import (
	"context"
	"errors"
	"fmt"
)

// memStore is an in-memory Store with Postgres-like upsert semantics:
// staged writes become visible only on Commit.
type memStore struct {
	tables map[string]map[string]Record

	lookupErr error
	// reject fails a BulkUpsert when it returns an error for any row.
	reject func(columns []string, row []any) error

	begins  int
	lookups int
	writes  int
}

func newMemStore() *memStore {
	return &memStore{tables: make(map[string]map[string]Record)}
}

func (m *memStore) Begin(ctx context.Context) (Tx, error) {
	m.begins++
	return &memTx{store: m}, nil
}

func (m *memStore) row(table, key string) (Record, bool) {
	r, ok := m.tables[table][key]
	return r, ok
}

type stagedWrite struct {
	table   string
	columns []string
	rows    [][]any
}

type memTx struct {
	store  *memStore
	staged []stagedWrite
	done   bool
}

func (t *memTx) Lookup(ctx context.Context, table, keyColumn, versionColumn string, keys []string) (map[string]string, error) {
	t.store.lookups++
	if t.store.lookupErr != nil {
		return nil, t.store.lookupErr
	}
	existing := make(map[string]string, len(keys))
	for _, key := range keys {
		r, ok := t.store.row(table, key)
		if !ok {
			continue
		}
		if v, ok := FormatVersion(r[versionColumn], DefaultTimestampLayout); ok {
			existing[key] = v
		}
	}
	return existing, nil
}

func (t *memTx) BulkUpsert(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if t.done {
		return 0, errors.New("transaction finished")
	}
	t.store.writes++
	stmt, err := newUpsertStatement(table, columns)
	if err != nil {
		return 0, err
	}
	if err := stmt.checkRows(rows); err != nil {
		return 0, err
	}
	for i, row := range rows {
		if t.store.reject != nil {
			if err := t.store.reject(columns, row); err != nil {
				return 0, fmt.Errorf("row %d: %w", i, err)
			}
		}
	}
	t.staged = append(t.staged, stagedWrite{table: table, columns: columns, rows: rows})
	return int64(len(rows)), nil
}

func (t *memTx) Commit() error {
	if t.done {
		return errors.New("transaction finished")
	}
	t.done = true
	for _, w := range t.staged {
		tbl := t.store.tables[w.table]
		if tbl == nil {
			tbl = make(map[string]Record)
			t.store.tables[w.table] = tbl
		}
		for _, row := range w.rows {
			r := make(Record, len(w.columns))
			for i, col := range w.columns {
				r[col] = row[i]
			}
			tbl[fmt.Sprintf("%v", row[0])] = r
		}
	}
	return nil
}

func (t *memTx) Rollback() error {
	t.done = true
	t.staged = nil
	return nil
}

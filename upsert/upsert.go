// Package upsert synchronises batches of loosely typed records into keyed
// Postgres tables, writing only the records whose change marker moved since
// the last sync.
package upsert

import "context"

// Record is one source row keyed by column name.
type Record map[string]any

// Store opens the transaction a single Sync call runs in.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is the per-sync unit of work against the destination table.
type Tx interface {
	// Lookup returns key -> stored version for the given keys. Keys without a
	// row, or whose version column is NULL, are absent from the map.
	Lookup(ctx context.Context, table, keyColumn, versionColumn string, keys []string) (map[string]string, error)
	// BulkUpsert inserts rows, updating every non-key column when the key
	// (first column) already exists. It returns the number of rows affected.
	BulkUpsert(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
	Commit() error
	Rollback() error
}

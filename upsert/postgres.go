package upsert

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// DefaultTimestampLayout renders stored timestamps the way the Krux export
// serialises ExportDateTime, so an unchanged row compares equal as a string.
const DefaultTimestampLayout = "2006-01-02T15:04:05.999999999"

// PostgresStore is a Store over a lib/pq *sql.DB.
type PostgresStore struct {
	db        *sql.DB
	batchSize int
	layout    string
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, layout: DefaultTimestampLayout}
}

// WithBatchSize returns a shallow copy that splits writes into statements of
// at most size rows. Zero means as many rows as the parameter limit allows.
func (s *PostgresStore) WithBatchSize(size int) *PostgresStore {
	clone := *s
	clone.batchSize = size
	return &clone
}

// WithTimestampLayout returns a shallow copy that formats stored timestamps
// with layout. An Engine built on the copy renders incoming timestamps the same way.
func (s *PostgresStore) WithTimestampLayout(layout string) *PostgresStore {
	clone := *s
	clone.layout = layout
	return &clone
}

func (s *PostgresStore) TimestampLayout() string { return s.layout }

func (s *PostgresStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &pgTx{tx: tx, batchSize: s.batchSize, layout: s.layout}, nil
}

// Watermark returns the greatest stored value of column, formatted like
// Lookup's versions. ok is false for an empty table.
func (s *PostgresStore) Watermark(ctx context.Context, table, column string) (string, bool, error) {
	tableIdent, err := QuoteIdentifier(table)
	if err != nil {
		return "", false, fmt.Errorf("table: %w", err)
	}
	columnIdent, err := QuoteIdentifier(column)
	if err != nil {
		return "", false, fmt.Errorf("column: %w", err)
	}

	var latest any
	query := fmt.Sprintf("SELECT MAX(%s) FROM %s", columnIdent, tableIdent)
	if err := s.db.QueryRowContext(ctx, query).Scan(&latest); err != nil {
		return "", false, fmt.Errorf("query watermark: %w", err)
	}
	v, ok := FormatVersion(latest, s.layout)
	return v, ok, nil
}

type pgTx struct {
	tx        *sql.Tx
	batchSize int
	layout    string
}

func (t *pgTx) Lookup(ctx context.Context, table, keyColumn, versionColumn string, keys []string) (map[string]string, error) {
	existing := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return existing, nil
	}

	tableIdent, err := QuoteIdentifier(table)
	if err != nil {
		return nil, fmt.Errorf("table: %w", err)
	}
	idents, err := quoteAll([]string{keyColumn, versionColumn})
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s = ANY($1)", idents[0], idents[1], tableIdent, idents[0])
	rows, err := t.tx.QueryContext(ctx, query, pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("query existing keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var version any
		if err := rows.Scan(&key, &version); err != nil {
			return nil, fmt.Errorf("scan existing key: %w", err)
		}
		if v, ok := FormatVersion(version, t.layout); ok {
			existing[key] = v
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating existing keys: %w", err)
	}
	return existing, nil
}

func (t *pgTx) BulkUpsert(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	stmt, err := newUpsertStatement(table, columns)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if err := stmt.checkRows(rows); err != nil {
		return 0, err
	}

	size := stmt.rowsPerStatement()
	if t.batchSize > 0 && t.batchSize < size {
		size = t.batchSize
	}

	var affected int64
	for _, chunk := range chunkRows(rows, size) {
		res, err := t.tx.ExecContext(ctx, stmt.query(len(chunk)), flattenRows(chunk)...)
		if err != nil {
			return 0, fmt.Errorf("exec upsert: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			n = int64(len(chunk))
		}
		affected += n
	}
	return affected, nil
}

func (t *pgTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (t *pgTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback tx: %w", err)
	}
	return nil
}

// FormatVersion renders a change marker as the string compared during sync.
// ok is false for nil and for empty strings.
func FormatVersion(v any, layout string) (string, bool) {
	var s string
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		s = val
	case []byte:
		s = string(val)
	case json.Number:
		s = val.String()
	case time.Time:
		s = val.Format(layout)
	case fmt.Stringer:
		s = val.String()
	default:
		s = fmt.Sprintf("%v", val)
	}
	return s, s != ""
}

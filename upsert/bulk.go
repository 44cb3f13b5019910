package upsert

import (
	"fmt"
	"strings"
)

// maxBindParams is the most bind parameters Postgres accepts in one statement.
const maxBindParams = 65535

// upsertStatement renders INSERT ... ON CONFLICT statements for one table and
// column set. The first column is the conflict target.
type upsertStatement struct {
	table      string
	columns    []string
	setClauses []string
}

func newUpsertStatement(table string, columns []string) (*upsertStatement, error) {
	if len(columns) == 0 {
		return nil, ErrNoColumns
	}
	tableIdent, err := QuoteIdentifier(table)
	if err != nil {
		return nil, fmt.Errorf("table: %w", err)
	}
	quotedColumns, err := quoteAll(columns)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]int, len(quotedColumns))
	setClauses := make([]string, 0, len(quotedColumns)-1)
	for i, col := range quotedColumns {
		if prev, ok := seen[col]; ok {
			return nil, fmt.Errorf("columns %d and %d both map to %s", prev, i, col)
		}
		seen[col] = i
		if i == 0 {
			continue
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}

	return &upsertStatement{table: tableIdent, columns: quotedColumns, setClauses: setClauses}, nil
}

// rowsPerStatement is how many rows fit under the bind parameter limit.
func (s *upsertStatement) rowsPerStatement() int {
	return maxBindParams / len(s.columns)
}

// query renders the statement for rowCount rows with $n placeholders.
func (s *upsertStatement) query(rowCount int) string {
	placeholders := make([]string, rowCount)
	argIdx := 1
	for i := range placeholders {
		rowPlaceholders := make([]string, len(s.columns))
		for j := range s.columns {
			rowPlaceholders[j] = fmt.Sprintf("$%d", argIdx)
			argIdx++
		}
		placeholders[i] = fmt.Sprintf("(%s)", strings.Join(rowPlaceholders, ", "))
	}

	if len(s.setClauses) == 0 {
		return fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES %s ON CONFLICT (%s) DO NOTHING",
			s.table,
			strings.Join(s.columns, ", "),
			strings.Join(placeholders, ", "),
			s.columns[0],
		)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES %s ON CONFLICT (%s) DO UPDATE SET %s",
		s.table,
		strings.Join(s.columns, ", "),
		strings.Join(placeholders, ", "),
		s.columns[0],
		strings.Join(s.setClauses, ", "),
	)
}

// checkRows rejects ragged rows and repeated keys, either of which would
// make the statement fail server-side.
func (s *upsertStatement) checkRows(rows [][]any) error {
	seenKeys := make(map[string]int, len(rows))
	for idx, row := range rows {
		if len(row) != len(s.columns) {
			return fmt.Errorf("row %d: columns (%d) and values (%d) length mismatch", idx, len(s.columns), len(row))
		}
		key := fmt.Sprintf("%v", row[0])
		if prev, ok := seenKeys[key]; ok {
			return fmt.Errorf("rows %d and %d share duplicate key %q", prev, idx, key)
		}
		seenKeys[key] = idx
	}
	return nil
}

// chunkRows splits rows into runs of at most size.
func chunkRows(rows [][]any, size int) [][][]any {
	if size <= 0 || len(rows) <= size {
		return [][][]any{rows}
	}
	chunks := make([][][]any, 0, (len(rows)+size-1)/size)
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		chunks = append(chunks, rows[start:end])
	}
	return chunks
}

func flattenRows(rows [][]any) []any {
	if len(rows) == 0 {
		return nil
	}
	args := make([]any, 0, len(rows)*len(rows[0]))
	for _, row := range rows {
		args = append(args, row...)
	}
	return args
}

// Package schema describes the destination tables of the Krux export and
// creates them on demand.
package schema

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cantart/kruxsync/upsert"
)

// Column is a destination column; Name is the source field name.
type Column struct {
	Name string
	Type string
}

// Table binds a Krux export query to its destination table. Columns[0] is the
// primary key.
type Table struct {
	Name    string
	Query   string
	Columns []Column
}

var sqlType = regexp.MustCompile(`^[A-Z]+( [A-Z]+)*(\(\d+(,\d+)?\))?$`)

// ColumnNames returns the column set in insertion order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

func (t Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

// CreateStatement renders an idempotent CREATE TABLE for t.
func (t Table) CreateStatement() (string, error) {
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("table %q has no columns", t.Name)
	}
	tableIdent, err := upsert.QuoteIdentifier(t.Name)
	if err != nil {
		return "", fmt.Errorf("table: %w", err)
	}

	defs := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		ident, err := upsert.QuoteIdentifier(c.Name)
		if err != nil {
			return "", fmt.Errorf("table %s column[%d]: %w", t.Name, i, err)
		}
		if !sqlType.MatchString(c.Type) {
			return "", fmt.Errorf("table %s column %s: unsupported type %q", t.Name, c.Name, c.Type)
		}
		defs[i] = ident + " " + c.Type
		if i == 0 {
			defs[i] += " PRIMARY KEY"
		}
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", tableIdent, strings.Join(defs, ", ")), nil
}

// IndexStatement renders an idempotent secondary index on column.
func (t Table) IndexStatement(column string) (string, error) {
	tableIdent, err := upsert.QuoteIdentifier(t.Name)
	if err != nil {
		return "", fmt.Errorf("table: %w", err)
	}
	columnIdent, err := upsert.QuoteIdentifier(column)
	if err != nil {
		return "", fmt.Errorf("column: %w", err)
	}
	indexIdent, err := upsert.QuoteIdentifier(upsert.DeriveIndexName(t.Name, []string{column}, "btree"))
	if err != nil {
		return "", fmt.Errorf("index name: %w", err)
	}
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", indexIdent, tableIdent, columnIdent), nil
}

package schema

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cantart/kruxsync/upsert"
)

// Provisioner creates destination tables if they are missing. It never
// alters an existing table.
type Provisioner struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewProvisioner(db *sql.DB, logger zerolog.Logger) *Provisioner {
	return &Provisioner{db: db, logger: logger}
}

// EnsureTable creates t and, when t carries the change marker, an index on it.
func (p *Provisioner) EnsureTable(ctx context.Context, t Table) error {
	stmts := make([]string, 0, 2)
	create, err := t.CreateStatement()
	if err != nil {
		return err
	}
	stmts = append(stmts, create)
	if t.HasColumn(upsert.DefaultVersionColumn) {
		index, err := t.IndexStatement(upsert.DefaultVersionColumn)
		if err != nil {
			return err
		}
		stmts = append(stmts, index)
	}

	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure table %s: %w", t.Name, err)
		}
	}
	p.logger.Debug().Str("table", t.Name).Msg("table is ready")
	return nil
}

// EnsureAll ensures every table, stopping at the first failure.
func (p *Provisioner) EnsureAll(ctx context.Context, tables []Table) error {
	for _, t := range tables {
		if err := p.EnsureTable(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

package upsert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// DefaultVersionColumn is the source's last-modified marker.
const DefaultVersionColumn = "ExportDateTime"

var ErrNoColumns = errors.New("at least one column is required")

// Result reports what one Sync call did. Received = Invalid + Duplicates +
// Unchanged + the number of rows handed to the store.
type Result struct {
	Table      string
	Received   int
	Invalid    int
	Duplicates int
	Unchanged  int
	Written    int
	// LookupDegraded is set when the existing-state query failed and every
	// valid record was treated as changed.
	LookupDegraded bool
	Err            error
}

// OK reports whether the batch was applied (or needed no write).
func (r Result) OK() bool { return r.Err == nil }

func (r Result) MarshalZerologObject(e *zerolog.Event) {
	e.Str("table", r.Table).
		Int("received", r.Received).
		Int("invalid", r.Invalid).
		Int("duplicates", r.Duplicates).
		Int("unchanged", r.Unchanged).
		Int("written", r.Written).
		Bool("lookup_degraded", r.LookupDegraded)
	if r.Err != nil {
		e.AnErr("error", r.Err)
	}
}

// Engine writes the new or changed records of a batch in one transaction.
type Engine struct {
	store         Store
	versionColumn string
	layout        string
	logger        zerolog.Logger
}

type Option func(*Engine)

// WithVersionColumn overrides the change-marker column.
func WithVersionColumn(name string) Option {
	return func(e *Engine) { e.versionColumn = name }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// timestampLayouter is implemented by stores that render stored time.Time
// markers. Incoming markers are rendered with the same layout.
type timestampLayouter interface {
	TimestampLayout() string
}

func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:         store,
		versionColumn: DefaultVersionColumn,
		layout:        DefaultTimestampLayout,
		logger:        zerolog.Nop(),
	}
	if l, ok := store.(timestampLayouter); ok {
		e.layout = l.TimestampLayout()
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sync upserts the records of a batch whose version differs from the stored
// one. columns[0] is the key. Failures are reported in Result.Err; a failed
// write leaves the table as it was before the call.
func (e *Engine) Sync(ctx context.Context, table string, columns []string, records []Record) Result {
	res := Result{Table: table, Received: len(records)}
	logger := e.logger.With().Str("table", table).Logger()

	if len(records) == 0 {
		logger.Debug().Msg("no records provided")
		return res
	}
	if len(columns) == 0 {
		res.Err = ErrNoColumns
		return res
	}
	if _, err := newUpsertStatement(table, columns); err != nil {
		res.Err = err
		return res
	}
	keyColumn := columns[0]

	valid, invalid, duplicates := dedupeByKey(records, keyColumn)
	res.Invalid = invalid
	res.Duplicates = duplicates
	if len(valid) == 0 {
		logger.Debug().Int("invalid", invalid).Msg("no valid records with a key")
		return res
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		res.Err = err
		logger.Error().Err(err).Msg("sync failed")
		return res
	}
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				logger.Warn().Err(err).Msg("transaction rollback")
			}
		}
	}()

	keys := make([]string, len(valid))
	for i, kr := range valid {
		keys[i] = kr.key
	}
	existing, err := tx.Lookup(ctx, table, keyColumn, e.versionColumn, keys)
	if err != nil {
		logger.Warn().Err(err).Msg("existing-state lookup failed; treating every record as changed")
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Warn().Err(rbErr).Msg("transaction rollback")
		}
		res.LookupDegraded = true
		existing = map[string]string{}
		if tx, err = e.store.Begin(ctx); err != nil {
			// Nothing left open to roll back.
			committed = true
			res.Err = err
			logger.Error().Err(err).Msg("sync failed")
			return res
		}
	}

	changed := make([]Record, 0, len(valid))
	for _, kr := range valid {
		stored, hasStored := existing[kr.key]
		incoming, hasIncoming := FormatVersion(kr.record[e.versionColumn], e.layout)
		if hasStored && hasIncoming && stored == incoming {
			continue
		}
		changed = append(changed, kr.record)
	}
	res.Unchanged = len(valid) - len(changed)
	if len(changed) == 0 {
		logger.Info().Int("unchanged", res.Unchanged).Msg("no new or changed records")
		return res
	}

	n, err := tx.BulkUpsert(ctx, table, columns, project(changed, columns))
	if err != nil {
		res.Err = fmt.Errorf("upsert %s: %w", table, err)
		logger.Error().Err(err).Int("rows", len(changed)).Msg("bulk upsert failed")
		return res
	}
	if err := tx.Commit(); err != nil {
		// A failed commit has already ended the transaction.
		committed = true
		res.Err = fmt.Errorf("upsert %s: %w", table, err)
		logger.Error().Err(err).Msg("commit failed")
		return res
	}
	committed = true
	res.Written = int(n)

	logger.Info().EmbedObject(res).Msg("inserted/updated records")
	return res
}

type keyedRecord struct {
	key    string
	record Record
}

// dedupeByKey drops records without a key and collapses repeated keys to
// their last occurrence, keeping first-seen order.
func dedupeByKey(records []Record, keyColumn string) (valid []keyedRecord, invalid, duplicates int) {
	index := make(map[string]int, len(records))
	valid = make([]keyedRecord, 0, len(records))
	for _, r := range records {
		key, ok := keyString(r[keyColumn])
		if !ok {
			invalid++
			continue
		}
		if i, seen := index[key]; seen {
			valid[i].record = r
			duplicates++
			continue
		}
		index[key] = len(valid)
		valid = append(valid, keyedRecord{key: key, record: r})
	}
	return valid, invalid, duplicates
}

func keyString(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, val != ""
	case json.Number:
		return val.String(), val != ""
	default:
		s := fmt.Sprintf("%v", val)
		return s, s != ""
	}
}

// project lays records out positionally; absent fields become NULL.
func project(records []Record, columns []string) [][]any {
	rows := make([][]any, len(records))
	for i, r := range records {
		row := make([]any, len(columns))
		for j, col := range columns {
			row[j] = r[col]
		}
		rows[i] = row
	}
	return rows
}

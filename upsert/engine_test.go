package upsert

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
)

var reportColumns = []string{"UID", "ExportDateTime", "Value"}

const reportUpsertPrefix = `INSERT INTO "daily_reports" \("uid", "exportdatetime", "value"\) VALUES `

func TestEngineSync_WritesOnlyChanged(t *testing.T) {
	_, mock, store := newMockStore(t)
	engine := NewEngine(store)

	records := []Record{
		{"UID": "a", "ExportDateTime": "2025-07-01T00:00:00", "Value": 1},
		{"UID": "b", "ExportDateTime": "2025-07-02T00:00:00", "Value": 2},
		{"UID": "", "ExportDateTime": "2025-07-02T00:00:00", "Value": 3},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lookupQuery)).
		WithArgs(pq.Array([]string{"a", "b"})).
		WillReturnRows(sqlmock.NewRows([]string{"uid", "exportdatetime"}).
			AddRow("a", "2025-07-01T00:00:00").
			AddRow("b", "2025-07-01T00:00:00"))
	mock.ExpectExec(reportUpsertPrefix+`\(\$1, \$2, \$3\) ON CONFLICT \("uid"\) DO UPDATE SET "exportdatetime" = EXCLUDED."exportdatetime", "value" = EXCLUDED."value"`).
		WithArgs("b", "2025-07-02T00:00:00", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res := engine.Sync(context.Background(), "daily_reports", reportColumns, records)
	if !res.OK() {
		t.Fatalf("Sync: %v", res.Err)
	}
	if res.Received != 3 || res.Invalid != 1 || res.Unchanged != 1 || res.Written != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestEngineSync_EmptyInputTouchesNothing(t *testing.T) {
	_, mock, store := newMockStore(t)
	engine := NewEngine(store)

	res := engine.Sync(context.Background(), "daily_reports", reportColumns, nil)
	if !res.OK() || res.Written != 0 || res.Received != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestEngineSync_AllInvalidTouchesNothing(t *testing.T) {
	_, mock, store := newMockStore(t)
	engine := NewEngine(store)

	records := []Record{
		{"ExportDateTime": "2025-07-01T00:00:00"},
		{"UID": nil, "ExportDateTime": "2025-07-01T00:00:00"},
	}
	res := engine.Sync(context.Background(), "daily_reports", reportColumns, records)
	if !res.OK() || res.Invalid != 2 || res.Written != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestEngineSync_LookupFailureDegrades(t *testing.T) {
	_, mock, store := newMockStore(t)
	engine := NewEngine(store)

	records := []Record{
		{"UID": "a", "ExportDateTime": "2025-07-01T00:00:00", "Value": 1},
		{"UID": "b", "ExportDateTime": "2025-07-01T00:00:00", "Value": 2},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lookupQuery)).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec(reportUpsertPrefix+`\(\$1, \$2, \$3\), \(\$4, \$5, \$6\) ON CONFLICT`).
		WithArgs("a", "2025-07-01T00:00:00", 1, "b", "2025-07-01T00:00:00", 2).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	res := engine.Sync(context.Background(), "daily_reports", reportColumns, records)
	if !res.OK() {
		t.Fatalf("Sync: %v", res.Err)
	}
	if !res.LookupDegraded || res.Written != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestEngineSync_WriteFailureRollsBack(t *testing.T) {
	_, mock, store := newMockStore(t)
	engine := NewEngine(store)

	records := []Record{
		{"UID": "a", "ExportDateTime": "2025-07-01T00:00:00", "Value": "not-a-number"},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lookupQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"uid", "exportdatetime"}))
	mock.ExpectExec(reportUpsertPrefix).
		WillReturnError(errors.New(`invalid input syntax for type double precision: "not-a-number"`))
	mock.ExpectRollback()

	res := engine.Sync(context.Background(), "daily_reports", reportColumns, records)
	if res.OK() {
		t.Fatal("expected write failure, got OK")
	}
	if res.Written != 0 {
		t.Fatalf("Written = %d after failed write", res.Written)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestEngineSync_NothingChangedRollsBackReadTx(t *testing.T) {
	_, mock, store := newMockStore(t)
	engine := NewEngine(store)

	records := []Record{
		{"UID": "a", "ExportDateTime": "2025-07-01T00:00:00", "Value": 1},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lookupQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"uid", "exportdatetime"}).AddRow("a", "2025-07-01T00:00:00"))
	mock.ExpectRollback()

	res := engine.Sync(context.Background(), "daily_reports", reportColumns, records)
	if !res.OK() || res.Unchanged != 1 || res.Written != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestEngineSync_BeginFailure(t *testing.T) {
	_, mock, store := newMockStore(t)
	engine := NewEngine(store)

	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	res := engine.Sync(context.Background(), "daily_reports", reportColumns, []Record{{"UID": "a"}})
	if res.OK() {
		t.Fatal("expected begin failure, got OK")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// rollbackCounter counts Rollback calls on every transaction it hands out.
type rollbackCounter struct {
	Store
	rollbacks int
}

func (c *rollbackCounter) Begin(ctx context.Context) (Tx, error) {
	tx, err := c.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &countedTx{Tx: tx, counter: c}, nil
}

type countedTx struct {
	Tx
	counter *rollbackCounter
}

func (t *countedTx) Rollback() error {
	t.counter.rollbacks++
	return t.Tx.Rollback()
}

func TestEngineSync_BeginFailureAfterLookupFailure(t *testing.T) {
	_, mock, store := newMockStore(t)
	counter := &rollbackCounter{Store: store}
	engine := NewEngine(counter)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lookupQuery)).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()
	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	records := []Record{{"UID": "a", "ExportDateTime": "2025-07-01T00:00:00", "Value": 1}}
	res := engine.Sync(context.Background(), "daily_reports", reportColumns, records)
	if res.OK() {
		t.Fatal("expected begin failure, got OK")
	}
	if !res.LookupDegraded || res.Written != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if counter.rollbacks != 1 {
		t.Fatalf("rollbacks = %d, want 1", counter.rollbacks)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestEngineSync_UsesStoreTimestampLayout(t *testing.T) {
	_, mock, base := newMockStore(t)
	store := base.WithTimestampLayout("2006-01-02 15:04:05")
	engine := NewEngine(store)

	exported := time.Date(2025, 7, 1, 6, 30, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lookupQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"uid", "exportdatetime"}).AddRow("a", exported))
	mock.ExpectRollback()

	records := []Record{{"UID": "a", "ExportDateTime": exported, "Value": 1}}
	res := engine.Sync(context.Background(), "daily_reports", reportColumns, records)
	if !res.OK() || res.Unchanged != 1 || res.Written != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestEngineSync_CommitFailure(t *testing.T) {
	_, mock, store := newMockStore(t)
	engine := NewEngine(store)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lookupQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"uid", "exportdatetime"}))
	mock.ExpectExec(reportUpsertPrefix).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(errors.New("connection lost"))

	res := engine.Sync(context.Background(), "daily_reports", reportColumns, []Record{{"UID": "a", "ExportDateTime": "x"}})
	if res.OK() || res.Written != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestEngineSync_RejectsBadColumns(t *testing.T) {
	_, mock, store := newMockStore(t)
	engine := NewEngine(store)

	records := []Record{{"UID": "a"}}
	if res := engine.Sync(context.Background(), "daily_reports", nil, records); !errors.Is(res.Err, ErrNoColumns) {
		t.Fatalf("Sync without columns: %v", res.Err)
	}
	if res := engine.Sync(context.Background(), "daily reports", reportColumns, records); res.OK() {
		t.Fatal("Sync with unsafe table name succeeded")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDedupeByKey(t *testing.T) {
	records := []Record{
		{"UID": "a", "Value": 1},
		{"UID": ""},
		{"UID": "b", "Value": 2},
		{"UID": "a", "Value": 3},
		{"Value": 4},
	}

	valid, invalid, duplicates := dedupeByKey(records, "UID")
	if invalid != 2 || duplicates != 1 {
		t.Fatalf("invalid = %d, duplicates = %d", invalid, duplicates)
	}
	if len(valid) != 2 || valid[0].key != "a" || valid[1].key != "b" {
		t.Fatalf("unexpected valid records: %+v", valid)
	}
	if valid[0].record["Value"] != 3 {
		t.Fatalf("duplicate key kept %v, want last occurrence", valid[0].record["Value"])
	}
}

func TestProject_MissingFieldsAreNull(t *testing.T) {
	rows := project([]Record{{"UID": "a", "Value": 1}}, []string{"UID", "ExportDateTime", "Value"})
	if len(rows) != 1 || len(rows[0]) != 3 {
		t.Fatalf("unexpected rows: %v", rows)
	}
	if rows[0][0] != "a" || rows[0][1] != nil || rows[0][2] != 1 {
		t.Fatalf("unexpected projection: %v", rows[0])
	}
}

func TestKeyString(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
		valid bool
	}{
		{name: "string", value: "a1", want: "a1", valid: true},
		{name: "empty", value: "", valid: false},
		{name: "nil", value: nil, valid: false},
		{name: "number", value: json.Number("42"), want: "42", valid: true},
		{name: "zero", value: 0, want: "0", valid: true},
		{name: "false", value: false, want: "false", valid: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := keyString(tc.value)
			if ok != tc.valid || got != tc.want {
				t.Fatalf("keyString(%v) = %q, %v; want %q, %v", tc.value, got, ok, tc.want, tc.valid)
			}
		})
	}
}

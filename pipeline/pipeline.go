// Package pipeline runs the per-table fetch, provision and sync sequence.
package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cantart/kruxsync/schema"
	"github.com/cantart/kruxsync/upsert"
)

type Fetcher interface {
	Fetch(ctx context.Context, start, queryName string) []upsert.Record
}

type Provisioner interface {
	EnsureTable(ctx context.Context, t schema.Table) error
}

type Syncer interface {
	Sync(ctx context.Context, table string, columns []string, records []upsert.Record) upsert.Result
}

// Watermarker reports the latest stored change marker of a table.
type Watermarker interface {
	Watermark(ctx context.Context, table, column string) (string, bool, error)
}

type Options struct {
	// Since overrides every other start timestamp.
	Since string
	// DefaultStart is used when neither Since nor a watermark applies.
	DefaultStart string
	// Resume starts each table from its stored watermark.
	Resume bool
	// DryRun fetches and counts without touching the database.
	DryRun bool
}

type TableReport struct {
	Table   string
	Query   string
	Start   string
	Fetched int
	// Skipped is set when nothing was handed to the engine.
	Skipped bool
	Result  upsert.Result
	Err     error
}

func (r TableReport) Failed() bool { return r.Err != nil }

type Report struct {
	Tables   []TableReport
	Started  time.Time
	Finished time.Time
}

// Failed lists the tables whose sync did not complete.
func (r Report) Failed() []string {
	var failed []string
	for _, t := range r.Tables {
		if t.Failed() {
			failed = append(failed, t.Table)
		}
	}
	return failed
}

func (r Report) Written() int {
	n := 0
	for _, t := range r.Tables {
		n += t.Result.Written
	}
	return n
}

type Runner struct {
	fetcher     Fetcher
	provisioner Provisioner
	syncer      Syncer
	watermarker Watermarker
	logger      zerolog.Logger
	now         func() time.Time
}

type RunnerOption func(*Runner)

func WithWatermarker(w Watermarker) RunnerOption {
	return func(r *Runner) { r.watermarker = w }
}

func NewRunner(fetcher Fetcher, provisioner Provisioner, syncer Syncer, logger zerolog.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		fetcher:     fetcher,
		provisioner: provisioner,
		syncer:      syncer,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes tables in order. A failing table is recorded and the run
// moves on; only context cancellation stops later tables from running.
func (r *Runner) Run(ctx context.Context, tables []schema.Table, opts Options) Report {
	report := Report{Started: r.now()}
	for _, t := range tables {
		if err := ctx.Err(); err != nil {
			report.Tables = append(report.Tables, TableReport{Table: t.Name, Query: t.Query, Err: err})
			continue
		}
		report.Tables = append(report.Tables, r.runTable(ctx, t, opts))
	}
	report.Finished = r.now()
	return report
}

func (r *Runner) runTable(ctx context.Context, t schema.Table, opts Options) TableReport {
	logger := r.logger.With().Str("table", t.Name).Str("query", t.Query).Logger()
	tr := TableReport{Table: t.Name, Query: t.Query}

	tr.Start = r.startFor(ctx, t, opts, logger)
	records := r.fetcher.Fetch(ctx, tr.Start, t.Query)
	tr.Fetched = len(records)
	if len(records) == 0 {
		tr.Skipped = true
		logger.Info().Msg("nothing to sync")
		return tr
	}
	if opts.DryRun {
		tr.Skipped = true
		logger.Info().Int("records", tr.Fetched).Msg("dry run; not writing")
		return tr
	}

	if err := r.provisioner.EnsureTable(ctx, t); err != nil {
		tr.Err = err
		logger.Error().Err(err).Msg("table provisioning failed")
		return tr
	}

	tr.Result = r.syncer.Sync(ctx, t.Name, t.ColumnNames(), records)
	tr.Err = tr.Result.Err
	return tr
}

func (r *Runner) startFor(ctx context.Context, t schema.Table, opts Options, logger zerolog.Logger) string {
	if opts.Since != "" {
		return opts.Since
	}
	if opts.Resume && r.watermarker != nil {
		wm, ok, err := r.watermarker.Watermark(ctx, t.Name, upsert.DefaultVersionColumn)
		switch {
		case err != nil:
			logger.Warn().Err(err).Msg("watermark unavailable; using default start")
		case ok:
			return wm
		}
	}
	return opts.DefaultStart
}

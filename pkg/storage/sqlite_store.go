package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"libris/pkg/bench"
	"libris/pkg/core/index"
	"libris/pkg/workload"
)

const (
	dialectSQLite = "sqlite3"
	tableResults  = "results"
	tableRuns     = "runs"

	colRunID       = "run_id"
	colVariant     = "variant"
	colDatasetSize = "dataset_size"
	colOperation   = "operation"
	colStartedAt   = "started_at"
)

const schema = `
CREATE TABLE IF NOT EXISTS results (
	run_id          TEXT NOT NULL,
	variant         TEXT NOT NULL,
	dataset_size    INTEGER NOT NULL,
	operation       TEXT NOT NULL,
	samples         INTEGER NOT NULL,
	failed          INTEGER NOT NULL,
	operations      INTEGER NOT NULL,
	mean_ns         INTEGER NOT NULL,
	stddev_ns       INTEGER NOT NULL,
	min_ns          INTEGER NOT NULL,
	max_ns          INTEGER NOT NULL,
	mean_per_op_ns  INTEGER NOT NULL,
	footprint_bytes INTEGER NOT NULL,
	recorded_at     TEXT NOT NULL,
	PRIMARY KEY (variant, dataset_size, operation)
);
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	processor   TEXT NOT NULL,
	go_version  TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	experiments INTEGER NOT NULL,
	operations  INTEGER NOT NULL,
	seed        INTEGER NOT NULL,
	canceled    INTEGER NOT NULL
);`

type resultRow struct {
	RunID          string `db:"run_id"`
	Variant        string `db:"variant"`
	DatasetSize    int    `db:"dataset_size"`
	Operation      string `db:"operation"`
	Samples        int    `db:"samples"`
	Failed         int    `db:"failed"`
	Operations     int    `db:"operations"`
	MeanNS         int64  `db:"mean_ns"`
	StdDevNS       int64  `db:"stddev_ns"`
	MinNS          int64  `db:"min_ns"`
	MaxNS          int64  `db:"max_ns"`
	MeanPerOpNS    int64  `db:"mean_per_op_ns"`
	FootprintBytes int64  `db:"footprint_bytes"`
	RecordedAt     string `db:"recorded_at"`
}

type runRow struct {
	RunID       string `db:"run_id"`
	Processor   string `db:"processor"`
	GoVersion   string `db:"go_version"`
	StartedAt   string `db:"started_at"`
	FinishedAt  string `db:"finished_at"`
	Experiments int    `db:"experiments"`
	Operations  int    `db:"operations"`
	Seed        int64  `db:"seed"`
	Canceled    bool   `db:"canceled"`
}

// SQLiteStore keeps results in a SQLite database, one row per result key,
// plus one row per run.
type SQLiteStore struct {
	db *sqlx.DB
}

func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// a single connection keeps :memory: databases consistent
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL; PRAGMA synchronous = NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set sqlite pragmas: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Save writes the run and replaces the rows of every result it carries.
func (s *SQLiteStore) Save(ctx context.Context, rep *bench.Report) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	builder := goqu.Dialect(dialectSQLite)

	run := runRow{
		RunID:       rep.RunID,
		Processor:   rep.Processor,
		GoVersion:   rep.GoVersion,
		StartedAt:   formatTime(rep.StartedAt),
		FinishedAt:  formatTime(rep.FinishedAt),
		Experiments: rep.Experiments,
		Operations:  rep.Operations,
		Seed:        int64(rep.Seed),
		Canceled:    rep.Canceled,
	}
	if err := exec(ctx, tx, builder.Delete(tableRuns).Where(goqu.Ex{colRunID: run.RunID}).Prepared(true)); err != nil {
		return err
	}
	if err := exec(ctx, tx, builder.Insert(tableRuns).Rows(run).Prepared(true)); err != nil {
		return err
	}

	for _, r := range rep.Results {
		del := builder.Delete(tableResults).Where(goqu.Ex{
			colVariant:     string(r.Variant),
			colDatasetSize: r.DatasetSize,
			colOperation:   string(r.Operation),
		}).Prepared(true)
		if err := exec(ctx, tx, del); err != nil {
			return err
		}
		if err := exec(ctx, tx, builder.Insert(tableResults).Rows(toRow(r)).Prepared(true)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

type toSQLer interface {
	ToSQL() (string, []any, error)
}

func exec(ctx context.Context, tx *sqlx.Tx, stmt toSQLer) error {
	query, args, err := stmt.ToSQL()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("exec %q: %w", query, err)
	}
	return nil
}

// Load returns every stored result in key order.
func (s *SQLiteStore) Load(ctx context.Context) ([]bench.Result, error) {
	query, args, err := goqu.Dialect(dialectSQLite).
		From(tableResults).
		Order(goqu.I(colVariant).Asc(), goqu.I(colDatasetSize).Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []resultRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	results := make([]bench.Result, 0, len(rows))
	for _, row := range rows {
		r, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return merge(nil, results), nil
}

// Runs lists the recorded runs, oldest first.
func (s *SQLiteStore) Runs(ctx context.Context) ([]Metadata, error) {
	query, args, err := goqu.Dialect(dialectSQLite).
		From(tableRuns).
		Order(goqu.I(colStartedAt).Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	runs := make([]Metadata, 0, len(rows))
	for _, row := range rows {
		started, err := parseTime(row.StartedAt)
		if err != nil {
			return nil, err
		}
		finished, err := parseTime(row.FinishedAt)
		if err != nil {
			return nil, err
		}
		runs = append(runs, Metadata{
			RunID:       row.RunID,
			Processor:   row.Processor,
			GoVersion:   row.GoVersion,
			StartedAt:   started,
			FinishedAt:  finished,
			Experiments: row.Experiments,
			Operations:  row.Operations,
			Seed:        uint64(row.Seed),
			Canceled:    row.Canceled,
		})
	}
	return runs, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func toRow(r bench.Result) resultRow {
	return resultRow{
		RunID:          r.RunID,
		Variant:        string(r.Variant),
		DatasetSize:    r.DatasetSize,
		Operation:      string(r.Operation),
		Samples:        r.Samples,
		Failed:         r.Failed,
		Operations:     r.Operations,
		MeanNS:         int64(r.Mean),
		StdDevNS:       int64(r.StdDev),
		MinNS:          int64(r.Min),
		MaxNS:          int64(r.Max),
		MeanPerOpNS:    int64(r.MeanPerOp),
		FootprintBytes: int64(r.FootprintBytes),
		RecordedAt:     formatTime(r.Timestamp),
	}
}

func fromRow(row resultRow) (bench.Result, error) {
	ts, err := parseTime(row.RecordedAt)
	if err != nil {
		return bench.Result{}, err
	}
	return bench.Result{
		RunID:          row.RunID,
		Variant:        index.Kind(row.Variant),
		DatasetSize:    row.DatasetSize,
		Operation:      workload.Kind(row.Operation),
		Samples:        row.Samples,
		Failed:         row.Failed,
		Operations:     row.Operations,
		Mean:           time.Duration(row.MeanNS),
		StdDev:         time.Duration(row.StdDevNS),
		Min:            time.Duration(row.MinNS),
		Max:            time.Duration(row.MaxNS),
		MeanPerOp:      time.Duration(row.MeanPerOpNS),
		FootprintBytes: uint64(row.FootprintBytes),
		Timestamp:      ts,
	}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

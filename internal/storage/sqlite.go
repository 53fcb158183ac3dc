package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/san-kum/dyadsim/internal/task"
)

// SchemaVersion is the current schema version of the run database.
const SchemaVersion = 1

const schemaV1 = `
CREATE TABLE IF NOT EXISTS task_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    task TEXT NOT NULL,
    header TEXT NOT NULL,
    started_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_task_runs_task ON task_runs(task);

CREATE TABLE IF NOT EXISTS task_rows (
    run_id INTEGER NOT NULL REFERENCES task_runs(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    status TEXT NOT NULL,
    task_time REAL NOT NULL,
    experiment_time REAL NOT NULL,
    vals TEXT NOT NULL,
    PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

// InitSchema creates the tables of a fresh database. Existing databases at
// the current version are left alone.
func InitSchema(ctx context.Context, db *sql.DB) error {
	var version int
	err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version)
	if err == nil {
		if version > SchemaVersion {
			return fmt.Errorf("database schema version %d is newer than %d", version, SchemaVersion)
		}
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schemaV1); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`,
		SchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return tx.Commit()
}

func openDB(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := InitSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}

// SQLiteSink keeps every task run of an experiment in one database. Rows
// are buffered per run and written in a single transaction when the run
// closes, so tasks sharing a trial never hold the connection at once.
type SQLiteSink struct {
	db *sql.DB
}

func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := openDB(context.Background(), path)
	if err != nil {
		return nil, err
	}
	return &SQLiteSink{db: db}, nil
}

func (s *SQLiteSink) Open(t *task.Task) (task.Recorder, error) {
	return &sqliteRecorder{db: s.db, task: t.Name()}, nil
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

type sqliteRecorder struct {
	db      *sql.DB
	task    string
	header  []string
	started time.Time
	rows    []task.Row
	open    bool
}

func (r *sqliteRecorder) Begin(_ string, header []string) error {
	r.header = header
	r.started = time.Now()
	r.rows = r.rows[:0]
	r.open = true
	return nil
}

func (r *sqliteRecorder) Record(row task.Row) error {
	if !r.open {
		return fmt.Errorf("record %s: stream not open", r.task)
	}
	row.Values = append([]float64(nil), row.Values...)
	r.rows = append(r.rows, row)
	return nil
}

func (r *sqliteRecorder) Close() error {
	if !r.open {
		return nil
	}
	r.open = false
	ctx := context.Background()

	header, err := json.Marshal(r.header)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO task_runs (task, header, started_at) VALUES (?, ?, ?)`,
		r.task, string(header), r.started.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert task run %s: %w", r.task, err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO task_rows (run_id, seq, status, task_time, experiment_time, vals) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, row := range r.rows {
		if _, err := stmt.ExecContext(ctx, runID, i, row.Status.String(),
			row.TaskTime, row.ExperimentTime, encodeValues(row.Values)); err != nil {
			return fmt.Errorf("insert row %d of %s: %w", i, r.task, err)
		}
	}
	r.rows = nil
	return tx.Commit()
}

// encodeValues joins values with spaces; unlike JSON it keeps NaN and Inf.
func encodeValues(vs []float64) string {
	fields := make([]string, len(vs))
	for i, v := range vs {
		fields[i] = formatFloat(v)
	}
	return strings.Join(fields, " ")
}

func readSQLite(path, taskName string) (*Table, error) {
	ctx := context.Background()
	db, err := openDB(ctx, path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var (
		runID  int64
		header string
	)
	err = db.QueryRowContext(ctx,
		`SELECT id, header FROM task_runs WHERE task = ? ORDER BY id DESC LIMIT 1`, taskName).Scan(&runID, &header)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: no rows for %s", ErrRunNotFound, taskName)
	}
	if err != nil {
		return nil, err
	}

	t := &Table{Task: taskName}
	if err := json.Unmarshal([]byte(header), &t.Header); err != nil {
		return nil, fmt.Errorf("parse header of %s: %w", taskName, err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT status, task_time, experiment_time, vals FROM task_rows WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var status, vals string
		var taskTime, experimentTime float64
		if err := rows.Scan(&status, &taskTime, &experimentTime, &vals); err != nil {
			return nil, err
		}
		record := append([]string{taskName, status, formatFloat(taskTime), formatFloat(experimentTime)},
			strings.Fields(vals)...)
		row, err := parseRow(taskName, record)
		if err != nil {
			return nil, err
		}
		t.Rows = append(t.Rows, row)
	}
	return t, rows.Err()
}

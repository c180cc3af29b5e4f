package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"github.com/maumercado/taskdispatch/internal/task"
)

const schemaDDL = `CREATE TABLE IF NOT EXISTS demo_task (
	task_name TEXT PRIMARY KEY,
	sleep_time INTEGER NOT NULL,
	state INTEGER NOT NULL,
	worker TEXT NOT NULL DEFAULT '',
	assign_time INTEGER NOT NULL DEFAULT 0,
	complete_time INTEGER NOT NULL DEFAULT 0
)`

const (
	fetchOpenSQL   = `SELECT task_name, sleep_time, state, worker, assign_time, complete_time FROM demo_task WHERE state != ?`
	updateRunSQL   = `UPDATE demo_task SET state = ?, worker = ?, assign_time = ? WHERE task_name = ?`
	updateKillSQL  = `UPDATE demo_task SET state = ? WHERE task_name = ?`
	updateSuccSQL  = `UPDATE demo_task SET state = ?, complete_time = ? WHERE task_name = ?`
)

// SQLite is a Store backed by a single-file SQLite3 database via
// database/sql and github.com/mattn/go-sqlite3, matching the original
// reference implementation's demo_task table.
type SQLite struct {
	path string
	db   *sql.DB
}

// NewSQLite opens (creating the schema if necessary) a SQLite-backed store
// at path. The database file itself must already exist: NewSQLite returns an
// error for an absent file (the controller CLI also rejects it up front).
func NewSQLite(path string) (*SQLite, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("store: database file %q: %w", path, err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, storageErr("open", err)
	}
	// A single writer goroutine model (the Controller's owner goroutine)
	// never needs connection pooling, and SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, storageErr("create schema", err)
	}

	return &SQLite{path: path, db: db}, nil
}

// Open pings the database as a liveness probe, matching the original
// reference's "open/close as health check" usage of open_task_db.
func (s *SQLite) Open(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// FetchOpenTasks returns every row whose state is not task.Success.
func (s *SQLite) FetchOpenTasks(ctx context.Context) ([]task.Task, error) {
	rows, err := s.db.QueryContext(ctx, fetchOpenSQL, int(task.Success))
	if err != nil {
		return nil, storageErr("fetch_open_tasks", err)
	}
	defer rows.Close()

	var out []task.Task
	for rows.Next() {
		var t task.Task
		var state int
		if err := rows.Scan(&t.Name, &t.SleepTime, &state, &t.Worker, &t.AssignTime, &t.CompleteTime); err != nil {
			return nil, storageErr("fetch_open_tasks scan", err)
		}
		t.State = task.State(state)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("fetch_open_tasks rows", err)
	}
	return out, nil
}

// Update writes the column subset appropriate for t.State.
func (s *SQLite) Update(ctx context.Context, t task.Task) error {
	var (
		res sql.Result
		err error
	)
	switch t.State {
	case task.Running:
		res, err = s.db.ExecContext(ctx, updateRunSQL, int(task.Running), t.Worker, t.AssignTime, t.Name)
	case task.Killed:
		res, err = s.db.ExecContext(ctx, updateKillSQL, int(task.Killed), t.Name)
	case task.Success:
		res, err = s.db.ExecContext(ctx, updateSuccSQL, int(task.Success), t.CompleteTime, t.Name)
	default:
		return storageErr("update", fmt.Errorf("invalid update state %s", t.State))
	}
	if err != nil {
		return storageErr("update", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storageErr("update", fmt.Errorf("task %q not found", t.Name))
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

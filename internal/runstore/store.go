// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package runstore keeps the history of orchestrator runs in SQLite.
package runstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tombee/galaxyrun/pkg/errors"
	"github.com/tombee/galaxyrun/pkg/orchestrator"
)

var _ orchestrator.RunRecorder = (*Store)(nil)

// Store is a SQLite run history.
type Store struct {
	db *sql.DB
}

// Config contains SQLite connection configuration.
type Config struct {
	// Path is the database file path. Its directory is created if needed.
	Path string

	// WAL enables Write-Ahead Logging for concurrent readers.
	WAL bool
}

// Filter narrows List results.
type Filter struct {
	Template string

	// Limit caps the number of runs returned; zero means no limit.
	Limit int
}

// Open opens or creates the database and applies migrations.
func Open(cfg Config) (*Store, error) {
	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, &errors.LocalIOError{Op: "create directory", Path: dir, Cause: err}
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writes.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db}
	if err := s.configurePragmas(ctx, cfg.WAL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure pragmas: %w", err)
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) configurePragmas(ctx context.Context, wal bool) error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	if wal {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			template TEXT NOT NULL,
			history_id TEXT,
			execution_history_id TEXT,
			phase TEXT NOT NULL,
			success INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_template ON runs(template)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
		`CREATE TABLE IF NOT EXISTS run_outputs (
			run_id TEXT NOT NULL,
			name TEXT NOT NULL,
			path TEXT,
			PRIMARY KEY (run_id, name),
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,
	}
	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// RecordRun stores rec, replacing any earlier record with the same id.
func (s *Store) RecordRun(ctx context.Context, rec orchestrator.RunRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (id, template, history_id, execution_history_id, phase, success,
			error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Template, nullString(rec.ContainerID), nullString(rec.ExecutionContainerID),
		rec.Phase, rec.Success, nullString(rec.Error),
		formatTime(rec.StartedAt), formatTime(rec.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_outputs WHERE run_id = ?`, rec.ID); err != nil {
		return fmt.Errorf("failed to clear outputs: %w", err)
	}
	for name, path := range rec.Outputs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_outputs (run_id, name, path) VALUES (?, ?, ?)`,
			rec.ID, name, nullString(path)); err != nil {
			return fmt.Errorf("failed to record output %q: %w", name, err)
		}
	}
	return tx.Commit()
}

const selectRuns = `
	SELECT id, template, history_id, execution_history_id, phase, success, error, started_at, finished_at
	FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*orchestrator.RunRecord, error) {
	var rec orchestrator.RunRecord
	var history, execHistory, errStr sql.NullString
	var startedAt, finishedAt string

	if err := row.Scan(&rec.ID, &rec.Template, &history, &execHistory, &rec.Phase,
		&rec.Success, &errStr, &startedAt, &finishedAt); err != nil {
		return nil, err
	}
	rec.ContainerID = history.String
	rec.ExecutionContainerID = execHistory.String
	rec.Error = errStr.String
	rec.StartedAt = parseTime(startedAt)
	rec.FinishedAt = parseTime(finishedAt)
	return &rec, nil
}

// Get returns the run with the given id.
func (s *Store) Get(ctx context.Context, id string) (*orchestrator.RunRecord, error) {
	rec, err := scanRun(s.db.QueryRowContext(ctx, selectRuns+` WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "run", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if err := s.loadOutputs(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns runs, most recent first.
func (s *Store) List(ctx context.Context, filter Filter) ([]*orchestrator.RunRecord, error) {
	query := selectRuns + ` WHERE 1=1`
	args := []any{}
	if filter.Template != "" {
		query += " AND template = ?"
		args = append(args, filter.Template)
	}
	query += " ORDER BY started_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	var runs []*orchestrator.RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	rows.Close()

	for _, rec := range runs {
		if err := s.loadOutputs(ctx, rec); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (s *Store) loadOutputs(ctx context.Context, rec *orchestrator.RunRecord) error {
	rows, err := s.db.QueryContext(ctx, `SELECT name, path FROM run_outputs WHERE run_id = ?`, rec.ID)
	if err != nil {
		return fmt.Errorf("failed to load outputs: %w", err)
	}
	defer rows.Close()

	rec.Outputs = make(map[string]string)
	for rows.Next() {
		var name string
		var path sql.NullString
		if err := rows.Scan(&name, &path); err != nil {
			return fmt.Errorf("failed to scan output: %w", err)
		}
		rec.Outputs[name] = path.String
	}
	return rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// timeLayout has a fixed width so stored times sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

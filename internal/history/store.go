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

// Package history keeps a queryable record of instance lifecycle events in
// a local SQLite database.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tombee/mysqlctl/internal/lifecycle"
)

var _ lifecycle.Recorder = (*Store)(nil)

// DefaultLimit caps List when the filter sets no limit.
const DefaultLimit = 50

// timeFormat has a fixed width so timestamps sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Store is a SQLite-backed lifecycle.Recorder.
type Store struct {
	db   *sqlx.DB
	path string
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	DataDir string
	Event   string
	Since   time.Time
	Limit   int
}

type eventRow struct {
	ID         int64          `db:"id"`
	Timestamp  string         `db:"timestamp"`
	Event      string         `db:"event"`
	InstanceID sql.NullString `db:"instance_id"`
	DataDir    string         `db:"data_dir"`
	PID        int            `db:"pid"`
	ExitCode   int            `db:"exit_code"`
	Success    bool           `db:"success"`
	Message    string         `db:"message"`
	Flags      string         `db:"flags"`
	ConfigFile string         `db:"config_file"`
	Error      string         `db:"error"`
}

// Open opens or creates the database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// SQLite serializes writes
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

// Path returns the database file.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			event TEXT NOT NULL,
			instance_id TEXT,
			data_dir TEXT NOT NULL,
			pid INTEGER NOT NULL DEFAULT 0,
			exit_code INTEGER NOT NULL DEFAULT 0,
			success INTEGER NOT NULL DEFAULT 0,
			message TEXT NOT NULL DEFAULT '',
			flags TEXT NOT NULL DEFAULT '',
			config_file TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_data_dir ON events(data_dir)`,
		`CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Record implements lifecycle.Recorder.
func (s *Store) Record(ctx context.Context, event lifecycle.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	var flags string
	if len(event.Flags) > 0 {
		data, err := json.Marshal(event.Flags)
		if err != nil {
			return fmt.Errorf("failed to marshal flags: %w", err)
		}
		flags = string(data)
	}

	row := eventRow{
		Timestamp:  event.Timestamp.UTC().Format(timeFormat),
		Event:      event.Event,
		InstanceID: sql.NullString{String: event.InstanceID, Valid: event.InstanceID != ""},
		DataDir:    event.DataDir,
		PID:        event.PID,
		ExitCode:   event.ExitCode,
		Success:    event.Success,
		Message:    event.Message,
		Flags:      flags,
		ConfigFile: event.ConfigFile,
		Error:      event.Error,
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO events (timestamp, event, instance_id, data_dir, pid, exit_code, success, message, flags, config_file, error)
		VALUES (:timestamp, :event, :instance_id, :data_dir, :pid, :exit_code, :success, :message, :flags, :config_file, :error)`,
		row)
	if err != nil {
		return fmt.Errorf("failed to record %s event: %w", event.Event, err)
	}
	return nil
}

// List returns matching events, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]lifecycle.Event, error) {
	query := `SELECT id, timestamp, event, instance_id, data_dir, pid, exit_code, success, message, flags, config_file, error
		FROM events WHERE 1=1`
	var args []any

	if f.DataDir != "" {
		query += " AND data_dir = ?"
		args = append(args, f.DataDir)
	}
	if f.Event != "" {
		query += " AND event = ?"
		args = append(args, f.Event)
	}
	if !f.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, f.Since.UTC().Format(timeFormat))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	query += " ORDER BY timestamp DESC, id DESC LIMIT ?"
	args = append(args, limit)

	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	events := make([]lifecycle.Event, 0, len(rows))
	for _, r := range rows {
		e, err := r.toEvent()
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

// Prune deletes events older than before and returns how many were removed.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE timestamp < ?`,
		before.UTC().Format(timeFormat))
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (r eventRow) toEvent() (lifecycle.Event, error) {
	ts, err := time.Parse(timeFormat, r.Timestamp)
	if err != nil {
		return lifecycle.Event{}, fmt.Errorf("invalid timestamp on event %d: %w", r.ID, err)
	}

	e := lifecycle.Event{
		Timestamp:  ts,
		Event:      r.Event,
		InstanceID: r.InstanceID.String,
		DataDir:    r.DataDir,
		PID:        r.PID,
		ExitCode:   r.ExitCode,
		Success:    r.Success,
		Message:    r.Message,
		ConfigFile: r.ConfigFile,
		Error:      r.Error,
	}
	if r.Flags != "" {
		if err := json.Unmarshal([]byte(r.Flags), &e.Flags); err != nil {
			return lifecycle.Event{}, fmt.Errorf("invalid flags on event %d: %w", r.ID, err)
		}
	}
	return e, nil
}

package database

import (
	"database/sql"
	"fmt"
	"time"

	"plexmirror/internal/database/migrations"
	"plexmirror/internal/mirror"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// timeLayout is how timestamps are stored in TEXT columns.
const timeLayout = time.RFC3339Nano

// SQLiteJournal implements mirror.Journal using SQLite.
type SQLiteJournal struct {
	db   *sql.DB
	path string
}

// NewSQLiteJournal opens the journal at path and brings its schema up to date.
// path can be a file path or ":memory:" for an in-memory journal.
func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.CheckDBMigrationStatus(db); err != nil {
		if err := migrations.MigrateUp(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrating journal: %w", err)
		}
	}

	return &SQLiteJournal{db: db, path: path}, nil
}

// NewSQLiteJournalFromDB wraps an existing database connection.
// The caller is responsible for ensuring the schema is in place.
func NewSQLiteJournalFromDB(db *sql.DB) *SQLiteJournal {
	return &SQLiteJournal{db: db}
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// path can be a file path or ":memory:" for an in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to configure database (%s): %w", pragma, err)
		}
	}

	return db, nil
}

// Runs

func (s *SQLiteJournal) CreateRun(run *mirror.Run) error {
	return withRetry(func() error {
		_, err := s.db.Exec(
			`INSERT INTO runs (id, command, status, started_at) VALUES (?, ?, ?, ?)`,
			run.ID, run.Command, run.Status, run.StartedAt.UTC().Format(timeLayout),
		)
		if err != nil {
			return fmt.Errorf("creating run: %w", err)
		}
		return nil
	})
}

func (s *SQLiteJournal) FinishRun(id, status string, finishedAt time.Time) error {
	return withRetry(func() error {
		res, err := s.db.Exec(
			`UPDATE runs SET status = ?, finished_at = ? WHERE id = ?`,
			status, finishedAt.UTC().Format(timeLayout), id,
		)
		if err != nil {
			return fmt.Errorf("finishing run: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("finishing run: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("finishing run: no run with id %s", id)
		}
		return nil
	})
}

func (s *SQLiteJournal) ListRuns(limit int) ([]*mirror.Run, error) {
	rows, err := s.db.Query(
		`SELECT id, command, status, started_at, finished_at FROM runs
		ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*mirror.Run
	for rows.Next() {
		var (
			run      mirror.Run
			started  string
			finished sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.Command, &run.Status, &started, &finished); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if run.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if finished.Valid {
			t, err := parseTime(finished.String)
			if err != nil {
				return nil, err
			}
			run.FinishedAt = &t
		}
		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// Events

func (s *SQLiteJournal) RecordEvent(entry *mirror.JournalEntry) error {
	return withRetry(func() error {
		_, err := s.db.Exec(
			`INSERT INTO events (id, run_id, target, kind, src_path, dest_path, action, error, handled_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.ID, entry.RunID, entry.Target, entry.Kind, entry.SrcPath, entry.DestPath,
			entry.Action, entry.Error, entry.HandledAt.UTC().Format(timeLayout),
		)
		if err != nil {
			return fmt.Errorf("recording event: %w", err)
		}
		return nil
	})
}

func (s *SQLiteJournal) ListEvents(limit int) ([]*mirror.JournalEntry, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, target, kind, src_path, dest_path, action, error, handled_at FROM events
		ORDER BY handled_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	var entries []*mirror.JournalEntry
	for rows.Next() {
		var (
			e       mirror.JournalEntry
			handled string
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.Target, &e.Kind, &e.SrcPath, &e.DestPath,
			&e.Action, &e.Error, &handled); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		if e.HandledAt, err = parseTime(handled); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	return entries, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteJournal) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *SQLiteJournal) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", value, err)
	}
	return t, nil
}

// Compile-time check that SQLiteJournal implements mirror.Journal interface
var _ mirror.Journal = (*SQLiteJournal)(nil)

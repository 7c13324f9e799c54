package core

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// JournalEntry is one recorded execution directive.
type JournalEntry struct {
	ID        string    `json:"id"`
	Directive string    `json:"directive"`
	Target    string    `json:"target"`
	Remote    string    `json:"remote"`
	Blocking  bool      `json:"blocking"`
	Launched  bool      `json:"launched"`
	ExitCode  *int      `json:"exit_code,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Journal is a SQLite-backed log of execution directives. A nil *Journal is
// valid and records nothing.
type Journal struct{ db *sql.DB }

//go:embed migrations/*.sql
var migrationFS embed.FS

func OpenJournal(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// modernc sqlite serializes writers; one connection keeps :memory: coherent.
	db.SetMaxOpenConns(1)
	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) migrate() error {
	schema, err := migrationFS.ReadFile("migrations/0001_init.sql")
	if err != nil {
		return err
	}
	if _, err := j.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}

// Record stores e, assigning an ID and timestamp when missing.
func (j *Journal) Record(ctx context.Context, e JournalEntry) (JournalEntry, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if j == nil {
		return e, nil
	}
	var exit sql.NullInt64
	if e.ExitCode != nil {
		exit = sql.NullInt64{Int64: int64(*e.ExitCode), Valid: true}
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO executions (id, directive, target, remote, blocking, launched, exit_code, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Directive, e.Target, e.Remote, e.Blocking, e.Launched, exit, e.Error, e.CreatedAt.UnixNano())
	if err != nil {
		return e, fmt.Errorf("record execution: %w", err)
	}
	return e, nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]JournalEntry, error) {
	if j == nil {
		return []JournalEntry{}, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, directive, target, remote, blocking, launched, exit_code, error, created_at
		 FROM executions ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()
	out := []JournalEntry{}
	for rows.Next() {
		var (
			e    JournalEntry
			exit sql.NullInt64
			ts   int64
		)
		if err := rows.Scan(&e.ID, &e.Directive, &e.Target, &e.Remote, &e.Blocking, &e.Launched, &exit, &e.Error, &ts); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		if exit.Valid {
			code := int(exit.Int64)
			e.ExitCode = &code
		}
		e.CreatedAt = time.Unix(0, ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (j *Journal) Ping(ctx context.Context) error {
	if j == nil || j.db == nil {
		return errors.New("journal not initialized")
	}
	return j.db.PingContext(ctx)
}

func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	return j.db.Close()
}

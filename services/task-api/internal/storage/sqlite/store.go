// Package sqlite provides a file-backed task store for local development.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/MGabrielaGuerrero/devops/services/task-api/internal/tasks"
	"github.com/MGabrielaGuerrero/devops/services/task-api/migrations"
	"github.com/MGabrielaGuerrero/devops/shared/go/dataaccess"
)

const taskColumns = `id, title, description, completed, "createdAt", "updatedAt"`

// Store persists tasks in a SQLite database through database/sql.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path. SQLite allows a
// single writer, so the handle is limited to one connection.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_loc=UTC", path)
	db, err := dataaccess.OpenSQL(ctx, "sqlite3", dataaccess.PoolConfig{
		DSN:          dsn,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Migrate applies the embedded schema and returns the schema version.
func (s *Store) Migrate(ctx context.Context) (int64, error) {
	return migrations.Up(ctx, s.db, migrations.SQLite)
}

// DB exposes the database handle for readiness probes.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database handle.
func (s *Store) Close() {
	_ = s.db.Close()
}

// Ping checks the handle.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// List returns every task ordered by id.
func (s *Store) List(ctx context.Context) ([]tasks.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM "Tasks" ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []tasks.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Create inserts a task; an omitted completed flag is stored as false.
func (s *Store) Create(ctx context.Context, params tasks.CreateParams) (tasks.Task, error) {
	now := time.Now().UTC()
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO "Tasks" (title, description, completed, "createdAt", "updatedAt")
		VALUES (?, ?, ?, ?, ?)
		RETURNING `+taskColumns,
		params.Title, params.Description, params.CompletedOrDefault(), now, now,
	)
	return scanTask(row)
}

// Delete removes the task with id and reports whether a row was deleted.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM "Tasks" WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (tasks.Task, error) {
	var t tasks.Task
	var completed sql.NullBool
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &completed, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return tasks.Task{}, err
	}
	t.Completed = completed.Valid && completed.Bool
	return t, nil
}

var _ tasks.Repository = (*Store)(nil)

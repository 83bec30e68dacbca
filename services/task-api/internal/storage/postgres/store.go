// Package postgres provides the pgx-backed task store used in production.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq" // database/sql driver for goose migrations

	"github.com/MGabrielaGuerrero/devops/services/task-api/internal/tasks"
	"github.com/MGabrielaGuerrero/devops/services/task-api/migrations"
	"github.com/MGabrielaGuerrero/devops/shared/go/dataaccess"
)

const taskColumns = `id, title, description, completed, "createdAt", "updatedAt"`

// Store provides Postgres-backed persistence for tasks.
type Store struct {
	pool     *pgxpool.Pool
	ownsPool bool
}

// NewStore creates a store using the provided connection string and takes ownership of the pool.
// maxConns <= 0 keeps the pgx default.
func NewStore(ctx context.Context, connString string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	return &Store{pool: pool, ownsPool: true}, nil
}

// NewStoreFromPool wraps an existing pgx pool.
func NewStoreFromPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close closes the underlying pool if the store owns it.
func (s *Store) Close() {
	if s.ownsPool && s.pool != nil {
		s.pool.Close()
	}
}

// Pool exposes the underlying pgx pool.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// List returns every task ordered by id.
func (s *Store) List(ctx context.Context) ([]tasks.Task, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+taskColumns+` FROM "Tasks" ORDER BY id`)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (tasks.Task, error) {
		return scanTask(r)
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []tasks.Task{}
	}
	return out, nil
}

// Create inserts a task; an omitted completed flag is stored as false.
func (s *Store) Create(ctx context.Context, params tasks.CreateParams) (tasks.Task, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO "Tasks" (title, description, completed, "createdAt", "updatedAt")
		VALUES ($1, $2, COALESCE($3, false), now(), now())
		RETURNING `+taskColumns,
		params.Title, params.Description, params.Completed,
	)
	return scanTask(row)
}

// Delete removes the task with id and reports whether a row was deleted.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM "Tasks" WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (tasks.Task, error) {
	var t tasks.Task
	var completed *bool
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &completed, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return tasks.Task{}, err
	}
	t.Completed = completed != nil && *completed
	return t, nil
}

// Migrate applies the embedded schema through a database/sql handle and
// returns the schema version.
func Migrate(ctx context.Context, connString string) (int64, error) {
	db, err := dataaccess.OpenSQL(ctx, "postgres", dataaccess.PoolConfig{DSN: connString, MaxOpenConns: 1})
	if err != nil {
		return 0, fmt.Errorf("open migration handle: %w", err)
	}
	defer db.Close()
	return migrations.Up(ctx, db, migrations.Postgres)
}

var _ tasks.Repository = (*Store)(nil)

// Package memory is an in-process task store for local runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MGabrielaGuerrero/devops/services/task-api/internal/tasks"
)

// Store keeps tasks in a map guarded by a mutex. Ids start at 1 and are never reused.
type Store struct {
	mu     sync.RWMutex
	nextID int64
	rows   map[int64]tasks.Task
	now    func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		nextID: 1,
		rows:   map[int64]tasks.Task{},
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// List returns every task ordered by id.
func (s *Store) List(_ context.Context) ([]tasks.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]tasks.Task, 0, len(s.rows))
	for _, t := range s.rows {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Create stores a task, applying the completed default.
func (s *Store) Create(_ context.Context, params tasks.CreateParams) (tasks.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now()
	t := tasks.Task{
		ID:          s.nextID,
		Title:       cloneString(params.Title),
		Description: cloneString(params.Description),
		Completed:   params.CompletedOrDefault(),
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	s.rows[t.ID] = t
	s.nextID++
	return t, nil
}

// Delete removes a task and reports whether it existed.
func (s *Store) Delete(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rows[id]; !ok {
		return false, nil
	}
	delete(s.rows, id)
	return true, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

var _ tasks.Repository = (*Store)(nil)

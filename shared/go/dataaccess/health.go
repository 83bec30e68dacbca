// Package dataaccess holds the database/sql pool helpers and the probe
// registry served on /readyz.
package dataaccess

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Probe reports a dependency as unavailable by returning an error.
type Probe func(ctx context.Context) error

// Registry runs named probes concurrently, each under its own deadline.
type Registry struct {
	mu      sync.RWMutex
	probes  map[string]Probe
	timeout time.Duration
}

type Status struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency"`
}

// Result is the /readyz body. Status is "ok" or "unavailable".
type Result struct {
	Status string            `json:"status"`
	Checks map[string]Status `json:"checks"`
}

func (r Result) Healthy() bool { return len(r.Failing()) == 0 }

// Failing lists unhealthy check names in lexical order.
func (r Result) Failing() []string {
	var names []string
	for name, check := range r.Checks {
		if !check.Healthy {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

func NewRegistry() *Registry {
	return &Registry{probes: map[string]Probe{}, timeout: 2 * time.Second}
}

// Register adds probe under name, replacing any probe already registered there.
func (r *Registry) Register(name string, probe Probe) {
	r.mu.Lock()
	r.probes[name] = probe
	r.mu.Unlock()
}

func (r *Registry) Evaluate(ctx context.Context) Result {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		mu     sync.Mutex
		checks = make(map[string]Status, len(r.probes))
		g      errgroup.Group
	)
	for name, probe := range r.probes {
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()
			start := time.Now()
			err := probe(probeCtx)
			st := Status{Healthy: err == nil, Latency: time.Since(start).String()}
			if err != nil {
				st.Error = err.Error()
			}
			mu.Lock()
			checks[name] = st
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Status: "ok", Checks: checks}
	if !res.Healthy() {
		res.Status = "unavailable"
	}
	return res
}

// Handler answers 200 when every probe passes and 503 otherwise.
func Handler(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := reg.Evaluate(r.Context())
		code := http.StatusOK
		if !res.Healthy() {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(res)
	}
}

// SQLProbe pings db.
func SQLProbe(db *sql.DB) Probe {
	return db.PingContext
}

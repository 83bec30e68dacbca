// Package eventloop schedules application requests onto a bounded execution
// context.
//
// Purpose:
//
//	The deployment target processes requests on a single cooperative execution
//	context: a request holds the context while it runs and gives it up only at
//	explicit yield points (persistence I/O). Loop reproduces that model on top
//	of goroutines with a FIFO weighted semaphore. In cooperative mode the
//	semaphore has one token; in parallel mode it has one token per worker, or
//	no bound at all.
//
// Key Responsibilities:
//   - Middleware acquires a token before the handler runs and releases it
//     only after the response has been flushed to the connection
//   - Await releases the token around a blocking call and queues to get it back
//
// Debugging Notes:
//   - A request that never reaches Await (GET /load, GET /) blocks every other
//     request in cooperative mode for as long as it runs
//   - task_api_execution_context_waiting shows the queue depth
//
// Thread Safety:
//   - Loop is safe for concurrent use; the per-request hold state is owned by
//     the goroutine serving that request
//
// Error Handling:
//   - Acquisition ignores caller cancellation, so there is no error path
package eventloop

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/MGabrielaGuerrero/devops/services/task-api/internal/metrics"
)

// Mode selects how many requests may run on the execution context at once.
type Mode string

const (
	// Cooperative runs one request at a time.
	Cooperative Mode = "cooperative"
	// Parallel runs up to the configured number of workers, or unbounded.
	Parallel Mode = "parallel"
)

// Loop hands out execution context tokens.
type Loop struct {
	mode   Mode
	tokens int64
	sem    *semaphore.Weighted // nil when unbounded
}

// New builds a loop. workers is ignored in cooperative mode; in parallel mode
// 0 means unbounded.
func New(mode Mode, workers int) (*Loop, error) {
	switch mode {
	case Cooperative:
		return &Loop{mode: mode, tokens: 1, sem: semaphore.NewWeighted(1)}, nil
	case Parallel:
		if workers < 0 {
			return nil, fmt.Errorf("eventloop: negative worker count %d", workers)
		}
		l := &Loop{mode: mode, tokens: int64(workers)}
		if workers > 0 {
			l.sem = semaphore.NewWeighted(int64(workers))
		}
		return l, nil
	default:
		return nil, fmt.Errorf("eventloop: unknown mode %q", mode)
	}
}

// Mode returns the scheduling mode.
func (l *Loop) Mode() Mode { return l.mode }

// Tokens returns the number of requests that may hold the context at once; 0 is unbounded.
func (l *Loop) Tokens() int64 { return l.tokens }

type holdKey struct{}

// hold records whether the goroutine serving a request currently owns a token.
type hold struct {
	loop *Loop
	held bool
}

func (l *Loop) acquire(ctx context.Context) {
	metrics.ExecutionContextWaiting.Inc()
	start := time.Now()
	if l.sem != nil {
		// Background-derived context never cancels, so Acquire cannot fail.
		_ = l.sem.Acquire(context.WithoutCancel(ctx), 1)
	}
	metrics.ExecutionContextWaiting.Dec()
	metrics.RecordExecutionContextWait(time.Since(start))
	metrics.ExecutionContextHeld.Inc()
}

func (l *Loop) release() {
	metrics.ExecutionContextHeld.Dec()
	if l.sem != nil {
		l.sem.Release(1)
	}
}

// Run executes fn while holding a token. Await calls made by fn yield it.
func (l *Loop) Run(ctx context.Context, fn func(context.Context)) {
	h := &hold{loop: l}
	l.acquire(ctx)
	h.held = true
	defer func() {
		if h.held {
			l.release()
		}
	}()
	fn(context.WithValue(ctx, holdKey{}, h))
}

// Middleware runs each request on the execution context. The response is
// flushed before the token is released so a waiting request cannot complete
// ahead of the one that held the context.
func (l *Loop) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l.Run(r.Context(), func(ctx context.Context) {
			next.ServeHTTP(w, r.WithContext(ctx))
			_ = http.NewResponseController(w).Flush()
		})
	})
}

// Await is the yield point. It gives up the token held by the request in ctx,
// runs fn, then queues behind any waiters to take a token back. fn receives a
// context that is not cancelled when the caller goes away. Outside Run it just
// calls fn.
func (l *Loop) Await(ctx context.Context, fn func(context.Context) error) error {
	detached := context.WithoutCancel(ctx)
	h, _ := ctx.Value(holdKey{}).(*hold)
	if h == nil || h.loop != l || !h.held {
		return fn(detached)
	}

	l.release()
	h.held = false
	defer func() {
		l.acquire(ctx)
		h.held = true
	}()
	return fn(detached)
}

// Held reports whether ctx belongs to a request currently holding a token of l.
func (l *Loop) Held(ctx context.Context) bool {
	h, _ := ctx.Value(holdKey{}).(*hold)
	return h != nil && h.loop == l && h.held
}

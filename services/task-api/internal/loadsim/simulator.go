// Package loadsim keeps the calling goroutine busy for a fixed wall-clock
// duration so CPU-based autoscaling observes real load.
package loadsim

import (
	"context"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MGabrielaGuerrero/devops/services/task-api/internal/metrics"
	"github.com/MGabrielaGuerrero/devops/shared/go/observability"
)

// Acknowledgement is the plain-text body returned after a simulation. It is
// fixed and does not follow the configured duration.
const Acknowledgement = "Carga simulada por 10s"

// DefaultDuration is the busy period used when none is configured.
const DefaultDuration = 10 * time.Second

// Result describes a finished simulation.
type Result struct {
	Elapsed    time.Duration
	Iterations uint64
}

// Simulator spins for Duration on every Run.
type Simulator struct {
	duration time.Duration
	tracer   trace.Tracer
}

// New returns a simulator; a non-positive duration selects DefaultDuration.
func New(duration time.Duration) *Simulator {
	if duration <= 0 {
		duration = DefaultDuration
	}
	return &Simulator{
		duration: duration,
		tracer:   observability.Tracer("github.com/MGabrielaGuerrero/devops/services/task-api/internal/loadsim"),
	}
}

// Duration returns the configured busy period.
func (s *Simulator) Duration() time.Duration {
	return s.duration
}

// Run busy-loops until the duration has elapsed since entry. It never sleeps,
// never yields the execution context and ignores ctx cancellation; ctx only
// carries the trace parent.
func (s *Simulator) Run(ctx context.Context) Result {
	start := time.Now()

	_, span := s.tracer.Start(ctx, "load.simulate")
	metrics.LoadInFlight.Inc()

	var iterations uint64
	for time.Since(start) < s.duration {
		_ = rand.Float64()
		iterations++
	}

	elapsed := time.Since(start)
	metrics.LoadInFlight.Dec()
	metrics.RecordLoadSimulation(elapsed, iterations)
	span.SetAttributes(
		attribute.Int64("load.duration_ms", s.duration.Milliseconds()),
		attribute.Int64("load.elapsed_ms", elapsed.Milliseconds()),
		attribute.Int64("load.iterations", int64(iterations)),
	)
	span.End()

	return Result{Elapsed: elapsed, Iterations: iterations}
}

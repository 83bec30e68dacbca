// Package load exposes the load simulator over HTTP.
package load

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/MGabrielaGuerrero/devops/services/task-api/internal/loadsim"
	"github.com/MGabrielaGuerrero/devops/shared/go/observability"
)

type handler struct {
	sim    *loadsim.Simulator
	logger *zap.Logger
}

// RegisterRoutes mounts GET /load.
func RegisterRoutes(r chi.Router, sim *loadsim.Simulator, logger *zap.Logger) {
	h := &handler{sim: sim, logger: logger}
	r.Get("/load", h.simulate)
}

// simulate holds the execution context for the whole busy period. The body
// length is declared up front so the response is complete once flushed.
func (h *handler) simulate(w http.ResponseWriter, r *http.Request) {
	res := h.sim.Run(r.Context())

	requestID, _ := observability.RequestIDFromContext(r.Context())
	h.logger.Debug("load simulation finished",
		zap.String("request_id", requestID),
		zap.Duration("elapsed", res.Elapsed),
		zap.Uint64("iterations", res.Iterations))

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(loadsim.Acknowledgement)))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, loadsim.Acknowledgement)
}

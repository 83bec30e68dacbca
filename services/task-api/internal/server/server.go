// Package server builds the task-api HTTP server: middleware, operational
// endpoints and the execution context application routes run on.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/MGabrielaGuerrero/devops/services/task-api/internal/eventloop"
	"github.com/MGabrielaGuerrero/devops/services/task-api/internal/metrics"
	sharederrors "github.com/MGabrielaGuerrero/devops/shared/go/errors"
	"github.com/MGabrielaGuerrero/devops/shared/go/dataaccess"
	"github.com/MGabrielaGuerrero/devops/shared/go/observability"
)

const (
	corsAllowMethods = "GET,HEAD,PUT,PATCH,POST,DELETE"
	readHeaderLimit  = 10 * time.Second
)

// Options configure the HTTP server instance.
type Options struct {
	Port        int
	Logger      *zap.Logger
	ServiceName string
	// Readiness holds the probes behind /readyz; nil means always ready.
	Readiness *dataaccess.Registry
	// Loop schedules application routes; nil runs them without a shared context.
	Loop *eventloop.Loop
	// RegisterRoutes mounts the application routes. They run on Loop.
	RegisterRoutes func(chi.Router)
}

// New constructs an http.Server pre-configured with health, readiness,
// metrics and route listing endpoints.
func New(opts Options) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           NewHandler(opts),
		ReadHeaderTimeout: readHeaderLimit,
	}
}

// Drain shuts srv down and calls release once every in-flight request has
// finished. When ctx expires first, release is skipped so handlers that are
// still running keep a usable repository until the process exits.
func Drain(ctx context.Context, srv *http.Server, release func(context.Context) error) error {
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("drain http server: %w", err)
	}
	if release == nil {
		return nil
	}
	if err := release(ctx); err != nil {
		return fmt.Errorf("release runtime: %w", err)
	}
	return nil
}

// NewHandler builds the router used by New.
func NewHandler(opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Readiness == nil {
		opts.Readiness = dataaccess.NewRegistry()
	}

	router := chi.NewRouter()

	// CORS for every origin; must be first to answer preflight before routing.
	router.Use(cors)

	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		opts.Logger.Warn("method not allowed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestID(r)))
		sharederrors.Write(w, http.StatusMethodNotAllowed, sharederrors.New("METHOD_NOT_ALLOWED", "method not allowed",
			sharederrors.WithDetail(r.Method+" "+r.URL.Path),
			sharederrors.WithRequestID(requestID(r))))
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		opts.Logger.Warn("route not found",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestID(r)))
		sharederrors.Write(w, http.StatusNotFound, sharederrors.New("ROUTE_NOT_FOUND", "route not found",
			sharederrors.WithDetail(r.Method+" "+r.URL.Path),
			sharederrors.WithRequestID(requestID(r))))
	})

	router.Use(observability.RequestContextMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(opts.Logger))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	readiness := dataaccess.Handler(opts.Readiness)
	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		readiness(ww, r)
		if ww.Status() != http.StatusOK {
			opts.Logger.Warn("readiness check failed", zap.Int("status", ww.Status()))
		}
	})

	router.Get("/metrics", promhttp.Handler().ServeHTTP)

	router.Get("/debug/routes", func(w http.ResponseWriter, r *http.Request) {
		routes := []map[string]string{}
		walkFunc := func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
			routes = append(routes, map[string]string{
				"method": method,
				"route":  route,
			})
			return nil
		}
		if err := chi.Walk(router, walkFunc); err != nil {
			opts.Logger.Error("failed to walk routes", zap.Error(err))
			sharederrors.Write(w, http.StatusInternalServerError, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"routes": routes,
			"count":  len(routes),
		})
	})

	if opts.RegisterRoutes != nil {
		router.Group(func(r chi.Router) {
			if opts.Loop != nil {
				r.Use(opts.Loop.Middleware)
			}
			opts.RegisterRoutes(r)
		})
	}

	return router
}

// cors allows every origin and answers preflight requests before routing.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", corsAllowMethods)
			if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
				w.Header().Set("Access-Control-Allow-Headers", reqHeaders)
				w.Header().Add("Vary", "Access-Control-Request-Headers")
			}
			w.Header().Set("Content-Length", "0")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs each request and records HTTP metrics. Duration includes
// time spent waiting for the execution context.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start, ok := observability.StartTimeFromContext(r.Context())
			if !ok {
				start = time.Now()
			}
			id := requestID(r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("request_id", id),
			}
			if ua := r.Header.Get("User-Agent"); ua != "" {
				fields = append(fields, zap.String("user_agent", ua))
			}
			logger.Debug("incoming request", fields...)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			duration := time.Since(start)

			route := ""
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				route = rctx.RoutePattern()
			}
			metrics.RecordHTTPRequest(r.Method, route, status, duration)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Duration("duration", duration),
				zap.Int("bytes", ww.BytesWritten()),
				zap.String("request_id", id))
		})
	}
}

func requestID(r *http.Request) string {
	id, _ := observability.RequestIDFromContext(r.Context())
	return id
}

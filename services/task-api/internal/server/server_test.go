package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MGabrielaGuerrero/devops/services/task-api/internal/eventloop"
	loadapi "github.com/MGabrielaGuerrero/devops/services/task-api/internal/httpapi/load"
	tasksapi "github.com/MGabrielaGuerrero/devops/services/task-api/internal/httpapi/tasks"
	"github.com/MGabrielaGuerrero/devops/services/task-api/internal/loadsim"
	"github.com/MGabrielaGuerrero/devops/services/task-api/internal/storage/memory"
	"github.com/MGabrielaGuerrero/devops/shared/go/dataaccess"
)

// setupTestServer creates a handler with the given route registration function.
func setupTestServer(t *testing.T, registerRoutes func(chi.Router)) http.Handler {
	t.Helper()
	srv := New(Options{
		Port:           4000,
		Logger:         zap.NewNop(),
		ServiceName:    "task-api-test",
		RegisterRoutes: registerRoutes,
	})
	assert.Equal(t, ":4000", srv.Addr)
	return srv.Handler
}

func TestCORSAllowsEveryOrigin(t *testing.T) {
	handler := setupTestServer(t, func(r chi.Router) {
		r.Get("/test", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	tests := []struct {
		name           string
		origin         string
		method         string
		expectedStatus int
	}{
		{"preflight", "http://localhost:5173", http.MethodOptions, http.StatusNoContent},
		{"simple get", "https://frontend.example.com", http.MethodGet, http.StatusOK},
		{"no origin", "", http.MethodGet, http.StatusOK},
		{"preflight on unknown route", "http://evil.example", http.MethodOptions, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/test", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			req.Header.Set("Access-Control-Request-Headers", "Content-Type")
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
			if tt.method == http.MethodOptions {
				assert.Equal(t, corsAllowMethods, w.Header().Get("Access-Control-Allow-Methods"))
				assert.Equal(t, "Content-Type", w.Header().Get("Access-Control-Allow-Headers"))
			}
		})
	}
}

func TestNotFoundResponse(t *testing.T) {
	handler := setupTestServer(t, nil)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nonexistent", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "route not found", body["error"])
	assert.Equal(t, "ROUTE_NOT_FOUND", body["code"])
	assert.Equal(t, "GET /nonexistent", body["detail"])
	assert.NotEmpty(t, body["request_id"])
}

func TestMethodNotAllowedResponse(t *testing.T) {
	handler := setupTestServer(t, func(r chi.Router) {
		r.Get("/test", func(w http.ResponseWriter, r *http.Request) {})
	})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/test", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "method not allowed", body["error"])
	assert.Equal(t, "METHOD_NOT_ALLOWED", body["code"])
}

func TestDebugRoutesEndpoint(t *testing.T) {
	handler := setupTestServer(t, func(r chi.Router) {
		r.Get("/test1", func(w http.ResponseWriter, r *http.Request) {})
		r.Post("/test2", func(w http.ResponseWriter, r *http.Request) {})
	})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/routes", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Routes []map[string]string `json:"routes"`
		Count  int                 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, len(response.Routes), response.Count)

	routeSet := map[string]bool{}
	for _, route := range response.Routes {
		routeSet[route["method"]+" "+route["route"]] = true
	}
	for _, want := range []string{"GET /healthz", "GET /readyz", "GET /metrics", "GET /debug/routes", "GET /test1", "POST /test2"} {
		assert.True(t, routeSet[want], want)
	}
}

func TestHealthAndReadiness(t *testing.T) {
	reg := dataaccess.NewRegistry()
	var failing error
	var mu sync.Mutex
	reg.Register("storage", func(context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		return failing
	})

	handler := New(Options{Logger: zap.NewNop(), Readiness: reg}).Handler

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	mu.Lock()
	failing = errors.New("connection refused")
	mu.Unlock()

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestMetricsEndpoint(t *testing.T) {
	handler := setupTestServer(t, func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {})
	})
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `task_api_http_requests_total{method="GET",route="/ping",status="200"}`)
}

func TestRequestIDPropagation(t *testing.T) {
	handler := setupTestServer(t, func(r chi.Router) {
		r.Get("/test", func(w http.ResponseWriter, r *http.Request) {})
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRecovererReturns500(t *testing.T) {
	handler := setupTestServer(t, func(r chi.Router) {
		r.Get("/panic", func(w http.ResponseWriter, r *http.Request) { panic("boom") })
	})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

// appServer wires the real application routes the way main does.
func appServer(t *testing.T, mode eventloop.Mode, busy time.Duration) *httptest.Server {
	t.Helper()
	loop, err := eventloop.New(mode, 0)
	require.NoError(t, err)

	sim := loadsim.New(busy)
	handler := NewHandler(Options{
		Logger: zap.NewNop(),
		Loop:   loop,
		RegisterRoutes: func(r chi.Router) {
			tasksapi.RegisterRoutes(r, tasksapi.Dependencies{Repository: memory.NewStore(), Loop: loop})
			loadapi.RegisterRoutes(r, sim, zap.NewNop())
		},
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

type timedResponse struct {
	status int
	body   string
	done   time.Time
}

func get(t *testing.T, url string) timedResponse {
	t.Helper()
	resp, err := http.Get(url)
	if !assert.NoError(t, err) {
		return timedResponse{}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return timedResponse{status: resp.StatusCode, body: string(body), done: time.Now()}
}

func TestLoadRespectsDuration(t *testing.T) {
	const busy = 150 * time.Millisecond
	srv := appServer(t, eventloop.Cooperative, busy)

	start := time.Now()
	res := get(t, srv.URL+"/load")

	assert.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "Carga simulada por 10s", res.body)
	assert.GreaterOrEqual(t, res.done.Sub(start), busy)
}

func TestLoadBlocksGreetingInCooperativeMode(t *testing.T) {
	const busy = 300 * time.Millisecond
	srv := appServer(t, eventloop.Cooperative, busy)

	start := time.Now()
	loadCh := make(chan timedResponse, 1)
	go func() { loadCh <- get(t, srv.URL+"/load") }()

	time.Sleep(30 * time.Millisecond)
	hello := get(t, srv.URL+"/")
	load := <-loadCh

	assert.Equal(t, http.StatusOK, hello.status)
	assert.JSONEq(t, `{"message":"Hello World!"}`, hello.body)
	// The greeting could not start until the busy loop released the context.
	assert.GreaterOrEqual(t, hello.done.Sub(start), busy)
	assert.False(t, hello.done.Before(load.done.Add(-10*time.Millisecond)),
		"greeting completed %s before load", load.done.Sub(hello.done))
}

func TestLoadDoesNotBlockGreetingInParallelMode(t *testing.T) {
	const busy = 600 * time.Millisecond
	srv := appServer(t, eventloop.Parallel, busy)

	start := time.Now()
	loadCh := make(chan timedResponse, 1)
	go func() { loadCh <- get(t, srv.URL+"/load") }()

	time.Sleep(30 * time.Millisecond)
	hello := get(t, srv.URL+"/")
	load := <-loadCh

	assert.Equal(t, http.StatusOK, hello.status)
	assert.Less(t, hello.done.Sub(start), busy/2)
	assert.True(t, hello.done.Before(load.done))
}

func TestOperationalRoutesBypassExecutionContext(t *testing.T) {
	const busy = 300 * time.Millisecond
	srv := appServer(t, eventloop.Cooperative, busy)

	start := time.Now()
	loadCh := make(chan timedResponse, 1)
	go func() { loadCh <- get(t, srv.URL+"/load") }()

	time.Sleep(30 * time.Millisecond)
	health := get(t, srv.URL+"/healthz")
	<-loadCh

	assert.Equal(t, http.StatusOK, health.status)
	assert.Less(t, health.done.Sub(start), busy)
}

func serveBlocking(t *testing.T) (*http.Server, string, chan struct{}, chan struct{}) {
	t.Helper()
	entered, unblock := make(chan struct{}), make(chan struct{})
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-unblock
		w.WriteHeader(http.StatusOK)
	})}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(ln) }()
	return srv, "http://" + ln.Addr().String(), entered, unblock
}

func TestDrainKeepsRuntimeWhileRequestsRun(t *testing.T) {
	srv, url, entered, unblock := serveBlocking(t)
	defer close(unblock)

	go func() {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
		}
	}()
	<-entered

	released := false
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := Drain(ctx, srv, func(context.Context) error { released = true; return nil })

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, released)
}

func TestDrainReleasesRuntimeAfterRequestsFinish(t *testing.T) {
	srv, url, entered, unblock := serveBlocking(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
		}
	}()
	<-entered
	close(unblock)
	<-done

	released := false
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, Drain(ctx, srv, func(context.Context) error { released = true; return nil }))
	assert.True(t, released)

	assert.ErrorContains(t, Drain(ctx, &http.Server{}, func(context.Context) error { return errors.New("pool busy") }), "release runtime: pool busy")
}

package loadprobe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI mimics task-api. When serialized, every request holds one lock
// for its whole duration like the cooperative execution context.
func fakeAPI(t *testing.T, busy time.Duration, serialized bool) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var mu sync.Mutex
	var calls atomic.Int64
	hold := func() func() {
		if !serialized {
			return func() {}
		}
		mu.Lock()
		return mu.Unlock
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /load", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		defer hold()()
		time.Sleep(busy)
		_, _ = w.Write([]byte("Carga simulada por 10s"))
	})
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		defer hold()()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":"Hello World!"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestNewTrimsBaseURL(t *testing.T) {
	c := New("http://example.com/", WithTimeout(time.Second))
	assert.Equal(t, "http://example.com", c.BaseURL())
	assert.Equal(t, time.Second, c.http.Timeout)
}

func TestGetRecordsSample(t *testing.T) {
	srv, _ := fakeAPI(t, 20*time.Millisecond, false)
	c := New(srv.URL)

	load := c.Load(context.Background())
	require.NoError(t, load.Err)
	assert.True(t, load.OK())
	assert.Equal(t, "Carga simulada por 10s", load.Body)
	assert.GreaterOrEqual(t, load.Latency(), 20*time.Millisecond)

	hello := c.Hello(context.Background())
	assert.Equal(t, http.StatusOK, hello.Status)
	assert.JSONEq(t, `{"message":"Hello World!"}`, hello.Body)

	missing := c.Get(context.Background(), "/nope")
	assert.Equal(t, http.StatusNotFound, missing.Status)
	assert.False(t, missing.OK())
}

func TestGetTransportError(t *testing.T) {
	c := New("http://127.0.0.1:1", WithTimeout(500*time.Millisecond))
	sample := c.Hello(context.Background())
	assert.Error(t, sample.Err)
	assert.False(t, sample.OK())
	assert.False(t, sample.Completed.Before(sample.Started))
}

func TestHeadOfLineBlocked(t *testing.T) {
	srv, _ := fakeAPI(t, 250*time.Millisecond, true)

	// The fake releases its lock before net/http flushes the /load response.
	result, err := New(srv.URL, WithTolerance(50*time.Millisecond)).HeadOfLine(context.Background(), 30*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 50*time.Millisecond, result.Tolerance)
	assert.True(t, result.Blocked())
	assert.GreaterOrEqual(t, result.Hello.Completed.Sub(result.Load.Started), 250*time.Millisecond)
}

func TestHeadOfLineConcurrent(t *testing.T) {
	srv, _ := fakeAPI(t, 400*time.Millisecond, false)

	result, err := New(srv.URL).HeadOfLine(context.Background(), 30*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, result.Blocked())
	assert.Equal(t, []string{PathHello, PathLoad}, result.Order())
}

func TestBlockedIsStrictWithoutTolerance(t *testing.T) {
	loadDone := time.Now()
	at := func(offset time.Duration, tolerance time.Duration) HeadOfLineResult {
		return HeadOfLineResult{
			Load:      Sample{Path: PathLoad, Completed: loadDone},
			Hello:     Sample{Path: PathHello, Completed: loadDone.Add(offset)},
			Tolerance: tolerance,
		}
	}

	assert.True(t, at(0, 0).Blocked())
	assert.True(t, at(5*time.Millisecond, 0).Blocked())
	assert.False(t, at(-time.Millisecond, 0).Blocked())
	assert.True(t, at(-10*time.Millisecond, 50*time.Millisecond).Blocked())
	assert.False(t, at(-60*time.Millisecond, 50*time.Millisecond).Blocked())

	assert.Zero(t, New("http://example.com").tolerance)
}

func TestHeadOfLineReportsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	_, err := New(srv.URL).HeadOfLine(context.Background(), 0)
	assert.ErrorContains(t, err, "unexpected status 502")
}

func TestBurst(t *testing.T) {
	srv, calls := fakeAPI(t, 10*time.Millisecond, false)

	summary, err := New(srv.URL).Burst(context.Background(), BurstConfig{Requests: 12, Concurrency: 4})
	require.NoError(t, err)
	assert.Equal(t, int64(12), calls.Load())
	assert.Equal(t, PathLoad, summary.Path)
	assert.Equal(t, 12, summary.Requests)
	assert.Equal(t, 4, summary.Concurrency)
	assert.Zero(t, summary.Failures)
	assert.Equal(t, map[int]int{http.StatusOK: 12}, summary.Statuses)
	assert.GreaterOrEqual(t, summary.Min, 10*time.Millisecond)
	assert.LessOrEqual(t, summary.P50, summary.P95)
	assert.LessOrEqual(t, summary.P95, summary.Max)
	// 12 requests, 4 at a time, 10ms each.
	assert.GreaterOrEqual(t, summary.Wall, 30*time.Millisecond)
}

func TestBurstRejectsInvalidConfig(t *testing.T) {
	c := New("http://example.invalid")
	_, err := c.Burst(context.Background(), BurstConfig{Requests: 0, Concurrency: 1})
	assert.ErrorIs(t, err, ErrInvalidBurst)
	_, err = c.Burst(context.Background(), BurstConfig{Requests: 1, Concurrency: 0})
	assert.ErrorIs(t, err, ErrInvalidBurst)
}

func TestSummarize(t *testing.T) {
	base := time.Now()
	sample := func(status int, latency time.Duration) Sample {
		return Sample{Status: status, Started: base, Completed: base.Add(latency)}
	}

	s := Summarize([]Sample{
		sample(200, 40*time.Millisecond),
		sample(200, 10*time.Millisecond),
		sample(200, 30*time.Millisecond),
		sample(200, 20*time.Millisecond),
		sample(500, time.Millisecond),
		{Err: assert.AnError},
	})

	assert.Equal(t, 6, s.Requests)
	assert.Equal(t, 2, s.Failures)
	assert.Equal(t, map[int]int{200: 4, 500: 1}, s.Statuses)
	assert.Equal(t, 10*time.Millisecond, s.Min)
	assert.Equal(t, 40*time.Millisecond, s.Max)
	assert.Equal(t, 25*time.Millisecond, s.Mean)
	assert.Equal(t, 20*time.Millisecond, s.P50)
	assert.Equal(t, 40*time.Millisecond, s.P95)

	empty := Summarize(nil)
	assert.Zero(t, empty.Requests)
	assert.Zero(t, empty.Max)
}

// TestDeployedHeadOfLine runs against a real deployment, e.g.
// TASK_API_URL=http://backend-alb.example.com go test ./shared/go/loadprobe/...
func TestDeployedHeadOfLine(t *testing.T) {
	baseURL := os.Getenv("TASK_API_URL")
	if baseURL == "" {
		t.Skip("TASK_API_URL not set")
	}

	c := New(baseURL)
	hello := c.Hello(context.Background())
	require.True(t, hello.OK(), "greeting failed: %v status=%d", hello.Err, hello.Status)

	result, err := c.HeadOfLine(context.Background(), time.Second)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, result.Load.Latency(), 10*time.Second)
	assert.True(t, result.Blocked(), "greeting finished %s before load", result.Load.Completed.Sub(result.Hello.Completed))
}

// Package loadprobe drives a deployed task-api over HTTP: single calls to the
// greeting and load endpoints, the head-of-line probe and bursts of /load
// requests used to trigger autoscaling.
package loadprobe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Paths exercised by the probes.
const (
	PathHello = "/"
	PathLoad  = "/load"
)

// ErrInvalidBurst is returned when a burst has no requests or workers.
var ErrInvalidBurst = errors.New("loadprobe: requests and concurrency must be positive")

// Client issues probe requests against one base URL.
type Client struct {
	baseURL   string
	http      *http.Client
	tolerance time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithTimeout bounds every request. The load endpoint answers after
// LOAD_DURATION plus any queueing, so keep this well above it.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.http.Timeout = d }
}

// WithTolerance lets HeadOfLine count the greeting as blocked when it
// completes up to d before /load. The default of zero requires / to finish no
// earlier than /load; a positive value absorbs client-side scheduling jitter
// when both responses arrive almost together.
func WithTolerance(d time.Duration) Option {
	return func(cl *Client) { cl.tolerance = d }
}

// New returns a client for baseURL (scheme and host, optional path prefix).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Sample is the outcome of one request.
type Sample struct {
	Path      string    `json:"path"`
	Status    int       `json:"status"`
	Body      string    `json:"body,omitempty"`
	Started   time.Time `json:"started"`
	Completed time.Time `json:"completed"`
	Err       error     `json:"-"`
}

// Latency is the time from sending the request to reading the full body.
func (s Sample) Latency() time.Duration {
	return s.Completed.Sub(s.Started)
}

// OK reports whether the request succeeded with a 2xx status.
func (s Sample) OK() bool {
	return s.Err == nil && s.Status >= 200 && s.Status < 300
}

// Get requests path and records timing. Transport errors are kept in the sample.
func (c *Client) Get(ctx context.Context, path string) Sample {
	sample := Sample{Path: path, Started: time.Now()}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		sample.Err = fmt.Errorf("build request: %w", err)
		sample.Completed = time.Now()
		return sample
	}
	resp, err := c.http.Do(req)
	if err != nil {
		sample.Err = err
		sample.Completed = time.Now()
		return sample
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	sample.Completed = time.Now()
	sample.Status = resp.StatusCode
	sample.Body = string(body)
	if err != nil {
		sample.Err = fmt.Errorf("read body: %w", err)
	}
	return sample
}

// Hello calls GET /.
func (c *Client) Hello(ctx context.Context) Sample {
	return c.Get(ctx, PathHello)
}

// Load calls GET /load.
func (c *Client) Load(ctx context.Context) Sample {
	return c.Get(ctx, PathLoad)
}

// HeadOfLineResult pairs a /load request with a greeting sent Delay later.
type HeadOfLineResult struct {
	Load      Sample        `json:"load"`
	Hello     Sample        `json:"hello"`
	Delay     time.Duration `json:"delay"`
	Tolerance time.Duration `json:"tolerance"`
}

// Blocked reports whether the greeting could not complete until the load
// request had finished, which is the cooperative single-context behaviour.
func (r HeadOfLineResult) Blocked() bool {
	return !r.Hello.Completed.Before(r.Load.Completed.Add(-r.Tolerance))
}

// Order lists the paths in completion order.
func (r HeadOfLineResult) Order() []string {
	if r.Hello.Completed.Before(r.Load.Completed) {
		return []string{PathHello, PathLoad}
	}
	return []string{PathLoad, PathHello}
}

// HeadOfLine sends /load, waits delay, then sends /. Both requests run
// concurrently; the returned error reports transport or status failures.
func (c *Client) HeadOfLine(ctx context.Context, delay time.Duration) (HeadOfLineResult, error) {
	result := HeadOfLineResult{Delay: delay, Tolerance: c.tolerance}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		result.Load = c.Load(gctx)
		return sampleError(result.Load)
	})
	g.Go(func() error {
		select {
		case <-time.After(delay):
		case <-gctx.Done():
			return gctx.Err()
		}
		result.Hello = c.Hello(gctx)
		return sampleError(result.Hello)
	})
	if err := g.Wait(); err != nil {
		return result, err
	}
	return result, nil
}

// BurstConfig describes a batch of identical requests.
type BurstConfig struct {
	Path        string
	Requests    int
	Concurrency int
}

// Burst issues cfg.Requests GETs to cfg.Path with at most cfg.Concurrency in
// flight. Individual failures are counted in the summary, not returned.
func (c *Client) Burst(ctx context.Context, cfg BurstConfig) (Summary, error) {
	if cfg.Requests <= 0 || cfg.Concurrency <= 0 {
		return Summary{}, ErrInvalidBurst
	}
	if cfg.Path == "" {
		cfg.Path = PathLoad
	}

	samples := make([]Sample, cfg.Requests)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency)

	start := time.Now()
	for i := range samples {
		g.Go(func() error {
			samples[i] = c.Get(gctx, cfg.Path)
			return nil
		})
	}
	_ = g.Wait()

	summary := Summarize(samples)
	summary.Path = cfg.Path
	summary.Concurrency = cfg.Concurrency
	summary.Wall = time.Since(start)
	return summary, ctx.Err()
}

func sampleError(s Sample) error {
	if s.Err != nil {
		return fmt.Errorf("GET %s: %w", s.Path, s.Err)
	}
	if !s.OK() {
		return fmt.Errorf("GET %s: unexpected status %d", s.Path, s.Status)
	}
	return nil
}

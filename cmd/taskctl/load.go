package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/MGabrielaGuerrero/devops/shared/go/loadprobe"
)

const (
	expectBlocked    = "blocked"
	expectConcurrent = "concurrent"
)

func (c *cli) loadCmd() *cobra.Command {
	var requests, concurrency int
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Fire /load requests to drive CPU autoscaling",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := loadprobe.New(c.cfg.APIURL, loadprobe.WithTimeout(c.cfg.Timeout))
			summary, err := client.Burst(cmd.Context(), loadprobe.BurstConfig{
				Path:        loadprobe.PathLoad,
				Requests:    requests,
				Concurrency: concurrency,
			})
			if err != nil {
				return err
			}
			if err := writeSummary(cmd.OutOrStdout(), summary, c.cfg.Human); err != nil {
				return err
			}
			if summary.Failures > 0 {
				return &exitError{code: 1, msg: fmt.Sprintf("%d of %d requests failed", summary.Failures, summary.Requests)}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&requests, "requests", 10, "total /load requests")
	cmd.Flags().IntVar(&concurrency, "concurrency", 5, "requests in flight at once")
	return cmd
}

func (c *cli) holCmd() *cobra.Command {
	var (
		delay     time.Duration
		tolerance time.Duration
		expect    string
	)
	cmd := &cobra.Command{
		Use:   "hol",
		Short: "Check whether /load blocks a greeting sent after it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if expect != "" && expect != expectBlocked && expect != expectConcurrent {
				return fmt.Errorf("--expect must be %q or %q", expectBlocked, expectConcurrent)
			}
			if tolerance < 0 {
				return errors.New("--tolerance must not be negative")
			}
			client := loadprobe.New(c.cfg.APIURL, loadprobe.WithTimeout(c.cfg.Timeout), loadprobe.WithTolerance(tolerance))
			result, err := client.HeadOfLine(cmd.Context(), delay)
			if err != nil {
				return err
			}
			if err := writeHeadOfLine(cmd.OutOrStdout(), result, c.cfg.Human); err != nil {
				return err
			}

			switch {
			case expect == expectBlocked && !result.Blocked():
				return &exitError{code: 1, msg: "expected the greeting to wait for /load, but it completed first"}
			case expect == expectConcurrent && result.Blocked():
				return &exitError{code: 1, msg: "expected the greeting to complete before /load, but it was blocked"}
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&delay, "delay", time.Second, "wait between sending /load and /")
	cmd.Flags().DurationVar(&tolerance, "tolerance", 0,
		"count / as blocked when it completes up to this long before /load (0 requires / to finish no earlier than /load)")
	cmd.Flags().StringVar(&expect, "expect", "", "blocked or concurrent; sets the exit status")
	return cmd
}

type holOutput struct {
	Blocked        bool     `json:"blocked"`
	Order          []string `json:"order"`
	DelayMs        int64    `json:"delay_ms"`
	ToleranceMs    int64    `json:"tolerance_ms"`
	LoadLatencyMs  int64    `json:"load_latency_ms"`
	HelloLatencyMs int64    `json:"hello_latency_ms"`
}

func writeHeadOfLine(w io.Writer, r loadprobe.HeadOfLineResult, human bool) error {
	out := holOutput{
		Blocked:        r.Blocked(),
		Order:          r.Order(),
		DelayMs:        r.Delay.Milliseconds(),
		ToleranceMs:    r.Tolerance.Milliseconds(),
		LoadLatencyMs:  r.Load.Latency().Milliseconds(),
		HelloLatencyMs: r.Hello.Latency().Milliseconds(),
	}
	if !human {
		return encodeJSON(w, out)
	}
	fmt.Fprintf(w, "completion order: %s then %s\n", out.Order[0], out.Order[1])
	fmt.Fprintf(w, "/load took %dms, / took %dms (sent %dms later)\n", out.LoadLatencyMs, out.HelloLatencyMs, out.DelayMs)
	if out.Blocked {
		fmt.Fprintln(w, "greeting was blocked by /load")
	} else {
		fmt.Fprintln(w, "greeting was served concurrently")
	}
	return nil
}

type summaryOutput struct {
	Path        string      `json:"path"`
	Requests    int         `json:"requests"`
	Concurrency int         `json:"concurrency"`
	Failures    int         `json:"failures"`
	Statuses    map[int]int `json:"statuses"`
	MinMs       int64       `json:"min_ms"`
	MeanMs      int64       `json:"mean_ms"`
	P50Ms       int64       `json:"p50_ms"`
	P95Ms       int64       `json:"p95_ms"`
	MaxMs       int64       `json:"max_ms"`
	WallMs      int64       `json:"wall_ms"`
}

func writeSummary(w io.Writer, s loadprobe.Summary, human bool) error {
	out := summaryOutput{
		Path:        s.Path,
		Requests:    s.Requests,
		Concurrency: s.Concurrency,
		Failures:    s.Failures,
		Statuses:    s.Statuses,
		MinMs:       s.Min.Milliseconds(),
		MeanMs:      s.Mean.Milliseconds(),
		P50Ms:       s.P50.Milliseconds(),
		P95Ms:       s.P95.Milliseconds(),
		MaxMs:       s.Max.Milliseconds(),
		WallMs:      s.Wall.Milliseconds(),
	}
	if !human {
		return encodeJSON(w, out)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "requests\t%d (%d concurrent)\n", out.Requests, out.Concurrency)
	fmt.Fprintf(tw, "failures\t%d\n", out.Failures)
	fmt.Fprintf(tw, "latency min/mean/p50/p95/max\t%d/%d/%d/%d/%d ms\n", out.MinMs, out.MeanMs, out.P50Ms, out.P95Ms, out.MaxMs)
	fmt.Fprintf(tw, "wall time\t%dms\n", out.WallMs)
	return tw.Flush()
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}
	return nil
}

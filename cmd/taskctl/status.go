package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/MGabrielaGuerrero/devops/shared/go/dataaccess"
	"github.com/MGabrielaGuerrero/devops/shared/go/loadprobe"
	"github.com/MGabrielaGuerrero/devops/shared/go/logging"
)

const (
	stateHealthy   = "healthy"
	stateUnhealthy = "unhealthy"
	statePartial   = "partial"
)

type ComponentStatus struct {
	Name      string `json:"name"`
	State     string `json:"state"` // healthy, unhealthy
	LatencyMs int64  `json:"latency_ms"`
	Message   string `json:"message,omitempty"`
	Endpoint  string `json:"endpoint,omitempty"`
}

type StatusOutput struct {
	Timestamp  string            `json:"timestamp"`
	APIURL     string            `json:"api_url"`
	Components []ComponentStatus `json:"components"`
	Overall    string            `json:"overall"` // healthy, unhealthy, partial
}

func (c *cli) statusCmd() *cobra.Command {
	var checkTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check API liveness, readiness and database connectivity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), checkTimeout*3)
			defer cancel()

			output := collectStatus(ctx, c.cfg, checkTimeout)
			if err := writeStatus(cmd.OutOrStdout(), output, c.cfg.Human); err != nil {
				return err
			}
			if output.Overall != stateHealthy {
				return &exitError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&checkTimeout, "check-timeout", 2*time.Second, "timeout for each component check")
	return cmd
}

func collectStatus(ctx context.Context, cfg Config, timeout time.Duration) StatusOutput {
	client := loadprobe.New(cfg.APIURL, loadprobe.WithTimeout(timeout))
	components := []ComponentStatus{
		checkHTTP(ctx, client, "api", "/healthz"),
		checkHTTP(ctx, client, "api-readiness", "/readyz"),
	}
	if cfg.DatabaseURL != "" {
		components = append(components, checkPostgres(ctx, cfg.DatabaseURL, timeout))
	}

	unhealthy := 0
	for _, comp := range components {
		if comp.State != stateHealthy {
			unhealthy++
		}
	}
	overall := stateHealthy
	switch {
	case unhealthy == len(components):
		overall = stateUnhealthy
	case unhealthy > 0:
		overall = statePartial
	}

	return StatusOutput{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		APIURL:     cfg.APIURL,
		Components: components,
		Overall:    overall,
	}
}

func checkHTTP(ctx context.Context, client *loadprobe.Client, name, path string) ComponentStatus {
	sample := client.Get(ctx, path)
	status := ComponentStatus{
		Name:      name,
		State:     stateHealthy,
		LatencyMs: sample.Latency().Milliseconds(),
		Endpoint:  client.BaseURL() + path,
	}
	switch {
	case sample.Err != nil:
		status.State = stateUnhealthy
		status.Message = fmt.Sprintf("request failed: %v", sample.Err)
	case !sample.OK():
		status.State = stateUnhealthy
		status.Message = fmt.Sprintf("status %d: %s", sample.Status, sample.Body)
	}
	return status
}

func checkPostgres(ctx context.Context, dsn string, timeout time.Duration) ComponentStatus {
	endpoint := logging.RedactString(dsn)
	start := time.Now()

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	db, err := dataaccess.OpenSQL(pingCtx, "postgres", dataaccess.PoolConfig{DSN: dsn, MaxOpenConns: 1})
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return ComponentStatus{
			Name:      "postgres",
			State:     stateUnhealthy,
			LatencyMs: latency,
			Message:   fmt.Sprintf("ping failed: %s", logging.RedactString(err.Error())),
			Endpoint:  endpoint,
		}
	}
	defer db.Close()

	return ComponentStatus{
		Name:      "postgres",
		State:     stateHealthy,
		LatencyMs: latency,
		Message:   "connection successful",
		Endpoint:  endpoint,
	}
}

func writeStatus(w io.Writer, output StatusOutput, human bool) error {
	if !human {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(output); err != nil {
			return fmt.Errorf("encode JSON: %w", err)
		}
		return nil
	}

	fmt.Fprintf(w, "task-api status (%s)\n", output.APIURL)
	fmt.Fprintf(w, "Timestamp: %s\n", output.Timestamp)
	fmt.Fprintf(w, "Overall: %s\n\n", output.Overall)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "COMPONENT\tSTATE\tLATENCY\tMESSAGE")
	for _, comp := range output.Components {
		fmt.Fprintf(tw, "%s\t%s\t%dms\t%s\n", comp.Name, comp.State, comp.LatencyMs, comp.Message)
	}
	return tw.Flush()
}

// Command taskctl is the operator CLI for a task-api deployment.
//
// Purpose:
//   Checks the health of a running API and its database, drives synthetic
//   load against /load to exercise autoscaling, probes head-of-line blocking
//   and renders the deployment topology for the provisioning tool.
//
// Usage:
//   taskctl status [--human]
//   taskctl load --requests 20 --concurrency 5
//   taskctl hol --delay 1s --expect blocked
//   taskctl topology --db-name test_local --format tfvars
//
// Configuration:
//   Flags > TASKCTL_* environment variables > ~/.taskctl/config.yaml > defaults.
//   e.g. TASKCTL_API_URL=http://backend-alb.example.com
package main

import (
	"errors"
	"fmt"
	"os"
)

var version = "dev"

// exitError carries a process exit status without printing a usage error.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			if exitErr.msg != "" {
				fmt.Fprintln(os.Stderr, exitErr.msg)
			}
			os.Exit(exitErr.code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

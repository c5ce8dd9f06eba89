// Package main is the entry point for the deploydash command line client.
package main

import (
	"errors"
	"fmt"
	"os"

	apiclient "github.com/Deployment-Dashboard/Deployment-Dashboard/pkg/api/client"
)

// Build information injected via ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	root := newRootCmd(os.Stdout, fmt.Sprintf("%s (commit: %s)", version, commit))
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var apiErr apiclient.APIError
		if errors.As(err, &apiErr) && apiErr.Forceable() {
			fmt.Fprintln(os.Stderr, "rerun with --force to record it anyway")
		}
		os.Exit(1)
	}
}

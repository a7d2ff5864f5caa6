// Copyright 2025 James Ross
//
// twinctl is the one sanctioned operator entry point onto a running
// digital twin: it publishes simulation-control and incident-patients
// messages to the bus rather than re-implementing the excluded REST API.
// Grounded in the pack's cobra-based simulator CLIs (inference-sim's
// cmd/root.go).
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

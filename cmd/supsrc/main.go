// Command supsrc is the autosave-for-Git daemon's CLI entry point: a
// thin cobra front-end over internal/orchestrator, internal/config, and
// internal/tui. Flag parsing and output formatting live here; every
// decision about when to stage, commit, or push lives in the packages
// this command wires together.
package main

import (
	"fmt"
	"os"
)

// exitCode lets a command signal a specific successful-path exit status
// (130 on SIGINT per §6's CLI surface) without cobra treating it as a
// command error.
var exitCode int

func main() {
	os.Exit(run())
}

func run() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return exitCode
}

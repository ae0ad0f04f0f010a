//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"
)

// registerSignals wires SIGINT/SIGTERM to ch, the daemon's graceful
// shutdown trigger.
func registerSignals(ch chan<- os.Signal) {
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
}

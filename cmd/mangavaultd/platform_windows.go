//go:build windows

package main

import (
	"os"
	"os/signal"
	"syscall"
)

// registerSignals wires SIGINT to ch. Windows has no SIGTERM
// equivalent delivered through os/signal; service-manager shutdown on
// Windows is out of scope here (no-goal: outer API/service layer).
func registerSignals(ch chan<- os.Signal) {
	signal.Notify(ch, syscall.SIGINT)
}

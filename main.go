// daemonproxy-go is a POSIX process supervisor usable as PID 1: it
// manages a table of named services, reaps and restarts their
// processes per service, and exposes that table to controller
// connections over a line-oriented text protocol.
package main

import (
	"fmt"
	"os"

	"daemonproxy-go/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

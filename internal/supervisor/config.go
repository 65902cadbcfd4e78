// Package supervisor wires components A-J into the running process:
// the main loop (component G), the controller connections built on
// top of internal/protocol (component F), and the failsafe-gated
// shutdown sequence (component I).
package supervisor

import (
	"time"

	"daemonproxy-go/internal/options"
	"daemonproxy-go/internal/pool"
)

// Config is the resolved set of CLI-level supervisor options. The
// --config file named by ConfigPath is not merged into it: Run replays
// that file's lines through the same protocol.Dispatch a live
// controller connection uses (spec.md §6's "config file is just a
// canned command stream").
type Config struct {
	StdinMode    bool
	ConfigPath   string
	SocketPath   string
	ExecOnExit   []string
	FailsafeCode string
	IsPID1       bool

	ServicePool pool.Spec
	FdPool      pool.Spec
	ControlPool pool.Spec

	ShutdownGrace   time.Duration
	ShutdownKill    time.Duration
	ShutdownDrain   time.Duration
}

// DefaultShutdownGrace/Kill/Drain are the t1/t2/t3 waits of the staged
// shutdown sequence, used when the matching Config field is zero.
const (
	DefaultShutdownGrace = 5 * time.Second
	DefaultShutdownKill  = 2 * time.Second
	DefaultShutdownDrain = 500 * time.Millisecond
)

// NewOptionRegistry defines the supervisor's global typed options
// (component H). The log.filter command writes log.level; service.opts
// and the CLI flags do not use this registry (restart_interval and
// triggers live on the Service itself via service.opts).
func NewOptionRegistry() *options.Registry {
	r := options.NewRegistry()
	r.Define("log.level", options.KindEnum, []string{"debug", "info", "warn", "error"}, "info")
	r.Define("log.format", options.KindEnum, []string{"text", "json"}, "text")
	r.Define("shutdown.grace", options.KindDuration, nil, "5s")
	r.Define("shutdown.kill", options.KindDuration, nil, "2s")
	r.Define("shutdown.drain", options.KindDuration, nil, "500ms")
	return r
}

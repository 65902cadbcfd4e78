package protocol

import (
	"daemonproxy-go/errors"
	"daemonproxy-go/internal/clock"
	"daemonproxy-go/internal/failsafe"
	"daemonproxy-go/internal/fdtable"
	"daemonproxy-go/internal/options"
	"daemonproxy-go/internal/service"
	"daemonproxy-go/internal/sigcap"
	"daemonproxy-go/logging"
)

// EventSink receives lines this connection's handlers want written
// back out (a command's own reply) or broadcast to every connected
// controller (service.state, fd.state, signal).
type EventSink interface {
	// Reply writes a line back to the connection that issued the
	// current command.
	Reply(line string)
	// Broadcast writes a line to every connected controller, including
	// this one.
	Broadcast(line string)
	// TrySend writes a line back to the issuing connection, reporting
	// false instead of blocking if its output buffer is saturated.
	// statedump uses this to pause mid-dump rather than drop output.
	TrySend(line string) bool
}

// Context is the set of supervisor components a command handler may
// touch. One Context exists per connection; all of its pointers are
// shared with the supervisor's other connections and the main loop, so
// handlers run only on the main loop goroutine (spec.md §5's
// single-threaded-core invariant, carried into this Go implementation
// as "only the loop goroutine calls Dispatch").
type Context struct {
	Services *service.Table
	Fds      *fdtable.Table
	Signals  *sigcap.Capture
	Options  *options.Registry
	Failsafe *failsafe.Guard
	Clock    clock.Source
	Env      []string

	Events EventSink
	Dump   *DumpCursor

	// RequestShutdown is invoked by the shutdown/terminate commands once
	// the failsafe guard has let them through; the supervisor's main
	// loop supplies the actual sequencing (component G/I). graceful
	// selects shutdown's SIGTERM-then-SIGKILL staging versus terminate's
	// immediate SIGKILL.
	RequestShutdown func(graceful bool)
	ExecOnExitArgv  func([]string)

	// SetLogFilter and SetLogDest back log.filter/log.dest; both are
	// optional (nil means the command replies "invalid").
	SetLogFilter func(level string) error
	SetLogDest   func(path string) error
}

// Dispatch parses and runs one input line. Parse and handler errors are
// both reported back to the connection as an "error" reply line rather
// than returned, matching the protocol's "never drop the connection on
// a bad command" contract; only a nil verb (blank/comment line)
// produces no reply at all.
func Dispatch(ctx *Context, line string) {
	verb, args := ParseCommand(line)
	if verb == "" {
		return
	}
	h, ok := commandTable[verb]
	if !ok {
		ctx.Events.Reply("error\tunknown-command\t" + verb)
		logging.Default().Warn("unknown controller command", "verb", verb)
		return
	}
	if err := h(ctx, args); err != nil {
		category, detail := errors.ErrInternal.String(), err.Error()
		var oerr *errors.OpError
		if errors.As(err, &oerr) {
			category, detail = oerr.Kind.String(), oerr.PrintDetail()
		}
		ctx.Events.Reply("error\t" + category + "\t" + detail)
		logging.Default().Warn("controller command failed", "verb", verb, "error", err)
	}
}

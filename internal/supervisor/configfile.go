package supervisor

import (
	"bufio"
	"os"

	"daemonproxy-go/errors"
	"daemonproxy-go/internal/protocol"
)

// discardSink implements protocol.EventSink for config-file replay:
// there is no connection to reply to, so lines simply vanish. A future
// controller connection gets the real state via statedump.
type discardSink struct{}

func (discardSink) Reply(string)         {}
func (discardSink) Broadcast(string)     {}
func (discardSink) TrySend(string) bool  { return true }

// replayConfigFile feeds every line of path through the same
// protocol.Dispatch a live controller connection uses, the "config
// file is a canned command stream" reading of spec.md §6 the ambient
// CLI section documents.
func (sv *Supervisor) replayConfigFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.WrapWithDetail(err, errors.ErrIO, "supervisor.config", path)
	}
	defer f.Close()

	ctx := &protocol.Context{
		Services: sv.Services,
		Fds:      sv.Fds,
		Signals:  sv.Signals,
		Options:  sv.Options,
		Failsafe: sv.Failsafe,
		Clock:    sv.Clock,
		Events:   discardSink{},
		RequestShutdown: func(graceful bool) {
			sv.shuttingDown = true
			sv.pendingGraceful = &graceful
		},
		ExecOnExitArgv: func(argv []string) { sv.execOnExit = argv },
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, protocol.DefaultMaxLine), protocol.DefaultMaxLine)
	for scanner.Scan() {
		protocol.Dispatch(ctx, scanner.Text())
	}
	return scanner.Err()
}

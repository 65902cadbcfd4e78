package supervisor

import (
	"os"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"daemonproxy-go/errors"
	"daemonproxy-go/internal/clock"
	"daemonproxy-go/internal/pool"
	"daemonproxy-go/internal/protocol"
	"daemonproxy-go/internal/service"
	"daemonproxy-go/internal/signame"
	"daemonproxy-go/logging"
)

// Run is the main loop (component G): drain signals, reap children,
// tick the service table, pump every controller connection, then block
// in poll until the self-pipe, a connection, or the next scheduled
// service wake needs attention. It returns the process exit code once
// a shutdown/terminate command ends the loop.
func (sv *Supervisor) Run() (int, error) {
	if sv.cfg.SocketPath != "" {
		l, err := newListener(sv.cfg.SocketPath)
		if err != nil {
			return 1, err
		}
		sv.listener = l
		defer l.close()
	}
	if sv.cfg.StdinMode {
		sv.conns = append(sv.conns, NewSplitConnection(int(os.Stdin.Fd()), int(os.Stdout.Fd())))
	}

	if err := sv.Signals.Start(); err != nil {
		return 1, err
	}
	defer sv.Signals.Stop()

	if sv.cfg.ConfigPath != "" {
		if err := sv.replayConfigFile(sv.cfg.ConfigPath); err != nil {
			return 1, err
		}
	}

	for {
		if sv.shuttingDown {
			graceful := true
			if sv.pendingGraceful != nil {
				graceful = *sv.pendingGraceful
			}
			return sv.runShutdown(graceful)
		}

		sv.reapChildren()

		changed := sv.Services.Tick(sv.Fds, service.ControlFiles{}, os.Environ())
		sv.broadcastServiceChanges(changed)

		if events := sv.Signals.Drain(); len(events) > 0 {
			for _, ev := range events {
				sv.broadcastLine("signal\t" + signame.Name(ev.Signal) + "\t" + strconv.FormatUint(uint64(ev.Count), 10) + "\t" + ev.First.String())
				logging.Default().Info("signal delivered", "signal", signame.Name(ev.Signal), "count", ev.Count)
			}
		}

		// Sigwake decisions are driven by NewEventsSince, not by the
		// Drain() call above: Drain destructively zeroes each bucket's
		// first-seen timestamp once read, and reusing that result here
		// would make a service's sigwake eligibility depend on whether a
		// `signal` event happened to be broadcast first.
		if newEvents := sv.Signals.NewEventsSince(clock.Zero); len(newEvents) > 0 {
			m := make(map[syscall.Signal]clock.Timestamp, len(newEvents))
			for _, ev := range newEvents {
				m[ev.Signal] = ev.First
			}
			sv.broadcastServiceChanges(sv.Services.SigWake(m))
		}

		sv.acceptNew()
		sv.pumpConnections()
		sv.dropClosedConnections()

		if err := sv.pollOnce(sv.nextDeadlineMS()); err != nil {
			return 1, err
		}
	}
}

func (sv *Supervisor) reapChildren() {
	for {
		var ws syscall.WaitStatus
		pid, err := syscall.Wait4(-1, &ws, syscall.WNOHANG, nil)
		if err != nil || pid <= 0 {
			return
		}
		if s := sv.Services.Reap(pid, ws); s != nil {
			sv.broadcastServiceChanges([]*service.Service{s})
		}
	}
}

func (sv *Supervisor) broadcastServiceChanges(changed []*service.Service) {
	for _, s := range changed {
		ts := s.StartTime
		if s.State == service.Reaped {
			ts = s.ReapTime
		}
		line := "service.state\t" + s.Name + "\t" + s.State.String() + "\t" + ts.String()
		if s.PID != 0 {
			line += "\tpid=" + strconv.Itoa(s.PID)
		}
		sv.broadcastLine(line)
		logging.Default().Info("service state changed", "service", s.Name, "state", s.State.String(), "pid", s.PID)
	}
}

func (sv *Supervisor) broadcastLine(line string) {
	for _, c := range sv.conns {
		c.enqueue(line)
	}
}

func (sv *Supervisor) acceptNew() {
	if sv.listener == nil {
		return
	}
	for {
		if sv.cfg.ControlPool.Mode == pool.Fixed && len(sv.conns) >= sv.cfg.ControlPool.Count {
			return
		}
		c, err := sv.listener.accept()
		if err != nil {
			return
		}
		sv.conns = append(sv.conns, c)
	}
}

func (sv *Supervisor) pumpConnections() {
	for _, c := range sv.conns {
		if c.Closed() {
			continue
		}
		lines, overflow := c.ReadLines()
		if overflow {
			c.Reply("overflow")
			logging.Default().Warn("controller input line buffer overflow", "error", errors.ErrBufferOverflow)
		}
		ctx := sv.newContext(c)
		for _, line := range lines {
			protocol.Dispatch(ctx, line)
		}
		if err := c.Flush(); err != nil {
			c.Close()
		}
	}
}

func (sv *Supervisor) dropClosedConnections() {
	kept := sv.conns[:0]
	for _, c := range sv.conns {
		if c.Closed() {
			logging.Default().Info("controller connection closed")
			continue
		}
		kept = append(kept, c)
	}
	sv.conns = kept
}

func (sv *Supervisor) nextDeadlineMS() int {
	wake, ok := sv.Services.NextWake()
	if !ok {
		return 1000
	}
	d := wake.Sub(sv.Clock.Now())
	if d <= 0 {
		return 0
	}
	ms := int(d / time.Millisecond)
	if ms > 1000 {
		ms = 1000
	}
	return ms
}

func (sv *Supervisor) pollOnce(timeoutMS int) error {
	fds := []unix.PollFd{{Fd: int32(sv.Signals.SelfPipeReadFD()), Events: unix.POLLIN}}
	if sv.listener != nil {
		fds = append(fds, unix.PollFd{Fd: int32(sv.listener.fd), Events: unix.POLLIN})
	}
	for _, c := range sv.conns {
		if c.Closed() {
			continue
		}
		events := int16(unix.POLLIN)
		fds = append(fds, unix.PollFd{Fd: int32(c.FD()), Events: events})
		if c.WriteFD() != c.FD() || c.WantsWrite() {
			wev := int16(0)
			if c.WantsWrite() {
				wev = unix.POLLOUT
			}
			fds = append(fds, unix.PollFd{Fd: int32(c.WriteFD()), Events: wev})
		}
	}

	_, err := unix.Poll(fds, timeoutMS)
	sv.Signals.DrainSelfPipe()
	if err != nil && err != unix.EINTR {
		return err
	}
	return nil
}

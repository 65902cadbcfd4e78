package supervisor

import (
	"os"
	"syscall"
	"time"

	"daemonproxy-go/internal/failsafe"
	"daemonproxy-go/internal/service"
)

// runShutdown implements component I's staged shutdown: SIGTERM every
// running service, wait up to ShutdownGrace, SIGKILL whatever is still
// alive, wait up to ShutdownKill, then drain queued controller output
// for up to ShutdownDrain before returning an exit code. terminate
// (graceful=false) skips straight to SIGKILL.
func (sv *Supervisor) runShutdown(graceful bool) (int, error) {
	grace := sv.cfg.ShutdownGrace
	if grace == 0 {
		grace = DefaultShutdownGrace
	}
	kill := sv.cfg.ShutdownKill
	if kill == 0 {
		kill = DefaultShutdownKill
	}
	drain := sv.cfg.ShutdownDrain
	if drain == 0 {
		drain = DefaultShutdownDrain
	}

	running := sv.runningPIDs()
	forced := !graceful
	if len(running) > 0 {
		sig := syscall.SIGTERM
		if !graceful {
			sig = syscall.SIGKILL
		}
		for _, pid := range running {
			syscall.Kill(pid, sig)
		}
		if graceful {
			if !sv.waitForExit(grace) {
				forced = true
				for _, pid := range sv.runningPIDs() {
					syscall.Kill(pid, syscall.SIGKILL)
				}
				sv.waitForExit(kill)
			}
		} else {
			sv.waitForExit(kill)
		}
	}

	sv.drainConnections(drain)

	code := failsafe.ExitClean
	switch {
	case !graceful:
		code = failsafe.ExitForced
	case forced:
		code = failsafe.ExitGraceFailed
	}

	if len(sv.execOnExit) > 0 {
		path := sv.execOnExit[0]
		if resolved, err := os.Stat(path); err == nil && !resolved.IsDir() {
			_ = syscall.Exec(path, sv.execOnExit, os.Environ())
		}
	}
	return code, nil
}

func (sv *Supervisor) runningPIDs() []int {
	var pids []int
	sv.Services.Walk(func(s *service.Service) bool {
		if s.State == service.Up && s.PID != 0 {
			pids = append(pids, s.PID)
		}
		return true
	})
	return pids
}

// waitForExit reaps children for up to timeout and reports whether
// every service settled to a non-Up state before the deadline.
func (sv *Supervisor) waitForExit(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		sv.reapChildren()
		if len(sv.runningPIDs()) == 0 {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return len(sv.runningPIDs()) == 0
}

func (sv *Supervisor) drainConnections(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		pending := false
		for _, c := range sv.conns {
			if c.Closed() {
				continue
			}
			c.Flush()
			if c.WantsWrite() {
				pending = true
			}
		}
		if !pending {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

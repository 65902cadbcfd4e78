package service

import (
	"syscall"
	"time"

	"daemonproxy-go/errors"
	"daemonproxy-go/internal/clock"
	"daemonproxy-go/internal/fdtable"
	"daemonproxy-go/internal/index"
	"daemonproxy-go/logging"
)

// ForkRetryDelay is FORK_RETRY_DELAY from SPEC_FULL.md's supplement:
// how long a failed fork/exec waits before the service table retries.
const ForkRetryDelay = time.Second

// Table is the process-wide service registry: every defined service,
// indexed by name and (while running) by pid. It keeps no separate
// worklists: Tick, SigWake and NextWake walk the whole name index each
// pass, filtering on Active and AutostartOn.
type Table struct {
	byName map[string]*index.Node[string, *Service]
	byPID  map[int]*index.Node[int, *Service]
	nameIdx index.Tree[string, *Service]
	pidIdx  index.Tree[int, *Service]

	clk     clock.Source
	fds     *fdtable.Table
	cap     int // 0 = unbounded; set by SetCap for --service-pool mode
	varsCap int // per-service VarSet byte budget in pool mode
}

// NewTable creates an empty service table.
func NewTable(clk clock.Source, fds *fdtable.Table) *Table {
	return &Table{
		byName: make(map[string]*index.Node[string, *Service]),
		byPID:  make(map[int]*index.Node[int, *Service]),
		clk:    clk,
		fds:    fds,
	}
}

// SetCap bounds the number of defined services and the per-service
// VarSet byte budget, for --service-pool mode: once the count is
// reached, Define returns ErrLimit instead of growing the table
// further; bytes <= 0 leaves each service's VarSet unbounded.
func (t *Table) SetCap(n, bytes int) {
	t.cap = n
	t.varsCap = bytes
}

// Define creates a new service in the Down state, or returns the
// existing one if name is already defined (service.opts is idempotent
// about creation; only the reset form clears prior config).
func (t *Table) Define(name string) (*Service, error) {
	if !fdtable.ValidName(name) {
		return nil, errors.WrapWithEntity(nil, errors.ErrInvalid, "service.opts", name)
	}
	if n, ok := t.byName[name]; ok {
		return n.Value(), nil
	}
	if t.cap > 0 && len(t.byName) >= t.cap {
		return nil, errors.New(errors.ErrLimit, "service.opts", "service pool exhausted")
	}
	s := New(name)
	if t.varsCap > 0 {
		s.Vars.SetCap(t.varsCap)
	}
	t.byName[name] = t.nameIdx.Insert(name, s)
	return s, nil
}

// Get returns the named service, or nil.
func (t *Table) Get(name string) *Service {
	n, ok := t.byName[name]
	if !ok {
		return nil
	}
	return n.Value()
}

// GetByPID returns the service currently running as pid, or nil.
func (t *Table) GetByPID(pid int) *Service {
	n, ok := t.byPID[pid]
	if !ok {
		return nil
	}
	return n.Value()
}

// Delete removes a service definition. Refuses while the service is in
// the Up or Start state.
func (t *Table) Delete(name string) error {
	n, ok := t.byName[name]
	if !ok {
		return errors.WrapWithEntity(nil, errors.ErrNotFound, "service.delete", name)
	}
	s := n.Value()
	if s.State == Up || s.State == Start {
		return errors.WrapWithEntity(nil, errors.ErrState, "service.delete", name)
	}
	t.nameIdx.Delete(n)
	delete(t.byName, name)
	return nil
}

// Start arms a service to fork at "when" (spec.md §4.E's start(when)).
// A zero Timestamp means "now". Legal from Down, Start, or Reaped.
func (t *Table) Start(name string, when clock.Timestamp) error {
	s := t.Get(name)
	if s == nil {
		return errors.WrapWithEntity(nil, errors.ErrNotFound, "service.start", name)
	}
	if s.State == Up {
		return errors.WrapWithEntity(nil, errors.ErrState, "service.start", name)
	}
	now := t.clk.Now()
	if when == clock.Zero || when.Before(now) {
		when = now
	}
	s.State = Start
	s.wakeAt = when
	s.Active = true
	return nil
}

// Signal delivers sig to a running service's process group leader.
func (t *Table) Signal(name string, sig syscall.Signal) error {
	s := t.Get(name)
	if s == nil {
		return errors.WrapWithEntity(nil, errors.ErrNotFound, "service.signal", name)
	}
	if s.State != Up || s.PID == 0 {
		return errors.WrapWithEntity(nil, errors.ErrState, "service.signal", name)
	}
	if err := syscall.Kill(s.PID, sig); err != nil {
		return errors.WrapWithEntity(err, errors.ErrIO, "service.signal", name)
	}
	return nil
}

// Reap records a pid's exit status, moving the owning service into the
// Reaped state. Called by the main loop after a successful waitpid.
func (t *Table) Reap(pid int, ws syscall.WaitStatus) *Service {
	n, ok := t.byPID[pid]
	if !ok {
		return nil
	}
	s := n.Value()
	t.pidIdx.Delete(n)
	delete(t.byPID, pid)
	s.WaitStatus = ws
	s.ReapTime = t.clk.Now()
	s.State = Reaped
	s.PID = 0
	logging.Default().Info("service reaped", "service", s.Name, "status", ws.ExitStatus())
	return s
}

// Tick drives every active service's state machine one step: Reaped
// services resolve to Down or a rescheduled Start per restart_interval
// and auto_restart; Start services whose wake time has arrived attempt
// a fork, retrying after ForkRetryDelay on failure. It returns the
// services that changed state, for the caller to emit service.state
// events over.
func (t *Table) Tick(fdTable *fdtable.Table, ctrl ControlFiles, env []string) []*Service {
	var changed []*Service
	now := t.clk.Now()

	t.nameIdx.Walk(func(n *index.Node[string, *Service]) bool {
		s := n.Value()
		if !s.Active {
			return true
		}
		switch s.State {
		case Reaped:
			if s.AutoRestart {
				s.State = Start
				interval := s.ClampRestartInterval(s.RestartInterval)
				if s.ReapTime.Sub(s.StartTime) < interval {
					s.wakeAt = s.ReapTime.Add(interval)
				} else {
					s.wakeAt = now
				}
			} else {
				s.State = Down
				s.Active = false
			}
			changed = append(changed, s)
		case Start:
			if s.wakeAt.Before(now) || s.wakeAt == now {
				fdTable.EnsureSpecialsHealthy()
				if err := s.Fork(fdTable, ctrl, env, t.clk); err != nil {
					s.wakeAt = now.Add(ForkRetryDelay)
					logging.Default().Warn("service fork failed, retrying", "service", s.Name, "error", err)
				} else {
					pn := t.pidIdx.Insert(s.PID, s)
					t.byPID[s.PID] = pn
					logging.Default().Info("service started", "service", s.Name, "pid", s.PID)
				}
				changed = append(changed, s)
			}
		}
		return true
	})
	return changed
}

// SigWake walks every service with configured autostart signals and
// starts any whose trigger signal has a new event since its last check
// (spec.md §4.C/§4.E's sigwake pass).
func (t *Table) SigWake(newEvents map[syscall.Signal]clock.Timestamp) []*Service {
	var woken []*Service
	t.nameIdx.Walk(func(n *index.Node[string, *Service]) bool {
		s := n.Value()
		if len(s.AutostartOn) == 0 || s.State == Up || s.State == Start {
			return true
		}
		for sig, first := range newEvents {
			if !s.AutostartOn[sig] {
				continue
			}
			if first.Before(s.sigwakeSince) || first == s.sigwakeSince {
				continue
			}
			s.sigwakeSince = first
			s.State = Start
			s.wakeAt = t.clk.Now()
			s.Active = true
			woken = append(woken, s)
			break
		}
		return true
	})
	return woken
}

// NextWake returns the earliest pending wake time among active
// Start-state services, for the main loop to compute its poll
// deadline from.
func (t *Table) NextWake() (clock.Timestamp, bool) {
	var best clock.Timestamp
	found := false
	t.nameIdx.Walk(func(n *index.Node[string, *Service]) bool {
		s := n.Value()
		if s.Active && s.State == Start && (!found || s.wakeAt.Before(best)) {
			best = s.wakeAt
			found = true
		}
		return true
	})
	return best, found
}

// Walk visits every defined service in name order (for statedump).
func (t *Table) Walk(fn func(*Service) bool) {
	t.nameIdx.Walk(func(n *index.Node[string, *Service]) bool {
		return fn(n.Value())
	})
}

// WalkAfter visits services whose name sorts strictly after name, in
// order, supporting statedump's resumable cursor.
func (t *Table) WalkAfter(name string, fn func(*Service) bool) {
	n := t.nameIdx.FindAfter(name)
	for n != nil {
		if !fn(n.Value()) {
			return
		}
		n = index.Next(n)
	}
}

// Package service implements the service state machine (component E):
// spawn, watch, reap, and restart for one named child process, plus the
// service table that indexes every defined service by name and by pid.
package service

import (
	"strings"
	"syscall"
	"time"

	"daemonproxy-go/errors"
	"daemonproxy-go/internal/clock"
)

// State is a service's lifecycle state, spec.md §3E's DOWN/START/UP/REAPED.
type State int

const (
	Down State = iota
	Start
	Up
	Reaped
)

func (s State) String() string {
	switch s {
	case Down:
		return "down"
	case Start:
		return "start"
	case Up:
		return "up"
	case Reaped:
		return "reaped"
	default:
		return "unknown"
	}
}

// MinRestartInterval is the floor restart_interval is clamped to, so a misconfigured service.opts can't busy-loop
// fork/exec.
const MinRestartInterval = time.Second

// FDs/args/tags/triggers are stored as VarSet records under these keys.
const (
	keyArgs     = "args"
	keyFds      = "fds"
	keyTags     = "tags"
	keyTriggers = "triggers"
)

const fieldSep = "\t"

// Service is one named, independently supervised child process.
type Service struct {
	Name string
	Vars VarSet

	State State
	PID   int

	WaitStatus syscall.WaitStatus
	StartTime  clock.Timestamp
	ReapTime   clock.Timestamp

	RestartInterval time.Duration
	AutoRestart     bool
	AutostartOn     map[syscall.Signal]bool

	// sigwakeSince is the last NewEventsSince cursor consulted for this
	// service, so a once-triggered signal doesn't re-trigger on the
	// next tick.
	sigwakeSince clock.Timestamp

	// wakeAt is when a pending Start(when) should actually fork.
	wakeAt clock.Timestamp

	// Active marks a service that Table.Tick must step (anything not
	// firmly Down with no pending wake); there is no separate list.
	Active bool
}

// New creates a service in the Down state with a restart interval of
// MinRestartInterval.
func New(name string) *Service {
	return &Service{
		Name:            name,
		State:           Down,
		RestartInterval: MinRestartInterval,
		AutostartOn:     make(map[syscall.Signal]bool),
	}
}

// Args returns the resolved argv (path followed by arguments).
func (s *Service) Args() []string {
	v, ok := s.Vars.Get(keyArgs)
	if !ok || v == "" {
		return nil
	}
	return strings.Split(v, fieldSep)
}

// SetArgs stores path+args as the service's argv.
func (s *Service) SetArgs(argv []string) error {
	return s.Vars.Set(keyArgs, strings.Join(argv, fieldSep))
}

// Fds returns the ordered list of named-fd tokens the child inherits,
// positionally: Fds()[i] becomes fd i in the child.
func (s *Service) Fds() []string {
	v, ok := s.Vars.Get(keyFds)
	if !ok || v == "" {
		return nil
	}
	return strings.Split(v, fieldSep)
}

// SetFds stores the positional fd-token list.
func (s *Service) SetFds(tokens []string) error {
	return s.Vars.Set(keyFds, strings.Join(tokens, fieldSep))
}

// Tags returns the service's free-form tag string.
func (s *Service) Tags() string {
	v, _ := s.Vars.Get(keyTags)
	return v
}

// SetTags stores the service's free-form tag string.
func (s *Service) SetTags(tags string) error {
	return s.Vars.Set(keyTags, tags)
}

// Triggers returns the raw trigger token list ("always" and/or signal
// names) as stored by service.opts.
func (s *Service) Triggers() []string {
	v, ok := s.Vars.Get(keyTriggers)
	if !ok || v == "" {
		return nil
	}
	return strings.Split(v, fieldSep)
}

// SetTriggers parses and stores the trigger list, updating AutoRestart
// and AutostartOn accordingly. "always" arms unconditional restart;
// every other token must name a trapped signal.
func SetTriggers(s *Service, tokens []string, signalByName func(string) (syscall.Signal, bool)) error {
	autoRestart := false
	on := make(map[syscall.Signal]bool)
	for _, tok := range tokens {
		if tok == "always" {
			autoRestart = true
			continue
		}
		sig, ok := signalByName(tok)
		if !ok {
			return errors.WrapWithDetail(nil, errors.ErrInvalid, "service.opts", "unknown trigger: "+tok)
		}
		on[sig] = true
	}
	if err := s.Vars.Set(keyTriggers, strings.Join(tokens, fieldSep)); err != nil {
		return err
	}
	s.AutoRestart = autoRestart
	s.AutostartOn = on
	return nil
}

// ResetOpts clears args/fds/tags/triggers and restart bookkeeping back
// to a freshly-created service's defaults, the "service.opts NAME@"
// reset form SPEC_FULL.md's supplement defines.
func (s *Service) ResetOpts() {
	s.Vars = VarSet{}
	s.RestartInterval = MinRestartInterval
	s.AutoRestart = false
	s.AutostartOn = make(map[syscall.Signal]bool)
}

// ClampRestartInterval enforces the MinRestartInterval floor.
func (s *Service) ClampRestartInterval(d time.Duration) time.Duration {
	if d < MinRestartInterval {
		return MinRestartInterval
	}
	return d
}

package supervisor

import (
	"os"

	"daemonproxy-go/internal/clock"
	"daemonproxy-go/internal/failsafe"
	"daemonproxy-go/internal/fdtable"
	"daemonproxy-go/internal/options"
	"daemonproxy-go/internal/pool"
	"daemonproxy-go/internal/protocol"
	"daemonproxy-go/internal/service"
	"daemonproxy-go/internal/sigcap"
)

// Supervisor owns every long-lived component and the set of currently
// connected controllers.
type Supervisor struct {
	cfg Config

	Clock    clock.Source
	Fds      *fdtable.Table
	Services *service.Table
	Signals  *sigcap.Capture
	Options  *options.Registry
	Failsafe *failsafe.Guard

	listener     *listener
	conns        []*Connection
	execOnExit   []string
	shuttingDown bool
	pendingGraceful *bool
}

// New builds a Supervisor from a resolved Config. It does not yet
// start listening or trapping signals; call Run for that.
func New(cfg Config) (*Supervisor, error) {
	fds, err := fdtable.New()
	if err != nil {
		return nil, err
	}
	if cfg.FdPool.Mode == pool.Fixed {
		fds.SetCap(cfg.FdPool.Count)
	}

	clk := clock.NewMonotonic()
	services := service.NewTable(clk, fds)
	if cfg.ServicePool.Mode == pool.Fixed {
		services.SetCap(cfg.ServicePool.Count, cfg.ServicePool.Bytes)
	}

	sv := &Supervisor{
		cfg:        cfg,
		Clock:      clk,
		Fds:        fds,
		Services:   services,
		Signals:    sigcap.New(clk, sigcap.DefaultSignals),
		Options:    NewOptionRegistry(),
		Failsafe:   failsafe.New(cfg.IsPID1),
		execOnExit: cfg.ExecOnExit,
	}
	if cfg.FailsafeCode != "" {
		sv.Failsafe.Arm(cfg.FailsafeCode)
	}
	return sv, nil
}

// connSink adapts one Connection plus the supervisor's full connection
// list into the per-dispatch protocol.EventSink: replies go to the
// issuing connection, broadcasts fan out to all of them.
type connSink struct {
	self *Connection
	sv   *Supervisor
}

func (s *connSink) Reply(line string) { s.self.enqueue(line) }
func (s *connSink) Broadcast(line string) {
	for _, c := range s.sv.conns {
		c.enqueue(line)
	}
}
func (s *connSink) TrySend(line string) bool { return s.self.TrySend(line) }

// newContext builds a protocol.Context bound to one connection.
func (sv *Supervisor) newContext(c *Connection) *protocol.Context {
	return &protocol.Context{
		Services: sv.Services,
		Fds:      sv.Fds,
		Signals:  sv.Signals,
		Options:  sv.Options,
		Failsafe: sv.Failsafe,
		Clock:    sv.Clock,
		Env:      os.Environ(),
		Events:   &connSink{self: c, sv: sv},
		RequestShutdown: func(graceful bool) {
			sv.shuttingDown = true
			sv.pendingGraceful = &graceful
		},
		ExecOnExitArgv: func(argv []string) { sv.execOnExit = argv },
		SetLogFilter: func(level string) error {
			return sv.Options.Set("log.level", level)
		},
		SetLogDest: func(path string) error {
			_, err := sv.Fds.Open("log.dest", "write,create,append", path)
			return err
		},
	}
}

package protocol

import (
	"strconv"
	"strings"
	"time"

	"daemonproxy-go/errors"
	"daemonproxy-go/internal/service"
	"daemonproxy-go/internal/signame"
)

// handlerFunc runs one parsed command against a Context.
type handlerFunc func(ctx *Context, args []string) error

// commandTable is the static verb-to-handler dispatch table spec.md
// §4.F describes; it is built once at init and never mutated at
// runtime.
var commandTable = map[string]handlerFunc{
	"statedump":      cmdStatedump,
	"echo":           cmdEcho,
	"service.args":   cmdServiceArgs,
	"service.fds":    cmdServiceFds,
	"service.opts":   cmdServiceOpts,
	"service.start":  cmdServiceStart,
	"service.signal": cmdServiceSignal,
	"service.delete": cmdServiceDelete,
	"fd.pipe":        cmdFdPipe,
	"fd.open":        cmdFdOpen,
	"fd.delete":      cmdFdDelete,
	"signal.clear":   cmdSignalClear,
	"log.filter":     cmdLogFilter,
	"log.dest":       cmdLogDest,
	"failsafe":       cmdFailsafe,
	"shutdown":       cmdShutdown,
	"terminate":      cmdTerminate,
	"exec_on_exit":   cmdExecOnExit,
}

func cmdStatedump(ctx *Context, _ []string) error {
	if ctx.Dump == nil {
		ctx.Dump = &DumpCursor{}
	}
	for {
		line, done := ctx.Dump.Next(ctx)
		if done {
			ctx.Events.Reply(line)
			ctx.Dump = nil
			return nil
		}
		if !ctx.Events.TrySend(line) {
			return nil
		}
	}
}

func cmdEcho(ctx *Context, args []string) error {
	ctx.Events.Reply("echo\t" + strings.Join(args, " "))
	return nil
}

func cmdServiceArgs(ctx *Context, args []string) error {
	if len(args) < 2 {
		return errors.New(errors.ErrInvalid, "service.args", "usage: service.args NAME ARGV...")
	}
	s, err := ctx.Services.Define(args[0])
	if err != nil {
		return err
	}
	return s.SetArgs(args[1:])
}

func cmdServiceFds(ctx *Context, args []string) error {
	if len(args) < 1 {
		return errors.New(errors.ErrInvalid, "service.fds", "usage: service.fds NAME [FD...]")
	}
	s, err := ctx.Services.Define(args[0])
	if err != nil {
		return err
	}
	return s.SetFds(args[1:])
}

func cmdServiceOpts(ctx *Context, args []string) error {
	if len(args) < 1 {
		return errors.New(errors.ErrInvalid, "service.opts", "usage: service.opts NAME[@] [k=v...]")
	}
	nameTok := args[0]
	reset := strings.HasSuffix(nameTok, "@")
	name := strings.TrimSuffix(nameTok, "@")

	s, err := ctx.Services.Define(name)
	if err != nil {
		return err
	}
	if reset {
		s.ResetOpts()
	}

	var bad []string
	for _, kv := range args[1:] {
		if kv == "respawn" {
			s.AutoRestart = true
			continue
		}
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			bad = append(bad, kv)
			continue
		}
		switch k {
		case "tags":
			s.SetTags(v)
		case "triggers":
			toks := strings.Split(v, ",")
			if err := service.SetTriggers(s, toks, signame.Lookup); err != nil {
				bad = append(bad, kv)
			}
		case "respawn":
			b, err := strconv.ParseBool(v)
			if err != nil {
				bad = append(bad, kv)
				continue
			}
			s.AutoRestart = b
		case "respawn-delay":
			secs, err := strconv.ParseFloat(v, 64)
			if err != nil {
				bad = append(bad, kv)
				continue
			}
			s.RestartInterval = s.ClampRestartInterval(time.Duration(secs * float64(time.Second)))
		case "restart_interval":
			d, err := time.ParseDuration(v)
			if err != nil {
				bad = append(bad, kv)
				continue
			}
			s.RestartInterval = s.ClampRestartInterval(d)
		default:
			bad = append(bad, kv)
		}
	}
	if len(bad) > 0 {
		return errors.WrapWithDetail(nil, errors.ErrInvalid, "service.opts", "bad options: "+strings.Join(bad, ","))
	}
	return nil
}

func cmdServiceStart(ctx *Context, args []string) error {
	if len(args) < 1 {
		return errors.New(errors.ErrInvalid, "service.start", "usage: service.start NAME [DELAY]")
	}
	when := ctx.Clock.Now()
	if len(args) > 1 {
		d, err := time.ParseDuration(args[1])
		if err != nil {
			return errors.WrapWithDetail(err, errors.ErrInvalid, "service.start", "bad delay: "+args[1])
		}
		when = when.Add(d)
	}
	return ctx.Services.Start(args[0], when)
}

func cmdServiceSignal(ctx *Context, args []string) error {
	if len(args) < 2 {
		return errors.New(errors.ErrInvalid, "service.signal", "usage: service.signal NAME SIGNAL")
	}
	sig, ok := signame.Lookup(args[1])
	if !ok {
		return errors.WrapWithDetail(nil, errors.ErrInvalid, "service.signal", "unknown signal: "+args[1])
	}
	return ctx.Services.Signal(args[0], sig)
}

func cmdServiceDelete(ctx *Context, args []string) error {
	if len(args) < 1 {
		return errors.New(errors.ErrInvalid, "service.delete", "usage: service.delete NAME")
	}
	return ctx.Services.Delete(args[0])
}

func cmdFdPipe(ctx *Context, args []string) error {
	if len(args) < 2 {
		return errors.New(errors.ErrInvalid, "fd.pipe", "usage: fd.pipe READ-NAME WRITE-NAME")
	}
	events, err := ctx.Fds.Pipe(args[0], args[1])
	if err != nil {
		return err
	}
	for _, ev := range events {
		ctx.Events.Broadcast("fd.state\t" + strings.Join(ev.Fields(), "\t"))
	}
	return nil
}

func cmdFdOpen(ctx *Context, args []string) error {
	if len(args) < 3 {
		return errors.New(errors.ErrInvalid, "fd.open", "usage: fd.open NAME FLAGS PATH")
	}
	ev, err := ctx.Fds.Open(args[0], args[1], args[2])
	if err != nil {
		return err
	}
	ctx.Events.Broadcast("fd.state\t" + strings.Join(ev.Fields(), "\t"))
	return nil
}

func cmdFdDelete(ctx *Context, args []string) error {
	if len(args) < 1 {
		return errors.New(errors.ErrInvalid, "fd.delete", "usage: fd.delete NAME")
	}
	if err := ctx.Fds.Delete(args[0]); err != nil {
		return err
	}
	ctx.Events.Broadcast("fd.state\t" + args[0] + "\tdeleted")
	return nil
}

func cmdSignalClear(ctx *Context, args []string) error {
	if len(args) < 2 {
		return errors.New(errors.ErrInvalid, "signal.clear", "usage: signal.clear SIGNAL COUNT")
	}
	sig, ok := signame.Lookup(args[0])
	if !ok {
		return errors.WrapWithDetail(nil, errors.ErrInvalid, "signal.clear", "unknown signal: "+args[0])
	}
	n, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return errors.WrapWithDetail(err, errors.ErrInvalid, "signal.clear", "bad count: "+args[1])
	}
	if !ctx.Signals.Clear(sig, uint32(n)) {
		return errors.WrapWithDetail(nil, errors.ErrInvalid, "signal.clear", "untrapped signal: "+args[0])
	}
	return nil
}

func cmdLogFilter(ctx *Context, args []string) error {
	if len(args) < 1 || ctx.SetLogFilter == nil {
		return errors.New(errors.ErrInvalid, "log.filter", "usage: log.filter LEVEL")
	}
	return ctx.SetLogFilter(args[0])
}

func cmdLogDest(ctx *Context, args []string) error {
	if len(args) < 1 || ctx.SetLogDest == nil {
		return errors.New(errors.ErrInvalid, "log.dest", "usage: log.dest PATH")
	}
	return ctx.SetLogDest(args[0])
}

func cmdFailsafe(ctx *Context, args []string) error {
	if len(args) < 1 {
		return errors.New(errors.ErrInvalid, "failsafe", "usage: failsafe +|- [CODE]")
	}
	code := ""
	if len(args) > 1 {
		code = args[1]
	}
	switch args[0] {
	case "+":
		ctx.Failsafe.Arm(code)
		return nil
	case "-":
		if !ctx.Failsafe.Disarm(code) {
			return errors.ErrFailsafeCode
		}
		return nil
	default:
		return errors.New(errors.ErrInvalid, "failsafe", "usage: failsafe +|- [CODE]")
	}
}

func cmdShutdown(ctx *Context, _ []string) error {
	if ctx.Failsafe.Armed() {
		return errors.ErrFailsafeArmed
	}
	ctx.RequestShutdown(true)
	return nil
}

func cmdTerminate(ctx *Context, _ []string) error {
	if ctx.Failsafe.Armed() {
		return errors.ErrFailsafeArmed
	}
	ctx.RequestShutdown(false)
	return nil
}

func cmdExecOnExit(ctx *Context, args []string) error {
	if len(args) < 1 || ctx.ExecOnExitArgv == nil {
		return errors.New(errors.ErrInvalid, "exec_on_exit", "usage: exec_on_exit ARGV...")
	}
	ctx.ExecOnExitArgv(args)
	return nil
}

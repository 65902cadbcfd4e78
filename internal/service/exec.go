package service

import (
	"os"
	"syscall"

	"daemonproxy-go/errors"
	"daemonproxy-go/internal/clock"
	"daemonproxy-go/internal/fdtable"
)

// ControlFiles supplies descriptors for control.socket/control.cmd/
// control.event tokens in a service's fd list. The main loop passes an
// empty ControlFiles, so such a token resolves through the fd table like
// any other name and fails as not-found unless an fd of that name exists.
type ControlFiles map[string]*os.File

// resolveFd maps one positional fd token to the descriptor number the
// child should see at that slot. "-" means closed, which this
// implementation approximates by handing the child a duplicate of
// "null" (see DESIGN.md: Go's syscall.ForkExec has no hook to close an
// arbitrary descriptor between fork and exec without re-implementing
// exec.Cmd's internals, so a true close is not available without cgo).
func resolveFd(token string, fdTable *fdtable.Table, ctrl ControlFiles) (uintptr, error) {
	if token == "-" {
		null := fdTable.Get("null")
		if null == nil {
			return 0, errors.New(errors.ErrInternal, "service.exec", "null fd missing")
		}
		return uintptr(null.FD), nil
	}
	if f, ok := ctrl[token]; ok {
		return f.Fd(), nil
	}
	e := fdTable.Get(token)
	if e == nil {
		return 0, errors.WrapWithEntity(nil, errors.ErrNotFound, "service.exec", token)
	}
	return uintptr(e.FD), nil
}

// buildFiles resolves every positional fd token into the Files slice
// syscall.ForkExec dup2()s into the child in order, fd i <- Files[i].
// Every descriptor this process holds that is not named here closes on
// exec automatically, because fdtable creates descriptors O_CLOEXEC;
// that is this implementation's Go-native reading of spec.md §4.E's
// "close every other descriptor up to FD_SETSIZE".
func buildFiles(tokens []string, fdTable *fdtable.Table, ctrl ControlFiles) ([]uintptr, error) {
	files := make([]uintptr, len(tokens))
	for i, tok := range tokens {
		fd, err := resolveFd(tok, fdTable, ctrl)
		if err != nil {
			return nil, err
		}
		files[i] = fd
	}
	return files, nil
}

// Fork starts the service's child process: resolves argv and the
// positional fd list, then forks and execs via syscall.ForkExec, the
// single-syscall-pair equivalent of the teacher's execProcess/fork
// shape in container/syscalls.go and container/create.go's
// InitContainer, minus the namespace/rootfs machinery this domain has
// no use for. On success it records PID, StartTime and sets State to
// Up; on failure it leaves State as Start so the caller can schedule a
// FORK_RETRY_DELAY retry.
func (s *Service) Fork(fdTable *fdtable.Table, ctrl ControlFiles, env []string, clk clock.Source) error {
	argv := s.Args()
	if len(argv) == 0 {
		return errors.New(errors.ErrInvalid, "service.start", "no args configured")
	}
	path := argv[0]

	files, err := buildFiles(s.Fds(), fdTable, ctrl)
	if err != nil {
		return errors.WrapWithEntity(err, errors.ErrInvalid, "service.start", s.Name)
	}

	attr := &syscall.ProcAttr{
		Env:   env,
		Files: files,
		Sys:   &syscall.SysProcAttr{Setsid: true},
	}

	pid, err := syscall.ForkExec(path, argv, attr)
	if err != nil {
		return errors.WrapWithEntity(err, errors.ErrIO, "service.start", s.Name)
	}

	s.PID = pid
	s.StartTime = clk.Now()
	s.State = Up
	s.Active = true
	return nil
}

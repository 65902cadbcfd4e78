package supervisor

import (
	"os"

	"golang.org/x/sys/unix"

	"daemonproxy-go/errors"
)

// listener owns the AF_UNIX SOCK_STREAM socket bound at --socket PATH
// that additional controllers connect to (as opposed to --stdin mode,
// where the supervisor's own stdin/stdout is a controller connection).
type listener struct {
	fd   int
	path string
}

func newListener(path string) (*listener, error) {
	_ = os.Remove(path)
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrIO, "supervisor.listen")
	}
	addr := &unix.SockaddrUnix{Name: path}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, errors.WrapWithDetail(err, errors.ErrIO, "supervisor.listen", path)
	}
	if err := unix.Listen(fd, 16); err != nil {
		unix.Close(fd)
		return nil, errors.WrapWithDetail(err, errors.ErrIO, "supervisor.listen", path)
	}
	return &listener{fd: fd, path: path}, nil
}

func (l *listener) accept() (*Connection, error) {
	nfd, _, err := unix.Accept(l.fd)
	if err != nil {
		return nil, err
	}
	return NewConnection(nfd), nil
}

func (l *listener) close() {
	unix.Close(l.fd)
	_ = os.Remove(l.path)
}

package supervisor

import (
	"syscall"

	"golang.org/x/sys/unix"

	"daemonproxy-go/errors"
	"daemonproxy-go/internal/protocol"
	"daemonproxy-go/logging"
)

// OutputOverflowLimit bounds how much unflushed output a connection may
// accumulate before the supervisor drops it and reports a single
// overflow marker, mirroring the input side's line-overflow contract
// (spec.md §4.F's controller endpoint is symmetric about this).
const OutputOverflowLimit = 64 * 1024

// Connection is one controller endpoint: a non-blocking read fd and
// write fd (the same descriptor for a control.socket peer, distinct
// ones for --stdin mode), its input line assembler, and an outbound
// byte queue the main loop drains whenever poll reports the write fd
// writable.
type Connection struct {
	readFD, writeFD int
	duplex          bool // true if readFD and writeFD are the same descriptor
	reader          *protocol.LineReader
	out             []byte
	closed          bool
	overflowedOnce  bool
}

// NewConnection wraps an already-non-blocking duplex fd (a
// control.socket peer).
func NewConnection(fd int) *Connection {
	_ = syscall.SetNonblock(fd, true)
	return &Connection{readFD: fd, writeFD: fd, duplex: true, reader: protocol.NewLineReader(protocol.DefaultMaxLine)}
}

// NewSplitConnection wraps separate read and write fds, for --stdin
// mode where stdin and stdout are not the same descriptor.
func NewSplitConnection(readFD, writeFD int) *Connection {
	_ = syscall.SetNonblock(readFD, true)
	_ = syscall.SetNonblock(writeFD, true)
	return &Connection{readFD: readFD, writeFD: writeFD, reader: protocol.NewLineReader(protocol.DefaultMaxLine)}
}

// FD returns the read descriptor for poll registration.
func (c *Connection) FD() int { return c.readFD }

// WriteFD returns the write descriptor for poll registration.
func (c *Connection) WriteFD() int { return c.writeFD }

// Closed reports whether the peer has hung up.
func (c *Connection) Closed() bool { return c.closed }

// Close releases the connection's descriptor(s).
func (c *Connection) Close() {
	if c.closed {
		return
	}
	c.closed = true
	unix.Close(c.readFD)
	if !c.duplex {
		unix.Close(c.writeFD)
	}
}

// WantsWrite reports whether poll should watch this fd for writability.
func (c *Connection) WantsWrite() bool { return len(c.out) > 0 }

// ReadLines drains whatever is currently available on the fd and
// returns the complete lines it produced, plus whether an input
// overflow occurred.
func (c *Connection) ReadLines() (lines []string, overflowed bool) {
	buf := make([]byte, 4096)
	for {
		n, err := unix.Read(c.readFD, buf)
		if n > 0 {
			l, of := c.reader.Feed(buf[:n])
			lines = append(lines, l...)
			overflowed = overflowed || of
		}
		if n == 0 || err != nil {
			if n == 0 && err == nil {
				c.closed = true
			}
			return lines, overflowed
		}
		if n < len(buf) {
			return lines, overflowed
		}
	}
}

// enqueue appends a line plus trailing newline to the output queue,
// dropping it (and marking a one-shot overflow line instead) if the
// queue is already saturated.
func (c *Connection) enqueue(line string) {
	if len(c.out)+len(line)+1 > OutputOverflowLimit {
		if !c.overflowedOnce {
			c.overflowedOnce = true
			marker := []byte("overflow\n")
			c.out = append(c.out, marker...)
			logging.Default().Warn("controller output buffer overflow", "error", errors.ErrOverflow)
		}
		return
	}
	c.out = append(c.out, line...)
	c.out = append(c.out, '\n')
}

// Reply implements protocol.EventSink.
func (c *Connection) Reply(line string) { c.enqueue(line) }

// Broadcast implements protocol.EventSink for the single-connection
// case; the supervisor's hub fans a true broadcast out to every
// connection by calling Reply on each.
func (c *Connection) Broadcast(line string) { c.enqueue(line) }

// TrySend implements protocol.EventSink: it reports false once the
// output queue is saturated, so statedump can pause instead of losing
// lines silently.
func (c *Connection) TrySend(line string) bool {
	if len(c.out)+len(line)+1 > OutputOverflowLimit {
		return false
	}
	c.enqueue(line)
	return true
}

// Flush writes as much of the queued output as the fd will currently
// accept.
func (c *Connection) Flush() error {
	for len(c.out) > 0 {
		n, err := unix.Write(c.writeFD, c.out)
		if n > 0 {
			c.out = c.out[n:]
		}
		if err != nil {
			if err == unix.EAGAIN {
				return nil
			}
			return err
		}
		if n == 0 {
			return nil
		}
	}
	return nil
}

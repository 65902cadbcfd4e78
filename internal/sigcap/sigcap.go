// Package sigcap implements the signal-accumulation subsystem
// (component C): a fixed set of trapped signals, each with a pending
// count and a first-seen timestamp, drained by the main loop and
// cleared only by explicit subtraction so a concurrently-arriving
// signal is never lost.
//
// Go's runtime already performs the async-signal-safe trapping a C
// sigaction handler would hand-roll; this package's one dedicated
// goroutine does the Go-native equivalent of spec.md §9's "self-pipe
// trick": it does nothing but bump the same atomic counters the main
// loop drains and write one byte to a pipe watched by the main loop's
// poll wait, per SPEC_FULL.md's 4.C note.
package sigcap

import (
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"daemonproxy-go/internal/clock"
)

// Event is a drained signal bucket: the signal, how many times it has
// fired since the last clear, and when it first went from zero to
// nonzero.
type Event struct {
	Signal syscall.Signal
	Count  uint32
	First  clock.Timestamp
}

type bucket struct {
	count atomic.Uint32
	first atomic.Uint64 // clock.Timestamp, 0 = unset
}

// Capture owns the trapped-signal set and its pending buckets.
type Capture struct {
	signals []syscall.Signal
	index   map[syscall.Signal]int
	buckets []bucket
	clk     clock.Source

	ch       chan os.Signal
	selfR    *os.File
	selfW    *os.File
	stopping atomic.Bool
}

// DefaultSignals is the fixed set spec.md §4.C names, in ascending
// signal-number order: statedump's signal ordering (SPEC_FULL.md §2
// SUPPLEMENT) and NewEventsSince's iteration both rely on this order.
var DefaultSignals = []syscall.Signal{
	syscall.SIGHUP,
	syscall.SIGINT,
	syscall.SIGUSR1,
	syscall.SIGUSR2,
	syscall.SIGPIPE,
	syscall.SIGALRM,
	syscall.SIGTERM,
	syscall.SIGCHLD,
}

// New builds a Capture over the given signal set, but does not start
// trapping until Start is called.
func New(clk clock.Source, signals []syscall.Signal) *Capture {
	c := &Capture{
		signals: signals,
		index:   make(map[syscall.Signal]int, len(signals)),
		buckets: make([]bucket, len(signals)),
		clk:     clk,
		ch:      make(chan os.Signal, 64),
	}
	for i, s := range signals {
		c.index[s] = i
	}
	return c
}

// SelfPipeReadFD returns the read end of the self-pipe the main loop's
// poll set should watch for readability.
func (c *Capture) SelfPipeReadFD() int {
	return int(c.selfR.Fd())
}

// Start opens the self-pipe, arms signal.Notify, and launches the
// forwarding goroutine. It is the only goroutine besides the main loop
// that this package spawns, and it touches nothing but the atomic
// buckets and the pipe's write end.
func (c *Capture) Start() error {
	r, w, err := os.Pipe()
	if err != nil {
		return err
	}
	c.selfR, c.selfW = r, w
	_ = syscall.SetNonblock(int(r.Fd()), true)
	_ = syscall.SetNonblock(int(w.Fd()), true)

	sigs := make([]os.Signal, len(c.signals))
	for i, s := range c.signals {
		sigs[i] = s
	}
	signal.Notify(c.ch, sigs...)
	go c.forward()
	return nil
}

// Stop disarms signal trapping and closes the self-pipe.
func (c *Capture) Stop() {
	c.stopping.Store(true)
	signal.Stop(c.ch)
	close(c.ch)
	c.selfW.Close()
	c.selfR.Close()
}

func (c *Capture) forward() {
	for sig := range c.ch {
		s, ok := sig.(syscall.Signal)
		if !ok {
			continue
		}
		i, ok := c.index[s]
		if !ok {
			continue
		}
		b := &c.buckets[i]
		b.count.Add(1)
		b.first.CompareAndSwap(0, uint64(c.clk.Now()))
		if c.stopping.Load() {
			return
		}
		// Best-effort wake; a full self-pipe means the main loop is
		// already about to wake and drain anyway.
		_, _ = c.selfW.Write([]byte{0})
	}
}

// DrainSelfPipe empties the self-pipe's buffered wake bytes. Call this
// once per main-loop iteration after poll reports the pipe readable.
func (c *Capture) DrainSelfPipe() {
	rc, err := c.selfR.SyscallConn()
	if err != nil {
		return
	}
	buf := make([]byte, 64)
	_ = rc.Read(func(fd uintptr) bool {
		_ = syscall.SetNonblock(int(fd), true)
		for {
			n, err := syscall.Read(int(fd), buf)
			if n <= 0 || err != nil {
				return true
			}
		}
	})
}

// Drain atomically swaps every nonzero bucket's count to zero and
// returns one Event per bucket that had a nonzero count, in signal
// declaration order. It also zeroes the bucket's "first seen"
// timestamp, so a later signal re-arms it fresh via CompareAndSwap in
// forward. Because Drain is destructive, the service state machine's
// sigwake decisions never call it directly; they use NewEventsSince,
// which only reads. Drain exists solely to feed the main loop's
// `signal` event emission.
func (c *Capture) Drain() []Event {
	var out []Event
	for i, s := range c.signals {
		b := &c.buckets[i]
		n := b.count.Swap(0)
		if n == 0 {
			continue
		}
		first := clock.Timestamp(b.first.Load())
		b.first.Store(0)
		out = append(out, Event{Signal: s, Count: n, First: first})
	}
	return out
}

// Clear subtracts n from sig's pending count via a single read-modify-
// write (signal.clear NAME N never sets to zero outright, so a signal
// arriving concurrently with the clear is not lost).
func (c *Capture) Clear(sig syscall.Signal, n uint32) bool {
	i, ok := c.index[sig]
	if !ok {
		return false
	}
	b := &c.buckets[i]
	for {
		cur := b.count.Load()
		next := uint32(0)
		if cur > n {
			next = cur - n
		}
		if b.count.CompareAndSwap(cur, next) {
			if next == 0 {
				b.first.Store(0)
			}
			return true
		}
	}
}

// Peek returns the current pending count and first-seen timestamp for
// sig without draining it, for statedump.
func (c *Capture) Peek(sig syscall.Signal) (count uint32, first clock.Timestamp, ok bool) {
	i, ok := c.index[sig]
	if !ok {
		return 0, 0, false
	}
	b := &c.buckets[i]
	return b.count.Load(), clock.Timestamp(b.first.Load()), true
}

// NewEventsSince returns every signal whose first-seen timestamp
// strictly exceeds since, in ascending timestamp order. This is the
// only interface the service state machine uses to check sigwake
// triggers (spec.md §4.C, sig_get_new_events).
func (c *Capture) NewEventsSince(since clock.Timestamp) []Event {
	var out []Event
	for i, s := range c.signals {
		b := &c.buckets[i]
		first := clock.Timestamp(b.first.Load())
		if first > since {
			out = append(out, Event{Signal: s, Count: b.count.Load(), First: first})
		}
	}
	// Insertion sort: the signal set is tiny (<=8), a full sort package
	// import buys nothing here.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].First < out[j-1].First; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Signals returns the trapped signal set.
func (c *Capture) Signals() []syscall.Signal { return c.signals }

package protocol

import (
	"strconv"
	"strings"

	"daemonproxy-go/internal/fdtable"
	"daemonproxy-go/internal/service"
	"daemonproxy-go/internal/signame"
)

// DumpCursor drives one connection's interruptible, interleaved
// statedump: fds, then services, then signals, then a completion
// marker, in that fixed order (SPEC_FULL.md's supplement). Each call to
// Next advances the cursor by exactly one line, using
// fdtable/service.Table's WalkAfter so a dump that stalls on a full
// output buffer resumes from the last name emitted rather than
// restarting.
type DumpCursor struct {
	stage        int
	afterFd      string
	afterService string
	signalIdx    int
}

const (
	stageFds = iota
	stageServices
	stageSignals
	stageDone
)

func fdStateLine(e *fdtable.Entry) string {
	parts := []string{"fd.state", e.Name, e.Kind.String()}
	switch e.Kind {
	case fdtable.KindPipeRead, fdtable.KindPipeWrite:
		parts = append(parts, e.Peer)
	case fdtable.KindFile:
		parts = append(parts, e.Path, e.Flags)
	}
	return strings.Join(parts, "\t")
}

func serviceStateLine(s *service.Service) string {
	ts := s.StartTime
	if s.State == service.Reaped {
		ts = s.ReapTime
	}
	parts := []string{"service.state", s.Name, s.State.String(), ts.String()}
	if s.PID != 0 {
		parts = append(parts, "pid="+strconv.Itoa(s.PID))
	}
	return strings.Join(parts, "\t")
}

// Next returns the next line of the dump, and whether the dump is
// finished (in which case line is also the "statedump\tcomplete"
// marker, emitted exactly once).
func (c *DumpCursor) Next(ctx *Context) (line string, done bool) {
	for {
		switch c.stage {
		case stageFds:
			var next *fdtable.Entry
			ctx.Fds.WalkAfter(c.afterFd, func(e *fdtable.Entry) bool {
				next = e
				return false
			})
			if next == nil {
				c.stage = stageServices
				continue
			}
			c.afterFd = next.Name
			return fdStateLine(next), false

		case stageServices:
			var next *service.Service
			ctx.Services.WalkAfter(c.afterService, func(s *service.Service) bool {
				next = s
				return false
			})
			if next == nil {
				c.stage = stageSignals
				continue
			}
			c.afterService = next.Name
			return serviceStateLine(next), false

		case stageSignals:
			signals := ctx.Signals.Signals()
			if c.signalIdx >= len(signals) {
				c.stage = stageDone
				continue
			}
			sig := signals[c.signalIdx]
			c.signalIdx++
			count, first, _ := ctx.Signals.Peek(sig)
			if count == 0 {
				continue
			}
			return strings.Join([]string{
				"signal",
				signame.Name(sig),
				strconv.FormatUint(uint64(count), 10),
				first.String(),
			}, "\t"), false

		default:
			return "statedump\tcomplete", true
		}
	}
}

// Package failsafe implements component I: the guard that keeps an
// accidental "shutdown" or "terminate" command from tearing down a PID
// 1 supervisor, and the staged exit-code bookkeeping spec.md §7
// describes.
package failsafe

import "sync"

// Exit codes the supervisor's shutdown sequence can return.
const (
	ExitClean       = 0
	ExitGraceFailed = 10
	ExitForced      = 11
)

// Guard tracks whether destructive controller commands are armed. When
// running as PID 1, spec.md §7 wants the guard on by default so a
// stray "shutdown" typed into the wrong terminal can't take down the
// whole container; anywhere else there's a supervising process above
// this one to restart it, so the guard defaults off.
type Guard struct {
	mu     sync.Mutex
	armed  bool
	code   string
}

// New returns a Guard defaulted per spec.md §7: armed when running as
// PID 1, disarmed otherwise.
func New(isPID1 bool) *Guard {
	return &Guard{armed: isPID1}
}

// Armed reports whether destructive commands currently require a code.
func (g *Guard) Armed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.armed
}

// Arm enables the guard with the given disarm code.
func (g *Guard) Arm(code string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.armed = true
	g.code = code
}

// Disarm clears the guard if code matches, and reports whether it did.
// An empty stored code means "no code needed"; Disarm("") then
// succeeds and so does any other input, matching the "failsafe -"
// command with no armed code configured.
func (g *Guard) Disarm(code string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.armed {
		return true
	}
	if g.code != "" && g.code != code {
		return false
	}
	g.armed = false
	g.code = ""
	return true
}

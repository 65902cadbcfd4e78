// Package signame maps POSIX signal names to numbers for the
// controller protocol's trigger lists and service.signal/signal.clear
// commands.
package signame

import (
	"strconv"
	"strings"
	"syscall"
)

// byName maps both the canonical "SIGTERM" spelling and the bare
// "TERM" shorthand to their signal number.
var byName = map[string]syscall.Signal{
	"SIGHUP": syscall.SIGHUP, "HUP": syscall.SIGHUP,
	"SIGINT": syscall.SIGINT, "INT": syscall.SIGINT,
	"SIGQUIT": syscall.SIGQUIT, "QUIT": syscall.SIGQUIT,
	"SIGILL": syscall.SIGILL, "ILL": syscall.SIGILL,
	"SIGTRAP": syscall.SIGTRAP, "TRAP": syscall.SIGTRAP,
	"SIGABRT": syscall.SIGABRT, "ABRT": syscall.SIGABRT,
	"SIGBUS": syscall.SIGBUS, "BUS": syscall.SIGBUS,
	"SIGFPE": syscall.SIGFPE, "FPE": syscall.SIGFPE,
	"SIGKILL": syscall.SIGKILL, "KILL": syscall.SIGKILL,
	"SIGUSR1": syscall.SIGUSR1, "USR1": syscall.SIGUSR1,
	"SIGSEGV": syscall.SIGSEGV, "SEGV": syscall.SIGSEGV,
	"SIGUSR2": syscall.SIGUSR2, "USR2": syscall.SIGUSR2,
	"SIGPIPE": syscall.SIGPIPE, "PIPE": syscall.SIGPIPE,
	"SIGALRM": syscall.SIGALRM, "ALRM": syscall.SIGALRM,
	"SIGTERM": syscall.SIGTERM, "TERM": syscall.SIGTERM,
	"SIGCHLD": syscall.SIGCHLD, "CHLD": syscall.SIGCHLD,
	"SIGCONT": syscall.SIGCONT, "CONT": syscall.SIGCONT,
	"SIGSTOP": syscall.SIGSTOP, "STOP": syscall.SIGSTOP,
	"SIGTSTP": syscall.SIGTSTP, "TSTP": syscall.SIGTSTP,
	"SIGTTIN": syscall.SIGTTIN, "TTIN": syscall.SIGTTIN,
	"SIGTTOU": syscall.SIGTTOU, "TTOU": syscall.SIGTTOU,
	"SIGURG": syscall.SIGURG, "URG": syscall.SIGURG,
	"SIGXCPU": syscall.SIGXCPU, "XCPU": syscall.SIGXCPU,
	"SIGXFSZ": syscall.SIGXFSZ, "XFSZ": syscall.SIGXFSZ,
	"SIGVTALRM": syscall.SIGVTALRM, "VTALRM": syscall.SIGVTALRM,
	"SIGPROF": syscall.SIGPROF, "PROF": syscall.SIGPROF,
	"SIGWINCH": syscall.SIGWINCH, "WINCH": syscall.SIGWINCH,
	"SIGIO": syscall.SIGIO, "IO": syscall.SIGIO,
}

// byNumber is the reverse of byName's canonical "SIG..." spellings,
// built once at init.
var byNumber = make(map[syscall.Signal]string)

func init() {
	for name, sig := range byName {
		if strings.HasPrefix(name, "SIG") {
			byNumber[sig] = name
		}
	}
}

// Lookup resolves a signal name (either spelling) or a bare integer to
// a syscall.Signal.
func Lookup(s string) (syscall.Signal, bool) {
	if sig, ok := byName[strings.ToUpper(s)]; ok {
		return sig, true
	}
	if n, err := strconv.Atoi(s); err == nil {
		return syscall.Signal(n), true
	}
	return 0, false
}

// Name renders sig in its canonical "SIGxxx" form, or its bare number
// if unrecognized.
func Name(sig syscall.Signal) string {
	if name, ok := byNumber[sig]; ok {
		return name
	}
	return strconv.Itoa(int(sig))
}

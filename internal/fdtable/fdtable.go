// Package fdtable implements the named-fd registry (component D):
// process-wide named descriptors, with kinds pipe-read, pipe-write,
// file, special, and unknown, that services inherit at fork time.
package fdtable

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"daemonproxy-go/errors"
	"daemonproxy-go/internal/index"
	"daemonproxy-go/logging"
)

// Kind identifies what a named fd actually is.
type Kind int

const (
	KindPipeRead Kind = iota
	KindPipeWrite
	KindFile
	KindSpecial
	KindUnknown
)

// String renders the kind the way it appears in fd.state events.
func (k Kind) String() string {
	switch k {
	case KindPipeRead:
		return "pipe-read"
	case KindPipeWrite:
		return "pipe-write"
	case KindFile:
		return "file"
	case KindSpecial:
		return "special"
	default:
		return "unknown"
	}
}

// NameBufSize bounds a named fd's (and a service's) name length,
// matching NAME_BUF_SIZE from SPEC_FULL.md's supplement.
const NameBufSize = 64

var nameRe = regexp.MustCompile(`^[A-Za-z0-9._-]{1,63}$`)

// ValidName reports whether name is a well-formed fd/service name.
func ValidName(name string) bool {
	return len(name) < NameBufSize && nameRe.MatchString(name)
}

// Specials are the four names that always exist and can never be
// deleted or have their descriptors closed by this package.
var Specials = []string{"null", "stdin", "stdout", "stderr"}

// Entry is one named fd.
type Entry struct {
	Name  string
	Kind  Kind
	FD    int
	Peer  string // pipe-read <-> pipe-write peer name
	Path  string // file path, for Kind == KindFile
	Flags string // raw flags string as given to fd.open
	file  *os.File
}

// Event mirrors one fd.state protocol line.
type Event struct {
	Name string
	Kind Kind
	Peer string
	Path string
	Flags string
}

// Fields renders the event as the tab-separated fields after the verb.
func (e Event) Fields() []string {
	f := []string{e.Name, e.Kind.String()}
	switch e.Kind {
	case KindPipeRead, KindPipeWrite:
		f = append(f, e.Peer)
	case KindFile:
		f = append(f, e.Path, e.Flags)
	}
	return f
}

// Table is the process-wide named-fd registry.
type Table struct {
	byName map[string]*index.Node[string, *Entry]
	idx    index.Tree[string, *Entry]
	cap    int // 0 = unbounded; set by SetCap for --fd-pool mode
}

// New creates a table with the four specials populated.
func New() (*Table, error) {
	t := &Table{byName: make(map[string]*index.Node[string, *Entry])}
	if err := t.initSpecials(); err != nil {
		return nil, err
	}
	return t, nil
}

// SetCap bounds the number of non-special entries the table will hold,
// for --fd-pool mode: once reached, Pipe and Open return ErrLimit
// instead of growing the table further.
func (t *Table) SetCap(n int) { t.cap = n }

func (t *Table) nonSpecialCount() int {
	n := 0
	t.idx.Walk(func(node *index.Node[string, *Entry]) bool {
		if node.Value().Kind != KindSpecial {
			n++
		}
		return true
	})
	return n
}

func (t *Table) checkCap(namesAdded int) error {
	if t.cap <= 0 {
		return nil
	}
	if t.nonSpecialCount()+namesAdded > t.cap {
		return errors.New(errors.ErrLimit, "fdtable.cap", "fd pool exhausted")
	}
	return nil
}

func (t *Table) insert(e *Entry) {
	n := t.idx.Insert(e.Name, e)
	t.byName[e.Name] = n
}

func (t *Table) initSpecials() error {
	nullFile, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return errors.Wrap(err, errors.ErrIO, "fdtable.init")
	}
	t.insert(&Entry{Name: "null", Kind: KindSpecial, FD: int(nullFile.Fd()), file: nullFile})
	t.insert(&Entry{Name: "stdin", Kind: KindSpecial, FD: int(os.Stdin.Fd())})
	t.insert(&Entry{Name: "stdout", Kind: KindSpecial, FD: int(os.Stdout.Fd())})
	t.insert(&Entry{Name: "stderr", Kind: KindSpecial, FD: int(os.Stderr.Fd())})
	return nil
}

// IsSpecial reports whether name is one of the four special fds.
func IsSpecial(name string) bool {
	for _, s := range Specials {
		if s == name {
			return true
		}
	}
	return false
}

// Get returns the named entry, or nil.
func (t *Table) Get(name string) *Entry {
	n, ok := t.byName[name]
	if !ok {
		return nil
	}
	return n.Value()
}

// removeExisting closes and drops a prior non-special entry so a
// redefinition (fd.pipe reusing a name) doesn't leak the old fd.
func (t *Table) removeExisting(name string) error {
	n, ok := t.byName[name]
	if !ok {
		return nil
	}
	e := n.Value()
	if e.Kind == KindSpecial {
		return errors.WrapWithEntity(nil, errors.ErrInvalid, "fd.delete", name)
	}
	if e.file != nil {
		e.file.Close()
	} else if e.FD >= 0 {
		unix.Close(e.FD)
	}
	t.idx.Delete(n)
	delete(t.byName, name)
	return nil
}

// Pipe creates a pipe and stores its ends under names r and w,
// replacing any prior non-special entries under those names. It is
// idempotent: calling it twice with the same names leaves the table in
// the same shape (new fds, same two entries) and emits the same two
// events.
func (t *Table) Pipe(r, w string) ([]Event, error) {
	if !ValidName(r) || !ValidName(w) {
		return nil, errors.New(errors.ErrInvalid, "fd.pipe", "invalid name")
	}
	if IsSpecial(r) || IsSpecial(w) {
		return nil, errors.WrapWithEntity(nil, errors.ErrInvalid, "fd.pipe", r+"/"+w)
	}

	added := 0
	if t.Get(r) == nil {
		added++
	}
	if t.Get(w) == nil {
		added++
	}
	if err := t.checkCap(added); err != nil {
		return nil, err
	}

	fdpair := make([]int, 2)
	if err := unix.Pipe2(fdpair, unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, errors.Wrap(err, errors.ErrIO, "fd.pipe")
	}

	if err := t.removeExisting(r); err != nil {
		unix.Close(fdpair[0])
		unix.Close(fdpair[1])
		return nil, err
	}
	if err := t.removeExisting(w); err != nil {
		unix.Close(fdpair[0])
		unix.Close(fdpair[1])
		return nil, err
	}

	t.insert(&Entry{Name: r, Kind: KindPipeRead, FD: fdpair[0], Peer: w})
	t.insert(&Entry{Name: w, Kind: KindPipeWrite, FD: fdpair[1], Peer: r})

	return []Event{
		{Name: r, Kind: KindPipeRead, Peer: w},
		{Name: w, Kind: KindPipeWrite, Peer: r},
	}, nil
}

// ParseOpenFlags parses the comma-separated flag list fd.open accepts:
// read,write,append,create,mkdir,nonblock,sync,trunc.
func ParseOpenFlags(spec string) (int, bool, error) {
	bits := 0
	mkdir := false
	hasRW := false
	for _, f := range strings.Split(spec, ",") {
		switch strings.TrimSpace(f) {
		case "":
			continue
		case "read":
			bits |= os.O_RDONLY
			hasRW = true
		case "write":
			if bits&os.O_RDONLY != 0 {
				bits &^= os.O_RDONLY
				bits |= os.O_RDWR
			} else {
				bits |= os.O_WRONLY
			}
			hasRW = true
		case "append":
			bits |= os.O_APPEND
		case "create":
			bits |= os.O_CREATE
		case "mkdir":
			mkdir = true
		case "nonblock":
			// applied post-open via SetNonblock
		case "sync":
			bits |= os.O_SYNC
		case "trunc":
			bits |= os.O_TRUNC
		default:
			return 0, false, errors.WrapWithDetail(nil, errors.ErrInvalid, "fd.open",
				fmt.Sprintf("unknown flag: %s", f))
		}
	}
	if !hasRW {
		bits |= os.O_RDONLY
	}
	return bits, mkdir, nil
}

// Open opens path with the parsed flag set and stores it under name.
// On failure the name is not created.
func (t *Table) Open(name, flagsSpec, path string) (Event, error) {
	if !ValidName(name) {
		return Event{}, errors.New(errors.ErrInvalid, "fd.open", "invalid name")
	}
	if IsSpecial(name) {
		return Event{}, errors.WrapWithEntity(nil, errors.ErrInvalid, "fd.open", name)
	}
	added := 0
	if t.Get(name) == nil {
		added = 1
	}
	if err := t.checkCap(added); err != nil {
		return Event{}, err
	}
	bits, mkdir, err := ParseOpenFlags(flagsSpec)
	if err != nil {
		return Event{}, err
	}
	if mkdir {
		if err := os.MkdirAll(parentDir(path), 0755); err != nil {
			return Event{}, errors.WrapWithEntity(err, errors.ErrIO, "fd.open", name)
		}
	}
	f, err := os.OpenFile(path, bits, 0644)
	if err != nil {
		return Event{}, errors.WrapWithEntity(err, errors.ErrIO, "fd.open", name)
	}
	if strings.Contains(flagsSpec, "nonblock") {
		_ = syscall.SetNonblock(int(f.Fd()), true)
	}

	if err := t.removeExisting(name); err != nil {
		f.Close()
		return Event{}, err
	}
	t.insert(&Entry{Name: name, Kind: KindFile, FD: int(f.Fd()), Path: path, Flags: flagsSpec, file: f})
	return Event{Name: name, Kind: KindFile, Path: path, Flags: flagsSpec}, nil
}

func parentDir(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i <= 0 {
		return "."
	}
	return path[:i]
}

// Delete closes and removes name, refusing on specials.
func (t *Table) Delete(name string) error {
	n, ok := t.byName[name]
	if !ok {
		return errors.WrapWithEntity(nil, errors.ErrNotFound, "fd.delete", name)
	}
	if n.Value().Kind == KindSpecial {
		return errors.WrapWithEntity(nil, errors.ErrInvalid, "fd.delete", name)
	}
	return t.removeExisting(name)
}

// EnsureSpecialsHealthy checks each special's descriptor with F_GETFD.
// A bad "null" is re-opened on /dev/null; a bad stdin, stdout or stderr
// is only logged and keeps its old descriptor number.
func (t *Table) EnsureSpecialsHealthy() {
	for _, name := range Specials {
		e := t.Get(name)
		if e == nil {
			continue
		}
		if _, err := unix.FcntlInt(uintptr(e.FD), unix.F_GETFD, 0); err == nil {
			continue
		}
		logging.Default().Warn("special fd unhealthy, reopening", "fd", name)
		if name == "null" {
			f, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
			if err != nil {
				logging.Default().Error("failed to reopen special fd", "fd", name, "error", err)
				continue
			}
			if e.file != nil {
				e.file.Close()
			}
			e.file = f
			e.FD = int(f.Fd())
		}
	}
}

// Walk visits every entry in name order (for statedump).
func (t *Table) Walk(fn func(*Entry) bool) {
	t.idx.Walk(func(n *index.Node[string, *Entry]) bool {
		return fn(n.Value())
	})
}

// WalkAfter visits entries whose name sorts strictly after name, in
// order, supporting statedump's interruptible resume cursor.
func (t *Table) WalkAfter(name string, fn func(*Entry) bool) {
	n := t.idx.FindAfter(name)
	for n != nil {
		if !fn(n.Value()) {
			return
		}
		n = index.Next(n)
	}
}

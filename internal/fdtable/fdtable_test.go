package fdtable

import (
	"os"
	"path/filepath"
	"testing"

	"daemonproxy-go/errors"
)

func TestNewHasSpecials(t *testing.T) {
	tbl, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for _, name := range Specials {
		if tbl.Get(name) == nil {
			t.Errorf("special %q missing after New()", name)
		}
	}
}

func TestSpecialsCannotBeDeleted(t *testing.T) {
	tbl, _ := New()
	for _, name := range Specials {
		if err := tbl.Delete(name); !errors.IsKind(err, errors.ErrInvalid) {
			t.Errorf("Delete(%q) = %v, want ErrInvalid", name, err)
		}
	}
}

func TestPipeIdempotent(t *testing.T) {
	tbl, _ := New()
	ev1, err := tbl.Pipe("r", "w")
	if err != nil {
		t.Fatalf("Pipe() error = %v", err)
	}
	r1 := tbl.Get("r")
	w1 := tbl.Get("w")

	ev2, err := tbl.Pipe("r", "w")
	if err != nil {
		t.Fatalf("second Pipe() error = %v", err)
	}
	r2 := tbl.Get("r")
	w2 := tbl.Get("w")

	if r1.Kind != r2.Kind || w1.Kind != w2.Kind {
		t.Fatal("Pipe() twice should leave the table in the same shape")
	}
	if len(ev1) != 2 || len(ev2) != 2 {
		t.Fatal("Pipe() should emit two fd.state events")
	}
	if ev1[0].Name != ev2[0].Name || ev1[1].Name != ev2[1].Name {
		t.Fatal("idempotent Pipe() should emit the same event shape")
	}
	// The old fds must have been closed, not leaked; new fd numbers may differ.
	if r2.FD == r1.FD && w2.FD == w1.FD {
		t.Log("fd numbers happened to be reused, which is fine as long as no leak occurred")
	}
}

func TestPipeRejectsSpecialNames(t *testing.T) {
	tbl, _ := New()
	if _, err := tbl.Pipe("null", "w"); !errors.IsKind(err, errors.ErrInvalid) {
		t.Fatalf("Pipe(null, w) = %v, want ErrInvalid", err)
	}
}

func TestOpenFailureDoesNotCreateName(t *testing.T) {
	tbl, _ := New()
	_, err := tbl.Open("f", "read", "/nonexistent/path/that/does/not/exist")
	if !errors.IsKind(err, errors.ErrIO) {
		t.Fatalf("Open() = %v, want ErrIO", err)
	}
	if tbl.Get("f") != nil {
		t.Fatal("failed Open() must not create the name")
	}
}

func TestOpenCreateAndDelete(t *testing.T) {
	tbl, _ := New()
	dir := t.TempDir()
	path := filepath.Join(dir, "out.log")

	ev, err := tbl.Open("logf", "write,create,trunc", path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if ev.Kind != KindFile || ev.Path != path {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("file not created: %v", err)
	}

	if err := tbl.Delete("logf"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if tbl.Get("logf") != nil {
		t.Fatal("entry should be gone after Delete()")
	}
}

func TestDeleteUnknown(t *testing.T) {
	tbl, _ := New()
	if err := tbl.Delete("nope"); !errors.IsKind(err, errors.ErrNotFound) {
		t.Fatalf("Delete(unknown) = %v, want ErrNotFound", err)
	}
}

func TestWalkOrder(t *testing.T) {
	tbl, _ := New()
	tbl.Pipe("zr", "zw")
	tbl.Pipe("ar", "aw")

	var names []string
	tbl.Walk(func(e *Entry) bool {
		names = append(names, e.Name)
		return true
	})
	for i := 1; i < len(names); i++ {
		if names[i] < names[i-1] {
			t.Fatalf("Walk did not visit in ascending order: %v", names)
		}
	}
}

func TestValidName(t *testing.T) {
	cases := map[string]bool{
		"fine-name_1.2": true,
		"":              false,
		"has space":     false,
		"has/slash":     false,
	}
	for name, want := range cases {
		if got := ValidName(name); got != want {
			t.Errorf("ValidName(%q) = %v, want %v", name, got, want)
		}
	}
}

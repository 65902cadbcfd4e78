package pool

import (
	"testing"

	"daemonproxy-go/errors"
)

func TestAllocFreeRoundTrip(t *testing.T) {
	a := NewArena[int](2)
	if a.Cap() != 2 {
		t.Fatalf("Cap() = %d, want 2", a.Cap())
	}

	i1, p1, err := a.Alloc()
	if err != nil {
		t.Fatalf("Alloc() error = %v", err)
	}
	*p1 = 42

	i2, _, err := a.Alloc()
	if err != nil {
		t.Fatalf("Alloc() error = %v", err)
	}

	if _, _, err := a.Alloc(); !errors.IsKind(err, errors.ErrLimit) {
		t.Fatalf("third Alloc() err = %v, want ErrLimit", err)
	}

	if got := a.At(i1); got == nil || *got != 42 {
		t.Fatalf("At(i1) = %v, want 42", got)
	}

	a.Free(i1)
	if a.At(i1) != nil {
		t.Fatal("At(freed index) should be nil")
	}

	i3, _, err := a.Alloc()
	if err != nil {
		t.Fatalf("Alloc after free error = %v", err)
	}
	if i3 != i1 {
		t.Fatalf("Alloc after free reused a different slot: %d vs %d", i3, i1)
	}
	_ = i2
}

func TestParseSpec(t *testing.T) {
	if s, err := ParseSpec(""); err != nil || s.Mode != Dynamic {
		t.Fatalf("ParseSpec(\"\") = %+v, %v, want DynamicSpec", s, err)
	}
	s, err := ParseSpec("10:2048")
	if err != nil {
		t.Fatalf("ParseSpec error: %v", err)
	}
	if s.Mode != Fixed || s.Count != 10 || s.Bytes != 2048 {
		t.Fatalf("ParseSpec(\"10:2048\") = %+v, want {Fixed 10 2048}", s)
	}
	if s, err := ParseSpec("5"); err != nil || s.Count != 5 || s.Bytes != 0 {
		t.Fatalf("ParseSpec(\"5\") = %+v, %v, want count-only spec", s, err)
	}
	if _, err := ParseSpec("not-a-number"); !errors.IsKind(err, errors.ErrInvalid) {
		t.Fatalf("ParseSpec(garbage) err = %v, want ErrInvalid", err)
	}
	if _, err := ParseSpec("10:nope"); !errors.IsKind(err, errors.ErrInvalid) {
		t.Fatalf("ParseSpec(bad bytes) err = %v, want ErrInvalid", err)
	}
}

func TestInUse(t *testing.T) {
	a := NewArena[struct{}](3)
	if a.InUse() != 0 {
		t.Fatalf("InUse() = %d, want 0", a.InUse())
	}
	idx, _, _ := a.Alloc()
	if a.InUse() != 1 {
		t.Fatalf("InUse() = %d, want 1", a.InUse())
	}
	a.Free(idx)
	if a.InUse() != 0 {
		t.Fatalf("InUse() = %d, want 0 after free", a.InUse())
	}
}

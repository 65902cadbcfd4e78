// Package pool provides a fixed-size arena (Arena) and the Spec parsed
// from --service-pool / --fd-pool / --controller-pool. The service
// table, fd table and connection list take a Spec only as a count (and,
// for services, a per-service vars byte) ceiling, so exhaustion becomes
// an ordinary protocol "limit" error; none of them is backed by an
// Arena, and they still allocate as entries are added.
package pool

import (
	"strconv"
	"strings"

	"daemonproxy-go/errors"
)

// Arena is a fixed-size slab of T, handed out by index. Index 0 is
// never issued to callers so the zero value of an index type can mean
// "unset" the way the spec's pid/fd fields use 0 for "none".
type Arena[T any] struct {
	slots []T
	free  []int32
	used  []bool
}

// NewArena preallocates n+1 slots (slot 0 reserved).
func NewArena[T any](n int) *Arena[T] {
	a := &Arena[T]{
		slots: make([]T, n+1),
		used:  make([]bool, n+1),
	}
	for i := n; i >= 1; i-- {
		a.free = append(a.free, int32(i))
	}
	return a
}

// Cap returns the number of usable slots.
func (a *Arena[T]) Cap() int { return len(a.slots) - 1 }

// InUse returns the number of allocated slots.
func (a *Arena[T]) InUse() int { return a.Cap() - len(a.free) }

// Alloc reserves a slot and returns its index and a pointer into the
// arena. Returns ErrPoolExhausted when no slots remain.
func (a *Arena[T]) Alloc() (int32, *T, error) {
	if len(a.free) == 0 {
		return 0, nil, errors.New(errors.ErrLimit, "pool.alloc", "pool exhausted")
	}
	idx := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]
	a.used[idx] = true
	var zero T
	a.slots[idx] = zero
	return idx, &a.slots[idx], nil
}

// Free releases a slot back to the arena.
func (a *Arena[T]) Free(idx int32) {
	if idx <= 0 || int(idx) >= len(a.slots) || !a.used[idx] {
		return
	}
	a.used[idx] = false
	a.free = append(a.free, idx)
}

// At returns a pointer to the slot at idx, or nil if it is not in use.
func (a *Arena[T]) At(idx int32) *T {
	if idx <= 0 || int(idx) >= len(a.slots) || !a.used[idx] {
		return nil
	}
	return &a.slots[idx]
}

// Mode selects whether a table uses a bounded Arena or grows freely.
type Mode int

const (
	// Dynamic uses ordinary allocation (make/append), no upper bound.
	Dynamic Mode = iota
	// Fixed uses a preallocated Arena; exhaustion is a "limit" error.
	Fixed
)

// Spec describes a requested pool size parsed from a CLI flag like
// "N:BYTES" (count and per-entry byte budget). BYTES is advisory for
// components (like service vars) that pack variable-length data into a
// fixed per-entry region; Count alone sizes the Arena.
type Spec struct {
	Mode  Mode
	Count int
	Bytes int
}

// DynamicSpec is the zero-value "no pooling" configuration.
var DynamicSpec = Spec{Mode: Dynamic}

// ParseSpec parses a --service-pool/--fd-pool/--controller-pool flag
// value of the form "N:BYTES" (or bare "N" when a component has no
// per-entry byte budget). An empty raw string is DynamicSpec.
func ParseSpec(raw string) (Spec, error) {
	if raw == "" {
		return DynamicSpec, nil
	}
	countStr, bytesStr, hasBytes := strings.Cut(raw, ":")
	count, err := strconv.Atoi(countStr)
	if err != nil || count <= 0 {
		return Spec{}, errors.WrapWithDetail(nil, errors.ErrInvalid, "pool.parse", "bad count in "+strconv.Quote(raw))
	}
	spec := Spec{Mode: Fixed, Count: count}
	if hasBytes {
		b, err := strconv.Atoi(bytesStr)
		if err != nil || b <= 0 {
			return Spec{}, errors.WrapWithDetail(nil, errors.ErrInvalid, "pool.parse", "bad byte budget in "+strconv.Quote(raw))
		}
		spec.Bytes = b
	}
	return spec, nil
}

package service

import (
	"bytes"

	"daemonproxy-go/errors"
)

// VarSet is the packed "name=value\0" record sequence spec.md §3E
// describes for a service's args/fds/tags/triggers. It is always a
// single contiguous buffer (so pool mode can cap it per service) and
// ends with a NUL whenever it is nonempty, matching the C-compatible
// layout an execvp-style argv would want.
type VarSet struct {
	buf []byte
	cap int // 0 = unbounded (dynamic mode)
}

// SetCap bounds the buffer to at most n bytes; 0 means unbounded.
func (v *VarSet) SetCap(n int) { v.cap = n }

// Len returns the current buffer length.
func (v *VarSet) Len() int { return len(v.buf) }

func recordFor(key, value string) []byte {
	b := make([]byte, 0, len(key)+1+len(value)+1)
	b = append(b, key...)
	b = append(b, '=')
	b = append(b, value...)
	b = append(b, 0)
	return b
}

func (v *VarSet) findRecord(key string) (start, end int, found bool) {
	i := 0
	for i < len(v.buf) {
		term := bytes.IndexByte(v.buf[i:], 0)
		if term < 0 {
			break
		}
		record := v.buf[i : i+term]
		eq := bytes.IndexByte(record, '=')
		if eq >= 0 && string(record[:eq]) == key {
			return i, i + term + 1, true
		}
		i += term + 1
	}
	return 0, 0, false
}

// Get returns the value stored under key.
func (v *VarSet) Get(key string) (string, bool) {
	start, end, found := v.findRecord(key)
	if !found {
		return "", false
	}
	record := v.buf[start : end-1]
	eq := bytes.IndexByte(record, '=')
	return string(record[eq+1:]), true
}

// Set stores value under key, replacing any existing record in place
// via a splice (the "memmove" spec.md §4E describes). Returns
// ErrVarsOverflow if the pool cap would be exceeded; the buffer is left
// unmodified on that path.
func (v *VarSet) Set(key, value string) error {
	rec := recordFor(key, value)
	start, end, found := v.findRecord(key)

	newLen := len(v.buf) - 0
	if found {
		newLen = len(v.buf) - (end - start) + len(rec)
	} else {
		newLen = len(v.buf) + len(rec)
	}
	if v.cap > 0 && newLen > v.cap {
		return errors.New(errors.ErrLimit, "service.vars.set", "vars buffer would exceed pool cap")
	}

	if found {
		out := make([]byte, 0, newLen)
		out = append(out, v.buf[:start]...)
		out = append(out, rec...)
		out = append(out, v.buf[end:]...)
		v.buf = out
	} else {
		v.buf = append(v.buf, rec...)
	}
	return nil
}

// Delete removes key's record, if present.
func (v *VarSet) Delete(key string) {
	start, end, found := v.findRecord(key)
	if !found {
		return
	}
	v.buf = append(v.buf[:start], v.buf[end:]...)
}

// Bytes returns the raw packed buffer (read-only use expected).
func (v *VarSet) Bytes() []byte { return v.buf }

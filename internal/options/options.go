// Package options implements the typed options registry (component H):
// a process-wide map from option name to a typed slot (boolean,
// integer, duration, enum). Parsing one option's value never aborts the
// others. The CLI flags are bound by cobra directly and service.opts
// parses its own keys; neither goes through this registry.
package options

import (
	"fmt"
	"strconv"
	"time"

	"daemonproxy-go/errors"
)

// Kind identifies an option slot's value type.
type Kind int

const (
	KindBool Kind = iota
	KindInt
	KindDuration
	KindEnum
)

// Option is a single named, typed slot in the registry.
type Option struct {
	Name    string
	Kind    Kind
	Enum    []string // valid values when Kind == KindEnum
	boolV   bool
	intV    int64
	durV    time.Duration
	enumV   string
	Default string
}

// Bool returns the option's boolean value.
func (o *Option) Bool() bool { return o.boolV }

// Int returns the option's integer value.
func (o *Option) Int() int64 { return o.intV }

// Duration returns the option's duration value.
func (o *Option) Duration() time.Duration { return o.durV }

// EnumValue returns the option's enum value.
func (o *Option) EnumValue() string { return o.enumV }

// Set parses raw and stores it, validating against the option's Kind.
func (o *Option) Set(raw string) error {
	switch o.Kind {
	case KindBool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return errors.WrapWithDetail(err, errors.ErrInvalid, "options.set",
				fmt.Sprintf("%s: not a boolean: %q", o.Name, raw))
		}
		o.boolV = v
	case KindInt:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return errors.WrapWithDetail(err, errors.ErrInvalid, "options.set",
				fmt.Sprintf("%s: not an integer: %q", o.Name, raw))
		}
		o.intV = v
	case KindDuration:
		v, err := time.ParseDuration(raw)
		if err != nil {
			// Accept bare integers as seconds, matching the protocol's
			// "respawn-delay=2" (no unit) convention.
			if secs, serr := strconv.ParseInt(raw, 10, 64); serr == nil {
				o.durV = time.Duration(secs) * time.Second
				return nil
			}
			return errors.WrapWithDetail(err, errors.ErrInvalid, "options.set",
				fmt.Sprintf("%s: not a duration: %q", o.Name, raw))
		}
		o.durV = v
	case KindEnum:
		for _, v := range o.Enum {
			if v == raw {
				o.enumV = raw
				return nil
			}
		}
		return errors.WrapWithDetail(nil, errors.ErrInvalid, "options.set",
			fmt.Sprintf("%s: invalid value %q (want one of %v)", o.Name, raw, o.Enum))
	}
	return nil
}

// Registry is a process-wide map from option name to typed slot.
type Registry struct {
	opts map[string]*Option
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{opts: make(map[string]*Option)}
}

// Define registers a new option. Panics on duplicate names since that
// is a programming error caught at init, not a runtime condition.
func (r *Registry) Define(name string, kind Kind, enum []string, def string) *Option {
	if _, exists := r.opts[name]; exists {
		panic("options: duplicate definition: " + name)
	}
	o := &Option{Name: name, Kind: kind, Enum: enum, Default: def}
	if def != "" {
		_ = o.Set(def)
	}
	r.opts[name] = o
	return o
}

// Get returns the named option, or nil if undefined.
func (r *Registry) Get(name string) *Option {
	return r.opts[name]
}

// Set parses and stores raw into the named option. Returns an
// "invalid" error for unknown names; this never aborts processing of
// other options in a batch (see SetBatch).
func (r *Registry) Set(name, raw string) error {
	o := r.opts[name]
	if o == nil {
		return errors.WrapWithDetail(nil, errors.ErrInvalid, "options.set",
			fmt.Sprintf("unknown option: %s", name))
	}
	return o.Set(raw)
}

// SetBatch applies "key=value" pairs in order, collecting (not
// aborting on) individual errors so a single bad option in a batch
// command like service.opts does not block the rest.
func (r *Registry) SetBatch(pairs []string) []error {
	var errs []error
	for _, p := range pairs {
		key, val, ok := splitKV(p)
		if !ok {
			errs = append(errs, errors.WrapWithDetail(nil, errors.ErrInvalid, "options.set",
				fmt.Sprintf("malformed option: %q", p)))
			continue
		}
		if err := r.Set(key, val); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func splitKV(s string) (key, val string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}

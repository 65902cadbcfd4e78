package options

import (
	"testing"
	"time"

	"daemonproxy-go/errors"
)

func TestDefineAndSet(t *testing.T) {
	r := NewRegistry()
	r.Define("respawn", KindBool, nil, "false")
	r.Define("respawn-delay", KindDuration, nil, "0")
	r.Define("log-format", KindEnum, []string{"text", "json"}, "text")

	if err := r.Set("respawn", "true"); err != nil {
		t.Fatalf("Set(respawn) error = %v", err)
	}
	if !r.Get("respawn").Bool() {
		t.Error("respawn should be true")
	}

	if err := r.Set("respawn-delay", "2"); err != nil {
		t.Fatalf("Set(respawn-delay) error = %v", err)
	}
	if r.Get("respawn-delay").Duration() != 2*time.Second {
		t.Errorf("respawn-delay = %v, want 2s", r.Get("respawn-delay").Duration())
	}

	if err := r.Set("log-format", "json"); err != nil {
		t.Fatalf("Set(log-format) error = %v", err)
	}
	if r.Get("log-format").EnumValue() != "json" {
		t.Error("log-format should be json")
	}

	if err := r.Set("log-format", "xml"); !errors.IsKind(err, errors.ErrInvalid) {
		t.Fatalf("Set(log-format, xml) = %v, want ErrInvalid", err)
	}
}

func TestSetUnknownOption(t *testing.T) {
	r := NewRegistry()
	err := r.Set("nope", "1")
	if !errors.IsKind(err, errors.ErrInvalid) {
		t.Fatalf("Set(unknown) = %v, want ErrInvalid", err)
	}
}

func TestSetBatchCollectsErrorsAndContinues(t *testing.T) {
	r := NewRegistry()
	r.Define("a", KindBool, nil, "false")
	r.Define("b", KindBool, nil, "false")

	errs := r.SetBatch([]string{"a=true", "malformed", "bogus=1", "b=true"})
	if len(errs) != 2 {
		t.Fatalf("len(errs) = %d, want 2: %v", len(errs), errs)
	}
	if !r.Get("a").Bool() || !r.Get("b").Bool() {
		t.Error("valid options in the batch should still be applied")
	}
}

func TestDurationAcceptsBareSeconds(t *testing.T) {
	r := NewRegistry()
	o := r.Define("d", KindDuration, nil, "")
	if err := o.Set("5"); err != nil {
		t.Fatalf("Set(5) error = %v", err)
	}
	if o.Duration() != 5*time.Second {
		t.Errorf("Duration() = %v, want 5s", o.Duration())
	}
}

func TestDuplicateDefinePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate Define")
		}
	}()
	r := NewRegistry()
	r.Define("x", KindBool, nil, "")
	r.Define("x", KindBool, nil, "")
}

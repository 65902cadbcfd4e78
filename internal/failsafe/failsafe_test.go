package failsafe

import "testing"

func TestDefaultsByPID1(t *testing.T) {
	if !New(true).Armed() {
		t.Fatal("guard should default armed when running as PID 1")
	}
	if New(false).Armed() {
		t.Fatal("guard should default disarmed otherwise")
	}
}

func TestArmAndDisarmWithCode(t *testing.T) {
	g := New(false)
	g.Arm("letmeout")
	if !g.Armed() {
		t.Fatal("Arm should set Armed")
	}
	if g.Disarm("wrong") {
		t.Fatal("Disarm with wrong code should fail")
	}
	if !g.Armed() {
		t.Fatal("a failed Disarm must not clear the guard")
	}
	if !g.Disarm("letmeout") {
		t.Fatal("Disarm with correct code should succeed")
	}
	if g.Armed() {
		t.Fatal("guard should be clear after a correct Disarm")
	}
}

func TestDisarmWithoutCodeNeverFails(t *testing.T) {
	g := New(true)
	if !g.Disarm("anything") {
		t.Fatal("Disarm should succeed when no code was ever armed")
	}
}

package protocol

import "testing"

func TestParseCommandBasic(t *testing.T) {
	verb, args := ParseCommand("service.start web +5s")
	if verb != "service.start" || len(args) != 2 || args[0] != "web" || args[1] != "+5s" {
		t.Fatalf("ParseCommand() = %q, %v", verb, args)
	}
}

func TestParseCommandBlankAndComment(t *testing.T) {
	for _, line := range []string{"", "   ", "# a comment", "\t indented"} {
		if verb, args := ParseCommand(line); verb != "" || args != nil {
			t.Fatalf("ParseCommand(%q) = %q, %v, want empty", line, verb, args)
		}
	}
}

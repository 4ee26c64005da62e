package style

import (
	"strings"
	"testing"
)

func TestColoredWrapsKnownColors(t *testing.T) {
	for _, name := range Names {
		got := Colored("x", name)
		if !strings.Contains(got, "x") {
			t.Errorf("%s: lost the text: %q", name, got)
		}
		if !strings.Contains(got, "\x1b[") {
			t.Errorf("%s: no ANSI codes in %q", name, got)
		}
	}
}

func TestColoredUnknownPassthrough(t *testing.T) {
	if got := Colored("plain", "mauve"); got != "plain" {
		t.Errorf("unknown color altered text: %q", got)
	}
}

func TestWidthIgnoresANSI(t *testing.T) {
	if got := Width(Colored("hello", "red")); got != 5 {
		t.Errorf("Width = %d, want 5", got)
	}
}

package parse

import "testing"

func TestArgs(t *testing.T) {
	opts, bad := Args([]string{"host=0.0.0.0", "port=50600", "empty=", "broken", "=novalue"})
	if opts["host"] != "0.0.0.0" || opts["port"] != "50600" {
		t.Errorf("opts = %v", opts)
	}
	if opts["empty"] != "" {
		t.Errorf("empty value = %q", opts["empty"])
	}
	if len(bad) != 2 || bad[0] != "broken" || bad[1] != "=novalue" {
		t.Errorf("bad = %v, want [broken =novalue]", bad)
	}
}

func TestArgsLastWins(t *testing.T) {
	opts, _ := Args([]string{"port=1", "port=2"})
	if opts["port"] != "2" {
		t.Errorf("port = %q, want 2", opts["port"])
	}
}

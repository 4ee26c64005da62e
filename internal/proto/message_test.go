package proto

import (
	"errors"
	"strings"
	"testing"
)

// memStream feeds decode from an in-memory byte slice.
type memStream struct {
	data []byte
}

func (m *memStream) Next(n int) ([]byte, error) {
	if len(m.data) < n {
		return nil, errors.New("short read")
	}
	out := m.data[:n]
	m.data = m.data[n:]
	return out, nil
}

func TestClientFrameRoundTrip(t *testing.T) {
	cases := []ClientFrame{
		{TargetContext: ContextGroup, Target: "global", Content: "hello there"},
		{TargetContext: ContextUser, Target: "bob", Content: ""},
		{TargetContext: ContextGroup, Target: "room1", Content: "héllo ✓ unicode"},
		{TargetContext: ContextUser, Target: strings.Repeat("a", 255), Content: strings.Repeat("x", 65535)},
	}
	for _, want := range cases {
		data, err := want.Encode()
		if err != nil {
			t.Fatalf("Encode(%+v): %v", want, err)
		}
		got, err := ReadClientFrame(&memStream{data: data})
		if err != nil {
			t.Fatalf("ReadClientFrame: %v", err)
		}
		if got != want {
			t.Errorf("round trip = %+v, want %+v", got, want)
		}
	}
}

func TestServerFrameRoundTrip(t *testing.T) {
	cases := []ServerFrame{
		{SenderContext: ContextSystem, TargetContext: ContextUser, Sender: "system", Target: "alice", Content: "/req username"},
		{SenderContext: ContextUser, TargetContext: ContextGroup, Sender: "alice", Target: "global", Content: "hi all"},
		{SenderContext: ContextUser, TargetContext: ContextUser, Sender: "bob", Target: "alice", Content: "psst"},
	}
	for _, want := range cases {
		data, err := want.Encode()
		if err != nil {
			t.Fatalf("Encode(%+v): %v", want, err)
		}
		got, err := ReadServerFrame(&memStream{data: data})
		if err != nil {
			t.Fatalf("ReadServerFrame: %v", err)
		}
		if got != want {
			t.Errorf("round trip = %+v, want %+v", got, want)
		}
	}
}

func TestDecodeRejectsTamperedSignature(t *testing.T) {
	data, err := ClientFrame{TargetContext: ContextGroup, Target: "global", Content: "hi"}.Encode()
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		tampered := append([]byte(nil), data...)
		tampered[i] ^= 0xFF
		if _, err := ReadClientFrame(&memStream{data: tampered}); !errors.Is(err, ErrProtocol) {
			t.Errorf("byte %d tampered: err = %v, want ErrProtocol", i, err)
		}
	}
}

func TestDecodeRejectsBadContext(t *testing.T) {
	for _, ctx := range []byte{0, 3, 4, 255} {
		data, err := ClientFrame{TargetContext: ContextGroup, Target: "g", Content: "x"}.Encode()
		if err != nil {
			t.Fatal(err)
		}
		data[2] = ctx
		if _, err := ReadClientFrame(&memStream{data: data}); !errors.Is(err, ErrProtocol) {
			t.Errorf("target context %d: err = %v, want ErrProtocol", ctx, err)
		}
	}
	// server frames additionally validate the sender context
	data, err := ServerFrame{SenderContext: ContextSystem, TargetContext: ContextUser, Sender: "system", Target: "a", Content: "x"}.Encode()
	if err != nil {
		t.Fatal(err)
	}
	data[2] = byte(ContextGroup)
	if _, err := ReadServerFrame(&memStream{data: data}); !errors.Is(err, ErrProtocol) {
		t.Errorf("sender context GROUP: err = %v, want ErrProtocol", err)
	}
}

func TestDecodeRejectsInvalidUTF8(t *testing.T) {
	data, err := ClientFrame{TargetContext: ContextUser, Target: "ab", Content: "ok"}.Encode()
	if err != nil {
		t.Fatal(err)
	}
	data[4] = 0xFF // first target byte
	if _, err := ReadClientFrame(&memStream{data: data}); !errors.Is(err, ErrProtocol) {
		t.Errorf("err = %v, want ErrProtocol", err)
	}
}

func TestEncodeRejectsOversizedFields(t *testing.T) {
	if _, err := (ClientFrame{TargetContext: ContextUser, Target: strings.Repeat("a", 256), Content: "x"}).Encode(); err == nil {
		t.Error("oversized target: want error")
	}
	if _, err := (ClientFrame{TargetContext: ContextUser, Target: "a", Content: strings.Repeat("x", 65536)}).Encode(); err == nil {
		t.Error("oversized content: want error")
	}
	if _, err := (ServerFrame{SenderContext: ContextUser, TargetContext: ContextUser, Sender: strings.Repeat("s", 256), Target: "t", Content: "x"}).Encode(); err == nil {
		t.Error("oversized sender: want error")
	}
}

package client

import (
	"bytes"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/ehrlich-b/flock/internal/config"
	"github.com/ehrlich-b/flock/internal/netio"
	"github.com/ehrlich-b/flock/internal/proto"
	"github.com/ehrlich-b/flock/internal/style"
	"github.com/ehrlich-b/flock/internal/termio"
)

func newTestClient(t *testing.T) (*Client, *bytes.Buffer, chan proto.ClientFrame) {
	t.Helper()
	out := &bytes.Buffer{}
	local, remote := net.Pipe()
	t.Cleanup(func() { local.Close(); remote.Close() })

	frames := make(chan proto.ClientFrame, 16)
	go func() {
		stream := netio.NewStream(remote)
		for {
			f, err := proto.ReadClientFrame(stream)
			if err != nil {
				close(frames)
				return
			}
			frames <- f
		}
	}()

	term := termio.New(nil, out, style.Colored)
	c := New(config.DefaultClient(), local, term)
	return c, out, frames
}

func sentFrame(t *testing.T, frames chan proto.ClientFrame) proto.ClientFrame {
	t.Helper()
	select {
	case f := <-frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no frame sent")
		return proto.ClientFrame{}
	}
}

func TestReqUsernameSentinel(t *testing.T) {
	c, _, _ := newTestClient(t)
	c.dispatchIncoming(proto.ServerFrame{
		SenderContext: proto.ContextSystem,
		TargetContext: proto.ContextUser,
		Sender:        "system",
		Target:        "user-0001",
		Content:       "/req username",
	})
	if !c.picking {
		t.Error("not in username-entry mode")
	}
	if c.target != "system" || c.targetContext != proto.ContextUser {
		t.Errorf("target = (%s, %s)", c.target, c.targetContext)
	}
}

func TestSetUsernameSentinel(t *testing.T) {
	c, _, _ := newTestClient(t)
	c.picking = true
	c.dispatchIncoming(proto.ServerFrame{
		SenderContext: proto.ContextSystem,
		TargetContext: proto.ContextUser,
		Sender:        "system",
		Target:        "user-0001",
		Content:       "/set username alice",
	})
	if c.picking {
		t.Error("still in username-entry mode")
	}
	if c.name != "alice" {
		t.Errorf("name = %q, want alice", c.name)
	}
	if c.target != "global" || c.targetContext != proto.ContextGroup {
		t.Errorf("target = (%s, %s), want (global, GROUP)", c.target, c.targetContext)
	}
}

func TestSwitchSentinel(t *testing.T) {
	c, _, _ := newTestClient(t)
	c.dispatchIncoming(proto.ServerFrame{
		SenderContext: proto.ContextSystem,
		TargetContext: proto.ContextUser,
		Sender:        "system",
		Target:        "alice",
		Content:       "/switch room1",
	})
	if c.target != "room1" || c.targetContext != proto.ContextGroup {
		t.Errorf("target = (%s, %s), want (room1, GROUP)", c.target, c.targetContext)
	}
}

func TestGroupMessageRendering(t *testing.T) {
	c, out, _ := newTestClient(t)
	c.name = "alice"
	c.dispatchIncoming(proto.ServerFrame{
		SenderContext: proto.ContextUser,
		TargetContext: proto.ContextGroup,
		Sender:        "bob",
		Target:        "global",
		Content:       "hello",
	})
	got := out.String()
	if !strings.Contains(got, "[global]") || !strings.Contains(got, "bob: hello") {
		t.Errorf("rendered %q", got)
	}
}

func TestWhisperRendering(t *testing.T) {
	c, out, _ := newTestClient(t)
	c.name = "alice"
	c.dispatchIncoming(proto.ServerFrame{
		SenderContext: proto.ContextUser,
		TargetContext: proto.ContextUser,
		Sender:        "bob",
		Target:        "alice",
		Content:       "psst",
	})
	if got := out.String(); !strings.Contains(got, "bob: psst") {
		t.Errorf("rendered %q", got)
	}
}

func TestWhisperEchoRendering(t *testing.T) {
	c, out, _ := newTestClient(t)
	c.dispatchIncoming(proto.ServerFrame{
		SenderContext: proto.ContextSystem,
		TargetContext: proto.ContextUser,
		Sender:        "system",
		Target:        "alice",
		Content:       "You're whispering to bob: hi",
	})
	if got := out.String(); !strings.Contains(got, "You're whispering to bob: hi") {
		t.Errorf("rendered %q", got)
	}
}

func TestOutgoingDefaultTarget(t *testing.T) {
	c, _, frames := newTestClient(t)
	if err := c.dispatchOutgoing("hello"); err != nil {
		t.Fatal(err)
	}
	f := sentFrame(t, frames)
	want := proto.ClientFrame{TargetContext: proto.ContextGroup, Target: "global", Content: "hello"}
	if f != want {
		t.Errorf("frame = %+v, want %+v", f, want)
	}
}

func TestOutgoingDuringNaming(t *testing.T) {
	c, _, frames := newTestClient(t)
	c.picking = true
	if err := c.dispatchOutgoing("alice"); err != nil {
		t.Fatal(err)
	}
	f := sentFrame(t, frames)
	if f.TargetContext != proto.ContextUser || f.Target != "system" || f.Content != "alice" {
		t.Errorf("frame = %+v", f)
	}
}

func TestWhisperCommand(t *testing.T) {
	c, _, frames := newTestClient(t)
	if err := c.dispatchOutgoing("/w bob hey you"); err != nil {
		t.Fatal(err)
	}
	f := sentFrame(t, frames)
	want := proto.ClientFrame{TargetContext: proto.ContextUser, Target: "bob", Content: "hey you"}
	if f != want {
		t.Errorf("frame = %+v, want %+v", f, want)
	}
}

func TestWhisperCommandNeedsMessage(t *testing.T) {
	c, out, _ := newTestClient(t)
	if err := c.dispatchOutgoing("/w bob"); err != nil {
		t.Fatal(err)
	}
	if got := out.String(); !strings.Contains(got, "must provide message") {
		t.Errorf("output = %q", got)
	}
}

func TestSwitchCommand(t *testing.T) {
	c, _, _ := newTestClient(t)
	if err := c.dispatchOutgoing("/switch room1"); err != nil {
		t.Fatal(err)
	}
	if c.target != "room1" || c.targetContext != proto.ContextGroup {
		t.Errorf("target = (%s, %s)", c.target, c.targetContext)
	}
}

func TestColorCommand(t *testing.T) {
	c, out, _ := newTestClient(t)
	if err := c.dispatchOutgoing("/color magenta"); err != nil {
		t.Fatal(err)
	}
	if c.targetColors["global"] != "magenta" {
		t.Errorf("color = %q, want magenta", c.targetColors["global"])
	}

	if err := c.dispatchOutgoing("/color pink"); err != nil {
		t.Fatal(err)
	}
	if got := out.String(); !strings.Contains(got, "allowed colors are") {
		t.Errorf("output = %q", got)
	}
	// cyan is reserved for system messages
	if err := c.dispatchOutgoing("/color cyan"); err != nil {
		t.Fatal(err)
	}
	if c.targetColors["global"] == "cyan" {
		t.Error("system color was claimable")
	}
}

func TestQuitCommands(t *testing.T) {
	c, _, _ := newTestClient(t)
	for _, cmd := range []string{"/exit", "/quit"} {
		if err := c.dispatchOutgoing(cmd); !errors.Is(err, errQuit) {
			t.Errorf("%s: err = %v, want errQuit", cmd, err)
		}
	}
}

func TestInterruptCounting(t *testing.T) {
	c, _, _ := newTestClient(t)
	if c.handleInterrupt() {
		t.Error("first Ctrl-C exited")
	}
	if c.handleInterrupt() {
		t.Error("second Ctrl-C exited")
	}
	if !c.handleInterrupt() {
		t.Error("third Ctrl-C did not exit")
	}

	// a submission resets the counter
	c2, _, frames := newTestClient(t)
	c2.handleInterrupt()
	c2.handleInterrupt()
	c2.mu.Lock()
	c2.ctrlC = 0 // what writer does after a successful line
	c2.mu.Unlock()
	if c2.handleInterrupt() {
		t.Error("counter did not reset after a submission")
	}
	_ = frames
}

func TestHistoryWindow(t *testing.T) {
	c, _, _ := newTestClient(t)
	for i := 0; i < maxHistory+10; i++ {
		c.addHistory("line")
	}
	if len(c.history) != maxHistory {
		t.Errorf("history = %d entries, want %d", len(c.history), maxHistory)
	}
}

// Package termio multiplexes a live-editable input line with asynchronously
// arriving output on one terminal, using only carriage returns, spaces and
// cursor-left repositioning. No screen framework is involved.
package termio

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ehrlich-b/flock/internal/rwlock"
)

// ErrInterrupted reports a Ctrl-C during Input. The partial line is
// available via InterruptedBuffer.
var ErrInterrupted = errors.New("input interrupted")

// ErrRead wraps any other key-source failure surfaced by Input.
var ErrRead = errors.New("input read error")

// Styler renders a prompt label in a named color; injected so the engine
// carries no rendering dependency. Nil means plain text.
type Styler func(text, color string) string

// IO owns stdout composition. Three locks guard it: writeMu for stdout and
// the rendered line, bufLock for the editable buffer and cursor, and readMu
// serializing Input callers ("a read is in progress" is the reading flag).
type IO struct {
	keys    KeySource
	out     io.Writer
	style   Styler
	keymaps []map[string]command

	readMu  sync.Mutex
	reading atomic.Bool

	writeMu   sync.Mutex
	lastWidth int // visible width of the most recent composed line

	bufLock    *rwlock.Lock
	buf        []rune
	cursorAt   int
	label      string
	labelColor string

	history     []string
	historyTail int

	interrupted    bool
	interruptedBuf string
	readErr        error
}

// New builds an engine reading keys from keys and writing to out. style may
// be nil.
func New(keys KeySource, out io.Writer, style Styler) *IO {
	return &IO{
		keys:       keys,
		out:        out,
		style:      style,
		keymaps:    defaultKeymaps(),
		bufLock:    rwlock.New(),
		labelColor: "white",
	}
}

// Write prints txt on its own line. While a read is in progress the input
// line is erased first and recomposed after; otherwise the text goes out
// directly. Flushes before returning.
func (t *IO) Write(txt string) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if t.reading.Load() {
		t.clearLine()
		// CR included: the terminal may be in raw mode with output
		// post-processing off
		fmt.Fprint(t.out, txt+"\r\n")
		t.writeInput()
		return
	}
	fmt.Fprint(t.out, txt+"\r\n")
	t.lastWidth = 0
	t.flush()
}

// UpdateInputLabel replaces the prompt label, re-rendering if a read is in
// progress.
func (t *IO) UpdateInputLabel(label string) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.label = label
	if t.reading.Load() {
		t.writeInput()
	}
}

// UpdateInputLabelColor replaces the prompt color, re-rendering if a read is
// in progress.
func (t *IO) UpdateInputLabelColor(color string) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.labelColor = color
	if t.reading.Load() {
		t.writeInput()
	}
}

// UpdateInputBuffer replaces the editable buffer (cursor moves to the end),
// re-rendering if a read is in progress.
func (t *IO) UpdateInputBuffer(txt string) {
	unlock := t.bufLock.ForWrite()
	t.buf = []rune(txt)
	t.cursorAt = len(t.buf)
	unlock()
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if t.reading.Load() {
		t.writeInput()
	}
}

// InterruptedBuffer returns the buffer snapshot taken when the last read was
// interrupted.
func (t *IO) InterruptedBuffer() string {
	defer t.bufLock.ForRead()()
	return t.interruptedBuf
}

// Input reads one line. label and color replace the prompt when non-empty;
// history seeds the up/down cycle. Returns the submitted buffer, or
// ErrInterrupted on Ctrl-C, or an error wrapping ErrRead on any other key
// source failure. Concurrent callers are serialized.
func (t *IO) Input(label, color string, history []string) (string, error) {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	t.history = history
	t.historyTail = len(history)
	t.interrupted = false
	t.interruptedBuf = ""
	t.readErr = nil
	if label != "" {
		t.label = label
	}
	if color != "" {
		t.labelColor = color
	}

	t.reading.Store(true)
	t.readLoop()
	t.reading.Store(false)

	unlock := t.bufLock.ForWrite()
	v := string(t.buf)
	t.buf = nil
	t.cursorAt = 0
	unlock()

	if t.interrupted {
		return "", ErrInterrupted
	}
	if t.readErr != nil {
		return "", fmt.Errorf("%w: %v", ErrRead, t.readErr)
	}
	return v, nil
}

// readLoop consumes keystrokes until submit, interrupt or error.
func (t *IO) readLoop() {
	t.writeMu.Lock()
	t.writeInput()
	t.writeMu.Unlock()

	for {
		key, err := t.keys.ReadKey()
		if err != nil {
			t.readErr = err
			return
		}

		if key == "" {
			continue
		}
		if cmd, ok := t.lookupCommand(key); ok {
			t.handleCommand(cmd)
			continue
		}
		if key[0] == 0x00 || key[0] == 0x1b {
			// unrecognized escape: report it as normal output
			t.Write(fmt.Sprintf("unhandled control: %q", key))
			continue
		}

		r := []rune(key)[0]
		switch {
		case r == '\r' || r == '\n':
			t.writeMu.Lock()
			t.clearLine()
			t.flush()
			t.writeMu.Unlock()
			return
		case r == 0x03: // Ctrl-C
			unlock := t.bufLock.ForRead()
			t.interruptedBuf = string(t.buf)
			t.interrupted = true
			unlock()
			t.writeMu.Lock()
			t.clearLine()
			t.flush()
			t.writeMu.Unlock()
			return
		case r == 0x08 || r == 0x7f: // backspace
			unlock := t.bufLock.ForWrite()
			if t.cursorAt > 0 {
				t.buf = append(t.buf[:t.cursorAt-1], t.buf[t.cursorAt:]...)
				t.cursorAt--
			}
			unlock()
			t.render()
		case r <= 31:
			// other control characters are discarded
		default:
			unlock := t.bufLock.ForWrite()
			ins := []rune(key)
			t.buf = append(t.buf[:t.cursorAt], append(append([]rune(nil), ins...), t.buf[t.cursorAt:]...)...)
			t.cursorAt += len(ins)
			unlock()
			t.render()
		}
	}
}

func (t *IO) lookupCommand(key string) (command, bool) {
	for _, m := range t.keymaps {
		if cmd, ok := m[key]; ok {
			return cmd, true
		}
	}
	return cmdNone, false
}

func (t *IO) handleCommand(cmd command) {
	switch cmd {
	case cmdUp:
		if t.historyTail > 0 {
			t.historyTail--
			t.UpdateInputBuffer(t.history[t.historyTail])
		}
	case cmdDown:
		if len(t.history)-1 > t.historyTail {
			t.historyTail++
			t.UpdateInputBuffer(t.history[t.historyTail])
		}
	case cmdLeft:
		unlock := t.bufLock.ForWrite()
		if t.cursorAt > 0 {
			t.cursorAt--
		}
		unlock()
		t.render()
	case cmdRight:
		unlock := t.bufLock.ForWrite()
		if t.cursorAt < len(t.buf) {
			t.cursorAt++
		}
		unlock()
		t.render()
	case cmdDeleteForward:
		unlock := t.bufLock.ForWrite()
		if t.cursorAt < len(t.buf) {
			t.buf = append(t.buf[:t.cursorAt], t.buf[t.cursorAt+1:]...)
		}
		unlock()
		t.render()
	}
}

// render recomposes the prompt line under the stdout lock.
func (t *IO) render() {
	t.writeMu.Lock()
	t.writeInput()
	t.writeMu.Unlock()
}

// clearLine erases the previous composed line: carriage return, one space
// per visible cell, carriage return. Caller holds writeMu.
func (t *IO) clearLine() {
	fmt.Fprint(t.out, "\r"+strings.Repeat(" ", t.lastWidth)+"\r")
	t.lastWidth = 0
}

// writeInput composes label + buffer, repositions the cursor and records the
// line's visible width. Caller holds writeMu.
func (t *IO) writeInput() {
	t.clearLine()
	unlock := t.bufLock.ForRead()
	label := t.label
	if t.style != nil {
		label = t.style(t.label, t.labelColor)
	}
	fmt.Fprint(t.out, label+string(t.buf))
	if back := len(t.buf) - t.cursorAt; back > 0 {
		fmt.Fprintf(t.out, "\x1b[%dD", back)
	}
	t.lastWidth = len([]rune(t.label)) + len(t.buf)
	unlock()
	t.flush()
}

// flush pushes buffered output to the device if the writer supports it.
// Caller holds writeMu.
func (t *IO) flush() {
	if f, ok := t.out.(interface{ Flush() error }); ok {
		f.Flush()
	}
}

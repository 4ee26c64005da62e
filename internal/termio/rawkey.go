package termio

import (
	"bufio"
	"fmt"
	"os"

	"golang.org/x/term"
)

// TerminalKeys reads raw keystrokes from a terminal with the line discipline
// disabled. Escape sequences are returned whole so the engine's dispatch
// tables can match them.
type TerminalKeys struct {
	r       *bufio.Reader
	restore func() error
}

// OpenTerminalKeys puts f into raw mode. Close restores the previous mode.
func OpenTerminalKeys(f *os.File) (*TerminalKeys, error) {
	fd := int(f.Fd())
	prev, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("enter raw mode: %w", err)
	}
	return &TerminalKeys{
		r:       bufio.NewReader(f),
		restore: func() error { return term.Restore(fd, prev) },
	}, nil
}

// ReadKey returns the next keystroke: one rune, one control byte, a whole
// ESC sequence, or a NUL-prefixed pair.
func (k *TerminalKeys) ReadKey() (string, error) {
	b, err := k.r.ReadByte()
	if err != nil {
		return "", err
	}
	switch {
	case b == 0x1b:
		seq := []byte{b}
		nb, err := k.r.ReadByte()
		if err != nil {
			return string(seq), err
		}
		seq = append(seq, nb)
		if nb == '[' || nb == 'O' {
			// CSI/SS3: read through the final byte (0x40..0x7e)
			for {
				cb, err := k.r.ReadByte()
				if err != nil {
					return string(seq), err
				}
				seq = append(seq, cb)
				if cb >= 0x40 && cb <= 0x7e {
					break
				}
			}
		}
		return string(seq), nil
	case b == 0x00:
		nb, err := k.r.ReadByte()
		if err != nil {
			return "\x00", err
		}
		return string([]byte{0x00, nb}), nil
	case b < 0x80:
		return string(rune(b)), nil
	default:
		// multibyte UTF-8: put the byte back and decode a rune
		if err := k.r.UnreadByte(); err != nil {
			return "", err
		}
		r, _, err := k.r.ReadRune()
		if err != nil {
			return "", err
		}
		return string(r), nil
	}
}

// Close leaves raw mode.
func (k *TerminalKeys) Close() error {
	return k.restore()
}

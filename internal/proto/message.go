// Package proto implements the wire protocol: two length-prefixed binary
// frame layouts sharing a 2-byte signature, little-endian throughout.
//
// Client → Server:
//
//	SIG(2) TARGET_CTX(1) TLEN(1) TARGET CLEN(2) CONTENT
//
// Server → Client:
//
//	SIG(2) SENDER_CTX(1) TARGET_CTX(1) SLEN(1) SENDER TLEN(1) TARGET CLEN(2) CONTENT
package proto

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// Context tags the kind of entity a frame field refers to.
type Context byte

const (
	ContextUser   Context = 1
	ContextGroup  Context = 2
	ContextSystem Context = 3
)

func (c Context) String() string {
	switch c {
	case ContextUser:
		return "USER"
	case ContextGroup:
		return "GROUP"
	case ContextSystem:
		return "SYSTEM"
	}
	return fmt.Sprintf("UNKNOWN(%d)", byte(c))
}

// Signature is the 2-byte frame preamble, 65136 little-endian.
var Signature = [2]byte{0x70, 0xFE}

const (
	// MaxNameLen bounds sender and target names (1-byte length prefix).
	MaxNameLen = 255
	// MaxContentLen bounds frame content (2-byte length prefix).
	MaxContentLen = 65535
)

// ByteStream supplies blocking exactly-n-byte reads. *netio.Stream satisfies it.
type ByteStream interface {
	Next(n int) ([]byte, error)
}

// ClientFrame is a frame sent from a client to the server.
type ClientFrame struct {
	TargetContext Context
	Target        string
	Content       string
}

// ServerFrame is a frame sent from the server to a client.
type ServerFrame struct {
	SenderContext Context
	TargetContext Context
	Sender        string
	Target        string
	Content       string
}

// Encode serializes the frame. Names over MaxNameLen bytes or content over
// MaxContentLen bytes are rejected.
func (f ClientFrame) Encode() ([]byte, error) {
	target := []byte(f.Target)
	content := []byte(f.Content)
	if len(target) > MaxNameLen {
		return nil, fmt.Errorf("target %q exceeds %d bytes", f.Target, MaxNameLen)
	}
	if len(content) > MaxContentLen {
		return nil, fmt.Errorf("content exceeds %d bytes", MaxContentLen)
	}
	buf := make([]byte, 0, 2+1+1+len(target)+2+len(content))
	buf = append(buf, Signature[:]...)
	buf = append(buf, byte(f.TargetContext))
	buf = append(buf, byte(len(target)))
	buf = append(buf, target...)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(content)))
	buf = append(buf, content...)
	return buf, nil
}

// Encode serializes the frame, with the same bounds as ClientFrame.Encode.
func (f ServerFrame) Encode() ([]byte, error) {
	sender := []byte(f.Sender)
	target := []byte(f.Target)
	content := []byte(f.Content)
	if len(sender) > MaxNameLen {
		return nil, fmt.Errorf("sender %q exceeds %d bytes", f.Sender, MaxNameLen)
	}
	if len(target) > MaxNameLen {
		return nil, fmt.Errorf("target %q exceeds %d bytes", f.Target, MaxNameLen)
	}
	if len(content) > MaxContentLen {
		return nil, fmt.Errorf("content exceeds %d bytes", MaxContentLen)
	}
	buf := make([]byte, 0, 2+1+1+1+len(sender)+1+len(target)+2+len(content))
	buf = append(buf, Signature[:]...)
	buf = append(buf, byte(f.SenderContext))
	buf = append(buf, byte(f.TargetContext))
	buf = append(buf, byte(len(sender)))
	buf = append(buf, sender...)
	buf = append(buf, byte(len(target)))
	buf = append(buf, target...)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(content)))
	buf = append(buf, content...)
	return buf, nil
}

// ReadClientFrame decodes one client frame from the stream. A malformed frame
// fails with an error wrapping ErrProtocol; the caller must terminate the
// session.
func ReadClientFrame(r ByteStream) (ClientFrame, error) {
	var f ClientFrame
	if err := readSignature(r); err != nil {
		return f, err
	}
	ctx, err := readByte(r)
	if err != nil {
		return f, err
	}
	f.TargetContext = Context(ctx)
	if f.TargetContext != ContextUser && f.TargetContext != ContextGroup {
		return f, fmt.Errorf("%w: target context must be USER or GROUP, got %d", ErrProtocol, ctx)
	}
	if f.Target, err = readString(r, 1); err != nil {
		return f, err
	}
	if f.Content, err = readString(r, 2); err != nil {
		return f, err
	}
	return f, nil
}

// ReadServerFrame decodes one server frame from the stream.
func ReadServerFrame(r ByteStream) (ServerFrame, error) {
	var f ServerFrame
	if err := readSignature(r); err != nil {
		return f, err
	}
	sctx, err := readByte(r)
	if err != nil {
		return f, err
	}
	tctx, err := readByte(r)
	if err != nil {
		return f, err
	}
	f.SenderContext = Context(sctx)
	f.TargetContext = Context(tctx)
	if f.SenderContext != ContextUser && f.SenderContext != ContextSystem {
		return f, fmt.Errorf("%w: sender context must be USER or SYSTEM, got %d", ErrProtocol, sctx)
	}
	if f.TargetContext != ContextUser && f.TargetContext != ContextGroup {
		return f, fmt.Errorf("%w: target context must be USER or GROUP, got %d", ErrProtocol, tctx)
	}
	if f.Sender, err = readString(r, 1); err != nil {
		return f, err
	}
	if f.Target, err = readString(r, 1); err != nil {
		return f, err
	}
	if f.Content, err = readString(r, 2); err != nil {
		return f, err
	}
	return f, nil
}

func readSignature(r ByteStream) error {
	sig, err := r.Next(2)
	if err != nil {
		return err
	}
	if sig[0] != Signature[0] || sig[1] != Signature[1] {
		return fmt.Errorf("%w: invalid signature %02x%02x", ErrProtocol, sig[0], sig[1])
	}
	return nil
}

func readByte(r ByteStream) (byte, error) {
	b, err := r.Next(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// readString reads a length prefix of prefixLen bytes (1 or 2, little-endian)
// followed by that many bytes of UTF-8.
func readString(r ByteStream, prefixLen int) (string, error) {
	p, err := r.Next(prefixLen)
	if err != nil {
		return "", err
	}
	var n int
	if prefixLen == 1 {
		n = int(p[0])
	} else {
		n = int(binary.LittleEndian.Uint16(p))
	}
	raw, err := r.Next(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%w: field is not valid UTF-8", ErrProtocol)
	}
	return string(raw), nil
}

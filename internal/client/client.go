// Package client implements the terminal chat client: the dispatcher that
// translates server frames and local /… commands into display updates and
// outbound frames.
package client

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/ehrlich-b/flock/internal/config"
	"github.com/ehrlich-b/flock/internal/logger"
	"github.com/ehrlich-b/flock/internal/netio"
	"github.com/ehrlich-b/flock/internal/proto"
	"github.com/ehrlich-b/flock/internal/style"
	"github.com/ehrlich-b/flock/internal/termio"
)

const (
	systemColor  = "cyan"
	whisperColor = "yellow"
	maxHistory   = 1000
	ctrlCToExit  = 3
)

var errQuit = errors.New("quit")

// Client holds the dispatcher state: the chat target, per-target colors and
// the line history.
type Client struct {
	io     *termio.IO
	conn   net.Conn
	stream *netio.Stream

	mu            sync.Mutex // guards the fields below against the reader goroutine
	name          string
	picking       bool // username-entry mode
	target        string
	targetContext proto.Context
	targetColors  map[string]string
	allowedColors []string
	history       []string
	ctrlC         int

	sendMu sync.Mutex // serializes outbound socket writes
}

// New wires a dispatcher over an established connection and terminal engine.
// Preset per-target colors come from cfg.
func New(cfg config.Client, conn net.Conn, term *termio.IO) *Client {
	colors := map[string]string{"system": systemColor}
	for target, color := range cfg.Colors {
		if style.Known(color) {
			colors[target] = color
		}
	}
	var allowed []string
	for _, name := range style.Names {
		if name != systemColor {
			allowed = append(allowed, name)
		}
	}
	return &Client{
		io:            term,
		conn:          conn,
		stream:        netio.NewStream(conn),
		target:        "global",
		targetContext: proto.ContextGroup,
		targetColors:  colors,
		allowedColors: allowed,
	}
}

// Run connects to the server and drives the reader and writer loops until
// the user exits or the connection drops.
func Run(cfg config.Client, keys termio.KeySource, out io.Writer) error {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("server not up at %s: %w", addr, err)
	}
	defer conn.Close()

	term := termio.New(keys, out, style.Colored)
	c := New(cfg, conn, term)
	term.Write("connected to " + addr)

	readerDone := make(chan error, 1)
	go func() { readerDone <- c.reader() }()

	writerDone := make(chan error, 1)
	go func() { writerDone <- c.writer() }()

	select {
	case err := <-readerDone:
		c.io.Write(style.Colored("connection lost: "+err.Error(), "red"))
		return err
	case err := <-writerDone:
		if errors.Is(err, errQuit) {
			return nil
		}
		return err
	}
}

// reader decodes server frames and applies them to the display.
func (c *Client) reader() error {
	for {
		frame, err := proto.ReadServerFrame(c.stream)
		if err != nil {
			return err
		}
		c.dispatchIncoming(frame)
	}
}

func (c *Client) dispatchIncoming(f proto.ServerFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	logger.Debug("received frame",
		"sender", f.Sender, "sender_ctx", f.SenderContext.String(),
		"target", f.Target, "target_ctx", f.TargetContext.String())

	if f.SenderContext == proto.ContextSystem {
		switch f.TargetContext {
		case proto.ContextUser:
			switch {
			case f.Content == "/req username":
				c.picking = true
				c.target = "system"
				c.targetContext = proto.ContextUser
				c.io.UpdateInputLabel("username: ")
				c.io.UpdateInputLabelColor(systemColor)
			case strings.HasPrefix(f.Content, "/set username "):
				c.name = strings.TrimPrefix(f.Content, "/set username ")
				c.picking = false
				c.switchTarget("global")
			case strings.HasPrefix(f.Content, "/switch "):
				c.switchTarget(strings.TrimSpace(strings.TrimPrefix(f.Content, "/switch ")))
			case strings.HasPrefix(f.Content, "You're whispering to "):
				c.writeFormatted(f.Content, "", "", false, true)
			default:
				c.writeFormatted(f.Content, "", f.Sender, true, false)
			}
		case proto.ContextGroup:
			c.writeFormatted(f.Content, f.Target, f.Sender, true, false)
		default:
			c.writeError(fmt.Sprintf("error: server sent message with unhandled context: %s", f.TargetContext))
		}
		return
	}

	switch {
	case f.TargetContext == proto.ContextUser && f.Target == c.name:
		c.writeFormatted(f.Content, "", f.Sender, false, true)
	case f.TargetContext == proto.ContextGroup:
		c.writeFormatted(f.Content, f.Target, f.Sender, false, false)
	default:
		c.writeError(fmt.Sprintf("received unhandled message from %s to %s", f.Sender, f.Target))
	}
}

// switchTarget adopts a group as the chat target. Caller holds c.mu.
func (c *Client) switchTarget(target string) {
	c.target = target
	c.targetContext = proto.ContextGroup
	c.io.UpdateInputLabel(target + ": ")
	c.io.UpdateInputLabelColor(c.colorFor(target))
}

func (c *Client) colorFor(target string) string {
	if color, ok := c.targetColors[target]; ok {
		return color
	}
	return "white"
}

// writeFormatted renders one message line: optional colored [group] tag,
// optional "sender: " prefix, then the text, tinted for system and whisper
// messages. Caller holds c.mu.
func (c *Client) writeFormatted(txt, group, sender string, isSystem, isWhisper bool) {
	var line string
	if group != "" {
		tag := "[" + group + "] "
		if isSystem || isWhisper {
			line += tag
		} else {
			line += style.Colored(tag, c.colorFor(group))
		}
	}
	if sender != "" {
		line += sender + ": "
	}
	line += txt
	if isWhisper {
		line = style.Colored(line, whisperColor)
	}
	if isSystem {
		line = style.Colored(line, systemColor)
	}
	c.io.Write(line)
}

func (c *Client) writeError(txt string) {
	c.io.Write(style.Colored(txt, "red"))
}

// writer runs the input loop: reads lines from the terminal engine, handles
// client-side commands, sends everything else to the server.
func (c *Client) writer() error {
	for {
		c.mu.Lock()
		hist := append([]string(nil), c.history...)
		c.mu.Unlock()

		line, err := c.io.Input("", "", hist)
		switch {
		case errors.Is(err, termio.ErrInterrupted):
			if stop := c.handleInterrupt(); stop {
				return errQuit
			}
			continue
		case err != nil:
			c.writeError("input error: " + err.Error())
			continue
		}

		msg := strings.TrimSpace(line)
		if msg == "" {
			continue
		}
		c.mu.Lock()
		c.ctrlC = 0
		c.addHistory(msg)
		err = c.dispatchOutgoing(msg)
		c.mu.Unlock()
		if err != nil {
			return err
		}
	}
}

// handleInterrupt counts consecutive Ctrl-C presses: the third exits. A
// press that cleared a non-empty line just continues.
func (c *Client) handleInterrupt() (stop bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctrlC++
	if c.ctrlC >= ctrlCToExit {
		c.io.Write("bye")
		return true
	}
	if c.io.InterruptedBuffer() == "" {
		c.io.Write(fmt.Sprintf("press Ctrl+C %d more time(s) to exit", ctrlCToExit-c.ctrlC))
	}
	return false
}

func (c *Client) addHistory(msg string) {
	c.history = append(c.history, msg)
	if len(c.history) > maxHistory {
		c.history = c.history[len(c.history)-maxHistory:]
	}
}

// dispatchOutgoing routes one submitted line. Caller holds c.mu.
func (c *Client) dispatchOutgoing(msg string) error {
	if c.picking {
		return c.send(proto.ClientFrame{
			TargetContext: proto.ContextUser,
			Target:        "system",
			Content:       msg,
		})
	}

	switch {
	case strings.HasPrefix(msg, "/switch ") && strings.TrimSpace(msg[8:]) != "":
		c.switchTarget(strings.TrimSpace(msg[8:]))
		return nil
	case strings.HasPrefix(msg, "/color ") && strings.TrimSpace(msg[7:]) != "":
		color := strings.TrimSpace(msg[7:])
		if !contains(c.allowedColors, color) {
			c.writeError("client: allowed colors are " + strings.Join(c.allowedColors, ","))
			return nil
		}
		c.targetColors[c.target] = color
		c.io.UpdateInputLabelColor(color)
		return nil
	case strings.HasPrefix(msg, "/w ") && strings.TrimSpace(msg[3:]) != "":
		return c.whisper(strings.TrimSpace(msg[3:]))
	case msg == "/help":
		c.io.Write(clientHelp)
		return c.send(proto.ClientFrame{
			TargetContext: c.targetContext,
			Target:        c.target,
			Content:       msg,
		})
	case msg == "/exit" || msg == "/quit":
		return errQuit
	}

	return c.send(proto.ClientFrame{
		TargetContext: c.targetContext,
		Target:        c.target,
		Content:       msg,
	})
}

// whisper parses "<user> <message>" and sends a USER→USER frame.
func (c *Client) whisper(rest string) error {
	user, body, ok := strings.Cut(rest, " ")
	body = strings.TrimSpace(body)
	if !ok || body == "" {
		c.writeError("must provide message")
		return nil
	}
	return c.send(proto.ClientFrame{
		TargetContext: proto.ContextUser,
		Target:        user,
		Content:       body,
	})
}

// send encodes and writes one frame under the send mutex.
func (c *Client) send(f proto.ClientFrame) error {
	data, err := f.Encode()
	if err != nil {
		c.writeError("message not sent: " + err.Error())
		return nil
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

const clientHelp = `client commands:
  /switch <group>   change the chat target
  /color <color>    color the current target's messages
  /w <user> <msg>   whisper a user
  /exit, /quit      leave`

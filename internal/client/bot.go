package client

import (
	"fmt"
	"io"
	"math/rand"
	"net"
	"strconv"
	"time"

	"github.com/ehrlich-b/flock/internal/config"
	"github.com/ehrlich-b/flock/internal/proto"
)

var botNames = []string{
	"fabio", "lena", "marco", "prisha", "tariq", "noor",
	"ivan", "sofia", "kwame", "mei", "diego", "astrid",
}

var botLines = []string{
	"Hi there, I'm Fabio and you?",
	"Nice to meet you",
	"How are you?",
	"Not too bad, thanks",
	"What do you do?",
	"That's awesome",
	"I think you're a nice person",
	"Why do you think that?",
	"Can you explain?",
	"Anyway I've gotta go now",
	"It was a pleasure chat with you",
	"Bye",
	":)",
	"gone?",
	"great",
}

// Bot connects, claims a canned username and chats into global at
// cfg.Timeout second pacing until the connection drops.
func Bot(cfg config.Client) error {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("server not up at %s: %w", addr, err)
	}
	defer conn.Close()

	// drain inbound frames so the socket buffer never fills
	go io.Copy(io.Discard, conn)

	name := fmt.Sprintf("%s%d", botNames[rand.Intn(len(botNames))], rand.Intn(1000))
	if err := botSend(conn, name); err != nil {
		return err
	}

	pacing := time.Duration(cfg.Timeout * float64(time.Second))
	for {
		time.Sleep(pacing)
		if err := botSend(conn, botLines[rand.Intn(len(botLines))]); err != nil {
			return err
		}
	}
}

func botSend(conn net.Conn, content string) error {
	data, err := proto.ClientFrame{
		TargetContext: proto.ContextGroup,
		Target:        "global",
		Content:       content,
	}.Encode()
	if err != nil {
		return err
	}
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

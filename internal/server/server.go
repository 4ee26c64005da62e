// Package server implements the chat service: the accept loop, the
// per-connection session state machine, and the broadcast fanout.
package server

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/ehrlich-b/flock/internal/logger"
	"github.com/ehrlich-b/flock/internal/proto"
	"github.com/ehrlich-b/flock/internal/state"
)

// Config holds the server's runtime settings. Host and Port are used as
// given (port 0 binds an ephemeral port); config.DefaultServer carries the
// production defaults.
type Config struct {
	Host        string
	Port        int
	MaxUsers    int // concurrent named users; overflow gets SERVER_FULL
	SendWorkers int // fanout pool size
}

func (c Config) withDefaults() Config {
	if c.MaxUsers == 0 {
		c.MaxUsers = 30
	}
	if c.SendWorkers == 0 {
		c.SendWorkers = 200
	}
	return c
}

// Server owns the registry, the fanout pool and the listener.
type Server struct {
	cfg  Config
	reg  *state.Registry
	pool *Pool

	mu    sync.Mutex
	addr  net.Addr
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

func New(cfg Config) *Server {
	s := &Server{
		cfg:   cfg.withDefaults(),
		conns: make(map[net.Conn]struct{}),
	}
	s.pool = NewPool(s.cfg.SendWorkers)
	s.reg = state.NewRegistry(s)
	return s
}

// Registry exposes the graph for tests.
func (s *Server) Registry() *state.Registry { return s.reg }

// Addr returns the bound listener address, valid once ListenAndServe is
// accepting.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// ListenAndServe accepts connections until ctx is cancelled. Each accepted
// socket is admitted under the write lock: past the user cap it receives the
// literal bytes SERVER_FULL and is closed, otherwise a session goroutine
// starts.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()
	logger.Info("chat server listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.shutdown()
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		s.reg.Lock.WLock()
		if len(s.reg.Users) >= s.cfg.MaxUsers {
			s.reg.Lock.WUnlock()
			conn.Write([]byte("SERVER_FULL"))
			conn.Close()
			logger.Warn("server full, connection dropped", "remote", conn.RemoteAddr().String())
			continue
		}
		sess := newSession(s, conn)
		s.trackConn(conn)
		s.wg.Add(1)
		go sess.run()
		s.reg.Lock.WUnlock()
	}
}

// shutdown closes every live connection, which unwinds the sessions, then
// drains the fanout pool.
func (s *Server) shutdown() {
	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	s.pool.Close()
	logger.Info("chat server stopped")
}

func (s *Server) trackConn(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) forgetConn(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// GroupNotice implements state.Notifier: a SYSTEM→GROUP frame fanned out to
// every member. The registry lock is held by the caller.
func (s *Server) GroupNotice(g *state.Group, content string) {
	data, err := s.encodeServer(proto.ContextSystem, proto.ContextGroup, s.reg.System.Name, g.Name, content)
	if err != nil {
		return
	}
	s.Fanout(g, data)
}

// UserNotice implements state.Notifier: a SYSTEM→USER frame shipped on the
// fanout pool.
func (s *Server) UserNotice(u *state.User, content string) {
	data, err := s.encodeServer(proto.ContextSystem, proto.ContextUser, s.reg.System.Name, u.Name, content)
	if err != nil {
		return
	}
	s.sendAsync(u, data, "")
}

// Fanout submits one send task per member of g, in member-list order. Tasks
// run concurrently; each holds its receiver's socket write lock for the
// whole frame, so per-receiver bytes never interleave. A failing peer is
// logged and skipped. The registry lock is held by the caller.
func (s *Server) Fanout(g *state.Group, data []byte) {
	for _, u := range g.Users {
		s.sendAsync(u, data, g.Name)
	}
}

func (s *Server) sendAsync(u *state.User, data []byte, group string) {
	s.pool.Submit(func() {
		if err := u.WriteFrame(data); err != nil {
			logger.Warn("send failed", "user", u.Name, "group", group, "error", err)
		}
	})
}

func (s *Server) encodeServer(sctx, tctx proto.Context, sender, target, content string) ([]byte, error) {
	f := proto.ServerFrame{
		SenderContext: sctx,
		TargetContext: tctx,
		Sender:        sender,
		Target:        target,
		Content:       content,
	}
	data, err := f.Encode()
	if err != nil {
		logger.Error("encode frame failed", "target", target, "error", err)
		return nil, err
	}
	logger.Debug("sending frame",
		"sender", sender, "sender_ctx", sctx.String(),
		"target", target, "target_ctx", tctx.String(),
		"content", truncate(content, 24))
	return data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}

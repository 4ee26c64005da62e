package server

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"strings"

	"github.com/google/uuid"

	"github.com/ehrlich-b/flock/internal/logger"
	"github.com/ehrlich-b/flock/internal/netio"
	"github.com/ehrlich-b/flock/internal/proto"
	"github.com/ehrlich-b/flock/internal/state"
	"github.com/ehrlich-b/flock/internal/style"
)

// session is the per-connection state machine: username selection, then the
// command dispatch loop until the socket dies.
type session struct {
	srv       *Server
	reg       *state.Registry
	conn      net.Conn
	stream    *netio.Stream
	user      *state.User
	log       *slog.Logger
	published bool
}

func newSession(srv *Server, conn net.Conn) *session {
	id := uuid.NewString()
	u := state.NewUser(conn, id)
	// provisional name until the naming phase completes
	u.Name = fmt.Sprintf("user-%04d", rand.Intn(10000))
	return &session{
		srv:    srv,
		reg:    srv.reg,
		conn:   conn,
		stream: netio.NewStream(conn),
		user:   u,
		log:    logger.With("session", id, "remote", conn.RemoteAddr().String()),
	}
}

func (s *session) run() {
	defer s.srv.wg.Done()
	defer s.cleanup()
	s.log.Info("session started")

	s.sendSystemSync("choose a username")
	s.sendSystemSync("/req username")
	if err := s.naming(); err != nil {
		s.log.Info("session ended during naming", "error", err)
		return
	}

	for {
		frame, err := proto.ReadClientFrame(s.stream)
		if err != nil {
			if errors.Is(err, netio.ErrConnectionClosed) {
				s.log.Info("session ended", "error", err)
			} else {
				s.log.Warn("session aborted", "error", err)
			}
			return
		}
		s.logFrame(frame)
		s.dispatch(frame)
	}
}

// cleanup removes the user from every group (announcing the disconnect),
// deletes emptied non-global groups, purges pending invites, drops the user
// from the registry and closes the socket.
func (s *session) cleanup() {
	s.srv.forgetConn(s.conn)
	if s.published {
		s.reg.Lock.WLock()
		s.reg.Disconnect(s.user)
		s.reg.Lock.WUnlock()
	}
	s.conn.Close()
}

// naming reads frames until the client supplies a usable name, rejecting
// each bad attempt with an explanation. Checks run under the read lock; the
// publish re-checks uniqueness under the write lock.
func (s *session) naming() error {
	for {
		frame, err := proto.ReadClientFrame(s.stream)
		if err != nil {
			return err
		}
		s.logFrame(frame)
		uname := strings.ToLower(strings.TrimSpace(frame.Content))

		unlock := s.reg.Lock.ForRead()
		taken := s.reg.NameTaken(uname)
		unlock()
		if taken {
			s.sendSystem(fmt.Sprintf("username %s already taken", uname))
			continue
		}
		if err := state.CheckName(uname); err != nil {
			s.sendSystem(err.Error())
			continue
		}

		s.reg.Lock.WLock()
		s.user.Name = uname
		err = s.reg.PublishUser(s.user)
		s.reg.Lock.WUnlock()
		if err != nil {
			s.sendSystem(err.Error())
			continue
		}
		s.published = true
		s.log = s.log.With("user", uname)

		s.sendSystemSync("/set username " + uname)
		unlock = s.reg.Lock.ForRead()
		s.srv.GroupNotice(s.reg.Global, uname+" has connected")
		unlock()
		return nil
	}
}

// dispatch resolves the frame's target (groups shadow users) and routes the
// content to a command handler or the forwarder.
func (s *session) dispatch(frame proto.ClientFrame) {
	unlock := s.reg.Lock.ForRead()
	tg := s.reg.FindGroup(frame.Target)
	var tu *state.User
	if tg == nil {
		tu = s.reg.FindUser(frame.Target)
	}
	unlock()
	if tg == nil && tu == nil {
		s.sendSystem("no such user or group: " + frame.Target)
		if frame.TargetContext == proto.ContextGroup {
			s.sendSystem("/switch global")
		}
		return
	}

	content := frame.Content
	switch {
	case strings.HasPrefix(content, "/create "):
		s.cmdCreate(strings.TrimSpace(content[len("/create "):]))
	case content == "/lock":
		s.cmdLock(tg)
	case content == "/unlock":
		s.cmdUnlock(tg)
	case content == "/leave":
		s.cmdLeave(tg)
	case content == "/users":
		s.cmdUsers(tg)
	case content == "/banned":
		s.cmdBanned()
	case strings.HasPrefix(content, "/invite "):
		s.cmdInvite(tg, strings.TrimSpace(content[len("/invite "):]))
	case strings.HasPrefix(content, "/kick "):
		s.cmdKick(tg, strings.TrimSpace(content[len("/kick "):]))
	case strings.HasPrefix(content, "/ban "):
		s.cmdBan(tg, strings.TrimSpace(content[len("/ban "):]))
	case strings.HasPrefix(content, "/accept "):
		s.cmdAccept(strings.TrimSpace(content[len("/accept "):]))
	case content == "/help":
		s.sendSystem(helpText)
	default:
		s.forward(frame, tg, tu)
	}
}

func (s *session) cmdCreate(name string) {
	if name == "" {
		s.sendSystem("no group name provided try /help command")
		return
	}
	if err := state.CheckName(name); err != nil {
		s.sendSystem(err.Error())
		return
	}
	s.reg.Lock.WLock()
	if s.reg.NameTaken(name) {
		s.reg.Lock.WUnlock()
		s.sendSystem(name + " name is taken")
		return
	}
	s.reg.CreateGroup(name, s.user, fmt.Sprintf("%s created the group", s.user.Name))
	s.reg.Lock.WUnlock()
	s.sendSystem("/switch " + name)
}

func (s *session) cmdLock(g *state.Group) {
	if g == nil {
		s.sendSystem("target is not a group")
		return
	}
	defer s.reg.Lock.ForWrite()()
	switch {
	case g.Admin != s.user:
		s.sendSystem("you are not the group admin")
	case g.Locked:
		s.sendSystem("group is already locked")
	default:
		s.reg.LockGroup(g)
	}
}

func (s *session) cmdUnlock(g *state.Group) {
	if g == nil {
		s.sendSystem("target is not a group")
		return
	}
	defer s.reg.Lock.ForWrite()()
	switch {
	case g.Admin != s.user:
		s.sendSystem("you are not the group admin")
	case !g.Locked:
		s.sendSystem("group is not locked")
	default:
		s.reg.UnlockGroup(g)
	}
}

func (s *session) cmdLeave(g *state.Group) {
	if g == nil {
		s.sendSystem("target is not a group")
		return
	}
	defer s.reg.Lock.ForWrite()()
	if !s.user.InGroup(g) {
		s.sendSystem("you are not a member of " + g.Name)
		return
	}
	s.reg.RemoveUser(g, s.user, fmt.Sprintf("%s has left", s.user.Name))
	if g == s.reg.Global {
		// leaving global is reversible: queue a standing invite from system
		g.PendingInvites = append(g.PendingInvites, state.Invite{User: s.user, InvitedBy: s.reg.System})
		s.sendSystem(`you left global, type "/accept global" to return`)
		return
	}
	s.sendSystem("you left " + g.Name)
}

func (s *session) cmdUsers(g *state.Group) {
	if g == nil {
		s.sendSystem("target is not a group")
		return
	}
	defer s.reg.Lock.ForRead()()
	if !s.user.InGroup(g) {
		s.sendSystem("you are not a member of " + g.Name)
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "users in %s:", g.Name)
	for _, m := range g.Users {
		name := m.Name
		if m == s.user {
			name = style.Colored(name, "green")
		}
		if m == g.Admin {
			name += " [ADMIN]"
		}
		if s.user.HasBanned(m) {
			name += " [BANNED]"
		}
		b.WriteString("\n  " + name)
	}
	s.sendSystemGroup(g, b.String())
}

func (s *session) cmdBanned() {
	defer s.reg.Lock.ForRead()()
	if len(s.user.BanList) == 0 {
		s.sendSystem("your ban list is empty")
		return
	}
	names := make([]string, len(s.user.BanList))
	for i, u := range s.user.BanList {
		names[i] = u.Name
	}
	s.sendSystem("your ban list: " + strings.Join(names, ", "))
}

func (s *session) cmdInvite(g *state.Group, uname string) {
	if g == nil {
		s.sendSystem("target is not a group")
		return
	}
	if uname == "" {
		s.sendSystem("no username provided try /help command")
		return
	}
	defer s.reg.Lock.ForWrite()()
	if g.Locked && g.Admin != s.user {
		s.sendSystem("you can't send invites, this group is locked and you are not the admin")
		return
	}
	u := s.reg.FindUser(uname)
	switch {
	case u == nil:
		s.sendSystem("user not found:" + uname)
	case u == s.user:
		s.sendSystem("you can't invite yourself")
	case s.user.HasBanned(u):
		s.sendSystem(uname + " is in your ban list")
	default:
		g.PendingInvites = append(g.PendingInvites, state.Invite{User: u, InvitedBy: s.user})
		s.srv.UserNotice(u, fmt.Sprintf("you were invited by %s to join group %s type %q to join",
			s.user.Name, g.Name, "/accept "+g.Name))
		s.sendSystem("sent invite to " + uname)
	}
}

func (s *session) cmdKick(g *state.Group, args string) {
	if g == nil {
		s.sendSystem("target is not a group")
		return
	}
	fields := strings.Fields(args)
	if len(fields) == 0 {
		s.sendSystem("no username provided try /help command")
		return
	}
	uname, reason := fields[0], strings.Join(fields[1:], " ")
	defer s.reg.Lock.ForWrite()()
	if g.Admin != s.user {
		s.sendSystem("you are not the group admin")
		return
	}
	u := s.reg.FindUser(uname)
	switch {
	case u == nil || !u.InGroup(g):
		s.sendSystem("user not in group: " + uname)
	case u == s.user:
		s.sendSystem("you can't kick yourself")
	default:
		s.reg.RemoveUser(g, u, fmt.Sprintf("%s was kicked", u.Name))
		msg := "you were kicked from " + g.Name
		if reason != "" {
			msg += ": " + reason
		}
		s.srv.UserNotice(u, msg)
		s.srv.UserNotice(u, "/switch global")
		s.sendSystem("kicked " + uname)
	}
}

func (s *session) cmdBan(g *state.Group, uname string) {
	if g == nil {
		s.sendSystem("target is not a group")
		return
	}
	if uname == "" {
		s.sendSystem("no username provided try /help command")
		return
	}
	defer s.reg.Lock.ForWrite()()
	u := s.reg.FindUser(uname)
	switch {
	case u == nil:
		s.sendSystem("user not found:" + uname)
	case u == s.user:
		s.sendSystem("you can't ban yourself")
	case s.user.HasBanned(u):
		s.sendSystem(uname + " is already in your ban list")
	default:
		s.reg.Ban(s.user, u)
		s.sendSystem("banned " + uname)
	}
}

func (s *session) cmdAccept(gname string) {
	if gname == "" {
		s.sendSystem("no group name provided try /help command")
		return
	}
	defer s.reg.Lock.ForWrite()()
	g := s.reg.FindGroup(gname)
	if g == nil {
		s.sendSystem("invite expired or group does not exist")
		return
	}
	if s.user.InGroup(g) {
		s.sendSystem("you are already a member of " + gname)
		return
	}
	// among this user's invites prefer one issued by the admin
	var best *state.Invite
	for i := range g.PendingInvites {
		inv := &g.PendingInvites[i]
		if inv.User != s.user {
			continue
		}
		if best == nil || inv.InvitedBy == g.Admin {
			best = inv
		}
		if inv.InvitedBy == g.Admin {
			break
		}
	}
	invalid := best == nil ||
		(g.Locked && best.InvitedBy != g.Admin) ||
		g.Admin.HasBanned(s.user)
	if invalid {
		s.sendSystem("invite expired or group does not exist")
		return
	}
	// accept consumes every pending invite for this user on the group
	g.PurgeInvites(func(inv state.Invite) bool { return inv.User != s.user })
	s.reg.JoinUser(g, s.user, fmt.Sprintf("%s has joined", s.user.Name))
	s.sendSystem("/switch " + gname)
}

// forward relays plain content to the resolved target, rewriting the sender
// to this session's user. Whisper targets additionally echo a system notice
// back to the caller.
func (s *session) forward(frame proto.ClientFrame, tg *state.Group, tu *state.User) {
	defer s.reg.Lock.ForRead()()
	if tg != nil {
		if !s.user.InGroup(tg) {
			s.sendSystem("message not sent to: " + tg.Name)
			return
		}
		data, err := s.srv.encodeServer(proto.ContextUser, proto.ContextGroup, s.user.Name, tg.Name, frame.Content)
		if err != nil {
			return
		}
		s.srv.Fanout(tg, data)
		return
	}
	if s.user.HasBanned(tu) || tu.HasBanned(s.user) {
		s.sendSystem("message not sent to: " + tu.Name)
		return
	}
	data, err := s.srv.encodeServer(proto.ContextUser, proto.ContextUser, s.user.Name, tu.Name, frame.Content)
	if err != nil {
		return
	}
	s.srv.sendAsync(tu, data, "")
	s.sendSystem(fmt.Sprintf("You're whispering to %s: %s", tu.Name, frame.Content))
}

// sendSystemSync writes a SYSTEM→USER frame on the calling goroutine; used
// where ordering against the next read matters (the naming handshake).
func (s *session) sendSystemSync(content string) {
	data, err := s.srv.encodeServer(proto.ContextSystem, proto.ContextUser, s.reg.System.Name, s.user.Name, content)
	if err != nil {
		return
	}
	if err := s.user.WriteFrame(data); err != nil {
		s.log.Warn("send failed", "error", err)
	}
}

// sendSystem ships a SYSTEM→USER frame to this session's user via the pool.
func (s *session) sendSystem(content string) {
	s.srv.UserNotice(s.user, content)
}

// sendSystemGroup ships a SYSTEM→GROUP frame to this session's user only
// (a reply rendered under the group's banner, not a broadcast).
func (s *session) sendSystemGroup(g *state.Group, content string) {
	data, err := s.srv.encodeServer(proto.ContextSystem, proto.ContextGroup, s.reg.System.Name, g.Name, content)
	if err != nil {
		return
	}
	s.srv.sendAsync(s.user, data, g.Name)
}

func (s *session) logFrame(frame proto.ClientFrame) {
	s.log.Debug("received frame",
		"target", frame.Target,
		"target_ctx", frame.TargetContext.String(),
		"content", truncate(frame.Content, 24))
}

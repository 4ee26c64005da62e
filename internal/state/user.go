package state

import (
	"net"
	"sync"
)

// User is a connected chat user. Name, Groups and BanList are guarded by the
// registry lock; the socket write mutex is independent so frame delivery
// never contends with graph access.
type User struct {
	Name      string
	SessionID string // per-connection id used in server logs

	conn    net.Conn
	writeMu sync.Mutex

	Groups  []*Group
	BanList []*User
}

// NewUser wraps a freshly accepted connection. The user is not published to
// the registry until a valid name is chosen.
func NewUser(conn net.Conn, sessionID string) *User {
	return &User{conn: conn, SessionID: sessionID}
}

// WriteFrame writes one whole frame to the user's socket under its write
// mutex, so concurrent sends never interleave bytes.
func (u *User) WriteFrame(data []byte) error {
	u.writeMu.Lock()
	defer u.writeMu.Unlock()
	if u.conn == nil {
		return nil // system user has no socket
	}
	_, err := u.conn.Write(data)
	return err
}

// HasBanned reports whether other is in u's ban list. Caller holds at least
// the registry read lock.
func (u *User) HasBanned(other *User) bool {
	for _, b := range u.BanList {
		if b == other {
			return true
		}
	}
	return false
}

// InGroup reports whether u is a member of g. Caller holds at least the
// registry read lock.
func (u *User) InGroup(g *Group) bool {
	for _, m := range g.Users {
		if m == u {
			return true
		}
	}
	return false
}

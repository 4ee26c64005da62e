package state

// Invite is a pending permission for a user to join a group. It is consumed
// on accept and purged when the invitee leaves, is kicked, or disconnects.
type Invite struct {
	User      *User // invitee
	InvitedBy *User
}

// Group is a chat channel. All fields are guarded by the registry lock.
type Group struct {
	Name           string
	Admin          *User
	Locked         bool
	Users          []*User
	PendingInvites []Invite
}

// InvitesFor returns the pending invites addressed to u, in list
// order. Caller holds at least the registry read lock.
func (g *Group) InvitesFor(u *User) []Invite {
	var out []Invite
	for _, inv := range g.PendingInvites {
		if inv.User == u {
			out = append(out, inv)
		}
	}
	return out
}

// PurgeInvites removes every pending invite for which keep returns false.
// Caller holds the registry write lock.
func (g *Group) PurgeInvites(keep func(Invite) bool) {
	kept := g.PendingInvites[:0]
	for _, inv := range g.PendingInvites {
		if keep(inv) {
			kept = append(kept, inv)
		}
	}
	g.PendingInvites = kept
}

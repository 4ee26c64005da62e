package state

import (
	"fmt"

	"github.com/ehrlich-b/flock/internal/rwlock"
)

// Notifier delivers the system announcements produced by graph mutations.
// The server backs it with the fanout pool; tests back it with a recorder.
type Notifier interface {
	// GroupNotice ships a SYSTEM→GROUP frame to every member of g.
	GroupNotice(g *Group, content string)
	// UserNotice ships a SYSTEM→USER frame to u.
	UserNotice(u *User, content string)
}

// Registry is the shared graph of users, groups, invites and bans. Every
// read of its fields happens under at least a read hold of Lock, every
// mutation under the write hold.
type Registry struct {
	Lock *rwlock.Lock

	// System is the sender of all server-originated frames. It is not
	// listed in Users and belongs to no group's member list.
	System *User
	// Global is the entry group for every authenticated user. Always
	// exists, initially locked, admin is System.
	Global *Group

	Users  []*User
	Groups []*Group

	notify Notifier
}

// NewRegistry builds a registry holding only the system user and the locked
// global group.
func NewRegistry(n Notifier) *Registry {
	system := &User{Name: "system"}
	global := &Group{Name: "global", Admin: system, Locked: true}
	return &Registry{
		Lock:   rwlock.New(),
		System: system,
		Global: global,
		Groups: []*Group{global},
		notify: n,
	}
}

// FindUser returns the connected user with the given name, or nil. Caller
// holds at least the read lock.
func (r *Registry) FindUser(name string) *User {
	for _, u := range r.Users {
		if u.Name == name {
			return u
		}
	}
	return nil
}

// FindGroup returns the group with the given name, or nil. Caller holds at
// least the read lock.
func (r *Registry) FindGroup(name string) *Group {
	for _, g := range r.Groups {
		if g.Name == name {
			return g
		}
	}
	return nil
}

// NameTaken reports whether name collides with a reserved name, a connected
// user, or a group. Caller holds at least the read lock.
func (r *Registry) NameTaken(name string) bool {
	return IsReserved(name) || r.FindUser(name) != nil || r.FindGroup(name) != nil
}

// PublishUser appends a freshly named user to the registry and to the global
// group. It re-checks uniqueness so that two sessions racing through the
// naming phase cannot both claim the name. Caller holds the write lock.
func (r *Registry) PublishUser(u *User) error {
	if r.NameTaken(u.Name) {
		return fmt.Errorf("username %s already taken", u.Name)
	}
	r.Users = append(r.Users, u)
	r.Global.Users = append(r.Global.Users, u)
	u.Groups = append(u.Groups, r.Global)
	return nil
}

// CreateGroup makes a new unlocked group with creator as admin and sole
// member, announced with report. Caller holds the write lock.
func (r *Registry) CreateGroup(name string, creator *User, report string) *Group {
	g := &Group{Name: name, Admin: creator}
	r.Groups = append(r.Groups, g)
	r.JoinUser(g, creator, report)
	return g
}

// JoinUser appends u to g and g to u, then announces report to the group.
// u must not already be a member. Caller holds the write lock.
func (r *Registry) JoinUser(g *Group, u *User, report string) {
	g.Users = append(g.Users, u)
	u.Groups = append(u.Groups, g)
	r.notify.GroupNotice(g, report)
}

// RemoveUser removes u from g and g from u. If members remain, report is
// announced and the admin role is handed to the first remaining member when
// u held it. An emptied non-global group is deleted. u's pending invites on
// g are purged. Caller holds the write lock.
func (r *Registry) RemoveUser(g *Group, u *User, report string) {
	g.Users = removeUser(g.Users, u)
	u.Groups = removeGroup(u.Groups, g)
	g.PurgeInvites(func(inv Invite) bool { return inv.User != u })
	if len(g.Users) == 0 {
		if g != r.Global {
			r.Groups = removeGroup(r.Groups, g)
		}
		return
	}
	r.notify.GroupNotice(g, report)
	if g.Admin == u {
		g.Admin = g.Users[0]
		r.notify.GroupNotice(g, fmt.Sprintf("%s is now the group admin", g.Admin.Name))
	}
}

// LockGroup closes g for non-admin invites and drops every pending invite
// whose inviter is not the admin. Caller holds the write lock.
func (r *Registry) LockGroup(g *Group) {
	g.Locked = true
	g.PurgeInvites(func(inv Invite) bool { return inv.InvitedBy == g.Admin })
	r.notify.GroupNotice(g, "group invites are now locked")
}

// UnlockGroup reopens g for member invites. Caller holds the write lock.
func (r *Registry) UnlockGroup(g *Group) {
	g.Locked = false
	r.notify.GroupNotice(g, "group is now open for invites")
}

// Ban adds target to by's ban list and removes target from every group where
// by is admin and both are members. Caller holds the write lock.
func (r *Registry) Ban(by, target *User) {
	if !by.HasBanned(target) {
		by.BanList = append(by.BanList, target)
	}
	for _, g := range append([]*Group(nil), r.Groups...) {
		if g.Admin == by && target.InGroup(g) {
			r.RemoveUser(g, target, fmt.Sprintf("%s was banned by %s", target.Name, by.Name))
			r.notify.UserNotice(target, fmt.Sprintf("you were banned from %s", g.Name))
		}
	}
}

// Disconnect tears a user out of the graph: every membership is removed
// (announcing the disconnect to remaining members), emptied non-global
// groups are deleted, and all pending invites for u anywhere are purged.
// Caller holds the write lock.
func (r *Registry) Disconnect(u *User) {
	for _, g := range append([]*Group(nil), u.Groups...) {
		r.RemoveUser(g, u, fmt.Sprintf("%s has disconnected", u.Name))
	}
	for _, g := range r.Groups {
		g.PurgeInvites(func(inv Invite) bool { return inv.User != u })
	}
	r.Users = removeUser(r.Users, u)
}

func removeUser(list []*User, u *User) []*User {
	for i, v := range list {
		if v == u {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func removeGroup(list []*Group, g *Group) []*Group {
	for i, v := range list {
		if v == g {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

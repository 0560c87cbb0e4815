package state

import (
	"time"
)

// User is the identity a session is bound to. The authoritative record
// (password hash, admin/ban flags) lives in persistence; this is the slice
// the connection engine needs.
type User struct {
	ID      int64
	Name    string
	IsAdmin bool
}

// Session is the live association between one connection and one
// authenticated user. CurrentGroup is a routing cache of "last entered";
// membership checks always go to the group directory, never this field.
type Session struct {
	Conn         SessionConn
	User         User
	CurrentGroup int64 // 0 means no active group
	LoginAt      time.Time
}

// Group is a named chat group. Private groups hold exactly two members and
// accept no further joins.
type Group struct {
	ID        int64
	Name      string
	Private   bool
	Members   map[int64]struct{}
	CreatedAt time.Time
}

func (g *Group) MemberCount() int {
	return len(g.Members)
}

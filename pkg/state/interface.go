package state

import (
	"errors"

	"github.com/google/uuid"

	"github.com/yhaddad/go-relay/pkg/wire"
)

var (
	ErrSessionExists  = errors.New("connection already has a session")
	ErrNameTaken      = errors.New("group name already taken")
	ErrGroupNotFound  = errors.New("group not found")
	ErrNotMember      = errors.New("user is not a member of this group")
	ErrPrivateGroup   = errors.New("private groups accept no further members")
	ErrAlreadyMember  = errors.New("user is already a member of this group")
	ErrMemberRequired = errors.New("a group needs at least one member")
)

// SessionStore is the only place online/offline state lives. All mutations
// are serialized behind a single lock; handlers on many connection
// goroutines read and write it concurrently.
type SessionStore interface {
	// Bind associates an authenticated user with a connection. If the user
	// already has an online session elsewhere, that session is unbound and
	// returned as superseded so the caller can close its connection.
	Bind(conn SessionConn, user User) (session *Session, superseded *Session, err error)
	ByConnection(connID uuid.UUID) (*Session, bool)
	ByUser(userID int64) (*Session, bool)
	SetCurrentGroup(connID uuid.UUID, groupID int64) error
	OnlineUsers() []User
	// Unbind releases the session for a connection. Idempotent.
	Unbind(connID uuid.UUID)
}

// SessionConn is the slice of transport.Connection the session layer needs,
// kept narrow so tests can stub it.
type SessionConn interface {
	ID() uuid.UUID
	Close(err error)
	SendMessage(msg wire.Message) error
}

// GroupDirectory owns the authoritative member sets used for every
// permission check. A session's current-group pointer is never a substitute
// for IsMember.
type GroupDirectory interface {
	// Create registers a group under an id already assigned by persistence.
	Create(id int64, name string, private bool, memberIDs []int64) (*Group, error)
	AddMember(groupID, userID int64) error
	RemoveMember(groupID, userID int64) error
	IsMember(groupID, userID int64) bool
	Members(groupID int64) ([]int64, error)
	Get(groupID int64) (*Group, bool)
	GetByName(name string) (*Group, bool)
	// PublicGroups lists every non-private group, with no minimum-size
	// filter on top of the membership set.
	PublicGroups() []*Group
	// JoinedGroups lists every group the user belongs to, private pairs
	// included.
	JoinedGroups(userID int64) []*Group
}

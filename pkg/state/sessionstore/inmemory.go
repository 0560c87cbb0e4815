package sessionstore

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yhaddad/go-relay/pkg/state"
)

// InMemoryStore keeps who-is-online in process memory behind a single lock.
type InMemoryStore struct {
	mu     sync.RWMutex
	byConn map[uuid.UUID]*state.Session
	byUser map[int64]uuid.UUID
	logger *slog.Logger
}

func NewInMemoryStore(logger *slog.Logger) *InMemoryStore {
	return &InMemoryStore{
		byConn: make(map[uuid.UUID]*state.Session),
		byUser: make(map[int64]uuid.UUID),
		logger: logger.With(slog.String("component", "session_store")),
	}
}

// compile-time check to ensure InMemoryStore implements SessionStore.
var _ state.SessionStore = (*InMemoryStore)(nil)

func (s *InMemoryStore) Bind(conn state.SessionConn, user state.User) (*state.Session, *state.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	connID := conn.ID()
	if _, exists := s.byConn[connID]; exists {
		return nil, nil, state.ErrSessionExists
	}

	// Second login while already online supersedes the first session: the
	// old binding is removed here and its connection handed back to the
	// caller to close outside the lock.
	var superseded *state.Session
	if oldConnID, online := s.byUser[user.ID]; online {
		superseded = s.byConn[oldConnID]
		delete(s.byConn, oldConnID)
		s.logger.Info("superseding online session",
			slog.Int64("userID", user.ID),
			slog.String("oldConnID", oldConnID.String()),
		)
	}

	session := &state.Session{
		Conn:    conn,
		User:    user,
		LoginAt: time.Now(),
	}
	s.byConn[connID] = session
	s.byUser[user.ID] = connID

	s.logger.Debug("session bound", slog.String("connID", connID.String()), slog.Int64("userID", user.ID))
	return session, superseded, nil
}

func (s *InMemoryStore) ByConnection(connID uuid.UUID) (*state.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.byConn[connID]
	return session, ok
}

func (s *InMemoryStore) ByUser(userID int64) (*state.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	connID, ok := s.byUser[userID]
	if !ok {
		return nil, false
	}
	session, ok := s.byConn[connID]
	return session, ok
}

func (s *InMemoryStore) SetCurrentGroup(connID uuid.UUID, groupID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.byConn[connID]
	if !ok {
		return errors.New("no session for connection")
	}
	session.CurrentGroup = groupID
	return nil
}

func (s *InMemoryStore) OnlineUsers() []state.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]state.User, 0, len(s.byConn))
	for _, session := range s.byConn {
		users = append(users, session.User)
	}
	return users
}

// Unbind is idempotent: unbinding an unknown connection is a no-op.
func (s *InMemoryStore) Unbind(connID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.byConn[connID]
	if !ok {
		return
	}
	delete(s.byConn, connID)
	// Only clear the user index if it still points at this connection; a
	// superseding login may already have rebound it.
	if current, ok := s.byUser[session.User.ID]; ok && current == connID {
		delete(s.byUser, session.User.ID)
	}
	s.logger.Debug("session unbound", slog.String("connID", connID.String()), slog.Int64("userID", session.User.ID))
}

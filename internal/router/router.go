package router

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/yhaddad/go-relay/internal/ai"
	"github.com/yhaddad/go-relay/internal/auth"
	"github.com/yhaddad/go-relay/internal/store"
	"github.com/yhaddad/go-relay/pkg/state"
	"github.com/yhaddad/go-relay/pkg/transport"
	"github.com/yhaddad/go-relay/pkg/wire"
)

// Context carries everything a handler needs for one request. Session is nil
// until the connection has authenticated.
type Context struct {
	Ctx     context.Context
	Conn    *transport.Connection
	Session *state.Session
	Logger  *slog.Logger
}

// HandlerFunc processes one decoded request. Recoverable failures are
// answered with typed error messages inside the handler; a returned error is
// only logged, never tears the connection down.
type HandlerFunc func(hctx *Context, msg wire.Message) error

// Router owns the kind-keyed dispatch table and the live-connection
// registry, and fans messages out to group members.
type Router struct {
	logger   *slog.Logger
	sessions state.SessionStore
	groups   state.GroupDirectory
	db       *store.Database
	blobs    *store.BlobStore
	tokens   *auth.TokenIssuer

	completer ai.Completer
	trigger   *ai.Trigger
	aiUserID  int64

	historyPage int

	handlers map[string]HandlerFunc

	connMu sync.RWMutex
	conns  map[uuid.UUID]*transport.Connection
}

type Options struct {
	Sessions    state.SessionStore
	Groups      state.GroupDirectory
	DB          *store.Database
	Blobs       *store.BlobStore
	Tokens      *auth.TokenIssuer
	Completer   ai.Completer // nil disables the AI bridge
	Trigger     *ai.Trigger
	AIUserID    int64
	HistoryPage int
}

func New(logger *slog.Logger, opts Options) *Router {
	if opts.HistoryPage <= 0 {
		opts.HistoryPage = 50
	}
	r := &Router{
		logger:      logger.With(slog.String("component", "router")),
		sessions:    opts.Sessions,
		groups:      opts.Groups,
		db:          opts.DB,
		blobs:       opts.Blobs,
		tokens:      opts.Tokens,
		completer:   opts.Completer,
		trigger:     opts.Trigger,
		aiUserID:    opts.AIUserID,
		historyPage: opts.HistoryPage,
		handlers:    make(map[string]HandlerFunc),
		conns:       make(map[uuid.UUID]*transport.Connection),
	}
	r.registerCoreHandlers()
	return r
}

func (r *Router) register(kind string, fn HandlerFunc) {
	if _, exists := r.handlers[kind]; exists {
		panic("handler already registered for kind: " + kind)
	}
	r.handlers[kind] = fn
}

func (r *Router) registerCoreHandlers() {
	r.register(wire.KindRegister, r.handleRegister)
	r.register(wire.KindLogin, r.handleLogin)
	r.register(wire.KindCreateGroup, r.handleCreateGroup)
	r.register(wire.KindEnterGroup, r.handleEnterGroup)
	r.register(wire.KindLeaveGroup, r.handleLeaveGroup)
	r.register(wire.KindChatSend, r.handleChatSend)
	r.register(wire.KindListUsers, r.handleListUsers)
	r.register(wire.KindListGroups, r.handleListGroups)
	r.register(wire.KindFileUpload, r.handleFileUpload)
	r.register(wire.KindFileDownload, r.handleFileDownload)
	r.register(wire.KindAIRequest, r.handleAIRequest)
	r.register(wire.KindAdminAdd, r.handleAdminAdd)
	r.register(wire.KindAdminDel, r.handleAdminDel)
	r.register(wire.KindAdminModify, r.handleAdminModify)
	r.register(wire.KindAdminBan, r.handleAdminBan)
	r.register(wire.KindAdminFree, r.handleAdminFree)
}

// RegisterConn makes a live connection addressable before authentication.
func (r *Router) RegisterConn(conn *transport.Connection) {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	r.conns[conn.ID()] = conn
}

// DeregisterConn releases the connection's session and group routing state.
// Idempotent; called from the transport's onClose callback.
func (r *Router) DeregisterConn(connID uuid.UUID) {
	r.connMu.Lock()
	delete(r.conns, connID)
	r.connMu.Unlock()

	r.sessions.Unbind(connID)
}

// ConnCount reports the number of live connections, pre-auth included.
func (r *Router) ConnCount() int {
	r.connMu.RLock()
	defer r.connMu.RUnlock()
	return len(r.conns)
}

// CloseAll tears down every live connection; used during shutdown.
func (r *Router) CloseAll(err error) {
	r.connMu.RLock()
	conns := make([]*transport.Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.connMu.RUnlock()

	for _, c := range conns {
		c.Close(err)
	}
}

func (r *Router) conn(connID uuid.UUID) (*transport.Connection, bool) {
	r.connMu.RLock()
	defer r.connMu.RUnlock()
	c, ok := r.conns[connID]
	return c, ok
}

// HandleMessage is the transport's message callback: decode, resolve any
// pending waiter, then dispatch by kind.
func (r *Router) HandleMessage(ctx context.Context, connID uuid.UUID, payload []byte) {
	conn, ok := r.conn(connID)
	if !ok {
		r.logger.Error("message from unregistered connection", slog.String("connID", connID.String()))
		return
	}

	msg, derr := wire.Decode(payload)
	if derr != nil {
		// A single malformed message is rejected; the connection stays open.
		r.logger.Warn("rejecting undecodable message", slog.String("connID", connID.String()), slog.Any("error", derr))
		r.reply(conn, wire.NewError(wire.CodeDecode, derr.Error(), ""))
		return
	}

	// Replies this connection is awaiting are consumed by their waiter and
	// never reach the handler table.
	if conn.Pending().Resolve(msg.MessageKind(), msg) {
		return
	}

	handler, ok := r.handlers[msg.MessageKind()]
	if !ok {
		r.reply(conn, wire.NewError(wire.CodeDecode, "no handler for kind "+msg.MessageKind(), msg.MessageKind()))
		return
	}

	session, _ := r.sessions.ByConnection(connID)
	hctx := &Context{
		Ctx:     ctx,
		Conn:    conn,
		Session: session,
		Logger:  r.logger.With(slog.String("connID", connID.String())),
	}
	if err := handler(hctx, msg); err != nil {
		r.logger.Error("handler failed",
			slog.String("kind", msg.MessageKind()),
			slog.String("connID", connID.String()),
			slog.Any("error", err),
		)
	}
}

func (r *Router) reply(conn *transport.Connection, msg wire.Message) {
	if err := conn.SendMessage(msg); err != nil {
		r.logger.Warn("failed to write reply", slog.String("connID", conn.ID().String()), slog.Any("error", err))
	}
}

// requireSession answers with an auth error when the connection has not
// logged in.
func (r *Router) requireSession(hctx *Context, op string) bool {
	if hctx.Session == nil {
		r.reply(hctx.Conn, wire.NewError(wire.CodeAuth, "login required", op))
		return false
	}
	return true
}

// requireMember re-checks membership against the authoritative set. The
// session's current-group pointer is never consulted here.
func (r *Router) requireMember(hctx *Context, groupID int64, op string) bool {
	if !r.groups.IsMember(groupID, hctx.Session.User.ID) {
		r.reply(hctx.Conn, wire.NewError(wire.CodePermission, "not a member of this group", op))
		return false
	}
	return true
}

func (r *Router) requireAdmin(hctx *Context, op string) bool {
	if !hctx.Session.User.IsAdmin {
		r.reply(hctx.Conn, wire.NewError(wire.CodePermission, "admin privileges required", op))
		return false
	}
	return true
}

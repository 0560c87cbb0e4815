package router

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/yhaddad/go-relay/internal/auth"
	"github.com/yhaddad/go-relay/internal/store"
	"github.com/yhaddad/go-relay/pkg/state"
	"github.com/yhaddad/go-relay/pkg/transport"
	"github.com/yhaddad/go-relay/pkg/wire"
)

func (r *Router) handleRegister(hctx *Context, msg wire.Message) error {
	req := msg.(*wire.Register)

	if _, err := r.db.UserByName(req.Username); err == nil {
		r.reply(hctx.Conn, &wire.RegisterResult{
			Envelope: wire.Env(wire.KindRegisterResult),
			Reason:   "username already taken",
		})
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		r.reply(hctx.Conn, wire.NewError(wire.CodeInternal, "registration unavailable", wire.KindRegister))
		return fmt.Errorf("user lookup failed: %w", err)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		r.reply(hctx.Conn, wire.NewError(wire.CodeInternal, "registration unavailable", wire.KindRegister))
		return err
	}
	userID, err := r.db.CreateUser(req.Username, hash, false)
	if err != nil {
		r.reply(hctx.Conn, wire.NewError(wire.CodeInternal, "registration unavailable", wire.KindRegister))
		return err
	}

	hctx.Logger.Info("user registered", slog.Int64("userID", userID), slog.String("username", req.Username))
	r.reply(hctx.Conn, &wire.RegisterResult{
		Envelope: wire.Env(wire.KindRegisterResult),
		OK:       true,
		UserID:   userID,
	})
	return nil
}

func (r *Router) handleLogin(hctx *Context, msg wire.Message) error {
	req := msg.(*wire.Login)

	if hctx.Session != nil {
		r.reply(hctx.Conn, &wire.LoginResult{
			Envelope: wire.Env(wire.KindLoginResult),
			Reason:   "connection is already authenticated",
		})
		return nil
	}

	user, err := r.db.UserByName(req.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			r.reply(hctx.Conn, &wire.LoginResult{
				Envelope: wire.Env(wire.KindLoginResult),
				Reason:   "invalid username or password",
			})
			return nil
		}
		r.reply(hctx.Conn, wire.NewError(wire.CodeInternal, "login unavailable", wire.KindLogin))
		return fmt.Errorf("user lookup failed: %w", err)
	}
	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		r.reply(hctx.Conn, &wire.LoginResult{
			Envelope: wire.Env(wire.KindLoginResult),
			Reason:   "invalid username or password",
		})
		return nil
	}
	if user.IsBanned {
		r.reply(hctx.Conn, wire.NewError(wire.CodeBanned, "this account is banned", wire.KindLogin))
		return nil
	}

	return r.bindSession(hctx, user)
}

// bindSession completes a login: binds the session, supersedes any prior
// online session for the same user, and answers with a session token.
func (r *Router) bindSession(hctx *Context, user *store.User) error {
	stateUser := state.User{ID: user.ID, Name: user.Name, IsAdmin: user.IsAdmin}
	_, superseded, err := r.sessions.Bind(hctx.Conn, stateUser)
	if err != nil {
		r.reply(hctx.Conn, wire.NewError(wire.CodeInternal, "login unavailable", wire.KindLogin))
		return err
	}
	// Second login invalidates and replaces the first: the old connection
	// is closed after its binding is gone, so its teardown cannot race a
	// write to the new session.
	if superseded != nil {
		superseded.Conn.Close(transport.ErrConnectionClosed)
	}

	token, err := r.tokens.Issue(user.ID, user.Name, user.IsAdmin)
	if err != nil {
		hctx.Logger.Warn("failed to issue session token", slog.Any("error", err))
	}

	hctx.Logger.Info("user logged in", slog.Int64("userID", user.ID), slog.String("username", user.Name))
	r.reply(hctx.Conn, &wire.LoginResult{
		Envelope: wire.Env(wire.KindLoginResult),
		OK:       true,
		UserID:   user.ID,
		Username: user.Name,
		IsAdmin:  user.IsAdmin,
		Token:    token,
	})
	return nil
}

// BindVerifiedUser is the gateway path: the WebSocket middleware has already
// verified a session token, so the connection starts out authenticated.
func (r *Router) BindVerifiedUser(conn *transport.Connection, userID int64) error {
	user, err := r.db.UserByID(userID)
	if err != nil {
		return fmt.Errorf("token subject not found: %w", err)
	}
	if user.IsBanned {
		return errors.New("account is banned")
	}
	stateUser := state.User{ID: user.ID, Name: user.Name, IsAdmin: user.IsAdmin}
	_, superseded, err := r.sessions.Bind(conn, stateUser)
	if err != nil {
		return err
	}
	if superseded != nil {
		superseded.Conn.Close(transport.ErrConnectionClosed)
	}
	return nil
}

func (r *Router) handleAdminAdd(hctx *Context, msg wire.Message) error {
	req := msg.(*wire.AdminAdd)
	if !r.requireSession(hctx, wire.KindAdminAdd) || !r.requireAdmin(hctx, wire.KindAdminAdd) {
		return nil
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		r.reply(hctx.Conn, wire.NewError(wire.CodeInternal, "could not create user", wire.KindAdminAdd))
		return err
	}
	userID, err := r.db.CreateUser(req.Username, hash, req.IsAdmin)
	if err != nil {
		r.reply(hctx.Conn, wire.NewError(wire.CodeInternal, "could not create user", wire.KindAdminAdd))
		return err
	}

	hctx.Logger.Info("admin created user", slog.Int64("userID", userID), slog.String("username", req.Username))
	r.reply(hctx.Conn, &wire.Ok{Envelope: wire.Env(wire.KindOk), Op: wire.KindAdminAdd})
	return nil
}

func (r *Router) handleAdminDel(hctx *Context, msg wire.Message) error {
	req := msg.(*wire.AdminDel)
	if !r.requireSession(hctx, wire.KindAdminDel) || !r.requireAdmin(hctx, wire.KindAdminDel) {
		return nil
	}

	user, err := r.db.UserByName(req.Username)
	if err != nil {
		r.reply(hctx.Conn, wire.NewError(wire.CodeNotFound, "no such user", wire.KindAdminDel))
		return nil
	}
	if err := r.db.DeleteUser(user.ID); err != nil {
		r.reply(hctx.Conn, wire.NewError(wire.CodeInternal, "could not delete user", wire.KindAdminDel))
		return err
	}
	// Close any live session for the deleted account.
	if session, online := r.sessions.ByUser(user.ID); online {
		session.Conn.Close(transport.ErrConnectionClosed)
	}

	r.reply(hctx.Conn, &wire.Ok{Envelope: wire.Env(wire.KindOk), Op: wire.KindAdminDel})
	return nil
}

func (r *Router) handleAdminModify(hctx *Context, msg wire.Message) error {
	req := msg.(*wire.AdminModify)
	if !r.requireSession(hctx, wire.KindAdminModify) || !r.requireAdmin(hctx, wire.KindAdminModify) {
		return nil
	}

	user, err := r.db.UserByName(req.Username)
	if err != nil {
		r.reply(hctx.Conn, wire.NewError(wire.CodeNotFound, "no such user", wire.KindAdminModify))
		return nil
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		r.reply(hctx.Conn, wire.NewError(wire.CodeInternal, "could not modify user", wire.KindAdminModify))
		return err
	}
	if err := r.db.UpdatePassword(user.ID, hash); err != nil {
		r.reply(hctx.Conn, wire.NewError(wire.CodeInternal, "could not modify user", wire.KindAdminModify))
		return err
	}

	r.reply(hctx.Conn, &wire.Ok{Envelope: wire.Env(wire.KindOk), Op: wire.KindAdminModify})
	return nil
}

func (r *Router) handleAdminBan(hctx *Context, msg wire.Message) error {
	req := msg.(*wire.AdminBan)
	if !r.requireSession(hctx, wire.KindAdminBan) || !r.requireAdmin(hctx, wire.KindAdminBan) {
		return nil
	}

	user, err := r.db.UserByName(req.Username)
	if err != nil {
		r.reply(hctx.Conn, wire.NewError(wire.CodeNotFound, "no such user", wire.KindAdminBan))
		return nil
	}
	if err := r.db.SetBanned(user.ID, true); err != nil {
		r.reply(hctx.Conn, wire.NewError(wire.CodeInternal, "could not ban user", wire.KindAdminBan))
		return err
	}
	// A banned user's live session ends immediately; the login handler
	// rejects them from now on.
	if session, online := r.sessions.ByUser(user.ID); online {
		session.Conn.Close(transport.ErrConnectionClosed)
	}

	hctx.Logger.Info("user banned", slog.String("username", req.Username))
	r.reply(hctx.Conn, &wire.Ok{Envelope: wire.Env(wire.KindOk), Op: wire.KindAdminBan})
	return nil
}

func (r *Router) handleAdminFree(hctx *Context, msg wire.Message) error {
	req := msg.(*wire.AdminFree)
	if !r.requireSession(hctx, wire.KindAdminFree) || !r.requireAdmin(hctx, wire.KindAdminFree) {
		return nil
	}

	user, err := r.db.UserByName(req.Username)
	if err != nil {
		r.reply(hctx.Conn, wire.NewError(wire.CodeNotFound, "no such user", wire.KindAdminFree))
		return nil
	}
	if err := r.db.SetBanned(user.ID, false); err != nil {
		r.reply(hctx.Conn, wire.NewError(wire.CodeInternal, "could not unban user", wire.KindAdminFree))
		return err
	}

	hctx.Logger.Info("user unbanned", slog.String("username", req.Username))
	r.reply(hctx.Conn, &wire.Ok{Envelope: wire.Env(wire.KindOk), Op: wire.KindAdminFree})
	return nil
}

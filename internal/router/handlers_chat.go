package router

import (
	"context"
	"log/slog"
	"time"

	"github.com/yhaddad/go-relay/internal/ai"
	"github.com/yhaddad/go-relay/pkg/state"
	"github.com/yhaddad/go-relay/pkg/wire"
)

const aiCompleteTimeout = 30 * time.Second

func (r *Router) handleCreateGroup(hctx *Context, msg wire.Message) error {
	req := msg.(*wire.CreateGroup)
	if !r.requireSession(hctx, wire.KindCreateGroup) {
		return nil
	}

	creator := hctx.Session.User
	memberIDs := []int64{creator.ID}
	for _, name := range req.Members {
		member, err := r.db.UserByName(name)
		if err != nil {
			r.reply(hctx.Conn, &wire.CreateGroupResult{
				Envelope: wire.Env(wire.KindCreateGroupResult),
				Reason:   "unknown member " + name,
			})
			return nil
		}
		if member.ID == creator.ID {
			continue
		}
		memberIDs = append(memberIDs, member.ID)
	}
	if req.Private && len(memberIDs) != 2 {
		r.reply(hctx.Conn, &wire.CreateGroupResult{
			Envelope: wire.Env(wire.KindCreateGroupResult),
			Reason:   "a private group holds exactly two members",
		})
		return nil
	}
	if _, taken := r.groups.GetByName(req.Name); taken {
		r.reply(hctx.Conn, &wire.CreateGroupResult{
			Envelope: wire.Env(wire.KindCreateGroupResult),
			Reason:   "group name already taken",
		})
		return nil
	}

	groupID, err := r.db.CreateGroup(req.Name, req.Private, memberIDs)
	if err != nil {
		r.reply(hctx.Conn, wire.NewError(wire.CodeInternal, "could not create group", wire.KindCreateGroup))
		return err
	}
	if _, err := r.groups.Create(groupID, req.Name, req.Private, memberIDs); err != nil {
		r.reply(hctx.Conn, wire.NewError(wire.CodeInternal, "could not create group", wire.KindCreateGroup))
		return err
	}

	hctx.Logger.Info("group created",
		slog.Int64("groupID", groupID),
		slog.String("name", req.Name),
		slog.Bool("private", req.Private),
	)
	r.reply(hctx.Conn, &wire.CreateGroupResult{
		Envelope: wire.Env(wire.KindCreateGroupResult),
		OK:       true,
		GroupID:  groupID,
		Name:     req.Name,
	})
	return nil
}

// handleEnterGroup switches the session's active group and streams the
// bounded history backlog, always terminated by a completion marker.
func (r *Router) handleEnterGroup(hctx *Context, msg wire.Message) error {
	req := msg.(*wire.EnterGroup)
	if !r.requireSession(hctx, wire.KindEnterGroup) {
		return nil
	}

	group, ok := r.groups.Get(req.GroupID)
	if !ok {
		r.reply(hctx.Conn, wire.NewError(wire.CodeNotFound, "no such group", wire.KindEnterGroup))
		return nil
	}

	userID := hctx.Session.User.ID
	if !r.groups.IsMember(group.ID, userID) {
		// Entering a public group joins it; private pairs admit nobody new.
		if group.Private {
			r.reply(hctx.Conn, wire.NewError(wire.CodePermission, "not a member of this group", wire.KindEnterGroup))
			return nil
		}
		if err := r.db.AddMember(group.ID, userID); err != nil {
			r.reply(hctx.Conn, wire.NewError(wire.CodeInternal, "could not join group", wire.KindEnterGroup))
			return err
		}
		if err := r.groups.AddMember(group.ID, userID); err != nil && err != state.ErrAlreadyMember {
			r.reply(hctx.Conn, wire.NewError(wire.CodeInternal, "could not join group", wire.KindEnterGroup))
			return err
		}
	}

	if err := r.sessions.SetCurrentGroup(hctx.Conn.ID(), group.ID); err != nil {
		r.reply(hctx.Conn, wire.NewError(wire.CodeInternal, "could not enter group", wire.KindEnterGroup))
		return err
	}

	r.reply(hctx.Conn, &wire.Ok{Envelope: wire.Env(wire.KindOk), Op: wire.KindEnterGroup, Detail: group.Name})
	r.streamHistory(hctx, group.ID)
	return nil
}

func (r *Router) handleLeaveGroup(hctx *Context, msg wire.Message) error {
	req := msg.(*wire.LeaveGroup)
	if !r.requireSession(hctx, wire.KindLeaveGroup) {
		return nil
	}

	group, ok := r.groups.Get(req.GroupID)
	if !ok {
		r.reply(hctx.Conn, wire.NewError(wire.CodeNotFound, "no such group", wire.KindLeaveGroup))
		return nil
	}
	if group.Private {
		r.reply(hctx.Conn, wire.NewError(wire.CodePermission, "cannot leave a private pair", wire.KindLeaveGroup))
		return nil
	}
	userID := hctx.Session.User.ID
	if !r.groups.IsMember(group.ID, userID) {
		r.reply(hctx.Conn, wire.NewError(wire.CodePermission, "not a member of this group", wire.KindLeaveGroup))
		return nil
	}
	// Persist first, then mirror; the directory must never be ahead of the
	// database.
	if err := r.db.RemoveMember(group.ID, userID); err != nil {
		r.reply(hctx.Conn, wire.NewError(wire.CodeInternal, "could not leave group", wire.KindLeaveGroup))
		return err
	}
	if err := r.groups.RemoveMember(group.ID, userID); err != nil {
		hctx.Logger.Warn("directory out of sync on leave", slog.Any("error", err))
	}

	// Dropping the routing cache only if it still points at this group.
	if hctx.Session.CurrentGroup == group.ID {
		if err := r.sessions.SetCurrentGroup(hctx.Conn.ID(), 0); err != nil {
			hctx.Logger.Warn("failed to clear current group", slog.Any("error", err))
		}
	}

	r.reply(hctx.Conn, &wire.Ok{Envelope: wire.Env(wire.KindOk), Op: wire.KindLeaveGroup})
	return nil
}

func (r *Router) handleChatSend(hctx *Context, msg wire.Message) error {
	req := msg.(*wire.ChatSend)
	if !r.requireSession(hctx, wire.KindChatSend) {
		return nil
	}
	// Membership is re-checked on every send; the cached current-group
	// pointer is never trusted for authorization.
	if !r.requireMember(hctx, req.GroupID, wire.KindChatSend) {
		return nil
	}

	sender := hctx.Session.User
	msgID, err := r.db.AppendMessage(req.GroupID, sender.ID, req.Body)
	if err != nil {
		r.reply(hctx.Conn, wire.NewError(wire.CodeInternal, "message not stored", wire.KindChatSend))
		return err
	}

	group, _ := r.groups.Get(req.GroupID)
	groupName := ""
	if group != nil {
		groupName = group.Name
	}
	broadcast := &wire.ChatBroadcast{
		Envelope:   wire.Env(wire.KindChatBroadcast),
		GroupID:    req.GroupID,
		GroupName:  groupName,
		SenderID:   sender.ID,
		SenderName: sender.Name,
		Body:       req.Body,
	}
	report := r.Broadcast(req.GroupID, broadcast)
	hctx.Logger.Debug("chat message fanned out",
		slog.Int64("groupID", req.GroupID),
		slog.Int64("messageID", msgID),
		slog.Int("delivered", report.Delivered),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
	)

	if r.completer != nil {
		prompt, triggered := r.trigger.Match(req.Body)
		if !triggered && group != nil && group.Private && r.groups.IsMember(group.ID, r.aiUserID) {
			// A dedicated AI pair group forwards everything.
			prompt, triggered = req.Body, true
		}
		if triggered && sender.ID != r.aiUserID {
			go r.completeIntoGroup(req.GroupID, prompt)
		}
	}
	return nil
}

func (r *Router) handleListUsers(hctx *Context, msg wire.Message) error {
	if !r.requireSession(hctx, wire.KindListUsers) {
		return nil
	}

	online := r.sessions.OnlineUsers()
	users := make([]wire.UserInfo, 0, len(online))
	for _, u := range online {
		users = append(users, wire.UserInfo{ID: u.ID, Name: u.Name, Online: true})
	}
	r.reply(hctx.Conn, &wire.UserList{Envelope: wire.Env(wire.KindUserList), Users: users})
	return nil
}

func (r *Router) handleListGroups(hctx *Context, msg wire.Message) error {
	if !r.requireSession(hctx, wire.KindListGroups) {
		return nil
	}

	toInfo := func(groups []*state.Group) []wire.GroupInfo {
		infos := make([]wire.GroupInfo, 0, len(groups))
		for _, g := range groups {
			infos = append(infos, wire.GroupInfo{
				ID:      g.ID,
				Name:    g.Name,
				Private: g.Private,
				Members: g.MemberCount(),
			})
		}
		return infos
	}

	r.reply(hctx.Conn, &wire.GroupList{
		Envelope: wire.Env(wire.KindGroupList),
		Public:   toInfo(r.groups.PublicGroups()),
		Joined:   toInfo(r.groups.JoinedGroups(hctx.Session.User.ID)),
	})
	return nil
}

func (r *Router) handleAIRequest(hctx *Context, msg wire.Message) error {
	req := msg.(*wire.AIRequest)
	if !r.requireSession(hctx, wire.KindAIRequest) {
		return nil
	}
	if r.completer == nil {
		r.reply(hctx.Conn, wire.NewError(wire.CodeNotFound, "AI bridge is not configured", wire.KindAIRequest))
		return nil
	}

	if req.GroupID != 0 {
		if !r.requireMember(hctx, req.GroupID, wire.KindAIRequest) {
			return nil
		}
		// The reply lands in the group as an ordinary chat message, so the
		// requester sees it through the same broadcast as everyone else.
		go r.completeIntoGroup(req.GroupID, req.Prompt)
		return nil
	}

	connID := hctx.Conn.ID()
	prompt := req.Prompt
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), aiCompleteTimeout)
		defer cancel()

		reply, err := r.completer.Complete(ctx, []ai.Message{{Role: "user", Content: prompt}})
		conn, ok := r.conn(connID)
		if !ok {
			return
		}
		if err != nil {
			r.logger.Warn("AI completion failed", slog.Any("error", err))
			r.reply(conn, wire.NewError(wire.CodeInternal, "AI completion failed", wire.KindAIRequest))
			return
		}
		r.reply(conn, &wire.AIResponse{Envelope: wire.Env(wire.KindAIResponse), Reply: reply})
	}()
	return nil
}

// completeIntoGroup asks the bridge for a reply using recent group history
// as context and re-injects it as an ordinary chat message from the
// reserved AI user.
func (r *Router) completeIntoGroup(groupID int64, prompt string) {
	ctx, cancel := context.WithTimeout(context.Background(), aiCompleteTimeout)
	defer cancel()

	var contextMessages []ai.Message
	if history, err := r.db.History(groupID, 10); err == nil {
		for _, m := range history {
			role := "user"
			if m.SenderID == r.aiUserID {
				role = "assistant"
			}
			contextMessages = append(contextMessages, ai.Message{Role: role, Content: m.Body})
		}
	}
	contextMessages = append(contextMessages, ai.Message{Role: "user", Content: prompt})

	reply, err := r.completer.Complete(ctx, contextMessages)
	if err != nil {
		r.logger.Warn("AI completion failed", slog.Int64("groupID", groupID), slog.Any("error", err))
		return
	}

	if _, err := r.db.AppendMessage(groupID, r.aiUserID, reply); err != nil {
		r.logger.Warn("failed to store AI reply", slog.Any("error", err))
	}
	group, _ := r.groups.Get(groupID)
	groupName := ""
	if group != nil {
		groupName = group.Name
	}
	r.Broadcast(groupID, &wire.ChatBroadcast{
		Envelope:   wire.Env(wire.KindChatBroadcast),
		GroupID:    groupID,
		GroupName:  groupName,
		SenderID:   r.aiUserID,
		SenderName: "ai",
		Body:       reply,
	})
}

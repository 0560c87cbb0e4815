package router

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/yhaddad/go-relay/internal/store"
	"github.com/yhaddad/go-relay/pkg/wire"
)

func (r *Router) handleFileUpload(hctx *Context, msg wire.Message) error {
	req := msg.(*wire.FileUpload)
	if !r.requireSession(hctx, wire.KindFileUpload) {
		return nil
	}
	if !r.requireMember(hctx, req.GroupID, wire.KindFileUpload) {
		return nil
	}

	path, err := r.blobs.Save(req.Data)
	if err != nil {
		r.reply(hctx.Conn, wire.NewError(wire.CodeInternal, "file not stored", wire.KindFileUpload))
		return err
	}
	rec := store.FileRecord{
		ID:       uuid.New().String(),
		GroupID:  req.GroupID,
		SenderID: hctx.Session.User.ID,
		Name:     req.Name,
		Path:     path,
		Size:     int64(len(req.Data)),
	}
	if err := r.db.CreateFileRecord(rec); err != nil {
		r.reply(hctx.Conn, wire.NewError(wire.CodeInternal, "file not stored", wire.KindFileUpload))
		return err
	}

	hctx.Logger.Info("file uploaded",
		slog.String("fileID", rec.ID),
		slog.Int64("groupID", req.GroupID),
		slog.Int64("size", rec.Size),
	)
	r.reply(hctx.Conn, &wire.FileUploadResult{
		Envelope: wire.Env(wire.KindFileUploadResult),
		OK:       true,
		FileID:   rec.ID,
	})

	// Announce the upload to the group so members learn the file id.
	sender := hctx.Session.User
	r.Broadcast(req.GroupID, &wire.ChatBroadcast{
		Envelope:   wire.Env(wire.KindChatBroadcast),
		GroupID:    req.GroupID,
		SenderID:   sender.ID,
		SenderName: sender.Name,
		Body:       "uploaded file " + req.Name + " (" + rec.ID + ")",
	})
	return nil
}

func (r *Router) handleFileDownload(hctx *Context, msg wire.Message) error {
	req := msg.(*wire.FileDownload)
	if !r.requireSession(hctx, wire.KindFileDownload) {
		return nil
	}

	rec, err := r.db.FileRecord(req.FileID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			r.reply(hctx.Conn, wire.NewError(wire.CodeNotFound, "no such file", wire.KindFileDownload))
			return nil
		}
		r.reply(hctx.Conn, wire.NewError(wire.CodeInternal, "file lookup failed", wire.KindFileDownload))
		return err
	}
	// File access is gated by membership in the group it was shared with.
	if !r.requireMember(hctx, rec.GroupID, wire.KindFileDownload) {
		return nil
	}

	data, err := r.blobs.Read(rec.Path)
	if err != nil {
		r.reply(hctx.Conn, wire.NewError(wire.CodeInternal, "file unreadable", wire.KindFileDownload))
		return err
	}

	r.reply(hctx.Conn, &wire.FileChunk{
		Envelope: wire.Env(wire.KindFileChunk),
		FileID:   rec.ID,
		Name:     rec.Name,
		Data:     data,
		Last:     true,
	})
	return nil
}

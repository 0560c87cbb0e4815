package router

import (
	"log/slog"

	"github.com/yhaddad/go-relay/pkg/wire"
)

// streamHistory emits the bounded backlog for a group followed by exactly
// one completion marker. The marker is sent unconditionally, retrieval
// failure included: it is the client's only signal that streaming ended,
// so "no history" and "still loading" stay distinguishable.
func (r *Router) streamHistory(hctx *Context, groupID int64) {
	count := 0

	history, err := r.db.History(groupID, r.historyPage)
	if err != nil {
		hctx.Logger.Warn("history retrieval failed", slog.Int64("groupID", groupID), slog.Any("error", err))
	} else {
		for _, m := range history {
			item := &wire.HistoryItem{
				Envelope:   wire.Env(wire.KindHistoryItem),
				GroupID:    m.GroupID,
				MessageID:  m.ID,
				SenderID:   m.SenderID,
				SenderName: m.SenderName,
				Body:       m.Body,
				SentAt:     m.CreatedAt.UnixMilli(),
			}
			if err := hctx.Conn.SendMessage(item); err != nil {
				hctx.Logger.Warn("history item delivery failed", slog.Int64("groupID", groupID), slog.Any("error", err))
				break
			}
			count++
		}
	}

	r.reply(hctx.Conn, &wire.HistoryComplete{
		Envelope: wire.Env(wire.KindHistoryComplete),
		GroupID:  groupID,
		Count:    count,
	})
}

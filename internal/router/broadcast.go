package router

import (
	"log/slog"

	"github.com/yhaddad/go-relay/pkg/wire"
)

// DeliveryReport summarizes one fan-out: Delivered counts live writes,
// Skipped counts offline members (history covers them), Failed counts
// members whose write failed.
type DeliveryReport struct {
	Delivered int
	Skipped   int
	Failed    int
}

// Broadcast writes a message to every online member of a group. It runs on
// the calling handler's goroutine; per-sender FIFO holds because each
// recipient write goes through that connection's ordered send path. A
// failure for one recipient never blocks delivery to the rest.
func (r *Router) Broadcast(groupID int64, msg wire.Message) DeliveryReport {
	var report DeliveryReport

	members, err := r.groups.Members(groupID)
	if err != nil {
		r.logger.Warn("broadcast to unknown group", slog.Int64("groupID", groupID), slog.Any("error", err))
		return report
	}

	for _, userID := range members {
		session, online := r.sessions.ByUser(userID)
		if !online {
			report.Skipped++
			continue
		}
		if err := session.Conn.SendMessage(msg); err != nil {
			report.Failed++
			r.logger.Warn("broadcast delivery failed",
				slog.Int64("groupID", groupID),
				slog.Int64("userID", userID),
				slog.Any("error", err),
			)
			continue
		}
		report.Delivered++
	}

	return report
}

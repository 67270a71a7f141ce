package messaging

import (
	"context"

	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/telegraph"
)

// MessageEvent describes a newly appended message.
func MessageEvent(msg *models.Message) telegraph.Event {
	return telegraph.Event{
		Type:      telegraph.EventMessageCreated,
		SessionID: msg.SessionID,
		ActorID:   msg.SenderID,
		Message:   msg,
		At:        msg.SentAt,
	}
}

// Notify announces msg. Best-effort: notifiers log their own failures.
func Notify(ctx context.Context, n telegraph.Notifier, msg *models.Message) {
	if n == nil || msg == nil {
		return
	}
	n.Notify(ctx, MessageEvent(msg))
}

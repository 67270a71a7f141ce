// Package telegraph delivers switchboard events to interested parties: the
// in-process SSE broker, Redis subscribers and agent team chat channels.
//
// Delivery is best-effort. A Notifier never fails the operation that
// produced the event.
package telegraph

import (
	"context"
	"log/slog"
	"time"

	"github.com/zulandar/switchboard/internal/models"
)

// Event types.
const (
	EventSessionCreated  = "session.created"
	EventSessionAssigned = "session.assigned"
	EventSessionReleased = "session.released"
	EventSessionClosed   = "session.closed"
	EventMessageCreated  = "message.created"
	EventAgentStatus     = "agent.status"
)

// Event is a state change worth telling someone about.
type Event struct {
	Type        string              `json:"type"`
	SessionID   string              `json:"session_id,omitempty"`
	RequesterID string              `json:"requester_id,omitempty"`
	AgentID     string              `json:"agent_id,omitempty"`
	ActorID     string              `json:"actor_id,omitempty"`
	Message     *models.Message     `json:"message,omitempty"`
	Agent       *models.AgentStatus `json:"agent,omitempty"`
	At          time.Time           `json:"at"`
}

// SessionEvent builds an event describing sess.
func SessionEvent(eventType string, sess *models.ChatSession, actorID string) Event {
	return Event{
		Type:        eventType,
		SessionID:   sess.ID,
		RequesterID: sess.RequesterID,
		AgentID:     sess.AgentID(),
		ActorID:     actorID,
		At:          time.Now(),
	}
}

// Notifier receives events.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// Nop discards every event.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, Event) {}

// Multi fans an event out to every notifier in order.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, e Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, e)
		}
	}
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, e Event)

// Notify implements Notifier.
func (f Func) Notify(ctx context.Context, e Event) { f(ctx, e) }

// Logger records each event at debug level.
type Logger struct {
	Log *slog.Logger
}

// Notify implements Notifier.
func (l Logger) Notify(_ context.Context, e Event) {
	log := l.Log
	if log == nil {
		log = slog.Default()
	}
	log.Debug("event",
		"type", e.Type,
		"session_id", e.SessionID,
		"agent_id", e.AgentID,
		"actor_id", e.ActorID,
	)
}

package telegraph

import (
	"context"
	"fmt"
	"log/slog"
)

// sinkQueue is how many chat notifications may wait for delivery before
// new ones are dropped.
const sinkQueue = 256

// ChatSink posts queue events to an agent team channel. Notify only
// enqueues; Run does the delivery so a slow chat API never holds up a claim
// or a close.
type ChatSink struct {
	adapter   Adapter
	channelID string
	types     map[string]bool
	events    chan Event
	log       *slog.Logger
}

// ChatSinkOpts holds parameters for creating a ChatSink.
type ChatSinkOpts struct {
	Adapter   Adapter
	ChannelID string   // defaults to the adapter's channel
	Types     []string // event types to post; defaults to DefaultChatTypes
	Logger    *slog.Logger
}

// DefaultChatTypes are the events an agent team cares about.
var DefaultChatTypes = []string{
	EventSessionCreated,
	EventSessionAssigned,
	EventSessionReleased,
	EventSessionClosed,
}

// NewChatSink creates a ChatSink with the given options.
func NewChatSink(opts ChatSinkOpts) (*ChatSink, error) {
	if opts.Adapter == nil {
		return nil, fmt.Errorf("telegraph: adapter is required")
	}
	types := opts.Types
	if len(types) == 0 {
		types = DefaultChatTypes
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &ChatSink{
		adapter:   opts.Adapter,
		channelID: opts.ChannelID,
		types:     make(map[string]bool, len(types)),
		events:    make(chan Event, sinkQueue),
		log:       log,
	}
	for _, t := range types {
		s.types[t] = true
	}
	return s, nil
}

// Notify implements Notifier. Events of uninteresting types are ignored;
// events arriving while the queue is full are dropped and logged.
func (s *ChatSink) Notify(_ context.Context, e Event) {
	if !s.types[e.Type] {
		return
	}
	select {
	case s.events <- e:
	default:
		s.log.Warn("telegraph: chat queue full, dropping event", "type", e.Type, "session_id", e.SessionID)
	}
}

// Run connects the adapter and delivers queued events until ctx is
// cancelled. On shutdown it closes the adapter.
func (s *ChatSink) Run(ctx context.Context) error {
	if err := s.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("telegraph: connect: %w", err)
	}
	defer s.adapter.Close()
	s.log.Info("telegraph: chat sink connected", "channel", s.channelID)

	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-s.events:
			s.deliver(ctx, e)
		}
	}
}

func (s *ChatSink) deliver(ctx context.Context, e Event) {
	fe := FormatEvent(e)
	msg := OutboundMessage{
		ChannelID: s.channelID,
		Text:      fe.Title,
		Events:    []FormattedEvent{fe},
	}
	if err := s.adapter.Send(ctx, msg); err != nil {
		s.log.Warn("telegraph: send", "type", e.Type, "session_id", e.SessionID, "error", err)
	}
}

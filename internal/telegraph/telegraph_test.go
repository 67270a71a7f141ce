package telegraph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zulandar/switchboard/internal/models"
)

func waitingSession() *models.ChatSession {
	return &models.ChatSession{ID: "3f2a9c1e-1111-2222-3333-444455556666", RequesterID: "req-1", Status: models.SessionWaiting}
}

// --- Notifier composition ---

func TestSessionEvent(t *testing.T) {
	agent := "alice"
	sess := waitingSession()
	sess.AssignedAgentID = &agent
	e := SessionEvent(EventSessionAssigned, sess, "sweeper")
	if e.SessionID != sess.ID || e.RequesterID != "req-1" || e.AgentID != "alice" || e.ActorID != "sweeper" {
		t.Errorf("event = %+v", e)
	}
	if e.At.IsZero() {
		t.Error("At not stamped")
	}
}

func TestMulti_FansOutInOrder(t *testing.T) {
	var got []string
	record := func(name string) Notifier {
		return Func(func(_ context.Context, e Event) { got = append(got, name+":"+e.Type) })
	}
	m := Multi{record("a"), nil, Nop{}, record("b")}
	m.Notify(context.Background(), Event{Type: EventSessionClosed})

	want := []string{"a:session.closed", "b:session.closed"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestLogger_NilLoggerUsesDefault(t *testing.T) {
	// Must not panic.
	Logger{}.Notify(context.Background(), Event{Type: EventSessionCreated})
}

// --- Broker ---

func TestBroker_DeliversToSubscribers(t *testing.T) {
	b := NewBroker()
	all, cancelAll := b.Subscribe(nil)
	defer cancelAll()
	one, cancelOne := b.Subscribe(SessionFilter("s1"))
	defer cancelOne()

	b.Notify(context.Background(), Event{Type: EventMessageCreated, SessionID: "s2"})
	b.Notify(context.Background(), Event{Type: EventMessageCreated, SessionID: "s1"})

	if e := <-all; e.SessionID != "s2" {
		t.Errorf("all[0] = %q, want s2", e.SessionID)
	}
	if e := <-all; e.SessionID != "s1" {
		t.Errorf("all[1] = %q, want s1", e.SessionID)
	}
	select {
	case e := <-one:
		if e.SessionID != "s1" {
			t.Errorf("filtered subscriber got %q", e.SessionID)
		}
	default:
		t.Fatal("filtered subscriber received nothing")
	}
	select {
	case e := <-one:
		t.Errorf("filtered subscriber got extra event %+v", e)
	default:
	}
}

func TestBroker_CancelClosesChannel(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe(nil)
	if b.Subscribers() != 1 {
		t.Fatalf("subscribers = %d", b.Subscribers())
	}
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Error("channel still open after cancel")
	}
	if b.Subscribers() != 0 {
		t.Errorf("subscribers = %d after cancel", b.Subscribers())
	}
}

func TestBroker_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroker()
	_, cancel := b.Subscribe(nil)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			b.Notify(context.Background(), Event{Type: EventMessageCreated})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked on a full subscriber")
	}
}

func TestBroker_Close(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe(nil)
	b.Close()
	if _, ok := <-ch; ok {
		t.Error("channel open after Close")
	}
	cancel() // must not double close

	late, _ := b.Subscribe(nil)
	if _, ok := <-late; ok {
		t.Error("subscription after Close should be closed")
	}
}

// --- RedisPublisher ---

type mockPublisher struct {
	mu        sync.Mutex
	published map[string][]string
	err       error
	closed    bool
}

func (m *mockPublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	cmd := redis.NewIntCmd(ctx, "publish", channel, message)
	if m.err != nil {
		cmd.SetErr(m.err)
		return cmd
	}
	if m.published == nil {
		m.published = make(map[string][]string)
	}
	m.published[channel] = append(m.published[channel], string(message.([]byte)))
	cmd.SetVal(1)
	return cmd
}

func (m *mockPublisher) Close() error {
	m.closed = true
	return nil
}

func TestNewRedisPublisher_Validation(t *testing.T) {
	if _, err := NewRedisPublisher(context.Background(), RedisOpts{URL: "redis://localhost:6379"}); err == nil {
		t.Error("expected error for missing prefix")
	}
	if _, err := NewRedisPublisher(context.Background(), RedisOpts{Prefix: "sb"}); err == nil {
		t.Error("expected error for missing url")
	}
	if _, err := NewRedisPublisher(context.Background(), RedisOpts{Prefix: "sb", URL: "not a url"}); err == nil {
		t.Error("expected error for bad url")
	}
}

func TestRedisPublisher_PublishesToBothChannels(t *testing.T) {
	mock := &mockPublisher{}
	p, err := NewRedisPublisher(context.Background(), RedisOpts{Prefix: "sb", Client: mock})
	if err != nil {
		t.Fatalf("NewRedisPublisher: %v", err)
	}

	p.Notify(context.Background(), Event{Type: EventSessionAssigned, SessionID: "s1", AgentID: "alice"})
	p.Notify(context.Background(), Event{Type: EventAgentStatus, AgentID: "bob"})

	if n := len(mock.published["sb:events"]); n != 2 {
		t.Fatalf("sb:events got %d, want 2", n)
	}
	if n := len(mock.published["sb:session:s1"]); n != 1 {
		t.Fatalf("sb:session:s1 got %d, want 1", n)
	}

	var decoded Event
	if err := json.Unmarshal([]byte(mock.published["sb:session:s1"][0]), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Type != EventSessionAssigned || decoded.AgentID != "alice" {
		t.Errorf("decoded = %+v", decoded)
	}

	if err := p.Close(); err != nil || !mock.closed {
		t.Errorf("Close = %v, closed = %v", err, mock.closed)
	}
}

func TestRedisPublisher_ErrorsAreSwallowed(t *testing.T) {
	mock := &mockPublisher{err: fmt.Errorf("connection refused")}
	p, _ := NewRedisPublisher(context.Background(), RedisOpts{Prefix: "sb", Client: mock})
	// Must not panic or block.
	p.Notify(context.Background(), Event{Type: EventSessionClosed, SessionID: "s1"})
}

// --- ChatSink ---

func TestNewChatSink_RequiresAdapter(t *testing.T) {
	if _, err := NewChatSink(ChatSinkOpts{}); err == nil {
		t.Fatal("expected error for missing adapter")
	}
}

func TestChatSink_DeliversQueueEvents(t *testing.T) {
	adapter := NewMockAdapter()
	sink, err := NewChatSink(ChatSinkOpts{Adapter: adapter, ChannelID: "C1"})
	if err != nil {
		t.Fatalf("NewChatSink: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sink.Run(ctx) }()

	sink.Notify(ctx, Event{Type: EventMessageCreated, SessionID: "s1"}) // filtered
	sink.Notify(ctx, SessionEvent(EventSessionCreated, waitingSession(), "req-1"))

	select {
	case <-adapter.Sent():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for chat delivery")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	if adapter.SentCount() != 1 {
		t.Fatalf("sent = %d, want 1", adapter.SentCount())
	}
	msg, _ := adapter.LastSent()
	if msg.ChannelID != "C1" {
		t.Errorf("channel = %q", msg.ChannelID)
	}
	if !strings.Contains(msg.Text, "3f2a9c1e is waiting") {
		t.Errorf("text = %q", msg.Text)
	}
	if !adapter.Closed() {
		t.Error("adapter not closed on shutdown")
	}
}

func TestChatSink_SendErrorKeepsRunning(t *testing.T) {
	adapter := NewMockAdapter()
	adapter.SetSendError(fmt.Errorf("slack down"))
	sink, _ := NewChatSink(ChatSinkOpts{Adapter: adapter})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	sink.Notify(ctx, Event{Type: EventSessionClosed, SessionID: "s1"})
	if err := sink.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if adapter.SentCount() != 0 {
		t.Errorf("sent = %d, want 0", adapter.SentCount())
	}
}

func TestChatSink_ConnectError(t *testing.T) {
	adapter := NewMockAdapter()
	adapter.Close()
	sink, _ := NewChatSink(ChatSinkOpts{Adapter: adapter})
	if err := sink.Run(context.Background()); err == nil {
		t.Fatal("expected connect error")
	}
}

func TestChatSink_CustomTypes(t *testing.T) {
	adapter := NewMockAdapter()
	sink, _ := NewChatSink(ChatSinkOpts{Adapter: adapter, Types: []string{EventAgentStatus}})
	sink.Notify(context.Background(), Event{Type: EventSessionCreated})
	sink.Notify(context.Background(), Event{Type: EventAgentStatus, AgentID: "alice"})
	if n := len(sink.events); n != 1 {
		t.Errorf("queued = %d, want 1", n)
	}
}

package api

import (
	"fmt"
	"net/http"
	"slices"
	"strings"
	"testing"

	"github.com/zulandar/switchboard/internal/agent"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/telegraph"
)

// openSession creates a session for requester and returns its id.
func (s *testServer) openSession(requester string) string {
	s.t.Helper()
	w := s.do(http.MethodPost, "/sessions", nil, as(requester))
	if w.Code != http.StatusCreated {
		s.t.Fatalf("open session for %s: %d %s", requester, w.Code, w.Body.String())
	}
	return decode[models.ChatSession](s.t, w).ID
}

// onlineAgent has a supervisor register an online agent through the API.
func (s *testServer) onlineAgent(id string, max int) {
	s.t.Helper()
	body := map[string]any{"presence": models.PresenceOnline, "max_concurrent": max, "auto_assign": true}
	w := s.do(http.MethodPut, "/agents/"+id+"/status", body, asAdmin("sup"))
	if w.Code != http.StatusOK {
		s.t.Fatalf("set status %s: %d %s", id, w.Code, w.Body.String())
	}
}

// claim has agent claim the session and fails the test unless it succeeds.
func (s *testServer) claim(sessionID, agentID string) {
	s.t.Helper()
	w := s.do(http.MethodPost, "/sessions/"+sessionID+"/claim", nil, as(agentID))
	if w.Code != http.StatusOK {
		s.t.Fatalf("claim %s by %s: %d %s", sessionID, agentID, w.Code, w.Body.String())
	}
}

func TestCreateSession(t *testing.T) {
	s := newTestServer(t, "")
	w := s.do(http.MethodPost, "/sessions", map[string]string{"requester_id": "alice"}, as("alice"))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	sess := decode[models.ChatSession](t, w)
	if sess.ID == "" || sess.Status != models.SessionWaiting || sess.RequesterID != "alice" {
		t.Errorf("session = %+v", sess)
	}
	if got := s.eventTypes(); !slices.Equal(got, []string{telegraph.EventSessionCreated}) {
		t.Errorf("events = %v", got)
	}
	if n := s.triggers.Load(); n != 1 {
		t.Errorf("triggers = %d, want 1", n)
	}

	// A second request names the open session.
	w = s.do(http.MethodPost, "/sessions", nil, as("alice"))
	resp := expectError(t, w, http.StatusConflict, CodeSessionAlreadyOpen)
	if resp.SessionID != sess.ID {
		t.Errorf("session_id = %q, want %q", resp.SessionID, sess.ID)
	}
}

func TestCreateSession_Validation(t *testing.T) {
	s := newTestServer(t, "")
	w := s.do(http.MethodPost, "/sessions", `{"requester_id":`, as("alice"))
	expectError(t, w, http.StatusBadRequest, CodeInvalidRequest)

	long := strings.Repeat("x", 65)
	w = s.do(http.MethodPost, "/sessions", map[string]string{"requester_id": long}, asAdmin("sup"))
	resp := expectError(t, w, http.StatusBadRequest, CodeInvalidRequest)
	if !strings.Contains(resp.Message, "requester_id must be at most 64") {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestGetSession(t *testing.T) {
	s := newTestServer(t, "")
	s.onlineAgent("a1", 2)
	id := s.openSession("alice")
	s.claim(id, "a1")

	w := s.do(http.MethodGet, "/sessions/"+id, nil, as("alice"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	sess := decode[models.ChatSession](t, w)
	if sess.Status != models.SessionActive || sess.AgentID() != "a1" {
		t.Errorf("session = %+v", sess)
	}
	if len(sess.Participants) != 2 {
		t.Errorf("participants = %d, want 2", len(sess.Participants))
	}

	expectError(t, s.do(http.MethodGet, "/sessions/"+id, nil, as("mallory")), http.StatusForbidden, CodeAccessDenied)
	if w := s.do(http.MethodGet, "/sessions/"+id, nil, asAdmin("sup")); w.Code != http.StatusOK {
		t.Errorf("admin status = %d", w.Code)
	}
	expectError(t, s.do(http.MethodGet, "/sessions/missing", nil, asAdmin("sup")), http.StatusNotFound, CodeNotFound)
}

func TestListSessions_Visibility(t *testing.T) {
	s := newTestServer(t, "")
	s.onlineAgent("a1", 2)
	s.openSession("alice")
	s.openSession("bob")

	w := s.do(http.MethodGet, "/sessions?requester_id=bob", nil, as("alice"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	own := decode[[]models.ChatSession](t, w)
	if len(own) != 1 || own[0].RequesterID != "alice" {
		t.Errorf("requester sees %+v, want only alice's session", own)
	}

	queue := decode[[]models.ChatSession](t, s.do(http.MethodGet, "/sessions?status=waiting", nil, as("a1")))
	if len(queue) != 2 {
		t.Errorf("agent sees %d waiting, want 2", len(queue))
	}

	limited := decode[[]models.ChatSession](t, s.do(http.MethodGet, "/sessions?limit=1", nil, asAdmin("sup")))
	if len(limited) != 1 {
		t.Errorf("limit=1 returned %+v", limited)
	}

	expectError(t, s.do(http.MethodGet, "/sessions?status=pending", nil, asAdmin("sup")), http.StatusBadRequest, CodeInvalidRequest)
	expectError(t, s.do(http.MethodGet, "/sessions?limit=ten", nil, asAdmin("sup")), http.StatusBadRequest, CodeInvalidRequest)
}

func TestClaimSession(t *testing.T) {
	s := newTestServer(t, "")
	s.onlineAgent("a1", 1)
	s.onlineAgent("a2", 1)
	id := s.openSession("alice")

	w := s.do(http.MethodPost, "/sessions/"+id+"/claim", map[string]string{"agent_id": "a1"}, as("a1"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	sess := decode[models.ChatSession](t, w)
	if sess.Status != models.SessionActive || sess.AgentID() != "a1" {
		t.Errorf("session = %+v", sess)
	}

	w = s.do(http.MethodPost, "/sessions/"+id+"/claim", nil, as("a2"))
	expectError(t, w, http.StatusConflict, CodeAlreadyClaimed)

	// a1 is full.
	other := s.openSession("bob")
	w = s.do(http.MethodPost, "/sessions/"+other+"/claim", nil, as("a1"))
	expectError(t, w, http.StatusTooManyRequests, CodeCapacityExceeded)

	w = s.do(http.MethodPost, "/sessions/"+other+"/claim", nil, as("ghost"))
	expectError(t, w, http.StatusNotFound, CodeUnknownAgent)

	w = s.do(http.MethodPost, "/sessions/missing/claim", nil, as("a2"))
	expectError(t, w, http.StatusNotFound, CodeNotFound)

	// Agents cannot claim on each other's behalf; supervisors can.
	w = s.do(http.MethodPost, "/sessions/"+other+"/claim", map[string]string{"agent_id": "a2"}, as("a1"))
	expectError(t, w, http.StatusForbidden, CodeAccessDenied)
	w = s.do(http.MethodPost, "/sessions/"+other+"/claim", map[string]string{"agent_id": "a2"}, asAdmin("sup"))
	if w.Code != http.StatusOK {
		t.Errorf("supervisor assign: status = %d (%s)", w.Code, w.Body.String())
	}

	s.onlineAgent("a3", 2)
	own := s.openSession("a3")
	w = s.do(http.MethodPost, "/sessions/"+own+"/claim", nil, as("a3"))
	expectError(t, w, http.StatusConflict, CodeSelfAssignment)
}

func TestReleaseSession(t *testing.T) {
	s := newTestServer(t, "")
	s.onlineAgent("a1", 1)
	id := s.openSession("alice")

	expectError(t, s.do(http.MethodPost, "/sessions/"+id+"/release", nil, as("a1")), http.StatusForbidden, CodeAccessDenied)
	expectError(t, s.do(http.MethodPost, "/sessions/"+id+"/release", nil, asAdmin("sup")), http.StatusConflict, CodeSessionNotActive)

	s.claim(id, "a1")
	expectError(t, s.do(http.MethodPost, "/sessions/"+id+"/release", nil, as("alice")), http.StatusForbidden, CodeAccessDenied)

	before := s.triggers.Load()
	w := s.do(http.MethodPost, "/sessions/"+id+"/release", nil, as("a1"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	sess := decode[models.ChatSession](t, w)
	if sess.Status != models.SessionWaiting || sess.AssignedAgentID != nil {
		t.Errorf("session = %+v", sess)
	}
	if s.triggers.Load() != before+1 {
		t.Error("release did not trigger a sweep")
	}
	st, _ := agent.Get(s.db, "a1")
	if st.CurrentSessionCount != 0 {
		t.Errorf("a1 load = %d, want 0", st.CurrentSessionCount)
	}
}

func TestCloseSession(t *testing.T) {
	s := newTestServer(t, "")
	s.onlineAgent("a1", 1)
	id := s.openSession("alice")
	s.claim(id, "a1")

	expectError(t, s.do(http.MethodPost, "/sessions/"+id+"/close", nil, as("mallory")), http.StatusForbidden, CodeAccessDenied)

	w := s.do(http.MethodPost, "/sessions/"+id+"/close", map[string]string{"actor_id": "alice"}, as("alice"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	sess := decode[models.ChatSession](t, w)
	if sess.Status != models.SessionClosed || sess.ClosedBy != "alice" {
		t.Errorf("session = %+v", sess)
	}

	expectError(t, s.do(http.MethodPost, "/sessions/"+id+"/close", nil, as("a1")), http.StatusConflict, CodeAlreadyClosed)

	st, _ := agent.Get(s.db, "a1")
	if st.CurrentSessionCount != 0 {
		t.Errorf("a1 load = %d, want 0", st.CurrentSessionCount)
	}

	// The requester may open a new session once the old one is closed.
	s.openSession("alice")

	want := []string{
		telegraph.EventAgentStatus,
		telegraph.EventSessionCreated,
		telegraph.EventSessionAssigned,
		telegraph.EventSessionClosed,
		telegraph.EventSessionCreated,
	}
	if got := s.eventTypes(); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestMessages(t *testing.T) {
	s := newTestServer(t, "")
	s.onlineAgent("a1", 1)
	id := s.openSession("alice")
	path := "/sessions/" + id + "/messages"

	w := s.do(http.MethodPost, path, map[string]string{"body": "hello?"}, as("alice"))
	expectError(t, w, http.StatusConflict, CodeSessionNotActive)

	s.claim(id, "a1")
	for i, sender := range []string{"alice", "a1", "alice"} {
		w := s.do(http.MethodPost, path, map[string]string{"sender_id": sender, "body": fmt.Sprintf("line %d", i+1)}, as(sender))
		if w.Code != http.StatusCreated {
			t.Fatalf("append %d: status = %d (%s)", i, w.Code, w.Body.String())
		}
		msg := decode[models.Message](t, w)
		if msg.SequenceNo != int64(i+1) || msg.SenderID != sender {
			t.Errorf("message %d = %+v", i, msg)
		}
	}

	expectError(t, s.do(http.MethodPost, path, map[string]string{"body": "let me in"}, as("mallory")), http.StatusForbidden, CodeAccessDenied)
	expectError(t, s.do(http.MethodPost, path, map[string]string{"body": "   "}, as("alice")), http.StatusBadRequest, CodeInvalidBody)
	expectError(t, s.do(http.MethodPost, path, map[string]string{"body": strings.Repeat("é", 21)}, as("alice")), http.StatusBadRequest, CodeInvalidBody)

	all := decode[[]models.Message](t, s.do(http.MethodGet, path, nil, as("a1")))
	if len(all) != 3 {
		t.Fatalf("messages = %d, want 3", len(all))
	}
	for i, m := range all {
		if m.SequenceNo != int64(i+1) {
			t.Errorf("message %d has sequence %d", i, m.SequenceNo)
		}
	}

	page := decode[[]models.Message](t, s.do(http.MethodGet, path+"?after=1&limit=1", nil, as("alice")))
	if len(page) != 1 || page[0].SequenceNo != 2 {
		t.Errorf("page = %+v, want sequence 2 only", page)
	}

	expectError(t, s.do(http.MethodGet, path, nil, as("mallory")), http.StatusForbidden, CodeAccessDenied)
	expectError(t, s.do(http.MethodGet, path+"?after=x", nil, as("alice")), http.StatusBadRequest, CodeInvalidRequest)
	expectError(t, s.do(http.MethodGet, "/sessions/missing/messages", nil, as("alice")), http.StatusNotFound, CodeNotFound)

	// History stays readable after close; writes stop.
	s.do(http.MethodPost, "/sessions/"+id+"/close", nil, as("alice"))
	if got := decode[[]models.Message](t, s.do(http.MethodGet, path, nil, as("alice"))); len(got) != 3 {
		t.Errorf("messages after close = %d, want 3", len(got))
	}
	expectError(t, s.do(http.MethodPost, path, map[string]string{"body": "still there?"}, as("alice")), http.StatusConflict, CodeSessionNotActive)

	var created int
	for _, typ := range s.eventTypes() {
		if typ == telegraph.EventMessageCreated {
			created++
		}
	}
	if created != 3 {
		t.Errorf("message events = %d, want 3", created)
	}
}

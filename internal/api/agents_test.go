package api

import (
	"errors"
	"net/http"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/zulandar/switchboard/internal/access"
	"github.com/zulandar/switchboard/internal/agent"
	"github.com/zulandar/switchboard/internal/models"
)

func TestSetAgentStatus(t *testing.T) {
	s := newTestServer(t, "")

	body := map[string]any{"presence": models.PresenceOnline, "max_concurrent": 3, "auto_assign": true}
	w := s.do(http.MethodPut, "/agents/a1/status", body, asAdmin("sup"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	st := decode[models.AgentStatus](t, w)
	if st.AgentID != "a1" || st.Presence != models.PresenceOnline || st.MaxConcurrentSessions != 3 || !st.AutoAssign {
		t.Errorf("status = %+v", st)
	}
	if s.triggers.Load() != 1 {
		t.Errorf("triggers = %d, want 1", s.triggers.Load())
	}

	// The agent updates its own row from here on.
	// Omitting auto_assign keeps the current setting.
	w = s.do(http.MethodPut, "/agents/a1/status", map[string]any{"presence": models.PresenceBusy, "max_concurrent": 2}, as("a1"))
	st = decode[models.AgentStatus](t, w)
	if st.Presence != models.PresenceBusy || st.MaxConcurrentSessions != 2 || !st.AutoAssign {
		t.Errorf("status after partial update = %+v", st)
	}

	w = s.do(http.MethodPut, "/agents/a1/status", map[string]any{"presence": models.PresenceOnline, "max_concurrent": 2, "auto_assign": false}, as("a1"))
	if st = decode[models.AgentStatus](t, w); st.AutoAssign {
		t.Error("auto_assign not cleared")
	}
}

func TestSetAgentStatus_Validation(t *testing.T) {
	s := newTestServer(t, "")
	tests := []struct {
		name string
		body map[string]any
		want string
	}{
		{"bad presence", map[string]any{"presence": "away", "max_concurrent": 1}, "presence must be online, offline or busy"},
		{"missing presence", map[string]any{"max_concurrent": 1}, "presence is required"},
		{"zero capacity", map[string]any{"presence": "online", "max_concurrent": 0}, "max_concurrent is required"},
		{"negative capacity", map[string]any{"presence": "online", "max_concurrent": -1}, "max_concurrent must be at least 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPut, "/agents/a1/status", tt.body, as("a1"))
			resp := expectError(t, w, http.StatusBadRequest, CodeInvalidRequest)
			if !strings.Contains(resp.Message, tt.want) {
				t.Errorf("message = %q, want to contain %q", resp.Message, tt.want)
			}
		})
	}
}

func TestSetAgentStatus_OnlySelfOrSupervisor(t *testing.T) {
	s := newTestServer(t, "")
	body := map[string]any{"presence": models.PresenceOffline, "max_concurrent": 1}

	expectError(t, s.do(http.MethodPut, "/agents/a1/status", body, as("a2")), http.StatusForbidden, CodeAccessDenied)

	w := s.do(http.MethodPut, "/agents/a1/status", body, asAdmin("sup"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	if st := decode[models.AgentStatus](t, w); st.AgentID != "a1" {
		t.Errorf("agent_id = %q, want a1", st.AgentID)
	}
}

func TestSetAgentStatus_RegistrationNeedsPrivilege(t *testing.T) {
	const secret = "s3cret"
	s := newTestServer(t, secret)
	bearer := func(actor access.Actor) map[string]string {
		token, err := IssueToken(secret, actor, time.Hour)
		if err != nil {
			t.Fatalf("IssueToken: %v", err)
		}
		return map[string]string{"Authorization": "Bearer " + token}
	}
	bob := bearer(access.Actor{ID: "bob"})
	mallory := bearer(access.Actor{ID: "mallory"})
	sup := bearer(access.Actor{ID: "sup", Role: "admin"})

	w := s.do(http.MethodPost, "/sessions", nil, bob)
	if w.Code != http.StatusCreated {
		t.Fatalf("open: %d (%s)", w.Code, w.Body.String())
	}
	id := decode[models.ChatSession](t, w).ID

	expectError(t, s.do(http.MethodGet, "/sessions/"+id, nil, mallory), http.StatusForbidden, CodeAccessDenied)

	body := map[string]any{"presence": models.PresenceOnline, "max_concurrent": 5, "auto_assign": true}
	expectError(t, s.do(http.MethodPut, "/agents/mallory/status", body, mallory), http.StatusForbidden, CodeAccessDenied)
	if _, err := agent.Get(s.db, "mallory"); !errors.Is(err, models.ErrUnknownAgent) {
		t.Fatalf("mallory registered: err = %v", err)
	}

	expectError(t, s.do(http.MethodPost, "/sessions/"+id+"/claim", nil, mallory), http.StatusNotFound, CodeUnknownAgent)
	expectError(t, s.do(http.MethodGet, "/sessions/"+id+"/messages", nil, mallory), http.StatusForbidden, CodeAccessDenied)

	// A supervisor registers the agent; the agent then manages its own row.
	if w := s.do(http.MethodPut, "/agents/a1/status", body, sup); w.Code != http.StatusOK {
		t.Fatalf("register a1: %d (%s)", w.Code, w.Body.String())
	}
	body["presence"] = models.PresenceBusy
	w = s.do(http.MethodPut, "/agents/a1/status", body, bearer(access.Actor{ID: "a1"}))
	if w.Code != http.StatusOK {
		t.Fatalf("self update: %d (%s)", w.Code, w.Body.String())
	}
	if st := decode[models.AgentStatus](t, w); st.Presence != models.PresenceBusy {
		t.Errorf("presence = %q, want busy", st.Presence)
	}
}

func TestSetAgentStatus_CapacityBelowLoad(t *testing.T) {
	s := newTestServer(t, "")
	s.onlineAgent("a1", 2)
	s.claim(s.openSession("alice"), "a1")
	s.claim(s.openSession("bob"), "a1")

	body := map[string]any{"presence": models.PresenceOnline, "max_concurrent": 1}
	expectError(t, s.do(http.MethodPut, "/agents/a1/status", body, as("a1")), http.StatusConflict, CodeCapacityBelowLoad)

	st, err := agent.Get(s.db, "a1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if st.MaxConcurrentSessions != 2 || st.CurrentSessionCount != 2 {
		t.Errorf("status = %+v, want unchanged 2/2", st)
	}
}

func TestListAgents(t *testing.T) {
	s := newTestServer(t, "")
	s.onlineAgent("bob", 2)
	s.onlineAgent("alice", 2)
	s.do(http.MethodPut, "/agents/carol/status", map[string]any{"presence": models.PresenceOffline, "max_concurrent": 1}, asAdmin("sup"))

	agents := decode[[]models.AgentStatus](t, s.do(http.MethodGet, "/agents", nil, nil))
	var ids []string
	for _, a := range agents {
		ids = append(ids, a.AgentID)
	}
	if !slices.Equal(ids, []string{"alice", "bob", "carol"}) {
		t.Errorf("agents = %v", ids)
	}
}

func TestEligibleAgents(t *testing.T) {
	s := newTestServer(t, "")

	got := decode[map[string][]string](t, s.do(http.MethodGet, "/agents/eligible", nil, nil))
	if ids, ok := got["agent_ids"]; !ok || len(ids) != 0 {
		t.Errorf("empty roster = %v, want empty agent_ids", got)
	}

	s.onlineAgent("bob", 2)
	s.onlineAgent("alice", 1)
	s.onlineAgent("carol", 2)
	s.claim(s.openSession("req-1"), "bob")
	s.claim(s.openSession("req-2"), "alice")

	got = decode[map[string][]string](t, s.do(http.MethodGet, "/agents/eligible", nil, nil))
	// alice is full; carol has the lightest load.
	if !slices.Equal(got["agent_ids"], []string{"carol", "bob"}) {
		t.Errorf("eligible = %v, want [carol bob]", got["agent_ids"])
	}
}

package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/zulandar/switchboard/internal/api"
	"github.com/zulandar/switchboard/internal/config"
)

// openedID extracts the session id from "Opened session <id> for <requester>".
func openedID(t *testing.T, out string) string {
	t.Helper()
	fields := strings.Fields(out)
	if len(fields) < 3 || fields[0] != "Opened" {
		t.Fatalf("unexpected open output: %q", out)
	}
	return fields[2]
}

func TestSessionWorkflow(t *testing.T) {
	cfg := writeConfig(t, "")
	mustRun(t, "db", "init", "--config", cfg)

	id := openedID(t, mustRun(t, "session", "open", "alice", "--config", cfg))

	if _, err := run(t, "session", "open", "alice", "--config", cfg); err == nil || !strings.Contains(err.Error(), id) {
		t.Errorf("second open: err = %v, want it to name %s", err, id)
	}

	out := mustRun(t, "session", "list", "--status", "waiting", "--config", cfg)
	if !strings.Contains(out, id) || !strings.Contains(out, "waiting") {
		t.Errorf("list = %s", out)
	}

	out = mustRun(t, "session", "claim", id, "--agent", "a1", "--config", cfg)
	if !strings.Contains(out, "claimed by a1") {
		t.Errorf("claim = %s", out)
	}
	if _, err := run(t, "session", "claim", id, "--agent", "a1", "--config", cfg); err == nil {
		t.Error("expected second claim to fail")
	}

	mustRun(t, "message", "send", id, "--as", "alice", "--body", "my order is late", "--config", cfg)
	out = mustRun(t, "message", "send", id, "--as", "a1", "--body", "looking into it", "--config", cfg)
	if !strings.Contains(out, "#2") {
		t.Errorf("send = %s", out)
	}
	if _, err := run(t, "message", "send", id, "--as", "mallory", "--body", "hi", "--config", cfg); err == nil {
		t.Error("expected outsider send to fail")
	}

	out = mustRun(t, "message", "list", id, "--as", "a1", "--config", cfg)
	if !strings.Contains(out, "#1") || !strings.Contains(out, "alice: my order is late") || !strings.Contains(out, "a1: looking into it") {
		t.Errorf("message list = %s", out)
	}
	out = mustRun(t, "message", "list", id, "--as", "alice", "--after", "1", "--config", cfg)
	if strings.Contains(out, "#1 ") || !strings.Contains(out, "#2") {
		t.Errorf("message list --after 1 = %s", out)
	}
	if _, err := run(t, "message", "list", id, "--as", "mallory", "--config", cfg); err == nil {
		t.Error("expected outsider list to fail")
	}

	out = mustRun(t, "session", "show", id, "--config", cfg)
	for _, want := range []string{"active", "Agent:     a1", "Messages:  2", "owner", "agent"} {
		if !strings.Contains(out, want) {
			t.Errorf("show missing %q: %s", want, out)
		}
	}

	if out := mustRun(t, "agent", "list", "--config", cfg); !strings.Contains(out, "1/2") {
		t.Errorf("agent list = %s", out)
	}
	if out := mustRun(t, "agent", "recount", "--config", cfg); !strings.Contains(out, "match") {
		t.Errorf("recount = %s", out)
	}

	out = mustRun(t, "session", "release", id, "--as", "a1", "--config", cfg)
	if !strings.Contains(out, "waiting again") {
		t.Errorf("release = %s", out)
	}
	mustRun(t, "session", "claim", id, "--agent", "a1", "--config", cfg)

	if _, err := run(t, "session", "close", id, "--as", "mallory", "--config", cfg); err == nil {
		t.Error("expected outsider close to fail")
	}
	out = mustRun(t, "session", "close", id, "--as", "sup", "--role", "admin", "--config", cfg)
	if !strings.Contains(out, "closed by sup") {
		t.Errorf("close = %s", out)
	}
	if out := mustRun(t, "agent", "list", "--config", cfg); !strings.Contains(out, "0/2") {
		t.Errorf("agent load not released: %s", out)
	}
}

func TestSweepCmd(t *testing.T) {
	cfg := writeConfig(t, "")
	mustRun(t, "db", "init", "--config", cfg)
	for _, r := range []string{"r1", "r2", "r3"} {
		mustRun(t, "session", "open", r, "--config", cfg)
	}

	out := mustRun(t, "sweep", "--config", cfg)
	if !strings.Contains(out, "2 assigned, 1 still waiting") {
		t.Errorf("sweep = %s", out)
	}
	if strings.Count(out, "to a1") != 2 {
		t.Errorf("expected two assignments to a1: %s", out)
	}

	if out := mustRun(t, "agent", "eligible", "--config", cfg); !strings.Contains(out, "No eligible agents.") {
		t.Errorf("eligible = %s", out)
	}
}

func TestAgentSetCmd(t *testing.T) {
	cfg := writeConfig(t, "")
	mustRun(t, "db", "init", "--config", cfg)

	out := mustRun(t, "agent", "set", "a2", "--max", "3", "--auto-assign", "--config", cfg)
	if !strings.Contains(out, "Agent a2 is online (0/3 sessions, auto-assign true)") {
		t.Errorf("set = %s", out)
	}

	// auto-assign is kept when the flag is omitted.
	out = mustRun(t, "agent", "set", "a2", "--presence", "busy", "--max", "3", "--config", cfg)
	if !strings.Contains(out, "is busy") || !strings.Contains(out, "auto-assign true") {
		t.Errorf("set = %s", out)
	}

	if _, err := run(t, "agent", "set", "a2", "--presence", "away", "--config", cfg); err == nil {
		t.Error("expected error for invalid presence")
	}

	out = mustRun(t, "agent", "eligible", "--config", cfg)
	if !strings.Contains(out, "1. a1") || strings.Contains(out, "a2") {
		t.Errorf("eligible = %s", out)
	}
}

func TestTokenCmd(t *testing.T) {
	cfg := writeConfig(t, "auth:\n  jwt_secret: test-secret\n")
	out := mustRun(t, "token", "--as", "sup", "--role", "admin", "--config", cfg)

	actor, err := api.ParseToken("test-secret", strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if actor.ID != "sup" || actor.Role != "admin" {
		t.Errorf("actor = %+v", actor)
	}

	noSecret := writeConfig(t, "")
	if _, err := run(t, "token", "--as", "sup", "--config", noSecret); err == nil {
		t.Error("expected error without jwt secret")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	log.Info("hidden")
	log.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info logged at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"k":"v"`) {
		t.Errorf("expected JSON record, got: %s", out)
	}

	buf.Reset()
	newLogger(config.LogConfig{Level: "debug", Format: "text"}, &buf).Debug("visible")
	if !strings.Contains(buf.String(), "msg=visible") {
		t.Errorf("expected text record, got: %s", buf.String())
	}
}

func TestCreateAdapters(t *testing.T) {
	cfg := &config.Config{}
	adapters, err := createAdapters(cfg)
	if err != nil || len(adapters) != 0 {
		t.Fatalf("no chat config: adapters=%d err=%v", len(adapters), err)
	}

	cfg.Notify.Slack = config.SlackConfig{BotToken: "xoxb-test", ChannelID: "C1"}
	cfg.Notify.Discord = config.DiscordConfig{BotToken: "discord-test", ChannelID: "123"}
	adapters, err = createAdapters(cfg)
	if err != nil {
		t.Fatalf("createAdapters: %v", err)
	}
	if len(adapters) != 2 {
		t.Errorf("adapters = %d, want 2", len(adapters))
	}
}

package telegraph

import (
	"fmt"
	"strings"
)

// Color constants for event severity.
const (
	ColorSuccess = "#36a64f"
	ColorInfo    = "#2196f3"
	ColorWarning = "#ff9800"
	ColorError   = "#e53935"
)

// severityColor maps a severity string to a sidebar color.
func severityColor(severity string) string {
	switch severity {
	case "success":
		return ColorSuccess
	case "info":
		return ColorInfo
	case "warning":
		return ColorWarning
	case "error":
		return ColorError
	default:
		return ColorInfo
	}
}

// shortID trims a UUID to its first block for chat headlines.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

// eventVerb returns a human-friendly verb for an event type.
func eventVerb(eventType string) string {
	switch eventType {
	case EventSessionCreated:
		return "is waiting"
	case EventSessionAssigned:
		return "assigned"
	case EventSessionReleased:
		return "returned to the queue"
	case EventSessionClosed:
		return "closed"
	case EventMessageCreated:
		return "has a new message"
	default:
		return eventType
	}
}

// eventSeverity returns the severity for an event type.
func eventSeverity(eventType string) string {
	switch eventType {
	case EventSessionAssigned:
		return "success"
	case EventSessionReleased:
		return "warning"
	default:
		return "info"
	}
}

// FormatEvent formats an event for a chat channel. Message bodies are never
// included; requester conversations stay inside the session.
func FormatEvent(e Event) FormattedEvent {
	if e.Type == EventAgentStatus {
		return formatAgentStatus(e)
	}

	severity := eventSeverity(e.Type)
	title := fmt.Sprintf("Session %s %s", shortID(e.SessionID), eventVerb(e.Type))
	if e.Type == EventSessionAssigned && e.AgentID != "" {
		title += " to " + e.AgentID
	}

	var bodyParts []string
	switch e.Type {
	case EventSessionCreated:
		bodyParts = append(bodyParts, "A requester is waiting for an agent.")
	case EventSessionReleased:
		if e.ActorID != "" {
			bodyParts = append(bodyParts, fmt.Sprintf("Released by %s", e.ActorID))
		}
	case EventSessionClosed:
		if e.ActorID != "" {
			bodyParts = append(bodyParts, fmt.Sprintf("Closed by %s", e.ActorID))
		}
	}
	body := strings.Join(bodyParts, "\n")

	fields := []Field{
		{Name: "Session", Value: e.SessionID, Short: true},
	}
	if e.RequesterID != "" {
		fields = append(fields, Field{Name: "Requester", Value: e.RequesterID, Short: true})
	}
	if e.AgentID != "" {
		fields = append(fields, Field{Name: "Agent", Value: e.AgentID, Short: true})
	}

	return FormattedEvent{
		Title:    title,
		Body:     body,
		Severity: severity,
		Color:    severityColor(severity),
		Fields:   fields,
	}
}

func formatAgentStatus(e Event) FormattedEvent {
	agentID := e.AgentID
	if agentID == "" && e.Agent != nil {
		agentID = e.Agent.AgentID
	}
	title := fmt.Sprintf("Agent %s updated", agentID)
	fields := []Field{{Name: "Agent", Value: agentID, Short: true}}
	if e.Agent != nil {
		title = fmt.Sprintf("Agent %s is %s", agentID, e.Agent.Presence)
		fields = append(fields,
			Field{Name: "Load", Value: fmt.Sprintf("%d/%d", e.Agent.CurrentSessionCount, e.Agent.MaxConcurrentSessions), Short: true},
		)
	}
	return FormattedEvent{
		Title:    title,
		Severity: "info",
		Color:    ColorInfo,
		Fields:   fields,
	}
}

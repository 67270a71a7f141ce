package models

import "time"

// Agent presence values.
const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
	PresenceBusy    = "busy"
)

// ValidPresence reports whether p is a known presence value.
func ValidPresence(p string) bool {
	switch p {
	case PresenceOnline, PresenceOffline, PresenceBusy:
		return true
	}
	return false
}

// AgentStatus holds an agent's availability and concurrent-session load.
// CurrentSessionCount is only changed in the same transaction as the session
// status transition that justifies it.
type AgentStatus struct {
	AgentID               string    `gorm:"primaryKey;size:64" json:"agent_id"`
	Presence              string    `gorm:"size:16;not null;default:offline;index" json:"presence"`
	MaxConcurrentSessions int       `gorm:"not null;default:1" json:"max_concurrent_sessions"`
	CurrentSessionCount   int       `gorm:"not null;default:0" json:"current_session_count"`
	AutoAssign            bool      `gorm:"not null;default:false" json:"auto_assign"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// HasCapacity reports whether the agent can take one more session.
func (a *AgentStatus) HasCapacity() bool {
	return a.CurrentSessionCount < a.MaxConcurrentSessions
}

package models

import "time"

// Session status values.
const (
	SessionWaiting = "waiting"
	SessionActive  = "active"
	SessionClosed  = "closed"
)

// ChatSession is a single live-support conversation between a requester and
// at most one assigned agent.
type ChatSession struct {
	ID              string     `gorm:"primaryKey;size:36" json:"session_id"`
	RequesterID     string     `gorm:"size:64;not null;index" json:"requester_id"`
	AssignedAgentID *string    `gorm:"size:64;index" json:"assigned_agent_id"`
	Status          string     `gorm:"size:16;not null;default:waiting;index" json:"status"`
	OpenRequester   *string    `gorm:"size:64;uniqueIndex" json:"-"` // requester while not closed, NULL after
	LastSequence    int64      `gorm:"not null;default:0" json:"last_sequence"`
	CreatedAt       time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	ClaimedAt       *time.Time `json:"claimed_at,omitempty"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
	ClosedBy        string     `gorm:"size:64" json:"closed_by,omitempty"`

	Participants []Participant `gorm:"foreignKey:SessionID" json:"participants,omitempty"`
	Messages     []Message     `gorm:"foreignKey:SessionID" json:"-"`
}

// AgentID returns the assigned agent, or "" when the session is unassigned.
func (s *ChatSession) AgentID() string {
	if s.AssignedAgentID == nil {
		return ""
	}
	return *s.AssignedAgentID
}

// Participant roles.
const (
	RoleOwner = "owner"
	RoleAgent = "agent"
)

// Participant is a user with standing to read or write a session.
type Participant struct {
	ID        uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID string     `gorm:"size:36;not null;index:idx_participant_session_user" json:"session_id"`
	UserID    string     `gorm:"size:64;not null;index:idx_participant_session_user" json:"user_id"`
	Role      string     `gorm:"size:16;not null" json:"role"`
	IsActive  bool       `gorm:"not null;index" json:"is_active"`
	JoinedAt  time.Time  `json:"joined_at"`
	LeftAt    *time.Time `json:"left_at,omitempty"`

	Session ChatSession `gorm:"foreignKey:SessionID" json:"-"`
}

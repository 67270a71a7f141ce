package models

import "time"

// Message is one immutable chat line. SequenceNo is gap-free per session,
// starting at 1.
type Message struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	SessionID  string    `gorm:"size:36;not null;uniqueIndex:idx_message_session_seq" json:"session_id"`
	SequenceNo int64     `gorm:"not null;uniqueIndex:idx_message_session_seq" json:"sequence_no"`
	SenderID   string    `gorm:"size:64;not null" json:"sender_id"`
	Body       string    `gorm:"type:text;not null" json:"body"`
	SentAt     time.Time `gorm:"index" json:"sent_at"`

	Session ChatSession `gorm:"foreignKey:SessionID" json:"-"`
}

// Package messaging is the append-only message log of a support session.
package messaging

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/zulandar/switchboard/internal/access"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/session"
	"gorm.io/gorm"
)

// Limits.
const (
	DefaultMaxBodyLength = 4000
	DefaultListLimit     = 100
	MaxListLimit         = 500
)

// maxAppendAttempts bounds retries when a concurrent append takes the
// sequence number we read.
const maxAppendAttempts = 8

var (
	// ErrEmptyBody is returned for a body that is empty after trimming.
	ErrEmptyBody = errors.New("message body is empty")
	// ErrBodyTooLong is returned for a body over the configured length.
	ErrBodyTooLong = errors.New("message body too long")

	errStaleSequence = errors.New("sequence advanced concurrently")
)

// AppendOpts holds optional parameters for Append.
type AppendOpts struct {
	MaxBodyLength int // in runes; defaults to DefaultMaxBodyLength
}

// Append writes a message to an active session on behalf of sender. The
// guard must allow the write and the session must be active. The message
// gets the next sequence number of its session: numbers start at 1 and
// never skip, even under concurrent senders.
func Append(db *gorm.DB, guard access.Guard, sessionID string, sender access.Actor, body string, opts AppendOpts) (*models.Message, error) {
	if sender.ID == "" {
		return nil, fmt.Errorf("messaging: sender is required")
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("messaging: %w", ErrEmptyBody)
	}
	maxLen := opts.MaxBodyLength
	if maxLen <= 0 {
		maxLen = DefaultMaxBodyLength
	}
	if n := utf8.RuneCountInString(body); n > maxLen {
		return nil, fmt.Errorf("messaging: %d characters, limit %d: %w", n, maxLen, ErrBodyTooLong)
	}

	var (
		msg *models.Message
		err error
	)
	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		msg, err = appendOnce(db, guard, sessionID, sender, body)
		if !errors.Is(err, errStaleSequence) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("messaging: append to %s: %w", sessionID, err)
	}
	return msg, nil
}

func appendOnce(db *gorm.DB, guard access.Guard, sessionID string, sender access.Actor, body string) (*models.Message, error) {
	var msg models.Message
	err := db.Transaction(func(tx *gorm.DB) error {
		sess, err := session.Lock(tx, sessionID)
		if err != nil {
			return err
		}
		participants, err := session.Participants(tx, sessionID)
		if err != nil {
			return err
		}
		if err := guard.CheckWrite(sender, sess, participants); err != nil {
			return err
		}
		if sess.Status != models.SessionActive {
			return models.ErrSessionNotActive
		}

		next := sess.LastSequence + 1
		result := tx.Model(&models.ChatSession{}).
			Where("id = ? AND status = ? AND last_sequence = ?", sessionID, models.SessionActive, sess.LastSequence).
			Update("last_sequence", next)
		if result.Error != nil {
			return fmt.Errorf("advance sequence: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return errStaleSequence
		}

		msg = models.Message{
			SessionID:  sessionID,
			SequenceNo: next,
			SenderID:   sender.ID,
			Body:       body,
			SentAt:     time.Now(),
		}
		if err := tx.Create(&msg).Error; err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListSince returns up to limit messages of a session with sequence numbers
// greater than after, in ascending order. Pass the last sequence number seen
// to resume. Callers serving other users check access first.
func ListSince(db *gorm.DB, sessionID string, after int64, limit int) ([]models.Message, error) {
	if after < 0 {
		after = 0
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	var msgs []models.Message
	if err := db.Where("session_id = ? AND sequence_no > ?", sessionID, after).
		Order("sequence_no ASC").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("messaging: list %s: %w", sessionID, err)
	}
	return msgs, nil
}

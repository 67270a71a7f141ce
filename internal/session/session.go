// Package session owns the support session lifecycle:
// waiting -> active -> closed, with waiting -> closed for abandoned requests.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/switchboard/internal/access"
	"github.com/zulandar/switchboard/internal/agent"
	"github.com/zulandar/switchboard/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// List limits.
const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

// maxCloseAttempts bounds retries when a concurrent claim flips the status
// between our read and our conditional write.
const maxCloseAttempts = 3

var errStaleStatus = errors.New("session status changed concurrently")

// Create opens a waiting session for the requester together with its owner
// participant. A requester may hold only one non-closed session; a second
// request returns a *models.SessionAlreadyOpenError naming the existing one.
func Create(db *gorm.DB, requesterID string) (*models.ChatSession, error) {
	if requesterID == "" {
		return nil, fmt.Errorf("session: requesterID is required")
	}

	var created models.ChatSession
	err := db.Transaction(func(tx *gorm.DB) error {
		if existing, err := findOpen(tx, requesterID); err != nil {
			return err
		} else if existing != nil {
			return &models.SessionAlreadyOpenError{SessionID: existing.ID}
		}

		now := time.Now()
		open := requesterID
		created = models.ChatSession{
			ID:            uuid.NewString(),
			RequesterID:   requesterID,
			Status:        models.SessionWaiting,
			OpenRequester: &open,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.Create(&created).Error; err != nil {
			return fmt.Errorf("insert session: %w", err)
		}

		owner := models.Participant{
			SessionID: created.ID,
			UserID:    requesterID,
			Role:      models.RoleOwner,
			IsActive:  true,
			JoinedAt:  now,
		}
		if err := tx.Create(&owner).Error; err != nil {
			return fmt.Errorf("insert owner participant: %w", err)
		}
		created.Participants = []models.Participant{owner}
		return nil
	})
	if err == nil {
		return &created, nil
	}

	var openErr *models.SessionAlreadyOpenError
	if !errors.As(err, &openErr) {
		// A concurrent Create may have won the unique open_requester slot.
		if existing, lookupErr := findOpen(db, requesterID); lookupErr == nil && existing != nil {
			err = &models.SessionAlreadyOpenError{SessionID: existing.ID}
		}
	}
	return nil, fmt.Errorf("session: create for %s: %w", requesterID, err)
}

func findOpen(db *gorm.DB, requesterID string) (*models.ChatSession, error) {
	var existing models.ChatSession
	result := db.Where("open_requester = ?", requesterID).Limit(1).Find(&existing)
	if result.Error != nil {
		return nil, fmt.Errorf("find open session for %s: %w", requesterID, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &existing, nil
}

// Get retrieves a session by ID.
func Get(db *gorm.DB, sessionID string) (*models.ChatSession, error) {
	var sess models.ChatSession
	if err := db.Where("id = ?", sessionID).First(&sess).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("session: %s: %w", sessionID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("session: get %s: %w", sessionID, err)
	}
	return &sess, nil
}

// Lock reads a session with a row lock held until tx ends. Engines without
// row locks (SQLite) ignore the locking clause; correctness then rests on
// the conditional writes that follow.
func Lock(tx *gorm.DB, sessionID string) (*models.ChatSession, error) {
	var sess models.ChatSession
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", sessionID).
		First(&sess).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("session: %s: %w", sessionID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("session: lock %s: %w", sessionID, err)
	}
	return &sess, nil
}

// Participants returns every participant row of a session, oldest first.
func Participants(db *gorm.DB, sessionID string) ([]models.Participant, error) {
	var participants []models.Participant
	if err := db.Where("session_id = ?", sessionID).Order("id ASC").Find(&participants).Error; err != nil {
		return nil, fmt.Errorf("session: participants %s: %w", sessionID, err)
	}
	return participants, nil
}

// ListOpts filters List. Zero values mean "any".
type ListOpts struct {
	Status      string
	RequesterID string
	AgentID     string
	Limit       int
}

// ValidStatus reports whether s is a known session status.
func ValidStatus(s string) bool {
	switch s {
	case models.SessionWaiting, models.SessionActive, models.SessionClosed:
		return true
	}
	return false
}

// List returns sessions oldest first, so a waiting list reads as the queue.
func List(db *gorm.DB, opts ListOpts) ([]models.ChatSession, error) {
	if opts.Status != "" && !ValidStatus(opts.Status) {
		return nil, fmt.Errorf("session: invalid status %q", opts.Status)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	q := db.Model(&models.ChatSession{})
	if opts.Status != "" {
		q = q.Where("status = ?", opts.Status)
	}
	if opts.RequesterID != "" {
		q = q.Where("requester_id = ?", opts.RequesterID)
	}
	if opts.AgentID != "" {
		q = q.Where("assigned_agent_id = ?", opts.AgentID)
	}

	var sessions []models.ChatSession
	if err := q.Order("created_at ASC, id ASC").Limit(limit).Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("session: list: %w", err)
	}
	return sessions, nil
}

// Close moves a waiting or active session to closed on behalf of actor. When
// the session was active, the assigned agent's load is released in the same
// transaction. Closing is always available regardless of how long the
// session has waited.
func Close(db *gorm.DB, guard access.Guard, sessionID string, actor access.Actor) (*models.ChatSession, error) {
	var (
		closed *models.ChatSession
		err    error
	)
	for attempt := 0; attempt < maxCloseAttempts; attempt++ {
		closed, err = closeOnce(db, guard, sessionID, actor)
		if !errors.Is(err, errStaleStatus) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("session: close %s: %w", sessionID, err)
	}
	return closed, nil
}

func closeOnce(db *gorm.DB, guard access.Guard, sessionID string, actor access.Actor) (*models.ChatSession, error) {
	var closed *models.ChatSession
	err := db.Transaction(func(tx *gorm.DB) error {
		sess, err := Lock(tx, sessionID)
		if err != nil {
			return err
		}
		participants, err := Participants(tx, sessionID)
		if err != nil {
			return err
		}
		if err := guard.CheckWrite(actor, sess, participants); err != nil {
			return err
		}
		if sess.Status == models.SessionClosed {
			return models.ErrAlreadyClosed
		}

		now := time.Now()
		result := tx.Model(&models.ChatSession{}).
			Where("id = ? AND status = ?", sess.ID, sess.Status).
			Updates(map[string]interface{}{
				"status":         models.SessionClosed,
				"closed_at":      now,
				"closed_by":      actor.ID,
				"open_requester": nil,
			})
		if result.Error != nil {
			return fmt.Errorf("update status: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return errStaleStatus
		}

		if sess.Status == models.SessionActive {
			if err := agent.DecrementLoad(tx, sess.AgentID()); err != nil {
				return err
			}
		}

		sess.Status = models.SessionClosed
		sess.ClosedAt = &now
		sess.ClosedBy = actor.ID
		sess.OpenRequester = nil
		sess.Participants = participants
		closed = sess
		return nil
	})
	return closed, err
}

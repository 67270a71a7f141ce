// Package access decides who may read or write a support session.
//
// The rule has one implementation, evaluated in order, first match wins:
//
//  1. the actor holds a privileged role (oversight and escalation)
//  2. the actor is the session's requester
//  3. the actor is an active agent participant on the session
//  4. otherwise deny
package access

import (
	"errors"
	"fmt"

	"github.com/zulandar/switchboard/internal/models"
	"gorm.io/gorm"
)

// Actor is the caller of an operation.
type Actor struct {
	ID   string
	Role string
}

// Guard evaluates the access rule. The zero value grants no privileged role.
type Guard struct {
	privileged map[string]bool
}

// NewGuard creates a Guard that treats the given roles as privileged.
func NewGuard(privilegedRoles ...string) Guard {
	g := Guard{privileged: make(map[string]bool, len(privilegedRoles))}
	for _, r := range privilegedRoles {
		if r != "" {
			g.privileged[r] = true
		}
	}
	return g
}

// IsPrivileged reports whether the actor holds an override role.
func (g Guard) IsPrivileged(actor Actor) bool {
	return actor.Role != "" && g.privileged[actor.Role]
}

// CanAccess reports whether actor may read the session. It has no side
// effects and is safe to call on every request.
func (g Guard) CanAccess(actor Actor, sess *models.ChatSession, participants []models.Participant) bool {
	if g.IsPrivileged(actor) {
		return true
	}
	if sess == nil || actor.ID == "" {
		return false
	}
	if actor.ID == sess.RequesterID {
		return true
	}
	for _, p := range participants {
		if p.SessionID == sess.ID && p.UserID == actor.ID && p.Role == models.RoleAgent && p.IsActive {
			return true
		}
	}
	return false
}

// CanWrite applies the same rule as CanAccess; it is used before message
// appends and session closes.
func (g Guard) CanWrite(actor Actor, sess *models.ChatSession, participants []models.Participant) bool {
	return g.CanAccess(actor, sess, participants)
}

// Check returns ErrAccessDenied when CanAccess is false.
func (g Guard) Check(actor Actor, sess *models.ChatSession, participants []models.Participant) error {
	if !g.CanAccess(actor, sess, participants) {
		return denied(actor, sess)
	}
	return nil
}

// CheckWrite returns ErrAccessDenied when CanWrite is false.
func (g Guard) CheckWrite(actor Actor, sess *models.ChatSession, participants []models.Participant) error {
	if !g.CanWrite(actor, sess, participants) {
		return denied(actor, sess)
	}
	return nil
}

func denied(actor Actor, sess *models.ChatSession) error {
	id := ""
	if sess != nil {
		id = sess.ID
	}
	return fmt.Errorf("access: %q on session %s: %w", actor.ID, id, models.ErrAccessDenied)
}

// Load fetches a session and its participants for a guard decision. Pass a
// transaction to decide against the same snapshot the caller will mutate.
func Load(db *gorm.DB, sessionID string) (*models.ChatSession, []models.Participant, error) {
	var sess models.ChatSession
	if err := db.Where("id = ?", sessionID).First(&sess).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("access: session %s: %w", sessionID, models.ErrNotFound)
		}
		return nil, nil, fmt.Errorf("access: load session %s: %w", sessionID, err)
	}
	var participants []models.Participant
	if err := db.Where("session_id = ?", sessionID).Order("id ASC").Find(&participants).Error; err != nil {
		return nil, nil, fmt.Errorf("access: load participants %s: %w", sessionID, err)
	}
	return &sess, participants, nil
}

// Authorize loads the session and checks read access in one call.
func (g Guard) Authorize(db *gorm.DB, actor Actor, sessionID string) (*models.ChatSession, []models.Participant, error) {
	sess, participants, err := Load(db, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if err := g.Check(actor, sess, participants); err != nil {
		return nil, nil, err
	}
	return sess, participants, nil
}

// Package dispatch matches waiting support sessions to agents.
//
// Every invariant-bearing mutation (session status, assigned agent, agent
// load) happens inside one transaction per claim or release, built from
// conditional writes rather than read-check-write at the call site.
package dispatch

import (
	"fmt"
	"time"

	"github.com/zulandar/switchboard/internal/access"
	"github.com/zulandar/switchboard/internal/agent"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/session"
	"gorm.io/gorm"
)

// Claim atomically binds a waiting session to agentID: the status flips to
// active, the agent is recorded, an agent participant row is added and the
// agent's load goes up by one. Either all four commit or none do.
//
// A session that is no longer waiting yields ErrAlreadyClaimed (or
// ErrAlreadyClosed); callers move on to another session rather than retry.
// An agent at capacity yields ErrCapacityExceeded and the session is left
// untouched. Capacity applies to every claim, manual or automatic. An agent
// never serves a session it opened itself (ErrSelfAssignment).
func Claim(db *gorm.DB, sessionID, agentID string) (*models.ChatSession, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("dispatch: sessionID is required")
	}
	if agentID == "" {
		return nil, fmt.Errorf("dispatch: agentID is required")
	}

	var claimed *models.ChatSession
	err := db.Transaction(func(tx *gorm.DB) error {
		sess, err := session.Lock(tx, sessionID)
		if err != nil {
			return err
		}
		switch sess.Status {
		case models.SessionActive:
			return models.ErrAlreadyClaimed
		case models.SessionClosed:
			return models.ErrAlreadyClosed
		}
		if sess.RequesterID == agentID {
			return models.ErrSelfAssignment
		}

		now := time.Now()
		result := tx.Model(&models.ChatSession{}).
			Where("id = ? AND status = ?", sessionID, models.SessionWaiting).
			Updates(map[string]interface{}{
				"status":            models.SessionActive,
				"assigned_agent_id": agentID,
				"claimed_at":        now,
			})
		if result.Error != nil {
			return fmt.Errorf("activate session: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return models.ErrAlreadyClaimed
		}

		if err := agent.IncrementLoad(tx, agentID); err != nil {
			return err
		}

		p := models.Participant{
			SessionID: sessionID,
			UserID:    agentID,
			Role:      models.RoleAgent,
			IsActive:  true,
			JoinedAt:  now,
		}
		if err := tx.Create(&p).Error; err != nil {
			return fmt.Errorf("insert agent participant: %w", err)
		}

		sess.Status = models.SessionActive
		sess.AssignedAgentID = &agentID
		sess.ClaimedAt = &now
		claimed = sess
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dispatch: claim %s for %s: %w", sessionID, agentID, err)
	}
	return claimed, nil
}

// Release hands an active session back to the queue: the agent participant
// is deactivated, the assignment cleared and the agent's load released, all
// in one transaction. Only the assigned agent or a privileged actor may
// release. This is the one policy that clears assigned_agent_id.
func Release(db *gorm.DB, guard access.Guard, sessionID string, actor access.Actor) (*models.ChatSession, error) {
	var released *models.ChatSession
	err := db.Transaction(func(tx *gorm.DB) error {
		sess, err := session.Lock(tx, sessionID)
		if err != nil {
			return err
		}
		agentID := sess.AgentID()
		if !guard.IsPrivileged(actor) && (actor.ID == "" || actor.ID != agentID) {
			return fmt.Errorf("%q is not the assigned agent: %w", actor.ID, models.ErrAccessDenied)
		}
		if sess.Status != models.SessionActive {
			return models.ErrSessionNotActive
		}

		now := time.Now()
		result := tx.Model(&models.ChatSession{}).
			Where("id = ? AND status = ? AND assigned_agent_id = ?", sessionID, models.SessionActive, agentID).
			Updates(map[string]interface{}{
				"status":            models.SessionWaiting,
				"assigned_agent_id": nil,
				"claimed_at":        nil,
			})
		if result.Error != nil {
			return fmt.Errorf("requeue session: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return models.ErrSessionNotActive
		}

		if err := tx.Model(&models.Participant{}).
			Where("session_id = ? AND user_id = ? AND role = ? AND is_active = ?", sessionID, agentID, models.RoleAgent, true).
			Updates(map[string]interface{}{"is_active": false, "left_at": now}).Error; err != nil {
			return fmt.Errorf("deactivate agent participant: %w", err)
		}

		if err := agent.DecrementLoad(tx, agentID); err != nil {
			return err
		}

		sess.Status = models.SessionWaiting
		sess.AssignedAgentID = nil
		sess.ClaimedAt = nil
		released = sess
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dispatch: release %s: %w", sessionID, err)
	}
	return released, nil
}

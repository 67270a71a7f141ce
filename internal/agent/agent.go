// Package agent tracks support agents' presence and concurrent-session load.
package agent

import (
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/switchboard/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxSetAttempts = 3

// SetPresence upserts an agent's status row. The load counter is never
// touched here: moving away from online only stops new automatic
// assignments, existing active sessions stay with the agent.
//
// maxConcurrent may not drop below the agent's current load; that fails
// with ErrCapacityBelowLoad and leaves the row unchanged. The check is part
// of the conditional UPDATE, so it holds against claims running at the
// same time.
func SetPresence(db *gorm.DB, agentID, presence string, maxConcurrent int, autoAssign bool) (*models.AgentStatus, error) {
	if agentID == "" {
		return nil, fmt.Errorf("agent: agentID is required")
	}
	if !models.ValidPresence(presence) {
		return nil, fmt.Errorf("agent: invalid presence %q", presence)
	}
	if maxConcurrent < 1 {
		return nil, fmt.Errorf("agent: max concurrent sessions must be at least 1, got %d", maxConcurrent)
	}

	for attempt := 0; attempt < maxSetAttempts; attempt++ {
		now := time.Now()
		result := db.Model(&models.AgentStatus{}).
			Where("agent_id = ? AND current_session_count <= ?", agentID, maxConcurrent).
			Updates(map[string]interface{}{
				"presence":                presence,
				"max_concurrent_sessions": maxConcurrent,
				"auto_assign":             autoAssign,
				"updated_at":              now,
			})
		if result.Error != nil {
			return nil, fmt.Errorf("agent: set presence %s: %w", agentID, result.Error)
		}
		if result.RowsAffected > 0 {
			return Get(db, agentID)
		}

		existing, err := Get(db, agentID)
		switch {
		case err == nil && existing.CurrentSessionCount > maxConcurrent:
			return nil, fmt.Errorf("agent: %s has %d active sessions, max %d: %w",
				agentID, existing.CurrentSessionCount, maxConcurrent, models.ErrCapacityBelowLoad)
		case err == nil:
			// Load dropped between the two statements; try again.
			continue
		case !errors.Is(err, models.ErrUnknownAgent):
			return nil, err
		}

		status := models.AgentStatus{
			AgentID:               agentID,
			Presence:              presence,
			MaxConcurrentSessions: maxConcurrent,
			AutoAssign:            autoAssign,
			CreatedAt:             now,
			UpdatedAt:             now,
		}
		// A concurrent first registration wins; the next attempt updates it.
		result = db.Clauses(clause.OnConflict{DoNothing: true}).Create(&status)
		if result.Error != nil {
			return nil, fmt.Errorf("agent: create %s: %w", agentID, result.Error)
		}
		if result.RowsAffected > 0 {
			return Get(db, agentID)
		}
	}
	return nil, fmt.Errorf("agent: set presence %s: row kept changing", agentID)
}

// Get retrieves an agent's status row.
func Get(db *gorm.DB, agentID string) (*models.AgentStatus, error) {
	var status models.AgentStatus
	if err := db.Where("agent_id = ?", agentID).First(&status).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("agent: %s: %w", agentID, models.ErrUnknownAgent)
		}
		return nil, fmt.Errorf("agent: get %s: %w", agentID, err)
	}
	return &status, nil
}

// List returns every agent status row ordered by agent id.
func List(db *gorm.DB) ([]models.AgentStatus, error) {
	var statuses []models.AgentStatus
	if err := db.Order("agent_id ASC").Find(&statuses).Error; err != nil {
		return nil, fmt.Errorf("agent: list: %w", err)
	}
	return statuses, nil
}

// EligibleAgents returns the ids of agents that may receive an automatic
// assignment right now: online, opted into auto-assign and below capacity.
// Least-loaded agents come first; ties break on agent id.
func EligibleAgents(db *gorm.DB) ([]string, error) {
	var ids []string
	err := db.Model(&models.AgentStatus{}).
		Where("presence = ? AND auto_assign = ? AND current_session_count < max_concurrent_sessions",
			models.PresenceOnline, true).
		Order("current_session_count ASC, agent_id ASC").
		Pluck("agent_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("agent: eligible agents: %w", err)
	}
	return ids, nil
}

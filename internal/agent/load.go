package agent

import (
	"errors"
	"fmt"

	"github.com/zulandar/switchboard/internal/models"
	"gorm.io/gorm"
)

// IncrementLoad takes one capacity slot for the agent. It is a single
// conditional UPDATE and must run inside the transaction that activates the
// session it accounts for; the dispatch package is the only caller.
func IncrementLoad(tx *gorm.DB, agentID string) error {
	result := tx.Model(&models.AgentStatus{}).
		Where("agent_id = ? AND current_session_count < max_concurrent_sessions", agentID).
		Update("current_session_count", gorm.Expr("current_session_count + ?", 1))
	if result.Error != nil {
		return fmt.Errorf("agent: increment load %s: %w", agentID, result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}
	if err := mustExist(tx, agentID); err != nil {
		return err
	}
	return fmt.Errorf("agent: %s: %w", agentID, models.ErrCapacityExceeded)
}

// DecrementLoad releases one capacity slot. Like IncrementLoad it only runs
// inside the transaction that ends or releases the session.
func DecrementLoad(tx *gorm.DB, agentID string) error {
	result := tx.Model(&models.AgentStatus{}).
		Where("agent_id = ? AND current_session_count > 0", agentID).
		Update("current_session_count", gorm.Expr("current_session_count - ?", 1))
	if result.Error != nil {
		return fmt.Errorf("agent: decrement load %s: %w", agentID, result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}
	if err := mustExist(tx, agentID); err != nil {
		return err
	}
	return fmt.Errorf("agent: decrement load %s: counter already zero", agentID)
}

func mustExist(tx *gorm.DB, agentID string) error {
	var status models.AgentStatus
	err := tx.Select("agent_id").Where("agent_id = ?", agentID).First(&status).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("agent: %s: %w", agentID, models.ErrUnknownAgent)
	}
	if err != nil {
		return fmt.Errorf("agent: lookup %s: %w", agentID, err)
	}
	return nil
}

// LoadDrift reports an agent whose stored counter disagrees with the number
// of active sessions assigned to it.
type LoadDrift struct {
	AgentID string
	Stored  int
	Actual  int
}

// Recount recomputes every agent's load from the session table and returns
// the agents whose stored counter differs. It never writes.
func Recount(db *gorm.DB) ([]LoadDrift, error) {
	type row struct {
		AssignedAgentID string
		N               int
	}
	var rows []row
	if err := db.Model(&models.ChatSession{}).
		Select("assigned_agent_id, COUNT(*) AS n").
		Where("status = ? AND assigned_agent_id IS NOT NULL", models.SessionActive).
		Group("assigned_agent_id").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("agent: recount: %w", err)
	}
	actual := make(map[string]int, len(rows))
	for _, r := range rows {
		actual[r.AssignedAgentID] = r.N
	}

	statuses, err := List(db)
	if err != nil {
		return nil, err
	}
	var drift []LoadDrift
	for _, s := range statuses {
		if s.CurrentSessionCount != actual[s.AgentID] {
			drift = append(drift, LoadDrift{AgentID: s.AgentID, Stored: s.CurrentSessionCount, Actual: actual[s.AgentID]})
		}
		delete(actual, s.AgentID)
	}
	for id, n := range actual {
		drift = append(drift, LoadDrift{AgentID: id, Stored: 0, Actual: n})
	}
	return drift, nil
}

package db

import (
	"fmt"
	"time"

	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.ChatSession{},
		&models.Participant{},
		&models.AgentStatus{},
		&models.Message{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedAgents upserts AgentStatus rows from configuration. Existing rows keep
// their current_session_count; only presence, capacity and auto-assign are
// overwritten. A configured capacity below an agent's live load is refused
// with ErrCapacityBelowLoad.
func SeedAgents(db *gorm.DB, agents []config.AgentConfig) error {
	for _, ac := range agents {
		now := time.Now()
		status := models.AgentStatus{
			AgentID:               ac.ID,
			Presence:              ac.Presence,
			MaxConcurrentSessions: ac.MaxConcurrent,
			AutoAssign:            ac.AutoAssign,
			CreatedAt:             now,
			UpdatedAt:             now,
		}

		result := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&status)
		if result.Error != nil {
			return fmt.Errorf("db: seed agent %q: %w", ac.ID, result.Error)
		}
		if result.RowsAffected > 0 {
			continue
		}

		result = db.Model(&models.AgentStatus{}).
			Where("agent_id = ? AND current_session_count <= ?", ac.ID, ac.MaxConcurrent).
			Updates(map[string]interface{}{
				"presence":                ac.Presence,
				"max_concurrent_sessions": ac.MaxConcurrent,
				"auto_assign":             ac.AutoAssign,
				"updated_at":              now,
			})
		if result.Error != nil {
			return fmt.Errorf("db: seed agent %q: %w", ac.ID, result.Error)
		}
		if result.RowsAffected == 0 {
			var existing models.AgentStatus
			if err := db.First(&existing, "agent_id = ?", ac.ID).Error; err != nil {
				return fmt.Errorf("db: seed agent %q: %w", ac.ID, err)
			}
			if existing.CurrentSessionCount > ac.MaxConcurrent {
				return fmt.Errorf("db: seed agent %q: %d active sessions, max %d: %w",
					ac.ID, existing.CurrentSessionCount, ac.MaxConcurrent, models.ErrCapacityBelowLoad)
			}
		}
	}
	return nil
}

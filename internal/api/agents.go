package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/switchboard/internal/agent"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/telegraph"
)

type agentStatusRequest struct {
	Presence      string `json:"presence" binding:"required,presence"`
	MaxConcurrent int    `json:"max_concurrent" binding:"required,min=1"`
	AutoAssign    *bool  `json:"auto_assign"` // omitted keeps the current setting
}

func (h *handler) listAgents(c *gin.Context) {
	statuses, err := agent.List(h.db)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, statuses)
}

// eligibleAgents lists the agents the next automatic assignment would try,
// in order.
func (h *handler) eligibleAgents(c *gin.Context) {
	ids, err := agent.EligibleAgents(h.db)
	if err != nil {
		writeError(c, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"agent_ids": ids})
}

func (h *handler) setAgentStatus(c *gin.Context) {
	var req agentStatusRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	actor, err := h.actingAs(c, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	// Agents update their own row. Only a privileged caller registers a new
	// agent.
	current, err := agent.Get(h.db, actor.ID)
	switch {
	case errors.Is(err, models.ErrUnknownAgent):
		if !h.guard.IsPrivileged(actorFrom(c)) {
			writeError(c, fmt.Errorf("api: registering agent %s: %w", actor.ID, models.ErrAccessDenied))
			return
		}
	case err != nil:
		writeError(c, err)
		return
	}

	autoAssign := false
	if req.AutoAssign != nil {
		autoAssign = *req.AutoAssign
	} else if current != nil {
		autoAssign = current.AutoAssign
	}

	status, err := agent.SetPresence(h.db, actor.ID, req.Presence, req.MaxConcurrent, autoAssign)
	if err != nil {
		writeError(c, err)
		return
	}
	h.notify(c, telegraph.Event{
		Type:    telegraph.EventAgentStatus,
		AgentID: status.AgentID,
		ActorID: actorFrom(c).ID,
		Agent:   status,
		At:      time.Now(),
	})
	h.trigger()
	c.JSON(http.StatusOK, status)
}

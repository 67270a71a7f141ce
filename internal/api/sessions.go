package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/switchboard/internal/agent"
	"github.com/zulandar/switchboard/internal/dispatch"
	"github.com/zulandar/switchboard/internal/messaging"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/session"
	"github.com/zulandar/switchboard/internal/telegraph"
)

type createSessionRequest struct {
	RequesterID string `json:"requester_id" binding:"omitempty,max=64"`
}

type claimRequest struct {
	AgentID string `json:"agent_id" binding:"omitempty,max=64"`
}

type closeRequest struct {
	ActorID string `json:"actor_id" binding:"omitempty,max=64"`
}

type appendRequest struct {
	SenderID string `json:"sender_id" binding:"omitempty,max=64"`
	Body     string `json:"body"`
}

func (h *handler) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	actor, err := h.actingAs(c, req.RequesterID)
	if err != nil {
		writeError(c, err)
		return
	}
	sess, err := session.Create(h.db, actor.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	h.notify(c, telegraph.SessionEvent(telegraph.EventSessionCreated, sess, actor.ID))
	h.trigger()
	c.JSON(http.StatusCreated, sess)
}

// listSessions serves privileged callers and registered agents any list.
// Everyone else only sees their own sessions as requester.
func (h *handler) listSessions(c *gin.Context) {
	caller, err := h.reader(c)
	if err != nil {
		writeError(c, err)
		return
	}
	status := c.Query("status")
	if status != "" && !session.ValidStatus(status) {
		writeError(c, fmt.Errorf("%w: status must be waiting, active or closed", errBadRequest))
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		writeError(c, err)
		return
	}

	opts := session.ListOpts{
		Status:      status,
		RequesterID: c.Query("requester_id"),
		AgentID:     c.Query("agent_id"),
		Limit:       int(limit),
	}
	if !h.guard.IsPrivileged(caller) {
		if _, err := agent.Get(h.db, caller.ID); err != nil {
			if !errors.Is(err, models.ErrUnknownAgent) {
				writeError(c, err)
				return
			}
			opts.RequesterID = caller.ID
			opts.AgentID = ""
		}
	}

	sessions, err := session.List(h.db, opts)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessions)
}

func (h *handler) getSession(c *gin.Context) {
	caller, err := h.reader(c)
	if err != nil {
		writeError(c, err)
		return
	}
	sess, participants, err := h.guard.Authorize(h.db, caller, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	sess.Participants = participants
	c.JSON(http.StatusOK, sess)
}

func (h *handler) claimSession(c *gin.Context) {
	var req claimRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	actor, err := h.actingAs(c, req.AgentID)
	if err != nil {
		writeError(c, err)
		return
	}
	sess, err := dispatch.Claim(h.db, c.Param("id"), actor.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	h.notify(c, telegraph.SessionEvent(telegraph.EventSessionAssigned, sess, actorFrom(c).ID))
	c.JSON(http.StatusOK, sess)
}

func (h *handler) releaseSession(c *gin.Context) {
	var req claimRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	actor, err := h.actingAs(c, req.AgentID)
	if err != nil {
		writeError(c, err)
		return
	}
	sess, err := dispatch.Release(h.db, h.guard, c.Param("id"), actor)
	if err != nil {
		writeError(c, err)
		return
	}
	h.notify(c, telegraph.SessionEvent(telegraph.EventSessionReleased, sess, actor.ID))
	h.trigger()
	c.JSON(http.StatusOK, sess)
}

func (h *handler) closeSession(c *gin.Context) {
	var req closeRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	actor, err := h.actingAs(c, req.ActorID)
	if err != nil {
		writeError(c, err)
		return
	}
	sess, err := session.Close(h.db, h.guard, c.Param("id"), actor)
	if err != nil {
		writeError(c, err)
		return
	}
	h.notify(c, telegraph.SessionEvent(telegraph.EventSessionClosed, sess, actor.ID))
	h.trigger()
	c.JSON(http.StatusOK, sess)
}

func (h *handler) appendMessage(c *gin.Context) {
	var req appendRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	actor, err := h.actingAs(c, req.SenderID)
	if err != nil {
		writeError(c, err)
		return
	}
	msg, err := messaging.Append(h.db, h.guard, c.Param("id"), actor, req.Body, messaging.AppendOpts{
		MaxBodyLength: h.maxBodyLength,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	messaging.Notify(c.Request.Context(), h.notifier, msg)
	c.JSON(http.StatusCreated, msg)
}

func (h *handler) listMessages(c *gin.Context) {
	caller, err := h.reader(c)
	if err != nil {
		writeError(c, err)
		return
	}
	after, err := queryInt(c, "after")
	if err != nil {
		writeError(c, err)
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		writeError(c, err)
		return
	}
	sessionID := c.Param("id")
	if _, _, err := h.guard.Authorize(h.db, caller, sessionID); err != nil {
		writeError(c, err)
		return
	}
	msgs, err := messaging.ListSince(h.db, sessionID, after, int(limit))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

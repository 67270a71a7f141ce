package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/telegraph"
)

const heartbeatInterval = 15 * time.Second

// events streams live events as server-sent events. With ?session_id= the
// stream carries that session only and needs read access to it; the
// unfiltered stream is for privileged callers.
func (h *handler) events(c *gin.Context) {
	if h.broker == nil {
		writeError(c, fmt.Errorf("%w: event stream is not enabled", errUnavailable))
		return
	}
	caller, err := h.reader(c)
	if err != nil {
		writeError(c, err)
		return
	}

	var filter func(telegraph.Event) bool
	if sessionID := c.Query("session_id"); sessionID != "" {
		if _, _, err := h.guard.Authorize(h.db, caller, sessionID); err != nil {
			writeError(c, err)
			return
		}
		filter = telegraph.SessionFilter(sessionID)
	} else if !h.guard.IsPrivileged(caller) {
		writeError(c, fmt.Errorf("api: unfiltered event stream: %w", models.ErrAccessDenied))
		return
	}

	ch, cancel := h.broker.Subscribe(filter)
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})
	c.Writer.Flush()

	ctx := c.Request.Context()
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			writeSSE(c.Writer, "heartbeat", map[string]string{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			c.Writer.Flush()
		case e, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(c.Writer, e.Type, e)
			c.Writer.Flush()
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}

package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/switchboard/internal/access"
	"github.com/zulandar/switchboard/internal/db"
	"github.com/zulandar/switchboard/internal/messaging"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/telegraph"
	"gorm.io/gorm"
)

type handler struct {
	db            *gorm.DB
	guard         access.Guard
	maxBodyLength int
	notifier      telegraph.Notifier
	broker        *telegraph.Broker
	trigger       func()
	log           *slog.Logger
}

func newHandler(opts StartOpts) *handler {
	h := &handler{
		db:            opts.DB,
		guard:         opts.Guard,
		maxBodyLength: opts.MaxBodyLength,
		notifier:      opts.Notifier,
		broker:        opts.Broker,
		trigger:       opts.Trigger,
		log:           opts.Logger,
	}
	if h.maxBodyLength <= 0 {
		h.maxBodyLength = messaging.DefaultMaxBodyLength
	}
	if h.notifier == nil {
		h.notifier = telegraph.Nop{}
	}
	if h.trigger == nil {
		h.trigger = func() {}
	}
	if h.log == nil {
		h.log = slog.Default()
	}
	return h
}

// actingAs resolves who a write acts for. claimed is the user id named in
// the request body; it defaults to the caller. A caller may only act as
// itself unless it holds a privileged role. Anonymous callers (no identity
// headers, no JWT secret) act as whoever the body names.
func (h *handler) actingAs(c *gin.Context, claimed string) (access.Actor, error) {
	caller := actorFrom(c)
	if claimed == "" {
		claimed = caller.ID
	}
	if claimed == "" {
		return access.Actor{}, fmt.Errorf("%w: no acting user id in request", errBadRequest)
	}
	switch {
	case caller.ID == claimed:
		return caller, nil
	case h.guard.IsPrivileged(caller):
		return access.Actor{ID: claimed, Role: caller.Role}, nil
	case caller.ID == "":
		return access.Actor{ID: claimed}, nil
	}
	return access.Actor{}, fmt.Errorf("api: %s acting as %s: %w", caller.ID, claimed, models.ErrAccessDenied)
}

// reader returns the caller of a read, which must carry an identity.
func (h *handler) reader(c *gin.Context) (access.Actor, error) {
	caller := actorFrom(c)
	if caller.ID == "" && !h.guard.IsPrivileged(caller) {
		return access.Actor{}, fmt.Errorf("%w: set %s or send a bearer token", errUnauthenticated, HeaderActorID)
	}
	return caller, nil
}

func (h *handler) notify(c *gin.Context, e telegraph.Event) {
	h.notifier.Notify(c.Request.Context(), e)
}

// queryInt parses an optional integer query parameter.
func queryInt(c *gin.Context, name string) (int64, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errBadRequest, name)
	}
	return n, nil
}

func (h *handler) health(c *gin.Context) {
	if err := db.Ping(h.db); err != nil {
		h.log.Warn("api: health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

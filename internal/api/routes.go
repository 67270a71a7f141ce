package api

import "github.com/gin-gonic/gin"

// registerRoutes sets up all API routes on the Gin router.
func registerRoutes(router *gin.Engine, h *handler) {
	router.GET("/healthz", h.health)

	sessions := router.Group("/sessions")
	sessions.POST("", h.createSession)
	sessions.GET("", h.listSessions)
	sessions.GET("/:id", h.getSession)
	sessions.POST("/:id/claim", h.claimSession)
	sessions.POST("/:id/release", h.releaseSession)
	sessions.POST("/:id/close", h.closeSession)
	sessions.POST("/:id/messages", h.appendMessage)
	sessions.GET("/:id/messages", h.listMessages)

	agents := router.Group("/agents")
	agents.GET("", h.listAgents)
	agents.GET("/eligible", h.eligibleAgents)
	agents.PUT("/:id/status", h.setAgentStatus)

	router.GET("/events", h.events)
}

package main

import (
	"net/http"

	"voiceconfirm/internal/httpapi"
	"voiceconfirm/internal/rbac"
	"voiceconfirm/internal/telephony"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	AuthMW   gin.HandlerFunc
	Handlers httpapi.Handlers
	Webhooks telephony.WebhookHandler
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, deps routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Provider webhooks (public).
	// NOTE: These endpoints should be protected by Twilio signature validation in production.
	{
		r.POST("/webhooks/twilio/status", deps.Webhooks.HandleStatusCallback)
		r.POST("/webhooks/twilio/twiml/:call_id", deps.Webhooks.HandleTwiml)
		r.GET("/webhooks/twilio/audio/:call_id", deps.Webhooks.HandleAudio)
	}

	// AUTH routes (token issuance).
	authGroup := r.Group("/v1/auth")
	{
		authGroup.POST("/login", deps.Handlers.Login)
		authGroup.POST("/refresh", deps.Handlers.Refresh)
	}

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(deps.AuthMW)
	v1.Use(rbac.RequireAnyRole(rbac.RoleMerchant, rbac.RoleAdmin))
	{
		// ORDER routes: call initiation hangs off the order it confirms.
		v1.POST("/orders/:order_id/calls", deps.Handlers.InitiateCall)

		// CALL routes: read surface over call history.
		v1.GET("/calls", deps.Handlers.ListCalls)
		v1.GET("/calls/stats", deps.Handlers.CallStats)
		v1.GET("/calls/languages", deps.Handlers.SupportedLanguages)
		v1.GET("/calls/:call_id", deps.Handlers.GetCall)
	}
}

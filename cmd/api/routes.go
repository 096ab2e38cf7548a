package main

import (
	"softswitch/internal/auth"
	"softswitch/internal/httpapi"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Token issuance (public).
	// NOTE: skeleton endpoint; production must validate operator credentials.
	r.POST("/v1/auth/token", h.IssueToken)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		v1.GET("/me", func(c *gin.Context) {
			oid, _ := auth.OperatorID(c.Request.Context())
			role, _ := auth.Role(c.Request.Context())
			c.JSON(200, gin.H{"operator_id": oid, "role": role})
		})

		// CHANNEL routes
		channels := v1.Group("/channels")
		{
			channels.GET("", h.ListChannels)
			channels.GET("/:channel_id", h.GetChannel)

			// Leg injection and teardown are admin-only; they stand in for
			// the host switch's lifecycle management.
			channels.POST("", auth.RequireAdmin(), h.CreateChannel)
			channels.POST("/:channel_id/hangup", auth.RequireAdmin(), h.HangupChannel)
		}

		// PICKUP route
		v1.POST("/pickup", h.ExecutePickup)
	}
}

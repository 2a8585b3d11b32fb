// Package httpapi exposes the REST collaborator surface around the realtime
// core: room and membership data entry, the HTTP moderation variants, search
// and health. The coordinator itself only ever speaks the socket protocol.
package httpapi

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"cloud-connect/observability"
	"cloud-connect/services"
)

// RegisterRoutes binds all REST endpoints onto the engine.
func RegisterRoutes(r *gin.Engine, log *slog.Logger, admin services.IAdminService,
	session services.ISessionService, monitoring *observability.Manager, searchLimit int) {
	rooms := NewRoomController(log, admin, session)
	messages := NewMessageController(log, admin, searchLimit)

	api := r.Group("/api")
	api.POST("/rooms", rooms.Create())
	api.POST("/rooms/join", rooms.Join())
	api.GET("/rooms/:code/users", rooms.ListUsers())
	api.PATCH("/users/:id/approve", rooms.ApproveUser())
	api.DELETE("/messages/:id", messages.Delete())
	api.GET("/rooms/:code/search", messages.Search())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, monitoring.GetLatest())
	})
}

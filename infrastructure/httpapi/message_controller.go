package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "cloud-connect/errors"
	"cloud-connect/services"
)

// MessageController handles the permanent message delete (the rejection
// path) and the approved-message search endpoint.
type MessageController struct {
	admin       services.IAdminService
	log         *slog.Logger
	searchLimit int
}

func NewMessageController(log *slog.Logger, admin services.IAdminService, searchLimit int) *MessageController {
	return &MessageController{admin: admin, log: log, searchLimit: searchLimit}
}

func (h *MessageController) Delete() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
			return
		}
		err = h.admin.DeleteMessage(id)
		if err == apperrors.ErrMessageNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		if err != nil {
			h.log.Error("delete message failed", "message", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (h *MessageController) Search() gin.HandlerFunc {
	return func(c *gin.Context) {
		terms := c.Query("q")
		if terms == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing query"})
			return
		}
		limit := h.searchLimit
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 || parsed > h.searchLimit {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
				return
			}
			limit = parsed
		}

		hits, err := h.admin.SearchMessages(c.Request.Context(), c.Param("code"), terms, limit)
		if err == apperrors.ErrRoomNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		if err != nil {
			h.log.Error("search failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"hits": hits})
	}
}

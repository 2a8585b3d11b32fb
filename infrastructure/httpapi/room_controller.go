package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"cloud-connect/domain"
	apperrors "cloud-connect/errors"
	"cloud-connect/services"
)

// RoomController handles room lifecycle and membership endpoints.
type RoomController struct {
	admin   services.IAdminService
	session services.ISessionService
	log     *slog.Logger
}

func NewRoomController(log *slog.Logger, admin services.IAdminService,
	session services.ISessionService) *RoomController {
	return &RoomController{admin: admin, session: session, log: log}
}

type createRoomRequest struct {
	Name     string `json:"name" binding:"required"`
	RoomCode string `json:"roomCode" binding:"required"`
}

type joinRoomRequest struct {
	RoomCode string `json:"roomCode" binding:"required"`
	Username string `json:"username" binding:"required"`
}

type roomResponse struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	RoomCode string    `json:"roomCode"`
}

type userResponse struct {
	ID       uuid.UUID     `json:"id"`
	Username string        `json:"username"`
	Role     domain.Role   `json:"role"`
	Status   domain.Status `json:"status"`
	IsOnline bool          `json:"isOnline"`
}

func (h *RoomController) Create() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createRoomRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		room, err := h.admin.CreateRoom(req.Name, req.RoomCode)
		if err == apperrors.ErrRoomCodeTaken {
			c.JSON(http.StatusConflict, gin.H{"error": "room code already taken"})
			return
		}
		if err != nil {
			h.log.Error("create room failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusCreated, toRoomResponse(room))
	}
}

// Join creates a pending participant in the room. The caller is expected to
// open a socket afterwards and emit join_room to establish presence.
func (h *RoomController) Join() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req joinRoomRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		room, user, err := h.admin.JoinRoom(req.RoomCode, req.Username)
		if err == apperrors.ErrRoomNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		if err != nil {
			h.log.Error("join room failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"room": toRoomResponse(room),
			"user": toUserResponse(user),
		})
	}
}

func (h *RoomController) ListUsers() gin.HandlerFunc {
	return func(c *gin.Context) {
		var status *domain.Status
		switch c.Query("status") {
		case "":
		case string(domain.StatusPending):
			status = lo.ToPtr(domain.StatusPending)
		case string(domain.StatusApproved):
			status = lo.ToPtr(domain.StatusApproved)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status filter"})
			return
		}

		users, err := h.admin.ListUsers(c.Param("code"), status)
		if err == apperrors.ErrRoomNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		if err != nil {
			h.log.Error("list users failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, lo.Map(users, func(u domain.User, _ int) userResponse {
			return toUserResponse(u)
		}))
	}
}

// ApproveUser is the HTTP variant of the approve_user socket event. It goes
// through the session coordinator so the directed socket notification fires
// exactly as it would for the socket variant.
func (h *RoomController) ApproveUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}
		err = h.session.ApproveUser(c.Request.Context(), id)
		if err == apperrors.ErrUserNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		if err != nil {
			h.log.Error("approve user failed", "user", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func toRoomResponse(room domain.Room) roomResponse {
	return roomResponse{ID: room.ID, Name: room.Name, RoomCode: room.Code}
}

func toUserResponse(user domain.User) userResponse {
	return userResponse{
		ID:       user.ID,
		Username: user.Username,
		Role:     user.Role,
		Status:   user.Status,
		IsOnline: user.IsOnline,
	}
}

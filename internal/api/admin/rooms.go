// Package admin implements the administrative HTTP handlers for the data room
// service. Every route here sits behind the admin JWT middleware (see
// internal/middleware/auth.go) — unlike the counterparty access endpoint in the
// sibling rooms package, which is intentionally unauthenticated.
package admin

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/middleware"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/room"
)

// RoomHandlers handles room administration endpoints.
type RoomHandlers struct {
	svc *room.Service
}

// NewRoomHandlers creates a new RoomHandlers instance.
func NewRoomHandlers(svc *room.Service) *RoomHandlers {
	return &RoomHandlers{svc: svc}
}

// CreateRoomRequest is the room creation body.
type CreateRoomRequest struct {
	CompanyID         string   `json:"company_id" binding:"required"`
	Name              string   `json:"name" binding:"required"`
	CounterpartyEmail string   `json:"counterparty_email" binding:"required,email"`
	TTLHours          int      `json:"ttl_hours"` // 0 means the configured default
	IPWhitelist       []string `json:"ip_whitelist"`
	MFAEnabled        bool     `json:"mfa_enabled"`
	MFAPhone          *string  `json:"mfa_phone"`
}

// adminEmail pulls the authenticated admin's email out of the request context.
func adminEmail(c *gin.Context) string {
	v, _ := c.Get(middleware.AdminEmailKey)
	email, _ := v.(string)
	return email
}

// @Summary      Create room
// @Description  Creates an ACTIVE room. The plaintext access code is returned once in this response and never again.
// @Tags         Rooms (admin)
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateRoomRequest  true  "Room creation request"
// @Success      201  {object}  map[string]interface{}  "room and one-time access_code"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/rooms [post]
// CreateRoomHandler creates a new room.
// POST /api/v1/rooms
func (h *RoomHandlers) CreateRoomHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateRoomRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}

		created, code, err := h.svc.CreateRoom(c.Request.Context(), room.CreateRoomInput{
			CompanyID:         req.CompanyID,
			Name:              req.Name,
			CounterpartyEmail: req.CounterpartyEmail,
			TTL:               time.Duration(req.TTLHours) * time.Hour,
			IPWhitelist:       req.IPWhitelist,
			MFAEnabled:        req.MFAEnabled,
			MFAPhone:          req.MFAPhone,
			ActorEmail:        adminEmail(c),
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create room"})
			return
		}

		// The code is shown exactly once; only its bcrypt hash is stored.
		c.JSON(http.StatusCreated, gin.H{
			"room":        created,
			"access_code": code,
		})
	}
}

// @Summary      Get room
// @Tags         Rooms (admin)
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Room ID"
// @Success      200  {object}  map[string]interface{}  "Room details"
// @Failure      404  {object}  map[string]interface{}  "Room not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/rooms/{id} [get]
// GetRoomHandler retrieves a room.
// GET /api/v1/rooms/:id
func (h *RoomHandlers) GetRoomHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		got, err := h.svc.GetRoom(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, room.ErrRoomNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve room"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"room": got})
	}
}

// CloseRoomRequest is the close transition body.
type CloseRoomRequest struct {
	Outcome string `json:"outcome" binding:"required"` // "won" or "lost"
	Reason  string `json:"reason"`
}

// @Summary      Close room
// @Description  Transitions a room to CLOSED_WON or CLOSED_LOST. Closing an already-terminal room is a conflict.
// @Tags         Rooms (admin)
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string            true  "Room ID"
// @Param        body  body  CloseRoomRequest  true  "Close outcome and reason"
// @Success      200  {object}  map[string]interface{}  "Updated room"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      404  {object}  map[string]interface{}  "Room not found"
// @Failure      409  {object}  map[string]interface{}  "Transition not allowed from current status"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/rooms/{id}/close [post]
// CloseRoomHandler closes a room with a business outcome.
// POST /api/v1/rooms/:id/close
func (h *RoomHandlers) CloseRoomHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CloseRoomRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		updated, err := h.svc.CloseRoom(c.Request.Context(), c.Param("id"), req.Reason, req.Outcome, adminEmail(c))
		h.respondTransition(c, updated, err)
	}
}

// TransitionRequest carries the optional reason for revoke and suspend.
type TransitionRequest struct {
	Reason string `json:"reason"`
}

// @Summary      Revoke room
// @Description  Permanently revokes a room. REVOKED is terminal; there is no way back.
// @Tags         Rooms (admin)
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string             true  "Room ID"
// @Param        body  body  TransitionRequest  false  "Revocation reason"
// @Success      200  {object}  map[string]interface{}  "Updated room"
// @Failure      404  {object}  map[string]interface{}  "Room not found"
// @Failure      409  {object}  map[string]interface{}  "Transition not allowed from current status"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/rooms/{id}/revoke [post]
// RevokeRoomHandler revokes a room.
// POST /api/v1/rooms/:id/revoke
func (h *RoomHandlers) RevokeRoomHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TransitionRequest
		_ = c.ShouldBindJSON(&req)
		updated, err := h.svc.RevokeRoom(c.Request.Context(), c.Param("id"), req.Reason, adminEmail(c))
		h.respondTransition(c, updated, err)
	}
}

// @Summary      Suspend room
// @Tags         Rooms (admin)
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string             true  "Room ID"
// @Param        body  body  TransitionRequest  false  "Suspension reason"
// @Success      200  {object}  map[string]interface{}  "Updated room"
// @Failure      404  {object}  map[string]interface{}  "Room not found"
// @Failure      409  {object}  map[string]interface{}  "Transition not allowed from current status"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/rooms/{id}/suspend [post]
// SuspendRoomHandler pauses an active room.
// POST /api/v1/rooms/:id/suspend
func (h *RoomHandlers) SuspendRoomHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TransitionRequest
		_ = c.ShouldBindJSON(&req)
		updated, err := h.svc.SuspendRoom(c.Request.Context(), c.Param("id"), req.Reason, adminEmail(c))
		h.respondTransition(c, updated, err)
	}
}

// ReactivateRoomRequest optionally replaces the room's expiry on reactivation.
type ReactivateRoomRequest struct {
	ExpiresAt *string `json:"expires_at"` // RFC3339
}

// @Summary      Reactivate room
// @Description  Returns a SUSPENDED or EXPIRED room to ACTIVE, optionally with a new expiry. Terminal rooms cannot be reactivated.
// @Tags         Rooms (admin)
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                 true  "Room ID"
// @Param        body  body  ReactivateRoomRequest  false  "Optional new expiry (RFC3339)"
// @Success      200  {object}  map[string]interface{}  "Updated room"
// @Failure      400  {object}  map[string]interface{}  "Invalid expires_at"
// @Failure      404  {object}  map[string]interface{}  "Room not found"
// @Failure      409  {object}  map[string]interface{}  "Transition not allowed from current status"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/rooms/{id}/reactivate [post]
// ReactivateRoomHandler returns a room to ACTIVE.
// POST /api/v1/rooms/:id/reactivate
func (h *RoomHandlers) ReactivateRoomHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ReactivateRoomRequest
		_ = c.ShouldBindJSON(&req)

		var expiresAt *time.Time
		if req.ExpiresAt != nil {
			parsed, err := time.Parse(time.RFC3339, *req.ExpiresAt)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid expires_at format. Use RFC3339"})
				return
			}
			expiresAt = &parsed
		}

		updated, err := h.svc.ReactivateRoom(c.Request.Context(), c.Param("id"), expiresAt, adminEmail(c))
		h.respondTransition(c, updated, err)
	}
}

// @Summary      Regenerate access code
// @Description  Replaces an active room's access code. The new plaintext is returned once and never again.
// @Tags         Rooms (admin)
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Room ID"
// @Success      200  {object}  map[string]interface{}  "One-time access_code"
// @Failure      404  {object}  map[string]interface{}  "Room not found"
// @Failure      409  {object}  map[string]interface{}  "Room is not active"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/rooms/{id}/regenerate-code [post]
// RegenerateCodeHandler rotates a room's access code.
// POST /api/v1/rooms/:id/regenerate-code
func (h *RoomHandlers) RegenerateCodeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		code, err := h.svc.RegenerateCode(c.Request.Context(), c.Param("id"), adminEmail(c))
		if err != nil {
			h.respondTransition(c, nil, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"access_code": code})
	}
}

// @Summary      Room audit trail
// @Description  Lists a room's audit rows newest first.
// @Tags         Rooms (admin)
// @Security     Bearer
// @Produce      json
// @Param        id      path   string  true   "Room ID"
// @Param        limit   query  int     false  "Page size (default 50, max 500)"
// @Param        offset  query  int     false  "Page offset"
// @Success      200  {object}  map[string]interface{}  "Audit entries"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/rooms/{id}/audit [get]
// AuditTrailHandler lists a room's audit rows.
// GET /api/v1/rooms/:id/audit
func (h *RoomHandlers) AuditTrailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		if limit <= 0 || limit > 500 {
			limit = 50
		}
		if offset < 0 {
			offset = 0
		}

		entries, err := h.svc.AuditTrail(c.Request.Context(), c.Param("id"), limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list audit entries"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"entries": entries})
	}
}

// respondTransition maps the shared guarded-transition errors onto HTTP codes.
func (h *RoomHandlers) respondTransition(c *gin.Context, updated interface{}, err error) {
	if err != nil {
		switch {
		case errors.Is(err, room.ErrRoomNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		case errors.Is(err, room.ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update room"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": updated})
}

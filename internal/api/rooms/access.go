// Package rooms implements the counterparty-facing access endpoint. It is the
// only unauthenticated surface that touches room state, so its responses are
// deliberately uniform: every denial except the MFA challenge is the same
// generic body, whether the room is unknown, revoked, expired, IP-blocked or
// the code was simply wrong.
package rooms

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/room"
)

// AccessHandlers handles room admission attempts.
type AccessHandlers struct {
	svc *room.Service
}

// NewAccessHandlers creates a new AccessHandlers instance.
func NewAccessHandlers(svc *room.Service) *AccessHandlers {
	return &AccessHandlers{svc: svc}
}

// AttemptAccessRequest is the admission attempt body.
type AttemptAccessRequest struct {
	AccessCode string `json:"access_code" binding:"required"`
	MFACode    string `json:"mfa_code"`
}

// @Summary      Attempt room access
// @Description  Evaluates one access attempt against a room. Denials are uniform except for the MFA challenge, which is surfaced distinctly so the client can prompt for a code.
// @Tags         Rooms
// @Accept       json
// @Produce      json
// @Param        id    path  string                true  "Room ID"
// @Param        body  body  AttemptAccessRequest  true  "Access code and optional MFA code"
// @Success      200  {object}  map[string]interface{}  "status: granted, audit_log_id"
// @Failure      400  {object}  map[string]interface{}  "Malformed request body"
// @Failure      403  {object}  map[string]interface{}  "access denied, or status: mfa_required"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /v1/rooms/{id}/access [post]
// AttemptAccessHandler evaluates one admission attempt.
// POST /v1/rooms/:id/access
func (h *AccessHandlers) AttemptAccessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AttemptAccessRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "access_code is required"})
			return
		}

		result, err := h.svc.AttemptAccess(c.Request.Context(), c.Param("id"), room.AttemptInput{
			SuppliedCode: req.AccessCode,
			SourceIP:     c.ClientIP(),
			UserAgent:    c.Request.UserAgent(),
			MFACode:      req.MFACode,
		})
		if err != nil {
			if errors.Is(err, room.ErrAccessDenied) {
				c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process access attempt"})
			return
		}

		switch result.Outcome {
		case room.OutcomeGranted:
			c.JSON(http.StatusOK, gin.H{
				"status":       "granted",
				"audit_log_id": result.AuditLogID,
			})
		case room.OutcomeMFARequired:
			c.JSON(http.StatusForbidden, gin.H{
				"status": "mfa_required",
				"error":  "mfa challenge required",
			})
		default:
			c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
		}
	}
}

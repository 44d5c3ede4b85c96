package admin

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/apikey"
)

// APIKeyHandlers handles API key management endpoints.
type APIKeyHandlers struct {
	svc *apikey.Service
}

// NewAPIKeyHandlers creates a new APIKeyHandlers instance.
func NewAPIKeyHandlers(svc *apikey.Service) *APIKeyHandlers {
	return &APIKeyHandlers{svc: svc}
}

// IssueAPIKeyRequest is the key issuance body.
type IssueAPIKeyRequest struct {
	CustomerID     string  `json:"customer_id" binding:"required"`
	Name           string  `json:"name" binding:"required"`
	RequestsPerDay int     `json:"requests_per_day"` // 0 means the configured default
	ExpiresAt      *string `json:"expires_at"`       // RFC3339
}

// @Summary      Issue API key
// @Description  Issues a new ACTIVE key. The plaintext key is returned once in this response; afterwards only the reveal endpoint can recover it.
// @Tags         API Keys (admin)
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  IssueAPIKeyRequest  true  "Key issuance request"
// @Success      201  {object}  map[string]interface{}  "key record and one-time plaintext key"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/apikeys [post]
// IssueAPIKeyHandler issues a new key.
// POST /api/v1/apikeys
func (h *APIKeyHandlers) IssueAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req IssueAPIKeyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}

		var expiresAt *time.Time
		if req.ExpiresAt != nil {
			parsed, err := time.Parse(time.RFC3339, *req.ExpiresAt)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid expires_at format. Use RFC3339"})
				return
			}
			expiresAt = &parsed
		}

		key, plaintext, err := h.svc.Issue(c.Request.Context(), apikey.IssueInput{
			CustomerID:     req.CustomerID,
			Name:           req.Name,
			RequestsPerDay: req.RequestsPerDay,
			ExpiresAt:      expiresAt,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue API key"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"key":       key,
			"plaintext": plaintext,
		})
	}
}

// @Summary      List API keys
// @Tags         API Keys (admin)
// @Security     Bearer
// @Produce      json
// @Param        customer_id  query  string  true  "Customer ID"
// @Success      200  {object}  map[string]interface{}  "Keys for the customer"
// @Failure      400  {object}  map[string]interface{}  "Missing customer_id"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/apikeys [get]
// ListAPIKeysHandler lists a customer's keys.
// GET /api/v1/apikeys?customer_id=...
func (h *APIKeyHandlers) ListAPIKeysHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		customerID := c.Query("customer_id")
		if customerID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "customer_id is required"})
			return
		}

		keys, err := h.svc.ListByCustomer(c.Request.Context(), customerID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list API keys"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"keys": keys})
	}
}

// @Summary      Get API key
// @Tags         API Keys (admin)
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "API key ID"
// @Success      200  {object}  map[string]interface{}  "Key details"
// @Failure      404  {object}  map[string]interface{}  "API key not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/apikeys/{id} [get]
// GetAPIKeyHandler retrieves one key.
// GET /api/v1/apikeys/:id
func (h *APIKeyHandlers) GetAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		key, err := h.svc.GetKey(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, apikey.ErrKeyNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "API key not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve API key"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"key": key})
	}
}

// RevokeAPIKeyRequest carries the optional revocation reason.
type RevokeAPIKeyRequest struct {
	Reason string `json:"reason"`
}

// @Summary      Revoke API key
// @Description  Revokes a key. REVOKED is one-directional; a revoked key never authorizes again.
// @Tags         API Keys (admin)
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string               true   "API key ID"
// @Param        body  body  RevokeAPIKeyRequest  false  "Revocation reason"
// @Success      200  {object}  map[string]interface{}  "Updated key"
// @Failure      404  {object}  map[string]interface{}  "API key not found"
// @Failure      409  {object}  map[string]interface{}  "Key already revoked"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/apikeys/{id}/revoke [post]
// RevokeAPIKeyHandler revokes a key.
// POST /api/v1/apikeys/:id/revoke
func (h *APIKeyHandlers) RevokeAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RevokeAPIKeyRequest
		_ = c.ShouldBindJSON(&req)

		key, err := h.svc.Revoke(c.Request.Context(), c.Param("id"), req.Reason)
		if err != nil {
			switch {
			case errors.Is(err, apikey.ErrKeyNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "API key not found"})
			case errors.Is(err, apikey.ErrInvalidTransition):
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to revoke API key"})
			}
			return
		}
		c.JSON(http.StatusOK, gin.H{"key": key})
	}
}

// @Summary      Reveal API key
// @Description  Decrypts and returns the stored plaintext key for support tooling.
// @Tags         API Keys (admin)
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "API key ID"
// @Success      200  {object}  map[string]interface{}  "Plaintext key"
// @Failure      404  {object}  map[string]interface{}  "API key not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/apikeys/{id}/reveal [post]
// RevealAPIKeyHandler recovers a key's plaintext.
// POST /api/v1/apikeys/:id/reveal
func (h *APIKeyHandlers) RevealAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		plaintext, err := h.svc.RevealKey(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, apikey.ErrKeyNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "API key not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reveal API key"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"plaintext": plaintext})
	}
}

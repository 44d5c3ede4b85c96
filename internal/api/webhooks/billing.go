// Package webhooks handles inbound billing snapshot deliveries. Each delivery
// carries a customer's current subscription state; the payload is validated
// against an HMAC signature before processing to prevent spoofed deliveries,
// and snapshots apply idempotently so redelivered events converge on the same
// key state.
package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/billing"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/db/models"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body,
// optionally prefixed with "sha256=".
const SignatureHeader = "X-Billing-Signature"

// BillingWebhookHandler handles incoming billing snapshot deliveries.
type BillingWebhookHandler struct {
	svc    *billing.Service
	secret string
}

// NewBillingWebhookHandler creates a new webhook handler. An empty secret
// disables the endpoint entirely rather than accepting unsigned deliveries.
func NewBillingWebhookHandler(svc *billing.Service, secret string) *BillingWebhookHandler {
	return &BillingWebhookHandler{svc: svc, secret: secret}
}

// billingDelivery is the wire shape of one snapshot delivery.
type billingDelivery struct {
	StripeCustomerID   string  `json:"stripe_customer_id" binding:"required"`
	SubscriptionID     *string `json:"subscription_id"`
	SubscriptionStatus string  `json:"subscription_status"`
	CurrentPeriodEnd   *string `json:"current_period_end"` // RFC3339
}

// @Summary      Receive billing snapshot
// @Description  Receives a customer subscription snapshot and projects it onto the customer's API keys.
// @Description  The delivery body is authenticated with an HMAC-SHA256 signature over the raw payload,
// @Description  compared in constant time. Reapplying an identical snapshot is a no-op.
// @Tags         Webhooks
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "billing_status and keys_updated"
// @Failure      400  {object}  map[string]interface{}  "Malformed payload"
// @Failure      401  {object}  map[string]interface{}  "Missing or invalid signature"
// @Failure      404  {object}  map[string]interface{}  "Webhook not configured"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /webhooks/billing [post]
// HandleSnapshot processes one billing snapshot delivery.
// POST /webhooks/billing
func (h *BillingWebhookHandler) HandleSnapshot(c *gin.Context) {
	if h.secret == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "billing webhook not configured"})
		return
	}

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read payload"})
		return
	}

	if !h.verifySignature(payload, c.GetHeader(SignatureHeader)) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook signature"})
		return
	}

	var delivery billingDelivery
	if err := json.Unmarshal(payload, &delivery); err != nil || delivery.StripeCustomerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed snapshot payload"})
		return
	}

	var periodEnd *time.Time
	if delivery.CurrentPeriodEnd != nil {
		parsed, err := time.Parse(time.RFC3339, *delivery.CurrentPeriodEnd)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid current_period_end format. Use RFC3339"})
			return
		}
		periodEnd = &parsed
	}

	result, err := h.svc.ApplySnapshot(c.Request.Context(), billing.Snapshot{
		StripeCustomerID:   delivery.StripeCustomerID,
		SubscriptionID:     delivery.SubscriptionID,
		SubscriptionStatus: models.SubscriptionStatus(delivery.SubscriptionStatus),
		CurrentPeriodEnd:   periodEnd,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to apply snapshot"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"billing_status": result.BillingStatus,
		"keys_updated":   result.KeysUpdated,
	})
}

// verifySignature checks the hex HMAC-SHA256 of the payload in constant time.
func (h *BillingWebhookHandler) verifySignature(payload []byte, header string) bool {
	header = strings.TrimPrefix(header, "sha256=")
	supplied, err := hex.DecodeString(header)
	if err != nil || len(supplied) == 0 {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(payload)
	return hmac.Equal(supplied, mac.Sum(nil))
}

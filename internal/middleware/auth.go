// auth.go provides the two authentication middlewares: admin session JWTs for
// the administrative surface and API keys for the keyed automation endpoints.
package middleware

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/apikey"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/auth"
)

const (
	// AdminIDKey is the gin.Context key holding the authenticated admin's ID.
	AdminIDKey = "admin_id"
	// AdminEmailKey is the gin.Context key holding the authenticated admin's email.
	AdminEmailKey = "admin_email"
	// APIKeyKey is the gin.Context key holding the authorized *models.APIKey.
	APIKeyKey = "api_key"
	// APIKeyIDKey is the gin.Context key holding the authorized key's ID.
	APIKeyIDKey = "api_key_id"
)

// AdminAuthMiddleware validates the admin session JWT and stores the admin
// identity in the context. Administrative routes carry no anti-enumeration
// requirement, so error messages can be specific.
func AdminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractBearer(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		claims, err := auth.ValidateJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired session token"})
			return
		}

		c.Set(AdminIDKey, claims.AdminID)
		c.Set(AdminEmailKey, claims.Email)
		c.Next()
	}
}

// APIKeyAuthMiddleware runs the full key authorization path (credential,
// status, billing, quota) for automation endpoints and stores the authorized
// key in the context. Every outcome is already recorded in the automation
// ledger by the service; the middleware only translates it to HTTP.
//
// Denials are deliberately uniform: a missing key, a wrong key, a revoked key,
// and a billing-locked key all produce the same 401 body. Only quota
// exhaustion is distinguishable (429 with Retry-After), because the caller
// holds a valid credential and needs to know when to come back.
func APIKeyAuthMiddleware(svc *apikey.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractBearer(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		res, err := svc.Authorize(c.Request.Context(), token, apikey.RequestMeta{
			Endpoint: c.FullPath(),
			SourceIP: c.ClientIP(),
		})
		if err != nil {
			var limited *apikey.ErrRateLimited
			if errors.As(err, &limited) {
				retry := int(limited.RetryAfter.Seconds())
				if retry < 1 {
					retry = 1
				}
				c.Header("Retry-After", strconv.Itoa(retry))
				c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
					"error":       "rate limit exceeded",
					"retry_after": retry,
				})
				return
			}
			if errors.Is(err, apikey.ErrUnauthorized) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.Set(APIKeyKey, res.Key)
		c.Set(APIKeyIDKey, res.Key.ID)
		c.Next()
	}
}

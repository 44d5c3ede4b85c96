// Package api wires together all HTTP routes for the data room service.
//
// Route grouping philosophy:
//   - The counterparty access endpoint (/v1/rooms/:id/access) is intentionally
//     unauthenticated: the access code inside the request body IS the
//     credential, and every denial is externally uniform.
//   - Administrative routes (/api/v1/rooms, /api/v1/apikeys) require an admin
//     JWT.
//   - Automation routes (/api/v1/corrections, /api/v1/uploads) require an API
//     key and are metered against the key's daily quota by the auth
//     middleware itself.
//   - The billing webhook authenticates by payload signature, not by session.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/api/admin"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/api/automation"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/api/rooms"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/api/webhooks"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/apikey"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/audit"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/billing"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/config"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/corrections"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/crypto"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/db/repositories"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/jobs"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/middleware"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/room"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/safego"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/storage"
	_ "github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/storage/local" // register local backend
	_ "github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/storage/s3"    // register s3 backend
)

// Version is the service version, overridable at build time with
// -ldflags "-X .../internal/api.Version=...".
var Version = "0.1.0"

// BackgroundServices holds references to background jobs and resources that
// must be stopped during graceful shutdown. The caller (cmd/server) is
// responsible for calling Shutdown() when the process receives a termination
// signal.
type BackgroundServices struct {
	sweepers   []*jobs.Sweeper
	throttlers []middleware.Throttler
}

// Shutdown stops all background goroutines. It should be called after the
// HTTP server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	for _, s := range bg.sweepers {
		s.Stop()
	}
	for _, t := range bg.throttlers {
		t.Stop()
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router, wires the services, and
// starts the background sweeps.
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices, error) {
	router := gin.New()

	// Initialize storage backend
	storageBackend, err := storage.NewStorage(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing storage backend: %w", err)
	}
	slog.Info("storage backend initialized", "backend", cfg.Storage.DefaultBackend)

	// ENCRYPTION_KEY deliberately has no DRM_ prefix; it is typically injected
	// by the secret manager rather than the config layer.
	encryptionKey := os.Getenv("ENCRYPTION_KEY")
	cipher, err := crypto.NewKeyCipher([]byte(encryptionKey))
	if err != nil {
		return nil, nil, fmt.Errorf("initializing key cipher (is ENCRYPTION_KEY a 32-byte value?): %w", err)
	}

	// Initialize repositories
	roomRepo := repositories.NewRoomRepository(db)
	roomFileRepo := repositories.NewRoomFileRepository(db)
	auditRepo := repositories.NewAuditRepository(db)
	automationRepo := repositories.NewAutomationLogRepository(db)
	apiKeyRepo := repositories.NewAPIKeyRepository(db)
	correctionRepo := repositories.NewCorrectionRepository(db)
	uploadRepo := repositories.NewFileUploadRepository(db)
	customerRepo := repositories.NewStripeCustomerRepository(db)

	recorder := audit.NewRecorder(auditRepo, automationRepo, slog.Default())

	// Live-reloadable suspicious-activity thresholds
	tuning := config.NewSuspiciousTuning(cfg.Security.Suspicious)
	cfg.Watch(tuning)

	// Initialize services
	roomSvc := room.NewService(room.ServiceParams{
		DB:       db,
		Rooms:    roomRepo,
		Files:    roomFileRepo,
		AuditLog: auditRepo,
		Recorder: recorder,
		Engine:   room.NewEngine(nil),
		Tuning:   tuning,
		Cipher:   cipher,
		Store:    storageBackend,
		Config:   cfg.Rooms,
		Logger:   slog.Default(),
	})
	keySvc := apikey.NewService(apikey.ServiceParams{
		DB:       db,
		Keys:     apiKeyRepo,
		Recorder: recorder,
		Cipher:   cipher,
		Config:   cfg.Auth.APIKeys,
		Logger:   slog.Default(),
	})
	tracker := corrections.NewTracker(corrections.TrackerParams{
		DB:          db,
		Corrections: correctionRepo,
		Uploads:     uploadRepo,
		Recorder:    recorder,
		Logger:      slog.Default(),
	})
	billingSvc := billing.NewService(billing.ServiceParams{
		DB:        db,
		Keys:      apiKeyRepo,
		Customers: customerRepo,
		Recorder:  recorder,
		Logger:    slog.Default(),
	})

	// Background sweeps. Each sweeper blocks in Start, so they run under
	// safego.Go and are stopped through BackgroundServices.
	sweepers := []*jobs.Sweeper{
		jobs.NewSweeper("room_expiry", cfg.Jobs.RoomExpiryInterval, roomSvc.ExpireDue, slog.Default()),
		jobs.NewSweeper("suspicious_activity", cfg.Jobs.SuspiciousInterval, roomSvc.SweepSuspicious, slog.Default()),
		jobs.NewSweeper("key_expiry", cfg.Jobs.KeyExpiryInterval, keySvc.ExpireDue, slog.Default()),
	}

	shipper, err := audit.NewShipper(cfg.Audit, auditRepo, slog.Default())
	if err != nil {
		return nil, nil, fmt.Errorf("initializing audit shipper: %w", err)
	}
	if shipper.Enabled() {
		sweepers = append(sweepers, jobs.NewSweeper("audit_ship", cfg.Jobs.AuditShipInterval, shipper.Run, slog.Default()))
	}

	for _, s := range sweepers {
		s := s
		safego.Go(func() { s.Start(context.Background()) })
	}

	// Per-IP throttles: a tight one on the anonymous access endpoint, a looser
	// one on the metered automation surface.
	accessThrottler := middleware.NewThrottler(cfg.Redis, middleware.AccessThrottleConfig())
	automationThrottler := middleware.NewThrottler(cfg.Redis, middleware.AutomationThrottleConfig())

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db))

	// Readiness check endpoint (includes storage backend probe)
	router.GET("/ready", readinessHandler(db, storageBackend))

	// API version
	router.GET("/version", versionHandler())

	// Initialize handlers
	accessHandlers := rooms.NewAccessHandlers(roomSvc)
	roomHandlers := admin.NewRoomHandlers(roomSvc)
	apiKeyHandlers := admin.NewAPIKeyHandlers(keySvc)
	correctionHandlers := automation.NewCorrectionHandlers(tracker)
	uploadHandlers := automation.NewUploadHandlers(tracker, storageBackend, cfg.Storage.MaxUploadSizeBytes)
	billingWebhookHandler := webhooks.NewBillingWebhookHandler(billingSvc, cfg.Auth.BillingWebhookSecret)

	// Counterparty access endpoint (public, tightly throttled per IP)
	v1Rooms := router.Group("/v1/rooms")
	v1Rooms.Use(middleware.ThrottleMiddleware(accessThrottler))
	{
		v1Rooms.POST("/:id/access", accessHandlers.AttemptAccessHandler())
	}

	// Admin API endpoints
	apiV1 := router.Group("/api/v1")
	{
		adminGroup := apiV1.Group("")
		adminGroup.Use(middleware.AdminAuthMiddleware())
		{
			roomsGroup := adminGroup.Group("/rooms")
			{
				roomsGroup.POST("", roomHandlers.CreateRoomHandler())
				roomsGroup.GET("/:id", roomHandlers.GetRoomHandler())
				roomsGroup.POST("/:id/close", roomHandlers.CloseRoomHandler())
				roomsGroup.POST("/:id/revoke", roomHandlers.RevokeRoomHandler())
				roomsGroup.POST("/:id/suspend", roomHandlers.SuspendRoomHandler())
				roomsGroup.POST("/:id/reactivate", roomHandlers.ReactivateRoomHandler())
				roomsGroup.POST("/:id/regenerate-code", roomHandlers.RegenerateCodeHandler())
				roomsGroup.GET("/:id/audit", roomHandlers.AuditTrailHandler())
				roomsGroup.POST("/:id/files", roomHandlers.UploadRoomFileHandler())
				roomsGroup.GET("/:id/files", roomHandlers.ListRoomFilesHandler())
				roomsGroup.GET("/:id/files/:fileID/url", roomHandlers.RoomFileURLHandler())
				roomsGroup.DELETE("/:id/files/:fileID", roomHandlers.DeleteRoomFileHandler())
			}

			apiKeysGroup := adminGroup.Group("/apikeys")
			{
				apiKeysGroup.GET("", apiKeyHandlers.ListAPIKeysHandler())
				apiKeysGroup.POST("", apiKeyHandlers.IssueAPIKeyHandler())
				apiKeysGroup.GET("/:id", apiKeyHandlers.GetAPIKeyHandler())
				apiKeysGroup.POST("/:id/revoke", apiKeyHandlers.RevokeAPIKeyHandler())
				apiKeysGroup.POST("/:id/reveal", apiKeyHandlers.RevealAPIKeyHandler())
			}
		}

		// Automation endpoints: key auth runs the full authorize gate
		// (status, billing, quota) and meters the request.
		automationGroup := apiV1.Group("")
		automationGroup.Use(middleware.ThrottleMiddleware(automationThrottler))
		automationGroup.Use(middleware.APIKeyAuthMiddleware(keySvc))
		{
			automationGroup.POST("/corrections", correctionHandlers.SubmitCorrectionHandler())
			automationGroup.GET("/corrections", correctionHandlers.ListCorrectionsHandler())
			automationGroup.GET("/corrections/:id", correctionHandlers.GetCorrectionHandler())
			automationGroup.POST("/corrections/:id/complete", correctionHandlers.CompleteCorrectionHandler())
			automationGroup.POST("/corrections/:id/fail", correctionHandlers.FailCorrectionHandler())

			automationGroup.POST("/uploads", uploadHandlers.UploadFileHandler())
			automationGroup.GET("/uploads/:id", uploadHandlers.GetUploadHandler())
			automationGroup.GET("/uploads/:id/url", uploadHandlers.UploadURLHandler())
		}
	}

	// Webhook endpoints (public, authentication via signature validation)
	router.POST("/webhooks/billing", billingWebhookHandler.HandleSnapshot)

	bg := &BackgroundServices{
		sweepers:   sweepers,
		throttlers: []middleware.Throttler{accessThrottler, automationThrottler},
	}

	return router, bg, nil
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks database and storage connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "ready: false, error"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service.
// Unlike the liveness probe (/health), this also checks the storage backend so
// that a Kubernetes readiness gate fails when uploads/downloads would error.
func readinessHandler(db *sql.DB, storageBackend storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.Ping(); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		// Probe storage with a known-absent sentinel path. Exists() exercises
		// authentication and network connectivity without creating any state.
		if _, err := storageBackend.Exists(c.Request.Context(), ".readiness-probe"); err != nil {
			checks["storage"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "storage backend not ready",
			})
			return
		}
		checks["storage"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the current service and API version.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured request logging through the global
// slog handler configured in telemetry.SetupLogger.
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		requestID, _ := c.Get(middleware.RequestIDKey)
		slog.LogAttrs(
			c.Request.Context(),
			slog.LevelInfo,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", latency),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", fmt.Sprintf("%v", requestID)),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}

// CORSMiddleware handles CORS for the admin frontend.
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

package automation

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/corrections"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/db/models"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/storage"
)

// downloadURLTTL bounds how long a generated download link stays valid.
const downloadURLTTL = 15 * time.Minute

// UploadHandlers handles payroll file upload endpoints.
type UploadHandlers struct {
	tracker *corrections.Tracker
	store   storage.Storage
	maxSize int64
}

// NewUploadHandlers creates a new UploadHandlers instance.
func NewUploadHandlers(tracker *corrections.Tracker, store storage.Storage, maxSize int64) *UploadHandlers {
	return &UploadHandlers{tracker: tracker, store: store, maxSize: maxSize}
}

func (h *UploadHandlers) ownedUpload(c *gin.Context, uploadID string) (*models.FileUpload, bool) {
	up, err := h.tracker.GetUpload(c.Request.Context(), uploadID)
	if err != nil {
		if errors.Is(err, corrections.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "upload not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve upload"})
		}
		return nil, false
	}
	if up.APIKeyID != callerKeyID(c) {
		c.JSON(http.StatusNotFound, gin.H{"error": "upload not found"})
		return nil, false
	}
	return up, true
}

// @Summary      Upload payroll file
// @Description  Stores a payroll file and tracks it through the upload job machine. The job is opened in PROCESSING before the first byte hits storage, so a crash mid-write leaves an inspectable stuck job rather than an orphaned file.
// @Tags         Uploads
// @Security     ApiKeyAuth
// @Accept       multipart/form-data
// @Produce      json
// @Param        file  formData  file  true  "Payroll file"
// @Success      201  {object}  map[string]interface{}  "The completed upload job"
// @Failure      400  {object}  map[string]interface{}  "Missing file or file too large"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/uploads [post]
// UploadFileHandler stores one payroll file.
// POST /api/v1/uploads
func (h *UploadHandlers) UploadFileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		if h.maxSize > 0 && fileHeader.Size > h.maxSize {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("file exceeds maximum size of %d bytes", h.maxSize),
			})
			return
		}

		keyID := callerKeyID(c)
		contentType := fileHeader.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		up, err := h.tracker.StartUpload(c.Request.Context(), keyID, fileHeader.Filename, contentType)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open upload job"})
			return
		}

		src, err := fileHeader.Open()
		if err != nil {
			h.failUpload(c, up.ID, "reading upload body")
			return
		}
		defer src.Close()

		storagePath := fmt.Sprintf("payroll/%s/%s/%s", keyID, up.ID, fileHeader.Filename)
		result, err := h.store.Upload(c.Request.Context(), storagePath, src, fileHeader.Size)
		if err != nil {
			h.failUpload(c, up.ID, "writing to storage")
			return
		}

		finalized, err := h.tracker.CompleteUpload(c.Request.Context(), up.ID, result.Checksum, result.Path, result.Size)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to finalize upload"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"upload": finalized})
	}
}

// failUpload marks the job FAILED and answers 500. The finalize error is
// secondary to the storage failure already being reported.
func (h *UploadHandlers) failUpload(c *gin.Context, uploadID, stage string) {
	if _, err := h.tracker.FailUpload(c.Request.Context(), uploadID, stage+" failed"); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store file"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store file"})
}

// @Summary      Get upload
// @Tags         Uploads
// @Security     ApiKeyAuth
// @Produce      json
// @Param        id  path  string  true  "Upload ID"
// @Success      200  {object}  map[string]interface{}  "Upload details"
// @Failure      404  {object}  map[string]interface{}  "Upload not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/uploads/{id} [get]
// GetUploadHandler retrieves one upload job.
// GET /api/v1/uploads/:id
func (h *UploadHandlers) GetUploadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		up, ok := h.ownedUpload(c, c.Param("id"))
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"upload": up})
	}
}

// @Summary      Get upload download URL
// @Description  Returns a time-limited download URL for a completed upload.
// @Tags         Uploads
// @Security     ApiKeyAuth
// @Produce      json
// @Param        id  path  string  true  "Upload ID"
// @Success      200  {object}  map[string]interface{}  "url and expires_in seconds"
// @Failure      404  {object}  map[string]interface{}  "Upload not found"
// @Failure      409  {object}  map[string]interface{}  "Upload is not completed"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/uploads/{id}/url [get]
// UploadURLHandler issues a download URL for a stored file.
// GET /api/v1/uploads/:id/url
func (h *UploadHandlers) UploadURLHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		up, ok := h.ownedUpload(c, c.Param("id"))
		if !ok {
			return
		}
		if up.Status != models.JobCompleted {
			c.JSON(http.StatusConflict, gin.H{"error": "upload is not completed"})
			return
		}

		url, err := h.store.GetURL(c.Request.Context(), up.StoragePath, downloadURLTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate download URL"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"url":        url,
			"expires_in": int(downloadURLTTL.Seconds()),
		})
	}
}

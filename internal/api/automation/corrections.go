// Package automation implements the customer-facing payroll-automation
// handlers. Every route sits behind the API key middleware, which has already
// run the full authorize gate (key status, billing, quota) and stashed the
// key ID in the request context. Handlers only enforce ownership: a key can
// never see or finalize another key's jobs.
package automation

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/corrections"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/db/models"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/middleware"
)

// CorrectionHandlers handles payroll correction job endpoints.
type CorrectionHandlers struct {
	tracker *corrections.Tracker
}

// NewCorrectionHandlers creates a new CorrectionHandlers instance.
func NewCorrectionHandlers(tracker *corrections.Tracker) *CorrectionHandlers {
	return &CorrectionHandlers{tracker: tracker}
}

// callerKeyID pulls the authenticated API key ID out of the request context.
func callerKeyID(c *gin.Context) string {
	v, _ := c.Get(middleware.APIKeyIDKey)
	id, _ := v.(string)
	return id
}

// ownedJob loads a job and enforces that it belongs to the calling key. An
// unowned job is reported as not found, never as forbidden.
func (h *CorrectionHandlers) ownedJob(c *gin.Context, jobID string) (*models.PayrollCorrection, bool) {
	job, err := h.tracker.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, corrections.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve job"})
		}
		return nil, false
	}
	if job.APIKeyID != callerKeyID(c) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return nil, false
	}
	return job, true
}

// SubmitCorrectionRequest is the job submission body.
type SubmitCorrectionRequest struct {
	InputData json.RawMessage `json:"input_data" binding:"required"`
}

// @Summary      Submit correction job
// @Description  Opens a new payroll correction job in PROCESSING.
// @Tags         Corrections
// @Security     ApiKeyAuth
// @Accept       json
// @Produce      json
// @Param        body  body  SubmitCorrectionRequest  true  "Payroll data to correct"
// @Success      201  {object}  map[string]interface{}  "The created job"
// @Failure      400  {object}  map[string]interface{}  "Malformed request body"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/corrections [post]
// SubmitCorrectionHandler opens a new correction job.
// POST /api/v1/corrections
func (h *CorrectionHandlers) SubmitCorrectionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SubmitCorrectionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "input_data is required"})
			return
		}

		job, err := h.tracker.Start(c.Request.Context(), callerKeyID(c), req.InputData)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to submit job"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"job": job})
	}
}

// @Summary      Get correction job
// @Tags         Corrections
// @Security     ApiKeyAuth
// @Produce      json
// @Param        id  path  string  true  "Job ID"
// @Success      200  {object}  map[string]interface{}  "Job details"
// @Failure      404  {object}  map[string]interface{}  "Job not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/corrections/{id} [get]
// GetCorrectionHandler retrieves one job.
// GET /api/v1/corrections/:id
func (h *CorrectionHandlers) GetCorrectionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := h.ownedJob(c, c.Param("id"))
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"job": job})
	}
}

// @Summary      List correction jobs
// @Tags         Corrections
// @Security     ApiKeyAuth
// @Produce      json
// @Param        limit   query  int  false  "Page size (default 50, max 500)"
// @Param        offset  query  int  false  "Page offset"
// @Success      200  {object}  map[string]interface{}  "The caller's jobs, newest first"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/corrections [get]
// ListCorrectionsHandler lists the caller's jobs.
// GET /api/v1/corrections
func (h *CorrectionHandlers) ListCorrectionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		if limit <= 0 || limit > 500 {
			limit = 50
		}
		if offset < 0 {
			offset = 0
		}

		jobs, err := h.tracker.ListJobs(c.Request.Context(), callerKeyID(c), limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list jobs"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"jobs": jobs})
	}
}

// CompleteCorrectionRequest is the completion result body.
type CompleteCorrectionRequest struct {
	OutputData  json.RawMessage `json:"output_data" binding:"required"`
	IssuesFound *int            `json:"issues_found" binding:"required"`
}

// @Summary      Complete correction job
// @Description  Finalizes a PROCESSING job as COMPLETED. Resubmitting the identical result is a no-op; a different result against a finalized job is a conflict.
// @Tags         Corrections
// @Security     ApiKeyAuth
// @Accept       json
// @Produce      json
// @Param        id    path  string                     true  "Job ID"
// @Param        body  body  CompleteCorrectionRequest  true  "Correction result"
// @Success      200  {object}  map[string]interface{}  "The finalized job"
// @Failure      400  {object}  map[string]interface{}  "Malformed request body"
// @Failure      404  {object}  map[string]interface{}  "Job not found"
// @Failure      409  {object}  map[string]interface{}  "Job already finalized with a different result"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/corrections/{id}/complete [post]
// CompleteCorrectionHandler finalizes a job as COMPLETED.
// POST /api/v1/corrections/:id/complete
func (h *CorrectionHandlers) CompleteCorrectionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CompleteCorrectionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "output_data and issues_found are required"})
			return
		}
		if _, ok := h.ownedJob(c, c.Param("id")); !ok {
			return
		}

		job, err := h.tracker.Complete(c.Request.Context(), c.Param("id"), req.OutputData, *req.IssuesFound)
		h.respondFinalize(c, job, err)
	}
}

// FailCorrectionRequest is the failure result body.
type FailCorrectionRequest struct {
	Error string `json:"error" binding:"required"`
}

// @Summary      Fail correction job
// @Description  Finalizes a PROCESSING job as FAILED. Same idempotency contract as completion.
// @Tags         Corrections
// @Security     ApiKeyAuth
// @Accept       json
// @Produce      json
// @Param        id    path  string                 true  "Job ID"
// @Param        body  body  FailCorrectionRequest  true  "Failure message"
// @Success      200  {object}  map[string]interface{}  "The finalized job"
// @Failure      400  {object}  map[string]interface{}  "Malformed request body"
// @Failure      404  {object}  map[string]interface{}  "Job not found"
// @Failure      409  {object}  map[string]interface{}  "Job already finalized with a different result"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/corrections/{id}/fail [post]
// FailCorrectionHandler finalizes a job as FAILED.
// POST /api/v1/corrections/:id/fail
func (h *CorrectionHandlers) FailCorrectionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req FailCorrectionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "error is required"})
			return
		}
		if _, ok := h.ownedJob(c, c.Param("id")); !ok {
			return
		}

		job, err := h.tracker.Fail(c.Request.Context(), c.Param("id"), req.Error)
		h.respondFinalize(c, job, err)
	}
}

func (h *CorrectionHandlers) respondFinalize(c *gin.Context, job *models.PayrollCorrection, err error) {
	if err != nil {
		switch {
		case errors.Is(err, corrections.ErrJobNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		case errors.Is(err, corrections.ErrAlreadyFinalized):
			c.JSON(http.StatusConflict, gin.H{"error": "job already finalized with a different result"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to finalize job"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job})
}

// Package corrections tracks payroll-correction and file-upload jobs through
// the PROCESSING -> {COMPLETED, FAILED} machine. A job finalizes exactly once:
// resubmitting the identical result is an idempotent no-op, resubmitting a
// different one is a conflict. All mutations happen under the job's row lock
// and commit together with their ledger row.
package corrections

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/audit"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/db/models"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/db/repositories"
)

var (
	// ErrJobNotFound is returned when the referenced job does not exist.
	ErrJobNotFound = errors.New("job not found")

	// ErrAlreadyFinalized is returned when a finalize attempt conflicts with
	// the result already recorded for the job.
	ErrAlreadyFinalized = errors.New("job already finalized with a different result")
)

// TrackerParams wires a Tracker.
type TrackerParams struct {
	DB          *sql.DB
	Corrections *repositories.CorrectionRepository
	Uploads     *repositories.FileUploadRepository
	Recorder    *audit.Recorder
	Logger      *slog.Logger
	Now         func() time.Time // nil means time.Now
}

// Tracker owns the job state machine for corrections and uploads.
type Tracker struct {
	db      *sql.DB
	jobs    *repositories.CorrectionRepository
	uploads *repositories.FileUploadRepository
	rec     *audit.Recorder
	logger  *slog.Logger
	now     func() time.Time
}

// NewTracker creates a Tracker.
func NewTracker(p TrackerParams) *Tracker {
	now := p.Now
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		db:      p.DB,
		jobs:    p.Corrections,
		uploads: p.Uploads,
		rec:     p.Recorder,
		logger:  p.Logger,
		now:     now,
	}
}

// Start opens a new correction job in PROCESSING and records its submission.
func (t *Tracker) Start(ctx context.Context, apiKeyID string, inputData []byte) (*models.PayrollCorrection, error) {
	job := &models.PayrollCorrection{
		APIKeyID:  apiKeyID,
		Status:    models.JobProcessing,
		InputData: inputData,
	}

	err := t.inTx(ctx, func(tx *sql.Tx) error {
		if err := t.jobs.Create(ctx, tx, job); err != nil {
			return fmt.Errorf("creating correction job: %w", err)
		}
		_, err := t.rec.RecordAutomation(ctx, tx, audit.AutomationEvent{
			Key:     models.AttributedTo(apiKeyID),
			Type:    models.EventCorrectionSubmitted,
			Payload: &audit.JobPayload{JobID: job.ID},
			Success: true,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Complete finalizes a correction job as COMPLETED with its result. Calling
// Complete again with an identical result returns the stored job unchanged;
// any other finalize attempt after that returns ErrAlreadyFinalized.
func (t *Tracker) Complete(ctx context.Context, jobID string, outputData []byte, issuesFound int) (*models.PayrollCorrection, error) {
	var out *models.PayrollCorrection
	err := t.inTx(ctx, func(tx *sql.Tx) error {
		job, err := t.jobs.GetForUpdate(ctx, tx, jobID)
		if err != nil {
			return fmt.Errorf("locking correction job: %w", err)
		}
		if job == nil {
			return ErrJobNotFound
		}
		if job.Status.Terminal() {
			if completionMatches(job, outputData, issuesFound) {
				out = job
				return nil
			}
			return fmt.Errorf("%w: job %s is %s", ErrAlreadyFinalized, job.ID, job.Status)
		}

		now := t.now()
		job.Status = models.JobCompleted
		job.OutputData = outputData
		job.IssuesFound = &issuesFound
		job.FinishedAt = &now
		if err := t.jobs.Finalize(ctx, tx, job); err != nil {
			return fmt.Errorf("finalizing correction job: %w", err)
		}

		_, err = t.rec.RecordAutomation(ctx, tx, audit.AutomationEvent{
			Key:     models.AttributedTo(job.APIKeyID),
			Type:    models.EventCorrectionCompleted,
			Payload: &audit.JobPayload{JobID: job.ID, IssuesFound: &issuesFound},
			Success: true,
		})
		if err != nil {
			return err
		}
		out = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Fail finalizes a correction job as FAILED. The same idempotency rule as
// Complete applies: an identical failure resubmission is a no-op.
func (t *Tracker) Fail(ctx context.Context, jobID, errorMsg string) (*models.PayrollCorrection, error) {
	var out *models.PayrollCorrection
	err := t.inTx(ctx, func(tx *sql.Tx) error {
		job, err := t.jobs.GetForUpdate(ctx, tx, jobID)
		if err != nil {
			return fmt.Errorf("locking correction job: %w", err)
		}
		if job == nil {
			return ErrJobNotFound
		}
		if job.Status.Terminal() {
			if job.Status == models.JobFailed && job.ErrorMsg != nil && *job.ErrorMsg == errorMsg {
				out = job
				return nil
			}
			return fmt.Errorf("%w: job %s is %s", ErrAlreadyFinalized, job.ID, job.Status)
		}

		now := t.now()
		job.Status = models.JobFailed
		job.ErrorMsg = &errorMsg
		job.FinishedAt = &now
		if err := t.jobs.Finalize(ctx, tx, job); err != nil {
			return fmt.Errorf("finalizing correction job: %w", err)
		}

		_, err = t.rec.RecordAutomation(ctx, tx, audit.AutomationEvent{
			Key:      models.AttributedTo(job.APIKeyID),
			Type:     models.EventCorrectionFailed,
			Payload:  &audit.JobPayload{JobID: job.ID},
			Success:  false,
			ErrorMsg: &errorMsg,
		})
		if err != nil {
			return err
		}
		out = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetJob fetches one correction job.
func (t *Tracker) GetJob(ctx context.Context, jobID string) (*models.PayrollCorrection, error) {
	job, err := t.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// ListJobs lists a key's correction jobs newest first.
func (t *Tracker) ListJobs(ctx context.Context, apiKeyID string, limit, offset int) ([]*models.PayrollCorrection, error) {
	return t.jobs.ListByKey(ctx, apiKeyID, limit, offset)
}

// StartUpload opens a new upload job in PROCESSING while the content is being
// written to storage.
func (t *Tracker) StartUpload(ctx context.Context, apiKeyID, fileName, contentType string) (*models.FileUpload, error) {
	up := &models.FileUpload{
		APIKeyID:    apiKeyID,
		FileName:    fileName,
		ContentType: contentType,
		Status:      models.JobProcessing,
	}
	err := t.inTx(ctx, func(tx *sql.Tx) error {
		return t.uploads.Create(ctx, tx, up)
	})
	if err != nil {
		return nil, fmt.Errorf("creating upload job: %w", err)
	}
	return up, nil
}

// CompleteUpload finalizes an upload job as COMPLETED once the content is
// durably stored, and records the UPLOAD_STORED ledger row. A resubmission
// with the same checksum is a no-op; a different checksum is a conflict.
func (t *Tracker) CompleteUpload(ctx context.Context, uploadID, checksum, storagePath string, sizeBytes int64) (*models.FileUpload, error) {
	var out *models.FileUpload
	err := t.inTx(ctx, func(tx *sql.Tx) error {
		up, err := t.uploads.GetForUpdate(ctx, tx, uploadID)
		if err != nil {
			return fmt.Errorf("locking upload job: %w", err)
		}
		if up == nil {
			return ErrJobNotFound
		}
		if up.Status.Terminal() {
			if up.Status == models.JobCompleted && up.Checksum == checksum {
				out = up
				return nil
			}
			return fmt.Errorf("%w: upload %s is %s", ErrAlreadyFinalized, up.ID, up.Status)
		}

		now := t.now()
		up.Status = models.JobCompleted
		up.Checksum = checksum
		up.StoragePath = storagePath
		up.SizeBytes = sizeBytes
		up.FinishedAt = &now
		if err := t.uploads.Finalize(ctx, tx, up); err != nil {
			return fmt.Errorf("finalizing upload job: %w", err)
		}

		_, err = t.rec.RecordAutomation(ctx, tx, audit.AutomationEvent{
			Key:     models.AttributedTo(up.APIKeyID),
			Type:    models.EventUploadStored,
			Payload: &audit.JobPayload{JobID: up.ID, FileName: up.FileName, Checksum: checksum},
			Success: true,
		})
		if err != nil {
			return err
		}
		out = up
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FailUpload finalizes an upload job as FAILED.
func (t *Tracker) FailUpload(ctx context.Context, uploadID, errorMsg string) (*models.FileUpload, error) {
	var out *models.FileUpload
	err := t.inTx(ctx, func(tx *sql.Tx) error {
		up, err := t.uploads.GetForUpdate(ctx, tx, uploadID)
		if err != nil {
			return fmt.Errorf("locking upload job: %w", err)
		}
		if up == nil {
			return ErrJobNotFound
		}
		if up.Status.Terminal() {
			if up.Status == models.JobFailed && up.ErrorMsg != nil && *up.ErrorMsg == errorMsg {
				out = up
				return nil
			}
			return fmt.Errorf("%w: upload %s is %s", ErrAlreadyFinalized, up.ID, up.Status)
		}

		now := t.now()
		up.Status = models.JobFailed
		up.ErrorMsg = &errorMsg
		up.FinishedAt = &now
		if err := t.uploads.Finalize(ctx, tx, up); err != nil {
			return fmt.Errorf("finalizing upload job: %w", err)
		}
		out = up
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetUpload fetches one upload job.
func (t *Tracker) GetUpload(ctx context.Context, uploadID string) (*models.FileUpload, error) {
	up, err := t.uploads.GetByID(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if up == nil {
		return nil, ErrJobNotFound
	}
	return up, nil
}

// completionMatches reports whether a COMPLETED job already carries exactly
// this result.
func completionMatches(job *models.PayrollCorrection, outputData []byte, issuesFound int) bool {
	return job.Status == models.JobCompleted &&
		job.IssuesFound != nil && *job.IssuesFound == issuesFound &&
		bytes.Equal(job.OutputData, outputData)
}

func (t *Tracker) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// correction_repository.go implements CorrectionRepository and
// FileUploadRepository for the two job-tracking entities. Terminal-state
// immutability is enforced by internal/corrections, which always locks the row
// first via GetForUpdate.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/db/models"
)

const correctionColumns = `id, api_key_id, status, input_data, output_data,
		issues_found, error_msg, started_at, finished_at`

// CorrectionRepository handles payroll correction job database operations.
type CorrectionRepository struct {
	db *sql.DB
}

// NewCorrectionRepository creates a new CorrectionRepository.
func NewCorrectionRepository(db *sql.DB) *CorrectionRepository {
	return &CorrectionRepository{db: db}
}

// Create inserts a new correction job. ID and StartedAt are assigned here.
func (r *CorrectionRepository) Create(ctx context.Context, q Querier, c *models.PayrollCorrection) error {
	c.ID = uuid.New().String()
	c.StartedAt = time.Now()

	query := `
		INSERT INTO payroll_corrections (id, api_key_id, status, input_data,
			output_data, issues_found, error_msg, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := q.ExecContext(ctx, query,
		c.ID, c.APIKeyID, c.Status, c.InputData, c.OutputData, c.IssuesFound,
		c.ErrorMsg, c.StartedAt, c.FinishedAt,
	)
	return err
}

// GetByID retrieves a correction job. Returns (nil, nil) when absent.
func (r *CorrectionRepository) GetByID(ctx context.Context, id string) (*models.PayrollCorrection, error) {
	c, err := scanCorrection(r.db.QueryRowContext(ctx,
		`SELECT `+correctionColumns+` FROM payroll_corrections WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// GetForUpdate retrieves a correction job with a row-level exclusive lock.
func (r *CorrectionRepository) GetForUpdate(ctx context.Context, q Querier, id string) (*models.PayrollCorrection, error) {
	c, err := scanCorrection(q.QueryRowContext(ctx,
		`SELECT `+correctionColumns+` FROM payroll_corrections WHERE id = $1 FOR UPDATE`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// Finalize persists a job's terminal result under the caller's row lock.
func (r *CorrectionRepository) Finalize(ctx context.Context, q Querier, c *models.PayrollCorrection) error {
	query := `
		UPDATE payroll_corrections
		SET status = $2, output_data = $3, issues_found = $4, error_msg = $5, finished_at = $6
		WHERE id = $1
	`

	_, err := q.ExecContext(ctx, query,
		c.ID, c.Status, c.OutputData, c.IssuesFound, c.ErrorMsg, c.FinishedAt,
	)
	return err
}

// ListByKey retrieves a key's correction jobs newest first, with pagination.
func (r *CorrectionRepository) ListByKey(ctx context.Context, apiKeyID string, limit, offset int) ([]*models.PayrollCorrection, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+correctionColumns+` FROM payroll_corrections
		 WHERE api_key_id = $1 ORDER BY started_at DESC LIMIT $2 OFFSET $3`,
		apiKeyID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]*models.PayrollCorrection, 0)
	for rows.Next() {
		c, err := scanCorrection(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, c)
	}
	return jobs, rows.Err()
}

func scanCorrection(s rowScanner) (*models.PayrollCorrection, error) {
	c := &models.PayrollCorrection{}
	var outputData []byte
	err := s.Scan(
		&c.ID, &c.APIKeyID, &c.Status, &c.InputData, &outputData,
		&c.IssuesFound, &c.ErrorMsg, &c.StartedAt, &c.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	c.OutputData = outputData
	return c, nil
}

const fileUploadColumns = `id, api_key_id, file_name, content_type, size_bytes,
		checksum, storage_path, status, error_msg, created_at, finished_at`

// FileUploadRepository handles file upload job database operations.
type FileUploadRepository struct {
	db *sql.DB
}

// NewFileUploadRepository creates a new FileUploadRepository.
func NewFileUploadRepository(db *sql.DB) *FileUploadRepository {
	return &FileUploadRepository{db: db}
}

// Create inserts a new upload job. ID and CreatedAt are assigned here.
func (r *FileUploadRepository) Create(ctx context.Context, q Querier, f *models.FileUpload) error {
	f.ID = uuid.New().String()
	f.CreatedAt = time.Now()

	query := `
		INSERT INTO file_uploads (id, api_key_id, file_name, content_type,
			size_bytes, checksum, storage_path, status, error_msg, created_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := q.ExecContext(ctx, query,
		f.ID, f.APIKeyID, f.FileName, f.ContentType, f.SizeBytes, f.Checksum,
		f.StoragePath, f.Status, f.ErrorMsg, f.CreatedAt, f.FinishedAt,
	)
	return err
}

// GetByID retrieves an upload job. Returns (nil, nil) when absent.
func (r *FileUploadRepository) GetByID(ctx context.Context, id string) (*models.FileUpload, error) {
	f, err := scanFileUpload(r.db.QueryRowContext(ctx,
		`SELECT `+fileUploadColumns+` FROM file_uploads WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return f, err
}

// GetForUpdate retrieves an upload job with a row-level exclusive lock.
func (r *FileUploadRepository) GetForUpdate(ctx context.Context, q Querier, id string) (*models.FileUpload, error) {
	f, err := scanFileUpload(q.QueryRowContext(ctx,
		`SELECT `+fileUploadColumns+` FROM file_uploads WHERE id = $1 FOR UPDATE`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return f, err
}

// Finalize persists an upload job's terminal result under the caller's row lock.
func (r *FileUploadRepository) Finalize(ctx context.Context, q Querier, f *models.FileUpload) error {
	query := `
		UPDATE file_uploads
		SET status = $2, checksum = $3, storage_path = $4, size_bytes = $5,
			error_msg = $6, finished_at = $7
		WHERE id = $1
	`

	_, err := q.ExecContext(ctx, query,
		f.ID, f.Status, f.Checksum, f.StoragePath, f.SizeBytes, f.ErrorMsg, f.FinishedAt,
	)
	return err
}

func scanFileUpload(s rowScanner) (*models.FileUpload, error) {
	f := &models.FileUpload{}
	err := s.Scan(
		&f.ID, &f.APIKeyID, &f.FileName, &f.ContentType, &f.SizeBytes,
		&f.Checksum, &f.StoragePath, &f.Status, &f.ErrorMsg, &f.CreatedAt,
		&f.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// automation_log_repository.go implements AutomationLogRepository, the
// append-only event store for the payroll-automation API. The nullable
// api_key_id column is surfaced to callers as the models.Attribution sum type;
// the nullability never leaks past scan/insert.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/db/models"
)

const automationColumns = `id, api_key_id, event_type, event_data, endpoint,
		source_ip, success, error_msg, created_at`

// AutomationLogRepository handles automation log database operations.
type AutomationLogRepository struct {
	db *sql.DB
}

// NewAutomationLogRepository creates a new AutomationLogRepository.
func NewAutomationLogRepository(db *sql.DB) *AutomationLogRepository {
	return &AutomationLogRepository{db: db}
}

// Insert appends one automation event row. ID and CreatedAt are assigned here.
func (r *AutomationLogRepository) Insert(ctx context.Context, q Querier, log *models.AutomationLog) error {
	log.ID = uuid.New().String()
	log.CreatedAt = time.Now()

	var apiKeyID *string
	if id, ok := log.Key.KeyID(); ok {
		apiKeyID = &id
	}

	query := `
		INSERT INTO automation_logs (id, api_key_id, event_type, event_data,
			endpoint, source_ip, success, error_msg, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := q.ExecContext(ctx, query,
		log.ID, apiKeyID, log.EventType, log.EventData, log.Endpoint,
		log.SourceIP, log.Success, log.ErrorMsg, log.CreatedAt,
	)
	return err
}

// GetByID retrieves a single automation row. Returns (nil, nil) when absent.
func (r *AutomationLogRepository) GetByID(ctx context.Context, id string) (*models.AutomationLog, error) {
	log, err := scanAutomationLog(r.db.QueryRowContext(ctx,
		`SELECT `+automationColumns+` FROM automation_logs WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return log, err
}

// ListByKey retrieves a key's automation rows newest first, with pagination.
func (r *AutomationLogRepository) ListByKey(ctx context.Context, apiKeyID string, limit, offset int) ([]*models.AutomationLog, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+automationColumns+` FROM automation_logs
		 WHERE api_key_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		apiKeyID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]*models.AutomationLog, 0)
	for rows.Next() {
		log, err := scanAutomationLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

func scanAutomationLog(s rowScanner) (*models.AutomationLog, error) {
	log := &models.AutomationLog{}
	var apiKeyID *string
	var endpoint, sourceIP sql.NullString

	err := s.Scan(
		&log.ID, &apiKeyID, &log.EventType, &log.EventData, &endpoint,
		&sourceIP, &log.Success, &log.ErrorMsg, &log.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	log.Endpoint = endpoint.String
	log.SourceIP = sourceIP.String

	if apiKeyID != nil {
		log.Key = models.AttributedTo(*apiKeyID)
	} else {
		log.Key = models.Unattributed()
	}
	return log, nil
}

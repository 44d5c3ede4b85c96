// audit_repository.go implements AuditRepository. Only INSERT and SELECT exist:
// the append-only law for audit rows is enforced at this interface, not by
// convention in callers.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/db/models"
)

const auditColumns = `id, room_id, event_type, event_data, actor_email, actor_ip,
		user_agent, success, error_msg, created_at`

// AuditRepository handles audit log database operations.
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert appends one audit row. ID and CreatedAt are assigned here. The caller
// passes the transaction of the state change this row describes; an insert
// failure must abort that transaction (see internal/audit.Recorder).
func (r *AuditRepository) Insert(ctx context.Context, q Querier, log *models.AuditLog) error {
	log.ID = uuid.New().String()
	log.CreatedAt = time.Now()

	query := `
		INSERT INTO audit_logs (id, room_id, event_type, event_data, actor_email,
			actor_ip, user_agent, success, error_msg, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := q.ExecContext(ctx, query,
		log.ID, log.RoomID, log.EventType, log.EventData, log.ActorEmail,
		log.ActorIP, log.UserAgent, log.Success, log.ErrorMsg, log.CreatedAt,
	)
	return err
}

// GetByID retrieves a single audit row. Returns (nil, nil) when absent.
func (r *AuditRepository) GetByID(ctx context.Context, id string) (*models.AuditLog, error) {
	log, err := scanAuditLog(r.db.QueryRowContext(ctx,
		`SELECT `+auditColumns+` FROM audit_logs WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return log, err
}

// ListByRoom retrieves a room's audit rows newest first, with pagination.
func (r *AuditRepository) ListByRoom(ctx context.Context, roomID string, limit, offset int) ([]*models.AuditLog, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+auditColumns+` FROM audit_logs
		 WHERE room_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		roomID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAuditLogs(rows)
}

// ListSince returns audit rows created strictly after the given time, oldest
// first, capped at limit. The shipper tails the ledger with this; the cursor is
// the CreatedAt of the last row it exported.
func (r *AuditRepository) ListSince(ctx context.Context, after time.Time, limit int) ([]*models.AuditLog, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+auditColumns+` FROM audit_logs
		 WHERE created_at > $1 ORDER BY created_at ASC LIMIT $2`,
		after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAuditLogs(rows)
}

// RecentFailures returns a room's failed-attempt rows since the given time,
// oldest first. The suspicious-activity detector consumes this window; it runs
// inside the same transaction as the attempt being judged, hence the Querier.
func (r *AuditRepository) RecentFailures(ctx context.Context, q Querier, roomID string, since time.Time) ([]*models.AuditLog, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+auditColumns+` FROM audit_logs
		 WHERE room_id = $1 AND event_type = $2 AND success = false AND created_at >= $3
		 ORDER BY created_at ASC`,
		roomID, models.EventAccessFailed, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAuditLogs(rows)
}

func collectAuditLogs(rows *sql.Rows) ([]*models.AuditLog, error) {
	logs := make([]*models.AuditLog, 0)
	for rows.Next() {
		log, err := scanAuditLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

func scanAuditLog(s rowScanner) (*models.AuditLog, error) {
	log := &models.AuditLog{}
	err := s.Scan(
		&log.ID, &log.RoomID, &log.EventType, &log.EventData, &log.ActorEmail,
		&log.ActorIP, &log.UserAgent, &log.Success, &log.ErrorMsg, &log.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return log, nil
}

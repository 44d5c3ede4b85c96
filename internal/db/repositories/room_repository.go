// room_repository.go implements RoomRepository, providing single-row queries
// for conference rooms including the FOR UPDATE lock used by every admission
// and lifecycle transition.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/db/models"
)

const roomColumns = `id, company_id, name, counterparty_email, access_code_hash,
		encryption_key, status, code_generated_at, code_used, expires_at,
		closed_at, closure_reason, ip_whitelist, mfa_enabled, mfa_phone,
		first_accessed_at, last_accessed_at, access_count, created_at, updated_at`

// RoomRepository handles conference room database operations.
type RoomRepository struct {
	db *sql.DB
}

// NewRoomRepository creates a new RoomRepository.
func NewRoomRepository(db *sql.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// Create inserts a new room. ID and CreatedAt are assigned here.
func (r *RoomRepository) Create(ctx context.Context, q Querier, room *models.ConferenceRoom) error {
	room.ID = uuid.New().String()
	room.CreatedAt = time.Now()
	room.UpdatedAt = room.CreatedAt

	whitelistJSON, err := json.Marshal(room.IPWhitelist)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO conference_rooms (id, company_id, name, counterparty_email,
			access_code_hash, encryption_key, status, code_generated_at, code_used,
			expires_at, closed_at, closure_reason, ip_whitelist, mfa_enabled,
			mfa_phone, first_accessed_at, last_accessed_at, access_count,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`

	_, err = q.ExecContext(ctx, query,
		room.ID, room.CompanyID, room.Name, room.CounterpartyEmail,
		room.AccessCodeHash, room.EncryptionKey, room.Status, room.CodeGeneratedAt,
		room.CodeUsed, room.ExpiresAt, room.ClosedAt, room.ClosureReason,
		whitelistJSON, room.MFAEnabled, room.MFAPhone, room.FirstAccessedAt,
		room.LastAccessedAt, room.AccessCount, room.CreatedAt, room.UpdatedAt,
	)
	return err
}

// GetByID retrieves a room by primary key. Returns (nil, nil) when absent.
func (r *RoomRepository) GetByID(ctx context.Context, id string) (*models.ConferenceRoom, error) {
	return scanRoom(r.db.QueryRowContext(ctx,
		`SELECT `+roomColumns+` FROM conference_rooms WHERE id = $1`, id))
}

// GetForUpdate retrieves a room by primary key with a row-level exclusive lock.
// Must be called inside a transaction; concurrent attempts against the same
// room serialize here while unrelated rooms proceed unblocked.
func (r *RoomRepository) GetForUpdate(ctx context.Context, q Querier, id string) (*models.ConferenceRoom, error) {
	return scanRoom(q.QueryRowContext(ctx,
		`SELECT `+roomColumns+` FROM conference_rooms WHERE id = $1 FOR UPDATE`, id))
}

// Update persists every mutable room field. Callers hold the row lock from
// GetForUpdate, so this is a plain last-write inside the same transaction.
func (r *RoomRepository) Update(ctx context.Context, q Querier, room *models.ConferenceRoom) error {
	room.UpdatedAt = time.Now()

	whitelistJSON, err := json.Marshal(room.IPWhitelist)
	if err != nil {
		return err
	}

	query := `
		UPDATE conference_rooms
		SET status = $2, access_code_hash = $3, code_generated_at = $4,
			code_used = $5, expires_at = $6, closed_at = $7, closure_reason = $8,
			ip_whitelist = $9, mfa_enabled = $10, mfa_phone = $11,
			first_accessed_at = $12, last_accessed_at = $13, access_count = $14,
			updated_at = $15
		WHERE id = $1
	`

	_, err = q.ExecContext(ctx, query,
		room.ID, room.Status, room.AccessCodeHash, room.CodeGeneratedAt,
		room.CodeUsed, room.ExpiresAt, room.ClosedAt, room.ClosureReason,
		whitelistJSON, room.MFAEnabled, room.MFAPhone, room.FirstAccessedAt,
		room.LastAccessedAt, room.AccessCount, room.UpdatedAt,
	)
	return err
}

// ListByCompany retrieves all rooms owned by a company, newest first.
func (r *RoomRepository) ListByCompany(ctx context.Context, companyID string) ([]*models.ConferenceRoom, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+roomColumns+` FROM conference_rooms WHERE company_id = $1 ORDER BY created_at DESC`,
		companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rooms := make([]*models.ConferenceRoom, 0)
	for rows.Next() {
		room, err := scanRoomRows(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// ListActiveIDs returns the IDs of all rooms currently in ACTIVE status. The
// suspicious-activity sweep walks this list; it never writes status directly.
func (r *RoomRepository) ListActiveIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM conference_rooms WHERE status = $1`, models.RoomActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRoom(row *sql.Row) (*models.ConferenceRoom, error) {
	room, err := scanRoomRows(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return room, err
}

func scanRoomRows(s rowScanner) (*models.ConferenceRoom, error) {
	room := &models.ConferenceRoom{}
	var whitelistJSON []byte

	err := s.Scan(
		&room.ID, &room.CompanyID, &room.Name, &room.CounterpartyEmail,
		&room.AccessCodeHash, &room.EncryptionKey, &room.Status,
		&room.CodeGeneratedAt, &room.CodeUsed, &room.ExpiresAt, &room.ClosedAt,
		&room.ClosureReason, &whitelistJSON, &room.MFAEnabled, &room.MFAPhone,
		&room.FirstAccessedAt, &room.LastAccessedAt, &room.AccessCount,
		&room.CreatedAt, &room.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if whitelistJSON != nil {
		if err := json.Unmarshal(whitelistJSON, &room.IPWhitelist); err != nil {
			return nil, err
		}
	}
	return room, nil
}

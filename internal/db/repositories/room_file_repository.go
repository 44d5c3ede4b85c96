// room_file_repository.go implements RoomFileRepository for the documents
// shared inside a room. Content bytes live in the storage backend; these rows
// hold metadata only.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/db/models"
)

const roomFileColumns = `id, room_id, file_name, content_type, size_bytes,
		checksum, storage_path, uploaded_by, created_at`

// RoomFileRepository handles conference room file database operations.
type RoomFileRepository struct {
	db *sql.DB
}

// NewRoomFileRepository creates a new RoomFileRepository.
func NewRoomFileRepository(db *sql.DB) *RoomFileRepository {
	return &RoomFileRepository{db: db}
}

// Create inserts a new room file record. ID and CreatedAt are assigned here.
func (r *RoomFileRepository) Create(ctx context.Context, q Querier, f *models.ConferenceRoomFile) error {
	f.ID = uuid.New().String()
	f.CreatedAt = time.Now()

	query := `
		INSERT INTO conference_room_files (id, room_id, file_name, content_type,
			size_bytes, checksum, storage_path, uploaded_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := q.ExecContext(ctx, query,
		f.ID, f.RoomID, f.FileName, f.ContentType, f.SizeBytes, f.Checksum,
		f.StoragePath, f.UploadedBy, f.CreatedAt,
	)
	return err
}

// GetByID retrieves a room file record. Returns (nil, nil) when absent.
func (r *RoomFileRepository) GetByID(ctx context.Context, id string) (*models.ConferenceRoomFile, error) {
	f := &models.ConferenceRoomFile{}
	err := r.db.QueryRowContext(ctx,
		`SELECT `+roomFileColumns+` FROM conference_room_files WHERE id = $1`, id).Scan(
		&f.ID, &f.RoomID, &f.FileName, &f.ContentType, &f.SizeBytes, &f.Checksum,
		&f.StoragePath, &f.UploadedBy, &f.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// ListByRoom retrieves a room's file records, newest first.
func (r *RoomFileRepository) ListByRoom(ctx context.Context, roomID string) ([]*models.ConferenceRoomFile, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+roomFileColumns+` FROM conference_room_files
		 WHERE room_id = $1 ORDER BY created_at DESC`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	files := make([]*models.ConferenceRoomFile, 0)
	for rows.Next() {
		f := &models.ConferenceRoomFile{}
		err := rows.Scan(
			&f.ID, &f.RoomID, &f.FileName, &f.ContentType, &f.SizeBytes,
			&f.Checksum, &f.StoragePath, &f.UploadedBy, &f.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// Delete removes a file record after its content has been removed from storage.
// File deletions are themselves audited (FILE_DELETED) by the caller.
func (r *RoomFileRepository) Delete(ctx context.Context, q Querier, id string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM conference_room_files WHERE id = $1`, id)
	return err
}

// files.go implements the document operations on a room. Content bytes live in
// the storage backend; the database rows carry metadata and sha256 checksums.
// Every file mutation is recorded on the room's audit trail in the same
// transaction as the metadata change.
package room

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/audit"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/db/models"
	"github.com/google/uuid"
)

// ErrFileNotFound is returned when a file ID does not exist or belongs to a
// different room. The two cases are indistinguishable to the caller.
var ErrFileNotFound = errors.New("file not found")

// downloadURLTTL bounds how long a generated document link stays valid.
const downloadURLTTL = 15 * time.Minute

// UploadFileInput carries one document upload.
type UploadFileInput struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
	ActorEmail  string
}

// UploadFile stores a document in a room. Documents can only be added while
// the room is ACTIVE or SUSPENDED; terminal rooms are frozen.
func (s *Service) UploadFile(ctx context.Context, roomID string, in UploadFileInput) (*models.ConferenceRoomFile, error) {
	current, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("loading room: %w", err)
	}
	if current == nil {
		return nil, ErrRoomNotFound
	}
	if current.Status.Terminal() {
		return nil, fmt.Errorf("%w: cannot add files in status %s", ErrInvalidTransition, current.Status)
	}

	contentType := in.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	storagePath := fmt.Sprintf("rooms/%s/files/%s/%s", roomID, uuid.New().String(), in.FileName)
	result, err := s.store.Upload(ctx, storagePath, in.Body, in.Size)
	if err != nil {
		return nil, fmt.Errorf("writing to storage: %w", err)
	}

	file := &models.ConferenceRoomFile{
		RoomID:      roomID,
		FileName:    in.FileName,
		ContentType: contentType,
		SizeBytes:   result.Size,
		Checksum:    result.Checksum,
		StoragePath: result.Path,
		UploadedBy:  optString(in.ActorEmail),
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.files.Create(ctx, tx, file); err != nil {
			return fmt.Errorf("creating file record: %w", err)
		}
		_, err := s.rec.Record(ctx, tx, audit.Event{
			RoomID: roomID,
			Type:   models.EventFileUploaded,
			Payload: &audit.FilePayload{
				FileID:    file.ID,
				FileName:  file.FileName,
				SizeBytes: file.SizeBytes,
				Checksum:  file.Checksum,
			},
			ActorEmail: optString(in.ActorEmail),
			Success:    true,
		})
		return err
	})
	if err != nil {
		// The metadata row never landed; reap the orphaned object.
		if delErr := s.store.Delete(ctx, result.Path); delErr != nil {
			s.logger.Warn("orphaned file cleanup failed", "path", result.Path, "error", delErr)
		}
		return nil, err
	}
	return file, nil
}

// ListFiles lists a room's documents, newest first.
func (s *Service) ListFiles(ctx context.Context, roomID string) ([]*models.ConferenceRoomFile, error) {
	current, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("loading room: %w", err)
	}
	if current == nil {
		return nil, ErrRoomNotFound
	}
	return s.files.ListByRoom(ctx, roomID)
}

// FileDownloadURL issues a time-limited download link for one document and
// records the download on the room's audit trail.
func (s *Service) FileDownloadURL(ctx context.Context, roomID, fileID, actorEmail string) (string, *models.ConferenceRoomFile, error) {
	file, err := s.roomFile(ctx, roomID, fileID)
	if err != nil {
		return "", nil, err
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := s.rec.Record(ctx, tx, audit.Event{
			RoomID: roomID,
			Type:   models.EventFileDownloaded,
			Payload: &audit.FilePayload{
				FileID:    file.ID,
				FileName:  file.FileName,
				SizeBytes: file.SizeBytes,
				Checksum:  file.Checksum,
			},
			ActorEmail: optString(actorEmail),
			Success:    true,
		})
		return err
	})
	if err != nil {
		return "", nil, err
	}

	url, err := s.store.GetURL(ctx, file.StoragePath, downloadURLTTL)
	if err != nil {
		return "", nil, fmt.Errorf("generating download url: %w", err)
	}
	return url, file, nil
}

// DeleteFile removes a document's metadata row and audit-records the deletion,
// then removes the content from storage. A storage removal failure after commit
// leaves an unreferenced object behind; it is logged, not surfaced.
func (s *Service) DeleteFile(ctx context.Context, roomID, fileID, actorEmail string) error {
	file, err := s.roomFile(ctx, roomID, fileID)
	if err != nil {
		return err
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.files.Delete(ctx, tx, file.ID); err != nil {
			return fmt.Errorf("deleting file record: %w", err)
		}
		_, err := s.rec.Record(ctx, tx, audit.Event{
			RoomID: roomID,
			Type:   models.EventFileDeleted,
			Payload: &audit.FilePayload{
				FileID:    file.ID,
				FileName:  file.FileName,
				SizeBytes: file.SizeBytes,
			},
			ActorEmail: optString(actorEmail),
			Success:    true,
		})
		return err
	})
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, file.StoragePath); err != nil {
		s.logger.Warn("stored content removal failed after delete", "path", file.StoragePath, "error", err)
	}
	return nil
}

// roomFile loads a file and enforces that it belongs to the given room.
func (s *Service) roomFile(ctx context.Context, roomID, fileID string) (*models.ConferenceRoomFile, error) {
	file, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("loading file: %w", err)
	}
	if file == nil || file.RoomID != roomID {
		return nil, ErrFileNotFound
	}
	return file, nil
}

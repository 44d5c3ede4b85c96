package models

import "time"

// ConferenceRoomFile is one document shared inside a room. Content bytes live in
// the storage backend; this row carries the metadata and checksum.
type ConferenceRoomFile struct {
	ID          string    `json:"id" db:"id"`
	RoomID      string    `json:"room_id" db:"room_id"`
	FileName    string    `json:"file_name" db:"file_name"`
	ContentType string    `json:"content_type" db:"content_type"`
	SizeBytes   int64     `json:"size_bytes" db:"size_bytes"`
	Checksum    string    `json:"checksum" db:"checksum"` // sha256 of the stored content
	StoragePath string    `json:"-" db:"storage_path"`
	UploadedBy  *string   `json:"uploaded_by,omitempty" db:"uploaded_by"` // actor email; nil for system-side uploads
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

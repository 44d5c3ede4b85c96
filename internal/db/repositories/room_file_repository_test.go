package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/db/models"
)

var roomFileCols = []string{
	"id", "room_id", "file_name", "content_type", "size_bytes",
	"checksum", "storage_path", "uploaded_by", "created_at",
}

func newRoomFileRepo(t *testing.T) (*RoomFileRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewRoomFileRepository(db), mock
}

func roomFileRowFor(rows *sqlmock.Rows, id, fileName string) *sqlmock.Rows {
	uploadedBy := "admin@example.com"
	return rows.AddRow(
		id, "room-1", fileName, "application/pdf", int64(4096),
		"sha256:abc", "rooms/room-1/files/"+id+"/"+fileName, &uploadedBy, time.Now(),
	)
}

func TestRoomFileCreate_AssignsID(t *testing.T) {
	repo, mock := newRoomFileRepo(t)
	mock.ExpectExec("INSERT INTO conference_room_files").
		WillReturnResult(sqlmock.NewResult(0, 1))

	f := &models.ConferenceRoomFile{
		RoomID:      "room-1",
		FileName:    "term-sheet.pdf",
		ContentType: "application/pdf",
		SizeBytes:   4096,
		Checksum:    "sha256:abc",
		StoragePath: "rooms/room-1/files/x/term-sheet.pdf",
	}
	if err := repo.Create(context.Background(), repo.db, f); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.ID == "" {
		t.Error("expected generated ID")
	}
}

func TestRoomFileGetByID_NotFound(t *testing.T) {
	repo, mock := newRoomFileRepo(t)
	mock.ExpectQuery("FROM conference_room_files WHERE id").
		WillReturnRows(sqlmock.NewRows(roomFileCols))

	f, err := repo.GetByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f != nil {
		t.Errorf("expected nil, got %v", f)
	}
}

func TestRoomFileListByRoom(t *testing.T) {
	repo, mock := newRoomFileRepo(t)
	rows := sqlmock.NewRows(roomFileCols)
	roomFileRowFor(rows, "file-2", "cap-table.xlsx")
	roomFileRowFor(rows, "file-1", "term-sheet.pdf")
	mock.ExpectQuery("FROM conference_room_files").
		WithArgs("room-1").
		WillReturnRows(rows)

	files, err := repo.ListByRoom(context.Background(), "room-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("len(files) = %d, want 2", len(files))
	}
	if files[0].FileName != "cap-table.xlsx" {
		t.Errorf("FileName = %s, want cap-table.xlsx", files[0].FileName)
	}
}

func TestRoomFileDelete_DBError(t *testing.T) {
	repo, mock := newRoomFileRepo(t)
	mock.ExpectExec("DELETE FROM conference_room_files").WillReturnError(errDB)

	if err := repo.Delete(context.Background(), repo.db, "file-1"); err == nil {
		t.Error("expected error, got nil")
	}
}

package room

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/audit"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/config"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/crypto"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/db/models"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/db/repositories"
)

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cipher, err := crypto.NewKeyCipher(bytes.Repeat([]byte("k"), 32))
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}

	auditRepo := repositories.NewAuditRepository(db)
	svc := NewService(ServiceParams{
		DB:       db,
		Rooms:    repositories.NewRoomRepository(db),
		AuditLog: auditRepo,
		Recorder: audit.NewRecorder(auditRepo, repositories.NewAutomationLogRepository(db), logger),
		Engine:   NewEngine(nil),
		Tuning: config.NewSuspiciousTuning(config.SuspiciousConfig{
			FailureThreshold:    5,
			Window:              15 * time.Minute,
			DistinctIPThreshold: 3,
		}),
		Cipher: cipher,
		Config: config.RoomsConfig{DefaultTTL: 168 * time.Hour},
		Logger: logger,
	})
	return svc, mock
}

var roomCols = []string{
	"id", "company_id", "name", "counterparty_email", "access_code_hash",
	"encryption_key", "status", "code_generated_at", "code_used", "expires_at",
	"closed_at", "closure_reason", "ip_whitelist", "mfa_enabled", "mfa_phone",
	"first_accessed_at", "last_accessed_at", "access_count", "created_at", "updated_at",
}

func roomRows(room *models.ConferenceRoom) *sqlmock.Rows {
	whitelist, _ := json.Marshal(room.IPWhitelist)
	return sqlmock.NewRows(roomCols).AddRow(
		room.ID, room.CompanyID, room.Name, room.CounterpartyEmail,
		room.AccessCodeHash, room.EncryptionKey, room.Status, room.CodeGeneratedAt,
		room.CodeUsed, room.ExpiresAt, room.ClosedAt, room.ClosureReason,
		whitelist, room.MFAEnabled, room.MFAPhone, room.FirstAccessedAt,
		room.LastAccessedAt, room.AccessCount, room.CreatedAt, room.UpdatedAt,
	)
}

var auditCols = []string{
	"id", "room_id", "event_type", "event_data", "actor_email", "actor_ip",
	"user_agent", "success", "error_msg", "created_at",
}

func failureRows(roomID string, ips []string) *sqlmock.Rows {
	rows := sqlmock.NewRows(auditCols)
	for i, ip := range ips {
		payload, _ := json.Marshal(&audit.AccessAttemptPayload{Gate: audit.GateCode})
		rows.AddRow("fail-"+ip, roomID, models.EventAccessFailed, payload, nil, ip,
			nil, false, "access code mismatch", time.Now().Add(time.Duration(-i)*time.Minute))
	}
	return rows
}

// expectAuditInsert expects one audit row insert carrying the given event type.
func expectAuditInsert(mock sqlmock.Sqlmock, eventType models.AuditEventType) {
	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), string(eventType), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func TestAttemptAccess_Success_FirstUse(t *testing.T) {
	svc, mock := newTestService(t)

	room := activeRoom(t, "open-sesame")
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(room.ID).WillReturnRows(roomRows(room))
	mock.ExpectExec("UPDATE conference_rooms").WillReturnResult(sqlmock.NewResult(0, 1))
	expectAuditInsert(mock, models.EventAccessSuccess)
	expectAuditInsert(mock, models.EventRoomAccessed)
	mock.ExpectCommit()

	res, err := svc.AttemptAccess(context.Background(), room.ID, AttemptInput{
		SuppliedCode: "open-sesame", SourceIP: "10.0.0.1", UserAgent: "test-agent",
	})
	if err != nil {
		t.Fatalf("AttemptAccess: %v", err)
	}
	if res.Outcome != OutcomeGranted {
		t.Errorf("outcome = %s, want granted", res.Outcome)
	}
	if res.AuditLogID == "" {
		t.Error("result must correlate to an audit row id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAttemptAccess_RepeatUse_SingleAuditRow(t *testing.T) {
	svc, mock := newTestService(t)

	room := activeRoom(t, "open-sesame")
	room.CodeUsed = true
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(room.ID).WillReturnRows(roomRows(room))
	mock.ExpectExec("UPDATE conference_rooms").WillReturnResult(sqlmock.NewResult(0, 1))
	expectAuditInsert(mock, models.EventAccessSuccess)
	mock.ExpectCommit()

	res, err := svc.AttemptAccess(context.Background(), room.ID, AttemptInput{SuppliedCode: "open-sesame"})
	if err != nil {
		t.Fatalf("AttemptAccess: %v", err)
	}
	if res.Outcome != OutcomeGranted {
		t.Errorf("outcome = %s, want granted", res.Outcome)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("a repeat grant must not emit ROOM_ACCESSED again: %v", err)
	}
}

func TestAttemptAccess_WrongCode_NoRoomMutation(t *testing.T) {
	svc, mock := newTestService(t)

	room := activeRoom(t, "open-sesame")
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(room.ID).WillReturnRows(roomRows(room))
	// No UPDATE expectation: a failed attempt must not touch room counters.
	expectAuditInsert(mock, models.EventAccessFailed)
	mock.ExpectQuery("FROM audit_logs").WillReturnRows(failureRows(room.ID, []string{"10.0.0.1"}))
	mock.ExpectCommit()

	res, err := svc.AttemptAccess(context.Background(), room.ID, AttemptInput{
		SuppliedCode: "wrong", SourceIP: "10.0.0.1",
	})
	if err != nil {
		t.Fatalf("AttemptAccess: %v", err)
	}
	if res.Outcome != OutcomeDenied {
		t.Errorf("outcome = %s, want denied", res.Outcome)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAttemptAccess_ExpiredRoom_EventsInOrder(t *testing.T) {
	svc, mock := newTestService(t)

	room := activeRoom(t, "open-sesame")
	room.ExpiresAt = time.Now().Add(-time.Second)

	// Ordered expectations prove ROOM_EXPIRED is appended before the
	// ACCESS_ATTEMPT_FAILED row.
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(room.ID).WillReturnRows(roomRows(room))
	mock.ExpectExec("UPDATE conference_rooms").WillReturnResult(sqlmock.NewResult(0, 1))
	expectAuditInsert(mock, models.EventRoomExpired)
	expectAuditInsert(mock, models.EventAccessFailed)
	mock.ExpectCommit()

	res, err := svc.AttemptAccess(context.Background(), room.ID, AttemptInput{SuppliedCode: "open-sesame"})
	if err != nil {
		t.Fatalf("AttemptAccess: %v", err)
	}
	if res.Outcome != OutcomeDenied {
		t.Errorf("outcome = %s, want denied despite correct code", res.Outcome)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAttemptAccess_RevokedRoom_CorrectCodeStillDenied(t *testing.T) {
	svc, mock := newTestService(t)

	room := activeRoom(t, "open-sesame")
	room.Status = models.RoomRevoked

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(room.ID).WillReturnRows(roomRows(room))
	expectAuditInsert(mock, models.EventAccessFailed)
	mock.ExpectCommit()

	res, err := svc.AttemptAccess(context.Background(), room.ID, AttemptInput{SuppliedCode: "open-sesame"})
	if err != nil {
		t.Fatalf("AttemptAccess: %v", err)
	}
	if res.Outcome != OutcomeDenied {
		t.Errorf("outcome = %s, want denied", res.Outcome)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAttemptAccess_UnknownRoom_GenericDenial(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("no-such-room").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := svc.AttemptAccess(context.Background(), "no-such-room", AttemptInput{SuppliedCode: "anything"})
	if !errors.Is(err, ErrAccessDenied) {
		t.Errorf("err = %v, want ErrAccessDenied", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAttemptAccess_SuspiciousBurst_SuspendsRoom(t *testing.T) {
	svc, mock := newTestService(t)

	room := activeRoom(t, "open-sesame")
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(room.ID).WillReturnRows(roomRows(room))
	expectAuditInsert(mock, models.EventAccessFailed)
	mock.ExpectQuery("FROM audit_logs").
		WillReturnRows(failureRows(room.ID, []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4", "10.0.0.5"}))
	mock.ExpectExec("UPDATE conference_rooms").WillReturnResult(sqlmock.NewResult(0, 1))
	expectAuditInsert(mock, models.EventSuspiciousActivity)
	expectAuditInsert(mock, models.EventRoomSuspended)
	mock.ExpectCommit()

	res, err := svc.AttemptAccess(context.Background(), room.ID, AttemptInput{
		SuppliedCode: "wrong", SourceIP: "10.0.0.5",
	})
	if err != nil {
		t.Fatalf("AttemptAccess: %v", err)
	}
	if res.Outcome != OutcomeDenied {
		t.Errorf("outcome = %s, want denied", res.Outcome)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCloseRoom(t *testing.T) {
	t.Run("closes an active room as won", func(t *testing.T) {
		svc, mock := newTestService(t)

		room := activeRoom(t, "code")
		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE").WithArgs(room.ID).WillReturnRows(roomRows(room))
		mock.ExpectExec("UPDATE conference_rooms").WillReturnResult(sqlmock.NewResult(0, 1))
		expectAuditInsert(mock, models.EventRoomClosed)
		mock.ExpectCommit()

		closed, err := svc.CloseRoom(context.Background(), room.ID, "deal signed", "won", "admin@example.com")
		if err != nil {
			t.Fatalf("CloseRoom: %v", err)
		}
		if closed.Status != models.RoomClosedWon {
			t.Errorf("status = %s, want CLOSED_WON", closed.Status)
		}
		if closed.ClosedAt == nil || closed.ClosureReason == nil {
			t.Error("closedAt and closureReason must be set")
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})

	t.Run("second close is rejected without a duplicate event", func(t *testing.T) {
		svc, mock := newTestService(t)

		room := activeRoom(t, "code")
		room.Status = models.RoomClosedWon
		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE").WithArgs(room.ID).WillReturnRows(roomRows(room))
		mock.ExpectRollback()

		_, err := svc.CloseRoom(context.Background(), room.ID, "again", "won", "admin@example.com")
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("err = %v, want ErrInvalidTransition", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("no UPDATE or audit insert may happen on a rejected close: %v", err)
		}
	})

	t.Run("unknown outcome rejected before any query", func(t *testing.T) {
		svc, mock := newTestService(t)
		_, err := svc.CloseRoom(context.Background(), "room-1", "r", "draw", "admin@example.com")
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("err = %v, want ErrInvalidTransition", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unexpected database traffic: %v", err)
		}
	})
}

func TestReactivateRoom_ExtendsExpiry(t *testing.T) {
	svc, mock := newTestService(t)

	room := activeRoom(t, "code")
	room.Status = models.RoomExpired
	newExpiry := time.Now().Add(48 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(room.ID).WillReturnRows(roomRows(room))
	mock.ExpectExec("UPDATE conference_rooms").WillReturnResult(sqlmock.NewResult(0, 1))
	expectAuditInsert(mock, models.EventRoomReactivated)
	mock.ExpectCommit()

	got, err := svc.ReactivateRoom(context.Background(), room.ID, &newExpiry, "admin@example.com")
	if err != nil {
		t.Fatalf("ReactivateRoom: %v", err)
	}
	if got.Status != models.RoomActive {
		t.Errorf("status = %s, want ACTIVE", got.Status)
	}
	if !got.ExpiresAt.Equal(newExpiry) {
		t.Errorf("expiresAt = %s, want %s", got.ExpiresAt, newExpiry)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCreateRoom_ReturnsPlaintextCodeOnce(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO conference_rooms").WillReturnResult(sqlmock.NewResult(0, 1))
	expectAuditInsert(mock, models.EventRoomCreated)
	mock.ExpectCommit()

	room, code, err := svc.CreateRoom(context.Background(), CreateRoomInput{
		CompanyID:         "company-1",
		Name:              "Project Falcon",
		CounterpartyEmail: "cfo@acquirer.example",
		ActorEmail:        "owner@vendor.example",
	})
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if code == "" {
		t.Fatal("plaintext code must be returned at creation")
	}
	if room.AccessCodeHash == code {
		t.Error("stored hash must not equal the plaintext code")
	}
	if room.Status != models.RoomActive {
		t.Errorf("status = %s, want ACTIVE", room.Status)
	}
	if !room.ExpiresAt.After(time.Now().Add(167 * time.Hour)) {
		t.Errorf("expiresAt = %s, want default TTL applied", room.ExpiresAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRegenerateCode(t *testing.T) {
	t.Run("active room gets a new code", func(t *testing.T) {
		svc, mock := newTestService(t)

		room := activeRoom(t, "old-code")
		room.CodeUsed = true
		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE").WithArgs(room.ID).WillReturnRows(roomRows(room))
		mock.ExpectExec("UPDATE conference_rooms").WillReturnResult(sqlmock.NewResult(0, 1))
		expectAuditInsert(mock, models.EventCodeRegenerated)
		mock.ExpectCommit()

		code, err := svc.RegenerateCode(context.Background(), room.ID, "admin@example.com")
		if err != nil {
			t.Fatalf("RegenerateCode: %v", err)
		}
		if code == "" || code == "old-code" {
			t.Errorf("code = %q, want fresh plaintext", code)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})

	t.Run("rejected for suspended room", func(t *testing.T) {
		svc, mock := newTestService(t)

		room := activeRoom(t, "old-code")
		room.Status = models.RoomSuspended
		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE").WithArgs(room.ID).WillReturnRows(roomRows(room))
		mock.ExpectRollback()

		_, err := svc.RegenerateCode(context.Background(), room.ID, "admin@example.com")
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("err = %v, want ErrInvalidTransition", err)
		}
	})
}

func TestExpireDue_SkipsRoomsNotYetDue(t *testing.T) {
	svc, mock := newTestService(t)

	due := activeRoom(t, "a")
	due.ID = "room-due"
	due.ExpiresAt = time.Now().Add(-time.Minute)
	fresh := activeRoom(t, "b")
	fresh.ID = "room-fresh"

	mock.ExpectQuery("SELECT id FROM conference_rooms").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(due.ID).AddRow(fresh.ID))

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(due.ID).WillReturnRows(roomRows(due))
	mock.ExpectExec("UPDATE conference_rooms").WillReturnResult(sqlmock.NewResult(0, 1))
	expectAuditInsert(mock, models.EventRoomExpired)
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(fresh.ID).WillReturnRows(roomRows(fresh))
	mock.ExpectCommit()

	n, err := svc.ExpireDue(context.Background())
	if err != nil {
		t.Fatalf("ExpireDue: %v", err)
	}
	if n != 1 {
		t.Errorf("expired = %d, want 1", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestMaskPhone(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"+15551234567", "**********67"},
		{"12", "**"},
		{"", "**"},
	}
	for _, tt := range tests {
		if got := maskPhone(tt.in); got != tt.want {
			t.Errorf("maskPhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

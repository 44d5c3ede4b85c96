package room

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/audit"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/auth"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/config"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/crypto"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/db/models"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/db/repositories"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/storage"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/telemetry"
)

var (
	// ErrAccessDenied is the single error surfaced for every admission denial
	// except the MFA gate. Callers must not decorate it with the denying gate.
	ErrAccessDenied = errors.New("access denied")

	// ErrRoomNotFound is returned by administrative operations only. The
	// access path never distinguishes a missing room from a denial.
	ErrRoomNotFound = errors.New("room not found")
)

// AdmissionResult correlates an admission outcome with the audit row that
// records it.
type AdmissionResult struct {
	Outcome    Outcome
	AuditLogID string
}

// CreateRoomInput carries the administrative room creation request.
type CreateRoomInput struct {
	CompanyID         string
	Name              string
	CounterpartyEmail string
	TTL               time.Duration // 0 means the configured default
	IPWhitelist       []string
	MFAEnabled        bool
	MFAPhone          *string
	ActorEmail        string
}

// ServiceParams wires a Service.
type ServiceParams struct {
	DB       *sql.DB
	Rooms    *repositories.RoomRepository
	Files    *repositories.RoomFileRepository // optional; required for document operations
	AuditLog *repositories.AuditRepository
	Recorder *audit.Recorder
	Engine   *Engine
	Tuning   *config.SuspiciousTuning
	Cipher   *crypto.KeyCipher
	Store    storage.Storage // optional; required for document operations
	Sender   ChallengeSender // optional
	Config   config.RoomsConfig
	Logger   *slog.Logger
	Now      func() time.Time // nil means time.Now
}

// Service orchestrates room operations. Every state transition runs under the
// room's row lock with its audit rows in the same transaction; a failed audit
// write rolls the whole operation back.
type Service struct {
	db       *sql.DB
	rooms    *repositories.RoomRepository
	files    *repositories.RoomFileRepository
	auditLog *repositories.AuditRepository
	rec      *audit.Recorder
	engine   *Engine
	tuning   *config.SuspiciousTuning
	cipher   *crypto.KeyCipher
	store    storage.Storage
	sender   ChallengeSender
	cfg      config.RoomsConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a room Service.
func NewService(p ServiceParams) *Service {
	now := p.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		db:       p.DB,
		rooms:    p.Rooms,
		files:    p.Files,
		auditLog: p.AuditLog,
		rec:      p.Recorder,
		engine:   p.Engine,
		tuning:   p.Tuning,
		cipher:   p.Cipher,
		store:    p.Store,
		sender:   p.Sender,
		cfg:      p.Config,
		logger:   p.Logger,
		now:      now,
	}
}

// CreateRoom creates an ACTIVE room with a freshly generated access code and
// sealed content key. The plaintext code is returned exactly once and never
// stored.
func (s *Service) CreateRoom(ctx context.Context, in CreateRoomInput) (*models.ConferenceRoom, string, error) {
	code, hash, err := auth.GenerateAccessCode()
	if err != nil {
		return nil, "", fmt.Errorf("generating access code: %w", err)
	}
	contentKey, err := s.cipher.GenerateContentKey()
	if err != nil {
		return nil, "", fmt.Errorf("generating content key: %w", err)
	}

	ttl := in.TTL
	if ttl <= 0 {
		ttl = s.cfg.DefaultTTL
	}
	now := s.now()

	room := &models.ConferenceRoom{
		CompanyID:         in.CompanyID,
		Name:              in.Name,
		CounterpartyEmail: in.CounterpartyEmail,
		AccessCodeHash:    hash,
		EncryptionKey:     contentKey,
		Status:            models.RoomActive,
		CodeGeneratedAt:   now,
		ExpiresAt:         now.Add(ttl),
		IPWhitelist:       in.IPWhitelist,
		MFAEnabled:        in.MFAEnabled,
		MFAPhone:          in.MFAPhone,
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.rooms.Create(ctx, tx, room); err != nil {
			return fmt.Errorf("creating room: %w", err)
		}
		_, err := s.rec.Record(ctx, tx, audit.Event{
			RoomID:     room.ID,
			Type:       models.EventRoomCreated,
			Payload:    &audit.LifecyclePayload{NewStatus: models.RoomActive},
			ActorEmail: optString(in.ActorEmail),
			Success:    true,
		})
		return err
	})
	if err != nil {
		return nil, "", err
	}
	return room, code, nil
}

// AttemptAccess evaluates one access attempt under the room's row lock and
// returns the outcome with the correlating audit row ID. An unknown room ID
// yields the same denial a wrong code does.
func (s *Service) AttemptAccess(ctx context.Context, roomID string, in AttemptInput) (*AdmissionResult, error) {
	now := s.now()
	var result *AdmissionResult

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		room, err := s.rooms.GetForUpdate(ctx, tx, roomID)
		if err != nil {
			return fmt.Errorf("locking room: %w", err)
		}
		if room == nil {
			s.logger.Warn("access attempt against unknown room", "room_id", roomID, "source_ip", in.SourceIP)
			return ErrAccessDenied
		}

		d := s.engine.Evaluate(ctx, room, in, now)

		switch d.Outcome {
		case OutcomeGranted:
			result, err = s.commitGrant(ctx, tx, room, in, d, now)
		case OutcomeMFARequired:
			result, err = s.commitMFADenial(ctx, tx, room, in, now)
		default:
			result, err = s.commitDenial(ctx, tx, room, in, d, now)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) commitGrant(ctx context.Context, tx *sql.Tx, room *models.ConferenceRoom, in AttemptInput, d Decision, now time.Time) (*AdmissionResult, error) {
	room.CodeUsed = true
	if room.FirstAccessedAt == nil {
		t := now
		room.FirstAccessedAt = &t
	}
	t := now
	room.LastAccessedAt = &t
	room.AccessCount++

	if err := s.rooms.Update(ctx, tx, room); err != nil {
		return nil, fmt.Errorf("updating room counters: %w", err)
	}

	row, err := s.rec.Record(ctx, tx, audit.Event{
		RoomID:    room.ID,
		Type:      models.EventAccessSuccess,
		Payload:   &audit.AccessAttemptPayload{FirstUse: d.FirstUse, RoomStatus: room.Status},
		ActorIP:   optString(in.SourceIP),
		UserAgent: optString(in.UserAgent),
		Success:   true,
	})
	if err != nil {
		return nil, err
	}

	if d.FirstUse {
		_, err = s.rec.Record(ctx, tx, audit.Event{
			RoomID:    room.ID,
			Type:      models.EventRoomAccessed,
			Payload:   &audit.AccessAttemptPayload{FirstUse: true, RoomStatus: room.Status},
			ActorIP:   optString(in.SourceIP),
			UserAgent: optString(in.UserAgent),
			Success:   true,
		})
		if err != nil {
			return nil, err
		}
	}

	telemetry.RoomAccessAttemptsTotal.WithLabelValues(string(OutcomeGranted), "none").Inc()
	return &AdmissionResult{Outcome: OutcomeGranted, AuditLogID: row.ID}, nil
}

func (s *Service) commitMFADenial(ctx context.Context, tx *sql.Tx, room *models.ConferenceRoom, in AttemptInput, now time.Time) (*AdmissionResult, error) {
	row, err := s.rec.Record(ctx, tx, audit.Event{
		RoomID:    room.ID,
		Type:      models.EventAccessFailed,
		Payload:   &audit.AccessAttemptPayload{Gate: audit.GateMFA, RoomStatus: room.Status},
		ActorIP:   optString(in.SourceIP),
		UserAgent: optString(in.UserAgent),
		Success:   false,
		ErrorMsg:  optString("mfa challenge not satisfied"),
	})
	if err != nil {
		return nil, err
	}

	if s.sender != nil && room.MFAPhone != nil && in.MFACode == "" {
		if err := s.sender.Send(ctx, *room.MFAPhone); err != nil {
			s.logger.Warn("mfa challenge delivery failed", "room_id", room.ID, "error", err)
		} else {
			_, err = s.rec.Record(ctx, tx, audit.Event{
				RoomID:  room.ID,
				Type:    models.EventMFAChallengeSent,
				Payload: &audit.MFAChallengePayload{MaskedPhone: maskPhone(*room.MFAPhone)},
				ActorIP: optString(in.SourceIP),
				Success: true,
			})
			if err != nil {
				return nil, err
			}
		}
	}

	telemetry.RoomAccessAttemptsTotal.WithLabelValues(string(OutcomeMFARequired), string(audit.GateMFA)).Inc()
	return &AdmissionResult{Outcome: OutcomeMFARequired, AuditLogID: row.ID}, nil
}

func (s *Service) commitDenial(ctx context.Context, tx *sql.Tx, room *models.ConferenceRoom, in AttemptInput, d Decision, now time.Time) (*AdmissionResult, error) {
	if d.ExpireRoom {
		prev := room.Status
		if err := transition(room, models.RoomExpired); err != nil {
			return nil, err
		}
		if err := s.rooms.Update(ctx, tx, room); err != nil {
			return nil, fmt.Errorf("expiring room: %w", err)
		}
		_, err := s.rec.Record(ctx, tx, audit.Event{
			RoomID:  room.ID,
			Type:    models.EventRoomExpired,
			Payload: &audit.LifecyclePayload{PreviousStatus: prev, NewStatus: models.RoomExpired},
			Success: true,
		})
		if err != nil {
			return nil, err
		}
		telemetry.RoomTransitionsTotal.WithLabelValues(string(prev), string(models.RoomExpired)).Inc()
	}

	row, err := s.rec.Record(ctx, tx, audit.Event{
		RoomID:    room.ID,
		Type:      models.EventAccessFailed,
		Payload:   &audit.AccessAttemptPayload{Gate: d.Gate, RoomStatus: room.Status},
		ActorIP:   optString(in.SourceIP),
		UserAgent: optString(in.UserAgent),
		Success:   false,
		ErrorMsg:  optString(denialDetail(d.Gate)),
	})
	if err != nil {
		return nil, err
	}

	if room.Status == models.RoomActive {
		if err := s.checkSuspicious(ctx, tx, room, now, "inline"); err != nil {
			return nil, err
		}
	}

	telemetry.RoomAccessAttemptsTotal.WithLabelValues(string(OutcomeDenied), string(d.Gate)).Inc()
	return &AdmissionResult{Outcome: OutcomeDenied, AuditLogID: row.ID}, nil
}

// denialDetail is the internal audit annotation for a denial. It never leaves
// the audit trail.
func denialDetail(g audit.Gate) string {
	switch g {
	case audit.GateStatus:
		return "room not active"
	case audit.GateExpiry:
		return "room expired"
	case audit.GateIP:
		return "source ip not in allow-list"
	case audit.GateCode:
		return "access code mismatch"
	}
	return "denied"
}

// checkSuspicious runs the detection pass inside the attempt's transaction,
// so the row just appended is part of the window it judges.
func (s *Service) checkSuspicious(ctx context.Context, tx *sql.Tx, room *models.ConferenceRoom, now time.Time, source string) error {
	tuning := s.tuning.Current()
	failures, err := s.auditLog.RecentFailures(ctx, tx, room.ID, now.Add(-tuning.Window))
	if err != nil {
		return fmt.Errorf("loading recent failures: %w", err)
	}

	verdict := DetectSuspicious(failures, tuning)
	if !verdict.Tripped {
		return nil
	}

	prev := room.Status
	if err := transition(room, models.RoomSuspended); err != nil {
		// Already left ACTIVE in this transaction; nothing to do.
		return nil
	}
	if err := s.rooms.Update(ctx, tx, room); err != nil {
		return fmt.Errorf("suspending room: %w", err)
	}

	_, err = s.rec.Record(ctx, tx, audit.Event{
		RoomID: room.ID,
		Type:   models.EventSuspiciousActivity,
		Payload: &audit.SuspiciousActivityPayload{
			FailureCount:  verdict.FailureCount,
			DistinctIPs:   verdict.DistinctIPs,
			WindowSeconds: int(tuning.Window.Seconds()),
		},
		Success: true,
	})
	if err != nil {
		return err
	}
	_, err = s.rec.Record(ctx, tx, audit.Event{
		RoomID:  room.ID,
		Type:    models.EventRoomSuspended,
		Payload: &audit.LifecyclePayload{Reason: "suspicious activity", PreviousStatus: prev, NewStatus: models.RoomSuspended},
		Success: true,
	})
	if err != nil {
		return err
	}

	telemetry.SuspiciousActivityTotal.WithLabelValues(source).Inc()
	telemetry.RoomTransitionsTotal.WithLabelValues(string(prev), string(models.RoomSuspended)).Inc()
	s.logger.Warn("room suspended for suspicious activity",
		"room_id", room.ID, "failures", verdict.FailureCount, "distinct_ips", verdict.DistinctIPs, "source", source)
	return nil
}

// CloseRoom transitions a room to CLOSED_WON or CLOSED_LOST. outcome is
// "won" or "lost".
func (s *Service) CloseRoom(ctx context.Context, roomID, reason, outcome, actorEmail string) (*models.ConferenceRoom, error) {
	var target models.RoomStatus
	switch strings.ToLower(outcome) {
	case "won":
		target = models.RoomClosedWon
	case "lost":
		target = models.RoomClosedLost
	default:
		return nil, fmt.Errorf("%w: unknown close outcome %q", ErrInvalidTransition, outcome)
	}

	return s.adminTransition(ctx, roomID, target, reason, actorEmail, models.EventRoomClosed, func(room *models.ConferenceRoom, now time.Time) {
		t := now
		room.ClosedAt = &t
		room.ClosureReason = &reason
	})
}

// RevokeRoom permanently revokes a room.
func (s *Service) RevokeRoom(ctx context.Context, roomID, reason, actorEmail string) (*models.ConferenceRoom, error) {
	return s.adminTransition(ctx, roomID, models.RoomRevoked, reason, actorEmail, models.EventRoomRevoked, func(room *models.ConferenceRoom, now time.Time) {
		t := now
		room.ClosedAt = &t
		room.ClosureReason = &reason
	})
}

// SuspendRoom pauses an active room.
func (s *Service) SuspendRoom(ctx context.Context, roomID, reason, actorEmail string) (*models.ConferenceRoom, error) {
	return s.adminTransition(ctx, roomID, models.RoomSuspended, reason, actorEmail, models.EventRoomSuspended, nil)
}

// ReactivateRoom returns a SUSPENDED or EXPIRED room to ACTIVE. newExpiresAt,
// when non-nil, replaces the expiry so a reactivated expired room does not
// immediately expire again on the next attempt.
func (s *Service) ReactivateRoom(ctx context.Context, roomID string, newExpiresAt *time.Time, actorEmail string) (*models.ConferenceRoom, error) {
	return s.adminTransition(ctx, roomID, models.RoomActive, "", actorEmail, models.EventRoomReactivated, func(room *models.ConferenceRoom, now time.Time) {
		if newExpiresAt != nil {
			room.ExpiresAt = *newExpiresAt
		}
		room.ClosedAt = nil
		room.ClosureReason = nil
	})
}

// RegenerateCode replaces an active room's access code and returns the new
// plaintext exactly once.
func (s *Service) RegenerateCode(ctx context.Context, roomID, actorEmail string) (string, error) {
	code, hash, err := auth.GenerateAccessCode()
	if err != nil {
		return "", fmt.Errorf("generating access code: %w", err)
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		room, err := s.rooms.GetForUpdate(ctx, tx, roomID)
		if err != nil {
			return fmt.Errorf("locking room: %w", err)
		}
		if room == nil {
			return ErrRoomNotFound
		}
		if room.Status != models.RoomActive {
			return fmt.Errorf("%w: cannot regenerate code in status %s", ErrInvalidTransition, room.Status)
		}

		room.AccessCodeHash = hash
		room.CodeUsed = false
		room.CodeGeneratedAt = s.now()
		if err := s.rooms.Update(ctx, tx, room); err != nil {
			return fmt.Errorf("updating room: %w", err)
		}

		_, err = s.rec.Record(ctx, tx, audit.Event{
			RoomID:     room.ID,
			Type:       models.EventCodeRegenerated,
			Payload:    &audit.LifecyclePayload{NewStatus: room.Status},
			ActorEmail: optString(actorEmail),
			Success:    true,
		})
		return err
	})
	if err != nil {
		return "", err
	}
	return code, nil
}

// adminTransition is the shared guarded-transition skeleton for the
// administrative operations. mutate, when non-nil, applies extra field
// changes after the status guard passes.
func (s *Service) adminTransition(ctx context.Context, roomID string, target models.RoomStatus, reason, actorEmail string, event models.AuditEventType, mutate func(*models.ConferenceRoom, time.Time)) (*models.ConferenceRoom, error) {
	var out *models.ConferenceRoom
	now := s.now()

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		room, err := s.rooms.GetForUpdate(ctx, tx, roomID)
		if err != nil {
			return fmt.Errorf("locking room: %w", err)
		}
		if room == nil {
			return ErrRoomNotFound
		}

		prev := room.Status
		if err := transition(room, target); err != nil {
			return err
		}
		if mutate != nil {
			mutate(room, now)
		}
		if err := s.rooms.Update(ctx, tx, room); err != nil {
			return fmt.Errorf("updating room: %w", err)
		}

		_, err = s.rec.Record(ctx, tx, audit.Event{
			RoomID:     room.ID,
			Type:       event,
			Payload:    &audit.LifecyclePayload{Reason: reason, PreviousStatus: prev, NewStatus: target},
			ActorEmail: optString(actorEmail),
			Success:    true,
		})
		if err != nil {
			return err
		}

		telemetry.RoomTransitionsTotal.WithLabelValues(string(prev), string(target)).Inc()
		out = room
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ExpireDue sweeps active rooms past their expiry through the guarded
// transition, one transaction per room so a failure on one room never blocks
// the rest. Returns the number of rooms expired.
func (s *Service) ExpireDue(ctx context.Context) (int, error) {
	ids, err := s.rooms.ListActiveIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing active rooms: %w", err)
	}

	expired := 0
	for _, id := range ids {
		now := s.now()
		err := s.inTx(ctx, func(tx *sql.Tx) error {
			room, err := s.rooms.GetForUpdate(ctx, tx, id)
			if err != nil {
				return err
			}
			// Re-check under the lock; an attempt may have expired it already.
			if room == nil || room.Status != models.RoomActive || !now.After(room.ExpiresAt) {
				return nil
			}

			prev := room.Status
			if err := transition(room, models.RoomExpired); err != nil {
				return err
			}
			if err := s.rooms.Update(ctx, tx, room); err != nil {
				return err
			}
			_, err = s.rec.Record(ctx, tx, audit.Event{
				RoomID:  room.ID,
				Type:    models.EventRoomExpired,
				Payload: &audit.LifecyclePayload{PreviousStatus: prev, NewStatus: models.RoomExpired},
				Success: true,
			})
			if err != nil {
				return err
			}
			telemetry.RoomTransitionsTotal.WithLabelValues(string(prev), string(models.RoomExpired)).Inc()
			expired++
			return nil
		})
		if err != nil {
			s.logger.Error("room expiry sweep failed for room", "room_id", id, "error", err)
		}
	}
	return expired, nil
}

// SweepSuspicious runs the detection pass over every active room. The
// inline check on the failure path catches bursts; this sweep catches slow
// drips that never trip inline because attempts are spread out.
func (s *Service) SweepSuspicious(ctx context.Context) (int, error) {
	ids, err := s.rooms.ListActiveIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing active rooms: %w", err)
	}

	suspended := 0
	for _, id := range ids {
		now := s.now()
		err := s.inTx(ctx, func(tx *sql.Tx) error {
			room, err := s.rooms.GetForUpdate(ctx, tx, id)
			if err != nil {
				return err
			}
			if room == nil || room.Status != models.RoomActive {
				return nil
			}
			before := room.Status
			if err := s.checkSuspicious(ctx, tx, room, now, "sweep"); err != nil {
				return err
			}
			if room.Status != before {
				suspended++
			}
			return nil
		})
		if err != nil {
			s.logger.Error("suspicious sweep failed for room", "room_id", id, "error", err)
		}
	}
	return suspended, nil
}

// GetRoom fetches a room for administrative display.
func (s *Service) GetRoom(ctx context.Context, roomID string) (*models.ConferenceRoom, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// AuditTrail lists a room's audit rows newest first.
func (s *Service) AuditTrail(ctx context.Context, roomID string, limit, offset int) ([]*models.AuditLog, error) {
	return s.auditLog.ListByRoom(ctx, roomID, limit, offset)
}

// inTx runs fn in a transaction, committing on nil and rolling back on error.
func (s *Service) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
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

// maskPhone keeps the last two digits of a phone number.
func maskPhone(phone string) string {
	if len(phone) <= 2 {
		return "**"
	}
	return strings.Repeat("*", len(phone)-2) + phone[len(phone)-2:]
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/db/models"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/db/repositories"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/telemetry"
)

// Event describes one room audit entry to record. Payload is optional; when
// set, its schema must be legal for Type.
type Event struct {
	RoomID     string
	Type       models.AuditEventType
	Payload    Payload
	ActorEmail *string
	ActorIP    *string
	UserAgent  *string
	Success    bool
	ErrorMsg   *string
}

// AutomationEvent describes one automation log entry to record.
type AutomationEvent struct {
	Key      models.Attribution
	Type     models.AutomationEventType
	Payload  AutomationPayload
	Endpoint string
	SourceIP string
	Success  bool
	ErrorMsg *string
}

// Recorder writes audit and automation rows. Callers pass the Querier of the
// transaction carrying the state change being described; Record returning an
// error means the caller must roll that transaction back.
type Recorder struct {
	audit      *repositories.AuditRepository
	automation *repositories.AutomationLogRepository
	logger     *slog.Logger
}

// NewRecorder creates a Recorder over both append-only stores.
func NewRecorder(audit *repositories.AuditRepository, automation *repositories.AutomationLogRepository, logger *slog.Logger) *Recorder {
	return &Recorder{audit: audit, automation: automation, logger: logger}
}

// Record validates and appends one room audit row, returning the stored row.
func (r *Recorder) Record(ctx context.Context, q repositories.Querier, ev Event) (*models.AuditLog, error) {
	if !ev.Type.Valid() {
		return nil, fmt.Errorf("audit: unknown event type %q", ev.Type)
	}

	var data []byte
	if ev.Payload != nil {
		if !ev.Payload.AppliesTo(ev.Type) {
			return nil, fmt.Errorf("audit: payload %T not valid for event type %s", ev.Payload, ev.Type)
		}
		var err error
		data, err = json.Marshal(ev.Payload)
		if err != nil {
			return nil, fmt.Errorf("audit: encoding %s payload: %w", ev.Type, err)
		}
	}

	row := &models.AuditLog{
		RoomID:     ev.RoomID,
		EventType:  ev.Type,
		EventData:  data,
		ActorEmail: ev.ActorEmail,
		ActorIP:    ev.ActorIP,
		UserAgent:  ev.UserAgent,
		Success:    ev.Success,
		ErrorMsg:   ev.ErrorMsg,
	}
	if err := r.audit.Insert(ctx, q, row); err != nil {
		r.logger.Error("audit insert failed, aborting transaction",
			"room_id", ev.RoomID, "event_type", ev.Type, "error", err)
		return nil, fmt.Errorf("audit: recording %s: %w", ev.Type, err)
	}

	telemetry.AuditEventsRecorded.WithLabelValues(string(ev.Type)).Inc()
	return row, nil
}

// RecordAutomation validates and appends one automation row.
func (r *Recorder) RecordAutomation(ctx context.Context, q repositories.Querier, ev AutomationEvent) (*models.AutomationLog, error) {
	if !ev.Type.Valid() {
		return nil, fmt.Errorf("audit: unknown automation event type %q", ev.Type)
	}

	var data []byte
	if ev.Payload != nil {
		if !ev.Payload.AppliesToAutomation(ev.Type) {
			return nil, fmt.Errorf("audit: payload %T not valid for automation event type %s", ev.Payload, ev.Type)
		}
		var err error
		data, err = json.Marshal(ev.Payload)
		if err != nil {
			return nil, fmt.Errorf("audit: encoding %s payload: %w", ev.Type, err)
		}
	}

	row := &models.AutomationLog{
		Key:       ev.Key,
		EventType: ev.Type,
		EventData: data,
		Endpoint:  ev.Endpoint,
		SourceIP:  ev.SourceIP,
		Success:   ev.Success,
		ErrorMsg:  ev.ErrorMsg,
	}
	if err := r.automation.Insert(ctx, q, row); err != nil {
		r.logger.Error("automation log insert failed, aborting transaction",
			"event_type", ev.Type, "endpoint", ev.Endpoint, "error", err)
		return nil, fmt.Errorf("audit: recording %s: %w", ev.Type, err)
	}

	telemetry.AutomationEventsRecorded.WithLabelValues(string(ev.Type)).Inc()
	return row, nil
}

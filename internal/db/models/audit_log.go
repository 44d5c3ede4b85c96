// audit_log.go defines the AuditLog model: one immutable row per
// security-relevant event against one room. Rows are only ever inserted —
// no update or delete path exists anywhere in the codebase.
package models

import (
	"encoding/json"
	"time"
)

// AuditEventType identifies the kind of security event an AuditLog records.
type AuditEventType string

const (
	EventRoomCreated         AuditEventType = "ROOM_CREATED"
	EventRoomAccessed        AuditEventType = "ROOM_ACCESSED"
	EventAccessSuccess       AuditEventType = "ACCESS_ATTEMPT_SUCCESS"
	EventAccessFailed        AuditEventType = "ACCESS_ATTEMPT_FAILED"
	EventRoomExpired         AuditEventType = "ROOM_EXPIRED"
	EventRoomClosed          AuditEventType = "ROOM_CLOSED"
	EventRoomRevoked         AuditEventType = "ROOM_REVOKED"
	EventRoomSuspended       AuditEventType = "ROOM_SUSPENDED"
	EventRoomReactivated     AuditEventType = "ROOM_REACTIVATED"
	EventCodeRegenerated     AuditEventType = "CODE_REGENERATED"
	EventFileUploaded        AuditEventType = "FILE_UPLOADED"
	EventFileDownloaded      AuditEventType = "FILE_DOWNLOADED"
	EventFileDeleted         AuditEventType = "FILE_DELETED"
	EventMFAChallengeSent    AuditEventType = "MFA_CHALLENGE_SENT"
	EventSuspiciousActivity  AuditEventType = "SUSPICIOUS_ACTIVITY"
)

// Valid reports whether t is one of the defined audit event types.
func (t AuditEventType) Valid() bool {
	switch t {
	case EventRoomCreated, EventRoomAccessed, EventAccessSuccess, EventAccessFailed,
		EventRoomExpired, EventRoomClosed, EventRoomRevoked, EventRoomSuspended,
		EventRoomReactivated, EventCodeRegenerated, EventFileUploaded,
		EventFileDownloaded, EventFileDeleted, EventMFAChallengeSent,
		EventSuspiciousActivity:
		return true
	}
	return false
}

// AuditLog is one immutable security event against one room. EventData holds
// the JSON payload whose schema is determined by EventType (see internal/audit).
type AuditLog struct {
	ID         string          `json:"id" db:"id"`
	RoomID     string          `json:"room_id" db:"room_id"`
	EventType  AuditEventType  `json:"event_type" db:"event_type"`
	EventData  json.RawMessage `json:"event_data,omitempty" db:"event_data"` // one schema per event type
	ActorEmail *string         `json:"actor_email,omitempty" db:"actor_email"`
	ActorIP    *string         `json:"actor_ip,omitempty" db:"actor_ip"`
	UserAgent  *string         `json:"user_agent,omitempty" db:"user_agent"`
	Success    bool            `json:"success" db:"success"`
	ErrorMsg   *string         `json:"error_msg,omitempty" db:"error_msg"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// Package audit implements the append-only event recorders for both ledgers:
// room AuditLogs and API-key AutomationLogs. Event payloads are discriminated
// by event type — one schema per type, validated at the recorder boundary —
// instead of free-form JSON. Fields a payload schema does not know about are
// preserved verbatim on the Extra map rather than silently dropped, so rows
// written by newer builds survive a round trip through older ones.
//
// Recording happens inside the same database transaction as the state change
// the event describes. A failed insert aborts that transaction: a security
// event that cannot be recorded must also not have happened.
package audit

import (
	"encoding/json"

	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/db/models"
)

// Gate names the admission check that produced a denial. Pre-credential gates
// (status, expiry, ip) must stay externally indistinguishable; the gate name
// appears only in the audit payload.
type Gate string

const (
	GateStatus Gate = "status"
	GateExpiry Gate = "expiry"
	GateIP     Gate = "ip"
	GateCode   Gate = "code"
	GateMFA    Gate = "mfa"
)

// Payload is the typed event-data body of an audit or automation event.
// AppliesTo reports whether the payload schema is legal for the given room
// event type; automation payloads implement AppliesToAutomation instead.
type Payload interface {
	AppliesTo(t models.AuditEventType) bool
}

// AutomationPayload is the typed event-data body of an automation event.
type AutomationPayload interface {
	AppliesToAutomation(t models.AutomationEventType) bool
}

// marshalWithExtra renders v and merges unknown passthrough fields. Known
// fields win on collision.
func marshalWithExtra(v interface{}, extra map[string]json.RawMessage) ([]byte, error) {
	base, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return base, nil
	}

	m := map[string]json.RawMessage{}
	if err := json.Unmarshal(base, &m); err != nil {
		return nil, err
	}
	for k, raw := range extra {
		if _, known := m[k]; !known {
			m[k] = raw
		}
	}
	return json.Marshal(m)
}

// unmarshalWithExtra decodes data into v and returns the fields v's schema did
// not consume.
func unmarshalWithExtra(data []byte, v interface{}) (map[string]json.RawMessage, error) {
	if err := json.Unmarshal(data, v); err != nil {
		return nil, err
	}

	all := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}

	base, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	known := map[string]json.RawMessage{}
	if err := json.Unmarshal(base, &known); err != nil {
		return nil, err
	}

	for k := range known {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

// AccessAttemptPayload accompanies ACCESS_ATTEMPT_SUCCESS,
// ACCESS_ATTEMPT_FAILED, and ROOM_ACCESSED events.
type AccessAttemptPayload struct {
	Gate       Gate              `json:"gate,omitempty"` // denying gate; empty on success
	RoomStatus models.RoomStatus `json:"room_status,omitempty"`
	FirstUse   bool              `json:"first_use"`
	Extra      map[string]json.RawMessage `json:"-"`
}

func (p *AccessAttemptPayload) AppliesTo(t models.AuditEventType) bool {
	return t == models.EventAccessSuccess || t == models.EventAccessFailed || t == models.EventRoomAccessed
}

func (p *AccessAttemptPayload) MarshalJSON() ([]byte, error) {
	type alias AccessAttemptPayload
	return marshalWithExtra((*alias)(p), p.Extra)
}

func (p *AccessAttemptPayload) UnmarshalJSON(data []byte) error {
	type alias AccessAttemptPayload
	extra, err := unmarshalWithExtra(data, (*alias)(p))
	if err != nil {
		return err
	}
	p.Extra = extra
	return nil
}

// LifecyclePayload accompanies room lifecycle events: ROOM_CREATED,
// ROOM_EXPIRED, ROOM_CLOSED, ROOM_REVOKED, ROOM_SUSPENDED, ROOM_REACTIVATED,
// and CODE_REGENERATED.
type LifecyclePayload struct {
	Reason         string            `json:"reason,omitempty"`
	Outcome        string            `json:"outcome,omitempty"` // closeRoom only: "won" or "lost"
	PreviousStatus models.RoomStatus `json:"previous_status,omitempty"`
	NewStatus      models.RoomStatus `json:"new_status,omitempty"`
	Extra          map[string]json.RawMessage `json:"-"`
}

func (p *LifecyclePayload) AppliesTo(t models.AuditEventType) bool {
	switch t {
	case models.EventRoomCreated, models.EventRoomExpired, models.EventRoomClosed,
		models.EventRoomRevoked, models.EventRoomSuspended,
		models.EventRoomReactivated, models.EventCodeRegenerated:
		return true
	}
	return false
}

func (p *LifecyclePayload) MarshalJSON() ([]byte, error) {
	type alias LifecyclePayload
	return marshalWithExtra((*alias)(p), p.Extra)
}

func (p *LifecyclePayload) UnmarshalJSON(data []byte) error {
	type alias LifecyclePayload
	extra, err := unmarshalWithExtra(data, (*alias)(p))
	if err != nil {
		return err
	}
	p.Extra = extra
	return nil
}

// FilePayload accompanies FILE_UPLOADED, FILE_DOWNLOADED, and FILE_DELETED.
type FilePayload struct {
	FileID    string `json:"file_id"`
	FileName  string `json:"file_name"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum,omitempty"`
	Extra     map[string]json.RawMessage `json:"-"`
}

func (p *FilePayload) AppliesTo(t models.AuditEventType) bool {
	return t == models.EventFileUploaded || t == models.EventFileDownloaded || t == models.EventFileDeleted
}

func (p *FilePayload) MarshalJSON() ([]byte, error) {
	type alias FilePayload
	return marshalWithExtra((*alias)(p), p.Extra)
}

func (p *FilePayload) UnmarshalJSON(data []byte) error {
	type alias FilePayload
	extra, err := unmarshalWithExtra(data, (*alias)(p))
	if err != nil {
		return err
	}
	p.Extra = extra
	return nil
}

// MFAChallengePayload accompanies MFA_CHALLENGE_SENT. The phone number is
// masked before it ever reaches the recorder.
type MFAChallengePayload struct {
	MaskedPhone string `json:"masked_phone"`
	Extra       map[string]json.RawMessage `json:"-"`
}

func (p *MFAChallengePayload) AppliesTo(t models.AuditEventType) bool {
	return t == models.EventMFAChallengeSent
}

func (p *MFAChallengePayload) MarshalJSON() ([]byte, error) {
	type alias MFAChallengePayload
	return marshalWithExtra((*alias)(p), p.Extra)
}

func (p *MFAChallengePayload) UnmarshalJSON(data []byte) error {
	type alias MFAChallengePayload
	extra, err := unmarshalWithExtra(data, (*alias)(p))
	if err != nil {
		return err
	}
	p.Extra = extra
	return nil
}

// SuspiciousActivityPayload accompanies SUSPICIOUS_ACTIVITY.
type SuspiciousActivityPayload struct {
	FailureCount  int `json:"failure_count"`
	DistinctIPs   int `json:"distinct_ips"`
	WindowSeconds int `json:"window_seconds"`
	Extra         map[string]json.RawMessage `json:"-"`
}

func (p *SuspiciousActivityPayload) AppliesTo(t models.AuditEventType) bool {
	return t == models.EventSuspiciousActivity
}

func (p *SuspiciousActivityPayload) MarshalJSON() ([]byte, error) {
	type alias SuspiciousActivityPayload
	return marshalWithExtra((*alias)(p), p.Extra)
}

func (p *SuspiciousActivityPayload) UnmarshalJSON(data []byte) error {
	type alias SuspiciousActivityPayload
	extra, err := unmarshalWithExtra(data, (*alias)(p))
	if err != nil {
		return err
	}
	p.Extra = extra
	return nil
}

// AuthOutcomePayload accompanies AUTHENTICATION_FAILED, API_KEY_VALIDATED, and
// RATE_LIMIT_EXCEEDED automation events.
type AuthOutcomePayload struct {
	Reason            string           `json:"reason,omitempty"`
	KeyStatus         models.KeyStatus `json:"key_status,omitempty"`
	Limit             int              `json:"limit,omitempty"`
	Used              int              `json:"used,omitempty"`
	RetryAfterSeconds int              `json:"retry_after_seconds,omitempty"`
	Extra             map[string]json.RawMessage `json:"-"`
}

func (p *AuthOutcomePayload) AppliesToAutomation(t models.AutomationEventType) bool {
	return t == models.EventAuthenticationFailed || t == models.EventAPIKeyValidated || t == models.EventRateLimitExceeded
}

func (p *AuthOutcomePayload) MarshalJSON() ([]byte, error) {
	type alias AuthOutcomePayload
	return marshalWithExtra((*alias)(p), p.Extra)
}

func (p *AuthOutcomePayload) UnmarshalJSON(data []byte) error {
	type alias AuthOutcomePayload
	extra, err := unmarshalWithExtra(data, (*alias)(p))
	if err != nil {
		return err
	}
	p.Extra = extra
	return nil
}

// KeyLifecyclePayload accompanies API_KEY_CREATED, API_KEY_REVOKED, and
// API_KEY_EXPIRED automation events.
type KeyLifecyclePayload struct {
	Reason    string           `json:"reason,omitempty"`
	KeyStatus models.KeyStatus `json:"key_status,omitempty"`
	Extra     map[string]json.RawMessage `json:"-"`
}

func (p *KeyLifecyclePayload) AppliesToAutomation(t models.AutomationEventType) bool {
	return t == models.EventAPIKeyCreated || t == models.EventAPIKeyRevoked || t == models.EventAPIKeyExpired
}

func (p *KeyLifecyclePayload) MarshalJSON() ([]byte, error) {
	type alias KeyLifecyclePayload
	return marshalWithExtra((*alias)(p), p.Extra)
}

func (p *KeyLifecyclePayload) UnmarshalJSON(data []byte) error {
	type alias KeyLifecyclePayload
	extra, err := unmarshalWithExtra(data, (*alias)(p))
	if err != nil {
		return err
	}
	p.Extra = extra
	return nil
}

// JobPayload accompanies CORRECTION_SUBMITTED, CORRECTION_COMPLETED,
// CORRECTION_FAILED, and UPLOAD_STORED automation events.
type JobPayload struct {
	JobID       string `json:"job_id"`
	IssuesFound *int   `json:"issues_found,omitempty"`
	FileName    string `json:"file_name,omitempty"`
	Checksum    string `json:"checksum,omitempty"`
	Extra       map[string]json.RawMessage `json:"-"`
}

func (p *JobPayload) AppliesToAutomation(t models.AutomationEventType) bool {
	switch t {
	case models.EventCorrectionSubmitted, models.EventCorrectionCompleted,
		models.EventCorrectionFailed, models.EventUploadStored:
		return true
	}
	return false
}

func (p *JobPayload) MarshalJSON() ([]byte, error) {
	type alias JobPayload
	return marshalWithExtra((*alias)(p), p.Extra)
}

func (p *JobPayload) UnmarshalJSON(data []byte) error {
	type alias JobPayload
	extra, err := unmarshalWithExtra(data, (*alias)(p))
	if err != nil {
		return err
	}
	p.Extra = extra
	return nil
}

// BillingChangePayload accompanies BILLING_STATUS_CHANGED automation events.
type BillingChangePayload struct {
	Previous           models.BillingStatus      `json:"previous"`
	Current            models.BillingStatus      `json:"current"`
	SubscriptionStatus models.SubscriptionStatus `json:"subscription_status"`
	Extra              map[string]json.RawMessage `json:"-"`
}

func (p *BillingChangePayload) AppliesToAutomation(t models.AutomationEventType) bool {
	return t == models.EventBillingStatusChanged
}

func (p *BillingChangePayload) MarshalJSON() ([]byte, error) {
	type alias BillingChangePayload
	return marshalWithExtra((*alias)(p), p.Extra)
}

func (p *BillingChangePayload) UnmarshalJSON(data []byte) error {
	type alias BillingChangePayload
	extra, err := unmarshalWithExtra(data, (*alias)(p))
	if err != nil {
		return err
	}
	p.Extra = extra
	return nil
}

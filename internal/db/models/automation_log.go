// automation_log.go defines the AutomationLog model: the append-only event
// record for the payroll-automation API, mirroring AuditLog but keyed to an
// APIKey. Some events (AUTHENTICATION_FAILED) occur before any key has been
// resolved, so attribution is an explicit sum type rather than a nullable
// foreign key — call sites must handle the unattributed case.
package models

import (
	"encoding/json"
	"time"
)

// AutomationEventType identifies the kind of event an AutomationLog records.
type AutomationEventType string

const (
	EventAuthenticationFailed  AutomationEventType = "AUTHENTICATION_FAILED"
	EventAPIKeyValidated       AutomationEventType = "API_KEY_VALIDATED"
	EventRateLimitExceeded     AutomationEventType = "RATE_LIMIT_EXCEEDED"
	EventAPIKeyCreated         AutomationEventType = "API_KEY_CREATED"
	EventAPIKeyRevoked         AutomationEventType = "API_KEY_REVOKED"
	EventAPIKeyExpired         AutomationEventType = "API_KEY_EXPIRED"
	EventCorrectionSubmitted   AutomationEventType = "CORRECTION_SUBMITTED"
	EventCorrectionCompleted   AutomationEventType = "CORRECTION_COMPLETED"
	EventCorrectionFailed      AutomationEventType = "CORRECTION_FAILED"
	EventUploadStored          AutomationEventType = "UPLOAD_STORED"
	EventBillingStatusChanged  AutomationEventType = "BILLING_STATUS_CHANGED"
)

// Valid reports whether t is one of the defined automation event types.
func (t AutomationEventType) Valid() bool {
	switch t {
	case EventAuthenticationFailed, EventAPIKeyValidated, EventRateLimitExceeded,
		EventAPIKeyCreated, EventAPIKeyRevoked, EventAPIKeyExpired,
		EventCorrectionSubmitted, EventCorrectionCompleted, EventCorrectionFailed,
		EventUploadStored, EventBillingStatusChanged:
		return true
	}
	return false
}

// Attribution states which API key an automation event belongs to, or that the
// event happened before a key could be resolved. The zero value is unattributed.
type Attribution struct {
	keyID      string
	attributed bool
}

// AttributedTo returns an Attribution pointing at the given API key ID.
func AttributedTo(keyID string) Attribution {
	return Attribution{keyID: keyID, attributed: true}
}

// Unattributed returns the Attribution for pre-authentication events.
func Unattributed() Attribution {
	return Attribution{}
}

// KeyID returns the attributed API key ID and whether the event is attributed.
func (a Attribution) KeyID() (string, bool) {
	return a.keyID, a.attributed
}

// MarshalJSON renders the attributed key ID, or null for pre-authentication
// events.
func (a Attribution) MarshalJSON() ([]byte, error) {
	if !a.attributed {
		return []byte("null"), nil
	}
	return json.Marshal(a.keyID)
}

// AutomationLog is one immutable event record per API request or key-lifecycle
// action.
type AutomationLog struct {
	ID        string              `json:"id" db:"id"`
	Key       Attribution         `json:"api_key_id" db:"api_key_id"`
	EventType AutomationEventType `json:"event_type" db:"event_type"`
	EventData json.RawMessage     `json:"event_data,omitempty" db:"event_data"` // one schema per event type
	Endpoint  string              `json:"endpoint,omitempty" db:"endpoint"`
	SourceIP  string              `json:"source_ip,omitempty" db:"source_ip"`
	Success   bool                `json:"success" db:"success"`
	ErrorMsg  *string             `json:"error_msg,omitempty" db:"error_msg"`
	CreatedAt time.Time           `json:"created_at" db:"created_at"`
}

// Package models defines the database model types for the data room service.
// Each type corresponds to a database table. Models are pure data types —
// transition rules live in the domain packages (internal/room, internal/apikey,
// internal/corrections) and query logic lives in internal/db/repositories.
//
// Status enums are closed typed-string sets rather than free-form strings so an
// illegal value is caught at construction time instead of surfacing later as a
// data bug.
package models

import "time"

// RoomStatus is the lifecycle state of a ConferenceRoom.
type RoomStatus string

const (
	RoomActive     RoomStatus = "ACTIVE"
	RoomExpired    RoomStatus = "EXPIRED"
	RoomClosedWon  RoomStatus = "CLOSED_WON"
	RoomClosedLost RoomStatus = "CLOSED_LOST"
	RoomRevoked    RoomStatus = "REVOKED"
	RoomSuspended  RoomStatus = "SUSPENDED"
)

// Valid reports whether s is one of the defined room statuses.
func (s RoomStatus) Valid() bool {
	switch s {
	case RoomActive, RoomExpired, RoomClosedWon, RoomClosedLost, RoomRevoked, RoomSuspended:
		return true
	}
	return false
}

// Terminal reports whether s is a state from which no user-facing transition
// exists. EXPIRED and SUSPENDED are not terminal: an administrative reactivation
// can bring a room back to ACTIVE.
func (s RoomStatus) Terminal() bool {
	switch s {
	case RoomClosedWon, RoomClosedLost, RoomRevoked:
		return true
	}
	return false
}

// ConferenceRoom is a confidential document-exchange session between a company
// and one external counterparty. The plaintext access code is shown exactly once
// at creation; only the bcrypt hash is stored.
type ConferenceRoom struct {
	ID                string      `json:"id" db:"id"`
	CompanyID         string      `json:"company_id" db:"company_id"`
	Name              string      `json:"name" db:"name"`
	CounterpartyEmail string      `json:"counterparty_email" db:"counterparty_email"`
	AccessCodeHash    string      `json:"-" db:"access_code_hash"` // bcrypt hash of the access code
	EncryptionKey     string      `json:"-" db:"encryption_key"`   // AES-GCM sealed per-room content key
	Status            RoomStatus  `json:"status" db:"status"`
	CodeGeneratedAt   time.Time   `json:"code_generated_at" db:"code_generated_at"`
	CodeUsed          bool        `json:"code_used" db:"code_used"`
	ExpiresAt         time.Time   `json:"expires_at" db:"expires_at"`
	ClosedAt          *time.Time  `json:"closed_at,omitempty" db:"closed_at"`
	ClosureReason     *string     `json:"closure_reason,omitempty" db:"closure_reason"`
	IPWhitelist       []string    `json:"ip_whitelist,omitempty" db:"ip_whitelist"` // CIDR/IP strings; empty means unrestricted
	MFAEnabled        bool        `json:"mfa_enabled" db:"mfa_enabled"`
	MFAPhone          *string     `json:"mfa_phone,omitempty" db:"mfa_phone"`
	FirstAccessedAt   *time.Time  `json:"first_accessed_at,omitempty" db:"first_accessed_at"`
	LastAccessedAt    *time.Time  `json:"last_accessed_at,omitempty" db:"last_accessed_at"`
	AccessCount       int64       `json:"access_count" db:"access_count"` // incremented only on successful admission
	CreatedAt         time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at" db:"updated_at"`
}

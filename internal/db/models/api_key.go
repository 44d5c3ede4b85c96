// api_key.go defines the APIKey model for the payroll-automation API, including
// the daily quota counters that the authorize gate maintains under a per-key
// transaction.
package models

import "time"

// KeyStatus is the lifecycle state of an APIKey.
type KeyStatus string

const (
	KeyActive    KeyStatus = "ACTIVE"
	KeyRevoked   KeyStatus = "REVOKED"
	KeySuspended KeyStatus = "SUSPENDED"
	KeyExpired   KeyStatus = "EXPIRED"
)

// Valid reports whether s is one of the defined key statuses.
func (s KeyStatus) Valid() bool {
	switch s {
	case KeyActive, KeyRevoked, KeySuspended, KeyExpired:
		return true
	}
	return false
}

// BillingStatus is the billing state projected onto an APIKey from its
// StripeCustomer subscription snapshot.
type BillingStatus string

const (
	BillingActive    BillingStatus = "ACTIVE"
	BillingPastDue   BillingStatus = "PAST_DUE"
	BillingCancelled BillingStatus = "CANCELLED"
	BillingTrial     BillingStatus = "TRIAL"
)

// Valid reports whether b is one of the defined billing statuses.
func (b BillingStatus) Valid() bool {
	switch b {
	case BillingActive, BillingPastDue, BillingCancelled, BillingTrial:
		return true
	}
	return false
}

// APIKey is a customer's credential to the payroll-automation API. The plaintext
// key is shown once at creation; KeyHash is the bcrypt hash used for
// verification and EncryptedKey is an AES-GCM ciphertext recoverable by support
// tooling. KeyPrefix is the indexed exact-match lookup column (bcrypt hashes are
// salted, so the hash itself cannot serve as a lookup key).
type APIKey struct {
	ID               string        `json:"id" db:"id"`
	CustomerID       string        `json:"customer_id" db:"customer_id"`
	Name             string        `json:"name" db:"name"`
	KeyHash          string        `json:"-" db:"key_hash"`
	KeyPrefix        string        `json:"key_prefix" db:"key_prefix"`
	EncryptedKey     string        `json:"-" db:"encrypted_key"`
	Status           KeyStatus     `json:"status" db:"status"`
	RevokedAt        *time.Time    `json:"revoked_at,omitempty" db:"revoked_at"`
	RevokedReason    *string       `json:"revoked_reason,omitempty" db:"revoked_reason"`
	ExpiresAt        *time.Time    `json:"expires_at,omitempty" db:"expires_at"`
	RequestsPerDay   int           `json:"requests_per_day" db:"requests_per_day"` // daily quota limit
	RequestsToday    int           `json:"requests_today" db:"requests_today"`     // counter within the current rolling window
	LastResetAt      time.Time     `json:"last_reset_at" db:"last_reset_at"`       // rolling 24h anchor
	TotalRequests    int64         `json:"total_requests" db:"total_requests"`     // lifetime counter
	LastUsedAt       *time.Time    `json:"last_used_at,omitempty" db:"last_used_at"`
	BillingStatus    BillingStatus `json:"billing_status" db:"billing_status"`
	StripeCustomerID *string       `json:"stripe_customer_id,omitempty" db:"stripe_customer_id"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
}

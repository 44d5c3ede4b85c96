// Package apikey implements the API key lifecycle and the per-request
// authorization gate for the payroll-automation API: credential verification,
// billing gate, lazy rolling-24h quota reset, and metering. Every decision is
// recorded in the automation ledger inside the same transaction that mutates
// the key's counters.
package apikey

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/audit"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/auth"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/config"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/crypto"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/db/models"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/db/repositories"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/telemetry"
)

// quotaWindow is the rolling reset period for the daily counter.
const quotaWindow = 24 * time.Hour

var (
	// ErrUnauthorized covers every authorization denial except quota
	// exhaustion: unknown key, wrong key, non-active status, billing
	// lockout. Callers must not distinguish these externally.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrKeyNotFound is returned by administrative operations only.
	ErrKeyNotFound = errors.New("api key not found")

	// ErrInvalidTransition is returned when a lifecycle action is illegal
	// from the key's current status.
	ErrInvalidTransition = errors.New("apikey: invalid status transition")
)

// ErrRateLimited is returned when the daily quota is exhausted. RetryAfter is
// derived from the key's reset anchor.
type ErrRateLimited struct {
	RetryAfter time.Duration
}

func (e *ErrRateLimited) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter.Round(time.Second))
}

// AuthResult is a successful authorization: the key that authenticated and
// the automation log row recording the decision.
type AuthResult struct {
	Key        *models.APIKey
	AuditLogID string
}

// RequestMeta carries the HTTP-level context an authorize call is recorded
// with.
type RequestMeta struct {
	Endpoint string
	SourceIP string
}

// IssueInput carries an administrative key issuance request.
type IssueInput struct {
	CustomerID     string
	Name           string
	RequestsPerDay int        // 0 means the configured default
	ExpiresAt      *time.Time // nil means no scheduled expiry
}

// ServiceParams wires a Service.
type ServiceParams struct {
	DB       *sql.DB
	Keys     *repositories.APIKeyRepository
	Recorder *audit.Recorder
	Cipher   *crypto.KeyCipher
	Config   config.APIKeyConfig
	Logger   *slog.Logger
	Now      func() time.Time // nil means time.Now
}

// Service implements key issuance, authorization, and lifecycle transitions.
type Service struct {
	db     *sql.DB
	keys   *repositories.APIKeyRepository
	rec    *audit.Recorder
	cipher *crypto.KeyCipher
	cfg    config.APIKeyConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates an API key Service.
func NewService(p ServiceParams) *Service {
	now := p.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		db:     p.DB,
		keys:   p.Keys,
		rec:    p.Recorder,
		cipher: p.Cipher,
		cfg:    p.Config,
		logger: p.Logger,
		now:    now,
	}
}

// Issue mints a new ACTIVE key. The plaintext is returned exactly once; the
// stored row carries only the bcrypt hash, the indexed lookup prefix, and a
// sealed copy for support tooling.
func (s *Service) Issue(ctx context.Context, in IssueInput) (*models.APIKey, string, error) {
	plaintext, hash, lookupPrefix, err := auth.GenerateAPIKey(s.cfg.Prefix)
	if err != nil {
		return nil, "", fmt.Errorf("generating api key: %w", err)
	}
	sealed, err := s.cipher.Seal(plaintext)
	if err != nil {
		return nil, "", fmt.Errorf("sealing api key: %w", err)
	}

	quota := in.RequestsPerDay
	if quota <= 0 {
		quota = s.cfg.DefaultRequestsPerDay
	}

	key := &models.APIKey{
		CustomerID:     in.CustomerID,
		Name:           in.Name,
		KeyHash:        hash,
		KeyPrefix:      lookupPrefix,
		EncryptedKey:   sealed,
		Status:         models.KeyActive,
		ExpiresAt:      in.ExpiresAt,
		RequestsPerDay: quota,
		LastResetAt:    s.now(),
		BillingStatus:  models.BillingTrial,
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.keys.Create(ctx, tx, key); err != nil {
			return fmt.Errorf("creating api key: %w", err)
		}
		_, err := s.rec.RecordAutomation(ctx, tx, audit.AutomationEvent{
			Key:     models.AttributedTo(key.ID),
			Type:    models.EventAPIKeyCreated,
			Payload: &audit.KeyLifecyclePayload{KeyStatus: models.KeyActive},
			Success: true,
		})
		return err
	})
	if err != nil {
		return nil, "", err
	}
	return key, plaintext, nil
}

// Authorize runs the full admission path for one API request: resolve the
// key by its indexed prefix, verify the secret, gate on status and billing,
// lazily roll the quota window, enforce the quota, and meter the request.
// The key's counters and the ledger row commit atomically under the key's
// row lock.
func (s *Service) Authorize(ctx context.Context, suppliedKey string, meta RequestMeta) (*AuthResult, error) {
	now := s.now()

	matched, err := s.resolve(ctx, suppliedKey)
	if err != nil {
		return nil, err
	}
	if matched == "" {
		// No key matched: record unattributed, outside any key transaction.
		s.recordUnattributedFailure(ctx, meta)
		telemetry.KeyAuthorizationsTotal.WithLabelValues("auth_failed").Inc()
		return nil, ErrUnauthorized
	}

	// Denials still commit: the ledger row recording a denial must survive,
	// so deny helpers set denyErr and the transaction commits normally.
	// Only infrastructure failures roll back.
	var result *AuthResult
	var denyErr error
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		key, err := s.keys.GetForUpdate(ctx, tx, matched)
		if err != nil {
			return fmt.Errorf("locking api key: %w", err)
		}
		if key == nil {
			denyErr = ErrUnauthorized
			return nil
		}

		if key.Status != models.KeyActive {
			denyErr = ErrUnauthorized
			return s.denyStatus(ctx, tx, key, meta, "key not active")
		}
		if key.BillingStatus == models.BillingPastDue || key.BillingStatus == models.BillingCancelled {
			denyErr = ErrUnauthorized
			return s.denyBilling(ctx, tx, key, meta)
		}

		// Lazy rolling reset: exactly once per crossed window boundary, on
		// the access path, so no scheduler clock can drift it.
		if now.Sub(key.LastResetAt) >= quotaWindow {
			key.RequestsToday = 0
			key.LastResetAt = now
		}

		if key.RequestsToday >= key.RequestsPerDay {
			limited, err := s.denyQuota(ctx, tx, key, meta, now)
			if err != nil {
				return err
			}
			denyErr = limited
			return nil
		}

		key.RequestsToday++
		key.TotalRequests++
		t := now
		key.LastUsedAt = &t
		if err := s.keys.Update(ctx, tx, key); err != nil {
			return fmt.Errorf("metering api key: %w", err)
		}

		row, err := s.rec.RecordAutomation(ctx, tx, audit.AutomationEvent{
			Key:      models.AttributedTo(key.ID),
			Type:     models.EventAPIKeyValidated,
			Payload:  &audit.AuthOutcomePayload{Limit: key.RequestsPerDay, Used: key.RequestsToday},
			Endpoint: meta.Endpoint,
			SourceIP: meta.SourceIP,
			Success:  true,
		})
		if err != nil {
			return err
		}

		result = &AuthResult{Key: key, AuditLogID: row.ID}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if denyErr != nil {
		return nil, denyErr
	}

	telemetry.KeyAuthorizationsTotal.WithLabelValues("validated").Inc()
	return result, nil
}

// resolve finds the stored key matching the supplied plaintext. bcrypt hashes
// are salted, so lookup goes through the indexed prefix column and verifies
// each candidate. Returns the matched key ID, or empty when none verifies.
func (s *Service) resolve(ctx context.Context, suppliedKey string) (string, error) {
	prefix := auth.LookupPrefix(suppliedKey)
	if prefix == "" {
		return "", nil
	}
	candidates, err := s.keys.GetByPrefix(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("resolving api key: %w", err)
	}
	for _, c := range candidates {
		if auth.VerifySecret(suppliedKey, c.KeyHash) {
			return c.ID, nil
		}
	}
	return "", nil
}

// recordUnattributedFailure appends an AUTHENTICATION_FAILED row with no key
// attribution. Best-effort is not acceptable for the ledger, but there is no
// key transaction to join, so it runs in its own transaction; a failure here
// still surfaces only as a log line because the caller is already being
// denied.
func (s *Service) recordUnattributedFailure(ctx context.Context, meta RequestMeta) {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := s.rec.RecordAutomation(ctx, tx, audit.AutomationEvent{
			Key:      models.Unattributed(),
			Type:     models.EventAuthenticationFailed,
			Payload:  &audit.AuthOutcomePayload{Reason: "credential mismatch"},
			Endpoint: meta.Endpoint,
			SourceIP: meta.SourceIP,
			Success:  false,
			ErrorMsg: strPtr("credential mismatch"),
		})
		return err
	})
	if err != nil {
		s.logger.Error("failed to record unattributed authentication failure",
			"endpoint", meta.Endpoint, "source_ip", meta.SourceIP, "error", err)
	}
}

func (s *Service) denyStatus(ctx context.Context, tx *sql.Tx, key *models.APIKey, meta RequestMeta, reason string) error {
	_, err := s.rec.RecordAutomation(ctx, tx, audit.AutomationEvent{
		Key:      models.AttributedTo(key.ID),
		Type:     models.EventAPIKeyValidated,
		Payload:  &audit.AuthOutcomePayload{Reason: reason, KeyStatus: key.Status},
		Endpoint: meta.Endpoint,
		SourceIP: meta.SourceIP,
		Success:  false,
		ErrorMsg: &reason,
	})
	if err != nil {
		return err
	}
	telemetry.KeyAuthorizationsTotal.WithLabelValues("status_denied").Inc()
	return nil
}

func (s *Service) denyBilling(ctx context.Context, tx *sql.Tx, key *models.APIKey, meta RequestMeta) error {
	reason := "billing status " + string(key.BillingStatus)
	_, err := s.rec.RecordAutomation(ctx, tx, audit.AutomationEvent{
		Key:      models.AttributedTo(key.ID),
		Type:     models.EventAPIKeyValidated,
		Payload:  &audit.AuthOutcomePayload{Reason: reason, KeyStatus: key.Status},
		Endpoint: meta.Endpoint,
		SourceIP: meta.SourceIP,
		Success:  false,
		ErrorMsg: &reason,
	})
	if err != nil {
		return err
	}
	telemetry.KeyAuthorizationsTotal.WithLabelValues("billing_denied").Inc()
	return nil
}

func (s *Service) denyQuota(ctx context.Context, tx *sql.Tx, key *models.APIKey, meta RequestMeta, now time.Time) (*ErrRateLimited, error) {
	retryAfter := key.LastResetAt.Add(quotaWindow).Sub(now)
	if retryAfter < 0 {
		retryAfter = 0
	}
	reason := "daily quota exhausted"
	_, err := s.rec.RecordAutomation(ctx, tx, audit.AutomationEvent{
		Key:  models.AttributedTo(key.ID),
		Type: models.EventRateLimitExceeded,
		Payload: &audit.AuthOutcomePayload{
			Limit:             key.RequestsPerDay,
			Used:              key.RequestsToday,
			RetryAfterSeconds: int(retryAfter.Seconds()),
		},
		Endpoint: meta.Endpoint,
		SourceIP: meta.SourceIP,
		Success:  false,
		ErrorMsg: &reason,
	})
	if err != nil {
		return nil, err
	}
	telemetry.KeyAuthorizationsTotal.WithLabelValues("rate_limited").Inc()
	return &ErrRateLimited{RetryAfter: retryAfter}, nil
}

// Revoke permanently revokes a key. One-directional: a revoked key can never
// be reactivated, a new key must be issued.
func (s *Service) Revoke(ctx context.Context, keyID, reason string) (*models.APIKey, error) {
	var out *models.APIKey
	now := s.now()

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		key, err := s.keys.GetForUpdate(ctx, tx, keyID)
		if err != nil {
			return fmt.Errorf("locking api key: %w", err)
		}
		if key == nil {
			return ErrKeyNotFound
		}
		if key.Status != models.KeyActive && key.Status != models.KeySuspended {
			return fmt.Errorf("%w: %s -> REVOKED", ErrInvalidTransition, key.Status)
		}

		key.Status = models.KeyRevoked
		t := now
		key.RevokedAt = &t
		key.RevokedReason = &reason
		if err := s.keys.Update(ctx, tx, key); err != nil {
			return fmt.Errorf("revoking api key: %w", err)
		}

		_, err = s.rec.RecordAutomation(ctx, tx, audit.AutomationEvent{
			Key:     models.AttributedTo(key.ID),
			Type:    models.EventAPIKeyRevoked,
			Payload: &audit.KeyLifecyclePayload{Reason: reason, KeyStatus: models.KeyRevoked},
			Success: true,
		})
		if err != nil {
			return err
		}
		out = key
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ExpireDue sweeps ACTIVE keys whose scheduled expiry has passed. This is the
// only path to EXPIRED; authorize never expires a key itself. One
// transaction per key, re-checked under the lock.
func (s *Service) ExpireDue(ctx context.Context) (int, error) {
	now := s.now()
	ids, err := s.keys.ListExpiredActiveIDs(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("listing expired keys: %w", err)
	}

	expired := 0
	for _, id := range ids {
		err := s.inTx(ctx, func(tx *sql.Tx) error {
			key, err := s.keys.GetForUpdate(ctx, tx, id)
			if err != nil {
				return err
			}
			if key == nil || key.Status != models.KeyActive ||
				key.ExpiresAt == nil || key.ExpiresAt.After(now) {
				return nil
			}

			key.Status = models.KeyExpired
			if err := s.keys.Update(ctx, tx, key); err != nil {
				return err
			}
			_, err = s.rec.RecordAutomation(ctx, tx, audit.AutomationEvent{
				Key:     models.AttributedTo(key.ID),
				Type:    models.EventAPIKeyExpired,
				Payload: &audit.KeyLifecyclePayload{Reason: "scheduled expiry", KeyStatus: models.KeyExpired},
				Success: true,
			})
			if err != nil {
				return err
			}
			expired++
			return nil
		})
		if err != nil {
			s.logger.Error("key expiry sweep failed for key", "api_key_id", id, "error", err)
		}
	}
	return expired, nil
}

// RevealKey decrypts the sealed plaintext for support tooling.
func (s *Service) RevealKey(ctx context.Context, keyID string) (string, error) {
	key, err := s.keys.GetByID(ctx, keyID)
	if err != nil {
		return "", err
	}
	if key == nil {
		return "", ErrKeyNotFound
	}
	return s.cipher.Open(key.EncryptedKey)
}

// ListByCustomer lists a customer's keys for administrative display.
func (s *Service) ListByCustomer(ctx context.Context, customerID string) ([]*models.APIKey, error) {
	return s.keys.ListByCustomer(ctx, customerID)
}

// GetKey fetches one key for administrative display.
func (s *Service) GetKey(ctx context.Context, keyID string) (*models.APIKey, error) {
	key, err := s.keys.GetByID(ctx, keyID)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, ErrKeyNotFound
	}
	return key, nil
}

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

func strPtr(s string) *string { return &s }

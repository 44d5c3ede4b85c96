// api_key_repository.go implements APIKeyRepository: candidate lookup by key
// prefix (bcrypt hashes are salted, so the hash column cannot be a lookup key),
// the FOR UPDATE lock used by the authorize gate, and usage-counter persistence.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/db/models"
)

const apiKeyColumns = `id, customer_id, name, key_hash, key_prefix, encrypted_key,
		status, revoked_at, revoked_reason, expires_at, requests_per_day,
		requests_today, last_reset_at, total_requests, last_used_at,
		billing_status, stripe_customer_id, created_at`

// APIKeyRepository handles API key database operations.
type APIKeyRepository struct {
	db *sql.DB
}

// NewAPIKeyRepository creates a new APIKeyRepository.
func NewAPIKeyRepository(db *sql.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// Create inserts a new API key. ID and CreatedAt are assigned here.
func (r *APIKeyRepository) Create(ctx context.Context, q Querier, key *models.APIKey) error {
	key.ID = uuid.New().String()
	key.CreatedAt = time.Now()

	query := `
		INSERT INTO api_keys (id, customer_id, name, key_hash, key_prefix,
			encrypted_key, status, revoked_at, revoked_reason, expires_at,
			requests_per_day, requests_today, last_reset_at, total_requests,
			last_used_at, billing_status, stripe_customer_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	_, err := q.ExecContext(ctx, query,
		key.ID, key.CustomerID, key.Name, key.KeyHash, key.KeyPrefix,
		key.EncryptedKey, key.Status, key.RevokedAt, key.RevokedReason,
		key.ExpiresAt, key.RequestsPerDay, key.RequestsToday, key.LastResetAt,
		key.TotalRequests, key.LastUsedAt, key.BillingStatus,
		key.StripeCustomerID, key.CreatedAt,
	)
	return err
}

// GetByID retrieves a key by primary key. Returns (nil, nil) when absent.
func (r *APIKeyRepository) GetByID(ctx context.Context, id string) (*models.APIKey, error) {
	key, err := scanAPIKey(r.db.QueryRowContext(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return key, err
}

// GetByPrefix retrieves candidate keys matching a lookup prefix, newest first.
// The prefix match is exact and case-sensitive on an indexed column; the caller
// resolves the real key by bcrypt comparison against each candidate.
func (r *APIKeyRepository) GetByPrefix(ctx context.Context, keyPrefix string) ([]*models.APIKey, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_prefix = $1 ORDER BY created_at DESC`,
		keyPrefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]*models.APIKey, 0)
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// GetForUpdate retrieves a key with a row-level exclusive lock. Concurrent
// authorize calls against the same key serialize here, so the quota counters
// never lose an update.
func (r *APIKeyRepository) GetForUpdate(ctx context.Context, q Querier, id string) (*models.APIKey, error) {
	key, err := scanAPIKey(q.QueryRowContext(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE id = $1 FOR UPDATE`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return key, err
}

// Update persists every mutable key field under the caller's row lock.
func (r *APIKeyRepository) Update(ctx context.Context, q Querier, key *models.APIKey) error {
	query := `
		UPDATE api_keys
		SET status = $2, revoked_at = $3, revoked_reason = $4, expires_at = $5,
			requests_per_day = $6, requests_today = $7, last_reset_at = $8,
			total_requests = $9, last_used_at = $10, billing_status = $11,
			stripe_customer_id = $12
		WHERE id = $1
	`

	_, err := q.ExecContext(ctx, query,
		key.ID, key.Status, key.RevokedAt, key.RevokedReason, key.ExpiresAt,
		key.RequestsPerDay, key.RequestsToday, key.LastResetAt,
		key.TotalRequests, key.LastUsedAt, key.BillingStatus, key.StripeCustomerID,
	)
	return err
}

// ListByCustomer retrieves all keys belonging to a customer, newest first.
func (r *APIKeyRepository) ListByCustomer(ctx context.Context, customerID string) ([]*models.APIKey, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE customer_id = $1 ORDER BY created_at DESC`,
		customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]*models.APIKey, 0)
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// ListByStripeCustomer retrieves the keys linked to a StripeCustomer record.
// The billing projector walks these when a new subscription snapshot arrives.
func (r *APIKeyRepository) ListByStripeCustomer(ctx context.Context, stripeCustomerID string) ([]*models.APIKey, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE stripe_customer_id = $1`,
		stripeCustomerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]*models.APIKey, 0)
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// ListExpiredActiveIDs returns IDs of ACTIVE keys whose expires_at has passed.
// The expiry sweep feeds each ID through the guarded ExpireKey transition; this
// query never mutates status itself.
func (r *APIKeyRepository) ListExpiredActiveIDs(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM api_keys
		 WHERE status = $1 AND expires_at IS NOT NULL AND expires_at < $2`,
		models.KeyActive, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanAPIKey(s rowScanner) (*models.APIKey, error) {
	key := &models.APIKey{}
	err := s.Scan(
		&key.ID, &key.CustomerID, &key.Name, &key.KeyHash, &key.KeyPrefix,
		&key.EncryptedKey, &key.Status, &key.RevokedAt, &key.RevokedReason,
		&key.ExpiresAt, &key.RequestsPerDay, &key.RequestsToday, &key.LastResetAt,
		&key.TotalRequests, &key.LastUsedAt, &key.BillingStatus,
		&key.StripeCustomerID, &key.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return key, nil
}

// stripe_customer_repository.go implements StripeCustomerRepository, the mirror
// table for external subscription snapshots consumed by the billing projector.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/db/models"
)

const stripeCustomerColumns = `id, stripe_customer_id, subscription_id,
		subscription_status, current_period_end, created_at, updated_at`

// StripeCustomerRepository handles Stripe customer snapshot database operations.
type StripeCustomerRepository struct {
	db *sql.DB
}

// NewStripeCustomerRepository creates a new StripeCustomerRepository.
func NewStripeCustomerRepository(db *sql.DB) *StripeCustomerRepository {
	return &StripeCustomerRepository{db: db}
}

// Upsert inserts or replaces the snapshot for a Stripe customer, keyed by the
// external "cus_..." identifier. Reapplying an identical snapshot is harmless.
func (r *StripeCustomerRepository) Upsert(ctx context.Context, q Querier, c *models.StripeCustomer) error {
	now := time.Now()
	if c.ID == "" {
		c.ID = uuid.New().String()
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	query := `
		INSERT INTO stripe_customers (id, stripe_customer_id, subscription_id,
			subscription_status, current_period_end, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (stripe_customer_id) DO UPDATE
		SET subscription_id = EXCLUDED.subscription_id,
			subscription_status = EXCLUDED.subscription_status,
			current_period_end = EXCLUDED.current_period_end,
			updated_at = EXCLUDED.updated_at
	`

	_, err := q.ExecContext(ctx, query,
		c.ID, c.StripeCustomerID, c.SubscriptionID, c.SubscriptionStatus,
		c.CurrentPeriodEnd, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

// GetByStripeID retrieves a snapshot by its external customer identifier.
// Returns (nil, nil) when absent.
func (r *StripeCustomerRepository) GetByStripeID(ctx context.Context, stripeCustomerID string) (*models.StripeCustomer, error) {
	c := &models.StripeCustomer{}
	err := r.db.QueryRowContext(ctx,
		`SELECT `+stripeCustomerColumns+` FROM stripe_customers WHERE stripe_customer_id = $1`,
		stripeCustomerID).Scan(
		&c.ID, &c.StripeCustomerID, &c.SubscriptionID, &c.SubscriptionStatus,
		&c.CurrentPeriodEnd, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

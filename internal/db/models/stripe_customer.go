// stripe_customer.go defines the StripeCustomer mirror of external subscription
// state. It is not a source of truth for access control; the billing projector
// (internal/billing) derives APIKey.BillingStatus from it.
package models

import "time"

// SubscriptionStatus is the Stripe-side subscription state as delivered in a
// customer snapshot. Values follow Stripe's own vocabulary.
type SubscriptionStatus string

const (
	SubscriptionActive            SubscriptionStatus = "active"
	SubscriptionTrialing          SubscriptionStatus = "trialing"
	SubscriptionPastDue           SubscriptionStatus = "past_due"
	SubscriptionCanceled          SubscriptionStatus = "canceled"
	SubscriptionUnpaid            SubscriptionStatus = "unpaid"
	SubscriptionIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionIncompleteExpired SubscriptionStatus = "incomplete_expired"
)

// StripeCustomer mirrors the most recent subscription snapshot received for a
// customer. Snapshots are applied idempotently; reapplying the same snapshot is
// a no-op.
type StripeCustomer struct {
	ID                 string             `json:"id" db:"id"`
	StripeCustomerID   string             `json:"stripe_customer_id" db:"stripe_customer_id"` // Stripe "cus_..." identifier
	SubscriptionID     *string            `json:"subscription_id,omitempty" db:"subscription_id"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status" db:"subscription_status"`
	CurrentPeriodEnd   *time.Time         `json:"current_period_end,omitempty" db:"current_period_end"`
	CreatedAt          time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at" db:"updated_at"`
}

// Package billing projects external subscription snapshots onto the keys they
// fund. The projection itself is a pure mapping from Stripe's subscription
// vocabulary to the internal BillingStatus; applying a snapshot persists the
// mirror row and rewrites the derived status on every linked key, recording a
// BILLING_STATUS_CHANGED ledger row for each key whose status actually moved.
package billing

import "github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/db/models"

// Project maps a Stripe subscription status to the internal billing status.
// Unknown statuses project to PAST_DUE: an unrecognized state must never
// widen access.
func Project(s models.SubscriptionStatus) models.BillingStatus {
	switch s {
	case models.SubscriptionActive:
		return models.BillingActive
	case models.SubscriptionTrialing:
		return models.BillingTrial
	case models.SubscriptionCanceled:
		return models.BillingCancelled
	case models.SubscriptionPastDue, models.SubscriptionUnpaid,
		models.SubscriptionIncomplete, models.SubscriptionIncompleteExpired:
		return models.BillingPastDue
	default:
		return models.BillingPastDue
	}
}

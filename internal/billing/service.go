package billing

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/audit"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/db/models"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/db/repositories"
)

// Snapshot is one subscription state delivery for a Stripe customer, as
// received from a webhook or a reconciliation poll.
type Snapshot struct {
	StripeCustomerID   string
	SubscriptionID     *string
	SubscriptionStatus models.SubscriptionStatus
	CurrentPeriodEnd   *time.Time
}

// ApplyResult summarizes one snapshot application.
type ApplyResult struct {
	BillingStatus models.BillingStatus
	KeysUpdated   int // keys whose derived status actually changed
}

// ServiceParams wires a Service.
type ServiceParams struct {
	DB        *sql.DB
	Keys      *repositories.APIKeyRepository
	Customers *repositories.StripeCustomerRepository
	Recorder  *audit.Recorder
	Logger    *slog.Logger
}

// Service persists subscription snapshots and keeps each linked key's derived
// billing status in step with them.
type Service struct {
	db        *sql.DB
	keys      *repositories.APIKeyRepository
	customers *repositories.StripeCustomerRepository
	rec       *audit.Recorder
	logger    *slog.Logger
}

// NewService creates a billing Service.
func NewService(p ServiceParams) *Service {
	return &Service{
		db:        p.DB,
		keys:      p.Keys,
		customers: p.Customers,
		rec:       p.Recorder,
		logger:    p.Logger,
	}
}

// ApplySnapshot stores the snapshot and rewrites the derived billing status on
// every key linked to the customer. Reapplying an identical snapshot is a
// no-op beyond the mirror upsert: keys already carrying the projected status
// are left untouched and produce no ledger rows. Each key is updated in its
// own transaction under its row lock, so a partially applied snapshot
// converges on the next delivery.
func (s *Service) ApplySnapshot(ctx context.Context, snap Snapshot) (*ApplyResult, error) {
	projected := Project(snap.SubscriptionStatus)

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		return s.customers.Upsert(ctx, tx, &models.StripeCustomer{
			StripeCustomerID:   snap.StripeCustomerID,
			SubscriptionID:     snap.SubscriptionID,
			SubscriptionStatus: snap.SubscriptionStatus,
			CurrentPeriodEnd:   snap.CurrentPeriodEnd,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("storing subscription snapshot: %w", err)
	}

	keys, err := s.keys.ListByStripeCustomer(ctx, snap.StripeCustomerID)
	if err != nil {
		return nil, fmt.Errorf("listing keys for customer: %w", err)
	}

	updated := 0
	for _, k := range keys {
		changed, err := s.applyToKey(ctx, k.ID, projected, snap.SubscriptionStatus)
		if err != nil {
			return nil, err
		}
		if changed {
			updated++
		}
	}

	s.logger.Info("applied subscription snapshot",
		"stripe_customer_id", snap.StripeCustomerID,
		"subscription_status", snap.SubscriptionStatus,
		"billing_status", projected,
		"keys_updated", updated)

	return &ApplyResult{BillingStatus: projected, KeysUpdated: updated}, nil
}

// applyToKey rewrites one key's derived status, re-checked under the row lock.
func (s *Service) applyToKey(ctx context.Context, keyID string, projected models.BillingStatus, subStatus models.SubscriptionStatus) (bool, error) {
	changed := false
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		key, err := s.keys.GetForUpdate(ctx, tx, keyID)
		if err != nil {
			return fmt.Errorf("locking api key: %w", err)
		}
		if key == nil || key.BillingStatus == projected {
			return nil
		}

		previous := key.BillingStatus
		key.BillingStatus = projected
		if err := s.keys.Update(ctx, tx, key); err != nil {
			return fmt.Errorf("updating billing status: %w", err)
		}

		_, err = s.rec.RecordAutomation(ctx, tx, audit.AutomationEvent{
			Key:  models.AttributedTo(key.ID),
			Type: models.EventBillingStatusChanged,
			Payload: &audit.BillingChangePayload{
				Previous:           previous,
				Current:            projected,
				SubscriptionStatus: subStatus,
			},
			Success: true,
		})
		if err != nil {
			return err
		}
		changed = true
		return nil
	})
	return changed, err
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

package service

import (
	"context"
	"time"

	"github.com/dukerupert/heimdall/internal/domain"
	"github.com/dukerupert/heimdall/internal/playstore"
)

// ProcessNotification is the asynchronous notification path. The inbound
// event is only a trigger: subscription truth is always re-fetched from the
// provider before any transition is applied. Every sub-flow is idempotent,
// so at-least-once redelivery converges to the same stored state.
func (s *PurchaseService) ProcessNotification(ctx context.Context, n *domain.DeveloperNotification) error {
	if sub := n.SubscriptionNotification; sub != nil {
		return s.processSubscriptionNotification(ctx, n.PackageName, sub)
	}

	// One-time products are out of the reconciliation engine's scope:
	// observed with metrics, never acted on.
	if otp := n.OneTimeProductNotification; otp != nil {
		s.metrics.RecordAnomaly("one_time_product_notification")
		s.logger.Info("one-time product notification observed, no action taken",
			"package_name", n.PackageName,
			"notification_type", otp.NotificationType,
			"sku", otp.SKU,
		)
		return nil
	}

	if n.TestNotification != nil {
		s.logger.Info("test notification received",
			"package_name", n.PackageName,
			"version", n.TestNotification.Version,
		)
		return nil
	}

	s.metrics.RecordAnomaly("empty_notification")
	s.logger.Warn("notification carried no recognizable payload",
		"package_name", n.PackageName,
	)
	return nil
}

func (s *PurchaseService) processSubscriptionNotification(ctx context.Context, packageName string, n *domain.SubscriptionNotification) error {
	name := domain.SubscriptionNotificationName(n.NotificationType)

	err := s.dispatchSubscriptionNotification(ctx, packageName, n)
	s.metrics.RecordNotification(name, notificationOutcome(err))
	if err != nil {
		s.logger.Error("notification processing failed",
			"notification_type", name,
			"subscription_id", n.SubscriptionID,
			"error", err,
		)
	}
	return err
}

func (s *PurchaseService) dispatchSubscriptionNotification(ctx context.Context, packageName string, n *domain.SubscriptionNotification) error {
	// Never trust the notification's own view of state; fetch truth.
	detail, err := s.fetchDetail(ctx, packageName, n.PurchaseToken)
	if err != nil {
		return err
	}

	// Supersession first: when the provider reports this token replaced
	// another (upgrade/downgrade), the superseded token is expired
	// regardless of the outcome for the current one.
	if detail.LinkedPurchaseToken != "" {
		if err := s.expireSuperseded(ctx, detail.LinkedPurchaseToken); err != nil {
			return err
		}
	}

	switch n.NotificationType {
	case domain.SubscriptionPurchased:
		return s.handleNewPurchase(ctx, packageName, n, detail)

	case domain.SubscriptionRenewed, domain.SubscriptionRecovered:
		return s.handleRenewal(ctx, packageName, n, detail)

	case domain.SubscriptionRevoked, domain.SubscriptionExpired, domain.SubscriptionOnHold:
		return s.handleRevocation(ctx, n, detail)

	case domain.SubscriptionCanceled,
		domain.SubscriptionInGracePeriod,
		domain.SubscriptionRestarted,
		domain.SubscriptionPriceChangeConfirmed,
		domain.SubscriptionDeferred,
		domain.SubscriptionPaused,
		domain.SubscriptionPauseScheduleChanged:
		// Informational: either no action is required or the state is
		// resolved implicitly by the next renewal or expiry event.
		s.logger.Info("informational notification observed, no state change",
			"notification_type", domain.SubscriptionNotificationName(n.NotificationType),
			"subscription_id", n.SubscriptionID,
		)
		return nil

	default:
		s.metrics.RecordAnomaly("unknown_subscription_notification")
		s.logger.Warn("unknown subscription notification type, no state change",
			"notification_type", n.NotificationType,
			"subscription_id", n.SubscriptionID,
		)
		return nil
	}
}

// handleNewPurchase processes a PURCHASED event. A token already on record
// is treated as a renewal: redelivered purchase events must converge, not
// double-insert.
func (s *PurchaseService) handleNewPurchase(ctx context.Context, packageName string, n *domain.SubscriptionNotification, detail *playstore.SubscriptionDetail) error {
	existing, err := s.store.FindByToken(ctx, n.PurchaseToken)
	if err != nil {
		return err
	}
	if existing != nil {
		return s.refreshGranted(ctx, packageName, n, detail, existing)
	}

	if err := decisionError(detail.SubscriptionState); err != nil {
		return err
	}

	account, err := accountID(detail)
	if err != nil {
		return err
	}

	if err := s.acknowledgeIfPending(ctx, packageName, n.PurchaseToken, detail); err != nil {
		return err
	}

	if err := s.grant(ctx, account); err != nil {
		return err
	}

	expiry := subscriptionExpiry(detail, n.SubscriptionID)
	if err := s.upsertGranted(ctx, nil, account, n.PurchaseToken, expiry); err != nil {
		return err
	}

	s.logger.Info("new purchase recorded",
		"subscription_id", n.SubscriptionID,
		"account_id", account,
		"expiry_at", expiry,
	)
	return nil
}

// handleRenewal processes RENEWED and RECOVERED events. A renewal for a
// token with no record is an error: the webhook transport will redeliver
// and the record may appear via the purchase path in the meantime.
func (s *PurchaseService) handleRenewal(ctx context.Context, packageName string, n *domain.SubscriptionNotification, detail *playstore.SubscriptionDetail) error {
	existing, err := s.store.FindByToken(ctx, n.PurchaseToken)
	if err != nil {
		return err
	}
	if existing == nil {
		return ErrRenewalForUnknownToken
	}

	return s.refreshGranted(ctx, packageName, n, detail, existing)
}

// refreshGranted re-drives the grant and advances the stored expiry.
// Granting again is safe: the ledger call sets the plan, it does not
// accumulate anything. The re-fetched state gates the whole sub-flow: a
// delayed renewal for a subscription that has since expired must not
// resurrect a revoked record.
func (s *PurchaseService) refreshGranted(ctx context.Context, packageName string, n *domain.SubscriptionNotification, detail *playstore.SubscriptionDetail, existing *domain.PurchaseToken) error {
	if err := decisionError(detail.SubscriptionState); err != nil {
		return err
	}

	account, err := accountID(detail)
	if err != nil {
		return err
	}

	if err := s.acknowledgeIfPending(ctx, packageName, n.PurchaseToken, detail); err != nil {
		return err
	}

	if err := s.grant(ctx, account); err != nil {
		return err
	}

	expiry := monotonicExpiry(existing, subscriptionExpiry(detail, n.SubscriptionID))
	if err := s.store.UpdateStatusAndExpiry(ctx, existing.ID, domain.TokenStatusAccessGranted, expiry); err != nil {
		return err
	}

	s.logger.Info("subscription refreshed",
		"subscription_id", n.SubscriptionID,
		"account_id", account,
		"expiry_at", expiry,
	)
	return nil
}

// handleRevocation processes REVOKED, EXPIRED and ON_HOLD events: revoke
// the entitlement on the ledger, then mark the record expired.
func (s *PurchaseService) handleRevocation(ctx context.Context, n *domain.SubscriptionNotification, detail *playstore.SubscriptionDetail) error {
	existing, err := s.store.FindByToken(ctx, n.PurchaseToken)
	if err != nil {
		return err
	}
	if existing == nil {
		return ErrRevokeForUnknownToken
	}

	// The detail may no longer carry account identifiers once the
	// subscription is gone; the record's owner is the same identity.
	account := detail.AccountID()
	if account == "" {
		account = existing.UserID
	}

	if err := s.revoke(ctx, account); err != nil {
		return err
	}

	if err := s.store.UpdateStatusAndExpiry(ctx, existing.ID, domain.TokenStatusExpired, existing.ExpiryAt); err != nil {
		return err
	}

	s.logger.Info("subscription access revoked",
		"subscription_id", n.SubscriptionID,
		"account_id", account,
	)
	return nil
}

// subscriptionExpiry picks the expiry for the notification's product, or
// the furthest line-item expiry when the product is not listed.
func subscriptionExpiry(detail *playstore.SubscriptionDetail, subscriptionID string) time.Time {
	if item := detail.LineItem(subscriptionID); item != nil {
		return item.ExpiryTime
	}
	return detail.LatestExpiry()
}

func notificationOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}

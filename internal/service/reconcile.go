package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dukerupert/heimdall/internal/domain"
	"github.com/dukerupert/heimdall/internal/entitlement"
	"github.com/dukerupert/heimdall/internal/playstore"
	"github.com/dukerupert/heimdall/internal/telemetry"
)

// PurchaseService is the purchase token reconciliation engine. Both the
// synchronous verification path and the asynchronous notification path
// funnel into the same shared step: fetch authoritative detail, validate,
// acknowledge, call the entitlement ledger, and only then write the local
// record.
//
// Side-effect ordering is deliberate: acknowledgment before grant, grant
// before local commit. All three are idempotent, so a crash after a partial
// failure leaves the provider and ledger in a state a retry can re-drive;
// the local record is the last thing written, never the first.
type PurchaseService struct {
	store    TokenStore
	provider playstore.Client
	gateway  entitlement.Gateway
	metrics  *telemetry.ReconciliationMetrics
	logger   *slog.Logger
}

// NewPurchaseService creates the reconciliation engine. metrics may be nil.
func NewPurchaseService(
	store TokenStore,
	provider playstore.Client,
	gateway entitlement.Gateway,
	metrics *telemetry.ReconciliationMetrics,
	logger *slog.Logger,
) *PurchaseService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PurchaseService{
		store:    store,
		provider: provider,
		gateway:  gateway,
		metrics:  metrics,
		logger:   logger,
	}
}

// fetchDetail retrieves authoritative subscription state and converts
// provider error kinds into domain errors.
func (s *PurchaseService) fetchDetail(ctx context.Context, packageName, purchaseToken string) (*playstore.SubscriptionDetail, error) {
	detail, err := s.provider.FetchSubscription(ctx, packageName, purchaseToken)
	if err != nil {
		s.metrics.RecordProviderCall("fetch", "error")
		return nil, providerError(err, "purchase.fetch")
	}
	s.metrics.RecordProviderCall("fetch", "ok")
	return detail, nil
}

// acknowledgeIfPending acknowledges the purchase when the fetched detail
// still reports it pending. A no-op otherwise, which is what makes retries
// after a partial failure safe.
func (s *PurchaseService) acknowledgeIfPending(ctx context.Context, packageName, purchaseToken string, detail *playstore.SubscriptionDetail) error {
	if detail.Acknowledged() {
		return nil
	}

	if err := s.provider.Acknowledge(ctx, packageName, purchaseToken); err != nil {
		s.metrics.RecordProviderCall("acknowledge", "error")
		return providerError(err, "purchase.acknowledge")
	}
	s.metrics.RecordProviderCall("acknowledge", "ok")
	return nil
}

// grant sets the pro plan for the account on the entitlement ledger.
func (s *PurchaseService) grant(ctx context.Context, accountID string) error {
	if err := s.gateway.Grant(ctx, accountID, entitlement.ProPlan()); err != nil {
		s.metrics.RecordEntitlementCall("grant", "error")
		return domain.WrapError(err, domain.EINTERNAL, "purchase.grant", "failed to grant service access")
	}
	s.metrics.RecordEntitlementCall("grant", "ok")
	return nil
}

// revoke resets the account to the free plan on the entitlement ledger.
func (s *PurchaseService) revoke(ctx context.Context, accountID string) error {
	if err := s.gateway.Revoke(ctx, accountID); err != nil {
		s.metrics.RecordEntitlementCall("revoke", "error")
		return domain.WrapError(err, domain.EINTERNAL, "purchase.revoke", "failed to revoke service access")
	}
	s.metrics.RecordEntitlementCall("revoke", "ok")
	return nil
}

// expireSuperseded marks a linked (superseded) token expired. Runs before
// the current token is processed and succeeds regardless of the current
// token's own outcome. A missing record is not an error: the superseded
// token may never have been verified here.
func (s *PurchaseService) expireSuperseded(ctx context.Context, linkedToken string) error {
	rec, err := s.store.FindByToken(ctx, linkedToken)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}

	if err := s.store.UpdateStatusAndExpiry(ctx, rec.ID, domain.TokenStatusExpired, rec.ExpiryAt); err != nil {
		return err
	}

	s.metrics.RecordSupersession()
	s.logger.Info("superseded token expired",
		"token_id", rec.ID,
		"user_id", rec.UserID,
	)
	return nil
}

// upsertGranted writes the local record last: update in place when a record
// exists, insert otherwise. An insert conflict means a concurrent request
// won the race; the loser re-reads and resolves against the stored owner.
func (s *PurchaseService) upsertGranted(ctx context.Context, existing *domain.PurchaseToken, userID, purchaseToken string, expiryAt time.Time) error {
	if existing != nil {
		return s.store.UpdateStatusAndExpiry(ctx, existing.ID, domain.TokenStatusAccessGranted, monotonicExpiry(existing, expiryAt))
	}

	rec := domain.NewPurchaseToken(userID, purchaseToken, domain.TokenStatusAccessGranted, expiryAt)
	err := s.store.Insert(ctx, rec)
	if err == nil {
		return nil
	}
	if !domain.IsCode(err, domain.ECONFLICT) {
		return err
	}

	// Lost the insert race. Re-read: same owner means the concurrent
	// request already granted and committed, so this request converges
	// to success; a different owner is a genuine conflict.
	winner, findErr := s.store.FindByToken(ctx, purchaseToken)
	if findErr != nil {
		return findErr
	}
	if winner == nil {
		return err
	}
	if winner.UserID != userID {
		return ErrTokenAlreadyUsed
	}
	return nil
}

// monotonicExpiry never moves a record's expiry backward.
func monotonicExpiry(rec *domain.PurchaseToken, expiryAt time.Time) time.Time {
	if rec != nil && rec.ExpiryAt.After(expiryAt) {
		return rec.ExpiryAt
	}
	return expiryAt
}

// decisionError maps the state-table decision to the error the caller
// surfaces. Returns nil for the proceed decision.
func decisionError(state string) error {
	switch playstore.Decide(state) {
	case playstore.DecisionProceed:
		return nil
	case playstore.DecisionNoAction:
		return ErrSubscriptionCanceled
	case playstore.DecisionSuspend:
		if state == playstore.StatePaused {
			return ErrSubscriptionPaused
		}
		return ErrSubscriptionOnHold
	case playstore.DecisionRevoke:
		return ErrSubscriptionExpired
	default:
		return ErrSubscriptionInvalidState
	}
}

// providerError converts playstore error kinds into domain errors so the
// HTTP layer maps on codes alone.
func providerError(err error, op string) error {
	switch {
	case errors.Is(err, playstore.ErrUnavailable):
		return domain.Unavailable(err, op, "Google Play API is unreachable")
	case errors.Is(err, playstore.ErrAuthFailed):
		return domain.WrapError(err, domain.EINTERNAL, op, "failed to obtain Google Play credentials")
	case errors.Is(err, playstore.ErrRejected):
		return domain.WrapError(err, domain.EINVALID, op, "Google Play rejected the purchase token")
	default:
		return domain.WrapError(err, domain.EINTERNAL, op, "unexpected Google Play client error")
	}
}

// accountID extracts the ledger identity from the detail.
func accountID(detail *playstore.SubscriptionDetail) (string, error) {
	id := detail.AccountID()
	if id == "" {
		return "", ErrExternalAccountMissing
	}
	return id, nil
}

package service

import (
	"context"
	"time"

	"github.com/dukerupert/heimdall/internal/domain"
)

// Verify is the synchronous verification path: given a user, package,
// product and purchase token, decide grant / deny / already-granted.
//
// The token is bound to its first verifier forever: a request for a token
// owned by a different user fails without side effects, regardless of what
// the provider would say about the token.
func (s *PurchaseService) Verify(ctx context.Context, req domain.VerifyRequest) error {
	err := s.verify(ctx, req)
	s.metrics.RecordVerification(verifyOutcome(err))
	return err
}

func (s *PurchaseService) verify(ctx context.Context, req domain.VerifyRequest) error {
	existing, err := s.store.FindByToken(ctx, req.PurchaseToken)
	if err != nil {
		return err
	}

	if existing != nil {
		if existing.UserID != req.UserID {
			return ErrTokenAlreadyUsed
		}
		// Idempotent fast path: already granted and not yet expired, no
		// provider call needed.
		if existing.Active(time.Now()) {
			return nil
		}
	}

	// Not found, or found but stale/pending: re-derive truth from the
	// provider before touching anything.
	detail, err := s.fetchDetail(ctx, req.PackageName, req.PurchaseToken)
	if err != nil {
		return err
	}

	item := detail.LineItem(req.ProductID)
	if item == nil {
		return ErrSubscriptionInvalidLineItems
	}

	if err := decisionError(detail.SubscriptionState); err != nil {
		return err
	}

	account, err := accountID(detail)
	if err != nil {
		return err
	}

	// Acknowledge before grant, grant before local commit. Each is
	// idempotent, so a crash between any two steps is recoverable by
	// retrying the whole request.
	if err := s.acknowledgeIfPending(ctx, req.PackageName, req.PurchaseToken, detail); err != nil {
		return err
	}

	if err := s.grant(ctx, account); err != nil {
		return err
	}

	if err := s.upsertGranted(ctx, existing, req.UserID, req.PurchaseToken, item.ExpiryTime); err != nil {
		return err
	}

	s.logger.Info("purchase verified",
		"user_id", req.UserID,
		"product_id", req.ProductID,
		"expiry_at", item.ExpiryTime,
	)
	return nil
}

func verifyOutcome(err error) string {
	if err == nil {
		return "granted"
	}
	switch domain.ErrorCode(err) {
	case domain.ECONFLICT:
		return "conflict"
	case domain.EACCEPTED:
		return "suspended"
	case domain.EINVALID:
		return "rejected"
	case domain.EUNAVAILABLE:
		return "provider_unavailable"
	default:
		return "error"
	}
}

package service

import (
	"context"
	"time"

	"github.com/dukerupert/heimdall/internal/domain"
)

// TokenStore is the persisted mapping from purchase token to local
// subscription record. It is the only shared mutable resource in the
// engine; every operation is a single statement so no application-level
// lock is ever held across an external call.
type TokenStore interface {
	// FindByToken returns the record for a purchase token, or nil when
	// no record exists. Exact match, no side effects.
	FindByToken(ctx context.Context, purchaseToken string) (*domain.PurchaseToken, error)

	// Insert persists a new record. The store's unique constraint on the
	// token string resolves races between concurrent first verifications:
	// exactly one insert wins, the loser gets an ECONFLICT domain error
	// and must re-read.
	Insert(ctx context.Context, rec *domain.PurchaseToken) error

	// UpdateStatusAndExpiry updates status and expiry for a record by id.
	UpdateStatusAndExpiry(ctx context.Context, id string, status domain.TokenStatus, expiryAt time.Time) error
}

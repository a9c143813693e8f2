package domain

import (
	"time"

	"github.com/google/uuid"
)

// TokenStatus is the lifecycle state of a purchase token record.
// Persisted as a string so the stored value is self-describing.
type TokenStatus string

const (
	TokenStatusPending       TokenStatus = "pending"
	TokenStatusAccessGranted TokenStatus = "access_granted"
	TokenStatusExpired       TokenStatus = "expired"
)

// Valid reports whether s is one of the known statuses.
func (s TokenStatus) Valid() bool {
	switch s {
	case TokenStatusPending, TokenStatusAccessGranted, TokenStatusExpired:
		return true
	}
	return false
}

// PurchaseToken is the persisted record for a Google Play purchase token.
//
// A token maps to at most one user for its entire lifetime: ownership is
// claimed by the first writer and never reassigned. Rows are never deleted;
// expired is terminal but retained for audit and replay idempotency.
type PurchaseToken struct {
	ID            string
	UserID        string
	PurchaseToken string
	Status        TokenStatus
	CreatedAt     time.Time

	// ExpiryAt mirrors the provider's line-item expiry. It only ever moves
	// forward (renewal, recovery) or the record transitions to expired.
	ExpiryAt time.Time
}

// NewPurchaseToken builds a record ready for insertion.
func NewPurchaseToken(userID, purchaseToken string, status TokenStatus, expiryAt time.Time) *PurchaseToken {
	return &PurchaseToken{
		ID:            uuid.New().String(),
		UserID:        userID,
		PurchaseToken: purchaseToken,
		Status:        status,
		CreatedAt:     time.Now().UTC(),
		ExpiryAt:      expiryAt,
	}
}

// Active reports whether the record currently grants access.
func (t *PurchaseToken) Active(now time.Time) bool {
	return t.Status == TokenStatusAccessGranted && t.ExpiryAt.After(now)
}

// VerifyRequest is the payload of a synchronous purchase verification.
type VerifyRequest struct {
	UserID        string `json:"user_id" validate:"required"`
	PackageName   string `json:"package_name" validate:"required"`
	ProductID     string `json:"product_id" validate:"required"`
	PurchaseToken string `json:"purchase_token" validate:"required"`
}

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dukerupert/heimdall/internal/domain"
	"github.com/dukerupert/heimdall/internal/service"
)

// uniqueViolation is the PostgreSQL error code raised when an insert hits
// the unique index on purchase_token.
const uniqueViolation = "23505"

// TokenStore implements service.TokenStore using PostgreSQL.
type TokenStore struct {
	pool *pgxpool.Pool
}

// Compile-time check that TokenStore implements service.TokenStore.
var _ service.TokenStore = (*TokenStore)(nil)

// NewTokenStore creates a new PostgreSQL-backed token store.
func NewTokenStore(pool *pgxpool.Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

// FindByToken returns the record for a purchase token, or nil when absent.
func (s *TokenStore) FindByToken(ctx context.Context, purchaseToken string) (*domain.PurchaseToken, error) {
	const q = `
		SELECT id, user_id, purchase_token, status, created_at, expiry_at
		FROM purchase_tokens
		WHERE purchase_token = $1`

	var rec domain.PurchaseToken
	err := s.pool.QueryRow(ctx, q, purchaseToken).Scan(
		&rec.ID,
		&rec.UserID,
		&rec.PurchaseToken,
		&rec.Status,
		&rec.CreatedAt,
		&rec.ExpiryAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Internal(err, "token.find", "failed to look up purchase token")
	}

	return &rec, nil
}

// Insert persists a new record. A unique violation on the token string is
// surfaced as ECONFLICT so the caller can re-read and resolve the race.
func (s *TokenStore) Insert(ctx context.Context, rec *domain.PurchaseToken) error {
	const q = `
		INSERT INTO purchase_tokens (id, user_id, purchase_token, status, created_at, expiry_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.pool.Exec(ctx, q,
		rec.ID,
		rec.UserID,
		rec.PurchaseToken,
		rec.Status,
		rec.CreatedAt,
		rec.ExpiryAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.Conflict("token.insert", "purchase token already exists")
		}
		return domain.Internal(err, "token.insert", "failed to insert purchase token")
	}

	return nil
}

// UpdateStatusAndExpiry updates status and expiry for a record by id.
// Untouched fields keep their values.
func (s *TokenStore) UpdateStatusAndExpiry(ctx context.Context, id string, status domain.TokenStatus, expiryAt time.Time) error {
	const q = `
		UPDATE purchase_tokens
		SET status = $2, expiry_at = $3
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q, id, status, expiryAt)
	if err != nil {
		return domain.Internal(err, "token.update", "failed to update purchase token")
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("token.update", "purchase token record", id)
	}

	return nil
}

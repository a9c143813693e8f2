package handler

import (
	"context"
	"sync"
	"time"

	"github.com/dukerupert/heimdall/internal/domain"
	"github.com/dukerupert/heimdall/internal/entitlement"
	"github.com/dukerupert/heimdall/internal/playstore"
	"github.com/dukerupert/heimdall/internal/service"
)

// fakeStore is a minimal in-memory TokenStore for handler tests.
type fakeStore struct {
	mu      sync.Mutex
	byToken map[string]*domain.PurchaseToken
}

func newFakeStore() *fakeStore {
	return &fakeStore{byToken: make(map[string]*domain.PurchaseToken)}
}

var _ service.TokenStore = (*fakeStore)(nil)

func (s *fakeStore) FindByToken(ctx context.Context, purchaseToken string) (*domain.PurchaseToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byToken[purchaseToken]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *fakeStore) Insert(ctx context.Context, rec *domain.PurchaseToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byToken[rec.PurchaseToken]; ok {
		return domain.Conflict("token.insert", "purchase token already registered")
	}
	cp := *rec
	s.byToken[rec.PurchaseToken] = &cp
	return nil
}

func (s *fakeStore) UpdateStatusAndExpiry(ctx context.Context, id string, status domain.TokenStatus, expiryAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.byToken {
		if rec.ID == id {
			rec.Status = status
			rec.ExpiryAt = expiryAt
			return nil
		}
	}
	return domain.NotFound("token.update", "purchase token", id)
}

// newTestService wires a PurchaseService on in-memory fakes for handler
// tests. Metrics are nil to keep the global Prometheus registry clean.
func newTestService(productID string) (*service.PurchaseService, *fakeStore, *playstore.MockClient, *entitlement.MockGateway) {
	store := newFakeStore()
	provider := playstore.NewMockClient(productID)
	gateway := entitlement.NewMockGateway()
	svc := service.NewPurchaseService(store, provider, gateway, nil, nil)
	return svc, store, provider, gateway
}

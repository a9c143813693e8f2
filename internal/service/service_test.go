package service

import (
	"context"
	"sync"
	"time"

	"github.com/dukerupert/heimdall/internal/domain"
	"github.com/dukerupert/heimdall/internal/entitlement"
	"github.com/dukerupert/heimdall/internal/playstore"
)

// =============================================================================
// IN-MEMORY TOKEN STORE
// =============================================================================

// memStore implements TokenStore with the same conflict semantics as the
// postgres store: the token string is unique, the second insert loses.
type memStore struct {
	mu      sync.Mutex
	byToken map[string]*domain.PurchaseToken

	// insertHook runs inside Insert before the uniqueness check. Used to
	// simulate a concurrent request winning the insert race.
	insertHook func(s *memStore)
}

func newMemStore() *memStore {
	return &memStore{byToken: make(map[string]*domain.PurchaseToken)}
}

var _ TokenStore = (*memStore)(nil)

func (s *memStore) FindByToken(ctx context.Context, purchaseToken string) (*domain.PurchaseToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byToken[purchaseToken]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *memStore) Insert(ctx context.Context, rec *domain.PurchaseToken) error {
	if s.insertHook != nil {
		hook := s.insertHook
		s.insertHook = nil
		hook(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byToken[rec.PurchaseToken]; ok {
		return domain.Conflict("token.insert", "purchase token already registered")
	}
	cp := *rec
	s.byToken[rec.PurchaseToken] = &cp
	return nil
}

func (s *memStore) UpdateStatusAndExpiry(ctx context.Context, id string, status domain.TokenStatus, expiryAt time.Time) error {
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

// put seeds a record directly, bypassing conflict checks.
func (s *memStore) put(rec *domain.PurchaseToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.byToken[rec.PurchaseToken] = &cp
}

// get returns the stored record for a token, or nil.
func (s *memStore) get(purchaseToken string) *domain.PurchaseToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byToken[purchaseToken]
	if !ok {
		return nil
	}
	cp := *rec
	return &cp
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byToken)
}

// =============================================================================
// TEST FIXTURES
// =============================================================================

const (
	testPackage = "com.example.app"
	testProduct = "premium_plan"
	testToken   = "token-abc-123"
	testUser    = "user-1"
)

// newTestEngine wires a PurchaseService against in-memory fakes. Metrics
// are nil to avoid touching the global Prometheus registry.
func newTestEngine() (*PurchaseService, *memStore, *playstore.MockClient, *entitlement.MockGateway) {
	store := newMemStore()
	provider := playstore.NewMockClient(testProduct)
	gateway := entitlement.NewMockGateway()
	svc := NewPurchaseService(store, provider, gateway, nil, nil)
	return svc, store, provider, gateway
}

// activeDetail builds a subscription detail in the given state, owned by
// accountID and expiring at expiry.
func testDetail(state, ackState, accountID string, expiry time.Time) *playstore.SubscriptionDetail {
	detail := &playstore.SubscriptionDetail{
		Kind:                 "androidpublisher#subscriptionPurchaseV2",
		SubscriptionState:    state,
		AcknowledgementState: ackState,
		LineItems: []playstore.LineItem{
			{
				ProductID:        testProduct,
				ExpiryTime:       expiry,
				AutoRenewingPlan: &playstore.AutoRenewingPlan{AutoRenewEnabled: true},
			},
		},
	}
	if accountID != "" {
		detail.ExternalAccount = &playstore.ExternalAccountIdentifiers{
			ObfuscatedExternalAccountID: accountID,
		}
	}
	return detail
}

func verifyRequest() domain.VerifyRequest {
	return domain.VerifyRequest{
		UserID:        testUser,
		PackageName:   testPackage,
		ProductID:     testProduct,
		PurchaseToken: testToken,
	}
}

// containsCall reports whether the call log has an entry starting with prefix.
func containsCall(log []string, prefix string) bool {
	for _, call := range log {
		if len(call) >= len(prefix) && call[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

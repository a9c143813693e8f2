package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/heimdall/internal/domain"
	"github.com/dukerupert/heimdall/internal/entitlement"
	"github.com/dukerupert/heimdall/internal/playstore"
)

func TestVerify_GrantsNewToken(t *testing.T) {
	svc, store, provider, gateway := newTestEngine()
	expiry := time.Now().UTC().Add(30 * 24 * time.Hour)
	provider.FetchSubscriptionFunc = func(ctx context.Context, packageName, purchaseToken string) (*playstore.SubscriptionDetail, error) {
		return testDetail(playstore.StateActive, playstore.AcknowledgementStatePending, testUser, expiry), nil
	}

	err := svc.Verify(context.Background(), verifyRequest())
	require.NoError(t, err)

	rec := store.get(testToken)
	require.NotNil(t, rec)
	assert.Equal(t, testUser, rec.UserID)
	assert.Equal(t, domain.TokenStatusAccessGranted, rec.Status)
	assert.True(t, rec.ExpiryAt.Equal(expiry))

	assert.Equal(t, 1, gateway.GrantCount())
	assert.Equal(t, entitlement.PlanPro, gateway.Plans[testUser].Name)
	assert.True(t, containsCall(provider.CallLog, "Acknowledge"))
}

func TestVerify_ActiveRecordIsIdempotent(t *testing.T) {
	svc, store, provider, gateway := newTestEngine()
	store.put(domain.NewPurchaseToken(testUser, testToken, domain.TokenStatusAccessGranted, time.Now().Add(time.Hour)))

	err := svc.Verify(context.Background(), verifyRequest())
	require.NoError(t, err)

	// Fast path: no provider call, no second grant.
	assert.Empty(t, provider.CallLog)
	assert.Equal(t, 0, gateway.GrantCount())
}

func TestVerify_TokenOwnedByAnotherUser(t *testing.T) {
	svc, store, provider, gateway := newTestEngine()
	store.put(domain.NewPurchaseToken("someone-else", testToken, domain.TokenStatusAccessGranted, time.Now().Add(time.Hour)))

	err := svc.Verify(context.Background(), verifyRequest())
	require.Error(t, err)
	assert.Equal(t, domain.ECONFLICT, domain.ErrorCode(err))

	// Rejected before any external side effect.
	assert.Empty(t, provider.CallLog)
	assert.Equal(t, 0, gateway.GrantCount())

	rec := store.get(testToken)
	require.NotNil(t, rec)
	assert.Equal(t, "someone-else", rec.UserID)
}

func TestVerify_SkipsAcknowledgeWhenAlreadyAcknowledged(t *testing.T) {
	svc, _, provider, gateway := newTestEngine()
	provider.FetchSubscriptionFunc = func(ctx context.Context, packageName, purchaseToken string) (*playstore.SubscriptionDetail, error) {
		return testDetail(playstore.StateActive, playstore.AcknowledgementStateAcknowledged, testUser, time.Now().Add(time.Hour)), nil
	}

	err := svc.Verify(context.Background(), verifyRequest())
	require.NoError(t, err)

	assert.False(t, containsCall(provider.CallLog, "Acknowledge"))
	assert.Equal(t, 1, gateway.GrantCount())
}

func TestVerify_SubscriptionStates(t *testing.T) {
	tests := []struct {
		state        string
		expectedCode string
	}{
		{playstore.StateActive, ""},
		{playstore.StateInGracePeriod, ""},
		{playstore.StateCanceled, domain.EINVALID},
		{playstore.StateExpired, domain.EINVALID},
		{playstore.StateOnHold, domain.EACCEPTED},
		{playstore.StatePaused, domain.EACCEPTED},
		{"SUBSCRIPTION_STATE_UNSPECIFIED", domain.EINVALID},
	}

	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			svc, store, provider, gateway := newTestEngine()
			provider.FetchSubscriptionFunc = func(ctx context.Context, packageName, purchaseToken string) (*playstore.SubscriptionDetail, error) {
				return testDetail(tt.state, playstore.AcknowledgementStateAcknowledged, testUser, time.Now().Add(time.Hour)), nil
			}

			err := svc.Verify(context.Background(), verifyRequest())

			if tt.expectedCode == "" {
				require.NoError(t, err)
				assert.Equal(t, 1, gateway.GrantCount())
				return
			}

			require.Error(t, err)
			assert.Equal(t, tt.expectedCode, domain.ErrorCode(err))
			assert.Equal(t, 0, gateway.GrantCount())
			assert.Equal(t, 0, store.count())
		})
	}
}

func TestVerify_MissingLineItem(t *testing.T) {
	svc, store, provider, gateway := newTestEngine()
	provider.FetchSubscriptionFunc = func(ctx context.Context, packageName, purchaseToken string) (*playstore.SubscriptionDetail, error) {
		detail := testDetail(playstore.StateActive, playstore.AcknowledgementStateAcknowledged, testUser, time.Now().Add(time.Hour))
		detail.LineItems[0].ProductID = "some_other_plan"
		return detail, nil
	}

	err := svc.Verify(context.Background(), verifyRequest())
	require.Error(t, err)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	assert.Equal(t, 0, gateway.GrantCount())
	assert.Equal(t, 0, store.count())
}

func TestVerify_MissingExternalAccount(t *testing.T) {
	svc, store, provider, gateway := newTestEngine()
	provider.FetchSubscriptionFunc = func(ctx context.Context, packageName, purchaseToken string) (*playstore.SubscriptionDetail, error) {
		return testDetail(playstore.StateActive, playstore.AcknowledgementStateAcknowledged, "", time.Now().Add(time.Hour)), nil
	}

	err := svc.Verify(context.Background(), verifyRequest())
	require.Error(t, err)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	assert.Equal(t, 0, gateway.GrantCount())
	assert.Equal(t, 0, store.count())
}

func TestVerify_ProviderUnavailable(t *testing.T) {
	svc, store, provider, gateway := newTestEngine()
	provider.FetchSubscriptionFunc = func(ctx context.Context, packageName, purchaseToken string) (*playstore.SubscriptionDetail, error) {
		return nil, fmt.Errorf("%w: connection refused", playstore.ErrUnavailable)
	}

	err := svc.Verify(context.Background(), verifyRequest())
	require.Error(t, err)
	assert.Equal(t, domain.EUNAVAILABLE, domain.ErrorCode(err))
	assert.Equal(t, 0, gateway.GrantCount())
	assert.Equal(t, 0, store.count())
}

func TestVerify_ProviderRejectsToken(t *testing.T) {
	svc, _, provider, _ := newTestEngine()
	provider.FetchSubscriptionFunc = func(ctx context.Context, packageName, purchaseToken string) (*playstore.SubscriptionDetail, error) {
		return nil, &playstore.APIError{Operation: "fetch", StatusCode: 400, Body: "invalid token"}
	}

	err := svc.Verify(context.Background(), verifyRequest())
	require.Error(t, err)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}

func TestVerify_StaleRecordRefetchesAndRefreshes(t *testing.T) {
	svc, store, provider, gateway := newTestEngine()
	stale := domain.NewPurchaseToken(testUser, testToken, domain.TokenStatusExpired, time.Now().Add(-time.Hour))
	store.put(stale)

	newExpiry := time.Now().UTC().Add(30 * 24 * time.Hour)
	provider.FetchSubscriptionFunc = func(ctx context.Context, packageName, purchaseToken string) (*playstore.SubscriptionDetail, error) {
		return testDetail(playstore.StateActive, playstore.AcknowledgementStateAcknowledged, testUser, newExpiry), nil
	}

	err := svc.Verify(context.Background(), verifyRequest())
	require.NoError(t, err)

	rec := store.get(testToken)
	require.NotNil(t, rec)
	assert.Equal(t, stale.ID, rec.ID)
	assert.Equal(t, domain.TokenStatusAccessGranted, rec.Status)
	assert.True(t, rec.ExpiryAt.Equal(newExpiry))
	assert.Equal(t, 1, gateway.GrantCount())
	assert.Equal(t, 1, store.count())
}

func TestVerify_ExpiryNeverMovesBackward(t *testing.T) {
	svc, store, provider, _ := newTestEngine()
	farExpiry := time.Now().UTC().Add(60 * 24 * time.Hour)
	existing := domain.NewPurchaseToken(testUser, testToken, domain.TokenStatusPending, farExpiry)
	store.put(existing)

	provider.FetchSubscriptionFunc = func(ctx context.Context, packageName, purchaseToken string) (*playstore.SubscriptionDetail, error) {
		return testDetail(playstore.StateActive, playstore.AcknowledgementStateAcknowledged, testUser, time.Now().Add(time.Hour)), nil
	}

	err := svc.Verify(context.Background(), verifyRequest())
	require.NoError(t, err)

	rec := store.get(testToken)
	require.NotNil(t, rec)
	assert.True(t, rec.ExpiryAt.Equal(farExpiry), "stored expiry moved backward")
}

func TestVerify_InsertRaceSameUserConverges(t *testing.T) {
	svc, store, provider, gateway := newTestEngine()
	provider.FetchSubscriptionFunc = func(ctx context.Context, packageName, purchaseToken string) (*playstore.SubscriptionDetail, error) {
		return testDetail(playstore.StateActive, playstore.AcknowledgementStateAcknowledged, testUser, time.Now().Add(time.Hour)), nil
	}

	// A concurrent request for the same user wins the insert between this
	// request's read and its write.
	store.insertHook = func(s *memStore) {
		s.put(domain.NewPurchaseToken(testUser, testToken, domain.TokenStatusAccessGranted, time.Now().Add(time.Hour)))
	}

	err := svc.Verify(context.Background(), verifyRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, store.count())

	// The record is written after the grant, so the losing request has
	// already granted once by the time it detects the conflict. The grant
	// sets the plan rather than accumulating, making the repeat harmless.
	assert.Equal(t, 1, gateway.GrantCount())
}

func TestVerify_InsertRaceDifferentUserConflicts(t *testing.T) {
	svc, store, provider, _ := newTestEngine()
	provider.FetchSubscriptionFunc = func(ctx context.Context, packageName, purchaseToken string) (*playstore.SubscriptionDetail, error) {
		return testDetail(playstore.StateActive, playstore.AcknowledgementStateAcknowledged, testUser, time.Now().Add(time.Hour)), nil
	}

	store.insertHook = func(s *memStore) {
		s.put(domain.NewPurchaseToken("someone-else", testToken, domain.TokenStatusAccessGranted, time.Now().Add(time.Hour)))
	}

	err := svc.Verify(context.Background(), verifyRequest())
	require.Error(t, err)
	assert.Equal(t, domain.ECONFLICT, domain.ErrorCode(err))

	// The winner's record is untouched.
	rec := store.get(testToken)
	require.NotNil(t, rec)
	assert.Equal(t, "someone-else", rec.UserID)
}

func TestVerify_GrantFailureLeavesNoRecord(t *testing.T) {
	svc, store, provider, gateway := newTestEngine()
	provider.FetchSubscriptionFunc = func(ctx context.Context, packageName, purchaseToken string) (*playstore.SubscriptionDetail, error) {
		return testDetail(playstore.StateActive, playstore.AcknowledgementStateAcknowledged, testUser, time.Now().Add(time.Hour)), nil
	}
	gateway.GrantFunc = func(ctx context.Context, accountID string, plan entitlement.Plan) error {
		return entitlement.ErrServiceAccess
	}

	err := svc.Verify(context.Background(), verifyRequest())
	require.Error(t, err)
	assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))

	// The local record is written last; a failed grant must not leave one.
	assert.Equal(t, 0, store.count())
}
